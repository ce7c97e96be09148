package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"aibomtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var idLogger = flogging.MustGetLogger("aibomtrace.accesscontrol")

// Object types for composite keys, also usable as 'docType' or 'objectType' in CouchDB.
const (
	identityObjectType  = "IdentityInfo" // Stores IdentityInfo objects. Attribute for composite key: ID.
	adminFlagObjectType = "AdminFlag"    // Stores a flag for admin status. Attribute for composite key: ID.
)

// ValidRoles defines the set of permissible roles in the system.
var ValidRoles = map[string]bool{
	"creator":    true, // Medical-AI developer, may register AIBOM records
	"regulator":  true, // May adjudicate review status of any record
	"supervisor": true, // May attach security advisories to records
	// "admin" is a special status, managed by IsAdmin, not a role in this list.
}

// IdentityManager handles identity registration, role management, and admin privileges.
type IdentityManager struct {
	Ctx contractapi.TransactionContextInterface
}

// NewIdentityManager creates a new instance of IdentityManager.
func NewIdentityManager(ctx contractapi.TransactionContextInterface) *IdentityManager {
	return &IdentityManager{Ctx: ctx}
}

// --- Internal Helper Functions ---

func (im *IdentityManager) getCurrentTxTimestamp() (time.Time, error) {
	ts, err := im.Ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

func (im *IdentityManager) getListOfValidRoles() []string {
	keys := make([]string, 0, len(ValidRoles))
	for k := range ValidRoles {
		keys = append(keys, k)
	}
	return keys
}

// --- Key Creation Helpers (using Composite Keys) ---

func (im *IdentityManager) createIdentityCompositeKey(identity string) (string, error) {
	return im.Ctx.GetStub().CreateCompositeKey(identityObjectType, []string{identity})
}

func (im *IdentityManager) createAdminFlagCompositeKey(identity string) (string, error) {
	return im.Ctx.GetStub().CreateCompositeKey(adminFlagObjectType, []string{identity})
}

// --- Caller Resolution ---

// GetCallerID retrieves the externally-resolved identity of the current
// transactor. Identity proofing happens entirely outside the contract; by the
// time a transaction reaches us the caller is already an authenticated
// wallet-style address.
func (im *IdentityManager) GetCallerID() (string, error) {
	clientIdentity := im.Ctx.GetClientIdentity()
	if clientIdentity == nil {
		return "", errors.New("client identity is nil from context")
	}
	id, err := clientIdentity.GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get client identity ID from context: %w", err)
	}
	if id == "" {
		return "", errors.New("client identity ID from context is empty")
	}
	return id, nil
}

// --- Identity Records ---

func (im *IdentityManager) getIdentityInfo(identity string) (*model.IdentityInfo, error) {
	identityKey, err := im.createIdentityCompositeKey(identity)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity composite key for '%s': %w", identity, err)
	}
	identityInfoBytes, err := im.Ctx.GetStub().GetState(identityKey)
	if err != nil {
		return nil, fmt.Errorf("ledger error retrieving IdentityInfo for '%s': %w", identity, err)
	}
	if identityInfoBytes == nil {
		return nil, fmt.Errorf("%w: identity record for '%s'", ErrNotFound, identity)
	}
	var idInfo model.IdentityInfo
	if err := json.Unmarshal(identityInfoBytes, &idInfo); err != nil {
		return nil, fmt.Errorf("failed to unmarshal IdentityInfo for '%s': %w", identity, err)
	}
	if idInfo.Roles == nil {
		idInfo.Roles = []string{}
	}
	return &idInfo, nil
}

func (im *IdentityManager) putIdentityInfo(idInfo *model.IdentityInfo) error {
	identityKey, err := im.createIdentityCompositeKey(idInfo.ID)
	if err != nil {
		return fmt.Errorf("failed to create identity key for '%s': %w", idInfo.ID, err)
	}
	updatedBytes, err := json.Marshal(idInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal IdentityInfo for '%s': %w", idInfo.ID, err)
	}
	if err := im.Ctx.GetStub().PutState(identityKey, updatedBytes); err != nil {
		return fmt.Errorf("failed to save IdentityInfo for '%s': %w", idInfo.ID, err)
	}
	return nil
}

// ensureIdentityInfo returns the stored IdentityInfo for an identity, creating
// a fresh record (no roles, not admin) when none exists yet. Role grants do not
// require a separate registration step: the registry learns of an identity the
// first time an admin touches it.
func (im *IdentityManager) ensureIdentityInfo(identity, registeredBy string) (*model.IdentityInfo, error) {
	idInfo, err := im.getIdentityInfo(identity)
	if err == nil {
		return idInfo, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now, err := im.getCurrentTxTimestamp()
	if err != nil {
		return nil, err
	}
	idInfo = &model.IdentityInfo{
		ObjectType:    identityObjectType,
		ID:            identity,
		Roles:         []string{},
		IsAdmin:       false,
		RegisteredBy:  registeredBy,
		RegisteredAt:  now,
		LastUpdatedAt: now,
	}
	if err := im.putIdentityInfo(idInfo); err != nil {
		return nil, err
	}
	idLogger.Infof("Registered new identity '%s' (by '%s')", identity, registeredBy)
	return idInfo, nil
}

// --- Role Management ---

// GrantRole assigns a role to an identity. Caller must be an admin. Granting a
// role the identity already holds is a no-op, and the change is immediately
// visible to subsequent authorization checks.
func (im *IdentityManager) GrantRole(targetIdentity, role string) error {
	callerID, err := im.GetCallerID()
	if err != nil {
		return fmt.Errorf("failed to get caller's identity for GrantRole: %w", err)
	}
	isCallerAdmin, err := im.IsAdmin(callerID)
	if err != nil {
		return fmt.Errorf("failed to verify caller admin status for GrantRole: %w", err)
	}
	if !isCallerAdmin {
		return fmt.Errorf("%w: caller '%s' may not grant roles", ErrUnauthorized, callerID)
	}

	roleLower := strings.ToLower(strings.TrimSpace(role))
	if !ValidRoles[roleLower] {
		return fmt.Errorf("%w: invalid role '%s'. Valid roles are: %v", ErrInvalidInput, role, im.getListOfValidRoles())
	}
	if strings.TrimSpace(targetIdentity) == "" {
		return fmt.Errorf("%w: targetIdentity cannot be empty", ErrInvalidInput)
	}

	idInfo, err := im.ensureIdentityInfo(targetIdentity, callerID)
	if err != nil {
		return fmt.Errorf("cannot grant role to '%s': %w", targetIdentity, err)
	}

	for _, existingRole := range idInfo.Roles {
		if existingRole == roleLower {
			idLogger.Infof("Role '%s' already assigned to identity '%s'. No action needed.", roleLower, targetIdentity)
			return nil
		}
	}

	now, err := im.getCurrentTxTimestamp()
	if err != nil {
		return err
	}
	idInfo.Roles = append(idInfo.Roles, roleLower)
	idInfo.LastUpdatedAt = now

	if err := im.putIdentityInfo(idInfo); err != nil {
		return fmt.Errorf("failed to save IdentityInfo after role grant for '%s': %w", targetIdentity, err)
	}
	im.emitRoleEvent("RoleGranted", targetIdentity, roleLower, callerID, now)
	idLogger.Infof("Role '%s' granted to identity '%s' by admin '%s'.", roleLower, targetIdentity, callerID)
	return nil
}

// RevokeRole removes a role from an identity. Caller must be an admin.
// Revoking a role the identity does not hold is a no-op.
func (im *IdentityManager) RevokeRole(targetIdentity, role string) error {
	callerID, err := im.GetCallerID()
	if err != nil {
		return fmt.Errorf("failed to get caller's identity for RevokeRole: %w", err)
	}
	isCallerAdmin, err := im.IsAdmin(callerID)
	if err != nil {
		return fmt.Errorf("failed to verify caller admin status for RevokeRole: %w", err)
	}
	if !isCallerAdmin {
		return fmt.Errorf("%w: caller '%s' may not revoke roles", ErrUnauthorized, callerID)
	}

	roleLower := strings.ToLower(strings.TrimSpace(role))
	// No validity check on roleLower: removing an unknown role is harmless.

	idInfo, err := im.getIdentityInfo(targetIdentity)
	if err != nil {
		return fmt.Errorf("cannot revoke role: %w", err)
	}

	found := false
	newRoles := []string{}
	for _, r := range idInfo.Roles {
		if r == roleLower {
			found = true
		} else {
			newRoles = append(newRoles, r)
		}
	}
	if !found {
		idLogger.Infof("Role '%s' not held by identity '%s'. No action taken for revocation.", roleLower, targetIdentity)
		return nil
	}

	now, err := im.getCurrentTxTimestamp()
	if err != nil {
		return err
	}
	idInfo.Roles = newRoles
	idInfo.LastUpdatedAt = now

	if err := im.putIdentityInfo(idInfo); err != nil {
		return fmt.Errorf("failed to save IdentityInfo after role revocation for '%s': %w", targetIdentity, err)
	}
	im.emitRoleEvent("RoleRevoked", targetIdentity, roleLower, callerID, now)
	idLogger.Infof("Role '%s' revoked from identity '%s' by admin '%s'.", roleLower, targetIdentity, callerID)
	return nil
}

// HasRole reports whether an identity currently holds a role. An identity
// without a stored record holds no roles.
func (im *IdentityManager) HasRole(identity, role string) (bool, error) {
	idInfo, err := im.getIdentityInfo(identity)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("error resolving identity '%s' to check role: %w", identity, err)
	}
	roleLower := strings.ToLower(strings.TrimSpace(role))
	for _, r := range idInfo.Roles {
		if r == roleLower {
			return true, nil
		}
	}
	return false, nil
}

// RequireRole fails unless the current caller holds the required role. Admin
// status grants no bypass here: an admin without 'creator' cannot register
// records. Admin-only operations use requireAdmin instead.
func (im *IdentityManager) RequireRole(requiredRole string) error {
	callerID, err := im.GetCallerID()
	if err != nil {
		return fmt.Errorf("failed to get current caller's identity for RequireRole: %w", err)
	}
	has, err := im.HasRole(callerID, requiredRole)
	if err != nil {
		return fmt.Errorf("error checking role '%s' for caller '%s': %w", requiredRole, callerID, err)
	}
	if !has {
		return fmt.Errorf("%w: identity '%s' does not have required role '%s'", ErrUnauthorized, callerID, requiredRole)
	}
	idLogger.Debugf("Role check passed for role '%s' for caller '%s'.", requiredRole, callerID)
	return nil
}

// emitRoleEvent sends a chaincode event for a role table mutation.
func (im *IdentityManager) emitRoleEvent(eventName, identity, role, actorID string, ts time.Time) {
	payload := map[string]interface{}{
		"identity":             identity,
		"role":                 role,
		"actorId":              actorID,
		"transactionTimestamp": ts.Format(time.RFC3339),
	}
	eventBytes, err := json.Marshal(payload)
	if err != nil {
		idLogger.Warningf("emitRoleEvent: Failed to marshal payload for event '%s' on '%s': %v", eventName, identity, err)
		return
	}
	if errSet := im.Ctx.GetStub().SetEvent(eventName, eventBytes); errSet != nil {
		idLogger.Warningf("emitRoleEvent: Failed to set event '%s' for '%s': %v", eventName, identity, errSet)
	}
}

// --- Admin Management ---

// MakeAdmin promotes an identity to admin. Requires the caller to be an admin,
// except in the bootstrap case where no admin exists yet.
func (im *IdentityManager) MakeAdmin(targetIdentity string) error {
	anyAdminExists, err := im.AnyAdminExists()
	if err != nil {
		return fmt.Errorf("failed to check if any admin exists for MakeAdmin: %w", err)
	}

	callerID, err := im.GetCallerID()
	if err != nil {
		return fmt.Errorf("failed to get caller's identity for MakeAdmin: %w", err)
	}
	if anyAdminExists {
		isCallerAdmin, errAdm := im.IsAdmin(callerID)
		if errAdm != nil {
			return fmt.Errorf("failed to verify caller '%s' admin status for MakeAdmin: %w", callerID, errAdm)
		}
		if !isCallerAdmin {
			return fmt.Errorf("%w: caller '%s' may not make others admin", ErrUnauthorized, callerID)
		}
	} else {
		idLogger.Infof("No admins exist. Bootstrap: caller '%s' is making target '%s' an admin.", callerID, targetIdentity)
	}

	if strings.TrimSpace(targetIdentity) == "" {
		return fmt.Errorf("%w: targetIdentity cannot be empty", ErrInvalidInput)
	}

	idInfo, err := im.ensureIdentityInfo(targetIdentity, callerID)
	if err != nil {
		return fmt.Errorf("cannot make admin: %w", err)
	}

	adminFlagKey, err := im.createAdminFlagCompositeKey(targetIdentity)
	if err != nil {
		return fmt.Errorf("failed to create admin flag key for MakeAdmin: %w", err)
	}
	if idInfo.IsAdmin {
		flagBytes, _ := im.Ctx.GetStub().GetState(adminFlagKey)
		if flagBytes != nil && string(flagBytes) == "true" {
			idLogger.Infof("Identity '%s' is already an admin. No action needed.", targetIdentity)
			return nil
		}
	}

	now, err := im.getCurrentTxTimestamp()
	if err != nil {
		return err
	}
	idInfo.IsAdmin = true
	idInfo.LastUpdatedAt = now

	if err := im.putIdentityInfo(idInfo); err != nil {
		return fmt.Errorf("failed to save IdentityInfo after setting IsAdmin for '%s': %w", targetIdentity, err)
	}
	if err := im.Ctx.GetStub().PutState(adminFlagKey, []byte("true")); err != nil {
		return fmt.Errorf("failed to set admin flag for '%s': %w", targetIdentity, err)
	}
	idLogger.Infof("Identity '%s' has been made an admin by '%s'.", targetIdentity, callerID)
	return nil
}

// RemoveAdmin demotes an identity from admin. Admins cannot remove their own
// admin status; this also keeps the registry from locking itself out of its
// last admin.
func (im *IdentityManager) RemoveAdmin(targetIdentity string) error {
	callerID, err := im.GetCallerID()
	if err != nil {
		return fmt.Errorf("failed to get caller's identity for RemoveAdmin: %w", err)
	}
	isCallerAdmin, err := im.IsAdmin(callerID)
	if err != nil {
		return fmt.Errorf("failed to verify caller '%s' admin status for RemoveAdmin: %w", callerID, err)
	}
	if !isCallerAdmin {
		return fmt.Errorf("%w: caller '%s' may not remove admin privileges", ErrUnauthorized, callerID)
	}
	if targetIdentity == callerID {
		return fmt.Errorf("%w: admins cannot remove their own admin status", ErrUnauthorized)
	}

	idInfo, err := im.getIdentityInfo(targetIdentity)
	if err != nil {
		return fmt.Errorf("cannot remove admin: %w", err)
	}

	adminFlagKey, err := im.createAdminFlagCompositeKey(targetIdentity)
	if err != nil {
		return fmt.Errorf("failed to create admin flag key for RemoveAdmin: %w", err)
	}
	if !idInfo.IsAdmin {
		idLogger.Infof("Identity '%s' IsAdmin is already false. Ensuring admin flag is also cleared.", targetIdentity)
		_ = im.Ctx.GetStub().DelState(adminFlagKey)
		return nil
	}

	now, err := im.getCurrentTxTimestamp()
	if err != nil {
		return err
	}
	idInfo.IsAdmin = false
	idInfo.LastUpdatedAt = now

	if err := im.putIdentityInfo(idInfo); err != nil {
		return fmt.Errorf("failed to save IdentityInfo after clearing IsAdmin for '%s': %w", targetIdentity, err)
	}
	if err := im.Ctx.GetStub().DelState(adminFlagKey); err != nil {
		return fmt.Errorf("failed to delete admin flag for '%s': %w", targetIdentity, err)
	}
	idLogger.Infof("Admin privileges removed from identity '%s' by '%s'.", targetIdentity, callerID)
	return nil
}

// IsAdmin checks if an identity has admin privileges based on the AdminFlag.
func (im *IdentityManager) IsAdmin(identity string) (bool, error) {
	adminFlagKey, err := im.createAdminFlagCompositeKey(identity)
	if err != nil {
		return false, fmt.Errorf("failed to create admin flag key for IsAdmin check on '%s': %w", identity, err)
	}
	flagBytes, err := im.Ctx.GetStub().GetState(adminFlagKey)
	if err != nil {
		return false, fmt.Errorf("ledger error checking admin flag for '%s': %w", identity, err)
	}
	return flagBytes != nil && string(flagBytes) == "true", nil
}

// IsCallerAdmin checks if the current transactor has admin privileges.
func (im *IdentityManager) IsCallerAdmin() (bool, error) {
	callerID, err := im.GetCallerID()
	if err != nil {
		return false, fmt.Errorf("failed to get current caller's identity for admin check: %w", err)
	}
	return im.IsAdmin(callerID)
}

// AnyAdminExists checks if any admin flag is set on the ledger.
func (im *IdentityManager) AnyAdminExists() (bool, error) {
	iterator, err := im.Ctx.GetStub().GetStateByPartialCompositeKey(adminFlagObjectType, []string{})
	if err != nil {
		return false, fmt.Errorf("failed to query admin records for AnyAdminExists: %w", err)
	}
	defer iterator.Close()
	return iterator.HasNext(), nil
}

// GetAllRegisteredIdentities returns every stored identity record. Admin only.
func (im *IdentityManager) GetAllRegisteredIdentities() ([]model.IdentityInfo, error) {
	callerID, err := im.GetCallerID()
	if err != nil {
		return nil, fmt.Errorf("failed to get caller's identity for GetAllRegisteredIdentities: %w", err)
	}
	isCallerAdmin, err := im.IsAdmin(callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify caller '%s' admin status for GetAllRegisteredIdentities: %w", callerID, err)
	}
	if !isCallerAdmin {
		return nil, fmt.Errorf("%w: caller '%s' may not list all identities", ErrUnauthorized, callerID)
	}

	resultsIterator, err := im.Ctx.GetStub().GetStateByPartialCompositeKey(identityObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("failed to get identities iterator using objectType '%s': %w", identityObjectType, err)
	}
	defer resultsIterator.Close()

	identities := []model.IdentityInfo{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			idLogger.Warningf("Failed to get next identity from iterator during GetAllRegisteredIdentities: %v. Skipping.", iterErr)
			continue
		}
		var idInfo model.IdentityInfo
		if err := json.Unmarshal(queryResponse.Value, &idInfo); err != nil {
			idLogger.Warningf("Failed to unmarshal identity data for key '%s': %v. Skipping.", queryResponse.Key, err)
			continue
		}
		if idInfo.Roles == nil {
			idInfo.Roles = []string{}
		}
		identities = append(identities, idInfo)
	}
	idLogger.Infof("Admin '%s' retrieved %d registered identities.", callerID, len(identities))
	return identities, nil
}
