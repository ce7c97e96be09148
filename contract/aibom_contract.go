package contract

import (
	"fmt"

	"aibomtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"
)

var logger = flogging.MustGetLogger("aibomtrace.registry")

// Object types for composite keys, also usable as 'docType' for CouchDB queries.
const (
	recordObjectType               = "AIBOMRecord"          // One AIBOM record. Attribute: zero-padded id.
	recordCounterObjectType        = "AIBOMCounter"         // Next record id. Attribute: "nextModelId".
	advisoryObjectType             = "Advisory"             // One advisory entry. Attributes: record id, entry index.
	advisoryCounterObjectType      = "AdvisoryCounter"      // Next advisory index per record. Attribute: record id.
	vulnerabilityObjectType        = "Vulnerability"        // One vulnerability entry. Attributes: record id, entry index.
	vulnerabilityCounterObjectType = "VulnerabilityCounter" // Next vulnerability index per record. Attribute: record id.
)

// Constants for input validation and limits
const (
	maxCidLength    = 256  // Content references are opaque but bounded
	maxScopeLength  = 256  // Advisory scope, e.g. an affected version range
	maxActionLength = 512  // Advisory recommended action
	maxReasonLength = 1024 // Regulator review rationale
)

// AIBOMSmartContract provides functions for managing AIBOM records, their
// regulatory review lifecycle, and the advisory and vulnerability logs.
// @contract:AIBOMSmartContract
type AIBOMSmartContract struct {
	contractapi.Contract
}

// Instantiate is called during chaincode instantiation.
// It's a lifecycle method of the contract.
func (s *AIBOMSmartContract) Instantiate(ctx contractapi.TransactionContextInterface) {
	logger.Info("AIBOMSmartContract Instantiated/Upgraded")
}

// --- Identity & Role Management Wrappers (Delegating to IdentityManager) ---
// These are direct pass-throughs or simple wrappers to IdentityManager,
// keeping the contract API clean.

func (s *AIBOMSmartContract) GrantRole(ctx contractapi.TransactionContextInterface, identity, role string) error {
	logger.Infof("Chaincode Call: GrantRole '%s' to '%s'", role, identity)
	return NewIdentityManager(ctx).GrantRole(identity, role)
}

func (s *AIBOMSmartContract) RevokeRole(ctx contractapi.TransactionContextInterface, identity, role string) error {
	logger.Infof("Chaincode Call: RevokeRole '%s' from '%s'", role, identity)
	return NewIdentityManager(ctx).RevokeRole(identity, role)
}

func (s *AIBOMSmartContract) MakeIdentityAdmin(ctx contractapi.TransactionContextInterface, identity string) error {
	logger.Infof("Chaincode Call: MakeAdmin for '%s'", identity)
	return NewIdentityManager(ctx).MakeAdmin(identity)
}

func (s *AIBOMSmartContract) RemoveIdentityAdmin(ctx contractapi.TransactionContextInterface, identity string) error {
	logger.Infof("Chaincode Call: RemoveAdmin for '%s'", identity)
	return NewIdentityManager(ctx).RemoveAdmin(identity)
}

// GetIdentityDetails returns the stored identity record. Only admins or the
// identity itself may read it.
func (s *AIBOMSmartContract) GetIdentityDetails(ctx contractapi.TransactionContextInterface, identity string) (*model.IdentityInfo, error) {
	logger.Debugf("Chaincode Call: GetIdentityDetails for '%s'", identity)
	im := NewIdentityManager(ctx)
	isCallerAdmin, err := im.IsCallerAdmin()
	if err != nil {
		return nil, fmt.Errorf("GetIdentityDetails: failed to check admin status: %w", err)
	}
	if !isCallerAdmin {
		callerID, err := im.GetCallerID()
		if err != nil {
			return nil, fmt.Errorf("GetIdentityDetails: failed to get caller's identity: %w", err)
		}
		if callerID != identity {
			return nil, fmt.Errorf("%w: only admins or the identity owner can get these details", ErrUnauthorized)
		}
	}
	return im.getIdentityInfo(identity)
}

func (s *AIBOMSmartContract) GetAllIdentities(ctx contractapi.TransactionContextInterface) ([]model.IdentityInfo, error) {
	logger.Debug("Chaincode Call: GetAllIdentities")
	return NewIdentityManager(ctx).GetAllRegisteredIdentities()
}

// HasRole is a public read used by dashboards to gate their views.
func (s *AIBOMSmartContract) HasRole(ctx contractapi.TransactionContextInterface, identity, role string) (bool, error) {
	logger.Debugf("Chaincode Call: HasRole '%s' for '%s'", role, identity)
	return NewIdentityManager(ctx).HasRole(identity, role)
}
