package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"aibomtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Admin Operations ---

// BootstrapRegistry initializes the registry: the caller becomes the initial
// admin, and the optional JSON string arrays name identities that receive the
// 'creator' and 'regulator' roles at deployment time. One shot; refuses to run
// once any admin exists.
func (s *AIBOMSmartContract) BootstrapRegistry(ctx contractapi.TransactionContextInterface, initialCreatorsJSON, initialRegulatorsJSON string) error {
	logger.Info("Attempting to bootstrap registry with initial admin...")
	im := NewIdentityManager(ctx)

	anyAdminAlreadyExists, err := im.AnyAdminExists()
	if err != nil {
		return fmt.Errorf("BootstrapRegistry: failed to check if any admin exists: %w", err)
	}
	if anyAdminAlreadyExists {
		msg := "system already has admins or is bootstrapped. BootstrapRegistry should not be re-run."
		logger.Info(msg)
		return errors.New(msg)
	}

	callerID, err := im.GetCallerID()
	if err != nil {
		return fmt.Errorf("BootstrapRegistry: failed to get caller identity for bootstrap: %w", err)
	}

	initialCreators, err := parseIdentityList(initialCreatorsJSON, "initialCreatorsJSON")
	if err != nil {
		return err
	}
	initialRegulators, err := parseIdentityList(initialRegulatorsJSON, "initialRegulatorsJSON")
	if err != nil {
		return err
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("BootstrapRegistry: failed to get timestamp for bootstrap writes: %w", err)
	}

	// The bootstrap admin and the initial role holders are written directly:
	// there is no admin yet to authorize the usual gated operations.
	bootstrapAdminInfo := model.IdentityInfo{
		ObjectType:    identityObjectType,
		ID:            callerID,
		Roles:         []string{},
		IsAdmin:       true,
		RegisteredBy:  callerID,
		RegisteredAt:  now,
		LastUpdatedAt: now,
	}
	if err := im.putIdentityInfo(&bootstrapAdminInfo); err != nil {
		return fmt.Errorf("BootstrapRegistry: failed to save bootstrap admin IdentityInfo for '%s': %w", callerID, err)
	}
	adminFlagKey, flagKeyErr := im.createAdminFlagCompositeKey(callerID)
	if flagKeyErr != nil {
		return fmt.Errorf("BootstrapRegistry: failed to create admin flag key for '%s': %w", callerID, flagKeyErr)
	}
	if err := ctx.GetStub().PutState(adminFlagKey, []byte("true")); err != nil {
		return fmt.Errorf("BootstrapRegistry: failed to set admin flag for bootstrap admin '%s': %w", callerID, err)
	}
	logger.Infof("BootstrapRegistry: identity '%s' is now the bootstrap admin.", callerID)

	// Accumulate roles per identity first: the same identity may appear in
	// both lists, or be the bootstrap admin itself.
	initialRoles := map[string][]string{}
	order := []string{}
	for _, identity := range initialCreators {
		if _, seen := initialRoles[identity]; !seen {
			order = append(order, identity)
		}
		initialRoles[identity] = append(initialRoles[identity], "creator")
	}
	for _, identity := range initialRegulators {
		if _, seen := initialRoles[identity]; !seen {
			order = append(order, identity)
		}
		initialRoles[identity] = append(initialRoles[identity], "regulator")
	}

	for _, identity := range order {
		idInfo := model.IdentityInfo{
			ObjectType:    identityObjectType,
			ID:            identity,
			Roles:         initialRoles[identity],
			IsAdmin:       identity == callerID,
			RegisteredBy:  callerID,
			RegisteredAt:  now,
			LastUpdatedAt: now,
		}
		if err := im.putIdentityInfo(&idInfo); err != nil {
			return fmt.Errorf("BootstrapRegistry: failed to save initial roles for '%s': %w", identity, err)
		}
		logger.Infof("BootstrapRegistry: identity '%s' granted initial roles %v.", identity, initialRoles[identity])
	}

	logger.Infof("BootstrapRegistry: registry bootstrapped successfully by '%s' (%d initial creators, %d initial regulators).",
		callerID, len(initialCreators), len(initialRegulators))
	return nil
}

// parseIdentityList decodes a JSON string array of identities. An empty
// argument means an empty list.
func parseIdentityList(listJSON, field string) ([]string, error) {
	if strings.TrimSpace(listJSON) == "" {
		return []string{}, nil
	}
	var identities []string
	if err := json.Unmarshal([]byte(listJSON), &identities); err != nil {
		return nil, fmt.Errorf("%w: invalid %s: %v", ErrInvalidInput, field, err)
	}
	for i, identity := range identities {
		if strings.TrimSpace(identity) == "" {
			return nil, fmt.Errorf("%w: %s[%d] cannot be empty", ErrInvalidInput, field, i)
		}
	}
	return identities, nil
}

// ReportVulnerability appends a vulnerability entry to a record's
// vulnerability log and returns the entry's index. Vulnerability disclosure is
// the most sensitive write in the system, so it requires admin status.
func (s *AIBOMSmartContract) ReportVulnerability(ctx contractapi.TransactionContextInterface, recordID uint64, cid, severityStr string) (uint64, error) {
	im := NewIdentityManager(ctx)
	callerID, err := im.GetCallerID()
	if err != nil {
		return 0, fmt.Errorf("ReportVulnerability: failed to get caller identity: %w", err)
	}
	if err := s.requireAdmin(ctx, im); err != nil {
		return 0, fmt.Errorf("ReportVulnerability: %w", err)
	}

	logger.Infof("Admin '%s' reporting vulnerability for record %d (severity '%s')", callerID, recordID, severityStr)

	if err := s.validateRequiredString(cid, "cid", maxCidLength); err != nil {
		return 0, err
	}
	severity, err := parseSeverity(severityStr)
	if err != nil {
		return 0, err
	}

	record, err := s.getRecordByID(ctx, recordID)
	if err != nil {
		return 0, fmt.Errorf("ReportVulnerability: %w", err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return 0, fmt.Errorf("ReportVulnerability: failed to get transaction timestamp: %w", err)
	}

	index, err := s.nextSequence(ctx, vulnerabilityCounterObjectType, []string{recordKeyAttr(recordID)})
	if err != nil {
		return 0, fmt.Errorf("ReportVulnerability: failed to allocate vulnerability index for record %d: %w", recordID, err)
	}

	entry := model.VulnerabilityEntry{
		ObjectType: vulnerabilityObjectType,
		RecordID:   recordID,
		Index:      index,
		Cid:        cid,
		Severity:   severity,
		Active:     true,
		Reporter:   callerID,
		Timestamp:  now,
	}

	entryKey, err := s.createVulnerabilityCompositeKey(ctx, recordID, index)
	if err != nil {
		return 0, fmt.Errorf("ReportVulnerability: failed to create composite key for record %d entry %d: %w", recordID, index, err)
	}
	entryBytes, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("ReportVulnerability: failed to marshal vulnerability entry: %w", err)
	}
	if err := ctx.GetStub().PutState(entryKey, entryBytes); err != nil {
		return 0, fmt.Errorf("ReportVulnerability: failed to save vulnerability entry for record %d: %w", recordID, err)
	}

	s.emitRecordEvent(ctx, "VulnerabilityReported", record, callerID, map[string]interface{}{
		"vulnerabilityIndex": index,
		"vulnerabilityCid":   cid,
		"severity":           severity,
	})
	logger.Infof("Vulnerability %d (severity '%s') reported for record %d by admin '%s'", index, severity, recordID, callerID)
	return index, nil
}

// DeactivateVulnerability marks a vulnerability entry as resolved without
// removing it from the audit trail. Idempotent: deactivating an already
// inactive entry is a no-op.
func (s *AIBOMSmartContract) DeactivateVulnerability(ctx contractapi.TransactionContextInterface, recordID uint64, entryIndex uint64) error {
	im := NewIdentityManager(ctx)
	callerID, err := im.GetCallerID()
	if err != nil {
		return fmt.Errorf("DeactivateVulnerability: failed to get caller identity: %w", err)
	}
	if err := s.requireAdmin(ctx, im); err != nil {
		return fmt.Errorf("DeactivateVulnerability: %w", err)
	}

	record, err := s.getRecordByID(ctx, recordID)
	if err != nil {
		return fmt.Errorf("DeactivateVulnerability: %w", err)
	}

	entryKey, err := s.createVulnerabilityCompositeKey(ctx, recordID, entryIndex)
	if err != nil {
		return fmt.Errorf("DeactivateVulnerability: failed to create composite key for record %d entry %d: %w", recordID, entryIndex, err)
	}
	entryBytes, err := ctx.GetStub().GetState(entryKey)
	if err != nil {
		return fmt.Errorf("DeactivateVulnerability: failed to read vulnerability entry %d for record %d: %w", entryIndex, recordID, err)
	}
	if entryBytes == nil {
		return fmt.Errorf("%w: vulnerability entry %d for record %d", ErrNotFound, entryIndex, recordID)
	}

	var entry model.VulnerabilityEntry
	if err := json.Unmarshal(entryBytes, &entry); err != nil {
		return fmt.Errorf("DeactivateVulnerability: failed to unmarshal vulnerability entry %d for record %d: %w", entryIndex, recordID, err)
	}
	if !entry.Active {
		logger.Infof("Vulnerability %d for record %d is already inactive. No changes made.", entryIndex, recordID)
		return nil
	}

	entry.Active = false
	updatedBytes, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("DeactivateVulnerability: failed to marshal vulnerability entry %d for record %d: %w", entryIndex, recordID, err)
	}
	if err := ctx.GetStub().PutState(entryKey, updatedBytes); err != nil {
		return fmt.Errorf("DeactivateVulnerability: failed to update vulnerability entry %d for record %d: %w", entryIndex, recordID, err)
	}

	s.emitRecordEvent(ctx, "VulnerabilityDeactivated", record, callerID, map[string]interface{}{
		"vulnerabilityIndex": entryIndex,
	})
	logger.Infof("Vulnerability %d for record %d deactivated by admin '%s'", entryIndex, recordID, callerID)
	return nil
}
