package contract

import (
	"encoding/json"
	"fmt"

	"aibomtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Supervisor Operations ---

// RecordAdvisory appends an immutable advisory entry to a record's advisory
// log and returns the entry's index. The caller must hold the 'supervisor'
// role. No status restriction applies: supervisory guidance can be attached at
// any point in the record's lifecycle, including before approval.
func (s *AIBOMSmartContract) RecordAdvisory(ctx contractapi.TransactionContextInterface, recordID uint64, cid, scope, action string) (uint64, error) {
	im := NewIdentityManager(ctx)
	callerID, err := im.GetCallerID()
	if err != nil {
		return 0, fmt.Errorf("RecordAdvisory: failed to get caller identity: %w", err)
	}
	if err := im.RequireRole("supervisor"); err != nil {
		return 0, err
	}

	logger.Infof("Supervisor '%s' recording advisory for record %d", callerID, recordID)

	if err := s.validateRequiredString(cid, "cid", maxCidLength); err != nil {
		return 0, err
	}
	if err := s.validateOptionalString(scope, "scope", maxScopeLength); err != nil {
		return 0, err
	}
	if err := s.validateOptionalString(action, "action", maxActionLength); err != nil {
		return 0, err
	}

	record, err := s.getRecordByID(ctx, recordID)
	if err != nil {
		return 0, fmt.Errorf("RecordAdvisory: %w", err)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return 0, fmt.Errorf("RecordAdvisory: failed to get transaction timestamp: %w", err)
	}

	index, err := s.nextSequence(ctx, advisoryCounterObjectType, []string{recordKeyAttr(recordID)})
	if err != nil {
		return 0, fmt.Errorf("RecordAdvisory: failed to allocate advisory index for record %d: %w", recordID, err)
	}

	entry := model.AdvisoryEntry{
		ObjectType: advisoryObjectType,
		RecordID:   recordID,
		Index:      index,
		Cid:        cid,
		Scope:      scope,
		Action:     action,
		Reporter:   callerID,
		Timestamp:  now,
	}

	entryKey, err := s.createAdvisoryCompositeKey(ctx, recordID, index)
	if err != nil {
		return 0, fmt.Errorf("RecordAdvisory: failed to create composite key for record %d entry %d: %w", recordID, index, err)
	}
	entryBytes, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("RecordAdvisory: failed to marshal advisory entry: %w", err)
	}
	if err := ctx.GetStub().PutState(entryKey, entryBytes); err != nil {
		return 0, fmt.Errorf("RecordAdvisory: failed to save advisory entry for record %d: %w", recordID, err)
	}

	s.emitRecordEvent(ctx, "AdvisoryRecorded", record, callerID, map[string]interface{}{
		"advisoryIndex": index,
		"advisoryCid":   cid,
		"scope":         scope,
		"action":        action,
	})
	logger.Infof("Advisory %d recorded for record %d by supervisor '%s'", index, recordID, callerID)
	return index, nil
}
