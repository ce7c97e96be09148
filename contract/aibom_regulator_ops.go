package contract

import (
	"encoding/json"
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Regulator Operations ---

// SetReviewStatus moves a record through the review state machine and records
// the regulator's rationale. Any identity holding the 'regulator' role may
// decide any record; the legal transitions are a closed whitelist:
//
//	SUBMITTED -> IN_REVIEW | APPROVED | REJECTED
//	IN_REVIEW -> APPROVED | REJECTED
//
// Everything else, including any move into DRAFT and any move out of a final
// status, fails with an invalid-transition error and leaves state unchanged.
func (s *AIBOMSmartContract) SetReviewStatus(ctx contractapi.TransactionContextInterface, recordID uint64, newStatusStr string, reason string) error {
	im := NewIdentityManager(ctx)
	callerID, err := im.GetCallerID()
	if err != nil {
		return fmt.Errorf("SetReviewStatus: failed to get caller identity: %w", err)
	}
	if err := im.RequireRole("regulator"); err != nil {
		return err
	}

	logger.Infof("Regulator '%s' setting status of record %d to '%s'", callerID, recordID, newStatusStr)

	newStatus, err := parseReviewStatus(newStatusStr)
	if err != nil {
		return err
	}
	if err := s.validateOptionalString(reason, "reason", maxReasonLength); err != nil {
		return err
	}

	record, err := s.getRecordByID(ctx, recordID)
	if err != nil {
		return fmt.Errorf("SetReviewStatus: %w", err)
	}
	if !legalReviewTransitions[record.Status][newStatus] {
		return fmt.Errorf("%w: record %d cannot move from '%s' to '%s'", ErrInvalidTransition, recordID, record.Status, newStatus)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("SetReviewStatus: failed to get transaction timestamp: %w", err)
	}

	previousStatus := record.Status
	record.Status = newStatus
	record.ReviewReason = reason
	record.LastUpdatedAt = now

	recordKey, _ := s.createRecordCompositeKey(ctx, recordID)
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("SetReviewStatus: failed to marshal record %d: %w", recordID, err)
	}
	if err := ctx.GetStub().PutState(recordKey, recordBytes); err != nil {
		return fmt.Errorf("SetReviewStatus: failed to update record %d on ledger: %w", recordID, err)
	}

	s.emitRecordEvent(ctx, "ReviewStatusChanged", record, callerID, map[string]interface{}{
		"previousStatus": previousStatus,
		"reason":         reason,
	})
	logger.Infof("Record %d moved from '%s' to '%s' by regulator '%s'", recordID, previousStatus, newStatus, callerID)
	return nil
}
