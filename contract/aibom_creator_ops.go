package contract

import (
	"encoding/json"
	"fmt"

	"aibomtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Lifecycle: Creator (Developer) Operations ---

// RegisterAIBOM registers a new AI Bill of Materials for a model release. The
// caller must hold the 'creator' role and becomes the record's immutable
// owner. Ids are allocated from a strictly increasing counter starting at 0.
func (s *AIBOMSmartContract) RegisterAIBOM(ctx contractapi.TransactionContextInterface, cid string) (*model.AIBOMRecord, error) {
	im := NewIdentityManager(ctx)
	callerID, err := im.GetCallerID()
	if err != nil {
		return nil, fmt.Errorf("RegisterAIBOM: failed to get caller identity: %w", err)
	}
	if err := im.RequireRole("creator"); err != nil {
		return nil, err
	}

	logger.Infof("Creator '%s' registering AIBOM with cid '%s'", callerID, cid)

	if err := s.validateRequiredString(cid, "cid", maxCidLength); err != nil {
		return nil, err
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("RegisterAIBOM: failed to get transaction timestamp: %w", err)
	}

	recordID, err := s.nextSequence(ctx, recordCounterObjectType, []string{"nextModelId"})
	if err != nil {
		return nil, fmt.Errorf("RegisterAIBOM: failed to allocate record id: %w", err)
	}

	record := model.AIBOMRecord{
		ObjectType:    recordObjectType,
		ID:            recordID,
		Owner:         callerID,
		Cid:           cid,
		Status:        model.StatusDraft,
		ReviewDocCid:  "",
		ReviewReason:  "",
		CreatedAt:     now,
		LastUpdatedAt: now,
	}

	recordKey, err := s.createRecordCompositeKey(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("RegisterAIBOM: failed to create composite key for record %d: %w", recordID, err)
	}
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("RegisterAIBOM: failed to marshal record %d: %w", recordID, err)
	}
	if err := ctx.GetStub().PutState(recordKey, recordBytes); err != nil {
		return nil, fmt.Errorf("RegisterAIBOM: failed to save record %d to ledger: %w", recordID, err)
	}

	s.emitRecordEvent(ctx, "AIBOMRegistered", &record, callerID, nil)
	logger.Infof("AIBOM record %d registered by creator '%s'", recordID, callerID)
	return &record, nil
}

// SubmitReview submits (or resubmits) a review dossier for a record. Only the
// record's owner may submit it, and only from DRAFT or REJECTED status;
// resubmission after rejection overwrites the previous dossier reference.
func (s *AIBOMSmartContract) SubmitReview(ctx contractapi.TransactionContextInterface, recordID uint64, reviewDocCid string) error {
	im := NewIdentityManager(ctx)
	callerID, err := im.GetCallerID()
	if err != nil {
		return fmt.Errorf("SubmitReview: failed to get caller identity: %w", err)
	}

	if err := s.validateRequiredString(reviewDocCid, "reviewDocCid", maxCidLength); err != nil {
		return err
	}

	record, err := s.getRecordByID(ctx, recordID)
	if err != nil {
		return fmt.Errorf("SubmitReview: %w", err)
	}
	if record.Owner != callerID {
		return fmt.Errorf("%w: only the owner '%s' may submit record %d for review", ErrUnauthorized, record.Owner, recordID)
	}
	if !submitSourceStatuses[record.Status] {
		return fmt.Errorf("%w: record %d has status '%s', review can only be submitted from '%s' or '%s'",
			ErrInvalidTransition, recordID, record.Status, model.StatusDraft, model.StatusRejected)
	}

	now, err := s.getCurrentTxTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("SubmitReview: failed to get transaction timestamp: %w", err)
	}

	record.ReviewDocCid = reviewDocCid
	record.Status = model.StatusSubmitted
	record.LastUpdatedAt = now

	recordKey, _ := s.createRecordCompositeKey(ctx, recordID)
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("SubmitReview: failed to marshal record %d: %w", recordID, err)
	}
	if err := ctx.GetStub().PutState(recordKey, recordBytes); err != nil {
		return fmt.Errorf("SubmitReview: failed to update record %d on ledger: %w", recordID, err)
	}

	s.emitRecordEvent(ctx, "ReviewSubmitted", record, callerID, map[string]interface{}{"reviewDocCid": reviewDocCid})
	logger.Infof("Record %d submitted for review by owner '%s'", recordID, callerID)
	return nil
}
