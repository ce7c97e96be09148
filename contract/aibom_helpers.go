package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"aibomtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Core Helper Methods (used across multiple operations) ---

// getCurrentTxTimestamp retrieves the current transaction timestamp from the stub.
func (s *AIBOMSmartContract) getCurrentTxTimestamp(ctx contractapi.TransactionContextInterface) (time.Time, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get transaction timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

// --- Key Attribute Encoding ---

// Record ids and entry indices are zero-padded in composite key attributes so
// that lexical iteration order over a partial composite key equals ascending
// numeric order.
func recordKeyAttr(recordID uint64) string {
	return fmt.Sprintf("%012d", recordID)
}

func entryKeyAttr(index uint64) string {
	return fmt.Sprintf("%08d", index)
}

func (s *AIBOMSmartContract) createRecordCompositeKey(ctx contractapi.TransactionContextInterface, recordID uint64) (string, error) {
	return ctx.GetStub().CreateCompositeKey(recordObjectType, []string{recordKeyAttr(recordID)})
}

func (s *AIBOMSmartContract) createAdvisoryCompositeKey(ctx contractapi.TransactionContextInterface, recordID, index uint64) (string, error) {
	return ctx.GetStub().CreateCompositeKey(advisoryObjectType, []string{recordKeyAttr(recordID), entryKeyAttr(index)})
}

func (s *AIBOMSmartContract) createVulnerabilityCompositeKey(ctx contractapi.TransactionContextInterface, recordID, index uint64) (string, error) {
	return ctx.GetStub().CreateCompositeKey(vulnerabilityObjectType, []string{recordKeyAttr(recordID), entryKeyAttr(index)})
}

// nextSequence reads, returns and advances the counter stored under the given
// composite key. Counters start at 0 when no state exists yet. Transactions are
// applied serially, so read-modify-write on a counter key is safe.
func (s *AIBOMSmartContract) nextSequence(ctx contractapi.TransactionContextInterface, objectType string, attributes []string) (uint64, error) {
	counterKey, err := ctx.GetStub().CreateCompositeKey(objectType, attributes)
	if err != nil {
		return 0, fmt.Errorf("failed to create counter key for '%s': %w", objectType, err)
	}
	counterBytes, err := ctx.GetStub().GetState(counterKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read counter '%s': %w", objectType, err)
	}
	var next uint64
	if counterBytes != nil {
		next, err = strconv.ParseUint(string(counterBytes), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt counter state for '%s': %w", objectType, err)
		}
	}
	if err := ctx.GetStub().PutState(counterKey, []byte(strconv.FormatUint(next+1, 10))); err != nil {
		return 0, fmt.Errorf("failed to advance counter '%s': %w", objectType, err)
	}
	return next, nil
}

// --- Validation Helper Functions ---

func (s *AIBOMSmartContract) validateRequiredString(input, field string, max int) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidInput, field)
	}
	if len(input) > max {
		return fmt.Errorf("%w: %s exceeds max length %d", ErrInvalidInput, field, max)
	}
	return nil
}

func (s *AIBOMSmartContract) validateOptionalString(input, field string, max int) error {
	if input != "" && len(input) > max {
		return fmt.Errorf("%w: %s exceeds max length %d", ErrInvalidInput, field, max)
	}
	return nil
}

func parseReviewStatus(statusStr string) (model.ReviewStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(statusStr)) {
	case string(model.StatusDraft):
		return model.StatusDraft, nil
	case string(model.StatusSubmitted):
		return model.StatusSubmitted, nil
	case string(model.StatusInReview):
		return model.StatusInReview, nil
	case string(model.StatusApproved):
		return model.StatusApproved, nil
	case string(model.StatusRejected):
		return model.StatusRejected, nil
	default:
		return "", fmt.Errorf("%w: invalid review status '%s'. Must be one of: %s, %s, %s, %s, %s",
			ErrInvalidInput, statusStr, model.StatusDraft, model.StatusSubmitted, model.StatusInReview, model.StatusApproved, model.StatusRejected)
	}
}

func parseSeverity(severityStr string) (model.VulnerabilitySeverity, error) {
	switch strings.ToUpper(strings.TrimSpace(severityStr)) {
	case string(model.SeverityLow):
		return model.SeverityLow, nil
	case string(model.SeverityMedium):
		return model.SeverityMedium, nil
	case string(model.SeverityHigh):
		return model.SeverityHigh, nil
	default:
		return "", fmt.Errorf("%w: invalid severity '%s'. Must be one of: %s, %s, %s",
			ErrInvalidInput, severityStr, model.SeverityLow, model.SeverityMedium, model.SeverityHigh)
	}
}

// --- Review State Machine ---

// submitSourceStatuses are the statuses a record may be in when its owner
// submits (or resubmits) a review dossier.
var submitSourceStatuses = map[model.ReviewStatus]bool{
	model.StatusDraft:    true,
	model.StatusRejected: true,
}

// legalReviewTransitions is the closed whitelist of regulator status changes.
// Every legal edge is enumerated; unknown edges are rejected.
var legalReviewTransitions = map[model.ReviewStatus]map[model.ReviewStatus]bool{
	model.StatusSubmitted: {
		model.StatusInReview: true,
		model.StatusApproved: true,
		model.StatusRejected: true,
	},
	model.StatusInReview: {
		model.StatusApproved: true,
		model.StatusRejected: true,
	},
}

// --- Event Emission ---

// emitRecordEvent sends a chaincode event for a record mutation.
func (s *AIBOMSmartContract) emitRecordEvent(ctx contractapi.TransactionContextInterface, eventName string, record *model.AIBOMRecord, actorID string, additionalPayload map[string]interface{}) {
	if record == nil {
		logger.Errorf("emitRecordEvent: cannot emit event, record is nil. Event: %s", eventName)
		return
	}
	payload := map[string]interface{}{
		"recordId":             record.ID,
		"owner":                record.Owner,
		"cid":                  record.Cid,
		"status":               record.Status,
		"actorId":              actorID,
		"transactionTimestamp": record.LastUpdatedAt.Format(time.RFC3339),
	}
	for k, v := range additionalPayload {
		if t, ok := v.(time.Time); ok {
			payload[k] = t.Format(time.RFC3339)
		} else {
			payload[k] = v
		}
	}
	eventBytes, err := json.Marshal(payload)
	if err != nil {
		logger.Warningf("emitRecordEvent: Failed to marshal event payload for event '%s' on record %d: %v", eventName, record.ID, err)
		return
	}
	if errSet := ctx.GetStub().SetEvent(eventName, eventBytes); errSet != nil {
		logger.Warningf("emitRecordEvent: Failed to set event '%s' for record %d: %v", eventName, record.ID, errSet)
	}
}

// requireAdmin is a helper to check if the current caller is an admin.
func (s *AIBOMSmartContract) requireAdmin(ctx contractapi.TransactionContextInterface, im *IdentityManager) error {
	isCallerAdmin, err := im.IsCallerAdmin()
	if err != nil {
		return fmt.Errorf("failed to check admin status: %w", err)
	}
	if !isCallerAdmin {
		callerID, _ := im.GetCallerID() // Best effort to get ID for logging
		return fmt.Errorf("%w: caller '%s' is not an admin", ErrUnauthorized, callerID)
	}
	return nil
}
