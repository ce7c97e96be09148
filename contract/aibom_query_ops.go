package contract

import (
	"encoding/json"
	"fmt"
	"strconv"

	"aibomtrace/model"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// --- Query Functions ---
// Pure read projections: these never mutate state and always reflect the
// latest committed mutation.

// getRecordByID is an internal helper to retrieve and unmarshal a record.
func (s *AIBOMSmartContract) getRecordByID(ctx contractapi.TransactionContextInterface, recordID uint64) (*model.AIBOMRecord, error) {
	recordKey, err := s.createRecordCompositeKey(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("getRecordByID: failed to create key for record %d: %w", recordID, err)
	}
	recordBytes, err := ctx.GetStub().GetState(recordKey)
	if err != nil {
		return nil, fmt.Errorf("getRecordByID: failed to read record %d from ledger: %w", recordID, err)
	}
	if recordBytes == nil {
		return nil, fmt.Errorf("%w: AIBOM record %d", ErrNotFound, recordID)
	}

	var record model.AIBOMRecord
	if err = json.Unmarshal(recordBytes, &record); err != nil {
		return nil, fmt.Errorf("getRecordByID: failed to unmarshal record %d data: %w", recordID, err)
	}
	return &record, nil
}

// GetAIBOM returns a single record by id.
func (s *AIBOMSmartContract) GetAIBOM(ctx contractapi.TransactionContextInterface, recordID uint64) (*model.AIBOMRecord, error) {
	logger.Debugf("GetAIBOM: Querying record %d", recordID)
	return s.getRecordByID(ctx, recordID)
}

// GetAllAIBOMs returns every record in ascending id order.
func (s *AIBOMSmartContract) GetAllAIBOMs(ctx contractapi.TransactionContextInterface) ([]*model.AIBOMRecord, error) {
	logger.Debug("GetAllAIBOMs: Querying all records")

	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(recordObjectType, []string{})
	if err != nil {
		return nil, fmt.Errorf("GetAllAIBOMs: failed to get records iterator: %w", err)
	}
	defer resultsIterator.Close()

	records := []*model.AIBOMRecord{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("GetAllAIBOMs: Error iterating results: %v. Skipping.", iterErr)
			continue
		}
		var record model.AIBOMRecord
		if errUnmarshal := json.Unmarshal(queryResponse.Value, &record); errUnmarshal != nil {
			logger.Warningf("GetAllAIBOMs: Error unmarshalling record at key '%s': %v. Skipping.", queryResponse.Key, errUnmarshal)
			continue
		}
		records = append(records, &record)
	}
	return records, nil // Will be [] if empty, not null
}

// GetAllAIBOMsPaginated returns one page of records in ascending id order,
// for dashboard listings over large registries.
func (s *AIBOMSmartContract) GetAllAIBOMsPaginated(ctx contractapi.TransactionContextInterface, pageSizeStr string, bookmark string) (*model.PaginatedAIBOMResponse, error) {
	pageSize, err := strconv.ParseInt(pageSizeStr, 10, 32)
	if err != nil || pageSize <= 0 {
		logger.Warningf("GetAllAIBOMsPaginated: Invalid pageSize '%s', using default of 10.", pageSizeStr)
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	logger.Debugf("GetAllAIBOMsPaginated: pageSize %d, bookmark '%s'", pageSize, bookmark)

	resultsIterator, metadata, err := ctx.GetStub().GetStateByPartialCompositeKeyWithPagination(recordObjectType, []string{}, int32(pageSize), bookmark)
	if err != nil {
		return nil, fmt.Errorf("GetAllAIBOMsPaginated: failed to get records iterator: %w", err)
	}
	defer resultsIterator.Close()

	records := []*model.AIBOMRecord{}
	fetchedCount := int32(0)
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("GetAllAIBOMsPaginated: Error iterating results: %v. Skipping.", iterErr)
			continue
		}
		var record model.AIBOMRecord
		if errUnmarshal := json.Unmarshal(queryResponse.Value, &record); errUnmarshal != nil {
			logger.Warningf("GetAllAIBOMsPaginated: Error unmarshalling record: %v. Skipping.", errUnmarshal)
			continue
		}
		records = append(records, &record)
		fetchedCount++
	}

	return &model.PaginatedAIBOMResponse{
		Records:      records,
		NextBookmark: metadata.GetBookmark(),
		FetchedCount: fetchedCount,
	}, nil
}

// GetAIBOMsByStatus returns all records currently in the given review status,
// in ascending id order.
func (s *AIBOMSmartContract) GetAIBOMsByStatus(ctx contractapi.TransactionContextInterface, statusStr string) ([]*model.AIBOMRecord, error) {
	status, err := parseReviewStatus(statusStr)
	if err != nil {
		return nil, err
	}
	logger.Debugf("GetAIBOMsByStatus: Querying records with status '%s'", status)

	all, err := s.GetAllAIBOMs(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetAIBOMsByStatus: %w", err)
	}
	records := []*model.AIBOMRecord{}
	for _, record := range all {
		if record.Status == status {
			records = append(records, record)
		}
	}
	return records, nil
}

// GetMyAIBOMs returns all records owned by the current caller, in ascending
// id order. Used by the developer dashboard.
func (s *AIBOMSmartContract) GetMyAIBOMs(ctx contractapi.TransactionContextInterface) ([]*model.AIBOMRecord, error) {
	im := NewIdentityManager(ctx)
	callerID, err := im.GetCallerID()
	if err != nil {
		return nil, fmt.Errorf("GetMyAIBOMs: failed to get caller identity: %w", err)
	}
	logger.Debugf("GetMyAIBOMs: Querying records owned by '%s'", callerID)

	all, err := s.GetAllAIBOMs(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetMyAIBOMs: %w", err)
	}
	records := []*model.AIBOMRecord{}
	for _, record := range all {
		if record.Owner == callerID {
			records = append(records, record)
		}
	}
	return records, nil
}

// GetAdvisories returns a record's advisory log in insertion order.
func (s *AIBOMSmartContract) GetAdvisories(ctx contractapi.TransactionContextInterface, recordID uint64) ([]*model.AdvisoryEntry, error) {
	logger.Debugf("GetAdvisories: Querying advisories for record %d", recordID)
	if _, err := s.getRecordByID(ctx, recordID); err != nil {
		return nil, fmt.Errorf("GetAdvisories: %w", err)
	}

	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(advisoryObjectType, []string{recordKeyAttr(recordID)})
	if err != nil {
		return nil, fmt.Errorf("GetAdvisories: failed to get advisories iterator for record %d: %w", recordID, err)
	}
	defer resultsIterator.Close()

	entries := []*model.AdvisoryEntry{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("GetAdvisories: Error iterating results for record %d: %v. Skipping.", recordID, iterErr)
			continue
		}
		var entry model.AdvisoryEntry
		if errUnmarshal := json.Unmarshal(queryResponse.Value, &entry); errUnmarshal != nil {
			logger.Warningf("GetAdvisories: Error unmarshalling advisory at key '%s': %v. Skipping.", queryResponse.Key, errUnmarshal)
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil // Will be [] if empty, not null
}

// GetVulnerabilities returns a record's vulnerability log in insertion order.
// Deactivated entries are included: resolution never removes the audit trail.
func (s *AIBOMSmartContract) GetVulnerabilities(ctx contractapi.TransactionContextInterface, recordID uint64) ([]*model.VulnerabilityEntry, error) {
	logger.Debugf("GetVulnerabilities: Querying vulnerabilities for record %d", recordID)
	if _, err := s.getRecordByID(ctx, recordID); err != nil {
		return nil, fmt.Errorf("GetVulnerabilities: %w", err)
	}

	resultsIterator, err := ctx.GetStub().GetStateByPartialCompositeKey(vulnerabilityObjectType, []string{recordKeyAttr(recordID)})
	if err != nil {
		return nil, fmt.Errorf("GetVulnerabilities: failed to get vulnerabilities iterator for record %d: %w", recordID, err)
	}
	defer resultsIterator.Close()

	entries := []*model.VulnerabilityEntry{}
	for resultsIterator.HasNext() {
		queryResponse, iterErr := resultsIterator.Next()
		if iterErr != nil {
			logger.Warningf("GetVulnerabilities: Error iterating results for record %d: %v. Skipping.", recordID, iterErr)
			continue
		}
		var entry model.VulnerabilityEntry
		if errUnmarshal := json.Unmarshal(queryResponse.Value, &entry); errUnmarshal != nil {
			logger.Warningf("GetVulnerabilities: Error unmarshalling vulnerability at key '%s': %v. Skipping.", queryResponse.Key, errUnmarshal)
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil // Will be [] if empty, not null
}
