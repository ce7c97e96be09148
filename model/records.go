// File: model/records.go
package model

import "time"

// ReviewStatus defines the possible states of an AIBOM record's regulatory review.
type ReviewStatus string

const (
	StatusDraft     ReviewStatus = "DRAFT"     // Record registered, no review dossier submitted yet
	StatusSubmitted ReviewStatus = "SUBMITTED" // Review dossier submitted by the record owner
	StatusInReview  ReviewStatus = "IN_REVIEW" // Regulator has taken the record into review
	StatusApproved  ReviewStatus = "APPROVED"  // Regulator approved the model release
	StatusRejected  ReviewStatus = "REJECTED"  // Regulator rejected the model release
)

// VulnerabilitySeverity defines the possible severities of a reported vulnerability.
type VulnerabilitySeverity string

const (
	SeverityLow    VulnerabilitySeverity = "LOW"
	SeverityMedium VulnerabilitySeverity = "MEDIUM"
	SeverityHigh   VulnerabilitySeverity = "HIGH"
)

// AIBOMRecord is the central data structure: one registered AI Bill of Materials
// for a model release, tracked through its review lifecycle.
type AIBOMRecord struct {
	ObjectType    string       `json:"objectType"`   // "AIBOMRecord"
	ID            uint64       `json:"id"`           // Monotonically assigned, immutable
	Owner         string       `json:"owner"`        // Identity that registered the record, immutable
	Cid           string       `json:"cid"`          // Content reference of the AIBOM artifact, immutable
	Status        ReviewStatus `json:"status"`
	ReviewDocCid  string       `json:"reviewDocCid"` // Content reference of the submitted review dossier
	ReviewReason  string       `json:"reviewReason"` // Regulator rationale for the latest review decision
	CreatedAt     time.Time    `json:"createdAt"`
	LastUpdatedAt time.Time    `json:"lastUpdatedAt"`
}

// AdvisoryEntry is one item of supervisory security guidance attached to a
// record. Entries are append-only and immutable once written.
type AdvisoryEntry struct {
	ObjectType string    `json:"objectType"` // "Advisory"
	RecordID   uint64    `json:"recordId"`
	Index      uint64    `json:"index"` // Position in the record's advisory log
	Cid        string    `json:"cid"`
	Scope      string    `json:"scope"`  // Affected versions or deployment scope
	Action     string    `json:"action"` // Recommended action
	Reporter   string    `json:"reporter"`
	Timestamp  time.Time `json:"timestamp"`
}

// VulnerabilityEntry is one reported vulnerability attached to a record.
// Append-only; Active is the only mutable field and is flipped to false when
// the vulnerability is resolved, keeping the audit trail intact.
type VulnerabilityEntry struct {
	ObjectType string                `json:"objectType"` // "Vulnerability"
	RecordID   uint64                `json:"recordId"`
	Index      uint64                `json:"index"`
	Cid        string                `json:"cid"`
	Severity   VulnerabilitySeverity `json:"severity"`
	Active     bool                  `json:"active"`
	Reporter   string                `json:"reporter"`
	Timestamp  time.Time             `json:"timestamp"`
}

// PaginatedAIBOMResponse is the structure returned by paginated record queries.
type PaginatedAIBOMResponse struct {
	Records      []*AIBOMRecord `json:"records"`
	NextBookmark string         `json:"nextBookmark"`
	FetchedCount int32          `json:"fetchedCount"`
}
