package domain

import "time"

// BatchPhase enumerates the states an import batch moves through.
type BatchPhase string

const (
	PhaseUploaded   BatchPhase = "uploaded"
	PhaseMapped     BatchPhase = "mapped"
	PhaseValidated  BatchPhase = "validated"
	PhaseCommitting BatchPhase = "committing"
	PhaseCommitted  BatchPhase = "committed"
	PhaseFailed     BatchPhase = "failed"
)

// UpsertPolicy decides what happens to a row that matches an existing contact.
type UpsertPolicy string

const (
	PolicyUpdateExisting  UpsertPolicy = "UPDATE_EXISTING"
	PolicyCreateOnly      UpsertPolicy = "CREATE_ONLY"
	PolicyCreateDuplicate UpsertPolicy = "CREATE_DUPLICATE"
)

// Valid reports whether p is one of the known policies.
func (p UpsertPolicy) Valid() bool {
	switch p {
	case PolicyUpdateExisting, PolicyCreateOnly, PolicyCreateDuplicate:
		return true
	}
	return false
}

// RowAction is the effect a row has on the contact store.
type RowAction string

const (
	ActionCreate RowAction = "create"
	ActionUpdate RowAction = "update"
	ActionSkip   RowAction = "skip"
)

// DecideAction applies the upsert policy table to a match result.
func DecideAction(policy UpsertPolicy, matched bool) RowAction {
	if !matched {
		return ActionCreate
	}
	switch policy {
	case PolicyCreateOnly:
		return ActionSkip
	case PolicyCreateDuplicate:
		return ActionCreate
	default:
		return ActionUpdate
	}
}

// ColumnMapping maps one source column to a canonical field.
type ColumnMapping struct {
	Column    string         `json:"column"`
	Target    CanonicalField `json:"target"`
	Primary   bool           `json:"is_primary,omitempty"`
	Separator string         `json:"separator,omitempty"`
}

// ImportConfig holds the user-confirmed options for a batch or job.
type ImportConfig struct {
	Delimiter        string       `json:"delimiter"`
	HasHeader        bool         `json:"has_header"`
	DefaultCountry   string       `json:"default_country"`
	DefaultSeparator string       `json:"default_separator"`
	Policy           UpsertPolicy `json:"policy"`
	Strict           bool         `json:"strict"`
	OverwriteEmpty   bool         `json:"overwrite_empty"`
}

// DefaultImportConfig returns the configuration applied when a caller omits options.
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		Delimiter:        ",",
		HasHeader:        true,
		DefaultCountry:   "US",
		DefaultSeparator: ";",
		Policy:           PolicyUpdateExisting,
	}
}

// Batch is one user-initiated import unit.
type Batch struct {
	ID            string             `json:"id"`
	Phase         BatchPhase         `json:"phase"`
	Filename      string             `json:"filename,omitempty"`
	RawKey        string             `json:"raw_key"`
	Delimiter     string             `json:"delimiter"`
	HasHeader     bool               `json:"has_header"`
	Headers       []string           `json:"headers"`
	RawRowCount   int                `json:"raw_row_count"`
	Mapping       []ColumnMapping    `json:"mapping,omitempty"`
	Config        ImportConfig       `json:"config"`
	Validation    *ValidationSummary `json:"validation,omitempty"`
	Outcome       *ImportOutcome     `json:"outcome,omitempty"`
	FailureReason string             `json:"failure_reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// IssueKind classifies a row-level error or warning.
type IssueKind string

const (
	IssueInvalidEmailFormat    IssueKind = "InvalidEmailFormat"
	IssueInvalidPhoneFormat    IssueKind = "InvalidPhoneFormat"
	IssueAmbiguousMatch        IssueKind = "AmbiguousMatch"
	IssueEmptyRequiredIfStrict IssueKind = "EmptyRequiredIfStrict"
	IssueInvalidStage          IssueKind = "InvalidStage"
	IssueDuplicateInBatch      IssueKind = "DuplicateInBatch"
	IssueEmptyRow              IssueKind = "EmptyRow"
	IssueStoreFailure          IssueKind = "StoreFailure"
)

// Issue is a structured row-level error or warning.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message"`
}

// RowResult is the validation-time preview of one row.
type RowResult struct {
	Row              int          `json:"row"`
	Draft            ContactDraft `json:"draft"`
	Action           RowAction    `json:"action"`
	MatchedContactID string       `json:"matched_contact_id,omitempty"`
	Errors           []Issue      `json:"errors"`
	Warnings         []Issue      `json:"warnings"`
}

// ValidationTotals aggregates a validation run.
type ValidationTotals struct {
	ToCreate int `json:"to_create"`
	ToUpdate int `json:"to_update"`
	ToSkip   int `json:"to_skip"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// ValidationReport is the full result of validating a batch.
type ValidationReport struct {
	BatchID    string           `json:"batch_id"`
	Totals     ValidationTotals `json:"totals"`
	Rows       []RowResult      `json:"row_results"`
	CanProceed bool             `json:"can_proceed"`
}

// ValidationSummary is the part of a validation run kept on the batch.
type ValidationSummary struct {
	Totals      ValidationTotals `json:"totals"`
	CanProceed  bool             `json:"can_proceed"`
	ValidatedAt time.Time        `json:"validated_at"`
}

// RowError records a row that could not be applied at commit time.
type RowError struct {
	Row     int       `json:"row"`
	Kind    IssueKind `json:"kind"`
	Message string    `json:"message"`
}

// ImportOutcome is the immutable result of committing a batch.
type ImportOutcome struct {
	Created     int        `json:"created"`
	Updated     int        `json:"updated"`
	Skipped     int        `json:"skipped"`
	Errors      int        `json:"errors"`
	RowErrors   []RowError `json:"row_errors,omitempty"`
	CommittedAt time.Time  `json:"committed_at"`
}
