package contactimport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/contact-import/internal/domain"
	"github.com/ignite/contact-import/internal/pkg/logger"
)

const (
	defaultCommitLockTTL = 30 * time.Minute
	rawKeyPrefix         = "batches/"
)

// Options configures the batch service.
type Options struct {
	Defaults       domain.ImportConfig
	SampleRows     int
	MaxUploadBytes int64
	CommitLockTTL  time.Duration
	Suggest        FieldSuggester
}

// Service drives batches through sniff, map, validate and commit. It is
// safe for concurrent use.
type Service struct {
	batches   BatchStore
	raw       RawStore
	locks     LockFactory
	validator *Validator
	committer *Committer
	opts      Options
	now       func() time.Time
}

// NewService creates a batch import service.
func NewService(contacts ContactStore, batches BatchStore, raw RawStore, locks LockFactory, opts Options) *Service {
	if opts.Defaults.Policy == "" {
		opts.Defaults = domain.DefaultImportConfig()
	}
	if opts.CommitLockTTL <= 0 {
		opts.CommitLockTTL = defaultCommitLockTTL
	}
	if opts.Suggest == nil {
		opts.Suggest = SuggestField
	}
	return &Service{
		batches:   batches,
		raw:       raw,
		locks:     locks,
		validator: NewValidator(NewMatcher(contacts)),
		committer: NewCommitter(contacts),
		opts:      opts,
		now:       time.Now,
	}
}

// CreateBatchInput is the raw upload plus optional detection overrides.
type CreateBatchInput struct {
	Content   []byte
	Filename  string
	Delimiter string
	HasHeader *bool
}

// CreateBatchResult is returned to the mapping UI.
type CreateBatchResult struct {
	BatchID string `json:"batch_id"`
	SniffResult
	RawRowCount int `json:"raw_row_count"`
}

// Fields returns the canonical field catalogue.
func (s *Service) Fields() []domain.FieldDefinition {
	return domain.CanonicalFields
}

// CreateBatch sniffs the content and stores a new batch in phase uploaded.
// Nothing is persisted when sniffing fails.
func (s *Service) CreateBatch(ctx context.Context, in CreateBatchInput) (*CreateBatchResult, error) {
	if s.opts.MaxUploadBytes > 0 && int64(len(in.Content)) > s.opts.MaxUploadBytes {
		return nil, domain.Errorf(domain.KindEmptyOrUnreadableInput, "upload exceeds %d bytes", s.opts.MaxUploadBytes)
	}

	sniff, err := Sniff(in.Content, SniffOptions{
		Delimiter:  in.Delimiter,
		HasHeader:  in.HasHeader,
		SampleRows: s.opts.SampleRows,
		Suggest:    s.opts.Suggest,
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	id := uuid.New().String()
	cfg := s.opts.Defaults
	cfg.Delimiter = sniff.Delimiter
	cfg.HasHeader = sniff.HasHeader

	b := &domain.Batch{
		ID:          id,
		Phase:       domain.PhaseUploaded,
		Filename:    in.Filename,
		RawKey:      rawKeyPrefix + id + ".csv",
		Delimiter:   sniff.Delimiter,
		HasHeader:   sniff.HasHeader,
		Headers:     sniff.Headers,
		RawRowCount: len(sniff.Rows),
		Mapping:     sniff.Suggested,
		Config:      cfg,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.raw.Put(ctx, b.RawKey, in.Content); err != nil {
		return nil, fmt.Errorf("archive raw upload: %w", err)
	}
	if err := s.batches.Create(ctx, b); err != nil {
		if derr := s.raw.Delete(ctx, b.RawKey); derr != nil {
			logger.Warn("[ContactImport] failed to remove orphaned upload", "batch_id", id, "error", derr)
		}
		return nil, fmt.Errorf("create batch: %w", err)
	}

	logger.Info("[ContactImport] batch created",
		"batch_id", id, "rows", b.RawRowCount, "delimiter", b.Delimiter,
		"has_header", b.HasHeader, "confidence", fmt.Sprintf("%.2f", sniff.HeaderConfidence))

	return &CreateBatchResult{BatchID: id, SniffResult: *sniff, RawRowCount: b.RawRowCount}, nil
}

// GetBatch returns the current state of a batch.
func (s *Service) GetBatch(ctx context.Context, id string) (*domain.Batch, error) {
	return s.batches.Get(ctx, id)
}

// SetMapping validates and stores the confirmed mapping and config. On
// failure the batch is left exactly as it was.
func (s *Service) SetMapping(ctx context.Context, id string, mapping []domain.ColumnMapping, cfg *domain.ImportConfig) (*domain.Batch, error) {
	unlock, err := s.lockBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := s.batches.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutable(b); err != nil {
		return nil, err
	}

	normalized, err := ValidateMapping(b.Headers, mapping)
	if err != nil {
		return nil, err
	}

	conf := b.Config
	if cfg != nil {
		conf, err = NormalizeConfig(*cfg, s.opts.Defaults)
		if err != nil {
			return nil, err
		}
	}
	// Parsing options are fixed when the batch is created.
	conf.Delimiter = b.Delimiter
	conf.HasHeader = b.HasHeader

	b.Mapping = normalized
	b.Config = conf
	b.Validation = nil
	b.Phase = domain.PhaseMapped
	b.UpdatedAt = s.now().UTC()
	if err := s.batches.Save(ctx, b); err != nil {
		return nil, fmt.Errorf("save mapping: %w", err)
	}

	logger.Info("[ContactImport] mapping confirmed", "batch_id", id, "policy", conf.Policy, "strict", conf.Strict)
	return b, nil
}

// Validate previews every row and moves the batch to validated. Calling it
// again recomputes the report against the current store.
func (s *Service) Validate(ctx context.Context, id string) (*domain.ValidationReport, error) {
	unlock, err := s.lockBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := s.batches.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutable(b); err != nil {
		return nil, err
	}
	if b.Phase == domain.PhaseUploaded {
		return nil, ErrBatchNotMapped
	}

	rows, err := s.loadRows(ctx, b)
	if err != nil {
		return nil, err
	}

	tr := NewTransformer(b.Headers, b.Mapping, b.Config)
	report, err := s.validator.Validate(ctx, b.ID, rows, tr, b.Config)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	b.Validation = &domain.ValidationSummary{
		Totals:      report.Totals,
		CanProceed:  report.CanProceed,
		ValidatedAt: now,
	}
	b.Phase = domain.PhaseValidated
	b.UpdatedAt = now
	if err := s.batches.Save(ctx, b); err != nil {
		return nil, fmt.Errorf("save validation: %w", err)
	}

	logger.Info("[ContactImport] batch validated",
		"batch_id", id, "create", report.Totals.ToCreate, "update", report.Totals.ToUpdate,
		"skip", report.Totals.ToSkip, "errors", report.Totals.Errors, "can_proceed", report.CanProceed)
	return report, nil
}

// Commit applies a validated batch. It runs at most once per batch: a
// concurrent call gets ErrBatchBusy and a later one ErrBatchAlreadyCommitted.
// Per-row store failures are reported in the outcome, not returned.
func (s *Service) Commit(ctx context.Context, id string) (*domain.ImportOutcome, error) {
	unlock, err := s.lockBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := s.batches.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutable(b); err != nil {
		return nil, err
	}
	if b.Phase != domain.PhaseValidated || b.Validation == nil {
		return nil, ErrBatchNotValidated
	}
	if b.Config.Strict && !b.Validation.CanProceed {
		return nil, ErrValidationBlocked.WithFields([]domain.FieldError{{
			Message: fmt.Sprintf("%d blocking errors", b.Validation.Totals.Errors),
		}})
	}

	// A read error leaves the batch validated so the commit can be retried.
	data, err := s.raw.Get(ctx, b.RawKey)
	if err != nil {
		return nil, fmt.Errorf("load raw upload: %w", err)
	}
	rows, err := ParseRows(data, b.Delimiter, b.HasHeader)
	if err != nil {
		s.fail(ctx, b, err)
		return nil, err
	}

	// Once marked committing the batch never re-enters the row loop, even
	// when the outcome below cannot be saved.
	b.Phase = domain.PhaseCommitting
	b.UpdatedAt = s.now().UTC()
	if err := s.batches.Save(ctx, b); err != nil {
		return nil, fmt.Errorf("mark batch committing: %w", err)
	}

	// Rows already applied cannot be rolled back, so a client disconnect
	// must not stop the loop halfway.
	runCtx := context.WithoutCancel(ctx)
	tr := NewTransformer(b.Headers, b.Mapping, b.Config)
	outcome := s.committer.CommitRows(runCtx, b.ID, rows, tr, b.Config)

	b.Outcome = outcome
	b.Phase = domain.PhaseCommitted
	b.UpdatedAt = s.now().UTC()
	if err := s.batches.Save(runCtx, b); err != nil {
		logger.Error("[ContactImport] failed to record commit outcome", "batch_id", id, "error", err)
		return outcome, fmt.Errorf("save commit outcome: %w", err)
	}

	logger.Info("[ContactImport] batch committed",
		"batch_id", id, "created", outcome.Created, "updated", outcome.Updated,
		"skipped", outcome.Skipped, "errors", outcome.Errors)
	return outcome, nil
}

// DeleteBatch removes the batch metadata and its archived upload.
func (s *Service) DeleteBatch(ctx context.Context, id string) error {
	unlock, err := s.lockBatch(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	b, err := s.batches.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.raw.Delete(ctx, b.RawKey); err != nil {
		return fmt.Errorf("delete raw upload: %w", err)
	}
	if err := s.batches.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	logger.Info("[ContactImport] batch deleted", "batch_id", id)
	return nil
}

// lockBatch serialises every state change on one batch. A holder elsewhere
// yields ErrBatchBusy.
func (s *Service) lockBatch(ctx context.Context, id string) (func(), error) {
	lock := s.locks.New("import:batch:"+id, s.opts.CommitLockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire batch lock: %w", err)
	}
	if !acquired {
		return nil, ErrBatchBusy
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("[ContactImport] failed to release batch lock", "batch_id", id, "error", err)
		}
	}, nil
}

func (s *Service) loadRows(ctx context.Context, b *domain.Batch) ([][]string, error) {
	data, err := s.raw.Get(ctx, b.RawKey)
	if err != nil {
		return nil, fmt.Errorf("load raw upload: %w", err)
	}
	return ParseRows(data, b.Delimiter, b.HasHeader)
}

func (s *Service) fail(ctx context.Context, b *domain.Batch, cause error) {
	b.Phase = domain.PhaseFailed
	b.FailureReason = cause.Error()
	b.UpdatedAt = s.now().UTC()
	if err := s.batches.Save(context.WithoutCancel(ctx), b); err != nil {
		logger.Error("[ContactImport] failed to mark batch failed", "batch_id", b.ID, "error", err)
		return
	}
	logger.Error("[ContactImport] batch failed", "batch_id", b.ID, "error", cause)
}

func mutable(b *domain.Batch) error {
	switch b.Phase {
	case domain.PhaseCommitted:
		return ErrBatchAlreadyCommitted
	case domain.PhaseCommitting:
		return ErrBatchAlreadyCommitted.WithFields([]domain.FieldError{{
			Message: "commit started but its outcome was not recorded",
		}})
	case domain.PhaseFailed:
		return ErrBatchFailed.WithFields([]domain.FieldError{{Message: b.FailureReason}})
	}
	return nil
}
