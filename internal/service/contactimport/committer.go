package contactimport

import (
	"context"
	"time"

	"github.com/ignite/contact-import/internal/domain"
	"github.com/ignite/contact-import/internal/pkg/logger"
)

// Committer applies drafts to the contact store one row at a time.
type Committer struct {
	store   ContactStore
	matcher *Matcher
	now     func() time.Time
}

// NewCommitter creates a committer over the given contact store.
func NewCommitter(store ContactStore) *Committer {
	return &Committer{store: store, matcher: NewMatcher(store), now: time.Now}
}

// Apply resolves the draft against the store as it is right now and
// applies the upsert policy. Matching is re-run for every call, so a row
// sees contacts created by earlier rows of the same batch. With
// OverwriteEmpty set, empty values clear stored ones only for the fields
// in supplied.
func (c *Committer) Apply(ctx context.Context, d domain.ContactDraft, supplied domain.FieldSet, cfg domain.ImportConfig) (domain.RowAction, string, error) {
	if d.IsEmpty() {
		return domain.ActionSkip, "", nil
	}

	match, err := c.matcher.Match(ctx, d)
	if err != nil {
		return "", "", err
	}

	switch domain.DecideAction(cfg.Policy, match.Matched()) {
	case domain.ActionSkip:
		return domain.ActionSkip, match.Contact.ID, nil
	case domain.ActionUpdate:
		var clearEmpty domain.FieldSet
		if cfg.OverwriteEmpty {
			clearEmpty = supplied
		}
		merged := match.Contact.Merge(d, clearEmpty)
		if err := c.store.Update(ctx, merged); err != nil {
			return "", match.Contact.ID, err
		}
		return domain.ActionUpdate, merged.ID, nil
	default:
		created, err := c.store.Create(ctx, d)
		if err != nil {
			return "", "", err
		}
		return domain.ActionCreate, created.ID, nil
	}
}

// CommitRows applies every row in file order. A failing row is recorded in
// the outcome and the remaining rows still run.
func (c *Committer) CommitRows(ctx context.Context, batchID string, rows [][]string, tr *Transformer, cfg domain.ImportConfig) *domain.ImportOutcome {
	out := &domain.ImportOutcome{RowErrors: []domain.RowError{}}
	supplied := tr.Fields()

	for i, raw := range rows {
		rowNum := i + 1
		draft, _ := tr.Transform(raw)

		action, _, err := c.Apply(ctx, draft, supplied, cfg)
		if err != nil {
			out.Errors++
			out.RowErrors = append(out.RowErrors, domain.RowError{
				Row:     rowNum,
				Kind:    domain.IssueStoreFailure,
				Message: err.Error(),
			})
			logger.Warn("[ContactImport] row failed", "batch_id", batchID, "row", rowNum, "email", draft.PrimaryEmail(), "error", err)
			continue
		}

		switch action {
		case domain.ActionCreate:
			out.Created++
		case domain.ActionUpdate:
			out.Updated++
		case domain.ActionSkip:
			out.Skipped++
		}
	}

	out.CommittedAt = c.now().UTC()
	return out
}
