package contactimport

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ignite/contact-import/internal/domain"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Validator previews the effect of every row without touching the store.
type Validator struct {
	matcher *Matcher
}

// NewValidator creates a validator using the given matcher.
func NewValidator(m *Matcher) *Validator {
	return &Validator{matcher: m}
}

// Validate classifies each row in file order. The result is a pure
// function of rows, transformer, config and the store contents.
func (v *Validator) Validate(ctx context.Context, batchID string, rows [][]string, tr *Transformer, cfg domain.ImportConfig) (*domain.ValidationReport, error) {
	report := &domain.ValidationReport{
		BatchID: batchID,
		Rows:    make([]domain.RowResult, 0, len(rows)),
	}
	firstSeen := map[string]int{}

	for i, raw := range rows {
		rowNum := i + 1
		draft, notes := tr.Transform(raw)
		res := domain.RowResult{
			Row:      rowNum,
			Draft:    draft,
			Errors:   []domain.Issue{},
			Warnings: append([]domain.Issue{}, notes...),
		}

		if draft.IsEmpty() {
			res.Action = domain.ActionSkip
			res.Warnings = append(res.Warnings, domain.Issue{Kind: domain.IssueEmptyRow, Message: "row has no mapped values"})
			report.Rows = append(report.Rows, res)
			continue
		}

		v.checkFormats(&res, cfg.Strict)

		match, err := v.matcher.Match(ctx, draft)
		if err != nil {
			return nil, fmt.Errorf("validate row %d: %w", rowNum, err)
		}
		if match.Ambiguous {
			res.Warnings = append(res.Warnings, ambiguousIssue(match))
		}
		res.Action = domain.DecideAction(cfg.Policy, match.Matched())
		if res.Action == domain.ActionUpdate {
			res.MatchedContactID = match.Contact.ID
		}

		if key := dedupKey(draft); key != "" {
			if prev, dup := firstSeen[key]; dup {
				res.Warnings = append(res.Warnings, domain.Issue{
					Kind:    domain.IssueDuplicateInBatch,
					Message: fmt.Sprintf("same contact as row %d; rows are applied in order so this row is applied after it", prev),
				})
			} else {
				firstSeen[key] = rowNum
			}
		}

		report.Rows = append(report.Rows, res)
	}

	for _, r := range report.Rows {
		switch r.Action {
		case domain.ActionCreate:
			report.Totals.ToCreate++
		case domain.ActionUpdate:
			report.Totals.ToUpdate++
		case domain.ActionSkip:
			report.Totals.ToSkip++
		}
		report.Totals.Errors += len(r.Errors)
		report.Totals.Warnings += len(r.Warnings)
	}
	report.CanProceed = report.Totals.Errors == 0 || !cfg.Strict
	return report, nil
}

func (v *Validator) checkFormats(res *domain.RowResult, strict bool) {
	d := res.Draft
	for _, e := range d.Emails {
		if emailPattern.MatchString(e.Address) {
			continue
		}
		issue := domain.Issue{
			Kind:    domain.IssueInvalidEmailFormat,
			Field:   string(domain.FieldEmail),
			Message: fmt.Sprintf("%q is not a valid email address", e.Address),
		}
		if e.Address == d.PrimaryEmail() && strict {
			res.Errors = append(res.Errors, issue)
		} else {
			res.Warnings = append(res.Warnings, issue)
		}
	}

	for _, p := range d.Phones {
		if !p.Valid {
			res.Warnings = append(res.Warnings, domain.Issue{
				Kind:    domain.IssueInvalidPhoneFormat,
				Field:   string(domain.FieldPhone),
				Message: fmt.Sprintf("%q could not be normalized", p.Raw),
			})
		}
	}

	if strict && len(d.Emails) == 0 && len(d.Phones) == 0 {
		res.Warnings = append(res.Warnings, domain.Issue{
			Kind:    domain.IssueEmptyRequiredIfStrict,
			Message: "row has neither an email nor a phone number",
		})
	}
}

// dedupKey identifies rows the matcher would resolve to the same contact.
func dedupKey(d domain.ContactDraft) string {
	if e := strings.ToLower(d.PrimaryEmail()); e != "" {
		return "email:" + e
	}
	if p, ok := d.PrimaryPhone(); ok && p.Valid {
		return "phone:" + p.Normalized
	}
	return ""
}
