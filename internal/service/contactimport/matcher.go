package contactimport

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/contact-import/internal/domain"
)

// MatchResult is the outcome of resolving a draft against the store.
type MatchResult struct {
	Contact    *domain.Contact
	By         domain.CanonicalField // email or phone
	Ambiguous  bool
	Candidates int
}

// Matched reports whether an existing contact was found.
func (m MatchResult) Matched() bool { return m.Contact != nil }

// Matcher resolves drafts by primary email, falling back to primary phone.
type Matcher struct {
	store ContactStore
}

// NewMatcher creates a matcher over the given contact store.
func NewMatcher(store ContactStore) *Matcher {
	return &Matcher{store: store}
}

// Match looks up the draft's primary email (case-insensitive) and, when
// that yields nothing, its normalized primary phone. When the store returns
// several candidates the first one is used and the result is flagged
// ambiguous.
func (m *Matcher) Match(ctx context.Context, d domain.ContactDraft) (MatchResult, error) {
	if email := strings.ToLower(strings.TrimSpace(d.PrimaryEmail())); email != "" {
		found, err := m.store.FindByEmail(ctx, email)
		if err != nil {
			return MatchResult{}, fmt.Errorf("lookup by email: %w", err)
		}
		if len(found) > 0 {
			return pick(found, domain.FieldEmail), nil
		}
	}

	if p, ok := d.PrimaryPhone(); ok && p.Valid && p.Normalized != "" {
		found, err := m.store.FindByPhone(ctx, p.Normalized)
		if err != nil {
			return MatchResult{}, fmt.Errorf("lookup by phone: %w", err)
		}
		if len(found) > 0 {
			return pick(found, domain.FieldPhone), nil
		}
	}
	return MatchResult{}, nil
}

func pick(found []domain.Contact, by domain.CanonicalField) MatchResult {
	c := found[0]
	return MatchResult{
		Contact:    &c,
		By:         by,
		Ambiguous:  len(found) > 1,
		Candidates: len(found),
	}
}

func ambiguousIssue(m MatchResult) domain.Issue {
	return domain.Issue{
		Kind:    domain.IssueAmbiguousMatch,
		Field:   string(m.By),
		Message: fmt.Sprintf("%d existing contacts share this %s; using %s", m.Candidates, m.By, m.Contact.ID),
	}
}
