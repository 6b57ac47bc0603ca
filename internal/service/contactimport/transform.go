package contactimport

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ignite/contact-import/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type columnPlan struct {
	index     int
	target    domain.CanonicalField
	primary   bool
	separator string
}

// Transformer turns raw rows into contact drafts for one confirmed mapping.
// It is safe for concurrent use and never fails on malformed values.
type Transformer struct {
	cfg  domain.ImportConfig
	plan []columnPlan
}

// NewTransformer binds a mapping to the batch headers. Mapping entries for
// unknown columns and "ignore" targets are dropped.
func NewTransformer(headers []string, mapping []domain.ColumnMapping, cfg domain.ImportConfig) *Transformer {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[h] = i
	}

	t := &Transformer{cfg: cfg}
	for _, m := range mapping {
		i, ok := idx[m.Column]
		if !ok || m.Target == domain.FieldIgnore || m.Target == "" {
			continue
		}
		sep := ""
		if m.Target.IsMultiValued() {
			sep = m.Separator
			if sep == "" {
				sep = cfg.DefaultSeparator
			}
		}
		t.plan = append(t.plan, columnPlan{index: i, target: m.Target, primary: m.Primary, separator: sep})
	}
	return t
}

// Fields returns the canonical fields the mapping feeds.
func (t *Transformer) Fields() domain.FieldSet {
	set := make(domain.FieldSet, len(t.plan))
	for _, c := range t.plan {
		set[c.target] = true
	}
	return set
}

// Transform converts one raw row. The returned issues are warnings about
// values that were dropped or adjusted.
func (t *Transformer) Transform(row []string) (domain.ContactDraft, []domain.Issue) {
	var d domain.ContactDraft
	var issues []domain.Issue

	for _, c := range t.plan {
		if c.index >= len(row) {
			continue
		}
		val := strings.TrimSpace(row[c.index])
		if val == "" {
			continue
		}

		switch c.target {
		case domain.FieldEmail:
			for i, v := range splitValues(val, c.separator) {
				d.Emails = appendEmail(d.Emails, v, c.primary && i == 0)
			}
		case domain.FieldPhone:
			for i, v := range splitValues(val, c.separator) {
				p := NormalizePhone(v, t.cfg.DefaultCountry)
				p.Primary = c.primary && i == 0
				d.Phones = appendPhone(d.Phones, p)
			}
		case domain.FieldRoles:
			for _, v := range splitValues(val, c.separator) {
				d.Roles = appendFold(d.Roles, v)
			}
		case domain.FieldStage:
			stage, ok := parseStage(val)
			if !ok {
				issues = append(issues, domain.Issue{
					Kind:    domain.IssueInvalidStage,
					Field:   string(domain.FieldStage),
					Message: fmt.Sprintf("stage %q is not an integer between %d and %d", val, domain.MinStage, domain.MaxStage),
				})
				continue
			}
			if d.Stage == 0 {
				d.Stage = stage
			}
		case domain.FieldSalutation:
			setOnce(&d.Salutation, val)
		case domain.FieldFirstName:
			setOnce(&d.FirstName, normalizeName(val))
		case domain.FieldLastName:
			setOnce(&d.LastName, normalizeName(val))
		case domain.FieldLinkedInURL:
			setOnce(&d.LinkedInURL, normalizeURL(val))
		case domain.FieldCompany:
			setOnce(&d.Company, val)
		case domain.FieldJobTitle:
			setOnce(&d.JobTitle, val)
		case domain.FieldBuyerPersona:
			setOnce(&d.BuyerPersona, val)
		case domain.FieldSpecialty:
			setOnce(&d.Specialty, val)
		case domain.FieldLocation:
			setOnce(&d.Location, val)
		case domain.FieldCountry:
			setOnce(&d.Country, normalizeCountry(val))
		case domain.FieldNotes:
			if d.Notes == "" {
				d.Notes = val
			} else {
				d.Notes += "\n" + val
			}
		}
	}

	d.EnsurePrimary()
	return d, issues
}

// TransformRecord converts a pre-shaped external record. Keys are resolved
// as canonical field names first and through suggest otherwise. The
// returned set lists the fields the record supplied.
func TransformRecord(rec map[string]string, cfg domain.ImportConfig, suggest FieldSuggester) (domain.ContactDraft, domain.FieldSet, []domain.Issue) {
	if suggest == nil {
		suggest = SuggestField
	}
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	row := make([]string, len(keys))
	mapping := make([]domain.ColumnMapping, 0, len(keys))
	primary := map[domain.CanonicalField]bool{}
	for i, k := range keys {
		row[i] = rec[k]
		target := suggest(k)
		if def, ok := domain.LookupField(k); ok {
			target = def.Name
		}
		m := domain.ColumnMapping{Column: k, Target: target}
		if target.SupportsPrimary() && !primary[target] {
			m.Primary = true
			primary[target] = true
		}
		mapping = append(mapping, m)
	}
	tr := NewTransformer(keys, mapping, cfg)
	draft, issues := tr.Transform(row)
	return draft, tr.Fields(), issues
}

func splitValues(val, sep string) []string {
	parts := []string{val}
	if sep != "" {
		parts = strings.Split(val, sep)
	}
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendEmail(list []domain.EmailEntry, addr string, primary bool) []domain.EmailEntry {
	addr = strings.Trim(addr, "\"'<>")
	for i := range list {
		if strings.EqualFold(list[i].Address, addr) {
			if primary {
				list[i].Primary = true
			}
			return list
		}
	}
	return append(list, domain.EmailEntry{Address: addr, Primary: primary})
}

func appendPhone(list []domain.PhoneEntry, p domain.PhoneEntry) []domain.PhoneEntry {
	for i := range list {
		same := list[i].Raw == p.Raw
		if p.Normalized != "" {
			same = list[i].Normalized == p.Normalized
		}
		if same {
			if p.Primary {
				list[i].Primary = true
			}
			return list
		}
	}
	return append(list, p)
}

func appendFold(list []string, v string) []string {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return list
		}
	}
	return append(list, v)
}

func setOnce(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// parseStage accepts "3", "3.0" and labels such as "Stage 3".
func parseStage(v string) (int, bool) {
	v = strings.TrimSpace(strings.TrimPrefix(strings.ToLower(v), "stage"))
	n, err := strconv.Atoi(v)
	if err != nil {
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, false
		}
		n = int(f)
	}
	if n < domain.MinStage || n > domain.MaxStage {
		return 0, false
	}
	return n, true
}

// normalizeName title-cases names typed entirely in one case and leaves
// mixed-case input ("McDonald", "van der Berg") untouched.
func normalizeName(v string) string {
	if v != strings.ToUpper(v) && v != strings.ToLower(v) {
		return v
	}
	return cases.Title(language.Und).String(strings.ToLower(v))
}

func normalizeURL(v string) string {
	lower := strings.ToLower(v)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return v
	}
	if strings.Contains(lower, "linkedin.com") {
		return "https://" + strings.TrimPrefix(v, "//")
	}
	return v
}

func normalizeCountry(v string) string {
	if len(v) == 2 {
		return strings.ToUpper(v)
	}
	return v
}
