package contactimport

import (
	"fmt"
	"strings"

	"github.com/ignite/contact-import/internal/domain"
)

// ValidateMapping checks a user-adjusted mapping against the batch headers
// and returns its normalized form: targets lower-cased, primary flags and
// separators cleared where they carry no meaning, and headers the caller
// left out mapped to "ignore". All problems are reported together.
func ValidateMapping(headers []string, mapping []domain.ColumnMapping) ([]domain.ColumnMapping, error) {
	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}

	var problems []domain.FieldError
	seen := make(map[string]bool, len(mapping))
	primaryBy := map[domain.CanonicalField]string{}
	byColumn := make(map[string]domain.ColumnMapping, len(mapping))

	for _, m := range mapping {
		if !known[m.Column] {
			problems = append(problems, domain.FieldError{Column: m.Column, Message: "column does not exist in the uploaded file"})
			continue
		}
		if seen[m.Column] {
			problems = append(problems, domain.FieldError{Column: m.Column, Message: "column is mapped more than once"})
			continue
		}
		seen[m.Column] = true

		def, ok := domain.LookupField(string(m.Target))
		if !ok {
			problems = append(problems, domain.FieldError{
				Column:  m.Column,
				Field:   string(m.Target),
				Message: fmt.Sprintf("unknown target field %q", m.Target),
			})
			continue
		}

		out := domain.ColumnMapping{Column: m.Column, Target: def.Name}
		if def.MultiValued {
			out.Separator = m.Separator
		}
		if def.Primary && m.Primary {
			if prev, dup := primaryBy[def.Name]; dup {
				problems = append(problems, domain.FieldError{
					Column:  m.Column,
					Field:   string(def.Name),
					Message: fmt.Sprintf("%s is already marked primary on column %q", def.Name, prev),
				})
				continue
			}
			primaryBy[def.Name] = m.Column
			out.Primary = true
		}
		byColumn[m.Column] = out
	}

	if len(problems) > 0 {
		return nil, ErrInvalidMapping.WithFields(problems)
	}

	normalized := make([]domain.ColumnMapping, 0, len(headers))
	for _, h := range headers {
		m, ok := byColumn[h]
		if !ok {
			m = domain.ColumnMapping{Column: h, Target: domain.FieldIgnore}
		}
		normalized = append(normalized, m)
	}
	return normalized, nil
}

// NormalizeConfig fills defaults and rejects unusable options.
func NormalizeConfig(cfg domain.ImportConfig, defaults domain.ImportConfig) (domain.ImportConfig, error) {
	if cfg.Policy == "" {
		cfg.Policy = defaults.Policy
	}
	cfg.Policy = domain.UpsertPolicy(strings.ToUpper(string(cfg.Policy)))
	if !cfg.Policy.Valid() {
		return cfg, ErrInvalidMapping.WithFields([]domain.FieldError{{
			Field:   "policy",
			Message: fmt.Sprintf("unknown upsert policy %q", cfg.Policy),
		}})
	}
	if cfg.DefaultCountry == "" {
		cfg.DefaultCountry = defaults.DefaultCountry
	}
	cfg.DefaultCountry = strings.ToUpper(cfg.DefaultCountry)
	if cfg.DefaultSeparator == "" {
		cfg.DefaultSeparator = defaults.DefaultSeparator
	}
	return cfg, nil
}
