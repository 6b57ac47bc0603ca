package contactimport

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ignite/contact-import/internal/domain"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// headerSynonyms maps normalized header text to canonical fields. English
// and Spanish spellings are both common in customer exports.
var headerSynonyms = map[domain.CanonicalField][]string{
	domain.FieldSalutation:   {"salutation", "title_prefix", "prefix", "honorific", "saludo", "tratamiento"},
	domain.FieldFirstName:    {"first_name", "firstname", "first", "fname", "given_name", "givenname", "nombre", "name"},
	domain.FieldLastName:     {"last_name", "lastname", "last", "lname", "surname", "family_name", "apellido", "apellidos"},
	domain.FieldEmail:        {"email", "e_mail", "email_address", "emailaddress", "mail", "correo", "correo_electronico", "email_personal", "email_trabajo"},
	domain.FieldPhone:        {"phone", "phone_number", "phonenumber", "mobile", "cell", "telephone", "tel", "telefono", "movil", "celular"},
	domain.FieldLinkedInURL:  {"linkedin", "linkedin_url", "linkedin_profile", "perfil_linkedin"},
	domain.FieldCompany:      {"company", "company_name", "organization", "organisation", "org", "business", "empresa", "compania", "organizacion"},
	domain.FieldJobTitle:     {"job_title", "jobtitle", "title", "position", "job", "cargo", "puesto"},
	domain.FieldBuyerPersona: {"buyer_persona", "persona", "buyer"},
	domain.FieldRoles:        {"roles", "role", "rol", "tags", "labels", "etiquetas"},
	domain.FieldSpecialty:    {"specialty", "speciality", "specialization", "especialidad"},
	domain.FieldStage:        {"stage", "pipeline_stage", "lifecycle_stage", "etapa", "fase"},
	domain.FieldLocation:     {"location", "city", "town", "address", "ubicacion", "ciudad", "direccion"},
	domain.FieldCountry:      {"country", "country_code", "nation", "pais"},
	domain.FieldNotes:        {"notes", "note", "comments", "comment", "description", "notas", "comentarios", "observaciones"},
}

// substringOrder fixes the order fuzzy matching tries fields in, so that a
// header such as "company_email" resolves to email rather than company.
var substringOrder = []domain.CanonicalField{
	domain.FieldEmail,
	domain.FieldPhone,
	domain.FieldLinkedInURL,
	domain.FieldFirstName,
	domain.FieldLastName,
	domain.FieldBuyerPersona,
	domain.FieldJobTitle,
	domain.FieldCompany,
	domain.FieldSpecialty,
	domain.FieldStage,
	domain.FieldCountry,
	domain.FieldLocation,
	domain.FieldRoles,
	domain.FieldNotes,
	domain.FieldSalutation,
}

// minSubstringLen keeps short aliases ("org", "tel") from matching inside
// unrelated words.
const minSubstringLen = 4

var (
	headerSeparators = regexp.MustCompile(`[\s\-./]+`)
	headerStrip      = regexp.MustCompile(`[^a-z0-9_]`)
)

// FieldSuggester ranks a header against the canonical fields.
type FieldSuggester func(header string) domain.CanonicalField

// SuggestField is the default FieldSuggester: exact synonym match on the
// normalized header, then the first synonym contained in it. Unknown
// headers map to "ignore".
func SuggestField(header string) domain.CanonicalField {
	h := normalizeHeader(header)
	if h == "" {
		return domain.FieldIgnore
	}

	for field, aliases := range headerSynonyms {
		for _, alias := range aliases {
			if h == alias {
				return field
			}
		}
	}

	for _, field := range substringOrder {
		for _, alias := range headerSynonyms[field] {
			if len(alias) >= minSubstringLen && strings.Contains(h, alias) {
				return field
			}
		}
	}
	return domain.FieldIgnore
}

// isKnownHeader reports whether the header is an exact synonym.
func isKnownHeader(header string) bool {
	h := normalizeHeader(header)
	for _, aliases := range headerSynonyms {
		for _, alias := range aliases {
			if h == alias {
				return true
			}
		}
	}
	return false
}

// normalizeHeader lower-cases, strips accents and collapses separators to
// underscores: "Correo Electrónico" → "correo_electronico".
func normalizeHeader(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, h); err == nil {
		h = folded
	}
	h = headerSeparators.ReplaceAllString(h, "_")
	h = headerStrip.ReplaceAllString(h, "")
	return strings.Trim(h, "_")
}

// suggestMapping proposes one mapping entry per header. For headerless
// files the column content is used instead of the header text.
func suggestMapping(headers []string, samples [][]string, hasHeader bool, suggest FieldSuggester) []domain.ColumnMapping {
	out := make([]domain.ColumnMapping, len(headers))
	seenPrimary := map[domain.CanonicalField]bool{}
	for i, h := range headers {
		target := domain.FieldIgnore
		if hasHeader {
			target = suggest(h)
		} else {
			target = suggestFromValues(columnValues(samples, i))
		}
		m := domain.ColumnMapping{Column: h, Target: target}
		if target.SupportsPrimary() && !seenPrimary[target] {
			m.Primary = true
			seenPrimary[target] = true
		}
		out[i] = m
	}
	return out
}

func columnValues(rows [][]string, idx int) []string {
	var vals []string
	for _, r := range rows {
		if idx < len(r) {
			if v := strings.TrimSpace(r[idx]); v != "" {
				vals = append(vals, v)
			}
		}
	}
	return vals
}

func suggestFromValues(vals []string) domain.CanonicalField {
	if len(vals) == 0 {
		return domain.FieldIgnore
	}
	emails, phones := 0, 0
	for _, v := range vals {
		switch {
		case emailPattern.MatchString(v):
			emails++
		case looksLikePhone(v):
			phones++
		}
	}
	switch {
	case emails*2 > len(vals):
		return domain.FieldEmail
	case phones*2 > len(vals):
		return domain.FieldPhone
	}
	return domain.FieldIgnore
}
