package domain

import "strings"

// CanonicalField is one of the fixed target attributes a source column can feed.
type CanonicalField string

const (
	FieldSalutation   CanonicalField = "salutation"
	FieldFirstName    CanonicalField = "first_name"
	FieldLastName     CanonicalField = "last_name"
	FieldEmail        CanonicalField = "email"
	FieldPhone        CanonicalField = "phone"
	FieldLinkedInURL  CanonicalField = "linkedin_url"
	FieldCompany      CanonicalField = "company"
	FieldJobTitle     CanonicalField = "job_title"
	FieldBuyerPersona CanonicalField = "buyer_persona"
	FieldRoles        CanonicalField = "roles"
	FieldSpecialty    CanonicalField = "specialty"
	FieldStage        CanonicalField = "stage"
	FieldLocation     CanonicalField = "location"
	FieldCountry      CanonicalField = "country"
	FieldNotes        CanonicalField = "notes"

	// FieldIgnore drops the column entirely.
	FieldIgnore CanonicalField = "ignore"
)

// FieldDefinition describes a canonical field for the mapping UI.
type FieldDefinition struct {
	Name        CanonicalField `json:"name"`
	Label       string         `json:"label"`
	Type        string         `json:"type"` // text, email, phone, url, tags, integer
	MultiValued bool           `json:"multi_valued"`
	Primary     bool           `json:"supports_primary"`
}

// CanonicalFields is the catalogue of mappable fields in display order.
var CanonicalFields = []FieldDefinition{
	{Name: FieldSalutation, Label: "Salutation", Type: "text"},
	{Name: FieldFirstName, Label: "First Name", Type: "text"},
	{Name: FieldLastName, Label: "Last Name", Type: "text"},
	{Name: FieldEmail, Label: "Email Address", Type: "email", MultiValued: true, Primary: true},
	{Name: FieldPhone, Label: "Phone Number", Type: "phone", MultiValued: true, Primary: true},
	{Name: FieldLinkedInURL, Label: "LinkedIn URL", Type: "url"},
	{Name: FieldCompany, Label: "Company", Type: "text"},
	{Name: FieldJobTitle, Label: "Job Title", Type: "text"},
	{Name: FieldBuyerPersona, Label: "Buyer Persona", Type: "text"},
	{Name: FieldRoles, Label: "Roles", Type: "tags", MultiValued: true},
	{Name: FieldSpecialty, Label: "Specialty", Type: "text"},
	{Name: FieldStage, Label: "Pipeline Stage", Type: "integer"},
	{Name: FieldLocation, Label: "Location", Type: "text"},
	{Name: FieldCountry, Label: "Country", Type: "text"},
	{Name: FieldNotes, Label: "Notes", Type: "text"},
}

var fieldIndex = func() map[CanonicalField]FieldDefinition {
	m := make(map[CanonicalField]FieldDefinition, len(CanonicalFields))
	for _, f := range CanonicalFields {
		m[f.Name] = f
	}
	return m
}()

// LookupField resolves a field name (case-insensitive) against the catalogue.
// "ignore" is reported as known but is not part of the catalogue.
func LookupField(name string) (FieldDefinition, bool) {
	f := CanonicalField(strings.ToLower(strings.TrimSpace(name)))
	if f == FieldIgnore {
		return FieldDefinition{Name: FieldIgnore, Label: "Ignore", Type: "none"}, true
	}
	def, ok := fieldIndex[f]
	return def, ok
}

// IsMultiValued reports whether several values may be carried by the field.
func (f CanonicalField) IsMultiValued() bool {
	return fieldIndex[f].MultiValued
}

// SupportsPrimary reports whether one of the field's values can be flagged primary.
func (f CanonicalField) SupportsPrimary() bool {
	return fieldIndex[f].Primary
}
