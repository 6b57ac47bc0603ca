package contactimport

import (
	"testing"

	"github.com/ignite/contact-import/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransformer(mapping []domain.ColumnMapping, country string) (*Transformer, []string) {
	headers := make([]string, len(mapping))
	for i, m := range mapping {
		headers[i] = m.Column
	}
	cfg := domain.DefaultImportConfig()
	cfg.DefaultCountry = country
	return NewTransformer(headers, mapping, cfg), headers
}

func TestTransform_MultiValuedColumns(t *testing.T) {
	tr, _ := newTestTransformer([]domain.ColumnMapping{
		{Column: "emails", Target: domain.FieldEmail, Separator: "|"},
		{Column: "work", Target: domain.FieldEmail, Primary: true},
		{Column: "roles", Target: domain.FieldRoles},
	}, "US")

	d, issues := tr.Transform([]string{" a@x.com | b@x.com |A@X.com", "w@x.com", "Buyer; buyer ;Champion;"})
	assert.Empty(t, issues)
	assert.Equal(t, []domain.EmailEntry{
		{Address: "a@x.com"},
		{Address: "b@x.com"},
		{Address: "w@x.com", Primary: true},
	}, d.Emails)
	assert.Equal(t, []string{"Buyer", "Champion"}, d.Roles)
	assert.Equal(t, "w@x.com", d.PrimaryEmail())
}

func TestTransform_FirstValueIsPrimaryByDefault(t *testing.T) {
	tr, _ := newTestTransformer([]domain.ColumnMapping{
		{Column: "phones", Target: domain.FieldPhone},
	}, "US")

	d, _ := tr.Transform([]string{"650 253 0000;(650) 253-0001"})
	require.Len(t, d.Phones, 2)
	assert.True(t, d.Phones[0].Primary)
	assert.False(t, d.Phones[1].Primary)
}

func TestTransform_PhoneNormalization(t *testing.T) {
	tr, _ := newTestTransformer([]domain.ColumnMapping{
		{Column: "phone", Target: domain.FieldPhone, Separator: ","},
	}, "ES")

	d, issues := tr.Transform([]string{"612345678, +1 650-253-0000, 12345, 612 345 678"})
	assert.Empty(t, issues)
	require.Len(t, d.Phones, 3, "duplicates are removed by normalized form")

	assert.Equal(t, "+34612345678", d.Phones[0].Normalized)
	assert.True(t, d.Phones[0].Valid)
	assert.Equal(t, "+16502530000", d.Phones[1].Normalized)
	assert.Equal(t, domain.PhoneEntry{Raw: "12345"}, d.Phones[2], "invalid numbers are kept raw")
}

func TestTransform_Stage(t *testing.T) {
	tr, _ := newTestTransformer([]domain.ColumnMapping{{Column: "stage", Target: domain.FieldStage}}, "US")

	for in, want := range map[string]int{"3": 3, "Stage 5": 5, "2.0": 2} {
		d, issues := tr.Transform([]string{in})
		assert.Equal(t, want, d.Stage, in)
		assert.Empty(t, issues, in)
	}

	for _, in := range []string{"0", "6", "hot", "2.5"} {
		d, issues := tr.Transform([]string{in})
		assert.Zero(t, d.Stage, in)
		require.Len(t, issues, 1, in)
		assert.Equal(t, domain.IssueInvalidStage, issues[0].Kind)
	}
}

func TestTransform_Scalars(t *testing.T) {
	tr, _ := newTestTransformer([]domain.ColumnMapping{
		{Column: "first", Target: domain.FieldFirstName},
		{Column: "last", Target: domain.FieldLastName},
		{Column: "li", Target: domain.FieldLinkedInURL},
		{Column: "country", Target: domain.FieldCountry},
		{Column: "note1", Target: domain.FieldNotes},
		{Column: "note2", Target: domain.FieldNotes},
		{Column: "skip", Target: domain.FieldIgnore},
	}, "US")

	d, _ := tr.Transform([]string{"JOSÉ MARÍA", "McDonald", "linkedin.com/in/jm", "es", "met at expo", "follow up", "secret"})
	assert.Equal(t, "José María", d.FirstName)
	assert.Equal(t, "McDonald", d.LastName)
	assert.Equal(t, "https://linkedin.com/in/jm", d.LinkedInURL)
	assert.Equal(t, "ES", d.Country)
	assert.Equal(t, "met at expo\nfollow up", d.Notes)
	assert.Equal(t, domain.FieldSet{
		domain.FieldFirstName:   true,
		domain.FieldLastName:    true,
		domain.FieldLinkedInURL: true,
		domain.FieldCountry:     true,
		domain.FieldNotes:       true,
	}, tr.Fields())
}

func TestTransform_ShortRowsAndBlankCells(t *testing.T) {
	tr, _ := newTestTransformer([]domain.ColumnMapping{
		{Column: "email", Target: domain.FieldEmail},
		{Column: "company", Target: domain.FieldCompany},
	}, "US")

	d, issues := tr.Transform([]string{"  "})
	assert.True(t, d.IsEmpty())
	assert.Empty(t, issues)
}

func TestTransformRecord(t *testing.T) {
	d, fields, issues := TransformRecord(map[string]string{
		"email":        "ann@x.com",
		"Work Phone":   "+1 650 253 0000",
		"company_name": "Acme",
		"stage":        "9",
		"favourite":    "blue",
	}, domain.DefaultImportConfig(), nil)

	assert.Equal(t, "ann@x.com", d.PrimaryEmail())
	p, ok := d.PrimaryPhone()
	require.True(t, ok)
	assert.Equal(t, "+16502530000", p.Normalized)
	assert.Equal(t, "Acme", d.Company)
	assert.Zero(t, d.Stage)
	require.Len(t, issues, 1)
	assert.Equal(t, domain.IssueInvalidStage, issues[0].Kind)
	assert.True(t, fields[domain.FieldCompany])
	assert.False(t, fields[domain.FieldNotes])
}
