package contactimport

import (
	"testing"

	"github.com/ignite/contact-import/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

func TestSniff_CommaWithHeader(t *testing.T) {
	res, err := Sniff([]byte("First Name,Last Name,Email,Phone\nAnn,Lee,ann@x.com,650 253 0000\nBob,Ray,bob@x.com,650 253 0001\n"), SniffOptions{})
	require.NoError(t, err)

	assert.Equal(t, ",", res.Delimiter)
	assert.True(t, res.HasHeader)
	assert.GreaterOrEqual(t, res.HeaderConfidence, MinHeaderConfidence)
	assert.Equal(t, []string{"First Name", "Last Name", "Email", "Phone"}, res.Headers)
	assert.Len(t, res.Rows, 2)
	assert.Equal(t, []domain.ColumnMapping{
		{Column: "First Name", Target: domain.FieldFirstName},
		{Column: "Last Name", Target: domain.FieldLastName},
		{Column: "Email", Target: domain.FieldEmail, Primary: true},
		{Column: "Phone", Target: domain.FieldPhone, Primary: true},
	}, res.Suggested)
}

func TestSniff_TabDelimiter(t *testing.T) {
	res, err := Sniff([]byte("email\tcompany\na@x.com\tAcme, Inc.\nb@x.com\tGlobex\n"), SniffOptions{})
	require.NoError(t, err)
	assert.Equal(t, "\t", res.Delimiter)
	assert.Equal(t, []string{"a@x.com", "Acme, Inc."}, res.Rows[0])
}

func TestSniff_QuotedDelimitersIgnored(t *testing.T) {
	content := "name;email\n\"Lee, Ann\";ann@x.com\n\"Ray, Bob\";bob@x.com\n"
	res, err := Sniff([]byte(content), SniffOptions{})
	require.NoError(t, err)
	assert.Equal(t, ";", res.Delimiter)
	assert.Equal(t, "Lee, Ann", res.Rows[0][0])
}

func TestSniff_HeaderlessFile(t *testing.T) {
	res, err := Sniff([]byte("ann@x.com,Ann,+34 612 345 678\nbob@x.com,Bob,+34 612 345 679\n"), SniffOptions{})
	require.NoError(t, err)

	assert.False(t, res.HasHeader)
	assert.Equal(t, []string{"column_1", "column_2", "column_3"}, res.Headers)
	assert.Len(t, res.Rows, 2)
	assert.Equal(t, domain.FieldEmail, res.Suggested[0].Target)
	assert.Equal(t, domain.FieldIgnore, res.Suggested[1].Target)
	assert.Equal(t, domain.FieldPhone, res.Suggested[2].Target)
}

func TestSniff_Overrides(t *testing.T) {
	noHeader := false
	res, err := Sniff([]byte("email|name\na@x.com|A\n"), SniffOptions{Delimiter: "|", HasHeader: &noHeader})
	require.NoError(t, err)
	assert.Equal(t, "|", res.Delimiter)
	assert.False(t, res.HasHeader)
	assert.Len(t, res.Rows, 2)
}

func TestSniff_SampleRowsLimited(t *testing.T) {
	content := "email\n"
	for i := 0; i < 20; i++ {
		content += "a@x.com\n"
	}
	res, err := Sniff([]byte(content), SniffOptions{SampleRows: 3})
	require.NoError(t, err)
	assert.Len(t, res.SampleRows, 3)
	assert.Len(t, res.Rows, 20)
}

func TestSniff_UnreadableInput(t *testing.T) {
	cases := map[string][]byte{
		"empty":       nil,
		"whitespace":  []byte(" \n\t\n"),
		"header only": []byte("email,first_name\n"),
		"binary":      {0x50, 0x4b, 0x03, 0x04, 0x00, 0x00, 0x08, 0x00},
	}
	yes := true
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Sniff(content, SniffOptions{HasHeader: &yes})
			assert.ErrorIs(t, err, ErrEmptyOrUnreadableInput)
		})
	}
}

func TestSniff_DecodesBOMAndLegacyEncodings(t *testing.T) {
	t.Run("utf8 bom", func(t *testing.T) {
		res, err := Sniff(append([]byte{0xEF, 0xBB, 0xBF}, "email,nombre\na@x.com,José\n"...), SniffOptions{})
		require.NoError(t, err)
		assert.Equal(t, "email", res.Headers[0])
		assert.Equal(t, "José", res.Rows[0][1])
	})

	t.Run("utf16 little endian", func(t *testing.T) {
		enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
		raw, err := enc.Bytes([]byte("email;nombre\na@x.com;Núñez\n"))
		require.NoError(t, err)

		res, err := Sniff(raw, SniffOptions{})
		require.NoError(t, err)
		assert.Equal(t, ";", res.Delimiter)
		assert.Equal(t, "Núñez", res.Rows[0][1])
	})

	t.Run("windows-1252", func(t *testing.T) {
		raw, err := charmap.Windows1252.NewEncoder().Bytes([]byte("email,apellido\na@x.com,Pérez\n"))
		require.NoError(t, err)

		res, err := Sniff(raw, SniffOptions{})
		require.NoError(t, err)
		assert.Equal(t, "Pérez", res.Rows[0][1])
	})
}

func TestUniqueHeaders(t *testing.T) {
	assert.Equal(t,
		[]string{"Phone", "phone_2", "column_3", "email"},
		uniqueHeaders([]string{"Phone", "phone", " ", "email"}))
}

func TestParseRows(t *testing.T) {
	rows, err := ParseRows([]byte("email;name\n\na@x.com;A\n;\nb@x.com;B\n"), ";", true)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a@x.com", "A"}, {"b@x.com", "B"}}, rows)
}

func TestSuggestField(t *testing.T) {
	cases := map[string]domain.CanonicalField{
		"Email":              domain.FieldEmail,
		"E-mail":             domain.FieldEmail,
		"Correo electrónico": domain.FieldEmail,
		"Work Email":         domain.FieldEmail,
		"Company Email":      domain.FieldEmail,
		"Teléfono":           domain.FieldPhone,
		"Mobile Phone":       domain.FieldPhone,
		"Nombre":             domain.FieldFirstName,
		"Apellidos":          domain.FieldLastName,
		"LinkedIn Profile":   domain.FieldLinkedInURL,
		"Empresa":            domain.FieldCompany,
		"Job Title":          domain.FieldJobTitle,
		"Buyer Persona":      domain.FieldBuyerPersona,
		"Roles":              domain.FieldRoles,
		"Especialidad":       domain.FieldSpecialty,
		"Pipeline Stage":     domain.FieldStage,
		"Ciudad":             domain.FieldLocation,
		"País":               domain.FieldCountry,
		"Comentarios":        domain.FieldNotes,
		"Salutation":         domain.FieldSalutation,
		"Favourite Colour":   domain.FieldIgnore,
		"":                   domain.FieldIgnore,
	}
	for header, want := range cases {
		assert.Equal(t, want, SuggestField(header), "header %q", header)
	}
}
