package domain

import (
	"strings"
	"time"
)

// MinStage and MaxStage bound the pipeline stage. Zero means unset.
const (
	MinStage = 1
	MaxStage = 5
)

// EmailEntry is one email address on a contact.
type EmailEntry struct {
	Address string `json:"address"`
	Primary bool   `json:"is_primary"`
}

// PhoneEntry is one phone number on a contact. Normalized is the E.164 form
// and is empty when the raw value could not be parsed.
type PhoneEntry struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized,omitempty"`
	Primary    bool   `json:"is_primary"`
	Valid      bool   `json:"is_valid"`
}

// ContactDraft is the canonical shape of one imported record before it is
// written to the contact store.
type ContactDraft struct {
	Salutation   string       `json:"salutation,omitempty"`
	FirstName    string       `json:"first_name,omitempty"`
	LastName     string       `json:"last_name,omitempty"`
	Emails       []EmailEntry `json:"emails,omitempty"`
	Phones       []PhoneEntry `json:"phones,omitempty"`
	LinkedInURL  string       `json:"linkedin_url,omitempty"`
	Company      string       `json:"company,omitempty"`
	JobTitle     string       `json:"job_title,omitempty"`
	BuyerPersona string       `json:"buyer_persona,omitempty"`
	Roles        []string     `json:"roles,omitempty"`
	Specialty    string       `json:"specialty,omitempty"`
	Stage        int          `json:"stage,omitempty"`
	Location     string       `json:"location,omitempty"`
	Country      string       `json:"country,omitempty"`
	Notes        string       `json:"notes,omitempty"`
}

// Contact is a stored contact record.
type Contact struct {
	ID string `json:"id"`
	ContactDraft
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PrimaryEmail returns the flagged primary email, falling back to the first one.
func (d ContactDraft) PrimaryEmail() string {
	for _, e := range d.Emails {
		if e.Primary {
			return e.Address
		}
	}
	if len(d.Emails) > 0 {
		return d.Emails[0].Address
	}
	return ""
}

// PrimaryPhone returns the flagged primary phone, falling back to the first one.
func (d ContactDraft) PrimaryPhone() (PhoneEntry, bool) {
	for _, p := range d.Phones {
		if p.Primary {
			return p, true
		}
	}
	if len(d.Phones) > 0 {
		return d.Phones[0], true
	}
	return PhoneEntry{}, false
}

// IsEmpty reports whether the draft carries no value at all.
func (d ContactDraft) IsEmpty() bool {
	return d.Salutation == "" && d.FirstName == "" && d.LastName == "" &&
		len(d.Emails) == 0 && len(d.Phones) == 0 && d.LinkedInURL == "" &&
		d.Company == "" && d.JobTitle == "" && d.BuyerPersona == "" &&
		len(d.Roles) == 0 && d.Specialty == "" && d.Stage == 0 &&
		d.Location == "" && d.Country == "" && d.Notes == ""
}

// EnsurePrimary flags the first email and phone as primary when none is flagged,
// and clears any extra primary flags so at most one of each remains.
func (d *ContactDraft) EnsurePrimary() {
	seen := false
	for i := range d.Emails {
		if d.Emails[i].Primary {
			if seen {
				d.Emails[i].Primary = false
			}
			seen = true
		}
	}
	if !seen && len(d.Emails) > 0 {
		d.Emails[0].Primary = true
	}

	seen = false
	for i := range d.Phones {
		if d.Phones[i].Primary {
			if seen {
				d.Phones[i].Primary = false
			}
			seen = true
		}
	}
	if !seen && len(d.Phones) > 0 {
		d.Phones[0].Primary = true
	}
}

// FieldSet names the canonical fields a source actually supplied.
type FieldSet map[CanonicalField]bool

// Merge applies a draft on top of the stored contact. Non-empty scalar fields
// in the draft overwrite; empty ones keep the stored value unless the field
// is in clearEmpty. Emails, phones and roles are unioned, and a primary flag
// coming from the draft moves the primary to that value.
func (c Contact) Merge(d ContactDraft, clearEmpty FieldSet) Contact {
	out := c
	out.ContactDraft = ContactDraft{
		Salutation:   mergeString(c.Salutation, d.Salutation, clearEmpty[FieldSalutation]),
		FirstName:    mergeString(c.FirstName, d.FirstName, clearEmpty[FieldFirstName]),
		LastName:     mergeString(c.LastName, d.LastName, clearEmpty[FieldLastName]),
		LinkedInURL:  mergeString(c.LinkedInURL, d.LinkedInURL, clearEmpty[FieldLinkedInURL]),
		Company:      mergeString(c.Company, d.Company, clearEmpty[FieldCompany]),
		JobTitle:     mergeString(c.JobTitle, d.JobTitle, clearEmpty[FieldJobTitle]),
		BuyerPersona: mergeString(c.BuyerPersona, d.BuyerPersona, clearEmpty[FieldBuyerPersona]),
		Specialty:    mergeString(c.Specialty, d.Specialty, clearEmpty[FieldSpecialty]),
		Location:     mergeString(c.Location, d.Location, clearEmpty[FieldLocation]),
		Country:      mergeString(c.Country, d.Country, clearEmpty[FieldCountry]),
		Notes:        mergeString(c.Notes, d.Notes, clearEmpty[FieldNotes]),
		Stage:        c.Stage,
	}
	if d.Stage != 0 || clearEmpty[FieldStage] {
		out.Stage = d.Stage
	}

	out.Emails = mergeEmails(c.Emails, d.Emails, clearEmpty[FieldEmail])
	out.Phones = mergePhones(c.Phones, d.Phones, clearEmpty[FieldPhone])
	out.Roles = mergeRoles(c.Roles, d.Roles, clearEmpty[FieldRoles])
	return out
}

func mergeString(stored, incoming string, overwriteEmpty bool) string {
	if incoming != "" || overwriteEmpty {
		return incoming
	}
	return stored
}

func mergeEmails(stored, incoming []EmailEntry, overwriteEmpty bool) []EmailEntry {
	if len(incoming) == 0 {
		if overwriteEmpty {
			return nil
		}
		return append([]EmailEntry(nil), stored...)
	}

	out := append([]EmailEntry(nil), stored...)
	primary := ""
	for _, e := range incoming {
		if e.Primary {
			primary = strings.ToLower(e.Address)
		}
		found := false
		for _, s := range out {
			if strings.EqualFold(s.Address, e.Address) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, EmailEntry{Address: e.Address})
		}
	}
	if primary != "" {
		for i := range out {
			out[i].Primary = strings.ToLower(out[i].Address) == primary
		}
	}
	return out
}

func mergePhones(stored, incoming []PhoneEntry, overwriteEmpty bool) []PhoneEntry {
	if len(incoming) == 0 {
		if overwriteEmpty {
			return nil
		}
		return append([]PhoneEntry(nil), stored...)
	}

	key := func(p PhoneEntry) string {
		if p.Normalized != "" {
			return p.Normalized
		}
		return p.Raw
	}

	out := append([]PhoneEntry(nil), stored...)
	primary := ""
	for _, p := range incoming {
		if p.Primary {
			primary = key(p)
		}
		found := false
		for _, s := range out {
			if key(s) == key(p) {
				found = true
				break
			}
		}
		if !found {
			np := p
			np.Primary = false
			out = append(out, np)
		}
	}
	if primary != "" {
		for i := range out {
			out[i].Primary = key(out[i]) == primary
		}
	}
	return out
}

func mergeRoles(stored, incoming []string, overwriteEmpty bool) []string {
	if len(incoming) == 0 {
		if overwriteEmpty {
			return nil
		}
		return append([]string(nil), stored...)
	}
	out := append([]string(nil), stored...)
	for _, r := range incoming {
		found := false
		for _, s := range out {
			if strings.EqualFold(s, r) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, r)
		}
	}
	return out
}
