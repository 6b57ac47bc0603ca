package listsource

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ignite/contact-import/internal/domain"
)

// ErrInvalidReference is returned for list references that are neither a
// list ID nor an http(s) URL.
var ErrInvalidReference = domain.NewError(domain.KindInvalidListReference, "invalid list reference")

var listIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Reference identifies one external list.
type Reference struct {
	Raw string `json:"raw"`
	ID  string `json:"id,omitempty"`
	URL string `json:"url"`
}

// Key is the canonical form used to detect two requests for the same list.
func (r Reference) Key() string {
	return r.URL
}

// ParseReference accepts either an absolute http(s) URL or a bare list ID,
// which is resolved against baseURL as {baseURL}/lists/{id}/contacts.
func ParseReference(raw, baseURL string) (Reference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reference{}, domain.Errorf(domain.KindInvalidListReference, "list reference is required")
	}

	if listIDPattern.MatchString(raw) {
		if baseURL == "" {
			return Reference{}, domain.Errorf(domain.KindInvalidListReference, "list ID %q given but no list source base URL is configured", raw)
		}
		base, err := canonicalURL(strings.TrimRight(baseURL, "/") + "/lists/" + raw + "/contacts")
		if err != nil {
			return Reference{}, ErrInvalidReference.WithCause(err)
		}
		return Reference{Raw: raw, ID: raw, URL: base}, nil
	}

	u, err := canonicalURL(raw)
	if err != nil {
		return Reference{}, domain.Errorf(domain.KindInvalidListReference, "list reference %q is not a list ID or http(s) URL", raw)
	}
	return Reference{Raw: raw, URL: u}, nil
}

func canonicalURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidReference
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.Fragment = ""
	return u.String(), nil
}
