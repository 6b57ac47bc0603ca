package listsource

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds the third-party list API configuration.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	APIKey       string
	PageSize     int
	Timeout      time.Duration
	MaxRetries   int
}

// ValueSeparator joins the elements of array-valued fields. It never appears
// in real contact data; Record.WithSeparator swaps it for the job's separator.
const ValueSeparator = "\x1f"

// Record is one pre-shaped contact record keyed by the source's field names.
type Record map[string]string

// WithSeparator returns a copy of r with array-joined values rejoined by sep.
// An empty sep falls back to ";".
func (r Record) WithSeparator(sep string) Record {
	if sep == "" {
		sep = ";"
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = strings.ReplaceAll(v, ValueSeparator, sep)
	}
	return out
}

// FlexValue unmarshals any scalar or array JSON value into a string. Arrays
// are joined with ValueSeparator so multi-valued fields survive the trip.
type FlexValue string

// UnmarshalJSON implements json.Unmarshaler for FlexValue
func (f *FlexValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexValue(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexValue(n.String())
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = FlexValue(strconv.FormatBool(b))
		return nil
	}

	var arr []FlexValue
	if err := json.Unmarshal(data, &arr); err == nil {
		parts := make([]string, 0, len(arr))
		for _, v := range arr {
			if v != "" {
				parts = append(parts, string(v))
			}
		}
		*f = FlexValue(strings.Join(parts, ValueSeparator))
		return nil
	}

	if strings.HasPrefix(trimmed, "{") {
		// Nested objects are kept as JSON text; the importer ignores them
		// unless a field name maps.
		*f = FlexValue(trimmed)
		return nil
	}
	return fmt.Errorf("FlexValue: cannot unmarshal %s", trimmed)
}

// responseMetadata mirrors the envelope the list API wraps payloads in.
type responseMetadata struct {
	Error   bool      `json:"error"`
	Message string    `json:"message,omitempty"`
	Total   FlexValue `json:"total,omitempty"`
}

type contactsResponse struct {
	Metadata responseMetadata       `json:"metadata"`
	Payload  []map[string]FlexValue `json:"payload"`
}

// total returns the list size if the server reported one.
func (m responseMetadata) total() (int, bool) {
	if m.Total == "" {
		return 0, false
	}
	n, err := strconv.Atoi(string(m.Total))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
