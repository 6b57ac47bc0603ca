package listsource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ignite/contact-import/internal/domain"
	"github.com/ignite/contact-import/internal/pkg/httpretry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pagedServer(t *testing.T, total int, wantAuth string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"cc-token","token_type":"bearer","expires_in":3600}`)
			return
		}
		if got := r.Header.Get("Authorization"); got != wantAuth {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		var payload []map[string]any
		for i := (page - 1) * limit; i < page*limit && i < total; i++ {
			payload = append(payload, map[string]any{
				"email": fmt.Sprintf("user%d@example.com", i),
				"stage": i%5 + 1,
				"roles": []string{"buyer", "champion"},
				"notes": nil,
			})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"metadata": map[string]any{"error": false, "total": strconv.Itoa(total)},
			"payload":  payload,
		})
	}))
}

func TestFetch_PagesWithAPIKey(t *testing.T) {
	srv := pagedServer(t, 5, "Bearer secret")
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "secret", PageSize: 2})
	ref, err := ParseReference("abc", c.BaseURL())
	require.NoError(t, err)

	var calls [][2]int
	recs, err := c.Fetch(context.Background(), ref, func(fetched, total int) {
		calls = append(calls, [2]int{fetched, total})
	})
	require.NoError(t, err)

	require.Len(t, recs, 5)
	assert.Equal(t, "user0@example.com", recs[0]["email"])
	assert.Equal(t, "1", recs[0]["stage"])
	assert.Equal(t, "buyer"+ValueSeparator+"champion", recs[0]["roles"])
	assert.Equal(t, "buyer;champion", recs[0].WithSeparator("")["roles"])
	assert.Equal(t, "", recs[0]["notes"])
	assert.Equal(t, [][2]int{{2, 5}, {4, 5}, {5, 5}}, calls)
}

func TestFetch_ClientCredentials(t *testing.T) {
	srv := pagedServer(t, 1, "Bearer cc-token")
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/token",
		ClientID:     "id",
		ClientSecret: "secret",
	})
	ref, err := ParseReference(srv.URL+"/lists/42/contacts", "")
	require.NoError(t, err)

	recs, err := c.Fetch(context.Background(), ref, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestFetch_AuthFailureIsAnError(t *testing.T) {
	srv := pagedServer(t, 3, "Bearer right")
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "wrong"})
	ref, _ := ParseReference("abc", srv.URL)

	_, err := c.Fetch(context.Background(), ref, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestFetch_EnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"metadata":{"error":true,"message":"list 42 is archived"},"payload":[]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	ref, _ := ParseReference("42", srv.URL)
	_, err := c.Fetch(context.Background(), ref, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list 42 is archived")
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"metadata":{"error":false,"total":1},"payload":[{"email":"a@x.com"}]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	c.SetHTTPClient(httpretry.NewRetryClient(nil, httpretry.Options{MaxRetries: 2, BaseDelay: time.Millisecond}))
	ref, _ := ParseReference("abc", srv.URL)

	recs, err := c.Fetch(context.Background(), ref, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestParseReference(t *testing.T) {
	ref, err := ParseReference(" list_42 ", "https://CRM.example.com/api/")
	require.NoError(t, err)
	assert.Equal(t, "list_42", ref.ID)
	assert.Equal(t, "https://crm.example.com/api/lists/list_42/contacts", ref.URL)

	byURL, err := ParseReference("https://crm.example.com/api/lists/list_42/contacts/", "")
	require.NoError(t, err)
	assert.Equal(t, ref.Key(), byURL.Key(), "ID and URL forms of the same list share a key")

	for _, raw := range []string{"", "ftp://example.com/list", "not a list", "/relative/path"} {
		_, err := ParseReference(raw, "https://crm.example.com")
		assert.Equal(t, domain.KindInvalidListReference, domain.KindOf(err), "raw %q", raw)
	}

	_, err = ParseReference("abc", "")
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestFlexValue(t *testing.T) {
	var v map[string]FlexValue
	require.NoError(t, json.Unmarshal([]byte(`{"a":"x","b":12.5,"c":true,"d":null,"e":["p",1],"f":{"k":1}}`), &v))
	assert.Equal(t, FlexValue("x"), v["a"])
	assert.Equal(t, FlexValue("12.5"), v["b"])
	assert.Equal(t, FlexValue("true"), v["c"])
	assert.Equal(t, FlexValue(""), v["d"])
	assert.Equal(t, FlexValue("p"+ValueSeparator+"1"), v["e"])
	assert.Equal(t, FlexValue(`{"k":1}`), v["f"])
}

func TestRecord_WithSeparator(t *testing.T) {
	var v map[string]FlexValue
	require.NoError(t, json.Unmarshal([]byte(`{"email":["a@x.com","b@x.com"],"note":"a;b"}`), &v))
	rec := Record{"email": string(v["email"]), "note": string(v["note"])}

	got := rec.WithSeparator(",")
	assert.Equal(t, "a@x.com,b@x.com", got["email"])
	assert.Equal(t, "a;b", got["note"], "scalar values keep their own punctuation")
	assert.Equal(t, "a@x.com"+ValueSeparator+"b@x.com", rec["email"], "original record is untouched")

	assert.Equal(t, "a@x.com;b@x.com", rec.WithSeparator("")["email"])
}
