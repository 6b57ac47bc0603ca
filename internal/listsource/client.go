package listsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ignite/contact-import/internal/pkg/httpretry"
	"github.com/ignite/contact-import/internal/pkg/logger"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultPageSize = 500
	defaultTimeout  = 60 * time.Second
	maxPages        = 10000
)

// Client fetches contact records from the third-party list API.
type Client struct {
	cfg        Config
	httpClient httpretry.HTTPDoer
}

// NewClient creates a list API client. With a client ID and token URL the
// client authenticates through the OAuth2 client-credentials flow; with an
// API key it sends a static bearer token.
func NewClient(cfg Config) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	base := &http.Client{Timeout: cfg.Timeout}
	if cfg.ClientID != "" && cfg.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		base = cc.Client(context.Background())
		base.Timeout = cfg.Timeout
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpretry.NewRetryClient(base, httpretry.Options{MaxRetries: cfg.MaxRetries}),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// BaseURL is used to resolve bare list IDs.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// Fetch pages through the list until a short page or the reported total
// is reached. progress, when set, is called after every page with the
// running count and the total (-1 while unknown).
func (c *Client) Fetch(ctx context.Context, ref Reference, progress func(fetched, total int)) ([]Record, error) {
	var out []Record
	total := -1

	for page := 1; page <= maxPages; page++ {
		resp, err := c.fetchPage(ctx, ref, page)
		if err != nil {
			return nil, err
		}
		if n, ok := resp.Metadata.total(); ok {
			total = n
		}

		for _, item := range resp.Payload {
			rec := make(Record, len(item))
			for k, v := range item {
				rec[k] = string(v)
			}
			out = append(out, rec)
		}
		if progress != nil {
			progress(len(out), total)
		}

		if len(resp.Payload) < c.cfg.PageSize || (total >= 0 && len(out) >= total) {
			break
		}
	}

	logger.Info("[ListSource] list fetched", "list", ref.Key(), "records", len(out))
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, ref Reference, page int) (*contactsResponse, error) {
	u, err := url.Parse(ref.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse list URL: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(c.cfg.PageSize))
	u.RawQuery = q.Encode()

	body, err := c.doRequest(ctx, http.MethodGet, u.String())
	if err != nil {
		return nil, err
	}

	var resp contactsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Metadata.Error {
		msg := resp.Metadata.Message
		if msg == "" {
			msg = "unspecified error"
		}
		return nil, fmt.Errorf("list API returned error: %s", msg)
	}
	return &resp, nil
}

// doRequest performs an authenticated request against the list API
func (c *Client) doRequest(ctx context.Context, method, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 512))
	}
	return respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
