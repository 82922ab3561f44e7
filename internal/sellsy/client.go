// Package sellsy implements the Sellsy API v2 client: OAuth2
// client-credentials token management, paginated invoice retrieval and
// per-invoice PDF download.
//
// Required environment variables (see internal/config):
//   - SELLSY_CLIENT_ID / SELLSY_CLIENT_SECRET - OAuth2 client credentials
//   - SELLSY_API_URL - API base URL (default https://api.sellsy.com/v2)
//   - SELLSY_TOKEN_URL - OAuth2 token endpoint
package sellsy

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sellsync/internal/httpx"
	"sellsync/internal/logger"
)

const (
	// pageSize is the maximum page size the Sellsy API supports.
	pageSize = 100

	// tokenExpirySkew is subtracted from the nominal token lifetime so a
	// token is refreshed before it actually expires (clock-skew margin).
	tokenExpirySkew = 60 * time.Second

	// maxPageRetries bounds 401-triggered retries of a single page.
	maxPageRetries = 3
)

// Config holds the settings needed to talk to the Sellsy API.
type Config struct {
	APIURL       string
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// Filter narrows an invoice search.
type Filter struct {
	// CreatedAfter keeps only invoices created at or after this instant.
	// The zero value disables date filtering.
	CreatedAfter time.Time

	// Limit caps the total number of invoices returned. Zero means no cap.
	Limit int
}

// Client talks to the Sellsy API. The cached access token is safe for
// concurrent use; the worst case under a refresh race is one redundant
// token fetch.
type Client struct {
	cfg      Config
	api      *httpx.Client
	download *httpx.Client // absolute-URL requests (pdf links, token endpoint)
	log      zerolog.Logger

	pageDelay time.Duration
	now       func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithPageDelay overrides the fixed delay between consecutive page requests.
func WithPageDelay(d time.Duration) Option {
	return func(c *Client) {
		c.pageDelay = d
	}
}

// NewClient creates a Sellsy API client.
func NewClient(cfg Config, options ...Option) *Client {
	client := &Client{
		cfg:       cfg,
		api:       httpx.NewClient(httpx.WithBaseURL(cfg.APIURL)),
		download:  httpx.NewClient(),
		log:       logger.WithComponent("sellsy"),
		pageDelay: time.Second,
		now:       time.Now,
	}

	for _, option := range options {
		option(client)
	}

	return client
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Token returns a valid bearer token, fetching a new one when the cached
// token is missing or within the expiry skew margin.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.tokenExpiry.Add(-tokenExpirySkew)) {
		return c.accessToken, nil
	}

	return c.fetchTokenLocked(ctx)
}

// InvalidateToken forces the cached token's expiry into the past so the next
// Token call performs a fresh exchange. Callers invoke this after any 401
// from a downstream request, then retry that request exactly once.
func (c *Client) InvalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenExpiry = time.Time{}
}

func (c *Client) fetchTokenLocked(ctx context.Context) (string, error) {
	const op = "Token"

	c.log.Debug().Str("token_url", c.cfg.TokenURL).Msg("Requesting Sellsy access token")

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	resp, err := c.download.PostForm(ctx, c.cfg.TokenURL, form,
		httpx.WithBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret))
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, ErrAuthFailed, err)
	}

	var token tokenResponse
	if err := c.download.ProcessJSONResponse(resp, &token); err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, ErrAuthFailed, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%s: %w: empty access token in response", op, ErrAuthFailed)
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(token.ExpiresIn) * time.Second)

	c.log.Info().
		Time("expires_at", c.tokenExpiry).
		Msg("Sellsy access token acquired")

	return c.accessToken, nil
}

type listResponse struct {
	Data []map[string]interface{} `json:"data"`
}

// SearchInvoices pages through the invoice list endpoint and returns the
// collected invoice summaries.
//
// Termination is driven by short or empty pages, never by provider-reported
// total counts, which have been observed to be inconsistent. A 401 mid-loop
// invalidates the token and retries the same page without advancing, bounded
// by maxPageRetries; exhausting the bound returns whatever was accumulated
// together with the error.
func (c *Client) SearchInvoices(ctx context.Context, filter Filter) ([]map[string]interface{}, error) {
	const op = "SearchInvoices"

	var invoices []map[string]interface{}
	page := 1
	retries := 0

	for {
		if filter.Limit > 0 && len(invoices) >= filter.Limit {
			break
		}

		token, err := c.Token(ctx)
		if err != nil {
			return invoices, fmt.Errorf("%s: %w", op, err)
		}

		options := []httpx.RequestOption{
			httpx.WithBearerToken(token),
			httpx.WithQueryParam("page", strconv.Itoa(page)),
			httpx.WithQueryParam("limit", strconv.Itoa(pageSize)),
		}
		if !filter.CreatedAfter.IsZero() {
			options = append(options, httpx.WithQueryParam("created_after", filter.CreatedAfter.Format(time.RFC3339)))
		}

		resp, err := c.api.Get(ctx, "/invoices", options...)
		if err != nil {
			if httpx.StatusCode(err) == 401 {
				retries++
				if retries > maxPageRetries {
					c.log.Error().
						Int("page", page).
						Int("retries", retries-1).
						Msg("Giving up on page after repeated 401 responses")
					return invoices, fmt.Errorf("%s: page %d: %w: too many 401 retries", op, page, ErrFetchFailed)
				}
				c.log.Warn().Int("page", page).Msg("Token rejected mid-pagination, refreshing and retrying page")
				c.InvalidateToken()
				continue // same page, do not advance
			}
			return invoices, fmt.Errorf("%s: page %d: %w: %v", op, page, ErrFetchFailed, err)
		}
		retries = 0

		var list listResponse
		if err := c.api.ProcessJSONResponse(resp, &list); err != nil {
			return invoices, fmt.Errorf("%s: page %d: %w: %v", op, page, ErrFetchFailed, err)
		}

		if len(list.Data) == 0 {
			c.log.Debug().Int("page", page).Msg("Empty page, pagination finished")
			break
		}

		invoices = append(invoices, list.Data...)

		c.log.Info().
			Int("page", page).
			Int("page_count", len(list.Data)).
			Int("total", len(invoices)).
			Msg("Invoice page retrieved")

		// Short page means the provider ran out of results.
		if len(list.Data) < pageSize {
			break
		}

		page++

		// Fixed inter-request pause to respect the provider's rate limits.
		if c.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return invoices, fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(c.pageDelay):
			}
		}
	}

	if filter.Limit > 0 && len(invoices) > filter.Limit {
		invoices = invoices[:filter.Limit]
	}

	return invoices, nil
}

// GetInvoice fetches the detail payload for one invoice. The provider nests
// the invoice under a "data" key in some API revisions and returns it bare in
// others; both shapes are accepted.
func (c *Client) GetInvoice(ctx context.Context, id string) (map[string]interface{}, error) {
	const op = "GetInvoice"

	payload, err := c.getInvoiceOnce(ctx, id)
	if httpx.StatusCode(err) == 401 {
		c.log.Warn().Str("invoice_id", id).Msg("Token rejected, refreshing and retrying once")
		c.InvalidateToken()
		payload, err = c.getInvoiceOnce(ctx, id)
	}
	if err != nil {
		if httpx.StatusCode(err) == 404 {
			return nil, fmt.Errorf("%s: invoice %s: %w", op, id, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: invoice %s: %w: %v", op, id, ErrFetchFailed, err)
	}

	return payload, nil
}

func (c *Client) getInvoiceOnce(ctx context.Context, id string) (map[string]interface{}, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.api.Get(ctx, "/invoices/"+url.PathEscape(id), httpx.WithBearerToken(token))
	if err != nil {
		return nil, err
	}

	var body map[string]interface{}
	if err := c.api.ProcessJSONResponse(resp, &body); err != nil {
		return nil, err
	}

	if nested, ok := body["data"].(map[string]interface{}); ok {
		return nested, nil
	}
	return body, nil
}
