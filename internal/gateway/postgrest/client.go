// Package postgrest implements the gateway contracts over the hosted data
// platform's REST surface.
//
// The backend exposes every table through PostgREST conventions:
//   - filters as query params:      ?id=eq.abc&is_public=eq.true
//   - ordering:                     ?order=created_at.desc
//   - embedded joins in select:     ?select=*,author:profiles(full_name,avatar_url)
//   - row-returning writes:         Prefer: return=representation
//   - stored procedures:            POST /rpc/<name>
//
// Every request carries the project api key plus a bearer token for the
// signed-in principal. Anonymous reads fall back to the api key as the
// bearer, which is how the backend models "not signed in".
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/xid"
	"golang.org/x/oauth2"

	"github.com/sofyan2108/codeheaven-ta/internal/apperror"
	"github.com/sofyan2108/codeheaven-ta/internal/gateway"
)

// Compile-time interface checks — if a resource view drifts from its
// gateway contract, this fails to build immediately rather than at a call
// site.
var (
	_ gateway.SnippetGateway      = (*Snippets)(nil)
	_ gateway.FavoriteGateway     = (*Favorites)(nil)
	_ gateway.NotificationGateway = (*Notifications)(nil)
	_ gateway.ProfileGateway      = (*Profiles)(nil)
)

// Config holds the connection settings for the REST gateway.
type Config struct {
	// BaseURL is the project root, e.g. "https://xyzcompany.supabase.co".
	BaseURL string
	// APIKey is the project's public (anon) api key.
	APIKey string
	// Tokens supplies the signed-in principal's bearer token.
	// May be nil for an anonymous client.
	Tokens oauth2.TokenSource
	// HTTPClient overrides the default client (mainly for tests).
	HTTPClient *http.Client
}

// Client is the shared transport for one project. The gateway contracts
// are implemented by its resource views — Snippets, Favorites,
// Notifications, Profiles — which all route through the same do method.
type Client struct {
	baseURL    string
	apiKey     string
	tokens     oauth2.TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// Snippets returns the snippet-table view of this client.
func (c *Client) Snippets() *Snippets { return &Snippets{c: c} }

// Favorites returns the favorites-join-table view of this client.
func (c *Client) Favorites() *Favorites { return &Favorites{c: c} }

// Notifications returns the notification-table view of this client.
func (c *Client) Notifications() *Notifications { return &Notifications{c: c} }

// Profiles returns the profile-table view of this client.
func (c *Client) Profiles() *Profiles { return &Profiles{c: c} }

// New creates a REST gateway client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("postgrest: base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("postgrest: api key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// bearer resolves the Authorization credential for the next request.
func (c *Client) bearer() string {
	if c.tokens != nil {
		if tok, err := c.tokens.Token(); err == nil && tok.AccessToken != "" {
			return tok.AccessToken
		}
	}
	// Anonymous: the api key itself acts as the bearer.
	return c.apiKey
}

// requestOpts shapes one REST call. Zero values mean: no body, no query,
// expect nothing back.
type requestOpts struct {
	method string
	path   string     // e.g. "/rest/v1/snippets"
	query  url.Values // filters, select, order
	body   any        // marshalled to JSON when non-nil
	out    any        // unmarshalled from the response when non-nil
	// single asks PostgREST for exactly one object instead of an array.
	// Zero rows then come back as an error status, mapped to ErrNotFound.
	single bool
	// returning adds "Prefer: return=representation" so a write returns
	// the affected row(s).
	returning bool
	// resource names the entity for NotFound messages ("snippet", ...).
	resource string
	// resourceID is the id used in NotFound messages.
	resourceID string
}

// do performs one REST round-trip. Non-2xx statuses map to typed errors:
// 404/406 → ErrNotFound, everything else → ErrGateway with the remote body.
func (c *Client) do(ctx context.Context, opts requestOpts) error {
	u := c.baseURL + opts.path
	if len(opts.query) > 0 {
		u += "?" + opts.query.Encode()
	}

	var reqBody io.Reader
	if opts.body != nil {
		raw, err := json.Marshal(opts.body)
		if err != nil {
			return fmt.Errorf("postgrest: encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, opts.method, u, reqBody)
	if err != nil {
		return fmt.Errorf("postgrest: building request: %w", err)
	}

	correlationID := xid.New().String()
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	req.Header.Set("X-Correlation-Id", correlationID)
	if opts.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.single {
		// PostgREST's "give me one object, error on zero rows" mode.
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	if opts.returning {
		req.Header.Set("Prefer", "return=representation")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperror.GatewayFailed(opts.method+" "+opts.path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("gateway request",
		slog.String("method", opts.method),
		slog.String("path", opts.path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
		slog.String("correlation_id", correlationID),
	)

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNotAcceptable {
		// 406 is PostgREST's "object mode matched zero rows".
		return apperror.NotFound(opts.resource, opts.resourceID)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperror.GatewayFailed(opts.method+" "+opts.path, remoteError(resp))
	}

	if opts.out != nil {
		if err := json.NewDecoder(resp.Body).Decode(opts.out); err != nil {
			return fmt.Errorf("postgrest: decoding response: %w", err)
		}
	}
	return nil
}

// remoteError extracts the backend's error message from a failed response.
// PostgREST errors look like {"code":"...","message":"..."}; anything else
// falls back to the raw body.
func remoteError(resp *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	var parsed struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &parsed) == nil && parsed.Message != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, parsed.Message)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
