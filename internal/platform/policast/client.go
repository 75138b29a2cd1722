// Package policast consumes the web app's same-origin JSON API. Only the
// routes this service proxies are implemented; their server side lives
// elsewhere.
package policast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/policast/internal/domain"
)

// DiscoverTimeout bounds the whole admin auto-discover round trip.
const DiscoverTimeout = 30 * time.Second

// Client is the REST client for the Policast web API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client rooted at baseURL, e.g. "https://policast.xyz".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Discover fetches /api/admin-auto-discover. The call is abandoned after
// DiscoverTimeout regardless of the caller's deadline.
func (c *Client) Discover(ctx context.Context) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, DiscoverTimeout)
	defer cancel()

	body, err := c.doGet(ctx, "/api/admin-auto-discover")
	if err != nil {
		return nil, fmt.Errorf("policast: discover: %w", err)
	}
	return body, nil
}

// Leaderboard fetches /api/leaderboard with query passed through.
func (c *Client) Leaderboard(ctx context.Context, query url.Values) (json.RawMessage, error) {
	path := "/api/leaderboard"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("policast: leaderboard: %w", err)
	}
	return body, nil
}

func (c *Client) doGet(ctx context.Context, path string) (json.RawMessage, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("api base url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("response is not JSON")
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
