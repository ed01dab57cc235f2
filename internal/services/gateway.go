package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/soundstats/internal/models"
	"github.com/desertthunder/soundstats/internal/shared"
	"golang.org/x/time/rate"
)

const spotifyBaseURL = "https://api.spotify.com/v1"

// requestTimeout bounds every call to the catalog API.
const requestTimeout = 15 * time.Second

// UpstreamError carries a non-authorization upstream failure back to the
// caller with the status, content type, and body attached. The gateway never
// retries these.
type UpstreamError struct {
	Status      int
	ContentType string
	Body        []byte
	Err         error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream request failed: %v", e.Err)
	}
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Refresher mints fresh access tokens for a credential record. Implemented by
// [auth.Authenticator].
type Refresher interface {
	EnsureFresh(ctx context.Context, record *models.CredentialRecord) (*models.CredentialRecord, bool, error)
	ForceRefresh(ctx context.Context, record *models.CredentialRecord) (*models.CredentialRecord, error)
}

// Gateway wraps outbound calls to the Spotify Web API with credential
// freshness checks, bearer attachment, and the single-retry policy on
// authorization failures.
type Gateway struct {
	refresher  Refresher
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithBaseURL points the gateway at a different API root.
func WithBaseURL(baseURL string) Option {
	return func(g *Gateway) {
		g.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(g *Gateway) {
		g.httpClient = httpClient
	}
}

// WithLimiter replaces the outbound rate limiter.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(g *Gateway) {
		g.limiter = limiter
	}
}

// NewGateway creates a Gateway backed by the given refresher.
func NewGateway(refresher Refresher, logger *log.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	g := &Gateway{
		refresher:  refresher,
		baseURL:    spotifyBaseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		// Spotify applies rolling rate limits; 10 rps with a small burst
		// keeps a busy dashboard well under them.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		logger:  logger,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Do executes one authenticated request against the API.
//
// The returned record is the one the call ended up using; it differs from the
// input when a refresh happened, and callers must persist it before writing
// their response. [shared.ErrRefreshFailed] and [shared.ErrUnauthenticated]
// mean the session is no longer usable and must be cleared.
func (g *Gateway) Do(ctx context.Context, record *models.CredentialRecord, method, endpoint string, query url.Values, result any) (*models.CredentialRecord, error) {
	current, _, err := g.refresher.EnsureFresh(ctx, record)
	if err != nil {
		return nil, err
	}

	status, contentType, body, err := g.execute(ctx, current.AccessToken, method, endpoint, query)
	if err != nil {
		return current, &UpstreamError{Err: err}
	}

	if status == http.StatusUnauthorized {
		// The token was rejected despite passing the local freshness check,
		// e.g. revoked out-of-band. One forced refresh, one retry.
		g.logger.Warn("upstream rejected access token, forcing refresh", "endpoint", endpoint)

		current, err = g.refresher.ForceRefresh(ctx, current)
		if err != nil {
			return nil, err
		}

		status, contentType, body, err = g.execute(ctx, current.AccessToken, method, endpoint, query)
		if err != nil {
			return current, &UpstreamError{Err: err}
		}

		if status == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %s %s rejected after forced refresh", shared.ErrUnauthenticated, method, endpoint)
		}
	}

	if status < 200 || status >= 300 {
		return current, &UpstreamError{Status: status, ContentType: contentType, Body: body}
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return current, fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
		}
	}

	return current, nil
}

// execute performs a single bearer-authenticated request and returns the
// status, content type, and body. Transport failures are returned as errors;
// HTTP-level failures are left to the caller to classify.
func (g *Gateway) execute(ctx context.Context, accessToken, method, endpoint string, query url.Values) (int, string, []byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, "", nil, fmt.Errorf("rate limiter: %w", err)
	}

	apiURL := g.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, nil)
	if err != nil {
		return 0, "", nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return 0, "", nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, resp.Header.Get("Content-Type"), body, nil
}
