package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/soundstats/internal/models"
	"github.com/desertthunder/soundstats/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyMeURL    = "https://api.spotify.com/v1/me"

	// RequestTimeout bounds every server-to-server call to the provider so a
	// slow upstream cannot hang a request indefinitely.
	RequestTimeout = 15 * time.Second
)

// Scopes requested during authorization. Listening stats need top items and
// playback history on top of the basic profile scopes.
var Scopes = []string{
	"user-read-private",
	"user-read-email",
	"user-top-read",
	"user-read-recently-played",
}

// Authenticator implements the authorization flow and the token refresh
// engine against Spotify's accounts service.
type Authenticator struct {
	config     *oauth2.Config
	httpClient *http.Client
	identity   string
	logger     *log.Logger
	group      singleflight.Group
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithEndpoint overrides the provider endpoint.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(a *Authenticator) {
		a.config.Endpoint = endpoint
	}
}

// WithIdentityURL overrides the identity endpoint.
func WithIdentityURL(identityURL string) Option {
	return func(a *Authenticator) {
		a.identity = identityURL
	}
}

// WithHTTPClient sets a custom HTTP client for provider calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(a *Authenticator) {
		a.httpClient = httpClient
	}
}

// NewAuthenticator creates an Authenticator from the given OAuth2 credentials.
func NewAuthenticator(credentials map[string]string, logger *log.Logger, opts ...Option) (*Authenticator, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://localhost:8080/auth/callback"
	}

	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
			// Spotify authenticates token requests with Basic client credentials.
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	a := &Authenticator{
		config:     config,
		httpClient: &http.Client{Timeout: RequestTimeout},
		identity:   spotifyMeURL,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// AuthURL returns the provider authorization URL carrying the client id,
// scopes, redirect target, and the given anti-forgery state token.
func (a *Authenticator) AuthURL(state string) string {
	return a.config.AuthCodeURL(state)
}

// Complete finishes the authorization handshake: validates the returned state
// against the pending one, exchanges the code for tokens, fetches the user
// identity, and returns a fully populated credential record.
//
// No partial record is ever returned; every failure maps to one of
// [shared.ErrStateMismatch], [shared.ErrMissingCode], or
// [shared.ErrUpstreamExchange].
func (a *Authenticator) Complete(ctx context.Context, code, returnedState, pendingState string) (*models.CredentialRecord, error) {
	if returnedState == "" || pendingState == "" ||
		subtle.ConstantTimeCompare([]byte(returnedState), []byte(pendingState)) != 1 {
		return nil, fmt.Errorf("%w: callback state does not match pending handshake", shared.ErrStateMismatch)
	}

	if code == "" {
		return nil, shared.ErrMissingCode
	}

	token, err := a.config.Exchange(a.withHTTPClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange: %v", shared.ErrUpstreamExchange, err)
	}

	user, err := a.fetchIdentity(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: identity fetch: %v", shared.ErrUpstreamExchange, err)
	}

	record, err := models.NewCredentialRecord(token.AccessToken, token.RefreshToken, token.Expiry, user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUpstreamExchange, err)
	}

	a.logger.Info("authorization complete", "user", user.ID)

	return record, nil
}

// EnsureFresh returns a record whose access token is valid for at least the
// freshness margin. The common path is free: a fresh record comes back
// unchanged with no network call. The boolean reports whether a refresh
// happened, so callers know to re-persist the record.
func (a *Authenticator) EnsureFresh(ctx context.Context, record *models.CredentialRecord) (*models.CredentialRecord, bool, error) {
	if record == nil {
		return nil, false, shared.ErrNotAuthenticated
	}

	if record.Fresh(time.Now()) {
		return record, false, nil
	}

	refreshed, err := a.refresh(ctx, record)
	if err != nil {
		return nil, false, err
	}

	return refreshed, true, nil
}

// ForceRefresh mints a new access token regardless of the recorded expiry.
// Used when the provider rejects a token that still looks fresh locally,
// e.g. one revoked out-of-band.
func (a *Authenticator) ForceRefresh(ctx context.Context, record *models.CredentialRecord) (*models.CredentialRecord, error) {
	if record == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return a.refresh(ctx, record)
}

// refresh performs the refresh-token grant. Concurrent callers holding the
// same refresh token converge on one upstream call via singleflight, since
// the provider may invalidate a refresh token after its first use.
func (a *Authenticator) refresh(ctx context.Context, record *models.CredentialRecord) (*models.CredentialRecord, error) {
	if record.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, shared.ErrNoRefreshToken)
	}

	result, err, dedup := a.group.Do(record.RefreshToken, func() (any, error) {
		src := a.config.TokenSource(a.withHTTPClient(ctx), &oauth2.Token{RefreshToken: record.RefreshToken})

		token, err := src.Token()
		if err != nil {
			return nil, err
		}

		updated := *record
		updated.AccessToken = token.AccessToken
		updated.ExpiresAt = token.Expiry.UnixMilli()
		if token.RefreshToken != "" {
			// Rotation: the old refresh token may be dead from this point on,
			// so the stored value is replaced and never sent again.
			updated.RefreshToken = token.RefreshToken
		}

		if err := updated.Validate(); err != nil {
			return nil, err
		}

		return &updated, nil
	})

	if err != nil {
		a.logger.Warn("token refresh failed", "user", record.User.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	refreshed := result.(*models.CredentialRecord)
	a.logger.Debug("access token refreshed",
		"user", refreshed.User.ID,
		"expires_at", refreshed.Expiry(),
		"deduplicated", dedup)

	return refreshed, nil
}

// spotifyIdentity is the wire shape of GET /v1/me.
type spotifyIdentity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Images      []struct {
		URL string `json:"url"`
	} `json:"images"`
}

// fetchIdentity retrieves the upstream user profile with the new access token.
func (a *Authenticator) fetchIdentity(ctx context.Context, accessToken string) (models.UserProfile, error) {
	var profile models.UserProfile

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.identity, nil)
	if err != nil {
		return profile, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return profile, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return profile, fmt.Errorf("identity endpoint returned status %d", resp.StatusCode)
	}

	var identity spotifyIdentity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return profile, fmt.Errorf("failed to decode identity: %w", err)
	}

	profile = models.UserProfile{
		ID:          identity.ID,
		DisplayName: identity.DisplayName,
		Email:       identity.Email,
	}
	if len(identity.Images) > 0 {
		profile.AvatarURL = identity.Images[0].URL
	}

	return profile, nil
}

// withHTTPClient routes oauth2 library calls through the bounded-timeout client.
func (a *Authenticator) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}
