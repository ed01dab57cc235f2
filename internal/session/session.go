// package session implements the cookie-backed credential store.
//
// One signed (and, when a block key is configured, encrypted) cookie carries
// the serialized [models.CredentialRecord]. A second short-lived cookie holds
// the pending anti-forgery state token for an in-flight authorization
// handshake, so an abandoned login never touches the main session.
package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/soundstats/internal/models"
	"github.com/desertthunder/soundstats/internal/shared"
	"github.com/gorilla/sessions"
)

const (
	// credentialsKey is the session value slot holding the serialized record.
	credentialsKey = "credentials"

	// stateKey is the state-cookie value slot holding the pending state token.
	stateKey = "state"

	// issuedKey is the state-cookie value slot holding the issue time, checked
	// on redemption so an old state value is rejected even if the browser
	// still presents the cookie.
	issuedKey = "issued_at"

	// StateTTL bounds how long a pending handshake stays redeemable.
	StateTTL = 10 * time.Minute

	// DefaultMaxAge bounds the outer session lifetime independent of the
	// inner access token expiry.
	DefaultMaxAge = 24 * time.Hour
)

// Store wraps two [sessions.CookieStore] instances with typed load/save/clear
// operations: one for the credential record, one for the pending handshake
// state. They are separate so each cookie's codec enforces its own lifetime.
type Store struct {
	cookies   *sessions.CookieStore
	states    *sessions.CookieStore
	name      string
	stateName string
}

// NewStore creates a Store from the session configuration.
//
// The hash key is required; the block key is optional and enables encryption
// of the cookie payload in addition to the HMAC signature.
func NewStore(cfg shared.SessionConfig) (*Store, error) {
	if cfg.HashKey == "" {
		return nil, fmt.Errorf("%w: session hash_key is required", shared.ErrInvalidConfig)
	}

	newCookieStore := func() *sessions.CookieStore {
		if cfg.BlockKey != "" {
			return sessions.NewCookieStore([]byte(cfg.HashKey), []byte(cfg.BlockKey))
		}
		return sessions.NewCookieStore([]byte(cfg.HashKey))
	}

	maxAge := DefaultMaxAge
	if cfg.MaxAgeHours > 0 {
		maxAge = time.Duration(cfg.MaxAgeHours) * time.Hour
	}

	sameSite := http.SameSiteLaxMode
	secure := false
	if cfg.CrossSite {
		// Cross-origin deployments need an explicit opt-in; SameSite=None
		// requires Secure per the cookie spec.
		sameSite = http.SameSiteNoneMode
		secure = true
	}

	cookies := newCookieStore()
	cookies.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	}
	// MaxAge propagates the lifetime into the securecookie codecs, so an old
	// cookie value is rejected server-side, not just expired client-side.
	cookies.MaxAge(int(maxAge.Seconds()))

	states := newCookieStore()
	states.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	}
	states.MaxAge(int(StateTTL.Seconds()))

	name := cfg.CookieName
	if name == "" {
		name = "soundstats_session"
	}

	return &Store{
		cookies:   cookies,
		states:    states,
		name:      name,
		stateName: name + "_state",
	}, nil
}

// Load returns the credential record attached to the request, or false when
// the session is absent, unreadable, or fails validation. A record with only
// one of the two tokens is discarded rather than propagated.
func (s *Store) Load(r *http.Request) (*models.CredentialRecord, bool) {
	sess, err := s.cookies.Get(r, s.name)
	if err != nil {
		return nil, false
	}

	raw, ok := sess.Values[credentialsKey].(string)
	if !ok || raw == "" {
		return nil, false
	}

	var record models.CredentialRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, false
	}

	if err := record.Validate(); err != nil {
		return nil, false
	}

	return &record, true
}

// Save commits the record to the session cookie in a single write.
//
// Callers must invoke Save before writing the response body so the client's
// next request observes the updated credentials.
func (s *Store) Save(w http.ResponseWriter, r *http.Request, record *models.CredentialRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize credential record: %w", err)
	}

	sess, _ := s.cookies.Get(r, s.name)
	sess.Values[credentialsKey] = string(raw)

	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("failed to write session cookie: %w", err)
	}

	return nil
}

// Clear destroys the session, expiring the cookie on the client.
func (s *Store) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := s.cookies.Get(r, s.name)
	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1

	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("failed to clear session cookie: %w", err)
	}

	return nil
}

// SetState stores the pending handshake state token in its dedicated
// short-TTL cookie, stamped with the issue time.
func (s *Store) SetState(w http.ResponseWriter, r *http.Request, state string) error {
	sess, _ := s.states.Get(r, s.stateName)
	sess.Values[stateKey] = state
	sess.Values[issuedKey] = time.Now().Unix()

	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("failed to write state cookie: %w", err)
	}

	return nil
}

// TakeState returns the pending state token and expires its cookie, making
// the value single-use regardless of how the handshake ends. A token issued
// more than [StateTTL] ago is rejected even when the cookie still decodes.
func (s *Store) TakeState(w http.ResponseWriter, r *http.Request) (string, bool) {
	sess, err := s.states.Get(r, s.stateName)
	if err != nil {
		return "", false
	}

	state, ok := sess.Values[stateKey].(string)
	issued, issuedOK := sess.Values[issuedKey].(int64)

	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	sess.Save(r, w)

	if !ok || state == "" || !issuedOK {
		return "", false
	}

	if time.Since(time.Unix(issued, 0)) > StateTTL {
		return "", false
	}

	return state, true
}
