package server

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/soundstats/internal/auth"
	"github.com/desertthunder/soundstats/internal/session"
	"github.com/desertthunder/soundstats/internal/shared"
)

// AuthHandler drives the browser-facing authorization flow.
// Implements the [Handler] interface for registration with a [Router].
type AuthHandler struct {
	auth          *auth.Authenticator
	store         *session.Store
	frontendURL   string
	errorRedirect string
	logger        *log.Logger
}

// NewAuthHandler creates an AuthHandler. frontendURL is where the browser
// lands after a successful login; errorRedirect receives flow failures with a
// machine-readable reason query parameter.
func NewAuthHandler(authenticator *auth.Authenticator, store *session.Store, frontendURL, errorRedirect string, logger *log.Logger) *AuthHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &AuthHandler{
		auth:          authenticator,
		store:         store,
		frontendURL:   frontendURL,
		errorRedirect: errorRedirect,
		logger:        logger,
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *AuthHandler) Routes() []string {
	return []string{"/auth/login", "/auth/callback", "/auth/logout", "/auth/status"}
}

// ServeHTTP dispatches to the flow endpoints.
func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/auth/login":
		h.login(w, r)
	case "/auth/callback":
		h.callback(w, r)
	case "/auth/logout":
		h.logout(w, r)
	case "/auth/status":
		h.status(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found")
	}
}

// login begins the handshake: one short-lived state value is created and the
// browser is sent to the provider's authorize URL.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}

	state, err := shared.GenerateState()
	if err != nil {
		h.logger.Error("failed to generate state token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	if err := h.store.SetState(w, r, state); err != nil {
		h.logger.Error("failed to persist state token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusFound)
}

// callback completes the handshake. The pending state cookie is consumed
// whether or not the exchange succeeds, so a state value is single-use.
func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}

	pending, _ := h.store.TakeState(w, r)

	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		h.logger.Warn("provider returned authorization error", "error", errParam)
	}

	record, err := h.auth.Complete(r.Context(), query.Get("code"), query.Get("state"), pending)
	if err != nil {
		h.logger.Warn("authorization flow failed", "error", err)
		h.redirectError(w, r, err)
		return
	}

	if err := h.store.Save(w, r, record); err != nil {
		h.logger.Error("failed to commit credential record", "error", err)
		h.redirectError(w, r, shared.ErrUpstreamExchange)
		return
	}

	http.Redirect(w, r, h.frontendURL, http.StatusFound)
}

// logout destroys the session.
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}

	if err := h.store.Clear(w, r); err != nil {
		h.logger.Error("failed to clear session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// statusResponse is the JSON shape of /auth/status.
type statusResponse struct {
	Authenticated bool `json:"authenticated"`
	User          any  `json:"user,omitempty"`
}

// status reports whether a valid (or refreshable) session exists.
func (h *AuthHandler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}

	record, ok := h.store.Load(r)
	if !ok {
		writeJSON(w, http.StatusOK, statusResponse{Authenticated: false})
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Authenticated: true, User: record.User})
}

// redirectError sends the browser to the error destination with a reason code.
func (h *AuthHandler) redirectError(w http.ResponseWriter, r *http.Request, err error) {
	reason := "exchange_failed"
	switch {
	case errors.Is(err, shared.ErrStateMismatch):
		reason = "state_mismatch"
	case errors.Is(err, shared.ErrMissingCode):
		reason = "missing_code"
	}

	target := h.errorRedirect
	if u, parseErr := url.Parse(target); parseErr == nil {
		q := u.Query()
		q.Set("reason", reason)
		u.RawQuery = q.Encode()
		target = u.String()
	}

	http.Redirect(w, r, target, http.StatusFound)
}
