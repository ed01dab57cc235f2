package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/soundstats/internal/models"
	"github.com/desertthunder/soundstats/internal/repositories"
	"github.com/desertthunder/soundstats/internal/services"
	"github.com/desertthunder/soundstats/internal/session"
	"github.com/desertthunder/soundstats/internal/shared"
)

// StatsHandler proxies the listening stats resources through the
// authenticated request gateway.
type StatsHandler struct {
	gateway *services.Gateway
	store   *session.Store
	history *repositories.HistoryRepository
	logger  *log.Logger
}

// NewStatsHandler creates a StatsHandler. history may be nil, in which case
// recently-played fetches are not archived.
func NewStatsHandler(gateway *services.Gateway, store *session.Store, history *repositories.HistoryRepository, logger *log.Logger) *StatsHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &StatsHandler{
		gateway: gateway,
		store:   store,
		history: history,
		logger:  logger,
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *StatsHandler) Routes() []string {
	return []string{"/api/me", "/api/top/tracks", "/api/top/artists", "/api/recent", "/api/recent/archive"}
}

// ServeHTTP dispatches to the stats endpoints. All of them are GET only.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}

	record, ok := h.store.Load(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not_authenticated")
		return
	}

	switch r.URL.Path {
	case "/api/me":
		h.profile(w, r, record)
	case "/api/top/tracks":
		h.topTracks(w, r, record)
	case "/api/top/artists":
		h.topArtists(w, r, record)
	case "/api/recent":
		h.recentlyPlayed(w, r, record)
	case "/api/recent/archive":
		h.archive(w, r, record)
	default:
		writeError(w, http.StatusNotFound, "not_found")
	}
}

func (h *StatsHandler) profile(w http.ResponseWriter, r *http.Request, record *models.CredentialRecord) {
	profile, updated, err := h.gateway.Profile(r.Context(), record)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.persist(w, r, record, updated)
	writeJSON(w, http.StatusOK, profile)
}

func (h *StatsHandler) topTracks(w http.ResponseWriter, r *http.Request, record *models.CredentialRecord) {
	page, updated, err := h.gateway.TopTracks(r.Context(), record, r.URL.Query().Get("time_range"), limitParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.persist(w, r, record, updated)
	writeJSON(w, http.StatusOK, page)
}

func (h *StatsHandler) topArtists(w http.ResponseWriter, r *http.Request, record *models.CredentialRecord) {
	page, updated, err := h.gateway.TopArtists(r.Context(), record, r.URL.Query().Get("time_range"), limitParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.persist(w, r, record, updated)
	writeJSON(w, http.StatusOK, page)
}

func (h *StatsHandler) recentlyPlayed(w http.ResponseWriter, r *http.Request, record *models.CredentialRecord) {
	page, updated, err := h.gateway.RecentlyPlayed(r.Context(), record, limitParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.archivePlays(record.User.ID, page)

	h.persist(w, r, record, updated)
	writeJSON(w, http.StatusOK, page)
}

// archive serves locally archived plays without touching the upstream API.
func (h *StatsHandler) archive(w http.ResponseWriter, r *http.Request, record *models.CredentialRecord) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "archive_disabled")
		return
	}

	records, err := h.history.ListByUser(record.User.ID, limitParam(r))
	if err != nil {
		h.logger.Error("failed to read play history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	type archivedPlay struct {
		TrackID    string    `json:"track_id"`
		TrackName  string    `json:"track_name"`
		ArtistName string    `json:"artist_name"`
		AlbumName  string    `json:"album_name,omitempty"`
		PlayedAt   time.Time `json:"played_at"`
	}

	plays := make([]archivedPlay, 0, len(records))
	for _, rec := range records {
		plays = append(plays, archivedPlay{
			TrackID:    rec.TrackID,
			TrackName:  rec.TrackName,
			ArtistName: rec.ArtistName,
			AlbumName:  rec.AlbumName,
			PlayedAt:   rec.PlayedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": plays, "total": len(plays)})
}

// archivePlays snapshots a recently-played page into the local archive.
// Best-effort: failures are logged and never fail the request.
func (h *StatsHandler) archivePlays(userID string, page *services.RecentlyPlayedPage) {
	if h.history == nil || page == nil || len(page.Items) == 0 {
		return
	}

	var records []*models.PlayRecord
	for _, item := range page.Items {
		playedAt, err := time.Parse(time.RFC3339, item.PlayedAt)
		if err != nil {
			continue
		}

		records = append(records, models.NewPlayRecord(
			userID,
			item.Track.ID,
			item.Track.Name,
			item.Track.PrimaryArtist(),
			item.Track.Album.Name,
			playedAt,
		))
	}

	if err := h.history.CreateBatch(records); err != nil {
		h.logger.Warn("failed to archive plays", "user", userID, "error", err)
	}
}

// persist re-commits the credential record when the gateway refreshed it,
// before the response body is written, so the client's next request carries
// the rotated credentials.
func (h *StatsHandler) persist(w http.ResponseWriter, r *http.Request, original, updated *models.CredentialRecord) {
	if updated == nil || updated == original {
		return
	}

	if err := h.store.Save(w, r, updated); err != nil {
		h.logger.Error("failed to persist refreshed credentials", "error", err)
	}
}

// fail maps gateway errors onto the response taxonomy. Refresh and
// authorization failures tear the session down before surfacing, so the
// system never lingers half-authenticated.
func (h *StatsHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrRefreshFailed) || errors.Is(err, shared.ErrUnauthenticated) || errors.Is(err, shared.ErrNotAuthenticated) {
		if clearErr := h.store.Clear(w, r); clearErr != nil {
			h.logger.Error("failed to clear session", "error", clearErr)
		}
		writeError(w, http.StatusUnauthorized, "reauthentication_required")
		return
	}

	var upstream *services.UpstreamError
	if errors.As(err, &upstream) {
		if upstream.Status > 0 {
			// Passthrough keeps the upstream's own content type; the body is
			// not guaranteed to be JSON.
			if upstream.ContentType != "" {
				w.Header().Set("Content-Type", upstream.ContentType)
			}
			w.WriteHeader(upstream.Status)
			w.Write(upstream.Body)
			return
		}

		h.logger.Warn("upstream unreachable", "error", err)
		writeError(w, http.StatusBadGateway, "upstream_unreachable")
		return
	}

	h.logger.Error("unexpected gateway failure", "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error")
}

// limitParam parses the pass-through limit query parameter; the gateway
// applies the default and provider maximum.
func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}

	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}

	return limit
}
