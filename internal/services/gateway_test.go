package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/soundstats/internal/models"
	"github.com/desertthunder/soundstats/internal/shared"
	itesting "github.com/desertthunder/soundstats/internal/testing"
	"golang.org/x/time/rate"
)

func testGateway(t *testing.T, refresher Refresher, upstream http.Handler) (*Gateway, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	g := NewGateway(refresher, shared.NewLogger(io.Discard),
		WithBaseURL(srv.URL),
		WithLimiter(rate.NewLimiter(rate.Inf, 1)),
	)

	return g, srv
}

func freshRecord() *models.CredentialRecord {
	return itesting.ValidRecord(time.Now().Add(time.Hour).UnixMilli())
}

func TestGatewayDo(t *testing.T) {
	ctx := context.Background()

	t.Run("Fresh Credential Passthrough", func(t *testing.T) {
		refresher := &itesting.MockRefresher{}

		var gotAuth atomic.Value
		g, _ := testGateway(t, refresher, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth.Store(r.Header.Get("Authorization"))
			fmt.Fprint(w, `{"id":"user123"}`)
		}))

		record := freshRecord()

		var out struct {
			ID string `json:"id"`
		}
		updated, err := g.Do(ctx, record, "GET", "/me", nil, &out)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if out.ID != "user123" {
			t.Errorf("unexpected decoded body: %+v", out)
		}

		if updated != record {
			t.Error("expected the same record back when no refresh happened")
		}

		if gotAuth.Load() != "Bearer "+record.AccessToken {
			t.Errorf("unexpected Authorization header: %v", gotAuth.Load())
		}

		if refresher.ForceCalls.Load() != 0 {
			t.Errorf("expected no forced refreshes, got %d", refresher.ForceCalls.Load())
		}
	})

	t.Run("Refresh Failure Short-Circuits", func(t *testing.T) {
		refresher := &itesting.MockRefresher{
			EnsureFunc: func(ctx context.Context, record *models.CredentialRecord) (*models.CredentialRecord, bool, error) {
				return nil, false, fmt.Errorf("%w: invalid_grant", shared.ErrRefreshFailed)
			},
		}

		var hits atomic.Int64
		g, _ := testGateway(t, refresher, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		}))

		_, err := g.Do(ctx, freshRecord(), "GET", "/me", nil, nil)
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}

		if hits.Load() != 0 {
			t.Errorf("expected no upstream calls, got %d", hits.Load())
		}
	})

	t.Run("401 Forces One Refresh And Retry", func(t *testing.T) {
		retried := itesting.ValidRecord(time.Now().Add(time.Hour).UnixMilli())
		retried.AccessToken = "retried_access_token"

		refresher := &itesting.MockRefresher{
			ForceFunc: func(ctx context.Context, record *models.CredentialRecord) (*models.CredentialRecord, error) {
				return retried, nil
			},
		}

		var hits atomic.Int64
		g, _ := testGateway(t, refresher, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			if r.Header.Get("Authorization") != "Bearer retried_access_token" {
				t.Errorf("retry used wrong token: %s", r.Header.Get("Authorization"))
			}
			fmt.Fprint(w, `{"id":"user123"}`)
		}))

		updated, err := g.Do(ctx, freshRecord(), "GET", "/me", nil, nil)
		if err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}

		if updated != retried {
			t.Error("expected the refreshed record back")
		}

		if hits.Load() != 2 {
			t.Errorf("expected exactly two upstream calls, got %d", hits.Load())
		}

		if refresher.ForceCalls.Load() != 1 {
			t.Errorf("expected exactly one forced refresh, got %d", refresher.ForceCalls.Load())
		}
	})

	t.Run("Second 401 Means Unauthenticated", func(t *testing.T) {
		refresher := &itesting.MockRefresher{}

		var hits atomic.Int64
		g, _ := testGateway(t, refresher, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))

		_, err := g.Do(ctx, freshRecord(), "GET", "/me", nil, nil)
		if !errors.Is(err, shared.ErrUnauthenticated) {
			t.Errorf("expected ErrUnauthenticated, got %v", err)
		}

		// Never a third attempt.
		if hits.Load() != 2 {
			t.Errorf("expected exactly two upstream calls, got %d", hits.Load())
		}

		if refresher.ForceCalls.Load() != 1 {
			t.Errorf("expected exactly one forced refresh, got %d", refresher.ForceCalls.Load())
		}
	})

	t.Run("Non-Auth Failure Is Not Retried", func(t *testing.T) {
		refresher := &itesting.MockRefresher{}

		var hits atomic.Int64
		g, _ := testGateway(t, refresher, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"status":503,"message":"down"}}`)
		}))

		_, err := g.Do(ctx, freshRecord(), "GET", "/me", nil, nil)

		var upstream *UpstreamError
		if !errors.As(err, &upstream) {
			t.Fatalf("expected UpstreamError, got %v", err)
		}

		if upstream.Status != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", upstream.Status)
		}

		if upstream.ContentType != "application/problem+json" {
			t.Errorf("expected the upstream content type to be captured, got %q", upstream.ContentType)
		}

		if hits.Load() != 1 {
			t.Errorf("expected a single upstream call, got %d", hits.Load())
		}

		if refresher.ForceCalls.Load() != 0 {
			t.Errorf("expected no forced refreshes, got %d", refresher.ForceCalls.Load())
		}
	})

	t.Run("Transport Failure", func(t *testing.T) {
		refresher := &itesting.MockRefresher{}
		g, srv := testGateway(t, refresher, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		_, err := g.Do(ctx, freshRecord(), "GET", "/me", nil, nil)

		var upstream *UpstreamError
		if !errors.As(err, &upstream) {
			t.Fatalf("expected UpstreamError, got %v", err)
		}

		if upstream.Err == nil || upstream.Status != 0 {
			t.Errorf("expected a transport-level error, got %+v", upstream)
		}
	})

	t.Run("Decode Failure", func(t *testing.T) {
		refresher := &itesting.MockRefresher{}
		g, _ := testGateway(t, refresher, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `not json`)
		}))

		var out map[string]any
		_, err := g.Do(ctx, freshRecord(), "GET", "/me", nil, &out)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})
}

func TestGatewayEndpoints(t *testing.T) {
	ctx := context.Background()

	t.Run("Top Tracks Defaults", func(t *testing.T) {
		refresher := &itesting.MockRefresher{}
		g, _ := testGateway(t, refresher, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/me/top/tracks" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}

			q := r.URL.Query()
			if q.Get("time_range") != "medium_term" || q.Get("limit") != "20" {
				t.Errorf("unexpected query defaults: %s", r.URL.RawQuery)
			}

			json.NewEncoder(w).Encode(TopTracksPage{
				Items: []Track{{ID: "t1", Name: "Song", Artists: []Artist{{Name: "Artist"}}}},
				Total: 1,
			})
		}))

		page, _, err := g.TopTracks(ctx, freshRecord(), "", 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(page.Items) != 1 || page.Items[0].PrimaryArtist() != "Artist" {
			t.Errorf("unexpected page: %+v", page)
		}
	})

	t.Run("Top Artists Clamps Limit", func(t *testing.T) {
		refresher := &itesting.MockRefresher{}
		g, _ := testGateway(t, refresher, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("limit"); got != "50" {
				t.Errorf("expected limit clamped to 50, got %s", got)
			}
			json.NewEncoder(w).Encode(TopArtistsPage{})
		}))

		if _, _, err := g.TopArtists(ctx, freshRecord(), "long_term", 500); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("Recently Played", func(t *testing.T) {
		refresher := &itesting.MockRefresher{}
		g, _ := testGateway(t, refresher, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/me/player/recently-played" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			json.NewEncoder(w).Encode(RecentlyPlayedPage{
				Items: []PlayedTrack{{Track: Track{ID: "t1"}, PlayedAt: "2024-01-15T10:00:00Z"}},
			})
		}))

		page, _, err := g.RecentlyPlayed(ctx, freshRecord(), 10)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(page.Items) != 1 || page.Items[0].Track.ID != "t1" {
			t.Errorf("unexpected page: %+v", page)
		}
	})

	t.Run("Expired Credential Refreshes Before Call", func(t *testing.T) {
		stale := itesting.ValidRecord(time.Now().Add(-time.Minute).UnixMilli())
		minted := itesting.ValidRecord(time.Now().Add(55 * time.Minute).UnixMilli())
		minted.AccessToken = "minted_access_token"

		refresher := &itesting.MockRefresher{
			EnsureFunc: func(ctx context.Context, record *models.CredentialRecord) (*models.CredentialRecord, bool, error) {
				if record.Fresh(time.Now()) {
					return record, false, nil
				}
				return minted, true, nil
			},
		}

		var hits atomic.Int64
		g, _ := testGateway(t, refresher, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			if r.Header.Get("Authorization") != "Bearer minted_access_token" {
				t.Errorf("call used stale token: %s", r.Header.Get("Authorization"))
			}
			json.NewEncoder(w).Encode(Profile{ID: "user123"})
		}))

		profile, updated, err := g.Profile(ctx, stale)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if profile.ID != "user123" {
			t.Errorf("unexpected profile: %+v", profile)
		}

		if updated != minted {
			t.Error("expected the refreshed record to be returned for persistence")
		}

		if hits.Load() != 1 {
			t.Errorf("expected a single upstream call, got %d", hits.Load())
		}

		if updated.ExpiresAt <= time.Now().Add(50*time.Minute).UnixMilli() {
			t.Errorf("expected a fresh expiry, got %d", updated.ExpiresAt)
		}
	})
}

func TestQueryHelpers(t *testing.T) {
	t.Run("Time Range", func(t *testing.T) {
		cases := map[string]string{
			"short_term":  "short_term",
			"medium_term": "medium_term",
			"long_term":   "long_term",
			"":            "medium_term",
			"bogus":       "medium_term",
		}

		for in, want := range cases {
			if got := normalizeTimeRange(in); got != want {
				t.Errorf("normalizeTimeRange(%q) = %q, want %q", in, got, want)
			}
		}
	})

	t.Run("Limit", func(t *testing.T) {
		cases := map[int]int{
			0:   20,
			-5:  20,
			1:   1,
			50:  50,
			51:  50,
			500: 50,
		}

		for in, want := range cases {
			if got := clampLimit(in); got != want {
				t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
			}
		}
	})
}
