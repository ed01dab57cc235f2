package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/desertthunder/soundstats/internal/models"
)

type followers struct {
	Total int `json:"total"`
}

// Profile represents the authenticated user's Spotify profile.
type Profile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Country     string    `json:"country"`
	Product     string    `json:"product"` // premium, free, etc.
	Followers   followers `json:"followers"`
	Images      []Image   `json:"images"`
}

// Image represents an image resource.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Artist represents a Spotify artist.
type Artist struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres"`
	Images     []Image  `json:"images"`
	Popularity int      `json:"popularity"`
	URI        string   `json:"uri"`
}

// Album represents a Spotify album.
type Album struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ReleaseDate string  `json:"release_date"`
	Images      []Image `json:"images"`
	URI         string  `json:"uri"`
}

// Track represents a Spotify track.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []Artist `json:"artists"`
	Album      Album    `json:"album"`
	DurationMS int      `json:"duration_ms"`
	Explicit   bool     `json:"explicit"`
	Popularity int      `json:"popularity"`
	URI        string   `json:"uri"`
}

// TopTracksPage is a paginated response from the top tracks endpoint.
type TopTracksPage struct {
	Items    []Track `json:"items"`
	Total    int     `json:"total"`
	Limit    int     `json:"limit"`
	Offset   int     `json:"offset"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

// TopArtistsPage is a paginated response from the top artists endpoint.
type TopArtistsPage struct {
	Items    []Artist `json:"items"`
	Total    int      `json:"total"`
	Limit    int      `json:"limit"`
	Offset   int      `json:"offset"`
	Next     *string  `json:"next"`
	Previous *string  `json:"previous"`
}

// PlayedTrack is a track within a recently-played context.
type PlayedTrack struct {
	Track    Track  `json:"track"`
	PlayedAt string `json:"played_at"`
}

type cursors struct {
	After  string `json:"after"`
	Before string `json:"before"`
}

// RecentlyPlayedPage is a cursor-paginated response of recent plays.
type RecentlyPlayedPage struct {
	Items   []PlayedTrack `json:"items"`
	Limit   int           `json:"limit"`
	Next    *string       `json:"next"`
	Cursors cursors       `json:"cursors"`
}

// Valid time ranges for the top items endpoints.
const (
	TimeRangeShort  = "short_term"
	TimeRangeMedium = "medium_term"
	TimeRangeLong   = "long_term"

	defaultLimit = 20
	maxLimit     = 50
)

// normalizeTimeRange falls back to medium_term for anything unrecognized.
func normalizeTimeRange(timeRange string) string {
	switch timeRange {
	case TimeRangeShort, TimeRangeMedium, TimeRangeLong:
		return timeRange
	default:
		return TimeRangeMedium
	}
}

// clampLimit applies the default and provider maximum.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// Profile retrieves the authenticated user's profile.
func (g *Gateway) Profile(ctx context.Context, record *models.CredentialRecord) (*Profile, *models.CredentialRecord, error) {
	var profile Profile
	updated, err := g.Do(ctx, record, "GET", "/me", nil, &profile)
	if err != nil {
		return nil, updated, err
	}
	return &profile, updated, nil
}

// TopTracks retrieves the user's top tracks for the given time range.
func (g *Gateway) TopTracks(ctx context.Context, record *models.CredentialRecord, timeRange string, limit int) (*TopTracksPage, *models.CredentialRecord, error) {
	query := url.Values{
		"time_range": {normalizeTimeRange(timeRange)},
		"limit":      {strconv.Itoa(clampLimit(limit))},
	}

	var page TopTracksPage
	updated, err := g.Do(ctx, record, "GET", "/me/top/tracks", query, &page)
	if err != nil {
		return nil, updated, err
	}
	return &page, updated, nil
}

// TopArtists retrieves the user's top artists for the given time range.
func (g *Gateway) TopArtists(ctx context.Context, record *models.CredentialRecord, timeRange string, limit int) (*TopArtistsPage, *models.CredentialRecord, error) {
	query := url.Values{
		"time_range": {normalizeTimeRange(timeRange)},
		"limit":      {strconv.Itoa(clampLimit(limit))},
	}

	var page TopArtistsPage
	updated, err := g.Do(ctx, record, "GET", "/me/top/artists", query, &page)
	if err != nil {
		return nil, updated, err
	}
	return &page, updated, nil
}

// RecentlyPlayed retrieves the user's most recent plays.
func (g *Gateway) RecentlyPlayed(ctx context.Context, record *models.CredentialRecord, limit int) (*RecentlyPlayedPage, *models.CredentialRecord, error) {
	query := url.Values{
		"limit": {strconv.Itoa(clampLimit(limit))},
	}

	var page RecentlyPlayedPage
	updated, err := g.Do(ctx, record, "GET", "/me/player/recently-played", query, &page)
	if err != nil {
		return nil, updated, err
	}
	return &page, updated, nil
}

// PrimaryArtist returns the first listed artist name for display purposes.
func (t Track) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0].Name
}

// String implements a compact debug representation.
func (t Track) String() string {
	return fmt.Sprintf("%s - %s", t.PrimaryArtist(), t.Name)
}
