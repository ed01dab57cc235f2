package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/soundstats/internal/shared"
)

// FreshnessMargin is the safety window applied before the literal access token
// expiry, so in-flight upstream calls never race a token that lapses mid-request.
const FreshnessMargin = 60 * time.Second

// UserProfile is the minimal identity snapshot captured at authorization time.
// Advisory only, never used for authorization decisions.
type UserProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// CredentialRecord holds the upstream authorization for one session: the
// short-lived access token, the long-lived refresh token, and the absolute
// access token expiry in milliseconds since the epoch.
//
// A record is either absent (unauthenticated) or carries both tokens.
// Partially populated records are rejected at the parse boundary.
type CredentialRecord struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresAt    int64       `json:"expires_at"`
	User         UserProfile `json:"user"`
}

// NewCredentialRecord builds a validated record from freshly exchanged tokens.
func NewCredentialRecord(accessToken, refreshToken string, expiry time.Time, user UserProfile) (*CredentialRecord, error) {
	record := &CredentialRecord{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiry.UnixMilli(),
		User:         user,
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}

	return record, nil
}

// Validate enforces the record invariant: both tokens non-empty.
func (c *CredentialRecord) Validate() error {
	if c.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", shared.ErrInvalidRecord)
	}
	if c.RefreshToken == "" {
		return fmt.Errorf("%w: empty refresh token", shared.ErrInvalidRecord)
	}
	return nil
}

// Fresh reports whether the access token is still valid for at least
// [FreshnessMargin] past now. A missing or unparseable expiry counts as
// expired, forcing a refresh rather than risking a stale token.
func (c *CredentialRecord) Fresh(now time.Time) bool {
	if c.ExpiresAt <= 0 {
		return false
	}
	return c.ExpiresAt-now.UnixMilli() > FreshnessMargin.Milliseconds()
}

// Expiry returns the access token expiry as a [time.Time].
func (c *CredentialRecord) Expiry() time.Time {
	return time.UnixMilli(c.ExpiresAt)
}
