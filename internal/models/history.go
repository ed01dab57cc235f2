package models

import (
	"fmt"
	"time"
)

// PlayRecord is one archived "recently played" entry for a user.
//
// Rows outlive the upstream provider's 50-item recently-played window.
type PlayRecord struct {
	id         string
	UserID     string
	TrackID    string
	TrackName  string
	ArtistName string
	AlbumName  string
	PlayedAt   time.Time
	createdAt  time.Time
	updatedAt  time.Time
}

// NewPlayRecord creates a play record with creation timestamps set to now.
func NewPlayRecord(userID, trackID, trackName, artistName, albumName string, playedAt time.Time) *PlayRecord {
	now := time.Now()
	return &PlayRecord{
		UserID:     userID,
		TrackID:    trackID,
		TrackName:  trackName,
		ArtistName: artistName,
		AlbumName:  albumName,
		PlayedAt:   playedAt,
		createdAt:  now,
		updatedAt:  now,
	}
}

func (p *PlayRecord) ID() string           { return p.id }
func (p *PlayRecord) SetID(id string)      { p.id = id }
func (p *PlayRecord) CreatedAt() time.Time { return p.createdAt }
func (p *PlayRecord) UpdatedAt() time.Time { return p.updatedAt }

// SetTimestamps restores persisted timestamps when hydrating from the database.
func (p *PlayRecord) SetTimestamps(createdAt, updatedAt time.Time) {
	p.createdAt = createdAt
	p.updatedAt = updatedAt
}

// Validate checks required fields before persistence.
func (p *PlayRecord) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("play record missing user id")
	}
	if p.TrackID == "" {
		return fmt.Errorf("play record missing track id")
	}
	if p.TrackName == "" {
		return fmt.Errorf("play record missing track name")
	}
	if p.PlayedAt.IsZero() {
		return fmt.Errorf("play record missing played_at")
	}
	return nil
}
