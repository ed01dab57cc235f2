package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/soundstats/internal/models"
	"github.com/desertthunder/soundstats/internal/shared"
)

// HistoryRepository persists [models.PlayRecord] rows.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a HistoryRepository with the given database connection.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Create inserts a play record with a generated ID. Rows that collide on the
// (user, track, played_at) uniqueness constraint are ignored, so re-archiving
// an overlapping window is a no-op.
func (r *HistoryRepository) Create(record *models.PlayRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	record.SetID(shared.GenerateID())

	query := `
		INSERT OR IGNORE INTO play_history (
			id, user_id, track_id, track_name, artist_name, album_name,
			played_at, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		record.ID(), record.UserID, record.TrackID, record.TrackName,
		record.ArtistName, record.AlbumName, record.PlayedAt, record.CreatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert play record: %w", err)
	}

	return nil
}

// CreateBatch inserts a set of play records in one transaction.
func (r *HistoryRepository) CreateBatch(records []*models.PlayRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO play_history (
			id, user_id, track_id, track_name, artist_name, album_name,
			played_at, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		if err := record.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		record.SetID(shared.GenerateID())

		_, err := stmt.Exec(
			record.ID(), record.UserID, record.TrackID, record.TrackName,
			record.ArtistName, record.AlbumName, record.PlayedAt, record.CreatedAt())
		if err != nil {
			return fmt.Errorf("failed to insert play record: %w", err)
		}
	}

	return tx.Commit()
}

// ListByUser returns a user's archived plays, most recent first.
func (r *HistoryRepository) ListByUser(userID string, limit int) ([]*models.PlayRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, track_id, track_name, artist_name, album_name,
		       played_at, created_at
		FROM play_history
		WHERE user_id = ?
		ORDER BY played_at DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query play history: %w", err)
	}
	defer rows.Close()

	var records []*models.PlayRecord
	for rows.Next() {
		var (
			id         string
			uid        string
			trackID    string
			trackName  string
			artistName string
			albumName  sql.NullString
			playedAt   time.Time
			createdAt  time.Time
		)

		if err := rows.Scan(&id, &uid, &trackID, &trackName, &artistName, &albumName, &playedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan play record: %w", err)
		}

		record := models.NewPlayRecord(uid, trackID, trackName, artistName, albumName.String, playedAt)
		record.SetID(id)
		record.SetTimestamps(createdAt, createdAt)
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate play history: %w", err)
	}

	return records, nil
}

// CountByUser returns the number of archived plays for a user.
func (r *HistoryRepository) CountByUser(userID string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM play_history WHERE user_id = ?", userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count play history: %w", err)
	}
	return count, nil
}
