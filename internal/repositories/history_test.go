package repositories

import (
	"database/sql"
	"testing"
	"time"

	"github.com/desertthunder/soundstats/internal/models"
	"github.com/desertthunder/soundstats/internal/shared"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// One connection: every :memory: connection is its own database.
	shared.ConfigureDatabase(db, 1, 1)

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func TestHistoryRepository(t *testing.T) {
	playedAt := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	t.Run("Create", func(t *testing.T) {
		repo := NewHistoryRepository(testDB(t))

		record := models.NewPlayRecord("u1", "t1", "Song", "Artist", "Album", playedAt)
		if err := repo.Create(record); err != nil {
			t.Fatalf("create failed: %v", err)
		}

		if record.ID() == "" {
			t.Error("expected an ID to be generated")
		}

		count, err := repo.CountByUser("u1")
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 1 {
			t.Errorf("expected 1 row, got %d", count)
		}
	})

	t.Run("Create Rejects Invalid Record", func(t *testing.T) {
		repo := NewHistoryRepository(testDB(t))

		record := models.NewPlayRecord("", "t1", "Song", "Artist", "", playedAt)
		if err := repo.Create(record); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("Duplicate Play Is Ignored", func(t *testing.T) {
		repo := NewHistoryRepository(testDB(t))

		for i := 0; i < 2; i++ {
			record := models.NewPlayRecord("u1", "t1", "Song", "Artist", "Album", playedAt)
			if err := repo.Create(record); err != nil {
				t.Fatalf("create %d failed: %v", i, err)
			}
		}

		count, _ := repo.CountByUser("u1")
		if count != 1 {
			t.Errorf("expected duplicate to be ignored, got %d rows", count)
		}
	})

	t.Run("CreateBatch", func(t *testing.T) {
		repo := NewHistoryRepository(testDB(t))

		records := []*models.PlayRecord{
			models.NewPlayRecord("u1", "t1", "First", "Artist", "", playedAt),
			models.NewPlayRecord("u1", "t2", "Second", "Artist", "", playedAt.Add(time.Minute)),
			// Overlaps the first row; the batch still commits.
			models.NewPlayRecord("u1", "t1", "First", "Artist", "", playedAt),
		}

		if err := repo.CreateBatch(records); err != nil {
			t.Fatalf("batch failed: %v", err)
		}

		count, _ := repo.CountByUser("u1")
		if count != 2 {
			t.Errorf("expected 2 rows after dedup, got %d", count)
		}
	})

	t.Run("Empty Batch Is A No-Op", func(t *testing.T) {
		repo := NewHistoryRepository(testDB(t))
		if err := repo.CreateBatch(nil); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("ListByUser", func(t *testing.T) {
		repo := NewHistoryRepository(testDB(t))

		batch := []*models.PlayRecord{
			models.NewPlayRecord("u1", "t1", "Oldest", "Artist", "", playedAt),
			models.NewPlayRecord("u1", "t2", "Middle", "Artist", "", playedAt.Add(time.Hour)),
			models.NewPlayRecord("u1", "t3", "Newest", "Artist", "", playedAt.Add(2*time.Hour)),
			models.NewPlayRecord("u2", "t4", "Other User", "Artist", "", playedAt),
		}
		if err := repo.CreateBatch(batch); err != nil {
			t.Fatalf("batch failed: %v", err)
		}

		t.Run("Most Recent First", func(t *testing.T) {
			records, err := repo.ListByUser("u1", 0)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}

			if len(records) != 3 {
				t.Fatalf("expected 3 rows, got %d", len(records))
			}

			if records[0].TrackName != "Newest" || records[2].TrackName != "Oldest" {
				t.Errorf("unexpected order: %s .. %s", records[0].TrackName, records[2].TrackName)
			}
		})

		t.Run("Limit Applies", func(t *testing.T) {
			records, err := repo.ListByUser("u1", 1)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}

			if len(records) != 1 || records[0].TrackName != "Newest" {
				t.Errorf("expected only the newest row, got %+v", records)
			}
		})

		t.Run("Scoped To User", func(t *testing.T) {
			records, err := repo.ListByUser("u2", 0)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}

			if len(records) != 1 || records[0].TrackName != "Other User" {
				t.Errorf("expected only u2's row, got %+v", records)
			}
		})
	})

	t.Run("CountByUser Empty", func(t *testing.T) {
		repo := NewHistoryRepository(testDB(t))

		count, err := repo.CountByUser("nobody")
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 0 {
			t.Errorf("expected 0, got %d", count)
		}
	})
}
