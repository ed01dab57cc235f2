// Package repositories implements SQLite persistence for archived listening
// history.
//
// The provider only exposes the most recent 50 plays; [HistoryRepository]
// snapshots each successful recently-played fetch so the archive grows past
// that window. Inserts are idempotent on (user, track, played_at), so
// overlapping fetches never duplicate rows.
package repositories
