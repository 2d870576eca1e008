package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/shared"
)

const trackColumns = `id, title, source_filename, mime_type, duration_sec, original_object_key, created_at, cached_at`

// TrackRepository keeps a local copy of the backend track listing.
type TrackRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db, now: time.Now}
}

const upsertTrack = `
	INSERT INTO tracks (` + trackColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		source_filename = excluded.source_filename,
		mime_type = excluded.mime_type,
		duration_sec = excluded.duration_sec,
		original_object_key = excluded.original_object_key,
		created_at = excluded.created_at,
		cached_at = excluded.cached_at
`

// Upsert stores tracks, updating rows that already exist.
func (r *TrackRepository) Upsert(ctx context.Context, tracks ...models.Track) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.upsert(ctx, tx, tracks); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tracks: %w", err)
	}
	return nil
}

// Replace swaps the cached listing for tracks in one transaction.
func (r *TrackRepository) Replace(ctx context.Context, tracks []models.Track) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tracks`); err != nil {
		return fmt.Errorf("failed to clear tracks: %w", err)
	}
	if err := r.upsert(ctx, tx, tracks); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tracks: %w", err)
	}
	return nil
}

func (r *TrackRepository) upsert(ctx context.Context, tx *sql.Tx, tracks []models.Track) error {
	stmt, err := tx.PrepareContext(ctx, upsertTrack)
	if err != nil {
		return fmt.Errorf("failed to prepare track upsert: %w", err)
	}
	defer stmt.Close()

	cachedAt := r.now().UTC()
	for _, t := range tracks {
		if t.ID == "" || t.SourceFilename == "" {
			return fmt.Errorf("validation failed: track id and source filename are required")
		}
		_, err := stmt.ExecContext(ctx,
			t.ID,
			nullStringPtr(t.Title),
			t.SourceFilename,
			t.MimeType,
			nullIntPtr(t.DurationSec),
			t.OriginalObjectKey,
			t.CreatedAt,
			cachedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert track %s: %w", t.ID, err)
		}
	}
	return nil
}

// Get retrieves a cached track by backend id.
func (r *TrackRepository) Get(ctx context.Context, id string) (*models.CachedTrack, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ?`, id)

	track, err := scanTrack(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
	}
	return track, err
}

// List returns cached tracks, newest first.
func (r *TrackRepository) List(ctx context.Context) ([]models.CachedTrack, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+trackColumns+` FROM tracks ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	tracks := []models.CachedTrack{}
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, *track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tracks, nil
}

func scanTrack(s scanner) (*models.CachedTrack, error) {
	var (
		t        models.CachedTrack
		title    sql.NullString
		duration sql.NullInt64
	)

	err := s.Scan(&t.ID, &title, &t.SourceFilename, &t.MimeType, &duration, &t.OriginalObjectKey, &t.CreatedAt, &t.CachedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	if title.Valid {
		t.Title = &title.String
	}
	if duration.Valid {
		d := int(duration.Int64)
		t.DurationSec = &d
	}
	return &t, nil
}
