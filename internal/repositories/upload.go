package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/bpmx/internal/models"
)

const uploadColumns = `id, filename, mime_type, size, object_key, track_id, status, error, created_at, updated_at`

// UploadRepository journals upload attempts.
type UploadRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewUploadRepository creates a new UploadRepository with the given database connection
func NewUploadRepository(db *sql.DB) *UploadRepository {
	return &UploadRepository{db: db, now: time.Now}
}

// Record inserts the attempt or, when its id already exists, updates it in place.
func (r *UploadRepository) Record(ctx context.Context, rec *models.UploadRecord) error {
	if rec.ID == "" || rec.Filename == "" || rec.Status == "" {
		return fmt.Errorf("validation failed: id, filename and status are required")
	}

	now := r.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `
		INSERT INTO uploads (` + uploadColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			object_key = excluded.object_key,
			track_id = excluded.track_id,
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Filename,
		rec.MimeType,
		rec.Size,
		nullString(rec.ObjectKey),
		nullString(rec.TrackID),
		string(rec.Status),
		nullString(rec.Error),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record upload: %w", err)
	}
	return nil
}

// Get retrieves an upload attempt by id.
func (r *UploadRepository) Get(ctx context.Context, id string) (*models.UploadRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = ?`, id)

	rec, err := scanUpload(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("upload not found: %s", id)
	}
	return rec, err
}

// List returns attempts newest first, optionally filtered by status.
func (r *UploadRepository) List(ctx context.Context, status models.UploadStatus) ([]models.UploadRecord, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads`
	args := []any{}

	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	records := []models.UploadRecord{}
	for rows.Next() {
		rec, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

// Orphans returns attempts whose object was stored but never registered.
func (r *UploadRepository) Orphans(ctx context.Context) ([]models.UploadRecord, error) {
	return r.List(ctx, models.UploadOrphaned)
}

// Delete removes an attempt from the journal.
func (r *UploadRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	return requireRow(result, "upload "+id)
}

func scanUpload(s scanner) (*models.UploadRecord, error) {
	var (
		rec       models.UploadRecord
		status    string
		objectKey sql.NullString
		trackID   sql.NullString
		errText   sql.NullString
	)

	err := s.Scan(&rec.ID, &rec.Filename, &rec.MimeType, &rec.Size, &objectKey, &trackID, &status, &errText, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan upload: %w", err)
	}

	rec.Status = models.UploadStatus(status)
	rec.ObjectKey = objectKey.String
	rec.TrackID = trackID.String
	rec.Error = errText.String
	return &rec, nil
}
