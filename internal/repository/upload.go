package repository

import (
	"context"
	"fmt"

	"daily-album-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UploadRepository handles database operations for daily uploads
type UploadRepository struct {
	db *pgxpool.Pool
}

// NewUploadRepository creates a new upload repository
func NewUploadRepository(db *pgxpool.Pool) *UploadRepository {
	return &UploadRepository{db: db}
}

const uploadColumns = `id, conversation_id, user_id, date_id, image_url, storage_key, caption, created_at, updated_at`

func scanUpload(row pgx.Row) (*models.Upload, error) {
	var u models.Upload
	err := row.Scan(
		&u.ID, &u.ConversationID, &u.UserID, &u.DateID,
		&u.ImageURL, &u.StorageKey, &u.Caption, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Upsert writes the upload keyed by (conversation, day bucket, user). A
// repeated submit for the same key overwrites in place: last write wins.
func (r *UploadRepository) Upsert(ctx context.Context, u *models.Upload) error {
	query := `
		INSERT INTO uploads (id, conversation_id, user_id, date_id, image_url, storage_key, caption, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (conversation_id, date_id, user_id) DO UPDATE
		SET image_url = EXCLUDED.image_url,
		    storage_key = EXCLUDED.storage_key,
		    caption = EXCLUDED.caption,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query,
		u.ID, u.ConversationID, u.UserID, u.DateID,
		u.ImageURL, u.StorageKey, u.Caption, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert upload: %w", err)
	}
	return nil
}

// Get retrieves one user's upload for a day bucket
func (r *UploadRepository) Get(ctx context.Context, convID, dateID, userID string) (*models.Upload, error) {
	query := `
		SELECT ` + uploadColumns + `
		FROM uploads
		WHERE conversation_id = $1 AND date_id = $2 AND user_id = $3
	`
	u, err := scanUpload(r.db.QueryRow(ctx, query, convID, dateID, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return u, nil
}

// ListByDay retrieves all uploads in a conversation's day bucket
func (r *UploadRepository) ListByDay(ctx context.Context, convID, dateID string) ([]*models.Upload, error) {
	query := `
		SELECT ` + uploadColumns + `
		FROM uploads
		WHERE conversation_id = $1 AND date_id = $2
	`
	rows, err := r.db.Query(ctx, query, convID, dateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*models.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		uploads = append(uploads, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating uploads: %w", err)
	}
	return uploads, nil
}

// UpdateContent replaces the image reference and caption of an existing upload
func (r *UploadRepository) UpdateContent(ctx context.Context, convID, dateID, userID, imageURL, storageKey, caption string) error {
	query := `
		UPDATE uploads
		SET image_url = $1, storage_key = $2, caption = $3, updated_at = now()
		WHERE conversation_id = $4 AND date_id = $5 AND user_id = $6
	`
	result, err := r.db.Exec(ctx, query, imageURL, storageKey, caption, convID, dateID, userID)
	if err != nil {
		return fmt.Errorf("failed to update upload: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("upload not found: %w", pgx.ErrNoRows)
	}
	return nil
}

// Delete removes one user's upload for a day bucket
func (r *UploadRepository) Delete(ctx context.Context, convID, dateID, userID string) error {
	query := `DELETE FROM uploads WHERE conversation_id = $1 AND date_id = $2 AND user_id = $3`
	result, err := r.db.Exec(ctx, query, convID, dateID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("upload not found: %w", pgx.ErrNoRows)
	}
	return nil
}

// ListStorageKeys returns every storage key still referenced by an upload in
// the conversation. Used by the orphan sweep.
func (r *UploadRepository) ListStorageKeys(ctx context.Context, convID string) (map[string]bool, error) {
	rows, err := r.db.Query(ctx,
		`SELECT storage_key FROM uploads WHERE conversation_id = $1 AND storage_key <> ''`, convID)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan storage key: %w", err)
		}
		keys[key] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating storage keys: %w", err)
	}
	return keys, nil
}
