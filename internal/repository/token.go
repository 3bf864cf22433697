package repository

import (
	"context"
	"fmt"

	"daily-album-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenRepository handles database operations for push device tokens
type TokenRepository struct {
	db *pgxpool.Pool
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{db: db}
}

// Upsert stores a user's token with merge semantics: one row per user, the
// most recent device silently replaces the previous one.
func (r *TokenRepository) Upsert(ctx context.Context, t *models.DeviceToken) error {
	query := `
		INSERT INTO device_tokens (user_id, token, platform, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET token = EXCLUDED.token,
		    platform = EXCLUDED.platform,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query, t.UserID, t.Token, t.Platform, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert device token: %w", err)
	}
	return nil
}

// GetByUserID retrieves a user's current token
func (r *TokenRepository) GetByUserID(ctx context.Context, userID string) (*models.DeviceToken, error) {
	query := `SELECT user_id, token, platform, updated_at FROM device_tokens WHERE user_id = $1`
	var t models.DeviceToken
	err := r.db.QueryRow(ctx, query, userID).Scan(&t.UserID, &t.Token, &t.Platform, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get device token: %w", err)
	}
	return &t, nil
}

// ListAll retrieves every stored token
func (r *TokenRepository) ListAll(ctx context.Context) ([]*models.DeviceToken, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id, token, platform, updated_at FROM device_tokens`)
	if err != nil {
		return nil, fmt.Errorf("failed to list device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.DeviceToken
	for rows.Next() {
		var t models.DeviceToken
		if err := rows.Scan(&t.UserID, &t.Token, &t.Platform, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device tokens: %w", err)
	}
	return tokens, nil
}

// Delete removes a user's token
func (r *TokenRepository) Delete(ctx context.Context, userID string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM device_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete device token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("device token not found: %w", pgx.ErrNoRows)
	}
	return nil
}
