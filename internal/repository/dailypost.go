package repository

import (
	"context"
	"fmt"

	"daily-album-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DailyPostRepository handles database operations for the administrative
// theme/memory records
type DailyPostRepository struct {
	db *pgxpool.Pool
}

// NewDailyPostRepository creates a new daily post repository
func NewDailyPostRepository(db *pgxpool.Pool) *DailyPostRepository {
	return &DailyPostRepository{db: db}
}

const dailyPostColumns = `conversation_id, date_id, theme_text, memory_image_url, created_at`

func scanDailyPost(row pgx.Row) (*models.DailyPost, error) {
	var p models.DailyPost
	err := row.Scan(&p.ConversationID, &p.DateID, &p.ThemeText, &p.MemoryImageURL, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert writes the post for a conversation's day bucket (authoring is
// out-of-band, merge semantics)
func (r *DailyPostRepository) Upsert(ctx context.Context, p *models.DailyPost) error {
	query := `
		INSERT INTO daily_posts (conversation_id, date_id, theme_text, memory_image_url, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conversation_id, date_id) DO UPDATE
		SET theme_text = EXCLUDED.theme_text,
		    memory_image_url = EXCLUDED.memory_image_url
	`
	_, err := r.db.Exec(ctx, query, p.ConversationID, p.DateID, p.ThemeText, p.MemoryImageURL, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert daily post: %w", err)
	}
	return nil
}

// Get retrieves the post for one day bucket
func (r *DailyPostRepository) Get(ctx context.Context, convID, dateID string) (*models.DailyPost, error) {
	query := `SELECT ` + dailyPostColumns + ` FROM daily_posts WHERE conversation_id = $1 AND date_id = $2`
	p, err := scanDailyPost(r.db.QueryRow(ctx, query, convID, dateID))
	if err != nil {
		return nil, fmt.Errorf("failed to get daily post: %w", err)
	}
	return p, nil
}

// ListUpTo retrieves all posts with date_id <= the given bucket, oldest first.
// String comparison on the bucket id is chronological by construction.
func (r *DailyPostRepository) ListUpTo(ctx context.Context, convID, dateID string) ([]*models.DailyPost, error) {
	query := `
		SELECT ` + dailyPostColumns + `
		FROM daily_posts
		WHERE conversation_id = $1 AND date_id <= $2
		ORDER BY date_id
	`
	rows, err := r.db.Query(ctx, query, convID, dateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.DailyPost
	for rows.Next() {
		p, err := scanDailyPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily posts: %w", err)
	}
	return posts, nil
}

// ExistsWithMemory reports whether any conversation has a post with a memory
// image for the given day bucket. The midnight fan-out precondition.
func (r *DailyPostRepository) ExistsWithMemory(ctx context.Context, dateID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM daily_posts WHERE date_id = $1 AND memory_image_url <> '')`
	var exists bool
	if err := r.db.QueryRow(ctx, query, dateID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check memory existence: %w", err)
	}
	return exists, nil
}
