package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/scrubline/backend/internal/db"
	"github.com/scrubline/backend/internal/models"
)

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

// Create stores a new video record.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (`+videoColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
    `, videoArgs(video)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert video: %w", err)
	}

	return nil
}

// Get fetches a single video by id.
func (r *PostgresVideoRepository) Get(ctx context.Context, id string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)
	video, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}
	return video, nil
}

// List returns every video in reverse chronological order.
func (r *PostgresVideoRepository) List(ctx context.Context) ([]models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	videos := []models.Video{}
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	return videos, nil
}

// UpdateThumbnails records the preview set produced for a video.
func (r *PostgresVideoRepository) UpdateThumbnails(ctx context.Context, id, pattern string, kind models.ThumbnailKind, count int) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE videos
        SET thumbnail_pattern = $2,
            thumbnail_kind = $3,
            thumbnail_count = $4
        WHERE id = $1
    `, id, pattern, string(kind), count)
	if err != nil {
		return fmt.Errorf("update video thumbnails: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a video record.
func (r *PostgresVideoRepository) Delete(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

var _ VideoRepository = (*PostgresVideoRepository)(nil)
