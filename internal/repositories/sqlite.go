package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/scrubline/backend/internal/models"
)

// SQLitePrefix marks a database URL that should be served by SQLite.
const SQLitePrefix = "sqlite://"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS videos (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    storage_backend TEXT NOT NULL,
    source_key TEXT NOT NULL,
    source_url TEXT NOT NULL,
    source_version INTEGER NOT NULL DEFAULT 0,
    source_size INTEGER NOT NULL DEFAULT 0,
    content_type TEXT NOT NULL DEFAULT '',
    duration REAL NOT NULL DEFAULT 0 CHECK (duration >= 0),
    format_name TEXT NOT NULL DEFAULT '',
    format_long_name TEXT NOT NULL DEFAULT '',
    bit_rate INTEGER NOT NULL DEFAULT 0,
    thumbnail_pattern TEXT NOT NULL DEFAULT '',
    thumbnail_kind TEXT NOT NULL DEFAULT '',
    thumbnail_count INTEGER NOT NULL DEFAULT 0 CHECK (thumbnail_count >= 0),
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS videos_created_at_idx ON videos (created_at DESC);
`

// SQLiteVideoRepository keeps video records in a single SQLite file, for
// deployments without a database server.
type SQLiteVideoRepository struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database named by a sqlite:// URL
// or a bare file path and ensures the schema exists.
func OpenSQLite(ctx context.Context, databaseURL string) (*SQLiteVideoRepository, error) {
	path := strings.TrimPrefix(databaseURL, SQLitePrefix)
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite: database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create database dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ensure schema: %w", err)
	}

	return &SQLiteVideoRepository{db: db}, nil
}

// Close releases the underlying database handle.
func (r *SQLiteVideoRepository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database file is still reachable.
func (r *SQLiteVideoRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Create stores a new video record.
func (r *SQLiteVideoRepository) Create(ctx context.Context, video models.Video) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO videos (`+videoColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, videoArgs(video)...)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return ErrConflict
		}
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

// Get fetches a single video by id.
func (r *SQLiteVideoRepository) Get(ctx context.Context, id string) (models.Video, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	video, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}
	return video, nil
}

// List returns every video in reverse chronological order.
func (r *SQLiteVideoRepository) List(ctx context.Context) ([]models.Video, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY created_at DESC, id`)
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
func (r *SQLiteVideoRepository) UpdateThumbnails(ctx context.Context, id, pattern string, kind models.ThumbnailKind, count int) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE videos
        SET thumbnail_pattern = ?, thumbnail_kind = ?, thumbnail_count = ?
        WHERE id = ?
    `, pattern, string(kind), count, id)
	if err != nil {
		return fmt.Errorf("update video thumbnails: %w", err)
	}
	return requireRow(res)
}

// Delete removes a video record.
func (r *SQLiteVideoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ VideoRepository = (*SQLiteVideoRepository)(nil)
