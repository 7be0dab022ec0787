// Package postgres provides the Postgres-backed catalog store.
//
// Schema:
//
//	CREATE TABLE channels (
//	    id          BIGSERIAL PRIMARY KEY,
//	    name        TEXT NOT NULL,
//	    url         TEXT NOT NULL UNIQUE,
//	    video_count INTEGER NOT NULL DEFAULT 0,
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
//	CREATE TABLE videos (
//	    id         BIGSERIAL PRIMARY KEY,
//	    channel_id BIGINT NOT NULL REFERENCES channels(id),
//	    title      TEXT NOT NULL,
//	    url        TEXT NOT NULL,
//	    details    TEXT,
//	    likes      INTEGER NOT NULL DEFAULT 0,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
//	CREATE TABLE comments (
//	    id         BIGSERIAL PRIMARY KEY,
//	    video_id   BIGINT NOT NULL REFERENCES videos(id),
//	    author     TEXT NOT NULL,
//	    body       TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tubewatch/yt-scraper/internal/scrape"
)

// CatalogStoreConfig controls the Postgres connection pool.
type CatalogStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
	Close()
}

// CatalogStore persists channels, videos, and comments in Postgres.
type CatalogStore struct {
	pool pgxPool
}

// NewCatalogStore creates a Postgres-backed CatalogStore using the provided config.
func NewCatalogStore(ctx context.Context, cfg CatalogStoreConfig) (*CatalogStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CatalogStore{pool: pool}, nil
}

// NewCatalogStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCatalogStoreWithPool(pool pgxPool) (*CatalogStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CatalogStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *CatalogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertChannel inserts a channel row, updating name and video count when the
// URL already exists. The channel URL is the identity key.
func (s *CatalogStore) UpsertChannel(ctx context.Context, name, url string, videoCount int) (int64, error) {
	if url == "" {
		return 0, fmt.Errorf("channel url is required")
	}
	const query = `
INSERT INTO channels (name, url, video_count)
VALUES ($1, $2, $3)
ON CONFLICT (url) DO UPDATE SET
	name = EXCLUDED.name,
	video_count = EXCLUDED.video_count
RETURNING id`

	var id int64
	if err := s.pool.QueryRow(ctx, query, name, url, videoCount).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert channel: %w", err)
	}
	return id, nil
}

// ChannelIDByName looks up a channel ID by display name.
func (s *CatalogStore) ChannelIDByName(ctx context.Context, name string) (int64, error) {
	const query = `SELECT id FROM channels WHERE name = $1`

	var id int64
	err := s.pool.QueryRow(ctx, query, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, scrape.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("select channel by name: %w", err)
	}
	return id, nil
}

// InsertVideo stores a scraped video row and returns its ID.
func (s *CatalogStore) InsertVideo(ctx context.Context, video scrape.VideoRecord) (int64, error) {
	if video.ChannelID == 0 {
		return 0, fmt.Errorf("channel id is required")
	}
	const query = `
INSERT INTO videos (channel_id, title, url, details, likes)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		video.ChannelID,
		video.Title,
		video.URL,
		video.Details,
		video.Likes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert video: %w", err)
	}
	return id, nil
}

// InsertComments stores comment rows for a video in a single batch.
func (s *CatalogStore) InsertComments(ctx context.Context, videoID int64, comments []scrape.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	const query = `INSERT INTO comments (video_id, author, body) VALUES ($1, $2, $3)`

	batch := &pgx.Batch{}
	for _, c := range comments {
		batch.Queue(query, videoID, c.Author, c.Body)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for range comments {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
	}
	return nil
}

// ListChannels returns all channels ordered by ID.
func (s *CatalogStore) ListChannels(ctx context.Context) ([]scrape.ChannelRecord, error) {
	const query = `SELECT id, name, url, video_count, created_at FROM channels ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select channels: %w", err)
	}
	defer rows.Close()

	var out []scrape.ChannelRecord
	for rows.Next() {
		var ch scrape.ChannelRecord
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.URL, &ch.VideoCount, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return out, nil
}

// ListVideos returns all videos for a channel ordered by ID.
func (s *CatalogStore) ListVideos(ctx context.Context, channelID int64) ([]scrape.VideoRecord, error) {
	const query = `
SELECT id, channel_id, title, url, details, likes, created_at
FROM videos WHERE channel_id = $1 ORDER BY id`

	rows, err := s.pool.Query(ctx, query, channelID)
	if err != nil {
		return nil, fmt.Errorf("select videos: %w", err)
	}
	defer rows.Close()

	var out []scrape.VideoRecord
	for rows.Next() {
		var v scrape.VideoRecord
		if err := rows.Scan(&v.ID, &v.ChannelID, &v.Title, &v.URL, &v.Details, &v.Likes, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return out, nil
}

// ListComments returns all comments for a video ordered by ID.
func (s *CatalogStore) ListComments(ctx context.Context, videoID int64) ([]scrape.CommentRecord, error) {
	const query = `
SELECT id, video_id, author, body, created_at
FROM comments WHERE video_id = $1 ORDER BY id`

	rows, err := s.pool.Query(ctx, query, videoID)
	if err != nil {
		return nil, fmt.Errorf("select comments: %w", err)
	}
	defer rows.Close()

	var out []scrape.CommentRecord
	for rows.Next() {
		var c scrape.CommentRecord
		if err := rows.Scan(&c.ID, &c.VideoID, &c.Author, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return out, nil
}
