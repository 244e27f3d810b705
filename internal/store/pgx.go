package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/PostCraft/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxStore persists posts in PostgreSQL through a pgx connection pool.
// It shares the schema with PostgresStore.
type PgxStore struct {
	pool *pgxpool.Pool
}

// Compile-time check that PgxStore implements Store.
var _ Store = (*PgxStore)(nil)

// NewPgxStore connects a pool and applies the Postgres migrations.
func NewPgxStore(ctx context.Context, opts ...Option) (*PgxStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("PgxStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse pgx dsn: %w", err)
	}
	poolCfg.MaxConns = DefaultMaxOpenConns
	poolCfg.MaxConnLifetime = DefaultConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		slog.Error("Failed to create pgx pool", "error", err)
		return nil, fmt.Errorf("connect pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		slog.Error("pgx ping failed", "error", err)
		pool.Close()
		return nil, err
	}
	for _, stmt := range splitStatements(postgresMigrations) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	slog.Debug("PgxStore migrations applied successfully")
	return &PgxStore{pool: pool}, nil
}

func (s *PgxStore) AddPost(ctx context.Context, req models.SavePostRequest) (models.Post, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO posts (prompt, platform, content, image_url) VALUES ($1, $2, $3, $4)
		 RETURNING id::text, prompt, platform, content, image_url, created_at`,
		req.Prompt, string(req.Platform), req.Content, req.ImageURL)
	p, err := scanPost(row)
	if err != nil {
		slog.Error("PgxStore AddPost failed", "error", err, "platform", req.Platform)
		return models.Post{}, fmt.Errorf("failed to insert post: %w", err)
	}
	slog.Debug("PgxStore AddPost succeeded", "id", p.ID, "platform", p.Platform)
	return p, nil
}

func (s *PgxStore) GetPost(ctx context.Context, id string) (models.Post, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Post{}, ErrPostNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT id::text, prompt, platform, content, image_url, created_at FROM posts WHERE id = $1`, id)
	p, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Post{}, ErrPostNotFound
	}
	if err != nil {
		slog.Error("PgxStore GetPost failed", "error", err, "id", id)
		return models.Post{}, fmt.Errorf("failed to query post %s: %w", id, err)
	}
	return p, nil
}

func (s *PgxStore) ListPosts(ctx context.Context, limit int) ([]models.Post, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, prompt, platform, content, image_url, created_at FROM posts ORDER BY created_at DESC LIMIT $1`,
		clampLimit(limit))
	if err != nil {
		slog.Error("PgxStore ListPosts query failed", "error", err)
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan posts: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}
	return posts, nil
}

// Close releases the pool.
func (s *PgxStore) Close() error {
	s.pool.Close()
	slog.Debug("pgx pool closed")
	return nil
}
