package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/PostCraft/internal/models"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists posts in PostgreSQL through database/sql and lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AddPost(ctx context.Context, req models.SavePostRequest) (models.Post, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO posts (prompt, platform, content, image_url) VALUES ($1, $2, $3, $4)
		 RETURNING id::text, prompt, platform, content, image_url, created_at`,
		req.Prompt, string(req.Platform), req.Content, req.ImageURL)
	p, err := scanPost(row)
	if err != nil {
		slog.Error("PostgresStore AddPost failed", "error", err, "platform", req.Platform)
		return models.Post{}, fmt.Errorf("failed to insert post: %w", err)
	}
	slog.Debug("PostgresStore AddPost succeeded", "id", p.ID, "platform", p.Platform)
	return p, nil
}

func (s *PostgresStore) GetPost(ctx context.Context, id string) (models.Post, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Post{}, ErrPostNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id::text, prompt, platform, content, image_url, created_at FROM posts WHERE id = $1`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Post{}, ErrPostNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetPost failed", "error", err, "id", id)
		return models.Post{}, fmt.Errorf("failed to query post %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) ListPosts(ctx context.Context, limit int) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id::text, prompt, platform, content, image_url, created_at FROM posts ORDER BY created_at DESC LIMIT $1`,
		clampLimit(limit))
	if err != nil {
		slog.Error("PostgresStore ListPosts query failed", "error", err)
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()
	posts, err := collectPosts(rows)
	if err != nil {
		slog.Error("PostgresStore ListPosts scan failed", "error", err)
		return nil, fmt.Errorf("failed to scan posts: %w", err)
	}
	slog.Debug("PostgresStore ListPosts succeeded", "count", len(posts))
	return posts, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	} else {
		slog.Debug("PostgreSQL database connection closed successfully")
	}
	return err
}
