package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/PostCraft/internal/models"
	"github.com/BTreeMap/PostCraft/internal/supabase"
)

// DefaultSupabaseTable is the PostgREST table posts are inserted into.
const DefaultSupabaseTable = "posts"

// restClient is the subset of *supabase.Client used by SupabaseStore.
type restClient interface {
	Insert(ctx context.Context, table string, record interface{}, out interface{}) error
	SelectEq(ctx context.Context, table, column, value string, out interface{}) error
	SelectLatest(ctx context.Context, table, orderColumn string, limit int, out interface{}) error
}

// SupabaseStore persists posts in a Supabase table through PostgREST.
type SupabaseStore struct {
	client restClient
	table  string
}

// Compile-time check that SupabaseStore implements Store.
var _ Store = (*SupabaseStore)(nil)

// NewSupabaseStore wraps client. An empty table uses DefaultSupabaseTable.
func NewSupabaseStore(client restClient, table string) *SupabaseStore {
	if table == "" {
		table = DefaultSupabaseTable
	}
	return &SupabaseStore{client: client, table: table}
}

// supabaseRow tolerates both bigint and uuid primary keys.
type supabaseRow struct {
	ID        json.RawMessage `json:"id"`
	Prompt    string          `json:"prompt"`
	Platform  string          `json:"platform"`
	Content   string          `json:"content"`
	ImageURL  string          `json:"image_url"`
	CreatedAt *time.Time      `json:"created_at"`
}

func (r supabaseRow) post() models.Post {
	id := string(r.ID)
	if unquoted, err := strconv.Unquote(id); err == nil {
		id = unquoted
	}
	p := models.Post{
		ID:       strings.TrimSpace(id),
		Prompt:   r.Prompt,
		Platform: models.Platform(r.Platform),
		Content:  r.Content,
		ImageURL: r.ImageURL,
	}
	if r.CreatedAt != nil {
		p.CreatedAt = r.CreatedAt.UTC()
	}
	return p
}

func (s *SupabaseStore) AddPost(ctx context.Context, req models.SavePostRequest) (models.Post, error) {
	record := map[string]string{
		"prompt":    req.Prompt,
		"platform":  string(req.Platform),
		"content":   req.Content,
		"image_url": req.ImageURL,
	}
	var rows []supabaseRow
	if err := s.client.Insert(ctx, s.table, record, &rows); err != nil {
		slog.Error("SupabaseStore AddPost failed", "error", err, "table", s.table)
		return models.Post{}, fmt.Errorf("failed to insert post: %w", err)
	}
	if len(rows) != 1 {
		slog.Error("SupabaseStore AddPost unexpected row count", "count", len(rows), "table", s.table)
		return models.Post{}, fmt.Errorf("insert returned %d rows, want 1", len(rows))
	}
	p := rows[0].post()
	slog.Debug("SupabaseStore AddPost succeeded", "id", p.ID, "platform", p.Platform)
	return p, nil
}

func (s *SupabaseStore) GetPost(ctx context.Context, id string) (models.Post, error) {
	var rows []supabaseRow
	if err := s.client.SelectEq(ctx, s.table, "id", id, &rows); err != nil {
		// An id the key column cannot parse, e.g. "abc" on a uuid table, names no post.
		if supabase.HasCode(err, supabase.CodeInvalidTextRepresentation, supabase.CodeNoRows) {
			slog.Debug("SupabaseStore GetPost: id not found", "id", id, "error", err)
			return models.Post{}, ErrPostNotFound
		}
		slog.Error("SupabaseStore GetPost failed", "error", err, "id", id)
		return models.Post{}, fmt.Errorf("failed to query post %s: %w", id, err)
	}
	if len(rows) == 0 {
		return models.Post{}, ErrPostNotFound
	}
	return rows[0].post(), nil
}

func (s *SupabaseStore) ListPosts(ctx context.Context, limit int) ([]models.Post, error) {
	var rows []supabaseRow
	if err := s.client.SelectLatest(ctx, s.table, "created_at", clampLimit(limit), &rows); err != nil {
		slog.Error("SupabaseStore ListPosts failed", "error", err)
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	posts := make([]models.Post, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, r.post())
	}
	return posts, nil
}

// Close is a no-op; the HTTP client holds no pooled resources that need releasing.
func (s *SupabaseStore) Close() error {
	return nil
}
