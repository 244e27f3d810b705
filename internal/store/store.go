// Package store provides storage backends for generated posts.
//
// It includes an in-memory store for tests, SQLite for self-hosted single-node
// deployments, PostgreSQL (lib/pq or pgx), and a Supabase PostgREST table.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/PostCraft/internal/models"
)

// ErrPostNotFound is returned when no post has the requested ID.
var ErrPostNotFound = errors.New("post not found")

// Store defines the interface for post persistence. Posts are insert-only.
type Store interface {
	// AddPost inserts one post and returns the row as stored, including the
	// datastore-assigned ID and creation time.
	AddPost(ctx context.Context, req models.SavePostRequest) (models.Post, error)
	GetPost(ctx context.Context, id string) (models.Post, error)
	// ListPosts returns up to limit posts, newest first.
	ListPosts(ctx context.Context, limit int) ([]models.Post, error)
	Close() error
}

// InMemoryStore is a simple in-memory store for posts.
type InMemoryStore struct {
	mu    sync.RWMutex
	posts []models.Post
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) AddPost(ctx context.Context, req models.SavePostRequest) (models.Post, error) {
	if err := ctx.Err(); err != nil {
		return models.Post{}, err
	}
	p := models.Post{
		ID:        newPostID(),
		Prompt:    req.Prompt,
		Platform:  req.Platform,
		Content:   req.Content,
		ImageURL:  req.ImageURL,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.posts = append(s.posts, p)
	s.mu.Unlock()
	slog.Debug("InMemoryStore AddPost succeeded", "id", p.ID, "platform", p.Platform)
	return p, nil
}

func (s *InMemoryStore) GetPost(ctx context.Context, id string) (models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.posts {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Post{}, ErrPostNotFound
}

func (s *InMemoryStore) ListPosts(ctx context.Context, limit int) ([]models.Post, error) {
	limit = clampLimit(limit)
	s.mu.RLock()
	out := make([]models.Post, len(s.posts))
	copy(out, s.posts)
	s.mu.RUnlock()

	// Insertion order breaks ties between equal timestamps.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
