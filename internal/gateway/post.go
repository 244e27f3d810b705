package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/PostCraft/internal/models"
	"github.com/BTreeMap/PostCraft/internal/store"
)

// PostGateway persists generated posts and reads them back.
type PostGateway struct {
	store store.Store
}

// NewPostGateway creates a PostGateway backed by st.
func NewPostGateway(st store.Store) *PostGateway {
	return &PostGateway{store: st}
}

// Save validates req and inserts one row, returning the inserted post.
func (g *PostGateway) Save(ctx context.Context, req models.SavePostRequest) (models.Post, error) {
	if err := req.Validate(); err != nil {
		return models.Post{}, &ValidationError{Err: err}
	}
	p, err := g.store.AddPost(ctx, req)
	if err != nil {
		slog.Error("PostGateway.Save: insert failed", "platform", req.Platform, "error", err)
		return models.Post{}, fmt.Errorf("%w: %w", ErrSavePost, err)
	}
	slog.Info("PostGateway.Save: post saved", "id", p.ID, "platform", p.Platform)
	return p, nil
}

// Get returns a post by ID. store.ErrPostNotFound is returned unwrapped.
func (g *PostGateway) Get(ctx context.Context, id string) (models.Post, error) {
	p, err := g.store.GetPost(ctx, id)
	if err != nil && !errors.Is(err, store.ErrPostNotFound) {
		slog.Error("PostGateway.Get: lookup failed", "id", id, "error", err)
	}
	return p, err
}

// List returns up to limit recent posts, newest first.
func (g *PostGateway) List(ctx context.Context, limit int) ([]models.Post, error) {
	posts, err := g.store.ListPosts(ctx, limit)
	if err != nil {
		slog.Error("PostGateway.List: query failed", "limit", limit, "error", err)
		return nil, err
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return posts, nil
}
