package flow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BTreeMap/PostCraft/internal/models"
)

// ErrSubmitDisabled is returned when a submit arrives while the composer is
// incomplete or a cycle is already in flight.
var ErrSubmitDisabled = errors.New("submit is disabled")

// TextGenerator produces the caption for a request.
type TextGenerator interface {
	Generate(ctx context.Context, req models.GenerateRequest) (models.TextResult, error)
}

// ImageGenerator produces the public image URL for a request.
type ImageGenerator interface {
	Generate(ctx context.Context, req models.GenerateRequest) (models.ImageResult, error)
}

// PostSaver persists a finished post.
type PostSaver interface {
	Save(ctx context.Context, req models.SavePostRequest) (models.Post, error)
}

// Orchestrator runs text generation, image generation and persistence in
// strict sequence. It performs no retries.
type Orchestrator struct {
	text  TextGenerator
	image ImageGenerator
	posts PostSaver
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(text TextGenerator, image ImageGenerator, posts PostSaver) *Orchestrator {
	return &Orchestrator{text: text, image: image, posts: posts}
}

// Generate runs one full cycle and returns the saved post.
func (o *Orchestrator) Generate(ctx context.Context, req models.GenerateRequest) (models.Post, error) {
	slog.Debug("Orchestrator.Generate: starting cycle", "platform", req.Platform)

	text, err := o.text.Generate(ctx, req)
	if err != nil {
		slog.Error("Orchestrator.Generate: text step failed", "platform", req.Platform, "error", err)
		return models.Post{}, err
	}

	image, err := o.image.Generate(ctx, req)
	if err != nil {
		slog.Error("Orchestrator.Generate: image step failed", "platform", req.Platform, "error", err)
		return models.Post{}, err
	}

	post, err := o.posts.Save(ctx, models.SavePostRequest{
		Prompt:   req.Prompt,
		Platform: req.Platform,
		Content:  text.Content,
		ImageURL: image.ImageURL,
	})
	if err != nil {
		slog.Error("Orchestrator.Generate: save step failed", "platform", req.Platform, "error", err)
		return models.Post{}, err
	}

	slog.Info("Orchestrator.Generate: cycle complete", "id", post.ID, "platform", post.Platform)
	return post, nil
}

// Submit updates the session's composer input and, if submit is enabled, runs
// one cycle. The session lock is not held during provider calls.
func (o *Orchestrator) Submit(ctx context.Context, sessions *SessionManager, sessionID, prompt, platform string) (State, error) {
	st, ok := sessions.TryBegin(sessionID, prompt, platform)
	if !ok {
		slog.Debug("Orchestrator.Submit: submit disabled", "session", sessionID, "generating", st.Generating)
		return st, ErrSubmitDisabled
	}

	post, err := o.Generate(ctx, models.GenerateRequest{Prompt: st.Prompt, Platform: st.Platform})
	if err != nil {
		return sessions.Finish(sessionID, nil, err), err
	}
	return sessions.Finish(sessionID, &post, nil), nil
}
