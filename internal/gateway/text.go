package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/PostCraft/internal/models"
)

// TextGateway turns a topic and platform into a social post caption.
type TextGateway struct {
	completer Completer
}

// NewTextGateway creates a TextGateway backed by completer.
func NewTextGateway(completer Completer) *TextGateway {
	return &TextGateway{completer: completer}
}

// BuildInstruction returns the single user message sent to the completion model.
func BuildInstruction(platform models.Platform, prompt string) string {
	return fmt.Sprintf("Write a creative and engaging social media post for %s.\nTopic: %s.\nInclude a few hashtags. Return ONLY the text content.", platform, prompt)
}

// Generate validates req and returns the first completion choice.
func (g *TextGateway) Generate(ctx context.Context, req models.GenerateRequest) (models.TextResult, error) {
	if err := req.Validate(); err != nil {
		return models.TextResult{}, &ValidationError{Err: err}
	}
	slog.Debug("TextGateway.Generate: requesting caption", "platform", req.Platform, "prompt_len", len(req.Prompt))

	content, err := g.completer.Complete(ctx, BuildInstruction(req.Platform, req.Prompt))
	if err != nil {
		slog.Error("TextGateway.Generate: completion failed", "platform", req.Platform, "error", err)
		return models.TextResult{}, fmt.Errorf("%w: %w", ErrTextGeneration, err)
	}
	return models.TextResult{Content: content}, nil
}
