// Package gateway implements the three request relays behind PostCraft: text
// generation, image generation with upload, and post persistence.
//
// Each gateway validates its input, forwards exactly one request to its
// provider, and relays the result. Upstream causes are logged here and
// surfaced to callers wrapped in a generic sentinel so that HTTP handlers
// never leak provider details to the browser.
package gateway

import (
	"context"
	"errors"
)

// Generic errors returned to callers. The upstream cause is wrapped alongside.
var (
	ErrTextGeneration  = errors.New("text generation failed")
	ErrImageGeneration = errors.New("image generation failed")
	ErrImageUpload     = errors.New("image upload failed")
	ErrSavePost        = errors.New("failed to save post")
)

// Completer produces a chat completion for a single user message.
type Completer interface {
	Complete(ctx context.Context, userPrompt string) (string, error)
}

// ImageFetcher downloads a generated image for a description.
type ImageFetcher interface {
	Fetch(ctx context.Context, description string) ([]byte, error)
}

// IsValidationError reports whether err was caused by invalid client input.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ValidationError marks a request rejected before any provider call.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }
