package models

import (
	"errors"
	"strings"
	"time"
)

// Platform identifies the social network whose post format is mimicked.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTwitter   Platform = "twitter"
)

// Platforms lists the supported platforms in selector order.
var Platforms = []Platform{PlatformInstagram, PlatformFacebook, PlatformLinkedIn, PlatformTwitter}

// Validation errors returned by request validation.
var (
	ErrEmptyPrompt     = errors.New("prompt is required")
	ErrInvalidPlatform = errors.New("platform must be one of instagram, facebook, linkedin, twitter")
	ErrEmptyContent    = errors.New("content is required")
	ErrEmptyImageURL   = errors.New("image_url is required")
	ErrPromptTooLong   = errors.New("prompt exceeds maximum length")
)

// MaxPromptLength bounds the topic text accepted from the composer.
const MaxPromptLength = 2000

// ParsePlatform normalizes s and reports whether it names a supported platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", ErrInvalidPlatform
	}
	return p, nil
}

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformInstagram, PlatformFacebook, PlatformLinkedIn, PlatformTwitter:
		return true
	default:
		return false
	}
}

// Label returns the human-readable name shown in the platform selector.
func (p Platform) Label() string {
	switch p {
	case PlatformInstagram:
		return "Instagram"
	case PlatformFacebook:
		return "Facebook"
	case PlatformLinkedIn:
		return "LinkedIn"
	case PlatformTwitter:
		return "X (Twitter)"
	default:
		return string(p)
	}
}

// Post is a persisted generation result. ID and CreatedAt are assigned by the datastore.
type Post struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	Platform  Platform  `json:"platform"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
}

// GenerateRequest is the input to the text and image gateways.
type GenerateRequest struct {
	Prompt   string   `json:"prompt"`
	Platform Platform `json:"platform"`
}

// Validate normalizes the platform and checks that both fields are present.
func (r *GenerateRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if len(r.Prompt) > MaxPromptLength {
		return ErrPromptTooLong
	}
	p, err := ParsePlatform(string(r.Platform))
	if err != nil {
		return err
	}
	r.Platform = p
	return nil
}

// SavePostRequest is the input to the persistence gateway.
type SavePostRequest struct {
	Prompt   string   `json:"prompt"`
	Platform Platform `json:"platform"`
	Content  string   `json:"content"`
	ImageURL string   `json:"image_url"`
}

// Validate normalizes the platform and checks that all four fields are present.
func (r *SavePostRequest) Validate() error {
	g := GenerateRequest{Prompt: r.Prompt, Platform: r.Platform}
	if err := g.Validate(); err != nil {
		return err
	}
	r.Platform = g.Platform
	if r.Content == "" {
		return ErrEmptyContent
	}
	if r.ImageURL == "" {
		return ErrEmptyImageURL
	}
	return nil
}

// TextResult is returned by the text gateway.
type TextResult struct {
	Content string `json:"content"`
}

// ImageResult is returned by the image gateway.
type ImageResult struct {
	ImageURL string `json:"imageUrl"`
}

// ShareRequest asks for a saved post to be sent to a WhatsApp number.
type ShareRequest struct {
	To string `json:"to"`
}
