// Package imagegen fetches AI-generated images from a Pollinations-style
// prompt-in-URL image API.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/PostCraft/internal/util"
)

// Defaults for the public Pollinations endpoint.
const (
	DefaultBaseURL = "https://image.pollinations.ai"
	DefaultModel   = "flux"
	DefaultWidth   = 1024
	DefaultHeight  = 1024
	DefaultTimeout = 2 * time.Minute
	// SeedLimit bounds the random seed to [0, SeedLimit).
	SeedLimit = 999999
	// MaxImageBytes caps the downloaded body size.
	MaxImageBytes = 20 << 20
)

var (
	// ErrEmptyImage is returned when the provider responds with no bytes.
	ErrEmptyImage = errors.New("image provider returned an empty body")
	// ErrImageTooLarge is returned when the body exceeds MaxImageBytes.
	ErrImageTooLarge = errors.New("image provider returned an oversized body")
)

// StatusError reports a non-2xx response from the image provider.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("image provider returned %s", e.Status)
}

// Opts holds configuration options for the image client.
type Opts struct {
	BaseURL    string
	Model      string
	Width      int
	Height     int
	NoLogo     bool
	HTTPClient *http.Client
	SeedFunc   func() int
}

// Option defines a configuration option for the image client.
type Option func(*Opts)

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithModel selects the image model query parameter.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithSize sets the requested image dimensions in pixels.
func WithSize(width, height int) Option {
	return func(o *Opts) {
		o.Width = width
		o.Height = height
	}
}

// WithHTTPClient injects the HTTP client used for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithSeedFunc replaces the random seed source. Intended for tests.
func WithSeedFunc(f func() int) Option {
	return func(o *Opts) { o.SeedFunc = f }
}

// Client downloads generated images.
type Client struct {
	baseURL    string
	model      string
	width      int
	height     int
	noLogo     bool
	httpClient *http.Client
	seed       func() int
}

// NewClient builds an image client from options.
func NewClient(opts ...Option) *Client {
	cfg := Opts{
		BaseURL: DefaultBaseURL,
		Model:   DefaultModel,
		Width:   DefaultWidth,
		Height:  DefaultHeight,
		NoLogo:  true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.SeedFunc == nil {
		cfg.SeedFunc = func() int { return util.RandomSeed(SeedLimit) }
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	slog.Debug("Image client created", "base_url", cfg.BaseURL, "model", cfg.Model, "width", cfg.Width, "height", cfg.Height)
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		width:      cfg.Width,
		height:     cfg.Height,
		noLogo:     cfg.NoLogo,
		httpClient: cfg.HTTPClient,
		seed:       cfg.SeedFunc,
	}
}

// Describe builds the image description sent to the provider.
func Describe(platform, prompt string) string {
	return fmt.Sprintf("Professional %s social media image about: %s", platform, prompt)
}

// BuildURL returns the provider URL for description with the given seed.
func (c *Client) BuildURL(description string, seed int) string {
	q := url.Values{}
	q.Set("width", strconv.Itoa(c.width))
	q.Set("height", strconv.Itoa(c.height))
	if c.noLogo {
		q.Set("nologo", "true")
	}
	q.Set("seed", strconv.Itoa(seed))
	if c.model != "" {
		q.Set("model", c.model)
	}
	return c.baseURL + "/prompt/" + url.PathEscape(description) + "?" + q.Encode()
}

// Fetch downloads one generated image for description using a fresh random seed.
func (c *Client) Fetch(ctx context.Context, description string) ([]byte, error) {
	seed := c.seed()
	imageURL := c.BuildURL(description, seed)
	slog.Debug("ImageClient.Fetch: requesting image", "seed", seed, "model", c.model)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("ImageClient.Fetch: request failed", "error", err)
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Error("ImageClient.Fetch: provider returned non-success status", "status", resp.StatusCode)
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		slog.Error("ImageClient.Fetch: failed to read body", "error", err)
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if len(data) > MaxImageBytes {
		return nil, ErrImageTooLarge
	}
	slog.Debug("ImageClient.Fetch: image downloaded", "bytes", len(data), "content_type", resp.Header.Get("Content-Type"))
	return data, nil
}
