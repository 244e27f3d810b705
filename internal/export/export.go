package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/PostCraft/internal/models"
	"github.com/BTreeMap/PostCraft/internal/objectstore"
)

// Defaults for image downloads.
const (
	DefaultTimeout = 2 * time.Minute
	MaxImageBytes  = 20 << 20
)

var (
	// ErrUntrustedImageURL is returned when a post's image was not published by
	// the configured object store.
	ErrUntrustedImageURL = errors.New("image url is not hosted by a trusted store")
	// ErrNotAnImage is returned when the image response is not image/*.
	ErrNotAnImage = errors.New("image response is not an image")
)

// StatusError reports a non-success response when fetching the image.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("image fetch returned status %d", e.StatusCode)
}

// LocalReader reads objects published by a filesystem store.
// *objectstore.LocalStore satisfies it.
type LocalReader interface {
	ReadURL(ctx context.Context, rawURL string) ([]byte, error)
}

// Opts configures an Exporter.
type Opts struct {
	HTTPClient      *http.Client
	Local           LocalReader
	AllowedPrefixes []string
}

// Option defines a configuration option for an Exporter.
type Option func(*Opts)

// WithHTTPClient sets the client used to fetch images from allowed prefixes.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithLocalStore reads images published by a local store from disk.
func WithLocalStore(r LocalReader) Option {
	return func(o *Opts) { o.Local = r }
}

// WithAllowedPrefix permits fetching images over HTTP from URLs under prefix,
// e.g. a bucket's public URL.
func WithAllowedPrefix(prefix string) Option {
	return func(o *Opts) {
		if prefix != "" {
			o.AllowedPrefixes = append(o.AllowedPrefixes, prefix)
		}
	}
}

// Exporter fetches a post's image and packages it with its caption. Only
// images published by the configured stores are fetched.
type Exporter struct {
	httpClient *http.Client
	local      LocalReader
	prefixes   []string
}

// NewExporter creates an Exporter. Without WithLocalStore or WithAllowedPrefix
// every image URL is refused.
func NewExporter(opts ...Option) *Exporter {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	e := &Exporter{local: cfg.Local, prefixes: cfg.AllowedPrefixes}

	client := http.Client{Timeout: DefaultTimeout}
	if cfg.HTTPClient != nil {
		client = *cfg.HTTPClient
	}
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		if !e.allowed(req.URL.String()) {
			return fmt.Errorf("redirect to %s: %w", req.URL.Redacted(), ErrUntrustedImageURL)
		}
		return nil
	}
	e.httpClient = &client
	return e
}

func (e *Exporter) allowed(imageURL string) bool {
	for _, prefix := range e.prefixes {
		if objectstore.HasURLPrefix(imageURL, prefix) {
			return true
		}
	}
	return false
}

// FetchImage returns the bytes behind imageURL, reading local objects from
// disk and fetching allowed remote objects over HTTP.
func (e *Exporter) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	if e.local != nil {
		data, err := e.local.ReadURL(ctx, imageURL)
		switch {
		case err == nil:
			if len(data) > MaxImageBytes {
				return nil, fmt.Errorf("image exceeds %d bytes", MaxImageBytes)
			}
			return data, nil
		case !errors.Is(err, objectstore.ErrForeignURL):
			return nil, err
		}
	}
	if !e.allowed(imageURL) {
		return nil, ErrUntrustedImageURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("%w: %q", ErrNotAnImage, resp.Header.Get("Content-Type"))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", MaxImageBytes)
	}
	return data, nil
}

// Export fetches post's image and returns the .docx bytes.
func (e *Exporter) Export(ctx context.Context, post models.Post) ([]byte, error) {
	image, err := e.FetchImage(ctx, post.ImageURL)
	if err != nil {
		slog.Error("Exporter.Export: image fetch failed", "id", post.ID, "error", err)
		return nil, err
	}
	doc, err := BuildDocx(post.Content, image)
	if err != nil {
		slog.Error("Exporter.Export: docx build failed", "id", post.ID, "error", err)
		return nil, err
	}
	slog.Debug("Exporter.Export: document built", "id", post.ID, "image_bytes", len(image), "docx_bytes", len(doc))
	return doc, nil
}
