package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/PostCraft/internal/imagegen"
	"github.com/BTreeMap/PostCraft/internal/models"
	"github.com/BTreeMap/PostCraft/internal/objectstore"
	"github.com/BTreeMap/PostCraft/internal/util"
)

// Defaults for uploaded images.
const (
	DefaultBucket      = "posts"
	DefaultPathPrefix  = "post-images"
	ImageContentType   = "image/png"
	objectSuffixLength = 8
)

// ImageOpts configures an ImageGateway.
type ImageOpts struct {
	Bucket     string
	PathPrefix string
	Now        func() time.Time
}

// ImageOption defines a configuration option for an ImageGateway.
type ImageOption func(*ImageOpts)

// WithBucket sets the storage bucket images are uploaded to.
func WithBucket(bucket string) ImageOption {
	return func(o *ImageOpts) { o.Bucket = bucket }
}

// WithPathPrefix sets the folder inside the bucket.
func WithPathPrefix(prefix string) ImageOption {
	return func(o *ImageOpts) { o.PathPrefix = strings.Trim(prefix, "/") }
}

// WithClock overrides the time source used for object names.
func WithClock(now func() time.Time) ImageOption {
	return func(o *ImageOpts) { o.Now = now }
}

// ImageGateway generates an image, uploads it and returns its public URL.
type ImageGateway struct {
	fetcher ImageFetcher
	objects objectstore.Store
	bucket  string
	prefix  string
	now     func() time.Time
}

// NewImageGateway creates an ImageGateway.
func NewImageGateway(fetcher ImageFetcher, objects objectstore.Store, opts ...ImageOption) *ImageGateway {
	cfg := ImageOpts{
		Bucket:     DefaultBucket,
		PathPrefix: DefaultPathPrefix,
		Now:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	return &ImageGateway{
		fetcher: fetcher,
		objects: objects,
		bucket:  cfg.Bucket,
		prefix:  cfg.PathPrefix,
		now:     cfg.Now,
	}
}

// Bucket returns the bucket images are uploaded to.
func (g *ImageGateway) Bucket() string {
	return g.bucket
}

// objectName returns "<prefix>/<unix-ms>-<hex>.png".
func (g *ImageGateway) objectName() string {
	name := util.GenerateRandomID(fmt.Sprintf("%d-", g.now().UnixMilli()), objectSuffixLength) + ".png"
	if g.prefix == "" {
		return name
	}
	return g.prefix + "/" + name
}

// Generate validates req, fetches an image, uploads it and returns its public URL.
func (g *ImageGateway) Generate(ctx context.Context, req models.GenerateRequest) (models.ImageResult, error) {
	if err := req.Validate(); err != nil {
		return models.ImageResult{}, &ValidationError{Err: err}
	}

	data, err := g.fetcher.Fetch(ctx, imagegen.Describe(string(req.Platform), req.Prompt))
	if err != nil {
		slog.Error("ImageGateway.Generate: image fetch failed", "platform", req.Platform, "error", err)
		return models.ImageResult{}, fmt.Errorf("%w: %w", ErrImageGeneration, err)
	}

	objectPath := g.objectName()
	if err := g.objects.Upload(ctx, g.bucket, objectPath, data, ImageContentType); err != nil {
		slog.Error("ImageGateway.Generate: upload failed", "bucket", g.bucket, "path", objectPath, "error", err)
		return models.ImageResult{}, fmt.Errorf("%w: %w", ErrImageUpload, err)
	}

	publicURL := g.objects.PublicURL(g.bucket, objectPath)
	slog.Debug("ImageGateway.Generate: image stored", "bucket", g.bucket, "path", objectPath, "bytes", len(data))
	return models.ImageResult{ImageURL: publicURL}, nil
}
