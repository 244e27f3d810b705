// Package objectstore defines the object storage used for generated images
// and a filesystem-backed implementation for self-hosted deployments.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Store uploads objects and resolves their public URLs.
// *supabase.Client satisfies it.
type Store interface {
	Upload(ctx context.Context, bucket, objectPath string, data []byte, contentType string) error
	PublicURL(bucket, objectPath string) string
}

var (
	// ErrObjectExists is returned when an upload targets an existing object.
	ErrObjectExists = errors.New("object already exists")
	// ErrInvalidPath is returned for empty or escaping object paths.
	ErrInvalidPath = errors.New("invalid object path")
	// ErrForeignURL is returned for URLs the store did not publish.
	ErrForeignURL = errors.New("url is not served by this store")
)

// HasURLPrefix reports whether rawURL is an absolute URL under prefix, with the
// same scheme and host and a cleaned path inside prefix's path.
func HasURLPrefix(rawURL, prefix string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p, err := url.Parse(prefix)
	if err != nil || p.Host == "" {
		return false
	}
	if !u.IsAbs() || !strings.EqualFold(u.Scheme, p.Scheme) || !strings.EqualFold(u.Host, p.Host) {
		return false
	}
	_, ok := trimPathPrefix(u, p.Path)
	return ok
}

// trimPathPrefix returns u's cleaned path relative to dir.
func trimPathPrefix(u *url.URL, dir string) (string, bool) {
	if u.User != nil || u.Opaque != "" {
		return "", false
	}
	clean := path.Clean("/" + u.Path)
	dir = strings.TrimRight(dir, "/") + "/"
	if !strings.HasPrefix(clean, dir) {
		return "", false
	}
	return strings.TrimPrefix(clean, dir), true
}

// LocalStore writes objects under a root directory, one subdirectory per bucket.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore creates root if needed. baseURL is the public prefix the root
// is served under, e.g. http://localhost:8080/media.
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		slog.Error("LocalStore: failed to create root", "root", root, "error", err)
		return nil, fmt.Errorf("failed to create media directory %s: %w", root, err)
	}
	slog.Debug("LocalStore created", "root", root, "base_url", baseURL)
	return &LocalStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root returns the directory objects are written under.
func (s *LocalStore) Root() string {
	return s.root
}

// resolve maps bucket/objectPath to a file path inside root.
func (s *LocalStore) resolve(bucket, objectPath string) (string, error) {
	clean := path.Clean("/" + bucket + "/" + objectPath)
	if bucket == "" || objectPath == "" || strings.Contains(bucket, "/") || !strings.HasPrefix(clean, "/"+bucket+"/") {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Upload writes data to bucket/objectPath. contentType is implied by the extension when served.
func (s *LocalStore) Upload(ctx context.Context, bucket, objectPath string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.resolve(bucket, objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrObjectExists
		}
		return fmt.Errorf("failed to create object: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(target)
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(target)
		return fmt.Errorf("failed to close object: %w", err)
	}
	slog.Debug("LocalStore.Upload succeeded", "bucket", bucket, "path", objectPath, "bytes", len(data), "content_type", contentType)
	return nil
}

// PublicURL returns the URL the object is served at.
func (s *LocalStore) PublicURL(bucket, objectPath string) string {
	parts := strings.Split(strings.TrimLeft(objectPath, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.baseURL + "/" + url.PathEscape(bucket) + "/" + strings.Join(parts, "/")
}

// ReadURL returns the object behind a URL built by PublicURL. Root-relative
// URLs are matched on path alone; anything else yields ErrForeignURL.
func (s *LocalStore) ReadURL(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, ErrForeignURL
	}
	base, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, ErrForeignURL
	}
	if u.Scheme != "" || u.Host != "" {
		if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
			return nil, ErrForeignURL
		}
	} else if !strings.HasPrefix(u.Path, "/") {
		return nil, ErrForeignURL
	}
	rest, ok := trimPathPrefix(u, base.Path)
	if !ok {
		return nil, ErrForeignURL
	}
	bucket, objectPath, _ := strings.Cut(rest, "/")
	target, err := s.resolve(bucket, objectPath)
	if err != nil {
		return nil, ErrForeignURL
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}
