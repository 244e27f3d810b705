package supabase

import (
	"bytes"
	"context"
	"log/slog"

	storage_go "github.com/supabase-community/storage-go"
)

// Upload stores data at bucket/path. Existing objects are not overwritten.
// storage-go has no context support, so ctx is only checked before the call.
func (c *Client) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	upsert := false
	c.uploadMu.Lock()
	_, err := c.api.Storage.UploadFile(bucket, path, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	c.uploadMu.Unlock()
	if err != nil {
		err = toAPIError(err)
		slog.Error("Supabase.Upload failed", "bucket", bucket, "path", path, "error", err)
		return err
	}
	slog.Debug("Supabase.Upload succeeded", "bucket", bucket, "path", path, "bytes", len(data))
	return nil
}

// PublicURL returns the public URL of an object in a public bucket. An empty
// path yields the bucket's public prefix, ending in a slash.
func (c *Client) PublicURL(bucket, path string) string {
	return c.api.Storage.GetPublicUrl(bucket, path).SignedURL
}
