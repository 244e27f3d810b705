package store

import (
	"database/sql"
	"strings"

	"github.com/BTreeMap/PostCraft/internal/models"
	"github.com/google/uuid"
)

// Limits applied to ListPosts.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

const postColumns = `id, prompt, platform, content, image_url, created_at`

func newPostID() string {
	return uuid.NewString()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// rowScanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPost scans the postColumns projection.
func scanPost(row rowScanner) (models.Post, error) {
	var p models.Post
	var platform string
	if err := row.Scan(&p.ID, &p.Prompt, &platform, &p.Content, &p.ImageURL, &p.CreatedAt); err != nil {
		return models.Post{}, err
	}
	p.Platform = models.Platform(platform)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

// collectPosts drains rows scanned with scanPost.
func collectPosts(rows *sql.Rows) ([]models.Post, error) {
	var posts []models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// splitStatements splits a migration script on statement terminators.
func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}
