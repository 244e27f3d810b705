// Package mockup renders a generated post inside a platform-styled card.
package mockup

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
)

// Layout names a card template.
type Layout string

const (
	LayoutInstagram Layout = "instagram"
	LayoutTwitter   Layout = "twitter"
	LayoutGeneric   Layout = "generic"
)

// AvatarURL is the placeholder avatar shown on every card.
const AvatarURL = "https://api.dicebear.com/7.x/avataaars/svg?seed=Felix"

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// LayoutFor picks the card layout for platform. Matching is case-insensitive
// and anything other than instagram or twitter uses the generic card.
func LayoutFor(platform string) Layout {
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case string(LayoutInstagram):
		return LayoutInstagram
	case string(LayoutTwitter):
		return LayoutTwitter
	default:
		return LayoutGeneric
	}
}

type cardData struct {
	Content  string
	ImageURL template.URL
	Avatar   string
}

// Render returns the escaped HTML card for platform.
func Render(platform, content, imageURL string) (template.HTML, error) {
	layout := LayoutFor(platform)
	data := cardData{
		Content:  content,
		ImageURL: safeImageURL(imageURL),
		Avatar:   AvatarURL,
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, string(layout)+".html", data); err != nil {
		slog.Error("mockup.Render: template execution failed", "layout", layout, "error", err)
		return "", fmt.Errorf("failed to render %s mockup: %w", layout, err)
	}
	return template.HTML(buf.String()), nil
}

// safeImageURL admits http(s) URLs and same-origin paths; anything else is dropped.
func safeImageURL(u string) template.URL {
	lower := strings.ToLower(strings.TrimSpace(u))
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") ||
		(strings.HasPrefix(lower, "/") && !strings.HasPrefix(lower, "//")) {
		return template.URL(u)
	}
	return ""
}
