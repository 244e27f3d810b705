// Package export packages a generated post as a Word (.docx) document.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/fumiama/go-docx"
)

// Filename is the suggested download name for exported posts.
const Filename = "social-media-post.docx"

// ContentType is the MIME type of a .docx package.
const ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Picture size in pixels and the EMU conversion used by OOXML drawings.
const (
	ImageWidthPx  = 600
	ImageHeightPx = 600
	emuPerPixel   = 9525
)

// ErrEmptyImageData is returned when no image bytes are supplied.
var ErrEmptyImageData = errors.New("image data is empty")

// BuildDocx returns a .docx package with one paragraph holding the picture
// and one paragraph holding content. Newlines in content become line breaks.
func BuildDocx(content string, image []byte) ([]byte, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImageData
	}

	doc := docx.New().WithDefaultTheme()

	run, err := doc.AddParagraph().AddInlineDrawing(image)
	if err != nil {
		return nil, fmt.Errorf("failed to embed image: %w", err)
	}
	for _, child := range run.Children {
		if d, ok := child.(*docx.Drawing); ok && d.Inline != nil {
			d.Inline.Size(ImageWidthPx*emuPerPixel, ImageHeightPx*emuPerPixel)
		}
	}

	text := doc.AddParagraph().AddText(strings.ReplaceAll(content, "\r\n", "\n"))
	for _, child := range text.Children {
		if t, ok := child.(*docx.Text); ok {
			t.XMLSpace = "preserve"
		}
	}

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write docx: %w", err)
	}
	return buf.Bytes(), nil
}
