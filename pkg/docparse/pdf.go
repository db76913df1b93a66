package docparse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts the text layer of a PDF. Scanned PDFs have no text
// layer and are rejected; they are not rasterized.
type PDFParser struct {
	MinTextLength int
}

func (p PDFParser) Parse(ctx context.Context, f File) (content Content, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			content, err = Content{}, fmt.Errorf("could not read PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return Content{}, fmt.Errorf("could not read PDF: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return Content{}, fmt.Errorf("could not extract PDF text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return Content{}, fmt.Errorf("could not extract PDF text: %w", err)
	}

	text := strings.TrimSpace(string(raw))
	if significantLength(text) < p.MinTextLength || text == "" {
		return Content{}, ErrScannedPDF
	}
	return Content{Text: text}, nil
}

func significantLength(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
