// Package docparse turns uploaded trip documents into plain text and images
// that can be handed to a language model.
package docparse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Supported MIME types.
const (
	MIMEPDF  = "application/pdf"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMECSV  = "text/csv"
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMEWebP = "image/webp"
)

// AllowedMIMETypes is the upload allow-list, in detection priority order.
var AllowedMIMETypes = []string{MIMEPDF, MIMEDOCX, MIMEXLSX, MIMECSV, MIMEPNG, MIMEJPEG, MIMEWebP}

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyFile       = errors.New("file is empty")
	ErrScannedPDF      = errors.New("no text found in PDF (scanned or image-only PDF); upload a text PDF or images of the pages")
)

// File is one uploaded document.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Image is an image to attach to the model request.
type Image struct {
	MIMEType string
	Data     []byte
	// Source names where the image came from, e.g. "word/media/image1.png".
	Source string
}

// Content is what a parser extracted from one file.
type Content struct {
	Text   string
	Images []Image
}

// Result is the per-file outcome of ParseAll. Err is set when the file could not be used.
type Result struct {
	File    File
	Content Content
	Err     error
}

// OK reports whether the file produced any usable content.
func (r Result) OK() bool {
	return r.Err == nil
}

// Parser converts a single file.
type Parser interface {
	Parse(ctx context.Context, f File) (Content, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(ctx context.Context, f File) (Content, error)

func (fn ParserFunc) Parse(ctx context.Context, f File) (Content, error) {
	return fn(ctx, f)
}

// Registry dispatches files to parsers by MIME type.
type Registry struct {
	parsers map[string]Parser
}

// Option configures the default registry.
type Option func(*registryOptions)

type registryOptions struct {
	minPDFTextLength int
	maxEmbeddedImgs  int
}

// WithMinPDFTextLength sets how many non-space characters a PDF must yield
// before it is treated as a text PDF.
func WithMinPDFTextLength(n int) Option {
	return func(o *registryOptions) { o.minPDFTextLength = n }
}

// WithMaxEmbeddedImages caps images pulled out of a single DOCX.
func WithMaxEmbeddedImages(n int) Option {
	return func(o *registryOptions) { o.maxEmbeddedImgs = n }
}

// NewRegistry returns a registry with every supported parser installed.
func NewRegistry(opts ...Option) *Registry {
	o := registryOptions{minPDFTextLength: 50, maxEmbeddedImgs: 10}
	for _, opt := range opts {
		opt(&o)
	}

	img := ImageParser{}
	r := &Registry{parsers: make(map[string]Parser)}
	r.Register(MIMEPDF, PDFParser{MinTextLength: o.minPDFTextLength})
	r.Register(MIMEDOCX, DOCXParser{MaxImages: o.maxEmbeddedImgs})
	r.Register(MIMEXLSX, XLSXParser{})
	r.Register(MIMECSV, CSVParser{})
	r.Register(MIMEPNG, img)
	r.Register(MIMEJPEG, img)
	r.Register(MIMEWebP, img)
	return r
}

// Register installs or replaces the parser for a MIME type.
func (r *Registry) Register(mimeType string, p Parser) {
	r.parsers[mimeType] = p
}

// Parse runs the parser registered for f.MIMEType.
func (r *Registry) Parse(ctx context.Context, f File) (Content, error) {
	if len(f.Data) == 0 {
		return Content{}, ErrEmptyFile
	}
	p, ok := r.parsers[f.MIMEType]
	if !ok {
		return Content{}, fmt.Errorf("%w: %s", ErrUnsupportedType, f.MIMEType)
	}
	return p.Parse(ctx, f)
}

// ParseAll parses every file. A failing file is recorded in its Result and
// never stops the rest of the batch; only context cancellation does.
func (r *Registry) ParseAll(ctx context.Context, files []File) []Result {
	results := make([]Result, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			results = append(results, Result{File: f, Err: err})
			continue
		}
		content, err := r.Parse(ctx, f)
		results = append(results, Result{File: f, Content: content, Err: err})
	}
	return results
}

// DetectMIME sniffs data and returns the allow-listed type it matches. The
// declared type is used only when sniffing is inconclusive: OOXML files that
// sniff as a plain zip, and CSV that sniffs as plain text. The second return
// is false when the file is not an allowed type.
func DetectMIME(data []byte, declared string) (string, bool) {
	declared = normalizeDeclared(declared)
	detected := mimetype.Detect(data)

	for _, allowed := range AllowedMIMETypes {
		if detected.Is(allowed) {
			return allowed, true
		}
	}

	switch {
	case (declared == MIMEDOCX || declared == MIMEXLSX) && detected.Is("application/zip"):
		return declared, true
	case declared == MIMECSV && detected.Is("text/plain"):
		return declared, true
	}
	return detected.String(), false
}

func normalizeDeclared(declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(declared, ";"); i != -1 {
		declared = strings.TrimSpace(declared[:i])
	}
	switch declared {
	case "image/jpg", "image/pjpeg":
		return MIMEJPEG
	case "application/csv", "text/comma-separated-values":
		return MIMECSV
	}
	return declared
}
