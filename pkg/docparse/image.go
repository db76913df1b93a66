package docparse

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// ImageParser checks that an image decodes and passes it through unchanged.
type ImageParser struct{}

func (ImageParser) Parse(_ context.Context, f File) (Content, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		return Content{}, fmt.Errorf("could not decode image: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return Content{}, fmt.Errorf("image has no pixels (%s)", format)
	}
	return Content{Images: []Image{{MIMEType: f.MIMEType, Data: f.Data, Source: f.Name}}}, nil
}
