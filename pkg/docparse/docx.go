package docparse

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

const (
	docxBody      = "word/document.xml"
	docxMediaDir  = "word/media/"
	maxXMLPartLen = 20 << 20
)

// DOCXParser reads paragraph text from word/document.xml and returns
// embedded PNG/JPEG media as images.
type DOCXParser struct {
	MaxImages int
}

func (p DOCXParser) Parse(ctx context.Context, f File) (Content, error) {
	zr, err := zip.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return Content{}, fmt.Errorf("could not open DOCX: %w", err)
	}

	var body *zip.File
	var media []*zip.File
	for _, zf := range zr.File {
		switch {
		case zf.Name == docxBody:
			body = zf
		case strings.HasPrefix(zf.Name, docxMediaDir):
			media = append(media, zf)
		}
	}
	if body == nil {
		return Content{}, errors.New("could not open DOCX: document body missing")
	}

	text, err := readDocxText(body)
	if err != nil {
		return Content{}, err
	}

	sort.Slice(media, func(i, j int) bool { return media[i].Name < media[j].Name })
	var images []Image
	for _, zf := range media {
		if p.MaxImages > 0 && len(images) >= p.MaxImages {
			break
		}
		if err := ctx.Err(); err != nil {
			return Content{}, err
		}
		mimeType := imageTypeByExt(zf.Name)
		if mimeType == "" {
			continue
		}
		data, err := readZipFile(zf)
		if err != nil {
			continue
		}
		images = append(images, Image{MIMEType: mimeType, Data: data, Source: zf.Name})
	}

	if strings.TrimSpace(text) == "" && len(images) == 0 {
		return Content{}, errors.New("DOCX contains no text or images")
	}
	return Content{Text: text, Images: images}, nil
}

// readDocxText walks the WordprocessingML token stream. w:t carries text,
// w:p ends a paragraph, w:tab and w:br are whitespace.
func readDocxText(zf *zip.File) (string, error) {
	rc, err := zf.Open()
	if err != nil {
		return "", fmt.Errorf("could not read DOCX body: %w", err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, maxXMLPartLen))
	var b strings.Builder
	var para strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("could not parse DOCX body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if line := strings.TrimRight(para.String(), " \t"); line != "" {
					b.WriteString(line)
					b.WriteByte('\n')
				}
				para.Reset()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	if para.Len() > 0 {
		b.WriteString(para.String())
	}
	return strings.TrimSpace(b.String()), nil
}

func readZipFile(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxXMLPartLen))
}

func imageTypeByExt(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return MIMEPNG
	case ".jpg", ".jpeg":
		return MIMEJPEG
	default:
		return ""
	}
}
