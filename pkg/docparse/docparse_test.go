package docparse

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// buildPDF writes a single-page PDF whose content stream shows text with Helvetica.
func buildPDF(t *testing.T, text string) []byte {
	t.Helper()
	stream := ""
	if text != "" {
		stream = fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
	}
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func buildDOCX(t *testing.T, paragraphs []string, media map[string][]byte) []byte {
	t.Helper()
	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		parts := strings.Split(p, "\t")
		body.WriteString("<w:p><w:r>")
		for i, part := range parts {
			if i > 0 {
				body.WriteString("<w:tab/>")
			}
			fmt.Fprintf(&body, `<w:t xml:space="preserve">%s</w:t>`, part)
		}
		body.WriteString("</w:r></w:p>")
	}
	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, _ = w.Write([]byte(`<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`))
	w, err = zw.Create("word/document.xml")
	require.NoError(t, err)
	_, _ = w.Write([]byte(body.String()))
	for name, data := range media {
		w, err = zw.Create(name)
		require.NoError(t, err)
		_, _ = w.Write(data)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func buildPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 120, G: 20, B: 40, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPDFParser(t *testing.T) {
	ctx := context.Background()
	p := PDFParser{MinTextLength: 50}

	t.Run("text pdf", func(t *testing.T) {
		data := buildPDF(t, "Day 1 Leonetti Cellar tasting at 10:00 then lunch at Whitehouse-Crawford")
		content, err := p.Parse(ctx, File{Name: "itinerary.pdf", MIMEType: MIMEPDF, Data: data})
		require.NoError(t, err)
		assert.Contains(t, content.Text, "Leonetti")
		assert.Empty(t, content.Images)
	})

	t.Run("no text layer", func(t *testing.T) {
		_, err := p.Parse(ctx, File{Name: "scan.pdf", MIMEType: MIMEPDF, Data: buildPDF(t, "")})
		assert.ErrorIs(t, err, ErrScannedPDF)
	})

	t.Run("too little text", func(t *testing.T) {
		_, err := p.Parse(ctx, File{Name: "stub.pdf", MIMEType: MIMEPDF, Data: buildPDF(t, "Page 1")})
		assert.ErrorIs(t, err, ErrScannedPDF)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := p.Parse(ctx, File{Name: "bad.pdf", MIMEType: MIMEPDF, Data: []byte("%PDF-1.4 not really")})
		assert.Error(t, err)
	})
}

func TestDOCXParser(t *testing.T) {
	pngData := buildPNG(t)
	data := buildDOCX(t,
		[]string{"Smith Anniversary Tour", "Day 1\tL'Ecole No 41", "", "Party of 6"},
		map[string][]byte{
			"word/media/image1.png": pngData,
			"word/media/image2.emf": []byte("vector"),
		})

	content, err := DOCXParser{MaxImages: 5}.Parse(context.Background(), File{Name: "quote.docx", Data: data})
	require.NoError(t, err)
	assert.Equal(t, "Smith Anniversary Tour\nDay 1\tL'Ecole No 41\nParty of 6", content.Text)
	require.Len(t, content.Images, 1)
	assert.Equal(t, MIMEPNG, content.Images[0].MIMEType)
	assert.Equal(t, "word/media/image1.png", content.Images[0].Source)
}

func TestDOCXParser_Errors(t *testing.T) {
	_, err := DOCXParser{}.Parse(context.Background(), File{Data: []byte("not a zip")})
	assert.Error(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, _ = zw.Create("other.xml")
	require.NoError(t, zw.Close())
	_, err = DOCXParser{}.Parse(context.Background(), File{Data: buf.Bytes()})
	assert.ErrorContains(t, err, "document body missing")

	_, err = DOCXParser{}.Parse(context.Background(), File{Data: buildDOCX(t, nil, nil)})
	assert.ErrorContains(t, err, "no text or images")
}

func TestXLSXParser(t *testing.T) {
	wb := excelize.NewFile()
	require.NoError(t, wb.SetSheetRow("Sheet1", "A1", &[]interface{}{"Date", "Venue", "Time"}))
	require.NoError(t, wb.SetSheetRow("Sheet1", "A2", &[]interface{}{"2026-05-02", "Leonetti Cellar", "10:00"}))
	_, err := wb.NewSheet("Guests")
	require.NoError(t, err)
	require.NoError(t, wb.SetCellValue("Guests", "A1", "Dana Reyes"))
	_, err = wb.NewSheet("Blank")
	require.NoError(t, err)
	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)

	content, err := XLSXParser{}.Parse(context.Background(), File{Name: "plan.xlsx", Data: buf.Bytes()})
	require.NoError(t, err)
	assert.Contains(t, content.Text, "--- Sheet: Sheet1 ---\nDate\tVenue\tTime\n2026-05-02\tLeonetti Cellar\t10:00")
	assert.Contains(t, content.Text, "--- Sheet: Guests ---\nDana Reyes")
	assert.NotContains(t, content.Text, "Blank")
}

func TestCSVParser(t *testing.T) {
	data := []byte("\xef\xbb\xbfname,email,dietary\nDana Reyes,dana@example.com,vegetarian\n,,\n\"Lee, Sam\",sam@example.com\n")
	content, err := CSVParser{}.Parse(context.Background(), File{Data: data})
	require.NoError(t, err)
	assert.Equal(t, "name\temail\tdietary\nDana Reyes\tdana@example.com\tvegetarian\nLee, Sam\tsam@example.com", content.Text)

	_, err = CSVParser{}.Parse(context.Background(), File{Data: []byte(",,\n")})
	assert.Error(t, err)
}

func TestImageParser(t *testing.T) {
	data := buildPNG(t)
	content, err := ImageParser{}.Parse(context.Background(), File{Name: "menu.png", MIMEType: MIMEPNG, Data: data})
	require.NoError(t, err)
	require.Len(t, content.Images, 1)
	assert.Equal(t, data, content.Images[0].Data)

	_, err = ImageParser{}.Parse(context.Background(), File{Name: "fake.png", MIMEType: MIMEPNG, Data: []byte("nope")})
	assert.Error(t, err)
}

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		declared string
		want     string
		ok       bool
	}{
		{"pdf", buildPDF(t, "x"), "application/octet-stream", MIMEPDF, true},
		{"png", buildPNG(t), "", MIMEPNG, true},
		{"docx by declared type", buildDOCX(t, []string{"hi"}, nil), MIMEDOCX, MIMEDOCX, true},
		{"csv", []byte("a,b,c\n1,2,3\n4,5,6\n"), "text/csv; charset=utf-8", MIMECSV, true},
		{"plain text declared as csv", []byte("just one line"), "text/csv", MIMECSV, true},
		{"plain text", []byte("hello there"), "text/plain", "text/plain; charset=utf-8", false},
		{"executable", []byte("MZ\x90\x00\x03\x00\x00\x00"), MIMEPDF, "application/vnd.microsoft.portable-executable", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectMIME(tt.data, tt.declared)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			} else {
				assert.NotContains(t, AllowedMIMETypes, got)
			}
		})
	}
}

func TestRegistry_ParseAll(t *testing.T) {
	reg := NewRegistry(WithMinPDFTextLength(50))
	files := []File{
		{Name: "guests.csv", MIMEType: MIMECSV, Data: []byte("name\nDana\n")},
		{Name: "scan.pdf", MIMEType: MIMEPDF, Data: buildPDF(t, "")},
		{Name: "empty.png", MIMEType: MIMEPNG},
		{Name: "notes.txt", MIMEType: "text/plain", Data: []byte("hi")},
		{Name: "photo.png", MIMEType: MIMEPNG, Data: buildPNG(t)},
	}

	results := reg.ParseAll(context.Background(), files)
	require.Len(t, results, 5)
	assert.True(t, results[0].OK())
	assert.ErrorIs(t, results[1].Err, ErrScannedPDF)
	assert.ErrorIs(t, results[2].Err, ErrEmptyFile)
	assert.ErrorIs(t, results[3].Err, ErrUnsupportedType)
	assert.True(t, results[4].OK())
	assert.Equal(t, "photo.png", results[4].File.Name)
}

func TestRegistry_ParseAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := NewRegistry().ParseAll(ctx, []File{{Name: "a.csv", MIMEType: MIMECSV, Data: []byte("a\n")}})
	require.Len(t, results, 1)
	assert.True(t, errors.Is(results[0].Err, context.Canceled))
}

func TestRegistry_CustomParser(t *testing.T) {
	reg := NewRegistry()
	reg.Register("text/plain", ParserFunc(func(_ context.Context, f File) (Content, error) {
		return Content{Text: strings.ToUpper(string(f.Data))}, nil
	}))
	content, err := reg.Parse(context.Background(), File{MIMEType: "text/plain", Data: []byte("hi")})
	require.NoError(t, err)
	assert.Equal(t, "HI", content.Text)
}
