package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/vinetrail/vinetrail-backend/errors"
	importsvc "github.com/vinetrail/vinetrail-backend/models/smartimport/service"
	"github.com/vinetrail/vinetrail-backend/types"
)

// multipartOverhead covers form boundaries and headers on top of file data.
const multipartOverhead = 1 << 20

// SmartImportService turns uploaded documents into a draft proposal.
type SmartImportService interface {
	Import(ctx context.Context, uploads []importsvc.Upload) (*types.SmartImportResult, error)
	MaxFiles() int
	MaxFileSize() int64
}

var _ SmartImportService = (*importsvc.ImportService)(nil)

// VenueLister serves the venue catalogue.
type VenueLister interface {
	ListVenues(ctx context.Context) ([]types.Venue, error)
}

type SmartImportHandler struct {
	imports SmartImportService
	venues  VenueLister
}

func NewSmartImportHandler(imports SmartImportService, venues VenueLister) *SmartImportHandler {
	return &SmartImportHandler{imports: imports, venues: venues}
}

// ImportHandler accepts up to MaxFiles documents in the multipart field
// "files" and returns the extracted draft.
// POST /v1/admin/smart-import (multipart)
func (h *SmartImportHandler) ImportHandler(c *gin.Context) {
	maxFiles, maxSize := h.imports.MaxFiles(), h.imports.MaxFileSize()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(maxFiles)*maxSize+multipartOverhead)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = c.Error(apperrors.ValidationFailed("Upload too large",
				fmt.Sprintf("at most %d files of %d MB each", maxFiles, maxSize>>20)))
			return
		}
		_ = c.Error(apperrors.ValidationFailed("Invalid upload", "expected multipart form with field \"files\""))
		return
	}

	headers := form.File["files"]
	if len(headers) > maxFiles {
		// Rejected before reading any file.
		_ = c.Error(apperrors.ValidationFailed("Too many files",
			fmt.Sprintf("at most %d files can be imported at once", maxFiles)))
		return
	}

	uploads := make([]importsvc.Upload, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh, maxSize)
		if err != nil {
			_ = c.Error(apperrors.ValidationFailed("Invalid upload", fmt.Sprintf("could not read %s", fh.Filename)))
			return
		}
		uploads = append(uploads, importsvc.Upload{
			Name:         fh.Filename,
			DeclaredType: fh.Header.Get("Content-Type"),
			Data:         data,
		})
	}

	result, err := h.imports.Import(c.Request.Context(), uploads)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// readPart reads at most limit+1 bytes so an oversized file is still
// detected by the import service.
func readPart(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit+1))
}

// ListVenuesHandler returns the venue catalogue.
// GET /v1/admin/venues
func (h *SmartImportHandler) ListVenuesHandler(c *gin.Context) {
	venues, err := h.venues.ListVenues(c.Request.Context())
	if err != nil {
		_ = c.Error(apperrors.NewDatabaseError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": venues})
}
