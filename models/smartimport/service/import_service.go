// Package service implements smart import: uploaded trip documents are
// parsed, sent to a language model for extraction and resolved against the
// venue catalogue.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/vinetrail/vinetrail-backend/errors"
	"github.com/vinetrail/vinetrail-backend/logger"
	"github.com/vinetrail/vinetrail-backend/pkg/docparse"
	"github.com/vinetrail/vinetrail-backend/pkg/filestore"
	"github.com/vinetrail/vinetrail-backend/pkg/venuematch"
	"github.com/vinetrail/vinetrail-backend/types"
)

// Defaults applied when ImportConfig leaves a limit at zero.
const (
	DefaultMaxFiles    = 10
	DefaultMaxFileSize = 10 << 20
)

const unstructuredMessage = "The AI returned an unstructured response. Please upload clearer documents."

// Upload is one file received from the client.
type Upload struct {
	Name         string
	DeclaredType string
	Data         []byte
}

// VenueLister loads the venue catalogue.
type VenueLister interface {
	ListVenues(ctx context.Context) ([]types.Venue, error)
}

// ImportConfig holds the request limits.
type ImportConfig struct {
	MaxFiles            int
	MaxFileSizeBytes    int64
	VenueMatchThreshold float64
}

// ImportService runs one smart-import request end to end.
type ImportService struct {
	parser    *docparse.Registry
	extractor *Extractor
	venues    VenueLister
	storage   filestore.Storage
	cfg       ImportConfig
	log       *zap.SugaredLogger
}

// NewImportService creates a new import service. A nil storage disables archiving.
func NewImportService(parser *docparse.Registry, extractor *Extractor, venues VenueLister, storage filestore.Storage, cfg ImportConfig) *ImportService {
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = DefaultMaxFiles
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = DefaultMaxFileSize
	}
	if cfg.VenueMatchThreshold <= 0 {
		cfg.VenueMatchThreshold = venuematch.DefaultThreshold
	}
	if storage == nil {
		storage = filestore.Nop{}
	}
	return &ImportService{
		parser:    parser,
		extractor: extractor,
		venues:    venues,
		storage:   storage,
		cfg:       cfg,
		log:       logger.GetLogger().Named("smart_import"),
	}
}

// MaxFiles is the number of files accepted per request.
func (s *ImportService) MaxFiles() int { return s.cfg.MaxFiles }

// MaxFileSize is the per-file size cap in bytes.
func (s *ImportService) MaxFileSize() int64 { return s.cfg.MaxFileSizeBytes }

// checkUploads applies the request-level limits and resolves each file's
// type. Any violation rejects the whole request.
func (s *ImportService) checkUploads(uploads []Upload) ([]docparse.File, error) {
	if len(uploads) == 0 {
		return nil, apperrors.ValidationFailed("No files uploaded", "attach at least one document")
	}
	if len(uploads) > s.cfg.MaxFiles {
		return nil, apperrors.ValidationFailed("Too many files",
			fmt.Sprintf("at most %d files can be imported at once", s.cfg.MaxFiles))
	}

	files := make([]docparse.File, len(uploads))
	for i, u := range uploads {
		name := u.Name
		if name == "" {
			name = fmt.Sprintf("file-%d", i+1)
		}
		if int64(len(u.Data)) > s.cfg.MaxFileSizeBytes {
			return nil, apperrors.ValidationFailed("File too large",
				fmt.Sprintf("%s exceeds the %d MB limit", name, s.cfg.MaxFileSizeBytes>>20))
		}
		files[i] = docparse.File{Name: name, Data: u.Data}
		if len(u.Data) == 0 {
			// reported per file by the parser
			continue
		}
		mimeType, ok := docparse.DetectMIME(u.Data, u.DeclaredType)
		if !ok {
			return nil, apperrors.ValidationFailed("Unsupported file type",
				fmt.Sprintf("%s is %s; allowed types are PDF, DOCX, XLSX, CSV, PNG, JPEG and WebP", name, mimeType))
		}
		files[i].MIMEType = mimeType
	}
	return files, nil
}

// archive stores the originals under imports/<importID>/. Failures are logged;
// the import does not depend on the archive.
func (s *ImportService) archive(ctx context.Context, importID string, files []docparse.File) {
	for i, f := range files {
		if len(f.Data) == 0 {
			continue
		}
		key := fmt.Sprintf("imports/%s/%02d_%s", importID, i+1, filestore.SanitizeFilename(f.Name))
		if err := s.storage.Save(ctx, key, bytes.NewReader(f.Data), int64(len(f.Data)), f.MIMEType); err != nil {
			s.log.Warnw("Failed to archive import file", "importId", importID, "key", key, "error", err)
		}
	}
}

func fileStatuses(results []docparse.Result) ([]types.SourceFileStatus, int) {
	statuses := make([]types.SourceFileStatus, len(results))
	parsed := 0
	for i, r := range results {
		st := types.SourceFileStatus{FileName: r.File.Name, MIMEType: r.File.MIMEType}
		if r.OK() {
			parsed++
			st.Status = types.SourceFileParsed
			st.TextLength = len(strings.TrimSpace(r.Content.Text))
			st.ImageCount = len(r.Content.Images)
		} else {
			st.Status = types.SourceFileError
			st.Error = r.Err.Error()
		}
		statuses[i] = st
	}
	return statuses, parsed
}

// Import parses the uploads, extracts a draft proposal with the language
// model and matches the extracted stops to known venues.
func (s *ImportService) Import(ctx context.Context, uploads []Upload) (*types.SmartImportResult, error) {
	files, err := s.checkUploads(uploads)
	if err != nil {
		return nil, err
	}

	importID := uuid.NewString()
	log := s.log.With("importId", importID)
	s.archive(ctx, importID, files)

	parsed := s.parser.ParseAll(ctx, files)
	statuses, okCount := fileStatuses(parsed)
	if okCount == 0 {
		log.Infow("No uploaded file could be parsed", "files", len(files))
		return nil, apperrors.ValidationFailed("None of the uploaded files could be read", "").
			WithExtra("files", statuses)
	}

	venues, err := s.venues.ListVenues(ctx)
	if err != nil {
		// Extraction still works without venue hints.
		log.Errorw("Failed to load venues for smart import", "error", err)
		venues = nil
	}

	result, err := s.extractor.Extract(ctx, parsed, venues)
	if err != nil {
		var extErr *ExtractionError
		if errors.As(err, &extErr) {
			if extErr.Transport {
				return nil, apperrors.ExternalServiceFailed("language_model", extErr)
			}
			log.Warnw("Extraction failed after all attempts", "error", extErr)
			return nil, apperrors.ExtractionFailed(unstructuredMessage, extErr).WithExtra("files", statuses)
		}
		return nil, err
	}

	matched := venuematch.MatchAll(result, venues, venuematch.WithThreshold(s.cfg.VenueMatchThreshold))
	result.ImportID = importID
	result.SourceFiles = statuses

	log.Infow("Smart import completed",
		"files", len(files), "parsedFiles", okCount, "attempts", result.Attempts,
		"confidence", result.Confidence, "days", len(result.Days), "matchedStops", matched)
	return result, nil
}
