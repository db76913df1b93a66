package handlers

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vinetrail/vinetrail-backend/errors"
	"github.com/vinetrail/vinetrail-backend/middleware"
	importsvc "github.com/vinetrail/vinetrail-backend/models/smartimport/service"
	"github.com/vinetrail/vinetrail-backend/types"
)

type formFile struct {
	name        string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, files []formFile) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, _ := http.NewRequest(http.MethodPost, "/v1/admin/smart-import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func setupImportRouter(imports SmartImportService, venues VenueLister) *gin.Engine {
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	h := NewSmartImportHandler(imports, venues)
	r.POST("/v1/admin/smart-import", h.ImportHandler)
	r.GET("/v1/admin/venues", h.ListVenuesHandler)
	return r
}

func TestImportHandler_PassesUploads(t *testing.T) {
	svc := &MockSmartImportService{maxFiles: 3, maxSize: 1 << 10}
	svc.On("Import", mock.Anything, mock.MatchedBy(func(uploads []importsvc.Upload) bool {
		return len(uploads) == 2 &&
			uploads[0].Name == "itinerary.csv" &&
			uploads[0].DeclaredType == "text/csv" &&
			string(uploads[0].Data) == "date,venue\n" &&
			uploads[1].Name == "scan.png"
	})).Return(&types.SmartImportResult{ImportID: "imp-1", Confidence: 0.8, Attempts: 1}, nil)

	w := httptest.NewRecorder()
	setupImportRouter(svc, nil).ServeHTTP(w, multipartRequest(t, []formFile{
		{"itinerary.csv", "text/csv", []byte("date,venue\n")},
		{"scan.png", "image/png", []byte{0x89, 'P', 'N', 'G'}},
	}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "imp-1", decodeBody(t, w)["import_id"])
	svc.AssertExpectations(t)
}

func TestImportHandler_TooManyFilesRejectedBeforeService(t *testing.T) {
	svc := &MockSmartImportService{maxFiles: 1, maxSize: 1 << 10}

	w := httptest.NewRecorder()
	setupImportRouter(svc, nil).ServeHTTP(w, multipartRequest(t, []formFile{
		{"a.csv", "text/csv", []byte("a\n")},
		{"b.csv", "text/csv", []byte("b\n")},
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Too many files", decodeBody(t, w)["message"])
	svc.AssertNotCalled(t, "Import", mock.Anything, mock.Anything)
}

func TestImportHandler_OversizedFileKeepsOverflowByte(t *testing.T) {
	svc := &MockSmartImportService{maxFiles: 2, maxSize: 8}
	svc.On("Import", mock.Anything, mock.MatchedBy(func(uploads []importsvc.Upload) bool {
		return len(uploads) == 1 && len(uploads[0].Data) == 9
	})).Return(nil, apperrors.ValidationFailed("File too large", "big.csv exceeds the limit"))

	w := httptest.NewRecorder()
	setupImportRouter(svc, nil).ServeHTTP(w, multipartRequest(t, []formFile{
		{"big.csv", "text/csv", bytes.Repeat([]byte("x"), 20)},
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "File too large", decodeBody(t, w)["message"])
	svc.AssertExpectations(t)
}

func TestImportHandler_NotMultipart(t *testing.T) {
	svc := &MockSmartImportService{maxFiles: 2, maxSize: 1 << 10}

	w := doJSON(setupImportRouter(svc, nil), http.MethodPost, "/v1/admin/smart-import", map[string]string{"a": "b"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid upload", decodeBody(t, w)["message"])
}

func TestImportHandler_ExtractionFailure(t *testing.T) {
	svc := &MockSmartImportService{maxFiles: 2, maxSize: 1 << 10}
	svc.On("Import", mock.Anything, mock.Anything).Return(nil,
		apperrors.ExtractionFailed("The AI returned an unstructured response. Please upload clearer documents.", errors.New("attempt 2")).
			WithExtra("files", []types.SourceFileStatus{{FileName: "a.csv", Status: types.SourceFileParsed}}))

	w := httptest.NewRecorder()
	setupImportRouter(svc, nil).ServeHTTP(w, multipartRequest(t, []formFile{{"a.csv", "text/csv", []byte("a\n")}}))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, string(apperrors.ExtractionFailedError), body["type"])
	require.Len(t, body["files"], 1)
}

func TestListVenuesHandler(t *testing.T) {
	venues := new(MockVenueLister)
	venues.On("ListVenues", mock.Anything).Return([]types.Venue{{ID: 1, Name: "Leonetti Cellar", Type: types.VenueTypeWinery}}, nil).Once()
	venues.On("ListVenues", mock.Anything).Return(nil, errors.New("db down")).Once()

	r := setupImportRouter(&MockSmartImportService{}, venues)
	w := doJSON(r, http.MethodGet, "/v1/admin/venues", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decodeBody(t, w)["data"], 1)

	w = doJSON(r, http.MethodGet, "/v1/admin/venues", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	venues.AssertExpectations(t)
}
