package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vinetrail/vinetrail-backend/errors"
	"github.com/vinetrail/vinetrail-backend/pkg/docparse"
	"github.com/vinetrail/vinetrail-backend/types"
)

type staticVenues struct {
	venues []types.Venue
	err    error
}

func (s staticVenues) ListVenues(context.Context) ([]types.Venue, error) {
	return s.venues, s.err
}

// memStorage records archived keys.
type memStorage struct {
	mu   sync.Mutex
	keys []string
	fail bool
}

func (m *memStorage) Save(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if m.fail {
		return errors.New("bucket unavailable")
	}
	if _, err := io.ReadAll(r); err != nil {
		return err
	}
	m.mu.Lock()
	m.keys = append(m.keys, key)
	m.mu.Unlock()
	return nil
}

func (m *memStorage) Delete(context.Context, string) error { return nil }

var catalogue = []types.Venue{
	{ID: 1, Name: "L'Ecole No 41", Type: types.VenueTypeWinery},
	{ID: 2, Name: "Leonetti Cellar", Type: types.VenueTypeWinery},
	{ID: 3, Name: "Saffron Mediterranean Kitchen", Type: types.VenueTypeRestaurant},
}

const itineraryCSV = "date,time,venue\n2026-05-01,10:30,L'Ecole No 41 Winery\n2026-05-01,13:00,Leonetti\n"

const importJSON = `{
  "confidence": 0.9,
  "proposal": {"trip_title": "Spring weekend", "trip_type": "wine_tour"},
  "days": [{"date": "2026-05-01", "stops": [
    {"venue_name": "L'Ecole No 41 Winery", "stop_type": "winery", "start_time": "10:30"},
    {"venue_name": "Leonetti", "stop_type": "winery", "start_time": "13:00"},
    {"venue_name": "Completely Unrelated Name", "stop_type": "activity"}
  ]}]
}`

func newImportService(client *scriptedClient, storage *memStorage, venues VenueLister) *ImportService {
	ex, _ := newTestExtractor(client)
	return NewImportService(docparse.NewRegistry(), ex, venues, storage, ImportConfig{MaxFiles: 3, MaxFileSizeBytes: 1 << 10})
}

func appErr(t *testing.T, err error, status int) *apperrors.AppError {
	t.Helper()
	require.Error(t, err)
	ae, ok := apperrors.As(err)
	require.True(t, ok, "expected AppError, got %T: %v", err, err)
	assert.Equal(t, status, ae.GetHTTPStatus())
	return ae
}

func TestImport_EndToEnd(t *testing.T) {
	client := &scriptedClient{replies: []scriptedReply{{text: importJSON}}}
	storage := &memStorage{}
	svc := newImportService(client, storage, staticVenues{venues: catalogue})

	result, err := svc.Import(context.Background(), []Upload{
		{Name: "itinerary.csv", DeclaredType: "text/csv", Data: []byte(itineraryCSV)},
		{Name: "empty.csv", DeclaredType: "text/csv"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.ImportID)
	assert.Equal(t, 1, result.Attempts)
	require.Len(t, result.SourceFiles, 2)
	assert.Equal(t, types.SourceFileParsed, result.SourceFiles[0].Status)
	assert.Equal(t, docparse.MIMECSV, result.SourceFiles[0].MIMEType)
	assert.Equal(t, types.SourceFileError, result.SourceFiles[1].Status)
	assert.Equal(t, docparse.ErrEmptyFile.Error(), result.SourceFiles[1].Error)

	stops := result.Days[0].Stops
	require.NotNil(t, stops[0].MatchedVenueID)
	assert.Equal(t, int64(1), *stops[0].MatchedVenueID)
	assert.Equal(t, 1.0, *stops[0].MatchConfidence)
	require.NotNil(t, stops[1].MatchedVenueID)
	assert.Equal(t, int64(2), *stops[1].MatchedVenueID)
	assert.Equal(t, 0.9, *stops[1].MatchConfidence)
	assert.Nil(t, stops[2].MatchedVenueID)

	require.Len(t, storage.keys, 1)
	assert.True(t, strings.HasPrefix(storage.keys[0], "imports/"+result.ImportID+"/01_itinerary.csv"))
	assert.Contains(t, client.requests[0].System, "Leonetti Cellar")
}

func TestImport_RequestLimits(t *testing.T) {
	svc := newImportService(&scriptedClient{}, &memStorage{}, staticVenues{})
	csv := Upload{Name: "a.csv", DeclaredType: "text/csv", Data: []byte("a,b\n1,2\n")}

	_, err := svc.Import(context.Background(), nil)
	appErr(t, err, http.StatusBadRequest)

	_, err = svc.Import(context.Background(), []Upload{csv, csv, csv, csv})
	ae := appErr(t, err, http.StatusBadRequest)
	assert.Equal(t, "Too many files", ae.Message)

	big := Upload{Name: "big.csv", DeclaredType: "text/csv", Data: []byte(strings.Repeat("a,b\n", 400))}
	_, err = svc.Import(context.Background(), []Upload{csv, big})
	ae = appErr(t, err, http.StatusBadRequest)
	assert.Equal(t, "File too large", ae.Message)

	gif := Upload{Name: "logo.gif", DeclaredType: "image/png", Data: []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")}
	_, err = svc.Import(context.Background(), []Upload{csv, gif})
	ae = appErr(t, err, http.StatusBadRequest)
	assert.Equal(t, "Unsupported file type", ae.Message)
	assert.Contains(t, ae.Detail, "logo.gif")
}

func TestImport_NothingParsed(t *testing.T) {
	client := &scriptedClient{}
	svc := newImportService(client, &memStorage{}, staticVenues{})

	_, err := svc.Import(context.Background(), []Upload{
		{Name: "a.csv", DeclaredType: "text/csv"},
		{Name: "b.pdf", DeclaredType: "application/pdf", Data: []byte("%PDF-1.4\nnot really a pdf")},
	})
	ae := appErr(t, err, http.StatusBadRequest)
	statuses, ok := ae.Extras["files"].([]types.SourceFileStatus)
	require.True(t, ok)
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		assert.Equal(t, types.SourceFileError, st.Status)
		assert.NotEmpty(t, st.Error)
	}
	assert.Empty(t, client.requests)
}

func TestImport_ExtractionFailsTwice(t *testing.T) {
	client := &scriptedClient{replies: []scriptedReply{{text: "Sure! Here you go."}, {text: "I cannot comply."}}}
	svc := newImportService(client, &memStorage{}, staticVenues{venues: catalogue})

	_, err := svc.Import(context.Background(), []Upload{{Name: "a.csv", DeclaredType: "text/csv", Data: []byte(itineraryCSV)}})
	ae := appErr(t, err, http.StatusUnprocessableEntity)
	assert.Equal(t, apperrors.ExtractionFailedError, ae.Type)
	assert.Equal(t, "The AI returned an unstructured response. Please upload clearer documents.", ae.Message)
	assert.Len(t, client.requests, 2)
}

func TestImport_ModelUnavailable(t *testing.T) {
	down := errors.New("dial tcp: connection refused")
	client := &scriptedClient{replies: []scriptedReply{{err: down}, {err: down}}}
	svc := newImportService(client, &memStorage{}, staticVenues{})

	_, err := svc.Import(context.Background(), []Upload{{Name: "a.csv", DeclaredType: "text/csv", Data: []byte(itineraryCSV)}})
	ae := appErr(t, err, http.StatusBadGateway)
	assert.Equal(t, apperrors.ExternalServiceError, ae.Type)
}

func TestImport_DegradesWithoutVenuesOrArchive(t *testing.T) {
	client := &scriptedClient{replies: []scriptedReply{{text: importJSON}}}
	svc := newImportService(client, &memStorage{fail: true}, staticVenues{err: errors.New("db down")})

	result, err := svc.Import(context.Background(), []Upload{{Name: "a.csv", DeclaredType: "text/csv", Data: []byte(itineraryCSV)}})
	require.NoError(t, err)
	assert.Nil(t, result.Days[0].Stops[0].MatchedVenueID)
	assert.NotContains(t, client.requests[0].System, "Known venues")
}
