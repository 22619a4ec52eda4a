package suumo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-scraper/config"
	"listing-scraper/models"
	"listing-scraper/storage"
)

type recordingStore struct {
	mu       sync.Mutex
	upserted []models.Listing
	stats    models.DBStats
	err      error
}

func (s *recordingStore) EnsureSchema(context.Context) error { return nil }
func (s *recordingStore) Close()                             {}

func (s *recordingStore) Upsert(_ context.Context, listings []models.Listing) (models.DBStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserted = append(s.upserted, listings...)
	return s.stats, s.err
}

type recordingNotifier struct {
	results []*models.ScrapeResult
	err     error
}

func (n *recordingNotifier) PublishScrapeCompleted(_ context.Context, r *models.ScrapeResult) error {
	n.results = append(n.results, r)
	return n.err
}

func testConfig(baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.MinDelay = 0
	cfg.MaxDelay = 0
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	cfg.RequestTimeout = 5 * time.Second
	cfg.MaxWorkers = 2
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// suumoServer serves the fixtures by page number and counts requests.
func suumoServer(t *testing.T, hits *int32, check func(*http.Request)) *httptest.Server {
	t.Helper()
	page1, err := os.ReadFile("testdata/search_page1.html")
	require.NoError(t, err)
	page2, err := os.ReadFile("testdata/search_page2.html")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if check != nil {
			check(r)
		}
		if r.URL.Path != searchPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Query().Get("page") {
		case "1":
			w.Write(page1)
		case "2":
			w.Write(page2)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchListings(t *testing.T) {
	var hits int32
	var mu sync.Mutex
	var seenQueries []string
	srv := suumoServer(t, &hits, func(r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		seenQueries = append(seenQueries, r.URL.RawQuery)
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
	})

	store := &recordingStore{stats: models.DBStats{Inserted: 3, Updated: 1}}
	notifier := &recordingNotifier{}
	cfg := testConfig(srv.URL)
	cfg.CSVPath = filepath.Join(t.TempDir(), "listings.csv")

	a, err := New(cfg, store, discardLogger(), WithNotifier(notifier))
	require.NoError(t, err)
	defer a.Close()

	region := "13"
	result, err := a.FetchListings(context.Background(), models.SearchQuery{Keyword: "apartment", Region: &region})
	require.NoError(t, err)

	assert.Equal(t, "Suumo", a.Name())
	assert.Equal(t, models.DBStats{Inserted: 3, Updated: 1}, result.DBStats)
	assert.Equal(t, 2, result.Pages)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 5, result.TotalHits)
	assert.NotEmpty(t, result.RunID)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))

	require.Len(t, store.upserted, 4, "duplicate room on page 2 is dropped")
	ids := make([]string, 0, len(store.upserted))
	for _, l := range store.upserted {
		ids = append(ids, l.SourceID)
		assert.False(t, l.ScrapedAt.IsZero())
	}
	assert.ElementsMatch(t, []string{"jnc_000012345678", "jnc_000087654321", "jnc_000011112222", "jnc_000033334444"}, ids)

	for _, q := range seenQueries {
		assert.Contains(t, q, "ta=13")
		assert.Contains(t, q, "ar=030")
		assert.Contains(t, q, "fw2=apartment")
	}

	require.Len(t, notifier.results, 1)
	assert.Equal(t, result.RunID, notifier.results[0].RunID)

	_, err = os.Stat(cfg.CSVPath)
	assert.NoError(t, err)
}

func TestFetchListingsRespectsMaxPages(t *testing.T) {
	var hits int32
	srv := suumoServer(t, &hits, nil)
	store := &recordingStore{}
	cfg := testConfig(srv.URL)
	cfg.MaxPages = 1

	a, err := New(cfg, store, discardLogger())
	require.NoError(t, err)

	result, err := a.FetchListings(context.Background(), models.SearchQuery{Keyword: "apartment"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pages)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
	assert.Len(t, store.upserted, 3)
}

func TestFetchListingsUnknownRegionSkipsNetwork(t *testing.T) {
	var hits int32
	srv := suumoServer(t, &hits, nil)
	store := &recordingStore{}

	a, err := New(testConfig(srv.URL), store, discardLogger())
	require.NoError(t, err)

	region := "99"
	_, err = a.FetchListings(context.Background(), models.SearchQuery{Keyword: "apartment", Region: &region})
	require.ErrorIs(t, err, ErrUnknownRegion)
	assert.Zero(t, atomic.LoadInt32(&hits))
	assert.Empty(t, store.upserted)
}

func TestFetchListingsFirstPageFailure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := &recordingStore{}
	a, err := New(testConfig(srv.URL), store, discardLogger())
	require.NoError(t, err)

	_, err = a.FetchListings(context.Background(), models.SearchQuery{Keyword: "apartment"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first page")
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits), "one retry")
	assert.Empty(t, store.upserted)
}

func TestFetchListingsLaterPageFailureIsCounted(t *testing.T) {
	page1, err := os.ReadFile("testdata/search_page1.html")
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			w.Write(page1)
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := &recordingStore{stats: models.DBStats{Inserted: 3}}
	a, err := New(testConfig(srv.URL), store, discardLogger())
	require.NoError(t, err)

	result, err := a.FetchListings(context.Background(), models.SearchQuery{Keyword: "apartment"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Pages)
	assert.Len(t, store.upserted, 3)
}

func TestFetchListingsStoreErrorPropagates(t *testing.T) {
	var hits int32
	srv := suumoServer(t, &hits, nil)
	dbErr := errors.New("db down")
	notifier := &recordingNotifier{}

	a, err := New(testConfig(srv.URL), &recordingStore{err: dbErr}, discardLogger(), WithNotifier(notifier))
	require.NoError(t, err)

	_, err = a.FetchListings(context.Background(), models.SearchQuery{Keyword: "apartment"})
	require.ErrorIs(t, err, dbErr)
	assert.Empty(t, notifier.results)
}

func TestFetchListingsNotifierFailureIsNotFatal(t *testing.T) {
	var hits int32
	srv := suumoServer(t, &hits, nil)
	notifier := &recordingNotifier{err: errors.New("broker gone")}

	a, err := New(testConfig(srv.URL), &recordingStore{}, discardLogger(), WithNotifier(notifier))
	require.NoError(t, err)

	_, err = a.FetchListings(context.Background(), models.SearchQuery{Keyword: "apartment"})
	require.NoError(t, err)
	assert.Len(t, notifier.results, 1)
}

func TestFetchListingsWithSQLiteStore(t *testing.T) {
	var hits int32
	srv := suumoServer(t, &hits, nil)
	ctx := context.Background()

	store, err := storage.NewSQLiteWriter(filepath.Join(t.TempDir(), "listings.db"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.EnsureSchema(ctx))

	a, err := New(testConfig(srv.URL), store, discardLogger())
	require.NoError(t, err)

	result, err := a.FetchListings(ctx, models.SearchQuery{Keyword: "apartment"})
	require.NoError(t, err)
	assert.Equal(t, models.DBStats{Inserted: 4}, result.DBStats)

	result, err = a.FetchListings(ctx, models.SearchQuery{Keyword: "apartment"})
	require.NoError(t, err)
	assert.Equal(t, models.DBStats{Unchanged: 4}, result.DBStats)
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(config.DefaultConfig(), nil, discardLogger())
	assert.Error(t, err)
}
