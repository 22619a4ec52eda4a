package suumo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"listing-scraper/config"
	"listing-scraper/models"
	"listing-scraper/services"
	"listing-scraper/storage"
	"listing-scraper/utils"
)

const (
	SourceName  = "suumo"
	DisplayName = "Suumo"
)

// Notifier receives a summary of every successful run.
type Notifier interface {
	PublishScrapeCompleted(ctx context.Context, result *models.ScrapeResult) error
}

// Adapter scrapes Suumo rental search results and persists them.
type Adapter struct {
	cfg      *config.Config
	fetcher  PageFetcher
	store    storage.ListingStore
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Adapter)

func WithFetcher(f PageFetcher) Option {
	return func(a *Adapter) { a.fetcher = f }
}

func WithNotifier(n Notifier) Option {
	return func(a *Adapter) { a.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

func New(cfg *config.Config, store storage.ListingStore, logger *slog.Logger, opts ...Option) (*Adapter, error) {
	if store == nil {
		return nil, errors.New("suumo: listing store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Adapter{
		cfg:    cfg,
		store:  store,
		logger: logger.With("component", "suumo"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.fetcher == nil {
		if cfg.Render {
			a.fetcher = NewBrowserFetcher(cfg, a.logger)
		} else {
			f, err := NewCollyFetcher(cfg, a.logger)
			if err != nil {
				return nil, err
			}
			a.fetcher = f
		}
	}

	return a, nil
}

func (a *Adapter) Name() string {
	return DisplayName
}

func (a *Adapter) Close() error {
	return a.fetcher.Close()
}

// FetchListings scrapes up to MaxPages result pages for q, stores the
// cleaned listings and reports what the store did with them. A failure on
// the first page or in the store fails the run; later page failures are
// counted in Failed.
func (a *Adapter) FetchListings(ctx context.Context, q models.SearchQuery) (*models.ScrapeResult, error) {
	result := &models.ScrapeResult{
		RunID:     uuid.NewString(),
		Source:    SourceName,
		Query:     q,
		StartedAt: a.now().UTC(),
	}

	logger := a.logger.With("run_id", result.RunID, "keyword", q.Keyword)
	if q.Region != nil {
		logger = logger.With("region", *q.Region)
	}

	// Resolve the URL up front so a bad region fails before any I/O.
	if _, err := BuildSearchURL(a.cfg.BaseURL, q, 1, a.cfg.PageSize); err != nil {
		return nil, fmt.Errorf("suumo: %w", err)
	}

	logger.Info("scrape starting", "max_pages", a.cfg.MaxPages, "workers", a.cfg.MaxWorkers)

	first, err := a.fetchPage(ctx, q, 1)
	if err != nil {
		return nil, fmt.Errorf("suumo: first page: %w", err)
	}
	result.TotalHits = first.TotalHits
	result.Pages = 1

	lastPage := first.LastPage
	if lastPage > a.cfg.MaxPages {
		lastPage = a.cfg.MaxPages
	}
	logger.Info("first page parsed", "listings", len(first.Listings), "hits", first.TotalHits, "pages", lastPage)

	all := append([]models.Listing(nil), first.Listings...)

	var jobs []models.PageJob
	for page := 2; page <= lastPage; page++ {
		pageURL, _ := BuildSearchURL(a.cfg.BaseURL, q, page, a.cfg.PageSize)
		jobs = append(jobs, models.PageJob{URL: pageURL, PageNumber: page})
	}

	pool := NewWorkerPool(a.cfg.MaxWorkers, func(ctx context.Context, job models.PageJob) ([]models.Listing, error) {
		if err := utils.RandomDelay(ctx, a.cfg.MinDelay, a.cfg.MaxDelay); err != nil {
			return nil, err
		}
		page, err := a.fetchPage(ctx, q, job.PageNumber)
		if err != nil {
			return nil, err
		}
		return page.Listings, nil
	})

	for i, pr := range pool.Run(ctx, jobs) {
		if pr.Error != nil {
			logger.Error("page failed", "page", pr.PageNumber, "url", jobs[i].URL, "error", pr.Error)
			result.Failed++
			continue
		}
		result.Pages++
		all = append(all, pr.Listings...)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("suumo: %w", err)
	}

	cleaned := services.CleanListings(all)
	result.Listings = cleaned
	logger.Info("pages scraped", "pages", result.Pages, "failed", result.Failed, "rows", len(all), "listings", len(cleaned))

	stats, err := a.store.Upsert(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("suumo: store listings: %w", err)
	}
	result.DBStats = stats
	result.FinishedAt = a.now().UTC()

	logger.Info("listings stored",
		"inserted", stats.Inserted, "updated", stats.Updated, "unchanged", stats.Unchanged,
		"duration", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))

	a.afterRun(ctx, logger, result)
	return result, nil
}

// afterRun handles the optional side outputs. Their failures are logged
// and never fail the run.
func (a *Adapter) afterRun(ctx context.Context, logger *slog.Logger, result *models.ScrapeResult) {
	services.LogReport(logger, services.GenerateReport(result.Listings))

	if a.cfg.CSVPath != "" {
		w := storage.NewCSVWriter(a.cfg.CSVPath)
		if err := w.Write(result.Listings); err != nil {
			logger.Warn("csv export failed", "path", w.Path(), "error", err)
		} else {
			logger.Info("csv exported", "path", w.Path(), "rows", len(result.Listings))
		}
	}

	if a.notifier != nil {
		if err := a.notifier.PublishScrapeCompleted(ctx, result); err != nil {
			logger.Warn("run event not published", "error", err)
		}
	}
}

func (a *Adapter) fetchPage(ctx context.Context, q models.SearchQuery, page int) (*SearchPage, error) {
	pageURL, err := BuildSearchURL(a.cfg.BaseURL, q, page, a.cfg.PageSize)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	var body []byte
	err = utils.Retry(ctx, a.cfg.MaxRetries, a.cfg.RetryBackoff, func() error {
		var fetchErr error
		body, fetchErr = a.fetcher.Fetch(ctx, pageURL)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page, err)
	}

	parsed, err := ParseSearchPage(bytes.NewReader(body), base)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page, err)
	}

	scrapedAt := a.now().UTC()
	for i := range parsed.Listings {
		parsed.Listings[i].ScrapedAt = scrapedAt
	}
	return parsed, nil
}
