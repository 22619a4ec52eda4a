package suumo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"

	"listing-scraper/config"
	"listing-scraper/utils"
)

// PageFetcher returns the HTML of one search result page.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
	Close() error
}

// CollyFetcher is the default plain HTTP fetcher.
type CollyFetcher struct {
	collector *colly.Collector
	logger    *slog.Logger
}

func NewCollyFetcher(cfg *config.Config, logger *slog.Logger) (*CollyFetcher, error) {
	c := colly.NewCollector(colly.AllowURLRevisit())
	c.SetRequestTimeout(cfg.RequestTimeout)

	err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.MaxWorkers,
	})
	if err != nil {
		return nil, fmt.Errorf("suumo: failed to set limit rule: %w", err)
	}

	return &CollyFetcher{collector: c, logger: logger}, nil
}

func (f *CollyFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Clone shares the HTTP backend and limits but not callbacks.
	c := f.collector.Clone()
	c.Context = ctx
	extensions.Referer(c)

	var body []byte
	var responseErr error

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", utils.RandomUserAgent())
		r.Headers.Set("Accept-Language", "ja,en-US;q=0.8,en;q=0.6")
		f.logger.Debug("requesting search page", "url", r.URL.String())
	})

	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	c.OnError(func(r *colly.Response, err error) {
		responseErr = fmt.Errorf("suumo: request to %s failed with status %d: %w", r.Request.URL, r.StatusCode, err)
	})

	if err := c.Visit(pageURL); err != nil {
		if responseErr != nil {
			return nil, responseErr
		}
		return nil, fmt.Errorf("suumo: failed to visit %s: %w", pageURL, err)
	}
	c.Wait()

	if responseErr != nil {
		return nil, responseErr
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("suumo: empty response from %s", pageURL)
	}
	return body, nil
}

func (f *CollyFetcher) Close() error {
	return nil
}
