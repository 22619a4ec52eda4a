package suumo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"listing-scraper/config"
	"listing-scraper/utils"
)

// BrowserFetcher renders pages in headless Chrome. Used when RENDER=true.
type BrowserFetcher struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	timeout     time.Duration
	logger      *slog.Logger
}

func NewBrowserFetcher(cfg *config.Config, logger *slog.Logger) *BrowserFetcher {
	logger.Info("launching chrome", "headless", cfg.Headless)
	allocCtx, allocCancel := chromedp.NewExecAllocator(
		context.Background(),
		utils.StealthOpts(cfg.Headless)...,
	)
	return &BrowserFetcher{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		timeout:     cfg.RequestTimeout,
		logger:      logger,
	}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	tabCtx, tabCancel := chromedp.NewContext(f.allocCtx)
	defer tabCancel()

	runCtx, cancel := context.WithTimeout(tabCtx, f.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(pageURL),
		utils.HideWebDriver(),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("suumo: chromedp failed for %s: %w", pageURL, err)
	}

	f.logger.Debug("rendered search page", "url", pageURL, "bytes", len(html))
	return []byte(html), nil
}

func (f *BrowserFetcher) Close() error {
	f.logger.Info("closing chrome")
	f.allocCancel()
	return nil
}
