package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"listing-scraper/config"
	"listing-scraper/models"
	"listing-scraper/scraper/suumo"
	"listing-scraper/storage"
)

var ErrUnknownSource = errors.New("unknown listing source")

// ListingSource is one listing site. Implementations scrape, persist and
// report what the store did.
type ListingSource interface {
	Name() string
	FetchListings(ctx context.Context, q models.SearchQuery) (*models.ScrapeResult, error)
	Close() error
}

type Deps struct {
	Store    storage.ListingStore
	Notifier suumo.Notifier
	Logger   *slog.Logger
}

// New builds the source named by cfg.Source. Only Suumo exists today.
func New(cfg *config.Config, deps Deps) (ListingSource, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case suumo.SourceName, "":
		var opts []suumo.Option
		if deps.Notifier != nil {
			opts = append(opts, suumo.WithNotifier(deps.Notifier))
		}
		a, err := suumo.New(cfg, deps.Store, deps.Logger, opts...)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.Source)
	}
}

func Available() []string {
	return []string{suumo.SourceName}
}
