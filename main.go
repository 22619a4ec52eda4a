package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"listing-scraper/config"
	"listing-scraper/events"
	"listing-scraper/models"
	"listing-scraper/scraper"
	"listing-scraper/storage"
	"listing-scraper/utils"
)

const (
	exitCodeOK  = 0
	exitCodeErr = 1
)

// sourceOpener builds the configured listing source and everything it
// needs. The returned cleanup releases those resources.
type sourceOpener func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (scraper.ListingSource, func(), error)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr, openSource))
}

func run(args []string, stdout, stderr io.Writer, open sourceOpener) int {
	prog := "listing-scraper"
	if len(args) > 0 {
		prog = filepath.Base(args[0])
	}
	if len(args) < 2 {
		fmt.Fprintf(stdout, "Usage: %s <keyword> [region_code]\n", prog)
		return exitCodeErr
	}

	query := models.SearchQuery{Keyword: args[1]}
	if len(args) > 2 {
		region := args[2]
		query.Region = &region
	}

	logger := utils.SetupLogger(stderr, utils.LogOptions{Level: slog.LevelInfo, Color: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return exitCodeErr
	}
	logger = utils.SetupLogger(stderr, utils.LogOptions{
		Level: slog.LevelInfo,
		JSON:  cfg.LogFormat == "json",
		Color: cfg.LogColor,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	source, cleanup, err := open(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, scraper.ErrUnknownSource) {
			logger.Error("could not start listing source", "error", err, "available", scraper.Available())
		} else {
			logger.Error("could not start listing source", "error", err)
		}
		return exitCodeErr
	}
	defer cleanup()

	result, err := source.FetchListings(ctx, query)
	if err != nil {
		logger.Error("scrape failed", "source", source.Name(), "error", err)
		return exitCodeErr
	}

	fmt.Fprintf(stdout, "[%s] Inserted: %d, Updated: %d\n", source.Name(), result.DBStats.Inserted, result.DBStats.Updated)
	return exitCodeOK
}

func openSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (scraper.ListingSource, func(), error) {
	store, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	deps := scraper.Deps{Store: store, Logger: logger}

	var publisher *events.Publisher
	if cfg.RabbitMQURL != "" {
		publisher, err = events.NewPublisher(events.PublisherConfig{
			URL:          cfg.RabbitMQURL,
			ExchangeName: cfg.RabbitExchange,
		}, logger)
		if err != nil {
			logger.Warn("run events disabled", "error", err)
		} else {
			deps.Notifier = publisher
		}
	}

	source, err := scraper.New(cfg, deps)
	if err != nil {
		if publisher != nil {
			publisher.Close()
		}
		store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := source.Close(); err != nil {
			logger.Warn("source close failed", "error", err)
		}
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				logger.Warn("publisher close failed", "error", err)
			}
		}
		store.Close()
	}
	return source, cleanup, nil
}
