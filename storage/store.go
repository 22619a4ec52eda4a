package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"listing-scraper/models"
)

var ErrUnsupportedDatabase = errors.New("unsupported database url")

// ListingStore persists scraped listings keyed by (source, source_id).
type ListingStore interface {
	EnsureSchema(ctx context.Context) error
	// Upsert inserts new listings, rewrites listings whose content changed
	// and leaves identical ones alone.
	Upsert(ctx context.Context, listings []models.Listing) (models.DBStats, error)
	Close()
}

// Open picks a store implementation from the database URL scheme.
func Open(ctx context.Context, databaseURL string) (ListingStore, error) {
	u := strings.TrimSpace(databaseURL)
	switch {
	case u == "":
		return nil, fmt.Errorf("%w: empty DATABASE_URL", ErrUnsupportedDatabase)
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		pg, err := NewPostgresWriter(ctx, u)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case strings.HasPrefix(u, "sqlite://"), strings.HasPrefix(u, "file:"):
		lite, err := NewSQLiteWriter(strings.TrimPrefix(u, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return lite, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDatabase, redact(u))
	}
}

// ContentHash fingerprints the fields a re-listing can change, so an
// unchanged row is not rewritten on the next run.
func ContentHash(l models.Listing) string {
	parts := []string{
		l.URL,
		l.BuildingName,
		l.PropertyType,
		l.Address,
		strings.Join(l.Access, "|"),
		strconv.Itoa(l.AgeYears),
		strconv.Itoa(l.Floors),
		l.Floor,
		l.Layout,
		strconv.FormatFloat(l.AreaSqm, 'f', 2, 64),
		strconv.FormatInt(l.Rent, 10),
		strconv.FormatInt(l.AdminFee, 10),
		strconv.FormatInt(l.Deposit, 10),
		strconv.FormatInt(l.KeyMoney, 10),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func validForStorage(l models.Listing) bool {
	return strings.TrimSpace(l.Source) != "" && strings.TrimSpace(l.SourceID) != "" && strings.TrimSpace(l.URL) != ""
}

func redact(u string) string {
	if i := strings.Index(u, "@"); i >= 0 {
		if j := strings.Index(u, "://"); j >= 0 && j < i {
			return u[:j+3] + "***" + u[i:]
		}
	}
	return u
}
