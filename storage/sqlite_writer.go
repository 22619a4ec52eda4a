package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"listing-scraper/models"
)

// SQLiteWriter is the zero-setup store used when DATABASE_URL points at a
// local file.
type SQLiteWriter struct {
	db *sql.DB
}

func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty sqlite path", ErrUnsupportedDatabase)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect sqlite: %w", err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	return &SQLiteWriter{db: db}, nil
}

func (w *SQLiteWriter) Close() {
	if w.db != nil {
		w.db.Close()
	}
}

func (w *SQLiteWriter) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS listings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		source_id TEXT NOT NULL,
		url TEXT NOT NULL,
		building_name TEXT NOT NULL,
		property_type TEXT,
		address TEXT,
		access TEXT,
		age_years INTEGER,
		floors INTEGER,
		floor TEXT,
		layout TEXT,
		area_sqm REAL,
		rent INTEGER,
		admin_fee INTEGER,
		deposit INTEGER,
		key_money INTEGER,
		raw_rent TEXT,
		content_hash TEXT NOT NULL,
		first_seen_at TIMESTAMP NOT NULL,
		last_seen_at TIMESTAMP NOT NULL,
		UNIQUE (source, source_id)
	);

	CREATE INDEX IF NOT EXISTS idx_listings_rent ON listings(rent);
	CREATE INDEX IF NOT EXISTS idx_listings_layout ON listings(layout);
	`

	if _, err := w.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (w *SQLiteWriter) Upsert(ctx context.Context, listings []models.Listing) (models.DBStats, error) {
	var stats models.DBStats
	if len(listings) == 0 {
		return stats, nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lookup, err := tx.PrepareContext(ctx, `SELECT content_hash FROM listings WHERE source = ? AND source_id = ?`)
	if err != nil {
		return stats, fmt.Errorf("failed to prepare lookup: %w", err)
	}
	defer lookup.Close()

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO listings (
			source, source_id, url, building_name, property_type, address, access,
			age_years, floors, floor, layout, area_sqm, rent, admin_fee, deposit,
			key_money, raw_rent, content_hash, first_seen_at, last_seen_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return stats, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer insert.Close()

	update, err := tx.PrepareContext(ctx, `
		UPDATE listings SET
			url = ?, building_name = ?, property_type = ?, address = ?, access = ?,
			age_years = ?, floors = ?, floor = ?, layout = ?, area_sqm = ?, rent = ?,
			admin_fee = ?, deposit = ?, key_money = ?, raw_rent = ?, content_hash = ?,
			last_seen_at = ?
		WHERE source = ? AND source_id = ?`)
	if err != nil {
		return stats, fmt.Errorf("failed to prepare update: %w", err)
	}
	defer update.Close()

	now := time.Now().UTC()
	for i, l := range listings {
		if !validForStorage(l) {
			continue
		}
		source := strings.ToLower(strings.TrimSpace(l.Source))
		sourceID := strings.TrimSpace(l.SourceID)
		hash := ContentHash(l)
		seen := l.ScrapedAt
		if seen.IsZero() {
			seen = now
		}
		access := strings.Join(l.Access, "\n")

		var existing string
		err := lookup.QueryRowContext(ctx, source, sourceID).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := insert.ExecContext(ctx,
				source, sourceID, strings.TrimSpace(l.URL), strings.TrimSpace(l.BuildingName),
				l.PropertyType, l.Address, access, l.AgeYears, l.Floors, l.Floor, l.Layout,
				l.AreaSqm, l.Rent, l.AdminFee, l.Deposit, l.KeyMoney, l.RawRent, hash, seen, seen,
			); err != nil {
				return models.DBStats{}, fmt.Errorf("insert failed at row %d: %w", i, err)
			}
			stats.Inserted++
		case err != nil:
			return models.DBStats{}, fmt.Errorf("lookup failed at row %d: %w", i, err)
		case existing == hash:
			stats.Unchanged++
		default:
			if _, err := update.ExecContext(ctx,
				strings.TrimSpace(l.URL), strings.TrimSpace(l.BuildingName), l.PropertyType,
				l.Address, access, l.AgeYears, l.Floors, l.Floor, l.Layout, l.AreaSqm, l.Rent,
				l.AdminFee, l.Deposit, l.KeyMoney, l.RawRent, hash, seen, source, sourceID,
			); err != nil {
				return models.DBStats{}, fmt.Errorf("update failed at row %d: %w", i, err)
			}
			stats.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return models.DBStats{}, fmt.Errorf("failed to commit listings: %w", err)
	}
	return stats, nil
}
