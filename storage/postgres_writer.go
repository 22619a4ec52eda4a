package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"listing-scraper/models"
)

type PostgresWriter struct {
	pool *pgxpool.Pool
}

func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres url: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	return &PostgresWriter{pool: pool}, nil
}

func (w *PostgresWriter) Close() {
	if w.pool != nil {
		w.pool.Close()
	}
}

func (w *PostgresWriter) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	sql := `
	CREATE TABLE IF NOT EXISTS listings (
		id BIGSERIAL PRIMARY KEY,
		source TEXT NOT NULL,
		source_id TEXT NOT NULL,
		url TEXT NOT NULL,
		building_name TEXT NOT NULL,
		property_type TEXT,
		address TEXT,
		access TEXT[],
		age_years INTEGER,
		floors INTEGER,
		floor TEXT,
		layout TEXT,
		area_sqm NUMERIC(8,2),
		rent BIGINT,
		admin_fee BIGINT,
		deposit BIGINT,
		key_money BIGINT,
		raw_rent TEXT,
		content_hash TEXT NOT NULL,
		first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (source, source_id)
	);

	CREATE INDEX IF NOT EXISTS idx_listings_rent ON listings(rent);
	CREATE INDEX IF NOT EXISTS idx_listings_layout ON listings(layout);
	`

	if _, err := w.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	return nil
}

// The WHERE on the conflict branch skips identical rows, so RETURNING
// yields nothing for them; xmax = 0 marks a fresh insert.
const upsertSQL = `
	INSERT INTO listings (
		source, source_id, url, building_name, property_type, address, access,
		age_years, floors, floor, layout, area_sqm, rent, admin_fee, deposit,
		key_money, raw_rent, content_hash, first_seen_at, last_seen_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19)
	ON CONFLICT (source, source_id) DO UPDATE SET
		url = EXCLUDED.url,
		building_name = EXCLUDED.building_name,
		property_type = EXCLUDED.property_type,
		address = EXCLUDED.address,
		access = EXCLUDED.access,
		age_years = EXCLUDED.age_years,
		floors = EXCLUDED.floors,
		floor = EXCLUDED.floor,
		layout = EXCLUDED.layout,
		area_sqm = EXCLUDED.area_sqm,
		rent = EXCLUDED.rent,
		admin_fee = EXCLUDED.admin_fee,
		deposit = EXCLUDED.deposit,
		key_money = EXCLUDED.key_money,
		raw_rent = EXCLUDED.raw_rent,
		content_hash = EXCLUDED.content_hash,
		last_seen_at = EXCLUDED.last_seen_at
	WHERE listings.content_hash <> EXCLUDED.content_hash
	RETURNING (xmax = 0) AS inserted;
	`

func (w *PostgresWriter) Upsert(ctx context.Context, listings []models.Listing) (models.DBStats, error) {
	var stats models.DBStats
	if len(listings) == 0 {
		return stats, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	now := time.Now().UTC()

	for _, l := range listings {
		if !validForStorage(l) {
			continue
		}
		seen := l.ScrapedAt
		if seen.IsZero() {
			seen = now
		}

		batch.Queue(
			upsertSQL,
			strings.ToLower(strings.TrimSpace(l.Source)),
			strings.TrimSpace(l.SourceID),
			strings.TrimSpace(l.URL),
			strings.TrimSpace(l.BuildingName),
			l.PropertyType,
			l.Address,
			l.Access,
			l.AgeYears,
			l.Floors,
			l.Floor,
			l.Layout,
			l.AreaSqm,
			l.Rent,
			l.AdminFee,
			l.Deposit,
			l.KeyMoney,
			l.RawRent,
			ContentHash(l),
			seen,
		)
	}

	if batch.Len() == 0 {
		return stats, nil
	}

	results := w.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		var inserted bool
		err := results.QueryRow().Scan(&inserted)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			stats.Unchanged++
		case err != nil:
			return models.DBStats{}, fmt.Errorf("batch upsert failed at row %d: %w", i, err)
		case inserted:
			stats.Inserted++
		default:
			stats.Updated++
		}
	}

	return stats, nil
}
