package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"listing-scraper/models"
)

// CSVWriter exports a run's cleaned listings next to the database write.
type CSVWriter struct {
	path string
}

func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{path: path}
}

var csvHeader = []string{
	"source", "source_id", "building_name", "property_type", "address", "access",
	"age_years", "floors", "floor", "layout", "area_sqm", "rent", "admin_fee",
	"deposit", "key_money", "url",
}

// Write replaces the file at path with one row per listing, creating the
// parent directory when needed.
func (w *CSVWriter) Write(listings []models.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("could not create output dir: %w", err)
	}

	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}

	for _, l := range listings {
		row := []string{
			l.Source,
			l.SourceID,
			l.BuildingName,
			l.PropertyType,
			l.Address,
			strings.Join(l.Access, " / "),
			strconv.Itoa(l.AgeYears),
			strconv.Itoa(l.Floors),
			l.Floor,
			l.Layout,
			strconv.FormatFloat(l.AreaSqm, 'f', 2, 64),
			strconv.FormatInt(l.Rent, 10),
			strconv.FormatInt(l.AdminFee, 10),
			strconv.FormatInt(l.Deposit, 10),
			strconv.FormatInt(l.KeyMoney, 10),
			l.URL,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("csv write error: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}
	return nil
}

func (w *CSVWriter) Path() string {
	return w.path
}
