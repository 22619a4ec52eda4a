package services

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"listing-scraper/models"
)

type Report struct {
	TotalListings  int
	Buildings      int
	AverageRent    float64
	MinRent        int64
	MaxRent        int64
	Cheapest       models.Listing
	AverageAreaSqm float64
	ListingsByType map[string]int
	ListingsByRoom map[string]int
}

// GenerateReport computes run insights over already-cleaned listings.
func GenerateReport(listings []models.Listing) Report {
	report := Report{
		TotalListings:  len(listings),
		ListingsByType: make(map[string]int),
		ListingsByRoom: make(map[string]int),
	}

	if len(listings) == 0 {
		return report
	}

	var (
		rentSum    int64
		rentCount  int
		areaSum    float64
		areaCount  int
		minRent    int64 = math.MaxInt64
		buildings        = make(map[string]bool)
	)

	for _, l := range listings {
		buildings[l.BuildingName+"|"+l.Address] = true
		report.ListingsByType[orUnknown(l.PropertyType)]++
		report.ListingsByRoom[orUnknown(l.Layout)]++

		if l.Rent > 0 {
			rentSum += l.Rent
			rentCount++
			if l.Rent < minRent {
				minRent = l.Rent
				report.Cheapest = l
			}
			if l.Rent > report.MaxRent {
				report.MaxRent = l.Rent
			}
		}
		if l.AreaSqm > 0 {
			areaSum += l.AreaSqm
			areaCount++
		}
	}

	report.Buildings = len(buildings)
	if rentCount > 0 {
		report.AverageRent = float64(rentSum) / float64(rentCount)
		report.MinRent = minRent
	}
	if areaCount > 0 {
		report.AverageAreaSqm = areaSum / float64(areaCount)
	}

	return report
}

func LogReport(logger *slog.Logger, report Report) {
	logger.Info("market insights",
		"listings", report.TotalListings,
		"buildings", report.Buildings,
		"avg_rent", math.Round(report.AverageRent),
		"min_rent", report.MinRent,
		"max_rent", report.MaxRent,
		"avg_area_sqm", math.Round(report.AverageAreaSqm*10)/10,
	)

	for _, layout := range sortedKeys(report.ListingsByRoom) {
		logger.Info("listings per layout", "layout", layout, "count", report.ListingsByRoom[layout])
	}

	if report.Cheapest.SourceID != "" {
		logger.Info("cheapest listing",
			"building", report.Cheapest.BuildingName,
			"rent", report.Cheapest.Rent,
			"layout", report.Cheapest.Layout,
			"url", report.Cheapest.URL,
		)
	}
}

// CleanListings trims text fields, drops rows missing a URL or building
// name, and keeps the first row seen for each (source, source id).
func CleanListings(listings []models.Listing) []models.Listing {
	seen := make(map[string]bool)
	cleaned := make([]models.Listing, 0, len(listings))

	for _, l := range listings {
		l.Source = strings.TrimSpace(strings.ToLower(l.Source))
		l.SourceID = strings.TrimSpace(l.SourceID)
		l.URL = strings.TrimSpace(l.URL)
		l.BuildingName = strings.TrimSpace(l.BuildingName)
		l.Address = strings.TrimSpace(l.Address)
		l.Layout = strings.TrimSpace(l.Layout)

		if l.BuildingName == "" || l.URL == "" {
			continue
		}
		if l.SourceID == "" {
			l.SourceID = l.URL
		}

		key := l.Source + "|" + l.SourceID
		if seen[key] {
			continue
		}

		seen[key] = true
		cleaned = append(cleaned, l)
	}

	return cleaned
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "Unknown"
	}
	return s
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
