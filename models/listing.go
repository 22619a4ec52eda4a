package models

import "time"

// Listing is one rentable room row from a search result page. Money
// fields are in yen.
type Listing struct {
	ID           int64
	Source       string
	SourceID     string
	URL          string
	BuildingName string
	PropertyType string
	Address      string
	Access       []string
	AgeYears     int
	Floors       int
	Floor        string
	Layout       string
	AreaSqm      float64
	Rent         int64
	AdminFee     int64
	Deposit      int64
	KeyMoney     int64
	RawRent      string
	ScrapedAt    time.Time
}

// SearchQuery is what the CLI hands to a listing source. Region is nil
// when no region code was given.
type SearchQuery struct {
	Keyword string
	Region  *string
}

func (q SearchQuery) RegionCode() string {
	if q.Region == nil {
		return ""
	}
	return *q.Region
}

type DBStats struct {
	Inserted  int
	Updated   int
	Unchanged int
}

func (s DBStats) Total() int {
	return s.Inserted + s.Updated + s.Unchanged
}

type PageJob struct {
	URL        string
	PageNumber int
}

type PageResult struct {
	Listings   []Listing
	Error      error
	PageNumber int
}

// ScrapeResult summarises one source run.
type ScrapeResult struct {
	RunID      string
	Source     string
	Query      SearchQuery
	Pages      int
	TotalHits  int
	Listings   []Listing
	Failed     int
	DBStats    DBStats
	StartedAt  time.Time
	FinishedAt time.Time
}
