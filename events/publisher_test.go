package events

import (
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-scraper/models"
)

func TestBuildPublishing(t *testing.T) {
	region := "13"
	finished := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	result := &models.ScrapeResult{
		RunID:      "run-1",
		Source:     "suumo",
		Query:      models.SearchQuery{Keyword: "apartment", Region: &region},
		Pages:      2,
		Listings:   make([]models.Listing, 4),
		DBStats:    models.DBStats{Inserted: 3, Updated: 1},
		FinishedAt: finished,
	}

	msg, err := buildPublishing(result)
	require.NoError(t, err)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "run-1", msg.MessageId)
	assert.Equal(t, finished, msg.Timestamp)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, "apartment", decoded["keyword"])
	assert.Equal(t, "13", decoded["region"])
	assert.EqualValues(t, 4, decoded["listings"])
	assert.EqualValues(t, 3, decoded["inserted"])
	assert.EqualValues(t, 1, decoded["updated"])
}

func TestScrapeCompletedOmitsMissingRegion(t *testing.T) {
	body, err := json.Marshal(NewScrapeCompleted(&models.ScrapeResult{Query: models.SearchQuery{Keyword: "x"}}))
	require.NoError(t, err)
	assert.NotContains(t, string(body), "region")
}

func TestNewPublisherValidatesConfig(t *testing.T) {
	_, err := NewPublisher(PublisherConfig{ExchangeName: "listings"}, nil)
	assert.ErrorContains(t, err, "url is required")

	_, err = NewPublisher(PublisherConfig{URL: "amqp://localhost"}, nil)
	assert.ErrorContains(t, err, "exchange name is required")
}
