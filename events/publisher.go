package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"listing-scraper/models"
)

const RoutingKeyScrapeCompleted = "listing.scrape.completed"

// ScrapeCompleted is published once per successful run.
type ScrapeCompleted struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	Keyword    string    `json:"keyword"`
	Region     *string   `json:"region,omitempty"`
	Pages      int       `json:"pages"`
	TotalHits  int       `json:"total_hits"`
	Listings   int       `json:"listings"`
	Failed     int       `json:"failed_pages"`
	Inserted   int       `json:"inserted"`
	Updated    int       `json:"updated"`
	Unchanged  int       `json:"unchanged"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func NewScrapeCompleted(r *models.ScrapeResult) ScrapeCompleted {
	return ScrapeCompleted{
		RunID:      r.RunID,
		Source:     r.Source,
		Keyword:    r.Query.Keyword,
		Region:     r.Query.Region,
		Pages:      r.Pages,
		TotalHits:  r.TotalHits,
		Listings:   len(r.Listings),
		Failed:     r.Failed,
		Inserted:   r.DBStats.Inserted,
		Updated:    r.DBStats.Updated,
		Unchanged:  r.DBStats.Unchanged,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

type PublisherConfig struct {
	URL          string
	ExchangeName string
	ExchangeType string
}

// Publisher owns one AMQP connection and channel for run events.
type Publisher struct {
	cfg     PublisherConfig
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
}

func NewPublisher(cfg PublisherConfig, logger *slog.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("publisher: amqp url is required")
	}
	if cfg.ExchangeName == "" {
		return nil, errors.New("publisher: exchange name is required")
	}
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = amqp.ExchangeTopic
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("publisher: failed to dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("publisher: failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.ExchangeName,
		cfg.ExchangeType,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("publisher: failed to declare exchange %q: %w", cfg.ExchangeName, err)
	}

	logger.Debug("publisher connected", "exchange", cfg.ExchangeName)
	return &Publisher{cfg: cfg, conn: conn, channel: ch, logger: logger}, nil
}

func (p *Publisher) PublishScrapeCompleted(ctx context.Context, result *models.ScrapeResult) error {
	msg, err := buildPublishing(result)
	if err != nil {
		return err
	}
	return p.Publish(ctx, RoutingKeyScrapeCompleted, msg)
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	if p.channel == nil || p.conn == nil || p.conn.IsClosed() {
		return errors.New("publisher: not connected")
	}

	err := p.channel.PublishWithContext(ctx, p.cfg.ExchangeName, routingKey, false, false, msg)
	if err != nil {
		return fmt.Errorf("publisher: failed to publish %s: %w", routingKey, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
		p.channel = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	return errors.Join(errs...)
}

func buildPublishing(result *models.ScrapeResult) (amqp.Publishing, error) {
	body, err := json.Marshal(NewScrapeCompleted(result))
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("publisher: failed to encode event: %w", err)
	}

	ts := result.FinishedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    result.RunID,
		Timestamp:    ts,
		Type:         RoutingKeyScrapeCompleted,
		Body:         body,
	}, nil
}
