// Package publisher feeds package metadata events onto the Kafka topic the
// indexer consumes. Events are keyed by lower-cased package id so every
// version of a package lands on one partition and is applied in order.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/kafka"
)

// BatchPublisher writes a batch of events. *kafka.Producer implements it.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Result counts what one run published and rejected.
type Result struct {
	Published int
	Rejected  int
}

type Publisher struct {
	producer  BatchPublisher
	batchSize int
	logger    *slog.Logger
}

func New(producer BatchPublisher, batchSize int) *Publisher {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Publisher{
		producer:  producer,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "publisher"),
	}
}

// Validate rejects events the indexer would drop, so bad records are
// reported at the source.
func Validate(event consumer.PackageEvent) (key string, err error) {
	switch strings.ToLower(event.Action) {
	case "", consumer.ActionUpsert:
		if _, err := document.Create(event.Record); err != nil {
			return "", err
		}
		return strings.ToLower(strings.TrimSpace(event.Record["id"])), nil
	case consumer.ActionDelete:
		id := strings.TrimSpace(event.ID)
		if id == "" {
			return "", errors.New("delete event without id")
		}
		return strings.ToLower(id), nil
	default:
		return "", fmt.Errorf("unknown action %q", event.Action)
	}
}

// PublishStream reads JSON-encoded package events from r, drops invalid
// ones and publishes the rest in batches.
func (p *Publisher) PublishStream(ctx context.Context, r io.Reader) (Result, error) {
	var res Result
	dec := json.NewDecoder(r)
	batch := make([]kafka.Event, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.producer.PublishBatch(ctx, batch); err != nil {
			return fmt.Errorf("publishing batch of %d: %w", len(batch), err)
		}
		res.Published += len(batch)
		batch = batch[:0]
		return nil
	}

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		var event consumer.PackageEvent
		if err := dec.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return res, fmt.Errorf("decoding event %d: %w", line, err)
		}
		key, err := Validate(event)
		if err != nil {
			res.Rejected++
			p.logger.Warn("rejected package event", "event", line, "error", err)
			continue
		}
		batch = append(batch, kafka.Event{Key: key, Value: event})
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}
	p.logger.Info("package events published", "published", res.Published, "rejected", res.Rejected)
	return res, nil
}
