// Package kafka wraps segmentio/kafka-go for the two feeds the service uses:
// package metadata events consumed by the indexer and search events
// published by the searcher. Values are JSON on both sides.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// MessageHandler processes one message. Returning an error retries the
// message with backoff; an error wrapped with resilience.Permanent is not
// retried.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer reads a topic as part of a consumer group and commits each
// message once its handler succeeds.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// NewConsumer creates a Consumer for topic. A group seen for the first time
// starts from the oldest retained message so a fresh indexer replays the
// full metadata stream.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})
	return &Consumer{
		reader:  r,
		handler: handler,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
		},
		logger: slog.Default().With("component", "kafka-consumer", "topic", topic, "group", cfg.ConsumerGroup),
	}
}

// Start consumes until ctx is cancelled. A message whose handler still fails
// after the retries is logged and left uncommitted.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	var processed, failed int64
	defer func() {
		c.logger.Info("consumer stopped", "processed", processed, "failed", failed)
	}()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.reader.Close()
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		log := c.logger.With("partition", msg.Partition, "offset", msg.Offset, "key", string(msg.Key))
		log.Debug("message received", "value_size", len(msg.Value))

		err = resilience.Retry(ctx, "kafka-handler", c.retry, func() error {
			return c.handler(ctx, msg.Key, msg.Value)
		})
		if err != nil {
			failed++
			log.Error("failed to process message", "error", err)
			continue
		}
		processed++
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error("failed to commit message", "error", err)
		}
	}
}

// Close closes the reader. It is safe to call after Start returned.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
