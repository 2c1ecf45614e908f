// Command ingestion publishes package metadata events to the topic the
// indexer consumes.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml] [-file events.jsonl]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	file := flag.String("file", "", "JSON-lines file of package events (default stdin)")
	batchSize := flag.Int("batch", 100, "events per Kafka batch")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if !cfg.Kafka.Enabled {
		slog.Error("kafka is disabled in config, nothing to publish to")
		os.Exit(1)
	}

	var in io.Reader = os.Stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			slog.Error("failed to open events file", "path", *file, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.PackageMetadata)
	defer producer.Close()
	slog.Info("publishing package events", "topic", cfg.Kafka.Topics.PackageMetadata, "batch", *batchSize)

	res, err := publisher.New(producer, *batchSize).PublishStream(ctx, in)
	if err != nil {
		slog.Error("publishing failed", "published", res.Published, "rejected", res.Rejected, "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion finished", "published", res.Published, "rejected", res.Rejected)
}
