package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	loadPath := flag.String("load", "", "JSON-lines file of package events to index before consuming")
	description := flag.String("description", "package catalog", "description recorded in commit metadata")
	demote := flag.Bool("language-demotion", false, "demote packages whose id ends in a language suffix")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer", "index_dir", cfg.Index.Dir, "kafka_enabled", cfg.Kafka.Enabled)

	writer, err := indexer.OpenWriter(cfg.Index.Dir)
	if err != nil {
		slog.Error("failed to open index writer", "error", err)
		os.Exit(1)
	}
	defer writer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ic := consumer.New(writer, document.Options{ApplyLanguageDemotion: *demote})
	commitData := ic.CommitData(*description)

	if *loadPath != "" {
		if err := load(ctx, ic, *loadPath); err != nil {
			slog.Error("bulk load failed", "path", *loadPath, "error", err)
			os.Exit(1)
		}
		if _, err := writer.Commit(commitData()); err != nil {
			slog.Error("commit after bulk load failed", "error", err)
			os.Exit(1)
		}
	}

	if !cfg.Kafka.Enabled {
		indexed, deleted, rejected := ic.Stats()
		slog.Info("indexer finished", "indexed", indexed, "deleted", deleted, "rejected", rejected)
		return
	}

	writer.StartCommitLoop(ctx, cfg.Index.CommitInterval, commitData)

	kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.PackageMetadata, ic.Handle)
	defer kafkaConsumer.Close()

	slog.Info("indexer ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.PackageMetadata,
		"group", cfg.Kafka.ConsumerGroup,
		"commit_interval", cfg.Index.CommitInterval,
	)
	if err := kafkaConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("committing before shutdown")
	if _, err := writer.Commit(commitData()); err != nil {
		slog.Error("final commit failed", "error", err)
	}

	indexed, deleted, rejected := ic.Stats()
	slog.Info("indexer stopped", "indexed", indexed, "deleted", deleted, "rejected", rejected)
}

func load(ctx context.Context, ic *consumer.IndexConsumer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := ic.Load(ctx, f)
	slog.Info("bulk load complete", "path", path, "events", n)
	return err
}
