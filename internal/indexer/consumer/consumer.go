// Package consumer feeds package metadata records into the index writer,
// either from the package-metadata Kafka topic or from a JSON-lines file.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/version"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/kafka"
)

const (
	ActionUpsert = "upsert"
	ActionDelete = "delete"
)

// PackageEvent is one message of the package-metadata feed. Upserts carry
// the full metadata record; deletes name an id and optionally one version.
type PackageEvent struct {
	Action  string            `json:"action"`
	ID      string            `json:"id,omitempty"`
	Version string            `json:"version,omitempty"`
	Record  map[string]string `json:"record,omitempty"`
}

// IndexConsumer applies package events to a writer and keeps the counts
// recorded in commit metadata.
type IndexConsumer struct {
	writer   *indexer.Writer
	options  document.Options
	indexed  atomic.Int64
	deleted  atomic.Int64
	rejected atomic.Int64
	logger   *slog.Logger
}

func New(writer *indexer.Writer, opts document.Options) *IndexConsumer {
	return &IndexConsumer{
		writer:  writer,
		options: opts,
		logger:  slog.Default().With("component", "index-consumer"),
	}
}

// Handle is a kafka.MessageHandler. Undecodable or invalid records are
// logged and skipped so a single bad message cannot stall the partition.
func (ic *IndexConsumer) Handle(ctx context.Context, key []byte, value []byte) error {
	event, err := kafka.DecodeJSON[PackageEvent](value)
	if err != nil {
		ic.rejected.Add(1)
		ic.logger.Error("failed to decode package event", "key", string(key), "error", err)
		return nil
	}
	return ic.Apply(event)
}

// Apply indexes or deletes according to event.
func (ic *IndexConsumer) Apply(event PackageEvent) error {
	switch strings.ToLower(event.Action) {
	case "", ActionUpsert:
		return ic.upsert(event.Record)
	case ActionDelete:
		return ic.delete(event.ID, event.Version)
	default:
		ic.rejected.Add(1)
		ic.logger.Warn("unknown package event action", "action", event.Action, "id", event.ID)
		return nil
	}
}

func (ic *IndexConsumer) upsert(record map[string]string) error {
	doc, err := document.CreateWithOptions(record, ic.options)
	if err != nil {
		var verr *document.ValidationError
		if errors.As(err, &verr) {
			ic.rejected.Add(1)
			ic.logger.Warn("rejected package record", "id", record["id"], "version", record["version"], "error", err)
			return nil
		}
		return err
	}
	key, _ := doc.Get(document.FieldKey)
	if err := ic.writer.UpdateDocument(document.FieldKey, key, doc); err != nil {
		return fmt.Errorf("indexing %s: %w", key, err)
	}
	ic.indexed.Add(1)
	ic.logger.Debug("package indexed", "key", key)
	return nil
}

func (ic *IndexConsumer) delete(id, ver string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		ic.rejected.Add(1)
		ic.logger.Warn("delete event without id")
		return nil
	}
	field, term := document.FieldID, strings.ToLower(id)
	if ver != "" {
		normalized, err := version.Normalize(ver)
		if err != nil {
			ic.rejected.Add(1)
			ic.logger.Warn("delete event with malformed version", "id", id, "version", ver, "error", err)
			return nil
		}
		field, term = document.FieldKey, document.Key(id, normalized)
	}
	if err := ic.writer.DeleteDocuments(field, term); err != nil {
		return fmt.Errorf("deleting %s: %w", term, err)
	}
	ic.deleted.Add(1)
	ic.logger.Info("package deleted", "id", id, "version", ver)
	return nil
}

// Load applies a stream of JSON-encoded package events, one per line or
// simply concatenated, until EOF or ctx is done.
func (ic *IndexConsumer) Load(ctx context.Context, r io.Reader) (int, error) {
	dec := json.NewDecoder(r)
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		var event PackageEvent
		if err := dec.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("decoding event %d: %w", n+1, err)
		}
		if err := ic.Apply(event); err != nil {
			return n, err
		}
		n++
	}
}

// CommitData is the user data attached to each commit.
func (ic *IndexConsumer) CommitData(description string) func() map[string]string {
	return func() map[string]string {
		return indexer.CommitMetadata{
			CommitTimeStamp: time.Now().UTC(),
			Description:     description,
			Count:           ic.writer.LastCommit().LiveDocs() + ic.writer.BufferedDocs(),
			Trace:           fmt.Sprintf("indexed=%d deleted=%d rejected=%d", ic.indexed.Load(), ic.deleted.Load(), ic.rejected.Load()),
		}.UserData()
	}
}

func (ic *IndexConsumer) Stats() (indexed, deleted, rejected int64) {
	return ic.indexed.Load(), ic.deleted.Load(), ic.rejected.Load()
}
