package publisher

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/kafka"
)

type fakeProducer struct {
	batches [][]kafka.Event
	err     error
}

func (f *fakeProducer) PublishBatch(_ context.Context, events []kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]kafka.Event(nil), events...))
	return nil
}

const events = `
{"record":{"id":"Serilog","version":"2.10.0","published":"2024-01-15T10:00:00Z"}}
{"record":{"id":"Serilog","version":"not-a-version","published":"2024-01-15T10:00:00Z"}}
{"action":"delete","id":"Dapper","version":"2.0.0"}
{"action":"delete"}
{"action":"upsert","record":{"id":"NLog","version":"5.0.0","published":"2024-01-15T10:00:00Z"}}
`

func TestPublishStreamBatchesValidEvents(t *testing.T) {
	fp := &fakeProducer{}
	res, err := New(fp, 2).PublishStream(context.Background(), strings.NewReader(events))
	require.NoError(t, err)
	assert.Equal(t, Result{Published: 3, Rejected: 2}, res)

	require.Len(t, fp.batches, 2)
	assert.Len(t, fp.batches[0], 2)
	assert.Equal(t, "serilog", fp.batches[0][0].Key)
	assert.Equal(t, "dapper", fp.batches[0][1].Key)
	assert.Equal(t, "nlog", fp.batches[1][0].Key)

	deleted := fp.batches[0][1].Value.(consumer.PackageEvent)
	assert.Equal(t, consumer.ActionDelete, deleted.Action)
}

func TestPublishStreamStopsOnProducerError(t *testing.T) {
	fp := &fakeProducer{err: errors.New("broker down")}
	res, err := New(fp, 10).PublishStream(context.Background(), strings.NewReader(events))
	assert.ErrorContains(t, err, "broker down")
	assert.Equal(t, 0, res.Published)
}

func TestPublishStreamMalformedJSON(t *testing.T) {
	_, err := New(&fakeProducer{}, 10).PublishStream(context.Background(), strings.NewReader(`{"record":`))
	assert.ErrorContains(t, err, "decoding event 1")
}

func TestValidate(t *testing.T) {
	_, err := Validate(consumer.PackageEvent{Action: "purge", ID: "x"})
	assert.Error(t, err)

	key, err := Validate(consumer.PackageEvent{Action: "DELETE", ID: " Foo.Bar "})
	require.NoError(t, err)
	assert.Equal(t, "foo.bar", key)
}
