package consumer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer"
)

func newConsumer(t *testing.T) (*IndexConsumer, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := indexer.OpenWriter(dir)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return New(w, document.Options{}), dir
}

func commitAndCount(t *testing.T, ic *IndexConsumer, dir string) int {
	t.Helper()
	_, err := ic.writer.Commit(ic.CommitData("test")())
	require.NoError(t, err)
	r, err := indexer.OpenDirectory(dir)
	require.NoError(t, err)
	defer r.Close()
	return r.NumDocs()
}

const feed = `
{"record":{"id":"Serilog","version":"2.10.0","published":"2024-01-15T10:00:00Z"}}
{"action":"upsert","record":{"id":"Serilog","version":"3.0.0","published":"2024-02-01T10:00:00Z"}}
{"record":{"id":"Dapper","version":"2.1.0","published":"2024-02-01T10:00:00Z"}}
{"record":{"version":"1.0.0"}}
{"action":"explode","id":"x"}
`

func TestLoadAppliesEvents(t *testing.T) {
	ic, dir := newConsumer(t)
	n, err := ic.Load(context.Background(), strings.NewReader(feed))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	indexed, deleted, rejected := ic.Stats()
	assert.Equal(t, int64(3), indexed)
	assert.Equal(t, int64(0), deleted)
	assert.Equal(t, int64(2), rejected)
	assert.Equal(t, 3, commitAndCount(t, ic, dir))
}

func TestUpsertReplacesSameVersion(t *testing.T) {
	ic, dir := newConsumer(t)
	rec := map[string]string{"id": "Serilog", "version": "2.10.0", "published": "2024-01-15T10:00:00Z"}
	require.NoError(t, ic.Apply(PackageEvent{Record: rec}))
	require.NoError(t, ic.Apply(PackageEvent{Record: rec}))
	assert.Equal(t, 1, commitAndCount(t, ic, dir))

	rec["version"] = "2.10"
	require.NoError(t, ic.Apply(PackageEvent{Record: rec}))
	assert.Equal(t, 1, commitAndCount(t, ic, dir), "equivalent version spellings share a key")
}

func TestDeleteByVersionAndID(t *testing.T) {
	ic, dir := newConsumer(t)
	_, err := ic.Load(context.Background(), strings.NewReader(feed))
	require.NoError(t, err)
	commitAndCount(t, ic, dir)

	require.NoError(t, ic.Apply(PackageEvent{Action: ActionDelete, ID: "SERILOG", Version: "3.0"}))
	assert.Equal(t, 2, commitAndCount(t, ic, dir))

	require.NoError(t, ic.Apply(PackageEvent{Action: ActionDelete, ID: "dapper"}))
	assert.Equal(t, 1, commitAndCount(t, ic, dir))

	require.NoError(t, ic.Apply(PackageEvent{Action: ActionDelete}))
	_, deleted, rejected := ic.Stats()
	assert.Equal(t, int64(2), deleted)
	assert.Equal(t, int64(3), rejected)
}

func TestHandleSkipsUndecodableMessages(t *testing.T) {
	ic, _ := newConsumer(t)
	assert.NoError(t, ic.Handle(context.Background(), []byte("k"), []byte("{not json")))
	_, _, rejected := ic.Stats()
	assert.Equal(t, int64(1), rejected)
}

func TestCommitDataRecordsCounts(t *testing.T) {
	ic, _ := newConsumer(t)
	_, err := ic.Load(context.Background(), strings.NewReader(feed))
	require.NoError(t, err)
	meta := indexer.ParseCommitMetadata(ic.CommitData("catalog")())
	assert.Equal(t, "catalog", meta.Description)
	assert.Equal(t, 3, meta.Count)
	assert.Contains(t, meta.Trace, "rejected=2")
	assert.False(t, meta.CommitTimeStamp.IsZero())
}
