// Package searchtest builds small on-disk package indexes for tests.
package searchtest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/auxiliary"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/metrics"
)

// Record returns a minimal valid metadata record. Extra key/value pairs
// override or extend it.
func Record(id, version string, kv ...string) map[string]string {
	r := map[string]string{
		"id":          id,
		"version":     version,
		"published":   "2024-01-15T10:00:00Z",
		"description": id + " library",
		"tags":        "",
	}
	for i := 0; i+1 < len(kv); i += 2 {
		r[kv[i]] = kv[i+1]
	}
	return r
}

// Index is a writer over a temporary directory.
type Index struct {
	t      testing.TB
	Dir    string
	Writer *indexer.Writer
}

func NewIndex(t testing.TB) *Index {
	t.Helper()
	dir := t.TempDir()
	w, err := indexer.OpenWriter(dir)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return &Index{t: t, Dir: dir, Writer: w}
}

// Add builds documents from records and adds or replaces them by key.
func (x *Index) Add(records ...map[string]string) *Index {
	x.t.Helper()
	for _, r := range records {
		doc, err := document.Create(r)
		require.NoError(x.t, err)
		key, _ := doc.Get(document.FieldKey)
		require.NoError(x.t, x.Writer.UpdateDocument(document.FieldKey, key, doc))
	}
	return x
}

// Delete removes every version of id.
func (x *Index) Delete(id string) *Index {
	x.t.Helper()
	require.NoError(x.t, x.Writer.DeleteDocuments(document.FieldID, strings.ToLower(id)))
	return x
}

func (x *Index) Commit() *indexer.Commit {
	x.t.Helper()
	c, err := x.Writer.Commit(indexer.CommitMetadata{Description: "test", Count: x.Writer.BufferedDocs()}.UserData())
	require.NoError(x.t, err)
	return c
}

// Reader opens the current commit and closes it when the test ends.
func (x *Index) Reader() *indexer.DirectoryReader {
	x.t.Helper()
	r, err := indexer.OpenDirectory(x.Dir)
	require.NoError(x.t, err)
	x.t.Cleanup(func() { r.Close() })
	return r
}

// Auxiliary writes the four auxiliary files and returns a loaded store.
func Auxiliary(t testing.TB, owners, feeds, downloads, rankings string) *auxiliary.Store {
	t.Helper()
	dir := t.TempDir()
	WriteAuxiliary(t, dir, owners, feeds, downloads, rankings)
	store := auxiliary.NewStore(auxiliary.NewFileLoader(dir), 0, metrics.NewNop())
	_, err := store.Reload(context.Background())
	require.NoError(t, err)
	return store
}

// WriteAuxiliary writes the non-empty auxiliary files into dir and removes
// the others.
func WriteAuxiliary(t testing.TB, dir, owners, feeds, downloads, rankings string) {
	t.Helper()
	files := map[string]string{
		auxiliary.OwnersFile:       owners,
		auxiliary.CuratedFeedsFile: feeds,
		auxiliary.DownloadsFile:    downloads,
		auxiliary.RankingsFile:     rankings,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if content == "" {
			err := os.Remove(path)
			if err != nil && !os.IsNotExist(err) {
				require.NoError(t, err)
			}
			continue
		}
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}
