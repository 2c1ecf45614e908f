package indexer

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/tokenizer"
)

func pkgDoc(id, version string) *index.Document {
	d := index.NewDocument()
	d.Add("Id", id, tokenizer.Keyword, 2.0)
	d.Add("Version", version, tokenizer.Keyword, 1.0)
	d.Add("Description", id+" package", tokenizer.Text, 1.0)
	d.Store("SortableTitle", id)
	return d
}

func TestWriterCommitAndOpen(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	_, err = OpenDirectory(dir)
	assert.ErrorIs(t, err, ErrNoCommit)

	require.NoError(t, w.AddDocument(pkgDoc("Serilog", "2.0.0")))
	require.NoError(t, w.AddDocument(pkgDoc("Dapper", "1.0.0")))
	meta := CommitMetadata{CommitTimeStamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), Description: "catalog", Count: 2, Trace: "t-1"}
	c, err := w.Commit(meta.UserData())
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Generation)

	r, err := OpenDirectory(dir)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 2, r.NumDocs())
	assert.Equal(t, meta, ParseCommitMetadata(r.UserData()))

	postings, err := r.Postings("Id", "dapper")
	require.NoError(t, err)
	require.Len(t, postings, 1)
	doc, err := r.Document(postings[0].Doc)
	require.NoError(t, err)
	assert.Equal(t, "Dapper", doc.Get("SortableTitle"))
}

func TestReopenSharesUnchangedSegments(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.AddDocument(pkgDoc("Serilog", "2.0.0")))
	_, err = w.Commit(nil)
	require.NoError(t, err)

	r1, err := OpenDirectory(dir)
	require.NoError(t, err)
	defer r1.Close()

	same, err := r1.Reopen()
	require.NoError(t, err)
	assert.Nil(t, same)

	require.NoError(t, w.AddDocument(pkgDoc("Dapper", "1.0.0")))
	_, err = w.Commit(nil)
	require.NoError(t, err)

	r2, err := r1.Reopen()
	require.NoError(t, err)
	require.NotNil(t, r2)
	defer r2.Close()

	require.Len(t, r2.Leaves(), 2)
	assert.Same(t, r1.Leaves()[0].Core, r2.Leaves()[0].Core)
	assert.Equal(t, 1, r1.NumDocs())
	assert.Equal(t, 2, r2.NumDocs())
	assert.Equal(t, uint32(1), r2.Leaves()[1].Base)
}

func TestUpdateDeletesPreviousVersion(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.AddDocument(pkgDoc("Serilog", "1.0.0")))
	_, err = w.Commit(nil)
	require.NoError(t, err)

	r1, err := OpenDirectory(dir)
	require.NoError(t, err)
	defer r1.Close()

	require.NoError(t, w.UpdateDocument("Id", "serilog", pkgDoc("Serilog", "2.0.0")))
	_, err = w.Commit(nil)
	require.NoError(t, err)

	r2, err := r1.Reopen()
	require.NoError(t, err)
	require.NotNil(t, r2)
	defer r2.Close()

	assert.Equal(t, 1, r2.NumDocs())
	postings, err := r2.Postings("Version", "2.0.0")
	require.NoError(t, err)
	assert.Len(t, postings, 1)

	old, err := r1.Postings("Version", "1.0.0")
	require.NoError(t, err)
	assert.Len(t, old, 1, "the earlier reader keeps its point-in-time view")
}

func TestDeleteWithinBufferRespectsOrder(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.AddDocument(pkgDoc("Serilog", "1.0.0")))
	require.NoError(t, w.UpdateDocument("Id", "serilog", pkgDoc("Serilog", "2.0.0")))
	_, err = w.Commit(nil)
	require.NoError(t, err)

	r, err := OpenDirectory(dir)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 1, r.NumDocs())
	assert.Equal(t, 1, r.NumDeletedDocs())
	postings, err := r.Postings("Version", "2.0.0")
	require.NoError(t, err)
	assert.Len(t, postings, 1)
}

func TestCloneAndCloseReleaseCoresOnce(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir)
	require.NoError(t, err)
	require.NoError(t, w.AddDocument(pkgDoc("Serilog", "1.0.0")))
	_, err = w.Commit(nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := OpenDirectory(dir)
	require.NoError(t, err)
	clone, err := r.Clone()
	require.NoError(t, err)

	core := r.Leaves()[0].Core
	assert.Equal(t, int32(2), core.RefCount())
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, int32(1), core.RefCount())

	_, err = r.Document(0)
	assert.ErrorIs(t, err, ErrReaderClosed)
	doc, err := clone.Document(0)
	require.NoError(t, err)
	assert.Equal(t, "Serilog", doc.Get("SortableTitle"))
	require.NoError(t, clone.Close())
	assert.Equal(t, int32(0), core.RefCount())
}

func TestCommitLoopFlushesOnShutdown(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	w.StartCommitLoop(ctx, time.Hour, func() map[string]string {
		return CommitMetadata{Description: "loop"}.UserData()
	})
	require.NoError(t, w.AddDocument(pkgDoc("Dapper", "1.0.0")))
	cancel()

	require.Eventually(t, func() bool {
		return w.LastCommit().Generation == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "loop", w.LastCommit().UserData["description"])
}

func TestCommitPrunesUnreferencedFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, w.AddDocument(pkgDoc(fmt.Sprintf("Pkg%d", i), "1.0.0")))
	}
	prev, err := w.Commit(nil)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		// Each cycle rewrites deletions of older segments and eventually
		// empties them.
		id := fmt.Sprintf("Pkg%d", i%10)
		require.NoError(t, w.UpdateDocument("Id", fmt.Sprintf("pkg%d", i%10), pkgDoc(id, fmt.Sprintf("2.0.%d", i))))
		require.NoError(t, w.UpdateDocument("Id", "serilog", pkgDoc("Serilog", fmt.Sprintf("1.0.%d", i))))
		last, err := w.Commit(nil)
		require.NoError(t, err)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		var want []string
		for name := range referencedFiles(prev, last) {
			want = append(want, name)
		}
		want = append(want, CommitFileName)
		assert.ElementsMatch(t, want, names, "cycle %d", i)
		prev = last
	}

	r, err := OpenDirectory(dir)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 11, r.NumDocs())
}

func TestReaderOnPreviousCommitSurvivesPrune(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.AddDocument(pkgDoc("Serilog", "1.0.0")))
	_, err = w.Commit(nil)
	require.NoError(t, err)
	r1, err := OpenDirectory(dir)
	require.NoError(t, err)
	defer r1.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, w.UpdateDocument("Id", "serilog", pkgDoc("Serilog", fmt.Sprintf("2.0.%d", i))))
		_, err = w.Commit(nil)
		require.NoError(t, err)
	}

	// r1's segment file is gone from the directory but still open.
	doc, err := r1.Document(0)
	require.NoError(t, err)
	assert.Equal(t, "Serilog", doc.Get("SortableTitle"))

	r2, err := r1.Reopen()
	require.NoError(t, err)
	require.NotNil(t, r2)
	defer r2.Close()
	postings, err := r2.Postings("Version", "2.0.2")
	require.NoError(t, err)
	assert.Len(t, postings, 1)
}
