package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/tokenizer"
)

func buildSegment(t *testing.T, dir, name string) {
	t.Helper()
	m := index.NewMemoryIndex()
	for _, id := range []string{"Newtonsoft.Json", "Serilog", "Dapper"} {
		d := index.NewDocument()
		d.Add("Id", id, tokenizer.Keyword, 2.0)
		d.Add("Description", id+" library for dotnet", tokenizer.Text, 1.0)
		d.Store("SortableTitle", id)
		d.Store("PublishedDate", "20200102")
		m.AddDocument(d)
	}
	require.NoError(t, NewWriter(dir).Write(name, m.Snapshot()))
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	buildSegment(t, dir, "seg_1")

	r, err := OpenReader(filepath.Join(dir, FileName("seg_1")))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, uint32(3), r.DocCount())
	postings, err := r.Search("Id", "serilog")
	require.NoError(t, err)
	require.Len(t, postings, 1)
	assert.Equal(t, uint32(1), postings[0].Doc)
	assert.Equal(t, 3, r.DocFreq("Description", "librari"))

	missing, err := r.Search("Id", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	doc, err := r.Document(2)
	require.NoError(t, err)
	assert.Equal(t, "Dapper", doc.Get("SortableTitle"))
	assert.Equal(t, float32(2.0), r.Norm("Id", 0).Boost)
	assert.Equal(t, 3, r.FieldStats("Description").DocCount)
}

func TestOpenReaderRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName("bad"))
	require.NoError(t, os.WriteFile(path, make([]byte, 200), 0o644))
	_, err := OpenReader(path)
	assert.ErrorContains(t, err, "bad magic")
}

func TestCoreRefCountingAndCaches(t *testing.T) {
	dir := t.TempDir()
	buildSegment(t, dir, "seg_1")

	c, err := OpenCore(dir, "seg_1")
	require.NoError(t, err)
	require.True(t, c.IncRef())
	assert.Equal(t, int32(2), c.RefCount())

	col, err := c.SortInts("PublishedDate")
	require.NoError(t, err)
	assert.Equal(t, []int64{20200102, 20200102, 20200102}, col)
	cached, cols := c.CacheStats()
	assert.Equal(t, 3, cached)
	assert.Equal(t, 1, cols)

	require.NoError(t, c.DecRef())
	require.NoError(t, c.DecRef())
	assert.False(t, c.IncRef())
}

func TestDeletesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	bm := roaring.BitmapOf(1, 5, 9)
	require.NoError(t, WriteDeletes(dir, "seg_1", 3, bm))

	got, err := ReadDeletes(dir, "seg_1", 3)
	require.NoError(t, err)
	assert.True(t, got.Equals(bm))

	empty, err := ReadDeletes(dir, "seg_1", 0)
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
}
