package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/tokenizer"
)

func TestMemoryIndexAddAndSnapshot(t *testing.T) {
	m := NewMemoryIndex()

	d1 := NewDocument()
	d1.Add("Id", "Newtonsoft.Json", tokenizer.Keyword, 2.0)
	d1.Add("Description", "Json framework for json", tokenizer.Text, 1.0)
	d1.Store("IconUrl", "https://example.org/icon.png")

	d2 := NewDocument()
	d2.Add("Id", "Serilog", tokenizer.Keyword, 2.0)

	assert.Equal(t, uint32(0), m.AddDocument(d1))
	assert.Equal(t, uint32(1), m.AddDocument(d2))
	assert.Equal(t, 2, m.DocCount())

	postings := m.Search("Description", "json")
	require.Len(t, postings, 1)
	assert.Equal(t, 2, postings[0].Frequency)

	snap := m.Snapshot()
	require.Len(t, snap.Docs, 2)
	assert.Equal(t, "https://example.org/icon.png", snap.Docs[0].Get("IconUrl"))
	assert.Len(t, snap.Norms["Description"], 2)
	assert.Equal(t, uint32(0), snap.Norms["Description"][1].Length)
	assert.Equal(t, float32(2.0), snap.Norms["Id"][1].Boost)

	for i := 1; i < len(snap.Terms); i++ {
		prev, cur := snap.Terms[i-1], snap.Terms[i]
		assert.True(t, prev.Field < cur.Field || (prev.Field == cur.Field && prev.Term < cur.Term))
	}

	m.Reset()
	assert.Equal(t, 0, m.DocCount())
	assert.Zero(t, m.Size())
}
