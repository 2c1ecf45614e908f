package index

import (
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/tokenizer"
)

// MemoryIndex buffers analyzed documents until the writer flushes them into
// a segment. Buffer-local doc ids are assigned in insertion order and become
// the segment-local ids.
type MemoryIndex struct {
	mu        sync.RWMutex
	index     map[string]map[string]map[uint32]*Posting
	docs      []StoredFields
	norms     map[string][]FieldNorm
	docBoosts []float32
	size      int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]map[string]map[uint32]*Posting),
		norms: make(map[string][]FieldNorm),
	}
}

// AddDocument analyzes doc and returns its buffer-local id.
func (m *MemoryIndex) AddDocument(doc *Document) uint32 {
	type fieldTerms struct {
		postings map[string]*Posting
		length   uint32
		boost    float32
	}
	analyzed := make(map[string]*fieldTerms)
	for _, f := range doc.Fields {
		if f.Analyzer == tokenizer.None {
			continue
		}
		ft, ok := analyzed[f.Name]
		if !ok {
			ft = &fieldTerms{postings: make(map[string]*Posting), boost: f.Boost}
			analyzed[f.Name] = ft
		}
		for _, token := range tokenizer.Analyze(f.Analyzer, f.Value) {
			p, exists := ft.postings[token.Term]
			if !exists {
				p = &Posting{Positions: make([]int, 0, 2)}
				ft.postings[token.Term] = p
			}
			p.Frequency++
			p.Positions = append(p.Positions, token.Position)
			ft.length++
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docID := uint32(len(m.docs))
	stored := doc.Stored()
	m.docs = append(m.docs, stored)
	m.docBoosts = append(m.docBoosts, doc.Boost)
	for name, value := range stored {
		m.size += int64(len(name) + len(value))
	}

	for field, ft := range analyzed {
		terms, exists := m.index[field]
		if !exists {
			terms = make(map[string]map[uint32]*Posting)
			m.index[field] = terms
		}
		for term, posting := range ft.postings {
			posting.Doc = docID
			if _, exists := terms[term]; !exists {
				terms[term] = make(map[uint32]*Posting)
			}
			terms[term][docID] = posting
			m.size += int64(len(term) + len(posting.Positions)*8 + 32)
		}
		norms := m.norms[field]
		for uint32(len(norms)) < docID {
			norms = append(norms, FieldNorm{})
		}
		m.norms[field] = append(norms, FieldNorm{Length: ft.length, Boost: ft.boost})
	}
	return docID
}

// Search returns the buffered postings for a field term, sorted by doc.
func (m *MemoryIndex) Search(field, term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, exists := m.index[field][term]
	if !exists {
		return nil
	}
	return sortedPostings(docs)
}

// Snapshot returns the buffer in segment-writable form with the dictionary
// sorted by (field, term).
func (m *MemoryIndex) Snapshot() SegmentData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0)
	for field, terms := range m.index {
		for term, docs := range terms {
			entries = append(entries, TermEntry{
				Field:    field,
				Term:     term,
				Postings: sortedPostings(docs),
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Field != entries[j].Field {
			return entries[i].Field < entries[j].Field
		}
		return entries[i].Term < entries[j].Term
	})
	norms := make(map[string][]FieldNorm, len(m.norms))
	for field, n := range m.norms {
		padded := make([]FieldNorm, len(m.docs))
		copy(padded, n)
		norms[field] = padded
	}
	return SegmentData{
		Terms:     entries,
		Docs:      append([]StoredFields(nil), m.docs...),
		Norms:     norms,
		DocBoosts: append([]float32(nil), m.docBoosts...),
	}
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[string]map[string]map[uint32]*Posting)
	m.norms = make(map[string][]FieldNorm)
	m.docs = nil
	m.docBoosts = nil
	m.size = 0
}

func sortedPostings(docs map[uint32]*Posting) PostingList {
	result := make(PostingList, 0, len(docs))
	for _, posting := range docs {
		result = append(result, *posting)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Doc < result[j].Doc
	})
	return result
}
