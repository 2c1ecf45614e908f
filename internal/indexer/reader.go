package indexer

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/segment"
)

var ErrReaderClosed = errors.New("index reader is closed")

// Leaf is one segment as seen by a DirectoryReader. Doc ids inside a leaf
// are segment-local; Base shifts them into the reader's global id space.
type Leaf struct {
	Ord     int
	Base    uint32
	Core    *segment.Core
	Deletes *roaring.Bitmap
	DelGen  int64
}

func (l *Leaf) MaxDoc() uint32 {
	return l.Core.DocCount()
}

func (l *Leaf) IsDeleted(local uint32) bool {
	return l.Deletes.Contains(local)
}

func (l *Leaf) LiveDocs() int {
	return int(l.Core.DocCount()) - int(l.Deletes.GetCardinality())
}

// DirectoryReader is an immutable view of one commit. Doc ids are dense in
// [0, MaxDoc) and only meaningful for this reader instance.
type DirectoryReader struct {
	dir     string
	commit  *Commit
	leaves  []*Leaf
	maxDoc  uint32
	numDocs int
	closed  atomic.Bool
}

// OpenDirectory opens the current commit of dir.
func OpenDirectory(dir string) (*DirectoryReader, error) {
	c, err := ReadCommit(dir)
	if err != nil {
		return nil, err
	}
	return open(dir, c, nil)
}

func open(dir string, c *Commit, previous []*Leaf) (*DirectoryReader, error) {
	byName := make(map[string]*Leaf, len(previous))
	for _, l := range previous {
		byName[l.Core.Name()] = l
	}
	r := &DirectoryReader{dir: dir, commit: c}
	var base uint32
	for ord, info := range c.Segments {
		leaf, err := openLeaf(dir, info, byName[info.Name])
		if err != nil {
			r.release()
			return nil, err
		}
		leaf.Ord = ord
		leaf.Base = base
		base += leaf.MaxDoc()
		r.numDocs += leaf.LiveDocs()
		r.leaves = append(r.leaves, leaf)
	}
	r.maxDoc = base
	return r, nil
}

func openLeaf(dir string, info SegmentInfo, prev *Leaf) (*Leaf, error) {
	if prev != nil && prev.Core.IncRef() {
		leaf := &Leaf{Core: prev.Core, Deletes: prev.Deletes, DelGen: prev.DelGen}
		if info.DelGen != prev.DelGen {
			dels, err := segment.ReadDeletes(dir, info.Name, info.DelGen)
			if err != nil {
				prev.Core.DecRef()
				return nil, err
			}
			leaf.Deletes = dels
			leaf.DelGen = info.DelGen
		}
		return leaf, nil
	}
	core, err := segment.OpenCore(dir, info.Name)
	if err != nil {
		return nil, err
	}
	dels, err := segment.ReadDeletes(dir, info.Name, info.DelGen)
	if err != nil {
		core.DecRef()
		return nil, err
	}
	return &Leaf{Core: core, Deletes: dels, DelGen: info.DelGen}, nil
}

// Reopen returns a reader over the latest commit, sharing every unchanged
// segment with r. It returns nil when the commit has not changed. r stays
// open either way.
func (r *DirectoryReader) Reopen() (*DirectoryReader, error) {
	if r.closed.Load() {
		return nil, ErrReaderClosed
	}
	c, err := ReadCommit(r.dir)
	if err != nil {
		return nil, err
	}
	if c.Generation == r.commit.Generation {
		return nil, nil
	}
	return open(r.dir, c, r.leaves)
}

// Clone returns an independent reader over the same commit and segments.
func (r *DirectoryReader) Clone() (*DirectoryReader, error) {
	if r.closed.Load() {
		return nil, ErrReaderClosed
	}
	return open(r.dir, r.commit, r.leaves)
}

// Close drops this reader's references on its segments. It is safe to call
// more than once.
func (r *DirectoryReader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.release()
}

func (r *DirectoryReader) release() error {
	var errs []error
	for _, l := range r.leaves {
		if err := l.Core.DecRef(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *DirectoryReader) Dir() string                 { return r.dir }
func (r *DirectoryReader) Commit() *Commit             { return r.commit }
func (r *DirectoryReader) Generation() int64           { return r.commit.Generation }
func (r *DirectoryReader) CommitID() string            { return r.commit.ID }
func (r *DirectoryReader) Leaves() []*Leaf             { return r.leaves }
func (r *DirectoryReader) MaxDoc() uint32              { return r.maxDoc }
func (r *DirectoryReader) NumDocs() int                { return r.numDocs }
func (r *DirectoryReader) NumDeletedDocs() int         { return int(r.maxDoc) - r.numDocs }
func (r *DirectoryReader) UserData() map[string]string { return r.commit.UserData }

func (r *DirectoryReader) leafFor(doc uint32) (*Leaf, uint32, error) {
	if doc >= r.maxDoc {
		return nil, 0, fmt.Errorf("doc %d out of range (reader has %d)", doc, r.maxDoc)
	}
	i := sort.Search(len(r.leaves), func(i int) bool {
		return r.leaves[i].Base+r.leaves[i].MaxDoc() > doc
	})
	leaf := r.leaves[i]
	return leaf, doc - leaf.Base, nil
}

// IsDeleted reports whether a global doc id is deleted or out of range.
func (r *DirectoryReader) IsDeleted(doc uint32) bool {
	leaf, local, err := r.leafFor(doc)
	if err != nil {
		return true
	}
	return leaf.IsDeleted(local)
}

// Document returns the stored fields of a global doc id through the
// segment's document cache.
func (r *DirectoryReader) Document(doc uint32) (index.StoredFields, error) {
	if r.closed.Load() {
		return nil, ErrReaderClosed
	}
	leaf, local, err := r.leafFor(doc)
	if err != nil {
		return nil, err
	}
	return leaf.Core.CachedDocument(local)
}

// Postings returns the live postings of a field term across all leaves with
// global doc ids, in ascending doc order.
func (r *DirectoryReader) Postings(field, term string) (index.PostingList, error) {
	if r.closed.Load() {
		return nil, ErrReaderClosed
	}
	var out index.PostingList
	for _, leaf := range r.leaves {
		postings, err := leaf.Core.Search(field, term)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", leaf.Core.Name(), err)
		}
		for _, p := range postings {
			if leaf.IsDeleted(p.Doc) {
				continue
			}
			p.Doc += leaf.Base
			out = append(out, p)
		}
	}
	return out, nil
}

// DocFreq counts documents containing the term, deleted ones included, the
// way BM25 statistics are usually kept.
func (r *DirectoryReader) DocFreq(field, term string) int {
	n := 0
	for _, leaf := range r.leaves {
		n += leaf.Core.DocFreq(field, term)
	}
	return n
}

// AvgFieldLength returns the mean token count of field over documents that
// have it.
func (r *DirectoryReader) AvgFieldLength(field string) float64 {
	var docs int
	var sum int64
	for _, leaf := range r.leaves {
		s := leaf.Core.FieldStats(field)
		docs += s.DocCount
		sum += s.SumLength
	}
	if docs == 0 {
		return 0
	}
	return float64(sum) / float64(docs)
}

func (r *DirectoryReader) Norm(field string, doc uint32) index.FieldNorm {
	leaf, local, err := r.leafFor(doc)
	if err != nil {
		return index.FieldNorm{}
	}
	return leaf.Core.Norm(field, local)
}

func (r *DirectoryReader) DocBoost(doc uint32) float32 {
	leaf, local, err := r.leafFor(doc)
	if err != nil {
		return 1.0
	}
	return leaf.Core.DocBoost(local)
}

// StringColumn returns a lookup of a stored string field by global doc id,
// materializing each segment's sort cache first.
func (r *DirectoryReader) StringColumn(field string) (func(doc uint32) string, error) {
	cols := make([][]string, len(r.leaves))
	for i, leaf := range r.leaves {
		col, err := leaf.Core.SortStrings(field)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}
	return func(doc uint32) string {
		leaf, local, err := r.leafFor(doc)
		if err != nil {
			return ""
		}
		return cols[leaf.Ord][local]
	}, nil
}

// IntColumn is StringColumn for integer fields.
func (r *DirectoryReader) IntColumn(field string) (func(doc uint32) int64, error) {
	cols := make([][]int64, len(r.leaves))
	for i, leaf := range r.leaves {
		col, err := leaf.Core.SortInts(field)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}
	return func(doc uint32) int64 {
		leaf, local, err := r.leafFor(doc)
		if err != nil {
			return 0
		}
		return cols[leaf.Ord][local]
	}, nil
}
