// Package indexer maintains the on-disk package index: a Writer that buffers
// documents and commits them as immutable segments, and a DirectoryReader
// that serves a point-in-time view of a commit to the searcher.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/segment"
)

type pendingDelete struct {
	field string
	term  string
	// upTo bounds the buffered documents the delete applies to, so a delete
	// issued before an add does not remove the added document.
	upTo uint32
}

// Writer is the single writer of an index directory.
type Writer struct {
	mu        sync.Mutex
	dir       string
	memIndex  *index.MemoryIndex
	segWriter *segment.Writer
	commit    *Commit
	cores     map[string]*segment.Core
	deletes   map[string]*roaring.Bitmap
	changed   map[string]bool
	pending   []pendingDelete
	dirty     bool
	logger    *slog.Logger
}

// OpenWriter opens dir for writing, creating an empty index when no commit
// exists yet.
func OpenWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	w := &Writer{
		dir:       dir,
		memIndex:  index.NewMemoryIndex(),
		segWriter: segment.NewWriter(dir),
		cores:     make(map[string]*segment.Core),
		deletes:   make(map[string]*roaring.Bitmap),
		changed:   make(map[string]bool),
		logger:    slog.Default().With("component", "index-writer"),
	}
	c, err := ReadCommit(dir)
	switch {
	case errors.Is(err, ErrNoCommit):
		w.commit = &Commit{}
	case err != nil:
		return nil, err
	default:
		w.commit = c
	}
	for _, info := range w.commit.Segments {
		core, err := segment.OpenCore(dir, info.Name)
		if err != nil {
			w.closeCores()
			return nil, err
		}
		w.cores[info.Name] = core
		dels, err := segment.ReadDeletes(dir, info.Name, info.DelGen)
		if err != nil {
			w.closeCores()
			return nil, err
		}
		w.deletes[info.Name] = dels
	}
	w.logger.Info("index writer opened",
		"dir", dir,
		"generation", w.commit.Generation,
		"segments", len(w.commit.Segments),
		"live_docs", w.commit.LiveDocs(),
	)
	return w, nil
}

// AddDocument buffers doc until the next commit.
func (w *Writer) AddDocument(doc *index.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.memIndex.AddDocument(doc)
	w.dirty = true
	return nil
}

// UpdateDocument deletes every document whose field holds term, then adds
// doc.
func (w *Writer) UpdateDocument(field, term string, doc *index.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.deleteLocked(field, term); err != nil {
		return err
	}
	w.memIndex.AddDocument(doc)
	w.dirty = true
	return nil
}

// DeleteDocuments removes every document whose field holds term, committed
// or buffered.
func (w *Writer) DeleteDocuments(field, term string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deleteLocked(field, term)
}

func (w *Writer) deleteLocked(field, term string) error {
	for name, core := range w.cores {
		postings, err := core.Search(field, term)
		if err != nil {
			return fmt.Errorf("resolving delete in %s: %w", name, err)
		}
		if len(postings) == 0 {
			continue
		}
		dels := w.deletes[name]
		if !w.changed[name] {
			dels = dels.Clone()
			w.deletes[name] = dels
		}
		for _, p := range postings {
			dels.Add(p.Doc)
		}
		w.changed[name] = true
		w.dirty = true
	}
	if n := w.memIndex.DocCount(); n > 0 {
		w.pending = append(w.pending, pendingDelete{field: field, term: term, upTo: uint32(n)})
		w.dirty = true
	}
	return nil
}

// BufferedDocs returns the number of documents waiting for a commit.
func (w *Writer) BufferedDocs() int {
	return w.memIndex.DocCount()
}

// Commit flushes buffered documents into a new segment, persists changed
// deletion bitmaps and atomically publishes a new commit.json. A commit with
// no changes and no user data is a no-op.
func (w *Writer) Commit(userData map[string]string) (*Commit, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.dirty && userData == nil {
		return w.commit, nil
	}

	next := &Commit{
		ID:          uuid.NewString(),
		Generation:  w.commit.Generation + 1,
		NextSegment: w.commit.NextSegment,
		UserData:    userData,
		CreatedAt:   time.Now().UTC(),
	}

	segments := append([]SegmentInfo(nil), w.commit.Segments...)
	var newCore *segment.Core
	if w.memIndex.DocCount() > 0 {
		name := fmt.Sprintf("seg_%06d", next.NextSegment)
		next.NextSegment++
		snapshot := w.memIndex.Snapshot()
		if err := w.segWriter.Write(name, snapshot); err != nil {
			return nil, fmt.Errorf("writing segment: %w", err)
		}
		core, err := segment.OpenCore(w.dir, name)
		if err != nil {
			return nil, err
		}
		newCore = core
		dels := roaring.New()
		for _, pd := range w.pending {
			for _, p := range w.memIndex.Search(pd.field, pd.term) {
				if p.Doc < pd.upTo {
					dels.Add(p.Doc)
				}
			}
		}
		w.cores[name] = core
		w.deletes[name] = dels
		if !dels.IsEmpty() {
			w.changed[name] = true
		}
		segments = append(segments, SegmentInfo{Name: name, DocCount: int(core.DocCount())})
		w.logger.Info("segment flushed",
			"segment", name,
			"terms", core.Terms(),
			"docs", core.DocCount(),
			"deleted_in_buffer", dels.GetCardinality(),
		)
	}

	for _, info := range segments {
		dels := w.deletes[info.Name]
		if w.changed[info.Name] {
			info.DelGen = next.Generation
			info.DelCount = int(dels.GetCardinality())
			if info.DelCount >= info.DocCount {
				w.logger.Info("dropping fully deleted segment", "segment", info.Name)
				continue
			}
			if err := segment.WriteDeletes(w.dir, info.Name, info.DelGen, dels); err != nil {
				w.discard(newCore)
				return nil, err
			}
		}
		next.Segments = append(next.Segments, info)
	}

	if err := writeCommit(w.dir, next); err != nil {
		w.discard(newCore)
		return nil, err
	}

	live := make(map[string]bool, len(next.Segments))
	for _, info := range next.Segments {
		live[info.Name] = true
	}
	for name, core := range w.cores {
		if !live[name] {
			core.DecRef()
			delete(w.cores, name)
			delete(w.deletes, name)
		}
	}

	w.prune(w.commit, next)
	w.commit = next
	w.changed = make(map[string]bool)
	w.pending = nil
	w.dirty = false
	w.memIndex.Reset()
	w.logger.Info("index committed",
		"generation", next.Generation,
		"segments", len(next.Segments),
		"live_docs", next.LiveDocs(),
	)
	return next, nil
}

// LastCommit returns the most recent commit written or loaded.
func (w *Writer) LastCommit() *Commit {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.commit
}

// StartCommitLoop commits on every tick while there are changes, and once
// more on shutdown. userData supplies the commit metadata of each commit.
func (w *Writer) StartCommitLoop(ctx context.Context, interval time.Duration, userData func() map[string]string) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.logger.Info("commit loop stopping, performing final commit")
				if w.hasChanges() {
					if _, err := w.Commit(userData()); err != nil {
						w.logger.Error("final commit failed", "error", err)
					}
				}
				return
			case <-ticker.C:
				if w.hasChanges() {
					if _, err := w.Commit(userData()); err != nil {
						w.logger.Error("periodic commit failed", "error", err)
					}
				}
			}
		}
	}()
}

// discard forgets a segment flushed by a commit that then failed. The
// buffer is kept so the next commit rewrites it.
func (w *Writer) discard(core *segment.Core) {
	if core == nil {
		return
	}
	delete(w.cores, core.Name())
	delete(w.deletes, core.Name())
	delete(w.changed, core.Name())
	core.DecRef()
}

func (w *Writer) hasChanges() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dirty
}

// Close releases the writer's segment handles. Uncommitted changes are lost.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dirty {
		w.logger.Warn("closing writer with uncommitted changes", "buffered_docs", w.memIndex.DocCount())
	}
	w.closeCores()
	return nil
}

func (w *Writer) closeCores() {
	for name, core := range w.cores {
		if err := core.DecRef(); err != nil {
			w.logger.Error("closing segment", "segment", name, "error", err)
		}
	}
	w.cores = make(map[string]*segment.Core)
}
