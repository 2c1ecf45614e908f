// Package generation builds the immutable, reference-counted bundle of an
// index reader plus every structure derived from it. All derived arrays and
// bitmaps are indexed by the reader's doc ids and are only meaningful
// together with that reader.
package generation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/auxiliary"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer"
)

// Generation is never mutated once published. It owns its reader and closes
// it when the last reference is dropped.
type Generation struct {
	// Seq counts generations built by this process. Key identifies what the
	// generation serves, the index commit and the auxiliary content, and is
	// equal across processes and restarts serving the same data.
	Seq      uint64
	Key      string
	Reader   *indexer.DirectoryReader
	Commit   indexer.CommitMetadata
	Snapshot *auxiliary.Snapshot
	Mapping  *SegmentMapping

	// Filters[u][p] holds every doc matching the (includeUnlisted=u,
	// includePrerelease=p) predicate; LatestSets[u][p] the highest version
	// of each package among them.
	Filters    [2][2]*roaring.Bitmap
	LatestSets [2][2]*roaring.Bitmap

	Feeds            map[string]*roaring.Bitmap
	Ranks            []int
	Downloads        []int
	VersionDownloads []int
	Versions         map[string][]VersionEntry
	OwnersByDoc      [][]string
	OwnerDocs        map[string]*roaring.Bitmap

	BuiltAt  time.Time
	WarmedAt time.Time

	refs    atomic.Int32
	closed  atomic.Bool
	onClose func(*Generation)
	logger  *slog.Logger
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Latest is the newest listed version of each package, prereleases included.
func (g *Generation) Latest() *roaring.Bitmap { return g.LatestSets[0][1] }

// LatestStable is the newest listed stable version of each package.
func (g *Generation) LatestStable() *roaring.Bitmap { return g.LatestSets[0][0] }

// TryGetFilter returns the candidate set for a search: the latest version of
// each package under the predicate, intersected with a curated feed when one
// is named. It reports false for an unknown feed. The returned bitmap must
// not be modified.
func (g *Generation) TryGetFilter(includeUnlisted, includePrerelease bool, feed string) (*roaring.Bitmap, bool) {
	base := g.LatestSets[b2i(includeUnlisted)][b2i(includePrerelease)]
	if feed == "" {
		return base, true
	}
	feedDocs, ok := g.Feeds[strings.ToLower(feed)]
	if !ok {
		return nil, false
	}
	return roaring.And(base, feedDocs), true
}

// Predicate returns every doc matching the listed/prerelease predicate,
// all versions included.
func (g *Generation) Predicate(includeUnlisted, includePrerelease bool) *roaring.Bitmap {
	return g.Filters[b2i(includeUnlisted)][b2i(includePrerelease)]
}

// Owner returns the docs of packages owned by owner.
func (g *Generation) Owner(owner string) *roaring.Bitmap {
	if bm, ok := g.OwnerDocs[strings.ToLower(owner)]; ok {
		return bm
	}
	return roaring.New()
}

// Rank returns the popularity rank of doc, or Unranked.
func (g *Generation) Rank(doc uint32) int {
	if int(doc) >= len(g.Ranks) {
		return Unranked
	}
	return g.Ranks[doc]
}

// PackageDownloads returns the total downloads of the package of doc.
func (g *Generation) PackageDownloads(doc uint32) int {
	if int(doc) >= len(g.Downloads) {
		return 0
	}
	return g.Downloads[doc]
}

// VersionsOf returns the indexed versions of id, oldest first.
func (g *Generation) VersionsOf(id string) []VersionEntry {
	return g.Versions[strings.ToLower(id)]
}

func (g *Generation) MaxDoc() uint32 { return g.Reader.MaxDoc() }
func (g *Generation) NumDocs() int   { return g.Reader.NumDocs() }

// TryIncRef takes a reference unless the generation is already closed.
func (g *Generation) TryIncRef() bool {
	for {
		n := g.refs.Load()
		if n <= 0 {
			return false
		}
		if g.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// DecRef drops a reference and closes the generation on the last one.
func (g *Generation) DecRef() error {
	n := g.refs.Add(-1)
	if n > 0 {
		return nil
	}
	if n < 0 {
		return fmt.Errorf("generation %d: reference count below zero", g.Seq)
	}
	return g.close()
}

func (g *Generation) RefCount() int32 { return g.refs.Load() }
func (g *Generation) Closed() bool    { return g.closed.Load() }

func (g *Generation) close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := g.Reader.Close()
	g.logger.Info("generation closed", "seq", g.Seq, "index_generation", g.Reader.Generation())
	if g.onClose != nil {
		g.onClose(g)
	}
	return err
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	seq      uint64
	handlers []Handler
	onClose  func(*Generation)
	logger   *slog.Logger
}

func WithSeq(seq uint64) Option {
	return func(o *buildOptions) { o.seq = seq }
}

// WithHandler registers an extra handler that runs after the built-in ones.
func WithHandler(h Handler) Option {
	return func(o *buildOptions) { o.handlers = append(o.handlers, h) }
}

// WithOnClose registers a callback run once when the generation closes.
func WithOnClose(fn func(*Generation)) Option {
	return func(o *buildOptions) { o.onClose = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *buildOptions) { o.logger = l }
}

const cancelCheckInterval = 4096

// Build makes one pass over every live document of r, feeding each to all
// handlers, and assembles the result. The returned generation owns r and
// holds one reference. On error r is left open for the caller.
func Build(ctx context.Context, r *indexer.DirectoryReader, snap *auxiliary.Snapshot, opts ...Option) (*Generation, error) {
	o := buildOptions{logger: slog.Default().With("component", "generation")}
	for _, opt := range opts {
		opt(&o)
	}
	if snap == nil {
		snap = auxiliary.Empty()
	}

	mapping := &segmentMappingHandler{}
	downloads := &downloadsHandler{}
	versions := &versionsHandler{}
	rankings := &rankingsHandler{}
	owners := &ownersHandler{}
	var latest [2][2]*latestListedHandler
	for u := 0; u < 2; u++ {
		for p := 0; p < 2; p++ {
			latest[u][p] = &latestListedHandler{includeUnlisted: u == 1, includePrerelease: p == 1}
		}
	}
	feeds := &curatedFeedHandler{}

	handlers := []Handler{
		mapping, downloads, versions, rankings, owners,
		latest[0][0], latest[0][1], latest[1][0], latest[1][1],
		feeds,
	}
	handlers = append(handlers, o.handlers...)

	start := time.Now()
	for _, h := range handlers {
		if err := h.Begin(r, snap); err != nil {
			return nil, fmt.Errorf("handler %s: begin: %w", h.Name(), err)
		}
	}

	visited := 0
	for _, leaf := range r.Leaves() {
		for local := uint32(0); local < leaf.MaxDoc(); local++ {
			if leaf.IsDeleted(local) {
				continue
			}
			if visited%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			fields, err := leaf.Core.Document(local)
			if err != nil {
				return nil, fmt.Errorf("segment %s doc %d: %w", leaf.Core.Name(), local, err)
			}
			doc := decodeDoc(leaf, local, fields)
			for _, h := range handlers {
				if err := h.Visit(doc); err != nil {
					return nil, fmt.Errorf("handler %s: doc %d: %w", h.Name(), doc.ID, err)
				}
			}
			visited++
		}
	}

	for _, h := range handlers {
		if err := h.End(); err != nil {
			return nil, fmt.Errorf("handler %s: end: %w", h.Name(), err)
		}
	}

	g := &Generation{
		Seq:              o.seq,
		Key:              ContentKey(r.CommitID(), r.Generation(), snap.Fingerprint),
		Reader:           r,
		Commit:           indexer.ParseCommitMetadata(r.UserData()),
		Snapshot:         snap,
		Mapping:          mapping.result,
		Feeds:            feeds.result,
		Ranks:            rankings.result,
		Downloads:        downloads.total,
		VersionDownloads: downloads.version,
		Versions:         versions.result,
		OwnersByDoc:      owners.byDoc,
		OwnerDocs:        owners.byOwner,
		BuiltAt:          time.Now().UTC(),
		onClose:          o.onClose,
		logger:           o.logger,
	}
	for u := 0; u < 2; u++ {
		for p := 0; p < 2; p++ {
			g.Filters[u][p] = latest[u][p].filter
			g.LatestSets[u][p] = latest[u][p].latest
		}
	}
	g.refs.Store(1)

	o.logger.Info("generation built",
		"seq", g.Seq,
		"key", g.Key,
		"index_generation", r.Generation(),
		"max_doc", r.MaxDoc(),
		"deleted", r.NumDeletedDocs(),
		"visited", visited,
		"latest", g.Latest().GetCardinality(),
		"latest_stable", g.LatestStable().GetCardinality(),
		"auxiliary_version", snap.Version,
		"duration", time.Since(start),
	)
	return g, nil
}

// ContentKey derives a generation key from the commit identity and the
// auxiliary snapshot fingerprint.
func ContentKey(commitID string, indexGeneration int64, auxFingerprint string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", commitID, indexGeneration, auxFingerprint)))
	return hex.EncodeToString(sum[:16])
}
