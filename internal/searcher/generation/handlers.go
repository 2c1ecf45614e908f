package generation

import (
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/auxiliary"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer"
)

// SegmentMapping translates (segment ordinal, segment-local id) into the
// reader's global doc ids.
type SegmentMapping struct {
	Names []string
	Bases []uint32
	Live  []int
}

func (m *SegmentMapping) Global(ord int, local uint32) uint32 {
	return m.Bases[ord] + local
}

type segmentMappingHandler struct {
	result *SegmentMapping
}

func (h *segmentMappingHandler) Name() string { return "segment_mapping" }

func (h *segmentMappingHandler) Begin(r *indexer.DirectoryReader, _ *auxiliary.Snapshot) error {
	leaves := r.Leaves()
	h.result = &SegmentMapping{
		Names: make([]string, len(leaves)),
		Bases: make([]uint32, len(leaves)),
		Live:  make([]int, len(leaves)),
	}
	for i, leaf := range leaves {
		h.result.Names[i] = leaf.Core.Name()
		h.result.Bases[i] = leaf.Base
	}
	return nil
}

func (h *segmentMappingHandler) Visit(doc *Doc) error {
	h.result.Live[doc.Ord]++
	return nil
}

func (h *segmentMappingHandler) End() error { return nil }

// downloadsHandler records per-doc download counts: the package total used
// for boosting and the count of the doc's own version.
type downloadsHandler struct {
	snap    *auxiliary.Snapshot
	total   []int
	version []int
}

func (h *downloadsHandler) Name() string { return "downloads" }

func (h *downloadsHandler) Begin(r *indexer.DirectoryReader, snap *auxiliary.Snapshot) error {
	h.snap = snap
	h.total = make([]int, r.MaxDoc())
	h.version = make([]int, r.MaxDoc())
	return nil
}

func (h *downloadsHandler) Visit(doc *Doc) error {
	h.total[doc.ID] = h.snap.TotalDownloads(doc.Key)
	h.version[doc.ID] = h.snap.VersionDownloads(doc.Key, doc.Version)
	return nil
}

func (h *downloadsHandler) End() error { return nil }

// VersionEntry is one indexed version of a package.
type VersionEntry struct {
	Version    string
	Doc        uint32
	Listed     bool
	Prerelease bool
	Downloads  int
}

// versionsHandler groups docs by package id, versions ascending.
type versionsHandler struct {
	snap   *auxiliary.Snapshot
	docs   map[string][]*Doc
	result map[string][]VersionEntry
}

func (h *versionsHandler) Name() string { return "versions" }

func (h *versionsHandler) Begin(_ *indexer.DirectoryReader, snap *auxiliary.Snapshot) error {
	h.snap = snap
	h.docs = make(map[string][]*Doc)
	return nil
}

func (h *versionsHandler) Visit(doc *Doc) error {
	h.docs[doc.Key] = append(h.docs[doc.Key], doc)
	return nil
}

func (h *versionsHandler) End() error {
	h.result = make(map[string][]VersionEntry, len(h.docs))
	for key, docs := range h.docs {
		sort.SliceStable(docs, func(i, j int) bool { return compareVersions(docs[i], docs[j]) < 0 })
		entries := make([]VersionEntry, len(docs))
		for i, d := range docs {
			entries[i] = VersionEntry{
				Version:    d.Version,
				Doc:        d.ID,
				Listed:     d.Listed,
				Prerelease: d.Prerelease,
				Downloads:  h.snap.VersionDownloads(key, d.Version),
			}
		}
		h.result[key] = entries
	}
	h.docs = nil
	return nil
}

// Unranked marks a document whose package has no popularity rank.
const Unranked = -1

type rankingsHandler struct {
	snap   *auxiliary.Snapshot
	result []int
}

func (h *rankingsHandler) Name() string { return "rankings" }

func (h *rankingsHandler) Begin(r *indexer.DirectoryReader, snap *auxiliary.Snapshot) error {
	h.snap = snap
	h.result = make([]int, r.MaxDoc())
	for i := range h.result {
		h.result[i] = Unranked
	}
	return nil
}

func (h *rankingsHandler) Visit(doc *Doc) error {
	if rank, ok := h.snap.Rank(doc.Key); ok {
		h.result[doc.ID] = rank
	}
	return nil
}

func (h *rankingsHandler) End() error { return nil }

// ownersHandler inverts id -> owners into doc -> owners and owner -> docs.
type ownersHandler struct {
	snap    *auxiliary.Snapshot
	byDoc   [][]string
	byOwner map[string]*roaring.Bitmap
}

func (h *ownersHandler) Name() string { return "owners" }

func (h *ownersHandler) Begin(r *indexer.DirectoryReader, snap *auxiliary.Snapshot) error {
	h.snap = snap
	h.byDoc = make([][]string, r.MaxDoc())
	h.byOwner = make(map[string]*roaring.Bitmap)
	return nil
}

func (h *ownersHandler) Visit(doc *Doc) error {
	owners := h.snap.OwnersOf(doc.Key)
	if len(owners) == 0 {
		return nil
	}
	h.byDoc[doc.ID] = owners
	for _, o := range owners {
		key := strings.ToLower(o)
		bm, ok := h.byOwner[key]
		if !ok {
			bm = roaring.New()
			h.byOwner[key] = bm
		}
		bm.Add(doc.ID)
	}
	return nil
}

func (h *ownersHandler) End() error {
	for _, bm := range h.byOwner {
		bm.RunOptimize()
	}
	return nil
}

// latestListedHandler evaluates one (includeUnlisted, includePrerelease)
// predicate. filter holds every matching doc; latest holds the highest
// matching version of each package.
type latestListedHandler struct {
	includeUnlisted   bool
	includePrerelease bool

	filter *roaring.Bitmap
	latest *roaring.Bitmap
	best   map[string]*Doc
}

func (h *latestListedHandler) Name() string {
	switch {
	case h.includeUnlisted && h.includePrerelease:
		return "latest_listed_11"
	case h.includeUnlisted:
		return "latest_listed_10"
	case h.includePrerelease:
		return "latest_listed_01"
	default:
		return "latest_listed_00"
	}
}

func (h *latestListedHandler) Begin(*indexer.DirectoryReader, *auxiliary.Snapshot) error {
	h.filter = roaring.New()
	h.latest = roaring.New()
	h.best = make(map[string]*Doc)
	return nil
}

func (h *latestListedHandler) matches(doc *Doc) bool {
	return (h.includeUnlisted || doc.Listed) && (h.includePrerelease || !doc.Prerelease)
}

func (h *latestListedHandler) Visit(doc *Doc) error {
	if !h.matches(doc) {
		return nil
	}
	h.filter.Add(doc.ID)
	if cur, ok := h.best[doc.Key]; !ok || compareVersions(doc, cur) > 0 {
		h.best[doc.Key] = doc
	}
	return nil
}

func (h *latestListedHandler) End() error {
	for _, d := range h.best {
		h.latest.Add(d.ID)
	}
	h.best = nil
	h.filter.RunOptimize()
	h.latest.RunOptimize()
	return nil
}

// curatedFeedHandler inverts feed -> ids into feed -> docs.
type curatedFeedHandler struct {
	feedsByID map[string][]string
	result    map[string]*roaring.Bitmap
}

func (h *curatedFeedHandler) Name() string { return "curated_feeds" }

func (h *curatedFeedHandler) Begin(_ *indexer.DirectoryReader, snap *auxiliary.Snapshot) error {
	h.feedsByID = make(map[string][]string)
	h.result = make(map[string]*roaring.Bitmap, len(snap.CuratedFeeds))
	for feed, ids := range snap.CuratedFeeds {
		h.result[feed] = roaring.New()
		for id := range ids {
			h.feedsByID[id] = append(h.feedsByID[id], feed)
		}
	}
	return nil
}

func (h *curatedFeedHandler) Visit(doc *Doc) error {
	for _, feed := range h.feedsByID[doc.Key] {
		h.result[feed].Add(doc.ID)
	}
	return nil
}

func (h *curatedFeedHandler) End() error {
	h.feedsByID = nil
	return nil
}
