// Package auxiliary loads the side tables that enrich search results but do
// not live in the index: package owners, curated feeds, download counts and
// popularity rankings. Tables are replaced as one immutable Snapshot.
package auxiliary

import (
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/version"
)

// Snapshot is one consistent load of every auxiliary table. All keys are
// lower-cased package ids. A Snapshot is never mutated after it is
// published.
type Snapshot struct {
	// Version counts reloads in this process. Fingerprint identifies the
	// loaded content and is equal wherever the same files were loaded.
	Version     uint64
	Fingerprint string
	LoadedAt    time.Time

	Owners       map[string]map[string]struct{}
	CuratedFeeds map[string]map[string]struct{}
	Downloads    map[string]map[string]int
	Rankings     map[string]int
}

// Empty returns the snapshot served before the first successful load.
func Empty() *Snapshot {
	return &Snapshot{
		Owners:       map[string]map[string]struct{}{},
		CuratedFeeds: map[string]map[string]struct{}{},
		Downloads:    map[string]map[string]int{},
		Rankings:     map[string]int{},
	}
}

// OwnersOf returns the sorted owners of id.
func (s *Snapshot) OwnersOf(id string) []string {
	set := s.Owners[strings.ToLower(id)]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for o := range set {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// Rank returns the popularity rank of id, 0 being the most popular.
func (s *Snapshot) Rank(id string) (int, bool) {
	r, ok := s.Rankings[strings.ToLower(id)]
	return r, ok
}

func (s *Snapshot) RankedCount() int {
	return len(s.Rankings)
}

// VersionDownloads returns the download count of one version of id.
func (s *Snapshot) VersionDownloads(id, ver string) int {
	return s.Downloads[strings.ToLower(id)][versionKey(ver)]
}

// TotalDownloads sums the downloads of every version of id.
func (s *Snapshot) TotalDownloads(id string) int {
	total := 0
	for _, n := range s.Downloads[strings.ToLower(id)] {
		total += n
	}
	return total
}

// Feed returns the ids of a curated feed, or nil when the feed is unknown.
func (s *Snapshot) Feed(name string) (map[string]struct{}, bool) {
	ids, ok := s.CuratedFeeds[strings.ToLower(name)]
	return ids, ok
}

// Counts reports the record count of each table.
func (s *Snapshot) Counts() map[string]int {
	return map[string]int{
		"owners":       len(s.Owners),
		"curatedfeeds": len(s.CuratedFeeds),
		"downloads":    len(s.Downloads),
		"rankings":     len(s.Rankings),
	}
}

// versionKey folds equivalent version spellings so "1.0" and "1.0.0.0"
// share one download counter.
func versionKey(raw string) string {
	return version.Key(raw)
}
