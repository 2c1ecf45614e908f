package auxiliary

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/metrics"
)

// LoadError reports a failed reload. The previous snapshot stays current.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading auxiliary file %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() []error {
	return []error{apperrors.ErrAuxiliaryLoad, e.Err}
}

// Store holds the current auxiliary snapshot and replaces it on reload.
type Store struct {
	loader   Loader
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
	version uint64
}

func NewStore(loader Loader, interval time.Duration, m *metrics.Metrics) *Store {
	s := &Store{
		loader:   loader,
		interval: interval,
		metrics:  m,
		logger:   slog.Default().With("component", "auxiliary"),
	}
	s.current.Store(Empty())
	return s
}

// Current returns the latest published snapshot. It never returns nil.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Reload reads every table and publishes them as a new snapshot. Missing
// files load as empty tables; any other failure keeps the previous snapshot
// and returns a *LoadError.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	next := Empty()
	var sums [len(tableFiles)][]byte

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.load(gctx, OwnersFile, &sums[0], func(r io.Reader) (err error) {
			next.Owners, err = parseOwners(r, s.logger)
			return err
		})
	})
	g.Go(func() error {
		return s.load(gctx, CuratedFeedsFile, &sums[1], func(r io.Reader) (err error) {
			next.CuratedFeeds, err = parseCuratedFeeds(r, s.logger)
			return err
		})
	})
	g.Go(func() error {
		return s.load(gctx, DownloadsFile, &sums[2], func(r io.Reader) (err error) {
			next.Downloads, err = parseDownloads(r, s.logger)
			return err
		})
	})
	g.Go(func() error {
		return s.load(gctx, RankingsFile, &sums[3], func(r io.Reader) (err error) {
			next.Rankings, err = parseRankings(r)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		s.metrics.AuxiliaryReloads.WithLabelValues("failed").Inc()
		s.logger.Error("auxiliary reload failed, keeping previous snapshot",
			"error", err,
			"current_version", s.current.Load().Version,
		)
		return nil, err
	}

	s.version++
	next.Version = s.version
	next.Fingerprint = fingerprint(sums[:])
	next.LoadedAt = time.Now().UTC()
	s.current.Store(next)

	for table, n := range next.Counts() {
		s.metrics.AuxiliaryRecords.WithLabelValues(table).Set(float64(n))
	}
	s.metrics.AuxiliaryReloads.WithLabelValues("loaded").Inc()
	s.logger.Info("auxiliary data reloaded",
		"version", next.Version,
		"fingerprint", next.Fingerprint,
		"owners", len(next.Owners),
		"curated_feeds", len(next.CuratedFeeds),
		"downloads", len(next.Downloads),
		"rankings", len(next.Rankings),
		"duration", time.Since(start),
	)
	return next, nil
}

// tableFiles is the fixed order in which file digests enter a fingerprint.
var tableFiles = [...]string{OwnersFile, CuratedFeedsFile, DownloadsFile, RankingsFile}

// fingerprint combines per-file digests; a missing file contributes an
// empty digest.
func fingerprint(sums [][]byte) string {
	h := sha256.New()
	for i, sum := range sums {
		fmt.Fprintf(h, "%s=%x;", tableFiles[i], sum)
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// load parses one file and records the digest of its full content in sum.
func (s *Store) load(ctx context.Context, file string, sum *[]byte, parse func(io.Reader) error) error {
	rc, err := s.loader.Open(ctx, file)
	if errors.Is(err, apperrors.ErrNotFound) {
		s.logger.Warn("auxiliary file missing, loading empty table", "file", file)
		return nil
	}
	if err != nil {
		return &LoadError{File: file, Err: err}
	}
	defer rc.Close()
	h := sha256.New()
	r := io.TeeReader(rc, h)
	if err := parse(r); err != nil {
		return &LoadError{File: file, Err: err}
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return &LoadError{File: file, Err: err}
	}
	*sum = h.Sum(nil)
	return nil
}

// Start reloads on every interval until ctx is done. The first reload
// happens one interval after Start; callers load eagerly with Reload.
func (s *Store) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("auxiliary reload loop stopping")
				return
			case <-ticker.C:
				_, _ = s.Reload(ctx)
			}
		}
	}()
}
