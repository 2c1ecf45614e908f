// Package manager owns the current index generation. Queries acquire it
// without locking; a single background reopen builds and warms the next
// generation and publishes it with an atomic swap.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/auxiliary"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/generation"
	apperrors "github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/tracing"
)

// ReopenError reports a failed reopen. The previous generation stays current.
type ReopenError struct {
	Phase string
	Err   error
}

func (e *ReopenError) Error() string {
	return fmt.Sprintf("reopen failed during %s: %v", e.Phase, e.Err)
}

func (e *ReopenError) Unwrap() []error {
	return []error{apperrors.ErrReopenFailed, e.Err}
}

// SnapshotSource supplies the auxiliary snapshot a new generation captures.
type SnapshotSource interface {
	Current() *auxiliary.Snapshot
}

type Options struct {
	Dir string
	Aux SnapshotSource
	// Warm runs against a built generation before it is published. An error
	// discards the generation.
	Warm func(ctx context.Context, g *generation.Generation) error
	// OnPublish is called after a new generation becomes current.
	OnPublish func(g *generation.Generation)
	Metrics   *metrics.Metrics
	Interval  time.Duration
	Startup   resilience.RetryConfig
}

type Manager struct {
	opts      Options
	metrics   *metrics.Metrics
	logger    *slog.Logger
	current   atomic.Pointer[generation.Generation]
	reopening atomic.Bool
	seq       atomic.Uint64
	stopped   atomic.Bool
}

func New(opts Options) *Manager {
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNop()
	}
	return &Manager{
		opts:    opts,
		metrics: m,
		logger:  slog.Default().With("component", "searcher-manager"),
	}
}

// Handle pins one generation until Release.
type Handle struct {
	g        *generation.Generation
	released atomic.Bool
	logger   *slog.Logger
}

func (h *Handle) Generation() *generation.Generation { return h.g }

// Release drops the handle's reference. Calls after the first do nothing.
func (h *Handle) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}
	if err := h.g.DecRef(); err != nil {
		h.logger.Error("releasing generation", "seq", h.g.Seq, "error", err)
	}
}

// Acquire pins the current generation. It never blocks; before the first
// generation is published it returns ErrUninitialized.
func (m *Manager) Acquire() (*Handle, error) {
	for {
		g := m.current.Load()
		if g == nil {
			return nil, apperrors.ErrUninitialized
		}
		if g.TryIncRef() {
			return &Handle{g: g, logger: m.logger}, nil
		}
		// g was retired and closed between the load and the increment.
		if m.current.Load() == g {
			return nil, apperrors.ErrUninitialized
		}
	}
}

// MaybeReopen publishes a new generation when the index has a newer commit
// or the auxiliary content changed. It returns immediately with false when
// another reopen is in flight.
func (m *Manager) MaybeReopen(ctx context.Context) (bool, error) {
	if m.stopped.Load() {
		return false, nil
	}
	if !m.reopening.CompareAndSwap(false, true) {
		m.metrics.ReopensTotal.WithLabelValues("skipped").Inc()
		return false, nil
	}
	defer m.reopening.Store(false)

	ctx, span := tracing.StartSpan(ctx, "reopen", "")
	published, err := m.reopen(ctx)
	span.End()
	for phase, d := range span.Phases() {
		m.metrics.ReopenDuration.WithLabelValues(phase).Observe(d.Seconds())
	}
	span.Log(m.logger)

	switch {
	case err != nil:
		m.metrics.ReopensTotal.WithLabelValues("failed").Inc()
		m.logger.Error("index reopen failed", "error", err)
	case published:
		m.metrics.ReopensTotal.WithLabelValues("published").Inc()
	default:
		m.metrics.ReopensTotal.WithLabelValues("unchanged").Inc()
	}
	return published, err
}

func (m *Manager) snapshot() *auxiliary.Snapshot {
	if m.opts.Aux == nil {
		return auxiliary.Empty()
	}
	return m.opts.Aux.Current()
}

func (m *Manager) reopen(ctx context.Context) (bool, error) {
	snap := m.snapshot()

	_, phase := tracing.StartChildSpan(ctx, "reopen")
	r, err := m.openReader(snap)
	phase.End()
	if err != nil {
		return false, &ReopenError{Phase: "reopen", Err: err}
	}
	if r == nil {
		return false, nil
	}

	seq := m.seq.Add(1)
	buildCtx, phase := tracing.StartChildSpan(ctx, "build")
	g, err := generation.Build(buildCtx, r, snap,
		generation.WithSeq(seq),
		generation.WithOnClose(func(*generation.Generation) { m.metrics.LiveGenerations.Dec() }),
	)
	phase.End()
	if err != nil {
		r.Close()
		return false, &ReopenError{Phase: "build", Err: err}
	}
	m.metrics.LiveGenerations.Inc()
	phase.SetAttr("seq", seq)

	if m.opts.Warm != nil {
		warmCtx, phase := tracing.StartChildSpan(ctx, "warm")
		err := m.opts.Warm(warmCtx, g)
		phase.End()
		if err != nil {
			m.release(g, "discarding unwarmed generation")
			return false, &ReopenError{Phase: "warm", Err: err}
		}
	}
	g.WarmedAt = time.Now().UTC()

	_, phase = tracing.StartChildSpan(ctx, "publish")
	old := m.current.Swap(g)
	if old != nil {
		m.release(old, "retiring generation")
	}
	phase.End()
	if m.stopped.Load() {
		// Close ran before or during the swap. If it did not take g, nothing
		// else will.
		if m.current.CompareAndSwap(g, nil) {
			m.release(g, "discarding generation published during shutdown")
		}
		return false, nil
	}

	m.metrics.GenerationDocs.WithLabelValues("max").Set(float64(g.MaxDoc()))
	m.metrics.GenerationDocs.WithLabelValues("live").Set(float64(g.NumDocs()))
	m.metrics.GenerationDocs.WithLabelValues("latest").Set(float64(g.Latest().GetCardinality()))
	m.metrics.GenerationDocs.WithLabelValues("latest_stable").Set(float64(g.LatestStable().GetCardinality()))

	m.logger.Info("generation published",
		"seq", g.Seq,
		"index_generation", g.Reader.Generation(),
		"docs", g.NumDocs(),
		"auxiliary_version", snap.Version,
	)
	if m.opts.OnPublish != nil {
		m.opts.OnPublish(g)
	}
	return true, nil
}

func (m *Manager) release(g *generation.Generation, msg string) {
	if err := g.DecRef(); err != nil {
		m.logger.Error(msg, "seq", g.Seq, "error", err)
	}
}

// openReader returns a reader for the next generation, or nil when neither
// the index nor the auxiliary snapshot changed.
func (m *Manager) openReader(snap *auxiliary.Snapshot) (*indexer.DirectoryReader, error) {
	cur := m.current.Load()
	if cur == nil || !cur.TryIncRef() {
		return indexer.OpenDirectory(m.opts.Dir)
	}
	defer m.release(cur, "releasing generation")

	r, err := cur.Reader.Reopen()
	if err != nil {
		return nil, err
	}
	if r != nil {
		return r, nil
	}
	if snap.Fingerprint == cur.Snapshot.Fingerprint {
		return nil, nil
	}
	m.logger.Info("auxiliary data changed, rebuilding generation",
		"from_version", cur.Snapshot.Version, "to_version", snap.Version,
		"fingerprint", snap.Fingerprint)
	return cur.Reader.Clone()
}

// Open publishes the first generation, retrying with backoff while the
// index is missing or unreadable.
func (m *Manager) Open(ctx context.Context) error {
	err := resilience.Retry(ctx, "open-index", m.opts.Startup, func() error {
		if _, err := m.MaybeReopen(ctx); err != nil {
			return err
		}
		if m.current.Load() == nil {
			return errors.New("no generation published")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUninitialized, err)
	}
	return nil
}

// Start reopens on every tick until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	interval := m.opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.logger.Info("reopen loop stopping")
				return
			case <-ticker.C:
				m.MaybeReopen(ctx)
			}
		}
	}()
}

// Close unpublishes the current generation. It is closed once outstanding
// handles are released.
func (m *Manager) Close() error {
	m.stopped.Store(true)
	old := m.current.Swap(nil)
	if old == nil {
		return nil
	}
	return old.DecRef()
}
