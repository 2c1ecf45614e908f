package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/metrics"
)

type result struct {
	Total int      `json:"total"`
	IDs   []string `json:"ids"`
}

func TestGetOrComputeCachesResults(t *testing.T) {
	c := New(NewLRU(16, time.Minute), metrics.NewNop())
	ctx := context.Background()
	calls := 0
	compute := func() (result, error) {
		calls++
		return result{Total: 1, IDs: []string{"serilog"}}, nil
	}

	key := Key("g1", "search", "serilog", "take=20")
	v, hit, err := GetOrCompute(ctx, c, key, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"serilog"}, v.IDs)

	v, hit, err = GetOrCompute(ctx, c, key, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, v.Total)
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestKeysDifferPerGeneration(t *testing.T) {
	assert.NotEqual(t, Key("g1", "search", "q"), Key("g2", "search", "q"))
	assert.NotEqual(t, Key("g1", "search", "q"), Key("g1", "autocomplete", "q"))
	assert.Equal(t, Key("g3", "find", "x"), Key("g3", "find", "x"))
}

func TestGetOrComputeCoalescesConcurrentCalls(t *testing.T) {
	c := New(NewLRU(16, time.Minute), metrics.NewNop())
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := GetOrCompute(context.Background(), c, "k", func() (int, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestErrorsAreNotCached(t *testing.T) {
	c := New(NewLRU(16, time.Minute), metrics.NewNop())
	boom := errors.New("boom")
	_, _, err := GetOrCompute(context.Background(), c, "k", func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	v, hit, err := GetOrCompute(context.Background(), c, "k", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, v)
}

func TestNilCacheComputes(t *testing.T) {
	var c *QueryCache
	v, hit, err := GetOrCompute(context.Background(), c, "k", func() (string, error) { return "x", nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "x", v)
	assert.NoError(t, c.Invalidate(context.Background()))
}

func TestInvalidatePurges(t *testing.T) {
	c := New(NewLRU(16, time.Minute), metrics.NewNop())
	ctx := context.Background()
	_, _, _ = GetOrCompute(ctx, c, "k", func() (int, error) { return 1, nil })
	require.NoError(t, c.Invalidate(ctx))
	_, hit, _ := GetOrCompute(ctx, c, "k", func() (int, error) { return 1, nil })
	assert.False(t, hit)
}
