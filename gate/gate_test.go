package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behaviorlab/datakit/cachestore"
	"github.com/behaviorlab/datakit/fingerprint"
)

type userStats struct {
	Users   int     `json:"users"`
	AvgPost float64 `json:"avg_post"`
}

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	store, err := cachestore.Open(cachestore.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(Config{Store: store})
}

func statsRequest(params fingerprint.Params) Request {
	return Request{
		DatasetDigest: fingerprint.DigestBytes([]byte("posts.csv")),
		ComputationID: "user_stats",
		Params:        params,
	}
}

func TestDoCachesResult(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	var calls atomic.Int64
	compute := func(ctx context.Context) (userStats, error) {
		calls.Add(1)
		return userStats{Users: 42, AvgPost: 3.5}, nil
	}

	first, err := Do(ctx, g, statsRequest(nil), compute)
	require.NoError(t, err)
	second, err := Do(ctx, g, statsRequest(nil), compute)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), calls.Load(), "second call must be served from cache")
}

func TestDoErrorsAreNotCached(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	boom := errors.New("upstream unavailable")
	var calls atomic.Int64
	compute := func(ctx context.Context) (userStats, error) {
		if calls.Add(1) == 1 {
			return userStats{}, boom
		}
		return userStats{Users: 7}, nil
	}

	_, err := Do(ctx, g, statsRequest(nil), compute)
	assert.ErrorIs(t, err, boom)

	got, err := Do(ctx, g, statsRequest(nil), compute)
	require.NoError(t, err, "a failure must not poison the cache")
	assert.Equal(t, 7, got.Users)
	assert.Equal(t, int64(2), calls.Load())
}

func TestDoCollapsesConcurrentCallers(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	release := make(chan struct{})
	var calls atomic.Int64
	compute := func(ctx context.Context) (userStats, error) {
		calls.Add(1)
		<-release
		return userStats{Users: 1}, nil
	}

	const callers = 50
	var wg sync.WaitGroup
	results := make([]userStats, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = Do(ctx, g, statsRequest(nil), compute)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "concurrent callers share one execution")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 1, results[i].Users)
	}
}

func TestDoDistinguishesParams(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	var calls atomic.Int64
	compute := func(ctx context.Context) (userStats, error) {
		calls.Add(1)
		return userStats{}, nil
	}

	_, err := Do(ctx, g, statsRequest(fingerprint.Params{"top_n": 10}), compute)
	require.NoError(t, err)
	_, err = Do(ctx, g, statsRequest(fingerprint.Params{"top_n": 20}), compute)
	require.NoError(t, err)
	_, err = Do(ctx, g, statsRequest(fingerprint.Params{"top_n": 10}), compute)
	require.NoError(t, err)

	assert.Equal(t, int64(2), calls.Load())
}

func TestDoRejectsUnhashableParams(t *testing.T) {
	g := newTestGate(t)

	req := statsRequest(fingerprint.Params{"fn": func() {}})
	_, err := Do(context.Background(), g, req, func(ctx context.Context) (userStats, error) {
		t.Fatal("compute must not run for an unhashable request")
		return userStats{}, nil
	})

	var unhashable *fingerprint.UnhashableError
	assert.ErrorAs(t, err, &unhashable)
}

func TestDoWithTimeout(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	release := make(chan struct{})
	var calls atomic.Int64
	compute := func(ctx context.Context) (userStats, error) {
		calls.Add(1)
		<-release
		return userStats{Users: 9}, nil
	}

	_, err := DoWithTimeout(ctx, g, statsRequest(nil), 20*time.Millisecond, compute)
	assert.ErrorIs(t, err, ErrComputationTimeout)

	// The abandoned flight finishes and caches; the next caller gets the
	// result without recomputing.
	close(release)
	var got userStats
	require.Eventually(t, func() bool {
		var err error
		got, err = Do(ctx, g, statsRequest(nil), compute)
		return err == nil && got.Users == 9
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), calls.Load())
}

func TestInvalidate(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	var calls atomic.Int64
	compute := func(ctx context.Context) (userStats, error) {
		calls.Add(1)
		return userStats{}, nil
	}

	_, err := Do(ctx, g, statsRequest(nil), compute)
	require.NoError(t, err)
	require.NoError(t, g.Invalidate(statsRequest(nil)))
	_, err = Do(ctx, g, statsRequest(nil), compute)
	require.NoError(t, err)

	assert.Equal(t, int64(2), calls.Load())
}
