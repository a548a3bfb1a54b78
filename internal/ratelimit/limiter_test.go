package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atkit/botfleet/internal/atproto"
	"github.com/atkit/botfleet/internal/metrics"
)

func init() { metrics.Init() }

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func TestStateForDefaults(t *testing.T) {
	t.Parallel()

	l := New(newFakeClock())
	st := l.StateFor("api.example.test")
	assert.Equal(t, DefaultLimit, st.Limit)
	assert.Equal(t, DefaultRemaining, st.Remaining)
	assert.Zero(t, st.ResetAt)
}

func TestUpdateIgnoresAbsentMeta(t *testing.T) {
	t.Parallel()

	l := New(newFakeClock())
	l.Update("h", atproto.RateLimitMeta{Limit: 100, Remaining: 1, Present: true})
	l.Update("h", atproto.RateLimitMeta{}) // no headers on this response

	st := l.StateFor("h")
	assert.Equal(t, 100, st.Limit)
	assert.Equal(t, 1, st.Remaining)
}

func TestWaitNPassesWithQuota(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	l := New(clk)
	l.Update("h", atproto.RateLimitMeta{Limit: 3000, Remaining: 50, Reset: clk.Now().Unix() + 300, Present: true})

	require.NoError(t, l.WaitN(context.Background(), "h", 5))
	assert.Empty(t, clk.sleeps)
}

// TestWaitNSleepsUntilReset: remaining 3 with 5 requests wanted and a reset
// 5 seconds out must sleep those 5 seconds.
func TestWaitNSleepsUntilReset(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	l := New(clk)
	l.Update("h", atproto.RateLimitMeta{Limit: 3000, Remaining: 3, Reset: clk.Now().Unix() + 5, Present: true})

	require.NoError(t, l.WaitN(context.Background(), "h", 5))
	require.Len(t, clk.sleeps, 1)
	assert.Equal(t, 5*time.Second, clk.sleeps[0])

	// The advisory wait shows up in the delay histogram.
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range mfs {
		if mf.GetName() == "botfleet_rate_limit_delay_seconds" {
			found = true
		}
	}
	assert.True(t, found, "rate limit delay histogram never observed")
}

// TestWaitNStaleResetPassesThrough: an exhausted quota whose window already
// renewed lets the request through optimistically.
func TestWaitNStaleResetPassesThrough(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	l := New(clk)
	l.Update("h", atproto.RateLimitMeta{Limit: 3000, Remaining: 0, Reset: clk.Now().Unix() - 10, Present: true})

	require.NoError(t, l.WaitN(context.Background(), "h", 5))
	assert.Empty(t, clk.sleeps)
}

func TestWaitNCancelledContext(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	l := New(clk)
	l.Update("h", atproto.RateLimitMeta{Limit: 3000, Remaining: 0, Reset: clk.Now().Unix() + 60, Present: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.WaitN(ctx, "h", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, clk.sleeps)
}

// cancellingClock cancels the context as soon as the wait starts, the way
// a shutdown signal lands mid-sleep.
type cancellingClock struct {
	*fakeClock
	cancel context.CancelFunc
}

func (c *cancellingClock) Sleep(ctx context.Context, d time.Duration) {
	c.cancel()
	c.fakeClock.Sleep(ctx, d)
}

func TestWaitNCancelledDuringSleep(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	clk := &cancellingClock{fakeClock: newFakeClock(), cancel: cancel}
	l := New(clk)
	l.Update("h", atproto.RateLimitMeta{Limit: 3000, Remaining: 0, Reset: clk.Now().Unix() + 60, Present: true})

	err := l.WaitN(ctx, "h", 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimiterTracksHostsIndependently(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	l := New(clk)
	l.Update("a", atproto.RateLimitMeta{Limit: 10, Remaining: 0, Reset: clk.Now().Unix() + 30, Present: true})

	// Host b has no recorded state and passes on defaults.
	require.NoError(t, l.WaitN(context.Background(), "b", 5))
	assert.Empty(t, clk.sleeps)
}
