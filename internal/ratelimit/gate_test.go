// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ratelimit

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when the gate sleeps or the test says so.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

func newFakeGate(t *testing.T, clock *fakeClock) *Gate {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".runtime", "arxiv_api_state.json")
	return New(path, WithClock(clock.Now), WithSleep(clock.Sleep))
}

func TestAcquireSpacesRequests(t *testing.T) {
	clock := newFakeClock()
	g := newFakeGate(t, clock)
	ctx := context.Background()

	waited, err := g.Acquire(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Zero(t, waited, "first request on a fresh state must not wait")

	waited, err = g.Acquire(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, waited.Seconds(), 0.001)

	clock.Advance(2 * time.Second)
	waited, err = g.Acquire(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, waited.Seconds(), 0.001)

	clock.Advance(10 * time.Second)
	waited, err = g.Acquire(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Zero(t, waited)

	st, err := g.State(ctx)
	require.NoError(t, err)
	assert.InDelta(t, unixSeconds(clock.Now()), st.LastRequestTS, 0.001)
	assert.NotEmpty(t, st.LastRequestUTC)
}

func TestAcquireZeroIntervalNeverWaits(t *testing.T) {
	clock := newFakeClock()
	g := newFakeGate(t, clock)

	for i := 0; i < 3; i++ {
		waited, err := g.Acquire(context.Background(), 0)
		require.NoError(t, err)
		assert.Zero(t, waited)
	}
}

func TestCooldownBlocksAndClears(t *testing.T) {
	clock := newFakeClock()
	g := newFakeGate(t, clock)
	ctx := context.Background()

	require.NoError(t, g.RegisterCooldown(ctx, 30*time.Second))

	st, err := g.State(ctx)
	require.NoError(t, err)
	assert.InDelta(t, unixSeconds(clock.Now())+30, st.CooldownUntilTS, 0.001)
	assert.NotEmpty(t, st.CooldownUntilUTC)

	waited, err := g.Acquire(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, waited.Seconds(), 0.001)

	st, err = g.State(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.CooldownUntilTS, "expired cooldown is cleared on the next stamp")
	assert.Empty(t, st.CooldownUntilUTC)
}

func TestCooldownIsMonotonic(t *testing.T) {
	clock := newFakeClock()
	g := newFakeGate(t, clock)
	ctx := context.Background()
	start := unixSeconds(clock.Now())

	require.NoError(t, g.RegisterCooldown(ctx, 60*time.Second))
	require.NoError(t, g.RegisterCooldown(ctx, 10*time.Second))

	st, err := g.State(ctx)
	require.NoError(t, err)
	assert.InDelta(t, start+60, st.CooldownUntilTS, 0.001)

	clock.Advance(55 * time.Second)
	require.NoError(t, g.RegisterCooldown(ctx, 20*time.Second))
	st, err = g.State(ctx)
	require.NoError(t, err)
	assert.InDelta(t, start+75, st.CooldownUntilTS, 0.001)
}

func TestRegisterCooldownNonPositiveIsNoop(t *testing.T) {
	clock := newFakeClock()
	g := newFakeGate(t, clock)
	ctx := context.Background()

	require.NoError(t, g.RegisterCooldown(ctx, 0))
	require.NoError(t, g.RegisterCooldown(ctx, -time.Second))

	_, err := os.Stat(g.Path())
	assert.ErrorIs(t, err, os.ErrNotExist, "no-op cooldowns must not create state")
}

func TestRemaining(t *testing.T) {
	clock := newFakeClock()
	g := newFakeGate(t, clock)
	ctx := context.Background()

	_, err := g.Acquire(ctx, time.Second)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	wait, err := g.Remaining(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, wait.Seconds(), 0.001)

	wait, err = g.Remaining(ctx, time.Second)
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestCorruptStateTreatedAsEmpty(t *testing.T) {
	clock := newFakeClock()
	g := newFakeGate(t, clock)

	require.NoError(t, os.MkdirAll(filepath.Dir(g.Path()), 0o755))
	require.NoError(t, os.WriteFile(g.Path(), []byte("{not json"), 0o644))

	waited, err := g.Acquire(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.Zero(t, waited)

	st, err := g.State(context.Background())
	require.NoError(t, err)
	assert.NotZero(t, st.LastRequestTS)
}

func TestIndependentStatePathsDoNotInteract(t *testing.T) {
	clock := newFakeClock()
	dir := t.TempDir()
	a := New(filepath.Join(dir, "a.json"), WithClock(clock.Now), WithSleep(clock.Sleep))
	b := New(filepath.Join(dir, "b.json"), WithClock(clock.Now), WithSleep(clock.Sleep))
	ctx := context.Background()

	_, err := a.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	waited, err := b.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, waited)
}

func TestLockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	holder := flock.New(path + ".lock")
	require.NoError(t, holder.Lock())
	defer holder.Unlock()

	g := New(path, WithLockTimeout(50*time.Millisecond))
	_, err := g.Acquire(context.Background(), time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestAcquireHonorsContextCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	g := New(path)

	_, err := g.Acquire(context.Background(), time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx, time.Hour)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentGatesShareSpacing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	const (
		workers  = 4
		interval = 40 * time.Millisecond
	)

	var (
		mu     sync.Mutex
		stamps []time.Time
		wg     sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each worker builds its own gate, as a separate process would.
			g := New(path, WithLockTimeout(5*time.Second))
			stamp, _, err := g.acquire(context.Background(), interval)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			stamps = append(stamps, stamp)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, stamps, workers)
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		assert.GreaterOrEqual(t, gap, interval-time.Millisecond, "stamps %d and %d too close: %v", i-1, i, gap)
	}
}
