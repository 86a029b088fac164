// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ratelimit implements the request gate shared by every process that
// points at the same rate-state file. The state (last request time and an
// optional cooldown deadline) lives in a JSON file; every read-modify-write
// happens under an exclusive flock on the sibling "<state>.lock" file.
//
// The lock is held only for the read-modify-write itself, never across a
// sleep or a network call. A caller that must wait releases the lock, sleeps,
// and re-checks, so the spacing invariant is always verified under the lock.
// There is no FIFO guarantee between waiting processes.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-collector/internal/fsutil"
	"github.com/pdiddy/paper-collector/internal/logger"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// ErrLockTimeout is returned when the state-file lock cannot be taken within
// the configured timeout. Callers must treat it as fatal for the attempt
// rather than proceed without rate limiting.
var ErrLockTimeout = errors.New("rate state lock timeout")

// DefaultLockTimeout bounds lock acquisition when no timeout is configured.
const DefaultLockTimeout = 30 * time.Second

const lockRetryDelay = 25 * time.Millisecond

// Gate serializes request timing across processes sharing one state file.
type Gate struct {
	statePath   string
	lockPath    string
	lockTimeout time.Duration
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error
	log         *zap.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithLockTimeout sets the lock acquisition bound. Non-positive values keep
// the default.
func WithLockTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.lockTimeout = d
		}
	}
}

// WithClock replaces the wall clock. Tests pair it with WithSleep.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithSleep replaces the context-aware sleep.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(g *Gate) { g.sleep = sleep }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) { g.log = logger.OrNop(l) }
}

// New returns a Gate backed by statePath. Nothing touches the filesystem
// until the first call.
func New(statePath string, opts ...Option) *Gate {
	g := &Gate{
		statePath:   statePath,
		lockPath:    statePath + ".lock",
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
		sleep:       Sleep,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Path returns the state-file path.
func (g *Gate) Path() string { return g.statePath }

// Acquire blocks until a request may be sent, then records the request time.
// A request may be sent once minInterval has passed since the last recorded
// request and any cooldown has expired. It returns the total time slept.
func (g *Gate) Acquire(ctx context.Context, minInterval time.Duration) (time.Duration, error) {
	_, waited, err := g.acquire(ctx, minInterval)
	return waited, err
}

// acquire is Acquire that also reports the instant stamped into the state.
func (g *Gate) acquire(ctx context.Context, minInterval time.Duration) (time.Time, time.Duration, error) {
	if minInterval < 0 {
		minInterval = 0
	}

	var waited time.Duration
	for {
		var (
			stamp time.Time
			wait  time.Duration
		)
		err := g.update(ctx, func(st *types.RateState) bool {
			now := g.now()
			wait = remaining(*st, now, minInterval)
			if wait > 0 {
				return false
			}
			stamp = now
			nowTS := unixSeconds(now)
			st.LastRequestTS = nowTS
			st.LastRequestUTC = now.UTC().Format(time.RFC3339Nano)
			if st.CooldownUntilTS > 0 && st.CooldownUntilTS <= nowTS {
				st.CooldownUntilTS = 0
				st.CooldownUntilUTC = ""
			}
			return true
		})
		if err != nil {
			return time.Time{}, waited, err
		}
		if wait <= 0 {
			return stamp, waited, nil
		}

		g.log.Debug("waiting for request slot",
			zap.String("state", g.statePath),
			zap.Duration("wait", wait))
		if err := g.sleep(ctx, wait); err != nil {
			return time.Time{}, waited, err
		}
		waited += wait
	}
}

// RegisterCooldown extends the shared cooldown to at least now+d. Cooldowns
// only grow: a shorter registration never moves an existing deadline back.
// Non-positive durations are ignored.
func (g *Gate) RegisterCooldown(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	var until float64
	err := g.update(ctx, func(st *types.RateState) bool {
		until = math.Max(st.CooldownUntilTS, unixSeconds(g.now().Add(d)))
		st.CooldownUntilTS = until
		st.CooldownUntilUTC = fromUnixSeconds(until).UTC().Format(time.RFC3339Nano)
		return true
	})
	if err != nil {
		return err
	}
	g.log.Info("shared cooldown registered",
		zap.String("state", g.statePath),
		zap.Duration("requested", d),
		zap.Time("until", fromUnixSeconds(until)))
	return nil
}

// State returns a snapshot of the persisted state.
func (g *Gate) State(ctx context.Context) (types.RateState, error) {
	var snapshot types.RateState
	err := g.update(ctx, func(st *types.RateState) bool {
		snapshot = *st
		return false
	})
	return snapshot, err
}

// Remaining reports how long a caller using minInterval would wait right now.
func (g *Gate) Remaining(ctx context.Context, minInterval time.Duration) (time.Duration, error) {
	st, err := g.State(ctx)
	if err != nil {
		return 0, err
	}
	return remaining(st, g.now(), minInterval), nil
}

// update runs fn on the current state under the file lock and persists the
// state when fn returns true.
func (g *Gate) update(ctx context.Context, fn func(*types.RateState) bool) error {
	return g.withLock(ctx, func() error {
		st := g.load()
		if !fn(&st) {
			return nil
		}
		if err := fsutil.WriteJSON(g.statePath, st); err != nil {
			return fmt.Errorf("saving rate state: %w", err)
		}
		return nil
	})
}

func (g *Gate) withLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(g.lockPath), 0o755); err != nil {
		return fmt.Errorf("creating rate state directory: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, g.lockTimeout)
	defer cancel()

	lock := flock.New(g.lockPath)
	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if !locked {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s not acquired within %v", ErrLockTimeout, g.lockPath, g.lockTimeout)
		}
		return fmt.Errorf("locking %s: %w", g.lockPath, err)
	}
	defer lock.Unlock()

	return fn()
}

// load reads the state file. Missing or corrupt files yield an empty state.
func (g *Gate) load() types.RateState {
	var st types.RateState
	if err := fsutil.ReadJSON(g.statePath, &st); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			g.log.Warn("ignoring unreadable rate state", zap.String("state", g.statePath), zap.Error(err))
		}
		return types.RateState{}
	}
	return st
}

// remaining computes max(0, last+interval-now, cooldown-now), rounded up to
// the microsecond so a sleep of that length always satisfies the check.
func remaining(st types.RateState, now time.Time, minInterval time.Duration) time.Duration {
	nowTS := unixSeconds(now)
	sec := math.Max(0, st.LastRequestTS+minInterval.Seconds()-nowTS)
	sec = math.Max(sec, st.CooldownUntilTS-nowTS)
	if sec <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(sec*1e6)) * time.Microsecond
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
