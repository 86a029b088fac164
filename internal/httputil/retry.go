// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil performs one logical HTTP fetch with bounded retries.
// Every attempt first passes through a shared request gate; rate-limit
// responses push a cooldown back into that gate so that other processes
// sharing it back off as well.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-collector/internal/logger"
	"github.com/pdiddy/paper-collector/internal/metrics"
	"github.com/pdiddy/paper-collector/internal/ratelimit"
)

// Gate is the shared request gate consulted before every attempt.
// *ratelimit.Gate satisfies it.
type Gate interface {
	Acquire(ctx context.Context, minInterval time.Duration) (time.Duration, error)
	RegisterCooldown(ctx context.Context, d time.Duration) error
}

// RetryPolicy bounds the retry loop. MaxRetries counts retries, so a fetch
// makes at most MaxRetries+1 attempts.
type RetryPolicy struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration
	MinInterval time.Duration
}

// DefaultRetryPolicy mirrors the configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  4,
		BaseDelay:   5 * time.Second,
		MaxDelay:    120 * time.Second,
		Jitter:      time.Second,
		MinInterval: 5 * time.Second,
	}
}

// normalized clamps negative settings to zero and floors MaxDelay at BaseDelay.
func (p RetryPolicy) normalized() RetryPolicy {
	p.MaxRetries = max(p.MaxRetries, 0)
	p.BaseDelay = max(p.BaseDelay, 0)
	p.MaxDelay = max(p.MaxDelay, p.BaseDelay)
	p.Jitter = max(p.Jitter, 0)
	p.MinInterval = max(p.MinInterval, 0)
	return p
}

// Backoff returns min(MaxDelay, BaseDelay*2^(attempt-1)) for a 1-based attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if d >= float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Result is a successful fetch.
type Result struct {
	Body     []byte
	Attempts int
	Waited   time.Duration
}

// FetchError describes a fetch that did not produce a 2xx response.
// StatusCode is zero when no response was received.
type FetchError struct {
	StatusCode int
	Retryable  bool
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch failed after %d attempt(s) (HTTP %d): %v", e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retrier executes requests under a RetryPolicy and a shared Gate.
type Retrier struct {
	client    *http.Client
	gate      Gate
	policy    RetryPolicy
	userAgent string
	sleep     func(context.Context, time.Duration) error
	jitter    func(time.Duration) time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) RetrierOption {
	return func(r *Retrier) { r.client = c }
}

// WithUserAgent sets the User-Agent header applied when the request has none.
func WithUserAgent(ua string) RetrierOption {
	return func(r *Retrier) { r.userAgent = ua }
}

// WithSleep replaces the context-aware sleep between attempts.
func WithSleep(sleep func(context.Context, time.Duration) error) RetrierOption {
	return func(r *Retrier) { r.sleep = sleep }
}

// WithJitter replaces the jitter source. fn receives the configured bound and
// must return a value in [0, bound].
func WithJitter(fn func(time.Duration) time.Duration) RetrierOption {
	return func(r *Retrier) { r.jitter = fn }
}

// WithClock replaces the clock used to interpret HTTP-date Retry-After values.
func WithClock(now func() time.Time) RetrierOption {
	return func(r *Retrier) { r.now = now }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) RetrierOption {
	return func(r *Retrier) { r.log = logger.OrNop(l) }
}

// NewRetrier returns a Retrier. A nil gate disables shared rate limiting.
func NewRetrier(gate Gate, policy RetryPolicy, opts ...RetrierOption) *Retrier {
	if gate == nil {
		gate = openGate{}
	}
	r := &Retrier{
		client: &http.Client{Timeout: 30 * time.Second},
		gate:   gate,
		policy: policy.normalized(),
		sleep:  ratelimit.Sleep,
		jitter: uniformJitter,
		now:    time.Now,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the normalized policy in effect.
func (r *Retrier) Policy() RetryPolicy { return r.policy }

// FetchOnce performs req until it yields a 2xx response, a permanent failure,
// or the attempt budget runs out. HTTP 429 and 503 are retried, waiting for
// Retry-After when the server sends one and exponential backoff otherwise;
// each such wait is registered with the gate as a shared cooldown. Network
// errors are retried on the backoff schedule without a cooldown. Any other
// status fails immediately.
func (r *Retrier) FetchOnce(ctx context.Context, req *http.Request) (Result, error) {
	p := r.policy
	maxAttempts := p.MaxRetries + 1
	var res Result

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt

		gateWait, err := r.gate.Acquire(ctx, p.MinInterval)
		res.Waited += gateWait
		metrics.GateWaitSeconds.Observe(gateWait.Seconds())
		if err != nil {
			return res, &FetchError{Attempts: attempt, Err: fmt.Errorf("acquiring request slot: %w", err)}
		}

		body, status, retryAfter, err := r.do(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return res, &FetchError{Attempts: attempt, Err: ctx.Err()}
			}
			metrics.FetchAttemptsTotal.WithLabelValues("network_error").Inc()
			if attempt == maxAttempts {
				r.log.Error("request failed, giving up",
					zap.Int("attempt", attempt), zap.Error(err))
				return res, &FetchError{Retryable: true, Attempts: attempt, Err: err}
			}
			wait := p.Backoff(attempt) + r.jitterFor()
			r.log.Warn("request failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Duration("wait", wait),
				zap.Error(err))
			if err := r.wait(ctx, wait); err != nil {
				return res, &FetchError{Retryable: true, Attempts: attempt, Err: err}
			}
			res.Waited += wait
			continue
		}

		switch {
		case status >= 200 && status < 300:
			metrics.FetchAttemptsTotal.WithLabelValues("ok").Inc()
			r.log.Debug("request succeeded",
				zap.Int("attempt", attempt), zap.Int("status", status), zap.Int("bytes", len(body)))
			res.Body = body
			return res, nil

		case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
			metrics.FetchAttemptsTotal.WithLabelValues(outcomeFor(status)).Inc()
			backoff := p.Backoff(attempt)

			if attempt == maxAttempts {
				if status == http.StatusTooManyRequests {
					cooldown := retryAfter
					if cooldown <= 0 {
						cooldown = max(p.MinInterval, backoff)
					}
					if err := r.registerCooldown(ctx, cooldown, "exhausted"); err != nil {
						return res, &FetchError{StatusCode: status, Retryable: true, Attempts: attempt, Err: err}
					}
				}
				r.log.Error("server kept rejecting requests, giving up",
					zap.Int("attempt", attempt), zap.Int("status", status))
				return res, &FetchError{
					StatusCode: status,
					Retryable:  true,
					Attempts:   attempt,
					Err:        fmt.Errorf("retries exhausted: %s", http.StatusText(status)),
				}
			}

			wait := backoff
			if retryAfter > 0 {
				wait = retryAfter
			}
			wait += r.jitterFor()
			r.log.Warn("server asked to back off",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Int("status", status),
				zap.Duration("retry_after", retryAfter),
				zap.Duration("wait", wait))
			if err := r.registerCooldown(ctx, wait, strconv.Itoa(status)); err != nil {
				return res, &FetchError{StatusCode: status, Retryable: true, Attempts: attempt, Err: err}
			}
			if err := r.wait(ctx, wait); err != nil {
				return res, &FetchError{StatusCode: status, Retryable: true, Attempts: attempt, Err: err}
			}
			res.Waited += wait

		default:
			metrics.FetchAttemptsTotal.WithLabelValues("http_error").Inc()
			r.log.Error("request rejected",
				zap.Int("attempt", attempt), zap.Int("status", status))
			return res, &FetchError{
				StatusCode: status,
				Attempts:   attempt,
				Err:        fmt.Errorf("unexpected status: %s", http.StatusText(status)),
			}
		}
	}

	// Unreachable: the last attempt always returns.
	return res, &FetchError{Attempts: res.Attempts, Err: errors.New("no attempts made")}
}

// do sends one attempt and reads the full body on success.
func (r *Retrier) do(ctx context.Context, req *http.Request) ([]byte, int, time.Duration, error) {
	attemptReq := req.Clone(ctx)
	if r.userAgent != "" && attemptReq.Header.Get("User-Agent") == "" {
		attemptReq.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(attemptReq)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, ParseRetryAfter(resp.Header.Get("Retry-After"), r.now()), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("reading response body: %w", err)
	}
	return body, resp.StatusCode, 0, nil
}

func (r *Retrier) registerCooldown(ctx context.Context, d time.Duration, source string) error {
	if err := r.gate.RegisterCooldown(ctx, d); err != nil {
		return fmt.Errorf("registering cooldown: %w", err)
	}
	metrics.CooldownsTotal.WithLabelValues(source).Inc()
	return nil
}

func (r *Retrier) wait(ctx context.Context, d time.Duration) error {
	metrics.RetryWaitSeconds.Observe(d.Seconds())
	return r.sleep(ctx, d)
}

func (r *Retrier) jitterFor() time.Duration {
	if r.policy.Jitter <= 0 {
		return 0
	}
	j := r.jitter(r.policy.Jitter)
	return min(max(j, 0), r.policy.Jitter)
}

// ParseRetryAfter interprets a Retry-After header as integer seconds or an
// HTTP-date relative to now. Absent, invalid or past values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	t, err := http.ParseTime(value)
	if err != nil {
		return 0
	}
	if d := t.Sub(now); d > 0 {
		return d
	}
	return 0
}

func outcomeFor(status int) string {
	if status == http.StatusTooManyRequests {
		return "rate_limited"
	}
	return "unavailable"
}

func uniformJitter(bound time.Duration) time.Duration {
	if bound <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(bound) + 1))
}

// openGate never waits and ignores cooldowns.
type openGate struct{}

func (openGate) Acquire(context.Context, time.Duration) (time.Duration, error) { return 0, nil }
func (openGate) RegisterCooldown(context.Context, time.Duration) error         { return nil }
