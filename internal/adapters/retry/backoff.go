package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrExhausted is returned by Backoff.Wait once MaxRetries waits were spent.
var ErrExhausted = errors.New("retry budget exhausted")

type BackoffConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      int // negative means retry forever
	Multiplier      float64
}

func DefaultConfig() BackoffConfig {
	return BackoffConfig{
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		MaxRetries:      3,
		Multiplier:      2.0,
	}
}

// ReconnectConfig is used by long-lived subscriptions that must come back
// after any transport failure.
func ReconnectConfig() BackoffConfig {
	return BackoffConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		MaxRetries:      -1,
		Multiplier:      2.0,
	}
}

// Backoff hands out exponentially growing waits. It is not safe for
// concurrent use.
type Backoff struct {
	cfg      BackoffConfig
	clock    clock.Clock
	attempts int
	interval time.Duration
}

func NewBackoff(cfg BackoffConfig, clk clock.Clock) *Backoff {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	return &Backoff{cfg: cfg, clock: clk, interval: cfg.InitialInterval}
}

// Next returns the next wait and advances the schedule. It reports false when
// the retry budget is spent.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.cfg.MaxRetries >= 0 && b.attempts >= b.cfg.MaxRetries {
		return 0, false
	}
	b.attempts++
	wait := b.interval
	b.interval = time.Duration(float64(b.interval) * b.cfg.Multiplier)
	if b.cfg.MaxInterval > 0 && b.interval > b.cfg.MaxInterval {
		b.interval = b.cfg.MaxInterval
	}
	return wait, true
}

// Reset restarts the schedule after a success.
func (b *Backoff) Reset() {
	b.attempts = 0
	b.interval = b.cfg.InitialInterval
}

// Attempts returns the number of waits handed out since the last Reset.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Wait sleeps for the next interval on the backoff's clock.
func (b *Backoff) Wait(ctx context.Context) error {
	wait, ok := b.Next()
	if !ok {
		return ErrExhausted
	}
	timer := b.clock.Timer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		// IsNotFound indicates a definitive NXDOMAIN, which shouldn't be retried
		return !dnsErr.IsNotFound
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
		if errors.Is(opErr.Err, syscall.ECONNRESET) {
			return true
		}
		if errors.Is(opErr.Err, syscall.EPIPE) {
			return true
		}
	}

	return false
}

func IsRetryableHTTPStatus(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}

	if statusCode >= 500 && statusCode < 600 {
		return true
	}

	if statusCode == http.StatusRequestTimeout {
		return true
	}

	return false
}

// WithBackoff calls fn until it succeeds, fails with a non-retryable error or
// the budget runs out.
func WithBackoff(ctx context.Context, cfg BackoffConfig, clk clock.Clock, fn func(ctx context.Context) error) error {
	b := NewBackoff(cfg, clk)
	var lastErr error

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryableError(err) {
			return fmt.Errorf("non-retryable error on attempt %d: %w", attempt, err)
		}

		if werr := b.Wait(ctx); werr != nil {
			if errors.Is(werr, ErrExhausted) {
				return fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
			}
			return werr
		}
	}
}
