package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultRetryAttempts  = 5
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

// retryPolicy repeats a model call while its failures look temporary: rate
// limits, 5xx, timeouts, refused connections and empty completions.
type retryPolicy struct {
	attempts int
	base     time.Duration
	ceiling  time.Duration
	sleeper  func(time.Duration)
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		attempts: defaultRetryAttempts,
		base:     defaultRetryBaseDelay,
		ceiling:  defaultRetryMaxDelay,
	}
}

func (p retryPolicy) do(ctx context.Context, op string, call func() error) error {
	attempts := max(p.attempts, 1)
	var last error
	for n := 1; n <= attempts; n++ {
		last = call()
		if last == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		hint, ok := temporary(last)
		if !ok {
			return &PermanentError{Op: op, Err: last}
		}
		if n == attempts {
			break
		}
		delay := p.backoff(n)
		if hint > 0 {
			delay = p.clamp(hint)
		}
		if err := p.pause(ctx, delay); err != nil {
			return err
		}
	}
	return &TransientError{Op: op, Attempts: attempts, Err: last}
}

// temporary reports whether err deserves another attempt, along with the
// server's Retry-After hint when it sent one.
func temporary(err error) (time.Duration, bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	var empty *emptyContentError
	if errors.As(err, &empty) {
		return 0, true
	}
	var status *httpStatusError
	if errors.As(err, &status) {
		code := status.StatusCode
		if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
			return status.RetryAfter, true
		}
		return 0, false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return 0, true
	}
	// a local model server that is restarting refuses connections for a moment
	var opErr *net.OpError
	return 0, errors.As(err, &opErr)
}

// backoff doubles from base for each failed attempt, up to the ceiling.
func (p retryPolicy) backoff(attempt int) time.Duration {
	if p.base <= 0 {
		return 0
	}
	delay := p.base
	for i := 1; i < attempt && delay < p.limit(); i++ {
		delay *= 2
	}
	return p.clamp(delay)
}

func (p retryPolicy) limit() time.Duration {
	if p.ceiling > 0 {
		return p.ceiling
	}
	return defaultRetryMaxDelay
}

func (p retryPolicy) clamp(delay time.Duration) time.Duration {
	return min(max(delay, 0), p.limit())
}

func (p retryPolicy) pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if p.sleeper != nil {
		p.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryAfter reads a Retry-After header given either as seconds or as an
// HTTP date. Unusable values yield zero.
func retryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(max(seconds, 0)) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		return max(time.Until(when), 0)
	}
	return 0
}
