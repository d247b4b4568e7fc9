package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultMaxRetries is the default maximum number of retries for
// eventually-consistent lookups.
const DefaultMaxRetries = 5

// ErrRetriesExhausted is returned when every attempt was made and the
// predicate still asked for a retry.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Policy defines retry behavior for eventually-consistent cloud and
// directory API calls.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy returns a sensible default policy for propagation delays.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
	}
}

// Do invokes op up to policy.MaxRetries+1 times. After each attempt the
// result is passed to shouldRetry; if it returns false the result is
// returned immediately. Between attempts Do sleeps for an exponentially
// increasing delay (BaseDelay * 2^attempt, capped at MaxDelay). Errors are
// never interpreted here: op returns a plain value and callers translate
// provider errors into that value first. Cancellation during a backoff
// sleep aborts immediately without consuming a retry.
func Do[T any](ctx context.Context, policy Policy, op func(context.Context) T, shouldRetry func(T) bool) (T, error) {
	var last T
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, fmt.Errorf("retry cancelled: %w", err)
		}
		last = op(ctx)
		if !shouldRetry(last) {
			return last, nil
		}
		if attempt < policy.MaxRetries {
			select {
			case <-ctx.Done():
				return last, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(backoff(attempt, policy.BaseDelay, policy.MaxDelay)):
			}
		}
	}
	return last, ErrRetriesExhausted
}

// backoff returns a strictly increasing exponential delay, capped at max.
func backoff(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

// Outcome classifies a single attempt against a provider API.
type Outcome int

const (
	// Success means the attempt produced a usable result.
	Success Outcome = iota
	// Retryable means the attempt failed in a way that is expected to
	// resolve itself, typically directory propagation delay.
	Retryable
	// Terminal means the attempt failed permanently; retrying cannot help.
	Terminal
)

// Attempt is the tri-state result provisioners thread through Do. Provider
// errors are translated into an Attempt exactly once, at the adapter call
// boundary.
type Attempt[T any] struct {
	Value   T
	Outcome Outcome
	Err     error
}

// Ok builds a successful attempt.
func Ok[T any](v T) Attempt[T] {
	return Attempt[T]{Value: v, Outcome: Success}
}

// Again builds a retryable attempt.
func Again[T any](err error) Attempt[T] {
	return Attempt[T]{Outcome: Retryable, Err: err}
}

// Fail builds a terminal attempt.
func Fail[T any](err error) Attempt[T] {
	return Attempt[T]{Outcome: Terminal, Err: err}
}

// ShouldRetry is the predicate to use with Do over Attempt values.
func ShouldRetry[T any](a Attempt[T]) bool {
	return a.Outcome == Retryable
}
