// Package resilience wraps calls to the pipeline's network backends,
// the graph store, the message queue, and the model runtimes, with
// bounded retries and per-operation circuit breakers. One Executor is
// shared process-wide; breakers are keyed by operation name, so a
// tripped graph breaker never blocks queue publishes.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrorClassification tells the executor how to treat one failure:
// whether another attempt may help, and whether the breaker should
// count it. Cancellations are typically neither.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

// ErrorClassifier maps a backend error to its classification. Each
// adapter supplies its own; nil falls back to terminal-but-counted.
type ErrorClassifier func(err error) ErrorClassification

type Executor struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

// Execute runs fn under the operation's breaker with the configured
// retry budget. The error returned is the backend's own (or a breaker
// sentinel when the circuit is open); callers wrap it into the domain
// taxonomy themselves.
func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: nil callback for operation %q", operation)
	}
	opName := strings.TrimSpace(operation)
	if opName == "" {
		opName = "unnamed"
	}
	if classifier == nil {
		classifier = terminalCounted
	}

	if !e.cfg.BreakerEnabled {
		return e.retryLoop(ctx, opName, fn, classifier)
	}

	_, err := e.breakerFor(opName, classifier).Execute(func() (any, error) {
		return nil, e.retryLoop(ctx, opName, fn, classifier)
	})
	return err
}

// retryLoop reattempts retryable failures with capped exponential
// backoff. A context canceled mid-wait surfaces the last backend error,
// since that is what the caller needs to classify.
func (e *Executor) retryLoop(
	ctx context.Context,
	opName string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	wait := e.cfg.RetryInitialBackoff
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt >= e.cfg.RetryMaxAttempts || !classifier(lastErr).Retryable {
			return lastErr
		}

		if wait > e.cfg.RetryMaxBackoff {
			wait = e.cfg.RetryMaxBackoff
		}
		slog.Warn("backend_retry",
			"operation", opName,
			"attempt", attempt,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"backoff", wait.String(),
			"error", lastErr,
		)
		if !sleepContext(ctx, wait) {
			return lastErr
		}
		wait = time.Duration(float64(wait) * e.cfg.RetryMultiplier)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Executor) breakerFor(opName string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[opName]; ok {
		return breaker
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        opName,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("breaker_state",
				"operation", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	e.breakers[opName] = breaker
	return breaker
}

// IsCircuitOpen reports whether err means the breaker rejected the call
// without reaching the backend. Adapters map this onto their outage
// error kinds.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// terminalCounted is the stance for unclassified errors: do not retry
// blindly, but let the breaker see the failure.
func terminalCounted(error) ErrorClassification {
	return ErrorClassification{Retryable: false, RecordFailure: true}
}
