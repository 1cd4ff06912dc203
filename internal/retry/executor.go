// Package retry runs remote operations with a per-attempt timeout and
// exponential-backoff retries.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	apierrors "github.com/devrev/adaptivenet/internal/errors"
	"github.com/devrev/adaptivenet/internal/metrics"
	"go.uber.org/zap"
)

// Operation is a zero-argument remote call
type Operation func(ctx context.Context) (any, error)

// Policy controls how many times and how slowly an operation is retried
type Policy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Timeout bounds a single attempt; zero means no per-attempt bound
	Timeout time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Nil means errors.IsRetryable.
	Retryable func(error) bool
}

// Delay returns the sleep between attempt and attempt+1:
// min(BaseDelay * BackoffFactor^attempt, MaxDelay)
func Delay(p Policy, attempt int) time.Duration {
	factor := p.BackoffFactor
	if factor <= 1 {
		factor = 2
	}
	d := float64(p.BaseDelay) * math.Pow(factor, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the production SleepFunc
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ExecutorConfig holds executor dependencies
type ExecutorConfig struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Sleep   SleepFunc
}

// Executor runs operations under a retry policy
type Executor struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	sleep   SleepFunc
}

// NewExecutor creates a new retry executor
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = ContextSleep
	}
	return &Executor{
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		sleep:   cfg.Sleep,
	}
}

type attemptResult struct {
	value any
	err   error
}

// Run executes op until it succeeds, the policy is exhausted, or an error
// is not retryable. timeout, when positive, overrides Policy.Timeout.
// The last error is returned unchanged.
func (e *Executor) Run(ctx context.Context, op Operation, p Policy, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = p.Timeout
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = apierrors.IsRetryable
	}
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		e.metrics.RecordAttempt()

		value, err := e.attempt(ctx, op, timeout)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if attempt == maxRetries {
			break
		}
		if !retryable(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, lastErr
		}

		delay := Delay(p, attempt)
		e.metrics.RecordRetry(apierrors.Classify(err).String())
		e.logger.Warn("remote operation failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Duration("backoff", delay),
			zap.Error(err))

		if err := e.sleep(ctx, delay); err != nil {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

// attempt races one invocation of op against the attempt deadline. An
// operation that ignores its context keeps running but its result is dropped.
func (e *Executor) attempt(ctx context.Context, op Operation, timeout time.Duration) (any, error) {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{err: fmt.Errorf("operation panicked: %v", r)}
			}
		}()
		value, err := op(attemptCtx)
		done <- attemptResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, apierrors.Timeout(fmt.Sprintf("operation timed out after %v", timeout), attemptCtx.Err())
	}
}

// Do is the typed form of Executor.Run
func Do[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error), p Policy, timeout time.Duration) (T, error) {
	var zero T
	value, err := e.Run(ctx, func(ctx context.Context) (any, error) {
		return op(ctx)
	}, p, timeout)
	if err != nil {
		return zero, err
	}
	return typedResult[T](value)
}

// typedResult converts a Run result back to T. A nil value is the zero T.
func typedResult[T any](value any) (T, error) {
	var zero T
	if value == nil {
		return zero, nil
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected result type %T", value)
	}
	return typed, nil
}
