// Package batch coalesces concurrently submitted remote operations into
// priority-ordered waves bounded by the adaptive concurrency limit.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/devrev/adaptivenet/internal/metrics"
	"github.com/devrev/adaptivenet/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxBatchSize triggers an immediate drain
	DefaultMaxBatchSize = 10
	// DefaultDelay is the debounce window before a partial batch drains
	DefaultDelay = 100 * time.Millisecond
	// DefaultConcurrencyTimeout bounds the limit lookup at drain time
	DefaultConcurrencyTimeout = time.Second
)

// ErrClosed is returned for submissions after Close
var ErrClosed = errors.New("batch scheduler closed")

// Operation is a deferred remote call
type Operation func(ctx context.Context) (any, error)

// Result is the settled outcome of one submission
type Result struct {
	Value any
	Err   error
}

// ConcurrencyFunc reports the concurrency limit in effect at drain time.
// It should answer from cached state once ctx is done.
type ConcurrencyFunc func(ctx context.Context) int

// Config holds scheduler settings
type Config struct {
	MaxBatchSize       int
	Delay              time.Duration
	Concurrency        ConcurrencyFunc
	ConcurrencyTimeout time.Duration
	Logger             *zap.Logger
	Metrics            *metrics.Metrics
}

type request struct {
	id       string
	ctx      context.Context
	op       Operation
	priority model.Priority
	result   chan Result
}

// Scheduler queues submissions and drains them in waves
type Scheduler struct {
	maxBatchSize       int
	delay              time.Duration
	concurrency        ConcurrencyFunc
	concurrencyTimeout time.Duration
	logger             *zap.Logger
	metrics            *metrics.Metrics

	mu     sync.Mutex
	queue  []*request
	timer  *time.Timer
	closed bool

	drains sync.WaitGroup
}

// NewScheduler creates a new batch scheduler
func NewScheduler(cfg Config) *Scheduler {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Concurrency == nil {
		cfg.Concurrency = func(context.Context) int { return 1 }
	}
	if cfg.ConcurrencyTimeout <= 0 {
		cfg.ConcurrencyTimeout = DefaultConcurrencyTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Scheduler{
		maxBatchSize:       cfg.MaxBatchSize,
		delay:              cfg.Delay,
		concurrency:        cfg.Concurrency,
		concurrencyTimeout: cfg.ConcurrencyTimeout,
		logger:             cfg.Logger,
		metrics:            cfg.Metrics,
	}
}

// Submit enqueues op and returns a channel that receives exactly one Result.
// The outcome is independent of every other submission.
func (s *Scheduler) Submit(ctx context.Context, op Operation, priority model.Priority) <-chan Result {
	req := &request{
		id:       uuid.New().String(),
		ctx:      ctx,
		op:       op,
		priority: priority.Normalize(),
		result:   make(chan Result, 1),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		req.result <- Result{Err: ErrClosed}
		return req.result
	}

	s.queue = append(s.queue, req)

	if len(s.queue) >= s.maxBatchSize {
		batch := s.takeLocked()
		s.drains.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.drains.Done()
			s.drain(batch, "size")
		}()
		return req.result
	}

	if s.timer == nil {
		s.timer = time.AfterFunc(s.delay, s.onTimer)
	}
	s.mu.Unlock()

	return req.result
}

// Pending returns the number of queued, not yet drained submissions
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops accepting submissions, drains whatever is queued and waits
// for in-flight drains to finish.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	batch := s.takeLocked()
	s.mu.Unlock()

	if len(batch) > 0 {
		s.drain(batch, "close")
	}
	s.drains.Wait()
	return nil
}

func (s *Scheduler) onTimer() {
	s.mu.Lock()
	s.timer = nil
	batch := s.takeLocked()
	if len(batch) == 0 {
		s.mu.Unlock()
		return
	}
	s.drains.Add(1)
	s.mu.Unlock()

	defer s.drains.Done()
	s.drain(batch, "timer")
}

// takeLocked snapshots and clears the queue. Caller holds mu.
func (s *Scheduler) takeLocked() []*request {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	batch := s.queue
	s.queue = nil
	return batch
}

// drain runs a snapshot tier by tier. Every chunk is fully settled before
// the next one starts.
func (s *Scheduler) drain(batch []*request, trigger string) {
	s.metrics.RecordBatchDrain(trigger, len(batch))
	s.logger.Debug("Draining batch",
		zap.String("trigger", trigger),
		zap.Int("size", len(batch)))

	tiers := make(map[model.Priority][]*request, len(model.Priorities))
	for _, req := range batch {
		tiers[req.priority] = append(tiers[req.priority], req)
	}

	for _, priority := range model.Priorities {
		tier := tiers[priority]
		if len(tier) == 0 {
			continue
		}

		limit := s.limit()

		for start := 0; start < len(tier); start += limit {
			end := start + limit
			if end > len(tier) {
				end = len(tier)
			}
			s.runChunk(tier[start:end])
		}
	}
}

// limit asks for the current concurrency without letting a slow lookup
// stall the drain
func (s *Scheduler) limit() int {
	ctx, cancel := context.WithTimeout(context.Background(), s.concurrencyTimeout)
	defer cancel()

	if limit := s.concurrency(ctx); limit > 0 {
		return limit
	}
	return 1
}

func (s *Scheduler) runChunk(chunk []*request) {
	var g errgroup.Group
	for _, req := range chunk {
		req := req
		g.Go(func() error {
			req.result <- s.execute(req)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) execute(req *request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Batched operation panicked",
				zap.String("request_id", req.id),
				zap.Any("panic", r))
			res = Result{Err: fmt.Errorf("batched operation panicked: %v", r)}
		}
	}()

	if err := req.ctx.Err(); err != nil {
		return Result{Err: err}
	}

	value, err := req.op(req.ctx)
	return Result{Value: value, Err: err}
}
