package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devrev/adaptivenet/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedConcurrency(n int) ConcurrencyFunc {
	return func(context.Context) int { return n }
}

func await(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("submission did not settle")
		return Result{}
	}
}

func TestScheduler_DrainsOnMaxBatchSize(t *testing.T) {
	s := NewScheduler(Config{Delay: time.Hour, Concurrency: fixedConcurrency(3)})
	defer s.Close()

	priorities := []model.Priority{model.PriorityLow, model.PriorityHigh, model.PriorityMedium}
	var results []<-chan Result
	for i := 0; i < DefaultMaxBatchSize; i++ {
		i := i
		results = append(results, s.Submit(context.Background(), func(ctx context.Context) (any, error) {
			return i, nil
		}, priorities[i%len(priorities)]))
	}

	for i, ch := range results {
		res := await(t, ch)
		require.NoError(t, res.Err)
		assert.Equal(t, i, res.Value)
	}
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_HighSettlesBeforeLowStarts(t *testing.T) {
	s := NewScheduler(Config{Delay: time.Hour, Concurrency: fixedConcurrency(2)})
	defer s.Close()

	var (
		mu     sync.Mutex
		events []string
	)
	record := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	var results []<-chan Result
	for i := 0; i < DefaultMaxBatchSize; i++ {
		priority := model.PriorityLow
		if i%2 == 0 {
			priority = model.PriorityHigh
		}
		p := priority
		results = append(results, s.Submit(context.Background(), func(ctx context.Context) (any, error) {
			record("start:" + string(p))
			time.Sleep(5 * time.Millisecond)
			record("end:" + string(p))
			return nil, nil
		}, priority))
	}
	for _, ch := range results {
		await(t, ch)
	}

	mu.Lock()
	defer mu.Unlock()
	lastHighEnd, firstLowStart := -1, len(events)
	for i, e := range events {
		if e == "end:high" {
			lastHighEnd = i
		}
		if e == "start:low" && i < firstLowStart {
			firstLowStart = i
		}
	}
	require.NotEqual(t, -1, lastHighEnd)
	assert.Less(t, lastHighEnd, firstLowStart)
}

func TestScheduler_RespectsConcurrencyLimit(t *testing.T) {
	s := NewScheduler(Config{Delay: time.Hour, Concurrency: fixedConcurrency(2)})
	defer s.Close()

	var inFlight, peak int32
	var results []<-chan Result
	for i := 0; i < DefaultMaxBatchSize; i++ {
		results = append(results, s.Submit(context.Background(), func(ctx context.Context) (any, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return nil, nil
		}, model.PriorityMedium))
	}
	for _, ch := range results {
		await(t, ch)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestScheduler_FailureDoesNotAffectSiblings(t *testing.T) {
	s := NewScheduler(Config{Delay: 10 * time.Millisecond, Concurrency: fixedConcurrency(4)})
	defer s.Close()

	boom := errors.New("boom")
	okCh := s.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return "ok", nil
	}, model.PriorityMedium)
	failCh := s.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return nil, boom
	}, model.PriorityMedium)
	panicCh := s.Submit(context.Background(), func(ctx context.Context) (any, error) {
		panic("kaboom")
	}, model.PriorityMedium)
	otherCh := s.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return 42, nil
	}, model.PriorityLow)

	ok := await(t, okCh)
	require.NoError(t, ok.Err)
	assert.Equal(t, "ok", ok.Value)

	assert.ErrorIs(t, await(t, failCh).Err, boom)

	panicked := await(t, panicCh)
	require.Error(t, panicked.Err)
	assert.Contains(t, panicked.Err.Error(), "kaboom")

	other := await(t, otherCh)
	require.NoError(t, other.Err)
	assert.Equal(t, 42, other.Value)
}

func TestScheduler_TimerDrainsPartialBatch(t *testing.T) {
	s := NewScheduler(Config{Delay: 20 * time.Millisecond})
	defer s.Close()

	res := await(t, s.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return "late", nil
	}, ""))
	require.NoError(t, res.Err)
	assert.Equal(t, "late", res.Value)
}

func TestScheduler_TimerAfterSizeDrainIsNoop(t *testing.T) {
	s := NewScheduler(Config{MaxBatchSize: 2, Delay: 10 * time.Millisecond})
	defer s.Close()

	var calls int32
	op := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}
	a := s.Submit(context.Background(), op, model.PriorityHigh)
	b := s.Submit(context.Background(), op, model.PriorityHigh)
	await(t, a)
	await(t, b)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_CanceledContextSkipsOperation(t *testing.T) {
	s := NewScheduler(Config{Delay: 5 * time.Millisecond})
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	res := await(t, s.Submit(ctx, func(ctx context.Context) (any, error) {
		called = true
		return nil, nil
	}, model.PriorityHigh))
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.False(t, called)
}

func TestScheduler_CloseDrainsAndRejects(t *testing.T) {
	s := NewScheduler(Config{Delay: time.Hour})

	ch := s.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return "drained", nil
	}, model.PriorityLow)
	require.NoError(t, s.Close())

	res := await(t, ch)
	require.NoError(t, res.Err)
	assert.Equal(t, "drained", res.Value)

	after := await(t, s.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return nil, fmt.Errorf("must not run")
	}, model.PriorityLow))
	assert.ErrorIs(t, after.Err, ErrClosed)
}

func TestScheduler_SlowConcurrencyLookupIsBounded(t *testing.T) {
	var lookups int32
	slow := func(ctx context.Context) int {
		atomic.AddInt32(&lookups, 1)
		<-ctx.Done()
		return 2
	}
	s := NewScheduler(Config{
		Delay:              time.Millisecond,
		Concurrency:        slow,
		ConcurrencyTimeout: 20 * time.Millisecond,
	})
	defer s.Close()

	start := time.Now()
	res := await(t, s.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return "done", nil
	}, model.PriorityMedium))

	require.NoError(t, res.Err)
	assert.Equal(t, "done", res.Value)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&lookups))
}
