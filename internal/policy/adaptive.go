// Package policy maps the current network quality grade to operational
// parameters: timeouts, retries, backoff, concurrency and cache TTLs.
package policy

import (
	"time"

	"github.com/devrev/adaptivenet/internal/model"
	"github.com/devrev/adaptivenet/internal/retry"
)

const (
	// DefaultBackoffFactor is the exponential growth of retry delays
	DefaultBackoffFactor = 2.0
	// DefaultMaxDelay caps a single backoff sleep
	DefaultMaxDelay = 30 * time.Second
)

// Params are the adaptive parameters in effect for one call
type Params struct {
	Quality     model.Quality
	Timeout     time.Duration
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Concurrency int
	CacheTTL    time.Duration
}

// Overrides replace individual table values. Zero values (nil for
// MaxRetries) mean "use the table".
type Overrides struct {
	Timeout     time.Duration
	MaxRetries  *int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Concurrency int
	CacheTTL    time.Duration
}

var table = map[model.Quality]Params{
	model.QualityExcellent: {
		Quality:     model.QualityExcellent,
		Timeout:     5 * time.Second,
		MaxRetries:  2,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    DefaultMaxDelay,
		Concurrency: 6,
		CacheTTL:    5 * time.Minute,
	},
	model.QualityGood: {
		Quality:     model.QualityGood,
		Timeout:     10 * time.Second,
		MaxRetries:  3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    DefaultMaxDelay,
		Concurrency: 4,
		CacheTTL:    10 * time.Minute,
	},
	model.QualityFair: {
		Quality:     model.QualityFair,
		Timeout:     20 * time.Second,
		MaxRetries:  4,
		BaseDelay:   2 * time.Second,
		MaxDelay:    DefaultMaxDelay,
		Concurrency: 2,
		CacheTTL:    20 * time.Minute,
	},
	model.QualityPoor: {
		Quality:     model.QualityPoor,
		Timeout:     30 * time.Second,
		MaxRetries:  5,
		BaseDelay:   3 * time.Second,
		MaxDelay:    DefaultMaxDelay,
		Concurrency: 1,
		CacheTTL:    60 * time.Minute,
	},
}

// For returns the table row for q. Unknown grades are treated as poor.
func For(q model.Quality) Params {
	if p, ok := table[q]; ok {
		return p
	}
	return table[model.QualityPoor]
}

// Resolve applies overrides on top of the table row for q
func Resolve(q model.Quality, o Overrides) Params {
	p := For(q)
	if o.Timeout > 0 {
		p.Timeout = o.Timeout
	}
	if o.MaxRetries != nil && *o.MaxRetries >= 0 {
		p.MaxRetries = *o.MaxRetries
	}
	if o.BaseDelay > 0 {
		p.BaseDelay = o.BaseDelay
	}
	if o.MaxDelay > 0 {
		p.MaxDelay = o.MaxDelay
	}
	if o.Concurrency > 0 {
		p.Concurrency = o.Concurrency
	}
	if o.CacheTTL > 0 {
		p.CacheTTL = o.CacheTTL
	}
	return p
}

// RetryPolicy builds the retry policy for these parameters using the
// default retryability predicate
func (p Params) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:    p.MaxRetries,
		BaseDelay:     p.BaseDelay,
		MaxDelay:      p.MaxDelay,
		BackoffFactor: DefaultBackoffFactor,
	}
}
