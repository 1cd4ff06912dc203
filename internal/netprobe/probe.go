// Package netprobe measures connectivity and backend latency, grades the
// result and keeps the current quality grade for the adaptive policy.
package netprobe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devrev/adaptivenet/internal/metrics"
	"github.com/devrev/adaptivenet/internal/model"
	"github.com/devrev/adaptivenet/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCooldown       = 5 * time.Minute
	DefaultProbeTimeout   = 5 * time.Second
	DefaultBackendTimeout = 10 * time.Second
)

// DefaultTargets are generic reachability endpoints, not tied to the backend
var DefaultTargets = []string{
	"https://www.google.com/generate_204",
	"https://www.cloudflare.com/cdn-cgi/trace",
	"https://connectivitycheck.gstatic.com/generate_204",
}

// ErrNoHistory is returned by Stats when no history collaborator is set
var ErrNoHistory = errors.New("network quality history not configured")

// Config holds probe dependencies and settings
type Config struct {
	Targets        []string
	HTTPClient     *http.Client
	Backend        BackendPinger
	History        store.HistoryStore
	Cooldown       time.Duration
	ProbeTimeout   time.Duration
	BackendTimeout time.Duration
	Clock          func() time.Time
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
}

// Probe produces NetworkStatus observations and caches the latest grade
type Probe struct {
	targets        []string
	client         *http.Client
	backend        BackendPinger
	history        store.HistoryStore
	cooldown       time.Duration
	probeTimeout   time.Duration
	backendTimeout time.Duration
	now            func() time.Time
	logger         *zap.Logger
	metrics        *metrics.Metrics

	refresh singleflight.Group

	mu        sync.RWMutex
	quality   model.Quality
	lastCheck time.Time
	last      model.NetworkStatus
	checked   bool
}

// NewProbe creates a new network probe
func NewProbe(cfg Config) (*Probe, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend pinger is required")
	}
	if cfg.Targets == nil {
		cfg.Targets = DefaultTargets
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = DefaultBackendTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Probe{
		targets:        cfg.Targets,
		client:         cfg.HTTPClient,
		backend:        cfg.Backend,
		history:        cfg.History,
		cooldown:       cfg.Cooldown,
		probeTimeout:   cfg.ProbeTimeout,
		backendTimeout: cfg.BackendTimeout,
		now:            cfg.Clock,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		quality:        model.QualityGood,
	}, nil
}

// CheckStatus runs the reachability and backend probes, grades the result,
// updates the cached grade and records the observation in history.
func (p *Probe) CheckStatus(ctx context.Context) model.NetworkStatus {
	status := model.NetworkStatus{CheckedAt: p.now()}

	connected, reachErr := p.checkReachability(ctx)
	status.IsConnected = connected

	if connected {
		latency, err := p.pingBackend(ctx)
		status.Latency = latency
		if err != nil {
			status.Error = fmt.Sprintf("backend unreachable: %v", err)
			p.metrics.RecordProbeFailure("backend")
		} else {
			status.CanReachBackend = true
			p.metrics.RecordProbe(latency)
		}
	} else {
		status.Error = fmt.Sprintf("no connectivity: %v", reachErr)
		p.metrics.RecordProbeFailure("reachability")
	}

	status.Quality = Grade(status.IsConnected, status.CanReachBackend, status.Latency)
	status.Speed = DeriveSpeed(status.Quality, status.Latency)

	// A canceled caller says nothing about the network.
	if err := ctx.Err(); err != nil {
		p.logger.Debug("Network check abandoned", zap.Error(err))
		return status
	}

	p.mu.Lock()
	p.quality = status.Quality
	p.lastCheck = status.CheckedAt
	p.last = status
	p.checked = true
	p.mu.Unlock()

	p.metrics.SetNetworkQuality(status.Quality.Rank())
	p.logger.Debug("Network status checked",
		zap.String("quality", string(status.Quality)),
		zap.Bool("connected", status.IsConnected),
		zap.Bool("backend", status.CanReachBackend),
		zap.Duration("latency", status.Latency))

	if p.history != nil {
		if err := p.history.RecordNetworkQuality(ctx, model.ObservationFromStatus(status)); err != nil {
			p.logger.Warn("failed to record network quality", zap.Error(err))
		}
	}

	return status
}

// CurrentQuality returns the cached grade, re-probing when the cooldown
// has elapsed or nothing was checked yet. Concurrent refreshes share one
// probe, which runs detached from any caller and is bounded by the probe
// timeouts. A caller whose ctx ends first gets the cached grade.
func (p *Probe) CurrentQuality(ctx context.Context) model.Quality {
	p.mu.RLock()
	fresh := p.checked && p.now().Sub(p.lastCheck) < p.cooldown
	quality := p.quality
	p.mu.RUnlock()

	if fresh {
		return quality
	}

	refreshCtx := context.WithoutCancel(ctx)
	ch := p.refresh.DoChan("status", func() (interface{}, error) {
		return p.CheckStatus(refreshCtx).Quality, nil
	})

	select {
	case res := <-ch:
		return res.Val.(model.Quality)
	case <-ctx.Done():
		return quality
	}
}

// LastStatus returns the most recent observation, if any
func (p *Probe) LastStatus() (model.NetworkStatus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.checked
}

// Stats aggregates recorded observations over window
func (p *Probe) Stats(ctx context.Context, window time.Duration) (model.QualityStats, error) {
	if p.history == nil {
		return model.QualityStats{}, ErrNoHistory
	}
	stats, err := p.history.GetAverageNetworkQuality(ctx, window)
	if err != nil {
		return model.QualityStats{}, fmt.Errorf("failed to aggregate network quality: %w", err)
	}
	return stats, nil
}

// Run probes immediately and then every interval until ctx is done
func (p *Probe) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = p.cooldown
	}

	p.CheckStatus(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CheckStatus(ctx)
		}
	}
}

// checkReachability HEADs every target in parallel. Connectivity holds if
// at least one answers. With no targets configured connectivity is assumed.
func (p *Probe) checkReachability(ctx context.Context) (bool, error) {
	if len(p.targets) == 0 {
		return true, nil
	}

	var (
		reached atomic.Bool
		mu      sync.Mutex
		lastErr error
		g       errgroup.Group
	)

	for _, target := range p.targets {
		target := target
		g.Go(func() error {
			if err := p.head(ctx, target); err != nil {
				mu.Lock()
				lastErr = err
				mu.Unlock()
				return nil
			}
			reached.Store(true)
			return nil
		})
	}
	_ = g.Wait()

	if reached.Load() {
		return true, nil
	}
	return false, lastErr
}

func (p *Probe) head(ctx context.Context, target string) error {
	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, target, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (p *Probe) pingBackend(ctx context.Context) (time.Duration, error) {
	pingCtx, cancel := context.WithTimeout(ctx, p.backendTimeout)
	defer cancel()

	start := p.now()
	err := p.backend.Ping(pingCtx)
	return p.now().Sub(start), err
}
