package store

import (
	"context"
	"sync"
	"time"

	"github.com/devrev/adaptivenet/internal/model"
)

// MemoryHistoryStore implements HistoryStore in memory
type MemoryHistoryStore struct {
	mu           sync.RWMutex
	observations []model.QualityObservation
	retention    time.Duration
	now          func() time.Time
}

// NewMemoryHistoryStore creates an in-memory history bounded by retention
func NewMemoryHistoryStore(retention time.Duration, clock func() time.Time) *MemoryHistoryStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if clock == nil {
		clock = time.Now
	}
	return &MemoryHistoryStore{
		retention: retention,
		now:       clock,
	}
}

// RecordNetworkQuality appends an observation and trims entries past retention
func (s *MemoryHistoryStore) RecordNetworkQuality(ctx context.Context, obs model.QualityObservation) error {
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.observations = append(s.observations, obs)

	cutoff := s.now().Add(-s.retention)
	keep := 0
	for keep < len(s.observations) && s.observations[keep].ObservedAt.Before(cutoff) {
		keep++
	}
	if keep > 0 {
		s.observations = append([]model.QualityObservation(nil), s.observations[keep:]...)
	}
	return nil
}

// GetAverageNetworkQuality aggregates observations inside window
func (s *MemoryHistoryStore) GetAverageNetworkQuality(ctx context.Context, window time.Duration) (model.QualityStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().Add(-window)
	inWindow := make([]model.QualityObservation, 0, len(s.observations))
	for _, obs := range s.observations {
		if !obs.ObservedAt.Before(cutoff) {
			inWindow = append(inWindow, obs)
		}
	}
	return model.Aggregate(window, inWindow), nil
}
