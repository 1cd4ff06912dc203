package model

import "time"

// Quality is the discretized network health used to drive adaptive behavior
type Quality string

const (
	QualityPoor      Quality = "poor"
	QualityFair      Quality = "fair"
	QualityGood      Quality = "good"
	QualityExcellent Quality = "excellent"
)

// Qualities lists every grade from worst to best
var Qualities = []Quality{QualityPoor, QualityFair, QualityGood, QualityExcellent}

// Valid reports whether q is one of the known grades
func (q Quality) Valid() bool {
	switch q {
	case QualityPoor, QualityFair, QualityGood, QualityExcellent:
		return true
	default:
		return false
	}
}

// Rank orders grades, poor = 0 through excellent = 3
func (q Quality) Rank() int {
	switch q {
	case QualityExcellent:
		return 3
	case QualityGood:
		return 2
	case QualityFair:
		return 1
	default:
		return 0
	}
}

// Speed is a coarse throughput classification derived from quality and latency
type Speed string

const (
	SpeedSlow   Speed = "slow"
	SpeedMedium Speed = "medium"
	SpeedFast   Speed = "fast"
)

// NetworkStatus is a point-in-time connectivity assessment
type NetworkStatus struct {
	IsConnected     bool          `json:"is_connected"`
	CanReachBackend bool          `json:"can_reach_backend"`
	Quality         Quality       `json:"quality"`
	Latency         time.Duration `json:"latency"`
	Speed           Speed         `json:"speed"`
	Error           string        `json:"error,omitempty"`
	CheckedAt       time.Time     `json:"checked_at"`
}

// QualityObservation is one entry of the network-quality history log
type QualityObservation struct {
	Quality         Quality       `json:"quality"`
	Latency         time.Duration `json:"latency"`
	IsConnected     bool          `json:"is_connected"`
	CanReachBackend bool          `json:"can_reach_backend"`
	ObservedAt      time.Time     `json:"observed_at"`
}

// ObservationFromStatus converts a probe result into a history entry
func ObservationFromStatus(status NetworkStatus) QualityObservation {
	return QualityObservation{
		Quality:         status.Quality,
		Latency:         status.Latency,
		IsConnected:     status.IsConnected,
		CanReachBackend: status.CanReachBackend,
		ObservedAt:      status.CheckedAt,
	}
}

// QualityStats aggregates history over a window
type QualityStats struct {
	Window         time.Duration   `json:"window"`
	Samples        int             `json:"samples"`
	AverageLatency time.Duration   `json:"average_latency"`
	Dominant       Quality         `json:"dominant"`
	Distribution   map[Quality]int `json:"distribution"`
	ConnectedRatio float64         `json:"connected_ratio"`
}

// Aggregate folds observations into QualityStats. Ties for the dominant
// grade resolve toward the worse grade.
func Aggregate(window time.Duration, observations []QualityObservation) QualityStats {
	stats := QualityStats{
		Window:       window,
		Samples:      len(observations),
		Distribution: make(map[Quality]int, len(Qualities)),
	}
	if len(observations) == 0 {
		return stats
	}

	var totalLatency time.Duration
	connected := 0
	for _, obs := range observations {
		totalLatency += obs.Latency
		stats.Distribution[obs.Quality]++
		if obs.IsConnected {
			connected++
		}
	}

	stats.AverageLatency = totalLatency / time.Duration(len(observations))
	stats.ConnectedRatio = float64(connected) / float64(len(observations))

	best := -1
	for _, q := range Qualities {
		if n := stats.Distribution[q]; n > best {
			best = n
			stats.Dominant = q
		}
	}
	return stats
}
