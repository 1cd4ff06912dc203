package netprobe

import (
	"time"

	"github.com/devrev/adaptivenet/internal/model"
)

// Grade thresholds on backend latency
const (
	ExcellentBelow = 500 * time.Millisecond
	GoodBelow      = 1000 * time.Millisecond
	FairBelow      = 2000 * time.Millisecond

	fastBelow   = 300 * time.Millisecond
	mediumBelow = 800 * time.Millisecond
)

// Grade computes the quality grade. Without connectivity or a reachable
// backend the grade is poor regardless of latency.
func Grade(connected, backendReachable bool, latency time.Duration) model.Quality {
	if !connected || !backendReachable {
		return model.QualityPoor
	}
	switch {
	case latency < ExcellentBelow:
		return model.QualityExcellent
	case latency < GoodBelow:
		return model.QualityGood
	case latency < FairBelow:
		return model.QualityFair
	default:
		return model.QualityPoor
	}
}

// DeriveSpeed maps a grade and latency to a coarse speed class
func DeriveSpeed(q model.Quality, latency time.Duration) model.Speed {
	switch {
	case q == model.QualityExcellent && latency < fastBelow:
		return model.SpeedFast
	case q == model.QualityGood:
		return model.SpeedMedium
	case q == model.QualityExcellent && latency < mediumBelow:
		return model.SpeedMedium
	default:
		return model.SpeedSlow
	}
}
