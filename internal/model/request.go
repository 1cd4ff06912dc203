package model

// Priority orders requests inside a batch drain
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities lists tiers in drain order
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// Normalize maps unknown or empty priorities to medium
func (p Priority) Normalize() Priority {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p
	default:
		return PriorityMedium
	}
}
