package domain

import (
	"strings"
	"time"
)

// VisionObjective is a measurable strategic goal with a deadline.
//
// Invariants:
//   - ID and Title are non-empty
//   - CurrentValue and TargetValue are >= 0
//   - Deadline is strictly after CreatedAt
//
// Values are immutable by convention: use WithCurrentValue to derive a replacement.
type VisionObjective struct {
	ID                string    `json:"id" yaml:"id"`
	Title             string    `json:"title" yaml:"title"`
	Description       string    `json:"description" yaml:"description"`
	TargetMetric      string    `json:"target_metric" yaml:"target_metric"`
	CurrentValue      float64   `json:"current_value" yaml:"current_value"`
	TargetValue       float64   `json:"target_value" yaml:"target_value"`
	Deadline          time.Time `json:"deadline" yaml:"deadline"`
	MeasurementMethod string    `json:"measurement_method" yaml:"measurement_method"`
	CreatedAt         time.Time `json:"created_at" yaml:"created_at"`
}

// NewVisionObjective returns a checked copy of o.
func NewVisionObjective(o VisionObjective) (VisionObjective, error) {
	var violations []string
	if strings.TrimSpace(o.ID) == "" {
		violations = append(violations, "objective id cannot be empty")
	}
	if strings.TrimSpace(o.Title) == "" {
		violations = append(violations, "objective title cannot be empty")
	}
	if !(o.CurrentValue >= 0) {
		violations = append(violations, "current value cannot be negative")
	}
	if !(o.TargetValue >= 0) {
		violations = append(violations, "target value cannot be negative")
	}
	if !o.Deadline.After(o.CreatedAt) {
		violations = append(violations, "deadline must be after creation date")
	}
	if len(violations) > 0 {
		return VisionObjective{}, constructionError("new_objective", violations)
	}
	return o, nil
}

// WithCurrentValue returns a copy carrying a new current value.
func (o VisionObjective) WithCurrentValue(v float64) (VisionObjective, error) {
	next := o
	next.CurrentValue = v
	return NewVisionObjective(next)
}

// Progress returns completion as a percentage in [0,100]. A zero target yields 0.
func (o VisionObjective) Progress() float64 {
	if o.TargetValue == 0 {
		return 0
	}
	return clamp(o.CurrentValue/o.TargetValue*100, 0, 100)
}

// DaysRemaining returns whole days until the deadline, never negative.
func (o VisionObjective) DaysRemaining(now time.Time) int {
	if !o.Deadline.After(now) {
		return 0
	}
	return wholeDays(o.Deadline.Sub(now))
}

func (o VisionObjective) IsOverdue(now time.Time) bool {
	return now.After(o.Deadline)
}

// IsAtRisk compares progress with the linear expectation over CreatedAt..Deadline.
func (o VisionObjective) IsAtRisk(now time.Time) bool {
	progress := o.Progress()
	if progress >= 100 {
		return false
	}
	if o.IsOverdue(now) {
		return true
	}
	total := wholeDays(o.Deadline.Sub(o.CreatedAt))
	elapsed := wholeDays(now.Sub(o.CreatedAt))
	if total <= 0 || elapsed <= 0 {
		return false
	}
	expected := clamp(float64(elapsed)/float64(total)*100, 0, 100)
	return progress < expected*atRiskExpectedShare
}

func wholeDays(d time.Duration) int {
	days := d / (24 * time.Hour)
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return int(days)
}

// inRange reports whether lo <= v <= hi; NaN is never in range.
func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
