package analyze

import (
	"fmt"
)

// Bucket is the health classification of one metric or the whole session.
type Bucket string

const (
	BucketHealthy  Bucket = "healthy"
	BucketWarning  Bucket = "warning"
	BucketCritical Bucket = "critical"
)

// rank orders buckets from best to worst.
func (b Bucket) rank() int {
	switch b {
	case BucketWarning:
		return 1
	case BucketCritical:
		return 2
	default:
		return 0
	}
}

// Worse returns the worse of two buckets.
func (b Bucket) Worse(other Bucket) Bucket {
	if other.rank() > b.rank() {
		return other
	}
	return b
}

// Bound holds the bucket boundaries for one metric. A value below Healthy is
// healthy, below Warning is warning, anything else critical; the boundary
// value itself belongs to the next bucket, so a metric exactly at Healthy
// already warns.
type Bound struct {
	Healthy float64 `json:"healthy" yaml:"healthy"`
	Warning float64 `json:"warning" yaml:"warning"`
}

// Bucket classifies a value against the bound.
func (b Bound) Bucket(value float64) Bucket {
	switch {
	case value < b.Healthy:
		return BucketHealthy
	case value < b.Warning:
		return BucketWarning
	default:
		return BucketCritical
	}
}

// Thresholds is the verdict threshold table. The first five metrics weigh
// into the overall verdict; the remaining bounds only drive report glyphs.
type Thresholds struct {
	ActiveHours      Bound `json:"active_hours" yaml:"active_hours"`
	ToolErrors       Bound `json:"tool_errors" yaml:"tool_errors"`
	ErrorsPerHour    Bound `json:"errors_per_hour" yaml:"errors_per_hour"`
	UserCorrections  Bound `json:"user_corrections" yaml:"user_corrections"`
	DirectionChanges Bound `json:"direction_changes" yaml:"direction_changes"`

	RealUserMessages Bound `json:"real_user_messages" yaml:"real_user_messages"`
	TranscriptLines  Bound `json:"transcript_lines" yaml:"transcript_lines"`
}

// DefaultThresholds returns the table calibrated on real sessions.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ActiveHours:      Bound{Healthy: 2, Warning: 4},
		ToolErrors:       Bound{Healthy: 15, Warning: 30},
		ErrorsPerHour:    Bound{Healthy: 10, Warning: 30},
		UserCorrections:  Bound{Healthy: 5, Warning: 15},
		DirectionChanges: Bound{Healthy: 5, Warning: 15},
		RealUserMessages: Bound{Healthy: 50, Warning: 100},
		TranscriptLines:  Bound{Healthy: 3000, Warning: 6000},
	}
}

// MetricVerdict is the bucketed value of one weighted metric.
type MetricVerdict struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Bucket Bucket  `json:"bucket"`
}

// Verdict is the overall session health with its supporting detail.
type Verdict struct {
	Overall         Bucket          `json:"overall"`
	Metrics         []MetricVerdict `json:"metrics"`
	Problems        []string        `json:"problems,omitempty"`
	Recommendations []string        `json:"recommendations,omitempty"`
}

// buildVerdict buckets the weighted metrics and derives the overall verdict
// as the worst bucket among them, with one recommendation per metric that
// warns or worse. Time-based metrics are weighed only when a timeline exists.
func buildVerdict(r *Report, t Thresholds) Verdict {
	v := Verdict{Overall: BucketHealthy}

	weigh := func(name string, value float64, bound Bound, problem, recommendation string) {
		bucket := bound.Bucket(value)
		v.Metrics = append(v.Metrics, MetricVerdict{Name: name, Value: value, Bucket: bucket})
		v.Overall = v.Overall.Worse(bucket)
		if bucket == BucketHealthy {
			return
		}
		v.Problems = append(v.Problems, problem)
		v.Recommendations = append(v.Recommendations, recommendation)
	}

	if r.Time.HasTimeline {
		weigh("active_hours", r.Time.ActiveHours, t.ActiveHours,
			fmt.Sprintf("Long active session (%.1fh)", r.Time.ActiveHours),
			"Consider compacting — long sessions degrade context quality.")
	}

	weigh("tool_errors", float64(r.Errors.ToolErrors), t.ToolErrors,
		fmt.Sprintf("High tool error count (%d)", r.Errors.ToolErrors),
		"Fix root cause of tool errors before continuing work.")

	if r.Time.HasTimeline && r.Time.ActiveHours > 0 {
		weigh("errors_per_hour", r.Errors.ErrorsPerActiveHour, t.ErrorsPerHour,
			fmt.Sprintf("High error rate (%.1f/h)", r.Errors.ErrorsPerActiveHour),
			"Stabilize the environment before continuing — the same failures keep repeating.")
	}

	weigh("user_corrections", float64(r.Errors.UserCorrections), t.UserCorrections,
		fmt.Sprintf("Many user corrections (%d)", r.Errors.UserCorrections),
		"Communication gap detected — try starting fresh with a clearer task description.")

	weigh("direction_changes", float64(r.Behavioral.DirectionChanges), t.DirectionChanges,
		fmt.Sprintf("Frequent direction changes (%d)", r.Behavioral.DirectionChanges),
		"Apply the 3-strike rule: after 3 failed attempts, try a different approach.")

	if r.Time.OvernightHeuristic || hasOvernightGap(r.Time.Gaps) {
		v.Recommendations = append(v.Recommendations,
			"Compact before breaks >1 hour to avoid context degradation.")
	}

	return v
}

func hasOvernightGap(gaps []GapInfo) bool {
	for _, g := range gaps {
		if g.Kind == "overnight" {
			return true
		}
	}
	return false
}
