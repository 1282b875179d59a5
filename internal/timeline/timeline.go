// Package timeline reconstructs the working timeline of a session from event
// timestamps: wall-clock span, idle gaps above a threshold, and the active
// time left when gaps are subtracted.
package timeline

import (
	"sort"
	"time"

	"github.com/roip/claude-reflections/internal/transcript"
)

// DefaultIdleGap is the smallest pause treated as idle time.
const DefaultIdleGap = time.Hour

// Bounds for typing a detected gap by its duration.
const (
	longBreakMin = 2 * time.Hour
	overnightMin = 6 * time.Hour
)

// GapKind labels how severe an idle gap is.
type GapKind string

const (
	GapBreak     GapKind = "break"
	GapLongBreak GapKind = "long-break"
	GapOvernight GapKind = "overnight"
)

// Gap is one detected idle period between two consecutive timestamped events.
type Gap struct {
	Start time.Time
	End   time.Time
	Kind  GapKind
}

// Duration returns the gap length.
func (g Gap) Duration() time.Duration {
	return g.End.Sub(g.Start)
}

// Timeline is the reconstructed working time of one session.
type Timeline struct {
	Start  time.Time
	End    time.Time
	Span   time.Duration
	Active time.Duration
	Idle   time.Duration
	Gaps   []Gap
}

// HasData reports whether any timestamped events were available. A session
// whose records carry no timestamps has no timeline; callers fall back to
// heuristics.
func (t Timeline) HasData() bool {
	return !t.Start.IsZero()
}

// eventKey identifies a timestamped event for cross-dump deduplication.
type eventKey struct {
	ts        int64
	kind      transcript.Kind
	text      string
	toolUseID string
}

// Merge deduplicates events concatenated across sibling dumps. A later dump
// replays the records already captured by an earlier one; identical
// timestamped events from a different dump are dropped so counts and gaps
// never double-book a record. Concatenation order is preserved.
func Merge(events []transcript.Event) []transcript.Event {
	seen := make(map[eventKey]int, len(events))
	out := make([]transcript.Event, 0, len(events))
	for _, ev := range events {
		if !ev.HasTimestamp() {
			out = append(out, ev)
			continue
		}
		key := eventKey{ev.Timestamp.UnixNano(), ev.Kind, ev.Text, ev.ToolUseID}
		if firstDump, ok := seen[key]; ok {
			if firstDump != ev.Dump {
				continue
			}
		} else {
			seen[key] = ev.Dump
		}
		out = append(out, ev)
	}
	return out
}

// Detect computes the timeline from event timestamps. Consecutive timestamped
// events further apart than threshold open a gap; active time is the span
// minus all gaps. Events without timestamps or with unknown kinds do not
// participate. A non-positive threshold falls back to DefaultIdleGap.
func Detect(events []transcript.Event, threshold time.Duration) Timeline {
	if threshold <= 0 {
		threshold = DefaultIdleGap
	}

	times := make([]time.Time, 0, len(events))
	for _, ev := range events {
		if ev.HasTimestamp() && ev.Countable() {
			times = append(times, ev.Timestamp)
		}
	}
	if len(times) == 0 {
		return Timeline{}
	}
	sort.SliceStable(times, func(i, j int) bool {
		return times[i].Before(times[j])
	})

	tl := Timeline{
		Start: times[0],
		End:   times[len(times)-1],
	}
	tl.Span = tl.End.Sub(tl.Start)

	for i := 1; i < len(times); i++ {
		delta := times[i].Sub(times[i-1])
		if delta <= threshold {
			continue
		}
		tl.Gaps = append(tl.Gaps, Gap{
			Start: times[i-1],
			End:   times[i],
			Kind:  classifyGap(delta),
		})
		tl.Idle += delta
	}

	tl.Active = tl.Span - tl.Idle
	if tl.Active < 0 {
		tl.Active = 0
	}
	return tl
}

// classifyGap types a gap by duration.
func classifyGap(d time.Duration) GapKind {
	switch {
	case d > overnightMin:
		return GapOvernight
	case d > longBreakMin:
		return GapLongBreak
	default:
		return GapBreak
	}
}
