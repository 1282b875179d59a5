// Package analyze aggregates parsed session events into the corrected
// metrics report: real activity time, genuine user messages, tool failures
// separated from human corrections, and a health verdict.
package analyze

import (
	"time"
)

// Report is the full corrected analysis of one session.
type Report struct {
	Session     SessionInfo        `json:"session"`
	Time        TimeMetrics        `json:"time"`
	Interaction InteractionMetrics `json:"interaction"`
	Errors      ErrorMetrics       `json:"errors"`
	Behavioral  BehavioralMetrics  `json:"behavioral"`
	WorkFocus   WorkFocusMetrics   `json:"work_focus"`
	Coverage    Coverage           `json:"coverage"`
	Verdict     Verdict            `json:"verdict"`
}

// SessionInfo identifies the analyzed session and its most recent dump.
type SessionInfo struct {
	ID         string    `json:"id"`
	Dumps      int       `json:"dumps"`
	File       string    `json:"file"`
	SizeKB     int64     `json:"size_kb"`
	Lines      int       `json:"lines"`
	CapturedAt time.Time `json:"captured_at"`
}

// GapInfo is one reported idle gap.
type GapInfo struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Hours float64   `json:"hours"`
	Kind  string    `json:"kind"`
}

// TimeMetrics is the corrected time accounting.
type TimeMetrics struct {
	// HasTimeline is false when no record carried a usable timestamp; the
	// duration fields are then zero and the overnight heuristic applies.
	HasTimeline        bool      `json:"has_timeline"`
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	WallClockHours     float64   `json:"wall_clock_hours"`
	ActiveHours        float64   `json:"active_hours"`
	IdleHours          float64   `json:"idle_hours"`
	Gaps               []GapInfo `json:"gaps,omitempty"`
	GrowthRatio        float64   `json:"growth_ratio,omitempty"`
	OvernightHeuristic bool      `json:"overnight_heuristic"`
}

// CategoryCounts is the per-category breakdown of genuine user messages.
type CategoryCounts struct {
	Guidance   int `json:"guidance"`
	Approval   int `json:"approval"`
	Correction int `json:"correction"`
	Question   int `json:"question"`
	Other      int `json:"other"`
}

// Total sums all categories.
func (c CategoryCounts) Total() int {
	return c.Guidance + c.Approval + c.Correction + c.Question + c.Other
}

// InteractionMetrics is the corrected user-message accounting.
type InteractionMetrics struct {
	// RawUserRecords counts records the dump labels "user"; most are tool
	// results echoed back by the transport.
	RawUserRecords int `json:"raw_user_records"`
	// RealUserMessages counts messages a human actually typed.
	RealUserMessages      int            `json:"real_user_messages"`
	NoisePercent          float64        `json:"noise_percent"`
	MessagesPerActiveHour float64        `json:"messages_per_active_hour,omitempty"`
	Categories            CategoryCounts `json:"categories"`
}

// ErrorBreakdown is the per-subtype count of detected tool failures.
type ErrorBreakdown struct {
	Database         int `json:"database"`
	FileNotFound     int `json:"file_not_found"`
	Permission       int `json:"permission"`
	Timeout          int `json:"timeout"`
	OtherEnvironment int `json:"other_environment"`
}

// ErrorMetrics separates environment failures from human pushback.
type ErrorMetrics struct {
	ToolErrors          int            `json:"tool_errors"`
	ErrorsPerActiveHour float64        `json:"errors_per_active_hour,omitempty"`
	UserCorrections     int            `json:"user_corrections"`
	// CorrectionsAfterError counts corrections typed directly after a tool
	// failure, where the human is reacting to the environment.
	CorrectionsAfterError int            `json:"corrections_after_error"`
	Clarifications        int            `json:"clarifications"`
	Breakdown             ErrorBreakdown `json:"breakdown"`
}

// BehavioralMetrics are the session-health signals.
type BehavioralMetrics struct {
	DirectionChanges   int `json:"direction_changes"`
	FrustrationMarkers int `json:"frustration_markers"`
	ToolCalls          int `json:"tool_calls"`
}

// FileCount is one modified file with its touch count.
type FileCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// ToolCount is one tool with its invocation count.
type ToolCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// WorkFocusMetrics describe what the session actually worked on.
type WorkFocusMetrics struct {
	FilesModified   []FileCount `json:"files_modified,omitempty"`
	ToolUsage       []ToolCount `json:"tool_usage,omitempty"`
	TranscriptLines int         `json:"transcript_lines"`
	TranscriptKB    int64       `json:"transcript_kb"`
	// EstimatedTokens approximates the context size of the text payloads.
	// Zero when the tokenizer is unavailable.
	EstimatedTokens int `json:"estimated_tokens,omitempty"`
}

// Coverage surfaces how much of the input the analysis could not use.
type Coverage struct {
	SkippedRecords int `json:"skipped_records"`
	UntimedEvents  int `json:"untimed_events"`
	// DefaultedMessages and DefaultedErrors count classifications that fell
	// through to the default bucket, i.e. rule coverage gaps.
	DefaultedMessages int `json:"defaulted_messages"`
	DefaultedErrors   int `json:"defaulted_errors"`
}
