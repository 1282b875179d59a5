package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roip/claude-reflections/internal/analyze"
)

// sampleReport builds a report resembling a long real session: 398 raw user
// records of which 12 are genuine, 20 tool errors and no corrections.
func sampleReport() *analyze.Report {
	start := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	return &analyze.Report{
		Session: analyze.SessionInfo{
			ID:         "6a3cafc9",
			Dumps:      2,
			File:       "conversation.jsonl",
			SizeKB:     3212,
			Lines:      12877,
			CapturedAt: start.Add(16 * time.Hour),
		},
		Time: analyze.TimeMetrics{
			HasTimeline:    true,
			Start:          start,
			End:            start.Add(13*time.Hour + 42*time.Minute),
			WallClockHours: 13.7,
			ActiveHours:    3.9,
			IdleHours:      9.8,
			Gaps: []analyze.GapInfo{
				{
					Start: start.Add(10*time.Hour + 30*time.Minute),
					End:   start.Add(20*time.Hour + 30*time.Minute),
					Hours: 10.0,
					Kind:  "overnight",
				},
			},
			GrowthRatio: 3.4,
		},
		Interaction: analyze.InteractionMetrics{
			RawUserRecords:        398,
			RealUserMessages:      12,
			NoisePercent:          97,
			MessagesPerActiveHour: 3.1,
			Categories: analyze.CategoryCounts{
				Guidance: 5,
				Approval: 3,
				Question: 2,
				Other:    2,
			},
		},
		Errors: analyze.ErrorMetrics{
			ToolErrors:          20,
			ErrorsPerActiveHour: 5.1,
			Clarifications:      2,
			Breakdown: analyze.ErrorBreakdown{
				Database:         12,
				FileNotFound:     5,
				Timeout:          2,
				OtherEnvironment: 1,
			},
		},
		Behavioral: analyze.BehavioralMetrics{
			ToolCalls: 213,
		},
		WorkFocus: analyze.WorkFocusMetrics{
			FilesModified: []analyze.FileCount{
				{Path: "internal/server/handler.go", Count: 4},
				{Path: "internal/server/router.go", Count: 2},
				{Path: "cmd/api/main.go", Count: 1},
			},
			ToolUsage: []analyze.ToolCount{
				{Name: "Bash", Count: 97},
				{Name: "Edit", Count: 54},
				{Name: "Read", Count: 41},
				{Name: "Write", Count: 9},
			},
			TranscriptLines: 12877,
			TranscriptKB:    3212,
			EstimatedTokens: 812400,
		},
		Coverage: analyze.Coverage{
			SkippedRecords:    2,
			DefaultedMessages: 2,
			DefaultedErrors:   1,
		},
		Verdict: analyze.Verdict{
			Overall:         analyze.BucketWarning,
			Problems:        []string{"High tool error count (20)"},
			Recommendations: []string{"Fix root cause of tool errors before continuing work."},
		},
	}
}

func render(t *testing.T, rep *analyze.Report, opts Options) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, New(&buf, opts).Render(rep))
	return buf.String()
}

func TestRenderSections(t *testing.T) {
	out := render(t, sampleReport(), Options{})

	for _, title := range []string{
		"CLAUDE CODE SESSION ANALYSIS",
		"TIME",
		"INTERACTION (corrected)",
		"ERRORS (corrected)",
		"BEHAVIORAL SIGNALS",
		"WORK FOCUS",
		"VERDICT",
	} {
		assert.Contains(t, out, "\n"+title+"\n", "missing section %q", title)
	}
	assert.Contains(t, out, strings.Repeat("=", 80))
}

func TestRenderHeader(t *testing.T) {
	out := render(t, sampleReport(), Options{})

	assert.Contains(t, out, "Session:  6a3cafc9")
	assert.Contains(t, out, "(2 dumps merged)")
	assert.Contains(t, out, "File:     conversation.jsonl (3212KB, 12,877 lines)")
}

func TestRenderTime(t *testing.T) {
	out := render(t, sampleReport(), Options{})

	assert.Contains(t, out, "Wall-clock duration:  13.7h")
	assert.Contains(t, out, "Active work time:    3.9h ⚠️")
	assert.Contains(t, out, "Idle/AFK time:       9.8h (excluded from rate calculations)")
	assert.Contains(t, out, "Gaps detected:")
	assert.Contains(t, out, "OVERNIGHT     Tue 19:30 → Wed 05:30 (10.0h)")
	assert.Contains(t, out, "Growth ratio: 3.4x (first dump → this dump)")

	// 13.7h wall clock with 3.9h active: left-open warning fires.
	assert.Contains(t, out, "Session was left open during extended inactivity.")
}

func TestRenderInteraction(t *testing.T) {
	out := render(t, sampleReport(), Options{})

	// The inflation correction is the headline: 398 raw records, 12 genuine.
	assert.Contains(t, out, "Raw 'user' records:       398")
	assert.Contains(t, out, "Actual user messages:      12  ✅")
	assert.Contains(t, out, "Noise (tool results):     97%")
	assert.Contains(t, out, "Messages per active hour: 3.1")
	assert.Contains(t, out, "Guidance:      5")
	assert.Contains(t, out, "(directing Claude's work)")
	assert.Contains(t, out, "Corrections:   0")
}

func TestRenderErrors(t *testing.T) {
	out := render(t, sampleReport(), Options{})

	assert.Contains(t, out, "Tool execution errors:     20  ⚠️")
	assert.Contains(t, out, "User corrections:           0  ✅")
	assert.Contains(t, out, "User clarifications:        2")
	assert.Contains(t, out, "Tool errors per active hour: 5.1  ✅")

	// Breakdown sorted by count descending.
	assert.Contains(t, out, " 12x Database")
	assert.Contains(t, out, "  5x File Not Found")
	assert.Contains(t, out, "  2x Timeout")
	assert.Contains(t, out, "  1x Other Environment")
	assert.Less(t, strings.Index(out, "12x Database"), strings.Index(out, "5x File Not Found"))

	// 20 errors vs 0 corrections: the dominance commentary fires.
	assert.Contains(t, out, "dominated by tool failures")
	assert.NotContains(t, out, "possible communication gap")
}

func TestRenderCorrectionsAfterError(t *testing.T) {
	rep := sampleReport()
	rep.Errors.UserCorrections = 3
	rep.Errors.CorrectionsAfterError = 2
	out := render(t, rep, Options{})

	assert.Contains(t, out, "after tool failures:      2")
}

func TestRenderWorkFocus(t *testing.T) {
	out := render(t, sampleReport(), Options{})

	assert.Contains(t, out, "Files created/modified: 3")
	assert.Contains(t, out, "4x internal/server/handler.go")
	assert.Contains(t, out, "Top tools used:")
	assert.Contains(t, out, "  97x Bash")
	assert.Contains(t, out, "Transcript: 12,877 lines (3212KB)  ❌")
	assert.Contains(t, out, "Estimated context: ~812,400 tokens")
	assert.Contains(t, out, "Parse coverage: 2 records skipped, 0 events untimed")
	assert.Contains(t, out, "Rule coverage: 2 messages, 1 errors fell to the default bucket")
}

func TestRenderTopListsTruncated(t *testing.T) {
	rep := sampleReport()
	rep.WorkFocus.FilesModified = nil
	for i := 0; i < 15; i++ {
		rep.WorkFocus.FilesModified = append(rep.WorkFocus.FilesModified,
			analyze.FileCount{Path: "file" + string(rune('a'+i)) + ".go", Count: 15 - i})
	}
	out := render(t, rep, Options{})

	assert.Contains(t, out, "Files created/modified: 15")
	assert.Contains(t, out, "filej.go") // tenth entry
	assert.NotContains(t, out, "filek.go")
}

func TestRenderVerdictWarning(t *testing.T) {
	out := render(t, sampleReport(), Options{})

	assert.Contains(t, out, "⚠️  WARNING")
	assert.Contains(t, out, "  - High tool error count (20)")
	assert.Contains(t, out, "Recommendations:")
	assert.Contains(t, out, "    → Fix root cause of tool errors before continuing work.")
	assert.NotContains(t, out, "HEALTHY")
}

func TestRenderVerdictHealthy(t *testing.T) {
	rep := sampleReport()
	rep.Errors = analyze.ErrorMetrics{Clarifications: 2}
	rep.Verdict = analyze.Verdict{Overall: analyze.BucketHealthy}
	out := render(t, rep, Options{})

	assert.Contains(t, out, "✅ HEALTHY — Session metrics are within normal ranges.")
	assert.Contains(t, out, "12 real user messages over 3.9h of active work.")
	assert.Contains(t, out, "No tool errors or user corrections — clean session.")
}

func TestRenderVerdictCritical(t *testing.T) {
	rep := sampleReport()
	rep.Verdict.Overall = analyze.BucketCritical
	out := render(t, rep, Options{})

	assert.Contains(t, out, "❌ CRITICAL")
}

func TestRenderNoTimeline(t *testing.T) {
	rep := sampleReport()
	rep.Time = analyze.TimeMetrics{OvernightHeuristic: true}
	rep.Verdict = analyze.Verdict{Overall: analyze.BucketHealthy}
	rep.Errors = analyze.ErrorMetrics{}
	out := render(t, rep, Options{})

	assert.Contains(t, out, "(No timestamped records — gap detection unavailable.)")
	assert.Contains(t, out, "likely left open overnight")
	assert.Contains(t, out, "always compact before breaks >1 hour")
	assert.NotContains(t, out, "Wall-clock duration")
	assert.NotContains(t, out, "Messages per active hour")
	assert.Contains(t, out, "12 real user messages.\n")
}

func TestRenderIdempotent(t *testing.T) {
	rep := sampleReport()
	first := render(t, rep, Options{})
	second := render(t, rep, Options{})
	assert.Equal(t, first, second)
}

func TestRenderColor(t *testing.T) {
	plain := render(t, sampleReport(), Options{Color: false})
	assert.NotContains(t, plain, "\033[")

	colored := render(t, sampleReport(), Options{Color: true})
	assert.Contains(t, colored, colorCyan)
	assert.Contains(t, colored, colorYellow+"⚠️  WARNING"+colorReset)
	assert.Contains(t, colored, colorReset)
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, Options{})
	require.NoError(t, r.RenderJSON(sampleReport()))

	out := buf.Bytes()
	assert.True(t, bytes.HasSuffix(out, []byte("\n")))

	var decoded analyze.Report
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, 398, decoded.Interaction.RawUserRecords)
	assert.Equal(t, 12, decoded.Interaction.RealUserMessages)
	assert.Equal(t, 20, decoded.Errors.ToolErrors)
	assert.Equal(t, analyze.BucketWarning, decoded.Verdict.Overall)

	// Byte-identical on a second run.
	var again bytes.Buffer
	require.NoError(t, New(&again, Options{}).RenderJSON(sampleReport()))
	assert.Equal(t, out, again.Bytes())
}

func TestColorsEnabled(t *testing.T) {
	tests := []struct {
		name     string
		noColor  string
		term     string
		override string
		expected bool
	}{
		{name: "default on", term: "xterm-256color", expected: true},
		{name: "NO_COLOR disables", noColor: "1", term: "xterm", expected: false},
		{name: "dumb terminal disables", term: "dumb", expected: false},
		{name: "override forces on", noColor: "1", term: "dumb", override: "true", expected: true},
		{name: "override forces off", term: "xterm", override: "false", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", tt.noColor)
			t.Setenv("TERM", tt.term)
			t.Setenv("REFLECTIONS_COLORS", tt.override)
			assert.Equal(t, tt.expected, ColorsEnabled())
		})
	}
}

func TestGlyphBoundaries(t *testing.T) {
	bound := analyze.Bound{Healthy: 2, Warning: 4}

	assert.Equal(t, "✅", glyph(bound, 1.99))
	assert.Equal(t, "⚠️", glyph(bound, 2.0))
	assert.Equal(t, "⚠️", glyph(bound, 3.99))
	assert.Equal(t, "❌", glyph(bound, 4.0))
}

func TestComma(t *testing.T) {
	tests := []struct {
		in       int
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{12877, "12,877"},
		{812400, "812,400"},
		{1234567, "1,234,567"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, comma(tt.in))
	}
}

func TestNewDefaultsThresholds(t *testing.T) {
	r := New(&bytes.Buffer{}, Options{})
	assert.Equal(t, analyze.DefaultThresholds(), r.opts.Thresholds)

	custom := analyze.DefaultThresholds()
	custom.ToolErrors = analyze.Bound{Healthy: 1, Warning: 2}
	r = New(&bytes.Buffer{}, Options{Thresholds: custom})
	assert.Equal(t, custom, r.opts.Thresholds)
}
