// Package report renders an analysis into the sectioned terminal report or,
// alternatively, indented JSON.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/roip/claude-reflections/internal/analyze"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorRed    = "\033[31m"
)

// barWidth is the section divider width.
const barWidth = 80

// ColorsEnabled reports whether ANSI colors should be on by default:
// yes, unless NO_COLOR is set or TERM is dumb. REFLECTIONS_COLORS=true/false
// forces either way.
func ColorsEnabled() bool {
	enabled := os.Getenv("NO_COLOR") == "" && os.Getenv("TERM") != "dumb"
	switch os.Getenv("REFLECTIONS_COLORS") {
	case "false":
		enabled = false
	case "true":
		enabled = true
	}
	return enabled
}

// Options controls rendering.
type Options struct {
	// Color enables ANSI color accents.
	Color bool
	// Thresholds drives the status glyphs next to individual metrics.
	Thresholds analyze.Thresholds
}

// Renderer writes reports to a writer.
type Renderer struct {
	w    io.Writer
	opts Options
}

// New returns a renderer. A zero threshold table falls back to the defaults.
func New(w io.Writer, opts Options) *Renderer {
	if opts.Thresholds == (analyze.Thresholds{}) {
		opts.Thresholds = analyze.DefaultThresholds()
	}
	return &Renderer{w: w, opts: opts}
}

// RenderJSON writes the report as indented JSON. Field order follows the
// struct definitions, so repeated runs emit identical bytes.
func (r *Renderer) RenderJSON(rep *analyze.Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = fmt.Fprintln(r.w, string(data))
	return err
}

// Render writes the sectioned human-readable report.
func (r *Renderer) Render(rep *analyze.Report) error {
	var b strings.Builder

	r.header(&b, rep)
	r.timeSection(&b, rep)
	r.interactionSection(&b, rep)
	r.errorSection(&b, rep)
	r.behavioralSection(&b, rep)
	r.workFocusSection(&b, rep)
	r.verdictSection(&b, rep)

	_, err := io.WriteString(r.w, b.String())
	return err
}

// section writes a divider-bounded section title.
func (r *Renderer) section(b *strings.Builder, title string) {
	bar := strings.Repeat("=", barWidth)
	if r.opts.Color {
		bar = colorCyan + bar + colorReset
	}
	fmt.Fprintf(b, "\n%s\n%s\n%s\n", bar, title, bar)
}

// paint wraps s in the given color when colors are on.
func (r *Renderer) paint(color, s string) string {
	if !r.opts.Color {
		return s
	}
	return color + s + colorReset
}

// glyph maps a metric value to its status marker.
func glyph(bound analyze.Bound, value float64) string {
	switch bound.Bucket(value) {
	case analyze.BucketCritical:
		return "❌"
	case analyze.BucketWarning:
		return "⚠️"
	default:
		return "✅"
	}
}

func (r *Renderer) header(b *strings.Builder, rep *analyze.Report) {
	r.section(b, "CLAUDE CODE SESSION ANALYSIS")

	fmt.Fprintf(b, "\nSession:  %s\n", rep.Session.ID)
	if !rep.Session.CapturedAt.IsZero() {
		captured := rep.Session.CapturedAt.Format("2006-01-02 15:04:05")
		if rep.Session.Dumps > 1 {
			fmt.Fprintf(b, "Dumped:   %s (%d dumps merged)\n", captured, rep.Session.Dumps)
		} else {
			fmt.Fprintf(b, "Dumped:   %s\n", captured)
		}
	}
	fmt.Fprintf(b, "File:     %s (%dKB, %s lines)\n",
		rep.Session.File, rep.Session.SizeKB, comma(rep.Session.Lines))
}

func (r *Renderer) timeSection(b *strings.Builder, rep *analyze.Report) {
	r.section(b, "TIME")
	t := rep.Time

	if t.HasTimeline {
		fmt.Fprintf(b, "\n  Wall-clock duration:  %.1fh\n", t.WallClockHours)
		fmt.Fprintf(b, "  Active work time:    %.1fh %s\n",
			t.ActiveHours, glyph(r.opts.Thresholds.ActiveHours, t.ActiveHours))
		fmt.Fprintf(b, "  Idle/AFK time:       %.1fh (excluded from rate calculations)\n", t.IdleHours)

		if len(t.Gaps) > 0 {
			fmt.Fprintf(b, "\n  Gaps detected:\n")
			for _, g := range t.Gaps {
				kind := strings.ToUpper(strings.ReplaceAll(g.Kind, "-", " "))
				fmt.Fprintf(b, "    %-12s  %s → %s (%.1fh)\n",
					kind, g.Start.Format("Mon 15:04"), g.End.Format("Mon 15:04"), g.Hours)
			}
		}

		if t.WallClockHours > 8 && t.ActiveHours < t.WallClockHours*0.3 {
			fmt.Fprintf(b, "\n  ⚠️  Session was left open during extended inactivity.\n")
			fmt.Fprintf(b, "     The %.1fh wall-clock time is misleading — actual work was %.1fh.\n",
				t.WallClockHours, t.ActiveHours)
		}
	} else {
		fmt.Fprintf(b, "\n  (No timestamped records — gap detection unavailable.)\n")
		if t.OvernightHeuristic {
			fmt.Fprintf(b, "  ⚠️  Large dump captured late at night — likely left open overnight.\n")
			fmt.Fprintf(b, "     Best practice: always compact before breaks >1 hour.\n")
		}
	}

	if t.GrowthRatio > 0 {
		fmt.Fprintf(b, "\n  Growth ratio: %.1fx (first dump → this dump)\n", t.GrowthRatio)
	}
}

func (r *Renderer) interactionSection(b *strings.Builder, rep *analyze.Report) {
	r.section(b, "INTERACTION (corrected)")
	it := rep.Interaction

	fmt.Fprintf(b, "\n  Raw 'user' records:     %5d\n", it.RawUserRecords)
	fmt.Fprintf(b, "  Actual user messages:   %5d  %s\n",
		it.RealUserMessages, glyph(r.opts.Thresholds.RealUserMessages, float64(it.RealUserMessages)))
	if it.RawUserRecords > 0 {
		fmt.Fprintf(b, "  Noise (tool results):     %.0f%%\n", it.NoisePercent)
	}
	if rep.Time.HasTimeline && rep.Time.ActiveHours > 0 {
		fmt.Fprintf(b, "  Messages per active hour: %.1f\n", it.MessagesPerActiveHour)
	}

	if it.Categories.Total() > 0 {
		fmt.Fprintf(b, "\n  Message breakdown:\n")
		fmt.Fprintf(b, "    Guidance:    %3d   %s\n",
			it.Categories.Guidance, r.paint(colorGray, "(directing Claude's work)"))
		fmt.Fprintf(b, "    Approval:    %3d   %s\n",
			it.Categories.Approval, r.paint(colorGray, "(confirming / encouraging)"))
		fmt.Fprintf(b, "    Corrections: %3d   %s\n",
			it.Categories.Correction, r.paint(colorGray, "(disagreeing with approach)"))
		fmt.Fprintf(b, "    Questions:   %3d\n", it.Categories.Question)
		fmt.Fprintf(b, "    Other:       %3d\n", it.Categories.Other)
	}
}

func (r *Renderer) errorSection(b *strings.Builder, rep *analyze.Report) {
	r.section(b, "ERRORS (corrected)")
	e := rep.Errors
	t := r.opts.Thresholds

	fmt.Fprintf(b, "\n  Tool execution errors:  %5d  %s\n",
		e.ToolErrors, glyph(t.ToolErrors, float64(e.ToolErrors)))
	fmt.Fprintf(b, "  User corrections:       %5d  %s\n",
		e.UserCorrections, glyph(t.UserCorrections, float64(e.UserCorrections)))
	if e.CorrectionsAfterError > 0 {
		fmt.Fprintf(b, "    after tool failures:  %5d\n", e.CorrectionsAfterError)
	}
	fmt.Fprintf(b, "  User clarifications:    %5d\n", e.Clarifications)

	if rep.Time.HasTimeline && rep.Time.ActiveHours > 0 {
		fmt.Fprintf(b, "\n  Tool errors per active hour: %.1f  %s\n",
			e.ErrorsPerActiveHour, glyph(t.ErrorsPerHour, e.ErrorsPerActiveHour))
	}

	if rows := breakdownRows(e.Breakdown); len(rows) > 0 {
		fmt.Fprintf(b, "\n  Error breakdown:\n")
		for _, row := range rows {
			fmt.Fprintf(b, "    %3dx %s\n", row.count, row.name)
		}
	}

	switch {
	case e.ToolErrors > 0 && e.ToolErrors > e.UserCorrections*3:
		fmt.Fprintf(b, "\n%s\n%s\n",
			r.paint(colorGray, "  The apparent 'error rate' is dominated by tool failures, not the user"),
			r.paint(colorGray, "  saying 'wrong approach'. This indicates an environment/config issue."))
	case e.UserCorrections > e.ToolErrors:
		fmt.Fprintf(b, "\n%s\n",
			r.paint(colorGray, "  User corrections outnumber tool errors — possible communication gap."))
	}
}

func (r *Renderer) behavioralSection(b *strings.Builder, rep *analyze.Report) {
	r.section(b, "BEHAVIORAL SIGNALS")
	bh := rep.Behavioral

	fmt.Fprintf(b, "\n  Direction changes:    %3d  %s\n",
		bh.DirectionChanges, glyph(r.opts.Thresholds.DirectionChanges, float64(bh.DirectionChanges)))
	fmt.Fprintf(b, "  Frustration markers:  %3d\n", bh.FrustrationMarkers)
	fmt.Fprintf(b, "  Tool calls:           %3d\n", bh.ToolCalls)
}

func (r *Renderer) workFocusSection(b *strings.Builder, rep *analyze.Report) {
	r.section(b, "WORK FOCUS")
	wf := rep.WorkFocus

	if len(wf.FilesModified) > 0 {
		fmt.Fprintf(b, "\n  Files created/modified: %d\n", len(wf.FilesModified))
		files := wf.FilesModified
		if len(files) > 10 {
			files = files[:10]
		}
		for _, f := range files {
			fmt.Fprintf(b, "    %dx %s\n", f.Count, f.Path)
		}
	}

	if len(wf.ToolUsage) > 0 {
		fmt.Fprintf(b, "\n  Top tools used:\n")
		tools := wf.ToolUsage
		if len(tools) > 8 {
			tools = tools[:8]
		}
		for _, t := range tools {
			fmt.Fprintf(b, "    %4dx %s\n", t.Count, t.Name)
		}
	}

	fmt.Fprintf(b, "\n  Transcript: %s lines (%dKB)  %s\n",
		comma(wf.TranscriptLines), wf.TranscriptKB,
		glyph(r.opts.Thresholds.TranscriptLines, float64(wf.TranscriptLines)))
	if wf.EstimatedTokens > 0 {
		fmt.Fprintf(b, "  Estimated context: ~%s tokens\n", comma(wf.EstimatedTokens))
	}

	cov := rep.Coverage
	if cov.SkippedRecords > 0 || cov.UntimedEvents > 0 {
		fmt.Fprintf(b, "  Parse coverage: %d records skipped, %d events untimed\n",
			cov.SkippedRecords, cov.UntimedEvents)
	}
	if cov.DefaultedMessages > 0 || cov.DefaultedErrors > 0 {
		fmt.Fprintf(b, "  Rule coverage: %d messages, %d errors fell to the default bucket\n",
			cov.DefaultedMessages, cov.DefaultedErrors)
	}
}

func (r *Renderer) verdictSection(b *strings.Builder, rep *analyze.Report) {
	r.section(b, "VERDICT")
	v := rep.Verdict

	switch v.Overall {
	case analyze.BucketCritical:
		fmt.Fprintf(b, "\n%s\n", r.paint(colorRed, "❌ CRITICAL"))
	case analyze.BucketWarning:
		fmt.Fprintf(b, "\n%s\n", r.paint(colorYellow, "⚠️  WARNING"))
	default:
		fmt.Fprintf(b, "\n%s\n",
			r.paint(colorGreen, "✅ HEALTHY — Session metrics are within normal ranges."))
		if rep.Time.HasTimeline && rep.Time.ActiveHours > 0 {
			fmt.Fprintf(b, "\n  %d real user messages over %.1fh of active work.\n",
				rep.Interaction.RealUserMessages, rep.Time.ActiveHours)
		} else {
			fmt.Fprintf(b, "\n  %d real user messages.\n", rep.Interaction.RealUserMessages)
		}
		if rep.Errors.ToolErrors == 0 && rep.Errors.UserCorrections == 0 {
			fmt.Fprintf(b, "  No tool errors or user corrections — clean session.\n")
		}
	}

	for _, p := range v.Problems {
		fmt.Fprintf(b, "  - %s\n", p)
	}

	if len(v.Recommendations) > 0 {
		fmt.Fprintf(b, "\n  Recommendations:\n")
		for _, rec := range v.Recommendations {
			fmt.Fprintf(b, "    → %s\n", rec)
		}
	}

	fmt.Fprintf(b, "\n")
}

type breakdownRow struct {
	name  string
	count int
}

// breakdownRows returns the non-zero error subtypes, largest first. Ties keep
// the fixed subtype order so output stays deterministic.
func breakdownRows(bd analyze.ErrorBreakdown) []breakdownRow {
	all := []breakdownRow{
		{"Database", bd.Database},
		{"File Not Found", bd.FileNotFound},
		{"Permission", bd.Permission},
		{"Timeout", bd.Timeout},
		{"Other Environment", bd.OtherEnvironment},
	}
	rows := make([]breakdownRow, 0, len(all))
	for _, row := range all {
		if row.count > 0 {
			rows = append(rows, row)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].count > rows[j].count })
	return rows
}

// comma formats n with thousands separators.
func comma(n int) string {
	if n < 0 {
		return "-" + comma(-n)
	}
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
