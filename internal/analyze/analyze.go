package analyze

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"

	"github.com/roip/claude-reflections/internal/classify"
	"github.com/roip/claude-reflections/internal/dump"
	"github.com/roip/claude-reflections/internal/timeline"
	"github.com/roip/claude-reflections/internal/transcript"
)

const (
	// DefaultMaxResultLines bounds the tool result payload kept per event.
	DefaultMaxResultLines = 100
	// UnlimitedResultLines disables the bound.
	UnlimitedResultLines = -1
	// DefaultLookback is the direction-change window in user messages.
	DefaultLookback = 5
	// overnightSizeKB is the dump size above which a late-night capture is
	// assumed to have been left open overnight.
	overnightSizeKB = 500
)

// Options configure one Analyzer. Zero values select the defaults.
type Options struct {
	IdleGap        time.Duration
	MaxResultLines int
	Lookback       int
	RulesPath      string
	Thresholds     Thresholds
	// Resolver picks the dump when no explicit path is given; nil uses
	// modification-time resolution.
	Resolver dump.Resolver
}

// Analyzer runs the full pipeline: locate dumps, parse records, reconstruct
// the timeline, classify events, and build the corrected report.
type Analyzer struct {
	opts       Options
	parser     *transcript.Parser
	classifier *classify.Classifier
	codec      tokenizer.Codec
}

// New builds an Analyzer with compiled classification rules.
func New(opts Options) (*Analyzer, error) {
	if opts.IdleGap <= 0 {
		opts.IdleGap = timeline.DefaultIdleGap
	}
	if opts.MaxResultLines == 0 {
		opts.MaxResultLines = DefaultMaxResultLines
	}
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}

	rules, err := classify.LoadRules(opts.RulesPath)
	if err != nil {
		return nil, err
	}
	classifier, err := classify.NewClassifier(rules)
	if err != nil {
		return nil, fmt.Errorf("compile rules: %w", err)
	}

	maxLines := opts.MaxResultLines
	if maxLines < 0 {
		maxLines = 0
	}

	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		log.Warn().Err(err).Msg("Tokenizer unavailable, skipping token estimates")
		codec = nil
	}

	return &Analyzer{
		opts:       opts,
		parser:     transcript.NewParser(maxLines),
		classifier: classifier,
		codec:      codec,
	}, nil
}

// AnalyzePath analyzes the dump at path (a conversation file or dump
// directory) together with its sibling dumps.
func (a *Analyzer) AnalyzePath(path string) (*Report, error) {
	session, err := dump.Locate(path)
	if err != nil {
		return nil, err
	}
	return a.analyzeSession(session)
}

// AnalyzeLatest analyzes the most recent session under root.
func (a *Analyzer) AnalyzeLatest(root string) (*Report, error) {
	session, err := dump.LocateLatest(root, a.opts.Resolver)
	if err != nil {
		return nil, err
	}
	return a.analyzeSession(session)
}

// analyzeSession runs the pipeline over one located session.
func (a *Analyzer) analyzeSession(session *dump.Session) (*Report, error) {
	var (
		all     []transcript.Event
		total   transcript.Stats
		perDump = make([]transcript.Stats, len(session.Dumps))
	)
	for i, d := range session.Dumps {
		events, stats, err := a.parser.ParseFile(d.File, i)
		if err != nil {
			log.Warn().Err(err).Str("file", d.File).Msg("Skipping unreadable dump")
			continue
		}
		log.Debug().
			Str("file", d.File).
			Int("lines", stats.Lines).
			Int("events", stats.Events).
			Int("raw_user_records", stats.RawUserRecords).
			Int("skipped", stats.Skipped).
			Msg("Parsed dump")
		all = append(all, events...)
		total.Merge(stats)
		perDump[i] = stats
	}
	if total.Events == 0 {
		return nil, fmt.Errorf("%w: no parseable records across %d dump(s)",
			dump.ErrNoDump, len(session.Dumps))
	}

	for _, ev := range all {
		if ev.SessionID != "" && !session.MatchesSession(ev.SessionID) {
			log.Warn().
				Str("record_session", ev.SessionID).
				Str("expected_prefix", session.Prefix).
				Msg("Record session ID does not match dump directory")
			break
		}
	}

	merged := timeline.Merge(all)
	tl := timeline.Detect(merged, a.opts.IdleGap)
	walk := walkEvents(merged, a.classifier, a.opts.Lookback)

	latest := session.Dumps[len(session.Dumps)-1]
	latestStats := perDump[len(perDump)-1]

	report := &Report{
		Session: SessionInfo{
			ID:         sessionLabel(session),
			Dumps:      len(session.Dumps),
			File:       filepath.Base(latest.File),
			SizeKB:     latest.SizeKB,
			Lines:      latestStats.Lines,
			CapturedAt: latest.Captured,
		},
	}

	report.Time = a.timeMetrics(session, tl, latest)
	report.Interaction = interactionMetrics(walk, report.Time)
	report.Errors = errorMetrics(walk, report.Time)
	report.Behavioral = BehavioralMetrics{
		DirectionChanges:   walk.directionChanges,
		FrustrationMarkers: walk.frustration,
		ToolCalls:          walk.toolCalls,
	}
	report.WorkFocus = WorkFocusMetrics{
		FilesModified:   sortedFiles(walk.files),
		ToolUsage:       sortedTools(walk.tools),
		TranscriptLines: latestStats.Lines,
		TranscriptKB:    latest.SizeKB,
		EstimatedTokens: a.estimateTokens(merged),
	}
	report.Coverage = Coverage{
		SkippedRecords:    total.Skipped,
		UntimedEvents:     total.Untimed,
		DefaultedMessages: walk.categories.Other,
		DefaultedErrors:   walk.breakdown.OtherEnvironment,
	}
	report.Verdict = buildVerdict(report, a.opts.Thresholds)

	log.Info().
		Int("skipped_records", total.Skipped).
		Int("defaulted_messages", walk.categories.Other).
		Int("defaulted_errors", walk.breakdown.OtherEnvironment).
		Msg("Classification coverage")

	return report, nil
}

// timeMetrics fills the corrected time accounting, falling back to the
// overnight heuristic when no record carried a timestamp.
func (a *Analyzer) timeMetrics(session *dump.Session, tl timeline.Timeline, latest dump.Dump) TimeMetrics {
	tm := TimeMetrics{HasTimeline: tl.HasData()}

	if tm.HasTimeline {
		tm.Start = tl.Start
		tm.End = tl.End
		tm.WallClockHours = tl.Span.Hours()
		tm.ActiveHours = tl.Active.Hours()
		tm.IdleHours = tl.Idle.Hours()
		for _, g := range tl.Gaps {
			tm.Gaps = append(tm.Gaps, GapInfo{
				Start: g.Start,
				End:   g.End,
				Hours: g.Duration().Hours(),
				Kind:  string(g.Kind),
			})
		}
	} else if !latest.Captured.IsZero() {
		hour := latest.Captured.Hour()
		if (hour >= 20 || hour <= 5) && latest.SizeKB > overnightSizeKB {
			tm.OvernightHeuristic = true
		}
	}

	if len(session.Dumps) >= 2 && session.Dumps[0].SizeKB > 0 {
		tm.GrowthRatio = float64(latest.SizeKB) / float64(session.Dumps[0].SizeKB)
	}

	return tm
}

// interactionMetrics derives the corrected message accounting.
func interactionMetrics(w walkResult, tm TimeMetrics) InteractionMetrics {
	im := InteractionMetrics{
		RawUserRecords:   w.rawUserRecords,
		RealUserMessages: w.categories.Total(),
		Categories:       w.categories,
	}
	if im.RawUserRecords > 0 {
		im.NoisePercent = (1 - float64(im.RealUserMessages)/float64(im.RawUserRecords)) * 100
	}
	if tm.HasTimeline && tm.ActiveHours > 0 {
		im.MessagesPerActiveHour = float64(im.RealUserMessages) / tm.ActiveHours
	}
	return im
}

// errorMetrics derives the corrected error accounting.
func errorMetrics(w walkResult, tm TimeMetrics) ErrorMetrics {
	em := ErrorMetrics{
		ToolErrors:            w.toolErrors,
		UserCorrections:       w.categories.Correction,
		CorrectionsAfterError: w.correctionsAfterError,
		Clarifications:        w.clarifications,
		Breakdown:             w.breakdown,
	}
	if tm.HasTimeline && tm.ActiveHours > 0 {
		em.ErrorsPerActiveHour = float64(em.ToolErrors) / tm.ActiveHours
	}
	return em
}

// estimateTokens sums the token counts of all event payloads.
func (a *Analyzer) estimateTokens(events []transcript.Event) int {
	if a.codec == nil {
		return 0
	}
	tokens := 0
	for _, ev := range events {
		if ev.Text == "" {
			continue
		}
		ids, _, err := a.codec.Encode(ev.Text)
		if err != nil {
			continue
		}
		tokens += len(ids)
	}
	return tokens
}

// sessionLabel names the session for the report header.
func sessionLabel(session *dump.Session) string {
	if session.Prefix == "" {
		return "unknown"
	}
	return session.Prefix
}
