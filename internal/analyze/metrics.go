package analyze

import (
	"regexp"
	"sort"
	"strings"

	"github.com/roip/claude-reflections/internal/classify"
	"github.com/roip/claude-reflections/internal/transcript"
)

// fileMarkerRegex matches the success marker emitted into tool results after
// a file write.
var fileMarkerRegex = regexp.MustCompile(`File (?:created|written|modified) successfully at: ([^\n]+)`)

// walkResult carries every count produced by one ordered pass over the
// merged events.
type walkResult struct {
	rawUserRecords        int
	categories            CategoryCounts
	breakdown             ErrorBreakdown
	toolErrors            int
	correctionsAfterError int
	clarifications        int
	frustration           int
	directionChanges      int
	toolCalls             int
	files                 map[string]int
	tools                 map[string]int
}

// recordKey identifies one source record across the merged event stream.
type recordKey struct {
	dump   int
	record int
}

// walkEvents classifies the merged event stream in order. Order matters
// twice: a correction only pairs with a tool failure that precedes it, and a
// direction change needs another correction within the previous lookback
// user messages.
func walkEvents(events []transcript.Event, cls *classify.Classifier, lookback int) walkResult {
	w := walkResult{
		files: make(map[string]int),
		tools: make(map[string]int),
	}

	seenRecords := make(map[recordKey]bool)
	var correctionOrdinals []int
	userOrdinal := 0
	failureSinceUser := false

	for _, ev := range events {
		if ev.FromUserRecord {
			key := recordKey{dump: ev.Dump, record: ev.Record}
			if !seenRecords[key] {
				seenRecords[key] = true
				w.rawUserRecords++
			}
		}

		switch ev.Kind {
		case transcript.KindToolUse:
			w.toolCalls++
			if ev.ToolName != "" {
				w.tools[ev.ToolName]++
			}

		case transcript.KindToolResult:
			if category, failed := cls.Failure(ev.Text, ev.IsError); failed {
				w.toolErrors++
				w.breakdown.bump(category)
				failureSinceUser = true
			}
			for _, match := range fileMarkerRegex.FindAllStringSubmatch(ev.Text, -1) {
				if path := strings.TrimSpace(match[1]); path != "" {
					w.files[path]++
				}
			}

		case transcript.KindUser:
			if ev.IsMeta {
				break
			}
			userOrdinal++
			category := cls.Message(ev.Text)
			w.categories.bump(category)
			if cls.IsClarification(ev.Text) {
				w.clarifications++
			}
			if cls.IsFrustration(ev.Text) {
				w.frustration++
			}
			if category == classify.CategoryCorrection {
				if failureSinceUser {
					w.correctionsAfterError++
				}
				if n := len(correctionOrdinals); n > 0 && userOrdinal-correctionOrdinals[n-1] <= lookback {
					w.directionChanges++
				}
				correctionOrdinals = append(correctionOrdinals, userOrdinal)
			}
			failureSinceUser = false
		}
	}

	return w
}

// bump adds one message to its category bucket.
func (c *CategoryCounts) bump(category classify.MessageCategory) {
	switch category {
	case classify.CategoryGuidance:
		c.Guidance++
	case classify.CategoryApproval:
		c.Approval++
	case classify.CategoryCorrection:
		c.Correction++
	case classify.CategoryQuestion:
		c.Question++
	default:
		c.Other++
	}
}

// bump adds one failure to its subtype bucket.
func (e *ErrorBreakdown) bump(category classify.ErrorCategory) {
	switch category {
	case classify.ErrorDatabase:
		e.Database++
	case classify.ErrorFileNotFound:
		e.FileNotFound++
	case classify.ErrorPermission:
		e.Permission++
	case classify.ErrorTimeout:
		e.Timeout++
	default:
		e.OtherEnvironment++
	}
}

// sortedFiles orders files by touch count descending, then path.
func sortedFiles(files map[string]int) []FileCount {
	out := make([]FileCount, 0, len(files))
	for path, count := range files {
		out = append(out, FileCount{Path: path, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// sortedTools orders tools by invocation count descending, then name.
func sortedTools(tools map[string]int) []ToolCount {
	out := make([]ToolCount, 0, len(tools))
	for name, count := range tools {
		out = append(out, ToolCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
