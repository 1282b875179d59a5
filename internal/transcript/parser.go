package transcript

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// maxLineSize bounds a single transcript record. Tool results can embed whole
// files, so the default bufio limit is far too small.
const maxLineSize = 8 * 1024 * 1024

// Stats summarizes one parse pass. Counts are per-dump and additive across
// dumps of the same session.
type Stats struct {
	// Lines is the number of non-blank lines seen.
	Lines int
	// Events is the number of events produced. One line can produce more
	// than one event (an assistant turn with tool calls) or none.
	Events int
	// RawUserRecords counts records with a user type tag before wrapped
	// tool results and capture chatter are separated out.
	RawUserRecords int
	// Skipped counts lines that produced no event: malformed JSON, empty
	// payloads, or records truncated mid-line.
	Skipped int
	// Untimed counts events whose record carried no parseable timestamp.
	Untimed int
}

// Merge adds other's counts into s.
func (s *Stats) Merge(other Stats) {
	s.Lines += other.Lines
	s.Events += other.Events
	s.RawUserRecords += other.RawUserRecords
	s.Skipped += other.Skipped
	s.Untimed += other.Untimed
}

// envelope is the outer layer of every record. Records written by different
// capture paths flatten fields differently, so aliases for tool name, input,
// and result payload are all declared here and reconciled during parsing.
type envelope struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	SessionID string          `json:"sessionId"`
	IsMeta    bool            `json:"isMeta"`
	Message   json.RawMessage `json:"message"`

	// Flattened tool_use fields.
	Tool       string          `json:"tool"`
	Name       string          `json:"name"`
	Input      json.RawMessage `json:"input"`
	Parameters json.RawMessage `json:"parameters"`

	// Flattened tool_result fields.
	Content   json.RawMessage `json:"content"`
	Result    json.RawMessage `json:"result"`
	ToolUseID string          `json:"tool_use_id"`
	IsError   bool            `json:"is_error"`
}

// message is the nested payload of user and assistant records.
type message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// contentPart is one block of a structured message content array.
type contentPart struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// Parser decodes dump records into events. The zero value is not usable;
// construct with NewParser.
type Parser struct {
	// maxResultLines bounds how many lines of a tool result payload are
	// retained on the event. Zero keeps everything.
	maxResultLines int
}

// NewParser returns a Parser that clips tool result payloads to
// maxResultLines lines. Pass 0 to retain full payloads.
func NewParser(maxResultLines int) *Parser {
	return &Parser{maxResultLines: maxResultLines}
}

// ParseFile reads one dump file and returns its events in file order.
// Each call re-reads the file from scratch.
func (p *Parser) ParseFile(path string, dump int) ([]Event, Stats, error) {
	file, err := os.Open(path) // #nosec G304 -- path comes from dump discovery under the session root
	if err != nil {
		return nil, Stats{}, fmt.Errorf("open dump: %w", err)
	}
	defer file.Close()

	events, stats, err := p.Parse(file, dump)
	if err != nil {
		return nil, stats, fmt.Errorf("parse %s: %w", path, err)
	}
	return events, stats, nil
}

// Parse decodes records from r and returns events in record order. Malformed
// lines are counted and skipped, never fatal; the only error returned is a
// read failure from r itself.
func (p *Parser) Parse(r io.Reader, dump int) ([]Event, Stats, error) {
	var (
		events []Event
		stats  Stats
	)

	scanner := bufio.NewScanner(r)
	// Increase buffer size for large tool results
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		record := stats.Lines
		stats.Lines++

		parsed, fromUser := p.parseLine([]byte(line), dump)
		if len(parsed) == 0 {
			stats.Skipped++
			continue
		}
		if fromUser {
			stats.RawUserRecords++
		}
		for i := range parsed {
			parsed[i].Record = record
			parsed[i].FromUserRecord = fromUser
			if !parsed[i].HasTimestamp() {
				stats.Untimed++
			}
		}
		events = append(events, parsed...)
		stats.Events += len(parsed)
	}
	if err := scanner.Err(); err != nil {
		return events, stats, fmt.Errorf("scan records: %w", err)
	}

	return events, stats, nil
}

// parseLine decodes one record into zero or more events. The second return
// reports whether the record carried a user type tag, counted before wrapped
// tool results are separated out.
func (p *Parser) parseLine(line []byte, dump int) ([]Event, bool) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		log.Debug().Err(err).Msg("Skipping malformed record")
		return nil, false
	}

	ts := parseTimestamp(env.Timestamp)
	base := Event{
		Timestamp: ts,
		SessionID: env.SessionID,
		Dump:      dump,
	}

	switch env.Type {
	case "user":
		return p.parseUser(env, base), true
	case "assistant":
		return p.parseAssistant(env, base), false
	case "tool_use":
		return p.parseFlatToolUse(env, base), false
	case "tool_result":
		return p.parseFlatToolResult(env, base), false
	case "":
		log.Debug().Msg("Skipping record without type tag")
		return nil, false
	default:
		base.Kind = KindUnknown
		base.Text = env.Type
		return []Event{base}, false
	}
}

// parseUser handles user-typed records. A user record whose content holds
// tool_result blocks is the transport echoing tool output back into the
// conversation; those become tool_result events, never user messages.
func (p *Parser) parseUser(env envelope, base Event) []Event {
	var msg message
	if len(env.Message) > 0 {
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			log.Debug().Err(err).Msg("Skipping user record with malformed message")
			return nil
		}
	}

	// String content is always genuine typed text.
	var text string
	if plain, ok := decodeStringContent(msg.Content); ok {
		text = plain
	} else {
		parts, ok := decodeContentParts(msg.Content)
		if !ok {
			log.Debug().Msg("Skipping user record with undecodable content")
			return nil
		}

		var results []Event
		var texts []string
		for _, part := range parts {
			switch part.Type {
			case "tool_result":
				ev := base
				ev.Kind = KindToolResult
				ev.ToolUseID = part.ToolUseID
				ev.IsError = part.IsError
				ev.Text = p.clipResult(resultText(part.Content))
				results = append(results, ev)
			case "text":
				texts = append(texts, part.Text)
			}
		}
		if len(results) > 0 {
			// Mixed records are tool transport; any text riding along is
			// not a fresh human turn.
			return results
		}
		text = strings.Join(texts, "\n")
	}

	ev := base
	ev.Kind = KindUser
	clean := CleanUserText(text)
	if env.IsMeta || (clean == "" && strings.TrimSpace(text) != "") {
		ev.IsMeta = true
		ev.Text = strings.TrimSpace(text)
	} else {
		ev.Text = clean
	}
	if strings.TrimSpace(ev.Text) == "" {
		log.Debug().Msg("Skipping empty user record")
		return nil
	}
	return []Event{ev}
}

// parseAssistant handles assistant-typed records: one assistant event for the
// concatenated text blocks plus one tool_use event per embedded invocation.
func (p *Parser) parseAssistant(env envelope, base Event) []Event {
	var msg message
	if len(env.Message) > 0 {
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			log.Debug().Err(err).Msg("Skipping assistant record with malformed message")
			return nil
		}
	}

	var out []Event

	if plain, ok := decodeStringContent(msg.Content); ok {
		if strings.TrimSpace(plain) != "" {
			ev := base
			ev.Kind = KindAssistant
			ev.Text = plain
			out = append(out, ev)
		}
		return out
	}

	parts, ok := decodeContentParts(msg.Content)
	if !ok {
		log.Debug().Msg("Skipping assistant record with undecodable content")
		return nil
	}

	var texts []string
	for _, part := range parts {
		switch part.Type {
		case "text":
			texts = append(texts, part.Text)
		case "tool_use":
			ev := base
			ev.Kind = KindToolUse
			ev.ToolName = part.Name
			ev.ToolUseID = part.ID
			ev.Text = compactJSON(part.Input)
			out = append(out, ev)
		}
	}
	if text := strings.TrimSpace(strings.Join(texts, "\n")); text != "" {
		ev := base
		ev.Kind = KindAssistant
		ev.Text = text
		// Keep the text event ahead of the tool calls it precedes.
		out = append([]Event{ev}, out...)
	}
	return out
}

// parseFlatToolUse handles records that carry the invocation at the top
// level instead of inside an assistant message.
func (p *Parser) parseFlatToolUse(env envelope, base Event) []Event {
	ev := base
	ev.Kind = KindToolUse
	ev.ToolName = env.Tool
	if ev.ToolName == "" {
		ev.ToolName = env.Name
	}
	input := env.Input
	if len(input) == 0 {
		input = env.Parameters
	}
	ev.Text = compactJSON(input)
	return []Event{ev}
}

// parseFlatToolResult handles records that carry the result at the top level.
func (p *Parser) parseFlatToolResult(env envelope, base Event) []Event {
	ev := base
	ev.Kind = KindToolResult
	ev.ToolName = env.Tool
	if ev.ToolName == "" {
		ev.ToolName = env.Name
	}
	ev.ToolUseID = env.ToolUseID
	ev.IsError = env.IsError
	payload := env.Content
	if len(payload) == 0 {
		payload = env.Result
	}
	ev.Text = p.clipResult(resultText(payload))
	return []Event{ev}
}

// clipResult bounds a result payload to the configured line limit.
func (p *Parser) clipResult(text string) string {
	if p.maxResultLines <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= p.maxResultLines {
		return text
	}
	clipped := strings.Join(lines[:p.maxResultLines], "\n")
	return clipped + fmt.Sprintf("\n... [%d more lines clipped]", len(lines)-p.maxResultLines)
}

// decodeStringContent returns the content as plain text when it is a JSON
// string rather than a block array.
func decodeStringContent(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// decodeContentParts returns the content as a block array.
func decodeContentParts(raw json.RawMessage) ([]contentPart, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, false
	}
	return parts, true
}

// resultText extracts readable text from a tool_result payload, which can be
// a string, a block array, or arbitrary JSON.
func resultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	if s, ok := decodeStringContent(raw); ok {
		return s
	}
	if parts, ok := decodeContentParts(raw); ok {
		var texts []string
		for _, part := range parts {
			if part.Type == "text" && part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
		return strings.Join(texts, "\n")
	}
	return string(raw)
}

// compactJSON renders a raw JSON value as a single-line string for matching.
func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	out, err := json.Marshal(json.RawMessage(raw))
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// parseTimestamp accepts the two timestamp layouts dumps are known to carry.
// An empty or unrecognized value yields the zero time.
func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	log.Debug().Str("timestamp", value).Msg("Unparseable record timestamp")
	return time.Time{}
}
