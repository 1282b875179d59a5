// Package transcript parses the line-oriented conversation record format
// produced by context dumps. Each line is one JSON record with a "type" tag;
// records are decoded into a closed set of event variants so downstream
// analysis never dispatches on raw field names.
package transcript

import (
	"time"
)

// Kind identifies the variant of a parsed Event.
type Kind string

const (
	// KindUser is a human-authored text message.
	KindUser Kind = "user"
	// KindAssistant is assistant-authored text (tool invocations excluded).
	KindAssistant Kind = "assistant"
	// KindToolUse is a tool invocation with its input parameters.
	KindToolUse Kind = "tool_use"
	// KindToolResult is the output payload of a tool invocation.
	KindToolResult Kind = "tool_result"
	// KindUnknown is any record with an unrecognized type tag. Unknown events
	// are retained but excluded from all metric counts.
	KindUnknown Kind = "unknown"
)

// Event is one parsed conversation record. Events are immutable once parsed;
// their order is the order of appearance in the source dump(s).
type Event struct {
	// Timestamp is the record's own timestamp. The zero value means the
	// record carried none; such events are excluded from gap computation
	// but still classified.
	Timestamp time.Time

	Kind Kind

	// Text is the payload used for classification: message text for
	// user/assistant, serialized input for tool_use, result payload for
	// tool_result.
	Text string

	// ToolName and ToolUseID are set for tool_use and, when the record
	// carries them, tool_result events.
	ToolName  string
	ToolUseID string

	// IsError marks a tool_result whose record declared an error flag.
	IsError bool

	// IsMeta marks a user record that is tooling chatter rather than a
	// human message: either flagged as meta by the capture side or
	// consisting entirely of IDE/system wrapper tags. Meta events are
	// excluded from message-category counts.
	IsMeta bool

	// SessionID is the full session identifier when the record carried one.
	SessionID string

	// Dump is the index of the source dump within the session, in dump
	// timestamp order. Record is the ordinal of the source line within that
	// dump; together they identify the record an event came from, which can
	// produce several events.
	Dump   int
	Record int

	// FromUserRecord marks events decoded out of a user-typed record,
	// including tool results the transport wrapped in user turns.
	FromUserRecord bool
}

// HasTimestamp reports whether the record carried a parseable timestamp.
func (e Event) HasTimestamp() bool {
	return !e.Timestamp.IsZero()
}

// Countable reports whether the event participates in metric counts at all.
func (e Event) Countable() bool {
	return e.Kind != KindUnknown
}

// IsUserText reports whether the event is a genuine human text message,
// i.e. a user event that is neither a wrapped tool result (those parse as
// KindToolResult) nor capture-side chatter.
func (e Event) IsUserText() bool {
	return e.Kind == KindUser && !e.IsMeta
}
