package transcript

import (
	"regexp"
	"strings"
)

var (
	// ideTagRegex matches <ide_opened_file>...</ide_opened_file> notifications
	// the IDE integration injects into user turns.
	ideTagRegex = regexp.MustCompile(`(?s)<ide_opened_file>.*?</ide_opened_file>`)

	// reminderTagRegex matches <system-reminder>...</system-reminder> blocks.
	reminderTagRegex = regexp.MustCompile(`(?s)<system-reminder>.*?</system-reminder>`)

	// commandTagRegex matches the slash-command wrapper tags recorded when a
	// user turn was a command invocation rather than typed text.
	commandTagRegex = regexp.MustCompile(`(?s)<command-name>.*?</command-name>|<command-message>.*?</command-message>|<command-args>.*?</command-args>|<local-command-stdout>.*?</local-command-stdout>`)
)

// StripWrapperTags removes all IDE, reminder, and command wrapper content
// from text.
func StripWrapperTags(text string) string {
	text = ideTagRegex.ReplaceAllString(text, "")
	text = reminderTagRegex.ReplaceAllString(text, "")
	text = commandTagRegex.ReplaceAllString(text, "")
	return text
}

// IsEntirelyWrapper checks if the text consists only of wrapper tags, i.e.
// nothing a human actually typed.
func IsEntirelyWrapper(text string) bool {
	stripped := StripWrapperTags(text)
	return strings.TrimSpace(stripped) == ""
}

// CleanUserText performs full wrapper scrubbing on a user message.
// This is the main function to use before classifying user content.
func CleanUserText(text string) string {
	text = StripWrapperTags(text)
	return strings.TrimSpace(text)
}
