// Package classify assigns categories to user messages and tool failures
// using ordered pattern rules. Rules are data-driven: the default set is
// embedded, and a YAML file can override any section without code changes.
package classify

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// MessageCategory is the classification of one genuine user message.
type MessageCategory string

const (
	CategoryGuidance   MessageCategory = "guidance"
	CategoryApproval   MessageCategory = "approval"
	CategoryCorrection MessageCategory = "correction"
	CategoryQuestion   MessageCategory = "question"
	// CategoryOther is the default bucket when no rule matches.
	CategoryOther MessageCategory = "other-text"
)

// ErrorCategory is the subtype of one detected tool failure.
type ErrorCategory string

const (
	ErrorDatabase     ErrorCategory = "database"
	ErrorFileNotFound ErrorCategory = "file-not-found"
	ErrorPermission   ErrorCategory = "permission"
	ErrorTimeout      ErrorCategory = "timeout"
	// ErrorOtherEnvironment is the default bucket when a failure is detected
	// but no subtype rule matches.
	ErrorOtherEnvironment ErrorCategory = "other-environment"
)

// CategoryRule is one ordered message-classification rule. A rule matches
// when any of its matchers hit, unless a reject pattern hits first.
type CategoryRule struct {
	Name string `yaml:"name"`
	// Keywords match on word boundaries.
	Keywords []string `yaml:"keywords,omitempty"`
	// Phrases match as plain substrings.
	Phrases []string `yaml:"phrases,omitempty"`
	// Patterns are regular expressions over the normalized text.
	Patterns []string `yaml:"patterns,omitempty"`
	// Prefixes match the first word of the message.
	Prefixes []string `yaml:"prefixes,omitempty"`
	// Suffixes match the trimmed end of the message.
	Suffixes []string `yaml:"suffixes,omitempty"`
	// Reject patterns veto the rule even when a matcher hits.
	Reject []string `yaml:"reject,omitempty"`
}

// ErrorRule is one ordered failure-subtype rule.
type ErrorRule struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

// Rules is the full classification rule set.
type Rules struct {
	Categories []CategoryRule `yaml:"categories"`
	Errors     []ErrorRule    `yaml:"errors"`
	// FailureIndicators signal that an unflagged tool result still failed.
	FailureIndicators []string `yaml:"failure_indicators"`
	// Frustration is the lexicon of repeated-problem markers.
	Frustration []string `yaml:"frustration"`
	// Clarification patterns mark messages that restate intent.
	Clarification []string `yaml:"clarification"`
}

// DefaultRules returns the embedded rule set.
func DefaultRules() Rules {
	var rules Rules
	if err := yaml.Unmarshal(defaultRulesYAML, &rules); err != nil {
		panic("corrupt embedded rules: " + err.Error())
	}
	return rules
}

// LoadRules reads a rule override file. An empty path or a missing file
// yields the embedded defaults (not an error); sections present in the file
// replace the corresponding default section, absent sections are kept.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is an operator-supplied rules file
	if err != nil {
		if os.IsNotExist(err) {
			return rules, nil
		}
		return Rules{}, fmt.Errorf("read rules: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse rules %s: %w", path, err)
	}
	return rules, nil
}
