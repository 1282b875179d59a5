package classify

import (
	"fmt"
	"regexp"
	"strings"
)

var knownCategories = map[string]MessageCategory{
	string(CategoryGuidance):   CategoryGuidance,
	string(CategoryApproval):   CategoryApproval,
	string(CategoryCorrection): CategoryCorrection,
	string(CategoryQuestion):   CategoryQuestion,
	string(CategoryOther):      CategoryOther,
}

var knownErrorCategories = map[string]ErrorCategory{
	string(ErrorDatabase):         ErrorDatabase,
	string(ErrorFileNotFound):     ErrorFileNotFound,
	string(ErrorPermission):       ErrorPermission,
	string(ErrorTimeout):          ErrorTimeout,
	string(ErrorOtherEnvironment): ErrorOtherEnvironment,
}

// compiledCategory is a CategoryRule with its patterns compiled.
type compiledCategory struct {
	category MessageCategory
	keywords *regexp.Regexp
	phrases  []string
	patterns []*regexp.Regexp
	prefixes []string
	suffixes []string
	reject   []*regexp.Regexp
}

// compiledError is an ErrorRule with its patterns compiled.
type compiledError struct {
	category ErrorCategory
	patterns []*regexp.Regexp
}

// Classifier evaluates the compiled rule set. It holds no mutable state;
// classification is a pure function of the input text.
type Classifier struct {
	categories    []compiledCategory
	errors        []compiledError
	failure       []*regexp.Regexp
	frustration   *regexp.Regexp
	clarification []*regexp.Regexp
}

// NewClassifier compiles rules. Rule names must belong to the known category
// sets; patterns must be valid regular expressions.
func NewClassifier(rules Rules) (*Classifier, error) {
	c := &Classifier{}

	for _, rule := range rules.Categories {
		category, ok := knownCategories[rule.Name]
		if !ok {
			return nil, fmt.Errorf("unknown message category %q", rule.Name)
		}
		compiled := compiledCategory{
			category: category,
			phrases:  lowerAll(rule.Phrases),
			prefixes: lowerAll(rule.Prefixes),
			suffixes: lowerAll(rule.Suffixes),
		}
		var err error
		if compiled.keywords, err = compileKeywords(rule.Keywords); err != nil {
			return nil, fmt.Errorf("category %s keywords: %w", rule.Name, err)
		}
		if compiled.patterns, err = compileAll(rule.Patterns); err != nil {
			return nil, fmt.Errorf("category %s patterns: %w", rule.Name, err)
		}
		if compiled.reject, err = compileAll(rule.Reject); err != nil {
			return nil, fmt.Errorf("category %s reject: %w", rule.Name, err)
		}
		c.categories = append(c.categories, compiled)
	}

	for _, rule := range rules.Errors {
		category, ok := knownErrorCategories[rule.Name]
		if !ok {
			return nil, fmt.Errorf("unknown error category %q", rule.Name)
		}
		patterns, err := compileAll(rule.Patterns)
		if err != nil {
			return nil, fmt.Errorf("error %s patterns: %w", rule.Name, err)
		}
		c.errors = append(c.errors, compiledError{category: category, patterns: patterns})
	}

	var err error
	if c.failure, err = compileAll(rules.FailureIndicators); err != nil {
		return nil, fmt.Errorf("failure indicators: %w", err)
	}
	if c.frustration, err = compileKeywords(rules.Frustration); err != nil {
		return nil, fmt.Errorf("frustration lexicon: %w", err)
	}
	if c.clarification, err = compileAll(rules.Clarification); err != nil {
		return nil, fmt.Errorf("clarification patterns: %w", err)
	}
	return c, nil
}

// Message assigns exactly one category to a user message. Rules are tried in
// order; the first match wins and no rule matching lands in the default
// bucket.
func (c *Classifier) Message(text string) MessageCategory {
	norm := normalize(text)
	if norm == "" {
		return CategoryOther
	}
	for _, rule := range c.categories {
		if rule.matches(norm) {
			return rule.category
		}
	}
	return CategoryOther
}

// Failure reports whether a tool result payload signals failure and, when it
// does, the failure subtype. flagged carries the record's own error flag;
// unflagged payloads are checked against the failure indicators.
func (c *Classifier) Failure(text string, flagged bool) (ErrorCategory, bool) {
	norm := strings.ToLower(text)
	if !flagged && !matchAny(c.failure, norm) {
		return "", false
	}
	for _, rule := range c.errors {
		if matchAny(rule.patterns, norm) {
			return rule.category, true
		}
	}
	return ErrorOtherEnvironment, true
}

// IsFrustration reports whether a user message carries a repeated-problem
// marker.
func (c *Classifier) IsFrustration(text string) bool {
	if c.frustration == nil {
		return false
	}
	return c.frustration.MatchString(normalize(text))
}

// IsClarification reports whether a user message restates or redirects
// intent.
func (c *Classifier) IsClarification(text string) bool {
	return matchAny(c.clarification, normalize(text))
}

// matches evaluates one compiled category rule against normalized text.
func (r compiledCategory) matches(norm string) bool {
	for _, reject := range r.reject {
		if reject.MatchString(norm) {
			return false
		}
	}
	if r.keywords != nil && r.keywords.MatchString(norm) {
		return true
	}
	for _, phrase := range r.phrases {
		if strings.Contains(norm, phrase) {
			return true
		}
	}
	for _, pattern := range r.patterns {
		if pattern.MatchString(norm) {
			return true
		}
	}
	for _, prefix := range r.prefixes {
		if hasWordPrefix(norm, prefix) {
			return true
		}
	}
	for _, suffix := range r.suffixes {
		if strings.HasSuffix(norm, suffix) {
			return true
		}
	}
	return false
}

// normalize case-folds and trims a message before rule evaluation.
func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// compileKeywords builds a single word-boundary alternation from a keyword
// list. Returns nil for an empty list.
func compileKeywords(keywords []string) (*regexp.Regexp, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = regexp.QuoteMeta(strings.ToLower(kw))
	}
	return regexp.Compile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// compileAll compiles a pattern list.
func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}

// hasWordPrefix reports whether text starts with the word prefix, not merely
// the character sequence.
func hasWordPrefix(text, prefix string) bool {
	if !strings.HasPrefix(text, prefix) {
		return false
	}
	if len(text) == len(prefix) {
		return true
	}
	next := text[len(prefix)]
	return !isWordChar(next)
}

func isWordChar(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
