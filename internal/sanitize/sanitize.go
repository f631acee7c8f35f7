// Package sanitize redacts sensitive literal values out of SQL text before
// it reaches a log line. The gateway attaches SQL text to the log lines for
// invalid SQL, hook rejections, and a missing user filter after injection;
// a caller that knows its own literals carry PII (phone numbers, national
// IDs, emails) supplies a rule set to scrub them first.
package sanitize

import (
	"fmt"
	"regexp"
)

// Rule is one redaction rule: every match of Pattern in the SQL text is
// replaced with Replacement.
type Rule struct {
	Pattern     string
	Replacement string
}

type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Sanitizer applies a fixed set of regex-based redaction rules to SQL text.
type Sanitizer struct {
	rules []compiledRule
}

// NewSanitizer compiles rules. Returns an error on an invalid regex pattern.
func NewSanitizer(rules []Rule) (*Sanitizer, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("sanitize: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, replacement: r.Replacement}
	}
	return &Sanitizer{rules: compiled}, nil
}

// HasRules reports whether the sanitizer has any rules configured.
func (s *Sanitizer) HasRules() bool {
	return len(s.rules) > 0
}

// SanitizeSQL applies every rule, in order, to sql and returns the result.
// Intended for log lines only — never for the SQL actually sent to a driver.
func (s *Sanitizer) SanitizeSQL(sql string) string {
	result := sql
	for _, rule := range s.rules {
		result = rule.pattern.ReplaceAllString(result, rule.replacement)
	}
	return result
}
