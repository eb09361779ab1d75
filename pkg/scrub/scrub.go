// Package scrub applies PII redaction to inbound text before it is hashed
// and persisted. Patterns are compiled eagerly at startup; scrubbing is
// idempotent, so re-scrubbing already-redacted text is a no-op.
package scrub

import (
	"log/slog"
	"regexp"
)

// Pattern is a redaction rule: a regex and its replacement placeholder.
type Pattern struct {
	Name        string
	Pattern     string
	Replacement string
}

// builtinPatterns are the mandatory redaction rules. Replacement tokens are
// chosen so they never re-match their own pattern (idempotence).
var builtinPatterns = []Pattern{
	{
		Name:        "credit_card",
		Pattern:     `\b(?:\d[ -]?){13,15}\d\b`,
		Replacement: "[CREDIT_CARD]",
	},
	{
		Name:        "email",
		Pattern:     `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`,
		Replacement: "[EMAIL]",
	},
}

// compiledPattern holds a pre-compiled rule.
type compiledPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// VetoFunc lets a deployment drop content entirely instead of redacting it.
// Returning true vetoes the text; the pipeline drops the record.
type VetoFunc func(text string) bool

// Scrubber redacts PII from text. Thread-safe and stateless aside from
// compiled patterns.
type Scrubber struct {
	patterns []compiledPattern
	veto     VetoFunc
}

// Option configures a Scrubber.
type Option func(*Scrubber)

// WithVeto installs a veto hook.
func WithVeto(f VetoFunc) Option {
	return func(s *Scrubber) { s.veto = f }
}

// WithExtraPatterns appends deployment-specific redaction rules after the
// built-ins. Invalid patterns are logged and skipped.
func WithExtraPatterns(patterns []Pattern) Option {
	return func(s *Scrubber) { s.compile(patterns) }
}

// New creates a scrubber with the built-in patterns compiled.
func New(opts ...Option) *Scrubber {
	s := &Scrubber{}
	s.compile(builtinPatterns)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scrubber) compile(patterns []Pattern) {
	for _, p := range patterns {
		compiled, err := regexp.Compile(p.Pattern)
		if err != nil {
			slog.Error("Failed to compile scrub pattern, skipping",
				"pattern", p.Name, "error", err)
			continue
		}
		s.patterns = append(s.patterns, compiledPattern{
			name:        p.Name,
			regex:       compiled,
			replacement: p.Replacement,
		})
	}
}

// Scrub redacts PII from text. The second return is false when the veto
// hook rejected the text; the caller must drop the record.
func (s *Scrubber) Scrub(text string) (string, bool) {
	if s.veto != nil && s.veto(text) {
		return "", false
	}
	for _, p := range s.patterns {
		text = p.regex.ReplaceAllString(text, p.replacement)
	}
	return text, true
}
