// Package redact produces the PII-sanitized copy of a notice. Rules are a
// fixed-order set: deterministic pattern rules first, then entity rules
// delegated to the named-entity collaborator. Redaction is idempotent and
// its completeness is checked by a post-scan before the result is accepted.
package redact

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"unicode/utf8"

	"nivaran/pkg/platform/fault"
)

// Mask replaces every redacted span. It must never itself match a configured
// pattern, which is what makes a second redaction pass a no-op.
const Mask = "[REDACTED]"

// Span is a half-open byte range [Start, End) flagged for masking.
type Span struct {
	Start    int
	End      int
	Category string
}

// Tagger is the named-entity collaborator: text in, flagged spans out.
type Tagger interface {
	Tag(ctx context.Context, text string) ([]Span, error)
}

// Rule produces spans to mask. Evaluated in registration order against the
// text as masked by all earlier rules.
type Rule interface {
	Name() string
	Spans(ctx context.Context, text string) ([]Span, error)
}

type patternRule struct {
	name string
	re   *regexp.Regexp
}

func (p patternRule) Name() string { return p.name }

func (p patternRule) Spans(_ context.Context, text string) ([]Span, error) {
	var spans []Span
	for _, loc := range p.re.FindAllStringIndex(text, -1) {
		spans = append(spans, Span{Start: loc[0], End: loc[1], Category: p.name})
	}
	return spans, nil
}

// defaultPatterns covers the fixed-format identifiers that must never reach
// an officer copy.
var defaultPatterns = []patternRule{
	{"national-id", regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}\b`)},
	{"pan", regexp.MustCompile(`\b[A-Z]{5}\d{4}[A-Z]\b`)},
	{"phone", regexp.MustCompile(`(?:\+91[ -]?)?[6-9]\d{9}\b`)},
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
}

type entityRule struct {
	tagger     Tagger
	categories map[string]bool
}

func (e entityRule) Name() string { return "entity" }

func (e entityRule) Spans(ctx context.Context, text string) ([]Span, error) {
	tagged, err := e.tagger.Tag(ctx, text)
	if err != nil {
		return nil, err
	}
	var spans []Span
	for _, s := range tagged {
		if e.categories[s.Category] {
			spans = append(spans, s)
		}
	}
	return spans, nil
}

// Redactor applies the rule set. Construct once and share; it is stateless.
type Redactor struct {
	rules []Rule
}

// NewRedactor builds the default rule chain: patterns, then person/location
// entities from the tagger. A nil tagger yields a pattern-only redactor.
func NewRedactor(tagger Tagger) *Redactor {
	r := &Redactor{}
	for _, p := range defaultPatterns {
		r.rules = append(r.rules, p)
	}
	if tagger != nil {
		r.rules = append(r.rules, entityRule{
			tagger:     tagger,
			categories: map[string]bool{"person": true, "location": true},
		})
	}
	return r
}

// ErrMalformed marks input the redactor cannot safely process.
var ErrMalformed = errors.New("malformed input")

// Redact masks every span any rule flags. The result is scanned before it is
// returned: configured patterns must find nothing, or the call fails rather
// than leak.
func (r *Redactor) Redact(ctx context.Context, text string) (string, error) {
	if !utf8.ValidString(text) {
		return "", fault.Permanent(fmt.Errorf("%w: invalid UTF-8", ErrMalformed))
	}

	out := text
	for _, rule := range r.rules {
		spans, err := rule.Spans(ctx, out)
		if err != nil {
			return "", fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		out = applySpans(out, spans)
	}

	if leftover := ScanPatterns(out); len(leftover) > 0 {
		return "", fault.Permanent(fmt.Errorf("%w: %d PII spans survived redaction", ErrMalformed, len(leftover)))
	}
	return out, nil
}

// ScanPatterns reports any configured pattern still detectable in text. Used
// as the redactor's own post-check and by tests asserting completeness.
func ScanPatterns(text string) []Span {
	var spans []Span
	for _, p := range defaultPatterns {
		found, _ := p.Spans(context.Background(), text)
		spans = append(spans, found...)
	}
	return spans
}

// applySpans replaces each flagged range with the mask. Overlapping spans
// are merged first so nested matches cannot corrupt offsets.
func applySpans(text string, spans []Span) string {
	if len(spans) == 0 {
		return text
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}

	var out []byte
	prev := 0
	for _, s := range merged {
		if s.Start < prev || s.End > len(text) {
			continue
		}
		out = append(out, text[prev:s.Start]...)
		out = append(out, Mask...)
		prev = s.End
	}
	out = append(out, text[prev:]...)
	return string(out)
}
