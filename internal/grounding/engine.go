// Package grounding decides whether a grievance can cite a legal clause. The
// rule is strict: a citation is a literal excerpt retrieved from the corpus,
// accepted only above a similarity threshold. Nothing is ever paraphrased.
package grounding

import (
	"context"
	"errors"
	"strings"

	"nivaran/internal/grievance"
	"nivaran/pkg/platform/fault"
)

// ErrNoMatch means no corpus entry scored above the threshold. Permanent by
// definition: retrying the same query against the same corpus snapshot
// cannot change the answer.
var ErrNoMatch = errors.New("no clause above similarity threshold")

// Candidate is one ranked result from the similarity index. Entry is the
// full literal text of the corpus entry the excerpt was cut from.
type Candidate struct {
	Excerpt      string
	Entry        string
	Score        float64
	ClauseNumber string
	SectionTitle string
	SourcePage   int
}

// Searcher issues a similarity query over the legal corpus. Transient
// failures bubble up unclassified-as-resolved; the orchestrator retries, the
// engine does not.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Candidate, error)
}

const defaultTopK = 5

// Engine applies the threshold decision over ranked candidates.
type Engine struct {
	searcher  Searcher
	threshold float64
	topK      int
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreshold overrides the default 0.75 cutoff. It stays global across
// clause categories; per-category thresholds are deliberately not modeled.
func WithThreshold(t float64) Option {
	return func(e *Engine) { e.threshold = t }
}

func WithTopK(k int) Option {
	return func(e *Engine) { e.topK = k }
}

func NewEngine(searcher Searcher, opts ...Option) *Engine {
	e := &Engine{searcher: searcher, threshold: 0.75, topK: defaultTopK}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Identify returns the clause match for query, or ErrNoMatch (wrapped
// permanent) when the best verbatim candidate scores below the threshold.
// The returned excerpt is copied from the candidate, never rewritten.
func (e *Engine) Identify(ctx context.Context, query string) (*grievance.ClauseMatch, error) {
	candidates, err := e.searcher.Search(ctx, query, e.topK)
	if err != nil {
		return nil, err
	}

	best := -1
	for i, c := range candidates {
		if !verbatim(c) {
			// A candidate whose excerpt is not literally present in its
			// corpus entry cannot be cited; skip it rather than repair it.
			continue
		}
		if best == -1 || c.Score > candidates[best].Score {
			best = i
		}
	}
	if best == -1 || candidates[best].Score < e.threshold {
		return nil, fault.Permanent(ErrNoMatch)
	}

	c := candidates[best]
	return &grievance.ClauseMatch{
		ClauseNumber: c.ClauseNumber,
		SectionTitle: c.SectionTitle,
		Excerpt:      c.Excerpt,
		Score:        c.Score,
		SourcePage:   c.SourcePage,
	}, nil
}

// verbatim reports whether the excerpt is a byte-identical substring of the
// corpus entry it claims to come from.
func verbatim(c Candidate) bool {
	return c.Excerpt != "" && strings.Contains(c.Entry, c.Excerpt)
}
