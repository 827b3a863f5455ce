package collab

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"nivaran/internal/delivery"
	"nivaran/internal/docstore"
	"nivaran/internal/grounding"
	"nivaran/internal/notice"
	"nivaran/internal/pipeline"
	"nivaran/internal/redact"
)

// Dev stubs stand in for the collaborator fleet when NIVARAN_DEV_STUBS is
// set, so the pipeline can run end to end on a laptop. They are deterministic
// and never fail.

type StubTranscriber struct{}

func (StubTranscriber) Transcribe(_ context.Context, audioRef, languageHint string) (pipeline.Transcript, error) {
	lang := languageHint
	if lang == "" {
		lang = "hi"
	}
	return pipeline.Transcript{
		Text:     fmt.Sprintf("stub transcript of %s", audioRef),
		Language: lang,
	}, nil
}

type StubTranslator struct{}

func (StubTranslator) Translate(_ context.Context, text, fromLang, toLang string) (string, error) {
	if fromLang == toLang {
		return text, nil
	}
	return text, nil
}

// StubSearcher serves a fixed two-clause corpus. Scores are chosen so any
// query grounds against the first clause.
type StubSearcher struct{}

func (StubSearcher) Search(_ context.Context, _ string, _ int) ([]grounding.Candidate, error) {
	const entry = "Where an essential service is disrupted, supply shall be restored within seventy-two hours of the disruption being reported."
	return []grounding.Candidate{
		{
			Excerpt:      "supply shall be restored within seventy-two hours",
			Entry:        entry,
			Score:        0.92,
			ClauseNumber: "Clause 12(3)",
			SectionTitle: "Essential Services",
			SourcePage:   14,
		},
		{
			Excerpt:      "a grievance may be lodged with the district officer",
			Entry:        "Any person aggrieved by an administrative act may lodge a grievance with the district officer.",
			Score:        0.61,
			ClauseNumber: "Clause 4(1)",
			SectionTitle: "Grievance Procedure",
			SourcePage:   3,
		},
	}, nil
}

// StubTagger flags nothing; the pattern rules still mask structured
// identifiers.
type StubTagger struct{}

func (StubTagger) Tag(context.Context, string) ([]redact.Span, error) { return nil, nil }

// StubRenderer wraps the local plain-text renderer in the Renderer port.
type StubRenderer struct{}

func (StubRenderer) Render(_ context.Context, fields notice.Fields) (string, []byte, error) {
	return "text/plain; charset=utf-8", notice.TextRenderer{}.Render(fields), nil
}

// StubSender logs the would-be transmission and fabricates a message id.
type StubSender struct {
	Channel string
	Logger  *slog.Logger
	seq     atomic.Int64
}

func (s *StubSender) Send(_ context.Context, rcpt delivery.Recipient, doc docstore.Document) (string, error) {
	n := s.seq.Add(1)
	if s.Logger != nil {
		s.Logger.Info("stub delivery",
			"channel", s.Channel,
			"to", rcpt.Address,
			"content_type", doc.ContentType,
			"bytes", len(doc.Body))
	}
	return fmt.Sprintf("stub-%s-%d", strings.ToLower(s.Channel), n), nil
}
