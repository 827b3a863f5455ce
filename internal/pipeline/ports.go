package pipeline

import (
	"context"

	"nivaran/internal/notice"
)

// Transcript is the speech collaborator's output: the recognized text plus
// the language it detected (BCP-47 tag).
type Transcript struct {
	Text     string
	Language string
}

// Transcriber converts a stored audio object into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioRef string, languageHint string) (Transcript, error)
}

// Translator translates text between languages. Implementations return a
// permanent fault for unsupported language pairs.
type Translator interface {
	Translate(ctx context.Context, text, fromLang, toLang string) (string, error)
}

// Renderer produces the notice document from its fields.
type Renderer interface {
	Render(ctx context.Context, fields notice.Fields) (contentType string, body []byte, err error)
}
