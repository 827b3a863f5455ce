package collab

import (
	"context"

	"nivaran/internal/pipeline"
)

// SpeechAdapter calls the speech-to-text collaborator.
type SpeechAdapter struct {
	client *Client
}

func NewSpeechAdapter(client *Client) *SpeechAdapter {
	return &SpeechAdapter{client: client}
}

type transcribeRequest struct {
	AudioRef     string `json:"audio_ref"`
	LanguageHint string `json:"language_hint,omitempty"`
}

type transcribeResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func (a *SpeechAdapter) Transcribe(ctx context.Context, audioRef, languageHint string) (pipeline.Transcript, error) {
	var resp transcribeResponse
	err := a.client.postJSON(ctx, "/v1/transcribe", transcribeRequest{
		AudioRef:     audioRef,
		LanguageHint: languageHint,
	}, &resp)
	if err != nil {
		return pipeline.Transcript{}, err
	}
	return pipeline.Transcript{Text: resp.Text, Language: resp.Language}, nil
}
