package collab

import (
	"context"

	"nivaran/internal/redact"
)

// TaggerAdapter calls the named-entity collaborator used by redaction.
type TaggerAdapter struct {
	client *Client
}

func NewTaggerAdapter(client *Client) *TaggerAdapter {
	return &TaggerAdapter{client: client}
}

type tagRequest struct {
	Text string `json:"text"`
}

type tagResponse struct {
	Entities []struct {
		Start    int    `json:"start"`
		End      int    `json:"end"`
		Category string `json:"category"`
	} `json:"entities"`
}

func (a *TaggerAdapter) Tag(ctx context.Context, text string) ([]redact.Span, error) {
	var resp tagResponse
	if err := a.client.postJSON(ctx, "/v1/entities", tagRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	spans := make([]redact.Span, 0, len(resp.Entities))
	for _, e := range resp.Entities {
		spans = append(spans, redact.Span{Start: e.Start, End: e.End, Category: e.Category})
	}
	return spans, nil
}
