package collab

import (
	"context"
	"encoding/base64"
	"fmt"

	"nivaran/internal/notice"
	"nivaran/pkg/platform/fault"
)

// RendererAdapter calls the document-rendering collaborator.
type RendererAdapter struct {
	client *Client
}

func NewRendererAdapter(client *Client) *RendererAdapter {
	return &RendererAdapter{client: client}
}

type renderResponse struct {
	ContentType string `json:"content_type"`
	// Body is base64 so binary formats survive JSON transport.
	Body string `json:"body"`
}

func (a *RendererAdapter) Render(ctx context.Context, fields notice.Fields) (string, []byte, error) {
	var resp renderResponse
	if err := a.client.postJSON(ctx, "/v1/render", fields, &resp); err != nil {
		return "", nil, err
	}
	body, err := base64.StdEncoding.DecodeString(resp.Body)
	if err != nil {
		return "", nil, fault.Permanent(fmt.Errorf("decode rendered document: %w", err))
	}
	if len(body) == 0 {
		return "", nil, fault.Permanent(fmt.Errorf("renderer returned an empty document"))
	}
	return resp.ContentType, body, nil
}
