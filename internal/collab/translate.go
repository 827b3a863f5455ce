package collab

import "context"

// TranslateAdapter calls the translation collaborator.
type TranslateAdapter struct {
	client *Client
}

func NewTranslateAdapter(client *Client) *TranslateAdapter {
	return &TranslateAdapter{client: client}
}

type translateRequest struct {
	Text string `json:"text"`
	From string `json:"from"`
	To   string `json:"to"`
}

type translateResponse struct {
	Text string `json:"text"`
}

func (a *TranslateAdapter) Translate(ctx context.Context, text, fromLang, toLang string) (string, error) {
	var resp translateResponse
	err := a.client.postJSON(ctx, "/v1/translate", translateRequest{
		Text: text,
		From: fromLang,
		To:   toLang,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
