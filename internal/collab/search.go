package collab

import (
	"context"

	"nivaran/internal/grounding"
)

// SearchAdapter calls the similarity-search collaborator over the legal
// corpus.
type SearchAdapter struct {
	client *Client
}

func NewSearchAdapter(client *Client) *SearchAdapter {
	return &SearchAdapter{client: client}
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchHit struct {
	Excerpt      string  `json:"excerpt"`
	Entry        string  `json:"entry"`
	Score        float64 `json:"score"`
	ClauseNumber string  `json:"clause_number"`
	SectionTitle string  `json:"section_title"`
	SourcePage   int     `json:"source_page"`
}

type searchResponse struct {
	Hits []searchHit `json:"hits"`
}

func (a *SearchAdapter) Search(ctx context.Context, query string, topK int) ([]grounding.Candidate, error) {
	var resp searchResponse
	if err := a.client.postJSON(ctx, "/v1/search", searchRequest{Query: query, TopK: topK}, &resp); err != nil {
		return nil, err
	}
	out := make([]grounding.Candidate, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		out = append(out, grounding.Candidate{
			Excerpt:      h.Excerpt,
			Entry:        h.Entry,
			Score:        h.Score,
			ClauseNumber: h.ClauseNumber,
			SectionTitle: h.SectionTitle,
			SourcePage:   h.SourcePage,
		})
	}
	return out, nil
}
