package handler

import (
	"time"

	"nivaran/internal/pipeline"
)

// SubmitResponse is the HTTP response for POST /v1/grievances.
type SubmitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// StatusResponse is the HTTP response for GET /v1/grievances/{id}.
type StatusResponse struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	District      string       `json:"district"`
	Language      string       `json:"language,omitempty"`
	Clause        *ClauseView  `json:"clause,omitempty"`
	NoticeRef     string       `json:"notice_ref,omitempty"`
	RedactedRef   string       `json:"redacted_ref,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	Trail         []TrailEntry `json:"trail"`
}

// ClauseView is the grounded clause portion of the response.
type ClauseView struct {
	ClauseNumber string  `json:"clause_number"`
	SectionTitle string  `json:"section_title"`
	Excerpt      string  `json:"excerpt"`
	Score        float64 `json:"score"`
	SourcePage   int     `json:"source_page"`
}

// TrailEntry is one audit record in the response.
type TrailEntry struct {
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FromReport converts a pipeline status report to an HTTP response.
func FromReport(report pipeline.StatusReport) *StatusResponse {
	rec := report.Record
	resp := &StatusResponse{
		ID:            rec.ID.String(),
		Status:        string(rec.Status),
		District:      rec.District.String(),
		Language:      rec.Language,
		NoticeRef:     report.NoticeRef,
		RedactedRef:   report.RedactedRef,
		FailureReason: rec.FailureReason,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
		Trail:         make([]TrailEntry, 0, len(report.Trail)),
	}
	if rec.Clause != nil {
		resp.Clause = &ClauseView{
			ClauseNumber: rec.Clause.ClauseNumber,
			SectionTitle: rec.Clause.SectionTitle,
			Excerpt:      rec.Clause.Excerpt,
			Score:        rec.Clause.Score,
			SourcePage:   rec.Clause.SourcePage,
		}
	}
	for _, entry := range report.Trail {
		resp.Trail = append(resp.Trail, TrailEntry{
			Action:    string(entry.Action),
			Status:    string(entry.Status),
			Error:     entry.Error,
			Timestamp: entry.Timestamp,
		})
	}
	return resp
}
