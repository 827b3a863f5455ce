// Package audit records what the pipeline did to each grievance. The log is
// append-only within a grievance's active lifetime and is the material a
// compliance reviewer works from.
package audit

import (
	"time"

	"github.com/google/uuid"

	id "nivaran/pkg/domain"
)

// Action names the pipeline step an entry refers to.
type Action string

const (
	ActionTranscribe     Action = "transcribe"
	ActionTranslate      Action = "translate"
	ActionGround         Action = "ground"
	ActionRender         Action = "render"
	ActionRedact         Action = "redact"
	ActionDeliverUser    Action = "deliver-user"
	ActionDeliverOfficer Action = "deliver-officer"
)

// EntryStatus is the outcome recorded for an action.
type EntryStatus string

const (
	StatusSuccess EntryStatus = "success"
	StatusFailure EntryStatus = "failure"
)

// Entry is one audit record. Entries are never mutated or deleted while the
// grievance is active.
type Entry struct {
	ID          uuid.UUID         `json:"id"`
	GrievanceID id.GrievanceID    `json:"grievance_id"`
	Action      Action            `json:"action"`
	Status      EntryStatus       `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Error       string            `json:"error,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}
