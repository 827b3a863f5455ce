// Package markers persists per-channel delivery state. The write-once
// PutIfAbsent is what makes delivery at-most-once: whoever lands the pending
// marker owns the send; everyone else observes it and backs off.
package markers

import (
	"context"
	"time"

	"nivaran/internal/grievance"
	id "nivaran/pkg/domain"
)

// State of a delivery attempt for one (grievance, channel) pair.
type State string

const (
	// StatePending is claimed but not yet resolved; only the claimant may
	// move it forward.
	StatePending State = "pending"
	StateSent    State = "sent"
	StateFailed  State = "failed"
)

// Marker records the delivery outcome for one channel. Written once as
// pending, then resolved exactly once to sent or failed.
type Marker struct {
	GrievanceID id.GrievanceID    `json:"grievance_id"`
	Channel     grievance.Channel `json:"channel"`
	State       State             `json:"state"`
	MessageID   string            `json:"message_id,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Attempts    int               `json:"attempts"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Store provides the write-once claim primitive plus resolution updates.
type Store interface {
	// PutIfAbsent writes m only when no marker exists for its key. It
	// returns the marker now stored and whether this call created it.
	PutIfAbsent(ctx context.Context, m Marker) (Marker, bool, error)

	// Update resolves an existing marker. Returns sentinel.ErrNotFound when
	// no marker was ever claimed.
	Update(ctx context.Context, m Marker) error

	// Get returns the marker or sentinel.ErrNotFound.
	Get(ctx context.Context, gid id.GrievanceID, channel grievance.Channel) (Marker, error)
}
