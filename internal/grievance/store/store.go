// Package store persists grievance records. Implementations must provide
// atomic conditional updates keyed on the record version; that conditional
// write is the only mutual exclusion the pipeline relies on.
package store

import (
	"context"
	"time"

	"nivaran/internal/grievance"
	id "nivaran/pkg/domain"
)

// RecordStore is interface-driven so the orchestrator can run against
// in-memory persistence in tests and Postgres in production without rewiring.
type RecordStore interface {
	// Create inserts a new record. Returns sentinel.ErrAlreadyExists when
	// the id is taken.
	Create(ctx context.Context, rec *grievance.Record) error

	// Get returns a copy of the record or sentinel.ErrNotFound.
	Get(ctx context.Context, gid id.GrievanceID) (*grievance.Record, error)

	// Update writes rec conditionally: it succeeds only when the stored
	// version equals rec.Version, then bumps rec.Version. A stale version
	// returns sentinel.ErrConflict and the caller must re-read.
	Update(ctx context.Context, rec *grievance.Record) error

	// PurgeEphemeral clears audio references and raw transcripts from
	// records created before cutoff, regardless of status. Returns how many
	// records were touched.
	PurgeEphemeral(ctx context.Context, cutoff time.Time) (int, error)

	// ListUnfinished returns ids of non-terminal records last touched before
	// updatedBefore, oldest first, capped at limit. Recovery sweeps use it to
	// re-drive records a crashed process left mid-pipeline.
	ListUnfinished(ctx context.Context, updatedBefore time.Time, limit int) ([]id.GrievanceID, error)
}
