package audit

import (
	"context"

	id "nivaran/pkg/domain"
)

// Store persists audit entries. Append only; implementations never expose an
// update or delete path.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByGrievance(ctx context.Context, gid id.GrievanceID) ([]Entry, error)
}
