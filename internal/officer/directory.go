// Package officer resolves a district code to the officer who receives the
// redacted notice copy. An unknown district is a permanent failure for the
// officer-delivery stage, not a retryable one.
package officer

import (
	"context"

	id "nivaran/pkg/domain"
)

// Record is one district officer's contact entry.
type Record struct {
	District     id.DistrictCode
	Email        string
	Name         string
	DistrictName string
	State        string
}

// Directory looks up officers by district code. Returns
// sentinel.ErrNotFound when the code has no entry.
type Directory interface {
	Lookup(ctx context.Context, code id.DistrictCode) (Record, error)
}
