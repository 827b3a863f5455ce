// Package docstore holds rendered and redacted notice documents for the
// short retention window delivery needs. The backing object storage applies
// a 1-day lifecycle policy; both implementations here mirror that TTL.
package docstore

import (
	"context"
	"time"
)

// Document is one stored notice artifact.
type Document struct {
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// DefaultTTL matches the bucket lifecycle policy.
const DefaultTTL = 24 * time.Hour

// Store puts and gets documents by reference. Expired or missing references
// return sentinel.ErrNotFound; callers treat both the same way.
type Store interface {
	Put(ctx context.Context, ref string, doc Document) error
	Get(ctx context.Context, ref string) (Document, error)
}
