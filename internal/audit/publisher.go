package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "nivaran/pkg/domain"
)

// Sink receives a copy of every entry the publisher persists. Used to mirror
// compliance events to Kafka; sink failures are the publisher's to report,
// never to block on.
type Sink interface {
	Publish(ctx context.Context, entry Entry)
}

// Publisher captures structured audit entries. It is append-only and uses the
// store layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
	sink  Sink
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithSink mirrors persisted entries to an external sink.
func WithSink(sink Sink) PublisherOption {
	return func(p *Publisher) { p.sink = sink }
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Emit persists an entry, filling in id and timestamp when absent. The store
// write result is returned so callers can count failures; the sink is
// fire-and-forget.
func (p *Publisher) Emit(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	err := p.store.Append(ctx, entry)
	if p.sink != nil {
		p.sink.Publish(ctx, entry)
	}
	return err
}

// List returns the trail for one grievance in traversal order.
func (p *Publisher) List(ctx context.Context, gid id.GrievanceID) ([]Entry, error) {
	return p.store.ListByGrievance(ctx, gid)
}
