// Package delivery transmits notice documents over the user and officer
// channels with a per-channel at-most-once guarantee. The guarantee comes
// from claim-then-send: a write-once pending marker is taken before any
// bytes leave the process, so no two invocations can both believe they own
// the send.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nivaran/internal/delivery/markers"
	"nivaran/internal/docstore"
	"nivaran/internal/grievance"
	"nivaran/internal/platform/metrics"
	id "nivaran/pkg/domain"
	"nivaran/pkg/platform/circuit"
	"nivaran/pkg/platform/fault"
	"nivaran/pkg/platform/retry"
	"nivaran/pkg/platform/sentinel"
)

// Recipient is the resolved destination for one channel.
type Recipient struct {
	Address string
	Name    string
}

// Sender transmits one document over a concrete channel. Implementations
// must report rate limits as transient faults.
type Sender interface {
	Send(ctx context.Context, rcpt Recipient, doc docstore.Document) (messageID string, err error)
}

// Outcome is the resolved delivery state for one channel. Prior marks an
// outcome resolved by an earlier invocation rather than this one.
type Outcome struct {
	Channel   grievance.Channel
	Sent      bool
	MessageID string
	Reason    string
	Prior     bool
}

// ErrInFlight is returned when another invocation holds the pending claim.
// Transient: the caller re-invokes and observes the resolved marker.
var ErrInFlight = errors.New("delivery already in flight")

// staleClaimAge is how long a pending claim may sit unresolved before it is
// treated as abandoned by a crashed process. At-most-once then resolves it
// to a permanent failure: zero deliveries, never two.
const staleClaimAge = 2 * time.Minute

// Coordinator owns markers, retries and per-channel circuit breakers.
type Coordinator struct {
	store    markers.Store
	senders  map[grievance.Channel]Sender
	breakers map[grievance.Channel]*circuit.Breaker
	retry    retry.Policy
	stale    time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorClock substitutes the time source, used by stale-claim tests.
func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithStaleClaimAge overrides the abandoned-claim window.
func WithStaleClaimAge(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.stale = d }
}

func NewCoordinator(store markers.Store, senders map[grievance.Channel]Sender, policy retry.Policy, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	breakers := make(map[grievance.Channel]*circuit.Breaker, len(senders))
	for channel := range senders {
		breakers[channel] = circuit.New("delivery-"+string(channel), circuit.WithFailureThreshold(5))
	}
	c := &Coordinator{
		store:    store,
		senders:  senders,
		breakers: breakers,
		retry:    policy,
		stale:    staleClaimAge,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Deliver sends doc to rcpt over channel at most once. Re-invocations return
// the prior outcome without re-sending; concurrent invocations see
// ErrInFlight and re-drive after the owner resolves the marker.
func (c *Coordinator) Deliver(ctx context.Context, gid id.GrievanceID, channel grievance.Channel, rcpt Recipient, doc docstore.Document) (Outcome, error) {
	sender, ok := c.senders[channel]
	if !ok {
		return Outcome{}, fault.Permanent(fmt.Errorf("no sender for channel %s", channel))
	}

	claim := markers.Marker{
		GrievanceID: gid,
		Channel:     channel,
		State:       markers.StatePending,
	}
	existing, created, err := c.store.PutIfAbsent(ctx, claim)
	if err != nil {
		return Outcome{}, fault.Critical(fmt.Errorf("claim delivery marker: %w", err))
	}
	if !created {
		if existing.State == markers.StatePending && c.now().Sub(existing.UpdatedAt) > c.stale {
			return c.resolveAbandoned(ctx, existing)
		}
		return c.priorOutcome(channel, existing)
	}

	return c.send(ctx, gid, channel, sender, rcpt, doc)
}

// FailPermanently records a permanent-failure marker for a channel whose
// send can never happen (for example an unresolvable district code). Safe to
// call when a marker already exists; the prior outcome then stands.
func (c *Coordinator) FailPermanently(ctx context.Context, gid id.GrievanceID, channel grievance.Channel, reason string) (Outcome, error) {
	m := markers.Marker{
		GrievanceID: gid,
		Channel:     channel,
		State:       markers.StateFailed,
		Reason:      reason,
	}
	existing, created, err := c.store.PutIfAbsent(ctx, m)
	if err != nil {
		return Outcome{}, fault.Critical(fmt.Errorf("record failure marker: %w", err))
	}
	if !created {
		return c.priorOutcome(channel, existing)
	}
	metrics.DeliveryResult(string(channel), "failed")
	return Outcome{Channel: channel, Sent: false, Reason: reason}, nil
}

// Outcome returns the resolved state for a channel, or ErrNotFound when
// delivery was never attempted.
func (c *Coordinator) Outcome(ctx context.Context, gid id.GrievanceID, channel grievance.Channel) (Outcome, error) {
	m, err := c.store.Get(ctx, gid, channel)
	if err != nil {
		return Outcome{}, err
	}
	return c.priorOutcome(channel, m)
}

// resolveAbandoned converts a crashed process's pending claim into a
// permanent failure. Whether the crashed attempt transmitted is unknowable,
// so re-sending is not an option.
func (c *Coordinator) resolveAbandoned(ctx context.Context, m markers.Marker) (Outcome, error) {
	m.State = markers.StateFailed
	m.Reason = "delivery claim abandoned"
	if err := c.store.Update(ctx, m); err != nil {
		return Outcome{}, fault.Critical(fmt.Errorf("resolve abandoned claim: %w", err))
	}
	c.logger.Warn("resolved abandoned delivery claim",
		"grievance_id", m.GrievanceID, "channel", m.Channel)
	metrics.DeliveryResult(string(m.Channel), "failed")
	return Outcome{Channel: m.Channel, Sent: false, Reason: m.Reason}, nil
}

func (c *Coordinator) priorOutcome(channel grievance.Channel, m markers.Marker) (Outcome, error) {
	switch m.State {
	case markers.StateSent:
		return Outcome{Channel: channel, Sent: true, MessageID: m.MessageID, Prior: true}, nil
	case markers.StateFailed:
		return Outcome{Channel: channel, Sent: false, Reason: m.Reason, Prior: true}, nil
	default:
		return Outcome{}, fault.Transient(ErrInFlight)
	}
}

func (c *Coordinator) send(ctx context.Context, gid id.GrievanceID, channel grievance.Channel, sender Sender, rcpt Recipient, doc docstore.Document) (Outcome, error) {
	breaker := c.breakers[channel]

	var messageID string
	attempts := 0
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		attempts++
		if breaker != nil && breaker.IsOpen() {
			return fault.Transient(fmt.Errorf("channel %s: %w", channel, sentinel.ErrUnavailable))
		}
		mid, sendErr := sender.Send(ctx, rcpt, doc)
		if sendErr != nil {
			if breaker != nil {
				if _, change := breaker.RecordFailure(); change.Opened {
					c.logger.Warn("delivery circuit opened", "channel", channel)
				}
			}
			return sendErr
		}
		if breaker != nil {
			breaker.RecordSuccess()
		}
		messageID = mid
		return nil
	})

	resolved := markers.Marker{
		GrievanceID: gid,
		Channel:     channel,
		Attempts:    attempts,
	}
	if err != nil {
		resolved.State = markers.StateFailed
		resolved.Reason = err.Error()
		if updateErr := c.store.Update(ctx, resolved); updateErr != nil {
			c.logger.Error("resolve delivery marker failed",
				"grievance_id", gid, "channel", channel, "error", updateErr)
		}
		metrics.DeliveryResult(string(channel), "failed")
		// The marker is resolved failed; no later invocation may retry this
		// send, so retry exhaustion is permanent from here on.
		if fault.KindOf(err) == fault.KindTransient {
			err = fault.Permanent(err)
		}
		return Outcome{Channel: channel, Sent: false, Reason: resolved.Reason}, err
	}

	resolved.State = markers.StateSent
	resolved.MessageID = messageID
	if updateErr := c.store.Update(ctx, resolved); updateErr != nil {
		// The message left the building; the marker must say so or a retry
		// could send twice. Surface as critical.
		c.logger.Error("record sent marker failed",
			"grievance_id", gid, "channel", channel, "error", updateErr)
		return Outcome{}, fault.Critical(fmt.Errorf("record sent marker: %w", updateErr))
	}
	metrics.DeliveryResult(string(channel), "sent")
	return Outcome{Channel: channel, Sent: true, MessageID: messageID}, nil
}
