// Package fault classifies pipeline errors into the retry taxonomy. Adapters
// wrap collaborator failures at the boundary; the orchestrator and retry
// policy only ever look at the kind, never at collaborator-specific errors.
package fault

import (
	"context"
	"errors"
	"net"

	"nivaran/pkg/platform/sentinel"
)

// Kind is the retry classification of an error.
type Kind int

const (
	// KindPermanent failures bypass retry and terminate the stage
	// (unsupported input, below-threshold grounding, unknown district).
	KindPermanent Kind = iota
	// KindTransient failures (rate limits, timeouts, network errors) are
	// retried with bounded backoff.
	KindTransient
	// KindCritical failures (store unavailable, audit write failure) alert
	// operations and terminate the record.
	KindCritical
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindCritical:
		return "critical"
	default:
		return "permanent"
	}
}

// Fault wraps an error with its retry classification.
type Fault struct {
	Kind Kind
	Err  error
}

func (f *Fault) Error() string { return f.Kind.String() + ": " + f.Err.Error() }

func (f *Fault) Unwrap() error { return f.Err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Fault{Kind: KindTransient, Err: err}
}

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &Fault{Kind: KindPermanent, Err: err}
}

// Critical marks err as an operational failure requiring alerting.
func Critical(err error) error {
	if err == nil {
		return nil
	}
	return &Fault{Kind: KindCritical, Err: err}
}

// KindOf classifies err. Explicit Fault wrappers win; otherwise context
// timeouts, network errors and sentinel.ErrUnavailable are treated as
// transient, and everything else as permanent so unknown failures never loop.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sentinel.ErrUnavailable) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindPermanent
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}

// IsCritical reports whether err requires an operations alert.
func IsCritical(err error) bool {
	return err != nil && KindOf(err) == KindCritical
}
