package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"nivaran/internal/audit"
	"nivaran/internal/grievance"
	"nivaran/internal/grievance/store"
	"nivaran/internal/platform/metrics"
	id "nivaran/pkg/domain"
	dErrors "nivaran/pkg/domain-errors"
	"nivaran/pkg/platform/privacy"
	"nivaran/pkg/platform/sentinel"
)

// SubmitRequest carries a validated grievance submission.
type SubmitRequest struct {
	Sender       string
	District     id.DistrictCode
	AudioRef     string
	LanguageHint string
}

// StatusReport is everything GetStatus exposes about one grievance.
type StatusReport struct {
	Record      *grievance.Record
	Trail       []audit.Entry
	NoticeRef   string
	RedactedRef string
}

// Service fronts the orchestrator: it creates records, spawns bounded
// asynchronous runs, and answers status queries.
type Service struct {
	records      store.RecordStore
	orchestrator *Orchestrator
	auditor      *audit.Publisher

	hashKey  []byte
	deadline time.Duration
	slots    *semaphore.Weighted
	now      func() time.Time
	logger   *slog.Logger

	// base is the lifetime context of spawned runs; shutting it down drains
	// in-flight pipelines.
	base context.Context
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceClock substitutes the time source.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(
	base context.Context,
	records store.RecordStore,
	orchestrator *Orchestrator,
	auditor *audit.Publisher,
	hashKey []byte,
	deadline time.Duration,
	maxConcurrent int,
	logger *slog.Logger,
	opts ...ServiceOption,
) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 64
	}
	s := &Service{
		records:      records,
		orchestrator: orchestrator,
		auditor:      auditor,
		hashKey:      hashKey,
		deadline:     deadline,
		slots:        semaphore.NewWeighted(int64(maxConcurrent)),
		now:          time.Now,
		logger:       logger,
		base:         base,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Submit registers the grievance and starts its pipeline run in the
// background. The returned id is usable for status queries immediately.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (id.GrievanceID, error) {
	if req.Sender == "" {
		return id.GrievanceID{}, dErrors.New(dErrors.CodeInvalidInput, "sender is required")
	}
	if req.AudioRef == "" {
		return id.GrievanceID{}, dErrors.New(dErrors.CodeInvalidInput, "audio_ref is required")
	}
	if req.District.IsNil() {
		return id.GrievanceID{}, dErrors.New(dErrors.CodeInvalidInput, "district is required")
	}

	now := s.now()
	rec := &grievance.Record{
		ID:           id.NewGrievanceID(),
		SenderHash:   privacy.HashIdentity(s.hashKey, req.Sender),
		ReplyTo:      req.Sender,
		District:     req.District,
		AudioRef:     req.AudioRef,
		LanguageHint: req.LanguageHint,
		Status:       grievance.StatusReceived,
		CreatedAt:    now,
		UpdatedAt:    now,
		DeadlineAt:   now.Add(s.deadline),
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return id.GrievanceID{}, fmt.Errorf("create grievance record: %w", err)
	}
	metrics.GrievanceSubmitted()

	if err := s.slots.Acquire(ctx, 1); err != nil {
		// The record exists; a later Resume picks it up.
		s.logger.Warn("pipeline slot unavailable, run deferred", "grievance_id", rec.ID)
		return rec.ID, nil
	}
	go func() {
		defer s.slots.Release(1)
		// The run outlives the submit request but not the process.
		runCtx, cancel := context.WithDeadline(s.base, rec.DeadlineAt.Add(5*time.Second))
		defer cancel()
		if _, err := s.orchestrator.Run(runCtx, rec.ID); err != nil {
			s.logger.Error("pipeline run ended with error", "grievance_id", rec.ID, "error", err)
		}
	}()
	return rec.ID, nil
}

// Resume re-drives a non-terminal grievance, typically after a restart.
func (s *Service) Resume(ctx context.Context, gid id.GrievanceID) (*grievance.Record, error) {
	return s.orchestrator.Run(ctx, gid)
}

// recoveryBatch caps how many stalled records one recovery pass re-drives.
const recoveryBatch = 32

// StartRecovery re-drives records stranded mid-pipeline by a crash or a
// deferred run. The first pass fires immediately so a restart picks up its
// backlog without waiting out the interval.
func (s *Service) StartRecovery(ctx context.Context, interval, idleAfter time.Duration) {
	go func() {
		s.recoverStalled(ctx, idleAfter)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.recoverStalled(ctx, idleAfter)
			}
		}
	}()
}

func (s *Service) recoverStalled(ctx context.Context, idleAfter time.Duration) {
	ids, err := s.records.ListUnfinished(ctx, s.now().Add(-idleAfter), recoveryBatch)
	if err != nil {
		s.logger.Error("stalled-record scan failed", "error", err)
		return
	}
	for _, gid := range ids {
		if err := s.slots.Acquire(ctx, 1); err != nil {
			return
		}
		go func(gid id.GrievanceID) {
			defer s.slots.Release(1)
			s.logger.Info("re-driving stalled grievance", "grievance_id", gid)
			if _, err := s.Resume(s.base, gid); err != nil {
				s.logger.Error("stalled grievance resume failed", "grievance_id", gid, "error", err)
			}
		}(gid)
	}
}

// GetStatus returns the record, its audit trail, and references to any
// stored notice documents.
func (s *Service) GetStatus(ctx context.Context, gid id.GrievanceID) (StatusReport, error) {
	rec, err := s.records.Get(ctx, gid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return StatusReport{}, dErrors.Wrap(dErrors.CodeNotFound, "grievance not found", err)
		}
		return StatusReport{}, err
	}
	trail, err := s.auditor.List(ctx, gid)
	if err != nil {
		return StatusReport{}, fmt.Errorf("load audit trail: %w", err)
	}
	return StatusReport{
		Record:      rec,
		Trail:       trail,
		NoticeRef:   rec.RenderedRef,
		RedactedRef: rec.RedactedRef,
	}, nil
}

// StartSweeper purges ephemeral fields from aged records on an interval
// until ctx ends.
func (s *Service) StartSweeper(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := s.now().Add(-maxAge)
				n, err := s.records.PurgeEphemeral(ctx, cutoff)
				if err != nil {
					s.logger.Error("ephemeral purge failed", "error", err)
					continue
				}
				if n > 0 {
					s.logger.Info("purged ephemeral fields", "records", n)
				}
			}
		}
	}()
}
