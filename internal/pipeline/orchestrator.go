// Package pipeline drives a grievance from received audio to a delivered
// legal notice. The orchestrator owns every record mutation: it claims a
// stage with a conditional write, executes it under a bounded timeout,
// classifies the outcome and checkpoints the result. Restarting a run is
// always safe because checkpoints are forward-only and delivery is guarded
// by write-once markers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"nivaran/internal/audit"
	"nivaran/internal/delivery"
	"nivaran/internal/docstore"
	"nivaran/internal/grievance"
	"nivaran/internal/grievance/store"
	"nivaran/internal/grounding"
	"nivaran/internal/notice"
	"nivaran/internal/officer"
	"nivaran/internal/platform/metrics"
	"nivaran/internal/redact"
	id "nivaran/pkg/domain"
	"nivaran/pkg/platform/fault"
	"nivaran/pkg/platform/retry"
	"nivaran/pkg/platform/sentinel"
)

// TargetLanguage is the language notices are grounded and rendered in.
const TargetLanguage = "en"

// Per-stage execution budgets. The effective deadline of any stage is the
// earlier of its budget and the grievance's absolute deadline.
var stageBudgets = map[grievance.Status]time.Duration{
	grievance.StatusTranscribing: 15 * time.Second,
	grievance.StatusTranslating:  5 * time.Second,
	grievance.StatusGrounding:    10 * time.Second,
	grievance.StatusRendering:    5 * time.Second,
	grievance.StatusRedacting:    5 * time.Second,
	grievance.StatusDelivering:   15 * time.Second,
}

// Orchestrator executes pipeline stages against one record store.
type Orchestrator struct {
	records  store.RecordStore
	auditor  *audit.Publisher
	docs     docstore.Store
	officers officer.Directory
	deliver  *delivery.Coordinator

	transcriber Transcriber
	translator  Translator
	grounder    *grounding.Engine
	renderer    Renderer
	redactor    *redact.Redactor

	retry  retry.Policy
	now    func() time.Time
	tracer trace.Tracer
	logger *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithClock substitutes the time source, used by deadline tests.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// WithRetryPolicy overrides the default stage retry policy.
func WithRetryPolicy(p retry.Policy) OrchestratorOption {
	return func(o *Orchestrator) { o.retry = p }
}

func NewOrchestrator(
	records store.RecordStore,
	auditor *audit.Publisher,
	docs docstore.Store,
	officers officer.Directory,
	deliverer *delivery.Coordinator,
	transcriber Transcriber,
	translator Translator,
	grounder *grounding.Engine,
	renderer Renderer,
	redactor *redact.Redactor,
	logger *slog.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		records:     records,
		auditor:     auditor,
		docs:        docs,
		officers:    officers,
		deliver:     deliverer,
		transcriber: transcriber,
		translator:  translator,
		grounder:    grounder,
		renderer:    renderer,
		redactor:    redactor,
		retry:       retry.Default(),
		now:         time.Now,
		tracer:      otel.Tracer("nivaran/pipeline"),
		logger:      logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Run advances the grievance until it reaches a terminal status. It is safe
// to call Run again for the same id after a crash or timeout: completed
// stages are skipped and delivery never repeats.
func (o *Orchestrator) Run(ctx context.Context, gid id.GrievanceID) (*grievance.Record, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.Run",
		trace.WithAttributes(attribute.String("grievance_id", gid.String())))
	defer span.End()

	for {
		rec, err := o.Advance(ctx, gid)
		if err != nil {
			return rec, err
		}
		if rec.Status.IsTerminal() {
			return rec, nil
		}
		if err := ctx.Err(); err != nil {
			return rec, err
		}
	}
}

// Advance performs one pipeline step: claim, execute, checkpoint. A version
// conflict means another worker moved the record; Advance reloads and
// yields without treating it as an error.
func (o *Orchestrator) Advance(ctx context.Context, gid id.GrievanceID) (*grievance.Record, error) {
	rec, err := o.records.Get(ctx, gid)
	if err != nil {
		return nil, err
	}
	if rec.Status.IsTerminal() {
		return rec, nil
	}

	if !o.now().Before(rec.DeadlineAt) {
		return o.finalize(ctx, rec, grievance.StatusTimeout, "processing deadline exceeded")
	}

	// Checkpoints claim their next in-flight status first; an in-flight
	// status (fresh claim or crash leftover) executes directly.
	if !rec.Status.InFlight() {
		claimed, err := o.claim(ctx, rec)
		if err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return o.records.Get(ctx, gid)
			}
			return rec, err
		}
		rec = claimed
	}

	return o.execute(ctx, rec)
}

// claim moves a checkpoint status to its in-flight successor.
func (o *Orchestrator) claim(ctx context.Context, rec *grievance.Record) (*grievance.Record, error) {
	var next grievance.Status
	switch rec.Status {
	case grievance.StatusReceived:
		next = grievance.StatusTranscribing
	case grievance.StatusTranscribed:
		next = grievance.StatusTranslating
	case grievance.StatusTranslated:
		next = grievance.StatusGrounding
	case grievance.StatusGrounded:
		next = grievance.StatusRendering
	case grievance.StatusRendered:
		next = grievance.StatusRedacting
	case grievance.StatusRedacted:
		next = grievance.StatusDelivering
	default:
		return nil, fmt.Errorf("status %s has no stage to claim", rec.Status)
	}
	rec.Status = next
	if err := o.records.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (o *Orchestrator) execute(ctx context.Context, rec *grievance.Record) (*grievance.Record, error) {
	stage := rec.Status
	ctx, span := o.tracer.Start(ctx, "pipeline."+string(stage))
	defer span.End()

	deadline := rec.DeadlineAt
	if budget, ok := stageBudgets[stage]; ok {
		if d := o.now().Add(budget); d.Before(deadline) {
			deadline = d
		}
	}
	stageCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	start := o.now()
	var err error
	switch stage {
	case grievance.StatusTranscribing:
		err = o.runTranscribe(stageCtx, rec)
	case grievance.StatusTranslating:
		err = o.runTranslate(stageCtx, rec)
	case grievance.StatusGrounding:
		err = o.runGround(stageCtx, rec)
	case grievance.StatusRendering:
		err = o.runRender(stageCtx, rec)
	case grievance.StatusRedacting:
		err = o.runRedact(stageCtx, rec)
	case grievance.StatusDelivering:
		return o.runDeliver(stageCtx, rec)
	default:
		return rec, fmt.Errorf("status %s is not executable", stage)
	}
	metrics.ObserveStage(string(stage), o.now().Sub(start))

	if err != nil {
		return o.stageFailed(ctx, rec, err)
	}
	return rec, nil
}

// withRetry applies the stage retry policy, counting attempts on the record.
func (o *Orchestrator) withRetry(ctx context.Context, rec *grievance.Record, stage string, op func(ctx context.Context) error) error {
	first := true
	return o.retry.Do(ctx, func(ctx context.Context) error {
		rec.RecordAttempt(stage)
		if !first {
			metrics.StageRetried(stage)
		}
		first = false
		return op(ctx)
	})
}

func (o *Orchestrator) runTranscribe(ctx context.Context, rec *grievance.Record) error {
	var transcript Transcript
	err := o.withRetry(ctx, rec, string(audit.ActionTranscribe), func(ctx context.Context) error {
		var err error
		transcript, err = o.transcriber.Transcribe(ctx, rec.AudioRef, rec.LanguageHint)
		return err
	})
	if err != nil {
		return err
	}
	if transcript.Text == "" {
		return fault.Permanent(errors.New("speech service returned an empty transcript"))
	}

	rec.Transcript = transcript.Text
	rec.Language = transcript.Language
	return o.checkpoint(ctx, rec, grievance.StatusTranscribed, audit.ActionTranscribe, map[string]string{
		"language": transcript.Language,
	})
}

func (o *Orchestrator) runTranslate(ctx context.Context, rec *grievance.Record) error {
	meta := map[string]string{"from": rec.Language, "to": TargetLanguage}
	if rec.Language == TargetLanguage {
		rec.TranslatedText = rec.Transcript
		meta["skipped"] = "already in target language"
		return o.checkpoint(ctx, rec, grievance.StatusTranslated, audit.ActionTranslate, meta)
	}

	var translated string
	err := o.withRetry(ctx, rec, string(audit.ActionTranslate), func(ctx context.Context) error {
		var err error
		translated, err = o.translator.Translate(ctx, rec.Transcript, rec.Language, TargetLanguage)
		return err
	})
	if err != nil {
		return err
	}

	rec.TranslatedText = translated
	return o.checkpoint(ctx, rec, grievance.StatusTranslated, audit.ActionTranslate, meta)
}

func (o *Orchestrator) runGround(ctx context.Context, rec *grievance.Record) error {
	var clause *grievance.ClauseMatch
	err := o.withRetry(ctx, rec, string(audit.ActionGround), func(ctx context.Context) error {
		var err error
		clause, err = o.grounder.Identify(ctx, rec.TranslatedText)
		return err
	})
	if err != nil {
		return err
	}

	rec.Clause = clause
	return o.checkpoint(ctx, rec, grievance.StatusGrounded, audit.ActionGround, map[string]string{
		"clause": clause.ClauseNumber,
		"score":  fmt.Sprintf("%.3f", clause.Score),
	})
}

func (o *Orchestrator) runRender(ctx context.Context, rec *grievance.Record) error {
	// The officer block is optional at render time; only a reachable
	// directory answer (found or not-found) lets the stage proceed.
	var off *officer.Record
	err := o.withRetry(ctx, rec, string(audit.ActionRender), func(ctx context.Context) error {
		found, err := o.officers.Lookup(ctx, rec.District)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fault.Transient(fmt.Errorf("officer lookup: %w", err))
		}
		off = &found
		return nil
	})
	if err != nil {
		return err
	}

	fields, err := notice.BuildFields(rec, off, o.now())
	if err != nil {
		return fault.Permanent(err)
	}

	var contentType string
	var body []byte
	err = o.withRetry(ctx, rec, string(audit.ActionRender), func(ctx context.Context) error {
		var err error
		contentType, body, err = o.renderer.Render(ctx, fields)
		return err
	})
	if err != nil {
		return err
	}

	ref := renderedRef(rec.ID)
	if err := o.docs.Put(ctx, ref, docstore.Document{ContentType: contentType, Body: body}); err != nil {
		return fault.Critical(fmt.Errorf("store rendered notice: %w", err))
	}

	rec.RenderedRef = ref
	return o.checkpoint(ctx, rec, grievance.StatusRendered, audit.ActionRender, map[string]string{
		"ref": ref,
	})
}

func (o *Orchestrator) runRedact(ctx context.Context, rec *grievance.Record) error {
	doc, err := o.docs.Get(ctx, rec.RenderedRef)
	if err != nil {
		return fault.Critical(fmt.Errorf("load rendered notice: %w", err))
	}

	var masked string
	err = o.withRetry(ctx, rec, string(audit.ActionRedact), func(ctx context.Context) error {
		var err error
		masked, err = o.redactor.Redact(ctx, string(doc.Body))
		return err
	})
	if err != nil {
		return err
	}

	ref := redactedRef(rec.ID)
	if err := o.docs.Put(ctx, ref, docstore.Document{ContentType: doc.ContentType, Body: []byte(masked)}); err != nil {
		return fault.Critical(fmt.Errorf("store redacted notice: %w", err))
	}

	rec.RedactedRef = ref
	return o.checkpoint(ctx, rec, grievance.StatusRedacted, audit.ActionRedact, map[string]string{
		"ref": ref,
	})
}

// runDeliver resolves both channels, then the terminal status. Channels are
// independent: a permanently unreachable officer does not undo the user's
// copy, but it does fail the grievance as a whole.
func (o *Orchestrator) runDeliver(ctx context.Context, rec *grievance.Record) (*grievance.Record, error) {
	userOut, err := o.deliverUser(ctx, rec)
	if err != nil {
		if fault.KindOf(err) == fault.KindTransient {
			// Another worker holds the claim or the channel is briefly
			// down; yield and let the next Advance retry.
			return rec, err
		}
		return o.finalize(ctx, rec, grievance.StatusFailed, fmt.Sprintf("user delivery: %v", err))
	}

	officerOut, err := o.deliverOfficer(ctx, rec)
	if err != nil {
		if fault.KindOf(err) == fault.KindTransient {
			return rec, err
		}
		return o.finalize(ctx, rec, grievance.StatusFailed, fmt.Sprintf("officer delivery: %v", err))
	}

	if !userOut.Sent || !officerOut.Sent {
		reason := userOut.Reason
		if userOut.Sent {
			reason = officerOut.Reason
		}
		return o.finalize(ctx, rec, grievance.StatusFailed, reason)
	}
	return o.finalize(ctx, rec, grievance.StatusDelivered, "")
}

func (o *Orchestrator) deliverUser(ctx context.Context, rec *grievance.Record) (delivery.Outcome, error) {
	doc, err := o.docs.Get(ctx, rec.RenderedRef)
	if err != nil {
		return delivery.Outcome{}, fault.Critical(fmt.Errorf("load rendered notice: %w", err))
	}
	out, err := o.deliver.Deliver(ctx, rec.ID, grievance.ChannelUser,
		delivery.Recipient{Address: rec.ReplyTo}, doc)
	o.recordDelivery(ctx, rec, audit.ActionDeliverUser, out, err)
	return out, err
}

func (o *Orchestrator) deliverOfficer(ctx context.Context, rec *grievance.Record) (delivery.Outcome, error) {
	var off officer.Record
	lookupErr := o.withRetry(ctx, rec, string(audit.ActionDeliverOfficer), func(ctx context.Context) error {
		found, err := o.officers.Lookup(ctx, rec.District)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return err
			}
			return fault.Transient(fmt.Errorf("officer lookup: %w", err))
		}
		off = found
		return nil
	})
	if lookupErr != nil {
		// Not-found and an unreachable directory both resolve the channel
		// permanently; a half-finished grievance must not sit in DELIVERING
		// waiting for a lookup that may never succeed.
		reason := fmt.Sprintf("district %s is not registered", rec.District)
		if !errors.Is(lookupErr, sentinel.ErrNotFound) {
			reason = lookupErr.Error()
		}
		out, failErr := o.deliver.FailPermanently(ctx, rec.ID, grievance.ChannelOfficer, reason)
		o.recordDelivery(ctx, rec, audit.ActionDeliverOfficer, out, nil)
		return out, failErr
	}

	doc, err := o.docs.Get(ctx, rec.RedactedRef)
	if err != nil {
		return delivery.Outcome{}, fault.Critical(fmt.Errorf("load redacted notice: %w", err))
	}
	out, err := o.deliver.Deliver(ctx, rec.ID, grievance.ChannelOfficer,
		delivery.Recipient{Address: off.Email, Name: off.Name}, doc)
	o.recordDelivery(ctx, rec, audit.ActionDeliverOfficer, out, err)
	return out, err
}

// recordDelivery emits the per-channel audit entry once the channel has a
// resolved outcome. In-flight claims held elsewhere produce no entry; the
// owning invocation writes it.
func (o *Orchestrator) recordDelivery(ctx context.Context, rec *grievance.Record, action audit.Action, out delivery.Outcome, err error) {
	if err != nil && fault.KindOf(err) == fault.KindTransient {
		return
	}
	if out.Prior {
		// The invocation that resolved the marker wrote the entry.
		return
	}
	entry := audit.Entry{
		GrievanceID: rec.ID,
		Action:      action,
		Status:      audit.StatusSuccess,
	}
	switch {
	case err != nil:
		entry.Status = audit.StatusFailure
		entry.Error = err.Error()
	case !out.Sent:
		entry.Status = audit.StatusFailure
		entry.Error = out.Reason
	default:
		entry.Metadata = map[string]string{"message_id": out.MessageID}
	}
	o.emit(ctx, entry)
}

// checkpoint conditionally writes the stage result, then emits the stage's
// single audit entry. The write happening first means a crash between the
// two loses the entry, never duplicates the stage.
func (o *Orchestrator) checkpoint(ctx context.Context, rec *grievance.Record, next grievance.Status, action audit.Action, meta map[string]string) error {
	if !rec.Status.CanTransition(next) {
		return fault.Critical(fmt.Errorf("illegal transition %s -> %s", rec.Status, next))
	}
	rec.Status = next
	if err := o.records.Update(ctx, rec); err != nil {
		return fault.Critical(fmt.Errorf("checkpoint %s: %w", next, err))
	}
	o.emit(ctx, audit.Entry{
		GrievanceID: rec.ID,
		Action:      action,
		Status:      audit.StatusSuccess,
		Metadata:    meta,
	})
	return nil
}

// stageFailed resolves a failed stage into its terminal status. Critical
// faults fail the record too: a stuck in-flight claim is worse than a FAILED
// record an operator can see and act on.
func (o *Orchestrator) stageFailed(ctx context.Context, rec *grievance.Record, cause error) (*grievance.Record, error) {
	if errors.Is(cause, context.DeadlineExceeded) && !o.now().Before(rec.DeadlineAt) {
		return o.finalize(ctx, rec, grievance.StatusTimeout, "processing deadline exceeded")
	}
	if fault.IsCritical(cause) {
		o.logger.Error("stage hit infrastructure failure",
			"grievance_id", rec.ID, "stage", rec.Status, "error", cause)
	}

	action := actionForStatus(rec.Status)
	o.emit(ctx, audit.Entry{
		GrievanceID: rec.ID,
		Action:      action,
		Status:      audit.StatusFailure,
		Error:       cause.Error(),
	})

	if rec.Status == grievance.StatusGrounding && errors.Is(cause, grounding.ErrNoMatch) {
		return o.finalize(ctx, rec, grievance.StatusNoMatch, cause.Error())
	}
	return o.finalize(ctx, rec, grievance.StatusFailed, cause.Error())
}

// finalize writes a terminal status and purges ephemeral fields.
func (o *Orchestrator) finalize(ctx context.Context, rec *grievance.Record, status grievance.Status, reason string) (*grievance.Record, error) {
	if !rec.Status.CanTransition(status) {
		return rec, fmt.Errorf("illegal transition %s -> %s", rec.Status, status)
	}
	rec.Status = status
	rec.FailureReason = reason
	rec.PurgeEphemeral()
	if err := o.records.Update(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return o.records.Get(ctx, rec.ID)
		}
		return rec, fault.Critical(fmt.Errorf("finalize %s: %w", status, err))
	}
	metrics.TerminalStatus(string(status))
	o.logger.Info("grievance reached terminal status",
		"grievance_id", rec.ID, "status", status, "reason", reason)
	return rec, nil
}

// emit writes an audit entry; an audit-store failure is surfaced in logs and
// metrics but never blocks the pipeline.
func (o *Orchestrator) emit(ctx context.Context, entry audit.Entry) {
	if err := o.auditor.Emit(ctx, entry); err != nil {
		metrics.AuditWriteFailed()
		o.logger.Error("audit write failed",
			"grievance_id", entry.GrievanceID, "action", entry.Action, "error", err)
	}
}

func actionForStatus(s grievance.Status) audit.Action {
	switch s {
	case grievance.StatusTranscribing:
		return audit.ActionTranscribe
	case grievance.StatusTranslating:
		return audit.ActionTranslate
	case grievance.StatusGrounding:
		return audit.ActionGround
	case grievance.StatusRendering:
		return audit.ActionRender
	case grievance.StatusRedacting:
		return audit.ActionRedact
	default:
		return audit.ActionDeliverUser
	}
}

func renderedRef(gid id.GrievanceID) string { return "notice/" + gid.String() }

func redactedRef(gid id.GrievanceID) string { return "notice/" + gid.String() + "/redacted" }
