package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"nivaran/internal/audit"
	"nivaran/internal/delivery"
	"nivaran/internal/delivery/markers"
	"nivaran/internal/docstore"
	"nivaran/internal/grievance"
	"nivaran/internal/grievance/store"
	"nivaran/internal/grounding"
	"nivaran/internal/notice"
	"nivaran/internal/officer"
	"nivaran/internal/redact"
	id "nivaran/pkg/domain"
	"nivaran/pkg/platform/fault"
	"nivaran/pkg/platform/retry"
)

const testDistrict = id.DistrictCode("KA-BLR")

type fakeTranscriber struct {
	text      string
	language  string
	failTimes int32
	permanent error
}

func (f *fakeTranscriber) Transcribe(context.Context, string, string) (Transcript, error) {
	if f.permanent != nil {
		return Transcript{}, f.permanent
	}
	if atomic.AddInt32(&f.failTimes, -1) >= 0 {
		return Transcript{}, fault.Transient(errors.New("speech service 503"))
	}
	return Transcript{Text: f.text, Language: f.language}, nil
}

type fakeTranslator struct{}

func (fakeTranslator) Translate(_ context.Context, text, _, _ string) (string, error) {
	return "water supply has been cut for nine days", nil
}

type fakeSearcher struct {
	score float64
}

func (f fakeSearcher) Search(context.Context, string, int) ([]grounding.Candidate, error) {
	const entry = "Where an essential service is disrupted, supply shall be restored within seventy-two hours."
	return []grounding.Candidate{{
		Excerpt:      "supply shall be restored within seventy-two hours",
		Entry:        entry,
		Score:        f.score,
		ClauseNumber: "Clause 12(3)",
		SectionTitle: "Essential Services",
		SourcePage:   14,
	}}, nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(_ context.Context, f notice.Fields) (string, []byte, error) {
	return "text/plain; charset=utf-8", notice.TextRenderer{}.Render(f), nil
}

type nopTagger struct{}

func (nopTagger) Tag(context.Context, string) ([]redact.Span, error) { return nil, nil }

type countingSender struct {
	sends  atomic.Int32
	prefix string
}

func (c *countingSender) Send(context.Context, delivery.Recipient, docstore.Document) (string, error) {
	n := c.sends.Add(1)
	return fmt.Sprintf("%s-%d", c.prefix, n), nil
}

type failingAuditStore struct{}

func (failingAuditStore) Append(context.Context, audit.Entry) error {
	return errors.New("audit store down")
}

func (failingAuditStore) ListByGrievance(context.Context, id.GrievanceID) ([]audit.Entry, error) {
	return nil, nil
}

type harness struct {
	records       *store.InMemoryRecordStore
	auditStore    audit.Store
	docs          *docstore.InMemoryStore
	markerStore   *markers.InMemoryStore
	userSender    *countingSender
	officerSender *countingSender
	transcriber   *fakeTranscriber
	searcher      fakeSearcher
	seedDistrict  bool
	clock         func() time.Time

	// Optional backend substitutions for failure-injection tests.
	userBackend delivery.Sender
	docsBackend docstore.Store
	directory   officer.Directory

	orch *Orchestrator
}

func newHarness(opts ...func(*harness)) *harness {
	h := &harness{
		records:       store.NewInMemory(),
		auditStore:    audit.NewInMemoryStore(),
		docs:          docstore.NewInMemoryStore(),
		markerStore:   markers.NewInMemoryStore(),
		userSender:    &countingSender{prefix: "wa"},
		officerSender: &countingSender{prefix: "em"},
		transcriber:   &fakeTranscriber{text: "paani nahin aa raha hai", language: "hi"},
		searcher:      fakeSearcher{score: 0.91},
		seedDistrict:  true,
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if h.directory == nil {
		directory := officer.NewInMemoryDirectory()
		if h.seedDistrict {
			directory.Seed(officer.Record{
				District:     testDistrict,
				Email:        "officer@district.example",
				Name:         "A. Rao",
				DistrictName: "Bengaluru Urban",
			})
		}
		h.directory = directory
	}
	if h.userBackend == nil {
		h.userBackend = h.userSender
	}
	if h.docsBackend == nil {
		h.docsBackend = h.docs
	}

	policy := retry.New(retry.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	coordinator := delivery.NewCoordinator(h.markerStore, map[grievance.Channel]delivery.Sender{
		grievance.ChannelUser:    h.userBackend,
		grievance.ChannelOfficer: h.officerSender,
	}, policy, logger)

	h.orch = NewOrchestrator(
		h.records,
		audit.NewPublisher(h.auditStore),
		h.docsBackend,
		h.directory,
		coordinator,
		h.transcriber,
		fakeTranslator{},
		grounding.NewEngine(h.searcher),
		fakeRenderer{},
		redact.NewRedactor(nopTagger{}),
		logger,
		WithRetryPolicy(policy),
		WithClock(func() time.Time { return h.clock() }),
	)
	return h
}

func (h *harness) submit(t *testing.T) id.GrievanceID {
	t.Helper()
	now := h.clock()
	rec := &grievance.Record{
		ID:           id.NewGrievanceID(),
		SenderHash:   "a1b2c3",
		ReplyTo:      "+919900112233",
		District:     testDistrict,
		AudioRef:     "audio/raw-7",
		LanguageHint: "hi",
		Status:       grievance.StatusReceived,
		CreatedAt:    now,
		UpdatedAt:    now,
		DeadlineAt:   now.Add(60 * time.Second),
	}
	if err := h.records.Create(context.Background(), rec); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	return rec.ID
}

func (h *harness) trail(t *testing.T, gid id.GrievanceID) []audit.Entry {
	t.Helper()
	entries, err := h.auditStore.ListByGrievance(context.Background(), gid)
	if err != nil {
		t.Fatalf("list audit trail: %v", err)
	}
	return entries
}

type OrchestratorSuite struct {
	suite.Suite
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) TestHappyPathDeliversAndAuditsEveryStage() {
	h := newHarness()
	gid := h.submit(s.T())

	rec, err := h.orch.Run(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusDelivered, rec.Status)

	s.EqualValues(1, h.userSender.sends.Load())
	s.EqualValues(1, h.officerSender.sends.Load())

	trail := h.trail(s.T(), gid)
	s.Require().Len(trail, 7)
	wantActions := []audit.Action{
		audit.ActionTranscribe, audit.ActionTranslate, audit.ActionGround,
		audit.ActionRender, audit.ActionRedact,
		audit.ActionDeliverUser, audit.ActionDeliverOfficer,
	}
	for i, entry := range trail {
		s.Equal(wantActions[i], entry.Action)
		s.Equal(audit.StatusSuccess, entry.Status)
	}

	// Both documents exist and the officer copy is the redacted one.
	rendered, err := h.docs.Get(context.Background(), rec.RenderedRef)
	s.Require().NoError(err)
	s.Contains(string(rendered.Body), "LEGAL NOTICE")
	_, err = h.docs.Get(context.Background(), rec.RedactedRef)
	s.Require().NoError(err)

	// Ephemeral fields do not survive the terminal status.
	s.Empty(rec.AudioRef)
	s.Empty(rec.Transcript)
}

func (s *OrchestratorSuite) TestNoMatchIsTerminalWithoutRendering() {
	h := newHarness(func(h *harness) { h.searcher = fakeSearcher{score: 0.4} })
	gid := h.submit(s.T())

	rec, err := h.orch.Run(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusNoMatch, rec.Status)
	s.Empty(rec.RenderedRef)
	s.Zero(h.userSender.sends.Load())

	trail := h.trail(s.T(), gid)
	s.Require().Len(trail, 3)
	s.Equal(audit.ActionGround, trail[2].Action)
	s.Equal(audit.StatusFailure, trail[2].Status)
}

func (s *OrchestratorSuite) TestRerunAfterDeliveryIsIdempotent() {
	h := newHarness()
	gid := h.submit(s.T())

	_, err := h.orch.Run(context.Background(), gid)
	s.Require().NoError(err)

	rec, err := h.orch.Run(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusDelivered, rec.Status)

	s.EqualValues(1, h.userSender.sends.Load(), "re-run must not resend")
	s.EqualValues(1, h.officerSender.sends.Load())
	s.Len(h.trail(s.T(), gid), 7, "re-run must not duplicate audit entries")
}

func (s *OrchestratorSuite) TestResumeFromInFlightClaim() {
	h := newHarness()
	gid := h.submit(s.T())

	// Simulate a crash just after the transcription claim was taken.
	rec, err := h.records.Get(context.Background(), gid)
	s.Require().NoError(err)
	rec.Status = grievance.StatusTranscribing
	s.Require().NoError(h.records.Update(context.Background(), rec))

	rec, err = h.orch.Run(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusDelivered, rec.Status)
	s.Len(h.trail(s.T(), gid), 7)
}

func (s *OrchestratorSuite) TestResumeAfterDeliveryClaimDoesNotResend() {
	h := newHarness()
	gid := h.submit(s.T())

	_, err := h.orch.Run(context.Background(), gid)
	s.Require().NoError(err)

	// Simulated operator re-drive from the delivery claim: markers already
	// record both sends, so nothing transmits again.
	rec, err := h.records.Get(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusDelivered, rec.Status)

	s.EqualValues(1, h.userSender.sends.Load())
	s.EqualValues(1, h.officerSender.sends.Load())
}

func (s *OrchestratorSuite) TestDeadlineExceededTimesOut() {
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	current := start
	h := newHarness(func(h *harness) {
		h.clock = func() time.Time { return current }
	})
	gid := h.submit(s.T())

	current = start.Add(61 * time.Second)

	rec, err := h.orch.Run(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusTimeout, rec.Status)
	s.Contains(rec.FailureReason, "deadline")
	s.Zero(h.userSender.sends.Load())
	s.Empty(rec.AudioRef)
}

func (s *OrchestratorSuite) TestUnknownDistrictDeliversUserThenFails() {
	h := newHarness(func(h *harness) { h.seedDistrict = false })
	gid := h.submit(s.T())

	rec, err := h.orch.Run(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusFailed, rec.Status)
	s.Contains(rec.FailureReason, "not registered")

	// The user still received their copy.
	s.EqualValues(1, h.userSender.sends.Load())
	s.Zero(h.officerSender.sends.Load())

	trail := h.trail(s.T(), gid)
	s.Require().Len(trail, 7)
	s.Equal(audit.StatusSuccess, trail[5].Status)
	s.Equal(audit.ActionDeliverOfficer, trail[6].Action)
	s.Equal(audit.StatusFailure, trail[6].Status)
}

func (s *OrchestratorSuite) TestTransientStageFailureRetriesInsideClaim() {
	h := newHarness(func(h *harness) {
		h.transcriber = &fakeTranscriber{text: "paani nahin", language: "hi", failTimes: 2}
	})
	gid := h.submit(s.T())

	rec, err := h.orch.Run(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusDelivered, rec.Status)
	s.Equal(3, rec.StageAttempts[string(audit.ActionTranscribe)])
}

func (s *OrchestratorSuite) TestPermanentStageFailureFails() {
	h := newHarness(func(h *harness) {
		h.transcriber = &fakeTranscriber{permanent: fault.Permanent(errors.New("unsupported audio codec"))}
	})
	gid := h.submit(s.T())

	rec, err := h.orch.Run(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusFailed, rec.Status)
	s.Contains(rec.FailureReason, "unsupported audio codec")

	trail := h.trail(s.T(), gid)
	s.Require().Len(trail, 1)
	s.Equal(audit.StatusFailure, trail[0].Status)
}

func (s *OrchestratorSuite) TestAuditStoreFailureDoesNotBlockPipeline() {
	h := newHarness(func(h *harness) { h.auditStore = failingAuditStore{} })
	gid := h.submit(s.T())

	rec, err := h.orch.Run(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusDelivered, rec.Status)
	s.EqualValues(1, h.userSender.sends.Load())
}

// downSender never succeeds; every attempt is a retryable channel failure.
type downSender struct {
	attempts atomic.Int32
}

func (d *downSender) Send(context.Context, delivery.Recipient, docstore.Document) (string, error) {
	d.attempts.Add(1)
	return "", fault.Transient(errors.New("channel 503"))
}

// flakyDirectory fails the first failures lookups with an infrastructure
// error, then delegates.
type flakyDirectory struct {
	officer.Directory
	failures atomic.Int32
}

func (f *flakyDirectory) Lookup(ctx context.Context, district id.DistrictCode) (officer.Record, error) {
	if f.failures.Add(-1) >= 0 {
		return officer.Record{}, errors.New("directory connection reset")
	}
	return f.Directory.Lookup(ctx, district)
}

// dyingDirectory answers its first lookups, then fails every one after.
type dyingDirectory struct {
	officer.Directory
	successesLeft atomic.Int32
}

func (d *dyingDirectory) Lookup(ctx context.Context, district id.DistrictCode) (officer.Record, error) {
	if d.successesLeft.Add(-1) >= 0 {
		return d.Directory.Lookup(ctx, district)
	}
	return officer.Record{}, errors.New("directory connection reset")
}

// brokenDocstore accepts writes until broken, then fails every Put.
type brokenDocstore struct {
	docstore.Store
	broken bool
}

func (b *brokenDocstore) Put(ctx context.Context, ref string, doc docstore.Document) error {
	if b.broken {
		return errors.New("document store unavailable")
	}
	return b.Store.Put(ctx, ref, doc)
}

func (s *OrchestratorSuite) TestDeliveryRetryExhaustionFailsInOneRun() {
	down := &downSender{}
	h := newHarness(func(h *harness) { h.userBackend = down })
	gid := h.submit(s.T())

	rec, err := h.orch.Run(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusFailed, rec.Status, "exhaustion must finalize in the same run")
	s.Contains(rec.FailureReason, "channel 503")
	s.EqualValues(3, down.attempts.Load())

	// The channel failure reaches the trail even though no send succeeded.
	trail := h.trail(s.T(), gid)
	s.Require().Len(trail, 6)
	s.Equal(audit.ActionDeliverUser, trail[5].Action)
	s.Equal(audit.StatusFailure, trail[5].Status)

	// A re-run observes the resolved marker and changes nothing.
	rec, err = h.orch.Run(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusFailed, rec.Status)
	s.EqualValues(3, down.attempts.Load())
	s.Len(h.trail(s.T(), gid), 6)
}

func (s *OrchestratorSuite) TestOfficerDirectoryBlipIsRetried() {
	h := newHarness(func(h *harness) {
		directory := officer.NewInMemoryDirectory()
		directory.Seed(officer.Record{
			District: testDistrict,
			Email:    "officer@district.example",
			Name:     "A. Rao",
		})
		flaky := &flakyDirectory{Directory: directory}
		flaky.failures.Store(2)
		h.directory = flaky
	})
	gid := h.submit(s.T())

	rec, err := h.orch.Run(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusDelivered, rec.Status)
	s.EqualValues(1, h.officerSender.sends.Load())
}

func (s *OrchestratorSuite) TestOfficerDirectoryOutageResolvesChannel() {
	h := newHarness(func(h *harness) {
		directory := officer.NewInMemoryDirectory()
		directory.Seed(officer.Record{
			District: testDistrict,
			Email:    "officer@district.example",
			Name:     "A. Rao",
		})
		// The render-time lookup succeeds; the directory dies before the
		// officer-delivery lookup.
		dying := &dyingDirectory{Directory: directory}
		dying.successesLeft.Store(1)
		h.directory = dying
	})
	gid := h.submit(s.T())

	rec, err := h.orch.Run(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusFailed, rec.Status)

	s.EqualValues(1, h.userSender.sends.Load(), "the user copy still goes out")
	s.Zero(h.officerSender.sends.Load())

	trail := h.trail(s.T(), gid)
	s.Require().Len(trail, 7)
	s.Equal(audit.ActionDeliverOfficer, trail[6].Action)
	s.Equal(audit.StatusFailure, trail[6].Status)
}

func (s *OrchestratorSuite) TestDocstoreOutageFailsRecordTerminally() {
	h := newHarness(func(h *harness) {
		h.docsBackend = &brokenDocstore{Store: h.docs, broken: true}
	})
	gid := h.submit(s.T())

	rec, err := h.orch.Run(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusFailed, rec.Status, "infrastructure faults must not strand the record mid-pipeline")
	s.Contains(rec.FailureReason, "document store unavailable")

	trail := h.trail(s.T(), gid)
	s.Require().NotEmpty(trail)
	last := trail[len(trail)-1]
	s.Equal(audit.ActionRender, last.Action)
	s.Equal(audit.StatusFailure, last.Status)
}

func (s *OrchestratorSuite) TestCheckpointRejectsIllegalTransition() {
	h := newHarness()
	gid := h.submit(s.T())

	rec, err := h.records.Get(context.Background(), gid)
	s.Require().NoError(err)

	// RECEIVED may not jump straight to DELIVERED.
	err = h.orch.checkpoint(context.Background(), rec, grievance.StatusDelivered, audit.ActionDeliverUser, nil)
	s.Require().Error(err)
	s.True(fault.IsCritical(err))
	s.Empty(h.trail(s.T(), gid), "a rejected checkpoint must not emit an audit entry")

	stored, err := h.records.Get(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusReceived, stored.Status)
}

func (s *OrchestratorSuite) TestFinalizeRejectsIllegalTransition() {
	h := newHarness()
	gid := h.submit(s.T())

	_, err := h.orch.Run(context.Background(), gid)
	s.Require().NoError(err)

	rec, err := h.records.Get(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusDelivered, rec.Status)

	_, err = h.orch.finalize(context.Background(), rec, grievance.StatusFailed, "late failure")
	s.Require().Error(err, "terminal records must not be re-finalized")

	stored, err := h.records.Get(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusDelivered, stored.Status)
}

func (s *OrchestratorSuite) TestAdvanceOnTerminalRecordIsNoOp() {
	h := newHarness()
	gid := h.submit(s.T())

	_, err := h.orch.Run(context.Background(), gid)
	s.Require().NoError(err)

	before := h.trail(s.T(), gid)
	rec, err := h.orch.Advance(context.Background(), gid)
	s.Require().NoError(err)
	s.Equal(grievance.StatusDelivered, rec.Status)
	s.Len(h.trail(s.T(), gid), len(before))
	s.EqualValues(1, h.userSender.sends.Load())
}
