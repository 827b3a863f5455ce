// Package grievance holds the processing record and its status machine. The
// record is mutated exclusively by the orchestrator through conditional
// (version-checked) store writes.
package grievance

import (
	"maps"
	"time"

	id "nivaran/pkg/domain"
)

// Status is the pipeline position of a grievance. "-ING" statuses mark a
// claimed, in-flight stage; the others are durable checkpoints. Transitions
// only move forward or to a terminal failure status, never backward.
type Status string

const (
	StatusReceived     Status = "RECEIVED"
	StatusTranscribing Status = "TRANSCRIBING"
	StatusTranscribed  Status = "TRANSCRIBED"
	StatusTranslating  Status = "TRANSLATING"
	StatusTranslated   Status = "TRANSLATED"
	StatusGrounding    Status = "GROUNDING"
	StatusGrounded     Status = "GROUNDED"
	StatusNoMatch      Status = "NO_MATCH"
	StatusRendering    Status = "RENDERING"
	StatusRendered     Status = "RENDERED"
	StatusRedacting    Status = "REDACTING"
	StatusRedacted     Status = "REDACTED"
	StatusDelivering   Status = "DELIVERING"
	StatusDelivered    Status = "DELIVERED"
	StatusFailed       Status = "FAILED"
	StatusTimeout      Status = "TIMEOUT"
)

// transitions is the single source of truth for legal forward moves. FAILED
// and TIMEOUT are reachable from every non-terminal status and are therefore
// handled in CanTransition rather than listed per status.
var transitions = map[Status][]Status{
	StatusReceived:     {StatusTranscribing},
	StatusTranscribing: {StatusTranscribed},
	StatusTranscribed:  {StatusTranslating},
	StatusTranslating:  {StatusTranslated},
	StatusTranslated:   {StatusGrounding},
	StatusGrounding:    {StatusGrounded, StatusNoMatch},
	StatusGrounded:     {StatusRendering},
	StatusRendering:    {StatusRendered},
	StatusRendered:     {StatusRedacting},
	StatusRedacting:    {StatusRedacted},
	StatusRedacted:     {StatusDelivering},
	StatusDelivering:   {StatusDelivered},
}

// IsTerminal reports whether the pipeline will never advance s further.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusNoMatch, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// InFlight reports whether s marks a claimed stage awaiting completion.
func (s Status) InFlight() bool {
	switch s {
	case StatusTranscribing, StatusTranslating, StatusGrounding,
		StatusRendering, StatusRedacting, StatusDelivering:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal move.
func (s Status) CanTransition(to Status) bool {
	if s.IsTerminal() {
		return false
	}
	if to == StatusFailed || to == StatusTimeout {
		return true
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Channel is an independent transmission path with its own at-most-once
// guarantee.
type Channel string

const (
	// ChannelUser is the sender-facing messaging channel; it receives the
	// full rendered notice.
	ChannelUser Channel = "user"
	// ChannelOfficer is the district officer's email channel; it receives
	// the redacted copy.
	ChannelOfficer Channel = "officer"
)

// ClauseMatch is a literal citation from the legal corpus. Excerpt is copied
// from the retrieved corpus entry, never generated or paraphrased.
type ClauseMatch struct {
	ClauseNumber string  `json:"clause_number"`
	SectionTitle string  `json:"section_title"`
	Excerpt      string  `json:"excerpt"`
	Score        float64 `json:"score"`
	SourcePage   int     `json:"source_page"`
}

// Record is the persisted state of one grievance. AudioRef and Transcript
// are ephemeral: they are cleared when the record reaches a terminal status
// and are additionally purged by TTL regardless of outcome.
type Record struct {
	ID           id.GrievanceID
	SenderHash   string
	ReplyTo      string
	District     id.DistrictCode
	AudioRef     string
	LanguageHint string

	Transcript     string
	Language       string
	TranslatedText string
	Clause         *ClauseMatch
	RenderedRef    string
	RedactedRef    string

	Status        Status
	FailureReason string
	StageAttempts map[string]int

	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeadlineAt time.Time

	// Version guards conditional updates; the store bumps it on every write.
	Version int64
}

// Clone returns a deep copy so stores never leak shared mutable state.
func (r *Record) Clone() *Record {
	cp := *r
	if r.Clause != nil {
		clause := *r.Clause
		cp.Clause = &clause
	}
	if r.StageAttempts != nil {
		cp.StageAttempts = maps.Clone(r.StageAttempts)
	}
	return &cp
}

// RecordAttempt bumps the retry counter for a stage.
func (r *Record) RecordAttempt(stage string) {
	if r.StageAttempts == nil {
		r.StageAttempts = make(map[string]int)
	}
	r.StageAttempts[stage]++
}

// PurgeEphemeral clears fields that must not outlive processing.
func (r *Record) PurgeEphemeral() {
	r.AudioRef = ""
	r.Transcript = ""
}
