package domain

import (
	"github.com/google/uuid"

	dErrors "nivaran/pkg/domain-errors"
)

// GrievanceID is a typed UUID so grievance identifiers cannot be mixed up
// with other strings at compile time. Construct via ParseGrievanceID at
// trust boundaries; direct casting bypasses validation.
type GrievanceID uuid.UUID

// NewGrievanceID returns a fresh random grievance identifier.
func NewGrievanceID() GrievanceID {
	return GrievanceID(uuid.New())
}

// ParseGrievanceID validates external input into a GrievanceID.
func ParseGrievanceID(s string) (GrievanceID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return GrievanceID{}, err
	}
	return GrievanceID(u), nil
}

func (g GrievanceID) String() string { return uuid.UUID(g).String() }

func (g GrievanceID) IsNil() bool { return uuid.UUID(g) == uuid.Nil }

// MarshalText renders the canonical UUID form so IDs serialize as strings in
// JSON and wire payloads.
func (g GrievanceID) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *GrievanceID) UnmarshalText(b []byte) error {
	parsed, err := ParseGrievanceID(string(b))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs.
func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return u, nil
}
