package domain

import (
	"strings"

	dErrors "nivaran/pkg/domain-errors"
)

// DistrictCode identifies the administrative district a grievance belongs to.
// Invariant: uppercase letters, digits and hyphens, 3 to 12 characters.
//
// Usage: construct via ParseDistrictCode at trust boundaries to enforce the
// format; direct casting bypasses validation.
type DistrictCode string

// ParseDistrictCode constructs a DistrictCode from external input.
func ParseDistrictCode(s string) (DistrictCode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 3 || len(s) > 12 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "district code must be 3 to 12 characters")
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return "", dErrors.New(dErrors.CodeInvalidInput, "district code contains invalid characters")
		}
	}
	return DistrictCode(s), nil
}

func (d DistrictCode) String() string { return string(d) }

func (d DistrictCode) IsNil() bool { return d == "" }
