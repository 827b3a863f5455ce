package handler

import (
	"strings"

	"github.com/asaskevich/govalidator"

	id "nivaran/pkg/domain"
	dErrors "nivaran/pkg/domain-errors"
)

// SubmitRequest is the HTTP request body for POST /v1/grievances.
type SubmitRequest struct {
	Sender       string `json:"sender"`
	District     string `json:"district"`
	AudioRef     string `json:"audio_ref"`
	LanguageHint string `json:"language_hint"`

	// Parsed values (populated by Validate)
	parsedDistrict id.DistrictCode
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *SubmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.Sender = strings.TrimSpace(r.Sender)
	if r.Sender == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "sender is required")
	}
	if !govalidator.StringLength(r.Sender, "5", "32") {
		return dErrors.New(dErrors.CodeInvalidInput, "sender must be between 5 and 32 characters")
	}

	r.AudioRef = strings.TrimSpace(r.AudioRef)
	if r.AudioRef == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "audio_ref is required")
	}
	if !govalidator.StringLength(r.AudioRef, "1", "512") {
		return dErrors.New(dErrors.CodeInvalidInput, "audio_ref must be at most 512 characters")
	}

	r.District = strings.TrimSpace(strings.ToUpper(r.District))
	district, err := id.ParseDistrictCode(r.District)
	if err != nil {
		return err
	}
	r.parsedDistrict = district

	r.LanguageHint = strings.TrimSpace(r.LanguageHint)
	if r.LanguageHint != "" && !govalidator.StringLength(r.LanguageHint, "2", "16") {
		return dErrors.New(dErrors.CodeInvalidInput, "language_hint must be a short language tag")
	}

	return nil
}

// ParsedDistrict returns the validated district code.
func (r *SubmitRequest) ParsedDistrict() id.DistrictCode {
	return r.parsedDistrict
}
