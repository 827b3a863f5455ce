// Package notice assembles the legal-notice document from a grounded
// grievance. Rendering is split in two: Fields is the language-neutral data
// the notice carries, and a Renderer turns Fields into a document. The
// production renderer is a collaborator service; TextRenderer is the local
// plain-text fallback used by the dev stubs and tests.
package notice

import (
	"fmt"
	"strings"
	"time"

	"nivaran/internal/grievance"
	"nivaran/internal/officer"
	id "nivaran/pkg/domain"
)

// Fields is everything a renderer needs to produce the notice.
type Fields struct {
	GrievanceID  id.GrievanceID `json:"grievance_id"`
	IssuedAt     time.Time      `json:"issued_at"`
	Grievance    string         `json:"grievance"`
	Language     string         `json:"language"`
	ClauseNumber string         `json:"clause_number"`
	SectionTitle string         `json:"section_title"`
	Excerpt      string         `json:"excerpt"`
	SourcePage   int            `json:"source_page"`
	District     string         `json:"district"`
	DistrictName string         `json:"district_name,omitempty"`
	OfficerName  string         `json:"officer_name,omitempty"`
}

// BuildFields assembles Fields from a grounded record. The officer entry is
// optional: the user-channel notice renders without one when the district is
// not registered.
func BuildFields(rec *grievance.Record, off *officer.Record, now time.Time) (Fields, error) {
	if rec.Clause == nil {
		return Fields{}, fmt.Errorf("grievance %s has no grounded clause", rec.ID)
	}
	text := rec.TranslatedText
	if text == "" {
		text = rec.Transcript
	}
	f := Fields{
		GrievanceID:  rec.ID,
		IssuedAt:     now.UTC(),
		Grievance:    text,
		Language:     rec.Language,
		ClauseNumber: rec.Clause.ClauseNumber,
		SectionTitle: rec.Clause.SectionTitle,
		Excerpt:      rec.Clause.Excerpt,
		SourcePage:   rec.Clause.SourcePage,
		District:     rec.District.String(),
	}
	if off != nil {
		f.DistrictName = off.DistrictName
		f.OfficerName = off.Name
	}
	return f, nil
}

// TextRenderer produces the plain-text notice.
type TextRenderer struct{}

func (TextRenderer) Render(f Fields) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "LEGAL NOTICE\nReference: %s\nDate: %s\n\n", f.GrievanceID, f.IssuedAt.Format("2 January 2006"))
	if f.DistrictName != "" {
		fmt.Fprintf(&b, "To the Grievance Officer, %s", f.DistrictName)
		if f.OfficerName != "" {
			fmt.Fprintf(&b, " (Attn: %s)", f.OfficerName)
		}
		b.WriteString("\n\n")
	} else {
		fmt.Fprintf(&b, "To the Grievance Officer, district %s\n\n", f.District)
	}
	fmt.Fprintf(&b, "Subject: Grievance under %s, %s\n\n", f.ClauseNumber, f.SectionTitle)
	fmt.Fprintf(&b, "The undersigned raises the following grievance:\n\n%s\n\n", f.Grievance)
	fmt.Fprintf(&b, "The above falls within %s (%s), which provides:\n\n  %q\n", f.ClauseNumber, f.SectionTitle, f.Excerpt)
	if f.SourcePage > 0 {
		fmt.Fprintf(&b, "  (source page %d)\n", f.SourcePage)
	}
	b.WriteString("\nYou are requested to act on this grievance within the period the cited provision prescribes.\n")
	return []byte(b.String())
}
