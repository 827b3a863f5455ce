package redact

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTagger flags every occurrence of the configured names and places.
type stubTagger struct {
	persons   []string
	locations []string
	err       error
}

func (s *stubTagger) Tag(_ context.Context, text string) ([]Span, error) {
	if s.err != nil {
		return nil, s.err
	}
	var spans []Span
	flag := func(terms []string, category string) {
		for _, term := range terms {
			idx := 0
			for {
				i := strings.Index(text[idx:], term)
				if i < 0 {
					break
				}
				spans = append(spans, Span{Start: idx + i, End: idx + i + len(term), Category: category})
				idx += i + len(term)
			}
		}
	}
	flag(s.persons, "person")
	flag(s.locations, "location")
	return spans, nil
}

func TestRedactor_Patterns(t *testing.T) {
	ctx := context.Background()
	r := NewRedactor(nil)

	cases := []struct {
		name  string
		input string
	}{
		{"national id plain", "my id is 123412341234 ok"},
		{"national id grouped", "id 1234 5678 9012 here"},
		{"pan", "PAN ABCDE1234F attached"},
		{"phone", "call me on 9876543210 today"},
		{"phone with country code", "call +91 9876543210 today"},
		{"email", "write to asha.k@example.com please"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := r.Redact(ctx, tc.input)
			require.NoError(t, err)
			assert.Contains(t, out, Mask)
			assert.Empty(t, ScanPatterns(out), "no configured pattern may survive")
		})
	}
}

func TestRedactor_Idempotence(t *testing.T) {
	ctx := context.Background()
	tagger := &stubTagger{persons: []string{"Asha Kulkarni"}, locations: []string{"Pune"}}
	r := NewRedactor(tagger)

	input := "Asha Kulkarni of Pune, id 1234 5678 9012, phone 9876543210, asha@example.com"

	once, err := r.Redact(ctx, input)
	require.NoError(t, err)
	twice, err := r.Redact(ctx, once)
	require.NoError(t, err)

	assert.Equal(t, once, twice, "redact(redact(d)) must equal redact(d)")
}

func TestRedactor_EntityRules(t *testing.T) {
	ctx := context.Background()

	t.Run("person and location spans are masked", func(t *testing.T) {
		tagger := &stubTagger{persons: []string{"Ravi Sharma"}, locations: []string{"Nashik"}}
		r := NewRedactor(tagger)

		out, err := r.Redact(ctx, "Complainant Ravi Sharma reports outage in Nashik ward 4")
		require.NoError(t, err)
		assert.NotContains(t, out, "Ravi Sharma")
		assert.NotContains(t, out, "Nashik")
		assert.Contains(t, out, "ward 4", "non-PII content survives")
	})

	t.Run("other categories are left alone", func(t *testing.T) {
		tagger := &stubTagger{}
		r := NewRedactor(tagger)
		out, err := r.Redact(ctx, "the water board ignored three notices")
		require.NoError(t, err)
		assert.Equal(t, "the water board ignored three notices", out)
	})

	t.Run("tagger failure fails the redaction", func(t *testing.T) {
		r := NewRedactor(&stubTagger{err: errors.New("model down")})
		_, err := r.Redact(ctx, "some text")
		require.Error(t, err)
	})
}

func TestRedactor_Completeness(t *testing.T) {
	ctx := context.Background()
	r := NewRedactor(nil)

	// Adjacent and overlapping identifiers in one line.
	input := "ids: 123412341234 9876543210 ABCDE1234F a@b.co and 1234-5678-9012"
	out, err := r.Redact(ctx, input)
	require.NoError(t, err)
	assert.Empty(t, ScanPatterns(out))
	assert.NotContains(t, out, "123412341234")
	assert.NotContains(t, out, "ABCDE1234F")
}

func TestRedactor_MalformedInput(t *testing.T) {
	r := NewRedactor(nil)
	_, err := r.Redact(context.Background(), string([]byte{0xff, 0xfe, 'a'}))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestRedactor_OverlappingSpans(t *testing.T) {
	text := "abcdefghij"
	out := applySpans(text, []Span{
		{Start: 2, End: 6},
		{Start: 4, End: 8},
	})
	assert.Equal(t, "ab"+Mask+"ij", out)
}
