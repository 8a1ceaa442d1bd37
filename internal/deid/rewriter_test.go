package deid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewrite_UnknownEntityFallsBackToPlaceholder(t *testing.T) {
	rw := NewRewriter(DefaultGenerators(1))
	text := "widget W-42 shipped"

	out, fragment, err := rw.Rewrite(text, []Span{{Start: 7, End: 11, EntityType: "WIDGET_ID"}})
	require.NoError(t, err)
	assert.Equal(t, "widget [REDACTED-WIDGET_ID] shipped", out)
	assert.Equal(t, ReplacementMap{"WIDGET_ID": {"W-42": "[REDACTED-WIDGET_ID]"}}, fragment)
}

func TestRewrite_SpanOrderDoesNotMatter(t *testing.T) {
	text := "Jane Doe, SSN 123-45-6789, mail jane@example.com"
	spans := []Span{
		{Start: 0, End: 8, EntityType: "PERSON"},
		{Start: 14, End: 25, EntityType: "US_SSN"},
		{Start: 32, End: 48, EntityType: "EMAIL_ADDRESS"},
	}
	table := GeneratorTable{
		"PERSON":        Static("Ann Lee"),
		"US_SSN":        Static("XXX-XX-0000"),
		"EMAIL_ADDRESS": Static("a@b.test"),
	}
	want := "Ann Lee, SSN XXX-XX-0000, mail a@b.test"

	permutations := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 0, 2}, {2, 0, 1}}
	for _, p := range permutations {
		input := []Span{spans[p[0]], spans[p[1]], spans[p[2]]}
		out, _, err := NewRewriter(table).Rewrite(text, input)
		require.NoError(t, err)
		assert.Equal(t, want, out, "order %v", p)
		assert.Equal(t, spans[p[0]], input[0], "input spans must not be reordered")
	}
}

func TestRewrite_RepeatedPairGeneratedOnce(t *testing.T) {
	table, calls := countingTable("PERSON")
	text := "Jane met Jane and Bob"
	spans := []Span{
		{Start: 0, End: 4, EntityType: "PERSON"},
		{Start: 9, End: 13, EntityType: "PERSON"},
		{Start: 18, End: 21, EntityType: "PERSON"},
	}

	out, fragment, err := NewRewriter(table).Rewrite(text, spans)
	require.NoError(t, err)
	assert.Equal(t, 2, *calls)
	assert.Equal(t, fragment["PERSON"]["Jane"]+" met "+fragment["PERSON"]["Jane"]+" and "+fragment["PERSON"]["Bob"], out)
}

func TestRewrite_SameTextDifferentTypesAreSeparatePairs(t *testing.T) {
	table, calls := countingTable("PERSON", "LOCATION")
	text := "Paris visited Paris"
	spans := []Span{
		{Start: 0, End: 5, EntityType: "PERSON"},
		{Start: 14, End: 19, EntityType: "LOCATION"},
	}

	_, fragment, err := NewRewriter(table).Rewrite(text, spans)
	require.NoError(t, err)
	assert.Equal(t, 2, *calls)
	assert.Contains(t, fragment, "PERSON")
	assert.Contains(t, fragment, "LOCATION")
}

func TestRewrite_RoundTrip(t *testing.T) {
	text := "Patient Jane Doe (SSN 123-45-6789) can be reached at jane@example.com or 555-867-5309."
	spans := []Span{
		{Start: 53, End: 69, EntityType: "EMAIL_ADDRESS"},
		{Start: 8, End: 16, EntityType: "PERSON"},
		{Start: 22, End: 33, EntityType: "US_SSN"},
		{Start: 73, End: 85, EntityType: "PHONE_NUMBER"},
	}
	require.Equal(t, "jane@example.com", text[53:69])
	require.Equal(t, "555-867-5309", text[73:85])

	for name, table := range map[string]GeneratorTable{
		"counting": func() GeneratorTable { g, _ := countingTable(DefaultEntities...); return g }(),
		"default":  DefaultGenerators(42),
	} {
		t.Run(name, func(t *testing.T) {
			out, fragment, err := NewRewriter(table).Rewrite(text, spans)
			require.NoError(t, err)
			assert.NotContains(t, out, "Jane Doe")
			assert.NotContains(t, out, "123-45-6789")
			assert.Equal(t, text, Resolve(out, fragment))
		})
	}
}

func TestRewrite_OverlappingSpansApplyFromHighestOffset(t *testing.T) {
	table := GeneratorTable{"A": Static("X"), "B": Static("Y")}
	text := "abcdefghij"

	out, fragment, err := NewRewriter(table).Rewrite(text, []Span{
		{Start: 2, End: 6, EntityType: "A"},
		{Start: 4, End: 8, EntityType: "B"},
	})
	require.NoError(t, err)
	assert.Equal(t, "abXj", out)
	assert.Equal(t, ReplacementMap{"A": {"cdef": "X"}, "B": {"efgh": "Y"}}, fragment)
}

func TestRewrite_OverlapClampsPastShortenedText(t *testing.T) {
	table := GeneratorTable{"A": Static("a"), "B": Static("b")}

	out, _, err := NewRewriter(table).Rewrite("0123456789", []Span{
		{Start: 1, End: 9, EntityType: "A"},
		{Start: 6, End: 10, EntityType: "B"},
	})
	require.NoError(t, err)
	assert.Equal(t, "0a", out)
}

func TestRewrite_StrictRejectsOverlap(t *testing.T) {
	rw := NewRewriter(GeneratorTable{})
	rw.Strict = true

	_, _, err := rw.Rewrite("abcdefghij", []Span{
		{Start: 6, End: 9, EntityType: "C"},
		{Start: 0, End: 8, EntityType: "A"},
		{Start: 2, End: 3, EntityType: "B"},
	})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "overlaps", verr.Reason)
	require.NotNil(t, verr.Other)
}

func TestRewrite_StrictRejectsOutOfRange(t *testing.T) {
	rw := NewRewriter(GeneratorTable{})
	rw.Strict = true

	_, _, err := rw.Rewrite("short", []Span{{Start: 2, End: 40, EntityType: "A"}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 5, verr.TextLen)
	assert.Contains(t, verr.Error(), "out of range")
}

func TestRewrite_LenientDropsOutOfRange(t *testing.T) {
	out, fragment, err := NewRewriter(GeneratorTable{"A": Static("_")}).Rewrite("short", []Span{
		{Start: 2, End: 40, EntityType: "A"},
		{Start: 3, End: 3, EntityType: "A"},
		{Start: 0, End: 1, EntityType: "A"},
	})
	require.NoError(t, err)
	assert.Equal(t, "_hort", out)
	assert.Equal(t, 1, fragment.Len())
}

func TestRewrite_NoSpans(t *testing.T) {
	out, fragment, err := NewRewriter(nil).Rewrite("nothing here", nil)
	require.NoError(t, err)
	assert.Equal(t, "nothing here", out)
	assert.Zero(t, fragment.Len())
}
