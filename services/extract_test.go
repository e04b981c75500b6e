package services

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lastsold-monitor/models"
)

var captured = time.Date(2024, time.March, 10, 15, 42, 0, 0, time.UTC)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"$12.34", "12.34"},
		{"$1,234.56", "1234.56"},
		{"$1234.56", "1234.56"},
		{" $999,999.99 ", "999999.99"},
		{"$0.00", "0"},
		{"$5", "5"},
		{"$4.5", "4.5"},
		{"USD 99", "99"},
	}

	for _, tt := range tests {
		got, err := ParsePrice(tt.raw)
		require.NoError(t, err, "ParsePrice(%q)", tt.raw)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
			"ParsePrice(%q) = %s; want %s", tt.raw, got, tt.want)
	}
}

func TestParsePriceThousandsSeparatorsAreOptional(t *testing.T) {
	a, err := ParsePrice("$1,234.56")
	require.NoError(t, err)
	b, err := ParsePrice("$1234.56")
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestParsePriceRejects(t *testing.T) {
	for _, raw := range []string{"", "   ", "$", "free", "$12.34.56", "-$3.00", "$-3.00", "$12,34.00", "$1.234", "12 dollars", "$.99", ".5"} {
		_, err := ParsePrice(raw)
		var exErr *ExtractionError
		require.True(t, errors.As(err, &exErr), "ParsePrice(%q) should fail with ExtractionError", raw)
		assert.Equal(t, InvalidPrice, exErr.Kind)
	}
}

func TestParseDateAbsolute(t *testing.T) {
	want := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"Jan 15, 2024", "January 15, 2024", "1/15/2024", "01/15/2024", "1/15/24", "2024-01-15", "  jan  15,  2024 "} {
		got, err := ParseDate(raw, captured)
		require.NoError(t, err, "ParseDate(%q)", raw)
		require.True(t, got.IsAbsolute(), "ParseDate(%q) should be absolute", raw)
		assert.Equal(t, want, got.Date(), "ParseDate(%q)", raw)
	}
}

func TestParseDateRelative(t *testing.T) {
	tests := []struct {
		raw    string
		anchor time.Time
	}{
		{"2 days ago", time.Date(2024, time.March, 8, 0, 0, 0, 0, time.UTC)},
		{"1 day ago", time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC)},
		{"Yesterday", time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC)},
		{"3 hours ago", time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)},
		{"an hour ago", time.Date(2024, time.March, 10, 14, 0, 0, 0, time.UTC)},
		{"5 minutes ago", time.Date(2024, time.March, 10, 15, 37, 0, 0, time.UTC)},
		{"Just now", time.Date(2024, time.March, 10, 15, 42, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, err := ParseDate(tt.raw, captured)
		require.NoError(t, err, "ParseDate(%q)", tt.raw)
		assert.False(t, got.IsAbsolute())
		assert.Equal(t, tt.raw, got.Raw())
		assert.Equal(t, captured, got.CapturedAt())
		assert.Equal(t, tt.anchor, got.Anchor(), "anchor for %q", tt.raw)
	}
}

func TestParseDateRejects(t *testing.T) {
	for _, raw := range []string{"", "Unknown Date", "soon", "13/45/2024", "ago", "2 fortnights ago"} {
		_, err := ParseDate(raw, captured)
		var exErr *ExtractionError
		require.True(t, errors.As(err, &exErr), "ParseDate(%q) should fail", raw)
		assert.Equal(t, InvalidDate, exErr.Kind)
	}
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"NM", "Near Mint"},
		{"nm", "Near Mint"},
		{" Near Mint ", "Near Mint"},
		{"near   mint", "Near Mint"},
		{"LP", "Lightly Played"},
		{"Moderately Played", "Moderately Played"},
		{"hp", "Heavily Played"},
		{"DMG", "Damaged"},
		{"Near Mint Holofoil", "Near Mint Holofoil"},
		{"lp Reverse Holofoil", "Lightly Played Reverse Holofoil"},
		{"Sealed", "Sealed"},
		{"  Graded  PSA 10 ", "Graded PSA 10"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCondition(tt.raw), "ParseCondition(%q)", tt.raw)
	}
}

func TestConditionRank(t *testing.T) {
	nm, ok := ConditionRank("Near Mint Foil")
	require.True(t, ok)
	lp, ok := ConditionRank("LP")
	require.True(t, ok)
	assert.Greater(t, nm, lp)

	_, ok = ConditionRank("Sealed")
	assert.False(t, ok)
}

func TestExtractRecordAllOrNothing(t *testing.T) {
	url := "https://www.tcgplayer.com/product/1/pikachu"

	rec, err := ExtractRecord(url, models.Candidate{RawDate: "1/15/2024", RawCondition: "NM", RawPrice: "$12.34"}, captured)
	require.NoError(t, err)
	assert.Equal(t, "Near Mint", rec.Condition())
	assert.NotEmpty(t, rec.Key())

	_, err = ExtractRecord(url, models.Candidate{RawDate: "1/15/2024", RawCondition: "NM", RawPrice: "$$"}, captured)
	require.Error(t, err)

	_, err = ExtractRecord(url, models.Candidate{RawDate: "1/15/2024", RawCondition: "   ", RawPrice: "$1.00"}, captured)
	var exErr *ExtractionError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, InvalidRecord, exErr.Kind)
	assert.ErrorIs(t, err, models.ErrEmptyCondition)
}

func TestIdentityKeyStableAcrossCaptures(t *testing.T) {
	url := "https://www.tcgplayer.com/product/1/pikachu"
	row := models.Candidate{RawDate: "3 hours ago", RawCondition: "NM", RawPrice: "$12.34"}

	first, err := ExtractRecord(url, row, captured)
	require.NoError(t, err)
	// a minute later the site still shows "3 hours ago" for the same sale
	second, err := ExtractRecord(url, row, captured.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first.Key(), second.Key())

	other, err := ExtractRecord(url, models.Candidate{RawDate: "3 hours ago", RawCondition: "NM", RawPrice: "$12.35"}, captured)
	require.NoError(t, err)
	assert.NotEqual(t, first.Key(), other.Key())
}

func TestIdentityKeyFollowsAgingLabel(t *testing.T) {
	url := "https://www.tcgplayer.com/product/1/pikachu"
	at := time.Date(2024, time.March, 10, 12, 5, 30, 0, time.UTC)
	extract := func(raw string, capturedAt time.Time) models.SaleRecord {
		rec, err := ExtractRecord(url, models.Candidate{RawDate: raw, RawCondition: "NM", RawPrice: "$4.00"}, capturedAt)
		require.NoError(t, err)
		return rec
	}

	assert.Equal(t, extract("5 minutes ago", at).Key(), extract("6 minutes ago", at.Add(time.Minute)).Key())
	assert.Equal(t, extract("Just now", at).Key(), extract("1 minute ago", at.Add(time.Minute)).Key())
	assert.Equal(t, extract("Yesterday", at).Key(), extract("1 day ago", at).Key())

	// crossing midnight moves the day anchor by one unit
	lateNight := time.Date(2024, time.March, 10, 23, 59, 0, 0, time.UTC)
	before := extract("2 days ago", lateNight)
	after := extract("2 days ago", lateNight.Add(2*time.Minute))
	assert.NotEqual(t, before.Key(), after.Key())
	assert.Contains(t, after.NeighbourKeys(), before.Key())
	assert.Contains(t, before.NeighbourKeys(), after.Key())

	abs := extract("1/15/2024", at)
	assert.Nil(t, abs.NeighbourKeys())
}
