package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lastsold-monitor/models"
)

// ExtractionKind says which field of a candidate row could not be parsed.
type ExtractionKind string

const (
	InvalidPrice  ExtractionKind = "invalid_price"
	InvalidDate   ExtractionKind = "invalid_date"
	InvalidRecord ExtractionKind = "invalid_record"
)

// ExtractionError reports a malformed field together with the raw text that
// caused it.
type ExtractionError struct {
	Kind ExtractionKind
	Text string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %q: %v", e.Kind, e.Text, e.Err)
	}
	return fmt.Sprintf("%s: %q", e.Kind, e.Text)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

var (
	// priceRegexp accepts $1,234.56, $1234.56, $12.3 and $12; commas must group by
	// three and a leading digit is required, so "$.99" is rejected
	priceRegexp = regexp.MustCompile(`^\$?\s*(\d{1,3}(?:,\d{3})+|\d+)(\.\d{1,2})?$`)
	// relativeRegexp captures "3 hours ago", "an hour ago", "1 min ago"
	relativeRegexp = regexp.MustCompile(`^(\d+|an?|one)\s+(minute|min|hour|hr|day|week|wk)s?\s+ago$`)

	absoluteLayouts = []string{
		"Jan 2, 2006",
		"January 2, 2006",
		"Jan 2 2006",
		"1/2/2006",
		"1/2/06",
		"2006-01-02",
	}
)

// ParsePrice turns currency text into a decimal. Thousands separators are
// optional but must be well placed; negative or malformed values are rejected.
func ParsePrice(text string) (decimal.Decimal, error) {
	s := normaliseText(text)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "USD"), "USD")
	s = strings.TrimSpace(s)

	if s == "" {
		return decimal.Zero, &ExtractionError{Kind: InvalidPrice, Text: text, Err: fmt.Errorf("empty")}
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "$-") {
		return decimal.Zero, &ExtractionError{Kind: InvalidPrice, Text: text, Err: fmt.Errorf("negative")}
	}

	m := priceRegexp.FindStringSubmatch(s)
	if m == nil {
		return decimal.Zero, &ExtractionError{Kind: InvalidPrice, Text: text}
	}

	d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", "") + m[2])
	if err != nil {
		return decimal.Zero, &ExtractionError{Kind: InvalidPrice, Text: text, Err: err}
	}
	return d, nil
}

// ParseDate recognises absolute dates and relative "ago" labels. Relative
// labels keep their raw text and the capture time because they cannot be
// compared across runs on their own.
func ParseDate(text string, capturedAt time.Time) (models.SoldAt, error) {
	s := normaliseText(text)
	if s == "" {
		return models.SoldAt{}, &ExtractionError{Kind: InvalidDate, Text: text, Err: fmt.Errorf("empty")}
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.AbsoluteDate(t), nil
		}
	}

	lower := strings.ToLower(s)
	switch lower {
	case "just now", "now", "moments ago":
		return models.RelativeLabel(s, capturedAt, 0, models.UnitMinute), nil
	case "today":
		return models.RelativeLabel(s, capturedAt, 0, models.UnitDay), nil
	case "yesterday":
		return models.RelativeLabel(s, capturedAt, 1, models.UnitDay), nil
	}

	m := relativeRegexp.FindStringSubmatch(lower)
	if m == nil {
		return models.SoldAt{}, &ExtractionError{Kind: InvalidDate, Text: text}
	}

	amount := 1
	if n, err := strconv.Atoi(m[1]); err == nil {
		amount = n
	}

	var unit models.TimeUnit
	switch m[2] {
	case "minute", "min":
		unit = models.UnitMinute
	case "hour", "hr":
		unit = models.UnitHour
	case "day":
		unit = models.UnitDay
	case "week", "wk":
		unit = models.UnitWeek
	}
	return models.RelativeLabel(s, capturedAt, amount, unit), nil
}

type conditionLabel struct {
	canonical string
	rank      int
}

var conditionVocabulary = []conditionLabel{
	{"Mint", 6},
	{"Near Mint", 5},
	{"Lightly Played", 4},
	{"Moderately Played", 3},
	{"Heavily Played", 2},
	{"Damaged", 1},
}

// conditionAliases maps lowercased spellings to canonical labels.
var conditionAliases = map[string]string{
	"mint":              "Mint",
	"m":                 "Mint",
	"near mint":         "Near Mint",
	"near-mint":         "Near Mint",
	"nm":                "Near Mint",
	"lightly played":    "Lightly Played",
	"lp":                "Lightly Played",
	"moderately played": "Moderately Played",
	"mp":                "Moderately Played",
	"heavily played":    "Heavily Played",
	"hp":                "Heavily Played",
	"damaged":           "Damaged",
	"dmg":               "Damaged",
	"d":                 "Damaged",
}

// ParseCondition trims and canonicalises a condition. A known label followed
// by a printing such as "Holofoil" keeps the printing; unknown text is
// returned with only its whitespace normalised.
func ParseCondition(text string) string {
	s := normaliseText(text)
	if canonical, rest, ok := splitCondition(s); ok {
		if rest == "" {
			return canonical
		}
		return canonical + " " + rest
	}
	return s
}

// ConditionRank orders the known vocabulary, higher is better.
func ConditionRank(label string) (int, bool) {
	canonical, _, ok := splitCondition(normaliseText(label))
	if !ok {
		return 0, false
	}
	for _, c := range conditionVocabulary {
		if c.canonical == canonical {
			return c.rank, true
		}
	}
	return 0, false
}

func splitCondition(s string) (canonical, rest string, ok bool) {
	words := strings.Fields(s)
	for n := min(2, len(words)); n >= 1; n-- {
		head := strings.ToLower(strings.Join(words[:n], " "))
		if c, found := conditionAliases[head]; found {
			return c, strings.Join(words[n:], " "), true
		}
	}
	return "", "", false
}

// ExtractRecord runs every field parser over a candidate row and builds the
// record, or fails the whole row.
func ExtractRecord(cardURL string, c models.Candidate, capturedAt time.Time) (models.SaleRecord, error) {
	price, err := ParsePrice(c.RawPrice)
	if err != nil {
		return models.SaleRecord{}, err
	}
	soldAt, err := ParseDate(c.RawDate, capturedAt)
	if err != nil {
		return models.SaleRecord{}, err
	}

	rec, err := models.NewSaleRecord(cardURL, c.Title, price, soldAt, ParseCondition(c.RawCondition))
	if err != nil {
		row := strings.Join([]string{c.RawDate, c.RawCondition, c.RawPrice}, " | ")
		return models.SaleRecord{}, &ExtractionError{Kind: InvalidRecord, Text: row, Err: err}
	}
	return rec, nil
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
