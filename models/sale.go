package models

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Candidate holds the raw text of one "last sold" row exactly as it was
// segmented out of the rendered page. Nothing here has been validated yet.
type Candidate struct {
	Index        int
	Title        string
	RawDate      string
	RawCondition string
	RawPrice     string
}

// TimeUnit is the granularity of a relative "sold" label.
type TimeUnit int

const (
	UnitNone TimeUnit = iota
	UnitMinute
	UnitHour
	UnitDay
	UnitWeek
)

// Duration returns the length of one unit.
func (u TimeUnit) Duration() time.Duration {
	switch u {
	case UnitMinute:
		return time.Minute
	case UnitHour:
		return time.Hour
	case UnitDay:
		return 24 * time.Hour
	case UnitWeek:
		return 7 * 24 * time.Hour
	}
	return 0
}

func (u TimeUnit) String() string {
	switch u {
	case UnitMinute:
		return "minute"
	case UnitHour:
		return "hour"
	case UnitDay:
		return "day"
	case UnitWeek:
		return "week"
	}
	return "none"
}

// SoldAt is either an absolute calendar date or a relative label together
// with the moment it was captured.
type SoldAt struct {
	absolute time.Time

	raw        string
	capturedAt time.Time
	amount     int
	unit       TimeUnit
}

// AbsoluteDate builds a SoldAt for a calendar date. The time of day is dropped.
func AbsoluteDate(t time.Time) SoldAt {
	y, m, d := t.Date()
	return SoldAt{absolute: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// RelativeLabel builds a SoldAt for labels like "3 hours ago". amount units
// before capturedAt is the approximate sale time.
func RelativeLabel(raw string, capturedAt time.Time, amount int, unit TimeUnit) SoldAt {
	return SoldAt{
		raw:        strings.TrimSpace(raw),
		capturedAt: capturedAt.UTC(),
		amount:     amount,
		unit:       unit,
	}
}

func (s SoldAt) IsZero() bool { return s.absolute.IsZero() && s.raw == "" }

func (s SoldAt) IsAbsolute() bool { return !s.absolute.IsZero() }

// Date returns the calendar date; only meaningful when IsAbsolute.
func (s SoldAt) Date() time.Time { return s.absolute }

// Raw returns the relative label as scraped.
func (s SoldAt) Raw() string { return s.raw }

// Unit returns the granularity of a relative label.
func (s SoldAt) Unit() TimeUnit { return s.unit }

// CapturedAt returns when the relative label was observed.
func (s SoldAt) CapturedAt() time.Time { return s.capturedAt }

// Anchor is the approximate sale instant of a relative label, truncated to
// the label's unit in UTC. A label that ages ("5 minutes ago" becoming
// "6 minutes ago") keeps its anchor until the capture crosses a unit
// boundary, and then moves by at most one unit.
func (s SoldAt) Anchor() time.Time {
	if s.IsAbsolute() {
		return s.absolute
	}
	step := s.unit.Duration()
	if step == 0 {
		return s.capturedAt.Truncate(time.Minute)
	}
	return s.capturedAt.Add(-time.Duration(s.amount) * step).UTC().Truncate(step)
}

// identity is the soldAt contribution to a record's identity key. Relative
// labels contribute their unit and anchor, never the label text.
func (s SoldAt) identity() string {
	if s.IsAbsolute() {
		return s.absolute.Format("2006-01-02")
	}
	return s.relativeIdentity(s.Anchor())
}

func (s SoldAt) relativeIdentity(anchor time.Time) string {
	unit := s.unit
	if unit == UnitNone {
		unit = UnitMinute
	}
	return unit.String() + "@" + anchor.Format(time.RFC3339)
}

// neighbours returns the identities one unit either side of the anchor.
func (s SoldAt) neighbours() []string {
	if s.IsAbsolute() {
		return nil
	}
	step := s.unit.Duration()
	if step == 0 {
		step = time.Minute
	}
	anchor := s.Anchor()
	return []string{
		s.relativeIdentity(anchor.Add(-step)),
		s.relativeIdentity(anchor.Add(step)),
	}
}

// String renders the value for humans and persisted snapshots.
func (s SoldAt) String() string {
	if s.IsAbsolute() {
		return s.absolute.Format("2006-01-02")
	}
	return s.raw + " (seen " + s.capturedAt.Format("2006-01-02 15:04 MST") + ")"
}

var (
	ErrEmptyCardURL   = errors.New("sale record: empty card url")
	ErrNegativePrice  = errors.New("sale record: negative price")
	ErrMissingSoldAt  = errors.New("sale record: missing sold date")
	ErrEmptyCondition = errors.New("sale record: empty condition")
)

// SaleRecord is one observed "last sold" transaction for a card listing.
// Fields are unexported so a record cannot change after NewSaleRecord.
type SaleRecord struct {
	cardURL   string
	title     string
	price     decimal.Decimal
	soldAt    SoldAt
	condition string
	key       string
}

// NewSaleRecord validates every field and derives the identity key. It never
// returns a partially populated record.
func NewSaleRecord(cardURL, title string, price decimal.Decimal, soldAt SoldAt, condition string) (SaleRecord, error) {
	cardURL = strings.TrimSpace(cardURL)
	condition = strings.TrimSpace(condition)
	switch {
	case cardURL == "":
		return SaleRecord{}, ErrEmptyCardURL
	case price.IsNegative():
		return SaleRecord{}, ErrNegativePrice
	case soldAt.IsZero():
		return SaleRecord{}, ErrMissingSoldAt
	case condition == "":
		return SaleRecord{}, ErrEmptyCondition
	}

	r := SaleRecord{
		cardURL:   cardURL,
		title:     strings.TrimSpace(title),
		price:     price,
		soldAt:    soldAt,
		condition: condition,
	}
	r.key = identityKey(r, r.soldAt.identity())
	return r, nil
}

func identityKey(r SaleRecord, soldAt string) string {
	h := sha256.New()
	for _, part := range []string{r.cardURL, r.price.StringFixed(2), soldAt, r.condition} {
		h.Write([]byte(part))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (r SaleRecord) CardURL() string        { return r.cardURL }
func (r SaleRecord) Title() string          { return r.title }
func (r SaleRecord) Price() decimal.Decimal { return r.price }
func (r SaleRecord) SoldAt() SoldAt         { return r.soldAt }
func (r SaleRecord) Condition() string      { return r.condition }

// Key is the deterministic identity of the sale.
func (r SaleRecord) Key() string { return r.key }

// NeighbourKeys returns the keys the same sale would have had with its
// relative anchor one unit earlier or later. A sale re-observed across a
// unit boundary matches one of them. Absolute dates have none.
func (r SaleRecord) NeighbourKeys() []string {
	ids := r.soldAt.neighbours()
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, identityKey(r, id))
	}
	return keys
}

// SeenEntry is the persisted form of one reported sale identity. CardURL, Key
// and FirstObservedAt are authoritative; the rest is a snapshot for reports.
type SeenEntry struct {
	CardURL         string    `msgpack:"card_url"`
	Key             string    `msgpack:"key"`
	FirstObservedAt time.Time `msgpack:"first_observed_at"`
	Title           string    `msgpack:"title"`
	Price           string    `msgpack:"price"`
	SoldAt          string    `msgpack:"sold_at"`
	Condition       string    `msgpack:"condition"`
}

// EntryFor snapshots a record into a SeenEntry.
func EntryFor(r SaleRecord, observedAt time.Time) SeenEntry {
	return SeenEntry{
		CardURL:         r.cardURL,
		Key:             r.key,
		FirstObservedAt: observedAt.UTC(),
		Title:           r.title,
		Price:           r.price.StringFixed(2),
		SoldAt:          r.soldAt.String(),
		Condition:       r.condition,
	}
}

// Cycle is the scheduler state handed to the engine for one polling pass.
type Cycle struct {
	ID        string
	Number    int
	StartedAt time.Time
}

// SalesReport holds statistics computed over the seen-set.
type SalesReport struct {
	TotalSales    int
	Cards         []CardStats
	AveragePrice  float64
	MedianPrice   float64
	MinPrice      float64
	MaxPrice      float64
	MostExpensive *SeenEntry
	ByCondition   map[string]int
}

// CardStats summarises the sales seen for one listing.
type CardStats struct {
	CardURL      string
	Title        string
	Sales        int
	AveragePrice float64
	MinPrice     float64
	MaxPrice     float64
	LastSeen     time.Time
}
