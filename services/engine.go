package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"lastsold-monitor/models"
	"lastsold-monitor/notify"
	"lastsold-monitor/storage"
	"lastsold-monitor/utils"
)

// Fetcher returns the rendered markup of a monitored page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Segmenter cuts rendered markup into ordered candidate rows.
type Segmenter interface {
	Segment(markup string) ([]models.Candidate, error)
}

// ErrorKind classifies why a cycle for one target failed.
type ErrorKind string

const (
	FetchTimeout        ErrorKind = "fetch_timeout"
	FetchFailure        ErrorKind = "fetch_failure"
	SegmentationFailure ErrorKind = "segmentation_failure"
	StoreUnavailable    ErrorKind = "store_unavailable"
)

// CycleError aborts the cycle of a single target.
type CycleError struct {
	Target string
	Kind   ErrorKind
	Err    error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle %s [%s]: %v", e.Target, e.Kind, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

// Filters suppress alerts for new records. They run after dedup, so a
// filtered record is still marked seen.
type Filters struct {
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	MinCondition string
}

func (f Filters) reject(rec models.SaleRecord) string {
	if f.MinPrice != nil && rec.Price().LessThan(*f.MinPrice) {
		return fmt.Sprintf("price %s below minimum %s", rec.Price().StringFixed(2), f.MinPrice.StringFixed(2))
	}
	if f.MaxPrice != nil && rec.Price().GreaterThan(*f.MaxPrice) {
		return fmt.Sprintf("price %s above maximum %s", rec.Price().StringFixed(2), f.MaxPrice.StringFixed(2))
	}
	if f.MinCondition != "" {
		want, okWant := ConditionRank(f.MinCondition)
		got, okGot := ConditionRank(rec.Condition())
		// unknown conditions are never filtered out
		if okWant && okGot && got < want {
			return fmt.Sprintf("condition %q worse than %q", rec.Condition(), f.MinCondition)
		}
	}
	return ""
}

// EngineConfig tunes a change-detection Engine.
type EngineConfig struct {
	Filters      Filters
	FetchTimeout time.Duration
}

// CycleResult summarises one polling cycle for one target.
type CycleResult struct {
	Target           string
	Candidates       int
	Extracted        int
	ExtractionErrors int
	AlreadySeen      int
	New              int
	Filtered         int
	Notified         int
	NotifyFailures   int
	NewRecords       []models.SaleRecord
}

// Engine runs fetch, extract, diff and notify for one target at a time. Cycles
// on the same card URL are serialized; different URLs may run in parallel.
type Engine struct {
	fetcher   Fetcher
	segmenter Segmenter
	store     storage.SeenStore
	notifier  notify.Notifier
	cfg       EngineConfig
	logger    *utils.Logger
	locks     *utils.KeyedMutex
}

// NewEngine wires an Engine. fetcher may be nil when only Detect is used.
func NewEngine(fetcher Fetcher, segmenter Segmenter, store storage.SeenStore, notifier notify.Notifier, cfg EngineConfig, logger *utils.Logger) *Engine {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if notifier == nil {
		notifier = notify.NewMulti()
	}
	return &Engine{
		fetcher:   fetcher,
		segmenter: segmenter,
		store:     store,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
		locks:     utils.NewKeyedMutex(),
	}
}

// RunCycle fetches target with a timeout and then runs Detect on the markup.
func (e *Engine) RunCycle(ctx context.Context, cycle models.Cycle, target string) (*CycleResult, error) {
	if cycle.StartedAt.IsZero() {
		cycle.StartedAt = time.Now().UTC()
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	markup, err := e.fetcher.Fetch(fetchCtx, target)
	timedOut := errors.Is(fetchCtx.Err(), context.DeadlineExceeded)
	cancel()

	if err != nil {
		kind := FetchFailure
		if timedOut || errors.Is(err, context.DeadlineExceeded) {
			kind = FetchTimeout
		}
		return nil, &CycleError{Target: target, Kind: kind, Err: err}
	}
	return e.Detect(ctx, cycle, target, markup)
}

// Detect extracts sale records from markup, reports the ones not seen
// before and records them in the store. Rows that fail extraction are logged
// and skipped. Store failures while partitioning abort before any insert.
func (e *Engine) Detect(ctx context.Context, cycle models.Cycle, target, markup string) (res *CycleResult, err error) {
	log := e.logger.With("target", target)
	if cycle.ID != "" {
		log = log.With("cycle", cycle.ID)
	}

	unlock := e.locks.Lock(target)
	defer unlock()

	candidates, segErr := e.segmenter.Segment(markup)
	if segErr != nil {
		return nil, &CycleError{Target: target, Kind: SegmentationFailure, Err: segErr}
	}

	res = &CycleResult{Target: target, Candidates: len(candidates)}

	records := make([]models.SaleRecord, 0, len(candidates))
	for _, c := range candidates {
		rec, exErr := ExtractRecord(target, c, cycle.StartedAt)
		if exErr != nil {
			res.ExtractionErrors++
			kind := "extraction_error"
			var ee *ExtractionError
			if errors.As(exErr, &ee) {
				kind = string(ee.Kind)
			}
			log.Warn("[engine] Skipping row %d of %s (%s): %v", c.Index, target, kind, exErr)
			continue
		}
		records = append(records, rec)
	}
	res.Extracted = len(records)

	fresh, pErr := e.partition(target, records, log)
	if pErr != nil {
		log.Error("[engine] Seen-set lookup failed for %s, skipping cycle: %v", target, pErr)
		return res, &CycleError{Target: target, Kind: StoreUnavailable, Err: pErr}
	}
	res.AlreadySeen = len(records) - len(fresh)
	res.New = len(fresh)

	if len(fresh) == 0 {
		log.Debug("[engine] %s: %d rows, nothing new", target, res.Candidates)
		return res, nil
	}

	// From here on something may be inserted: flush on every exit path. The
	// flush must survive shutdown cancelling ctx.
	defer func() {
		if fErr := e.store.Flush(context.WithoutCancel(ctx)); fErr != nil {
			log.Error("[engine] Flushing seen-set after %s failed: %v", target, fErr)
			if err == nil {
				err = &CycleError{Target: target, Kind: StoreUnavailable, Err: fErr}
			}
		}
	}()

	for _, rec := range fresh {
		if iErr := e.store.Insert(models.EntryFor(rec, cycle.StartedAt)); iErr != nil {
			log.Error("[engine] Recording sale %s failed, stopping cycle: %v", rec.Key(), iErr)
			return res, &CycleError{Target: target, Kind: StoreUnavailable, Err: iErr}
		}

		if reason := e.cfg.Filters.reject(rec); reason != "" {
			res.Filtered++
			log.Info("[engine] New sale on %s marked seen without alert: %s", target, reason)
			continue
		}

		res.NewRecords = append(res.NewRecords, rec)
		// the sale is already recorded as seen, so the alert is attempted
		// even when shutdown cancels ctx
		if nErr := e.notifier.Notify(context.WithoutCancel(ctx), rec); nErr != nil {
			res.NotifyFailures++
			log.Error("[engine] Notification for %s ($%s, %s) failed: %v",
				target, rec.Price().StringFixed(2), rec.SoldAt(), nErr)
			continue
		}
		res.Notified++
	}

	log.Info("[engine] %s: %d rows, %d extracted, %d new, %d alerted, %d filtered",
		target, res.Candidates, res.Extracted, res.New, res.Notified, res.Filtered)
	return res, nil
}

// partition returns the records that were not seen before, in page order.
// A stored key matches at most one record on the page: exact matches claim
// their keys first, then a relative label that crossed a unit boundary may
// claim a neighbouring key that no exact match took. Repeats of a key on
// the same page are reported once.
func (e *Engine) partition(target string, records []models.SaleRecord, log *utils.Logger) ([]models.SaleRecord, error) {
	seen := make([]bool, len(records))
	claimed := make(map[string]struct{}, len(records))

	for i, rec := range records {
		ok, err := e.store.Contains(target, rec.Key())
		if err != nil {
			return nil, err
		}
		if ok {
			seen[i] = true
			claimed[rec.Key()] = struct{}{}
		}
	}

	for i, rec := range records {
		if seen[i] {
			continue
		}
		for _, key := range rec.NeighbourKeys() {
			if _, taken := claimed[key]; taken {
				continue
			}
			ok, err := e.store.Contains(target, key)
			if err != nil {
				return nil, err
			}
			if ok {
				seen[i] = true
				claimed[key] = struct{}{}
				log.Debug("[engine] %s: %q matched a sale recorded under the adjacent %s", target, rec.SoldAt().Raw(), rec.SoldAt().Unit())
				break
			}
		}
	}

	fresh := make([]models.SaleRecord, 0, len(records))
	inPage := make(map[string]struct{}, len(records))
	for i, rec := range records {
		if seen[i] {
			continue
		}
		if _, dup := inPage[rec.Key()]; dup {
			continue
		}
		inPage[rec.Key()] = struct{}{}
		fresh = append(fresh, rec)
	}
	return fresh, nil
}
