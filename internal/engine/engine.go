// Package engine implements the Book Engine (spec §4.2): it owns one Side
// Book per side, the chronologically sorted event list, and the snapshot
// schedule, and drives event application and snapshot capture.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"b3lob/internal/book"
	"b3lob/internal/common"
	"b3lob/internal/model"
	"b3lob/internal/snapshot"
)

// ErrMultiSession is fatal: the event stream spans more than one session_date.
var ErrMultiSession = errors.New("events from more than one session_date")

// ErrOutOfOrder is fatal: an event's prio_date regressed relative to the
// last-applied event.
var ErrOutOfOrder = errors.New("out-of-order event stream")

// ErrNoEvents is returned by IngestEvents for an empty event list.
var ErrNoEvents = errors.New("no events to ingest")

const (
	// DefaultPSup is the price-support ceiling used when not overridden.
	DefaultPSup int64 = 12000
	// DefaultTickSize is the minimum price increment used when not overridden.
	DefaultTickSize int64 = 1
	// DefaultSnapshotSize is the effective-price curve's lot cap.
	DefaultSnapshotSize int64 = 1000
	// DefaultSnapshotStart/End are the default snapshot grid bounds.
	DefaultSnapshotStart = "10:15:00"
	DefaultSnapshotEnd   = "16:49:00"
	// DefaultTimeLimit is the default ProcessOrders cutoff.
	DefaultTimeLimit = "16:30"

	sessionDateLayout  = "2006-01-02"
	sessionTimeLayout  = "2006-01-02 15:04:05"
	sessionLimitLayout = "2006-01-02 15:04"
)

// TimedSnapshot pairs a scheduled label timestamp with the snapshot
// captured just before the first event that crossed it (spec §4.2).
type TimedSnapshot struct {
	Timestamp time.Time
	Snapshot  snapshot.Snapshot
}

// BookEngine owns both Side Books, the ordered event list and the snapshot
// schedule for one reconstruction run. It is not safe for concurrent use;
// spec §5 requires strictly single-threaded, synchronous processing.
type BookEngine struct {
	runID uuid.UUID
	log   zerolog.Logger

	psup     int64
	ticksize int64

	buy  *book.SideBook
	sell *book.SideBook

	sessionDate string
	orders      []model.Event
	lastMod     *time.Time

	snapshotTimes   []time.Time
	snapshotSize    int64
	nextSnapshotIdx int
	snapshots       []TimedSnapshot
}

// New constructs a Book Engine with the given price-support ceiling and
// tick size (spec §6: construct with (psup = 12000, ticksize = 1, datadir)
// — datadir belongs to the ingestion layer, see internal/ingest).
func New(psup, ticksize int64) (*BookEngine, error) {
	runID := uuid.New()
	logger := log.With().Str("run_id", runID.String()).Logger()

	buy, err := book.New(psup, ticksize, common.Buy, logger)
	if err != nil {
		return nil, fmt.Errorf("buy side: %w", err)
	}
	sell, err := book.New(psup, ticksize, common.Sell, logger)
	if err != nil {
		return nil, fmt.Errorf("sell side: %w", err)
	}

	return &BookEngine{
		runID:        runID,
		log:          logger,
		psup:         psup,
		ticksize:     ticksize,
		buy:          buy,
		sell:         sell,
		snapshotSize: DefaultSnapshotSize,
	}, nil
}

// NewDefault constructs a Book Engine with the spec's default psup/ticksize.
func NewDefault() (*BookEngine, error) {
	return New(DefaultPSup, DefaultTickSize)
}

// RunID is the correlation id attached to every log line this engine emits.
func (e *BookEngine) RunID() uuid.UUID { return e.runID }

// Buy / Sell expose the underlying Side Books for read-only inspection
// (debug logs, cumulative counters) by callers such as cmd/reconstruct.
func (e *BookEngine) Buy() *book.SideBook  { return e.buy }
func (e *BookEngine) Sell() *book.SideBook { return e.sell }

// SessionDate is the session_date derived from the first ingested event.
func (e *BookEngine) SessionDate() string { return e.sessionDate }

// Snapshots returns the (timestamp, snapshot) pairs captured so far.
func (e *BookEngine) Snapshots() []TimedSnapshot { return e.snapshots }

// IngestEvents installs a pre-sorted chronological event list (spec §4.2).
// session_date is derived from the first event; any later event with a
// differing session_date is fatal.
func (e *BookEngine) IngestEvents(events []model.Event) error {
	if len(events) == 0 {
		return ErrNoEvents
	}

	sessionDate := events[0].SessionDate
	for _, ev := range events[1:] {
		if ev.SessionDate != sessionDate {
			return fmt.Errorf("%w: expected %s, got %s (seq %d)", ErrMultiSession, sessionDate, ev.SessionDate, ev.Seq)
		}
	}

	e.sessionDate = sessionDate
	e.orders = events
	return nil
}

// SetSnapshotTimes installs an explicit, sorted-ascending snapshot schedule.
func (e *BookEngine) SetSnapshotTimes(times []time.Time) {
	sorted := append([]time.Time(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	e.snapshotTimes = sorted
	e.nextSnapshotIdx = 0
}

// SetSnapshotFrequency installs a uniform [start, end] grid at the given
// interval, on the engine's session_date (spec §4.2). IngestEvents must be
// called first so session_date is known.
func (e *BookEngine) SetSnapshotFrequency(intervalSeconds int, maxSize int64, start, end string) error {
	if e.sessionDate == "" {
		return fmt.Errorf("cannot set snapshot frequency before ingesting events")
	}
	if intervalSeconds <= 0 {
		return fmt.Errorf("interval must be positive, got %d", intervalSeconds)
	}

	e.snapshotSize = maxSize

	t0, err := time.Parse(sessionTimeLayout, e.sessionDate+" "+start)
	if err != nil {
		return fmt.Errorf("parsing start %q: %w", start, err)
	}
	tN, err := time.Parse(sessionTimeLayout, e.sessionDate+" "+end)
	if err != nil {
		return fmt.Errorf("parsing end %q: %w", end, err)
	}

	delta := time.Duration(intervalSeconds) * time.Second
	var times []time.Time
	for t := t0; !t.After(tN); t = t.Add(delta) {
		times = append(times, t)
	}

	e.SetSnapshotTimes(times)
	return nil
}

// captureSnapshot builds a Snapshot from the current book state and
// appends it labeled with ts.
func (e *BookEngine) captureSnapshot(ts time.Time) error {
	snap, err := snapshot.Build(e.buy, e.sell, e.snapshotSize)
	if err != nil {
		return fmt.Errorf("capturing snapshot at %s: %w", ts.Format(sessionTimeLayout), err)
	}
	e.snapshots = append(e.snapshots, TimedSnapshot{Timestamp: ts, Snapshot: snap})
	return nil
}

// ProcessOrders drives event application in priority order up to timeLimit
// (spec §4.2), interleaving scheduled snapshot capture at schedule
// boundaries. timeLimit is an "HH:MM" string on the engine's session_date.
func (e *BookEngine) ProcessOrders(timeLimit string) error {
	if e.sessionDate == "" {
		return fmt.Errorf("cannot process orders before ingesting events")
	}

	limit, err := time.Parse(sessionLimitLayout, e.sessionDate+" "+timeLimit)
	if err != nil {
		return fmt.Errorf("parsing time limit %q: %w", timeLimit, err)
	}

	for _, ev := range e.orders {
		if ev.PrioDate.After(limit) {
			break
		}

		for e.nextSnapshotIdx < len(e.snapshotTimes) && ev.PrioDate.After(e.snapshotTimes[e.nextSnapshotIdx]) {
			ts := e.snapshotTimes[e.nextSnapshotIdx]
			if err := e.captureSnapshot(ts); err != nil {
				return err
			}
			e.nextSnapshotIdx++
		}

		if e.lastMod != nil && e.lastMod.After(ev.PrioDate) {
			return fmt.Errorf("%w: seq %d at %s, last applied %s", ErrOutOfOrder, ev.Seq,
				ev.PrioDate.Format(sessionTimeLayout), e.lastMod.Format(sessionTimeLayout))
		}

		side := e.buy
		if ev.Side == common.Sell {
			side = e.sell
		}

		if err := side.ProcessOrder(ev); err != nil {
			e.log.Error().Err(err).Int64("seq", ev.Seq).Msg("fatal event application error")
			return fmt.Errorf("applying %s: %w", ev, err)
		}

		prio := ev.PrioDate
		e.lastMod = &prio
	}

	return nil
}
