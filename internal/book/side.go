// Package book implements the Side Book (spec §4.1): one side of the
// market's price-indexed aggregate-liquidity vector and its seq->DBOrder
// database, together with the event interpreter that mutates them.
package book

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/tidwall/btree"

	"b3lob/internal/common"
	"b3lob/internal/model"
)

// ErrExecutedExceedsSize is fatal: an incoming event has executed > size.
var ErrExecutedExceedsSize = errors.New("executed exceeds size")

// ErrBookDesync is fatal: removing an order would drive a bucket negative,
// meaning book[] and db have fallen out of sync (spec §7).
var ErrBookDesync = errors.New("book/db desynchronized: negative bucket")

// ErrEmptyBook is fatal: a best-price/liquidity request was made against a
// side with no outstanding liquidity (spec §7).
var ErrEmptyBook = errors.New("side book is empty")

// Anomaly is one entry in a Side Book's append-only debug log: a short tag
// naming the non-fatal condition, paired with the event that triggered it.
// The debug log is part of the contract (spec §9) — tests assert tag
// emission, not just that processing didn't error.
type Anomaly struct {
	Tag   string
	Event model.Event
}

// SideBook owns one side (buy or sell) of the market: the dense price-indexed
// book vector, the seq->DBOrder database, and the anomaly log.
type SideBook struct {
	side     common.Side
	psup     int64
	ticksize int64
	booksize int

	book []int64
	db   map[int64]model.DBOrder

	// nonEmpty indexes the currently non-zero buckets of book[], ordered
	// by bucket index, so GetBestPriceIndex/GetLiquidity avoid an O(booksize)
	// scan of the dense vector (see SPEC_FULL.md's DOMAIN STACK section).
	// book[] remains the canonical, invariant-checked state; nonEmpty is
	// kept in lockstep with it inside add/remove.
	nonEmpty *btree.BTreeG[int]

	cumTrades int64
	cumMOS    int64
	debug     []Anomaly

	log zerolog.Logger
}

// New constructs a Side Book for one side. psup is the price-support
// ceiling (upper bound on representable prices); ticksize is the minimum
// price increment. Both are in the same fixed-point units as Event.Price.
func New(psup, ticksize int64, side common.Side, logger zerolog.Logger) (*SideBook, error) {
	if ticksize <= 0 {
		return nil, fmt.Errorf("ticksize must be positive, got %d", ticksize)
	}
	if psup <= 0 {
		return nil, fmt.Errorf("psup must be positive, got %d", psup)
	}

	booksize := int(math.Ceil(float64(psup) / float64(ticksize)))

	return &SideBook{
		side:     side,
		psup:     psup,
		ticksize: ticksize,
		booksize: booksize,
		book:     make([]int64, booksize),
		db:       make(map[int64]model.DBOrder, 1024),
		nonEmpty: btree.NewBTreeG(func(a, b int) bool { return a < b }),
		log:      logger.With().Str("side", side.String()).Logger(),
	}, nil
}

// Index returns the bucket index of a given price: floor(price / ticksize).
func (sb *SideBook) Index(price int64) int {
	return int(price / sb.ticksize)
}

// Price returns the lowest representable price of a given bucket index.
func (sb *SideBook) Price(index int) int64 {
	return int64(index) * sb.ticksize
}

// CumTrades is the total lots executed against this side since session start.
func (sb *SideBook) CumTrades() int64 { return sb.cumTrades }

// CumMOS is the total lots executed against this side where condition == 1.
func (sb *SideBook) CumMOS() int64 { return sb.cumMOS }

// Debug returns the append-only anomaly log.
func (sb *SideBook) Debug() []Anomaly { return sb.debug }

// BookSize is the number of price buckets.
func (sb *SideBook) BookSize() int { return sb.booksize }

// BucketAt returns the current outstanding lots in a bucket, for tests and
// forensic inspection.
func (sb *SideBook) BucketAt(index int) int64 { return sb.book[index] }

// DBOrder returns the live order for seq, if any.
func (sb *SideBook) DBOrder(seq int64) (model.DBOrder, bool) {
	o, ok := sb.db[seq]
	return o, ok
}

func (sb *SideBook) addDebug(tag string, ev model.Event) {
	sb.debug = append(sb.debug, Anomaly{Tag: tag, Event: ev})
	sb.log.Warn().
		Str("tag", tag).
		Int64("seq", ev.Seq).
		Str("event", ev.EventType.String()).
		Int64("price", ev.Price).
		Msg("book anomaly")
}

// setBucket applies a delta to a bucket and keeps nonEmpty in lockstep.
func (sb *SideBook) setBucket(idx int, delta int64) {
	before := sb.book[idx]
	sb.book[idx] = before + delta
	if before == 0 && sb.book[idx] > 0 {
		sb.nonEmpty.Set(idx)
	} else if before > 0 && sb.book[idx] == 0 {
		sb.nonEmpty.Delete(idx)
	}
}

// add inserts ev into the database and the book (spec §4.1 "add(order)").
func (sb *SideBook) add(ev model.Event) {
	if sb.side == common.Sell && ev.Price == 0 {
		sb.addDebug("sell-price-zero", ev)
		return
	}
	if ev.Price >= sb.psup {
		sb.addDebug("price-above-psup", ev)
		return
	}

	sb.db[ev.Seq] = model.DBOrder{
		Size:     ev.Size,
		Executed: ev.Executed,
		Price:    ev.Price,
		Side:     ev.Side,
	}

	idx := sb.Index(ev.Price)
	sb.setBucket(idx, ev.Size-ev.Executed)
}

// remove retires seq from the database and the book (spec §4.1 "remove(seq)").
func (sb *SideBook) remove(seq int64) error {
	dborder, ok := sb.db[seq]
	if !ok {
		return fmt.Errorf("remove: seq %d not in db", seq)
	}

	idx := sb.Index(dborder.Price)
	outstanding := dborder.Outstanding()

	if sb.book[idx] < outstanding {
		sb.log.Error().Int64("seq", seq).Int("bucket", idx).Msg("order-neg-size")
		return fmt.Errorf("%w: seq %d, bucket %d has %d < outstanding %d",
			ErrBookDesync, seq, idx, sb.book[idx], outstanding)
	}

	sb.setBucket(idx, -outstanding)
	delete(sb.db, seq)
	return nil
}

// ProcessOrder dispatches one event per the table in spec §4.1. It returns
// a non-nil error only for the fatal "executed > size" precondition or a
// book/db desync surfaced by remove; every other malformed input is
// self-healed and recorded in the debug log.
func (sb *SideBook) ProcessOrder(ev model.Event) error {
	if ev.Executed > ev.Size {
		return fmt.Errorf("%w: seq %d, executed %d > size %d", ErrExecutedExceedsSize, ev.Seq, ev.Executed, ev.Size)
	}

	switch ev.EventType {
	case common.EventNew:
		return sb.processNew(ev)
	case common.EventUpdate:
		return sb.processUpdate(ev)
	case common.EventCancel:
		return sb.processCancel(ev)
	case common.EventTrade:
		sb.updateCumTrades(ev)
		return sb.processTrade(ev)
	case common.EventReentry:
		return nil
	case common.EventExpire:
		return sb.processCancel(ev)
	default:
		sb.addDebug("unknown-event", ev)
		return nil
	}
}

func (sb *SideBook) processNew(ev model.Event) error {
	if _, ok := sb.db[ev.Seq]; ok {
		sb.addDebug("new-order-in-db", ev)
		if err := sb.remove(ev.Seq); err != nil {
			return err
		}
	}
	if ev.Executed != 0 {
		sb.addDebug("new-order-with-executed", ev)
	}
	sb.add(ev)
	return nil
}

func (sb *SideBook) processUpdate(ev model.Event) error {
	existing, ok := sb.db[ev.Seq]
	if !ok {
		sb.addDebug("update-not-in-db", ev)
		sb.add(ev)
		return nil
	}

	if existing.Executed != ev.Executed {
		sb.addDebug("executed-changed-in-update", ev)
	}

	if err := sb.remove(ev.Seq); err != nil {
		return err
	}
	sb.add(ev)
	return nil
}

func (sb *SideBook) processCancel(ev model.Event) error {
	if _, ok := sb.db[ev.Seq]; !ok {
		sb.addDebug("cancel-not-in-db", ev)
		return nil
	}
	return sb.remove(ev.Seq)
}

func (sb *SideBook) processTrade(ev model.Event) error {
	existing, ok := sb.db[ev.Seq]
	if !ok {
		sb.addDebug("trade-not-in-db", ev)
		sb.add(ev)
		return nil
	}

	if existing.Size != ev.Size {
		sb.addDebug("size-change-in-trade", ev)
	}
	if existing.Price != ev.Price {
		sb.addDebug("price-change-in-trade", ev)
	}

	if err := sb.remove(ev.Seq); err != nil {
		return err
	}
	sb.add(ev)
	return nil
}

// updateCumTrades updates the cumulative trade counters before the
// remove/add cycle in processTrade, per spec §4.1.
func (sb *SideBook) updateCumTrades(ev model.Event) {
	var dbExecuted int64
	if existing, ok := sb.db[ev.Seq]; ok {
		dbExecuted = existing.Executed
	}

	delta := ev.Executed - dbExecuted
	sb.cumTrades += delta
	if ev.Condition == 1 {
		sb.cumMOS += delta
	}
}

// GetBestPriceIndex returns the best-price bucket index: the maximum
// non-empty index for buy, the minimum for sell. ok is false if the side
// has no outstanding liquidity.
func (sb *SideBook) GetBestPriceIndex() (idx int, ok bool) {
	if sb.side == common.Buy {
		return sb.nonEmpty.Max()
	}
	return sb.nonEmpty.Min()
}

// GetLiquidity walks the book from the best price inward and returns two
// equal-length, best-first sequences of (price, outstanding liquidity) over
// non-empty buckets only. Returns ErrEmptyBook if the side has no liquidity.
//
// The buy-side walk stops strictly before bucket index 0 — even when
// bucket 0 itself is the sole non-empty bucket and therefore the best
// price — reproducing the original implementation's
// `np.arange(best_price_idx, 0, -1)`, which yields an empty range once the
// walk would reach 0. Spec §9 marks this unresolved (possible off-by-one)
// and directs implementers to preserve it rather than fix it.
func (sb *SideBook) GetLiquidity() (prices []int64, liq []int64, err error) {
	best, ok := sb.GetBestPriceIndex()
	if !ok {
		return nil, nil, ErrEmptyBook
	}

	var idxs []int
	if sb.side == common.Buy {
		sb.nonEmpty.Descend(best, func(idx int) bool {
			if idx == 0 {
				return false
			}
			idxs = append(idxs, idx)
			return true
		})
	} else {
		sb.nonEmpty.Ascend(best, func(idx int) bool {
			idxs = append(idxs, idx)
			return true
		})
	}

	prices = make([]int64, len(idxs))
	liq = make([]int64, len(idxs))
	for i, idx := range idxs {
		prices[i] = sb.Price(idx)
		liq[i] = sb.book[idx]
	}
	return prices, liq, nil
}
