package book

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"b3lob/internal/common"
	"b3lob/internal/model"
)

// newTestSideBook builds a Side Book with the scenario defaults from spec §8.
func newTestSideBook(t *testing.T, side common.Side) *SideBook {
	t.Helper()
	sb, err := New(12000, 1, side, zerolog.Nop())
	require.NoError(t, err)
	return sb
}

// ev builds a minimal event for a given seq/side/event/price/size/executed.
func ev(seq int64, side common.Side, eventType common.EventType, price, size, executed int64) model.Event {
	return model.Event{
		PrioDate:    time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		SessionDate: "2024-01-02",
		Seq:         seq,
		Side:        side,
		EventType:   eventType,
		Price:       price,
		Size:        size,
		Executed:    executed,
	}
}

func TestSingleBuyNew(t *testing.T) {
	sb := newTestSideBook(t, common.Buy)

	require.NoError(t, sb.ProcessOrder(ev(1, common.Buy, common.EventNew, 2500, 3, 0)))

	assert.EqualValues(t, 3, sb.BucketAt(2500))
	order, ok := sb.DBOrder(1)
	require.True(t, ok)
	assert.Equal(t, model.DBOrder{Size: 3, Executed: 0, Price: 2500, Side: common.Buy}, order)
}

func TestBestPriceIndexFailsOnEmptyBook(t *testing.T) {
	sb := newTestSideBook(t, common.Sell)
	_, ok := sb.GetBestPriceIndex()
	assert.False(t, ok)

	_, _, err := sb.GetLiquidity()
	assert.ErrorIs(t, err, ErrEmptyBook)
}

func TestTradeAccounting(t *testing.T) {
	sb := newTestSideBook(t, common.Buy)

	require.NoError(t, sb.ProcessOrder(ev(1, common.Buy, common.EventNew, 2500, 5, 0)))

	trade := ev(1, common.Buy, common.EventTrade, 2500, 5, 2)
	trade.Condition = 1
	require.NoError(t, sb.ProcessOrder(trade))

	assert.EqualValues(t, 3, sb.BucketAt(2500))
	order, ok := sb.DBOrder(1)
	require.True(t, ok)
	assert.EqualValues(t, 2, order.Executed)
	assert.EqualValues(t, 2, sb.CumTrades())
	assert.EqualValues(t, 2, sb.CumMOS())
}

func TestSelfHealingUpdate(t *testing.T) {
	sb := newTestSideBook(t, common.Sell)

	require.NoError(t, sb.ProcessOrder(ev(9, common.Sell, common.EventUpdate, 2600, 4, 0)))

	order, ok := sb.DBOrder(9)
	require.True(t, ok)
	assert.EqualValues(t, 4, order.Size)
	assert.EqualValues(t, 4, sb.BucketAt(2600))

	tags := tagsOf(sb.Debug())
	assert.Contains(t, tags, "update-not-in-db")
}

func TestNewCancelRestoresState(t *testing.T) {
	sb := newTestSideBook(t, common.Buy)

	before := snapshotBucketsAndDB(sb)

	require.NoError(t, sb.ProcessOrder(ev(42, common.Buy, common.EventNew, 2500, 7, 0)))
	require.NoError(t, sb.ProcessOrder(ev(42, common.Buy, common.EventCancel, 2500, 7, 0)))

	after := snapshotBucketsAndDB(sb)
	assert.Equal(t, before, after)
	assert.Empty(t, sb.db)
}

func TestDoubleUpdateEquivalentToSecondAlone(t *testing.T) {
	a := newTestSideBook(t, common.Sell)
	b := newTestSideBook(t, common.Sell)

	require.NoError(t, a.ProcessOrder(ev(7, common.Sell, common.EventNew, 2700, 10, 0)))
	require.NoError(t, a.ProcessOrder(ev(7, common.Sell, common.EventUpdate, 2750, 6, 2)))
	require.NoError(t, a.ProcessOrder(ev(7, common.Sell, common.EventUpdate, 2800, 4, 1)))

	require.NoError(t, b.ProcessOrder(ev(7, common.Sell, common.EventNew, 2700, 10, 0)))
	require.NoError(t, b.ProcessOrder(ev(7, common.Sell, common.EventUpdate, 2800, 4, 1)))

	assert.Equal(t, snapshotBucketsAndDB(a), snapshotBucketsAndDB(b))
}

func TestTradeOnUnknownSeqThenCancelRestores(t *testing.T) {
	sb := newTestSideBook(t, common.Buy)

	before := snapshotBucketsAndDB(sb)

	trade := ev(99, common.Buy, common.EventTrade, 2500, 5, 3)
	require.NoError(t, sb.ProcessOrder(trade))
	require.NoError(t, sb.ProcessOrder(ev(99, common.Buy, common.EventCancel, 2500, 5, 3)))

	after := snapshotBucketsAndDB(sb)
	assert.Equal(t, before, after)
	assert.EqualValues(t, 3, sb.CumTrades())
}

func TestExecutedExceedsSizeIsFatal(t *testing.T) {
	sb := newTestSideBook(t, common.Buy)
	err := sb.ProcessOrder(ev(1, common.Buy, common.EventNew, 2500, 3, 5))
	assert.ErrorIs(t, err, ErrExecutedExceedsSize)
}

func TestSellPriceZeroDropped(t *testing.T) {
	sb := newTestSideBook(t, common.Sell)
	require.NoError(t, sb.ProcessOrder(ev(1, common.Sell, common.EventNew, 0, 3, 0)))

	_, ok := sb.DBOrder(1)
	assert.False(t, ok)
	assert.Contains(t, tagsOf(sb.Debug()), "sell-price-zero")
}

func TestPriceBoundaries(t *testing.T) {
	sb := newTestSideBook(t, common.Buy)

	require.NoError(t, sb.ProcessOrder(ev(1, common.Buy, common.EventNew, 11999, 1, 0)))
	_, ok := sb.DBOrder(1)
	assert.True(t, ok)

	require.NoError(t, sb.ProcessOrder(ev(2, common.Buy, common.EventNew, 12000, 1, 0)))
	_, ok = sb.DBOrder(2)
	assert.False(t, ok)
	assert.Contains(t, tagsOf(sb.Debug()), "price-above-psup")
}

func TestUnknownEventTagsAreInert(t *testing.T) {
	sb := newTestSideBook(t, common.Buy)

	for _, et := range []common.EventType{
		common.EventNewStop, common.EventReject, common.EventRemoved, common.EventStopped,
	} {
		before := snapshotBucketsAndDB(sb)
		require.NoError(t, sb.ProcessOrder(ev(1, common.Buy, et, 2500, 1, 0)))
		assert.Equal(t, before, snapshotBucketsAndDB(sb))
	}

	tags := tagsOf(sb.Debug())
	count := 0
	for _, tag := range tags {
		if tag == "unknown-event" {
			count++
		}
	}
	assert.Equal(t, 4, count)
}

func TestReentryIsNoOp(t *testing.T) {
	sb := newTestSideBook(t, common.Buy)
	require.NoError(t, sb.ProcessOrder(ev(1, common.Buy, common.EventNew, 2500, 3, 0)))

	before := snapshotBucketsAndDB(sb)
	require.NoError(t, sb.ProcessOrder(ev(1, common.Buy, common.EventReentry, 2500, 3, 0)))
	assert.Equal(t, before, snapshotBucketsAndDB(sb))
}

func TestGetLiquidityBuySideExcludesBucketZero(t *testing.T) {
	sb := newTestSideBook(t, common.Buy)
	require.NoError(t, sb.ProcessOrder(ev(1, common.Buy, common.EventNew, 0, 5, 0)))

	idx, ok := sb.GetBestPriceIndex()
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	prices, liq, err := sb.GetLiquidity()
	require.NoError(t, err)
	assert.Empty(t, prices)
	assert.Empty(t, liq)
}

func TestGetLiquidityWalksBestFirst(t *testing.T) {
	sb := newTestSideBook(t, common.Sell)
	require.NoError(t, sb.ProcessOrder(ev(1, common.Sell, common.EventNew, 2500, 3, 0)))
	require.NoError(t, sb.ProcessOrder(ev(2, common.Sell, common.EventNew, 2600, 2, 0)))
	require.NoError(t, sb.ProcessOrder(ev(3, common.Sell, common.EventNew, 2550, 1, 0)))

	prices, liq, err := sb.GetLiquidity()
	require.NoError(t, err)
	assert.Equal(t, []int64{2500, 2550, 2600}, prices)
	assert.Equal(t, []int64{3, 1, 2}, liq)
}

// --- helpers -----------------------------------------------------------

func tagsOf(anomalies []Anomaly) []string {
	tags := make([]string, len(anomalies))
	for i, a := range anomalies {
		tags[i] = a.Tag
	}
	return tags
}

type bookState struct {
	buckets map[int]int64
	db      map[int64]model.DBOrder
}

func snapshotBucketsAndDB(sb *SideBook) bookState {
	buckets := make(map[int]int64)
	for i, v := range sb.book {
		if v != 0 {
			buckets[i] = v
		}
	}
	db := make(map[int64]model.DBOrder, len(sb.db))
	for k, v := range sb.db {
		db[k] = v
	}
	return bookState{buckets: buckets, db: db}
}
