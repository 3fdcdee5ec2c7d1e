package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"b3lob/internal/common"
	"b3lob/internal/model"
)

const testSession = "2024-01-02"

func prioAt(hms string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", testSession+" "+hms)
	if err != nil {
		panic(err)
	}
	return t
}

func newEvent(seq int64, side common.Side, et common.EventType, hms string, price, size, executed int64) model.Event {
	return model.Event{
		PrioDate:    prioAt(hms),
		SessionDate: testSession,
		Seq:         seq,
		Side:        side,
		EventType:   et,
		Price:       price,
		Size:        size,
		Executed:    executed,
	}
}

func TestIngestEventsDerivesSessionDate(t *testing.T) {
	eng, err := NewDefault()
	require.NoError(t, err)

	events := []model.Event{
		newEvent(1, common.Buy, common.EventNew, "10:00:00", 2500, 3, 0),
	}
	require.NoError(t, eng.IngestEvents(events))
	assert.Equal(t, testSession, eng.SessionDate())
}

func TestIngestEventsMultiSessionIsFatal(t *testing.T) {
	eng, err := NewDefault()
	require.NoError(t, err)

	events := []model.Event{
		newEvent(1, common.Buy, common.EventNew, "10:00:00", 2500, 3, 0),
		{SessionDate: "2024-01-03", PrioDate: prioAt("10:00:01"), Seq: 2, Side: common.Buy, EventType: common.EventNew},
	}
	err = eng.IngestEvents(events)
	assert.ErrorIs(t, err, ErrMultiSession)
}

func TestOutOfOrderEventIsFatal(t *testing.T) {
	eng, err := NewDefault()
	require.NoError(t, err)

	events := []model.Event{
		newEvent(1, common.Buy, common.EventNew, "10:00:05", 2500, 3, 0),
		newEvent(2, common.Buy, common.EventNew, "10:00:01", 2600, 1, 0),
	}
	require.NoError(t, eng.IngestEvents(events))

	err = eng.ProcessOrders(DefaultTimeLimit)
	assert.ErrorIs(t, err, ErrOutOfOrder)
}

func TestSnapshotSchedule(t *testing.T) {
	eng, err := NewDefault()
	require.NoError(t, err)

	events := []model.Event{
		newEvent(1, common.Buy, common.EventNew, "10:15:30", 2500, 3, 0),
		newEvent(2, common.Sell, common.EventNew, "10:15:30", 2600, 3, 0),
		newEvent(3, common.Buy, common.EventNew, "10:16:10", 2500, 2, 0),
		newEvent(4, common.Buy, common.EventNew, "10:17:05", 2501, 1, 0),
	}
	require.NoError(t, eng.IngestEvents(events))
	eng.SetSnapshotTimes([]time.Time{prioAt("10:16:00"), prioAt("10:17:00")})

	require.NoError(t, eng.ProcessOrders(DefaultTimeLimit))

	snaps := eng.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, prioAt("10:16:00"), snaps[0].Timestamp)
	assert.Equal(t, prioAt("10:17:00"), snaps[1].Timestamp)
}

func TestSnapshotNotEmittedWithNoCrossingEvent(t *testing.T) {
	eng, err := NewDefault()
	require.NoError(t, err)

	events := []model.Event{
		newEvent(1, common.Buy, common.EventNew, "10:15:30", 2500, 3, 0),
		newEvent(2, common.Sell, common.EventNew, "10:15:45", 2600, 3, 0),
	}
	require.NoError(t, eng.IngestEvents(events))
	eng.SetSnapshotTimes([]time.Time{prioAt("10:20:00")})

	require.NoError(t, eng.ProcessOrders(DefaultTimeLimit))
	assert.Empty(t, eng.Snapshots())
}

func TestSetSnapshotFrequencyBuildsAscendingGrid(t *testing.T) {
	eng, err := NewDefault()
	require.NoError(t, err)

	events := []model.Event{
		newEvent(1, common.Buy, common.EventNew, "10:00:00", 2500, 3, 0),
	}
	require.NoError(t, eng.IngestEvents(events))
	require.NoError(t, eng.SetSnapshotFrequency(60, 500, "10:15:00", "10:17:00"))
	assert.Equal(t, []time.Time{prioAt("10:15:00"), prioAt("10:16:00"), prioAt("10:17:00")}, eng.snapshotTimes)

	require.NoError(t, eng.ProcessOrders(DefaultTimeLimit))
}

func TestProcessOrdersStopsAtTimeLimit(t *testing.T) {
	eng, err := NewDefault()
	require.NoError(t, err)

	events := []model.Event{
		newEvent(1, common.Buy, common.EventNew, "10:00:00", 2500, 3, 0),
		newEvent(2, common.Buy, common.EventNew, "17:00:00", 2501, 1, 0),
	}
	require.NoError(t, eng.IngestEvents(events))
	require.NoError(t, eng.ProcessOrders(DefaultTimeLimit))

	_, ok := eng.Buy().DBOrder(1)
	assert.True(t, ok)
	_, ok = eng.Buy().DBOrder(2)
	assert.False(t, ok, "event past the time limit must not be applied")
}
