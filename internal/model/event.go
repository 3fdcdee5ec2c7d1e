// Package model holds the data the ingestion layer produces and the book
// consumes: the immutable Event record and the engine's materialized
// DBOrder view of a live order (spec §3).
package model

import (
	"fmt"
	"time"

	"b3lob/internal/common"
)

// Event is one order-lifecycle record from the exchange feed (spec §3,
// "Event (Order)"). It is immutable once produced by the ingestion layer.
type Event struct {
	PrioDate    time.Time // sub-second timestamp establishing priority order
	SessionDate string    // trading-session calendar date, YYYY-MM-DD
	Seq         int64     // exchange-assigned stable order identifier
	GenID       int64
	Side        common.Side
	EventType   common.EventType
	State       common.State
	Condition   int   // 1 marks a market-order execution
	Price       int64 // ticks x 100
	Size        int64 // lots
	Executed    int64 // lots, 0 <= Executed <= Size
}

func (e Event) String() string {
	return fmt.Sprintf(
		"Event{seq=%d side=%v event=%v price=%d size=%d executed=%d condition=%d prio=%s}",
		e.Seq, e.Side, e.EventType, e.Price, e.Size, e.Executed, e.Condition,
		e.PrioDate.Format("2006-01-02 15:04:05.000000"),
	)
}

// DBOrder is the engine's materialized view of a live order, keyed by Seq
// in the owning Side Book's db map (spec §3).
type DBOrder struct {
	Size     int64
	Executed int64
	Price    int64
	Side     common.Side
}

// Outstanding is the order's remaining unfilled quantity.
func (d DBOrder) Outstanding() int64 {
	return d.Size - d.Executed
}

func (d DBOrder) String() string {
	return fmt.Sprintf("DBOrder{side=%v price=%d size=%d executed=%d}", d.Side, d.Price, d.Size, d.Executed)
}
