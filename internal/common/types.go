// Package common holds the small tagged-variant types shared by the book,
// engine, snapshot and ingest packages: order side, event kind and exchange
// order state, together with the integer-to-tag decode tables the wire
// format (spec §6) defines.
package common

import "fmt"

// Side identifies which side of the book an order rests on.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// DecodeSide maps the wire's field-2 code ("1"/"2") to a Side.
func DecodeSide(code string) (Side, bool) {
	switch code {
	case "1":
		return Buy, true
	case "2":
		return Sell, true
	default:
		return 0, false
	}
}

// EventType is the order-lifecycle event a record describes. Only New,
// Update, Cancel, Trade, Reentry and Expire affect book state; the rest are
// recognized but intentionally inert (see EventType.AffectsBook).
type EventType int

const (
	EventNew EventType = iota
	EventUpdate
	EventCancel
	EventTrade
	EventReentry
	EventNewStop
	EventReject
	EventRemoved
	EventStopped
	EventExpire
	EventUnknown
)

var eventNames = map[EventType]string{
	EventNew:     "new",
	EventUpdate:  "update",
	EventCancel:  "cancel",
	EventTrade:   "trade",
	EventReentry: "reentry",
	EventNewStop: "newstop",
	EventReject:  "reject",
	EventRemoved: "removed",
	EventStopped: "stopped",
	EventExpire:  "expire",
	EventUnknown: "unknown",
}

func (e EventType) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", int(e))
}

// eventCodes is the field-5 integer decode table from spec §6.
var eventCodes = map[int]EventType{
	1:  EventNew,
	2:  EventUpdate,
	3:  EventCancel,
	4:  EventTrade,
	5:  EventReentry,
	6:  EventNewStop,
	7:  EventReject,
	8:  EventRemoved,
	9:  EventStopped,
	11: EventExpire,
}

// DecodeEventType maps the wire's field-5 integer code to an EventType.
// An out-of-table code is a decode error (ok is false); no code in the
// table decodes to EventUnknown.
func DecodeEventType(code int) (EventType, bool) {
	et, ok := eventCodes[code]
	return et, ok
}

// AffectsBook reports whether the event mutates Side Book state (spec §4.1).
// Reentry is listed among the book-affecting events but its handler is a
// no-op; Reject/Removed/Stopped/NewStop/Unknown all fall through to the
// unknown-event debug path per §9's Open Questions.
func (e EventType) AffectsBook() bool {
	switch e {
	case EventNew, EventUpdate, EventCancel, EventTrade, EventReentry, EventExpire:
		return true
	default:
		return false
	}
}

// State is the exchange order-state tag (field 13). It is decoded and
// carried on every Event for completeness but is never consulted by the
// engine (spec §9 Open Questions).
type State int

const (
	StateNew State = iota
	StatePartial
	StateExecuted
	StateCancelled
	StateModified
	StateRejected
	StateExpired
	StateUnknown
)

var stateNames = map[State]string{
	StateNew:       "new",
	StatePartial:   "partial",
	StateExecuted:  "executed",
	StateCancelled: "cancelled",
	StateModified:  "modified",
	StateRejected:  "rejected",
	StateExpired:   "expired",
	StateUnknown:   "unknown",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// stateCodes is the field-13 decode table from spec §6.
var stateCodes = map[string]State{
	"0": StateNew,
	"1": StatePartial,
	"2": StateExecuted,
	"4": StateCancelled,
	"5": StateModified,
	"8": StateRejected,
	"C": StateExpired,
}

// DecodeState maps the wire's field-13 code to a State. Unrecognized codes
// decode to StateUnknown rather than failing the record, since state is
// never behaviorally consulted.
func DecodeState(code string) State {
	if s, ok := stateCodes[code]; ok {
		return s
	}
	return StateUnknown
}
