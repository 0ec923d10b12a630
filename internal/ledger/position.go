package ledger

import "time"

// Mode selects how accepted opportunities are executed. The mode is
// fixed when the tracker is constructed, never per call.
type Mode string

const (
	ModePaper Mode = "paper" // synthesize fills, never touch the gateway
	ModeLive  Mode = "live"  // place both legs through the gateway
)

// Status is the lifecycle state of a position.
type Status string

const (
	StatusOpen      Status = "open"
	StatusSettled   Status = "settled_win_confirmed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusSettled || s == StatusCancelled
}

// Position is capital committed to one arbitrage: offsetting buys on
// both outcomes of a single market. RealizedPnL is nil until the
// position leaves the open state and is set exactly once.
type Position struct {
	ID           string
	MarketID     string
	Question     string
	Mode         Mode
	OpenedAt     time.Time
	LotSize      float64
	YesPricePaid float64
	NoPricePaid  float64
	EdgeAtEntry  float64
	Status       Status
	RealizedPnL  *float64
	ClosedAt     *time.Time
	CloseReason  string
}
