// Package gateway defines the order-execution boundary. Implementations
// own wallet and signing concerns entirely; the engine only sees paired
// placements and their fill outcomes.
package gateway

import "context"

// FillStatus reports what happened to a paired placement.
type FillStatus string

const (
	StatusFilled  FillStatus = "filled"  // both legs filled
	StatusPartial FillStatus = "partial" // exactly one leg filled
	StatusFailed  FillStatus = "failed"  // neither leg filled
)

// PairOrder requests offsetting buys on both outcomes of one market.
type PairOrder struct {
	MarketID string
	YesLots  float64
	NoLots   float64
	YesLimit float64 // quoted price, upper bound for the YES leg
	NoLimit  float64 // quoted price, upper bound for the NO leg
}

// PairResult carries actual fill prices, which may differ from the
// quoted limits.
type PairResult struct {
	Status       FillStatus
	YesFilled    bool
	NoFilled     bool
	YesFillPrice float64
	NoFillPrice  float64
}

// Unwind identifies a single filled leg to cancel or offset after its
// paired leg failed to fill.
type Unwind struct {
	MarketID  string
	Outcome   string // "YES" or "NO"
	Lots      float64
	FillPrice float64
}

// Gateway places paired buy orders and unwinds stranded legs. Calls may
// block on network I/O; callers apply their own timeout and treat a
// timeout as fill-status-unknown.
type Gateway interface {
	PlacePair(ctx context.Context, order PairOrder) (PairResult, error)
	UnwindLeg(ctx context.Context, u Unwind) error
}
