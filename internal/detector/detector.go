// Package detector turns market snapshots into ranked sum-to-one
// arbitrage opportunities. Detection is a pure function so it can run
// on every poll cycle without side effects.
package detector

import (
	"errors"
	"fmt"
	"time"

	"structfarm/internal/market"
)

// ErrMalformedQuote marks upstream price data that cannot be trusted.
// Callers skip the offending market and continue the cycle.
var ErrMalformedQuote = errors.New("malformed quote")

// Config holds the acceptance thresholds applied to every snapshot.
type Config struct {
	MinEdge      float64 // minimum mispricing, strict lower bound
	MinLiquidity float64 // quote-currency units
	LotSize      float64 // capital per leg, used only to price the lot
}

// Opportunity is a computed view over exactly one snapshot. It exists
// only while the edge does; it is never persisted on its own.
type Opportunity struct {
	MarketID     string
	Question     string
	Category     market.Category
	YesPrice     float64
	NoPrice      float64
	Edge         float64
	ProfitPerLot float64
	LotSize      float64
	Liquidity    float64
	CloseTime    time.Time
	DetectedAt   time.Time
	URL          string
}

// Detect computes the mispricing edge for a single snapshot and applies
// the acceptance filters. It returns (nil, nil) when the market is
// simply not an opportunity, and an error wrapping ErrMalformedQuote
// when the quoted prices are outside [0, 1].
//
// The edge is compared unrounded against MinEdge so near-threshold
// noise is never admitted.
func Detect(snap market.Snapshot, cfg Config) (*Opportunity, error) {
	if snap.YesPrice < 0 || snap.YesPrice > 1 || snap.NoPrice < 0 || snap.NoPrice > 1 {
		return nil, fmt.Errorf("%w: market %s yes=%g no=%g",
			ErrMalformedQuote, snap.MarketID, snap.YesPrice, snap.NoPrice)
	}
	if snap.Status != market.StatusActive {
		return nil, nil
	}
	if snap.Liquidity < cfg.MinLiquidity {
		return nil, nil
	}

	edge := snap.YesPrice + snap.NoPrice - 1.0
	if edge <= cfg.MinEdge {
		return nil, nil
	}

	return &Opportunity{
		MarketID:     snap.MarketID,
		Question:     snap.Question,
		Category:     snap.Category,
		YesPrice:     snap.YesPrice,
		NoPrice:      snap.NoPrice,
		Edge:         edge,
		ProfitPerLot: edge * cfg.LotSize,
		LotSize:      cfg.LotSize,
		Liquidity:    snap.Liquidity,
		CloseTime:    snap.CloseTime,
		DetectedAt:   snap.FetchedAt,
		URL:          snap.URL,
	}, nil
}
