package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Simulated is an in-process gateway that fills legs at their limit
// prices plus a configurable slippage. It never touches the network,
// which makes it suitable for live-mode rehearsal and for tests that
// need partial fills, timeouts, or unwind failures on demand.
type Simulated struct {
	YesSlippage float64       // added to the YES limit on fill
	NoSlippage  float64       // added to the NO limit on fill
	FailLeg     string        // "", "YES", or "NO": leg that reports failed
	FailBoth    bool          // neither leg fills
	FailUnwind  bool          // UnwindLeg returns an error
	Latency     time.Duration // simulated network delay per call
}

// NewSimulated returns a gateway that fills both legs at quoted prices.
func NewSimulated() *Simulated {
	return &Simulated{}
}

func (s *Simulated) PlacePair(ctx context.Context, order PairOrder) (PairResult, error) {
	if err := s.wait(ctx); err != nil {
		return PairResult{}, err
	}

	if s.FailBoth {
		return PairResult{Status: StatusFailed}, nil
	}

	res := PairResult{
		YesFilled:    s.FailLeg != "YES",
		NoFilled:     s.FailLeg != "NO",
		YesFillPrice: order.YesLimit + s.YesSlippage,
		NoFillPrice:  order.NoLimit + s.NoSlippage,
	}
	switch {
	case res.YesFilled && res.NoFilled:
		res.Status = StatusFilled
	default:
		res.Status = StatusPartial
	}
	if !res.YesFilled {
		res.YesFillPrice = 0
	}
	if !res.NoFilled {
		res.NoFillPrice = 0
	}

	slog.Debug("simulated pair placement",
		"market", order.MarketID,
		"status", res.Status,
		"yes_fill", res.YesFillPrice,
		"no_fill", res.NoFillPrice,
	)
	return res, nil
}

func (s *Simulated) UnwindLeg(ctx context.Context, u Unwind) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	if s.FailUnwind {
		return errors.New("simulated unwind rejection")
	}
	slog.Debug("simulated leg unwind", "market", u.MarketID, "outcome", u.Outcome, "lots", u.Lots)
	return nil
}

func (s *Simulated) wait(ctx context.Context) error {
	if s.Latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.Latency):
		return nil
	}
}
