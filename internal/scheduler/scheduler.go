// Package scheduler orchestrates the poll, detect, open, settle loop.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"structfarm/internal/collector"
	"structfarm/internal/detector"
	"structfarm/internal/gamma"
	"structfarm/internal/ledger"
	"structfarm/internal/market"
	"structfarm/internal/performance"
)

// QuoteSource provides market snapshots. Satisfied by gamma.Client.
type QuoteSource interface {
	FetchCategory(ctx context.Context, cat market.Category) ([]market.Snapshot, error)
	GetMarket(ctx context.Context, marketID string) (market.Snapshot, error)
}

// Config fixes the loop's cadence and per-cycle trade limits.
type Config struct {
	PollInterval      time.Duration
	ReportInterval    time.Duration
	Categories        []market.Category
	MaxTradesPerCycle int
	Detector          detector.Config
}

// Scheduler drives the trading loop against a quote source.
type Scheduler struct {
	source    QuoteSource
	tracker   *ledger.Tracker
	collector *collector.Collector
	perf      *performance.Tracker
	cfg       Config
}

func New(source QuoteSource, tracker *ledger.Tracker, coll *collector.Collector, perf *performance.Tracker, cfg Config) *Scheduler {
	return &Scheduler{
		source:    source,
		tracker:   tracker,
		collector: coll,
		perf:      perf,
		cfg:       cfg,
	}
}

// Run starts the loop and blocks until the context is cancelled. The
// first cycle runs immediately rather than waiting a full interval.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler starting",
		"poll_interval", s.cfg.PollInterval,
		"mode", s.tracker.Mode(),
		"categories", len(s.cfg.Categories),
	)

	s.RunCycle(ctx)

	pollTicker := time.NewTicker(s.cfg.PollInterval)
	defer pollTicker.Stop()

	reportInterval := s.cfg.ReportInterval
	if reportInterval <= 0 {
		reportInterval = time.Hour
	}
	reportTicker := time.NewTicker(reportInterval)
	defer reportTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler shutting down")
			return ctx.Err()
		case <-pollTicker.C:
			s.RunCycle(ctx)
		case <-reportTicker.C:
			s.runPerformanceReport()
		}
	}
}

// RunCycle executes one full poll, detect, open, settle pass.
func (s *Scheduler) RunCycle(ctx context.Context) {
	snapshots := s.fetchAll(ctx)
	if ctx.Err() != nil {
		return
	}
	slog.Info("markets fetched", "count", len(snapshots))

	s.collector.Record(snapshots)

	opportunities := s.Detect(snapshots)
	s.open(ctx, opportunities)
	s.settleSweep(ctx, snapshots)
}

// fetchAll pulls every configured category concurrently. A category
// that fails to fetch is logged and contributes nothing this cycle.
func (s *Scheduler) fetchAll(ctx context.Context) []market.Snapshot {
	var (
		mu  sync.Mutex
		all []market.Snapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, cat := range s.cfg.Categories {
		g.Go(func() error {
			snaps, err := s.source.FetchCategory(gctx, cat)
			if err != nil {
				slog.Error("category fetch failed", "category", cat, "error", err)
				return nil
			}
			mu.Lock()
			all = append(all, snaps...)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return all
}

// Detect evaluates every snapshot and returns surviving opportunities
// ranked best first.
func (s *Scheduler) Detect(snapshots []market.Snapshot) []detector.Opportunity {
	var opps []detector.Opportunity
	for _, snap := range snapshots {
		opp, err := detector.Detect(snap, s.cfg.Detector)
		if err != nil {
			if errors.Is(err, detector.ErrMalformedQuote) {
				slog.Warn("malformed quote skipped", "market", snap.MarketID, "error", err)
				continue
			}
			slog.Error("detection failed", "market", snap.MarketID, "error", err)
			continue
		}
		if opp != nil {
			opps = append(opps, *opp)
		}
	}

	ranked := detector.Rank(opps)
	if len(ranked) > 0 {
		slog.Info("opportunities detected",
			"count", len(ranked),
			"best_market", ranked[0].MarketID,
			"best_profit_per_lot", ranked[0].ProfitPerLot,
		)
	}
	return ranked
}

// open takes the best opportunities up to the per-cycle limit. An
// in-flight open is never interrupted; cancellation is only observed
// between attempts.
func (s *Scheduler) open(ctx context.Context, ranked []detector.Opportunity) {
	opened := 0
	for _, opp := range ranked {
		if s.cfg.MaxTradesPerCycle > 0 && opened >= s.cfg.MaxTradesPerCycle {
			break
		}
		if ctx.Err() != nil {
			return
		}

		pos, err := s.tracker.TryOpen(ctx, opp)
		switch {
		case err == nil:
			opened++
			slog.Info("position opened",
				"position", pos.ID,
				"market", pos.MarketID,
				"edge", pos.EdgeAtEntry,
			)
		case errors.Is(err, ledger.ErrAlreadyOpen):
			slog.Debug("market already held", "market", opp.MarketID)
		case errors.Is(err, ledger.ErrStaleQuote):
			slog.Warn("quote went stale before open", "market", opp.MarketID)
		default:
			// Partial fills and gateway timeouts were already
			// journaled and escalated inside the tracker.
			slog.Error("open failed", "market", opp.MarketID, "error", err)
		}
	}
}

// settleSweep checks every open position against this cycle's quotes
// and settles the ones whose market has resolved. Markets absent from
// the cycle are looked up individually since resolved markets drop out
// of the event feed.
func (s *Scheduler) settleSweep(ctx context.Context, snapshots []market.Snapshot) {
	seen := make(map[string]market.Status, len(snapshots))
	for _, snap := range snapshots {
		seen[snap.MarketID] = snap.Status
	}

	for _, pos := range s.tracker.OpenPositions() {
		if ctx.Err() != nil {
			return
		}
		if status, ok := seen[pos.MarketID]; ok && status == market.StatusActive {
			continue
		}

		snap, err := s.source.GetMarket(ctx, pos.MarketID)
		if errors.Is(err, gamma.ErrNotFound) {
			// The market was voided or archived upstream; the pair
			// will never settle.
			cancelled, cerr := s.tracker.Cancel(pos.ID, "market removed upstream")
			if cerr != nil {
				slog.Error("cancellation failed", "position", pos.ID, "error", cerr)
				continue
			}
			slog.Warn("position cancelled by sweep",
				"position", cancelled.ID,
				"market", cancelled.MarketID,
			)
			continue
		}
		if err != nil {
			slog.Warn("settlement check failed", "market", pos.MarketID, "error", err)
			continue
		}
		if snap.Status != market.StatusResolved {
			continue
		}

		settled, err := s.tracker.Settle(pos.ID)
		if err != nil {
			slog.Error("settlement failed", "position", pos.ID, "error", err)
			continue
		}
		slog.Info("position settled by sweep",
			"position", settled.ID,
			"market", settled.MarketID,
			"realized_pnl", *settled.RealizedPnL,
		)
	}
}

func (s *Scheduler) runPerformanceReport() {
	report, err := s.perf.Generate()
	if err != nil {
		slog.Error("performance report failed", "error", err)
		return
	}
	performance.LogReport(report)
}
