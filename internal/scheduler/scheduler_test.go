package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"testing"
	"time"

	"structfarm/internal/collector"
	"structfarm/internal/db"
	"structfarm/internal/detector"
	"structfarm/internal/gamma"
	"structfarm/internal/journal"
	"structfarm/internal/ledger"
	"structfarm/internal/market"
	"structfarm/internal/performance"
)

type fakeSource struct {
	byCategory map[market.Category][]market.Snapshot
	byID       map[string]market.Snapshot
}

func (f *fakeSource) FetchCategory(_ context.Context, cat market.Category) ([]market.Snapshot, error) {
	return f.byCategory[cat], nil
}

func (f *fakeSource) GetMarket(_ context.Context, id string) (market.Snapshot, error) {
	snap, ok := f.byID[id]
	if !ok {
		return market.Snapshot{}, fmt.Errorf("market %s: %w", id, gamma.ErrNotFound)
	}
	return snap, nil
}

type nopJournal struct{}

func (nopJournal) Append(journal.Entry) error { return nil }

func activeSnapshot(id string, yes, no float64) market.Snapshot {
	return market.Snapshot{
		MarketID:  id,
		Question:  id + "?",
		Category:  market.Category15Min,
		YesPrice:  yes,
		NoPrice:   no,
		Liquidity: 12450,
		CloseTime: time.Now().Add(15 * time.Minute),
		Status:    market.StatusActive,
		FetchedAt: time.Now(),
	}
}

func newTestScheduler(t *testing.T, source QuoteSource) (*Scheduler, *ledger.Tracker, *sql.DB) {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database); err != nil {
		t.Fatal(err)
	}

	tracker, err := ledger.New(database, nopJournal{}, nil, nil, ledger.Config{Mode: ledger.ModePaper})
	if err != nil {
		t.Fatal(err)
	}

	sched := New(source, tracker, collector.New(database), performance.NewTracker(database), Config{
		PollInterval:      time.Minute,
		Categories:        []market.Category{market.Category15Min},
		MaxTradesPerCycle: 1,
		Detector: detector.Config{
			MinEdge:      0.02,
			MinLiquidity: 5000,
			LotSize:      10,
		},
	})
	return sched, tracker, database
}

func TestRunCycle_OpensOnlyTheBestOpportunity(t *testing.T) {
	source := &fakeSource{
		byCategory: map[market.Category][]market.Snapshot{
			market.Category15Min: {
				activeSnapshot("mkt-small-edge", 0.52, 0.51), // edge 0.03
				activeSnapshot("mkt-big-edge", 0.55, 0.51),   // edge 0.06
				activeSnapshot("mkt-no-edge", 0.49, 0.50),
			},
		},
	}
	sched, tracker, _ := newTestScheduler(t, source)

	sched.RunCycle(context.Background())

	open := tracker.OpenPositions()
	if len(open) != 1 {
		t.Fatalf("expected 1 open position under max_trades_per_cycle=1, got %d", len(open))
	}
	if open[0].MarketID != "mkt-big-edge" {
		t.Errorf("expected the most profitable market opened, got %s", open[0].MarketID)
	}
	if math.Abs(open[0].EdgeAtEntry-0.06) > 1e-9 {
		t.Errorf("unexpected entry edge %g", open[0].EdgeAtEntry)
	}
}

func TestRunCycle_HeldMarketStaysSinglePosition(t *testing.T) {
	source := &fakeSource{
		byCategory: map[market.Category][]market.Snapshot{
			market.Category15Min: {activeSnapshot("mkt-1", 0.52, 0.51)},
		},
	}
	sched, tracker, _ := newTestScheduler(t, source)

	sched.RunCycle(context.Background())
	sched.RunCycle(context.Background())

	if got := len(tracker.OpenPositions()); got != 1 {
		t.Errorf("expected the held market not reopened, got %d positions", got)
	}
}

func TestRunCycle_SettlesResolvedMarkets(t *testing.T) {
	source := &fakeSource{
		byCategory: map[market.Category][]market.Snapshot{
			market.Category15Min: {activeSnapshot("mkt-1", 0.52, 0.51)},
		},
		byID: map[string]market.Snapshot{},
	}
	sched, tracker, database := newTestScheduler(t, source)

	sched.RunCycle(context.Background())
	if got := len(tracker.OpenPositions()); got != 1 {
		t.Fatalf("expected 1 open position, got %d", got)
	}

	// Next cycle: the market drops out of the event feed and reports
	// resolved on direct lookup.
	source.byCategory[market.Category15Min] = nil
	resolved := activeSnapshot("mkt-1", 1.0, 0.0)
	resolved.Status = market.StatusResolved
	source.byID["mkt-1"] = resolved

	sched.RunCycle(context.Background())

	if got := len(tracker.OpenPositions()); got != 0 {
		t.Fatalf("expected the position settled, got %d open", got)
	}
	var pnl float64
	row := database.QueryRow(`SELECT realized_pnl FROM positions WHERE market_id = 'mkt-1'`)
	if err := row.Scan(&pnl); err != nil {
		t.Fatal(err)
	}
	if math.Abs(pnl-0.30) > 1e-9 {
		t.Errorf("expected realized pnl 0.30, got %g", pnl)
	}
}

func TestRunCycle_CancelsRemovedMarkets(t *testing.T) {
	source := &fakeSource{
		byCategory: map[market.Category][]market.Snapshot{
			market.Category15Min: {activeSnapshot("mkt-1", 0.52, 0.51)},
		},
		byID: map[string]market.Snapshot{},
	}
	sched, tracker, database := newTestScheduler(t, source)

	sched.RunCycle(context.Background())

	// The market vanishes upstream entirely.
	source.byCategory[market.Category15Min] = nil
	sched.RunCycle(context.Background())

	if got := len(tracker.OpenPositions()); got != 0 {
		t.Fatalf("expected the position cancelled, got %d open", got)
	}
	var status, reason string
	row := database.QueryRow(`SELECT status, close_reason FROM positions WHERE market_id = 'mkt-1'`)
	if err := row.Scan(&status, &reason); err != nil {
		t.Fatal(err)
	}
	if status != "cancelled" {
		t.Errorf("expected cancelled status, got %s", status)
	}
	if reason != "market removed upstream" {
		t.Errorf("unexpected close reason %q", reason)
	}
}

func TestRunCycle_RecordsSnapshotHistory(t *testing.T) {
	source := &fakeSource{
		byCategory: map[market.Category][]market.Snapshot{
			market.Category15Min: {
				activeSnapshot("mkt-1", 0.52, 0.51),
				activeSnapshot("mkt-2", 0.49, 0.50),
			},
		},
	}
	sched, _, database := newTestScheduler(t, source)

	sched.RunCycle(context.Background())

	var count int
	if err := database.QueryRow(`SELECT COUNT(*) FROM market_snapshots`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 snapshot rows, got %d", count)
	}
}
