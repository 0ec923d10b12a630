// Package ledger owns every position. All mutation funnels through the
// Tracker, which is the sole authority on whether an opportunity can be
// acted on right now.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"structfarm/internal/detector"
	"structfarm/internal/gateway"
	"structfarm/internal/journal"
	"structfarm/internal/notify"
)

// Config fixes the tracker's execution behavior at construction.
type Config struct {
	Mode           Mode
	MaxQuoteAge    time.Duration // 0 disables the staleness guard
	GatewayTimeout time.Duration
}

// Tracker is the position ledger. One open position per market, all
// transitions serialized behind a single mutex, every transition
// journaled before the call returns.
type Tracker struct {
	mu       sync.Mutex
	db       *sql.DB
	journal  journal.Journal
	gw       gateway.Gateway
	notifier notify.Notifier
	cfg      Config

	byMarket map[string]*Position // open positions only
	byID     map[string]*Position

	now func() time.Time
}

// New builds a tracker and restores open positions from the database so
// the per-market invariant survives restarts.
func New(database *sql.DB, jrnl journal.Journal, gw gateway.Gateway, notifier notify.Notifier, cfg Config) (*Tracker, error) {
	switch cfg.Mode {
	case ModePaper, ModeLive:
	default:
		return nil, fmt.Errorf("invalid mode %q", cfg.Mode)
	}
	if cfg.Mode == ModeLive && gw == nil {
		return nil, errors.New("live mode requires an execution gateway")
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}

	t := &Tracker{
		db:       database,
		journal:  jrnl,
		gw:       gw,
		notifier: notifier,
		cfg:      cfg,
		byMarket: make(map[string]*Position),
		byID:     make(map[string]*Position),
		now:      time.Now,
	}

	open, err := loadOpenPositions(database)
	if err != nil {
		return nil, err
	}
	for _, p := range open {
		t.byMarket[p.MarketID] = p
		t.byID[p.ID] = p
	}
	if len(open) > 0 {
		slog.Info("restored open positions", "count", len(open))
	}
	return t, nil
}

// Mode returns the execution mode fixed at construction.
func (t *Tracker) Mode() Mode { return t.cfg.Mode }

// OpenPositions returns copies of all currently open positions.
func (t *Tracker) OpenPositions() []Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Position, 0, len(t.byMarket))
	for _, p := range t.byMarket {
		out = append(out, *p)
	}
	return out
}

// TryOpen converts an accepted opportunity into an open position.
//
// Paper mode synthesizes a fill at the quoted prices and never calls
// the gateway. Live mode places both legs; the recorded entry edge is
// recomputed from actual fills since slippage can erase the quoted
// edge. A partial fill or an unknown fill status triggers an unwind of
// whatever may have filled before the error is returned.
func (t *Tracker) TryOpen(ctx context.Context, opp detector.Opportunity) (*Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byMarket[opp.MarketID]; exists {
		return nil, fmt.Errorf("market %s: %w", opp.MarketID, ErrAlreadyOpen)
	}
	if t.cfg.MaxQuoteAge > 0 && !opp.DetectedAt.IsZero() {
		if age := t.now().Sub(opp.DetectedAt); age > t.cfg.MaxQuoteAge {
			return nil, fmt.Errorf("market %s quoted %s ago: %w", opp.MarketID, age.Round(time.Millisecond), ErrStaleQuote)
		}
	}

	if t.cfg.Mode == ModePaper {
		return t.openPaper(opp)
	}
	return t.openLive(ctx, opp)
}

func (t *Tracker) openPaper(opp detector.Opportunity) (*Position, error) {
	p := &Position{
		ID:           uuid.NewString(),
		MarketID:     opp.MarketID,
		Question:     opp.Question,
		Mode:         ModePaper,
		OpenedAt:     t.now(),
		LotSize:      opp.LotSize,
		YesPricePaid: opp.YesPrice,
		NoPricePaid:  opp.NoPrice,
		EdgeAtEntry:  opp.Edge,
		Status:       StatusOpen,
	}
	if err := t.commitOpen(p); err != nil {
		return nil, err
	}
	slog.Info("paper position opened",
		"position", p.ID,
		"market", p.MarketID,
		"edge", p.EdgeAtEntry,
		"lot_size", p.LotSize,
	)
	return p, nil
}

func (t *Tracker) openLive(ctx context.Context, opp detector.Opportunity) (*Position, error) {
	order := gateway.PairOrder{
		MarketID: opp.MarketID,
		YesLots:  opp.LotSize,
		NoLots:   opp.LotSize,
		YesLimit: opp.YesPrice,
		NoLimit:  opp.NoPrice,
	}

	cctx, cancel := context.WithTimeout(ctx, t.cfg.GatewayTimeout)
	defer cancel()

	res, err := t.gw.PlacePair(cctx, order)
	if err != nil {
		// Fill status unknown. Never assume a pending order succeeded:
		// journal the attempt, try to unwind both legs, escalate.
		timedOut := errors.Is(err, context.DeadlineExceeded)
		reason := fmt.Sprintf("placement error: %v", err)
		if timedOut {
			reason = "gateway timeout, fill status unknown"
		}
		t.journalAttempt(journal.EventExecutionFailed, opp, reason)

		yesOK := t.unwind(ctx, opp, "YES", opp.YesPrice)
		noOK := t.unwind(ctx, opp, "NO", opp.NoPrice)
		t.alert(ctx, opp, reason, yesOK && noOK)

		if timedOut {
			return nil, fmt.Errorf("market %s: %w", opp.MarketID, ErrGatewayTimeout)
		}
		return nil, fmt.Errorf("placing pair for market %s: %w", opp.MarketID, err)
	}

	switch res.Status {
	case gateway.StatusFilled:
		entryEdge := res.YesFillPrice + res.NoFillPrice - 1.0
		p := &Position{
			ID:           uuid.NewString(),
			MarketID:     opp.MarketID,
			Question:     opp.Question,
			Mode:         ModeLive,
			OpenedAt:     t.now(),
			LotSize:      opp.LotSize,
			YesPricePaid: res.YesFillPrice,
			NoPricePaid:  res.NoFillPrice,
			EdgeAtEntry:  entryEdge,
			Status:       StatusOpen,
		}
		if err := t.commitOpen(p); err != nil {
			return nil, err
		}
		slog.Info("live position opened",
			"position", p.ID,
			"market", p.MarketID,
			"quoted_edge", opp.Edge,
			"entry_edge", entryEdge,
			"yes_fill", res.YesFillPrice,
			"no_fill", res.NoFillPrice,
		)
		return p, nil

	case gateway.StatusPartial:
		filled := "YES"
		fillPrice := res.YesFillPrice
		if res.NoFilled {
			filled = "NO"
			fillPrice = res.NoFillPrice
		}
		reason := fmt.Sprintf("partial fill: only %s leg filled at %g", filled, fillPrice)
		t.journalAttempt(journal.EventExecutionFailed, opp, reason)

		unwound := t.unwind(ctx, opp, filled, fillPrice)
		t.alert(ctx, opp, reason, unwound)

		return nil, fmt.Errorf("market %s, %s: %w", opp.MarketID, reason, ErrPartialFillRisk)

	default:
		reason := "no legs filled"
		t.journalAttempt(journal.EventExecutionFailed, opp, reason)
		slog.Error("pair placement failed", "market", opp.MarketID, "reason", reason)
		return nil, fmt.Errorf("market %s, %s: %w", opp.MarketID, reason, ErrPartialFillRisk)
	}
}

// Settle transitions an open position to settled_win_confirmed. The
// payoff is lot_size x edge_at_entry regardless of which side won,
// since both sides were purchased.
func (t *Tracker) Settle(positionID string) (*Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.byID[positionID]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", positionID, ErrUnknownPosition)
	}
	if p.Status.Terminal() {
		return nil, fmt.Errorf("position %s is %s: %w", positionID, p.Status, ErrTerminalState)
	}

	pnl := p.LotSize * p.EdgeAtEntry
	closedAt := t.now()

	updated := *p
	updated.Status = StatusSettled
	updated.RealizedPnL = &pnl
	updated.ClosedAt = &closedAt

	if err := closePosition(t.db, &updated); err != nil {
		return nil, err
	}
	if err := t.journal.Append(journal.Entry{
		Timestamp:   closedAt.UTC(),
		Event:       journal.EventSettled,
		Mode:        string(t.cfg.Mode),
		PositionID:  p.ID,
		MarketID:    p.MarketID,
		Question:    p.Question,
		LotSize:     p.LotSize,
		YesPrice:    p.YesPricePaid,
		NoPrice:     p.NoPricePaid,
		EdgeAtEntry: p.EdgeAtEntry,
		RealizedPnL: &pnl,
	}); err != nil {
		return nil, fmt.Errorf("journaling settlement: %w", err)
	}

	*p = updated
	delete(t.byMarket, p.MarketID)

	slog.Info("position settled",
		"position", p.ID,
		"market", p.MarketID,
		"realized_pnl", pnl,
	)
	out := updated
	return &out, nil
}

// Cancel transitions an open position to cancelled when the market is
// voided before settlement. RealizedPnL is zero for a fully unwound
// position.
func (t *Tracker) Cancel(positionID, reason string) (*Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.byID[positionID]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", positionID, ErrUnknownPosition)
	}
	if p.Status.Terminal() {
		return nil, fmt.Errorf("position %s is %s: %w", positionID, p.Status, ErrTerminalState)
	}

	pnl := 0.0
	closedAt := t.now()

	updated := *p
	updated.Status = StatusCancelled
	updated.RealizedPnL = &pnl
	updated.ClosedAt = &closedAt
	updated.CloseReason = reason

	if err := closePosition(t.db, &updated); err != nil {
		return nil, err
	}
	if err := t.journal.Append(journal.Entry{
		Timestamp:   closedAt.UTC(),
		Event:       journal.EventCancelled,
		Mode:        string(t.cfg.Mode),
		PositionID:  p.ID,
		MarketID:    p.MarketID,
		Question:    p.Question,
		LotSize:     p.LotSize,
		EdgeAtEntry: p.EdgeAtEntry,
		RealizedPnL: &pnl,
		Reason:      reason,
	}); err != nil {
		return nil, fmt.Errorf("journaling cancellation: %w", err)
	}

	*p = updated
	delete(t.byMarket, p.MarketID)

	slog.Warn("position cancelled", "position", p.ID, "market", p.MarketID, "reason", reason)
	out := updated
	return &out, nil
}

// commitOpen persists a new open position and journals it. The journal
// write is part of the operation, not a skippable side effect.
func (t *Tracker) commitOpen(p *Position) error {
	if err := insertPosition(t.db, p); err != nil {
		return err
	}
	if err := t.journal.Append(journal.Entry{
		Timestamp:   p.OpenedAt.UTC(),
		Event:       journal.EventOpened,
		Mode:        string(p.Mode),
		PositionID:  p.ID,
		MarketID:    p.MarketID,
		Question:    p.Question,
		LotSize:     p.LotSize,
		YesPrice:    p.YesPricePaid,
		NoPrice:     p.NoPricePaid,
		EdgeAtEntry: p.EdgeAtEntry,
	}); err != nil {
		// Roll the row back so ledger and journal cannot disagree.
		if _, derr := t.db.Exec(`DELETE FROM positions WHERE id = ?`, p.ID); derr != nil {
			slog.Error("failed to roll back unjournaled position", "position", p.ID, "error", derr)
		}
		return fmt.Errorf("journaling open: %w", err)
	}

	t.byMarket[p.MarketID] = p
	t.byID[p.ID] = p
	return nil
}

// unwind cancels or offsets a single leg, journaling the outcome. The
// cleanup context is detached from cycle cancellation: an in-flight
// live execution cannot be safely abandoned.
func (t *Tracker) unwind(ctx context.Context, opp detector.Opportunity, outcome string, fillPrice float64) bool {
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.GatewayTimeout)
	defer cancel()

	err := t.gw.UnwindLeg(uctx, gateway.Unwind{
		MarketID:  opp.MarketID,
		Outcome:   outcome,
		Lots:      opp.LotSize,
		FillPrice: fillPrice,
	})
	if err != nil {
		t.journalAttempt(journal.EventUnwindFailed, opp, fmt.Sprintf("%s leg: %v", outcome, err))
		slog.Error("leg unwind failed, manual review required",
			"market", opp.MarketID,
			"outcome", outcome,
			"error", err,
		)
		return false
	}
	t.journalAttempt(journal.EventUnwound, opp, outcome+" leg")
	slog.Info("leg unwound", "market", opp.MarketID, "outcome", outcome)
	return true
}

// journalAttempt records an execution attempt or unwind outcome. A
// journal failure here is logged, never swallowed silently, but cannot
// abort the recovery path it documents.
func (t *Tracker) journalAttempt(event journal.Event, opp detector.Opportunity, reason string) {
	err := t.journal.Append(journal.Entry{
		Timestamp:   t.now().UTC(),
		Event:       event,
		Mode:        string(t.cfg.Mode),
		MarketID:    opp.MarketID,
		Question:    opp.Question,
		LotSize:     opp.LotSize,
		YesPrice:    opp.YesPrice,
		NoPrice:     opp.NoPrice,
		EdgeAtEntry: opp.Edge,
		Reason:      reason,
	})
	if err != nil {
		slog.Error("journal append failed", "event", event, "market", opp.MarketID, "error", err)
	}
}

func (t *Tracker) alert(ctx context.Context, opp detector.Opportunity, reason string, unwound bool) {
	subject := "Execution failure"
	body := fmt.Sprintf("market %s\n%s\nunwound cleanly: %v", opp.MarketID, reason, unwound)
	if !unwound {
		subject = "UNWIND FAILED, manual review required"
	}

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := t.notifier.Alert(actx, subject, body); err != nil {
		slog.Error("operator alert failed", "market", opp.MarketID, "error", err)
	}
}
