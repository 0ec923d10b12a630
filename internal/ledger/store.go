package ledger

import (
	"database/sql"
	"fmt"
	"time"
)

// insertPosition writes a freshly opened position row.
func insertPosition(database *sql.DB, p *Position) error {
	_, err := database.Exec(`
		INSERT INTO positions (id, market_id, question, mode, opened_at, lot_size, yes_price_paid, no_price_paid, edge_at_entry, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MarketID, p.Question, string(p.Mode), p.OpenedAt.UnixMilli(),
		p.LotSize, p.YesPricePaid, p.NoPricePaid, p.EdgeAtEntry, string(p.Status),
	)
	if err != nil {
		return fmt.Errorf("inserting position: %w", err)
	}
	return nil
}

// closePosition records a transition into a terminal state.
func closePosition(database *sql.DB, p *Position) error {
	var closedAt *int64
	if p.ClosedAt != nil {
		ms := p.ClosedAt.UnixMilli()
		closedAt = &ms
	}
	res, err := database.Exec(`
		UPDATE positions SET status = ?, realized_pnl = ?, closed_at = ?, close_reason = ?
		WHERE id = ?`,
		string(p.Status), p.RealizedPnL, closedAt, p.CloseReason, p.ID,
	)
	if err != nil {
		return fmt.Errorf("closing position: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("closing position %s: %w", p.ID, ErrUnknownPosition)
	}
	return nil
}

// loadOpenPositions restores the open ledger after a restart so the
// one-open-position-per-market invariant survives process boundaries.
func loadOpenPositions(database *sql.DB) ([]*Position, error) {
	rows, err := database.Query(`
		SELECT id, market_id, question, mode, opened_at, lot_size, yes_price_paid, no_price_paid, edge_at_entry, status
		FROM positions WHERE status = ?`, string(StatusOpen))
	if err != nil {
		return nil, fmt.Errorf("querying open positions: %w", err)
	}
	defer rows.Close()

	var positions []*Position
	for rows.Next() {
		var (
			p        Position
			mode     string
			status   string
			openedAt int64
		)
		if err := rows.Scan(
			&p.ID, &p.MarketID, &p.Question, &mode, &openedAt,
			&p.LotSize, &p.YesPricePaid, &p.NoPricePaid, &p.EdgeAtEntry, &status,
		); err != nil {
			return nil, fmt.Errorf("scanning position row: %w", err)
		}
		p.Mode = Mode(mode)
		p.Status = Status(status)
		p.OpenedAt = time.UnixMilli(openedAt)
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}
