package performance

import (
	"database/sql"
	"fmt"
)

// Tracker computes performance metrics from the positions table.
type Tracker struct {
	db *sql.DB
}

func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// Report contains all performance metrics.
type Report struct {
	TotalPositions int
	OpenPositions  int
	Settled        int
	Cancelled      int
	TotalStaked    float64
	RealizedPnL    float64
	ROI            float64
	AvgEntryEdge   float64
	ModeStats      map[string]ModeStats
}

// ModeStats breaks the totals down per execution mode.
type ModeStats struct {
	Positions   int
	RealizedPnL float64
}

// Generate computes the full performance report.
func (t *Tracker) Generate() (*Report, error) {
	r := &Report{
		ModeStats: make(map[string]ModeStats),
	}

	if err := t.computeOverall(r); err != nil {
		return nil, fmt.Errorf("computing overall stats: %w", err)
	}
	if err := t.computeModeStats(r); err != nil {
		return nil, fmt.Errorf("computing per-mode stats: %w", err)
	}

	return r, nil
}

func (t *Tracker) computeOverall(r *Report) error {
	row := t.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'open' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'settled_win_confirmed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(lot_size * (yes_price_paid + no_price_paid)), 0),
		       COALESCE(SUM(realized_pnl), 0),
		       COALESCE(AVG(edge_at_entry), 0)
		FROM positions`)
	if err := row.Scan(
		&r.TotalPositions, &r.OpenPositions, &r.Settled, &r.Cancelled,
		&r.TotalStaked, &r.RealizedPnL, &r.AvgEntryEdge,
	); err != nil {
		return err
	}

	if r.TotalStaked > 0 {
		r.ROI = r.RealizedPnL / r.TotalStaked
	}
	return nil
}

func (t *Tracker) computeModeStats(r *Report) error {
	rows, err := t.db.Query(`
		SELECT mode, COUNT(*), COALESCE(SUM(realized_pnl), 0)
		FROM positions GROUP BY mode`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var mode string
		var stats ModeStats
		if err := rows.Scan(&mode, &stats.Positions, &stats.RealizedPnL); err != nil {
			return err
		}
		r.ModeStats[mode] = stats
	}
	return rows.Err()
}
