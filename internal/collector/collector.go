// Package collector persists per-cycle market snapshots so past quote
// history can be replayed by the backtester.
package collector

import (
	"database/sql"
	"log/slog"

	"structfarm/internal/market"
)

type Collector struct {
	db *sql.DB
}

func New(db *sql.DB) *Collector {
	return &Collector{db: db}
}

// Record stores one row per snapshot. A single failed insert is logged
// and skipped; snapshot history is best effort and must never stall a
// trading cycle.
func (c *Collector) Record(snapshots []market.Snapshot) {
	recorded := 0
	for _, s := range snapshots {
		_, err := c.db.Exec(`
			INSERT INTO market_snapshots (market_id, category, yes_price, no_price, liquidity, close_time, status, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.MarketID, string(s.Category), s.YesPrice, s.NoPrice, s.Liquidity,
			s.CloseTime.UnixMilli(), string(s.Status), s.FetchedAt.UnixMilli(),
		)
		if err != nil {
			slog.Warn("failed to record snapshot", "market", s.MarketID, "error", err)
			continue
		}
		recorded++
	}
	slog.Debug("snapshots recorded", "count", recorded, "total", len(snapshots))
}
