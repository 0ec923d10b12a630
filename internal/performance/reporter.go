package performance

import (
	"log/slog"
)

// LogReport logs the performance report as structured JSON.
func LogReport(r *Report) {
	slog.Info("=== PERFORMANCE REPORT ===",
		"total_positions", r.TotalPositions,
		"open", r.OpenPositions,
		"settled", r.Settled,
		"cancelled", r.Cancelled,
		"total_staked", r.TotalStaked,
		"realized_pnl", r.RealizedPnL,
		"roi", r.ROI,
		"avg_entry_edge", r.AvgEntryEdge,
	)

	for mode, stats := range r.ModeStats {
		slog.Info("mode performance",
			"mode", mode,
			"positions", stats.Positions,
			"realized_pnl", stats.RealizedPnL,
		)
	}
}
