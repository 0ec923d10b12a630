package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"structfarm/internal/backtest"
	"structfarm/internal/collector"
	"structfarm/internal/config"
	"structfarm/internal/db"
	"structfarm/internal/detector"
	"structfarm/internal/gamma"
	"structfarm/internal/gateway"
	"structfarm/internal/journal"
	"structfarm/internal/ledger"
	"structfarm/internal/market"
	"structfarm/internal/notify"
	"structfarm/internal/performance"
	"structfarm/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "config.toml", "Path to TOML config file")
	scanOnce := flag.Bool("scan", false, "Scan once, print opportunities, and exit")
	backtestMode := flag.Bool("backtest", false, "Run in backtest mode against recorded snapshots")
	backtestFrom := flag.String("from", "", "Backtest start date (YYYY-MM-DD)")
	backtestTo := flag.String("to", "", "Backtest end date (YYYY-MM-DD)")
	flag.Parse()

	// Optional .env for secrets; absence is not an error.
	godotenv.Load()

	if *configPath == "config.toml" {
		if p := os.Getenv("STRUCTFARM_CONFIG"); p != "" {
			*configPath = p
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.General.LogLevel),
	})))

	slog.Info("structfarm starting", "mode", cfg.General.Mode)

	categories := make([]market.Category, 0, len(cfg.Gamma.Slugs))
	for _, slug := range cfg.Gamma.Slugs {
		categories = append(categories, market.Category(slug))
	}
	detectorCfg := detector.Config{
		MinEdge:      cfg.Detector.MinEdge,
		MinLiquidity: cfg.Detector.MinLiquidity,
		LotSize:      cfg.Detector.LotSize,
	}
	client := gamma.NewClient(cfg.Gamma.BaseURL, cfg.Gamma.Timeout.Duration)

	if *scanOnce {
		if err := runScan(client, categories, detectorCfg); err != nil {
			slog.Error("scan failed", "error", err)
			os.Exit(1)
		}
		return
	}

	database, err := db.Open(cfg.General.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database initialized", "path", cfg.General.DBPath)

	if *backtestMode {
		runner := backtest.NewRunner(database, detectorCfg, cfg.Detector.MaxTradesPerCycle)
		if err := runner.Run(*backtestFrom, *backtestTo); err != nil {
			slog.Error("backtest failed", "error", err)
			os.Exit(1)
		}
		return
	}

	jrnl, err := journal.NewFileJournal(cfg.General.JournalDir, cfg.General.Mode)
	if err != nil {
		slog.Error("failed to open trade journal", "error", err)
		os.Exit(1)
	}
	slog.Info("trade journal ready", "path", jrnl.Path())

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Telegram.Enabled {
		token := os.Getenv("STRUCTFARM_TELEGRAM_TOKEN")
		if token == "" {
			slog.Error("telegram enabled but STRUCTFARM_TELEGRAM_TOKEN is not set")
			os.Exit(1)
		}
		tg, err := notify.NewTelegram(token, cfg.Telegram.ChatID)
		if err != nil {
			slog.Error("failed to initialize telegram notifier", "error", err)
			os.Exit(1)
		}
		notifier = tg
		slog.Info("telegram notifier initialized")
	}

	var gw gateway.Gateway
	if cfg.General.Mode == "live" {
		// No real exchange adapter is wired yet. The simulated
		// gateway exercises the full live path without funds at risk.
		gw = gateway.NewSimulated()
		slog.Warn("live mode uses the simulated gateway; no real orders are placed")
	}

	tracker, err := ledger.New(database, jrnl, gw, notifier, ledger.Config{
		Mode:        ledger.Mode(cfg.General.Mode),
		MaxQuoteAge: cfg.Detector.MaxQuoteAge.Duration,
	})
	if err != nil {
		slog.Error("failed to initialize position tracker", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(
		client, tracker, collector.New(database), performance.NewTracker(database),
		scheduler.Config{
			PollInterval:      cfg.Schedule.PollInterval.Duration,
			ReportInterval:    cfg.Schedule.ReportInterval.Duration,
			Categories:        categories,
			MaxTradesPerCycle: cfg.Detector.MaxTradesPerCycle,
			Detector:          detectorCfg,
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	slog.Info("structfarm stopped")
}

// runScan does one fetch-and-detect pass and prints the ranked
// opportunities for a human, then exits.
func runScan(client *gamma.Client, categories []market.Category, detectorCfg detector.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var snapshots []market.Snapshot
	for _, cat := range categories {
		snaps, err := client.FetchCategory(ctx, cat)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", cat, err)
		}
		snapshots = append(snapshots, snaps...)
	}

	var opps []detector.Opportunity
	for _, snap := range snapshots {
		opp, err := detector.Detect(snap, detectorCfg)
		if err != nil {
			slog.Warn("malformed quote skipped", "market", snap.MarketID, "error", err)
			continue
		}
		if opp != nil {
			opps = append(opps, *opp)
		}
	}
	ranked := detector.Rank(opps)

	fmt.Printf("scanned %d markets, %d opportunities\n\n", len(snapshots), len(ranked))
	for i, opp := range ranked {
		fmt.Printf("%2d. %s\n", i+1, opp.Question)
		fmt.Printf("    yes %.3f + no %.3f  edge %.4f  profit/lot %.2f  liquidity %.0f\n",
			opp.YesPrice, opp.NoPrice, opp.Edge, opp.ProfitPerLot, opp.Liquidity)
		fmt.Printf("    closes %s  %s\n", opp.CloseTime.Format(time.RFC3339), opp.URL)
	}
	return nil
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
