package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	General  GeneralConfig  `toml:"general"`
	Gamma    GammaConfig    `toml:"gamma"`
	Schedule ScheduleConfig `toml:"schedule"`
	Detector DetectorConfig `toml:"detector"`
	Telegram TelegramConfig `toml:"telegram"`
}

type GeneralConfig struct {
	DBPath     string `toml:"db_path"`
	JournalDir string `toml:"journal_dir"`
	LogLevel   string `toml:"log_level"`
	Mode       string `toml:"mode"` // "paper" or "live"
}

type GammaConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout Duration `toml:"timeout"`
	Slugs   []string `toml:"slugs"`
}

type ScheduleConfig struct {
	PollInterval   Duration `toml:"poll_interval"`
	ReportInterval Duration `toml:"report_interval"`
}

type DetectorConfig struct {
	MinEdge           float64  `toml:"min_edge"`
	MinLiquidity      float64  `toml:"min_liquidity"`
	LotSize           float64  `toml:"lot_size"`
	MaxTradesPerCycle int      `toml:"max_trades_per_cycle"`
	MaxQuoteAge       Duration `toml:"max_quote_age"`
}

type TelegramConfig struct {
	Enabled bool   `toml:"enabled"`
	ChatID  string `toml:"chat_id"`
}

// Duration wraps time.Duration for TOML unmarshaling.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.General.Mode {
	case "paper", "live":
	default:
		return fmt.Errorf("invalid mode %q: must be paper or live", c.General.Mode)
	}
	if c.Detector.MinEdge < 0 {
		return fmt.Errorf("min_edge must be non-negative, got %g", c.Detector.MinEdge)
	}
	if c.Detector.LotSize <= 0 {
		return fmt.Errorf("lot_size must be positive, got %g", c.Detector.LotSize)
	}
	if c.Detector.MaxTradesPerCycle < 0 {
		return fmt.Errorf("max_trades_per_cycle must be non-negative, got %d", c.Detector.MaxTradesPerCycle)
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			DBPath:     "./data/structfarm.db",
			JournalDir: "./data/journal",
			LogLevel:   "info",
			Mode:       "paper",
		},
		Gamma: GammaConfig{
			BaseURL: "https://gamma-api.polymarket.com",
			Timeout: Duration{30 * time.Second},
			Slugs:   []string{"crypto-5m", "crypto-15m", "crypto-hourly"},
		},
		Schedule: ScheduleConfig{
			PollInterval:   Duration{30 * time.Second},
			ReportInterval: Duration{1 * time.Hour},
		},
		Detector: DetectorConfig{
			MinEdge:           0.02,
			MinLiquidity:      5000.0,
			LotSize:           10.0,
			MaxTradesPerCycle: 1,
			MaxQuoteAge:       Duration{30 * time.Second},
		},
		Telegram: TelegramConfig{
			Enabled: false,
		},
	}
}
