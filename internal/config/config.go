// Package config loads and validates the guard daemon configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ramp-guard/internal/domain"
)

// Config is the full daemon configuration.
type Config struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`

	Server struct {
		Port        int    `yaml:"port"`
		MetricsPath string `yaml:"metrics_path"`
	} `yaml:"server"`

	Feed struct {
		URL            string        `yaml:"url"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		Buffer         int           `yaml:"buffer"`
	} `yaml:"feed"`

	Storage struct {
		Backend     string `yaml:"backend"` // "file" or "postgres"
		Dir         string `yaml:"dir"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"storage"`

	ClickHouse struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Database string `yaml:"database"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"clickhouse"`

	Kafka struct {
		Enabled bool     `yaml:"enabled"`
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`

	Ramp struct {
		Stages        []domain.RampStage `yaml:"stages"`
		MinSharpe     float64            `yaml:"min_sharpe"`
		MinSortino    float64            `yaml:"min_sortino"`
		DrawdownFloor float64            `yaml:"drawdown_floor_bps"`
		SuiteGate     bool               `yaml:"suite_gate"`
		PersistBudget int                `yaml:"persist_budget"`
	} `yaml:"ramp"`

	Throttle struct {
		MinSnapshots int     `yaml:"min_snapshots"`
		MinSharpe    float64 `yaml:"min_sharpe"`
		MinSortino   float64 `yaml:"min_sortino"`
	} `yaml:"throttle"`

	Gates struct {
		RequiredHours      float64 `yaml:"required_hours"`
		RequiredTrades     int     `yaml:"required_trades"`
		BaselineWinRate    float64 `yaml:"baseline_win_rate"`
		WilsonMargin       float64 `yaml:"wilson_margin"`
		BootstrapResamples int     `yaml:"bootstrap_resamples"`
		MinSortino         float64 `yaml:"min_sortino"`
		MinSharpe          float64 `yaml:"min_sharpe"`
		MaxSlippageBps     float64 `yaml:"max_slippage_bps"`
	} `yaml:"gates"`

	Sizing struct {
		SoftThresholdBps float64 `yaml:"soft_threshold_bps"`
		ReductionPct     float64 `yaml:"reduction_pct"`
	} `yaml:"sizing"`

	Ledger struct {
		Venue             string        `yaml:"venue"`
		BucketWidth       time.Duration `yaml:"bucket_width"`
		RecoveryThreshold time.Duration `yaml:"recovery_threshold"`
	} `yaml:"ledger"`

	Suite struct {
		Schedule     string        `yaml:"schedule"`
		DrillTimeout time.Duration `yaml:"drill_timeout"`
	} `yaml:"suite"`

	Regime struct {
		MaxSkew     float64 `yaml:"max_skew"`
		MaxFailRate float64 `yaml:"max_fail_rate"`
	} `yaml:"regime"`

	Profile struct {
		MaxPositionPct  float64 `yaml:"max_position_pct"`
		StopDistanceBps float64 `yaml:"stop_distance_bps"`
		SizeMultiplier  float64 `yaml:"size_multiplier"`
	} `yaml:"profile"`

	Watchdog struct {
		RestartAfter  time.Duration `yaml:"restart_after"`
		HaltAfter     time.Duration `yaml:"halt_after"`
		CheckInterval time.Duration `yaml:"check_interval"`
	} `yaml:"watchdog"`
}

// Load reads and parses a YAML configuration file, then validates it.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads the config and applies environment overrides for the
// values that differ per deployment.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv("FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_ADDR"); v != "" {
		c.ClickHouse.Addr = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}

	if len(c.Ramp.Stages) == 0 {
		return fmt.Errorf("ramp.stages cannot be empty")
	}
	for i, stage := range c.Ramp.Stages {
		if stage.Index != i {
			return fmt.Errorf("ramp.stages[%d].index must be %d, got %d", i, i, stage.Index)
		}
		if stage.MaxExposureMultiplier <= 0 {
			return fmt.Errorf("ramp.stages[%d].max_exposure_multiplier must be positive", i)
		}
		if i > 0 && stage.MaxExposureMultiplier <= c.Ramp.Stages[i-1].MaxExposureMultiplier {
			return fmt.Errorf("ramp.stages[%d].max_exposure_multiplier must exceed the previous stage", i)
		}
		if i < len(c.Ramp.Stages)-1 && stage.Duration <= 0 {
			return fmt.Errorf("ramp.stages[%d].duration must be positive for non-terminal stages", i)
		}
	}

	switch c.Storage.Backend {
	case "file":
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the file backend")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend must be 'file' or 'postgres', got %q", c.Storage.Backend)
	}

	if c.Sizing.ReductionPct < 0 || c.Sizing.ReductionPct >= 1 {
		return fmt.Errorf("sizing.reduction_pct must be in [0,1), got %v", c.Sizing.ReductionPct)
	}
	if c.Suite.Schedule == "" {
		return fmt.Errorf("suite.schedule is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Watchdog.HaltAfter != 0 && c.Watchdog.HaltAfter <= c.Watchdog.RestartAfter {
		return fmt.Errorf("watchdog.halt_after must exceed watchdog.restart_after")
	}
	return nil
}
