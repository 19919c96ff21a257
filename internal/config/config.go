// Package config loads the application configuration and the scenario
// definitions from YAML, with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"BitcoinSentinel/internal/model"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML duration strings like "24h" or "90s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Sources struct {
		Static bool `yaml:"static"` // built-in fixtures, no network
		FRED   struct {
			BaseURL string `yaml:"base_url"`
			APIKey  string `yaml:"api_key"`
		} `yaml:"fred"`
		Chain struct {
			BaseURL string `yaml:"base_url"`
			APIKey  string `yaml:"api_key"`
		} `yaml:"chain"`
	} `yaml:"sources"`
	Exchange struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"exchange"`
	Trading struct {
		DryRun               bool     `yaml:"dry_run"`
		PortfolioValue       float64  `yaml:"portfolio_value"`
		RiskProfile          string   `yaml:"risk_profile"`
		DailyLossLimit       float64  `yaml:"daily_loss_limit"`
		ConsecutiveLossLimit int      `yaml:"consecutive_loss_limit"`
		SlippageTolerance    float64  `yaml:"slippage_tolerance"`
		SafetyMargin         float64  `yaml:"safety_margin"`
		MinOrderNotional     float64  `yaml:"min_order_notional"`
		OrderTimeout         Duration `yaml:"order_timeout"`
		MaxRetries           uint64   `yaml:"max_retries"`
	} `yaml:"trading"`
	Schedule struct {
		AnalysisCron string `yaml:"analysis_cron"`
		ScanCron     string `yaml:"scan_cron"`
		RolloverCron string `yaml:"rollover_cron"`
	} `yaml:"schedule"`
	Database struct {
		LedgerPath string `yaml:"ledger_path"`
	} `yaml:"database"`
	ScenariosPath string                        `yaml:"scenarios_path"`
	RiskProfiles  map[string]riskProfileSection `yaml:"risk_profiles"`
	LogLevel      string                        `yaml:"log_level"`
	Proxy         string                        `yaml:"proxy"`
}

type riskProfileSection struct {
	Base float64 `yaml:"base"`
	Max  float64 `yaml:"max"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("FRED_API_KEY"); v != "" {
		cfg.Sources.FRED.APIKey = v
	}
	if v := os.Getenv("CHAIN_BASE_URL"); v != "" {
		cfg.Sources.Chain.BaseURL = v
	}
	if v := os.Getenv("CHAIN_API_KEY"); v != "" {
		cfg.Sources.Chain.APIKey = v
	}
	if v := os.Getenv("EXCHANGE_BASE_URL"); v != "" {
		cfg.Exchange.BaseURL = v
	}
	if v := os.Getenv("EXCHANGE_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("LEDGER_PATH"); v != "" {
		cfg.Database.LedgerPath = v
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Trading.DryRun = b
		}
	}
	if v := os.Getenv("PORTFOLIO_VALUE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Trading.PortfolioValue = f
		}
	}
	if v := os.Getenv("RISK_PROFILE"); v != "" {
		cfg.Trading.RiskProfile = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Schedule.AnalysisCron == "" {
		c.Schedule.AnalysisCron = "0 0 6 * * *" // daily 06:00 UTC
	}
	if c.Schedule.ScanCron == "" {
		c.Schedule.ScanCron = "0 * * * * *" // every minute
	}
	if c.Schedule.RolloverCron == "" {
		c.Schedule.RolloverCron = "0 0 0 * * *" // UTC midnight
	}
	if c.Trading.PortfolioValue == 0 {
		c.Trading.PortfolioValue = 100000
	}
	if c.Trading.RiskProfile == "" {
		c.Trading.RiskProfile = "moderate"
	}
	if c.Trading.DailyLossLimit == 0 {
		c.Trading.DailyLossLimit = 2000
	}
	if c.Trading.ConsecutiveLossLimit == 0 {
		c.Trading.ConsecutiveLossLimit = 3
	}
	if c.Trading.SlippageTolerance == 0 {
		c.Trading.SlippageTolerance = 0.02
	}
	if c.Trading.SafetyMargin == 0 {
		c.Trading.SafetyMargin = 0.01
	}
	if c.Trading.MinOrderNotional == 0 {
		c.Trading.MinOrderNotional = 10
	}
	if c.Trading.OrderTimeout == 0 {
		c.Trading.OrderTimeout = Duration(30 * time.Second)
	}
	if c.Trading.MaxRetries == 0 {
		c.Trading.MaxRetries = 5
	}
	if c.Database.LedgerPath == "" {
		c.Database.LedgerPath = "data/sentinel.db"
	}
	if c.ScenariosPath == "" {
		c.ScenariosPath = "configs/scenarios.yaml"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Sources.FRED.BaseURL == "" {
		c.Sources.FRED.BaseURL = "https://api.stlouisfed.org/fred"
	}
}

// builtinProfiles are the standard risk tiers; the risk_profiles section can
// override or extend them.
var builtinProfiles = map[string]model.RiskProfile{
	"conservative": {Name: "conservative", Base: 0.03, Max: 0.10},
	"moderate":     {Name: "moderate", Base: 0.05, Max: 0.15},
	"aggressive":   {Name: "aggressive", Base: 0.10, Max: 0.25},
}

// Profile resolves the active risk profile.
func (c *Config) Profile() (model.RiskProfile, error) {
	if sec, ok := c.RiskProfiles[c.Trading.RiskProfile]; ok {
		p := model.RiskProfile{Name: c.Trading.RiskProfile, Base: sec.Base, Max: sec.Max}
		if err := p.Validate(); err != nil {
			return model.RiskProfile{}, fmt.Errorf("risk profile %s: %w", p.Name, err)
		}
		return p, nil
	}
	if p, ok := builtinProfiles[c.Trading.RiskProfile]; ok {
		return p, nil
	}
	return model.RiskProfile{}, fmt.Errorf("unknown risk profile %q", c.Trading.RiskProfile)
}

// Validate checks that all required fields are consistent.
func (c *Config) Validate() error {
	if c.Trading.PortfolioValue <= 0 {
		return fmt.Errorf("trading.portfolio_value must be positive")
	}
	if _, err := c.Profile(); err != nil {
		return err
	}
	if c.Trading.SlippageTolerance < 0 || c.Trading.SlippageTolerance > 1 {
		return fmt.Errorf("trading.slippage_tolerance must be within [0,1]")
	}
	if c.Trading.DailyLossLimit < 0 {
		return fmt.Errorf("trading.daily_loss_limit must not be negative")
	}
	if !c.Trading.DryRun {
		if c.Sources.Static {
			return fmt.Errorf("live trading cannot run on static sources")
		}
		if c.Sources.FRED.APIKey == "" {
			return fmt.Errorf("sources.fred.api_key is required for live trading")
		}
		if c.Sources.Chain.BaseURL == "" {
			return fmt.Errorf("sources.chain.base_url is required for live trading")
		}
		if c.Exchange.BaseURL == "" || c.Exchange.APIKey == "" {
			return fmt.Errorf("exchange.base_url and exchange.api_key are required for live trading")
		}
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}
