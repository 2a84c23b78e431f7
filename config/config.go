package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/risk"
)

// Environment variables that override the file.
const (
	EnvToken     = "OANDA_TOKEN"
	EnvAccountID = "OANDA_ACCOUNT_ID"
)

// Config is everything the trader needs to start.
type Config struct {
	Account    AccountConfig    `json:"account" yaml:"account"`
	Venue      VenueConfig      `json:"venue" yaml:"venue"`
	Market     MarketConfig     `json:"market" yaml:"market"`
	Risk       RiskConfig       `json:"risk" yaml:"risk"`
	Strategies []StrategyConfig `json:"strategies" yaml:"strategies"`
	Engine     EngineConfig     `json:"engine" yaml:"engine"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

// AccountConfig seeds the simulated account.
type AccountConfig struct {
	ID       string  `json:"id" yaml:"id"`
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
}

// VenueConfig selects where orders go: "sim" fills locally at fixed
// quotes, "paper" fills locally at live OANDA quotes, "oanda" trades.
type VenueConfig struct {
	Type        string `json:"type" yaml:"type"`
	Environment string `json:"environment" yaml:"environment"` // practice|live
	AccountID   string `json:"account_id" yaml:"account_id"`
	Token       string `json:"-" yaml:"-"`
	Instrument  string `json:"instrument" yaml:"instrument"`

	RetryAttempts int    `json:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay    string `json:"retry_delay" yaml:"retry_delay"` // e.g. "500ms"

	// RetryFactor > 1 grows the delay per attempt up to RetryMaxDelay.
	RetryFactor   float64 `json:"retry_factor,omitempty" yaml:"retry_factor,omitempty"`
	RetryMaxDelay string  `json:"retry_max_delay,omitempty" yaml:"retry_max_delay,omitempty"`

	InitialBid float64 `json:"initial_bid,omitempty" yaml:"initial_bid,omitempty"`
	InitialAsk float64 `json:"initial_ask,omitempty" yaml:"initial_ask,omitempty"`
}

func (v VenueConfig) Delay() (time.Duration, error) {
	return parseDuration(v.RetryDelay)
}

func (v VenueConfig) MaxDelay() (time.Duration, error) {
	return parseDuration(v.RetryMaxDelay)
}

// NeedsOANDA reports whether the venue talks to the OANDA API.
func (v VenueConfig) NeedsOANDA() bool {
	return v.Type == "oanda" || v.Type == "paper"
}

type MarketConfig struct {
	Timeframes []string       `json:"timeframes" yaml:"timeframes"`
	Capacities map[string]int `json:"capacities,omitempty" yaml:"capacities,omitempty"`
}

// ParsedTimeframes returns the configured timeframes in order.
func (m MarketConfig) ParsedTimeframes() ([]market.Timeframe, error) {
	out := make([]market.Timeframe, 0, len(m.Timeframes))
	for _, s := range m.Timeframes {
		tf, err := market.ParseTimeframe(s)
		if err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	return out, nil
}

// RiskConfig mirrors risk.Policy. Percentages are fractions: 0.05 is 5%.
type RiskConfig struct {
	RiskPct              float64  `json:"risk_pct" yaml:"risk_pct"`
	MaxRiskPct           float64  `json:"max_risk_pct" yaml:"max_risk_pct"`
	MaxOpenTrades        int      `json:"max_open_trades" yaml:"max_open_trades"`
	MaxMarginPct         float64  `json:"max_margin_pct" yaml:"max_margin_pct"`
	MinRR                float64  `json:"min_rr" yaml:"min_rr"`
	MaxDailyLossPct      float64  `json:"max_daily_loss_pct" yaml:"max_daily_loss_pct"`
	MaxWeeklyLossPct     float64  `json:"max_weekly_loss_pct" yaml:"max_weekly_loss_pct"`
	TrailStartPips       float64  `json:"trail_start_pips" yaml:"trail_start_pips"`
	TrailDistancePips    float64  `json:"trail_distance_pips" yaml:"trail_distance_pips"`
	BreakevenPips        float64  `json:"breakeven_pips" yaml:"breakeven_pips"`
	BalanceFloor         float64  `json:"balance_floor" yaml:"balance_floor"`
	MaxConsecutiveLosses int      `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
	MaxDrawdown          float64  `json:"max_drawdown" yaml:"max_drawdown"`
	MinUnits             float64  `json:"min_units" yaml:"min_units"`
	MaxUnits             float64  `json:"max_units" yaml:"max_units"`
	ExemptTags           []string `json:"exempt_tags,omitempty" yaml:"exempt_tags,omitempty"`
}

// StrategyConfig schedules one strategy, either every Every or hourly at
// AtMinute past the hour.
type StrategyConfig struct {
	Name      string  `json:"name" yaml:"name"`
	Enabled   bool    `json:"enabled" yaml:"enabled"`
	Every     string  `json:"every,omitempty" yaml:"every,omitempty"`
	AtMinute  *int    `json:"at_minute,omitempty" yaml:"at_minute,omitempty"`
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	StopPips  float64 `json:"stop_pips,omitempty" yaml:"stop_pips,omitempty"`
}

func (s StrategyConfig) Interval() (time.Duration, error) {
	return parseDuration(s.Every)
}

type EngineConfig struct {
	Interval        string `json:"interval" yaml:"interval"`
	HaltOnViolation bool   `json:"halt_on_violation" yaml:"halt_on_violation"`
}

func (e EngineConfig) CycleInterval() (time.Duration, error) {
	return parseDuration(e.Interval)
}

// JournalConfig picks the trade journal. Path is a directory for csv and a
// database file for sqlite.
type JournalConfig struct {
	Type string `json:"type" yaml:"type"` // csv|sqlite|none
	Path string `json:"path" yaml:"path"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug|info|warn|error
	Format string `json:"format" yaml:"format"` // text|json
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// LoadFromFile reads YAML, falling back to JSON, applies the environment
// and validates.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", errors.Join(err, jerr))
		}
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv takes the OANDA credentials from the environment when set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvToken); v != "" {
		c.Venue.Token = v
	}
	if v := os.Getenv(EnvAccountID); v != "" {
		c.Venue.AccountID = v
	}
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
// The token is never written.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Account.Currency == "" {
		bad("account.currency is required")
	}

	switch c.Venue.Type {
	case "sim":
		if c.Account.Balance <= 0 {
			bad("account.balance must be positive for the sim venue")
		}
		if c.Venue.InitialBid <= 0 || c.Venue.InitialAsk <= 0 {
			bad("venue initial prices must be positive")
		} else if c.Venue.InitialAsk <= c.Venue.InitialBid {
			bad("venue.initial_ask must be greater than venue.initial_bid")
		}
	case "paper", "oanda":
		if c.Venue.Type == "paper" && c.Account.Balance <= 0 {
			bad("account.balance must be positive for the paper venue")
		}
		if c.Venue.AccountID == "" {
			bad("venue.account_id is required (or set %s)", EnvAccountID)
		}
		if c.Venue.Token == "" {
			bad("%s must be set", EnvToken)
		}
		switch c.Venue.Environment {
		case "", "practice", "live":
		default:
			bad("venue.environment must be 'practice' or 'live'")
		}
	default:
		bad("venue.type must be 'sim', 'paper' or 'oanda'")
	}

	if c.Venue.Instrument == "" {
		bad("venue.instrument is required")
	} else if _, err := market.LookupInstrument(c.Venue.Instrument); err != nil {
		bad("unknown instrument: %s", c.Venue.Instrument)
	}
	if c.Venue.RetryAttempts < 0 {
		bad("venue.retry_attempts must not be negative")
	}
	if _, err := c.Venue.Delay(); err != nil {
		bad("venue.retry_delay: %v", err)
	}
	if f := c.Venue.RetryFactor; f != 0 && f < 1 {
		bad("venue.retry_factor must be 0 or at least 1")
	}
	if _, err := c.Venue.MaxDelay(); err != nil {
		bad("venue.retry_max_delay: %v", err)
	}

	if len(c.Market.Timeframes) == 0 {
		bad("market.timeframes must not be empty")
	}
	if _, err := c.Market.ParsedTimeframes(); err != nil {
		bad("market.timeframes: %v", err)
	}
	for tf, n := range c.Market.Capacities {
		if _, err := market.ParseTimeframe(tf); err != nil {
			bad("market.capacities: %v", err)
		}
		if n <= 0 {
			bad("market.capacities[%s] must be positive", tf)
		}
	}

	r := c.Risk
	if r.RiskPct <= 0 || r.RiskPct > 1 {
		bad("risk.risk_pct must be between 0 and 1")
	}
	if r.MaxRiskPct < r.RiskPct {
		bad("risk.max_risk_pct must be at least risk.risk_pct")
	}
	if r.TrailDistancePips <= 0 || r.TrailStartPips <= 0 {
		bad("risk trailing distances must be positive")
	}
	if r.MinUnits < 0 || (r.MaxUnits > 0 && r.MaxUnits < r.MinUnits) {
		bad("risk.min_units/max_units out of order")
	}
	if r.MaxDrawdown < 0 || r.MaxDrawdown > 1 {
		bad("risk.max_drawdown must be between 0 and 1")
	}

	for i, s := range c.Strategies {
		if s.Name == "" {
			bad("strategies[%d].name is required", i)
		}
		d, err := s.Interval()
		if err != nil {
			bad("strategies[%d].every: %v", i, err)
		}
		switch {
		case s.AtMinute != nil && (*s.AtMinute < 0 || *s.AtMinute > 59):
			bad("strategies[%d].at_minute must be 0-59", i)
		case s.AtMinute == nil && d <= 0:
			bad("strategies[%d] needs every or at_minute", i)
		}
	}

	if d, err := c.Engine.CycleInterval(); err != nil || d <= 0 {
		bad("engine.interval must be a positive duration")
	}

	switch c.Journal.Type {
	case "none", "":
	case "csv", "sqlite":
		if c.Journal.Path == "" {
			bad("journal.path required for %s journal", c.Journal.Type)
		}
	default:
		bad("journal.type must be 'csv', 'sqlite' or 'none'")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		bad("logging.level must be debug, info, warn or error")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		bad("logging.format must be 'text' or 'json'")
	}

	return errors.Join(errs...)
}

// Policy converts the risk section.
func (c *Config) Policy() risk.Policy {
	r := c.Risk
	return risk.Policy{
		AccountBaseCurrency:  c.Account.Currency,
		DefaultRiskPct:       r.RiskPct,
		MaxRiskPct:           r.MaxRiskPct,
		MaxOpenTrades:        r.MaxOpenTrades,
		MaxMarginPct:         r.MaxMarginPct,
		MinRR:                r.MinRR,
		MaxDailyLossPct:      r.MaxDailyLossPct,
		MaxWeeklyLossPct:     r.MaxWeeklyLossPct,
		TrailStartPips:       r.TrailStartPips,
		TrailDistancePips:    r.TrailDistancePips,
		BreakevenPips:        r.BreakevenPips,
		BalanceFloor:         r.BalanceFloor,
		MaxConsecutiveLosses: r.MaxConsecutiveLosses,
		MaxDrawdown:          r.MaxDrawdown,
		ExemptTags:           append([]string(nil), r.ExemptTags...),
		MinUnits:             r.MinUnits,
		MaxUnits:             r.MaxUnits,
	}
}

// Default returns a configuration that runs against the sim venue.
func Default() *Config {
	p := risk.DefaultPolicy()
	atHalfPast := 30
	return &Config{
		Account: AccountConfig{
			ID:       "SIM-001",
			Currency: "USD",
			Balance:  100000,
		},
		Venue: VenueConfig{
			Type:          "sim",
			Environment:   "practice",
			Instrument:    "EUR_USD",
			RetryAttempts: 3,
			RetryDelay:    "500ms",
			InitialBid:    1.0849,
			InitialAsk:    1.0851,
		},
		Market: MarketConfig{
			Timeframes: []string{"M1", "H1", "H4", "D1"},
		},
		Risk: RiskConfig{
			RiskPct:              p.DefaultRiskPct,
			MaxRiskPct:           p.MaxRiskPct,
			MaxOpenTrades:        p.MaxOpenTrades,
			MaxMarginPct:         p.MaxMarginPct,
			MinRR:                p.MinRR,
			MaxDailyLossPct:      p.MaxDailyLossPct,
			MaxWeeklyLossPct:     p.MaxWeeklyLossPct,
			TrailStartPips:       p.TrailStartPips,
			TrailDistancePips:    p.TrailDistancePips,
			BreakevenPips:        p.BreakevenPips,
			BalanceFloor:         p.BalanceFloor,
			MaxConsecutiveLosses: p.MaxConsecutiveLosses,
			MaxDrawdown:          p.MaxDrawdown,
			MinUnits:             p.MinUnits,
			MaxUnits:             p.MaxUnits,
		},
		Strategies: []StrategyConfig{
			{Name: "breakout", Enabled: true, Every: "1m"},
			{Name: "trend", Enabled: true, AtMinute: &atHalfPast},
			{Name: "scalp", Enabled: false, Every: "10s"},
		},
		Engine: EngineConfig{
			Interval:        "10s",
			HaltOnViolation: true,
		},
		Journal: JournalConfig{
			Type: "sqlite",
			Path: "./trader.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
