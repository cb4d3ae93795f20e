package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"cryptoRiskEngine/internal/domain"
)

// RiskProfile is the optional YAML risk file. Unset keys keep the base value.
//
//	max_risk_per_trade_percent: 0.5
//	max_daily_loss_percent: 2
//	max_drawdown_percent: 8
//	max_open_positions: 3
//	max_trades_per_day: 10
type RiskProfile struct {
	MaxRiskPerTradePercent *float64 `yaml:"max_risk_per_trade_percent"`
	MaxDailyLossPercent    *float64 `yaml:"max_daily_loss_percent"`
	MaxDrawdownPercent     *float64 `yaml:"max_drawdown_percent"`
	MaxOpenPositions       *int     `yaml:"max_open_positions"`
	MaxTradesPerDay        *int     `yaml:"max_trades_per_day"`
}

// ParseRiskProfile decodes a risk profile, rejecting unknown keys.
func ParseRiskProfile(data []byte) (*RiskProfile, error) {
	profile := &RiskProfile{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(profile); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing risk profile: %w", err)
	}
	return profile, nil
}

// Apply overlays the profile on base.
func (p *RiskProfile) Apply(base domain.RiskConfig) domain.RiskConfig {
	out := base
	if p.MaxRiskPerTradePercent != nil {
		out.MaxRiskPerTradePercent = decimal.NewFromFloat(*p.MaxRiskPerTradePercent)
	}
	if p.MaxDailyLossPercent != nil {
		out.MaxDailyLossPercent = decimal.NewFromFloat(*p.MaxDailyLossPercent)
	}
	if p.MaxDrawdownPercent != nil {
		out.MaxDrawdownPercent = decimal.NewFromFloat(*p.MaxDrawdownPercent)
	}
	if p.MaxOpenPositions != nil {
		out.MaxOpenPositions = *p.MaxOpenPositions
	}
	if p.MaxTradesPerDay != nil {
		out.MaxTradesPerDay = *p.MaxTradesPerDay
	}
	return out
}

// LoadRiskConfig reads the profile at path, overlays it on base and validates the result.
func LoadRiskConfig(path string, base domain.RiskConfig) (domain.RiskConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.RiskConfig{}, fmt.Errorf("reading risk profile %s: %w", path, err)
	}
	profile, err := ParseRiskProfile(data)
	if err != nil {
		return domain.RiskConfig{}, err
	}
	cfg := profile.Apply(base)
	if err := cfg.Validate(); err != nil {
		return domain.RiskConfig{}, fmt.Errorf("risk profile %s: %w", path, err)
	}
	return cfg, nil
}
