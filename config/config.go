package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"lendledger/decimal"
	"lendledger/lending"
)

// Config drives the lendledger daemon: service identity, storage location,
// metrics listener and the market reserves provisioned at startup. Rates and
// ratios that need wad precision are TOML strings parsed with
// decimal.Parse.
type Config struct {
	Service                string         `toml:"Service"`
	Env                    string         `toml:"Env"`
	LogLevel               string         `toml:"LogLevel"`
	DataDir                string         `toml:"DataDir"`
	MetricsAddress         string         `toml:"MetricsAddress"`
	VaultAddress           string         `toml:"VaultAddress"`
	CollateralVaultAddress string         `toml:"CollateralVaultAddress"`
	Markets                []MarketConfig `toml:"Markets"`
}

// MarketConfig describes one market reserve to provision.
type MarketConfig struct {
	ID          string `toml:"ID"`
	Mint        string `toml:"Mint"`
	ReceiptMint string `toml:"ReceiptMint"`
	Decimals    uint8  `toml:"Decimals"`

	// Risk ratios, whole percentages.
	BorrowValueRatio      uint8 `toml:"BorrowValueRatio"`
	LiquidationValueRatio uint8 `toml:"LiquidationValueRatio"`
	LiquidationBonusRatio uint8 `toml:"LiquidationBonusRatio"`
	CloseFactor           uint8 `toml:"CloseFactor"`
	BorrowTaxRate         uint8 `toml:"BorrowTaxRate"`

	FlashLoanFeeRate string `toml:"FlashLoanFeeRate"`
	MaxDeposit       uint64 `toml:"MaxDeposit"`
	MaxTotalDeposit  uint64 `toml:"MaxTotalDeposit"`

	// Kinked rate curve, annualized.
	OptimalUtilization string `toml:"OptimalUtilization"`
	MinBorrowRate      string `toml:"MinBorrowRate"`
	OptimalBorrowRate  string `toml:"OptimalBorrowRate"`
	MaxBorrowRate      string `toml:"MaxBorrowRate"`

	// Price is the static quote price used until an oracle takes over.
	Price string `toml:"Price"`
}

// Load reads and validates the configuration at path, creating a default
// file when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s contains unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Service) == "" {
		c.Service = "lendledgerd"
	}
	if strings.TrimSpace(c.Env) == "" {
		c.Env = "dev"
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
	if strings.TrimSpace(c.MetricsAddress) == "" {
		c.MetricsAddress = ":9464"
	}
}

// Validate checks the whole configuration, including every market's decimal
// literals and risk parameters.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Markets))
	for i := range c.Markets {
		market := &c.Markets[i]
		if strings.TrimSpace(market.ID) == "" {
			return fmt.Errorf("market %d: missing ID", i)
		}
		if _, ok := seen[market.ID]; ok {
			return fmt.Errorf("market %q: duplicate ID", market.ID)
		}
		seen[market.ID] = struct{}{}
		if strings.TrimSpace(market.Mint) == "" || strings.TrimSpace(market.ReceiptMint) == "" {
			return fmt.Errorf("market %q: missing mint identifiers", market.ID)
		}
		if market.Decimals > lending.MaxTokenDecimals {
			return fmt.Errorf("market %q: Decimals %d exceeds %d", market.ID, market.Decimals, lending.MaxTokenDecimals)
		}
		if _, err := market.CollateralConfig(); err != nil {
			return fmt.Errorf("market %q: %w", market.ID, err)
		}
		if _, err := market.LiquidityConfig(); err != nil {
			return fmt.Errorf("market %q: %w", market.ID, err)
		}
		model, err := market.RateModel()
		if err != nil {
			return fmt.Errorf("market %q: %w", market.ID, err)
		}
		if err := model.Validate(); err != nil {
			return fmt.Errorf("market %q: %w", market.ID, err)
		}
		price, err := market.StaticPrice()
		if err != nil {
			return fmt.Errorf("market %q: %w", market.ID, err)
		}
		if price.IsZero() {
			return fmt.Errorf("market %q: price must be positive", market.ID)
		}
	}
	return nil
}

// TokenInfo converts the market's token identifiers.
func (m *MarketConfig) TokenInfo() lending.TokenInfo {
	return lending.TokenInfo{
		Mint:        m.Mint,
		ReceiptMint: m.ReceiptMint,
		Decimals:    m.Decimals,
	}
}

// CollateralConfig converts the market's risk ratios, validated.
func (m *MarketConfig) CollateralConfig() (lending.CollateralConfig, error) {
	cfg := lending.CollateralConfig{
		BorrowValueRatio:      m.BorrowValueRatio,
		LiquidationValueRatio: m.LiquidationValueRatio,
		LiquidationBonusRatio: m.LiquidationBonusRatio,
	}
	return cfg, cfg.Validate()
}

// LiquidityConfig converts the market's borrow and deposit bounds,
// validated.
func (m *MarketConfig) LiquidityConfig() (lending.LiquidityConfig, error) {
	fee := decimal.Zero()
	if strings.TrimSpace(m.FlashLoanFeeRate) != "" {
		parsed, err := decimal.Parse(m.FlashLoanFeeRate)
		if err != nil {
			return lending.LiquidityConfig{}, fmt.Errorf("FlashLoanFeeRate: %w", err)
		}
		fee = parsed
	}
	cfg := lending.LiquidityConfig{
		CloseFactor:      m.CloseFactor,
		BorrowTaxRate:    m.BorrowTaxRate,
		FlashLoanFeeRate: fee,
		MaxDeposit:       m.MaxDeposit,
		MaxTotalDeposit:  m.MaxTotalDeposit,
	}
	return cfg, cfg.Validate()
}

// RateModel parses the market's kinked rate curve.
func (m *MarketConfig) RateModel() (lending.RateModel, error) {
	optimalU, err := decimal.Parse(m.OptimalUtilization)
	if err != nil {
		return lending.RateModel{}, fmt.Errorf("OptimalUtilization: %w", err)
	}
	minRate, err := decimal.Parse(m.MinBorrowRate)
	if err != nil {
		return lending.RateModel{}, fmt.Errorf("MinBorrowRate: %w", err)
	}
	optimalRate, err := decimal.Parse(m.OptimalBorrowRate)
	if err != nil {
		return lending.RateModel{}, fmt.Errorf("OptimalBorrowRate: %w", err)
	}
	maxRate, err := decimal.Parse(m.MaxBorrowRate)
	if err != nil {
		return lending.RateModel{}, fmt.Errorf("MaxBorrowRate: %w", err)
	}
	return lending.RateModel{
		OptimalUtilization: optimalU,
		MinRate:            minRate,
		OptimalRate:        optimalRate,
		MaxRate:            maxRate,
	}, nil
}

// StaticPrice parses the market's configured quote price.
func (m *MarketConfig) StaticPrice() (decimal.Decimal, error) {
	price, err := decimal.Parse(m.Price)
	if err != nil {
		return decimal.Zero(), fmt.Errorf("Price: %w", err)
	}
	return price, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		Markets: []MarketConfig{{
			ID:                    "usd",
			Mint:                  "usd",
			ReceiptMint:           "usd-receipt",
			Decimals:              6,
			BorrowValueRatio:      75,
			LiquidationValueRatio: 80,
			LiquidationBonusRatio: 5,
			CloseFactor:           50,
			BorrowTaxRate:         10,
			FlashLoanFeeRate:      "0.003",
			OptimalUtilization:    "0.8",
			MinBorrowRate:         "0.02",
			OptimalBorrowRate:     "0.1",
			MaxBorrowRate:         "0.6",
			Price:                 "1",
		}},
	}
	cfg.applyDefaults()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
