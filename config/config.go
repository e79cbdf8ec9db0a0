package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"zlend/core"
	"zlend/crypto"
	"zlend/native/credit"
	"zlend/native/lending"
	"zlend/native/liquidity"
)

// Config is the operator-facing node configuration. Optional sections left
// out of the file fall back to the protocol defaults.
type Config struct {
	ListenAddress    string           `toml:"ListenAddress"`
	DataDir          string           `toml:"DataDir"`
	AdminAddress     string           `toml:"AdminAddress"`
	RPCTokenEnv      string           `toml:"RPCTokenEnv"`
	SealSecretEnv    string           `toml:"SealSecretEnv"`
	LogLevel         string           `toml:"LogLevel"`
	LogFormat        string           `toml:"LogFormat"`
	OracleMaxAgeSecs uint64           `toml:"OracleMaxAgeSeconds"`
	ReserveFactorBps uint64           `toml:"ReserveFactorBps"`
	CollateralAssets []AssetConfig    `toml:"CollateralAssets"`
	Risk             *RiskConfig      `toml:"Risk"`
	Tiers            []TierConfig     `toml:"Tiers"`
	Interest         *InterestConfig  `toml:"Interest"`
	Credit           *CreditConfig    `toml:"Credit"`
	Liquidity        *LiquidityConfig `toml:"Liquidity"`
}

type AssetConfig struct {
	Symbol   string `toml:"Symbol"`
	Decimals uint8  `toml:"Decimals"`
}

type RiskConfig struct {
	LiquidationThresholdBps   uint64 `toml:"LiquidationThresholdBps"`
	LiquidationBonusBps       uint64 `toml:"LiquidationBonusBps"`
	MinCollateralRatioBps     uint64 `toml:"MinCollateralRatioBps"`
	RequireVerification       bool   `toml:"RequireVerification"`
	PermissionlessLiquidation bool   `toml:"PermissionlessLiquidation"`
	LiquidatorAddress         string `toml:"LiquidatorAddress"`
	AllowTopUp                bool   `toml:"AllowTopUp"`
}

type TierConfig struct {
	MinScore            uint64 `toml:"MinScore"`
	CollateralRatioBps  uint64 `toml:"CollateralRatioBps"`
	InterestModifierBps uint64 `toml:"InterestModifierBps"`
	MaxLoanAmount       string `toml:"MaxLoanAmount"`
}

type InterestConfig struct {
	BaseRate             float64 `toml:"BaseRate"`
	Slope1               float64 `toml:"Slope1"`
	Slope2               float64 `toml:"Slope2"`
	Kink                 float64 `toml:"Kink"`
	OracleRiskPremiumBps uint64  `toml:"OracleRiskPremiumBps"`
	MaxBorrowRateBps     uint64  `toml:"MaxBorrowRateBps"`
	MaxRateChangeBps     uint64  `toml:"MaxRateChangeBps"`
}

type CreditConfig struct {
	TradFiWeightBps    uint64 `toml:"TradFiWeightBps"`
	AccountWeightBps   uint64 `toml:"AccountWeightBps"`
	NestingWeightBps   uint64 `toml:"NestingWeightBps"`
	MinimumCreditScore uint64 `toml:"MinimumCreditScore"`
	SingleProofFloor   uint64 `toml:"SingleProofFloor"`
}

type LiquidityConfig struct {
	CooldownSeconds     uint64                `toml:"CooldownSeconds"`
	EarlyExitPenaltyBps uint64                `toml:"EarlyExitPenaltyBps"`
	Tiers               []LiquidityTierConfig `toml:"Tiers"`
}

type LiquidityTierConfig struct {
	MinPrincipal     string `toml:"MinPrincipal"`
	MinTenureSeconds uint64 `toml:"MinTenureSeconds"`
	RateBps          uint64 `toml:"RateBps"`
}

// Load reads the configuration at path, writing a default file first when
// none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8545"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./zlend-data"
	}
	if strings.TrimSpace(c.RPCTokenEnv) == "" {
		c.RPCTokenEnv = "ZLEND_RPC_TOKEN"
	}
	if strings.TrimSpace(c.SealSecretEnv) == "" {
		c.SealSecretEnv = "ZLEND_SEAL_SECRET"
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if strings.TrimSpace(c.LogFormat) == "" {
		c.LogFormat = "json"
	}
	if c.OracleMaxAgeSecs == 0 {
		c.OracleMaxAgeSecs = 300
	}
}

// createDefault writes and returns a runnable starting configuration.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		CollateralAssets: []AssetConfig{{Symbol: "ATOM", Decimals: 18}},
		ReserveFactorBps: 1_000,
	}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Validate rejects configurations the node cannot run with. Deeper policy
// checks (tier monotonicity, the collateral floor) run inside the node when
// the tables are installed.
func (c *Config) Validate() error {
	if len(c.CollateralAssets) == 0 {
		return fmt.Errorf("config: at least one collateral asset required")
	}
	seen := make(map[string]struct{}, len(c.CollateralAssets))
	for _, asset := range c.CollateralAssets {
		symbol := strings.ToUpper(strings.TrimSpace(asset.Symbol))
		if symbol == "" {
			return fmt.Errorf("config: collateral asset symbol must not be empty")
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("config: duplicate collateral asset %q", symbol)
		}
		seen[symbol] = struct{}{}
	}
	if c.ReserveFactorBps >= 10_000 {
		return fmt.Errorf("config: ReserveFactorBps must stay below 10000")
	}
	if c.AdminAddress != "" {
		if _, err := crypto.DecodeAddress(c.AdminAddress); err != nil {
			return fmt.Errorf("config: invalid AdminAddress: %w", err)
		}
	}
	if c.Risk != nil && c.Risk.LiquidatorAddress != "" {
		if _, err := crypto.DecodeAddress(c.Risk.LiquidatorAddress); err != nil {
			return fmt.Errorf("config: invalid LiquidatorAddress: %w", err)
		}
	}
	for i, tier := range c.Tiers {
		if tier.MaxLoanAmount == "" {
			continue
		}
		if _, ok := new(big.Int).SetString(tier.MaxLoanAmount, 10); !ok {
			return fmt.Errorf("config: tier %d has malformed MaxLoanAmount %q", i, tier.MaxLoanAmount)
		}
	}
	if c.Liquidity != nil {
		for i, tier := range c.Liquidity.Tiers {
			if tier.MinPrincipal == "" {
				continue
			}
			if _, ok := new(big.Int).SetString(tier.MinPrincipal, 10); !ok {
				return fmt.Errorf("config: liquidity tier %d has malformed MinPrincipal %q", i, tier.MinPrincipal)
			}
		}
	}
	return nil
}

// RPCToken resolves the bearer token from the configured environment
// variable. Empty means mutating RPC methods stay disabled.
func (c *Config) RPCToken() string {
	return strings.TrimSpace(os.Getenv(c.RPCTokenEnv))
}

// SealSecret resolves the shared secret used to authenticate credit proof
// seals. Empty means proof submission stays disabled.
func (c *Config) SealSecret() []byte {
	secret := strings.TrimSpace(os.Getenv(c.SealSecretEnv))
	if secret == "" {
		return nil
	}
	return []byte(secret)
}

// NodeOptions converts the file configuration into construction options.
// Validate must have passed first.
func (c *Config) NodeOptions() (core.Options, error) {
	opts := core.Options{
		ReserveFactorBps: c.ReserveFactorBps,
		OracleMaxAge:     time.Duration(c.OracleMaxAgeSecs) * time.Second,
	}

	if c.AdminAddress != "" {
		admin, err := crypto.DecodeAddress(c.AdminAddress)
		if err != nil {
			return core.Options{}, fmt.Errorf("config: invalid AdminAddress: %w", err)
		}
		copy(opts.Admin[:], admin.Bytes())
	}

	for _, asset := range c.CollateralAssets {
		opts.CollateralAssets = append(opts.CollateralAssets, core.CollateralAsset{
			Symbol:   asset.Symbol,
			Decimals: asset.Decimals,
		})
	}

	if c.Risk != nil {
		risk := lending.RiskParameters{
			LiquidationThresholdBps:   c.Risk.LiquidationThresholdBps,
			LiquidationBonusBps:       c.Risk.LiquidationBonusBps,
			MinCollateralRatioBps:     c.Risk.MinCollateralRatioBps,
			RequireVerification:       c.Risk.RequireVerification,
			PermissionlessLiquidation: c.Risk.PermissionlessLiquidation,
			AllowTopUp:                c.Risk.AllowTopUp,
		}
		if c.Risk.LiquidatorAddress != "" {
			liquidator, err := crypto.DecodeAddress(c.Risk.LiquidatorAddress)
			if err != nil {
				return core.Options{}, fmt.Errorf("config: invalid LiquidatorAddress: %w", err)
			}
			copy(risk.LiquidatorAddress[:], liquidator.Bytes())
		}
		opts.RiskParameters = &risk
	}

	for _, tier := range c.Tiers {
		entry := lending.Tier{
			MinScore:            tier.MinScore,
			CollateralRatioBps:  tier.CollateralRatioBps,
			InterestModifierBps: tier.InterestModifierBps,
		}
		if tier.MaxLoanAmount != "" {
			amount, ok := new(big.Int).SetString(tier.MaxLoanAmount, 10)
			if !ok {
				return core.Options{}, fmt.Errorf("config: malformed MaxLoanAmount %q", tier.MaxLoanAmount)
			}
			entry.MaxLoanAmount = amount
		}
		opts.TierTable = append(opts.TierTable, entry)
	}

	if c.Interest != nil {
		model := lending.NewInterestModel(c.Interest.BaseRate, c.Interest.Slope1, c.Interest.Slope2, c.Interest.Kink)
		model.OracleRiskPremiumBps = c.Interest.OracleRiskPremiumBps
		model.MaxBorrowRateBps = c.Interest.MaxBorrowRateBps
		model.MaxRateChangeBps = c.Interest.MaxRateChangeBps
		opts.InterestModel = model
	}

	if c.Credit != nil {
		opts.CreditParams = &credit.Params{
			TradFiWeightBps:    c.Credit.TradFiWeightBps,
			AccountWeightBps:   c.Credit.AccountWeightBps,
			NestingWeightBps:   c.Credit.NestingWeightBps,
			MinimumCreditScore: c.Credit.MinimumCreditScore,
			SingleProofFloor:   c.Credit.SingleProofFloor,
		}
	}

	if c.Liquidity != nil {
		params := liquidity.Params{
			CooldownSeconds:     c.Liquidity.CooldownSeconds,
			EarlyExitPenaltyBps: c.Liquidity.EarlyExitPenaltyBps,
		}
		for _, tier := range c.Liquidity.Tiers {
			entry := liquidity.APRTier{
				MinTenureSeconds: tier.MinTenureSeconds,
				RateBps:          tier.RateBps,
			}
			if tier.MinPrincipal != "" {
				principal, ok := new(big.Int).SetString(tier.MinPrincipal, 10)
				if !ok {
					return core.Options{}, fmt.Errorf("config: malformed MinPrincipal %q", tier.MinPrincipal)
				}
				entry.MinPrincipal = principal
			}
			params.Tiers = append(params.Tiers, entry)
		}
		opts.LiquidityParams = &params
	}

	return opts, nil
}
