package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"zlend/crypto"
)

var (
	testAdminBytes = func() [20]byte {
		var addr [20]byte
		addr[0] = 0x42
		addr[len(addr)-1] = 0x24
		return addr
	}()
	testAdminString = crypto.NewAddress(crypto.ZLPrefix, testAdminBytes[:]).String()
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(`ListenAddress = "0.0.0.0:9545"
DataDir = "./data"
AdminAddress = "%s"
RPCTokenEnv = "ZLEND_TEST_TOKEN"
LogLevel = "debug"
LogFormat = "text"
OracleMaxAgeSeconds = 120
ReserveFactorBps = 1500

[[CollateralAssets]]
Symbol = "ATOM"
Decimals = 18

[[CollateralAssets]]
Symbol = "OSMO"
Decimals = 6

[Risk]
LiquidationThresholdBps = 11000
LiquidationBonusBps = 500
MinCollateralRatioBps = 12000
RequireVerification = true
PermissionlessLiquidation = true
AllowTopUp = true

[[Tiers]]
MinScore = 80
CollateralRatioBps = 12000
InterestModifierBps = 8000

[[Tiers]]
MinScore = 0
CollateralRatioBps = 18000
InterestModifierBps = 12000
MaxLoanAmount = "10000000000000000000000"

[Interest]
BaseRate = 0.02
Slope1 = 0.15
Slope2 = 0.6
Kink = 0.8
OracleRiskPremiumBps = 200
MaxBorrowRateBps = 5000
MaxRateChangeBps = 500

[Liquidity]
CooldownSeconds = 604800
EarlyExitPenaltyBps = 500

[[Liquidity.Tiers]]
MinPrincipal = "1000000"
MinTenureSeconds = 2592000
RateBps = 600

[[Liquidity.Tiers]]
RateBps = 400
`, testAdminString))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != "0.0.0.0:9545" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.RPCTokenEnv != "ZLEND_TEST_TOKEN" {
		t.Fatalf("unexpected token env %q", cfg.RPCTokenEnv)
	}
	if len(cfg.CollateralAssets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(cfg.CollateralAssets))
	}

	opts, err := cfg.NodeOptions()
	if err != nil {
		t.Fatalf("node options: %v", err)
	}
	if opts.Admin != testAdminBytes {
		t.Fatalf("admin address did not round-trip")
	}
	if opts.RiskParameters == nil || !opts.RiskParameters.PermissionlessLiquidation {
		t.Fatalf("risk parameters not carried over")
	}
	if len(opts.TierTable) != 2 {
		t.Fatalf("expected 2 tiers, got %d", len(opts.TierTable))
	}
	wantCap, _ := new(big.Int).SetString("10000000000000000000000", 10)
	if opts.TierTable[1].MaxLoanAmount == nil || opts.TierTable[1].MaxLoanAmount.Cmp(wantCap) != 0 {
		t.Fatalf("base tier loan cap did not round-trip")
	}
	if opts.InterestModel == nil || opts.InterestModel.MaxBorrowRateBps != 5_000 {
		t.Fatalf("interest model not carried over")
	}
	if opts.LiquidityParams == nil || opts.LiquidityParams.CooldownSeconds != 604_800 {
		t.Fatalf("liquidity params not carried over")
	}
	if opts.LiquidityParams.Tiers[1].MinPrincipal != nil {
		t.Fatalf("base liquidity tier should admit everyone")
	}
}

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8545" {
		t.Fatalf("unexpected default listen address %q", cfg.ListenAddress)
	}
	if len(cfg.CollateralAssets) == 0 {
		t.Fatalf("default config must list a collateral asset")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}

	// A second load reads the file it just wrote.
	if _, err := Load(path); err != nil {
		t.Fatalf("reload: %v", err)
	}
}

func TestValidateRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		toml string
	}{
		{"bad admin address", `AdminAddress = "zl1notanaddress"` + "\n\n[[CollateralAssets]]\nSymbol = \"ATOM\"\nDecimals = 18\n"},
		{"no assets", `ListenAddress = ":8545"` + "\n"},
		{"duplicate asset", "[[CollateralAssets]]\nSymbol = \"ATOM\"\nDecimals = 18\n\n[[CollateralAssets]]\nSymbol = \"atom\"\nDecimals = 6\n"},
		{"reserve factor too high", "ReserveFactorBps = 10000\n\n[[CollateralAssets]]\nSymbol = \"ATOM\"\nDecimals = 18\n"},
		{"malformed tier cap", "[[CollateralAssets]]\nSymbol = \"ATOM\"\nDecimals = 18\n\n[[Tiers]]\nMinScore = 0\nCollateralRatioBps = 18000\nInterestModifierBps = 12000\nMaxLoanAmount = \"1.5e20\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.toml)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestRPCTokenReadsEnvironment(t *testing.T) {
	cfg := &Config{RPCTokenEnv: "ZLEND_TEST_TOKEN_READ"}
	t.Setenv("ZLEND_TEST_TOKEN_READ", "  secret-token  ")
	if got := cfg.RPCToken(); got != "secret-token" {
		t.Fatalf("unexpected token %q", got)
	}
}
