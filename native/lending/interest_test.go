package lending

import (
	"math/big"
	"testing"
)

func TestBorrowAPRKinkedCurve(t *testing.T) {
	model := NewInterestModel(0.02, 0.15, 0.6, 0.8)
	supplied := big.NewInt(1_000_000)

	cases := []struct {
		name     string
		borrowed int64
		wantBps  uint64
	}{
		{name: "idle pool", borrowed: 0, wantBps: 200},
		{name: "below kink", borrowed: 400_000, wantBps: 800},
		{name: "at kink", borrowed: 800_000, wantBps: 1_400},
		{name: "above kink", borrowed: 900_000, wantBps: 2_000},
		{name: "fully drawn", borrowed: 1_000_000, wantBps: 2_600},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			apr := model.BorrowAPR(big.NewInt(tc.borrowed), supplied)
			if got := ratToBps(apr); got != tc.wantBps {
				t.Fatalf("BorrowAPR = %d bps, want %d", got, tc.wantBps)
			}
		})
	}
}

func TestBorrowAPRZeroSupply(t *testing.T) {
	model := NewInterestModel(0.02, 0.15, 0.6, 0.8)
	apr := model.BorrowAPR(big.NewInt(100), big.NewInt(0))
	if got := ratToBps(apr); got != 200 {
		t.Fatalf("empty pool should pay the base rate, got %d bps", got)
	}
}

func TestRateBpsTierModifier(t *testing.T) {
	model := NewInterestModel(0.02, 0.15, 0.6, 0.8)
	borrowed, supplied := big.NewInt(400_000), big.NewInt(1_000_000)

	// A top-tier 80% modifier discounts the 800 bps curve rate to 640.
	if got := model.RateBps(borrowed, supplied, 8_000, false, 0); got != 640 {
		t.Fatalf("discounted rate = %d bps, want 640", got)
	}
	// A base-tier 120% modifier marks it up to 960.
	if got := model.RateBps(borrowed, supplied, 12_000, false, 0); got != 960 {
		t.Fatalf("marked-up rate = %d bps, want 960", got)
	}
}

func TestRateBpsOracleRiskPremium(t *testing.T) {
	model := NewInterestModel(0.02, 0.15, 0.6, 0.8)
	model.OracleRiskPremiumBps = 200
	borrowed, supplied := big.NewInt(400_000), big.NewInt(1_000_000)

	if got := model.RateBps(borrowed, supplied, 10_000, false, 0); got != 800 {
		t.Fatalf("rate = %d bps, want 800", got)
	}
	if got := model.RateBps(borrowed, supplied, 10_000, true, 0); got != 1_000 {
		t.Fatalf("degraded rate = %d bps, want 1000", got)
	}
}

func TestRateBpsCeiling(t *testing.T) {
	model := NewInterestModel(0.02, 0.15, 0.6, 0.8)
	model.MaxBorrowRateBps = 1_500
	// Fully drawn pool: the curve asks 2_600 bps, the ceiling holds it down.
	if got := model.RateBps(big.NewInt(1_000_000), big.NewInt(1_000_000), 10_000, false, 0); got != 1_500 {
		t.Fatalf("rate = %d bps, want 1500 ceiling", got)
	}
}

func TestRateBpsChangeClamp(t *testing.T) {
	model := NewInterestModel(0.02, 0.15, 0.6, 0.8)
	model.MaxRateChangeBps = 100
	borrowed, supplied := big.NewInt(1_000_000), big.NewInt(1_000_000)

	// Curve wants 2_600 but may only move 100 bps beyond the previous rate.
	if got := model.RateBps(borrowed, supplied, 10_000, false, 800); got != 900 {
		t.Fatalf("rising rate = %d bps, want 900", got)
	}
	// Downward moves are clamped the same way.
	if got := model.RateBps(big.NewInt(0), supplied, 10_000, false, 800); got != 700 {
		t.Fatalf("falling rate = %d bps, want 700", got)
	}
	// No previous rate means no clamp.
	if got := model.RateBps(borrowed, supplied, 10_000, false, 0); got != 2_600 {
		t.Fatalf("fresh rate = %d bps, want 2600", got)
	}
}
