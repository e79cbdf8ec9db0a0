package lending

import (
	"errors"
	"math/big"
	"testing"

	"zlend/core/types"
)

// openLeveragedLoan arranges a 400_000 loan against 600_000 units of ATOM at
// $1, a 150% collateralization at open.
func openLeveragedLoan(t *testing.T, engine *Engine, state *mockEngineState) [20]byte {
	t.Helper()
	borrower := testAddr(1)
	seedPool(state, 1_000_000)
	seedCollateral(t, engine, state, borrower, "ATOM", 600_000)
	if err := engine.Borrow(borrower, big.NewInt(400_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	return borrower
}

func TestCheckCollateralizationTracksPriceMoves(t *testing.T) {
	engine, state, valuer, _ := newTestEngine(t)
	borrower := openLeveragedLoan(t, engine, state)

	status, err := engine.CheckCollateralization(borrower)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !status.Healthy || status.HealthRatioBps != 15_000 {
		t.Fatalf("healthy position: %+v", status)
	}

	// ATOM drops to $0.70: 420_000 of value against 400_000 of debt.
	valuer.prices["ATOM"] = 70
	status, err = engine.CheckCollateralization(borrower)
	if err != nil {
		t.Fatalf("check after drop: %v", err)
	}
	if status.Healthy || status.HealthRatioBps != 10_500 {
		t.Fatalf("underwater position: %+v", status)
	}
}

func TestCheckCollateralizationNoDebtIsHealthy(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	owner := testAddr(2)
	seedCollateral(t, engine, state, owner, "ATOM", 100)

	status, err := engine.CheckCollateralization(owner)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !status.Healthy || status.Debt.Sign() != 0 {
		t.Fatalf("debt-free position should be healthy: %+v", status)
	}
}

func TestLiquidateRejectsHealthyPosition(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	borrower := openLeveragedLoan(t, engine, state)
	liquidator := testAddr(9)
	state.accounts[liquidator] = accountWithBalance(500_000)

	_, _, err := engine.Liquidate(liquidator, borrower, big.NewInt(400_000))
	if !errors.Is(err, ErrPositionStillHealthy) {
		t.Fatalf("expected ErrPositionStillHealthy, got %v", err)
	}
}

func TestLiquidateFullAfterPriceDrop(t *testing.T) {
	engine, state, valuer, _ := newTestEngine(t)
	borrower := openLeveragedLoan(t, engine, state)
	liquidator := testAddr(9)
	state.accounts[liquidator] = accountWithBalance(500_000)

	valuer.prices["ATOM"] = 70
	repaid, seized, err := engine.Liquidate(liquidator, borrower, big.NewInt(400_000))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if repaid.Cmp(big.NewInt(400_000)) != 0 {
		t.Fatalf("repaid = %s, want 400000", repaid)
	}
	// 400_000 * 105% = 420_000 of value, exactly the collateral on hand.
	if seized.Cmp(big.NewInt(420_000)) != 0 {
		t.Fatalf("seized value = %s, want 420000", seized)
	}

	position := state.positions[borrower]
	if position.Loan != nil {
		t.Fatal("loan should clear after full liquidation")
	}
	if position.LiquidationsSuffered != 1 {
		t.Fatalf("liquidations suffered = %d, want 1", position.LiquidationsSuffered)
	}
	if got := position.CollateralAmount("ATOM"); got.Sign() != 0 {
		t.Fatalf("borrower collateral = %s, want 0", got)
	}
	if got := state.accounts[liquidator].TokenBalance("ATOM"); got.Cmp(big.NewInt(600_000)) != 0 {
		t.Fatalf("liquidator collateral = %s, want 600000", got)
	}
	if got := state.accounts[liquidator].Balance; got.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("liquidator balance = %s, want 100000", got)
	}
	if got := state.market.TotalBorrowed; got.Sign() != 0 {
		t.Fatalf("total borrowed = %s, want 0", got)
	}
}

func TestLiquidatePartialMustRestoreHealth(t *testing.T) {
	engine, state, valuer, _ := newTestEngine(t)
	borrower := openLeveragedLoan(t, engine, state)
	liquidator := testAddr(9)
	state.accounts[liquidator] = accountWithBalance(500_000)

	// ATOM at $0.72: ratio 10_800, below the 11_000 threshold but above the
	// 10_500 bonus line, so a large enough partial can restore health.
	valuer.prices["ATOM"] = 72

	_, _, err := engine.Liquidate(liquidator, borrower, big.NewInt(100_000))
	if !errors.Is(err, ErrPartialLiquidationInsufficient) {
		t.Fatalf("expected ErrPartialLiquidationInsufficient, got %v", err)
	}
	if state.positions[borrower].LiquidationsSuffered != 0 {
		t.Fatal("rejected liquidation must not mutate the position")
	}

	repaid, seized, err := engine.Liquidate(liquidator, borrower, big.NewInt(200_000))
	if err != nil {
		t.Fatalf("partial liquidate: %v", err)
	}
	if repaid.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("repaid = %s, want 200000", repaid)
	}
	if seized.Cmp(big.NewInt(210_000)) != 0 {
		t.Fatalf("seized value = %s, want 210000", seized)
	}

	status, err := engine.CheckCollateralization(borrower)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !status.Healthy {
		t.Fatalf("position should be healthy after partial liquidation: %+v", status)
	}
	if state.positions[borrower].Loan == nil {
		t.Fatal("partial liquidation should leave the loan open")
	}
}

func TestLiquidateRoleGate(t *testing.T) {
	engine, state, valuer, _ := newTestEngine(t)
	borrower := openLeveragedLoan(t, engine, state)
	designated := testAddr(8)
	outsider := testAddr(9)
	state.accounts[designated] = accountWithBalance(500_000)
	state.accounts[outsider] = accountWithBalance(500_000)

	params := engine.RiskParameters()
	params.PermissionlessLiquidation = false
	params.LiquidatorAddress = designated
	engine.SetRiskParameters(params)

	valuer.prices["ATOM"] = 70
	if _, _, err := engine.Liquidate(outsider, borrower, big.NewInt(400_000)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, _, err := engine.Liquidate(designated, borrower, big.NewInt(400_000)); err != nil {
		t.Fatalf("designated liquidator: %v", err)
	}
}

func TestLiquidateRequiresDebt(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	owner := testAddr(2)
	seedCollateral(t, engine, state, owner, "ATOM", 100)
	liquidator := testAddr(9)
	state.accounts[liquidator] = accountWithBalance(500_000)

	_, _, err := engine.Liquidate(liquidator, owner, big.NewInt(100))
	if !errors.Is(err, ErrNoOutstandingDebt) {
		t.Fatalf("expected ErrNoOutstandingDebt, got %v", err)
	}
}

func accountWithBalance(amount int64) *types.Account {
	account := &types.Account{Balance: big.NewInt(amount)}
	account.EnsureDefaults()
	return account
}
