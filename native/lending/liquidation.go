package lending

import (
	"math/big"

	nativecommon "zlend/native/common"
)

// HealthStatus is the result of a collateralization check.
type HealthStatus struct {
	Healthy        bool
	HealthRatioBps uint64
	Debt           *big.Int
	CollateralUSD  *big.Int
}

// CheckCollateralization reports the position health as a pure view: pending
// interest is included in the debt figure without persisting the accrual.
// healthRatio = collateral USD value * 10_000 / debt. Accounts with no debt
// are healthy by definition.
func (e *Engine) CheckCollateralization(addr [20]byte) (HealthStatus, error) {
	if e == nil || e.state == nil {
		return HealthStatus{}, errNilState
	}
	position, err := e.ensurePosition(addr)
	if err != nil {
		return HealthStatus{}, err
	}

	debt := position.Loan.Debt()
	if position.Loan != nil {
		now := uint64(e.nowFn())
		if now > position.Loan.LastAccrual {
			pending := simpleInterest(debt, position.Loan.RateBps, now-position.Loan.LastAccrual)
			debt = new(big.Int).Add(debt, pending)
		}
	}
	if debt.Sign() == 0 {
		return HealthStatus{Healthy: true, Debt: debt, CollateralUSD: big.NewInt(0)}, nil
	}

	value, err := e.collateralValue(position)
	if err != nil {
		return HealthStatus{}, err
	}
	ratio, hasDebt := healthRatioBps(value, debt)
	status := HealthStatus{
		Healthy:        !hasDebt || ratio >= e.params.LiquidationThresholdBps,
		HealthRatioBps: ratio,
		Debt:           debt,
		CollateralUSD:  value,
	}
	return status, nil
}

// Liquidate lets a liquidator repay part or all of an unhealthy borrower's
// debt in exchange for collateral worth the repaid amount plus the
// liquidation incentive. The call must either clear the debt entirely or
// leave the position healthy again; anything else is rejected. The repaid
// debt and the seized collateral USD value are returned.
func (e *Engine) Liquidate(liquidator, borrower [20]byte, repayAmount *big.Int) (*big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if !e.params.PermissionlessLiquidation && liquidator != e.params.LiquidatorAddress {
		return nil, nil, ErrUnauthorized
	}
	if repayAmount == nil || repayAmount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	market, err := e.ensureMarket()
	if err != nil {
		return nil, nil, err
	}
	position, err := e.ensurePosition(borrower)
	if err != nil {
		return nil, nil, err
	}
	if err := e.accrueLoan(position, market); err != nil {
		return nil, nil, err
	}

	debt := position.Loan.Debt()
	if debt.Sign() == 0 {
		return nil, nil, ErrNoOutstandingDebt
	}

	totalValue, err := e.collateralValue(position)
	if err != nil {
		return nil, nil, err
	}
	ratio, _ := healthRatioBps(totalValue, debt)
	if ratio >= e.params.LiquidationThresholdBps {
		return nil, nil, ErrPositionStillHealthy
	}

	repay := new(big.Int).Set(repayAmount)
	if repay.Cmp(debt) > 0 {
		repay = new(big.Int).Set(debt)
	}

	// Collateral seized: repaid value plus the liquidation incentive, capped
	// at what the borrower actually holds.
	seizeValue := bpsShare(repay, 10_000+e.params.LiquidationBonusBps)
	if seizeValue.Cmp(totalValue) > 0 {
		seizeValue = new(big.Int).Set(totalValue)
	}

	remainingDebt := new(big.Int).Sub(debt, repay)
	if remainingDebt.Sign() > 0 {
		remainingValue := new(big.Int).Sub(totalValue, seizeValue)
		remainingRatio, _ := healthRatioBps(remainingValue, remainingDebt)
		if remainingRatio < e.params.LiquidationThresholdBps {
			return nil, nil, ErrPartialLiquidationInsufficient
		}
	}

	liquidatorAcc, err := e.loadAccount(liquidator)
	if err != nil {
		return nil, nil, err
	}
	if liquidatorAcc.Balance.Cmp(repay) < 0 {
		return nil, nil, ErrInsufficientBalance
	}
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return nil, nil, err
	}

	liquidatorAcc.Balance = new(big.Int).Sub(liquidatorAcc.Balance, repay)
	moduleAcc.Balance = new(big.Int).Add(moduleAcc.Balance, repay)

	// Seize proportionally across every collateral asset the borrower holds.
	if totalValue.Sign() > 0 && seizeValue.Sign() > 0 {
		for _, entry := range append([]CollateralPosition(nil), position.Collateral...) {
			held := position.CollateralAmount(entry.Asset)
			if held.Sign() == 0 {
				continue
			}
			seized := new(big.Int).Mul(held, seizeValue)
			seized.Quo(seized, totalValue)
			if seized.Cmp(held) > 0 {
				seized = new(big.Int).Set(held)
			}
			if seized.Sign() == 0 {
				continue
			}
			position.SetCollateralAmount(entry.Asset, new(big.Int).Sub(held, seized))
			moduleAcc.SetTokenBalance(entry.Asset, new(big.Int).Sub(moduleAcc.TokenBalance(entry.Asset), seized))
			liquidatorAcc.SetTokenBalance(entry.Asset, new(big.Int).Add(liquidatorAcc.TokenBalance(entry.Asset), seized))
		}
	}

	e.amortize(position.Loan, repay)
	market.TotalBorrowed = new(big.Int).Sub(market.TotalBorrowed, repay)
	position.LiquidationsSuffered++
	if position.Loan.Debt().Sign() == 0 {
		position.Loan = nil
	}

	if err := e.state.PutAccount(liquidator, liquidatorAcc); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return nil, nil, err
	}
	if err := e.state.LendingPutPosition(position); err != nil {
		return nil, nil, err
	}
	if err := e.state.LendingPutMarket(market); err != nil {
		return nil, nil, err
	}
	return repay, seizeValue, nil
}
