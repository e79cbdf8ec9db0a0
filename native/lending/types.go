package lending

import "math/big"

// Market captures the aggregate accounting state for the lending pool.
// Conservation holds at every quiescent point:
//
//	TotalSupplied + InterestPool + ProtocolReserves == pool cash + TotalBorrowed
//
// where pool cash is the module account's base-asset balance.
type Market struct {
	// TotalSupplied is the aggregate lender principal currently deposited.
	TotalSupplied *big.Int
	// TotalBorrowed is the outstanding debt, accrued interest included.
	TotalBorrowed *big.Int
	// InterestPool is borrower interest accrued on behalf of lenders and not
	// yet claimed.
	InterestPool *big.Int
	// ProtocolReserves is the reserve-factor slice of accrued interest plus
	// early-exit penalties.
	ProtocolReserves *big.Int
	// LastRateBps is the borrow rate most recently locked by an accrual
	// refresh, used to bound rate movement between refreshes.
	LastRateBps uint64
	// LastRateUpdate is the unix timestamp of the last rate refresh.
	LastRateUpdate uint64
}

// EnsureDefaults populates nil amounts so state encoding stays safe.
func (m *Market) EnsureDefaults() {
	if m.TotalSupplied == nil {
		m.TotalSupplied = big.NewInt(0)
	}
	if m.TotalBorrowed == nil {
		m.TotalBorrowed = big.NewInt(0)
	}
	if m.InterestPool == nil {
		m.InterestPool = big.NewInt(0)
	}
	if m.ProtocolReserves == nil {
		m.ProtocolReserves = big.NewInt(0)
	}
}

// AvailableLiquidity is the cash the pool can still lend or release.
func (m *Market) AvailableLiquidity() *big.Int {
	m.EnsureDefaults()
	cash := new(big.Int).Add(m.TotalSupplied, m.InterestPool)
	cash.Add(cash, m.ProtocolReserves)
	cash.Sub(cash, m.TotalBorrowed)
	if cash.Sign() < 0 {
		return big.NewInt(0)
	}
	return cash
}

// Utilization returns debt / supplied as a pair for rate computation.
func (m *Market) Utilization() (borrowed, supplied *big.Int) {
	m.EnsureDefaults()
	return m.TotalBorrowed, m.TotalSupplied
}

// Loan is a single open borrowing position. Interest accrues lazily against
// the rate locked at the previous accrual refresh.
type Loan struct {
	Principal       *big.Int
	AccruedInterest *big.Int
	RateBps         uint64
	OpenedAt        uint64
	LastAccrual     uint64
}

// Debt returns principal plus accrued interest.
func (l *Loan) Debt() *big.Int {
	if l == nil {
		return big.NewInt(0)
	}
	debt := new(big.Int)
	if l.Principal != nil {
		debt.Add(debt, l.Principal)
	}
	if l.AccruedInterest != nil {
		debt.Add(debt, l.AccruedInterest)
	}
	return debt
}

// EnsureDefaults populates nil amounts.
func (l *Loan) EnsureDefaults() {
	if l == nil {
		return
	}
	if l.Principal == nil {
		l.Principal = big.NewInt(0)
	}
	if l.AccruedInterest == nil {
		l.AccruedInterest = big.NewInt(0)
	}
}

// CollateralPosition pairs a collateral asset with the deposited amount.
// Positions are kept sorted by asset so the record encodes deterministically.
type CollateralPosition struct {
	Asset  string
	Amount *big.Int
}

// Position maintains the borrower-side state for one account: collateral,
// the open loan (nil when no loan) and the interaction history. The credit
// score itself lives in a separate ScoreRecord written by the verification
// gateway or the admin channel; the engine only reads it.
type Position struct {
	Address              [20]byte
	Collateral           []CollateralPosition
	Loan                 *Loan `rlp:"nil"`
	FirstInteraction     uint64
	SuccessfulRepayments uint64
	LiquidationsSuffered uint64
}

// EnsureDefaults populates nil amounts on the position and its loan.
func (p *Position) EnsureDefaults() {
	for i := range p.Collateral {
		if p.Collateral[i].Amount == nil {
			p.Collateral[i].Amount = big.NewInt(0)
		}
	}
	p.Loan.EnsureDefaults()
}

// CollateralAmount returns the deposited amount for the asset.
func (p *Position) CollateralAmount(asset string) *big.Int {
	for i := range p.Collateral {
		if p.Collateral[i].Asset == asset {
			if p.Collateral[i].Amount == nil {
				return big.NewInt(0)
			}
			return new(big.Int).Set(p.Collateral[i].Amount)
		}
	}
	return big.NewInt(0)
}

// SetCollateralAmount overwrites the deposited amount, inserting the asset in
// sorted position on first deposit and dropping emptied entries.
func (p *Position) SetCollateralAmount(asset string, amount *big.Int) {
	if amount == nil {
		amount = big.NewInt(0)
	}
	for i := range p.Collateral {
		if p.Collateral[i].Asset == asset {
			if amount.Sign() == 0 {
				p.Collateral = append(p.Collateral[:i], p.Collateral[i+1:]...)
				return
			}
			p.Collateral[i].Amount = new(big.Int).Set(amount)
			return
		}
	}
	if amount.Sign() == 0 {
		return
	}
	idx := len(p.Collateral)
	for i := range p.Collateral {
		if p.Collateral[i].Asset > asset {
			idx = i
			break
		}
	}
	entry := CollateralPosition{Asset: asset, Amount: new(big.Int).Set(amount)}
	p.Collateral = append(p.Collateral, CollateralPosition{})
	copy(p.Collateral[idx+1:], p.Collateral[idx:])
	p.Collateral[idx] = entry
}

// RiskParameters groups the governance-controlled safety limits.
type RiskParameters struct {
	// LiquidationThresholdBps is the health ratio below which positions
	// become liquidatable.
	LiquidationThresholdBps uint64
	// LiquidationBonusBps is the incentive added to seized collateral.
	LiquidationBonusBps uint64
	// MinCollateralRatioBps is the protocol-wide collateralization floor no
	// tier may undercut.
	MinCollateralRatioBps uint64
	// RequireVerification clamps unverified accounts to the base tier when
	// set.
	RequireVerification bool
	// PermissionlessLiquidation allows any address to liquidate; when false
	// only LiquidatorAddress may.
	PermissionlessLiquidation bool
	// LiquidatorAddress is the designated liquidator role used when
	// liquidation is role-gated.
	LiquidatorAddress [20]byte
	// AllowTopUp permits borrowing on top of an open loan.
	AllowTopUp bool
}

// ScoreRecord is the persisted credit score consumed by the tier engine.
// Verified is true only when the score was produced by the verification
// gateway rather than set manually.
type ScoreRecord struct {
	Score    uint64
	Verified bool
}
