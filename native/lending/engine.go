package lending

import (
	"math/big"
	"strings"
	"time"

	"zlend/core/types"
	nativecommon "zlend/native/common"
)

const moduleName = "lending"

// engineState is the slice of the persistence layer the engine needs. The
// engine is the sole writer of Market and Position records.
type engineState interface {
	LendingGetMarket() (*Market, bool, error)
	LendingPutMarket(market *Market) error
	LendingGetPosition(addr [20]byte) (*Position, bool, error)
	LendingPutPosition(position *Position) error
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
	CreditGetScore(addr [20]byte) (ScoreRecord, bool, error)
}

// Valuer prices collateral in 18-decimal USD. Staleness surfaces as an error
// from USDValue so solvency checks fail closed; Degraded reports whether the
// oracle risk premium should apply.
type Valuer interface {
	USDValue(asset string, amount *big.Int) (*big.Int, error)
	Degraded() bool
}

// Engine orchestrates the primary state transitions for the lending module:
// the collateral ledger, the borrow/repay state machine and liquidations.
// Debt is denominated in the base asset, which is valued 1:1 with USD at 18
// decimals.
type Engine struct {
	state            engineState
	moduleAddress    [20]byte
	params           RiskParameters
	tiers            TierTable
	interestModel    *InterestModel
	oracle           Valuer
	allowList        map[string]bool
	reserveFactorBps uint64
	pauses           nativecommon.PauseView
	nowFn            func() int64
}

// NewEngine constructs a lending engine holding pool cash at moduleAddr.
func NewEngine(moduleAddr [20]byte, params RiskParameters, tiers TierTable) *Engine {
	return &Engine{
		moduleAddress: moduleAddr,
		params:        params,
		tiers:         tiers,
		allowList:     make(map[string]bool),
		nowFn:         func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses wires the module pause switchboard.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetInterestModel configures the rate model used at loan-open and accrual.
func (e *Engine) SetInterestModel(model *InterestModel) {
	if e == nil {
		return
	}
	e.interestModel = model.Clone()
}

// SetOracle wires the collateral price oracle.
func (e *Engine) SetOracle(oracle Valuer) {
	if e == nil {
		return
	}
	e.oracle = oracle
}

// SetReserveFactor configures the bps slice of accrued interest routed to
// protocol reserves.
func (e *Engine) SetReserveFactor(bps uint64) {
	if e == nil {
		return
	}
	if bps > 10_000 {
		bps = 10_000
	}
	e.reserveFactorBps = bps
}

// SetNowFunc overrides the wall clock used for accrual and timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if e == nil || now == nil {
		return
	}
	e.nowFn = now
}

// SetAllowList replaces the collateral asset allow-list.
func (e *Engine) SetAllowList(assets []string) {
	if e == nil {
		return
	}
	allowed := make(map[string]bool, len(assets))
	for _, asset := range assets {
		symbol := normalizeAsset(asset)
		if symbol != "" {
			allowed[symbol] = true
		}
	}
	e.allowList = allowed
}

// SetRiskParameters replaces the governance-controlled limits.
func (e *Engine) SetRiskParameters(params RiskParameters) {
	if e == nil {
		return
	}
	e.params = params
}

// SetTierTable replaces the risk tier schedule after validation.
func (e *Engine) SetTierTable(tiers TierTable) error {
	if e == nil {
		return errNilState
	}
	if err := tiers.Validate(e.params.MinCollateralRatioBps); err != nil {
		return err
	}
	e.tiers = tiers
	return nil
}

// RiskParameters returns the currently configured limits.
func (e *Engine) RiskParameters() RiskParameters {
	if e == nil {
		return RiskParameters{}
	}
	return e.params
}

// TermsForAccount resolves the borrowing terms the account's credit score
// currently earns.
func (e *Engine) TermsForAccount(addr [20]byte) Terms {
	if e == nil {
		return Terms{}
	}
	record := e.scoreFor(addr)
	return e.tiers.Terms(record.Score, record.Verified, e.params.RequireVerification)
}

// CreditScore returns the stored score record for the account.
func (e *Engine) CreditScore(addr [20]byte) ScoreRecord {
	return e.scoreFor(addr)
}

// AllowedAssets lists the collateral allow-list for operator queries.
func (e *Engine) AllowedAssets() []string {
	if e == nil {
		return nil
	}
	assets := make([]string, 0, len(e.allowList))
	for asset := range e.allowList {
		assets = append(assets, asset)
	}
	return assets
}

// DepositCollateral locks collateral tokens for a borrower inside the
// lending module. The asset must be on the allow-list.
func (e *Engine) DepositCollateral(userAddr [20]byte, asset string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	symbol := normalizeAsset(asset)
	if !e.allowList[symbol] {
		return ErrAssetNotAllowed
	}

	userAcc, err := e.loadAccount(userAddr)
	if err != nil {
		return err
	}
	if userAcc.TokenBalance(symbol).Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}

	userAcc.SetTokenBalance(symbol, new(big.Int).Sub(userAcc.TokenBalance(symbol), amount))
	moduleAcc.SetTokenBalance(symbol, new(big.Int).Add(moduleAcc.TokenBalance(symbol), amount))

	position, err := e.ensurePosition(userAddr)
	if err != nil {
		return err
	}
	position.SetCollateralAmount(symbol, new(big.Int).Add(position.CollateralAmount(symbol), amount))
	e.touchFirstInteraction(position)

	if err := e.state.PutAccount(userAddr, userAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	return e.state.LendingPutPosition(position)
}

// WithdrawCollateral releases collateral back to the user while ensuring the
// remaining position still satisfies the account's required collateralization
// ratio against any open loan. Stale pricing fails the call.
func (e *Engine) WithdrawCollateral(userAddr [20]byte, asset string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	symbol := normalizeAsset(asset)

	position, err := e.ensurePosition(userAddr)
	if err != nil {
		return err
	}
	held := position.CollateralAmount(symbol)
	if held.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	if err := e.accrueLoan(position, market); err != nil {
		return err
	}

	debt := position.Loan.Debt()
	if debt.Sign() > 0 {
		remaining := position.Clone()
		remaining.SetCollateralAmount(symbol, new(big.Int).Sub(held, amount))
		value, err := e.collateralValue(remaining)
		if err != nil {
			return err
		}
		terms := e.termsFor(position)
		if !meetsRatio(value, debt, terms.CollateralRatioBps) {
			return ErrInsufficientCollateral
		}
	}

	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	if moduleAcc.TokenBalance(symbol).Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}
	userAcc, err := e.loadAccount(userAddr)
	if err != nil {
		return err
	}

	moduleAcc.SetTokenBalance(symbol, new(big.Int).Sub(moduleAcc.TokenBalance(symbol), amount))
	userAcc.SetTokenBalance(symbol, new(big.Int).Add(userAcc.TokenBalance(symbol), amount))
	position.SetCollateralAmount(symbol, new(big.Int).Sub(held, amount))

	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(userAddr, userAcc); err != nil {
		return err
	}
	if err := e.state.LendingPutPosition(position); err != nil {
		return err
	}
	return e.state.LendingPutMarket(market)
}

// TotalCollateralValue sums the USD value of every collateral asset the
// account holds. Any stale required feed fails the valuation.
func (e *Engine) TotalCollateralValue(userAddr [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	position, err := e.ensurePosition(userAddr)
	if err != nil {
		return nil, err
	}
	return e.collateralValue(position)
}

// Borrow opens or tops up a loan against the account's collateral at the
// rate prevailing for the current utilization.
func (e *Engine) Borrow(borrower [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if e.oracle == nil {
		return errNilOracle
	}

	market, err := e.ensureMarket()
	if err != nil {
		return err
	}
	position, err := e.ensurePosition(borrower)
	if err != nil {
		return err
	}
	if err := e.accrueLoan(position, market); err != nil {
		return err
	}

	debt := position.Loan.Debt()
	if debt.Sign() > 0 && !e.params.AllowTopUp {
		return ErrLoanOutstanding
	}

	terms := e.termsFor(position)
	projected := new(big.Int).Add(debt, amount)
	if terms.MaxLoanAmount != nil && projected.Cmp(terms.MaxLoanAmount) > 0 {
		return ErrExceedsMaxLoan
	}

	value, err := e.collateralValue(position)
	if err != nil {
		return err
	}
	if !meetsRatio(value, projected, terms.CollateralRatioBps) {
		return ErrInsufficientCollateral
	}

	if market.AvailableLiquidity().Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	if moduleAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}
	borrowerAcc, err := e.loadAccount(borrower)
	if err != nil {
		return err
	}

	moduleAcc.Balance = new(big.Int).Sub(moduleAcc.Balance, amount)
	borrowerAcc.Balance = new(big.Int).Add(borrowerAcc.Balance, amount)

	now := uint64(e.nowFn())
	if position.Loan == nil {
		position.Loan = &Loan{OpenedAt: now, LastAccrual: now}
	}
	position.Loan.EnsureDefaults()
	position.Loan.Principal = new(big.Int).Add(position.Loan.Principal, amount)
	e.touchFirstInteraction(position)

	market.TotalBorrowed = new(big.Int).Add(market.TotalBorrowed, amount)

	// Lock the rate for the utilization prevailing after this borrow.
	borrowed, supplied := market.Utilization()
	rate := e.interestModel.RateBps(borrowed, supplied, terms.InterestModifierBps, e.oracleDegraded(), position.Loan.RateBps)
	position.Loan.RateBps = rate
	market.LastRateBps = rate
	market.LastRateUpdate = now

	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(borrower, borrowerAcc); err != nil {
		return err
	}
	if err := e.state.LendingPutPosition(position); err != nil {
		return err
	}
	return e.state.LendingPutMarket(market)
}

// Repay amortizes accrued interest first, then principal. Overpayment beyond
// the outstanding debt is never retained: only the owed amount is debited.
// Repaying an account with no debt is an error, except that a zero-amount
// repay against a cleared loan is a no-op. The debited amount is returned.
func (e *Engine) Repay(borrower [20]byte, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}

	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	position, err := e.ensurePosition(borrower)
	if err != nil {
		return nil, err
	}
	if err := e.accrueLoan(position, market); err != nil {
		return nil, err
	}

	debt := position.Loan.Debt()
	if debt.Sign() == 0 {
		if amount == nil || amount.Sign() == 0 {
			return big.NewInt(0), nil
		}
		return nil, ErrNoOutstandingDebt
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	pay := new(big.Int).Set(amount)
	if pay.Cmp(debt) > 0 {
		pay = new(big.Int).Set(debt)
	}

	borrowerAcc, err := e.loadAccount(borrower)
	if err != nil {
		return nil, err
	}
	if borrowerAcc.Balance.Cmp(pay) < 0 {
		return nil, ErrInsufficientBalance
	}
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return nil, err
	}

	borrowerAcc.Balance = new(big.Int).Sub(borrowerAcc.Balance, pay)
	moduleAcc.Balance = new(big.Int).Add(moduleAcc.Balance, pay)

	e.amortize(position.Loan, pay)
	market.TotalBorrowed = new(big.Int).Sub(market.TotalBorrowed, pay)

	if position.Loan.Debt().Sign() == 0 {
		position.Loan = nil
		position.SuccessfulRepayments++
	}

	if err := e.state.PutAccount(borrower, borrowerAcc); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return nil, err
	}
	if err := e.state.LendingPutPosition(position); err != nil {
		return nil, err
	}
	if err := e.state.LendingPutMarket(market); err != nil {
		return nil, err
	}
	return pay, nil
}

// GetPosition returns a copy of the borrower's position, accrual applied as a
// preview without persisting.
func (e *Engine) GetPosition(addr [20]byte) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	position, err := e.ensurePosition(addr)
	if err != nil {
		return nil, err
	}
	preview := position.Clone()
	if preview.Loan != nil {
		debt := preview.Loan.Debt()
		now := uint64(e.nowFn())
		if now > preview.Loan.LastAccrual {
			pending := simpleInterest(debt, preview.Loan.RateBps, now-preview.Loan.LastAccrual)
			preview.Loan.AccruedInterest = new(big.Int).Add(preview.Loan.AccruedInterest, pending)
		}
	}
	return preview, nil
}

// GetMarket returns a copy of the aggregate market state.
func (e *Engine) GetMarket() (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	market, err := e.ensureMarket()
	if err != nil {
		return nil, err
	}
	return market.Clone(), nil
}

// --- internals ---

// accrueLoan folds elapsed simple interest into the loan and the market
// books, then refreshes the locked rate at the prevailing utilization. Called
// at the top of every state-mutating operation.
func (e *Engine) accrueLoan(position *Position, market *Market) error {
	if position == nil || position.Loan == nil || market == nil {
		return nil
	}
	loan := position.Loan
	loan.EnsureDefaults()
	market.EnsureDefaults()

	now := uint64(e.nowFn())
	if now > loan.LastAccrual {
		elapsed := now - loan.LastAccrual
		interest := simpleInterest(loan.Debt(), loan.RateBps, elapsed)
		if interest.Sign() > 0 {
			loan.AccruedInterest = new(big.Int).Add(loan.AccruedInterest, interest)
			market.TotalBorrowed = new(big.Int).Add(market.TotalBorrowed, interest)
			reserve := bpsShare(interest, e.reserveFactorBps)
			market.ProtocolReserves = new(big.Int).Add(market.ProtocolReserves, reserve)
			market.InterestPool = new(big.Int).Add(market.InterestPool, new(big.Int).Sub(interest, reserve))
		}
		loan.LastAccrual = now
	}

	// Refresh the locked rate for the next accrual window.
	terms := e.termsFor(position)
	borrowed, supplied := market.Utilization()
	rate := e.interestModel.RateBps(borrowed, supplied, terms.InterestModifierBps, e.oracleDegraded(), loan.RateBps)
	loan.RateBps = rate
	market.LastRateBps = rate
	market.LastRateUpdate = now
	return nil
}

// amortize pays accrued interest first, then principal.
func (e *Engine) amortize(loan *Loan, pay *big.Int) {
	if loan == nil || pay == nil || pay.Sign() <= 0 {
		return
	}
	loan.EnsureDefaults()
	interestPaid := new(big.Int).Set(pay)
	if interestPaid.Cmp(loan.AccruedInterest) > 0 {
		interestPaid = new(big.Int).Set(loan.AccruedInterest)
	}
	principalPaid := new(big.Int).Sub(pay, interestPaid)
	loan.AccruedInterest = new(big.Int).Sub(loan.AccruedInterest, interestPaid)
	loan.Principal = new(big.Int).Sub(loan.Principal, principalPaid)
	if loan.Principal.Sign() < 0 {
		loan.Principal = big.NewInt(0)
	}
}

func (e *Engine) termsFor(position *Position) Terms {
	record := e.scoreFor(position.Address)
	return e.tiers.Terms(record.Score, record.Verified, e.params.RequireVerification)
}

func (e *Engine) scoreFor(addr [20]byte) ScoreRecord {
	if e == nil || e.state == nil {
		return ScoreRecord{}
	}
	record, found, err := e.state.CreditGetScore(addr)
	if err != nil || !found {
		return ScoreRecord{}
	}
	return record
}

func (e *Engine) collateralValue(position *Position) (*big.Int, error) {
	if e.oracle == nil {
		return nil, errNilOracle
	}
	total := big.NewInt(0)
	for _, entry := range position.Collateral {
		value, err := e.oracle.USDValue(entry.Asset, entry.Amount)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

func (e *Engine) oracleDegraded() bool {
	if e.oracle == nil {
		return false
	}
	return e.oracle.Degraded()
}

func (e *Engine) ensureMarket() (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	market, found, err := e.state.LendingGetMarket()
	if err != nil {
		return nil, err
	}
	if !found || market == nil {
		market = &Market{}
	}
	market.EnsureDefaults()
	return market, nil
}

func (e *Engine) ensurePosition(addr [20]byte) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	position, found, err := e.state.LendingGetPosition(addr)
	if err != nil {
		return nil, err
	}
	if !found || position == nil {
		position = &Position{Address: addr}
	}
	position.EnsureDefaults()
	return position, nil
}

func (e *Engine) loadAccount(addr [20]byte) (*types.Account, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	acc.EnsureDefaults()
	return acc, nil
}

func (e *Engine) touchFirstInteraction(position *Position) {
	if position.FirstInteraction == 0 {
		position.FirstInteraction = uint64(e.nowFn())
	}
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{
		Address:              p.Address,
		FirstInteraction:     p.FirstInteraction,
		SuccessfulRepayments: p.SuccessfulRepayments,
		LiquidationsSuffered: p.LiquidationsSuffered,
	}
	clone.Collateral = make([]CollateralPosition, len(p.Collateral))
	for i, entry := range p.Collateral {
		clone.Collateral[i] = CollateralPosition{Asset: entry.Asset}
		if entry.Amount != nil {
			clone.Collateral[i].Amount = new(big.Int).Set(entry.Amount)
		}
	}
	if p.Loan != nil {
		loan := &Loan{
			RateBps:     p.Loan.RateBps,
			OpenedAt:    p.Loan.OpenedAt,
			LastAccrual: p.Loan.LastAccrual,
		}
		if p.Loan.Principal != nil {
			loan.Principal = new(big.Int).Set(p.Loan.Principal)
		}
		if p.Loan.AccruedInterest != nil {
			loan.AccruedInterest = new(big.Int).Set(p.Loan.AccruedInterest)
		}
		clone.Loan = loan
	}
	return clone
}

// Clone returns a deep copy of the market.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	clone := &Market{LastRateBps: m.LastRateBps, LastRateUpdate: m.LastRateUpdate}
	if m.TotalSupplied != nil {
		clone.TotalSupplied = new(big.Int).Set(m.TotalSupplied)
	}
	if m.TotalBorrowed != nil {
		clone.TotalBorrowed = new(big.Int).Set(m.TotalBorrowed)
	}
	if m.InterestPool != nil {
		clone.InterestPool = new(big.Int).Set(m.InterestPool)
	}
	if m.ProtocolReserves != nil {
		clone.ProtocolReserves = new(big.Int).Set(m.ProtocolReserves)
	}
	clone.EnsureDefaults()
	return clone
}

func normalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
