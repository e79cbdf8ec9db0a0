package lending

import (
	"errors"
	"math/big"
	"testing"

	"zlend/core/types"
)

type mockEngineState struct {
	market    *Market
	positions map[[20]byte]*Position
	accounts  map[[20]byte]*types.Account
	scores    map[[20]byte]ScoreRecord
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		positions: make(map[[20]byte]*Position),
		accounts:  make(map[[20]byte]*types.Account),
		scores:    make(map[[20]byte]ScoreRecord),
	}
}

func (m *mockEngineState) LendingGetMarket() (*Market, bool, error) {
	if m.market == nil {
		return nil, false, nil
	}
	return m.market, true, nil
}

func (m *mockEngineState) LendingPutMarket(market *Market) error {
	m.market = market
	return nil
}

func (m *mockEngineState) LendingGetPosition(addr [20]byte) (*Position, bool, error) {
	position, ok := m.positions[addr]
	return position, ok, nil
}

func (m *mockEngineState) LendingPutPosition(position *Position) error {
	m.positions[position.Address] = position
	return nil
}

func (m *mockEngineState) GetAccount(addr [20]byte) (*types.Account, error) {
	if account, ok := m.accounts[addr]; ok {
		return account, nil
	}
	return &types.Account{}, nil
}

func (m *mockEngineState) PutAccount(addr [20]byte, account *types.Account) error {
	m.accounts[addr] = account
	return nil
}

func (m *mockEngineState) CreditGetScore(addr [20]byte) (ScoreRecord, bool, error) {
	record, ok := m.scores[addr]
	return record, ok, nil
}

// stubValuer prices assets in cents per smallest unit so tests can model
// price drops without fixed-point noise.
type stubValuer struct {
	prices   map[string]int64
	err      error
	degraded bool
}

func (s *stubValuer) USDValue(asset string, amount *big.Int) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	price, ok := s.prices[asset]
	if !ok {
		return nil, errors.New("no feed for " + asset)
	}
	value := new(big.Int).Mul(amount, big.NewInt(price))
	return value.Quo(value, big.NewInt(100)), nil
}

func (s *stubValuer) Degraded() bool { return s.degraded }

func testAddr(b byte) [20]byte {
	var addr [20]byte
	addr[19] = b
	return addr
}

var testModuleAddr = testAddr(0xFF)

func newTestEngine(t *testing.T) (*Engine, *mockEngineState, *stubValuer, *int64) {
	t.Helper()
	state := newMockEngineState()
	valuer := &stubValuer{prices: map[string]int64{"ATOM": 100}}
	params := RiskParameters{
		LiquidationThresholdBps:   11_000,
		LiquidationBonusBps:       500,
		MinCollateralRatioBps:     12_000,
		PermissionlessLiquidation: true,
	}
	tiers := TierTable{{MinScore: 0, CollateralRatioBps: 15_000, InterestModifierBps: 10_000}}
	engine := NewEngine(testModuleAddr, params, tiers)
	engine.SetState(state)
	engine.SetOracle(valuer)
	engine.SetInterestModel(DefaultInterestModel())
	engine.SetAllowList([]string{"ATOM"})
	engine.SetReserveFactor(1_000)
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })
	return engine, state, valuer, &now
}

func seedPool(state *mockEngineState, amount int64) {
	account := &types.Account{Balance: big.NewInt(amount)}
	account.EnsureDefaults()
	state.accounts[testModuleAddr] = account
	market := &Market{TotalSupplied: big.NewInt(amount)}
	market.EnsureDefaults()
	state.market = market
}

func seedCollateral(t *testing.T, engine *Engine, state *mockEngineState, owner [20]byte, asset string, amount int64) {
	t.Helper()
	account, _ := state.GetAccount(owner)
	account.EnsureDefaults()
	account.SetTokenBalance(asset, big.NewInt(amount))
	state.accounts[owner] = account
	if err := engine.DepositCollateral(owner, asset, big.NewInt(amount)); err != nil {
		t.Fatalf("deposit collateral: %v", err)
	}
}

func TestDepositCollateralRejectsUnlistedAsset(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	owner := testAddr(1)
	account := &types.Account{}
	account.EnsureDefaults()
	account.SetTokenBalance("DOGE", big.NewInt(100))
	state.accounts[owner] = account

	err := engine.DepositCollateral(owner, "DOGE", big.NewInt(100))
	if !errors.Is(err, ErrAssetNotAllowed) {
		t.Fatalf("expected ErrAssetNotAllowed, got %v", err)
	}
}

func TestDepositCollateralMovesTokens(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	owner := testAddr(1)
	seedCollateral(t, engine, state, owner, "ATOM", 500)

	if got := state.accounts[owner].TokenBalance("ATOM"); got.Sign() != 0 {
		t.Fatalf("owner should hold 0 ATOM, got %s", got)
	}
	if got := state.accounts[testModuleAddr].TokenBalance("ATOM"); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("module should hold 500 ATOM, got %s", got)
	}
	position := state.positions[owner]
	if got := position.CollateralAmount("ATOM"); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("position should record 500 ATOM, got %s", got)
	}
	if position.FirstInteraction == 0 {
		t.Fatal("first interaction timestamp not recorded")
	}
}

func TestBorrowEnforcesCollateralRatio(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	borrower := testAddr(1)
	seedPool(state, 1_000_000)
	seedCollateral(t, engine, state, borrower, "ATOM", 600_000)

	// 600_000 value at a 150% requirement supports at most 400_000 of debt.
	if err := engine.Borrow(borrower, big.NewInt(400_001)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}
	if err := engine.Borrow(borrower, big.NewInt(400_000)); err != nil {
		t.Fatalf("borrow at the limit: %v", err)
	}
	if got := state.accounts[borrower].Balance; got.Cmp(big.NewInt(400_000)) != 0 {
		t.Fatalf("borrower balance = %s, want 400000", got)
	}
	if got := state.market.TotalBorrowed; got.Cmp(big.NewInt(400_000)) != 0 {
		t.Fatalf("total borrowed = %s, want 400000", got)
	}
	loan := state.positions[borrower].Loan
	if loan == nil || loan.Principal.Cmp(big.NewInt(400_000)) != 0 {
		t.Fatalf("loan principal = %v, want 400000", loan)
	}
	// 40% utilization on the default curve locks an 8% rate.
	if loan.RateBps != 800 {
		t.Fatalf("locked rate = %d bps, want 800", loan.RateBps)
	}
}

func TestBorrowRejectsSecondLoanUnlessTopUpAllowed(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	borrower := testAddr(1)
	seedPool(state, 1_000_000)
	seedCollateral(t, engine, state, borrower, "ATOM", 600_000)

	if err := engine.Borrow(borrower, big.NewInt(100_000)); err != nil {
		t.Fatalf("first borrow: %v", err)
	}
	if err := engine.Borrow(borrower, big.NewInt(100_000)); !errors.Is(err, ErrLoanOutstanding) {
		t.Fatalf("expected ErrLoanOutstanding, got %v", err)
	}

	params := engine.RiskParameters()
	params.AllowTopUp = true
	engine.SetRiskParameters(params)
	if err := engine.Borrow(borrower, big.NewInt(100_000)); err != nil {
		t.Fatalf("top-up borrow: %v", err)
	}
	if got := state.positions[borrower].Loan.Principal; got.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("principal after top-up = %s, want 200000", got)
	}
}

func TestBorrowEnforcesTierLoanLimit(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	if err := engine.SetTierTable(TierTable{{
		MinScore:            0,
		CollateralRatioBps:  15_000,
		InterestModifierBps: 10_000,
		MaxLoanAmount:       big.NewInt(50_000),
	}}); err != nil {
		t.Fatalf("set tier table: %v", err)
	}
	borrower := testAddr(1)
	seedPool(state, 1_000_000)
	seedCollateral(t, engine, state, borrower, "ATOM", 600_000)

	if err := engine.Borrow(borrower, big.NewInt(50_001)); !errors.Is(err, ErrExceedsMaxLoan) {
		t.Fatalf("expected ErrExceedsMaxLoan, got %v", err)
	}
	if err := engine.Borrow(borrower, big.NewInt(50_000)); err != nil {
		t.Fatalf("borrow at the tier limit: %v", err)
	}
}

func TestBorrowEnforcesPoolLiquidity(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	borrower := testAddr(1)
	seedPool(state, 10_000)
	seedCollateral(t, engine, state, borrower, "ATOM", 600_000)

	if err := engine.Borrow(borrower, big.NewInt(20_000)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
}

func TestBorrowClampsUnverifiedToBaseTier(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	if err := engine.SetTierTable(TierTable{
		{MinScore: 80, CollateralRatioBps: 12_000, InterestModifierBps: 8_000},
		{MinScore: 0, CollateralRatioBps: 18_000, InterestModifierBps: 12_000, MaxLoanAmount: big.NewInt(10_000)},
	}); err != nil {
		t.Fatalf("set tier table: %v", err)
	}
	params := engine.RiskParameters()
	params.RequireVerification = true
	engine.SetRiskParameters(params)

	borrower := testAddr(1)
	seedPool(state, 1_000_000)
	seedCollateral(t, engine, state, borrower, "ATOM", 600_000)

	state.scores[borrower] = ScoreRecord{Score: 90, Verified: false}
	if err := engine.Borrow(borrower, big.NewInt(20_000)); !errors.Is(err, ErrExceedsMaxLoan) {
		t.Fatalf("unverified account should hit the base tier cap, got %v", err)
	}

	state.scores[borrower] = ScoreRecord{Score: 90, Verified: true}
	if err := engine.Borrow(borrower, big.NewInt(20_000)); err != nil {
		t.Fatalf("verified borrow: %v", err)
	}
}

func TestBorrowFailsClosedOnStaleOracle(t *testing.T) {
	engine, state, valuer, _ := newTestEngine(t)
	borrower := testAddr(1)
	seedPool(state, 1_000_000)
	seedCollateral(t, engine, state, borrower, "ATOM", 600_000)

	staleErr := errors.New("oracle: stale price feed")
	valuer.err = staleErr
	if err := engine.Borrow(borrower, big.NewInt(100_000)); !errors.Is(err, staleErr) {
		t.Fatalf("expected stale feed error to propagate, got %v", err)
	}
	if state.positions[borrower].Loan != nil {
		t.Fatal("no loan should open on a stale feed")
	}
}

func TestAccrualBooksInterestAndReserves(t *testing.T) {
	engine, state, _, clock := newTestEngine(t)
	borrower := testAddr(1)
	seedPool(state, 1_000_000)
	seedCollateral(t, engine, state, borrower, "ATOM", 600_000)
	if err := engine.Borrow(borrower, big.NewInt(400_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// One year at the locked 800 bps rate: 400_000 * 8% = 32_000 interest.
	*clock += 31_536_000
	preview, err := engine.GetPosition(borrower)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if got := preview.Loan.Debt(); got.Cmp(big.NewInt(432_000)) != 0 {
		t.Fatalf("previewed debt = %s, want 432000", got)
	}

	// The preview must not persist: the stored loan is untouched.
	if got := state.positions[borrower].Loan.AccruedInterest; got.Sign() != 0 {
		t.Fatalf("stored accrued interest = %s, want 0", got)
	}

	// A repayment folds the accrual into the books with a 10% reserve cut.
	if _, err := engine.Repay(borrower, big.NewInt(1)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if got := state.market.ProtocolReserves; got.Cmp(big.NewInt(3_200)) != 0 {
		t.Fatalf("protocol reserves = %s, want 3200", got)
	}
	if got := state.market.InterestPool; got.Cmp(big.NewInt(28_800)) != 0 {
		t.Fatalf("interest pool = %s, want 28800", got)
	}
	if got := state.market.TotalBorrowed; got.Cmp(big.NewInt(431_999)) != 0 {
		t.Fatalf("total borrowed = %s, want 431999", got)
	}
}

func TestRepayAmortizesInterestFirst(t *testing.T) {
	engine, state, _, clock := newTestEngine(t)
	borrower := testAddr(1)
	seedPool(state, 1_000_000)
	seedCollateral(t, engine, state, borrower, "ATOM", 600_000)
	if err := engine.Borrow(borrower, big.NewInt(400_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	*clock += 31_536_000
	if _, err := engine.Repay(borrower, big.NewInt(10_000)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	loan := state.positions[borrower].Loan
	if got := loan.AccruedInterest; got.Cmp(big.NewInt(22_000)) != 0 {
		t.Fatalf("accrued interest = %s, want 22000", got)
	}
	if got := loan.Principal; got.Cmp(big.NewInt(400_000)) != 0 {
		t.Fatalf("principal = %s, want 400000 (untouched)", got)
	}
}

func TestRepayClearsLoanAndNeverRetainsOverpayment(t *testing.T) {
	engine, state, _, clock := newTestEngine(t)
	borrower := testAddr(1)
	seedPool(state, 1_000_000)
	seedCollateral(t, engine, state, borrower, "ATOM", 600_000)
	if err := engine.Borrow(borrower, big.NewInt(400_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// Top the borrower up so the interest can be covered.
	account := state.accounts[borrower]
	account.Balance = new(big.Int).Add(account.Balance, big.NewInt(100_000))

	*clock += 31_536_000
	paid, err := engine.Repay(borrower, big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if paid.Cmp(big.NewInt(432_000)) != 0 {
		t.Fatalf("paid = %s, want 432000 (debt only)", paid)
	}
	position := state.positions[borrower]
	if position.Loan != nil {
		t.Fatal("loan should clear at zero debt")
	}
	if position.SuccessfulRepayments != 1 {
		t.Fatalf("successful repayments = %d, want 1", position.SuccessfulRepayments)
	}
	// Overpayment is refunded: only 432_000 of the 500_000 leaves the account.
	if got := state.accounts[borrower].Balance; got.Cmp(big.NewInt(68_000)) != 0 {
		t.Fatalf("borrower balance = %s, want 68000", got)
	}
	if got := state.market.TotalBorrowed; got.Sign() != 0 {
		t.Fatalf("total borrowed = %s, want 0", got)
	}
}

func TestRepayWithoutDebt(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	borrower := testAddr(1)
	seedPool(state, 1_000_000)

	// Zero repay against a cleared loan is a silent no-op.
	paid, err := engine.Repay(borrower, big.NewInt(0))
	if err != nil {
		t.Fatalf("zero repay: %v", err)
	}
	if paid.Sign() != 0 {
		t.Fatalf("paid = %s, want 0", paid)
	}

	if _, err := engine.Repay(borrower, big.NewInt(100)); !errors.Is(err, ErrNoOutstandingDebt) {
		t.Fatalf("expected ErrNoOutstandingDebt, got %v", err)
	}
}

func TestWithdrawCollateralKeepsPositionCollateralized(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	borrower := testAddr(1)
	seedPool(state, 1_000_000)
	seedCollateral(t, engine, state, borrower, "ATOM", 700_000)
	if err := engine.Borrow(borrower, big.NewInt(400_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// 400_000 debt at 150% locks 600_000 of value; 100_000 is free.
	if err := engine.WithdrawCollateral(borrower, "ATOM", big.NewInt(100_000)); err != nil {
		t.Fatalf("withdraw free collateral: %v", err)
	}
	if err := engine.WithdrawCollateral(borrower, "ATOM", big.NewInt(1)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}
	if got := state.accounts[borrower].TokenBalance("ATOM"); got.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("returned collateral = %s, want 100000", got)
	}
}

func TestWithdrawCollateralWithoutDebtIsUnrestricted(t *testing.T) {
	engine, state, _, _ := newTestEngine(t)
	owner := testAddr(1)
	seedCollateral(t, engine, state, owner, "ATOM", 500)

	if err := engine.WithdrawCollateral(owner, "ATOM", big.NewInt(500)); err != nil {
		t.Fatalf("withdraw all: %v", err)
	}
	if got := state.positions[owner].CollateralAmount("ATOM"); got.Sign() != 0 {
		t.Fatalf("position collateral = %s, want 0", got)
	}
	if err := engine.WithdrawCollateral(owner, "ATOM", big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}
