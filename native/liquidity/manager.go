package liquidity

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"zlend/core/types"
	"zlend/native/common"
	"zlend/native/lending"
)

var (
	// ErrInvalidAmount is returned when an operation receives a zero or
	// negative amount.
	ErrInvalidAmount = errors.New("liquidity: invalid amount")
	// ErrInsufficientBalance is returned when the lender's spendable
	// balance cannot cover a deposit.
	ErrInsufficientBalance = errors.New("liquidity: insufficient balance")
	// ErrInsufficientLiquidity is returned when the pool's free cash cannot
	// satisfy a withdrawal.
	ErrInsufficientLiquidity = errors.New("liquidity: insufficient liquidity")
	// ErrWithdrawalPending is returned when a second withdrawal request is
	// filed before the first resolves.
	ErrWithdrawalPending = errors.New("liquidity: withdrawal already pending")
	// ErrNoWithdrawalRequested is returned when completion or cancellation
	// has no request to act on.
	ErrNoWithdrawalRequested = errors.New("liquidity: no withdrawal requested")
	// ErrCooldownNotElapsed is returned when a withdrawal is completed
	// before the cooldown window closes.
	ErrCooldownNotElapsed = errors.New("liquidity: cooldown not elapsed")
	// ErrExceedsPrincipal is returned when a withdrawal request exceeds the
	// lender's unlocked principal.
	ErrExceedsPrincipal = errors.New("liquidity: amount exceeds principal")

	errNilState = errors.New("liquidity: state not configured")
)

const (
	basisPoints    = 10_000
	secondsPerYear = 31_536_000
)

type managerState interface {
	LendingGetMarket() (*lending.Market, bool, error)
	LendingPutMarket(*lending.Market) error
	LiquidityGetPosition(addr [20]byte) (*Position, bool, error)
	LiquidityPutPosition(*Position) error
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// Manager runs the lender side of the shared pool: deposits, tiered interest
// claims, and the two-phase cooldown withdrawal flow.
type Manager struct {
	state         managerState
	moduleAddress [20]byte
	params        Params
	pauses        common.PauseView
	nowFn         func() time.Time
}

// NewManager constructs a lender manager over the shared pool account.
func NewManager(moduleAddress [20]byte) *Manager {
	return &Manager{
		moduleAddress: moduleAddress,
		params:        DefaultParams(),
		nowFn:         time.Now,
	}
}

// SetState wires the persistence backend.
func (m *Manager) SetState(state managerState) { m.state = state }

// SetPauses wires the module pause switchboard.
func (m *Manager) SetPauses(p common.PauseView) { m.pauses = p }

// SetParams replaces the lender schedule.
func (m *Manager) SetParams(params Params) { m.params = params }

// Params returns the active lender schedule.
func (m *Manager) Params() Params { return m.params }

// SetNowFunc overrides the clock source. Tests use this for determinism.
func (m *Manager) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	m.nowFn = now
}

func (m *Manager) now() uint64 {
	return uint64(m.nowFn().Unix())
}

// DepositFunds moves base-asset liquidity from the lender into the shared
// pool and starts interest accrual.
func (m *Manager) DepositFunds(lender [20]byte, amount *big.Int) error {
	if err := common.Guard(m.pauses, "liquidity"); err != nil {
		return err
	}
	if m.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	lenderAcc, err := m.loadAccount(lender)
	if err != nil {
		return err
	}
	if lenderAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	moduleAcc, err := m.loadAccount(m.moduleAddress)
	if err != nil {
		return err
	}
	position, err := m.ensurePosition(lender)
	if err != nil {
		return err
	}
	market, err := m.ensureMarket()
	if err != nil {
		return err
	}
	now := m.now()
	m.accrue(position, now)

	lenderAcc.Balance = new(big.Int).Sub(lenderAcc.Balance, amount)
	moduleAcc.Balance = new(big.Int).Add(moduleAcc.Balance, amount)
	position.Principal = new(big.Int).Add(position.Principal, amount)
	if position.FirstDeposit == 0 {
		position.FirstDeposit = now
	}
	market.TotalSupplied = new(big.Int).Add(market.TotalSupplied, amount)

	if err := m.state.PutAccount(lender, lenderAcc); err != nil {
		return err
	}
	if err := m.state.PutAccount(m.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := m.state.LiquidityPutPosition(position); err != nil {
		return err
	}
	return m.state.LendingPutMarket(market)
}

// ClaimInterest pays out the lender's accrued interest from the pool's
// interest reserve. A claim with nothing accrued is a silent no-op. When the
// reserve cannot cover the full accrual the claim pays what it can and leaves
// the remainder pending.
func (m *Manager) ClaimInterest(lender [20]byte) (*big.Int, error) {
	if err := common.Guard(m.pauses, "liquidity"); err != nil {
		return nil, err
	}
	if m.state == nil {
		return nil, errNilState
	}
	position, ok, err := m.state.LiquidityGetPosition(lender)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	position.EnsureDefaults()
	market, err := m.ensureMarket()
	if err != nil {
		return nil, err
	}
	now := m.now()
	m.accrue(position, now)
	if position.PendingInterest.Sign() == 0 {
		if err := m.state.LiquidityPutPosition(position); err != nil {
			return nil, err
		}
		return big.NewInt(0), nil
	}

	pay := new(big.Int).Set(position.PendingInterest)
	if pay.Cmp(market.InterestPool) > 0 {
		pay.Set(market.InterestPool)
	}
	moduleAcc, err := m.loadAccount(m.moduleAddress)
	if err != nil {
		return nil, err
	}
	if pay.Cmp(moduleAcc.Balance) > 0 {
		pay.Set(moduleAcc.Balance)
	}
	if pay.Sign() == 0 {
		if err := m.state.LiquidityPutPosition(position); err != nil {
			return nil, err
		}
		return big.NewInt(0), nil
	}
	lenderAcc, err := m.loadAccount(lender)
	if err != nil {
		return nil, err
	}

	moduleAcc.Balance = new(big.Int).Sub(moduleAcc.Balance, pay)
	lenderAcc.Balance = new(big.Int).Add(lenderAcc.Balance, pay)
	market.InterestPool = new(big.Int).Sub(market.InterestPool, pay)
	position.PendingInterest = new(big.Int).Sub(position.PendingInterest, pay)
	position.EarnedInterest = new(big.Int).Add(position.EarnedInterest, pay)

	if err := m.state.PutAccount(m.moduleAddress, moduleAcc); err != nil {
		return nil, err
	}
	if err := m.state.PutAccount(lender, lenderAcc); err != nil {
		return nil, err
	}
	if err := m.state.LendingPutMarket(market); err != nil {
		return nil, err
	}
	if err := m.state.LiquidityPutPosition(position); err != nil {
		return nil, err
	}
	return pay, nil
}

// RequestWithdrawal files a two-phase withdrawal for part of the lender's
// principal. The amount stops accruing interest immediately and becomes
// claimable once the cooldown elapses.
func (m *Manager) RequestWithdrawal(lender [20]byte, amount *big.Int) error {
	if err := common.Guard(m.pauses, "liquidity"); err != nil {
		return err
	}
	if m.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	position, ok, err := m.state.LiquidityGetPosition(lender)
	if err != nil {
		return err
	}
	if !ok {
		return ErrExceedsPrincipal
	}
	position.EnsureDefaults()
	if position.PendingWithdrawal != nil {
		return ErrWithdrawalPending
	}
	now := m.now()
	m.accrue(position, now)
	if amount.Cmp(position.Principal) > 0 {
		return ErrExceedsPrincipal
	}
	position.PendingWithdrawal = &Withdrawal{
		Amount:      new(big.Int).Set(amount),
		RequestedAt: now,
	}
	return m.state.LiquidityPutPosition(position)
}

// CancelWithdrawal drops a pending request; the locked amount resumes
// accruing from now.
func (m *Manager) CancelWithdrawal(lender [20]byte) error {
	if err := common.Guard(m.pauses, "liquidity"); err != nil {
		return err
	}
	if m.state == nil {
		return errNilState
	}
	position, ok, err := m.state.LiquidityGetPosition(lender)
	if err != nil {
		return err
	}
	if !ok || position.PendingWithdrawal == nil {
		return ErrNoWithdrawalRequested
	}
	position.EnsureDefaults()
	m.accrue(position, m.now())
	position.PendingWithdrawal = nil
	return m.state.LiquidityPutPosition(position)
}

// CompleteWithdrawal releases a matured withdrawal request back to the
// lender's spendable balance.
func (m *Manager) CompleteWithdrawal(lender [20]byte) (*big.Int, error) {
	if err := common.Guard(m.pauses, "liquidity"); err != nil {
		return nil, err
	}
	if m.state == nil {
		return nil, errNilState
	}
	position, ok, err := m.state.LiquidityGetPosition(lender)
	if err != nil {
		return nil, err
	}
	if !ok || position.PendingWithdrawal == nil {
		return nil, ErrNoWithdrawalRequested
	}
	position.EnsureDefaults()
	now := m.now()
	if now < position.PendingWithdrawal.RequestedAt+m.params.CooldownSeconds {
		return nil, ErrCooldownNotElapsed
	}
	amount := new(big.Int).Set(position.PendingWithdrawal.Amount)
	return m.payOutWithdrawal(lender, position, amount, amount, now)
}

// WithdrawEarly settles a pending request before the cooldown elapses. The
// early-exit penalty is withheld from the payout and booked to the protocol
// reserve.
func (m *Manager) WithdrawEarly(lender [20]byte) (*big.Int, error) {
	if err := common.Guard(m.pauses, "liquidity"); err != nil {
		return nil, err
	}
	if m.state == nil {
		return nil, errNilState
	}
	position, ok, err := m.state.LiquidityGetPosition(lender)
	if err != nil {
		return nil, err
	}
	if !ok || position.PendingWithdrawal == nil {
		return nil, ErrNoWithdrawalRequested
	}
	position.EnsureDefaults()
	amount := new(big.Int).Set(position.PendingWithdrawal.Amount)
	penalty := bpsShare(amount, m.params.EarlyExitPenaltyBps)
	payout := new(big.Int).Sub(amount, penalty)
	return m.payOutWithdrawal(lender, position, amount, payout, m.now())
}

// payOutWithdrawal finalizes a pending request: removes amount from principal
// and pool supply, transfers payout to the lender, and books any withheld
// difference to the protocol reserve.
func (m *Manager) payOutWithdrawal(lender [20]byte, position *Position, amount, payout *big.Int, now uint64) (*big.Int, error) {
	m.accrue(position, now)
	market, err := m.ensureMarket()
	if err != nil {
		return nil, err
	}
	if market.AvailableLiquidity().Cmp(amount) < 0 {
		return nil, ErrInsufficientLiquidity
	}
	moduleAcc, err := m.loadAccount(m.moduleAddress)
	if err != nil {
		return nil, err
	}
	if moduleAcc.Balance.Cmp(payout) < 0 {
		return nil, ErrInsufficientLiquidity
	}
	lenderAcc, err := m.loadAccount(lender)
	if err != nil {
		return nil, err
	}

	withheld := new(big.Int).Sub(amount, payout)
	moduleAcc.Balance = new(big.Int).Sub(moduleAcc.Balance, payout)
	lenderAcc.Balance = new(big.Int).Add(lenderAcc.Balance, payout)
	position.Principal = new(big.Int).Sub(position.Principal, amount)
	position.PendingWithdrawal = nil
	market.TotalSupplied = new(big.Int).Sub(market.TotalSupplied, amount)
	if withheld.Sign() > 0 {
		market.ProtocolReserves = new(big.Int).Add(market.ProtocolReserves, withheld)
	}

	if err := m.state.PutAccount(m.moduleAddress, moduleAcc); err != nil {
		return nil, err
	}
	if err := m.state.PutAccount(lender, lenderAcc); err != nil {
		return nil, err
	}
	if err := m.state.LendingPutMarket(market); err != nil {
		return nil, err
	}
	if err := m.state.LiquidityPutPosition(position); err != nil {
		return nil, err
	}
	return payout, nil
}

// GetPosition returns the lender's position with interest accrued to now,
// without persisting the preview.
func (m *Manager) GetPosition(lender [20]byte) (*Position, error) {
	if m.state == nil {
		return nil, errNilState
	}
	position, ok, err := m.state.LiquidityGetPosition(lender)
	if err != nil {
		return nil, err
	}
	if !ok {
		empty := &Position{Address: lender}
		empty.EnsureDefaults()
		return empty, nil
	}
	position.EnsureDefaults()
	preview := position.Clone()
	m.accrue(preview, m.now())
	return preview, nil
}

// RateFor reports the APR the lender currently qualifies for.
func (m *Manager) RateFor(lender [20]byte) (uint64, error) {
	if m.state == nil {
		return 0, errNilState
	}
	position, ok, err := m.state.LiquidityGetPosition(lender)
	if err != nil {
		return 0, err
	}
	if !ok {
		return m.params.rateFor(big.NewInt(0), 0), nil
	}
	position.EnsureDefaults()
	return m.params.rateFor(position.Principal, m.tenure(position, m.now())), nil
}

// accrue folds interest earned since the last distribution into the
// position's pending balance. The accrual base excludes locked withdrawals.
func (m *Manager) accrue(position *Position, now uint64) {
	position.EnsureDefaults()
	if position.LastDistribution == 0 {
		position.LastDistribution = now
		return
	}
	if now <= position.LastDistribution {
		return
	}
	elapsed := now - position.LastDistribution
	rate := m.params.rateFor(position.Principal, m.tenure(position, now))
	interest := simpleInterest(position.accrualBase(), rate, elapsed)
	if interest.Sign() > 0 {
		position.PendingInterest = new(big.Int).Add(position.PendingInterest, interest)
	}
	position.LastDistribution = now
}

func (m *Manager) tenure(position *Position, now uint64) uint64 {
	if position.FirstDeposit == 0 || now <= position.FirstDeposit {
		return 0
	}
	return now - position.FirstDeposit
}

func (m *Manager) ensurePosition(lender [20]byte) (*Position, error) {
	position, ok, err := m.state.LiquidityGetPosition(lender)
	if err != nil {
		return nil, err
	}
	if !ok {
		position = &Position{Address: lender}
	}
	position.EnsureDefaults()
	return position, nil
}

func (m *Manager) ensureMarket() (*lending.Market, error) {
	market, ok, err := m.state.LendingGetMarket()
	if err != nil {
		return nil, err
	}
	if !ok {
		market = &lending.Market{}
	}
	market.EnsureDefaults()
	return market, nil
}

func (m *Manager) loadAccount(addr [20]byte) (*types.Account, error) {
	account, err := m.state.GetAccount(addr)
	if err != nil {
		return nil, fmt.Errorf("liquidity: load account: %w", err)
	}
	account.EnsureDefaults()
	return account, nil
}

func bpsShare(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return share.Quo(share, big.NewInt(basisPoints))
}

func simpleInterest(principal *big.Int, rateBps, elapsedSeconds uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 || rateBps == 0 || elapsedSeconds == 0 {
		return big.NewInt(0)
	}
	interest := new(big.Int).Mul(principal, new(big.Int).SetUint64(rateBps))
	interest.Mul(interest, new(big.Int).SetUint64(elapsedSeconds))
	return interest.Quo(interest, big.NewInt(basisPoints*secondsPerYear))
}
