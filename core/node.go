package core

import (
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"zlend/core/state"
	"zlend/core/types"
	"zlend/native/common"
	"zlend/native/credit"
	"zlend/native/lending"
	"zlend/native/liquidity"
	"zlend/native/oracle"
	"zlend/observability"
	"zlend/storage"
)

// ErrUnauthorized rejects admin calls from any address other than the
// configured administrator.
var ErrUnauthorized = errors.New("core: unauthorized")

// moduleAddressLabel seeds the deterministic pool treasury address.
const moduleAddressLabel = "zlend/module/pool"

// ModuleAddress is the deterministic address holding pool cash and locked
// collateral. No private key exists for it.
func ModuleAddress() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte(moduleAddressLabel))[12:])
	return addr
}

// CollateralAsset declares one allow-listed collateral token and its native
// decimal count for oracle scaling.
type CollateralAsset struct {
	Symbol   string
	Decimals uint8
}

// Options bundles everything a node needs at construction. Zero values fall
// back to the protocol defaults.
type Options struct {
	Admin            [20]byte
	Verifier         credit.Verifier
	RiskParameters   *lending.RiskParameters
	TierTable        lending.TierTable
	InterestModel    *lending.InterestModel
	CreditParams     *credit.Params
	LiquidityParams  *liquidity.Params
	ReserveFactorBps uint64
	OracleMaxAge     time.Duration
	CollateralAssets []CollateralAsset
	Metrics          *observability.Metrics
	Logger           *slog.Logger
}

// Node owns the protocol state and serializes every operation behind one
// mutex. Each state-mutating call runs against the state manager's journal
// and commits only on success, so a failed operation leaves no partial state.
type Node struct {
	mu sync.Mutex

	state     *state.Manager
	engine    *lending.Engine
	liquidity *liquidity.Manager
	gateway   *credit.Gateway
	oracle    *oracle.Adapter
	pauses    *common.Pauses
	metrics   *observability.Metrics
	logger    *slog.Logger

	admin         [20]byte
	moduleAddress [20]byte
	feeds         map[string]*oracle.ManualFeed
	nowFn         func() time.Time
}

// DefaultRiskParameters is the protocol-wide risk configuration applied when
// the operator supplies none.
func DefaultRiskParameters() lending.RiskParameters {
	return lending.RiskParameters{
		LiquidationThresholdBps:   11_000,
		LiquidationBonusBps:       500,
		MinCollateralRatioBps:     12_000,
		RequireVerification:       true,
		PermissionlessLiquidation: false,
		AllowTopUp:                false,
	}
}

// NewNode wires the engines over the supplied database and loads any
// persisted configuration.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	manager := state.NewManager(db)

	riskParams := DefaultRiskParameters()
	if opts.RiskParameters != nil {
		riskParams = *opts.RiskParameters
	}
	tiers := opts.TierTable
	if len(tiers) == 0 {
		tiers = lending.DefaultTierTable()
	}
	if err := tiers.Validate(riskParams.MinCollateralRatioBps); err != nil {
		return nil, err
	}
	model := opts.InterestModel
	if model == nil {
		model = lending.DefaultInterestModel()
	}
	creditParams := credit.DefaultParams()
	if opts.CreditParams != nil {
		creditParams = *opts.CreditParams
	}
	liqParams := liquidity.DefaultParams()
	if opts.LiquidityParams != nil {
		liqParams = *opts.LiquidityParams
	}
	maxAge := opts.OracleMaxAge
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	node := &Node{
		state:         manager,
		pauses:        common.NewPauses(),
		metrics:       opts.Metrics,
		logger:        logger,
		admin:         opts.Admin,
		moduleAddress: ModuleAddress(),
		feeds:         make(map[string]*oracle.ManualFeed),
		nowFn:         time.Now,
	}

	node.oracle = oracle.NewAdapter(maxAge)
	allowList := make([]string, 0, len(opts.CollateralAssets))
	for _, asset := range opts.CollateralAssets {
		symbol := strings.ToUpper(strings.TrimSpace(asset.Symbol))
		if symbol == "" {
			continue
		}
		feed := oracle.NewManualFeed("manual")
		node.oracle.RegisterFeed(symbol, feed, asset.Decimals)
		node.feeds[symbol] = feed
		allowList = append(allowList, symbol)
	}

	node.engine = lending.NewEngine(node.moduleAddress, riskParams, tiers)
	node.engine.SetState(manager)
	node.engine.SetOracle(node.oracle)
	node.engine.SetInterestModel(model)
	node.engine.SetPauses(node.pauses)
	node.engine.SetReserveFactor(opts.ReserveFactorBps)

	node.liquidity = liquidity.NewManager(node.moduleAddress)
	node.liquidity.SetState(manager)
	node.liquidity.SetParams(liqParams)
	node.liquidity.SetPauses(node.pauses)

	node.gateway = credit.NewGateway(opts.Verifier, creditParams)
	node.gateway.SetState(manager)
	node.gateway.SetPauses(node.pauses)

	// A persisted allow-list takes precedence over the configured one.
	persisted, found, err := manager.LendingGetAllowList()
	if err != nil {
		return nil, err
	}
	if found {
		node.engine.SetAllowList(persisted)
	} else {
		node.engine.SetAllowList(allowList)
		if len(allowList) > 0 {
			if err := manager.LendingSetAllowList(allowList); err != nil {
				return nil, err
			}
			if err := manager.Commit(); err != nil {
				return nil, err
			}
		}
	}
	return node, nil
}

// SetNowFunc overrides every engine clock. Tests use this for determinism.
func (n *Node) SetNowFunc(now func() time.Time) {
	if now == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nowFn = now
	unix := func() int64 { return now().Unix() }
	n.engine.SetNowFunc(unix)
	n.gateway.SetNowFunc(unix)
	n.oracle.SetNowFunc(unix)
	n.liquidity.SetNowFunc(now)
}

// withState serializes a state-mutating operation and makes it atomic:
// commit on success, discard on any error.
func (n *Node) withState(op string, fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	err := fn()
	if err != nil {
		n.state.Discard()
	} else {
		err = n.state.Commit()
	}
	n.metrics.RecordOperation(op, err)
	if err != nil {
		n.logger.Debug("operation rejected", "op", op, "err", err)
	} else if n.metrics != nil {
		if market, merr := n.engine.GetMarket(); merr == nil {
			n.metrics.SetPoolUtilization(poolUtilization(market))
		}
	}
	return err
}

func poolUtilization(market *lending.Market) float64 {
	if market == nil || market.TotalSupplied == nil || market.TotalSupplied.Sign() == 0 ||
		market.TotalBorrowed == nil {
		return 0
	}
	ratio, _ := new(big.Rat).SetFrac(market.TotalBorrowed, market.TotalSupplied).Float64()
	return ratio
}

// --- collateral ledger ---

func (n *Node) DepositCollateral(user [20]byte, asset string, amount *big.Int) error {
	return n.withState("lend_depositCollateral", func() error {
		return n.engine.DepositCollateral(user, asset, amount)
	})
}

func (n *Node) WithdrawCollateral(user [20]byte, asset string, amount *big.Int) error {
	return n.withState("lend_withdrawCollateral", func() error {
		return n.engine.WithdrawCollateral(user, asset, amount)
	})
}

// --- borrowing ---

func (n *Node) Borrow(borrower [20]byte, amount *big.Int) error {
	return n.withState("lend_borrow", func() error {
		return n.engine.Borrow(borrower, amount)
	})
}

func (n *Node) Repay(borrower [20]byte, amount *big.Int) (*big.Int, error) {
	var paid *big.Int
	err := n.withState("lend_repay", func() error {
		var err error
		paid, err = n.engine.Repay(borrower, amount)
		return err
	})
	return paid, err
}

func (n *Node) Liquidate(liquidator, borrower [20]byte, repayAmount *big.Int) (repaid, seizedValue *big.Int, err error) {
	err = n.withState("lend_liquidate", func() error {
		var err error
		repaid, seizedValue, err = n.engine.Liquidate(liquidator, borrower, repayAmount)
		return err
	})
	return repaid, seizedValue, err
}

// --- lender liquidity ---

func (n *Node) DepositFunds(lender [20]byte, amount *big.Int) error {
	return n.withState("liq_depositFunds", func() error {
		return n.liquidity.DepositFunds(lender, amount)
	})
}

func (n *Node) ClaimInterest(lender [20]byte) (*big.Int, error) {
	var paid *big.Int
	err := n.withState("liq_claimInterest", func() error {
		var err error
		paid, err = n.liquidity.ClaimInterest(lender)
		return err
	})
	return paid, err
}

func (n *Node) RequestWithdrawal(lender [20]byte, amount *big.Int) error {
	return n.withState("liq_requestWithdrawal", func() error {
		return n.liquidity.RequestWithdrawal(lender, amount)
	})
}

func (n *Node) CompleteWithdrawal(lender [20]byte) (*big.Int, error) {
	var paid *big.Int
	err := n.withState("liq_completeWithdrawal", func() error {
		var err error
		paid, err = n.liquidity.CompleteWithdrawal(lender)
		return err
	})
	return paid, err
}

func (n *Node) CancelWithdrawal(lender [20]byte) error {
	return n.withState("liq_cancelWithdrawal", func() error {
		return n.liquidity.CancelWithdrawal(lender)
	})
}

func (n *Node) WithdrawEarly(lender [20]byte) (*big.Int, error) {
	var paid *big.Int
	err := n.withState("liq_withdrawEarly", func() error {
		var err error
		paid, err = n.liquidity.WithdrawEarly(lender)
		return err
	})
	return paid, err
}

// --- credit verification ---

func (n *Node) SubmitCreditProof(kind credit.ProofKind, subject [20]byte, seal, journal []byte) (*credit.Record, error) {
	var record *credit.Record
	err := n.withState("credit_submitProof", func() error {
		var err error
		switch kind {
		case credit.ProofTradFi:
			record, err = n.gateway.SubmitTradFiProof(subject, seal, journal)
		case credit.ProofAccount:
			record, err = n.gateway.SubmitAccountProof(subject, seal, journal)
		case credit.ProofNesting:
			record, err = n.gateway.SubmitNestingProof(subject, seal, journal)
		default:
			err = credit.ErrVerificationFailed
		}
		return err
	})
	return record, err
}

// --- views ---

// BorrowerProfile aggregates everything a client needs about one borrower.
type BorrowerProfile struct {
	Position *lending.Position
	Score    lending.ScoreRecord
	Terms    lending.Terms
	Health   lending.HealthStatus
}

func (n *Node) GetBorrowerProfile(addr [20]byte) (*BorrowerProfile, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	position, err := n.engine.GetPosition(addr)
	if err != nil {
		return nil, err
	}
	profile := &BorrowerProfile{
		Position: position,
		Score:    n.engine.CreditScore(addr),
		Terms:    n.engine.TermsForAccount(addr),
	}
	health, err := n.engine.CheckCollateralization(addr)
	if err == nil {
		profile.Health = health
	} else {
		// A stale oracle must not hide the rest of the profile; health is
		// simply unreported.
		profile.Health = lending.HealthStatus{}
	}
	return profile, nil
}

func (n *Node) GetPosition(addr [20]byte) (*lending.Position, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GetPosition(addr)
}

func (n *Node) GetMarket() (*lending.Market, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.GetMarket()
}

func (n *Node) CheckCollateralization(addr [20]byte) (lending.HealthStatus, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.CheckCollateralization(addr)
}

func (n *Node) GetAccount(addr [20]byte) (*types.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.GetAccount(addr)
}

func (n *Node) GetLiquidityPosition(addr [20]byte) (*liquidity.Position, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.liquidity.GetPosition(addr)
}

func (n *Node) LenderRate(addr [20]byte) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.liquidity.RateFor(addr)
}

func (n *Node) GetCreditRecord(addr [20]byte) (*credit.Record, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gateway.GetRecord(addr)
}

func (n *Node) CreditEligibility(addr [20]byte) (bool, uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gateway.IsEligible(addr)
}

func (n *Node) OracleHealth() oracle.Health {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.oracle.Healthy()
}

func (n *Node) AllowedAssets() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.AllowedAssets()
}

// --- administration ---

// Admin returns the configured administrator address.
func (n *Node) Admin() [20]byte { return n.admin }

func (n *Node) requireAdmin(caller [20]byte) error {
	if n.admin == ([20]byte{}) || caller != n.admin {
		return ErrUnauthorized
	}
	return nil
}

// SetPaused halts or resumes one module flow ("lending", "liquidity",
// "credit").
func (n *Node) SetPaused(caller [20]byte, module string, paused bool) error {
	if err := n.requireAdmin(caller); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pauses.Set(module, paused)
	n.logger.Info("module pause toggled", "module", module, "paused", paused)
	return nil
}

// SetCreditScore assigns an operator score. Manual scores are unverified and
// clamp to the base tier while verification is required.
func (n *Node) SetCreditScore(caller, subject [20]byte, score uint64) error {
	if err := n.requireAdmin(caller); err != nil {
		return err
	}
	if score > 100 {
		score = 100
	}
	return n.withState("admin_setCreditScore", func() error {
		return n.state.CreditSetManualScore(subject, score)
	})
}

// SetAllowList replaces and persists the collateral allow-list. Every asset
// must already carry a registered price feed.
func (n *Node) SetAllowList(caller [20]byte, assets []string) error {
	if err := n.requireAdmin(caller); err != nil {
		return err
	}
	return n.withState("admin_setAllowList", func() error {
		n.engine.SetAllowList(assets)
		return n.state.LendingSetAllowList(assets)
	})
}

func (n *Node) SetRiskParameters(caller [20]byte, params lending.RiskParameters) error {
	if err := n.requireAdmin(caller); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.engine.SetRiskParameters(params)
	return nil
}

func (n *Node) SetTierTable(caller [20]byte, tiers lending.TierTable) error {
	if err := n.requireAdmin(caller); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.SetTierTable(tiers)
}

func (n *Node) SetInterestModel(caller [20]byte, model *lending.InterestModel) error {
	if err := n.requireAdmin(caller); err != nil {
		return err
	}
	if model == nil {
		return errors.New("core: interest model must not be nil")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.engine.SetInterestModel(model)
	return nil
}

func (n *Node) SetLiquidityParams(caller [20]byte, params liquidity.Params) error {
	if err := n.requireAdmin(caller); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.liquidity.SetParams(params)
	return nil
}

// SetOraclePrice pushes a fresh quote into the manual feed for an asset.
func (n *Node) SetOraclePrice(caller [20]byte, asset string, value *big.Int, decimals uint8) error {
	if err := n.requireAdmin(caller); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	symbol := strings.ToUpper(strings.TrimSpace(asset))
	feed, ok := n.feeds[symbol]
	if !ok {
		return oracle.ErrUnknownAsset
	}
	feed.SetPrice(symbol, value, decimals, n.nowFn().Unix())
	return nil
}

func (n *Node) SetOracleVolatile(caller [20]byte, volatile bool) error {
	if err := n.requireAdmin(caller); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.oracle.SetVolatile(volatile)
	return nil
}

// WithdrawReserves moves accumulated protocol reserves out of the pool.
func (n *Node) WithdrawReserves(caller, to [20]byte, amount *big.Int) error {
	if err := n.requireAdmin(caller); err != nil {
		return err
	}
	return n.withState("admin_withdrawReserves", func() error {
		if amount == nil || amount.Sign() <= 0 {
			return lending.ErrInvalidAmount
		}
		market, found, err := n.state.LendingGetMarket()
		if err != nil {
			return err
		}
		if !found || market.ProtocolReserves.Cmp(amount) < 0 {
			return lending.ErrInsufficientLiquidity
		}
		moduleAcc, err := n.state.GetAccount(n.moduleAddress)
		if err != nil {
			return err
		}
		if moduleAcc.Balance.Cmp(amount) < 0 {
			return lending.ErrInsufficientLiquidity
		}
		recipient, err := n.state.GetAccount(to)
		if err != nil {
			return err
		}
		moduleAcc.Balance = new(big.Int).Sub(moduleAcc.Balance, amount)
		recipient.Balance = new(big.Int).Add(recipient.Balance, amount)
		market.ProtocolReserves = new(big.Int).Sub(market.ProtocolReserves, amount)
		if err := n.state.PutAccount(n.moduleAddress, moduleAcc); err != nil {
			return err
		}
		if err := n.state.PutAccount(to, recipient); err != nil {
			return err
		}
		return n.state.LendingPutMarket(market)
	})
}

// Mint credits base-asset balance to an account. Operational tooling for
// seeding environments; admin only.
func (n *Node) Mint(caller, to [20]byte, amount *big.Int) error {
	if err := n.requireAdmin(caller); err != nil {
		return err
	}
	return n.withState("admin_mint", func() error {
		if amount == nil || amount.Sign() <= 0 {
			return lending.ErrInvalidAmount
		}
		account, err := n.state.GetAccount(to)
		if err != nil {
			return err
		}
		account.Balance = new(big.Int).Add(account.Balance, amount)
		return n.state.PutAccount(to, account)
	})
}

// MintToken credits collateral tokens to an account. Admin only.
func (n *Node) MintToken(caller, to [20]byte, asset string, amount *big.Int) error {
	if err := n.requireAdmin(caller); err != nil {
		return err
	}
	return n.withState("admin_mintToken", func() error {
		if amount == nil || amount.Sign() <= 0 {
			return lending.ErrInvalidAmount
		}
		account, err := n.state.GetAccount(to)
		if err != nil {
			return err
		}
		account.SetTokenBalance(asset, new(big.Int).Add(account.TokenBalance(asset), amount))
		return n.state.PutAccount(to, account)
	})
}
