package core

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"zlend/native/credit"
	"zlend/native/lending"
	"zlend/storage"
)

type okVerifier struct{}

func (okVerifier) Verify(seal, journal []byte) (bool, error) { return true, nil }

func testAddr(b byte) [20]byte {
	var addr [20]byte
	addr[19] = b
	return addr
}

var (
	adminAddr    = testAddr(0xA0)
	lenderAddr   = testAddr(0x01)
	borrowerAddr = testAddr(0x02)
	keeperAddr   = testAddr(0x03)
)

func newTestNode(t *testing.T) (*Node, *time.Time) {
	t.Helper()
	node, err := NewNode(storage.NewMemDB(), Options{
		Admin:            adminAddr,
		Verifier:         okVerifier{},
		ReserveFactorBps: 1_000,
		CollateralAssets: []CollateralAsset{{Symbol: "ATOM", Decimals: 18}},
	})
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	node.SetNowFunc(func() time.Time { return now })
	require.NoError(t, node.SetOraclePrice(adminAddr, "ATOM", big.NewInt(1), 0))
	return node, &now
}

// assertConservation checks the pool accounting identity:
// supplied + interest pool + reserves == pool cash + outstanding debt.
func assertConservation(t *testing.T, node *Node) {
	t.Helper()
	market, err := node.GetMarket()
	require.NoError(t, err)
	moduleAcc, err := node.GetAccount(ModuleAddress())
	require.NoError(t, err)

	lhs := new(big.Int).Add(market.TotalSupplied, market.InterestPool)
	lhs.Add(lhs, market.ProtocolReserves)
	rhs := new(big.Int).Add(moduleAcc.Balance, market.TotalBorrowed)
	require.Zero(t, lhs.Cmp(rhs), "conservation violated: %s != %s", lhs, rhs)
}

func submitScore(t *testing.T, node *Node, subject [20]byte, score uint64) {
	t.Helper()
	journal, err := credit.EncodeJournal(credit.Claims{Subject: subject, Score: score})
	require.NoError(t, err)
	record, err := node.SubmitCreditProof(credit.ProofTradFi, subject, []byte("seal"), journal)
	require.NoError(t, err)
	require.Equal(t, score, record.FinalScore)
}

func TestFullLendingCycleConservesValue(t *testing.T) {
	node, now := newTestNode(t)

	require.NoError(t, node.Mint(adminAddr, lenderAddr, big.NewInt(1_000_000)))
	require.NoError(t, node.DepositFunds(lenderAddr, big.NewInt(1_000_000)))
	assertConservation(t, node)

	require.NoError(t, node.MintToken(adminAddr, borrowerAddr, "ATOM", big.NewInt(600_000)))
	submitScore(t, node, borrowerAddr, 80)

	require.NoError(t, node.DepositCollateral(borrowerAddr, "ATOM", big.NewInt(600_000)))
	require.NoError(t, node.Borrow(borrowerAddr, big.NewInt(400_000)))
	assertConservation(t, node)

	account, err := node.GetAccount(borrowerAddr)
	require.NoError(t, err)
	require.Zero(t, account.Balance.Cmp(big.NewInt(400_000)))

	// Score 80 earns the top tier: 40% utilization prices at 800 bps on the
	// curve, discounted by the tier's 80% modifier to 640 bps.
	position, err := node.GetPosition(borrowerAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(640), position.Loan.RateBps)

	// One year later the debt is principal plus 25_600 of simple interest.
	*now = now.Add(31_536_000 * time.Second)
	require.NoError(t, node.Mint(adminAddr, borrowerAddr, big.NewInt(50_000)))
	paid, err := node.Repay(borrowerAddr, big.NewInt(500_000))
	require.NoError(t, err)
	require.Zero(t, paid.Cmp(big.NewInt(425_600)))
	assertConservation(t, node)

	market, err := node.GetMarket()
	require.NoError(t, err)
	require.Zero(t, market.TotalBorrowed.Sign())
	require.Zero(t, market.ProtocolReserves.Cmp(big.NewInt(2_560)))
	require.Zero(t, market.InterestPool.Cmp(big.NewInt(23_040)))

	// The lender's accrual exceeds the interest pool, so the claim pays out
	// the pool and carries the remainder forward.
	paid, err = node.ClaimInterest(lenderAddr)
	require.NoError(t, err)
	require.Zero(t, paid.Cmp(big.NewInt(23_040)))
	assertConservation(t, node)

	// Two-phase withdrawal through the cooldown.
	require.NoError(t, node.RequestWithdrawal(lenderAddr, big.NewInt(500_000)))
	_, err = node.CompleteWithdrawal(lenderAddr)
	require.Error(t, err)
	*now = now.Add(7 * 24 * time.Hour)
	paid, err = node.CompleteWithdrawal(lenderAddr)
	require.NoError(t, err)
	require.Zero(t, paid.Cmp(big.NewInt(500_000)))
	assertConservation(t, node)

	// Reserves leave the pool through the admin channel.
	require.NoError(t, node.WithdrawReserves(adminAddr, adminAddr, big.NewInt(2_560)))
	assertConservation(t, node)
}

func TestLiquidationAfterPriceDrop(t *testing.T) {
	node, _ := newTestNode(t)

	params := DefaultRiskParameters()
	params.PermissionlessLiquidation = true
	require.NoError(t, node.SetRiskParameters(adminAddr, params))

	require.NoError(t, node.Mint(adminAddr, lenderAddr, big.NewInt(1_000_000)))
	require.NoError(t, node.DepositFunds(lenderAddr, big.NewInt(1_000_000)))
	require.NoError(t, node.MintToken(adminAddr, borrowerAddr, "ATOM", big.NewInt(600_000)))
	submitScore(t, node, borrowerAddr, 80)
	require.NoError(t, node.DepositCollateral(borrowerAddr, "ATOM", big.NewInt(600_000)))
	require.NoError(t, node.Borrow(borrowerAddr, big.NewInt(400_000)))

	status, err := node.CheckCollateralization(borrowerAddr)
	require.NoError(t, err)
	require.True(t, status.Healthy)

	// ATOM falls to $0.70: 420_000 of collateral against 400_000 of debt.
	require.NoError(t, node.SetOraclePrice(adminAddr, "ATOM", big.NewInt(70), 2))
	status, err = node.CheckCollateralization(borrowerAddr)
	require.NoError(t, err)
	require.False(t, status.Healthy)
	require.Equal(t, uint64(10_500), status.HealthRatioBps)

	require.NoError(t, node.Mint(adminAddr, keeperAddr, big.NewInt(400_000)))
	repaid, seized, err := node.Liquidate(keeperAddr, borrowerAddr, big.NewInt(400_000))
	require.NoError(t, err)
	require.Zero(t, repaid.Cmp(big.NewInt(400_000)))
	require.Zero(t, seized.Cmp(big.NewInt(420_000)))
	assertConservation(t, node)

	keeper, err := node.GetAccount(keeperAddr)
	require.NoError(t, err)
	require.Zero(t, keeper.TokenBalance("ATOM").Cmp(big.NewInt(600_000)))

	profile, err := node.GetBorrowerProfile(borrowerAddr)
	require.NoError(t, err)
	require.Nil(t, profile.Position.Loan)
	require.Equal(t, uint64(1), profile.Position.LiquidationsSuffered)
}

func TestFailedOperationLeavesNoPartialState(t *testing.T) {
	node, _ := newTestNode(t)

	require.NoError(t, node.Mint(adminAddr, lenderAddr, big.NewInt(1_000_000)))
	require.NoError(t, node.DepositFunds(lenderAddr, big.NewInt(1_000_000)))
	require.NoError(t, node.MintToken(adminAddr, borrowerAddr, "ATOM", big.NewInt(100_000)))
	submitScore(t, node, borrowerAddr, 80)
	require.NoError(t, node.DepositCollateral(borrowerAddr, "ATOM", big.NewInt(100_000)))

	// 100_000 of collateral cannot support 400_000 at a 120% requirement.
	err := node.Borrow(borrowerAddr, big.NewInt(400_000))
	require.ErrorIs(t, err, lending.ErrInsufficientCollateral)

	position, err := node.GetPosition(borrowerAddr)
	require.NoError(t, err)
	require.Nil(t, position.Loan)
	market, err := node.GetMarket()
	require.NoError(t, err)
	require.Zero(t, market.TotalBorrowed.Sign())
	assertConservation(t, node)
}

func TestAdminGates(t *testing.T) {
	node, _ := newTestNode(t)
	outsider := testAddr(0x77)

	require.ErrorIs(t, node.Mint(outsider, outsider, big.NewInt(1)), ErrUnauthorized)
	require.ErrorIs(t, node.SetCreditScore(outsider, borrowerAddr, 90), ErrUnauthorized)
	require.ErrorIs(t, node.SetPaused(outsider, "lending", true), ErrUnauthorized)
	require.ErrorIs(t, node.SetOraclePrice(outsider, "ATOM", big.NewInt(1), 0), ErrUnauthorized)
	require.ErrorIs(t, node.WithdrawReserves(outsider, outsider, big.NewInt(1)), ErrUnauthorized)

	require.NoError(t, node.SetPaused(adminAddr, "lending", true))
	err := node.DepositCollateral(borrowerAddr, "ATOM", big.NewInt(1))
	require.Error(t, err)
	require.NoError(t, node.SetPaused(adminAddr, "lending", false))
}

func TestManualScoreStaysUnverified(t *testing.T) {
	node, _ := newTestNode(t)

	require.NoError(t, node.SetCreditScore(adminAddr, borrowerAddr, 90))
	profile, err := node.GetBorrowerProfile(borrowerAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(90), profile.Score.Score)
	require.False(t, profile.Score.Verified)

	// Verification is required by default, so a manual score resolves to the
	// base tier terms.
	require.Equal(t, uint64(18_000), profile.Terms.CollateralRatioBps)
}
