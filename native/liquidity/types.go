package liquidity

import "math/big"

// Withdrawal is a pending two-phase withdrawal request. The locked amount
// stops earning interest when the request is filed and is released by
// CompleteWithdrawal once the cooldown elapses, or early with a penalty.
type Withdrawal struct {
	Amount      *big.Int
	RequestedAt uint64
}

// Position maintains the lender-side state for one account.
type Position struct {
	Address           [20]byte
	Principal         *big.Int
	PendingInterest   *big.Int
	EarnedInterest    *big.Int
	FirstDeposit      uint64
	LastDistribution  uint64
	PendingWithdrawal *Withdrawal `rlp:"nil"`
}

// EnsureDefaults populates nil amounts so state encoding stays safe.
func (p *Position) EnsureDefaults() {
	if p.Principal == nil {
		p.Principal = big.NewInt(0)
	}
	if p.PendingInterest == nil {
		p.PendingInterest = big.NewInt(0)
	}
	if p.EarnedInterest == nil {
		p.EarnedInterest = big.NewInt(0)
	}
	if p.PendingWithdrawal != nil && p.PendingWithdrawal.Amount == nil {
		p.PendingWithdrawal.Amount = big.NewInt(0)
	}
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{
		Address:          p.Address,
		FirstDeposit:     p.FirstDeposit,
		LastDistribution: p.LastDistribution,
	}
	if p.Principal != nil {
		clone.Principal = new(big.Int).Set(p.Principal)
	}
	if p.PendingInterest != nil {
		clone.PendingInterest = new(big.Int).Set(p.PendingInterest)
	}
	if p.EarnedInterest != nil {
		clone.EarnedInterest = new(big.Int).Set(p.EarnedInterest)
	}
	if p.PendingWithdrawal != nil {
		withdrawal := &Withdrawal{RequestedAt: p.PendingWithdrawal.RequestedAt}
		if p.PendingWithdrawal.Amount != nil {
			withdrawal.Amount = new(big.Int).Set(p.PendingWithdrawal.Amount)
		}
		clone.PendingWithdrawal = withdrawal
	}
	return clone
}

// accrualBase is the principal slice still earning interest: amounts locked
// behind a withdrawal request stop accruing.
func (p *Position) accrualBase() *big.Int {
	base := new(big.Int)
	if p.Principal != nil {
		base.Set(p.Principal)
	}
	if p.PendingWithdrawal != nil && p.PendingWithdrawal.Amount != nil {
		base.Sub(base, p.PendingWithdrawal.Amount)
	}
	if base.Sign() < 0 {
		return big.NewInt(0)
	}
	return base
}

// APRTier grants a lender rate once both the balance and tenure requirements
// are met.
type APRTier struct {
	// MinPrincipal is the balance threshold; nil or zero admits everyone.
	MinPrincipal *big.Int
	// MinTenureSeconds is the time-since-first-deposit threshold.
	MinTenureSeconds uint64
	// RateBps is the annual lender rate for this tier.
	RateBps uint64
}

// Params tunes the lender-side schedule.
type Params struct {
	// Tiers is ordered best-first; the first tier whose requirements the
	// lender meets applies. The table must end with a base tier that admits
	// everyone.
	Tiers []APRTier
	// CooldownSeconds is the mandatory delay between a withdrawal request
	// and its completion.
	CooldownSeconds uint64
	// EarlyExitPenaltyBps is deducted from principal when a withdrawal is
	// taken before the cooldown elapses.
	EarlyExitPenaltyBps uint64
}

// DefaultParams mirrors the production lender schedule: a seven-day cooldown
// and a three-band APR ladder.
func DefaultParams() Params {
	return Params{
		Tiers: []APRTier{
			{MinPrincipal: mustAmount("100000000000000000000000"), MinTenureSeconds: 180 * 24 * 60 * 60, RateBps: 800},
			{MinPrincipal: mustAmount("10000000000000000000000"), MinTenureSeconds: 30 * 24 * 60 * 60, RateBps: 600},
			{MinPrincipal: nil, MinTenureSeconds: 0, RateBps: 400},
		},
		CooldownSeconds:     7 * 24 * 60 * 60,
		EarlyExitPenaltyBps: 500,
	}
}

// rateFor resolves the APR the lender currently earns.
func (p Params) rateFor(principal *big.Int, tenure uint64) uint64 {
	for _, tier := range p.Tiers {
		if tier.MinPrincipal != nil && tier.MinPrincipal.Sign() > 0 {
			if principal == nil || principal.Cmp(tier.MinPrincipal) < 0 {
				continue
			}
		}
		if tenure < tier.MinTenureSeconds {
			continue
		}
		return tier.RateBps
	}
	return 0
}

func mustAmount(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}
