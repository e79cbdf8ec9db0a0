package lending

import (
	"errors"
	"math/big"
)

// Tier is one discrete band of borrowing terms keyed by credit score.
type Tier struct {
	// MinScore is the lowest credit score admitted to this tier.
	MinScore uint64
	// CollateralRatioBps is the required collateralization ratio.
	CollateralRatioBps uint64
	// InterestModifierBps scales the pool borrow rate; 10_000 is neutral.
	InterestModifierBps uint64
	// MaxLoanAmount caps the loan size; nil means unconstrained.
	MaxLoanAmount *big.Int
}

// Terms are the borrowing conditions resolved for one account.
type Terms struct {
	CollateralRatioBps  uint64
	InterestModifierBps uint64
	MaxLoanAmount       *big.Int
}

var (
	errEmptyTierTable    = errors.New("lending: tier table must not be empty")
	errTierOrder         = errors.New("lending: tier thresholds must strictly descend")
	errTierNotMonotonic  = errors.New("lending: higher tier has worse terms than a lower one")
	errTierBelowFloor    = errors.New("lending: tier collateral ratio below protocol floor")
	errTierMissingBase   = errors.New("lending: tier table must end with a zero-threshold base tier")
	errTierZeroRatio     = errors.New("lending: tier collateral ratio must be positive")
	errTierZeroModifier  = errors.New("lending: tier interest modifier must be positive")
	errNegativeMaxAmount = errors.New("lending: tier max loan amount must not be negative")
)

// TierTable maps credit scores to borrowing terms. Tiers are ordered by
// strictly descending MinScore and must terminate in a base tier with
// MinScore zero, so the mapping is total. Resolution picks the first tier
// whose threshold the score meets or exceeds.
type TierTable []Tier

// DefaultTierTable is a conservative four-band schedule.
func DefaultTierTable() TierTable {
	return TierTable{
		{MinScore: 80, CollateralRatioBps: 12_000, InterestModifierBps: 8_000, MaxLoanAmount: nil},
		{MinScore: 60, CollateralRatioBps: 13_500, InterestModifierBps: 9_000, MaxLoanAmount: mustAmount("500000000000000000000000")},
		{MinScore: 40, CollateralRatioBps: 15_000, InterestModifierBps: 10_000, MaxLoanAmount: mustAmount("100000000000000000000000")},
		{MinScore: 0, CollateralRatioBps: 18_000, InterestModifierBps: 12_000, MaxLoanAmount: mustAmount("10000000000000000000000")},
	}
}

// Validate checks ordering, the protocol collateral floor and monotonicity: a
// strictly higher score never yields strictly worse terms.
func (t TierTable) Validate(minCollateralRatioBps uint64) error {
	if len(t) == 0 {
		return errEmptyTierTable
	}
	if t[len(t)-1].MinScore != 0 {
		return errTierMissingBase
	}
	for i, tier := range t {
		if tier.CollateralRatioBps == 0 {
			return errTierZeroRatio
		}
		if tier.InterestModifierBps == 0 {
			return errTierZeroModifier
		}
		if tier.CollateralRatioBps < minCollateralRatioBps {
			return errTierBelowFloor
		}
		if tier.MaxLoanAmount != nil && tier.MaxLoanAmount.Sign() < 0 {
			return errNegativeMaxAmount
		}
		if i == 0 {
			continue
		}
		prev := t[i-1]
		if tier.MinScore >= prev.MinScore {
			return errTierOrder
		}
		// The lower tier must not have better terms than the one above it.
		if tier.CollateralRatioBps < prev.CollateralRatioBps {
			return errTierNotMonotonic
		}
		if tier.InterestModifierBps < prev.InterestModifierBps {
			return errTierNotMonotonic
		}
		if !maxLoanGTE(prev.MaxLoanAmount, tier.MaxLoanAmount) {
			return errTierNotMonotonic
		}
	}
	return nil
}

// Terms resolves the borrowing terms for a credit score. When verification is
// required and the account is unverified, the base tier applies regardless of
// score.
func (t TierTable) Terms(score uint64, verified, requireVerification bool) Terms {
	if len(t) == 0 {
		return Terms{}
	}
	if requireVerification && !verified {
		return t[len(t)-1].terms()
	}
	for _, tier := range t {
		if score >= tier.MinScore {
			return tier.terms()
		}
	}
	return t[len(t)-1].terms()
}

func (tier Tier) terms() Terms {
	terms := Terms{
		CollateralRatioBps:  tier.CollateralRatioBps,
		InterestModifierBps: tier.InterestModifierBps,
	}
	if tier.MaxLoanAmount != nil {
		terms.MaxLoanAmount = new(big.Int).Set(tier.MaxLoanAmount)
	}
	return terms
}

// maxLoanGTE reports whether a (nil = unlimited) is at least b.
func maxLoanGTE(a, b *big.Int) bool {
	if a == nil {
		return true
	}
	if b == nil {
		return false
	}
	return a.Cmp(b) >= 0
}

func mustAmount(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}
