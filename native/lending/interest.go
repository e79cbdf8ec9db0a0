package lending

import "math/big"

// InterestModel encapsulates the parameters that shape how borrow rates react
// to pool utilization, together with the protocol-wide rate guards.
type InterestModel struct {
	// BaseRate is the minimum borrow APR applied when utilization is zero.
	BaseRate *big.Rat
	// Slope1 is the borrow APR increase per unit of utilization up to the
	// kink point.
	Slope1 *big.Rat
	// Slope2 governs the additional APR increase applied when utilization
	// exceeds the kink point.
	Slope2 *big.Rat
	// Kink represents the utilization ratio where the borrow rate slope
	// changes to encourage liquidity.
	Kink *big.Rat
	// OracleRiskPremiumBps is added to the rate while the reference oracle
	// is flagged volatile or stale.
	OracleRiskPremiumBps uint64
	// MaxBorrowRateBps is the hard rate ceiling.
	MaxBorrowRateBps uint64
	// MaxRateChangeBps bounds the rate movement between two consecutive
	// refreshes.
	MaxRateChangeBps uint64
}

// NewInterestModel constructs an interest model from decimal inputs, e.g. a
// 2% base rate is expressed as 0.02 and an 80% kink utilization is 0.8.
func NewInterestModel(baseRate, slope1, slope2, kink float64) *InterestModel {
	model := &InterestModel{
		BaseRate: new(big.Rat),
		Slope1:   new(big.Rat),
		Slope2:   new(big.Rat),
		Kink:     new(big.Rat),
	}
	model.BaseRate.SetFloat64(baseRate)
	model.Slope1.SetFloat64(slope1)
	model.Slope2.SetFloat64(slope2)
	model.Kink.SetFloat64(kink)
	return model
}

// Clone returns a deep copy of the interest model.
func (m *InterestModel) Clone() *InterestModel {
	if m == nil {
		return nil
	}
	clone := &InterestModel{
		BaseRate:             new(big.Rat),
		Slope1:               new(big.Rat),
		Slope2:               new(big.Rat),
		Kink:                 new(big.Rat),
		OracleRiskPremiumBps: m.OracleRiskPremiumBps,
		MaxBorrowRateBps:     m.MaxBorrowRateBps,
		MaxRateChangeBps:     m.MaxRateChangeBps,
	}
	if m.BaseRate != nil {
		clone.BaseRate.Set(m.BaseRate)
	}
	if m.Slope1 != nil {
		clone.Slope1.Set(m.Slope1)
	}
	if m.Slope2 != nil {
		clone.Slope2.Set(m.Slope2)
	}
	if m.Kink != nil {
		clone.Kink.Set(m.Kink)
	}
	return clone
}

// Utilization computes U = totalBorrowed / totalSupplied. When no liquidity
// exists the utilization is defined as zero.
func (m *InterestModel) Utilization(totalBorrowed, totalSupplied *big.Int) *big.Rat {
	if totalBorrowed == nil || totalBorrowed.Sign() == 0 {
		return new(big.Rat)
	}
	if totalSupplied == nil || totalSupplied.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(totalBorrowed, totalSupplied)
}

// BorrowAPR derives the kinked borrow APR for the current utilization.
func (m *InterestModel) BorrowAPR(totalBorrowed, totalSupplied *big.Int) *big.Rat {
	if m == nil {
		return new(big.Rat)
	}
	base := cloneRat(m.BaseRate)
	utilization := m.Utilization(totalBorrowed, totalSupplied)
	if utilization.Sign() == 0 {
		return base
	}

	rate := base
	kink := cloneRat(m.Kink)
	slope1 := cloneRat(m.Slope1)
	slope2 := cloneRat(m.Slope2)
	if kink.Sign() == 0 || utilization.Cmp(kink) <= 0 {
		// Linear region before the kink.
		return rate.Add(rate, new(big.Rat).Mul(slope1, utilization))
	}

	// Rate at the kink using slope1.
	rate.Add(rate, new(big.Rat).Mul(slope1, kink))

	// Additional rate beyond the kink using slope2.
	excess := new(big.Rat).Sub(utilization, kink)
	if excess.Sign() < 0 {
		excess.SetInt64(0)
	}
	return rate.Add(rate, new(big.Rat).Mul(slope2, excess))
}

// RateBps resolves the effective borrow rate in basis points for a position:
// the kinked curve rate scaled by the tier's interest modifier, plus the
// oracle risk premium while the oracle is degraded, clamped to the rate
// ceiling and to the maximum per-refresh movement against prevRateBps.
// The function is a pure view with no side effects.
func (m *InterestModel) RateBps(totalBorrowed, totalSupplied *big.Int, modifierBps uint64, oracleDegraded bool, prevRateBps uint64) uint64 {
	if m == nil {
		return 0
	}
	apr := m.BorrowAPR(totalBorrowed, totalSupplied)
	rate := ratToBps(apr)

	if modifierBps > 0 {
		rate = rate * modifierBps / 10_000
	}
	if oracleDegraded {
		rate += m.OracleRiskPremiumBps
	}
	if m.MaxBorrowRateBps > 0 && rate > m.MaxBorrowRateBps {
		rate = m.MaxBorrowRateBps
	}
	if m.MaxRateChangeBps > 0 && prevRateBps > 0 {
		if rate > prevRateBps && rate-prevRateBps > m.MaxRateChangeBps {
			rate = prevRateBps + m.MaxRateChangeBps
		}
		if rate < prevRateBps && prevRateBps-rate > m.MaxRateChangeBps {
			rate = prevRateBps - m.MaxRateChangeBps
		}
	}
	return rate
}

// ratToBps rounds to the nearest basis point so float-derived curve
// parameters land on their intended values.
func ratToBps(r *big.Rat) uint64 {
	if r == nil || r.Sign() <= 0 {
		return 0
	}
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt64(10_000))
	scaled.Add(scaled, big.NewRat(1, 2))
	out := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	if !out.IsUint64() {
		return 0
	}
	return out.Uint64()
}

func cloneRat(r *big.Rat) *big.Rat {
	if r == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Set(r)
}

// DefaultInterestModel provides a kinked curve with a modest base rate and
// conservative guard rails.
func DefaultInterestModel() *InterestModel {
	model := NewInterestModel(0.02, 0.15, 0.6, 0.8)
	model.OracleRiskPremiumBps = 200
	model.MaxBorrowRateBps = 5_000
	model.MaxRateChangeBps = 500
	return model
}
