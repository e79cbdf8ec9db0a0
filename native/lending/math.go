package lending

import "math/big"

var basisPoints = big.NewInt(10_000)

const secondsPerYear = 31_536_000

// bpsShare returns amount * bps / 10_000.
func bpsShare(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() == 0 || bps == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return share.Quo(share, basisPoints)
}

// simpleInterest computes debt * rateBps * elapsed / (10_000 * secondsPerYear).
func simpleInterest(debt *big.Int, rateBps uint64, elapsed uint64) *big.Int {
	if debt == nil || debt.Sign() == 0 || rateBps == 0 || elapsed == 0 {
		return big.NewInt(0)
	}
	interest := new(big.Int).Mul(debt, new(big.Int).SetUint64(rateBps))
	interest.Mul(interest, new(big.Int).SetUint64(elapsed))
	denom := new(big.Int).Mul(basisPoints, big.NewInt(secondsPerYear))
	return interest.Quo(interest, denom)
}

// healthRatioBps returns collateralValue * 10_000 / debt, or a zero flag when
// there is no debt.
func healthRatioBps(collateralValue, debt *big.Int) (uint64, bool) {
	if debt == nil || debt.Sign() == 0 {
		return 0, false
	}
	if collateralValue == nil || collateralValue.Sign() <= 0 {
		return 0, true
	}
	ratio := new(big.Int).Mul(collateralValue, basisPoints)
	ratio.Quo(ratio, debt)
	if !ratio.IsUint64() {
		return ^uint64(0), true
	}
	return ratio.Uint64(), true
}

// meetsRatio reports whether collateralValue * 10_000 >= debt * ratioBps.
func meetsRatio(collateralValue, debt *big.Int, ratioBps uint64) bool {
	if debt == nil || debt.Sign() == 0 {
		return true
	}
	if collateralValue == nil || collateralValue.Sign() <= 0 {
		return false
	}
	lhs := new(big.Int).Mul(collateralValue, basisPoints)
	rhs := new(big.Int).Mul(debt, new(big.Int).SetUint64(ratioBps))
	return lhs.Cmp(rhs) >= 0
}
