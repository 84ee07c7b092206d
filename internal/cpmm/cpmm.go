// Package cpmm implements the constant-product market maker accounting for
// two-asset liquidity pools: LP token minting, redemption splits, and
// fee-bearing swap pricing.
//
// Every function here is pure: reserves and supplies are passed as
// arguments, read by the caller from the ledger, and nothing is stored.
// All arithmetic goes through the checked kernel in internal/amount; any
// overflow, underflow, or division by zero aborts with
// amount.ErrMathOverflow.
//
// Intermediate divisions are computed at a fixed scale of 1000: scale up
// before the truncating division, scale back down after the multiply, so
// rounding error is bounded to one scale unit rather than compounding
// across two truncations.
package cpmm

import (
	"github.com/cascadex/pool-engine/internal/amount"
)

// ScaleFactor is the fixed-point scale for intermediate ratio divisions.
const ScaleFactor = 1000

// Protocol fee, expressed as a fraction of the swap output retained by the
// pool: FeeNumerator/FeeDenominator. 100/1000 = 10%. Fixed per deployment;
// there is no runtime fee governance.
const (
	DefaultFeeNumerator   = 100
	DefaultFeeDenominator = 1000
)

// InitialLPTokens computes the LP tokens minted to the first depositor of
// a fresh pool: floor(sqrt(amountA * amountB)). The geometric mean makes
// the initial LP share independent of asset order and ties LP value to the
// product invariant the swap pricing preserves.
func InitialLPTokens(amountA, amountB amount.Amount) (amount.Amount, error) {
	k, err := amountA.Mul(amountB)
	if err != nil {
		return amount.Amount{}, err
	}
	return k.Sqrt(), nil
}

// ProportionalLPTokens computes the LP tokens minted for a deposit into an
// already-funded pool: deposit * supply / reserve, at the fixed scale.
// The reserve must be the pool's pre-transfer balance of the deposited
// asset, and the supply the pre-mint LP issuance. Zero reserve or supply
// is guarded to 1.
func ProportionalLPTokens(deposit, reserve, supply amount.Amount) (amount.Amount, error) {
	reserve = reserve.OrOne()
	supply = supply.OrOne()

	scaled, err := deposit.Mul(amount.New(ScaleFactor))
	if err != nil {
		return amount.Amount{}, err
	}
	share, err := scaled.Div(reserve)
	if err != nil {
		return amount.Amount{}, err
	}
	lp, err := share.Mul(supply)
	if err != nil {
		return amount.Amount{}, err
	}
	return lp.Div(amount.New(ScaleFactor))
}

// SecondAssetAmount derives the amount of the second asset that keeps a
// deposit of depositA at the pool's current reserve ratio:
// depositA * reserveB / reserveA, at the fixed scale. Liquidity providers
// never guess the matching amount themselves.
func SecondAssetAmount(depositA, reserveA, reserveB amount.Amount) (amount.Amount, error) {
	reserveA = reserveA.OrOne()
	reserveB = reserveB.OrOne()

	scaledA, err := reserveA.Mul(amount.New(ScaleFactor))
	if err != nil {
		return amount.Amount{}, err
	}
	ratio, err := scaledA.Div(reserveB)
	if err != nil {
		return amount.Amount{}, err
	}
	scaledDeposit, err := depositA.Mul(amount.New(ScaleFactor))
	if err != nil {
		return amount.Amount{}, err
	}
	return scaledDeposit.Div(ratio)
}

// SwapOutput computes the output of a constant-product swap with the
// protocol fee retained in the pool:
//
//	k         = reserveIn * reserveOut
//	idealOut  = reserveOut - k/(reserveIn + amountIn)
//	amountOut = idealOut * (feeDen - feeNum) / feeDen
//
// Because the fee stays in the pool as extra reserve, the realized product
// (reserveIn + amountIn) * (reserveOut - amountOut) strictly exceeds k for
// every positive amountIn whenever feeNum > 0, and equals it only in the
// zero-fee limit. Zero reserves are guarded to 1.
func SwapOutput(amountIn, reserveIn, reserveOut amount.Amount, feeNum, feeDen uint64) (amount.Amount, error) {
	reserveIn = reserveIn.OrOne()
	reserveOut = reserveOut.OrOne()

	retained, err := amount.New(feeDen).Sub(amount.New(feeNum))
	if err != nil {
		return amount.Amount{}, err
	}
	k, err := reserveIn.Mul(reserveOut)
	if err != nil {
		return amount.Amount{}, err
	}
	newReserveIn, err := reserveIn.Add(amountIn)
	if err != nil {
		return amount.Amount{}, err
	}
	idealReserveOut, err := k.Div(newReserveIn)
	if err != nil {
		return amount.Amount{}, err
	}
	// Cannot go negative for positive amountIn under correct inputs, but
	// the subtraction is still checked.
	decrease, err := reserveOut.Sub(idealReserveOut)
	if err != nil {
		return amount.Amount{}, err
	}
	gross, err := decrease.Mul(retained)
	if err != nil {
		return amount.Amount{}, err
	}
	return gross.Div(amount.New(feeDen))
}

// RedemptionSplit computes the pair of reserve amounts paid out for
// burning lpTokens of a pool's LP supply: lpTokens * reserve / supply for
// each side, at the fixed scale. Redeeming the full supply yields the full
// reserves up to scale truncation; redeeming zero yields (0, 0).
func RedemptionSplit(lpTokens, supply, reserveA, reserveB amount.Amount) (amount.Amount, amount.Amount, error) {
	supply = supply.OrOne()
	reserveA = reserveA.OrOne()
	reserveB = reserveB.OrOne()

	scaled, err := lpTokens.Mul(amount.New(ScaleFactor))
	if err != nil {
		return amount.Amount{}, amount.Amount{}, err
	}
	share, err := scaled.Div(supply)
	if err != nil {
		return amount.Amount{}, amount.Amount{}, err
	}

	grossA, err := share.Mul(reserveA)
	if err != nil {
		return amount.Amount{}, amount.Amount{}, err
	}
	outA, err := grossA.Div(amount.New(ScaleFactor))
	if err != nil {
		return amount.Amount{}, amount.Amount{}, err
	}

	grossB, err := share.Mul(reserveB)
	if err != nil {
		return amount.Amount{}, amount.Amount{}, err
	}
	outB, err := grossB.Div(amount.New(ScaleFactor))
	if err != nil {
		return amount.Amount{}, amount.Amount{}, err
	}
	return outA, outB, nil
}
