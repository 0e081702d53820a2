package ethereum

import (
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/errors"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
	"github.com/shopspring/decimal"
)

// Normalize converts the decoded amounts with each token's decimals and orders the legs:
// the positive leg becomes LegA, the other leg's absolute amount LegB.
func Normalize(swap *types.DecodedSwap, pair types.PairToken) (types.Leg, types.Leg, error) {
	if pair.Token0.ID == pair.Token1.ID {
		return types.Leg{}, types.Leg{}, errors.ErrSelfSwap
	}

	amount0 := decimal.NewFromBigInt(swap.Amount0, -int32(pair.Token0.Decimals))
	amount1 := decimal.NewFromBigInt(swap.Amount1, -int32(pair.Token1.Decimals))

	leg0 := types.Leg{TokenID: pair.Token0.ID, Symbol: pair.Token0.Symbol, Amount: amount0}
	leg1 := types.Leg{TokenID: pair.Token1.ID, Symbol: pair.Token1.Symbol, Amount: amount1}

	switch {
	case amount0.IsPositive():
		leg1.Amount = amount1.Abs()
		return leg0, leg1, nil
	case amount1.IsPositive():
		leg0.Amount = amount0.Abs()
		return leg1, leg0, nil
	default:
		return types.Leg{}, types.Leg{}, errors.ErrDegenerateSwap
	}
}
