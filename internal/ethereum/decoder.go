package ethereum

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/errors"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// SwapV2EventSignature is the Keccak256 hash of "Swap(address,uint256,uint256,uint256,uint256,address)"
	SwapV2EventSignature = common.HexToHash("0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822")
	// SwapV3EventSignature is the Keccak256 hash of "Swap(address,address,int256,int256,uint160,uint128,int24)"
	SwapV3EventSignature = common.HexToHash("0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67")
)

// SwapTopics is the topic filter matching both swap shapes.
func SwapTopics() [][]common.Hash {
	return [][]common.Hash{{SwapV3EventSignature, SwapV2EventSignature}}
}

// SwapDecoder extracts signed leg amounts from Uniswap V2 and V3 swap logs.
type SwapDecoder struct {
	v2 abi.ABI
	v3 abi.ABI
}

func NewSwapDecoder() (*SwapDecoder, error) {
	v2, err := abi.JSON(strings.NewReader(UniswapV2PairABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Uniswap V2 Pair ABI: %w", err)
	}
	v3, err := abi.JSON(strings.NewReader(UniswapV3PoolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Uniswap V3 Pool ABI: %w", err)
	}
	return &SwapDecoder{v2: v2, v3: v3}, nil
}

// Recognizes reports whether the topic is one of the two swap signatures.
func (d *SwapDecoder) Recognizes(topic common.Hash) bool {
	return topic == SwapV2EventSignature || topic == SwapV3EventSignature
}

// Decode returns the signed amounts in pool token order.
// Logs with any other primary topic yield errors.ErrDecodeMismatch.
func (d *SwapDecoder) Decode(log types.RawSwapLog) (*types.DecodedSwap, error) {
	switch log.PrimaryTopic() {
	case SwapV3EventSignature:
		values, err := d.v3.Unpack("Swap", log.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack v3 swap event: %w", err)
		}
		amount0, ok0 := values[0].(*big.Int)
		amount1, ok1 := values[1].(*big.Int)
		if !ok0 || !ok1 {
			return nil, fmt.Errorf("unexpected v3 swap amount types %T, %T", values[0], values[1])
		}
		return &types.DecodedSwap{Log: log, Version: types.SwapV3, Amount0: amount0, Amount1: amount1}, nil

	case SwapV2EventSignature:
		values, err := d.v2.Unpack("Swap", log.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack v2 swap event: %w", err)
		}
		amounts := make([]*big.Int, 4)
		for i := range amounts {
			v, ok := values[i].(*big.Int)
			if !ok {
				return nil, fmt.Errorf("unexpected v2 swap amount type %T", values[i])
			}
			amounts[i] = v
		}
		amount0, amount1 := signedV2Amounts(amounts[0], amounts[1], amounts[2], amounts[3])
		return &types.DecodedSwap{Log: log, Version: types.SwapV2, Amount0: amount0, Amount1: amount1}, nil
	}

	return nil, errors.ErrDecodeMismatch
}

// signedV2Amounts folds the four unsigned V2 amounts into a signed pair.
// amount0In == 0 means token0 left the pool.
func signedV2Amounts(amount0In, amount1In, amount0Out, amount1Out *big.Int) (*big.Int, *big.Int) {
	if amount0In.Sign() == 0 {
		return new(big.Int).Neg(amount0Out), new(big.Int).Set(amount1In)
	}
	return new(big.Int).Set(amount0In), new(big.Int).Set(amount1Out)
}

// UniswapV2PairABI carries the Swap event plus the token getters used for metadata.
const UniswapV2PairABI = `[{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"sender","type":"address"},{"indexed":false,"internalType":"uint256","name":"amount0In","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"amount1In","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"amount0Out","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"amount1Out","type":"uint256"},{"indexed":true,"internalType":"address","name":"to","type":"address"}],"name":"Swap","type":"event"},{"constant":true,"inputs":[],"name":"token0","outputs":[{"internalType":"address","name":"","type":"address"}],"payable":false,"stateMutability":"view","type":"function"},{"constant":true,"inputs":[],"name":"token1","outputs":[{"internalType":"address","name":"","type":"address"}],"payable":false,"stateMutability":"view","type":"function"}]`

// UniswapV3PoolABI is the V3 Swap event.
const UniswapV3PoolABI = `[{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"sender","type":"address"},{"indexed":true,"internalType":"address","name":"recipient","type":"address"},{"indexed":false,"internalType":"int256","name":"amount0","type":"int256"},{"indexed":false,"internalType":"int256","name":"amount1","type":"int256"},{"indexed":false,"internalType":"uint160","name":"sqrtPriceX96","type":"uint160"},{"indexed":false,"internalType":"uint128","name":"liquidity","type":"uint128"},{"indexed":false,"internalType":"int24","name":"tick","type":"int24"}],"name":"Swap","type":"event"}]`
