package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// Chainlink ETH/USD feeds answer with 8 decimals.
const aggregatorDecimals = 8

// TransactionSender recovers the from address of a transaction.
func (s *EthereumServiceImpl) TransactionSender(ctx context.Context, txHash common.Hash) (common.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	tx, _, err := s.client.TransactionByHash(ctx, txHash)
	if err != nil {
		return common.Address{}, &errors.EthereumError{Operation: "get transaction", Err: err}
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return common.Address{}, &errors.EthereumError{Operation: "recover sender", Err: err}
	}
	return from, nil
}

// BlockTime returns the header timestamp of a block.
func (s *EthereumServiceImpl) BlockTime(ctx context.Context, blockNumber uint64) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return time.Time{}, &errors.EthereumError{Operation: "get block header", Err: err}
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// NativeUSD fetches the latest ETH/USD answer from the Chainlink price feed.
func (s *EthereumServiceImpl) NativeUSD(ctx context.Context) (decimal.Decimal, error) {
	out, err := s.call(ctx, s.aggregatorABI, s.priceFeed, "latestRoundData")
	if err != nil {
		return decimal.Zero, err
	}
	if len(out) < 2 {
		return decimal.Zero, &errors.EthereumError{Operation: "latestRoundData", Err: fmt.Errorf("got %d outputs", len(out))}
	}
	answer, ok := out[1].(*big.Int)
	if !ok || answer.Sign() <= 0 {
		return decimal.Zero, &errors.EthereumError{Operation: "latestRoundData", Err: errors.ErrPriceUnresolved}
	}
	return decimal.NewFromBigInt(answer, -aggregatorDecimals), nil
}
