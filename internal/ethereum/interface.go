package ethereum

import (
	"context"
	"time"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// EthereumService is everything the pipeline reads from the chain.
type EthereumService interface {
	PairTokens(ctx context.Context, pool common.Address) (token0, token1 common.Address, err error)
	TokenMetadata(ctx context.Context, token common.Address) (types.Token, error)
	TransactionSender(ctx context.Context, txHash common.Hash) (common.Address, error)
	BlockTime(ctx context.Context, blockNumber uint64) (time.Time, error)
	NativeUSD(ctx context.Context) (decimal.Decimal, error)
	Close()
}
