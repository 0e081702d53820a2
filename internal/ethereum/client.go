package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/pkg/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// callTimeout bounds every single RPC round trip.
const callTimeout = 15 * time.Second

// EthereumClient is the subset of ethclient.Client the tracker reads from.
type EthereumClient interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	Close()
}

// LogSubscriber is implemented by ethclient.Client dialled over websocket.
type LogSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	Close()
}

type ClientCreator func(url string) (EthereumClient, error)

func defaultClientCreator(url string) (EthereumClient, error) {
	return ethclient.Dial(url)
}

// DialClient connects to an RPC endpoint. A nil creator dials with ethclient.
func DialClient(url string, creator ClientCreator) (EthereumClient, error) {
	if creator == nil {
		creator = defaultClientCreator
	}
	client, err := creator(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the Ethereum client: %w", err)
	}
	logger.Info("Successfully connected to Ethereum client")
	return client, nil
}

// DialSubscriber connects a websocket endpoint for log subscriptions.
func DialSubscriber(ctx context.Context, url string) (LogSubscriber, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the Ethereum websocket: %w", err)
	}
	return client, nil
}
