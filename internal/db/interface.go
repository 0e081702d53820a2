package db

import (
	"context"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
)

// DBService interface defines the methods we need from the database
type DBService interface {
	PersistSwaps(ctx context.Context, events []types.SwapEvent) ([]types.SwapEvent, error)
	LatestBlock(ctx context.Context) (uint64, error)
	Ping(ctx context.Context) error
	Close() error
}
