package pipeline

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/errors"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/ethereum"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/metrics"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

type Decoder interface {
	Decode(log types.RawSwapLog) (*types.DecodedSwap, error)
}

type MetadataResolver interface {
	ResolvePair(ctx context.Context, pool common.Address) (types.PairToken, error)
}

type ChainReader interface {
	TransactionSender(ctx context.Context, txHash common.Hash) (common.Address, error)
	BlockTime(ctx context.Context, blockNumber uint64) (time.Time, error)
}

type AnchorPricer interface {
	PriceAt(ctx context.Context, block uint64) (decimal.Decimal, error)
}

type PriceResolver interface {
	Resolve(ctx context.Context, events []types.SwapEvent, anchorUSD decimal.Decimal) []types.SwapEvent
}

// Persister writes events and returns the ones that made it to the store.
type Persister interface {
	PersistSwaps(ctx context.Context, events []types.SwapEvent) ([]types.SwapEvent, error)
}

// Publisher fans persisted swaps out to subscribers.
type Publisher interface {
	PublishSwaps(ctx context.Context, block uint64, events []types.SwapEvent) error
}

type ProcessorDeps struct {
	Decoder    Decoder
	Metadata   MetadataResolver
	Chain      ChainReader
	Anchor     AnchorPricer
	Prices     PriceResolver
	Persister  Persister
	Publishers []Publisher
	// Metrics defaults to an unregistered set.
	Metrics *metrics.Metrics
}

// Processor turns one block of raw logs into persisted, USD-valued swaps.
type Processor struct {
	ProcessorDeps
	now func() time.Time
}

func NewProcessor(deps ProcessorDeps) *Processor {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	return &Processor{ProcessorDeps: deps, now: time.Now}
}

// ProcessBlock implements BlockHandler.
func (p *Processor) ProcessBlock(ctx context.Context, block Block) error {
	timer := prometheus.NewTimer(p.Metrics.BlockProcessingDur)
	defer timer.ObserveDuration()

	started := p.now()
	logger.Info("Started parsing block %d (%d logs)", block.Number, len(block.Logs))

	anchor, err := p.Anchor.PriceAt(ctx, block.Number)
	if err != nil {
		logger.Warn("Skipping block %d: no ETH price available", block.Number)
		return nil
	}

	events := p.buildEvents(ctx, block)
	if len(events) == 0 {
		logger.Info("Block %d has no usable swaps", block.Number)
		return nil
	}

	blockTime := p.blockTime(ctx, block)
	for i := range events {
		events[i].EthUSDAtBlock = anchor
		events[i].BlockTime = blockTime
	}

	valued := p.Prices.Resolve(ctx, events, anchor)

	persisted, persistErr := p.Persister.PersistSwaps(ctx, valued)
	p.Metrics.PersistedSwaps.Add(float64(len(persisted)))
	if len(persisted) > 0 {
		for _, pub := range p.Publishers {
			if err := pub.PublishSwaps(ctx, block.Number, persisted); err != nil {
				logger.Warn("Publishing block %d failed: %v", block.Number, err)
			}
		}
	}

	logger.Info("Finished block %d: %d swaps, %d persisted in %s",
		block.Number, len(valued), len(persisted), p.now().Sub(started))
	return persistErr
}

func (p *Processor) buildEvents(ctx context.Context, block Block) []types.SwapEvent {
	var (
		events  []types.SwapEvent
		curTx   common.Hash
		curFrom common.Address
		haveTx  bool
	)

	for _, log := range block.Logs {
		decoded, err := p.Decoder.Decode(log)
		if err != nil {
			if !stderrors.Is(err, errors.ErrDecodeMismatch) {
				logger.Warn("Decoding log %s failed: %v", log.Key(), err)
			}
			continue
		}

		pair, err := p.Metadata.ResolvePair(ctx, log.PoolAddress)
		if err != nil {
			logger.Warn("Skipping log %s: %v", log.Key(), err)
			continue
		}

		legA, legB, err := ethereum.Normalize(decoded, pair)
		if err != nil {
			logger.Debug("Skipping log %s: %v", log.Key(), err)
			continue
		}

		from := log.FromAddress
		if from == (common.Address{}) {
			// consecutive logs of one transaction share the sender lookup
			if !haveTx || log.TransactionHash != curTx {
				curTx, haveTx = log.TransactionHash, true
				curFrom, err = p.Chain.TransactionSender(ctx, log.TransactionHash)
				if err != nil {
					logger.Warn("Resolving sender of %s failed: %v", log.TransactionHash.Hex(), err)
					curFrom = common.Address{}
				}
			}
			from = curFrom
		}

		events = append(events, types.SwapEvent{
			BlockNumber:     log.BlockNumber,
			BlockHash:       strings.ToLower(log.BlockHash.Hex()),
			TransactionHash: strings.ToLower(log.TransactionHash.Hex()),
			LogIndex:        log.LogIndex,
			FromAddress:     from.Hex(),
			LegA:            legA,
			LegB:            legB,
		})
	}
	return events
}

// blockTime prefers the timestamp carried by the transport, then the block
// header, then the time the block's first log arrived.
func (p *Processor) blockTime(ctx context.Context, block Block) time.Time {
	for _, log := range block.Logs {
		if log.BlockTimestamp != 0 {
			return time.Unix(int64(log.BlockTimestamp), 0).UTC()
		}
	}

	ts, err := p.Chain.BlockTime(ctx, block.Number)
	if err == nil {
		return ts
	}
	logger.Warn("Fetching timestamp of block %d failed: %v", block.Number, err)

	if !block.ArrivedAt.IsZero() {
		return block.ArrivedAt.UTC()
	}
	return p.now().UTC()
}
