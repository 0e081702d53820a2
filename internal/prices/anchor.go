package prices

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/errors"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/pkg/logger"
	"github.com/shopspring/decimal"
)

// AnchorSource fetches the current USD price of the native asset.
type AnchorSource interface {
	NativeUSD(ctx context.Context) (decimal.Decimal, error)
}

// OracleAnchor prices the native asset through an Oracle, using its wrapped token.
type OracleAnchor struct {
	Oracle Oracle
	Token  string
}

func (a OracleAnchor) NativeUSD(ctx context.Context) (decimal.Decimal, error) {
	price := a.Oracle.USDPrice(ctx, a.Token)
	if !price.IsPositive() {
		return decimal.Zero, errors.ErrPriceUnresolved
	}
	return price, nil
}

// FallbackAnchor asks each source in order and returns the first positive price.
type FallbackAnchor []AnchorSource

func (f FallbackAnchor) NativeUSD(ctx context.Context) (decimal.Decimal, error) {
	var errs []string
	for _, src := range f {
		price, err := src.NativeUSD(ctx)
		if err == nil && price.IsPositive() {
			return price, nil
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s", errors.ErrPriceUnresolved, strings.Join(errs, "; "))
}

// AnchorTracker caches the native USD price and refetches it once the
// processed block is refreshBlocks past the block of the last good fetch.
type AnchorTracker struct {
	source        AnchorSource
	refreshBlocks uint64

	mu        sync.Mutex
	price     decimal.Decimal
	lastBlock uint64
	known     bool
}

func NewAnchorTracker(source AnchorSource, refreshBlocks uint64) *AnchorTracker {
	if refreshBlocks == 0 {
		refreshBlocks = 1
	}
	return &AnchorTracker{source: source, refreshBlocks: refreshBlocks}
}

// PriceAt returns the anchor price to use for block. A failed refresh keeps the
// previous price; errors.ErrPriceUnresolved means no price was ever obtained.
func (t *AnchorTracker) PriceAt(ctx context.Context, block uint64) (decimal.Decimal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.known || (block > t.lastBlock && block-t.lastBlock >= t.refreshBlocks) {
		price, err := t.source.NativeUSD(ctx)
		switch {
		case err != nil:
			logger.Warn("Refreshing ETH price at block %d failed: %v", block, err)
		case !price.IsPositive():
			logger.Warn("Refreshing ETH price at block %d returned %s", block, price)
		default:
			t.price = price
			t.lastBlock = block
			t.known = true
		}
	}

	if !t.known {
		return decimal.Zero, errors.ErrPriceUnresolved
	}
	return t.price, nil
}

// Latest returns the cached price and the block it was fetched at.
func (t *AnchorTracker) Latest() (decimal.Decimal, uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.price, t.lastBlock, t.known
}
