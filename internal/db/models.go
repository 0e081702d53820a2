package db

import (
	"strings"
	"time"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
	"github.com/shopspring/decimal"
)

// swapColumns is the column order of every swap_events insert.
var swapColumns = []string{
	"block_number",
	"block_hash",
	"transaction_hash",
	"wallet_address",
	"token0_id",
	"token0_symbol",
	"token0_amount",
	"token0_value_in_usd",
	"token0_total_exchanged_usd",
	"token1_id",
	"token1_symbol",
	"token1_amount",
	"token1_value_in_usd",
	"token1_total_exchanged_usd",
	"eth_price_usd",
	"created_at",
}

// swapRow is one swap_events row. token0 is the positive leg.
type swapRow struct {
	BlockNumber     int64
	BlockHash       string
	TransactionHash string
	WalletAddress   string
	Token0          legColumns
	Token1          legColumns
	EthPriceUSD     string
	CreatedAt       time.Time
}

type legColumns struct {
	ID                string
	Symbol            string
	Amount            string
	ValueInUSD        interface{}
	TotalExchangedUSD interface{}
}

func newLegColumns(leg types.Leg, maxValue decimal.Decimal) legColumns {
	return legColumns{
		ID:                strings.ToLower(leg.TokenID),
		Symbol:            leg.Symbol,
		Amount:            Clamp(leg.Amount, maxValue).String(),
		ValueInUSD:        nullableNumeric(leg.ValueInUSD, maxValue),
		TotalExchangedUSD: nullableNumeric(leg.TotalExchangedUSD, maxValue),
	}
}

func newSwapRow(ev types.SwapEvent, maxValue decimal.Decimal) swapRow {
	return swapRow{
		BlockNumber:     int64(ev.BlockNumber),
		BlockHash:       ev.BlockHash,
		TransactionHash: ev.TransactionHash,
		WalletAddress:   ev.FromAddress,
		Token0:          newLegColumns(ev.LegA, maxValue),
		Token1:          newLegColumns(ev.LegB, maxValue),
		EthPriceUSD:     Clamp(ev.EthUSDAtBlock, maxValue).String(),
		CreatedAt:       ev.BlockTime.UTC(),
	}
}

// args returns the row's values in swapColumns order.
func (r swapRow) args() []interface{} {
	return []interface{}{
		r.BlockNumber,
		r.BlockHash,
		r.TransactionHash,
		r.WalletAddress,
		r.Token0.ID,
		r.Token0.Symbol,
		r.Token0.Amount,
		r.Token0.ValueInUSD,
		r.Token0.TotalExchangedUSD,
		r.Token1.ID,
		r.Token1.Symbol,
		r.Token1.Amount,
		r.Token1.ValueInUSD,
		r.Token1.TotalExchangedUSD,
		r.EthPriceUSD,
		r.CreatedAt,
	}
}

func nullableNumeric(v decimal.NullDecimal, maxValue decimal.Decimal) interface{} {
	if !v.Valid {
		return nil
	}
	return Clamp(v.Decimal, maxValue).String()
}
