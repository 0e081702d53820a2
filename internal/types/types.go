package types

import (
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// SwapVersion identifies which Uniswap event shape a log was decoded with.
type SwapVersion int

const (
	SwapV2 SwapVersion = iota + 2
	SwapV3
)

func (v SwapVersion) String() string {
	switch v {
	case SwapV2:
		return "v2"
	case SwapV3:
		return "v3"
	default:
		return "unknown"
	}
}

// Token is resolved ERC-20 metadata. ID is the lowercase hex address.
type Token struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// PairToken holds the two legs of a pool.
type PairToken struct {
	Token0 Token `json:"token0"`
	Token1 Token `json:"token1"`
}

// RawSwapLog is a log as delivered by a transport, before decoding.
type RawSwapLog struct {
	BlockNumber     uint64
	BlockHash       common.Hash
	TransactionHash common.Hash
	LogIndex        uint
	PoolAddress     common.Address
	Topics          []common.Hash
	Data            []byte
	// FromAddress is the transaction sender; zero until resolved.
	FromAddress common.Address
	// BlockTimestamp is unix seconds, 0 when the transport did not carry it.
	BlockTimestamp uint64
}

// RawSwapLogFromEthLog converts a go-ethereum log.
func RawSwapLogFromEthLog(l ethtypes.Log) RawSwapLog {
	topics := make([]common.Hash, len(l.Topics))
	copy(topics, l.Topics)
	data := make([]byte, len(l.Data))
	copy(data, l.Data)
	return RawSwapLog{
		BlockNumber:     l.BlockNumber,
		BlockHash:       l.BlockHash,
		TransactionHash: l.TxHash,
		LogIndex:        l.Index,
		PoolAddress:     l.Address,
		Topics:          topics,
		Data:            data,
	}
}

// Key identifies a log for deduplication.
func (l RawSwapLog) Key() string {
	return strings.ToLower(l.TransactionHash.Hex()) + ":" + strconv.FormatUint(uint64(l.LogIndex), 10)
}

// PrimaryTopic returns topics[0] or the zero hash.
func (l RawSwapLog) PrimaryTopic() common.Hash {
	if len(l.Topics) == 0 {
		return common.Hash{}
	}
	return l.Topics[0]
}

// DecodedSwap carries the signed raw amounts of a swap, in pool token order.
type DecodedSwap struct {
	Log     RawSwapLog
	Version SwapVersion
	Amount0 *big.Int
	Amount1 *big.Int
}

// Leg is one side of a normalized swap.
type Leg struct {
	TokenID           string              `json:"token_id"`
	Symbol            string              `json:"symbol"`
	Amount            decimal.Decimal     `json:"amount"`
	ValueInUSD        decimal.NullDecimal `json:"value_in_usd"`
	TotalExchangedUSD decimal.NullDecimal `json:"total_exchanged_usd"`
}

// Priced reports whether the leg carries a USD valuation.
func (l Leg) Priced() bool {
	return l.ValueInUSD.Valid
}

// WithPrice returns a copy of the leg valued at price per unit.
func (l Leg) WithPrice(price decimal.Decimal) Leg {
	l.ValueInUSD = decimal.NewNullDecimal(price)
	l.TotalExchangedUSD = decimal.NewNullDecimal(price.Mul(l.Amount))
	return l
}

// SwapEvent is an enriched swap ready for persistence. LegA is the positive leg.
type SwapEvent struct {
	BlockNumber     uint64          `json:"block_number"`
	BlockHash       string          `json:"block_hash"`
	TransactionHash string          `json:"transaction_hash"`
	LogIndex        uint            `json:"log_index"`
	FromAddress     string          `json:"wallet_address"`
	LegA            Leg             `json:"token0"`
	LegB            Leg             `json:"token1"`
	EthUSDAtBlock   decimal.Decimal `json:"eth_price_usd"`
	BlockTime       time.Time       `json:"created_at"`
}
