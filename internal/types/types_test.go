package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRawSwapLogFromEthLog(t *testing.T) {
	topic := common.HexToHash("0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822")
	l := ethtypes.Log{
		Address:     common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"),
		Topics:      []common.Hash{topic},
		Data:        []byte{1, 2, 3},
		BlockNumber: 19000000,
		TxHash:      common.HexToHash("0xABC"),
		BlockHash:   common.HexToHash("0xDEF"),
		Index:       7,
	}

	raw := RawSwapLogFromEthLog(l)
	l.Data[0] = 9

	assert.Equal(t, uint64(19000000), raw.BlockNumber)
	assert.Equal(t, uint(7), raw.LogIndex)
	assert.Equal(t, topic, raw.PrimaryTopic())
	assert.Equal(t, []byte{1, 2, 3}, raw.Data)
	assert.Equal(t, common.Address{}, raw.FromAddress)
	assert.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000abc:7", raw.Key())
}

func TestPrimaryTopicEmpty(t *testing.T) {
	assert.Equal(t, common.Hash{}, RawSwapLog{}.PrimaryTopic())
}

func TestLegWithPrice(t *testing.T) {
	leg := Leg{TokenID: "0xa", Symbol: "A", Amount: decimal.NewFromFloat(2.5)}
	assert.False(t, leg.Priced())

	priced := leg.WithPrice(decimal.NewFromInt(4))

	assert.False(t, leg.Priced())
	assert.True(t, priced.Priced())
	assert.True(t, decimal.NewFromInt(4).Equal(priced.ValueInUSD.Decimal))
	assert.True(t, decimal.NewFromInt(10).Equal(priced.TotalExchangedUSD.Decimal))
}

func TestSwapVersionString(t *testing.T) {
	assert.Equal(t, "v2", SwapV2.String())
	assert.Equal(t, "v3", SwapV3.String())
	assert.Equal(t, "unknown", SwapVersion(0).String())
}
