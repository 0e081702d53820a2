package prices

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAnchorSource struct {
	mock.Mock
}

func (m *MockAnchorSource) NativeUSD(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called()
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func TestAnchorTrackerRefreshesByBlockDistance(t *testing.T) {
	source := new(MockAnchorSource)
	source.On("NativeUSD").Return(d("2000"), nil).Once()
	source.On("NativeUSD").Return(d("2100"), nil).Once()

	tracker := NewAnchorTracker(source, 2)
	ctx := context.Background()

	price, err := tracker.PriceAt(ctx, 100)
	require.NoError(t, err)
	assert.True(t, price.Equal(d("2000")))

	price, err = tracker.PriceAt(ctx, 101)
	require.NoError(t, err)
	assert.True(t, price.Equal(d("2000")))

	price, err = tracker.PriceAt(ctx, 102)
	require.NoError(t, err)
	assert.True(t, price.Equal(d("2100")))

	_, block, known := tracker.Latest()
	assert.True(t, known)
	assert.Equal(t, uint64(102), block)
	source.AssertExpectations(t)
}

func TestAnchorTrackerKeepsPreviousPriceOnFailure(t *testing.T) {
	source := new(MockAnchorSource)
	source.On("NativeUSD").Return(d("2000"), nil).Once()
	source.On("NativeUSD").Return(decimal.Zero, stderrors.New("feed down")).Once()
	source.On("NativeUSD").Return(decimal.Zero, nil).Once()

	tracker := NewAnchorTracker(source, 1)
	ctx := context.Background()

	for _, block := range []uint64{10, 11, 12} {
		price, err := tracker.PriceAt(ctx, block)
		require.NoError(t, err)
		assert.True(t, price.Equal(d("2000")))
	}
	_, block, _ := tracker.Latest()
	assert.Equal(t, uint64(10), block)
}

func TestAnchorTrackerWithoutAnyPrice(t *testing.T) {
	source := new(MockAnchorSource)
	source.On("NativeUSD").Return(decimal.Zero, stderrors.New("feed down"))

	tracker := NewAnchorTracker(source, 1)
	_, err := tracker.PriceAt(context.Background(), 10)
	assert.ErrorIs(t, err, errors.ErrPriceUnresolved)

	// every block retries until a price is known
	_, err = tracker.PriceAt(context.Background(), 10)
	assert.ErrorIs(t, err, errors.ErrPriceUnresolved)
	source.AssertNumberOfCalls(t, "NativeUSD", 2)
}

func TestAnchorTrackerIgnoresOlderBlocks(t *testing.T) {
	source := new(MockAnchorSource)
	source.On("NativeUSD").Return(d("2000"), nil).Once()

	tracker := NewAnchorTracker(source, 1)
	_, err := tracker.PriceAt(context.Background(), 50)
	require.NoError(t, err)
	price, err := tracker.PriceAt(context.Background(), 49)
	require.NoError(t, err)
	assert.True(t, price.Equal(d("2000")))
	source.AssertExpectations(t)
}

func TestFallbackAnchor(t *testing.T) {
	primary := new(MockAnchorSource)
	primary.On("NativeUSD").Return(decimal.Zero, stderrors.New("call reverted"))
	oracle := new(MockOracle)
	oracle.On("USDPrice", WETHAddress).Return(d("1999.5"))

	price, err := FallbackAnchor{primary, OracleAnchor{Oracle: oracle, Token: WETHAddress}}.NativeUSD(context.Background())
	require.NoError(t, err)
	assert.True(t, price.Equal(d("1999.5")))
}

func TestFallbackAnchorAllFail(t *testing.T) {
	oracle := new(MockOracle)
	oracle.On("USDPrice", WETHAddress).Return(decimal.Zero)

	_, err := FallbackAnchor{OracleAnchor{Oracle: oracle, Token: WETHAddress}}.NativeUSD(context.Background())
	assert.ErrorIs(t, err, errors.ErrPriceUnresolved)
}
