package metadata

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/errors"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) PairTokens(ctx context.Context, pool common.Address) (common.Address, common.Address, error) {
	args := m.Called(pool)
	return args.Get(0).(common.Address), args.Get(1).(common.Address), args.Error(2)
}

func (m *MockSource) TokenMetadata(ctx context.Context, token common.Address) (types.Token, error) {
	args := m.Called(token)
	return args.Get(0).(types.Token), args.Error(1)
}

type mapStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *mapStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", ErrMiss
	}
	return v, nil
}

func (s *mapStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

var (
	pool    = common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	usdcAdr = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	wethAdr = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc    = types.Token{ID: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Symbol: "USDC", Decimals: 6}
	weth    = types.Token{ID: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Symbol: "WETH", Decimals: 18}
)

func TestResolvePairCachesResults(t *testing.T) {
	source := new(MockSource)
	source.On("PairTokens", pool).Return(usdcAdr, wethAdr, nil).Once()
	source.On("TokenMetadata", usdcAdr).Return(usdc, nil).Once()
	source.On("TokenMetadata", wethAdr).Return(weth, nil).Once()

	cache := NewCache(source, nil, 0)
	for i := 0; i < 3; i++ {
		pair, err := cache.ResolvePair(context.Background(), pool)
		require.NoError(t, err)
		assert.Equal(t, usdc, pair.Token0)
		assert.Equal(t, weth, pair.Token1)
	}

	source.AssertExpectations(t)
	pools, tokens := cache.Len()
	assert.Equal(t, 1, pools)
	assert.Equal(t, 2, tokens)
}

func TestResolvePairIsSingleShot(t *testing.T) {
	source := new(MockSource)
	source.On("PairTokens", pool).Return(common.Address{}, common.Address{}, stderrors.New("execution reverted"))

	cache := NewCache(source, nil, 0)
	_, err := cache.ResolvePair(context.Background(), pool)

	var metaErr *errors.MetadataError
	require.ErrorAs(t, err, &metaErr)
	assert.Equal(t, "pair", metaErr.Resource)
	source.AssertNumberOfCalls(t, "PairTokens", 1)
}

func TestResolveTokenRetriesOnce(t *testing.T) {
	source := new(MockSource)
	source.On("TokenMetadata", usdcAdr).Return(types.Token{}, stderrors.New("timeout")).Once()
	source.On("TokenMetadata", usdcAdr).Return(usdc, nil).Once()

	cache := NewCache(source, nil, 0)
	token, err := cache.ResolveToken(context.Background(), usdcAdr)
	require.NoError(t, err)
	assert.Equal(t, usdc, token)
	source.AssertNumberOfCalls(t, "TokenMetadata", 2)
}

func TestResolveTokenFailureIsNotCached(t *testing.T) {
	source := new(MockSource)
	source.On("TokenMetadata", usdcAdr).Return(types.Token{}, stderrors.New("timeout")).Twice()
	source.On("TokenMetadata", usdcAdr).Return(usdc, nil).Once()

	cache := NewCache(source, nil, 0)
	_, err := cache.ResolveToken(context.Background(), usdcAdr)
	var metaErr *errors.MetadataError
	require.ErrorAs(t, err, &metaErr)
	assert.Equal(t, "token", metaErr.Resource)
	assert.Equal(t, usdc.ID, metaErr.Address)

	token, err := cache.ResolveToken(context.Background(), usdcAdr)
	require.NoError(t, err)
	assert.Equal(t, usdc, token)
	source.AssertNumberOfCalls(t, "TokenMetadata", 3)
}

func TestResolvePairFailsWhenTokenUnresolved(t *testing.T) {
	source := new(MockSource)
	source.On("PairTokens", pool).Return(usdcAdr, wethAdr, nil).Once()
	source.On("TokenMetadata", usdcAdr).Return(usdc, nil)
	source.On("TokenMetadata", wethAdr).Return(types.Token{}, stderrors.New("reverted")).Twice()
	source.On("TokenMetadata", wethAdr).Return(weth, nil).Once()

	cache := NewCache(source, nil, 0)
	_, err := cache.ResolvePair(context.Background(), pool)
	require.Error(t, err)

	pair, err := cache.ResolvePair(context.Background(), pool)
	require.NoError(t, err)
	assert.Equal(t, weth, pair.Token1)
	source.AssertNumberOfCalls(t, "PairTokens", 1)
}

func TestCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	source := new(MockSource)
	source.On("TokenMetadata", usdcAdr).Return(usdc, nil)
	source.On("TokenMetadata", wethAdr).Return(weth, nil)

	cache := NewCache(source, nil, 1)
	ctx := context.Background()
	for _, addr := range []common.Address{usdcAdr, wethAdr, usdcAdr} {
		_, err := cache.ResolveToken(ctx, addr)
		require.NoError(t, err)
	}

	source.AssertNumberOfCalls(t, "TokenMetadata", 3)
	_, tokens := cache.Len()
	assert.Equal(t, 1, tokens)
}

func TestStoreIsSharedAcrossCaches(t *testing.T) {
	store := &mapStore{data: map[string]string{}}
	source := new(MockSource)
	source.On("PairTokens", pool).Return(usdcAdr, wethAdr, nil).Once()
	source.On("TokenMetadata", usdcAdr).Return(usdc, nil).Once()
	source.On("TokenMetadata", wethAdr).Return(weth, nil).Once()

	_, err := NewCache(source, store, 0).ResolvePair(context.Background(), pool)
	require.NoError(t, err)
	assert.Contains(t, store.data, "pair:0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc")
	assert.Contains(t, store.data, "token:"+usdc.ID)

	pair, err := NewCache(source, store, 0).ResolvePair(context.Background(), pool)
	require.NoError(t, err)
	assert.Equal(t, types.PairToken{Token0: usdc, Token1: weth}, pair)
	source.AssertExpectations(t)
}

func TestConcurrentResolve(t *testing.T) {
	source := new(MockSource)
	source.On("TokenMetadata", usdcAdr).Return(usdc, nil)

	cache := NewCache(source, nil, 0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := cache.ResolveToken(context.Background(), usdcAdr)
			assert.NoError(t, err)
			assert.Equal(t, usdc, token)
		}()
	}
	wg.Wait()
}
