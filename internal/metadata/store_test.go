package metadata

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "swaptracker:")
	ctx := context.Background()

	mock.ExpectGet("swaptracker:token:0xabc").RedisNil()
	_, err := store.Get(ctx, "token:0xabc")
	assert.ErrorIs(t, err, ErrMiss)

	mock.ExpectSet("swaptracker:token:0xabc", `{"id":"0xabc","symbol":"ABC","decimals":18}`, 0).SetVal("OK")
	require.NoError(t, store.Set(ctx, "token:0xabc", `{"id":"0xabc","symbol":"ABC","decimals":18}`))

	mock.ExpectGet("swaptracker:token:0xabc").SetVal(`{"id":"0xabc","symbol":"ABC","decimals":18}`)
	val, err := store.Get(ctx, "token:0xabc")
	require.NoError(t, err)
	assert.Contains(t, val, "ABC")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheWithRedisStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "")

	source := new(MockSource)
	source.On("TokenMetadata", usdcAdr).Return(usdc, nil).Once()

	mock.ExpectGet("token:" + usdc.ID).RedisNil()
	mock.ExpectSet("token:"+usdc.ID, `{"id":"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48","symbol":"USDC","decimals":6}`, 0).SetVal("OK")

	token, err := NewCache(source, store, 0).ResolveToken(context.Background(), usdcAdr)
	require.NoError(t, err)
	assert.Equal(t, usdc, token)

	assert.NoError(t, mock.ExpectationsWereMet())
	source.AssertExpectations(t)
}
