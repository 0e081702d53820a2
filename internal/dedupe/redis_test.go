package dedupe

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisDedupeWithMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	d, err := NewRedisDedupe(client, "test:dedupe:", time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := d.Seen(ctx, "0xabc:1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = d.Seen(ctx, "0xabc:1")
	require.NoError(t, err)
	assert.True(t, seen)

	assert.True(t, mr.Exists("test:dedupe:0xabc:1"))
	assert.Equal(t, time.Hour, mr.TTL("test:dedupe:0xabc:1"))

	mr.FastForward(2 * time.Hour)
	seen, err = d.Seen(ctx, "0xabc:1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisDedupeError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	d, err := NewRedisDedupe(db, "", time.Minute)
	require.NoError(t, err)

	mock.ExpectSetNX("dedupe:k", 1, time.Minute).SetErr(stderrors.New("connection refused"))
	seen, err := d.Seen(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRedisDedupeRequiresClient(t *testing.T) {
	_, err := NewRedisDedupe(nil, "", time.Minute)
	assert.Error(t, err)
}

func TestRedisDedupeForget(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	d, err := NewRedisDedupe(client, "test:dedupe:", time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = d.Seen(ctx, "0xabc:1")
	require.NoError(t, err)
	require.NoError(t, d.Forget(ctx, "0xabc:1"))
	assert.False(t, mr.Exists("test:dedupe:0xabc:1"))

	seen, err := d.Seen(ctx, "0xabc:1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisDedupeForgetError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	d, err := NewRedisDedupe(db, "", time.Minute)
	require.NoError(t, err)

	mock.ExpectDel("dedupe:k").SetErr(stderrors.New("connection refused"))
	assert.Error(t, d.Forget(context.Background(), "k"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
