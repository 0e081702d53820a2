package metadata

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync"

	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/errors"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/internal/types"
	"github.com/ChaosDigtal/eth-swap-trackver-v2/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"
)

// Source is where metadata comes from on a miss; the chain in production.
type Source interface {
	PairTokens(ctx context.Context, pool common.Address) (token0, token1 common.Address, err error)
	TokenMetadata(ctx context.Context, token common.Address) (types.Token, error)
}

type pairAddresses struct {
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`
}

// Cache resolves pool and token metadata through memory, an optional Store, then the Source.
// Only successful lookups are remembered.
type Cache struct {
	source Source
	store  Store

	mu     sync.Mutex
	pairs  lru.BasicLRU[string, pairAddresses]
	tokens lru.BasicLRU[string, types.Token]
}

// NewCache builds a cache holding up to capacity pools and capacity tokens; 0 means unbounded.
// store may be nil.
func NewCache(source Source, store Store, capacity int) *Cache {
	if capacity <= 0 {
		capacity = math.MaxInt
	}
	return &Cache{
		source: source,
		store:  store,
		pairs:  lru.NewBasicLRU[string, pairAddresses](capacity),
		tokens: lru.NewBasicLRU[string, types.Token](capacity),
	}
}

// ResolvePair returns both token descriptions of a pool.
// The pool lookup is tried once; each token lookup may be retried once.
func (c *Cache) ResolvePair(ctx context.Context, pool common.Address) (types.PairToken, error) {
	key := strings.ToLower(pool.Hex())

	addrs, ok := c.cachedPair(ctx, key)
	if !ok {
		token0, token1, err := c.source.PairTokens(ctx, pool)
		if err != nil {
			return types.PairToken{}, &errors.MetadataError{Resource: "pair", Address: key, Err: err}
		}
		addrs = pairAddresses{Token0: strings.ToLower(token0.Hex()), Token1: strings.ToLower(token1.Hex())}
		c.rememberPair(ctx, key, addrs)
	}

	token0, err := c.ResolveToken(ctx, common.HexToAddress(addrs.Token0))
	if err != nil {
		return types.PairToken{}, err
	}
	token1, err := c.ResolveToken(ctx, common.HexToAddress(addrs.Token1))
	if err != nil {
		return types.PairToken{}, err
	}
	return types.PairToken{Token0: token0, Token1: token1}, nil
}

// ResolveToken returns symbol and decimals of an ERC-20 token.
func (c *Cache) ResolveToken(ctx context.Context, token common.Address) (types.Token, error) {
	key := strings.ToLower(token.Hex())

	if t, ok := c.cachedToken(ctx, key); ok {
		return t, nil
	}

	t, err := retryOnce(ctx, "token metadata "+key, func(ctx context.Context) (types.Token, error) {
		return c.source.TokenMetadata(ctx, token)
	})
	if err != nil {
		return types.Token{}, &errors.MetadataError{Resource: "token", Address: key, Err: err}
	}
	t.ID = key
	c.rememberToken(ctx, key, t)
	return t, nil
}

// Len reports the number of pools and tokens held in memory.
func (c *Cache) Len() (pools, tokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pairs.Len(), c.tokens.Len()
}

func (c *Cache) cachedPair(ctx context.Context, key string) (pairAddresses, bool) {
	c.mu.Lock()
	addrs, ok := c.pairs.Get(key)
	c.mu.Unlock()
	if ok {
		return addrs, true
	}

	if !c.loadStored(ctx, "pair:"+key, &addrs) {
		return pairAddresses{}, false
	}
	c.mu.Lock()
	c.pairs.Add(key, addrs)
	c.mu.Unlock()
	return addrs, true
}

func (c *Cache) cachedToken(ctx context.Context, key string) (types.Token, bool) {
	c.mu.Lock()
	t, ok := c.tokens.Get(key)
	c.mu.Unlock()
	if ok {
		return t, true
	}

	if !c.loadStored(ctx, "token:"+key, &t) {
		return types.Token{}, false
	}
	c.mu.Lock()
	c.tokens.Add(key, t)
	c.mu.Unlock()
	return t, true
}

func (c *Cache) rememberPair(ctx context.Context, key string, addrs pairAddresses) {
	c.mu.Lock()
	c.pairs.Add(key, addrs)
	c.mu.Unlock()
	c.saveStored(ctx, "pair:"+key, addrs)
}

func (c *Cache) rememberToken(ctx context.Context, key string, t types.Token) {
	c.mu.Lock()
	c.tokens.Add(key, t)
	c.mu.Unlock()
	c.saveStored(ctx, "token:"+key, t)
}

// loadStored treats any store failure as a miss.
func (c *Cache) loadStored(ctx context.Context, key string, dst interface{}) bool {
	if c.store == nil {
		return false
	}
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if err != ErrMiss {
			logger.Warn("Metadata store read %s failed: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		logger.Warn("Metadata store entry %s is corrupt: %v", key, err)
		return false
	}
	return true
}

func (c *Cache) saveStored(ctx context.Context, key string, v interface{}) {
	if c.store == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		logger.Warn("Encoding metadata %s failed: %v", key, err)
		return
	}
	if err := c.store.Set(ctx, key, string(raw)); err != nil {
		logger.Warn("Metadata store write %s failed: %v", key, err)
	}
}
