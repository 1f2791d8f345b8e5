package utils

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Balance  int64 `json:"balance"`
	CashOwed int64 `json:"cash_owed"`
}

func TestCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()
	key := WalletKey(42)

	var got snapshot
	found, err := GetCache(ctx, rdb, key, &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, SetCache(ctx, rdb, key, snapshot{Balance: 1500, CashOwed: 300}, WalletCacheTTL))
	found, err = GetCache(ctx, rdb, key, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, snapshot{Balance: 1500, CashOwed: 300}, got)
	assert.Equal(t, WalletCacheTTL, mr.TTL(key))

	require.NoError(t, DeleteCache(ctx, rdb, key))
	assert.False(t, mr.Exists(key))
}

func TestCacheNilClient(t *testing.T) {
	ctx := context.Background()
	var got snapshot

	found, err := GetCache(ctx, nil, "k", &got)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, SetCache(ctx, nil, "k", got, WalletCacheTTL))
	assert.NoError(t, DeleteCache(ctx, nil, "k"))
}

func TestWalletKey(t *testing.T) {
	assert.Equal(t, "wallet:user:7", WalletKey(7))
}
