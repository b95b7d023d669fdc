package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(7, "session-1", "secret", time.Now())
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.AdminID)
	assert.Equal(t, "session-1", claims.SessionID)
}

func TestJWTRejectsWrongSecretAndExpiry(t *testing.T) {
	token, err := GenerateJWT(7, "session-1", "secret", time.Now())
	require.NoError(t, err)
	_, err = ParseJWT(token, "other")
	assert.Error(t, err)

	old, err := GenerateJWT(7, "session-1", "secret", time.Now().Add(-MaxTokenLifetime-time.Minute))
	require.NoError(t, err)
	_, err = ParseJWT(old, "secret")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestJWTRequiresSession(t *testing.T) {
	token, err := GenerateJWT(7, "", "secret", time.Now())
	require.NoError(t, err)
	_, err = ParseJWT(token, "secret")
	assert.Error(t, err)
}

func TestCacheHelpers(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	_, found, err := GetCache[[]string](ctx, rdb, "tickets:list:a")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, SetCache(ctx, rdb, "tickets:list:a", []string{"x"}, time.Minute))
	require.NoError(t, SetCache(ctx, rdb, "tickets:list:b", []string{"y"}, time.Minute))
	require.NoError(t, SetCache(ctx, rdb, "auth:session:z", "keep", time.Minute))

	out, found, err := GetCache[[]string](ctx, rdb, "tickets:list:a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"x"}, out)

	require.NoError(t, DeleteCacheByPrefix(ctx, rdb, "tickets:"))
	assert.False(t, mr.Exists("tickets:list:a"))
	assert.False(t, mr.Exists("tickets:list:b"))
	assert.True(t, mr.Exists("auth:session:z"))

	require.NoError(t, DeleteCache(ctx, rdb, "auth:session:z"))
	assert.False(t, mr.Exists("auth:session:z"))
	require.NoError(t, DeleteCache(ctx, rdb))
}

func TestSetCacheIfGeneration(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()
	const genKey = "cache:tickets:generation"

	gen, err := CacheGeneration(ctx, rdb, genKey)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)

	stored, err := SetCacheIfGeneration(ctx, rdb, genKey, gen, "tickets:list:a", []string{"x"}, time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.True(t, mr.Exists("tickets:list:a"))

	require.NoError(t, BumpCacheGeneration(ctx, rdb, genKey))
	stored, err = SetCacheIfGeneration(ctx, rdb, genKey, gen, "tickets:list:b", []string{"stale"}, time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.False(t, mr.Exists("tickets:list:b"))

	gen, err = CacheGeneration(ctx, rdb, genKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
	stored, err = SetCacheIfGeneration(ctx, rdb, genKey, gen, "tickets:list:b", []string{"fresh"}, time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestPasswordHelpers(t *testing.T) {
	hash, err := HashPassword("correct horse", 4)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "correct horse"))
	assert.False(t, VerifyPassword(hash, "wrong"))
}

func TestRejectPasswordRunsBcrypt(t *testing.T) {
	assert.False(t, RejectPassword("receipt-desk-unknown-account"))
	assert.False(t, RejectPassword(""))

	cost, err := bcrypt.Cost(dummyHash())
	require.NoError(t, err)
	assert.Equal(t, DefaultCost, cost)
}
