package identity

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/cache"
)

type countingProvider struct {
	Provider
	byPhone map[string]Identity
	calls   int
}

func (c *countingProvider) FindByPhone(_ context.Context, _ Tenant, phone string) (Identity, error) {
	c.calls++
	id, ok := c.byPhone[phone]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return id, nil
}

func TestPhoneResolver_CachesLookups(t *testing.T) {
	mr := miniredis.RunT(t)
	index := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	provider := &countingProvider{byPhone: map[string]Identity{
		"+15550001111": {Username: "7f1c", Email: "alice@example.com"},
	}}
	r := NewPhoneResolver(provider, index, time.Hour, nil)
	ctx := context.Background()

	username, err := r.Resolve(ctx, TenantGeneral, "15550001111")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", username)
	assert.Equal(t, 1, provider.calls)

	username, err = r.Resolve(ctx, TenantGeneral, "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", username)
	assert.Equal(t, 1, provider.calls, "second lookup must be served from the index")

	mr.FastForward(2 * time.Hour)
	_, err = r.Resolve(ctx, TenantGeneral, "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls, "expired entry must fall back to the provider")
}

func TestPhoneResolver_RememberAndMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	index := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	provider := &countingProvider{byPhone: map[string]Identity{}}
	r := NewPhoneResolver(provider, index, time.Hour, nil)
	ctx := context.Background()

	_, err := r.Resolve(ctx, TenantGeneral, "+15550002222")
	assert.ErrorIs(t, err, ErrIdentityNotFound)

	r.Remember(ctx, TenantGeneral, "15550002222", "bob@example.com")
	assert.True(t, mr.Exists("phone-index:general:+15550002222"))

	username, err := r.Resolve(ctx, TenantGeneral, "+15550002222")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", username)
	assert.Equal(t, 1, provider.calls)

	_, err = r.Resolve(ctx, TenantAdmin, "+15550002222")
	assert.ErrorIs(t, err, ErrIdentityNotFound, "index entries are per tenant")
}

func TestPhoneResolver_IndexDown(t *testing.T) {
	mr := miniredis.RunT(t)
	index := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}))
	provider := &countingProvider{byPhone: map[string]Identity{
		"+15550003333": {Username: "carol@example.com"},
	}}
	r := NewPhoneResolver(provider, index, time.Hour, nil)
	mr.Close()

	username, err := r.Resolve(context.Background(), TenantGeneral, "+15550003333")
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", username)
}

func TestPhoneResolver_Forget(t *testing.T) {
	mr := miniredis.RunT(t)
	index := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	provider := &countingProvider{byPhone: map[string]Identity{}}
	r := NewPhoneResolver(provider, index, time.Hour, nil)
	ctx := context.Background()

	r.Remember(ctx, TenantGeneral, "+15550004444", "dan@example.com")
	r.Remember(ctx, TenantAdmin, "+15550004444", "dan@example.com")
	r.Forget(ctx, TenantGeneral, "15550004444")

	assert.False(t, mr.Exists("phone-index:general:+15550004444"))
	assert.True(t, mr.Exists("phone-index:admin:+15550004444"), "forget is scoped to one tenant")

	_, err := r.Resolve(ctx, TenantGeneral, "+15550004444")
	assert.ErrorIs(t, err, ErrIdentityNotFound)
	assert.Equal(t, 1, provider.calls)

	NewPhoneResolver(provider, nil, time.Hour, nil).Forget(ctx, TenantGeneral, "+15550004444")
}
