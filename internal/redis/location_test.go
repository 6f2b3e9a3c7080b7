package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient connects to RIDEDECK_TEST_REDIS_ADDR or skips the test.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("RIDEDECK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RIDEDECK_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())
	require.NoError(t, client.FlushDB(ctx).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background())
		_ = client.Close()
	})
	return client
}

func TestLocationStore_FindNearbyDriversNearestFirst(t *testing.T) {
	client := newTestClient(t)
	store := NewLocationStore(client)
	ctx := context.Background()

	require.NoError(t, store.UpdateLocation(ctx, "far", 28.6500, 77.2090))
	require.NoError(t, store.UpdateLocation(ctx, "near", 28.6140, 77.2091))
	require.NoError(t, store.UpdateLocation(ctx, "outside", 29.5000, 77.2090))

	members, err := store.FindNearbyDrivers(ctx, 28.6139, 77.2090, 5, 30)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "near", members[0].ID)
	assert.Equal(t, "far", members[1].ID)
}

func TestLocationStore_SearchingRideCount(t *testing.T) {
	client := newTestClient(t)
	store := NewLocationStore(client)
	ctx := context.Background()

	require.NoError(t, store.AddSearchingRide(ctx, "ride-1", 28.6139, 77.2090))
	require.NoError(t, store.AddSearchingRide(ctx, "ride-2", 28.6150, 77.2100))

	count, err := store.CountSearchingRides(ctx, 28.6139, 77.2090, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, store.RemoveSearchingRide(ctx, "ride-1"))
	count, err = store.CountSearchingRides(ctx, 28.6139, 77.2090, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLockStore_ReleaseRequiresToken(t *testing.T) {
	client := newTestClient(t)
	store := NewLockStore(client)
	ctx := context.Background()

	token, ok, err := store.AcquireRiderLock(ctx, "rider-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = store.AcquireRiderLock(ctx, "rider-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.ReleaseRiderLock(ctx, "rider-1", "someone-else"))
	_, ok, err = store.AcquireRiderLock(ctx, "rider-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "foreign token must not release the lock")

	require.NoError(t, store.ReleaseRiderLock(ctx, "rider-1", token))
	_, ok, err = store.AcquireRiderLock(ctx, "rider-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
