package ledger

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping Redis integration tests")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("skipping Redis integration tests: %v", err)
	}

	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedis_ReserveAndRelease(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	resourceID := uuid.NewString()

	l := NewRedis(client, func(ctx context.Context, id string) (int, error) {
		return 1, nil
	})
	t.Cleanup(func() { _ = l.Forget(context.Background(), resourceID) })

	available, err := l.Available(ctx, resourceID, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, available)

	ok, left, err := l.TryReserve(ctx, resourceID, 5, 4)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, left)

	ok, _, err = l.TryReserve(ctx, resourceID, 5, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, resourceID, 10))
	available, err = l.Available(ctx, resourceID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, available)
}

func TestRedis_ConcurrentReservationsNeverOversell(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	resourceID := uuid.NewString()

	l := NewRedis(client, nil)
	t.Cleanup(func() { _ = l.Forget(context.Background(), resourceID) })

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := l.TryReserve(ctx, resourceID, 20, 3)
			if err != nil {
				t.Errorf("TryReserve: %v", err)
				return
			}
			if ok {
				mu.Lock()
				reserved += 3
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 18, reserved)
}
