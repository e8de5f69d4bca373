package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_TryReserve(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(nil)

	ok, left, err := l.TryReserve(ctx, "r1", 5, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, left)

	ok, left, err = l.TryReserve(ctx, "r1", 5, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, left)

	ok, left, err = l.TryReserve(ctx, "r1", 5, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, left)

	available, err := l.Available(ctx, "r1", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, available)
}

func TestMemory_ReleaseFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(nil)

	_, _, err := l.TryReserve(ctx, "r1", 10, 2)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, "r1", 5))

	available, err := l.Available(ctx, "r1", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, available)
}

func TestMemory_SeedsFromLoaderOnce(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	l := NewMemory(func(ctx context.Context, resourceID string) (int, error) {
		calls.Add(1)
		return 4, nil
	})

	available, err := l.Available(ctx, "r1", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, available)

	ok, _, err := l.TryReserve(ctx, "r1", 5, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMemory_LoaderErrorIsRetried(t *testing.T) {
	ctx := context.Background()
	fail := true
	l := NewMemory(func(ctx context.Context, resourceID string) (int, error) {
		if fail {
			return 0, errors.New("db down")
		}
		return 1, nil
	})

	_, _, err := l.TryReserve(ctx, "r1", 5, 1)
	require.Error(t, err)

	fail = false
	ok, left, err := l.TryReserve(ctx, "r1", 5, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, left)
}

func TestMemory_ForgetResetsCounter(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(nil)

	_, _, err := l.TryReserve(ctx, "r1", 5, 5)
	require.NoError(t, err)
	require.NoError(t, l.Forget(ctx, "r1"))

	available, err := l.Available(ctx, "r1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, available)
}

func TestMemory_ConcurrentReservationsNeverOversell(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(nil)

	const (
		capacity = 50
		workers  = 200
	)

	var (
		wg       sync.WaitGroup
		reserved atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(units int) {
			defer wg.Done()
			ok, left, err := l.TryReserve(ctx, "r1", capacity, units)
			if err != nil {
				t.Errorf("TryReserve: %v", err)
				return
			}
			if left < 0 {
				t.Errorf("negative remaining %d", left)
			}
			if ok {
				reserved.Add(int64(units))
			}
		}(i%3 + 1)
	}
	wg.Wait()

	assert.LessOrEqual(t, reserved.Load(), int64(capacity))

	available, err := l.Available(ctx, "r1", capacity)
	require.NoError(t, err)
	assert.Equal(t, capacity-int(reserved.Load()), available)
}

func TestMemory_ResourcesAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(nil)

	ok, _, err := l.TryReserve(ctx, "a", 1, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = l.TryReserve(ctx, "b", 1, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}
