package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/event-booking/internal/model"
)

func TestStorageError_Classification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), unavailable: true},
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), unavailable: true},
		{name: "constraint", err: &pgconn.PgError{Code: pgerrcode.CheckViolation}},
		{name: "plain", err: errors.New("syntax error")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storageError("op", tt.err)
			assert.Equal(t, tt.unavailable, errors.Is(err, model.ErrUnavailable))
		})
	}
}

func TestWithRetry(t *testing.T) {
	r := &PostgresRepository{delays: []time.Duration{time.Millisecond, time.Millisecond}}

	t.Run("retries serialization failures", func(t *testing.T) {
		calls := 0
		err := r.withRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after budget", func(t *testing.T) {
		calls := 0
		err := r.withRetry(context.Background(), func() error {
			calls++
			return &pgconn.PgError{Code: pgerrcode.DeadlockDetected}
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry domain errors", func(t *testing.T) {
		calls := 0
		err := r.withRetry(context.Background(), func() error {
			calls++
			return model.ErrDuplicateCode
		})
		assert.ErrorIs(t, err, model.ErrDuplicateCode)
		assert.Equal(t, 1, calls)
	})
}

func newTestRepository(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URI")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URI is not set")
	}

	repo, err := NewPostgresRepository(dsn)
	if err != nil {
		t.Skipf("database is not reachable: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	_, err = repo.pool.Exec(context.Background(), `TRUNCATE bookings, resources`)
	require.NoError(t, err)
	return repo
}

func publishedResource(t *testing.T, repo *PostgresRepository, capacity int) model.Resource {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	res, err := model.NewResource(uuid.NewString(), "owner-1", model.ResourceInput{
		Title:     "Integration concert",
		Category:  model.CategoryConcert,
		Location:  "Hall",
		City:      "Moscow",
		Capacity:  capacity,
		UnitPrice: decimal.RequireFromString("100.50"),
		StartTime: now.Add(72 * time.Hour),
		EndTime:   now.Add(75 * time.Hour),
	}, now)
	require.NoError(t, err)
	require.NoError(t, res.Publish(now))
	require.NoError(t, repo.InsertResource(context.Background(), res))
	return res
}

func newBooking(t *testing.T, res model.Resource, units int, code string) model.Booking {
	t.Helper()
	b, err := model.NewBooking(uuid.NewString(), res, "client-1", units, "", model.BookingStatusPending, code, time.Now().UTC())
	require.NoError(t, err)
	return b
}

func TestPostgres_ResourceRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	res := publishedResource(t, repo, 5)

	got, err := repo.GetResource(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Title, got.Title)
	assert.True(t, res.UnitPrice.Equal(got.UnitPrice))
	assert.Equal(t, model.ResourceStatusPublished, got.Status)
	assert.True(t, res.StartTime.Equal(got.StartTime))

	_, err = repo.GetResource(ctx, uuid.NewString())
	assert.ErrorIs(t, err, model.ErrNotFound)

	published, err := repo.ListPublishedResources(ctx)
	require.NoError(t, err)
	assert.Len(t, published, 1)
}

func TestPostgres_UpdateResourceIsConditional(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	res := publishedResource(t, repo, 5)

	renamed := res
	renamed.Title = "Renamed concert"
	require.NoError(t, repo.UpdateResource(ctx, renamed, model.ResourceStatusPublished))

	ids, err := repo.FinishEnded(ctx, res.EndTime.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{res.ID}, ids)

	renamed.Title = "Stale write"
	assert.ErrorIs(t, repo.UpdateResource(ctx, renamed, model.ResourceStatusPublished), model.ErrBusinessRule)

	got, err := repo.GetResource(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ResourceStatusFinished, got.Status)
	assert.Equal(t, "Renamed concert", got.Title)

	missing := renamed
	missing.ID = uuid.NewString()
	assert.ErrorIs(t, repo.UpdateResource(ctx, missing, model.ResourceStatusPublished), model.ErrNotFound)
}

func TestPostgres_InsertBookingRechecksCapacity(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	res := publishedResource(t, repo, 5)

	require.NoError(t, repo.InsertBooking(ctx, newBooking(t, res, 3, "EVT-10001")))

	err := repo.InsertBooking(ctx, newBooking(t, res, 3, "EVT-10002"))
	var capErr *model.InsufficientCapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 2, capErr.Available)

	err = repo.InsertBooking(ctx, newBooking(t, res, 1, "EVT-10001"))
	assert.ErrorIs(t, err, model.ErrDuplicateCode)

	units, err := repo.SumActiveUnits(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, units)
}

func TestPostgres_RepeatedInsertIsIdempotent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	res := publishedResource(t, repo, 3)

	b := newBooking(t, res, 3, "EVT-10003")
	require.NoError(t, repo.InsertBooking(ctx, b))
	require.NoError(t, repo.InsertBooking(ctx, b))

	units, err := repo.SumActiveUnits(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, units)

	other := b
	other.Code = "EVT-10004"
	assert.ErrorIs(t, repo.InsertBooking(ctx, other), model.ErrBusinessRule)
}

func TestPostgres_ConcurrentInsertsNeverOversell(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	res := publishedResource(t, repo, 10)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = repo.InsertBooking(ctx, newBooking(t, res, 1, fmt.Sprintf("EVT-%05d", 20000+i)))
		}(i)
	}
	wg.Wait()

	units, err := repo.SumActiveUnits(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, units)
}

func TestPostgres_ConditionalCancel(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	res := publishedResource(t, repo, 5)
	b := newBooking(t, res, 2, "EVT-30001")
	require.NoError(t, repo.InsertBooking(ctx, b))

	from := []model.BookingStatus{model.BookingStatusPending, model.BookingStatusConfirmed}
	ok, err := repo.UpdateBookingStatus(ctx, b.ID, from, model.BookingStatusCancelled, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UpdateBookingStatus(ctx, b.ID, from, model.BookingStatusCancelled, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindBookingByCode(ctx, "EVT-30001")
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, got.Status)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("201.00")))
}

func TestPostgres_DeleteRestrictedByBookings(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	res := publishedResource(t, repo, 5)
	require.NoError(t, repo.InsertBooking(ctx, newBooking(t, res, 1, "EVT-40001")))

	assert.ErrorIs(t, repo.DeleteResource(ctx, res.ID), model.ErrBusinessRule)

	empty := publishedResource(t, repo, 5)
	require.NoError(t, repo.DeleteResource(ctx, empty.ID))
	assert.ErrorIs(t, repo.DeleteResource(ctx, empty.ID), model.ErrNotFound)
}

func TestPostgres_FinishEndedIsIdempotent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	res := publishedResource(t, repo, 5)

	after := res.EndTime.Add(time.Minute)
	ids, err := repo.FinishEnded(ctx, after)
	require.NoError(t, err)
	assert.Equal(t, []string{res.ID}, ids)

	ids, err = repo.FinishEnded(ctx, after)
	require.NoError(t, err)
	assert.Empty(t, ids)

	got, err := repo.GetResource(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ResourceStatusFinished, got.Status)
}
