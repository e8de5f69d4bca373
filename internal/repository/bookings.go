package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/event-booking/internal/model"
)

const bookingColumns = `id, resource_id, requester_id, units, status, code, amount::text, comment, created_at, updated_at`

const (
	codeConstraint    = "bookings_code_key"
	primaryConstraint = "bookings_pkey"
)

// errBookingStored означает, что бронь с таким идентификатором уже сохранена,
// например предыдущей попыткой, чей COMMIT дошёл до базы, но ответ потерялся.
var errBookingStored = errors.New("booking already stored")

// sameBooking сообщает, что stored сохранена той же вставкой, что и b.
func sameBooking(stored, b model.Booking) bool {
	return stored.ResourceID == b.ResourceID && stored.Code == b.Code && stored.Units == b.Units
}

func scanBooking(row rowScanner) (model.Booking, error) {
	var (
		b      model.Booking
		status string
		amount string
	)
	err := row.Scan(&b.ID, &b.ResourceID, &b.RequesterID, &b.Units, &status, &b.Code, &amount, &b.Comment, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return model.Booking{}, err
	}

	b.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return model.Booking{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	b.Status = model.BookingStatus(status)
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, nil
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()

	var res []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func activeStatuses() []string {
	return []string{string(model.BookingStatusPending), string(model.BookingStatusConfirmed)}
}

// GetBooking возвращает бронь по идентификатору.
func (r *PostgresRepository) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	return r.getBooking(ctx, "get booking", `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// FindBookingByCode возвращает бронь по коду.
func (r *PostgresRepository) FindBookingByCode(ctx context.Context, code string) (model.Booking, error) {
	return r.getBooking(ctx, "find booking by code", `SELECT `+bookingColumns+` FROM bookings WHERE code = $1`, code)
}

func (r *PostgresRepository) getBooking(ctx context.Context, op, query, arg string) (model.Booking, error) {
	var b model.Booking
	err := r.withRetry(ctx, func() error {
		var err error
		b, err = scanBooking(r.pool.QueryRow(ctx, query, arg))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Booking{}, fmt.Errorf("%w: booking %s", model.ErrNotFound, arg)
		}
		return model.Booking{}, storageError(op, err)
	}
	return b, nil
}

// CodeExists сообщает, занят ли код брони.
func (r *PostgresRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE code = $1)`, code).Scan(&exists)
	})
	if err != nil {
		return false, storageError("check booking code", err)
	}
	return exists, nil
}

// InsertBooking сохраняет новую бронь. Строка мероприятия блокируется на время транзакции,
// и вместимость проверяется повторно по сохранённым броням, поэтому параллельные вставки
// из разных экземпляров сервиса не превышают capacity. Повторная вставка той же брони
// успешна, поэтому повтор после потерянного ответа на COMMIT не создаёт ошибку.
func (r *PostgresRepository) InsertBooking(ctx context.Context, b model.Booking) error {
	err := r.withRetry(ctx, func() error {
		return r.insertBooking(ctx, b)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, errBookingStored) {
		return r.confirmStored(ctx, b)
	}

	var capErr *model.InsufficientCapacityError
	switch {
	case errors.Is(err, model.ErrDuplicateCode),
		errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrBusinessRule),
		errors.As(err, &capErr):
		return err
	}
	return storageError("insert booking", err)
}

func (r *PostgresRepository) insertBooking(ctx context.Context, b model.Booking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокируем строку мероприятия, чтобы проверка мест и вставка шли последовательно.
	var (
		status   string
		capacity int
	)
	err = tx.QueryRow(ctx,
		`SELECT status, capacity FROM resources WHERE id = $1 FOR UPDATE`,
		b.ResourceID,
	).Scan(&status, &capacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: resource %s", model.ErrNotFound, b.ResourceID)
		}
		return fmt.Errorf("lock resource for update: %w", err)
	}

	var stored bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, b.ID).Scan(&stored)
	if err != nil {
		return fmt.Errorf("check booking id: %w", err)
	}
	if stored {
		return errBookingStored
	}

	if model.ResourceStatus(status) != model.ResourceStatusPublished {
		return model.BusinessRulef("resource %s is not open for booking, status %s", b.ResourceID, status)
	}

	var allocated int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(units), 0) FROM bookings WHERE resource_id = $1 AND status = ANY($2)`,
		b.ResourceID, activeStatuses(),
	).Scan(&allocated)
	if err != nil {
		return fmt.Errorf("sum allocated units: %w", err)
	}
	if allocated+b.Units > capacity {
		available := capacity - allocated
		if available < 0 {
			available = 0
		}
		return &model.InsufficientCapacityError{Requested: b.Units, Available: available}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO bookings (id, resource_id, requester_id, units, status, code, amount, comment, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.ResourceID, b.RequesterID, b.Units, string(b.Status), b.Code, b.Amount.String(), b.Comment, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			switch pgErr.ConstraintName {
			case codeConstraint:
				return fmt.Errorf("%w: %s", model.ErrDuplicateCode, b.Code)
			case primaryConstraint:
				return errBookingStored
			}
		}
		return fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func (r *PostgresRepository) confirmStored(ctx context.Context, b model.Booking) error {
	stored, err := r.GetBooking(ctx, b.ID)
	if err != nil {
		return err
	}
	if !sameBooking(stored, b) {
		return model.BusinessRulef("booking %s already exists", b.ID)
	}
	return nil
}

// UpdateBookingStatus переводит бронь в статус to, только если текущий статус входит в from.
// Возвращает false, если бронь уже была в другом статусе.
func (r *PostgresRepository) UpdateBookingStatus(ctx context.Context, id string, from []model.BookingStatus, to model.BookingStatus, at time.Time) (bool, error) {
	src := make([]string, 0, len(from))
	for _, s := range from {
		src = append(src, string(s))
	}

	var updated int64
	err := r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE bookings SET status = $3, updated_at = $4 WHERE id = $1 AND status = ANY($2)`,
			id, src, string(to), at,
		)
		updated = tag.RowsAffected()
		return err
	})
	if err != nil {
		return false, storageError("update booking status", err)
	}
	return updated == 1, nil
}

// CancelActiveBookings отменяет все неотменённые брони мероприятия и возвращает их.
func (r *PostgresRepository) CancelActiveBookings(ctx context.Context, resourceID string, at time.Time) ([]model.Booking, error) {
	var res []model.Booking
	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx,
			`UPDATE bookings SET status = $3, updated_at = $4
			 WHERE resource_id = $1 AND status = ANY($2)
			 RETURNING `+bookingColumns,
			resourceID, activeStatuses(), string(model.BookingStatusCancelled), at,
		)
		if err != nil {
			return err
		}
		res, err = collectBookings(rows)
		return err
	})
	if err != nil {
		return nil, storageError("cancel active bookings", err)
	}
	return res, nil
}

func (r *PostgresRepository) listBookings(ctx context.Context, op, query string, args ...any) ([]model.Booking, error) {
	var res []model.Booking
	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		res, err = collectBookings(rows)
		return err
	})
	if err != nil {
		return nil, storageError(op, err)
	}
	return res, nil
}

// ListBookingsByRequester возвращает брони пользователя, новые первыми.
// Пустой status означает брони в любом статусе.
func (r *PostgresRepository) ListBookingsByRequester(ctx context.Context, requesterID string, status model.BookingStatus) ([]model.Booking, error) {
	if status == "" {
		return r.listBookings(ctx, "list requester bookings",
			`SELECT `+bookingColumns+` FROM bookings WHERE requester_id = $1 ORDER BY created_at DESC, id`,
			requesterID,
		)
	}
	return r.listBookings(ctx, "list requester bookings",
		`SELECT `+bookingColumns+` FROM bookings WHERE requester_id = $1 AND status = $2 ORDER BY created_at DESC, id`,
		requesterID, string(status),
	)
}

// ListBookingsByResource возвращает брони мероприятия в порядке создания.
func (r *PostgresRepository) ListBookingsByResource(ctx context.Context, resourceID string) ([]model.Booking, error) {
	return r.listBookings(ctx, "list resource bookings",
		`SELECT `+bookingColumns+` FROM bookings WHERE resource_id = $1 ORDER BY created_at, id`,
		resourceID,
	)
}

// ListBookingsByOwner возвращает брони всех мероприятий организатора.
func (r *PostgresRepository) ListBookingsByOwner(ctx context.Context, ownerID string) ([]model.Booking, error) {
	return r.listBookings(ctx, "list owner bookings",
		`SELECT b.id, b.resource_id, b.requester_id, b.units, b.status, b.code, b.amount::text, b.comment, b.created_at, b.updated_at
		 FROM bookings b
		 JOIN resources res ON res.id = b.resource_id
		 WHERE res.owner_id = $1
		 ORDER BY b.created_at, b.id`,
		ownerID,
	)
}

// CountBookings возвращает число броней мероприятия в любом статусе.
func (r *PostgresRepository) CountBookings(ctx context.Context, resourceID string) (int, error) {
	var n int
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE resource_id = $1`, resourceID).Scan(&n)
	})
	if err != nil {
		return 0, storageError("count bookings", err)
	}
	return n, nil
}

// SumActiveUnits возвращает число мест в неотменённых бронях мероприятия.
func (r *PostgresRepository) SumActiveUnits(ctx context.Context, resourceID string) (int, error) {
	var n int
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`SELECT COALESCE(SUM(units), 0) FROM bookings WHERE resource_id = $1 AND status = ANY($2)`,
			resourceID, activeStatuses(),
		).Scan(&n)
	})
	if err != nil {
		return 0, storageError("sum active units", err)
	}
	return n, nil
}

// AllocatedUnits возвращает число занятых мест для каждого из мероприятий.
// Мероприятия без броней в результат не попадают.
func (r *PostgresRepository) AllocatedUnits(ctx context.Context, resourceIDs []string) (map[string]int, error) {
	res := make(map[string]int, len(resourceIDs))
	if len(resourceIDs) == 0 {
		return res, nil
	}

	err := r.withRetry(ctx, func() error {
		clear(res)
		rows, err := r.pool.Query(ctx,
			`SELECT resource_id, SUM(units) FROM bookings
			 WHERE resource_id = ANY($1) AND status = ANY($2)
			 GROUP BY resource_id`,
			resourceIDs, activeStatuses(),
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id    string
				units int
			)
			if err := rows.Scan(&id, &units); err != nil {
				return fmt.Errorf("scan allocated units: %w", err)
			}
			res[id] = units
		}
		return rows.Err()
	})
	if err != nil {
		return nil, storageError("allocated units", err)
	}
	return res, nil
}
