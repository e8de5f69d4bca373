package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/event-booking/internal/model"
)

const resourceColumns = `id, owner_id, title, description, category, location, city, image_url,
	capacity, unit_price::text, start_time, end_time, status, created_at, updated_at`

func scanResource(row rowScanner) (model.Resource, error) {
	var (
		res      model.Resource
		category string
		status   string
		price    string
	)
	err := row.Scan(
		&res.ID, &res.OwnerID, &res.Title, &res.Description, &category, &res.Location, &res.City, &res.ImageURL,
		&res.Capacity, &price, &res.StartTime, &res.EndTime, &status, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return model.Resource{}, err
	}

	res.UnitPrice, err = decimal.NewFromString(price)
	if err != nil {
		return model.Resource{}, fmt.Errorf("parse unit price %q: %w", price, err)
	}
	res.Category = model.Category(category)
	res.Status = model.ResourceStatus(status)
	res.StartTime = res.StartTime.UTC()
	res.EndTime = res.EndTime.UTC()
	res.CreatedAt = res.CreatedAt.UTC()
	res.UpdatedAt = res.UpdatedAt.UTC()
	return res, nil
}

func collectResources(rows pgx.Rows) ([]model.Resource, error) {
	defer rows.Close()

	var res []model.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		res = append(res, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetResource возвращает мероприятие по идентификатору.
func (r *PostgresRepository) GetResource(ctx context.Context, id string) (model.Resource, error) {
	var res model.Resource
	err := r.withRetry(ctx, func() error {
		var err error
		res, err = scanResource(r.pool.QueryRow(ctx,
			`SELECT `+resourceColumns+` FROM resources WHERE id = $1`,
			id,
		))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Resource{}, fmt.Errorf("%w: resource %s", model.ErrNotFound, id)
		}
		return model.Resource{}, storageError("get resource", err)
	}
	return res, nil
}

// InsertResource сохраняет новое мероприятие.
func (r *PostgresRepository) InsertResource(ctx context.Context, res model.Resource) error {
	err := r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO resources (id, owner_id, title, description, category, location, city, image_url,
			                        capacity, unit_price, start_time, end_time, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			res.ID, res.OwnerID, res.Title, res.Description, string(res.Category), res.Location, res.City, res.ImageURL,
			res.Capacity, res.UnitPrice.String(), res.StartTime, res.EndTime, string(res.Status), res.CreatedAt, res.UpdatedAt,
		)
		return err
	})
	if err != nil {
		switch pgCode(err) {
		case pgerrcode.CheckViolation:
			return model.Validationf("resource %s violates storage constraints", res.ID)
		case pgerrcode.UniqueViolation:
			return model.BusinessRulef("resource %s already exists", res.ID)
		}
		return storageError("insert resource", err)
	}
	return nil
}

// UpdateResource записывает изменённое мероприятие, только если его статус
// в хранилище всё ещё равен from. Владелец и дата создания не меняются.
func (r *PostgresRepository) UpdateResource(ctx context.Context, res model.Resource, from model.ResourceStatus) error {
	var found, updated int
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`WITH updated AS (
			     UPDATE resources SET
			         title = $2, description = $3, category = $4, location = $5, city = $6, image_url = $7,
			         capacity = $8, unit_price = $9, start_time = $10, end_time = $11, status = $12, updated_at = $13
			     WHERE id = $1 AND status = $14
			     RETURNING id
			 )
			 SELECT (SELECT count(*) FROM resources WHERE id = $1), (SELECT count(*) FROM updated)`,
			res.ID, res.Title, res.Description, string(res.Category), res.Location, res.City, res.ImageURL,
			res.Capacity, res.UnitPrice.String(), res.StartTime, res.EndTime, string(res.Status), res.UpdatedAt, string(from),
		).Scan(&found, &updated)
	})
	if err != nil {
		if pgCode(err) == pgerrcode.CheckViolation {
			return model.Validationf("resource %s violates storage constraints", res.ID)
		}
		return storageError("update resource", err)
	}

	switch {
	case found == 0:
		return fmt.Errorf("%w: resource %s", model.ErrNotFound, res.ID)
	case updated == 0:
		return model.BusinessRulef("resource %s is no longer %s", res.ID, from)
	}
	return nil
}

// DeleteResource удаляет мероприятие без броней.
func (r *PostgresRepository) DeleteResource(ctx context.Context, id string) error {
	var deleted int64
	err := r.withRetry(ctx, func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM resources WHERE id = $1`, id)
		deleted = tag.RowsAffected()
		return err
	})
	if err != nil {
		if pgCode(err) == pgerrcode.ForeignKeyViolation {
			return model.BusinessRulef("resource %s has bookings and cannot be deleted", id)
		}
		return storageError("delete resource", err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: resource %s", model.ErrNotFound, id)
	}
	return nil
}

func (r *PostgresRepository) listResources(ctx context.Context, op, query string, args ...any) ([]model.Resource, error) {
	var res []model.Resource
	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		res, err = collectResources(rows)
		return err
	})
	if err != nil {
		return nil, storageError(op, err)
	}
	return res, nil
}

// ListPublishedResources возвращает опубликованные мероприятия в порядке начала.
func (r *PostgresRepository) ListPublishedResources(ctx context.Context) ([]model.Resource, error) {
	return r.listResources(ctx, "list published resources",
		`SELECT `+resourceColumns+` FROM resources WHERE status = $1 ORDER BY start_time, id`,
		string(model.ResourceStatusPublished),
	)
}

// ListResourcesByOwner возвращает мероприятия организатора, новые первыми.
func (r *PostgresRepository) ListResourcesByOwner(ctx context.Context, ownerID string) ([]model.Resource, error) {
	return r.listResources(ctx, "list owned resources",
		`SELECT `+resourceColumns+` FROM resources WHERE owner_id = $1 ORDER BY created_at DESC, id`,
		ownerID,
	)
}

// ListResourcesByIDs возвращает мероприятия с указанными идентификаторами.
func (r *PostgresRepository) ListResourcesByIDs(ctx context.Context, ids []string) ([]model.Resource, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.listResources(ctx, "list resources by ids",
		`SELECT `+resourceColumns+` FROM resources WHERE id = ANY($1) ORDER BY start_time, id`,
		ids,
	)
}

// FinishEnded переводит опубликованные мероприятия, закончившиеся до now, в FINISHED.
// Возвращает идентификаторы изменённых мероприятий; повторный вызов ничего не меняет.
func (r *PostgresRepository) FinishEnded(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := r.withRetry(ctx, func() error {
		ids = ids[:0]
		rows, err := r.pool.Query(ctx,
			`UPDATE resources SET status = $1, updated_at = $3
			 WHERE status = $2 AND end_time < $3
			 RETURNING id`,
			string(model.ResourceStatusFinished), string(model.ResourceStatusPublished), now,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("scan id: %w", err)
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, storageError("finish ended resources", err)
	}
	return ids, nil
}
