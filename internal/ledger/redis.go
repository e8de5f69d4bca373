package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/event-booking/internal/model"
)

// Скрипты выполняются Redis целиком, поэтому проверка и изменение счётчика
// одного мероприятия не перемежаются с другими вызовами.
var (
	reserveScript = redis.NewScript(`
		local allocated = tonumber(redis.call('GET', KEYS[1]) or '0')
		local capacity = tonumber(ARGV[1])
		local units = tonumber(ARGV[2])

		if allocated + units > capacity then
			local left = capacity - allocated
			if left < 0 then left = 0 end
			return {0, left}
		end

		allocated = redis.call('INCRBY', KEYS[1], units)
		return {1, capacity - allocated}
	`)

	releaseScript = redis.NewScript(`
		local allocated = tonumber(redis.call('GET', KEYS[1]) or '0')
		allocated = allocated - tonumber(ARGV[1])
		if allocated < 0 then allocated = 0 end
		redis.call('SET', KEYS[1], allocated)
		return allocated
	`)
)

const defaultKeyPrefix = "ledger"

// RedisClient содержит команды Redis, используемые ledger. Его реализует *redis.Client.
type RedisClient interface {
	redis.Scripter
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis хранит счётчики в Redis, чтобы их разделяли несколько экземпляров сервиса.
type Redis struct {
	client RedisClient
	load   Loader
	prefix string
}

// NewRedis создаёт ledger поверх клиента Redis.
func NewRedis(client RedisClient, load Loader) *Redis {
	return &Redis{
		client: client,
		load:   load,
		prefix: defaultKeyPrefix,
	}
}

func (r *Redis) key(resourceID string) string {
	return r.prefix + ":" + resourceID + ":allocated"
}

// ensure восстанавливает отсутствующий счётчик из хранилища.
// SETNX гарантирует, что из нескольких одновременных загрузок победит одна.
func (r *Redis) ensure(ctx context.Context, key, resourceID string) error {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return unavailable("check counter", err)
	}
	if n > 0 {
		return nil
	}

	allocated := 0
	if r.load != nil {
		allocated, err = r.load(ctx, resourceID)
		if err != nil {
			return err
		}
	}
	if err := r.client.SetNX(ctx, key, allocated, 0).Err(); err != nil {
		return unavailable("seed counter", err)
	}
	return nil
}

// Available возвращает число свободных мест мероприятия.
func (r *Redis) Available(ctx context.Context, resourceID string, capacity int) (int, error) {
	key := r.key(resourceID)
	if err := r.ensure(ctx, key, resourceID); err != nil {
		return 0, err
	}

	allocated, err := r.client.Get(ctx, key).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, unavailable("read counter", err)
	}
	return remaining(capacity, allocated), nil
}

// TryReserve атомарно занимает units мест.
func (r *Redis) TryReserve(ctx context.Context, resourceID string, capacity, units int) (bool, int, error) {
	key := r.key(resourceID)
	if err := r.ensure(ctx, key, resourceID); err != nil {
		return false, 0, err
	}

	res, err := reserveScript.Run(ctx, r.client, []string{key}, capacity, units).Int64Slice()
	if err != nil {
		return false, 0, unavailable("reserve", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("reserve: unexpected script result %v", res)
	}
	return res[0] == 1, int(res[1]), nil
}

// Release освобождает units мест.
func (r *Redis) Release(ctx context.Context, resourceID string, units int) error {
	key := r.key(resourceID)
	if err := r.ensure(ctx, key, resourceID); err != nil {
		return err
	}

	if err := releaseScript.Run(ctx, r.client, []string{key}, units).Err(); err != nil {
		return unavailable("release", err)
	}
	return nil
}

// Forget удаляет счётчик мероприятия.
func (r *Redis) Forget(ctx context.Context, resourceID string) error {
	if err := r.client.Del(ctx, r.key(resourceID)).Err(); err != nil {
		return unavailable("delete counter", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %v", model.ErrUnavailable, op, err)
}
