// Package ledger ведёт учёт занятых мест по каждому мероприятию.
//
// Счётчик мероприятия является производным состоянием: при первом обращении он
// восстанавливается из хранилища через Loader, а дальше изменяется только
// операциями TryReserve и Release. Все операции над одним мероприятием
// линеаризуемы, операции над разными мероприятиями не блокируют друг друга.
package ledger

import (
	"context"
	"sync"
)

// Loader возвращает сумму мест в неотменённых бронях мероприятия.
type Loader func(ctx context.Context, resourceID string) (int, error)

// Ledger описывает контракт учёта занятых мест.
type Ledger interface {
	// Available возвращает число свободных мест. Значение может устареть сразу после чтения.
	Available(ctx context.Context, resourceID string, capacity int) (int, error)
	// TryReserve атомарно занимает units мест, если они есть, и возвращает остаток.
	TryReserve(ctx context.Context, resourceID string, capacity, units int) (bool, int, error)
	// Release возвращает units мест; счётчик не опускается ниже нуля.
	Release(ctx context.Context, resourceID string, units int) error
	// Forget удаляет счётчик удалённого мероприятия.
	Forget(ctx context.Context, resourceID string) error
}

// Memory хранит счётчики в памяти процесса, по мьютексу на мероприятие.
type Memory struct {
	load Loader

	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	mu        sync.Mutex
	loaded    bool
	allocated int
}

// NewMemory создаёт ledger в памяти. load может быть nil, тогда счётчики начинаются с нуля.
func NewMemory(load Loader) *Memory {
	return &Memory{
		load:     load,
		counters: make(map[string]*counter),
	}
}

func (m *Memory) counter(resourceID string) *counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[resourceID]
	if !ok {
		c = &counter{}
		m.counters[resourceID] = c
	}
	return c
}

// ensure должен вызываться под c.mu.
func (m *Memory) ensure(ctx context.Context, c *counter, resourceID string) error {
	if c.loaded {
		return nil
	}
	if m.load != nil {
		n, err := m.load(ctx, resourceID)
		if err != nil {
			return err
		}
		c.allocated = n
	}
	c.loaded = true
	return nil
}

// Available возвращает число свободных мест мероприятия.
func (m *Memory) Available(ctx context.Context, resourceID string, capacity int) (int, error) {
	c := m.counter(resourceID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := m.ensure(ctx, c, resourceID); err != nil {
		return 0, err
	}
	return remaining(capacity, c.allocated), nil
}

// TryReserve занимает units мест, если allocated+units не превышает capacity.
func (m *Memory) TryReserve(ctx context.Context, resourceID string, capacity, units int) (bool, int, error) {
	c := m.counter(resourceID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := m.ensure(ctx, c, resourceID); err != nil {
		return false, 0, err
	}
	if c.allocated+units > capacity {
		return false, remaining(capacity, c.allocated), nil
	}
	c.allocated += units
	return true, remaining(capacity, c.allocated), nil
}

// Release освобождает units мест.
func (m *Memory) Release(ctx context.Context, resourceID string, units int) error {
	c := m.counter(resourceID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := m.ensure(ctx, c, resourceID); err != nil {
		return err
	}
	c.allocated -= units
	if c.allocated < 0 {
		c.allocated = 0
	}
	return nil
}

// Forget удаляет счётчик мероприятия.
func (m *Memory) Forget(_ context.Context, resourceID string) error {
	m.mu.Lock()
	delete(m.counters, resourceID)
	m.mu.Unlock()
	return nil
}

func remaining(capacity, allocated int) int {
	if allocated >= capacity {
		return 0
	}
	return capacity - allocated
}
