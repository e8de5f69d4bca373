package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/event-booking/internal/model"
)

// MemoryRepository хранит мероприятия и брони в памяти процесса.
// Повторяет гарантии PostgresRepository: уникальность кода, повторную проверку
// вместимости при вставке, условную смену статуса и запрет удаления мероприятия с бронями.
type MemoryRepository struct {
	mu        sync.RWMutex
	resources map[string]model.Resource
	bookings  map[string]model.Booking
	codes     map[string]string
	order     []string
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		resources: make(map[string]model.Resource),
		bookings:  make(map[string]model.Booking),
		codes:     make(map[string]string),
	}
}

// Ping всегда успешен.
func (m *MemoryRepository) Ping(context.Context) error { return nil }

// Close ничего не делает.
func (m *MemoryRepository) Close() error { return nil }

// GetResource возвращает мероприятие по идентификатору.
func (m *MemoryRepository) GetResource(_ context.Context, id string) (model.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res, ok := m.resources[id]
	if !ok {
		return model.Resource{}, fmt.Errorf("%w: resource %s", model.ErrNotFound, id)
	}
	return res, nil
}

// InsertResource сохраняет новое мероприятие.
func (m *MemoryRepository) InsertResource(_ context.Context, res model.Resource) error {
	if res.Capacity < 1 || !res.EndTime.After(res.StartTime) {
		return model.Validationf("resource %s violates storage constraints", res.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.resources[res.ID]; ok {
		return model.BusinessRulef("resource %s already exists", res.ID)
	}
	m.resources[res.ID] = res
	return nil
}

// UpdateResource записывает мероприятие, только если его текущий статус равен from.
func (m *MemoryRepository) UpdateResource(_ context.Context, res model.Resource, from model.ResourceStatus) error {
	if res.Capacity < 1 || !res.EndTime.After(res.StartTime) {
		return model.Validationf("resource %s violates storage constraints", res.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.resources[res.ID]
	if !ok {
		return fmt.Errorf("%w: resource %s", model.ErrNotFound, res.ID)
	}
	if prev.Status != from {
		return model.BusinessRulef("resource %s is no longer %s", res.ID, from)
	}
	res.OwnerID = prev.OwnerID
	res.CreatedAt = prev.CreatedAt
	m.resources[res.ID] = res
	return nil
}

// DeleteResource удаляет мероприятие без броней.
func (m *MemoryRepository) DeleteResource(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.resources[id]; !ok {
		return fmt.Errorf("%w: resource %s", model.ErrNotFound, id)
	}
	for _, b := range m.bookings {
		if b.ResourceID == id {
			return model.BusinessRulef("resource %s has bookings and cannot be deleted", id)
		}
	}
	delete(m.resources, id)
	return nil
}

func (m *MemoryRepository) filterResources(keep func(model.Resource) bool, less func(a, b model.Resource) bool) []model.Resource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []model.Resource
	for _, r := range m.resources {
		if keep(r) {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return less(res[i], res[j]) })
	return res
}

func byStart(a, b model.Resource) bool {
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.Before(b.StartTime)
	}
	return a.ID < b.ID
}

// ListPublishedResources возвращает опубликованные мероприятия в порядке начала.
func (m *MemoryRepository) ListPublishedResources(context.Context) ([]model.Resource, error) {
	return m.filterResources(func(r model.Resource) bool {
		return r.Status == model.ResourceStatusPublished
	}, byStart), nil
}

// ListResourcesByOwner возвращает мероприятия организатора, новые первыми.
func (m *MemoryRepository) ListResourcesByOwner(_ context.Context, ownerID string) ([]model.Resource, error) {
	return m.filterResources(func(r model.Resource) bool {
		return r.OwnerID == ownerID
	}, func(a, b model.Resource) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	}), nil
}

// ListResourcesByIDs возвращает мероприятия с указанными идентификаторами.
func (m *MemoryRepository) ListResourcesByIDs(_ context.Context, ids []string) ([]model.Resource, error) {
	return m.filterResources(func(r model.Resource) bool {
		return slices.Contains(ids, r.ID)
	}, byStart), nil
}

// FinishEnded переводит закончившиеся опубликованные мероприятия в FINISHED.
func (m *MemoryRepository) FinishEnded(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, r := range m.resources {
		if r.Status == model.ResourceStatusPublished && r.Ended(now) {
			r.Status = model.ResourceStatusFinished
			r.UpdatedAt = now
			m.resources[id] = r
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// GetBooking возвращает бронь по идентификатору.
func (m *MemoryRepository) GetBooking(_ context.Context, id string) (model.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bookings[id]
	if !ok {
		return model.Booking{}, fmt.Errorf("%w: booking %s", model.ErrNotFound, id)
	}
	return b, nil
}

// FindBookingByCode возвращает бронь по коду.
func (m *MemoryRepository) FindBookingByCode(_ context.Context, code string) (model.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.codes[code]
	if !ok {
		return model.Booking{}, fmt.Errorf("%w: booking %s", model.ErrNotFound, code)
	}
	return m.bookings[id], nil
}

// CodeExists сообщает, занят ли код брони.
func (m *MemoryRepository) CodeExists(_ context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.codes[code]
	return ok, nil
}

// InsertBooking сохраняет новую бронь с повторной проверкой вместимости.
func (m *MemoryRepository) InsertBooking(_ context.Context, b model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.resources[b.ResourceID]
	if !ok {
		return fmt.Errorf("%w: resource %s", model.ErrNotFound, b.ResourceID)
	}
	if stored, ok := m.bookings[b.ID]; ok {
		if !sameBooking(stored, b) {
			return model.BusinessRulef("booking %s already exists", b.ID)
		}
		return nil
	}
	if !res.Bookable() {
		return model.BusinessRulef("resource %s is not open for booking, status %s", b.ResourceID, res.Status)
	}
	if _, taken := m.codes[b.Code]; taken {
		return fmt.Errorf("%w: %s", model.ErrDuplicateCode, b.Code)
	}

	allocated := m.allocatedLocked(b.ResourceID)
	if allocated+b.Units > res.Capacity {
		return &model.InsufficientCapacityError{Requested: b.Units, Available: max(res.Capacity-allocated, 0)}
	}

	m.bookings[b.ID] = b
	m.codes[b.Code] = b.ID
	m.order = append(m.order, b.ID)
	return nil
}

func (m *MemoryRepository) allocatedLocked(resourceID string) int {
	n := 0
	for _, b := range m.bookings {
		if b.ResourceID == resourceID && b.Status.Active() {
			n += b.Units
		}
	}
	return n
}

// UpdateBookingStatus переводит бронь в статус to, только если текущий статус входит в from.
func (m *MemoryRepository) UpdateBookingStatus(_ context.Context, id string, from []model.BookingStatus, to model.BookingStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok || !slices.Contains(from, b.Status) {
		return false, nil
	}
	b.Status = to
	b.UpdatedAt = at
	m.bookings[id] = b
	return true, nil
}

// CancelActiveBookings отменяет все неотменённые брони мероприятия и возвращает их.
func (m *MemoryRepository) CancelActiveBookings(_ context.Context, resourceID string, at time.Time) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Booking
	for _, id := range m.order {
		b := m.bookings[id]
		if b.ResourceID != resourceID || !b.Status.Active() {
			continue
		}
		b.Status = model.BookingStatusCancelled
		b.UpdatedAt = at
		m.bookings[id] = b
		res = append(res, b)
	}
	return res, nil
}

func (m *MemoryRepository) filterBookings(keep func(model.Booking) bool) []model.Booking {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []model.Booking
	for _, id := range m.order {
		if b := m.bookings[id]; keep(b) {
			res = append(res, b)
		}
	}
	return res
}

// ListBookingsByRequester возвращает брони пользователя, новые первыми.
func (m *MemoryRepository) ListBookingsByRequester(_ context.Context, requesterID string, status model.BookingStatus) ([]model.Booking, error) {
	res := m.filterBookings(func(b model.Booking) bool {
		return b.RequesterID == requesterID && (status == "" || b.Status == status)
	})
	slices.Reverse(res)
	return res, nil
}

// ListBookingsByResource возвращает брони мероприятия в порядке создания.
func (m *MemoryRepository) ListBookingsByResource(_ context.Context, resourceID string) ([]model.Booking, error) {
	return m.filterBookings(func(b model.Booking) bool {
		return b.ResourceID == resourceID
	}), nil
}

// ListBookingsByOwner возвращает брони всех мероприятий организатора.
func (m *MemoryRepository) ListBookingsByOwner(_ context.Context, ownerID string) ([]model.Booking, error) {
	m.mu.RLock()
	owned := make(map[string]struct{})
	for id, r := range m.resources {
		if r.OwnerID == ownerID {
			owned[id] = struct{}{}
		}
	}
	m.mu.RUnlock()

	return m.filterBookings(func(b model.Booking) bool {
		_, ok := owned[b.ResourceID]
		return ok
	}), nil
}

// CountBookings возвращает число броней мероприятия в любом статусе.
func (m *MemoryRepository) CountBookings(ctx context.Context, resourceID string) (int, error) {
	res, _ := m.ListBookingsByResource(ctx, resourceID)
	return len(res), nil
}

// SumActiveUnits возвращает число мест в неотменённых бронях мероприятия.
func (m *MemoryRepository) SumActiveUnits(_ context.Context, resourceID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allocatedLocked(resourceID), nil
}

// AllocatedUnits возвращает число занятых мест для каждого из мероприятий.
func (m *MemoryRepository) AllocatedUnits(_ context.Context, resourceIDs []string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make(map[string]int, len(resourceIDs))
	for _, id := range resourceIDs {
		if n := m.allocatedLocked(id); n > 0 {
			res[id] = n
		}
	}
	return res, nil
}
