// Package service реализует бизнес-логику сервиса бронирования мероприятий:
// допуск броней с учётом вместимости, жизненный цикл мероприятий и броней, статистику.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/event-booking/internal/clock"
	"github.com/mmeshcher/event-booking/internal/code"
	"github.com/mmeshcher/event-booking/internal/events"
	"github.com/mmeshcher/event-booking/internal/ledger"
	"github.com/mmeshcher/event-booking/internal/model"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Ping(ctx context.Context) error
	Close() error

	GetResource(ctx context.Context, id string) (model.Resource, error)
	InsertResource(ctx context.Context, res model.Resource) error
	UpdateResource(ctx context.Context, res model.Resource, from model.ResourceStatus) error
	DeleteResource(ctx context.Context, id string) error
	ListPublishedResources(ctx context.Context) ([]model.Resource, error)
	ListResourcesByOwner(ctx context.Context, ownerID string) ([]model.Resource, error)
	ListResourcesByIDs(ctx context.Context, ids []string) ([]model.Resource, error)
	FinishEnded(ctx context.Context, now time.Time) ([]string, error)

	GetBooking(ctx context.Context, id string) (model.Booking, error)
	FindBookingByCode(ctx context.Context, code string) (model.Booking, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	InsertBooking(ctx context.Context, b model.Booking) error
	UpdateBookingStatus(ctx context.Context, id string, from []model.BookingStatus, to model.BookingStatus, at time.Time) (bool, error)
	CancelActiveBookings(ctx context.Context, resourceID string, at time.Time) ([]model.Booking, error)
	ListBookingsByRequester(ctx context.Context, requesterID string, status model.BookingStatus) ([]model.Booking, error)
	ListBookingsByResource(ctx context.Context, resourceID string) ([]model.Booking, error)
	ListBookingsByOwner(ctx context.Context, ownerID string) ([]model.Booking, error)
	CountBookings(ctx context.Context, resourceID string) (int, error)
	SumActiveUnits(ctx context.Context, resourceID string) (int, error)
	AllocatedUnits(ctx context.Context, resourceIDs []string) (map[string]int, error)
}

// Policy содержит настраиваемые правила допуска и отмены броней.
type Policy struct {
	// MaxUnits задаёт максимальное число мест в одной брони.
	MaxUnits int
	// CancelWindow задаёт минимальный запас времени до начала мероприятия для отмены брони.
	CancelWindow time.Duration
	// AutoConfirm создаёт брони сразу в статусе CONFIRMED.
	AutoConfirm bool
	// CascadeCancel отменяет все брони при отмене мероприятия.
	CascadeCancel bool
}

// DefaultPolicy возвращает правила по умолчанию.
func DefaultPolicy() Policy {
	return Policy{
		MaxUnits:     10,
		CancelWindow: 48 * time.Hour,
	}
}

// Service содержит бизнес-логику сервиса бронирования.
type Service struct {
	repo      Repository
	ledger    ledger.Ledger
	codes     *code.Generator
	clock     clock.Clock
	publisher events.Publisher
	logger    *zap.Logger
	policy    Policy
	newID     func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithLedger задаёт реализацию учёта мест.
func WithLedger(l ledger.Ledger) Option {
	return func(s *Service) { s.ledger = l }
}

// WithCodeGenerator задаёт генератор кодов броней.
func WithCodeGenerator(g *code.Generator) Option {
	return func(s *Service) { s.codes = g }
}

// WithClock задаёт источник текущего времени.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithPublisher задаёт получателя доменных событий.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger задаёт логгер.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithPolicy задаёт правила допуска и отмены.
func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithIDGenerator задаёт генератор идентификаторов сущностей.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService создаёт новый сервис поверх репозитория. По умолчанию места учитываются
// в памяти процесса, а счётчики восстанавливаются из репозитория.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		codes:     code.NewGenerator(code.DefaultPrefix),
		clock:     clock.NewSystem(),
		publisher: events.Nop{},
		logger:    zap.NewNop(),
		policy:    DefaultPolicy(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ledger == nil {
		s.ledger = ledger.NewMemory(repo.SumActiveUnits)
	}
	if s.policy.MaxUnits < 1 {
		s.policy.MaxUnits = DefaultPolicy().MaxUnits
	}
	return s
}

// Policy возвращает действующие правила.
func (s *Service) Policy() Policy {
	return s.policy
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func (s *Service) now() time.Time {
	return s.clock.Now()
}

func forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrForbidden, fmt.Sprintf(format, args...))
}

// emit публикует событие; ошибка брокера не влияет на результат операции.
func (s *Service) emit(ctx context.Context, ev events.Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now()
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish event failed",
			zap.String("type", ev.Type),
			zap.String("resource_id", ev.ResourceID),
			zap.String("booking_id", ev.BookingID),
			zap.Error(err),
		)
	}
}

func bookingEvent(typ string, b model.Booking) events.Event {
	return events.Event{
		Type:        typ,
		ResourceID:  b.ResourceID,
		BookingID:   b.ID,
		Code:        b.Code,
		RequesterID: b.RequesterID,
		Units:       b.Units,
		Amount:      b.Amount.StringFixed(2),
		Status:      string(b.Status),
		OccurredAt:  b.UpdatedAt,
	}
}

func resourceEvent(typ string, res model.Resource) events.Event {
	return events.Event{
		Type:       typ,
		ResourceID: res.ID,
		Status:     string(res.Status),
		OccurredAt: res.UpdatedAt,
	}
}
