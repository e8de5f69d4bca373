package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/event-booking/internal/code"
	"github.com/mmeshcher/event-booking/internal/events"
	"github.com/mmeshcher/event-booking/internal/model"
)

var activeStatuses = []model.BookingStatus{model.BookingStatusPending, model.BookingStatusConfirmed}

// CreateBooking допускает бронь units мест на мероприятие resourceID.
//
// Места сначала атомарно занимаются в учёте, затем подбирается код и бронь
// сохраняется. Если сохранение не удалось, занятые места возвращаются.
func (s *Service) CreateBooking(ctx context.Context, p model.Principal, resourceID string, units int, comment string) (model.Booking, error) {
	res, err := s.repo.GetResource(ctx, resourceID)
	if err != nil {
		return model.Booking{}, err
	}
	if !res.Bookable() {
		return model.Booking{}, model.BusinessRulef("resource %s is not open for booking, status %s", res.ID, res.Status)
	}
	if units < 1 || units > s.policy.MaxUnits {
		return model.Booking{}, &model.UnitsOutOfRangeError{Units: units, Max: s.policy.MaxUnits}
	}

	status := model.BookingStatusPending
	if s.policy.AutoConfirm {
		status = model.BookingStatusConfirmed
	}
	b, err := model.NewBooking(s.newID(), res, p.ID, units, comment, status, "", s.now())
	if err != nil {
		return model.Booking{}, err
	}

	ok, available, err := s.ledger.TryReserve(ctx, res.ID, res.Capacity, units)
	if err != nil {
		return model.Booking{}, fmt.Errorf("reserve units: %w", err)
	}
	if !ok {
		return model.Booking{}, &model.InsufficientCapacityError{Requested: units, Available: available}
	}

	_, err = s.codes.Generate(ctx, s.repo.CodeExists, func(ctx context.Context, c string) error {
		b.Code = c
		return s.repo.InsertBooking(ctx, b)
	})
	if err != nil {
		s.release(ctx, res.ID, units)
		return model.Booking{}, err
	}

	s.logger.Info("booking created",
		zap.String("booking_id", b.ID),
		zap.String("resource_id", res.ID),
		zap.String("code", b.Code),
		zap.Int("units", units),
		zap.Int("available", available),
	)
	s.emit(ctx, bookingEvent(events.BookingCreated, b))
	return b, nil
}

// release возвращает места в учёт. Отмена ctx не прерывает возврат.
// Если вернуть не удалось, счётчик сбрасывается и будет восстановлен из хранилища.
func (s *Service) release(ctx context.Context, resourceID string, units int) {
	ctx = context.WithoutCancel(ctx)
	err := s.ledger.Release(ctx, resourceID, units)
	if err == nil {
		return
	}
	s.logger.Error("release units failed", zap.String("resource_id", resourceID), zap.Int("units", units), zap.Error(err))
	if err := s.ledger.Forget(ctx, resourceID); err != nil {
		s.logger.Error("forget ledger counter failed", zap.String("resource_id", resourceID), zap.Error(err))
	}
}

// ConfirmBooking переводит бронь из PENDING в CONFIRMED. Доступно владельцу мероприятия.
func (s *Service) ConfirmBooking(ctx context.Context, p model.Principal, id string) (model.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	if _, err := s.ownedResource(ctx, p, b.ResourceID); err != nil {
		return model.Booking{}, err
	}
	if err := b.Confirm(s.now()); err != nil {
		return model.Booking{}, err
	}

	ok, err := s.repo.UpdateBookingStatus(ctx, b.ID, []model.BookingStatus{model.BookingStatusPending}, model.BookingStatusConfirmed, b.UpdatedAt)
	if err != nil {
		return model.Booking{}, err
	}
	if !ok {
		return model.Booking{}, model.BusinessRulef("booking %s is no longer pending", b.Code)
	}

	s.logger.Info("booking confirmed", zap.String("booking_id", b.ID), zap.String("code", b.Code))
	s.emit(ctx, bookingEvent(events.BookingConfirmed, b))
	return b, nil
}

// CancelBooking отменяет бронь и возвращает её места. Отмена разрешена
// только раньше, чем за Policy.CancelWindow до начала мероприятия.
func (s *Service) CancelBooking(ctx context.Context, p model.Principal, id string) (model.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	if !b.MayCancel(p) {
		return model.Booking{}, forbidden("booking %s belongs to another user", b.Code)
	}

	res, err := s.repo.GetResource(ctx, b.ResourceID)
	if err != nil {
		return model.Booking{}, err
	}
	now := s.now()
	if err := b.CheckCancellable(res.StartTime, now, s.policy.CancelWindow); err != nil {
		return model.Booking{}, err
	}

	// Счётчик должен быть загружен до смены статуса, иначе загрузка учтёт отмену дважды.
	if _, err := s.ledger.Available(ctx, res.ID, res.Capacity); err != nil {
		return model.Booking{}, fmt.Errorf("seed ledger: %w", err)
	}

	ok, err := s.repo.UpdateBookingStatus(ctx, b.ID, activeStatuses, model.BookingStatusCancelled, now)
	if err != nil {
		return model.Booking{}, err
	}
	if !ok {
		return model.Booking{}, model.BusinessRulef("booking %s is already cancelled", b.Code)
	}
	s.release(ctx, res.ID, b.Units)

	b.Status = model.BookingStatusCancelled
	b.UpdatedAt = now

	s.logger.Info("booking cancelled", zap.String("booking_id", b.ID), zap.String("code", b.Code), zap.Int("units", b.Units))
	s.emit(ctx, bookingEvent(events.BookingCancelled, b))
	return b, nil
}

// canView сообщает, может ли p видеть бронь: это её автор, владелец мероприятия или администратор.
func (s *Service) canView(ctx context.Context, p model.Principal, b model.Booking) (model.Resource, error) {
	res, err := s.repo.GetResource(ctx, b.ResourceID)
	if err != nil {
		return model.Resource{}, err
	}
	if b.RequesterID != p.ID && !res.OwnedBy(p) {
		return model.Resource{}, forbidden("booking %s belongs to another user", b.Code)
	}
	return res, nil
}

// GetBooking возвращает бронь по идентификатору.
func (s *Service) GetBooking(ctx context.Context, p model.Principal, id string) (model.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	if _, err := s.canView(ctx, p, b); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

// VerifyBookingCode находит бронь по коду, например при проверке на входе.
func (s *Service) VerifyBookingCode(ctx context.Context, p model.Principal, c string) (model.Booking, error) {
	if !code.Valid(c) {
		return model.Booking{}, model.Validationf("malformed booking code %q", c)
	}
	b, err := s.repo.FindBookingByCode(ctx, c)
	if err != nil {
		return model.Booking{}, err
	}
	if _, err := s.canView(ctx, p, b); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

// ListMyBookings возвращает брони пользователя; пустой status означает любой статус.
func (s *Service) ListMyBookings(ctx context.Context, p model.Principal, status model.BookingStatus) ([]model.Booking, error) {
	if status != "" && !status.Valid() {
		return nil, model.Validationf("unknown booking status %q", status)
	}
	return s.repo.ListBookingsByRequester(ctx, p.ID, status)
}

// ListResourceBookings возвращает брони мероприятия его владельцу.
func (s *Service) ListResourceBookings(ctx context.Context, p model.Principal, resourceID string) ([]model.Booking, error) {
	if _, err := s.ownedResource(ctx, p, resourceID); err != nil {
		return nil, err
	}
	return s.repo.ListBookingsByResource(ctx, resourceID)
}

// BookingSummary содержит сводку брони вместе с данными мероприятия.
type BookingSummary struct {
	Code          string
	ResourceID    string
	ResourceTitle string
	StartTime     time.Time
	Location      string
	City          string
	Units         int
	Amount        decimal.Decimal
	Status        model.BookingStatus
}

// BookingSummary возвращает сводку брони.
func (s *Service) BookingSummary(ctx context.Context, p model.Principal, id string) (BookingSummary, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return BookingSummary{}, err
	}
	res, err := s.canView(ctx, p, b)
	if err != nil {
		return BookingSummary{}, err
	}

	return BookingSummary{
		Code:          b.Code,
		ResourceID:    res.ID,
		ResourceTitle: res.Title,
		StartTime:     res.StartTime,
		Location:      res.Location,
		City:          res.City,
		Units:         b.Units,
		Amount:        b.Amount,
		Status:        b.Status,
	}, nil
}
