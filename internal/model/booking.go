package model

import (
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// BookingStatus описывает статус брони.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// Valid сообщает, является ли статус одним из известных.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled:
		return true
	}
	return false
}

// Active сообщает, занимает ли бронь места в мероприятии.
func (s BookingStatus) Active() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

const commentMaxLen = 500

// Booking описывает бронь мест на мероприятие.
type Booking struct {
	ID          string
	ResourceID  string
	RequesterID string
	Units       int
	Status      BookingStatus
	Code        string
	Amount      decimal.Decimal
	Comment     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewBooking создаёт бронь с явно указанным начальным статусом.
// Сумма вычисляется один раз и дальше не пересчитывается.
func NewBooking(id string, res Resource, requesterID string, units int, comment string, status BookingStatus, code string, now time.Time) (Booking, error) {
	if status != BookingStatusPending && status != BookingStatusConfirmed {
		return Booking{}, Validationf("initial booking status must be PENDING or CONFIRMED, got %q", status)
	}
	if utf8.RuneCountInString(comment) > commentMaxLen {
		return Booking{}, Validationf("comment must not exceed %d characters", commentMaxLen)
	}

	return Booking{
		ID:          id,
		ResourceID:  res.ID,
		RequesterID: requesterID,
		Units:       units,
		Status:      status,
		Code:        code,
		Amount:      res.UnitPrice.Mul(decimal.NewFromInt(int64(units))),
		Comment:     comment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Confirm переводит бронь из PENDING в CONFIRMED.
func (b *Booking) Confirm(now time.Time) error {
	if b.Status != BookingStatusPending {
		return BusinessRulef("only pending bookings can be confirmed, current status %s", b.Status)
	}
	b.Status = BookingStatusConfirmed
	b.UpdatedAt = now
	return nil
}

// MayCancel сообщает, может ли пользователь отменить бронь.
func (b Booking) MayCancel(p Principal) bool {
	return p.IsAdmin() || b.RequesterID == p.ID
}

// CheckCancellable проверяет, что бронь ещё можно отменить в момент now.
// Отмена разрешена, только если до начала мероприятия остаётся больше window.
func (b Booking) CheckCancellable(start, now time.Time, window time.Duration) error {
	if b.Status == BookingStatusCancelled {
		return BusinessRulef("booking %s is already cancelled", b.Code)
	}
	if !now.Add(window).Before(start) {
		return BusinessRulef("cancellation window passed")
	}
	return nil
}
