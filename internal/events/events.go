// Package events публикует доменные события сервиса бронирования в брокер сообщений.
package events

import (
	"context"
	"time"
)

// Ключи маршрутизации доменных событий.
const (
	BookingCreated    = "booking.created"
	BookingConfirmed  = "booking.confirmed"
	BookingCancelled  = "booking.cancelled"
	ResourcePublished = "resource.published"
	ResourceCancelled = "resource.cancelled"
	ResourceFinished  = "resource.finished"
)

// Event описывает изменение состояния брони или мероприятия.
type Event struct {
	Type        string    `json:"type"`
	ResourceID  string    `json:"resource_id"`
	BookingID   string    `json:"booking_id,omitempty"`
	Code        string    `json:"code,omitempty"`
	RequesterID string    `json:"requester_id,omitempty"`
	Units       int       `json:"units,omitempty"`
	Amount      string    `json:"amount,omitempty"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher отправляет доменные события.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop отбрасывает события; используется, когда брокер не настроен.
type Nop struct{}

// Publish ничего не делает.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close ничего не делает.
func (Nop) Close() error { return nil }
