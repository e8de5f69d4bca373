// Package clock позволяет подменять источник текущего времени в сервисе и тестах.
package clock

import (
	"sync"
	"time"
)

// Clock возвращает текущее время.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem возвращает часы на основе time.Now в UTC.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Manual возвращает время, выставленное вручную.
type Manual struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManual возвращает часы, показывающие t, пока их не переставят.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t.UTC()}
}

// Now возвращает установленное время.
func (m *Manual) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Set устанавливает текущее время.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t.UTC()
	m.mu.Unlock()
}

// Advance сдвигает текущее время на d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
