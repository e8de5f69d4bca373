// Package code генерирует короткие уникальные коды броней вида PREFIX-12345.
package code

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"

	"github.com/mmeshcher/event-booking/internal/model"
)

const (
	// DefaultPrefix используется, если префикс не задан в конфигурации.
	DefaultPrefix = "EVT"
	// DefaultAttempts ограничивает число кандидатов на одну бронь.
	DefaultAttempts = 10

	minNumber = 10000
	maxNumber = 99999
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]+-\d{5}$`)

// ExistsFunc сообщает, занят ли уже код.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// UseFunc пытается закрепить код за новой бронью.
// Ошибка model.ErrDuplicateCode означает коллизию и приводит к новой попытке.
type UseFunc func(ctx context.Context, code string) error

// Generator выдаёт коды броней.
type Generator struct {
	prefix   string
	attempts int
	intn     func(n int) int
}

// Option настраивает Generator.
type Option func(*Generator)

// WithAttempts переопределяет бюджет попыток.
func WithAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.attempts = n
		}
	}
}

// WithSource задаёт источник случайных чисел, возвращающий значение из [0, n).
func WithSource(intn func(n int) int) Option {
	return func(g *Generator) {
		if intn != nil {
			g.intn = intn
		}
	}
}

// NewGenerator создаёт генератор с указанным префиксом.
func NewGenerator(prefix string, opts ...Option) *Generator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	g := &Generator{
		prefix:   prefix,
		attempts: DefaultAttempts,
		intn:     rand.Intn,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Candidate возвращает случайный код без проверки уникальности.
func (g *Generator) Candidate() string {
	return fmt.Sprintf("%s-%05d", g.prefix, minNumber+g.intn(maxNumber-minNumber+1))
}

// Generate перебирает кандидатов, пока use не закрепит один из них.
// Занятые кандидаты и коллизии при вставке расходуют общий бюджет попыток;
// после его исчерпания возвращается model.ErrResourceExhausted.
func (g *Generator) Generate(ctx context.Context, exists ExistsFunc, use UseFunc) (string, error) {
	for i := 0; i < g.attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		candidate := g.Candidate()
		if exists != nil {
			taken, err := exists(ctx, candidate)
			if err != nil {
				return "", fmt.Errorf("check code: %w", err)
			}
			if taken {
				continue
			}
		}

		err := use(ctx, candidate)
		if errors.Is(err, model.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return "", err
		}
		return candidate, nil
	}

	return "", fmt.Errorf("%w: no free booking code after %d attempts", model.ErrResourceExhausted, g.attempts)
}

// Valid проверяет формат кода брони.
func Valid(code string) bool {
	return codePattern.MatchString(code)
}
