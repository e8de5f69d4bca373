package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound возвращается, если мероприятие или бронь не найдены.
	ErrNotFound = errors.New("not found")
	// ErrValidation возвращается при структурно некорректных входных данных.
	ErrValidation = errors.New("validation error")
	// ErrBusinessRule возвращается, если операция запрещена правилами предметной области.
	ErrBusinessRule = errors.New("business rule violation")
	// ErrForbidden возвращается, если у пользователя нет прав на операцию.
	ErrForbidden = errors.New("forbidden")
	// ErrResourceExhausted возвращается, если исчерпан бюджет генерации кодов брони.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrUnavailable возвращается при временной недоступности хранилища.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrDuplicateCode возвращается хранилищем при нарушении уникальности кода брони.
	ErrDuplicateCode = errors.New("duplicate booking code")
)

// InsufficientCapacityError возвращается, если свободных мест меньше, чем запрошено.
type InsufficientCapacityError struct {
	Requested int
	Available int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity: requested %d, available %d", e.Requested, e.Available)
}

// Unwrap относит ошибку к нарушениям бизнес-правил.
func (e *InsufficientCapacityError) Unwrap() error {
	return ErrBusinessRule
}

// UnitsOutOfRangeError возвращается, если количество мест вне допустимого диапазона.
// Считается одновременно ошибкой валидации и нарушением бизнес-правила.
type UnitsOutOfRangeError struct {
	Units int
	Max   int
}

func (e *UnitsOutOfRangeError) Error() string {
	return fmt.Sprintf("units must be between 1 and %d, got %d", e.Max, e.Units)
}

// Unwrap позволяет сопоставлять ошибку и с ErrValidation, и с ErrBusinessRule.
func (e *UnitsOutOfRangeError) Unwrap() []error {
	return []error{ErrValidation, ErrBusinessRule}
}

// Validationf формирует ошибку валидации с пояснением.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// BusinessRulef формирует ошибку нарушения бизнес-правила с пояснением.
func BusinessRulef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBusinessRule, fmt.Sprintf(format, args...))
}
