// Package model содержит доменные сущности сервиса бронирования мероприятий.
package model

// Role описывает роль аутентифицированного пользователя.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleOrganizer Role = "ORGANIZER"
	RoleClient    Role = "CLIENT"
)

// Valid сообщает, является ли роль одной из известных.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOrganizer, RoleClient:
		return true
	}
	return false
}

// Principal описывает пользователя, от имени которого выполняется операция.
type Principal struct {
	ID   string
	Role Role
}

// IsAdmin сообщает, обладает ли пользователь правами администратора.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanOrganize сообщает, может ли пользователь создавать мероприятия.
func (p Principal) CanOrganize() bool {
	return p.Role == RoleAdmin || p.Role == RoleOrganizer
}
