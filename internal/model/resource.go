package model

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// ResourceStatus описывает этап жизненного цикла мероприятия.
type ResourceStatus string

const (
	ResourceStatusDraft     ResourceStatus = "DRAFT"
	ResourceStatusPublished ResourceStatus = "PUBLISHED"
	ResourceStatusCancelled ResourceStatus = "CANCELLED"
	ResourceStatusFinished  ResourceStatus = "FINISHED"
)

// Terminal сообщает, является ли статус конечным.
func (s ResourceStatus) Terminal() bool {
	return s == ResourceStatusCancelled || s == ResourceStatusFinished
}

// Category описывает тематику мероприятия.
type Category string

const (
	CategoryConcert    Category = "CONCERT"
	CategoryTheatre    Category = "THEATRE"
	CategoryConference Category = "CONFERENCE"
	CategorySport      Category = "SPORT"
	CategoryOther      Category = "OTHER"
)

// Valid сообщает, является ли категория одной из известных.
func (c Category) Valid() bool {
	switch c {
	case CategoryConcert, CategoryTheatre, CategoryConference, CategorySport, CategoryOther:
		return true
	}
	return false
}

const (
	titleMinLen       = 5
	titleMaxLen       = 100
	descriptionMaxLen = 1000
	priceScale        = 2
)

// Resource описывает мероприятие с ограниченным числом мест.
type Resource struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Category    Category
	Location    string
	City        string
	ImageURL    string
	Capacity    int
	UnitPrice   decimal.Decimal
	StartTime   time.Time
	EndTime     time.Time
	Status      ResourceStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ResourceInput содержит изменяемые пользователем поля мероприятия.
type ResourceInput struct {
	Title       string
	Description string
	Category    Category
	Location    string
	City        string
	ImageURL    string
	Capacity    int
	UnitPrice   decimal.Decimal
	StartTime   time.Time
	EndTime     time.Time
}

// Validate проверяет структурную корректность полей мероприятия.
// Поля, обязательные только для публикации, здесь могут быть пустыми.
func (in ResourceInput) Validate() error {
	if in.Capacity < 1 {
		return Validationf("capacity must be at least 1")
	}
	if in.UnitPrice.IsNegative() {
		return Validationf("unit price must not be negative")
	}
	if !in.UnitPrice.Equal(in.UnitPrice.Round(priceScale)) {
		return Validationf("unit price must have at most %d decimal places", priceScale)
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return Validationf("start and end time are required")
	}
	if !in.EndTime.After(in.StartTime) {
		return Validationf("end time must be after start time")
	}
	if title := strings.TrimSpace(in.Title); title != "" {
		n := utf8.RuneCountInString(title)
		if n < titleMinLen || n > titleMaxLen {
			return Validationf("title must be between %d and %d characters", titleMinLen, titleMaxLen)
		}
	}
	if utf8.RuneCountInString(in.Description) > descriptionMaxLen {
		return Validationf("description must not exceed %d characters", descriptionMaxLen)
	}
	if in.Category != "" && !in.Category.Valid() {
		return Validationf("unknown category %q", in.Category)
	}
	return nil
}

// NewResource создаёт черновик мероприятия, принадлежащий ownerID.
func NewResource(id, ownerID string, in ResourceInput, now time.Time) (Resource, error) {
	if err := in.Validate(); err != nil {
		return Resource{}, err
	}

	r := Resource{
		ID:        id,
		OwnerID:   ownerID,
		Status:    ResourceStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.apply(in)
	return r, nil
}

// Update применяет новые значения полей к мероприятию.
// Вместимость можно менять только у черновика.
func (r *Resource) Update(in ResourceInput, now time.Time) error {
	if !r.Modifiable() {
		return BusinessRulef("resource in status %s cannot be modified", r.Status)
	}
	if err := in.Validate(); err != nil {
		return err
	}
	if r.Status != ResourceStatusDraft && in.Capacity != r.Capacity {
		return BusinessRulef("capacity is fixed once the resource is published")
	}

	r.apply(in)
	r.UpdatedAt = now
	return nil
}

func (r *Resource) apply(in ResourceInput) {
	r.Title = strings.TrimSpace(in.Title)
	r.Description = in.Description
	r.Category = in.Category
	r.Location = strings.TrimSpace(in.Location)
	r.City = strings.TrimSpace(in.City)
	r.ImageURL = in.ImageURL
	r.Capacity = in.Capacity
	r.UnitPrice = in.UnitPrice
	r.StartTime = in.StartTime
	r.EndTime = in.EndTime
}

// Modifiable сообщает, можно ли изменять поля мероприятия.
func (r Resource) Modifiable() bool {
	return r.Status == ResourceStatusDraft || r.Status == ResourceStatusPublished
}

// OwnedBy сообщает, может ли пользователь управлять мероприятием.
func (r Resource) OwnedBy(p Principal) bool {
	return p.IsAdmin() || (r.OwnerID != "" && r.OwnerID == p.ID)
}

// Publish переводит черновик в статус PUBLISHED.
func (r *Resource) Publish(now time.Time) error {
	if r.Status != ResourceStatusDraft {
		return BusinessRulef("only draft resources can be published, current status %s", r.Status)
	}

	var missing []string
	if r.Title == "" {
		missing = append(missing, "title")
	}
	if r.Category == "" {
		missing = append(missing, "category")
	}
	if r.Location == "" {
		missing = append(missing, "location")
	}
	if r.City == "" {
		missing = append(missing, "city")
	}
	if r.Capacity < 1 {
		missing = append(missing, "capacity")
	}
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		missing = append(missing, "times")
	}
	if len(missing) > 0 {
		return Validationf("missing required fields: %s", strings.Join(missing, ", "))
	}

	r.Status = ResourceStatusPublished
	r.UpdatedAt = now
	return nil
}

// Cancel переводит мероприятие в статус CANCELLED.
func (r *Resource) Cancel(now time.Time) error {
	if r.Status.Terminal() {
		return BusinessRulef("resource is already %s", r.Status)
	}
	r.Status = ResourceStatusCancelled
	r.UpdatedAt = now
	return nil
}

// Bookable сообщает, принимает ли мероприятие новые брони.
func (r Resource) Bookable() bool {
	return r.Status == ResourceStatusPublished
}

// Ended сообщает, завершилось ли мероприятие к моменту now.
func (r Resource) Ended(now time.Time) bool {
	return r.EndTime.Before(now)
}
