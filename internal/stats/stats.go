// Package stats агрегирует брони в отчёты: выручка, заполняемость, популярность.
// Отменённые брони не учитываются ни в денежных суммах, ни в заполняемости.
package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/event-booking/internal/model"
)

// Summary содержит итоги по набору броней.
type Summary struct {
	Bookings   int             `json:"bookings"`
	Active     int             `json:"active"`
	TotalUnits int             `json:"total_units"`
	Revenue    decimal.Decimal `json:"revenue"`
}

// Summarize считает итоги по броням.
func Summarize(bookings []model.Booking) Summary {
	s := Summary{Bookings: len(bookings), Revenue: decimal.Zero}
	for _, b := range bookings {
		if !b.Status.Active() {
			continue
		}
		s.Active++
		s.TotalUnits += b.Units
		s.Revenue = s.Revenue.Add(b.Amount)
	}
	return s
}

// Occupancy возвращает долю занятых мест в диапазоне [0, 1].
func Occupancy(allocated, capacity int) float64 {
	if capacity <= 0 || allocated <= 0 {
		return 0
	}
	if allocated >= capacity {
		return 1
	}
	return float64(allocated) / float64(capacity)
}

// AllocatedByResource возвращает число занятых мест по каждому мероприятию.
func AllocatedByResource(bookings []model.Booking) map[string]int {
	res := make(map[string]int)
	for _, b := range bookings {
		if b.Status.Active() {
			res[b.ResourceID] += b.Units
		}
	}
	return res
}

// Ranked описывает место мероприятия в рейтинге популярности.
type Ranked struct {
	Resource  model.Resource
	Allocated int
	Occupancy float64
}

// Popularity упорядочивает мероприятия по убыванию занятых мест,
// при равенстве раньше идёт мероприятие с более ранним началом.
// limit <= 0 означает отсутствие ограничения.
func Popularity(resources []model.Resource, bookings []model.Booking, limit int) []Ranked {
	return Rank(resources, AllocatedByResource(bookings), limit)
}

// Rank строит рейтинг по заранее посчитанному числу занятых мест.
func Rank(resources []model.Resource, allocated map[string]int, limit int) []Ranked {
	ranked := make([]Ranked, 0, len(resources))
	for _, r := range resources {
		n := allocated[r.ID]
		ranked = append(ranked, Ranked{
			Resource:  r,
			Allocated: n,
			Occupancy: Occupancy(n, r.Capacity),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Allocated != ranked[j].Allocated {
			return ranked[i].Allocated > ranked[j].Allocated
		}
		return ranked[i].Resource.StartTime.Before(ranked[j].Resource.StartTime)
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// RequesterReport содержит статистику броней одного пользователя.
type RequesterReport struct {
	TotalBookings int             `json:"total_bookings"`
	Spent         decimal.Decimal `json:"spent"`
	Upcoming      int             `json:"upcoming"`
}

// ForRequester считает статистику пользователя. resources должен содержать
// мероприятия всех переданных броней; брони без мероприятия не считаются предстоящими.
func ForRequester(bookings []model.Booking, resources map[string]model.Resource, now time.Time) RequesterReport {
	s := Summarize(bookings)
	rep := RequesterReport{TotalBookings: s.Bookings, Spent: s.Revenue}

	for _, b := range bookings {
		if !b.Status.Active() {
			continue
		}
		if r, ok := resources[b.ResourceID]; ok && r.StartTime.After(now) {
			rep.Upcoming++
		}
	}
	return rep
}

// OrganizerReport содержит статистику мероприятий организатора.
type OrganizerReport struct {
	Resources         int             `json:"resources"`
	Published         int             `json:"published"`
	Revenue           decimal.Decimal `json:"revenue"`
	AverageAttendance float64         `json:"average_attendance"`
}

// ForOrganizer считает статистику по мероприятиям и их броням.
func ForOrganizer(resources []model.Resource, bookings []model.Booking) OrganizerReport {
	owned := make(map[string]struct{}, len(resources))
	rep := OrganizerReport{Resources: len(resources), Revenue: decimal.Zero}
	for _, r := range resources {
		owned[r.ID] = struct{}{}
		if r.Status == model.ResourceStatusPublished {
			rep.Published++
		}
	}

	total := 0
	for _, b := range bookings {
		if _, ok := owned[b.ResourceID]; !ok || !b.Status.Active() {
			continue
		}
		total += b.Units
		rep.Revenue = rep.Revenue.Add(b.Amount)
	}

	if len(resources) > 0 {
		rep.AverageAttendance = float64(total) / float64(len(resources))
	}
	return rep
}
