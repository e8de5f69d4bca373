package service

import (
	"context"

	"github.com/mmeshcher/event-booking/internal/model"
	"github.com/mmeshcher/event-booking/internal/stats"
)

// PopularResources возвращает опубликованные мероприятия по убыванию числа занятых мест.
func (s *Service) PopularResources(ctx context.Context, limit int) ([]stats.Ranked, error) {
	resources, err := s.repo.ListPublishedResources(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resources))
	for _, r := range resources {
		ids = append(ids, r.ID)
	}
	allocated, err := s.repo.AllocatedUnits(ctx, ids)
	if err != nil {
		return nil, err
	}

	return stats.Rank(resources, allocated, limit), nil
}

// MyStatistics возвращает статистику броней пользователя.
func (s *Service) MyStatistics(ctx context.Context, p model.Principal) (stats.RequesterReport, error) {
	bookings, err := s.repo.ListBookingsByRequester(ctx, p.ID, "")
	if err != nil {
		return stats.RequesterReport{}, err
	}

	seen := make(map[string]struct{})
	ids := make([]string, 0, len(bookings))
	for _, b := range bookings {
		if _, ok := seen[b.ResourceID]; !ok {
			seen[b.ResourceID] = struct{}{}
			ids = append(ids, b.ResourceID)
		}
	}

	list, err := s.repo.ListResourcesByIDs(ctx, ids)
	if err != nil {
		return stats.RequesterReport{}, err
	}
	resources := make(map[string]model.Resource, len(list))
	for _, r := range list {
		resources[r.ID] = r
	}

	return stats.ForRequester(bookings, resources, s.now()), nil
}

// OrganizerStatistics возвращает статистику мероприятий организатора.
func (s *Service) OrganizerStatistics(ctx context.Context, p model.Principal) (stats.OrganizerReport, error) {
	if !p.CanOrganize() {
		return stats.OrganizerReport{}, forbidden("role %s does not own resources", p.Role)
	}

	resources, err := s.repo.ListResourcesByOwner(ctx, p.ID)
	if err != nil {
		return stats.OrganizerReport{}, err
	}
	bookings, err := s.repo.ListBookingsByOwner(ctx, p.ID)
	if err != nil {
		return stats.OrganizerReport{}, err
	}

	return stats.ForOrganizer(resources, bookings), nil
}
