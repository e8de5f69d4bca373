package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/event-booking/internal/events"
	"github.com/mmeshcher/event-booking/internal/model"
)

// CreateResource создаёт черновик мероприятия от имени организатора.
func (s *Service) CreateResource(ctx context.Context, p model.Principal, in model.ResourceInput) (model.Resource, error) {
	if !p.CanOrganize() {
		return model.Resource{}, forbidden("role %s cannot create resources", p.Role)
	}

	res, err := model.NewResource(s.newID(), p.ID, in, s.now())
	if err != nil {
		return model.Resource{}, err
	}
	if err := s.repo.InsertResource(ctx, res); err != nil {
		return model.Resource{}, err
	}

	s.logger.Info("resource created", zap.String("resource_id", res.ID), zap.String("owner_id", res.OwnerID))
	return res, nil
}

// ownedResource загружает мероприятие и проверяет, что p может им управлять.
func (s *Service) ownedResource(ctx context.Context, p model.Principal, id string) (model.Resource, error) {
	res, err := s.repo.GetResource(ctx, id)
	if err != nil {
		return model.Resource{}, err
	}
	if !res.OwnedBy(p) {
		return model.Resource{}, forbidden("resource %s belongs to another organizer", id)
	}
	return res, nil
}

// UpdateResource изменяет поля черновика или опубликованного мероприятия.
func (s *Service) UpdateResource(ctx context.Context, p model.Principal, id string, in model.ResourceInput) (model.Resource, error) {
	res, err := s.ownedResource(ctx, p, id)
	if err != nil {
		return model.Resource{}, err
	}
	from := res.Status
	if err := res.Update(in, s.now()); err != nil {
		return model.Resource{}, err
	}
	if err := s.repo.UpdateResource(ctx, res, from); err != nil {
		return model.Resource{}, err
	}
	return res, nil
}

// PublishResource открывает черновик для бронирования.
func (s *Service) PublishResource(ctx context.Context, p model.Principal, id string) (model.Resource, error) {
	res, err := s.ownedResource(ctx, p, id)
	if err != nil {
		return model.Resource{}, err
	}
	from := res.Status
	if err := res.Publish(s.now()); err != nil {
		return model.Resource{}, err
	}
	if err := s.repo.UpdateResource(ctx, res, from); err != nil {
		return model.Resource{}, err
	}

	s.logger.Info("resource published", zap.String("resource_id", res.ID))
	s.emit(ctx, resourceEvent(events.ResourcePublished, res))
	return res, nil
}

// CancelResource отменяет мероприятие. При включённой политике CascadeCancel
// отменяются и все активные брони, а их места возвращаются в учёт.
func (s *Service) CancelResource(ctx context.Context, p model.Principal, id string) (model.Resource, error) {
	res, err := s.ownedResource(ctx, p, id)
	if err != nil {
		return model.Resource{}, err
	}
	from := res.Status
	if err := res.Cancel(s.now()); err != nil {
		return model.Resource{}, err
	}
	if err := s.repo.UpdateResource(ctx, res, from); err != nil {
		return model.Resource{}, err
	}

	s.logger.Info("resource cancelled", zap.String("resource_id", res.ID), zap.Bool("cascade", s.policy.CascadeCancel))
	s.emit(ctx, resourceEvent(events.ResourceCancelled, res))

	if s.policy.CascadeCancel {
		if err := s.cancelAllBookings(ctx, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *Service) cancelAllBookings(ctx context.Context, res model.Resource) error {
	if _, err := s.ledger.Available(ctx, res.ID, res.Capacity); err != nil {
		return fmt.Errorf("seed ledger: %w", err)
	}

	cancelled, err := s.repo.CancelActiveBookings(ctx, res.ID, s.now())
	if err != nil {
		return err
	}
	for _, b := range cancelled {
		s.release(ctx, b.ResourceID, b.Units)
		s.emit(ctx, bookingEvent(events.BookingCancelled, b))
	}
	return nil
}

// DeleteResource удаляет мероприятие, у которого нет ни одной брони.
func (s *Service) DeleteResource(ctx context.Context, p model.Principal, id string) error {
	res, err := s.ownedResource(ctx, p, id)
	if err != nil {
		return err
	}

	n, err := s.repo.CountBookings(ctx, res.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return model.BusinessRulef("resource %s has %d bookings and cannot be deleted", res.ID, n)
	}

	if err := s.repo.DeleteResource(ctx, res.ID); err != nil {
		return err
	}
	if err := s.ledger.Forget(ctx, res.ID); err != nil {
		s.logger.Warn("forget ledger counter failed", zap.String("resource_id", res.ID), zap.Error(err))
	}

	s.logger.Info("resource deleted", zap.String("resource_id", res.ID))
	return nil
}

// GetResource возвращает мероприятие по идентификатору. Черновик виден только владельцу.
func (s *Service) GetResource(ctx context.Context, p model.Principal, id string) (model.Resource, error) {
	res, err := s.repo.GetResource(ctx, id)
	if err != nil {
		return model.Resource{}, err
	}
	if res.Status == model.ResourceStatusDraft && !res.OwnedBy(p) {
		return model.Resource{}, fmt.Errorf("%w: resource %s", model.ErrNotFound, id)
	}
	return res, nil
}

// ListPublished возвращает мероприятия, открытые для бронирования.
func (s *Service) ListPublished(ctx context.Context) ([]model.Resource, error) {
	return s.repo.ListPublishedResources(ctx)
}

// ListOwned возвращает мероприятия пользователя.
func (s *Service) ListOwned(ctx context.Context, p model.Principal) ([]model.Resource, error) {
	if !p.CanOrganize() {
		return nil, forbidden("role %s does not own resources", p.Role)
	}
	return s.repo.ListResourcesByOwner(ctx, p.ID)
}

// AvailableUnits возвращает текущее число свободных мест. Значение не резервирует места.
func (s *Service) AvailableUnits(ctx context.Context, id string) (int, error) {
	res, err := s.repo.GetResource(ctx, id)
	if err != nil {
		return 0, err
	}
	return s.ledger.Available(ctx, res.ID, res.Capacity)
}
