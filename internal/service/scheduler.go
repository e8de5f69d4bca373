package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/event-booking/internal/events"
	"github.com/mmeshcher/event-booking/internal/model"
)

// DefaultSweepInterval задаёт период проверки закончившихся мероприятий.
const DefaultSweepInterval = time.Hour

// SweepFinished переводит все опубликованные мероприятия, закончившиеся к текущему
// моменту, в FINISHED и возвращает их число. Повторный вызов ничего не меняет.
func (s *Service) SweepFinished(ctx context.Context) (int, error) {
	now := s.now()
	ids, err := s.repo.FinishEnded(ctx, now)
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		s.emit(ctx, events.Event{
			Type:       events.ResourceFinished,
			ResourceID: id,
			Status:     string(model.ResourceStatusFinished),
			OccurredAt: now,
		})
	}
	if len(ids) > 0 {
		s.logger.Info("resources finished", zap.Int("count", len(ids)))
	}
	return len(ids), nil
}

// RunLifecycleSweeps выполняет SweepFinished сразу и затем каждые interval до отмены ctx.
// Следующий проход не начинается, пока не закончен предыдущий.
func (s *Service) RunLifecycleSweeps(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	s.sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	if _, err := s.SweepFinished(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("lifecycle sweep failed", zap.Error(err))
	}
}
