package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/service"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/entitlement"
)

const subscriptionExpirerName = "subscription-expirer"

// SubscriptionExpirer джоба ежедневного свипа истёкших подписок,
// каждый день в 03:00 по Мск. Страховка поверх ленивой проверки:
// флаг снимается и у тех, кто в бота не заходил
type SubscriptionExpirer struct {
	entitlement *entitlement.Service
	telegram    service.ITelegramService
	log         *slog.Logger
	location    *time.Location
}

func NewSubscriptionExpirer(
	entitlementSvc *entitlement.Service,
	telegram service.ITelegramService,
	log *slog.Logger,
) *SubscriptionExpirer {
	location, _ := time.LoadLocation("Europe/Moscow")
	if location == nil {
		location = time.UTC
	}

	return &SubscriptionExpirer{
		entitlement: entitlementSvc,
		telegram:    telegram,
		log:         log,
		location:    location,
	}
}

func (j *SubscriptionExpirer) Name() string {
	return subscriptionExpirerName
}

// NextRun каждый день в 03:00 по Мск
func (j *SubscriptionExpirer) NextRun(now time.Time) time.Time {
	nowMoscow := now.In(j.location)
	next := time.Date(nowMoscow.Year(), nowMoscow.Month(), nowMoscow.Day(), 3, 0, 0, 0, j.location)
	if next.Before(nowMoscow) || next.Equal(nowMoscow) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// RetrySchedule ретраи редкой джобы: 1m + 10m + 30m
func (j *SubscriptionExpirer) RetrySchedule() []time.Duration {
	return []time.Duration{
		1 * time.Minute,
		10 * time.Minute,
		30 * time.Minute,
	}
}

// Run снимает истёкший премиум и уведомляет пользователей
func (j *SubscriptionExpirer) Run(ctx context.Context) error {
	expired, err := j.entitlement.ExpireDue(ctx)
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	j.log.Info("expired subscriptions revoked", "count", len(expired))

	if j.telegram == nil {
		return nil
	}
	text := "Ваша подписка закончилась. Продлить можно в меню «Подписка» — карта дня снова станет безлимитной 💫"
	for i := range expired {
		if err := j.telegram.SendMessage(ctx, expired[i].TelegramChatID, text); err != nil {
			j.log.Warn("failed to send expiry notification",
				"error", err,
				"chat_id", expired[i].TelegramChatID)
		}
	}
	return nil
}
