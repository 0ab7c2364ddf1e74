package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/persistence"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/repository"
)

// Service единственный владелец премиум-состояния пользователей.
// Грант и снятие премиума всегда идут одной транзакцией со строками
// подписок, чтобы не было окна "is_premium без активной подписки"
type Service struct {
	UserRepo         repository.IUserRepo
	SubscriptionRepo repository.ISubscriptionRepo
	CardDrawRepo     repository.ICardDrawRepo
	Log              *slog.Logger
}

func New(
	userRepo repository.IUserRepo,
	subscriptionRepo repository.ISubscriptionRepo,
	cardDrawRepo repository.ICardDrawRepo,
	log *slog.Logger,
) *Service {
	return &Service{
		UserRepo:         userRepo,
		SubscriptionRepo: subscriptionRepo,
		CardDrawRepo:     cardDrawRepo,
		Log:              log,
	}
}

// GetEntitlement возвращает текущие права пользователя. Перед чтением
// применяет ленивую проверку истечения, поэтому протухший премиум
// наружу не утекает
func (s *Service) GetEntitlement(ctx context.Context, userID uuid.UUID) (*domain.Entitlement, error) {
	if err := s.ExpireIfNeeded(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to apply expiry check: %w", err)
	}

	user, err := s.UserRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &domain.Entitlement{
		IsPremium:  user.IsPremium,
		ExpiresAt:  user.PremiumUntil,
		DailyLimit: user.DailyLimit,
	}, nil
}

// GrantSubscription выдаёт подписку: деактивирует прежние строки,
// создаёт новую активную и включает премиум-флаги — всё одной
// транзакцией. Частичное применение здесь — баг корректности,
// при любой ошибке транзакция откатывается целиком
func (s *Service) GrantSubscription(ctx context.Context, userID uuid.UUID, plan domain.SubscriptionPlan, providerPaymentID string) error {
	if !plan.IsValid() {
		return fmt.Errorf("invalid subscription plan: %s", plan)
	}

	now := time.Now()
	endDate := plan.EndDate(now)

	err := s.UserRepo.WithTransaction(ctx, func(ctx context.Context, tx persistence.Transaction) error {
		if _, err := s.SubscriptionRepo.DeactivateAllForUserTx(ctx, tx, userID); err != nil {
			return err
		}

		sub := &domain.Subscription{
			ID:                uuid.New(),
			UserID:            userID,
			Plan:              plan,
			StartDate:         now,
			EndDate:           endDate,
			Active:            true,
			ProviderPaymentID: providerPaymentID,
			CreatedAt:         now,
		}
		if err := s.SubscriptionRepo.CreateTx(ctx, tx, sub); err != nil {
			return err
		}

		if err := s.UserRepo.SetPremiumTx(ctx, tx, userID, endDate, domain.PremiumDailyDraws); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		s.Log.Error("failed to grant subscription",
			"error", err,
			"user_id", userID,
			"plan", plan)
		return fmt.Errorf("failed to grant subscription: %w", err)
	}

	s.Log.Info("subscription granted",
		"user_id", userID,
		"plan", plan,
		"end_date", endDate,
		"provider_payment_id", providerPaymentID)
	return nil
}

// ExpireIfNeeded снимает премиум, если premium_until в прошлом.
// Вызывается лениво каждым гейтящим чтением; деактивация строки
// подписки и сброс флагов идут одной транзакцией
func (s *Service) ExpireIfNeeded(ctx context.Context, userID uuid.UUID) error {
	user, err := s.UserRepo.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	if !user.IsPremium {
		return nil
	}
	if user.PremiumUntil != nil && user.PremiumUntil.After(time.Now()) {
		return nil
	}

	err = s.UserRepo.WithTransaction(ctx, func(ctx context.Context, tx persistence.Transaction) error {
		if _, err := s.SubscriptionRepo.DeactivateAllForUserTx(ctx, tx, userID); err != nil {
			return err
		}
		return s.UserRepo.ClearPremiumTx(ctx, tx, userID, domain.FreeDailyDraws)
	})
	if err != nil {
		s.Log.Error("failed to expire subscription",
			"error", err,
			"user_id", userID)
		return fmt.Errorf("failed to expire subscription: %w", err)
	}

	s.Log.Info("subscription expired",
		"user_id", userID,
		"premium_until", user.PremiumUntil)
	return nil
}

// expireBatchSize размер пачки ежедневного свипа истечений
const expireBatchSize = 500

// ExpireDue снимает премиум со всех пользователей, у которых он истёк.
// Возвращает обработанных пользователей, чтобы вызывающая джоба могла
// их уведомить. Свип — страховка поверх ленивой проверки: пользователь,
// который не заходил в бота, тоже должен потерять флаг
func (s *Service) ExpireDue(ctx context.Context) ([]domain.User, error) {
	var expired []domain.User
	for {
		users, err := s.UserRepo.ListExpiredPremium(ctx, time.Now(), expireBatchSize)
		if err != nil {
			return expired, fmt.Errorf("failed to list expired premium users: %w", err)
		}
		if len(users) == 0 {
			return expired, nil
		}
		processed := 0
		for i := range users {
			if err := s.ExpireIfNeeded(ctx, users[i].ID); err != nil {
				s.Log.Error("failed to expire user in sweep",
					"error", err,
					"user_id", users[i].ID)
				continue
			}
			processed++
			expired = append(expired, users[i])
		}
		// без прогресса следующая выборка вернёт тех же пользователей
		if len(users) < expireBatchSize || processed == 0 {
			return expired, nil
		}
	}
}

// CanDrawCard проверяет дневной гейт карт. Лимит считается подсчётом
// сегодняшних строк card_draws по серверной локальной дате —
// полуночный сброс происходит сам собой
func (s *Service) CanDrawCard(ctx context.Context, userID uuid.UUID) (bool, error) {
	ent, err := s.GetEntitlement(ctx, userID)
	if err != nil {
		return false, err
	}

	drawn, err := s.CardDrawRepo.CountForDate(ctx, userID, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to count today draws: %w", err)
	}

	return drawn < ent.DailyLimit, nil
}

// CheckInvariant проверяет согласованность премиум-состояния:
// is_premium влечёт ровно одну активную подписку с end_date в будущем.
// Используется тестами и ручной диагностикой
func (s *Service) CheckInvariant(ctx context.Context, userID uuid.UUID) error {
	user, err := s.UserRepo.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	activeCount, err := s.SubscriptionRepo.CountActiveForUser(ctx, userID)
	if err != nil {
		return err
	}

	if !user.IsPremium {
		if activeCount != 0 {
			return fmt.Errorf("user %s is not premium but has %d active subscriptions", userID, activeCount)
		}
		return nil
	}

	if user.PremiumUntil == nil {
		return fmt.Errorf("user %s is premium without premium_until", userID)
	}
	if activeCount != 1 {
		return fmt.Errorf("user %s is premium with %d active subscriptions, want 1", userID, activeCount)
	}

	sub, err := s.SubscriptionRepo.GetActive(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("user %s is premium without active subscription row", userID)
		}
		return err
	}
	if sub.IsExpired(time.Now()) {
		return fmt.Errorf("user %s has active subscription expired at %s", userID, sub.EndDate)
	}

	return nil
}
