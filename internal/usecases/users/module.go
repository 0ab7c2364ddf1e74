package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/repository"
)

// Service регистрация и учёт пользователей бота
type Service struct {
	UserRepo repository.IUserRepo
	Log      *slog.Logger
}

func New(userRepo repository.IUserRepo, log *slog.Logger) *Service {
	return &Service{
		UserRepo: userRepo,
		Log:      log,
	}
}

// TelegramProfile данные пользователя из апдейта Telegram
type TelegramProfile struct {
	UserID    int64
	ChatID    int64
	FirstName string
	LastName  *string
	Username  *string
}

// GetOrCreate возвращает пользователя по telegram id, создавая запись
// при первом контакте. Обновляет last_seen_at при каждом обращении
func (s *Service) GetOrCreate(ctx context.Context, profile TelegramProfile) (*domain.User, error) {
	user, err := s.UserRepo.GetByTelegramID(ctx, profile.UserID)
	if err == nil {
		if err := s.UserRepo.UpdateLastSeen(ctx, user.ID); err != nil {
			s.Log.Warn("failed to update last seen",
				"error", err,
				"user_id", user.ID)
		}
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	now := time.Now()
	user = &domain.User{
		ID:             uuid.New(),
		TelegramUserID: profile.UserID,
		TelegramChatID: profile.ChatID,
		FirstName:      profile.FirstName,
		LastName:       profile.LastName,
		Username:       profile.Username,
		DailyLimit:     domain.FreeDailyDraws,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.UserRepo.Create(ctx, user); err != nil {
		// гонка двух апдейтов от одного пользователя
		existing, getErr := s.UserRepo.GetByTelegramID(ctx, profile.UserID)
		if getErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.Log.Info("user registered",
		"user_id", user.ID,
		"telegram_user_id", profile.UserID)
	return user, nil
}

// SetContact сохраняет email/телефон, которыми пользователь поделился.
// Эти поля — материал для каскада сопоставления платежей
func (s *Service) SetContact(ctx context.Context, userID uuid.UUID, email, phone *string) error {
	if email == nil && phone == nil {
		return nil
	}
	if err := s.UserRepo.UpdateContact(ctx, userID, email, phone); err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	s.Log.Info("user contact updated", "user_id", userID)
	return nil
}
