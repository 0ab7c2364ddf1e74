package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/persistence"
)

// IUserRepo интерфейс для работы с пользователями.
// Lookup-методы возвращают domain.ErrNotFound при отсутствии записи
type IUserRepo interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhoneDigits(ctx context.Context, phoneDigits string) (*domain.User, error)
	UpdateContact(ctx context.Context, userID uuid.UUID, email, phone *string) error

	// ListExpiredPremium возвращает премиум-пользователей, у которых
	// premium_until уже в прошлом — кандидатов ежедневного свипа
	ListExpiredPremium(ctx context.Context, now time.Time, limit int) ([]domain.User, error)
	UpdateLastSeen(ctx context.Context, userID uuid.UUID) error

	BeginTx(ctx context.Context) (persistence.Transaction, error)
	WithTransaction(ctx context.Context, fn func(context.Context, persistence.Transaction) error) error

	// Транзакционные методы — премиум-флаги меняются только вместе
	// со строками подписок в одной транзакции
	SetPremiumTx(ctx context.Context, tx persistence.Transaction, userID uuid.UUID, premiumUntil time.Time, dailyLimit int) error
	ClearPremiumTx(ctx context.Context, tx persistence.Transaction, userID uuid.UUID, dailyLimit int) error
}
