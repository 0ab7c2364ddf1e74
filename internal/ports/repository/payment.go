package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
)

// IPaymentRepo интерфейс журнала платежей
type IPaymentRepo interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByProviderID(ctx context.Context, provider domain.PaymentProvider, providerID string) (*domain.Payment, error)
	GetByEmail(ctx context.Context, email string) (*domain.Payment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, succeededAt, failedAt *time.Time, errorMessage *string) error

	// MarkSucceeded атомарно переводит платёж pending -> succeeded.
	// Возвращает false, если переход уже сделан кем-то другим — так
	// гонка webhook против поллинга даёт ровно одного победителя
	MarkSucceeded(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	SetUserID(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	// SucceededWithoutActivation возвращает платежи со статусом success,
	// для которых нет строки подписки/покупки — фоллбек реконсиляции
	// после потери in-memory индекса (рестарт процесса)
	SucceededWithoutActivation(ctx context.Context, limit int) ([]domain.Payment, error)
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Payment, error)
}
