package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/persistence"
)

// ISubscriptionRepo интерфейс для работы со строками подписок
type ISubscriptionRepo interface {
	GetActive(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)
	GetAllForUser(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error)
	CountActiveForUser(ctx context.Context, userID uuid.UUID) (int, error)

	// Транзакционные методы: создание новой подписки и деактивация
	// предыдущих выполняются одной транзакцией с обновлением флагов юзера
	CreateTx(ctx context.Context, tx persistence.Transaction, sub *domain.Subscription) error
	DeactivateAllForUserTx(ctx context.Context, tx persistence.Transaction, userID uuid.UUID) (int64, error)
}
