package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
)

// IDeckRepo интерфейс разовых покупок колоды
type IDeckRepo interface {
	Create(ctx context.Context, purchase *domain.DeckPurchase) error
	GetCompleted(ctx context.Context, userID uuid.UUID) (*domain.DeckPurchase, error)
	HasCompleted(ctx context.Context, userID uuid.UUID) (bool, error)
	Complete(ctx context.Context, userID uuid.UUID, provider domain.PaymentProvider, providerPaymentID string) error
}
