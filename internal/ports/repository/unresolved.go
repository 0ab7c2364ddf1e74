package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
)

// IUnresolvedRepo интерфейс очереди ручного разбора платежей
type IUnresolvedRepo interface {
	Create(ctx context.Context, record *domain.UnresolvedPayment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.UnresolvedPayment, error)
	GetByProviderID(ctx context.Context, provider domain.PaymentProvider, providerID string) (*domain.UnresolvedPayment, error)
	ListUnprocessed(ctx context.Context, limit int) ([]domain.UnresolvedPayment, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, outcome domain.ResolutionOutcome, resolvedBy *int64) error
}
