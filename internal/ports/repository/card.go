package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
)

// ICardRepo интерфейс каталога метафорических карт
type ICardRepo interface {
	GetRandom(ctx context.Context) (*domain.Card, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Card, error)
	Count(ctx context.Context) (int, error)
}

// ICardDrawRepo интерфейс журнала вытянутых карт.
// Дневной лимит выводится из CountForDate, отдельного счётчика нет
type ICardDrawRepo interface {
	Create(ctx context.Context, draw *domain.CardDraw) error
	CountForDate(ctx context.Context, userID uuid.UUID, date time.Time) (int, error)
}
