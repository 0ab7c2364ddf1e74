package domain

import (
	"time"

	"github.com/google/uuid"
)

// Subscription строка подписки. Таблица append-only: новая покупка
// деактивирует предыдущие строки пользователя в той же транзакции,
// физически строки никогда не удаляются
type Subscription struct {
	ID                uuid.UUID        `json:"id" db:"id"`
	UserID            uuid.UUID        `json:"user_id" db:"user_id"`
	Plan              SubscriptionPlan `json:"plan" db:"plan"`
	StartDate         time.Time        `json:"start_date" db:"start_date"`
	EndDate           time.Time        `json:"end_date" db:"end_date"`
	Active            bool             `json:"active" db:"active"`
	ProviderPaymentID string           `json:"provider_payment_id" db:"provider_payment_id"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
}

// IsExpired подписка истекла — сравнение всегда по точному timestamp
func (s *Subscription) IsExpired(now time.Time) bool {
	return !s.EndDate.After(now)
}
