package cache

import (
	"time"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
)

// PendingPayment элемент индекса ожидающих платежей
type PendingPayment struct {
	PaymentID  uuid.UUID
	Provider   domain.PaymentProvider
	ProviderID string
	CreatedAt  time.Time
	Checks     int // сколько раз статус уже запрашивался у провайдера
}

// IPendingIndex process-local индекс платежей, ожидающих подтверждения.
// Это кэш поверх журнала платежей, не источник истины: его потеря при
// рестарте компенсируется рескан-фоллбеком цикла реконсиляции
type IPendingIndex interface {
	Put(p PendingPayment)
	Remove(paymentID uuid.UUID)
	IncrementChecks(paymentID uuid.UUID) int
	List() []PendingPayment
	Len() int
}
