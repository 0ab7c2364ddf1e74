package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeckPurchase разовая покупка цифровой колоды. В отличие от подписки
// не имеет срока действия; у пользователя может быть не больше одной
// завершённой покупки — повторная попытка оплаты отсекается до создания
// платежа
type DeckPurchase struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	UserID            uuid.UUID       `json:"user_id" db:"user_id"`
	Provider          PaymentProvider `json:"provider" db:"provider"`
	ProviderPaymentID string          `json:"provider_payment_id" db:"provider_payment_id"`
	Status            PaymentStatus   `json:"status" db:"status"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}
