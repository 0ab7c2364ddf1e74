package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentProvider платёжный провайдер
type PaymentProvider string

const (
	ProviderYooKassa PaymentProvider = "yookassa"
	ProviderPayPal   PaymentProvider = "paypal"
)

// IsValid проверяет, является ли провайдер валидным
func (p PaymentProvider) IsValid() bool {
	switch p {
	case ProviderYooKassa, ProviderPayPal:
		return true
	default:
		return false
	}
}

// ProductType тип купленного продукта
type ProductType string

const (
	ProductSubscription ProductType = "subscription"
	ProductDeck         ProductType = "deck" // разовая покупка цифровой колоды
)

// PaymentStatus статус платежа. Переходы монотонные:
// pending -> succeeded | failed, из терминальных статусов выхода нет
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// IsTerminal статус терминальный, дальнейшие переходы запрещены
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusFailed
}

// PaymentMetadata метаданные платежа (JSONB) с поддержкой sql.Scanner
type PaymentMetadata map[string]interface{}

// Scan реализует sql.Scanner для сканирования JSONB из БД
func (m *PaymentMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = make(PaymentMetadata)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*m = make(PaymentMetadata)
		return nil
	}

	if len(bytes) == 0 {
		*m = make(PaymentMetadata)
		return nil
	}

	return json.Unmarshal(bytes, m)
}

// Value реализует driver.Valuer для сохранения в БД
func (m PaymentMetadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	return json.Marshal(m)
}

// Payment строка журнала платежей. Журнал append-only и является
// единственным источником истины для реконсиляции: in-memory индекс
// ожидающих платежей — только кэш поверх него
type Payment struct {
	ID           uuid.UUID         `json:"id" db:"id"`
	UserID       *uuid.UUID        `json:"user_id,omitempty" db:"user_id"` // NULL, пока identity не резолвлена
	AmountMinor  int64             `json:"amount_minor" db:"amount_minor"` // сумма в минорных единицах валюты
	Currency     string            `json:"currency" db:"currency"`
	Provider     PaymentProvider   `json:"provider" db:"provider"`
	ProviderID   string            `json:"provider_id" db:"provider_id"` // ID платежа в системе провайдера
	Status       PaymentStatus     `json:"status" db:"status"`
	Product      ProductType       `json:"product" db:"product"`
	Plan         *SubscriptionPlan `json:"plan,omitempty" db:"plan"` // для product = subscription
	Metadata     PaymentMetadata   `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	SucceededAt  *time.Time        `json:"succeeded_at,omitempty" db:"succeeded_at"`
	FailedAt     *time.Time        `json:"failed_at,omitempty" db:"failed_at"`
	ErrorMessage *string           `json:"error_message,omitempty" db:"error_message"`
}
