package kafka

import (
	"context"

	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
)

// PaymentEventType тип события платёжного жизненного цикла
type PaymentEventType string

const (
	EventPaymentCreated    PaymentEventType = "payment.created"
	EventPaymentSucceeded  PaymentEventType = "payment.succeeded"
	EventPaymentFailed     PaymentEventType = "payment.failed"
	EventPaymentUnresolved PaymentEventType = "payment.unresolved"
)

// PaymentEvent событие для топика аналитики
type PaymentEvent struct {
	Type        PaymentEventType       `json:"type"`
	PaymentID   string                 `json:"payment_id"`
	UserID      *string                `json:"user_id,omitempty"`
	Provider    domain.PaymentProvider `json:"provider"`
	ProviderID  string                 `json:"provider_id"`
	Product     domain.ProductType     `json:"product"`
	AmountMinor int64                  `json:"amount_minor"`
	Currency    string                 `json:"currency"`
}

// IEventProducer интерфейс продьюсера событий платежей.
// Отправка best-effort: ошибка логируется и не влияет на активацию
type IEventProducer interface {
	SendPaymentEvent(ctx context.Context, event PaymentEvent) error
	Close() error
}
