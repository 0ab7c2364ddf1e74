package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
)

// IPaymentProvider интерфейс платёжного провайдера (YooKassa, PayPal).
// Use case и цикл реконсиляции зависят только от этого интерфейса,
// общая логика ретраев/поллинга не дублируется по провайдерам
type IPaymentProvider interface {
	// Name возвращает идентификатор провайдера
	Name() domain.PaymentProvider

	// CreatePayment создаёт платёж на стороне провайдера и возвращает
	// URL чекаута и ID платежа в системе провайдера
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error)

	// CheckStatus запрашивает статус платежа у провайдера.
	// Сетевые ошибки наружу не маскируются под failed — caller сам
	// решает, считать ли платёж всё ещё pending
	CheckStatus(ctx context.Context, providerPaymentID string) (domain.PaymentStatus, error)
}

// CreatePaymentRequest запрос на создание платежа
type CreatePaymentRequest struct {
	InternalID  uuid.UUID // внутренний payment_id, уходит в metadata провайдера
	UserID      uuid.UUID
	AmountMinor int64
	Currency    string
	Description string
	ReturnURL   string
}

// CreatePaymentResult результат создания платежа
type CreatePaymentResult struct {
	ProviderPaymentID string // ID в системе провайдера
	CheckoutURL       string // страница оплаты для пользователя
}

// Notification нормализованное push-уведомление провайдера.
// Адаптеры приводят провайдер-специфичные payload к этой форме,
// дальше по системе провайдерские форматы не ходят
type Notification struct {
	Provider          domain.PaymentProvider
	EventType         string
	ProviderPaymentID string
	Status            domain.PaymentStatus
	AmountMinor       int64
	Currency          string
	MetadataUserID    *uuid.UUID // прямая ссылка из metadata, если чекаут умел её передать
	Email             *string
	Phone             *string
	Raw               domain.PaymentMetadata // исходный payload для очереди ручного разбора
}
