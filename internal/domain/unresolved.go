package domain

import (
	"time"

	"github.com/google/uuid"
)

// ResolutionOutcome исход разбора неопознанного платежа
type ResolutionOutcome string

const (
	OutcomeIgnored           ResolutionOutcome = "ignored"
	OutcomeManuallyActivated ResolutionOutcome = "manually_activated"
	OutcomeAutoResolved      ResolutionOutcome = "auto_resolved"
)

// UnresolvedPayment платёж, который не удалось сопоставить с пользователем
// ни одной эвристикой. Лежит в очереди ручного разбора до решения админа.
// После processed = true никакая автоматика к записи больше не прикасается
type UnresolvedPayment struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	Provider    PaymentProvider    `json:"provider" db:"provider"`
	ProviderID  string             `json:"provider_id" db:"provider_id"`
	AmountMinor int64              `json:"amount_minor" db:"amount_minor"`
	Currency    string             `json:"currency" db:"currency"`
	Payload     PaymentMetadata    `json:"payload,omitempty" db:"payload"` // сырой payload провайдера для разбора
	Email       *string            `json:"email,omitempty" db:"email"`     // кандидатный email из платежа
	Phone       *string            `json:"phone,omitempty" db:"phone"`     // кандидатный телефон из платежа
	Processed   bool               `json:"processed" db:"processed"`
	Outcome     *ResolutionOutcome `json:"outcome,omitempty" db:"outcome"`
	ResolvedBy  *int64             `json:"resolved_by,omitempty" db:"resolved_by"` // telegram id админа
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time         `json:"processed_at,omitempty" db:"processed_at"`
}
