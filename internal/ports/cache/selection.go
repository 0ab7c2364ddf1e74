package cache

import (
	"context"

	"github.com/google/uuid"
)

// ISelectionCache кэш последних выборов тарифа для recency-эвристики
// резолвера. Статические ссылки на оплату не несут метаданных, поэтому
// запоминаем, кто в последний час выбирал тариф на какую сумму.
// Хранится только последний выбор на (сумма, валюта) — заведомо слабая
// эвристика, резолвер использует её последней
type ISelectionCache interface {
	// RememberSelection запоминает выбор тарифа пользователем
	RememberSelection(ctx context.Context, amountMinor int64, currency string, userID uuid.UUID) error

	// LastSelection возвращает пользователя, последним выбравшего тариф
	// на эту сумму в пределах окна; (uuid.Nil, false) если таких нет
	LastSelection(ctx context.Context, amountMinor int64, currency string) (uuid.UUID, bool, error)
}
