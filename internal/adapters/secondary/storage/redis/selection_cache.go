package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// selectionTTL окно recency-эвристики: выбор тарифа старше часа
// для резолвера не существует
const selectionTTL = time.Hour

// SelectionCache redis-кэш последних выборов тарифа.
// Ключ — (сумма, валюта), значение — user_id последнего выбравшего.
// Перезапись более поздним выбором намеренная: эвристика берёт
// самое свежее единственное совпадение без попыток дизамбигуации
type SelectionCache struct {
	client *redis.Client
	log    *slog.Logger
}

func NewSelectionCache(client *redis.Client, log *slog.Logger) *SelectionCache {
	return &SelectionCache{
		client: client,
		log:    log,
	}
}

func selectionKey(amountMinor int64, currency string) string {
	return fmt.Sprintf("plan_selection:%s:%d", currency, amountMinor)
}

// RememberSelection запоминает выбор тарифа пользователем
func (c *SelectionCache) RememberSelection(ctx context.Context, amountMinor int64, currency string, userID uuid.UUID) error {
	key := selectionKey(amountMinor, currency)
	if err := c.client.Set(ctx, key, userID.String(), selectionTTL).Err(); err != nil {
		c.log.Warn("failed to remember plan selection",
			"error", err,
			"key", key,
			"user_id", userID,
		)
		return fmt.Errorf("failed to remember plan selection: %w", err)
	}
	return nil
}

// LastSelection возвращает пользователя, последним выбравшего тариф на эту сумму
func (c *SelectionCache) LastSelection(ctx context.Context, amountMinor int64, currency string) (uuid.UUID, bool, error) {
	key := selectionKey(amountMinor, currency)
	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("failed to get plan selection: %w", err)
	}

	userID, err := uuid.Parse(value)
	if err != nil {
		c.log.Warn("invalid user_id in selection cache", "key", key, "value", value)
		return uuid.Nil, false, nil
	}

	return userID, true, nil
}
