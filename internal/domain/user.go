package domain

import (
	"time"

	"github.com/google/uuid"
)

// Лимиты карт дня: для бесплатных пользователей одна карта в календарный день,
// для премиум — PremiumDailyDraws
const (
	FreeDailyDraws    = 1
	PremiumDailyDraws = 10
)

type User struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	TelegramUserID int64      `json:"telegram_user_id" db:"tg_id"`
	TelegramChatID int64      `json:"telegram_chat_id" db:"chat_id"`
	FirstName      string     `json:"first_name" db:"first_name"`
	LastName       *string    `json:"last_name,omitempty" db:"last_name"`
	Username       *string    `json:"username,omitempty" db:"username"`
	Email          *string    `json:"email,omitempty" db:"email"`
	Phone          *string    `json:"phone,omitempty" db:"phone"`
	IsPremium      bool       `json:"is_premium" db:"is_premium"`
	PremiumUntil   *time.Time `json:"premium_until,omitempty" db:"premium_until"`
	DailyLimit     int        `json:"daily_limit" db:"daily_limit"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty" db:"last_seen_at"`
}

// Entitlement текущие права пользователя на премиум-функции.
// Читается только через entitlement use case, который перед чтением
// применяет ленивую проверку истечения
type Entitlement struct {
	IsPremium  bool       `json:"is_premium"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	DailyLimit int        `json:"daily_limit"`
}
