package service

import "context"

// ITelegramService интерфейс отправки сообщений пользователям.
// Уведомления best-effort: их падение никогда не откатывает грант
type ITelegramService interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, fileURL string, caption string) error
}

// IAlerterService интерфейс отправки алертов в админский чат
type IAlerterService interface {
	SendAlert(ctx context.Context, message string) error
}
