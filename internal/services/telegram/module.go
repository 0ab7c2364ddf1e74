package telegram

import (
	"context"
	"fmt"

	"log/slog"

	TgClient "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/telegram"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/billing"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/cards"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/entitlement"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/users"
)

// Service диалоговый слой бота: роутинг апдейтов в use cases и отправка
// ответов. Реализует service.ITelegramService, поэтому активация
// платежей шлёт уведомления через него же
type Service struct {
	Client      *TgClient.Client
	Users       *users.Service
	Billing     *billing.Service
	Cards       *cards.Service
	Entitlement *entitlement.Service
	Log         *slog.Logger
}

func New(
	client *TgClient.Client,
	usersSvc *users.Service,
	billingSvc *billing.Service,
	cardsSvc *cards.Service,
	entitlementSvc *entitlement.Service,
	log *slog.Logger,
) *Service {
	return &Service{
		Client:      client,
		Users:       usersSvc,
		Billing:     billingSvc,
		Cards:       cardsSvc,
		Entitlement: entitlementSvc,
		Log:         log,
	}
}

// SendMessage отправляет текстовое сообщение пользователю
func (s *Service) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := s.Client.SendMessage(ctx, chatID, text); err != nil {
		s.Log.Error("failed to send message",
			"error", err,
			"chat_id", chatID,
		)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SendDocument отправляет документ по ссылке
func (s *Service) SendDocument(ctx context.Context, chatID int64, fileURL string, caption string) error {
	if err := s.Client.SendDocument(ctx, chatID, fileURL, caption); err != nil {
		s.Log.Error("failed to send document",
			"error", err,
			"chat_id", chatID,
		)
		return fmt.Errorf("failed to send document: %w", err)
	}
	return nil
}

// RegisterCommands регистрирует меню команд бота
func (s *Service) RegisterCommands(ctx context.Context) error {
	return s.Client.SetMyCommands(ctx, []TgClient.BotCommand{
		{Command: "start", Description: "Начать"},
		{Command: "card", Description: "Карта дня"},
		{Command: "subscribe", Description: "Подписка"},
		{Command: "deck", Description: "Купить колоду"},
		{Command: "status", Description: "Моя подписка"},
	})
}
