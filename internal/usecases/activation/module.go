package activation

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/cache"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/kafka"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/repository"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/service"
)

// granter выдаёт подписку пользователю. Реализуется entitlement use case
type granter interface {
	GrantSubscription(ctx context.Context, userID uuid.UUID, plan domain.SubscriptionPlan, providerPaymentID string) error
}

// deckDeliverer отправляет купленную колоду в чат. Реализуется cards use case
type deckDeliverer interface {
	DeliverDeck(ctx context.Context, userID uuid.UUID, chatID int64) error
}

// Service применяет успешный платёж к аккаунту пользователя.
// Единственная точка, где платёж превращается в выданный продукт:
// и webhook, и поллинг, и ручная активация из очереди разбора
// проходят через него. Идемпотентность держится на CAS-переходе
// статуса платежа плюс уникальных индексах строк подписок и покупок
type Service struct {
	PaymentRepo  repository.IPaymentRepo
	UserRepo     repository.IUserRepo
	DeckRepo     repository.IDeckRepo
	Entitlement  granter
	PendingIndex cache.IPendingIndex
	Telegram     service.ITelegramService
	Decks        deckDeliverer
	Producer     kafka.IEventProducer
	Log          *slog.Logger
}

func New(
	paymentRepo repository.IPaymentRepo,
	userRepo repository.IUserRepo,
	deckRepo repository.IDeckRepo,
	entitlement granter,
	pendingIndex cache.IPendingIndex,
	telegram service.ITelegramService,
	decks deckDeliverer,
	producer kafka.IEventProducer,
	log *slog.Logger,
) *Service {
	return &Service{
		PaymentRepo:  paymentRepo,
		UserRepo:     userRepo,
		DeckRepo:     deckRepo,
		Entitlement:  entitlement,
		PendingIndex: pendingIndex,
		Telegram:     telegram,
		Decks:        decks,
		Producer:     producer,
		Log:          log,
	}
}

// ActivateSucceeded обрабатывает подтверждённый провайдером платёж.
// Сначала атомарный переход pending -> succeeded: проигравший гонку
// вызов (дубль webhook, webhook против поллинга) выходит no-op'ом.
// Победитель привязывает пользователя, выдаёт продукт, чистит индекс
// и шлёт уведомления. Уведомления best-effort и грант не откатывают
func (s *Service) ActivateSucceeded(ctx context.Context, p *domain.Payment, userID uuid.UUID) error {
	won, err := s.PaymentRepo.MarkSucceeded(ctx, p.ID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to transition payment: %w", err)
	}
	if !won {
		s.Log.Info("payment already processed, skipping activation",
			"payment_id", p.ID,
			"provider_id", p.ProviderID)
		s.PendingIndex.Remove(p.ID)
		return nil
	}

	if p.UserID == nil || *p.UserID != userID {
		if err := s.PaymentRepo.SetUserID(ctx, p.ID, userID); err != nil {
			return fmt.Errorf("failed to bind payment to user: %w", err)
		}
	}

	if err := s.grant(ctx, p, userID); err != nil {
		// Платёж уже succeeded, продукт не выдан — такие строки
		// подбирает рескан журнала, поэтому ошибку отдаём наружу,
		// но статус не откатываем
		return err
	}

	s.PendingIndex.Remove(p.ID)
	s.notifyUser(ctx, p, userID)
	s.emitEvent(ctx, kafka.EventPaymentSucceeded, p, &userID)

	s.Log.Info("payment activated",
		"payment_id", p.ID,
		"user_id", userID,
		"product", p.Product,
		"amount_minor", p.AmountMinor)
	return nil
}

// GrantProduct выдаёт продукт по уже succeeded-платежу без CAS-перехода.
// Путь для рескана журнала (succeeded без активации после рестарта)
// и для ручной активации из очереди разбора. Повторная выдача подписки
// безвредна (грант замещающий), повторная покупка колоды отсекается
// уникальным индексом
func (s *Service) GrantProduct(ctx context.Context, p *domain.Payment, userID uuid.UUID) error {
	if p.UserID == nil || *p.UserID != userID {
		if err := s.PaymentRepo.SetUserID(ctx, p.ID, userID); err != nil {
			return fmt.Errorf("failed to bind payment to user: %w", err)
		}
	}
	if err := s.grant(ctx, p, userID); err != nil {
		return err
	}
	s.notifyUser(ctx, p, userID)
	return nil
}

// MarkFailed фиксирует отказ платежа и убирает его из ожидания
func (s *Service) MarkFailed(ctx context.Context, p *domain.Payment, reason string) error {
	now := time.Now()
	var msg *string
	if reason != "" {
		msg = &reason
	}
	if err := s.PaymentRepo.UpdateStatus(ctx, p.ID, domain.PaymentStatusFailed, nil, &now, msg); err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}

	s.PendingIndex.Remove(p.ID)
	s.emitEvent(ctx, kafka.EventPaymentFailed, p, p.UserID)

	s.Log.Info("payment failed",
		"payment_id", p.ID,
		"provider_id", p.ProviderID,
		"reason", reason)
	return nil
}

func (s *Service) grant(ctx context.Context, p *domain.Payment, userID uuid.UUID) error {
	switch p.Product {
	case domain.ProductDeck:
		if err := s.DeckRepo.Complete(ctx, userID, p.Provider, p.ProviderID); err != nil {
			return fmt.Errorf("failed to complete deck purchase: %w", err)
		}
		return nil
	case domain.ProductSubscription:
		plan, err := s.planFor(p)
		if err != nil {
			return err
		}
		if err := s.Entitlement.GrantSubscription(ctx, userID, plan, p.ProviderID); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown product type: %s", p.Product)
	}
}

// planFor определяет тариф платежа: из строки журнала, если он был
// известен при создании, иначе по сумме через прайс
func (s *Service) planFor(p *domain.Payment) (domain.SubscriptionPlan, error) {
	if p.Plan != nil && p.Plan.IsValid() {
		return *p.Plan, nil
	}
	plan, ok := domain.PlanByAmount(p.AmountMinor, p.Currency)
	if !ok {
		return "", fmt.Errorf("payment amount %d %s does not match any plan", p.AmountMinor, p.Currency)
	}
	return plan, nil
}

func (s *Service) notifyUser(ctx context.Context, p *domain.Payment, userID uuid.UUID) {
	if s.Telegram == nil {
		return
	}
	user, err := s.UserRepo.GetByID(ctx, userID)
	if err != nil {
		s.Log.Error("failed to load user for payment notification",
			"error", err,
			"user_id", userID)
		return
	}

	var text string
	switch p.Product {
	case domain.ProductDeck:
		text = "✅ Оплата прошла! Колода метафорических карт уже ваша — сейчас пришлю файл."
	default:
		plan, err := s.planFor(p)
		if err != nil {
			text = "✅ Оплата прошла! Подписка активирована."
		} else {
			text = fmt.Sprintf("✅ Оплата прошла! %s активирована до %s.",
				plan.Title(), plan.EndDate(time.Now()).Format("02.01.2006"))
		}
	}

	if err := s.Telegram.SendMessage(ctx, user.TelegramChatID, text); err != nil {
		s.Log.Error("failed to send payment notification",
			"error", err,
			"chat_id", user.TelegramChatID)
	}

	// обещанный файл колоды шлём сразу за подтверждением. Ошибка
	// доставки грант не трогает: колода уже куплена, файл можно
	// запросить повторно командой
	if p.Product == domain.ProductDeck && s.Decks != nil {
		if err := s.Decks.DeliverDeck(ctx, userID, user.TelegramChatID); err != nil {
			s.Log.Error("failed to deliver purchased deck",
				"error", err,
				"user_id", userID,
				"chat_id", user.TelegramChatID)
		}
	}
}

func (s *Service) emitEvent(ctx context.Context, eventType kafka.PaymentEventType, p *domain.Payment, userID *uuid.UUID) {
	if s.Producer == nil {
		return
	}
	var uid *string
	if userID != nil {
		v := userID.String()
		uid = &v
	}
	event := kafka.PaymentEvent{
		Type:        eventType,
		PaymentID:   p.ID.String(),
		UserID:      uid,
		Provider:    p.Provider,
		ProviderID:  p.ProviderID,
		Product:     p.Product,
		AmountMinor: p.AmountMinor,
		Currency:    p.Currency,
	}
	if err := s.Producer.SendPaymentEvent(ctx, event); err != nil {
		s.Log.Error("failed to send payment event",
			"error", err,
			"payment_id", p.ID,
			"type", eventType)
	}
}
