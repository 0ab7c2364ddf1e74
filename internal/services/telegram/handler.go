package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	TgClient "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/telegram"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/billing"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/cards"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/users"
)

// Форматы callback data инлайн-кнопок:
//   buy:<plan>:<provider>   покупка подписки
//   deck:<provider>         покупка колоды
//   check:<payment_id>      проверка оплаты по кнопке "я оплатил"
//   draw                    карта дня

// HandleUpdate основной метод обработки апдейта
func (s *Service) HandleUpdate(ctx context.Context, update *TgClient.Update) error {
	if update == nil {
		return fmt.Errorf("update is nil")
	}

	if update.CallbackQuery != nil {
		return s.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message != nil {
		return s.handleMessage(ctx, update.Message, update.UpdateID)
	}
	return nil
}

func (s *Service) handleMessage(ctx context.Context, message *TgClient.Message, updateID int64) error {
	if message.From == nil {
		s.Log.Debug("ignoring message without sender", "update_id", updateID)
		return nil
	}

	user, err := s.Users.GetOrCreate(ctx, users.TelegramProfile{
		UserID:    message.From.ID,
		ChatID:    message.Chat.ID,
		FirstName: message.From.FirstName,
		LastName:  message.From.LastName,
		Username:  message.From.Username,
	})
	if err != nil {
		s.Log.Error("failed to get or create user",
			"error", err,
			"telegram_user_id", message.From.ID,
			"update_id", updateID,
		)
		return fmt.Errorf("failed to get or create user: %w", err)
	}

	text := strings.TrimSpace(message.Text)
	if IsCommand(text) {
		return s.handleCommand(ctx, user, ParseCommand(text))
	}
	return s.handleText(ctx, user, text)
}

func (s *Service) handleCommand(ctx context.Context, user *domain.User, command string) error {
	chatID := user.TelegramChatID
	switch command {
	case "start":
		return s.Client.SendMessageWithKeyboard(ctx, chatID,
			"Привет! Я бот метафорических карт 🃏\n\nКаждый день можно вытянуть карту и получить её послание. С подпиской — до 10 карт в день, а ещё можно купить полную цифровую колоду.",
			mainMenuKeyboard())
	case "card":
		return s.sendDailyCard(ctx, user)
	case "subscribe":
		return s.Client.SendMessageWithKeyboard(ctx, chatID,
			"Выберите тариф. Оплата картой РФ — через ЮKassa, зарубежной — через PayPal.",
			subscriptionKeyboard())
	case "deck":
		return s.Client.SendMessageWithKeyboard(ctx, chatID,
			"Полная цифровая колода — все карты с посланиями одним архивом, навсегда.",
			deckKeyboard())
	case "status":
		return s.sendStatus(ctx, user)
	default:
		return s.SendMessage(ctx, chatID, "Не знаю такой команды. Посмотрите меню 🙂")
	}
}

// handleText свободный текст: принимаем email или телефон для привязки
// к платежам, остальное переадресуем в меню
func (s *Service) handleText(ctx context.Context, user *domain.User, text string) error {
	chatID := user.TelegramChatID

	if looksLikeEmail(text) {
		email := strings.ToLower(strings.TrimSpace(text))
		if err := s.Users.SetContact(ctx, user.ID, &email, nil); err != nil {
			return err
		}
		return s.SendMessage(ctx, chatID, "Email сохранён. Теперь оплаты с этим адресом привяжутся к вам автоматически ✉️")
	}
	if looksLikePhone(text) {
		phone := strings.TrimSpace(text)
		if err := s.Users.SetContact(ctx, user.ID, nil, &phone); err != nil {
			return err
		}
		return s.SendMessage(ctx, chatID, "Телефон сохранён 📱")
	}

	return s.Client.SendMessageWithKeyboard(ctx, chatID, "Выберите действие:", mainMenuKeyboard())
}

func (s *Service) handleCallback(ctx context.Context, cb *TgClient.CallbackQuery) error {
	if cb.Message == nil {
		return s.Client.AnswerCallbackQuery(ctx, cb.ID, "")
	}

	user, err := s.Users.GetOrCreate(ctx, users.TelegramProfile{
		UserID:    cb.From.ID,
		ChatID:    cb.Message.Chat.ID,
		FirstName: cb.From.FirstName,
		LastName:  cb.From.LastName,
		Username:  cb.From.Username,
	})
	if err != nil {
		return fmt.Errorf("failed to get or create user: %w", err)
	}

	// ошибки обработки не должны оставлять кнопку в вечном "часике"
	defer func() {
		if err := s.Client.AnswerCallbackQuery(ctx, cb.ID, ""); err != nil {
			s.Log.Warn("failed to answer callback query",
				"error", err,
				"callback_id", cb.ID)
		}
	}()

	parts := strings.Split(cb.Data, ":")
	switch parts[0] {
	case "draw":
		return s.sendDailyCard(ctx, user)
	case "menu":
		if len(parts) == 2 && parts[1] == "subscribe" {
			return s.Client.SendMessageWithKeyboard(ctx, user.TelegramChatID,
				"Выберите тариф. Оплата картой РФ — через ЮKassa, зарубежной — через PayPal.",
				subscriptionKeyboard())
		}
		return nil
	case "buy":
		if len(parts) != 3 {
			return fmt.Errorf("malformed buy callback: %q", cb.Data)
		}
		return s.startSubscriptionCheckout(ctx, user, domain.SubscriptionPlan(parts[1]), domain.PaymentProvider(parts[2]))
	case "deck":
		if len(parts) != 2 {
			return fmt.Errorf("malformed deck callback: %q", cb.Data)
		}
		return s.startDeckCheckout(ctx, user, domain.PaymentProvider(parts[1]))
	case "check":
		if len(parts) != 2 {
			return fmt.Errorf("malformed check callback: %q", cb.Data)
		}
		paymentID, err := uuid.Parse(parts[1])
		if err != nil {
			return fmt.Errorf("malformed payment id in callback: %q", cb.Data)
		}
		return s.checkPayment(ctx, user, paymentID)
	default:
		s.Log.Debug("unknown callback data", "data", cb.Data)
		return nil
	}
}

func (s *Service) sendDailyCard(ctx context.Context, user *domain.User) error {
	chatID := user.TelegramChatID

	drawn, err := s.Cards.DrawCard(ctx, user.ID)
	if err != nil {
		if errors.Is(err, cards.ErrDailyLimitReached) {
			return s.Client.SendMessageWithKeyboard(ctx, chatID,
				"На сегодня карты закончились 🌙 С подпиской доступно до 10 карт в день.",
				subscriptionKeyboard())
		}
		return err
	}

	caption := fmt.Sprintf("Карта дня — «%s»\n\n%s", drawn.Card.Title, drawn.Card.Message)
	if drawn.ImageURL != "" {
		if err := s.Client.SendPhotoByURL(ctx, chatID, drawn.ImageURL, caption); err == nil {
			return nil
		}
		// фоллбек на текст, если картинка не дошла
	}
	return s.SendMessage(ctx, chatID, caption)
}

func (s *Service) sendStatus(ctx context.Context, user *domain.User) error {
	ent, err := s.Entitlement.GetEntitlement(ctx, user.ID)
	if err != nil {
		return err
	}

	if !ent.IsPremium {
		return s.Client.SendMessageWithKeyboard(ctx, user.TelegramChatID,
			"Подписки нет. Бесплатно доступна одна карта в день.",
			subscriptionKeyboard())
	}

	until := ""
	if ent.ExpiresAt != nil {
		until = ent.ExpiresAt.Format("02.01.2006")
	}
	return s.SendMessage(ctx, user.TelegramChatID,
		fmt.Sprintf("Подписка активна до %s ✨\nЛимит карт в день: %d", until, ent.DailyLimit))
}

func (s *Service) startSubscriptionCheckout(ctx context.Context, user *domain.User, plan domain.SubscriptionPlan, provider domain.PaymentProvider) error {
	checkout, err := s.Billing.InitiateSubscription(ctx, user.ID, plan, provider)
	if err != nil {
		if domain.IsBusinessError(err) {
			return s.SendMessage(ctx, user.TelegramChatID, "Не получилось создать оплату, попробуйте ещё раз.")
		}
		return err
	}
	return s.sendCheckout(ctx, user.TelegramChatID, checkout)
}

func (s *Service) startDeckCheckout(ctx context.Context, user *domain.User, provider domain.PaymentProvider) error {
	checkout, err := s.Billing.InitiateDeckPurchase(ctx, user.ID, provider)
	if err != nil {
		if errors.Is(err, billing.ErrDeckAlreadyOwned) {
			// колода уже куплена — просто пришлём её ещё раз
			return s.Cards.DeliverDeck(ctx, user.ID, user.TelegramChatID)
		}
		if domain.IsBusinessError(err) {
			return s.SendMessage(ctx, user.TelegramChatID, "Не получилось создать оплату, попробуйте ещё раз.")
		}
		return err
	}
	return s.sendCheckout(ctx, user.TelegramChatID, checkout)
}

func (s *Service) sendCheckout(ctx context.Context, chatID int64, checkout *billing.Checkout) error {
	return s.Client.SendMessageWithKeyboard(ctx, chatID,
		"Ссылка на оплату готова. После оплаты нажмите «Я оплатил» — обычно подтверждение приходит само в течение минуты.",
		checkoutKeyboard(checkout.CheckoutURL, checkout.PaymentID))
}

func (s *Service) checkPayment(ctx context.Context, user *domain.User, paymentID uuid.UUID) error {
	chatID := user.TelegramChatID

	status, err := s.Billing.CheckPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, billing.ErrPaymentStillPends) {
			return s.SendMessage(ctx, chatID, "Оплата пока не подтверждена. Я проверяю её автоматически и напишу, как только всё пройдёт ⏳")
		}
		return err
	}

	switch status {
	case domain.PaymentStatusSucceeded:
		// подтверждение пришлёт активация
		return nil
	case domain.PaymentStatusFailed:
		return s.SendMessage(ctx, chatID, "Платёж не прошёл 😔 Попробуйте создать оплату заново.")
	default:
		return s.SendMessage(ctx, chatID, "Оплата пока не подтверждена, проверю ещё раз чуть позже ⏳")
	}
}

func ParseCommand(text string) string {
	text = strings.TrimPrefix(text, "/")

	if idx := strings.Index(text, "@"); idx != -1 {
		text = text[:idx]
	}

	if idx := strings.Index(text, " "); idx != -1 {
		text = text[:idx]
	}

	return text
}

func IsCommand(text string) bool {
	return len(text) > 0 && text[0] == '/'
}

func looksLikeEmail(text string) bool {
	text = strings.TrimSpace(text)
	at := strings.Index(text, "@")
	return at > 0 && strings.Contains(text[at:], ".") && !strings.Contains(text, " ")
}

func looksLikePhone(text string) bool {
	text = strings.TrimSpace(text)
	digits := 0
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 7
}
