package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/cache"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/kafka"
	paymentPorts "github.com/lisenka9/metaphor-bot-sub000/internal/ports/payment"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/repository"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/activation"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/resolver"
)

// Ошибки, которые контроллеры показывают пользователю как есть
var (
	ErrDeckAlreadyOwned  = errors.New("deck already purchased")
	ErrUnknownProvider   = errors.New("unknown payment provider")
	ErrPaymentStillPends = errors.New("payment is not confirmed yet")
)

// checkRetryDelay база паузы между повторами pull-проверки статуса
var checkRetryDelay = 2 * time.Second

// providerCurrency валюта, в которой принимает каждый провайдер
var providerCurrency = map[domain.PaymentProvider]string{
	domain.ProviderYooKassa: "RUB",
	domain.ProviderPayPal:   "USD",
}

// Checkout данные для отправки пользователя на оплату
type Checkout struct {
	PaymentID   uuid.UUID
	CheckoutURL string
	AmountMinor int64
	Currency    string
}

// Service владеет жизненным циклом платежа: создание чекаута, приём
// push-уведомлений провайдеров и разовая pull-проверка по запросу
// пользователя. Фоновым поллингом занимается цикл реконсиляции,
// который ходит в те же Activation и Resolver
type Service struct {
	PaymentRepo    repository.IPaymentRepo
	DeckRepo       repository.IDeckRepo
	Providers      map[domain.PaymentProvider]paymentPorts.IPaymentProvider
	Resolver       *resolver.Service
	Activation     *activation.Service
	SelectionCache cache.ISelectionCache
	PendingIndex   cache.IPendingIndex
	Producer       kafka.IEventProducer
	ReturnURL      string
	Log            *slog.Logger
}

func New(
	paymentRepo repository.IPaymentRepo,
	deckRepo repository.IDeckRepo,
	providers map[domain.PaymentProvider]paymentPorts.IPaymentProvider,
	resolverSvc *resolver.Service,
	activationSvc *activation.Service,
	selectionCache cache.ISelectionCache,
	pendingIndex cache.IPendingIndex,
	producer kafka.IEventProducer,
	returnURL string,
	log *slog.Logger,
) *Service {
	return &Service{
		PaymentRepo:    paymentRepo,
		DeckRepo:       deckRepo,
		Providers:      providers,
		Resolver:       resolverSvc,
		Activation:     activationSvc,
		SelectionCache: selectionCache,
		PendingIndex:   pendingIndex,
		Producer:       producer,
		ReturnURL:      returnURL,
		Log:            log,
	}
}

// InitiateSubscription создаёт платёж за подписку у провайдера и строку
// pending в журнале. Выбор тарифа запоминается в recency-кэше — это
// последняя страховка резолвера, если уведомление придёт без metadata
func (s *Service) InitiateSubscription(ctx context.Context, userID uuid.UUID, plan domain.SubscriptionPlan, provider domain.PaymentProvider) (*Checkout, error) {
	if !plan.IsValid() {
		return nil, domain.WrapBusinessError(fmt.Errorf("invalid plan: %s", plan))
	}
	currency, ok := providerCurrency[provider]
	if !ok {
		return nil, domain.WrapBusinessError(ErrUnknownProvider)
	}

	amount, ok := domain.PlanPrice(plan, currency)
	if !ok {
		return nil, fmt.Errorf("no price for plan %s in %s", plan, currency)
	}

	planValue := plan
	return s.initiate(ctx, userID, provider, domain.ProductSubscription, &planValue, amount, currency, plan.Title())
}

// InitiateDeckPurchase создаёт платёж за колоду. Повторная покупка
// отсекается здесь, до похода к провайдеру
func (s *Service) InitiateDeckPurchase(ctx context.Context, userID uuid.UUID, provider domain.PaymentProvider) (*Checkout, error) {
	currency, ok := providerCurrency[provider]
	if !ok {
		return nil, domain.WrapBusinessError(ErrUnknownProvider)
	}

	owned, err := s.DeckRepo.HasCompleted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check deck ownership: %w", err)
	}
	if owned {
		s.Log.Info("deck purchase rejected, already owned", "user_id", userID)
		return nil, domain.WrapBusinessError(ErrDeckAlreadyOwned)
	}

	amount, ok := domain.DeckPrice(currency)
	if !ok {
		return nil, fmt.Errorf("no deck price in %s", currency)
	}

	return s.initiate(ctx, userID, provider, domain.ProductDeck, nil, amount, currency, "Колода метафорических карт")
}

func (s *Service) initiate(
	ctx context.Context,
	userID uuid.UUID,
	provider domain.PaymentProvider,
	product domain.ProductType,
	plan *domain.SubscriptionPlan,
	amountMinor int64,
	currency string,
	description string,
) (*Checkout, error) {
	p, ok := s.Providers[provider]
	if !ok {
		return nil, domain.WrapBusinessError(ErrUnknownProvider)
	}

	internalID := uuid.New()
	result, err := p.CreatePayment(ctx, paymentPorts.CreatePaymentRequest{
		InternalID:  internalID,
		UserID:      userID,
		AmountMinor: amountMinor,
		Currency:    currency,
		Description: description,
		ReturnURL:   s.ReturnURL,
	})
	if err != nil {
		s.Log.Error("failed to create provider payment",
			"error", err,
			"provider", provider,
			"user_id", userID)
		return nil, fmt.Errorf("failed to create provider payment: %w", err)
	}

	now := time.Now()
	row := &domain.Payment{
		ID:          internalID,
		UserID:      &userID,
		AmountMinor: amountMinor,
		Currency:    currency,
		Provider:    provider,
		ProviderID:  result.ProviderPaymentID,
		Status:      domain.PaymentStatusPending,
		Product:     product,
		Plan:        plan,
		Metadata: domain.PaymentMetadata{
			"user_id": userID.String(),
			"product": string(product),
		},
		CreatedAt: now,
	}
	if err := s.PaymentRepo.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	s.PendingIndex.Put(cache.PendingPayment{
		PaymentID:  internalID,
		Provider:   provider,
		ProviderID: result.ProviderPaymentID,
		CreatedAt:  now,
	})

	if err := s.SelectionCache.RememberSelection(ctx, amountMinor, currency, userID); err != nil {
		s.Log.Error("failed to remember plan selection",
			"error", err,
			"user_id", userID)
	}

	s.emitCreated(ctx, row)

	s.Log.Info("payment initiated",
		"payment_id", internalID,
		"provider", provider,
		"provider_id", result.ProviderPaymentID,
		"product", product,
		"amount_minor", amountMinor,
		"currency", currency)

	return &Checkout{
		PaymentID:   internalID,
		CheckoutURL: result.CheckoutURL,
		AmountMinor: amountMinor,
		Currency:    currency,
	}, nil
}

// HandleNotification обрабатывает нормализованное push-уведомление.
// Платёж из нашего журнала активируется напрямую; платёж со статической
// ссылки (строки в журнале нет) сначала проходит каскад резолвера,
// при неудаче — уходит в очередь ручного разбора. Ошибочная сумма
// для подписки тоже эскалируется, а не активируется наугад
func (s *Service) HandleNotification(ctx context.Context, n *paymentPorts.Notification) error {
	row, err := s.PaymentRepo.GetByProviderID(ctx, n.Provider, n.ProviderPaymentID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("failed to look up payment: %w", err)
	}

	switch n.Status {
	case domain.PaymentStatusSucceeded:
		if row != nil {
			userID, err := s.userFor(ctx, row, n)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return s.escalate(ctx, n)
				}
				return err
			}
			return s.Activation.ActivateSucceeded(ctx, row, userID)
		}
		return s.handleExternalSuccess(ctx, n)

	case domain.PaymentStatusFailed:
		if row == nil {
			// отказ по неизвестному платежу не требует действий
			s.Log.Info("failure notification for unknown payment",
				"provider", n.Provider,
				"provider_id", n.ProviderPaymentID)
			return nil
		}
		return s.Activation.MarkFailed(ctx, row, n.EventType)

	default:
		// промежуточные события (waiting_for_capture и т.п.) игнорируем,
		// терминальный статус придёт отдельным уведомлением или поллингом
		s.Log.Debug("ignoring non-terminal notification",
			"provider", n.Provider,
			"provider_id", n.ProviderPaymentID,
			"event", n.EventType)
		return nil
	}
}

// handleExternalSuccess успешный платёж, которого нет в журнале —
// пришёл со статической ссылки на оплату. Создаём строку журнала,
// резолвим пользователя каскадом и активируем; нераспознанную сумму
// или личность отправляем в ручной разбор
func (s *Service) handleExternalSuccess(ctx context.Context, n *paymentPorts.Notification) error {
	product := domain.ProductSubscription
	var plan *domain.SubscriptionPlan
	if domain.IsDeckAmount(n.AmountMinor, n.Currency) {
		product = domain.ProductDeck
	} else if p, ok := domain.PlanByAmount(n.AmountMinor, n.Currency); ok {
		plan = &p
	} else {
		// сумма не бьётся ни с одним продуктом — не гадаем
		s.Log.Warn("external payment amount matches no product",
			"provider_id", n.ProviderPaymentID,
			"amount_minor", n.AmountMinor,
			"currency", n.Currency)
		return s.escalate(ctx, n)
	}

	res, err := s.Resolver.Resolve(ctx, n)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.escalate(ctx, n)
		}
		return err
	}

	row := &domain.Payment{
		ID:          uuid.New(),
		UserID:      &res.UserID,
		AmountMinor: n.AmountMinor,
		Currency:    n.Currency,
		Provider:    n.Provider,
		ProviderID:  n.ProviderPaymentID,
		Status:      domain.PaymentStatusPending,
		Product:     product,
		Plan:        plan,
		Metadata:    n.Raw,
		CreatedAt:   time.Now(),
	}
	if err := s.PaymentRepo.Create(ctx, row); err != nil {
		// конфликт по (provider, provider_id) — дубль уведомления,
		// строку создал конкурент: перечитываем и активируем её
		existing, getErr := s.PaymentRepo.GetByProviderID(ctx, n.Provider, n.ProviderPaymentID)
		if getErr != nil {
			return fmt.Errorf("failed to record external payment: %w", err)
		}
		row = existing
	}

	s.Log.Info("external payment resolved",
		"payment_id", row.ID,
		"provider_id", n.ProviderPaymentID,
		"user_id", res.UserID,
		"method", res.Method)

	if err := s.Activation.ActivateSucceeded(ctx, row, res.UserID); err != nil {
		return err
	}

	// если этот платёж успел попасть в очередь разбора с прошлого
	// уведомления — закрываем запись
	if err := s.Resolver.MarkAutoResolved(ctx, n.Provider, n.ProviderPaymentID); err != nil {
		s.Log.Error("failed to close unresolved record",
			"error", err,
			"provider_id", n.ProviderPaymentID)
	}
	return nil
}

// CheckPayment разовая pull-проверка по кнопке "я оплатил". Делает
// до трёх запросов статуса с короткими паузами, чтобы пережить лаг
// провайдера сразу после оплаты
func (s *Service) CheckPayment(ctx context.Context, paymentID uuid.UUID) (domain.PaymentStatus, error) {
	row, err := s.PaymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return "", fmt.Errorf("failed to get payment: %w", err)
	}
	if row.Status.IsTerminal() {
		return row.Status, nil
	}

	provider, ok := s.Providers[row.Provider]
	if !ok {
		return "", domain.WrapBusinessError(ErrUnknownProvider)
	}

	const attempts = 3
	var status domain.PaymentStatus
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(i) * checkRetryDelay):
			}
		}
		status, err = provider.CheckStatus(ctx, row.ProviderID)
		if err != nil {
			s.Log.Error("payment status check failed",
				"error", err,
				"payment_id", paymentID,
				"attempt", i+1)
			continue
		}
		if status.IsTerminal() {
			break
		}
	}
	if err != nil && status == "" {
		// провайдер недоступен — это не ответ "failed": платёж
		// остаётся в ожидании, webhook и поллинг его доберут
		s.Log.Warn("provider unreachable, payment stays pending",
			"error", err,
			"payment_id", paymentID)
		return domain.PaymentStatusPending, domain.WrapBusinessError(ErrPaymentStillPends)
	}

	switch status {
	case domain.PaymentStatusSucceeded:
		userID, uerr := s.userFor(ctx, row, nil)
		if uerr != nil {
			return "", uerr
		}
		if aerr := s.Activation.ActivateSucceeded(ctx, row, userID); aerr != nil {
			return "", aerr
		}
		return domain.PaymentStatusSucceeded, nil
	case domain.PaymentStatusFailed:
		if aerr := s.Activation.MarkFailed(ctx, row, "provider reported failure"); aerr != nil {
			return "", aerr
		}
		return domain.PaymentStatusFailed, nil
	default:
		return domain.PaymentStatusPending, domain.WrapBusinessError(ErrPaymentStillPends)
	}
}

// escalate регистрирует платёж в очереди ручного разбора и публикует
// событие для аналитики
func (s *Service) escalate(ctx context.Context, n *paymentPorts.Notification) error {
	if _, err := s.Resolver.Escalate(ctx, n); err != nil {
		return err
	}
	if s.Producer != nil {
		event := kafka.PaymentEvent{
			Type:        kafka.EventPaymentUnresolved,
			Provider:    n.Provider,
			ProviderID:  n.ProviderPaymentID,
			AmountMinor: n.AmountMinor,
			Currency:    n.Currency,
		}
		if err := s.Producer.SendPaymentEvent(ctx, event); err != nil {
			s.Log.Error("failed to send unresolved event",
				"error", err,
				"provider_id", n.ProviderPaymentID)
		}
	}
	return nil
}

// userFor определяет пользователя платежа: привязка в журнале, иначе
// каскад резолвера по уведомлению
func (s *Service) userFor(ctx context.Context, row *domain.Payment, n *paymentPorts.Notification) (uuid.UUID, error) {
	if row.UserID != nil && *row.UserID != uuid.Nil {
		return *row.UserID, nil
	}
	if n == nil {
		return uuid.Nil, domain.ErrNotFound
	}
	res, err := s.Resolver.Resolve(ctx, n)
	if err != nil {
		return uuid.Nil, err
	}
	return res.UserID, nil
}

func (s *Service) emitCreated(ctx context.Context, p *domain.Payment) {
	if s.Producer == nil {
		return
	}
	var uid *string
	if p.UserID != nil {
		v := p.UserID.String()
		uid = &v
	}
	event := kafka.PaymentEvent{
		Type:        kafka.EventPaymentCreated,
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
			"payment_id", p.ID)
	}
}
