package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/cache"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/payment"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/repository"
)

// Method каким способом платёж был сопоставлен с пользователем
type Method string

const (
	MethodMetadata Method = "metadata"
	MethodEmail    Method = "email"
	MethodPhone    Method = "phone"
	MethodRecency  Method = "recency"
)

// Result результат резолва: найденный пользователь и сработавшая эвристика
type Result struct {
	UserID uuid.UUID
	Method Method
}

// Service сопоставляет входящие платежи с пользователями. Эвристики
// применяются строго по убыванию надёжности: metadata, email, телефон,
// recency-кэш. Смысл порядка в том, что ложная выдача премиума чужому
// человеку хуже, чем попадание платежа в очередь ручного разбора
type Service struct {
	UserRepo       repository.IUserRepo
	PaymentRepo    repository.IPaymentRepo
	UnresolvedRepo repository.IUnresolvedRepo
	SelectionCache cache.ISelectionCache
	Alerter        alerter
	Log            *slog.Logger
}

type alerter interface {
	SendAlert(ctx context.Context, message string) error
}

func New(
	userRepo repository.IUserRepo,
	paymentRepo repository.IPaymentRepo,
	unresolvedRepo repository.IUnresolvedRepo,
	selectionCache cache.ISelectionCache,
	alerterService alerter,
	log *slog.Logger,
) *Service {
	return &Service{
		UserRepo:       userRepo,
		PaymentRepo:    paymentRepo,
		UnresolvedRepo: unresolvedRepo,
		SelectionCache: selectionCache,
		Alerter:        alerterService,
		Log:            log,
	}
}

// Resolve прогоняет каскад эвристик для уведомления провайдера.
// Возвращает domain.ErrNotFound, если ни одна не дала пользователя —
// caller обязан эскалировать через Escalate, а не гадать дальше
func (s *Service) Resolve(ctx context.Context, n *payment.Notification) (*Result, error) {
	// 1. Прямая ссылка из metadata — платёж создавали мы сами,
	// сопоставление детерминированное
	if n.MetadataUserID != nil && *n.MetadataUserID != uuid.Nil {
		user, err := s.UserRepo.GetByID(ctx, *n.MetadataUserID)
		if err == nil {
			s.Log.Debug("payment resolved by metadata",
				"provider_id", n.ProviderPaymentID,
				"user_id", user.ID)
			return &Result{UserID: user.ID, Method: MethodMetadata}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up metadata user: %w", err)
		}
		// metadata ссылается на несуществующего пользователя —
		// идём по остальным эвристикам
		s.Log.Warn("metadata user_id does not exist",
			"provider_id", n.ProviderPaymentID,
			"user_id", *n.MetadataUserID)
	}

	// 2. Точное совпадение email без учёта регистра
	if n.Email != nil {
		email := NormalizeEmail(*n.Email)
		if email != "" {
			user, err := s.UserRepo.GetByEmail(ctx, email)
			if err == nil {
				s.Log.Debug("payment resolved by email",
					"provider_id", n.ProviderPaymentID,
					"user_id", user.ID)
				return &Result{UserID: user.ID, Method: MethodEmail}, nil
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("failed to look up user by email: %w", err)
			}
			// В анкете пользователя email может отсутствовать, но тот же
			// адрес мог фигурировать в уже привязанном платеже — берём
			// владельца самого свежего из них
			if res, err := s.resolveByPaymentHistory(ctx, n, email); err != nil {
				return nil, err
			} else if res != nil {
				return res, nil
			}
		}
	}

	// 3. Совпадение телефона по хвосту цифр: провайдеры присылают
	// номер в разных форматах, сравниваем только цифры
	if n.Phone != nil {
		digits := NormalizePhone(*n.Phone)
		if len(digits) >= minPhoneDigits {
			user, err := s.UserRepo.GetByPhoneDigits(ctx, digits)
			if err == nil {
				s.Log.Debug("payment resolved by phone",
					"provider_id", n.ProviderPaymentID,
					"user_id", user.ID)
				return &Result{UserID: user.ID, Method: MethodPhone}, nil
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("failed to look up user by phone: %w", err)
			}
		}
	}

	// 4. Recency-эвристика: кто в последний час выбирал тариф ровно
	// на эту сумму. Слабая, поэтому последняя
	userID, ok, err := s.SelectionCache.LastSelection(ctx, n.AmountMinor, n.Currency)
	if err != nil {
		// недоступный кэш не валит резолв, просто пропускаем эвристику
		s.Log.Error("selection cache lookup failed",
			"error", err,
			"provider_id", n.ProviderPaymentID)
	} else if ok {
		user, err := s.UserRepo.GetByID(ctx, userID)
		if err == nil {
			s.Log.Info("payment resolved by recency heuristic",
				"provider_id", n.ProviderPaymentID,
				"user_id", user.ID,
				"amount_minor", n.AmountMinor)
			return &Result{UserID: user.ID, Method: MethodRecency}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up recency user: %w", err)
		}
	}

	return nil, domain.ErrNotFound
}

// resolveByPaymentHistory ищет email в metadata уже привязанных платежей.
// Возвращает (nil, nil), если история ничего не дала
func (s *Service) resolveByPaymentHistory(ctx context.Context, n *payment.Notification, email string) (*Result, error) {
	if s.PaymentRepo == nil {
		return nil, nil
	}
	row, err := s.PaymentRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up payment history by email: %w", err)
	}
	if row.UserID == nil {
		return nil, nil
	}
	// владелец мог быть удалён после того платежа — проверяем
	user, err := s.UserRepo.GetByID(ctx, *row.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up payment history user: %w", err)
	}
	s.Log.Debug("payment resolved by email history",
		"provider_id", n.ProviderPaymentID,
		"user_id", user.ID)
	return &Result{UserID: user.ID, Method: MethodEmail}, nil
}

// Escalate кладёт неопознанный платёж в очередь ручного разбора и шлёт
// алерт админам. Запись идемпотентна по (provider, provider_id): повторное
// уведомление о том же платеже второй строки не создаёт
func (s *Service) Escalate(ctx context.Context, n *payment.Notification) (*domain.UnresolvedPayment, error) {
	record := &domain.UnresolvedPayment{
		ID:          uuid.New(),
		Provider:    n.Provider,
		ProviderID:  n.ProviderPaymentID,
		AmountMinor: n.AmountMinor,
		Currency:    n.Currency,
		Payload:     n.Raw,
		Email:       n.Email,
		Phone:       n.Phone,
		CreatedAt:   time.Now(),
	}

	if err := s.UnresolvedRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to enqueue unresolved payment: %w", err)
	}

	s.Log.Warn("payment escalated to manual review",
		"provider", n.Provider,
		"provider_id", n.ProviderPaymentID,
		"amount_minor", n.AmountMinor,
		"currency", n.Currency)

	if s.Alerter != nil {
		msg := fmt.Sprintf(
			"⚠️ Неопознанный платёж\nПровайдер: %s\nID: %s\nСумма: %d %s",
			n.Provider, n.ProviderPaymentID, n.AmountMinor, n.Currency,
		)
		if err := s.Alerter.SendAlert(ctx, msg); err != nil {
			s.Log.Error("failed to send unresolved payment alert",
				"error", err,
				"provider_id", n.ProviderPaymentID)
		}
	}

	return record, nil
}

// MarkAutoResolved закрывает запись очереди разбора, если платёж
// позже был сопоставлен автоматикой (повторное уведомление с лучшими
// данными). Отсутствие записи — норма, не ошибка
func (s *Service) MarkAutoResolved(ctx context.Context, provider domain.PaymentProvider, providerID string) error {
	record, err := s.UnresolvedRepo.GetByProviderID(ctx, provider, providerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if record.Processed {
		return nil
	}
	if err := s.UnresolvedRepo.MarkProcessed(ctx, record.ID, domain.OutcomeAutoResolved, nil); err != nil {
		return fmt.Errorf("failed to mark auto resolved: %w", err)
	}
	s.Log.Info("unresolved payment auto resolved",
		"provider", provider,
		"provider_id", providerID)
	return nil
}

// minPhoneDigits минимальное число цифр для сравнения телефонов,
// более короткие хвосты дают слишком много коллизий
const minPhoneDigits = 7

// NormalizeEmail приводит email к нижнему регистру и обрезает пробелы
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone оставляет от номера только цифры
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
