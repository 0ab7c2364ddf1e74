package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/repository"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/activation"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/resolver"
)

var (
	ErrAlreadyProcessed = errors.New("record already processed")
	ErrAmountMismatch   = errors.New("amount matches no product")
)

// minCandidatePhoneDigits короткие хвосты дают слишком много коллизий
const minCandidatePhoneDigits = 7

// Service операции админа над очередью ручного разбора. Каждое решение
// записывает, кто и когда его принял; обработанные записи автоматика
// больше не трогает
type Service struct {
	UnresolvedRepo repository.IUnresolvedRepo
	PaymentRepo    repository.IPaymentRepo
	UserRepo       repository.IUserRepo
	Activation     *activation.Service
	Log            *slog.Logger
}

func New(
	unresolvedRepo repository.IUnresolvedRepo,
	paymentRepo repository.IPaymentRepo,
	userRepo repository.IUserRepo,
	activationSvc *activation.Service,
	log *slog.Logger,
) *Service {
	return &Service{
		UnresolvedRepo: unresolvedRepo,
		PaymentRepo:    paymentRepo,
		UserRepo:       userRepo,
		Activation:     activationSvc,
		Log:            log,
	}
}

// ListPending возвращает необработанные записи очереди
func (s *Service) ListPending(ctx context.Context, limit int) ([]domain.UnresolvedPayment, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.UnresolvedRepo.ListUnprocessed(ctx, limit)
}

// Candidates подбирает пользователей, похожих на плательщика записи,
// по email и телефону из payload провайдера. Подсказка для админа,
// решение о сопоставлении всегда за человеком
func (s *Service) Candidates(ctx context.Context, recordID uuid.UUID) ([]domain.User, error) {
	record, err := s.UnresolvedRepo.GetByID(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to get unresolved record: %w", err)
	}

	var out []domain.User
	seen := map[uuid.UUID]struct{}{}

	if record.Email != nil {
		user, err := s.UserRepo.GetByEmail(ctx, resolver.NormalizeEmail(*record.Email))
		if err == nil {
			out = append(out, *user)
			seen[user.ID] = struct{}{}
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("failed to search by email: %w", err)
		}
	}

	if record.Phone != nil {
		digits := resolver.NormalizePhone(*record.Phone)
		if len(digits) >= minCandidatePhoneDigits {
			user, err := s.UserRepo.GetByPhoneDigits(ctx, digits)
			if err == nil {
				if _, dup := seen[user.ID]; !dup {
					out = append(out, *user)
				}
			} else if !errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("failed to search by phone: %w", err)
			}
		}
	}

	return out, nil
}

// Ignore помечает запись обработанной без активации (возврат средств,
// спам, тестовый платёж)
func (s *Service) Ignore(ctx context.Context, recordID uuid.UUID, adminTelegramID int64) error {
	record, err := s.UnresolvedRepo.GetByID(ctx, recordID)
	if err != nil {
		return fmt.Errorf("failed to get unresolved record: %w", err)
	}
	if record.Processed {
		return domain.WrapBusinessError(ErrAlreadyProcessed)
	}

	if err := s.UnresolvedRepo.MarkProcessed(ctx, recordID, domain.OutcomeIgnored, &adminTelegramID); err != nil {
		return fmt.Errorf("failed to mark record ignored: %w", err)
	}

	s.Log.Info("unresolved payment ignored",
		"record_id", recordID,
		"provider_id", record.ProviderID,
		"admin", adminTelegramID)
	return nil
}

// ActivateForUser вручную сопоставляет запись очереди с пользователем
// по его telegram id и выдаёт продукт. Продукт определяется суммой
// платежа: цена колоды — колода, цена тарифа — подписка на этот тариф.
// Платёж заводится в журнал как succeeded, чтобы реконсиляция видела
// его как обычный активированный платёж
func (s *Service) ActivateForUser(ctx context.Context, recordID uuid.UUID, targetTelegramID int64, adminTelegramID int64) error {
	record, err := s.UnresolvedRepo.GetByID(ctx, recordID)
	if err != nil {
		return fmt.Errorf("failed to get unresolved record: %w", err)
	}
	if record.Processed {
		return domain.WrapBusinessError(ErrAlreadyProcessed)
	}

	user, err := s.UserRepo.GetByTelegramID(ctx, targetTelegramID)
	if err != nil {
		return fmt.Errorf("failed to find target user: %w", err)
	}

	product := domain.ProductSubscription
	var plan *domain.SubscriptionPlan
	if domain.IsDeckAmount(record.AmountMinor, record.Currency) {
		product = domain.ProductDeck
	} else if p, ok := domain.PlanByAmount(record.AmountMinor, record.Currency); ok {
		plan = &p
	} else {
		return domain.WrapBusinessError(ErrAmountMismatch)
	}

	row, err := s.ensurePaymentRow(ctx, record, user.ID, product, plan)
	if err != nil {
		return err
	}

	if err := s.Activation.GrantProduct(ctx, row, user.ID); err != nil {
		return fmt.Errorf("failed to grant product: %w", err)
	}

	if err := s.UnresolvedRepo.MarkProcessed(ctx, recordID, domain.OutcomeManuallyActivated, &adminTelegramID); err != nil {
		return fmt.Errorf("failed to mark record processed: %w", err)
	}

	s.Log.Info("unresolved payment manually activated",
		"record_id", recordID,
		"provider_id", record.ProviderID,
		"user_id", user.ID,
		"product", product,
		"admin", adminTelegramID)
	return nil
}

// ensurePaymentRow находит или создаёт строку журнала для платежа
// из очереди разбора. Строка сразу succeeded: провайдер деньги уже
// подтвердил, pending-цикл этому платежу не нужен
func (s *Service) ensurePaymentRow(
	ctx context.Context,
	record *domain.UnresolvedPayment,
	userID uuid.UUID,
	product domain.ProductType,
	plan *domain.SubscriptionPlan,
) (*domain.Payment, error) {
	existing, err := s.PaymentRepo.GetByProviderID(ctx, record.Provider, record.ProviderID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up payment: %w", err)
	}

	now := time.Now()
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	row := &domain.Payment{
		ID:          uuid.New(),
		UserID:      &userID,
		AmountMinor: record.AmountMinor,
		Currency:    record.Currency,
		Provider:    record.Provider,
		ProviderID:  record.ProviderID,
		Status:      domain.PaymentStatusSucceeded,
		Product:     product,
		Plan:        plan,
		Metadata:    record.Payload,
		CreatedAt:   createdAt,
		SucceededAt: &now,
	}
	if err := s.PaymentRepo.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to record manual payment: %w", err)
	}
	return row, nil
}
