package paymentRepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/persistence"
	ports "github.com/lisenka9/metaphor-bot-sub000/internal/ports/repository"
)

type paymentColumns struct {
	TableName    string
	ID           string
	UserID       string
	AmountMinor  string
	Currency     string
	Provider     string
	ProviderID   string
	Status       string
	Product      string
	Plan         string
	Metadata     string
	CreatedAt    string
	SucceededAt  string
	FailedAt     string
	ErrorMessage string
}

type Repository struct {
	db      persistence.Persistence
	Log     *slog.Logger
	columns paymentColumns
}

// New создаёт новый репозиторий журнала платежей
func New(db persistence.Persistence, log *slog.Logger) ports.IPaymentRepo {
	cols := paymentColumns{
		TableName:    "payments",
		ID:           "id",
		UserID:       "user_id",
		AmountMinor:  "amount_minor",
		Currency:     "currency",
		Provider:     "provider",
		ProviderID:   "provider_id",
		Status:       "status",
		Product:      "product",
		Plan:         "plan",
		Metadata:     "metadata",
		CreatedAt:    "created_at",
		SucceededAt:  "succeeded_at",
		FailedAt:     "failed_at",
		ErrorMessage: "error_message",
	}
	return &Repository{
		db:      db,
		Log:     log,
		columns: cols,
	}
}

// allColumns возвращает строку со всеми колонками (14 колонок)
func (r *Repository) allColumns() string {
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s",
		r.columns.ID,
		r.columns.UserID,
		r.columns.AmountMinor,
		r.columns.Currency,
		r.columns.Provider,
		r.columns.ProviderID,
		r.columns.Status,
		r.columns.Product,
		r.columns.Plan,
		r.columns.Metadata,
		r.columns.CreatedAt,
		r.columns.SucceededAt,
		r.columns.FailedAt,
		r.columns.ErrorMessage)
}

// Create создаёт строку журнала платежей
func (r *Repository) Create(ctx context.Context, payment *domain.Payment) error {
	metadataValue, err := payment.Metadata.Value()
	if err != nil {
		r.Log.Error("failed to marshal payment metadata",
			"error", err,
			"payment_id", payment.ID)
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var plan *string
	if payment.Plan != nil {
		p := string(*payment.Plan)
		plan = &p
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.columns.TableName,
		r.allColumns())

	err = r.db.Exec(ctx, query,
		payment.ID,
		payment.UserID,
		payment.AmountMinor,
		payment.Currency,
		string(payment.Provider),
		payment.ProviderID,
		string(payment.Status),
		string(payment.Product),
		plan,
		metadataValue,
		payment.CreatedAt,
		payment.SucceededAt,
		payment.FailedAt,
		payment.ErrorMessage)
	if err != nil {
		r.Log.Error("failed to create payment",
			"error", err,
			"payment_id", payment.ID)
		return fmt.Errorf("failed to create payment: %w", err)
	}

	r.Log.Debug("payment created successfully",
		"payment_id", payment.ID,
		"provider", payment.Provider,
		"amount_minor", payment.AmountMinor)
	return nil
}

// GetByID получает платёж по внутреннему ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	var payment domain.Payment
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.ID)
	err := r.db.Get(ctx, &payment, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.Log.Warn("payment not found", "payment_id", id)
			return nil, domain.ErrNotFound
		}
		r.Log.Error("failed to get payment",
			"error", err,
			"payment_id", id)
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

// GetByProviderID получает платёж по ID в системе провайдера
func (r *Repository) GetByProviderID(ctx context.Context, provider domain.PaymentProvider, providerID string) (*domain.Payment, error) {
	var payment domain.Payment
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s = $2`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.Provider,
		r.columns.ProviderID)
	err := r.db.Get(ctx, &payment, query, string(provider), providerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.Log.Error("failed to get payment by provider_id",
			"error", err,
			"provider", provider,
			"provider_id", providerID)
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

// GetByEmail получает последний платёж, в metadata которого встречался
// этот email — используется резолвером как исторический матч
func (r *Repository) GetByEmail(ctx context.Context, email string) (*domain.Payment, error) {
	var payment domain.Payment
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE %s IS NOT NULL AND LOWER(%s::jsonb->>'email') = LOWER($1)
		ORDER BY %s DESC LIMIT 1`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.UserID,
		r.columns.Metadata,
		r.columns.CreatedAt)
	err := r.db.Get(ctx, &payment, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.Log.Error("failed to get payment by email",
			"error", err)
		return nil, fmt.Errorf("failed to get payment by email: %w", err)
	}
	return &payment, nil
}

// UpdateStatus обновляет статус платежа. Из терминального статуса
// платёж не выводится — уже завершённые строки запрос не трогает
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, succeededAt, failedAt *time.Time, errorMessage *string) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = $1, %s = $2, %s = $3, %s = $4
		WHERE %s = $5 AND %s = $6`,
		r.columns.TableName,
		r.columns.Status,
		r.columns.SucceededAt,
		r.columns.FailedAt,
		r.columns.ErrorMessage,
		r.columns.ID,
		r.columns.Status)
	err := r.db.Exec(ctx, query,
		string(status), succeededAt, failedAt, errorMessage,
		id, string(domain.PaymentStatusPending))
	if err != nil {
		r.Log.Error("failed to update payment status",
			"error", err,
			"payment_id", id,
			"status", status)
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	r.Log.Debug("payment status updated",
		"payment_id", id,
		"status", status)
	return nil
}

// MarkSucceeded атомарно переводит платёж из pending в succeeded.
// Второй конкурентный вызов получает false по числу затронутых строк
func (r *Repository) MarkSucceeded(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := fmt.Sprintf(`UPDATE %s SET %s = $1, %s = $2
		WHERE %s = $3 AND %s = $4`,
		r.columns.TableName,
		r.columns.Status,
		r.columns.SucceededAt,
		r.columns.ID,
		r.columns.Status)
	affected, err := r.db.ExecWithResult(ctx, query,
		string(domain.PaymentStatusSucceeded), at,
		id, string(domain.PaymentStatusPending))
	if err != nil {
		r.Log.Error("failed to mark payment succeeded",
			"error", err,
			"payment_id", id)
		return false, fmt.Errorf("failed to mark payment succeeded: %w", err)
	}
	r.Log.Debug("payment marked succeeded",
		"payment_id", id,
		"won", affected > 0)
	return affected > 0, nil
}

// SetUserID проставляет пользователя на платёж после резолва identity
func (r *Repository) SetUserID(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = $2 WHERE %s = $1 AND %s IS NULL`,
		r.columns.TableName,
		r.columns.UserID,
		r.columns.ID,
		r.columns.UserID)
	if err := r.db.Exec(ctx, query, id, userID); err != nil {
		r.Log.Error("failed to set user on payment",
			"error", err,
			"payment_id", id,
			"user_id", userID)
		return fmt.Errorf("failed to set user on payment: %w", err)
	}
	return nil
}

// SucceededWithoutActivation возвращает успешные платежи-подписки без
// соответствующей строки подписки и успешные платежи-колоды без покупки.
// Фоллбек для восстановления после потери in-memory индекса
func (r *Repository) SucceededWithoutActivation(ctx context.Context, limit int) ([]domain.Payment, error) {
	var payments []domain.Payment
	query := fmt.Sprintf(`SELECT %s FROM %s p
		WHERE p.%s = $1
		  AND p.%s IS NOT NULL
		  AND (
		    (p.%s = $2 AND NOT EXISTS (
		      SELECT 1 FROM subscriptions s WHERE s.provider_payment_id = p.%s AND s.provider_payment_id <> ''
		    ))
		    OR
		    (p.%s = $3 AND NOT EXISTS (
		      SELECT 1 FROM deck_purchases d WHERE d.user_id = p.%s AND d.status = $1
		    ))
		  )
		ORDER BY p.%s ASC
		LIMIT $4`,
		r.prefixedColumns("p"),
		r.columns.TableName,
		r.columns.Status,
		r.columns.UserID,
		r.columns.Product,
		r.columns.ProviderID,
		r.columns.Product,
		r.columns.UserID,
		r.columns.CreatedAt)
	err := r.db.Select(ctx, &payments, query,
		string(domain.PaymentStatusSucceeded),
		string(domain.ProductSubscription),
		string(domain.ProductDeck),
		limit)
	if err != nil {
		r.Log.Error("failed to list succeeded payments without activation",
			"error", err)
		return nil, fmt.Errorf("failed to list succeeded payments without activation: %w", err)
	}
	return payments, nil
}

// ListPending возвращает pending-платежи, созданные до olderThan
func (r *Repository) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Payment, error) {
	var payments []domain.Payment
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s < $2 ORDER BY %s ASC LIMIT $3`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.Status,
		r.columns.CreatedAt,
		r.columns.CreatedAt)
	err := r.db.Select(ctx, &payments, query, string(domain.PaymentStatusPending), olderThan, limit)
	if err != nil {
		r.Log.Error("failed to list pending payments",
			"error", err)
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	return payments, nil
}

// prefixedColumns возвращает колонки с префиксом алиаса таблицы
func (r *Repository) prefixedColumns(alias string) string {
	cols := []string{
		r.columns.ID,
		r.columns.UserID,
		r.columns.AmountMinor,
		r.columns.Currency,
		r.columns.Provider,
		r.columns.ProviderID,
		r.columns.Status,
		r.columns.Product,
		r.columns.Plan,
		r.columns.Metadata,
		r.columns.CreatedAt,
		r.columns.SucceededAt,
		r.columns.FailedAt,
		r.columns.ErrorMessage,
	}
	prefixed := make([]string, len(cols))
	for i, col := range cols {
		prefixed[i] = alias + "." + col
	}
	return strings.Join(prefixed, ", ")
}
