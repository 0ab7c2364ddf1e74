package unresolvedRepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/persistence"
	ports "github.com/lisenka9/metaphor-bot-sub000/internal/ports/repository"
)

type unresolvedColumns struct {
	TableName   string
	ID          string
	Provider    string
	ProviderID  string
	AmountMinor string
	Currency    string
	Payload     string
	Email       string
	Phone       string
	Processed   string
	Outcome     string
	ResolvedBy  string
	CreatedAt   string
	ProcessedAt string
}

type Repository struct {
	db      persistence.Persistence
	Log     *slog.Logger
	columns unresolvedColumns
}

// New создаёт новый репозиторий очереди ручного разбора
func New(db persistence.Persistence, log *slog.Logger) ports.IUnresolvedRepo {
	cols := unresolvedColumns{
		TableName:   "unresolved_payments",
		ID:          "id",
		Provider:    "provider",
		ProviderID:  "provider_id",
		AmountMinor: "amount_minor",
		Currency:    "currency",
		Payload:     "payload",
		Email:       "email",
		Phone:       "phone",
		Processed:   "processed",
		Outcome:     "outcome",
		ResolvedBy:  "resolved_by",
		CreatedAt:   "created_at",
		ProcessedAt: "processed_at",
	}
	return &Repository{
		db:      db,
		Log:     log,
		columns: cols,
	}
}

// allColumns возвращает строку со всеми колонками (13 колонок)
func (r *Repository) allColumns() string {
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s",
		r.columns.ID,
		r.columns.Provider,
		r.columns.ProviderID,
		r.columns.AmountMinor,
		r.columns.Currency,
		r.columns.Payload,
		r.columns.Email,
		r.columns.Phone,
		r.columns.Processed,
		r.columns.Outcome,
		r.columns.ResolvedBy,
		r.columns.CreatedAt,
		r.columns.ProcessedAt)
}

// Create создаёт запись в очереди. Конфликт по (provider, provider_id)
// молча игнорируется: повторная доставка того же webhook не должна
// плодить дубли в очереди
func (r *Repository) Create(ctx context.Context, record *domain.UnresolvedPayment) error {
	payloadValue, err := record.Payload.Value()
	if err != nil {
		r.Log.Error("failed to marshal unresolved payload",
			"error", err,
			"record_id", record.ID)
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var outcome *string
	if record.Outcome != nil {
		o := string(*record.Outcome)
		outcome = &o
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (%s, %s) DO NOTHING`,
		r.columns.TableName,
		r.allColumns(),
		r.columns.Provider,
		r.columns.ProviderID)

	err = r.db.Exec(ctx, query,
		record.ID,
		string(record.Provider),
		record.ProviderID,
		record.AmountMinor,
		record.Currency,
		payloadValue,
		record.Email,
		record.Phone,
		record.Processed,
		outcome,
		record.ResolvedBy,
		record.CreatedAt,
		record.ProcessedAt)
	if err != nil {
		r.Log.Error("failed to create unresolved payment",
			"error", err,
			"provider_id", record.ProviderID)
		return fmt.Errorf("failed to create unresolved payment: %w", err)
	}

	r.Log.Debug("unresolved payment recorded",
		"record_id", record.ID,
		"provider", record.Provider,
		"provider_id", record.ProviderID)
	return nil
}

// GetByID получает запись очереди по ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*domain.UnresolvedPayment, error) {
	var record domain.UnresolvedPayment
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.ID)
	err := r.db.Get(ctx, &record, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.Log.Warn("unresolved payment not found", "record_id", id)
			return nil, domain.ErrNotFound
		}
		r.Log.Error("failed to get unresolved payment",
			"error", err,
			"record_id", id)
		return nil, fmt.Errorf("failed to get unresolved payment: %w", err)
	}
	return &record, nil
}

// GetByProviderID получает запись очереди по ID платежа у провайдера
func (r *Repository) GetByProviderID(ctx context.Context, provider domain.PaymentProvider, providerID string) (*domain.UnresolvedPayment, error) {
	var record domain.UnresolvedPayment
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s = $2`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.Provider,
		r.columns.ProviderID)
	err := r.db.Get(ctx, &record, query, string(provider), providerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.Log.Error("failed to get unresolved payment by provider_id",
			"error", err,
			"provider_id", providerID)
		return nil, fmt.Errorf("failed to get unresolved payment: %w", err)
	}
	return &record, nil
}

// ListUnprocessed возвращает неразобранные записи, старые первыми
func (r *Repository) ListUnprocessed(ctx context.Context, limit int) ([]domain.UnresolvedPayment, error) {
	var records []domain.UnresolvedPayment
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = FALSE ORDER BY %s ASC LIMIT $1`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.Processed,
		r.columns.CreatedAt)
	if err := r.db.Select(ctx, &records, query, limit); err != nil {
		r.Log.Error("failed to list unprocessed payments",
			"error", err)
		return nil, fmt.Errorf("failed to list unprocessed payments: %w", err)
	}
	return records, nil
}

// MarkProcessed закрывает запись очереди с исходом. Уже разобранную
// запись не трогает — после processed = true автоматика к ней не возвращается
func (r *Repository) MarkProcessed(ctx context.Context, id uuid.UUID, outcome domain.ResolutionOutcome, resolvedBy *int64) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = TRUE, %s = $2, %s = $3, %s = $4
		WHERE %s = $1 AND %s = FALSE`,
		r.columns.TableName,
		r.columns.Processed,
		r.columns.Outcome,
		r.columns.ResolvedBy,
		r.columns.ProcessedAt,
		r.columns.ID,
		r.columns.Processed)
	rowsAffected, err := r.db.ExecWithResult(ctx, query, id, string(outcome), resolvedBy, time.Now())
	if err != nil {
		r.Log.Error("failed to mark unresolved payment processed",
			"error", err,
			"record_id", id)
		return fmt.Errorf("failed to mark processed: %w", err)
	}
	if rowsAffected == 0 {
		r.Log.Warn("unresolved payment already processed or missing", "record_id", id)
		return domain.ErrNotFound
	}
	r.Log.Debug("unresolved payment processed",
		"record_id", id,
		"outcome", outcome)
	return nil
}
