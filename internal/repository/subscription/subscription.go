package subscriptionRepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"log/slog"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/persistence"
	ports "github.com/lisenka9/metaphor-bot-sub000/internal/ports/repository"
)

type subscriptionColumns struct {
	TableName         string
	ID                string
	UserID            string
	Plan              string
	StartDate         string
	EndDate           string
	Active            string
	ProviderPaymentID string
	CreatedAt         string
}

type Repository struct {
	db      persistence.Persistence
	Log     *slog.Logger
	columns subscriptionColumns
}

// New создаёт новый репозиторий для работы с подписками
func New(db persistence.Persistence, log *slog.Logger) ports.ISubscriptionRepo {
	cols := subscriptionColumns{
		TableName:         "subscriptions",
		ID:                "id",
		UserID:            "user_id",
		Plan:              "plan",
		StartDate:         "start_date",
		EndDate:           "end_date",
		Active:            "active",
		ProviderPaymentID: "provider_payment_id",
		CreatedAt:         "created_at",
	}
	return &Repository{
		db:      db,
		Log:     log,
		columns: cols,
	}
}

// allColumns возвращает строку со всеми колонками (8 колонок)
func (r *Repository) allColumns() string {
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s, %s, %s",
		r.columns.ID,
		r.columns.UserID,
		r.columns.Plan,
		r.columns.StartDate,
		r.columns.EndDate,
		r.columns.Active,
		r.columns.ProviderPaymentID,
		r.columns.CreatedAt)
}

// GetActive получает активную подписку пользователя
func (r *Repository) GetActive(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s = TRUE`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.UserID,
		r.columns.Active)
	err := r.db.Get(ctx, &sub, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.Log.Error("failed to get active subscription",
			"error", err,
			"user_id", userID)
		return nil, fmt.Errorf("failed to get active subscription: %w", err)
	}
	return &sub, nil
}

// GetAllForUser получает все строки подписок пользователя, новые первыми
func (r *Repository) GetAllForUser(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY %s DESC`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.UserID,
		r.columns.CreatedAt)
	if err := r.db.Select(ctx, &subs, query, userID); err != nil {
		r.Log.Error("failed to get subscriptions for user",
			"error", err,
			"user_id", userID)
		return nil, fmt.Errorf("failed to get subscriptions: %w", err)
	}
	return subs, nil
}

// CountActiveForUser возвращает количество активных подписок пользователя.
// По инварианту должно быть 0 или 1, используется проверками консистентности
func (r *Repository) CountActiveForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1 AND %s = TRUE`,
		r.columns.TableName,
		r.columns.UserID,
		r.columns.Active)
	if err := r.db.Get(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("failed to count active subscriptions: %w", err)
	}
	return count, nil
}

// CreateTx создаёт строку подписки в транзакции
func (r *Repository) CreateTx(ctx context.Context, tx persistence.Transaction, sub *domain.Subscription) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.columns.TableName,
		r.allColumns())
	err := tx.Exec(ctx, query,
		sub.ID,
		sub.UserID,
		string(sub.Plan),
		sub.StartDate,
		sub.EndDate,
		sub.Active,
		sub.ProviderPaymentID,
		sub.CreatedAt)
	if err != nil {
		r.Log.Error("failed to create subscription in transaction",
			"error", err,
			"user_id", sub.UserID,
			"plan", sub.Plan)
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	r.Log.Debug("subscription created in transaction",
		"subscription_id", sub.ID,
		"user_id", sub.UserID,
		"plan", sub.Plan,
		"end_date", sub.EndDate)
	return nil
}

// DeactivateAllForUserTx деактивирует все активные подписки пользователя
// в транзакции. Вызывается перед созданием новой строки, чтобы держался
// инвариант "не больше одной активной подписки"
func (r *Repository) DeactivateAllForUserTx(ctx context.Context, tx persistence.Transaction, userID uuid.UUID) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET %s = FALSE WHERE %s = $1 AND %s = TRUE`,
		r.columns.TableName,
		r.columns.Active,
		r.columns.UserID,
		r.columns.Active)
	rowsAffected, err := tx.ExecWithResult(ctx, query, userID)
	if err != nil {
		r.Log.Error("failed to deactivate subscriptions in transaction",
			"error", err,
			"user_id", userID)
		return 0, fmt.Errorf("failed to deactivate subscriptions: %w", err)
	}
	r.Log.Debug("subscriptions deactivated in transaction",
		"user_id", userID,
		"rows_affected", rowsAffected)
	return rowsAffected, nil
}
