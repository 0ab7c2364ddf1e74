package deckRepo

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

type deckColumns struct {
	TableName         string
	ID                string
	UserID            string
	Provider          string
	ProviderPaymentID string
	Status            string
	CreatedAt         string
	CompletedAt       string
}

type Repository struct {
	db      persistence.Persistence
	Log     *slog.Logger
	columns deckColumns
}

// New создаёт новый репозиторий покупок колоды
func New(db persistence.Persistence, log *slog.Logger) ports.IDeckRepo {
	cols := deckColumns{
		TableName:         "deck_purchases",
		ID:                "id",
		UserID:            "user_id",
		Provider:          "provider",
		ProviderPaymentID: "provider_payment_id",
		Status:            "status",
		CreatedAt:         "created_at",
		CompletedAt:       "completed_at",
	}
	return &Repository{
		db:      db,
		Log:     log,
		columns: cols,
	}
}

// allColumns возвращает строку со всеми колонками (7 колонок)
func (r *Repository) allColumns() string {
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s, %s",
		r.columns.ID,
		r.columns.UserID,
		r.columns.Provider,
		r.columns.ProviderPaymentID,
		r.columns.Status,
		r.columns.CreatedAt,
		r.columns.CompletedAt)
}

// Create создаёт запись о покупке колоды
func (r *Repository) Create(ctx context.Context, purchase *domain.DeckPurchase) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.columns.TableName,
		r.allColumns())
	err := r.db.Exec(ctx, query,
		purchase.ID,
		purchase.UserID,
		string(purchase.Provider),
		purchase.ProviderPaymentID,
		string(purchase.Status),
		purchase.CreatedAt,
		purchase.CompletedAt)
	if err != nil {
		r.Log.Error("failed to create deck purchase",
			"error", err,
			"user_id", purchase.UserID)
		return fmt.Errorf("failed to create deck purchase: %w", err)
	}
	r.Log.Debug("deck purchase created",
		"purchase_id", purchase.ID,
		"user_id", purchase.UserID)
	return nil
}

// GetCompleted получает завершённую покупку колоды пользователя
func (r *Repository) GetCompleted(ctx context.Context, userID uuid.UUID) (*domain.DeckPurchase, error) {
	var purchase domain.DeckPurchase
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s = $2`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.UserID,
		r.columns.Status)
	err := r.db.Get(ctx, &purchase, query, userID, string(domain.PaymentStatusSucceeded))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.Log.Error("failed to get completed deck purchase",
			"error", err,
			"user_id", userID)
		return nil, fmt.Errorf("failed to get completed deck purchase: %w", err)
	}
	return &purchase, nil
}

// HasCompleted проверяет, есть ли у пользователя завершённая покупка колоды
func (r *Repository) HasCompleted(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE %s = $1 AND %s = $2)`,
		r.columns.TableName,
		r.columns.UserID,
		r.columns.Status)
	err := r.db.Get(ctx, &exists, query, userID, string(domain.PaymentStatusSucceeded))
	if err != nil {
		r.Log.Error("failed to check deck purchase",
			"error", err,
			"user_id", userID)
		return false, fmt.Errorf("failed to check deck purchase: %w", err)
	}
	return exists, nil
}

// Complete фиксирует завершённую покупку колоды. Частичный уникальный
// индекс по (user_id, status = succeeded) гарантирует не больше одной
// завершённой покупки; конфликт означает повторную активацию и игнорируется
func (r *Repository) Complete(ctx context.Context, userID uuid.UUID, provider domain.PaymentProvider, providerPaymentID string) error {
	now := time.Now()
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (%s) WHERE %s = 'succeeded' DO NOTHING`,
		r.columns.TableName,
		r.allColumns(),
		r.columns.UserID,
		r.columns.Status)
	err := r.db.Exec(ctx, query,
		uuid.New(),
		userID,
		string(provider),
		providerPaymentID,
		string(domain.PaymentStatusSucceeded),
		now,
		&now)
	if err != nil {
		r.Log.Error("failed to complete deck purchase",
			"error", err,
			"user_id", userID)
		return fmt.Errorf("failed to complete deck purchase: %w", err)
	}
	r.Log.Debug("deck purchase completed",
		"user_id", userID,
		"provider_payment_id", providerPaymentID)
	return nil
}
