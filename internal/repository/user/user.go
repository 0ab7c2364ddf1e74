package userRepo

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

type userColumns struct {
	TableName      string
	ID             string
	TelegramUserID string
	TelegramChatID string
	FirstName      string
	LastName       string
	Username       string
	Email          string
	Phone          string
	IsPremium      string
	PremiumUntil   string
	DailyLimit     string
	CreatedAt      string
	UpdatedAt      string
	LastSeenAt     string
}

type Repository struct {
	db      persistence.Persistence
	Log     *slog.Logger
	columns userColumns
}

// New создаёт новый репозиторий для работы с пользователями
func New(db persistence.Persistence, log *slog.Logger) ports.IUserRepo {
	cols := userColumns{
		TableName:      "tg_users",
		ID:             "id",
		TelegramUserID: "tg_id",
		TelegramChatID: "chat_id",
		FirstName:      "first_name",
		LastName:       "last_name",
		Username:       "username",
		Email:          "email",
		Phone:          "phone",
		IsPremium:      "is_premium",
		PremiumUntil:   "premium_until",
		DailyLimit:     "daily_limit",
		CreatedAt:      "created_at",
		UpdatedAt:      "updated_at",
		LastSeenAt:     "last_seen_at",
	}
	return &Repository{
		db:      db,
		Log:     log,
		columns: cols,
	}
}

// allColumns возвращает строку со всеми колонками (15 колонок)
func (r *Repository) allColumns() string {
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s",
		r.columns.ID,
		r.columns.TelegramUserID,
		r.columns.TelegramChatID,
		r.columns.FirstName,
		r.columns.LastName,
		r.columns.Username,
		r.columns.Email,
		r.columns.Phone,
		r.columns.IsPremium,
		r.columns.PremiumUntil,
		r.columns.DailyLimit,
		r.columns.CreatedAt,
		r.columns.UpdatedAt,
		r.columns.LastSeenAt)
}

// Create создаёт нового пользователя
func (r *Repository) Create(ctx context.Context, user *domain.User) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.columns.TableName,
		r.allColumns())
	err := r.db.Exec(ctx, query,
		user.ID,
		user.TelegramUserID,
		user.TelegramChatID,
		user.FirstName,
		user.LastName,
		user.Username,
		user.Email,
		user.Phone,
		user.IsPremium,
		user.PremiumUntil,
		user.DailyLimit,
		user.CreatedAt,
		user.UpdatedAt,
		user.LastSeenAt)
	if err != nil {
		r.Log.Error("failed to create user",
			"error", err,
			"telegram_user_id", user.TelegramUserID,
			"user_id", user.ID)
		return fmt.Errorf("failed to create user: %w", err)
	}
	r.Log.Debug("user created successfully",
		"id", user.ID,
		"telegram_user_id", user.TelegramUserID)
	return nil
}

// GetByID получает пользователя по внутреннему ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.ID)
	err := r.db.Get(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.Log.Warn("user not found", "user_id", id)
			return nil, domain.ErrNotFound
		}
		r.Log.Error("failed to get user by id",
			"error", err,
			"user_id", id)
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// GetByTelegramID получает пользователя по Telegram ID
func (r *Repository) GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	var user domain.User
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.TelegramUserID)
	err := r.db.Get(ctx, &user, query, telegramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.Log.Warn("user not found", "telegram_user_id", telegramID)
			return nil, domain.ErrNotFound
		}
		r.Log.Error("failed to get user by telegram id",
			"error", err,
			"telegram_user_id", telegramID)
		return nil, fmt.Errorf("failed to get user by telegram id: %w", err)
	}
	return &user, nil
}

// GetByEmail получает пользователя по email (case-insensitive)
func (r *Repository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE LOWER(%s) = LOWER($1) ORDER BY %s DESC LIMIT 1`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.Email,
		r.columns.UpdatedAt)
	err := r.db.Get(ctx, &user, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.Log.Error("failed to get user by email",
			"error", err)
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

// GetByPhoneDigits получает пользователя по телефону, нормализованному
// до цифр. Сопоставление по вхождению, чтобы пережить разницу форматов
// (+7..., 8..., разделители)
func (r *Repository) GetByPhoneDigits(ctx context.Context, phoneDigits string) (*domain.User, error) {
	var user domain.User
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE %s IS NOT NULL
		  AND (POSITION(REGEXP_REPLACE(%s, '[^0-9]', '', 'g') IN $1) > 0
		   OR POSITION($1 IN REGEXP_REPLACE(%s, '[^0-9]', '', 'g')) > 0)
		ORDER BY %s DESC LIMIT 1`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.Phone,
		r.columns.Phone,
		r.columns.Phone,
		r.columns.UpdatedAt)
	err := r.db.Get(ctx, &user, query, phoneDigits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.Log.Error("failed to get user by phone",
			"error", err)
		return nil, fmt.Errorf("failed to get user by phone: %w", err)
	}
	return &user, nil
}

// ListExpiredPremium возвращает премиум-пользователей с premium_until
// в прошлом — вход ежедневного свипа истечений
func (r *Repository) ListExpiredPremium(ctx context.Context, now time.Time, limit int) ([]domain.User, error) {
	var users []domain.User
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE %s = TRUE AND %s IS NOT NULL AND %s <= $1
		ORDER BY %s ASC LIMIT $2`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.IsPremium,
		r.columns.PremiumUntil,
		r.columns.PremiumUntil,
		r.columns.PremiumUntil)
	err := r.db.Select(ctx, &users, query, now, limit)
	if err != nil {
		r.Log.Error("failed to list expired premium users",
			"error", err)
		return nil, fmt.Errorf("failed to list expired premium users: %w", err)
	}
	return users, nil
}

// UpdateContact обновляет email/телефон пользователя
func (r *Repository) UpdateContact(ctx context.Context, userID uuid.UUID, email, phone *string) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = COALESCE($2, %s), %s = COALESCE($3, %s), %s = $4 WHERE %s = $1`,
		r.columns.TableName,
		r.columns.Email,
		r.columns.Email,
		r.columns.Phone,
		r.columns.Phone,
		r.columns.UpdatedAt,
		r.columns.ID)
	rowsAffected, err := r.db.ExecWithResult(ctx, query, userID, email, phone, time.Now())
	if err != nil {
		r.Log.Error("failed to update user contact",
			"error", err,
			"user_id", userID)
		return fmt.Errorf("failed to update user contact: %w", err)
	}
	if rowsAffected == 0 {
		r.Log.Warn("user not found for contact update", "user_id", userID)
		return domain.ErrNotFound
	}
	r.Log.Debug("user contact updated", "user_id", userID)
	return nil
}

// UpdateLastSeen обновляет время последней активности пользователя
func (r *Repository) UpdateLastSeen(ctx context.Context, userID uuid.UUID) error {
	now := time.Now()
	query := fmt.Sprintf(`UPDATE %s SET %s = $1, %s = $2 WHERE %s = $3`,
		r.columns.TableName,
		r.columns.LastSeenAt,
		r.columns.UpdatedAt,
		r.columns.ID)
	rowsAffected, err := r.db.ExecWithResult(ctx, query, now, now, userID)
	if err != nil {
		r.Log.Error("failed to update last seen",
			"error", err,
			"user_id", userID)
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// BeginTx явно начинает транзакцию
func (r *Repository) BeginTx(ctx context.Context) (persistence.Transaction, error) {
	return r.db.BeginTx(ctx)
}

// WithTransaction выполняет функцию в транзакции с автоматическим commit/rollback
func (r *Repository) WithTransaction(ctx context.Context, fn func(context.Context, persistence.Transaction) error) error {
	return r.db.WithTransaction(ctx, fn)
}

// SetPremiumTx включает премиум в транзакции. Вызывается только вместе
// с созданием строки подписки — премиум-флаг без активной подписки
// нарушает инвариант
func (r *Repository) SetPremiumTx(ctx context.Context, tx persistence.Transaction, userID uuid.UUID, premiumUntil time.Time, dailyLimit int) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = TRUE, %s = $2, %s = $3, %s = $4 WHERE %s = $1`,
		r.columns.TableName,
		r.columns.IsPremium,
		r.columns.PremiumUntil,
		r.columns.DailyLimit,
		r.columns.UpdatedAt,
		r.columns.ID)
	rowsAffected, err := tx.ExecWithResult(ctx, query, userID, premiumUntil, dailyLimit, time.Now())
	if err != nil {
		r.Log.Error("failed to set premium in transaction",
			"error", err,
			"user_id", userID)
		return fmt.Errorf("failed to set premium: %w", err)
	}
	if rowsAffected == 0 {
		r.Log.Warn("user not found for set premium", "user_id", userID)
		return domain.ErrNotFound
	}
	r.Log.Debug("premium set in transaction",
		"user_id", userID,
		"premium_until", premiumUntil)
	return nil
}

// ClearPremiumTx снимает премиум в транзакции (вместе с деактивацией подписки)
func (r *Repository) ClearPremiumTx(ctx context.Context, tx persistence.Transaction, userID uuid.UUID, dailyLimit int) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = FALSE, %s = NULL, %s = $2, %s = $3 WHERE %s = $1`,
		r.columns.TableName,
		r.columns.IsPremium,
		r.columns.PremiumUntil,
		r.columns.DailyLimit,
		r.columns.UpdatedAt,
		r.columns.ID)
	rowsAffected, err := tx.ExecWithResult(ctx, query, userID, dailyLimit, time.Now())
	if err != nil {
		r.Log.Error("failed to clear premium in transaction",
			"error", err,
			"user_id", userID)
		return fmt.Errorf("failed to clear premium: %w", err)
	}
	if rowsAffected == 0 {
		r.Log.Warn("user not found for clear premium", "user_id", userID)
		return domain.ErrNotFound
	}
	r.Log.Debug("premium cleared in transaction", "user_id", userID)
	return nil
}
