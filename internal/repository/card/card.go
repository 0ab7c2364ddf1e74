package cardRepo

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

type cardColumns struct {
	TableName string
	ID        string
	Number    string
	Title     string
	Message   string
	S3Path    string
	CreatedAt string
}

// Repository репозиторий каталога карт
type Repository struct {
	db      persistence.Persistence
	Log     *slog.Logger
	columns cardColumns
}

// New создаёт новый репозиторий каталога карт
func New(db persistence.Persistence, log *slog.Logger) ports.ICardRepo {
	cols := cardColumns{
		TableName: "cards",
		ID:        "id",
		Number:    "number",
		Title:     "title",
		Message:   "message",
		S3Path:    "s3_path",
		CreatedAt: "created_at",
	}
	return &Repository{
		db:      db,
		Log:     log,
		columns: cols,
	}
}

func (r *Repository) allColumns() string {
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s",
		r.columns.ID,
		r.columns.Number,
		r.columns.Title,
		r.columns.Message,
		r.columns.S3Path,
		r.columns.CreatedAt)
}

// GetRandom возвращает случайную карту из каталога
func (r *Repository) GetRandom(ctx context.Context) (*domain.Card, error) {
	var card domain.Card
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY RANDOM() LIMIT 1`,
		r.allColumns(),
		r.columns.TableName)
	err := r.db.Get(ctx, &card, query)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.Log.Warn("card catalog is empty")
			return nil, domain.ErrNotFound
		}
		r.Log.Error("failed to get random card", "error", err)
		return nil, fmt.Errorf("failed to get random card: %w", err)
	}
	return &card, nil
}

// GetByID получает карту по ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	var card domain.Card
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.ID)
	err := r.db.Get(ctx, &card, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.Log.Error("failed to get card", "error", err, "card_id", id)
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return &card, nil
}

// Count возвращает размер каталога
func (r *Repository) Count(ctx context.Context) (int, error) {
	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.columns.TableName)
	if err := r.db.Get(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return count, nil
}

// DrawRepository репозиторий журнала вытянутых карт
type DrawRepository struct {
	db  persistence.Persistence
	Log *slog.Logger
}

// NewDrawRepo создаёт новый репозиторий журнала вытянутых карт
func NewDrawRepo(db persistence.Persistence, log *slog.Logger) ports.ICardDrawRepo {
	return &DrawRepository{
		db:  db,
		Log: log,
	}
}

// Create записывает факт вытягивания карты
func (r *DrawRepository) Create(ctx context.Context, draw *domain.CardDraw) error {
	query := `INSERT INTO card_draws (id, user_id, card_id, drawn_at, drawn_date)
		VALUES ($1, $2, $3, $4, $5)`
	err := r.db.Exec(ctx, query,
		draw.ID,
		draw.UserID,
		draw.CardID,
		draw.DrawnAt,
		draw.DrawnDate)
	if err != nil {
		r.Log.Error("failed to record card draw",
			"error", err,
			"user_id", draw.UserID)
		return fmt.Errorf("failed to record card draw: %w", err)
	}
	r.Log.Debug("card draw recorded",
		"user_id", draw.UserID,
		"card_id", draw.CardID)
	return nil
}

// CountForDate считает вытянутые пользователем карты за дату.
// Дневной лимит выводится из этого подсчёта, счётчик не хранится
func (r *DrawRepository) CountForDate(ctx context.Context, userID uuid.UUID, date time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM card_draws WHERE user_id = $1 AND drawn_date = $2::date`
	if err := r.db.Get(ctx, &count, query, userID, date.Format("2006-01-02")); err != nil {
		r.Log.Error("failed to count card draws",
			"error", err,
			"user_id", userID)
		return 0, fmt.Errorf("failed to count card draws: %w", err)
	}
	return count, nil
}
