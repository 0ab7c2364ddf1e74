package cards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/repository"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/service"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/storage"
)

var (
	ErrDailyLimitReached = errors.New("daily card limit reached")
	ErrDeckNotPurchased  = errors.New("deck is not purchased")
)

// deckArchivePath путь архива полной колоды в бакете
const deckArchivePath = "deck/metaphor-deck-full.zip"

// presignTTL время жизни ссылки на файл в S3
const presignTTL = 24 * time.Hour

// gater проверяет дневной лимит карт. Реализуется entitlement use case
type gater interface {
	CanDrawCard(ctx context.Context, userID uuid.UUID) (bool, error)
}

// DrawnCard вытянутая карта вместе со ссылкой на картинку
type DrawnCard struct {
	Card     *domain.Card
	ImageURL string
}

// Service карты дня и выдача купленной колоды. Премиум-гейтинг живёт
// в entitlement, здесь только выбор карты, журнал и доставка файлов
type Service struct {
	CardRepo repository.ICardRepo
	DrawRepo repository.ICardDrawRepo
	DeckRepo repository.IDeckRepo
	Gate     gater
	S3       storage.IS3Client
	Telegram service.ITelegramService
	Log      *slog.Logger
}

func New(
	cardRepo repository.ICardRepo,
	drawRepo repository.ICardDrawRepo,
	deckRepo repository.IDeckRepo,
	gate gater,
	s3 storage.IS3Client,
	telegram service.ITelegramService,
	log *slog.Logger,
) *Service {
	return &Service{
		CardRepo: cardRepo,
		DrawRepo: drawRepo,
		DeckRepo: deckRepo,
		Gate:     gate,
		S3:       s3,
		Telegram: telegram,
		Log:      log,
	}
}

// DrawCard вытягивает случайную карту в пределах дневного лимита.
// Лимит проверяется до выбора, факт пишется в журнал после — карта
// без записи в журнале лучше записи без карты
func (s *Service) DrawCard(ctx context.Context, userID uuid.UUID) (*DrawnCard, error) {
	allowed, err := s.Gate.CanDrawCard(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check daily limit: %w", err)
	}
	if !allowed {
		return nil, domain.WrapBusinessError(ErrDailyLimitReached)
	}

	card, err := s.CardRepo.GetRandom(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pick card: %w", err)
	}

	now := time.Now()
	draw := &domain.CardDraw{
		ID:        uuid.New(),
		UserID:    userID,
		CardID:    card.ID,
		DrawnAt:   now,
		DrawnDate: now,
	}
	if err := s.DrawRepo.Create(ctx, draw); err != nil {
		return nil, fmt.Errorf("failed to record draw: %w", err)
	}

	url, err := s.S3.GetPresignedURL(ctx, card.S3Path, presignTTL)
	if err != nil {
		// карта уже вытянута и записана, без картинки отдаём текст
		s.Log.Error("failed to presign card image",
			"error", err,
			"card_id", card.ID)
		url = ""
	}

	s.Log.Info("card drawn",
		"user_id", userID,
		"card_id", card.ID,
		"card_number", card.Number)

	return &DrawnCard{Card: card, ImageURL: url}, nil
}

// DeliverDeck отправляет архив колоды в чат купившего пользователя.
// Перед отправкой проверяет факт завершённой покупки
func (s *Service) DeliverDeck(ctx context.Context, userID uuid.UUID, chatID int64) error {
	owned, err := s.DeckRepo.HasCompleted(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to check deck purchase: %w", err)
	}
	if !owned {
		return domain.WrapBusinessError(ErrDeckNotPurchased)
	}

	url, err := s.S3.GetPresignedURL(ctx, deckArchivePath, presignTTL)
	if err != nil {
		return fmt.Errorf("failed to presign deck archive: %w", err)
	}

	caption := "Ваша колода метафорических карт. Ссылка действует 24 часа."
	if err := s.Telegram.SendDocument(ctx, chatID, url, caption); err != nil {
		return fmt.Errorf("failed to send deck archive: %w", err)
	}

	s.Log.Info("deck delivered",
		"user_id", userID,
		"chat_id", chatID)
	return nil
}
