package domain

import (
	"time"

	"github.com/google/uuid"
)

// Card метафорическая карта. Картинка лежит в S3, в БД — только путь
type Card struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Number    int       `json:"number" db:"number"`
	Title     string    `json:"title" db:"title"`
	Message   string    `json:"message" db:"message"` // послание карты
	S3Path    string    `json:"s3_path" db:"s3_path"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CardDraw факт вытягивания карты. Дневной лимит считается подсчётом
// строк за сегодняшнюю дату, отдельного счётчика со сбросом нет
type CardDraw struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	CardID    uuid.UUID `json:"card_id" db:"card_id"`
	DrawnAt   time.Time `json:"drawn_at" db:"drawn_at"`
	DrawnDate time.Time `json:"drawn_date" db:"drawn_date"` // серверная локальная дата, для count-запроса
}
