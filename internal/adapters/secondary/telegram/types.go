package telegram

// APIResponse базовая структура ответа от Telegram API
type APIResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}

// ChatInfo чат в ответах API
type ChatInfo struct {
	ID int64 `json:"id"`
}

// UserInfo отправитель сообщения или callback
type UserInfo struct {
	ID        int64   `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  *string `json:"last_name,omitempty"`
	Username  *string `json:"username,omitempty"`
}

// Message входящее сообщение
type Message struct {
	MessageID int64     `json:"message_id"`
	From      *UserInfo `json:"from,omitempty"`
	Chat      ChatInfo  `json:"chat"`
	Text      string    `json:"text,omitempty"`
	Date      int64     `json:"date"`
}

// CallbackQuery нажатие inline-кнопки
type CallbackQuery struct {
	ID      string    `json:"id"`
	From    UserInfo  `json:"from"`
	Message *Message  `json:"message,omitempty"`
	Data    string    `json:"data,omitempty"`
}

// Update элемент ленты getUpdates / webhook
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// BotCommand команда бота для меню
type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// SendMessageRequest запрос на отправку сообщения
type SendMessageRequest struct {
	ChatID          int64                  `json:"chat_id"`
	Text            string                 `json:"text"`
	ParseMode       string                 `json:"parse_mode,omitempty"` // "HTML", "Markdown", "MarkdownV2"
	MessageThreadID *int64                 `json:"message_thread_id,omitempty"`
	ReplyMarkup     map[string]interface{} `json:"reply_markup,omitempty"`
}

// SendMessageResult результат отправки сообщения
type SendMessageResult struct {
	MessageID int64    `json:"message_id"`
	Chat      ChatInfo `json:"chat"`
	Text      string   `json:"text"`
	Date      int64    `json:"date"`
}
