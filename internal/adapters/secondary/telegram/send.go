package telegram

import (
	"context"
	"fmt"
)

// SendMessage отправляет текстовое сообщение
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := c.SendMessageWithRequest(ctx, SendMessageRequest{
		ChatID: chatID,
		Text:   text,
	})
	return err
}

// SendMessageWithKeyboard отправляет сообщение с inline-клавиатурой
func (c *Client) SendMessageWithKeyboard(ctx context.Context, chatID int64, text string, keyboard map[string]interface{}) error {
	_, err := c.SendMessageWithRequest(ctx, SendMessageRequest{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: keyboard,
	})
	return err
}

// SendMessageWithRequest отправляет сообщение с полным контролем полей
func (c *Client) SendMessageWithRequest(ctx context.Context, req SendMessageRequest) (*SendMessageResult, error) {
	var result SendMessageResult
	if err := c.callMethod(ctx, "sendMessage", req, &result); err != nil {
		c.log.Error("failed to send message",
			"error", err,
			"chat_id", req.ChatID,
		)
		return nil, err
	}

	c.log.Debug("message sent successfully",
		"chat_id", req.ChatID,
		"message_id", result.MessageID,
	)
	return &result, nil
}

// SendPhotoByURL отправляет фото по внешнему URL с подписью.
// Telegram сам скачивает файл, байты через нас не ходят
func (c *Client) SendPhotoByURL(ctx context.Context, chatID int64, photoURL, caption string) error {
	payload := map[string]interface{}{
		"chat_id": chatID,
		"photo":   photoURL,
	}
	if caption != "" {
		payload["caption"] = caption
	}

	if err := c.callMethod(ctx, "sendPhoto", payload, nil); err != nil {
		c.log.Error("failed to send photo",
			"error", err,
			"chat_id", chatID,
		)
		return fmt.Errorf("failed to send photo: %w", err)
	}

	c.log.Debug("photo sent successfully", "chat_id", chatID)
	return nil
}

// SendDocument отправляет документ по внешнему URL с подписью
func (c *Client) SendDocument(ctx context.Context, chatID int64, fileURL string, caption string) error {
	payload := map[string]interface{}{
		"chat_id":  chatID,
		"document": fileURL,
	}
	if caption != "" {
		payload["caption"] = caption
	}

	if err := c.callMethod(ctx, "sendDocument", payload, nil); err != nil {
		c.log.Error("failed to send document",
			"error", err,
			"chat_id", chatID,
		)
		return fmt.Errorf("failed to send document: %w", err)
	}

	c.log.Debug("document sent successfully", "chat_id", chatID)
	return nil
}

// AnswerCallbackQuery подтверждает нажатие inline-кнопки
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string) error {
	payload := map[string]interface{}{
		"callback_query_id": callbackQueryID,
	}
	if text != "" {
		payload["text"] = text
	}

	if err := c.callMethod(ctx, "answerCallbackQuery", payload, nil); err != nil {
		c.log.Error("failed to answer callback query",
			"error", err,
			"callback_query_id", callbackQueryID,
		)
		return fmt.Errorf("failed to answer callback query: %w", err)
	}
	return nil
}
