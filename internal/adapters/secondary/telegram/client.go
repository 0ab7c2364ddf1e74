package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"log/slog"
)

const (
	telegramAPIBaseURL = "https://api.telegram.org/bot"
	apiTimeout         = 30 * time.Second
)

// Client клиент для работы с Telegram Bot API
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	log        *slog.Logger
}

// NewClient создаёт новый клиент для Telegram Bot API
func NewClient(token string, log *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: apiTimeout,
		},
		baseURL: telegramAPIBaseURL + token,
		token:   token,
		log:     log,
	}
}

// callMethod выполняет запрос к методу Bot API и декодирует result.
// dest может быть nil, если результат не нужен
func (c *Client) callMethod(ctx context.Context, method string, payload, dest interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to telegram: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var envelope struct {
		APIResponse
		Result json.RawMessage `json:"result,omitempty"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.log.Error("failed to unmarshal telegram response",
			"error", err,
			"method", method,
			"status_code", resp.StatusCode,
			"body_preview", truncateString(string(body), 200),
		)
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !envelope.OK {
		c.log.Error("telegram API returned error",
			"method", method,
			"error_code", envelope.ErrorCode,
			"description", envelope.Description,
		)
		return fmt.Errorf("telegram API error: %s (code: %d)", envelope.Description, envelope.ErrorCode)
	}

	if dest != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, dest); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}

// GetMe получает информацию о боте, используется как проверка токена при старте
func (c *Client) GetMe(ctx context.Context) error {
	if err := c.callMethod(ctx, "getMe", struct{}{}, nil); err != nil {
		return err
	}
	c.log.Info("bot info retrieved successfully")
	return nil
}

// SetMyCommands регистрирует команды бота в меню
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	payload := struct {
		Commands []BotCommand `json:"commands"`
	}{Commands: commands}

	if err := c.callMethod(ctx, "setMyCommands", payload, nil); err != nil {
		return err
	}
	c.log.Info("bot commands registered successfully", "commands_count", len(commands))
	return nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
