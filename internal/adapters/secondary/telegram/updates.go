package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GetUpdates long polling за обновлениями. timeoutSec уходит в параметр
// timeout запроса, поэтому HTTP-клиенту нужен запас сверх него
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	payload := map[string]interface{}{
		"offset":          offset,
		"timeout":         timeoutSec,
		"allowed_updates": []string{"message", "callback_query"},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/getUpdates", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	// отдельный клиент: таймаут должен пережить long poll
	pollClient := &http.Client{
		Timeout: time.Duration(timeoutSec+10) * time.Second,
	}
	resp, err := pollClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to poll updates: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var envelope struct {
		APIResponse
		Result []Update `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal updates: %w", err)
	}
	if !envelope.OK {
		return nil, fmt.Errorf("telegram API error: %s (code: %d)", envelope.Description, envelope.ErrorCode)
	}

	return envelope.Result, nil
}
