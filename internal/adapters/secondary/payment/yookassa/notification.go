package yookassa

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	paymentPorts "github.com/lisenka9/metaphor-bot-sub000/internal/ports/payment"
)

// WebhookNotification payload push-уведомления YooKassa
type WebhookNotification struct {
	Type   string        `json:"type"`
	Event  string        `json:"event"`
	Object webhookObject `json:"object"`
}

type webhookObject struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Amount   amountObject      `json:"amount"`
	Metadata map[string]string `json:"metadata,omitempty"`
	// чек с данными плательщика, если магазин его передаёт
	Receipt *webhookReceipt `json:"receipt,omitempty"`
}

type webhookReceipt struct {
	Customer *webhookCustomer `json:"customer,omitempty"`
}

type webhookCustomer struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ToNotification нормализует payload во внутреннюю форму уведомления
func (w *WebhookNotification) ToNotification() (*paymentPorts.Notification, error) {
	if w.Object.ID == "" {
		return nil, fmt.Errorf("notification has no payment id")
	}

	amountMinor, err := DecimalToMinor(w.Object.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount %q: %w", w.Object.Amount.Value, err)
	}

	n := &paymentPorts.Notification{
		Provider:          domain.ProviderYooKassa,
		EventType:         w.Event,
		ProviderPaymentID: w.Object.ID,
		Status:            MapStatus(w.Object.Status),
		AmountMinor:       amountMinor,
		Currency:          w.Object.Amount.Currency,
		Raw: domain.PaymentMetadata{
			"event":  w.Event,
			"object": map[string]interface{}{"id": w.Object.ID, "status": w.Object.Status},
		},
	}

	if raw, ok := w.Object.Metadata["user_id"]; ok {
		if id, err := uuid.Parse(raw); err == nil {
			n.MetadataUserID = &id
		}
	}
	if w.Object.Receipt != nil && w.Object.Receipt.Customer != nil {
		if email := strings.TrimSpace(w.Object.Receipt.Customer.Email); email != "" {
			n.Email = &email
		}
		if phone := strings.TrimSpace(w.Object.Receipt.Customer.Phone); phone != "" {
			n.Phone = &phone
		}
	}

	return n, nil
}

// DecimalToMinor парсит сумму вида "199.00" в минорные единицы.
// Больше двух знаков после точки — ошибка: молчаливое округление
// денег ломает сверку сумм с прайсом
func DecimalToMinor(value string) (int64, error) {
	raw := strings.TrimSpace(value)
	negative := strings.HasPrefix(raw, "-")
	if negative {
		raw = raw[1:]
	}
	whole, frac, found := strings.Cut(raw, ".")
	units, err := strconv.ParseUint(whole, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	var cents uint64
	if found {
		if len(frac) > 2 {
			return 0, fmt.Errorf("invalid amount %q: more than 2 fractional digits", value)
		}
		for len(frac) < 2 {
			frac += "0"
		}
		cents, err = strconv.ParseUint(frac, 10, 63)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", value, err)
		}
	}
	minor := int64(units)*100 + int64(cents)
	if negative {
		minor = -minor
	}
	return minor, nil
}
