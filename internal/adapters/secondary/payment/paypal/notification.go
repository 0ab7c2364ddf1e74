package paypal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	paymentPorts "github.com/lisenka9/metaphor-bot-sub000/internal/ports/payment"
)

// WebhookEvent payload webhook-события PayPal
type WebhookEvent struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Resource     webhookResource `json:"resource"`
}

type webhookResource struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	// capture-события несут сумму здесь
	Amount *amountObject `json:"amount,omitempty"`
	// order-события — в purchase_units
	PurchaseUnits []purchaseUnit `json:"purchase_units,omitempty"`
	CustomID      string         `json:"custom_id,omitempty"`
	// supplementary_data у capture-событий содержит order id
	SupplementaryData *supplementaryData `json:"supplementary_data,omitempty"`
	Payer             *webhookPayer      `json:"payer,omitempty"`
}

type supplementaryData struct {
	RelatedIDs *relatedIDs `json:"related_ids,omitempty"`
}

type relatedIDs struct {
	OrderID string `json:"order_id,omitempty"`
}

type webhookPayer struct {
	EmailAddress string `json:"email_address,omitempty"`
}

// ToNotification нормализует webhook-событие во внутреннюю форму.
// Идентификатором платежа всегда служит order id: capture-события
// ссылаются на него через supplementary_data
func (w *WebhookEvent) ToNotification() (*paymentPorts.Notification, error) {
	orderID := w.Resource.ID
	if w.Resource.SupplementaryData != nil && w.Resource.SupplementaryData.RelatedIDs != nil &&
		w.Resource.SupplementaryData.RelatedIDs.OrderID != "" {
		orderID = w.Resource.SupplementaryData.RelatedIDs.OrderID
	}
	if orderID == "" {
		return nil, fmt.Errorf("webhook event has no order id")
	}

	var amount *amountObject
	customID := w.Resource.CustomID
	if w.Resource.Amount != nil {
		amount = w.Resource.Amount
	} else if len(w.Resource.PurchaseUnits) > 0 {
		amount = &w.Resource.PurchaseUnits[0].Amount
		if customID == "" {
			customID = w.Resource.PurchaseUnits[0].CustomID
		}
	}

	var amountMinor int64
	var currency string
	if amount != nil {
		parsed, err := DecimalToMinor(amount.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount %q: %w", amount.Value, err)
		}
		amountMinor = parsed
		currency = amount.CurrencyCode
	}

	n := &paymentPorts.Notification{
		Provider:          domain.ProviderPayPal,
		EventType:         w.EventType,
		ProviderPaymentID: orderID,
		Status:            mapEventStatus(w.EventType, w.Resource.Status),
		AmountMinor:       amountMinor,
		Currency:          currency,
		Raw: domain.PaymentMetadata{
			"event_id":   w.ID,
			"event_type": w.EventType,
			"resource":   map[string]interface{}{"id": w.Resource.ID, "status": w.Resource.Status},
		},
	}

	if customID != "" {
		if id, err := uuid.Parse(customID); err == nil {
			n.MetadataUserID = &id
		}
	}
	if w.Resource.Payer != nil {
		if email := strings.TrimSpace(w.Resource.Payer.EmailAddress); email != "" {
			n.Email = &email
		}
	}

	return n, nil
}

// mapEventStatus определяет внутренний статус по типу события
func mapEventStatus(eventType, resourceStatus string) domain.PaymentStatus {
	switch eventType {
	case "PAYMENT.CAPTURE.COMPLETED", "CHECKOUT.ORDER.COMPLETED":
		return domain.PaymentStatusSucceeded
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.REVERSED":
		return domain.PaymentStatusFailed
	default:
		return MapStatus(resourceStatus)
	}
}

// DecimalToMinor парсит сумму вида "14.99" в минорные единицы.
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
