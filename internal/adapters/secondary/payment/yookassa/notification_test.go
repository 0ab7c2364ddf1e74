package yookassa

import (
	"testing"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
)

func TestToNotification(t *testing.T) {
	userID := uuid.New()
	w := WebhookNotification{
		Type:  "notification",
		Event: "payment.succeeded",
		Object: webhookObject{
			ID:     "2e8a1f3c-000f-5000-9000-1b2c3d4e5f6a",
			Status: "succeeded",
			Amount: amountObject{Value: "199.00", Currency: "RUB"},
			Metadata: map[string]string{
				"user_id": userID.String(),
			},
			Receipt: &webhookReceipt{
				Customer: &webhookCustomer{
					Email: "  buyer@example.com ",
					Phone: "+79991234567",
				},
			},
		},
	}

	n, err := w.ToNotification()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Provider != domain.ProviderYooKassa {
		t.Errorf("provider = %s", n.Provider)
	}
	if n.ProviderPaymentID != w.Object.ID {
		t.Errorf("provider payment id = %s", n.ProviderPaymentID)
	}
	if n.Status != domain.PaymentStatusSucceeded {
		t.Errorf("status = %s, want succeeded", n.Status)
	}
	if n.AmountMinor != 19900 {
		t.Errorf("amount = %d, want 19900", n.AmountMinor)
	}
	if n.Currency != "RUB" {
		t.Errorf("currency = %s", n.Currency)
	}
	if n.MetadataUserID == nil || *n.MetadataUserID != userID {
		t.Error("metadata user_id must be parsed")
	}
	if n.Email == nil || *n.Email != "buyer@example.com" {
		t.Error("receipt email must be trimmed and kept")
	}
	if n.Phone == nil || *n.Phone != "+79991234567" {
		t.Error("receipt phone must be kept")
	}
}

func TestToNotificationWithoutOptionalFields(t *testing.T) {
	w := WebhookNotification{
		Event: "payment.canceled",
		Object: webhookObject{
			ID:     "yk-1",
			Status: "canceled",
			Amount: amountObject{Value: "99.00", Currency: "RUB"},
		},
	}

	n, err := w.ToNotification()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Status != domain.PaymentStatusFailed {
		t.Errorf("status = %s, want failed", n.Status)
	}
	if n.MetadataUserID != nil || n.Email != nil || n.Phone != nil {
		t.Error("identity hints must stay nil when payload has none")
	}
}

func TestToNotificationBadUserID(t *testing.T) {
	w := WebhookNotification{
		Event: "payment.succeeded",
		Object: webhookObject{
			ID:       "yk-2",
			Status:   "succeeded",
			Amount:   amountObject{Value: "99.00", Currency: "RUB"},
			Metadata: map[string]string{"user_id": "not-a-uuid"},
		},
	}

	n, err := w.ToNotification()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// мусор в metadata не валит разбор, просто теряем прямую ссылку
	if n.MetadataUserID != nil {
		t.Error("garbage user_id must be ignored")
	}
}

func TestToNotificationRejectsEmptyID(t *testing.T) {
	w := WebhookNotification{
		Event:  "payment.succeeded",
		Object: webhookObject{Amount: amountObject{Value: "99.00"}},
	}
	if _, err := w.ToNotification(); err == nil {
		t.Error("payload without payment id must be rejected")
	}
}

func TestDecimalToMinor(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "199.00", want: 19900},
		{in: "199", want: 19900},
		{in: "199.5", want: 19950},
		{in: "0.01", want: 1},
		{in: "-1.50", want: -150},
		{in: "-0.50", want: -50},
		{in: "199.999", wantErr: true}, // лишние знаки не отбрасываем
		{in: "abc", wantErr: true},
		{in: "1.xx", wantErr: true},
	}
	for _, tc := range cases {
		got, err := DecimalToMinor(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("DecimalToMinor(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("DecimalToMinor(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("DecimalToMinor(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestMapStatus(t *testing.T) {
	if MapStatus("succeeded") != domain.PaymentStatusSucceeded {
		t.Error("succeeded must map to succeeded")
	}
	if MapStatus("canceled") != domain.PaymentStatusFailed {
		t.Error("canceled must map to failed")
	}
	if MapStatus("waiting_for_capture") != domain.PaymentStatusPending {
		t.Error("waiting_for_capture must map to pending")
	}
}
