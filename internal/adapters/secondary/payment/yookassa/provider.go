package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	paymentPorts "github.com/lisenka9/metaphor-bot-sub000/internal/ports/payment"
)

const apiTimeout = 30 * time.Second

// Provider клиент YooKassa API v3. Аутентификация Basic (shop_id:secret),
// идемпотентность создания — заголовок Idempotence-Key с нашим payment_id
type Provider struct {
	httpClient *http.Client
	baseURL    string
	shopID     string
	secretKey  string
	log        *slog.Logger
}

func NewProvider(cfg Config, log *slog.Logger) *Provider {
	return &Provider{
		httpClient: &http.Client{
			Timeout: apiTimeout,
		},
		baseURL:   cfg.BaseURL,
		shopID:    cfg.ShopID,
		secretKey: cfg.SecretKey,
		log:       log,
	}
}

func (p *Provider) Name() domain.PaymentProvider {
	return domain.ProviderYooKassa
}

type amountObject struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type confirmationObject struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type createPaymentRequest struct {
	Amount       amountObject       `json:"amount"`
	Capture      bool               `json:"capture"`
	Confirmation confirmationObject `json:"confirmation"`
	Description  string             `json:"description,omitempty"`
	Metadata     map[string]string  `json:"metadata,omitempty"`
}

type paymentObject struct {
	ID           string              `json:"id"`
	Status       string              `json:"status"`
	Amount       amountObject        `json:"amount"`
	Confirmation *confirmationObject `json:"confirmation,omitempty"`
	Metadata     map[string]string   `json:"metadata,omitempty"`
}

// CreatePayment создаёт платёж с редиректом на страницу оплаты.
// В metadata уходят внутренний payment_id и user_id — прямая ссылка
// для сопоставления уведомления без эвристик
func (p *Provider) CreatePayment(ctx context.Context, req paymentPorts.CreatePaymentRequest) (*paymentPorts.CreatePaymentResult, error) {
	body := createPaymentRequest{
		Amount: amountObject{
			Value:    minorToDecimal(req.AmountMinor),
			Currency: req.Currency,
		},
		Capture: true,
		Confirmation: confirmationObject{
			Type:      "redirect",
			ReturnURL: req.ReturnURL,
		},
		Description: req.Description,
		Metadata: map[string]string{
			"payment_id": req.InternalID.String(),
			"user_id":    req.UserID.String(),
		},
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/payments", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotence-Key", req.InternalID.String())
	httpReq.SetBasicAuth(p.shopID, p.secretKey)

	var payment paymentObject
	if err := p.do(httpReq, &payment); err != nil {
		p.log.Error("failed to create yookassa payment",
			"error", err,
			"internal_id", req.InternalID,
		)
		return nil, err
	}

	if payment.Confirmation == nil || payment.Confirmation.ConfirmationURL == "" {
		return nil, fmt.Errorf("yookassa payment %s has no confirmation url", payment.ID)
	}

	p.log.Info("yookassa payment created",
		"provider_id", payment.ID,
		"internal_id", req.InternalID,
		"amount", body.Amount.Value,
	)

	return &paymentPorts.CreatePaymentResult{
		ProviderPaymentID: payment.ID,
		CheckoutURL:       payment.Confirmation.ConfirmationURL,
	}, nil
}

// CheckStatus запрашивает статус платежа. waiting_for_capture при
// capture=true — переходное состояние, наружу отдаётся как pending
func (p *Provider) CheckStatus(ctx context.Context, providerPaymentID string) (domain.PaymentStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/payments/"+providerPaymentID, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.SetBasicAuth(p.shopID, p.secretKey)

	var payment paymentObject
	if err := p.do(httpReq, &payment); err != nil {
		p.log.Error("failed to check yookassa payment",
			"error", err,
			"provider_id", providerPaymentID,
		)
		return "", err
	}

	return MapStatus(payment.Status), nil
}

func (p *Provider) do(req *http.Request, dest interface{}) error {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to yookassa: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("yookassa API error: status %d, body %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// MapStatus переводит статус YooKassa во внутренний
func MapStatus(status string) domain.PaymentStatus {
	switch status {
	case "succeeded":
		return domain.PaymentStatusSucceeded
	case "canceled":
		return domain.PaymentStatusFailed
	default:
		// pending, waiting_for_capture
		return domain.PaymentStatusPending
	}
}

// minorToDecimal форматирует сумму в минорных единицах в строку
// вида "199.00", как того требует API
func minorToDecimal(amountMinor int64) string {
	return strconv.FormatInt(amountMinor/100, 10) + "." + fmt.Sprintf("%02d", amountMinor%100)
}
