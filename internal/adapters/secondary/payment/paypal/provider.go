package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	paymentPorts "github.com/lisenka9/metaphor-bot-sub000/internal/ports/payment"
)

const apiTimeout = 30 * time.Second

// tokenSkew за сколько до истечения OAuth-токен считается протухшим
const tokenSkew = time.Minute

// Provider клиент PayPal Orders API v2. OAuth-токен кэшируется
// до истечения и обновляется лениво под мьютексом
type Provider struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	log          *slog.Logger

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewProvider(cfg Config, log *slog.Logger) *Provider {
	return &Provider{
		httpClient: &http.Client{
			Timeout: apiTimeout,
		},
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		log:          log,
	}
}

func (p *Provider) Name() domain.PaymentProvider {
	return domain.ProviderPayPal
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// token возвращает действующий OAuth-токен, при необходимости
// запрашивая новый по client_credentials
func (p *Provider) token(ctx context.Context) (string, error) {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()

	if p.accessToken != "" && time.Now().Before(p.tokenExpiry.Add(-tokenSkew)) {
		return p.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(p.clientID, p.clientSecret)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to request paypal token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypal token error: status %d, body %s", resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("failed to unmarshal token response: %w", err)
	}

	p.accessToken = tok.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	p.log.Debug("paypal token refreshed", "expires_in", tok.ExpiresIn)
	return p.accessToken, nil
}

type amountObject struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string       `json:"reference_id,omitempty"`
	CustomID    string       `json:"custom_id,omitempty"`
	Description string       `json:"description,omitempty"`
	Amount      amountObject `json:"amount"`
}

type createOrderRequest struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

type applicationContext struct {
	ReturnURL string `json:"return_url,omitempty"`
	CancelURL string `json:"cancel_url,omitempty"`
}

type orderLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type orderObject struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []purchaseUnit `json:"purchase_units,omitempty"`
	Links         []orderLink    `json:"links,omitempty"`
}

// CreatePayment создаёт order с intent=CAPTURE. Внутренний payment_id
// уходит в custom_id и возвращается в webhook'ах
func (p *Provider) CreatePayment(ctx context.Context, req paymentPorts.CreatePaymentRequest) (*paymentPorts.CreatePaymentResult, error) {
	body := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: req.InternalID.String(),
			CustomID:    req.UserID.String(),
			Description: req.Description,
			Amount: amountObject{
				CurrencyCode: req.Currency,
				Value:        minorToDecimal(req.AmountMinor),
			},
		}},
		ApplicationContext: applicationContext{
			ReturnURL: req.ReturnURL,
		},
	}

	var order orderObject
	if err := p.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", body, &order); err != nil {
		p.log.Error("failed to create paypal order",
			"error", err,
			"internal_id", req.InternalID,
		)
		return nil, err
	}

	approveURL := ""
	for _, link := range order.Links {
		if link.Rel == "approve" {
			approveURL = link.Href
			break
		}
	}
	if approveURL == "" {
		return nil, fmt.Errorf("paypal order %s has no approve link", order.ID)
	}

	p.log.Info("paypal order created",
		"provider_id", order.ID,
		"internal_id", req.InternalID,
	)

	return &paymentPorts.CreatePaymentResult{
		ProviderPaymentID: order.ID,
		CheckoutURL:       approveURL,
	}, nil
}

// CheckStatus запрашивает статус order. APPROVED дожимается capture'ом:
// пользователь уже подтвердил оплату, осталось списание с нашей стороны
func (p *Provider) CheckStatus(ctx context.Context, providerPaymentID string) (domain.PaymentStatus, error) {
	var order orderObject
	if err := p.doJSON(ctx, http.MethodGet, "/v2/checkout/orders/"+providerPaymentID, nil, &order); err != nil {
		p.log.Error("failed to check paypal order",
			"error", err,
			"provider_id", providerPaymentID,
		)
		return "", err
	}

	if order.Status == "APPROVED" {
		var captured orderObject
		err := p.doJSON(ctx, http.MethodPost, "/v2/checkout/orders/"+providerPaymentID+"/capture", struct{}{}, &captured)
		if err != nil {
			p.log.Error("failed to capture paypal order",
				"error", err,
				"provider_id", providerPaymentID,
			)
			return domain.PaymentStatusPending, nil
		}
		order = captured
	}

	return MapStatus(order.Status), nil
}

func (p *Provider) doJSON(ctx context.Context, method, path string, reqBody, dest interface{}) error {
	token, err := p.token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to paypal: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("paypal API error: status %d, body %s", resp.StatusCode, string(body))
	}

	if dest != nil && len(body) > 0 {
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// MapStatus переводит статус PayPal order во внутренний
func MapStatus(status string) domain.PaymentStatus {
	switch status {
	case "COMPLETED":
		return domain.PaymentStatusSucceeded
	case "VOIDED":
		return domain.PaymentStatusFailed
	default:
		// CREATED, SAVED, APPROVED, PAYER_ACTION_REQUIRED
		return domain.PaymentStatusPending
	}
}

func minorToDecimal(amountMinor int64) string {
	return strconv.FormatInt(amountMinor/100, 10) + "." + fmt.Sprintf("%02d", amountMinor%100)
}
