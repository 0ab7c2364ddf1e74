package yookassaController

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/repository"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/billing"
)

type stubPaymentRepo struct {
	repository.IPaymentRepo
	err error
}

func (s *stubPaymentRepo) GetByProviderID(context.Context, domain.PaymentProvider, string) (*domain.Payment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return nil, domain.ErrNotFound
}

func newTestRouter(repo *stubPaymentRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := slog.Default()
	billingSvc := billing.New(repo, nil, nil, nil, nil, nil, nil, nil, "https://t.me/bot", log)
	router := gin.New()
	New(billingSvc, log).RegisterRoutes(router)
	return router
}

func postWebhook(router *gin.Engine, remoteIP, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/yookassa", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteIP + ":44321"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const pendingPayload = `{
	"type": "notification",
	"event": "payment.waiting_for_capture",
	"object": {
		"id": "yk-100",
		"status": "waiting_for_capture",
		"amount": {"value": "99.00", "currency": "RUB"}
	}
}`

func TestWebhookRejectsUntrustedIP(t *testing.T) {
	router := newTestRouter(&stubPaymentRepo{})

	rec := postWebhook(router, "203.0.113.5", pendingPayload)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestWebhookAcceptsTrustedIP(t *testing.T) {
	router := newTestRouter(&stubPaymentRepo{})

	rec := postWebhook(router, "185.71.76.5", pendingPayload)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(&stubPaymentRepo{})

	rec := postWebhook(router, "185.71.76.5", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookIgnoresUselessPayload(t *testing.T) {
	router := newTestRouter(&stubPaymentRepo{})

	// валидный JSON без id платежа: ретрай провайдера не поможет
	rec := postWebhook(router, "185.71.76.5", `{"event": "payment.succeeded", "object": {}}`)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ignored") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestWebhookDefersOnHandlerError(t *testing.T) {
	router := newTestRouter(&stubPaymentRepo{err: errors.New("db down")})

	rec := postWebhook(router, "185.71.76.5", pendingPayload)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 so the provider stops retrying", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "deferred") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestIsTrustedIP(t *testing.T) {
	c := New(nil, slog.Default())
	cases := []struct {
		ip   string
		want bool
	}{
		{"185.71.76.1", true},
		{"185.71.77.30", true},
		{"77.75.156.11", true},
		{"77.75.156.12", false},
		{"2a02:5180::1", true},
		{"203.0.113.5", false},
		{"not-an-ip", false},
	}
	for _, tc := range cases {
		if got := c.isTrustedIP(tc.ip); got != tc.want {
			t.Errorf("isTrustedIP(%s) = %v, want %v", tc.ip, got, tc.want)
		}
	}
}
