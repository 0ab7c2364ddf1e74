package paypalController

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/storage/inmemory"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	paymentPorts "github.com/lisenka9/metaphor-bot-sub000/internal/ports/payment"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/repository"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/activation"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/billing"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/resolver"
)

type stubPaymentRepo struct {
	repository.IPaymentRepo
}

func (s *stubPaymentRepo) GetByProviderID(context.Context, domain.PaymentProvider, string) (*domain.Payment, error) {
	return nil, domain.ErrNotFound
}

func (s *stubPaymentRepo) Create(context.Context, *domain.Payment) error { return nil }

type stubUserRepo struct {
	repository.IUserRepo
}

func (stubUserRepo) GetByID(context.Context, uuid.UUID) (*domain.User, error) {
	return nil, domain.ErrNotFound
}

func (stubUserRepo) GetByEmail(context.Context, string) (*domain.User, error) {
	return nil, domain.ErrNotFound
}

func (stubUserRepo) GetByPhoneDigits(context.Context, string) (*domain.User, error) {
	return nil, domain.ErrNotFound
}

type stubUnresolvedRepo struct {
	repository.IUnresolvedRepo
}

func (stubUnresolvedRepo) Create(context.Context, *domain.UnresolvedPayment) error { return nil }

type stubSelectionCache struct{}

func (stubSelectionCache) RememberSelection(context.Context, int64, string, uuid.UUID) error {
	return nil
}

func (stubSelectionCache) LastSelection(context.Context, int64, string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}

type stubProvider struct {
	status domain.PaymentStatus
	err    error
	calls  int
}

func (p *stubProvider) Name() domain.PaymentProvider { return domain.ProviderPayPal }

func (p *stubProvider) CreatePayment(context.Context, paymentPorts.CreatePaymentRequest) (*paymentPorts.CreatePaymentResult, error) {
	return nil, errors.New("not used")
}

func (p *stubProvider) CheckStatus(context.Context, string) (domain.PaymentStatus, error) {
	p.calls++
	return p.status, p.err
}

func newTestRouter(provider *stubProvider) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := slog.Default()
	paymentRepo := &stubPaymentRepo{}
	index := inmemory.NewPendingIndex()
	resolverSvc := resolver.New(stubUserRepo{}, nil, stubUnresolvedRepo{}, stubSelectionCache{}, nil, log)
	activationSvc := activation.New(paymentRepo, stubUserRepo{}, nil, nil, index, nil, nil, nil, log)
	billingSvc := billing.New(paymentRepo, nil,
		map[domain.PaymentProvider]paymentPorts.IPaymentProvider{domain.ProviderPayPal: provider},
		resolverSvc, activationSvc, stubSelectionCache{}, index, nil, "https://t.me/bot", log)
	router := gin.New()
	New(billingSvc, provider, log).RegisterRoutes(router)
	return router
}

func postEvent(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const approvedEvent = `{
	"id": "WH-1",
	"event_type": "CHECKOUT.ORDER.APPROVED",
	"resource": {
		"id": "ORDER-1",
		"status": "APPROVED",
		"purchase_units": [{"amount": {"currency_code": "USD", "value": "14.99"}}]
	}
}`

const completedEvent = `{
	"id": "WH-2",
	"event_type": "PAYMENT.CAPTURE.COMPLETED",
	"resource": {
		"id": "CAP-1",
		"status": "COMPLETED",
		"amount": {"currency_code": "USD", "value": "14.99"},
		"supplementary_data": {"related_ids": {"order_id": "ORDER-1"}}
	}
}`

func TestEventRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(&stubProvider{})

	rec := postEvent(router, "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestEventIgnoresPayloadWithoutOrder(t *testing.T) {
	router := newTestRouter(&stubProvider{})

	rec := postEvent(router, `{"event_type": "PAYMENT.CAPTURE.COMPLETED", "resource": {}}`)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ignored") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestEventNonTerminalSkipsVerification(t *testing.T) {
	provider := &stubProvider{}
	router := newTestRouter(provider)

	rec := postEvent(router, approvedEvent)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if provider.calls != 0 {
		t.Errorf("non-terminal event verified %d times, want 0", provider.calls)
	}
}

func TestEventVerifiesClaimedSuccess(t *testing.T) {
	provider := &stubProvider{status: domain.PaymentStatusSucceeded}
	router := newTestRouter(provider)

	rec := postEvent(router, completedEvent)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if provider.calls != 1 {
		t.Errorf("claimed success verified %d times, want 1", provider.calls)
	}
}

func TestEventForgedSuccessDowngraded(t *testing.T) {
	// API говорит pending — заявленный success событию не верим
	provider := &stubProvider{status: domain.PaymentStatusPending}
	router := newTestRouter(provider)

	rec := postEvent(router, completedEvent)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestEventDefersWhenVerificationFails(t *testing.T) {
	provider := &stubProvider{err: errors.New("api down")}
	router := newTestRouter(provider)

	rec := postEvent(router, completedEvent)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 so paypal stops retrying", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "deferred") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
