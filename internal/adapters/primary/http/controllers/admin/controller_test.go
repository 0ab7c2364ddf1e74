package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/storage/inmemory"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/repository"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/activation"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/review"
)

const testToken = "test-admin-token"

type memUnresolvedRepo struct {
	repository.IUnresolvedRepo
	records map[uuid.UUID]*domain.UnresolvedPayment
}

func (r *memUnresolvedRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.UnresolvedPayment, error) {
	if rec, ok := r.records[id]; ok {
		return rec, nil
	}
	return nil, domain.ErrNotFound
}

func (r *memUnresolvedRepo) ListUnprocessed(_ context.Context, limit int) ([]domain.UnresolvedPayment, error) {
	out := make([]domain.UnresolvedPayment, 0, len(r.records))
	for _, rec := range r.records {
		if !rec.Processed && len(out) < limit {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *memUnresolvedRepo) MarkProcessed(_ context.Context, id uuid.UUID, outcome domain.ResolutionOutcome, resolvedBy *int64) error {
	rec, ok := r.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Processed = true
	rec.Outcome = &outcome
	rec.ResolvedBy = resolvedBy
	return nil
}

type memPaymentRepo struct {
	repository.IPaymentRepo
	rows map[string]*domain.Payment // provider id -> row
}

func (r *memPaymentRepo) GetByProviderID(_ context.Context, _ domain.PaymentProvider, providerID string) (*domain.Payment, error) {
	if row, ok := r.rows[providerID]; ok {
		return row, nil
	}
	return nil, domain.ErrNotFound
}

func (r *memPaymentRepo) Create(_ context.Context, p *domain.Payment) error {
	r.rows[p.ProviderID] = p
	return nil
}

func (r *memPaymentRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	for _, row := range r.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memPaymentRepo) SetUserID(_ context.Context, id uuid.UUID, userID uuid.UUID) error {
	for _, row := range r.rows {
		if row.ID == id {
			row.UserID = &userID
		}
	}
	return nil
}

type memUserRepo struct {
	repository.IUserRepo
	users map[int64]*domain.User
}

func (r *memUserRepo) GetByTelegramID(_ context.Context, telegramID int64) (*domain.User, error) {
	if u, ok := r.users[telegramID]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (r *memUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email != nil && *u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memUserRepo) GetByPhoneDigits(context.Context, string) (*domain.User, error) {
	return nil, domain.ErrNotFound
}

type countingGranter struct {
	grants int
}

func (g *countingGranter) GrantSubscription(context.Context, uuid.UUID, domain.SubscriptionPlan, string) error {
	g.grants++
	return nil
}

type adminEnv struct {
	router     *gin.Engine
	unresolved *memUnresolvedRepo
	payments   *memPaymentRepo
	users      *memUserRepo
	granter    *countingGranter
}

func newAdminEnv() *adminEnv {
	gin.SetMode(gin.TestMode)
	env := &adminEnv{
		unresolved: &memUnresolvedRepo{records: map[uuid.UUID]*domain.UnresolvedPayment{}},
		payments:   &memPaymentRepo{rows: map[string]*domain.Payment{}},
		users:      &memUserRepo{users: map[int64]*domain.User{}},
		granter:    &countingGranter{},
	}
	log := slog.Default()
	activationSvc := activation.New(env.payments, env.users, nil, env.granter, inmemory.NewPendingIndex(), nil, nil, nil, log)
	reviewSvc := review.New(env.unresolved, env.payments, env.users, activationSvc, log)
	env.router = gin.New()
	New(reviewSvc, Config{Token: testToken}, log).RegisterRoutes(env.router)
	return env
}

func (e *adminEnv) addRecord(amountMinor int64, currency string, processed bool) *domain.UnresolvedPayment {
	rec := &domain.UnresolvedPayment{
		ID:          uuid.New(),
		Provider:    domain.ProviderYooKassa,
		ProviderID:  "yk-" + uuid.NewString()[:8],
		AmountMinor: amountMinor,
		Currency:    currency,
		Processed:   processed,
		CreatedAt:   time.Now(),
	}
	e.unresolved.records[rec.ID] = rec
	return rec
}

func (e *adminEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestAdminRequiresToken(t *testing.T) {
	env := newAdminEnv()

	if rec := env.do(http.MethodGet, "/admin/unresolved", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/admin/unresolved", "wrong-token", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}
}

func TestAdminListUnresolved(t *testing.T) {
	env := newAdminEnv()
	env.addRecord(9900, "RUB", false)
	env.addRecord(19900, "RUB", true) // обработанные в выдачу не попадают

	rec := env.do(http.MethodGet, "/admin/unresolved", testToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Errorf("body = %s, want count 1", rec.Body.String())
	}
}

func TestAdminCandidates(t *testing.T) {
	env := newAdminEnv()
	record := env.addRecord(9900, "RUB", false)
	email := "Buyer@Example.com"
	record.Email = &email

	normalized := "buyer@example.com"
	user := &domain.User{ID: uuid.New(), TelegramUserID: 777, Email: &normalized}
	env.users.users[777] = user

	rec := env.do(http.MethodGet, "/admin/unresolved/"+record.ID.String()+"/candidates", testToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Errorf("body = %s, want 1 candidate", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), user.ID.String()) {
		t.Error("candidate must reference the matching user")
	}
}

func TestAdminCandidatesUnknownRecord(t *testing.T) {
	env := newAdminEnv()

	rec := env.do(http.MethodGet, "/admin/unresolved/"+uuid.NewString()+"/candidates", testToken, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAdminIgnoreRecord(t *testing.T) {
	env := newAdminEnv()
	record := env.addRecord(9900, "RUB", false)

	rec := env.do(http.MethodPost, "/admin/unresolved/"+record.ID.String()+"/ignore",
		testToken, `{"admin_telegram_id": 42}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !record.Processed || record.Outcome == nil || *record.Outcome != domain.OutcomeIgnored {
		t.Error("record must be marked ignored")
	}
	if record.ResolvedBy == nil || *record.ResolvedBy != 42 {
		t.Error("admin id must be recorded for audit")
	}
}

func TestAdminIgnoreUnknownRecord(t *testing.T) {
	env := newAdminEnv()

	rec := env.do(http.MethodPost, "/admin/unresolved/"+uuid.NewString()+"/ignore",
		testToken, `{"admin_telegram_id": 42}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAdminIgnoreProcessedRecord(t *testing.T) {
	env := newAdminEnv()
	record := env.addRecord(9900, "RUB", true)

	rec := env.do(http.MethodPost, "/admin/unresolved/"+record.ID.String()+"/ignore",
		testToken, `{"admin_telegram_id": 42}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestAdminActivateForUser(t *testing.T) {
	env := newAdminEnv()
	record := env.addRecord(9900, "RUB", false)
	user := &domain.User{ID: uuid.New(), TelegramUserID: 777}
	env.users.users[777] = user

	rec := env.do(http.MethodPost, "/admin/unresolved/"+record.ID.String()+"/activate",
		testToken, `{"admin_telegram_id": 42, "target_telegram_id": 777}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if env.granter.grants != 1 {
		t.Errorf("grants = %d, want 1", env.granter.grants)
	}
	row, ok := env.payments.rows[record.ProviderID]
	if !ok {
		t.Fatal("manual activation must record the payment in the ledger")
	}
	if row.Status != domain.PaymentStatusSucceeded {
		t.Errorf("ledger status = %s, want succeeded", row.Status)
	}
	if !record.Processed || record.Outcome == nil || *record.Outcome != domain.OutcomeManuallyActivated {
		t.Error("record must be marked manually activated")
	}
}

func TestAdminActivateRequiresTarget(t *testing.T) {
	env := newAdminEnv()
	record := env.addRecord(9900, "RUB", false)

	rec := env.do(http.MethodPost, "/admin/unresolved/"+record.ID.String()+"/activate",
		testToken, `{"admin_telegram_id": 42}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAdminActivateAmountMismatch(t *testing.T) {
	env := newAdminEnv()
	record := env.addRecord(12345, "RUB", false)
	env.users.users[777] = &domain.User{ID: uuid.New(), TelegramUserID: 777}

	rec := env.do(http.MethodPost, "/admin/unresolved/"+record.ID.String()+"/activate",
		testToken, `{"admin_telegram_id": 42, "target_telegram_id": 777}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
	if env.granter.grants != 0 {
		t.Error("mismatched amount must not grant anything")
	}
}
