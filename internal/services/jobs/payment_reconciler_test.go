package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/storage/inmemory"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/cache"
	paymentPorts "github.com/lisenka9/metaphor-bot-sub000/internal/ports/payment"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/repository"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/activation"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/resolver"
)

type reconPaymentRepo struct {
	repository.IPaymentRepo
	rows           map[uuid.UUID]*domain.Payment
	pendingRows    []domain.Payment
	unfinishedRows []domain.Payment
}

func newReconPaymentRepo() *reconPaymentRepo {
	return &reconPaymentRepo{rows: map[uuid.UUID]*domain.Payment{}}
}

func (r *reconPaymentRepo) add(p *domain.Payment) {
	r.rows[p.ID] = p
}

func (r *reconPaymentRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	if row, ok := r.rows[id]; ok {
		return row, nil
	}
	return nil, domain.ErrNotFound
}

func (r *reconPaymentRepo) ListPending(context.Context, time.Time, int) ([]domain.Payment, error) {
	return r.pendingRows, nil
}

func (r *reconPaymentRepo) SucceededWithoutActivation(context.Context, int) ([]domain.Payment, error) {
	return r.unfinishedRows, nil
}

func (r *reconPaymentRepo) MarkSucceeded(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	row, ok := r.rows[id]
	if !ok || row.Status != domain.PaymentStatusPending {
		return false, nil
	}
	row.Status = domain.PaymentStatusSucceeded
	row.SucceededAt = &at
	return true, nil
}

func (r *reconPaymentRepo) SetUserID(_ context.Context, id uuid.UUID, userID uuid.UUID) error {
	if row, ok := r.rows[id]; ok {
		row.UserID = &userID
	}
	return nil
}

func (r *reconPaymentRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.PaymentStatus, _, failedAt *time.Time, msg *string) error {
	if row, ok := r.rows[id]; ok {
		row.Status = status
		row.FailedAt = failedAt
		row.ErrorMessage = msg
	}
	return nil
}

type reconUserRepo struct {
	repository.IUserRepo
}

func (r *reconUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	return &domain.User{ID: id}, nil
}

func (r *reconUserRepo) GetByEmail(context.Context, string) (*domain.User, error) {
	return nil, domain.ErrNotFound
}

func (r *reconUserRepo) GetByPhoneDigits(context.Context, string) (*domain.User, error) {
	return nil, domain.ErrNotFound
}

type reconDeckRepo struct {
	repository.IDeckRepo
	completed int
}

func (r *reconDeckRepo) Complete(context.Context, uuid.UUID, domain.PaymentProvider, string) error {
	r.completed++
	return nil
}

type reconUnresolvedRepo struct {
	repository.IUnresolvedRepo
	created []*domain.UnresolvedPayment
}

func (r *reconUnresolvedRepo) Create(_ context.Context, rec *domain.UnresolvedPayment) error {
	r.created = append(r.created, rec)
	return nil
}

type reconGranter struct {
	grants int
}

func (g *reconGranter) GrantSubscription(context.Context, uuid.UUID, domain.SubscriptionPlan, string) error {
	g.grants++
	return nil
}

type reconSelectionCache struct{}

func (reconSelectionCache) RememberSelection(context.Context, int64, string, uuid.UUID) error {
	return nil
}

func (reconSelectionCache) LastSelection(context.Context, int64, string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}

type reconProvider struct {
	status domain.PaymentStatus
	err    error
	calls  int
}

func (p *reconProvider) Name() domain.PaymentProvider { return domain.ProviderYooKassa }

func (p *reconProvider) CreatePayment(context.Context, paymentPorts.CreatePaymentRequest) (*paymentPorts.CreatePaymentResult, error) {
	return nil, errors.New("not used")
}

func (p *reconProvider) CheckStatus(context.Context, string) (domain.PaymentStatus, error) {
	p.calls++
	return p.status, p.err
}

type reconEnv struct {
	job        *PaymentReconciler
	index      cache.IPendingIndex
	payments   *reconPaymentRepo
	provider   *reconProvider
	granter    *reconGranter
	decks      *reconDeckRepo
	unresolved *reconUnresolvedRepo
}

func newReconEnv() *reconEnv {
	env := &reconEnv{
		index:      inmemory.NewPendingIndex(),
		payments:   newReconPaymentRepo(),
		provider:   &reconProvider{status: domain.PaymentStatusPending},
		granter:    &reconGranter{},
		decks:      &reconDeckRepo{},
		unresolved: &reconUnresolvedRepo{},
	}
	log := slog.Default()
	resolverSvc := resolver.New(&reconUserRepo{}, nil, env.unresolved, reconSelectionCache{}, nil, log)
	activationSvc := activation.New(env.payments, &reconUserRepo{}, env.decks, env.granter, env.index, nil, nil, nil, log)
	env.job = NewPaymentReconciler(
		env.index,
		env.payments,
		map[domain.PaymentProvider]paymentPorts.IPaymentProvider{domain.ProviderYooKassa: env.provider},
		activationSvc,
		resolverSvc,
		log,
	)
	return env
}

func (e *reconEnv) addPending(userID *uuid.UUID, age time.Duration, checks int) *domain.Payment {
	plan := domain.Plan1Month
	p := &domain.Payment{
		ID:          uuid.New(),
		UserID:      userID,
		AmountMinor: 9900,
		Currency:    "RUB",
		Provider:    domain.ProviderYooKassa,
		ProviderID:  "yk-" + uuid.NewString()[:8],
		Status:      domain.PaymentStatusPending,
		Product:     domain.ProductSubscription,
		Plan:        &plan,
		CreatedAt:   time.Now().Add(-age),
	}
	e.payments.add(p)
	e.index.Put(cache.PendingPayment{
		PaymentID:  p.ID,
		Provider:   p.Provider,
		ProviderID: p.ProviderID,
		CreatedAt:  p.CreatedAt,
		Checks:     checks,
	})
	return p
}

func TestReconcilerActivatesConfirmedPayment(t *testing.T) {
	env := newReconEnv()
	userID := uuid.New()
	p := env.addPending(&userID, 5*time.Minute, 0)
	env.provider.status = domain.PaymentStatusSucceeded

	if err := env.job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.payments.rows[p.ID].Status != domain.PaymentStatusSucceeded {
		t.Error("confirmed payment must become succeeded")
	}
	if env.granter.grants != 1 {
		t.Errorf("grants = %d, want 1", env.granter.grants)
	}
	if env.index.Len() != 0 {
		t.Error("activated payment must leave the index")
	}
}

func TestReconcilerRespectsGracePeriod(t *testing.T) {
	env := newReconEnv()
	userID := uuid.New()
	env.addPending(&userID, 30*time.Second, 0)

	if err := env.job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.provider.calls != 0 {
		t.Errorf("provider polled %d times during grace period, want 0", env.provider.calls)
	}
	if env.index.Len() != 1 {
		t.Error("young payment must stay in the index")
	}
}

func TestReconcilerStopsPollingAfterCheckLimit(t *testing.T) {
	env := newReconEnv()
	userID := uuid.New()
	p := env.addPending(&userID, 2*time.Hour, maxStatusChecks-1)

	if err := env.job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// лимит снимает платёж с опроса, но не хоронит его: строка
	// остаётся pending и поздний webhook всё ещё может её активировать
	if env.payments.rows[p.ID].Status != domain.PaymentStatusPending {
		t.Errorf("capped payment status = %s, want pending", env.payments.rows[p.ID].Status)
	}
	if env.index.Len() != 0 {
		t.Error("capped payment must leave the index")
	}
}

func TestReconcilerCapKeepsLateWebhookAlive(t *testing.T) {
	env := newReconEnv()
	userID := uuid.New()
	p := env.addPending(&userID, 2*time.Hour, maxStatusChecks-1)

	if err := env.job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// webhook пришёл уже после снятия с опроса
	if err := env.job.activation.ActivateSucceeded(context.Background(), env.payments.rows[p.ID], userID); err != nil {
		t.Fatalf("late webhook activation failed: %v", err)
	}
	if env.payments.rows[p.ID].Status != domain.PaymentStatusSucceeded {
		t.Errorf("status = %s, want succeeded", env.payments.rows[p.ID].Status)
	}
	if env.granter.grants != 1 {
		t.Errorf("grants = %d, want 1", env.granter.grants)
	}
}

func TestReconcilerCapOnCheckErrorKeepsPending(t *testing.T) {
	env := newReconEnv()
	userID := uuid.New()
	p := env.addPending(&userID, 2*time.Hour, maxStatusChecks-1)
	env.provider.err = errors.New("connection refused")

	if err := env.job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.payments.rows[p.ID].Status != domain.PaymentStatusPending {
		t.Error("check error at the cap must not fail the payment")
	}
	if env.index.Len() != 0 {
		t.Error("capped payment must leave the index")
	}
}

func TestReconcilerNetworkErrorKeepsPending(t *testing.T) {
	env := newReconEnv()
	userID := uuid.New()
	p := env.addPending(&userID, time.Hour, 0)
	env.provider.err = errors.New("connection refused")

	if err := env.job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.payments.rows[p.ID].Status != domain.PaymentStatusPending {
		t.Error("network error must not fail the payment")
	}
	if env.index.Len() != 1 {
		t.Error("payment must stay in the index for the next tick")
	}
}

func TestReconcilerRebuildsIndexFromLedger(t *testing.T) {
	env := newReconEnv()
	userID := uuid.New()
	plan := domain.Plan1Month
	lost := domain.Payment{
		ID:         uuid.New(),
		UserID:     &userID,
		Provider:   domain.ProviderYooKassa,
		ProviderID: "yk-lost",
		Status:     domain.PaymentStatusPending,
		Product:    domain.ProductSubscription,
		Plan:       &plan,
		CreatedAt:  time.Now().Add(-10 * time.Minute),
	}
	env.payments.add(&lost)
	env.payments.pendingRows = []domain.Payment{lost}
	env.provider.status = domain.PaymentStatusSucceeded

	// индекс пуст (рестарт процесса) — тик восстанавливает его из
	// журнала и сразу дожимает платёж
	if err := env.job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.payments.rows[lost.ID].Status != domain.PaymentStatusSucceeded {
		t.Error("restored payment must be reconciled")
	}
	if env.granter.grants != 1 {
		t.Errorf("grants = %d, want 1", env.granter.grants)
	}
}

func TestReconcilerRebuildSkipsRowsOutsidePollWindow(t *testing.T) {
	env := newReconEnv()
	userID := uuid.New()
	plan := domain.Plan1Month
	stale := domain.Payment{
		ID:         uuid.New(),
		UserID:     &userID,
		Provider:   domain.ProviderYooKassa,
		ProviderID: "yk-stale",
		Status:     domain.PaymentStatusPending,
		Product:    domain.ProductSubscription,
		Plan:       &plan,
		CreatedAt:  time.Now().Add(-pollWindow - time.Hour),
	}
	env.payments.add(&stale)
	env.payments.pendingRows = []domain.Payment{stale}

	if err := env.job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// снятая с опроса строка не должна возвращаться в индекс ресканом
	if env.index.Len() != 0 {
		t.Error("row outside the poll window must not be restored")
	}
	if env.provider.calls != 0 {
		t.Errorf("provider polled %d times for a stale row, want 0", env.provider.calls)
	}
}

func TestReconcilerEscalatesUnboundSuccess(t *testing.T) {
	env := newReconEnv()
	p := env.addPending(nil, time.Hour, 0)
	env.provider.status = domain.PaymentStatusSucceeded

	if err := env.job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(env.unresolved.created) != 1 {
		t.Fatalf("unbound success must be escalated, got %d records", len(env.unresolved.created))
	}
	if env.unresolved.created[0].ProviderID != p.ProviderID {
		t.Error("queue record must reference the provider payment")
	}
	if env.granter.grants != 0 {
		t.Error("unbound payment must not be granted")
	}
}

func TestReconcilerFinishesInterruptedActivation(t *testing.T) {
	env := newReconEnv()
	userID := uuid.New()
	now := time.Now()
	plan := domain.Plan3Months
	stuck := domain.Payment{
		ID:          uuid.New(),
		UserID:      &userID,
		AmountMinor: 19900,
		Currency:    "RUB",
		Provider:    domain.ProviderYooKassa,
		ProviderID:  "yk-stuck",
		Status:      domain.PaymentStatusSucceeded,
		Product:     domain.ProductSubscription,
		Plan:        &plan,
		SucceededAt: &now,
	}
	env.payments.add(&stuck)
	env.payments.unfinishedRows = []domain.Payment{stuck}

	if err := env.job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.granter.grants != 1 {
		t.Errorf("interrupted activation must be finished, grants = %d", env.granter.grants)
	}
}
