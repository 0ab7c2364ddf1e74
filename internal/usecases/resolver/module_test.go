package resolver

import (
	"context"
	"errors"
	"testing"

	"log/slog"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/payment"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/repository"
)

type fakeUserRepo struct {
	repository.IUserRepo
	byID    map[uuid.UUID]*domain.User
	byEmail map[string]*domain.User
	byPhone map[string]*domain.User
}

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUserRepo) GetByPhoneDigits(_ context.Context, digits string) (*domain.User, error) {
	if u, ok := f.byPhone[digits]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

type fakeUnresolvedRepo struct {
	repository.IUnresolvedRepo
	created   []*domain.UnresolvedPayment
	byPID     map[string]*domain.UnresolvedPayment
	processed []uuid.UUID
}

func (f *fakeUnresolvedRepo) Create(_ context.Context, r *domain.UnresolvedPayment) error {
	f.created = append(f.created, r)
	return nil
}

func (f *fakeUnresolvedRepo) GetByProviderID(_ context.Context, _ domain.PaymentProvider, pid string) (*domain.UnresolvedPayment, error) {
	if r, ok := f.byPID[pid]; ok {
		return r, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUnresolvedRepo) MarkProcessed(_ context.Context, id uuid.UUID, _ domain.ResolutionOutcome, _ *int64) error {
	f.processed = append(f.processed, id)
	return nil
}

type fakePaymentRepo struct {
	repository.IPaymentRepo
	byEmail map[string]*domain.Payment
}

func (f *fakePaymentRepo) GetByEmail(_ context.Context, email string) (*domain.Payment, error) {
	if p, ok := f.byEmail[email]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

type fakeSelectionCache struct {
	lastUser uuid.UUID
	hasLast  bool
	err      error
}

func (f *fakeSelectionCache) RememberSelection(context.Context, int64, string, uuid.UUID) error {
	return nil
}

func (f *fakeSelectionCache) LastSelection(context.Context, int64, string) (uuid.UUID, bool, error) {
	return f.lastUser, f.hasLast, f.err
}

type fakeAlerter struct {
	alerts []string
}

func (f *fakeAlerter) SendAlert(_ context.Context, msg string) error {
	f.alerts = append(f.alerts, msg)
	return nil
}

func strPtr(s string) *string { return &s }

func newTestService(users *fakeUserRepo, cache *fakeSelectionCache) (*Service, *fakeUnresolvedRepo, *fakeAlerter) {
	if users.byID == nil {
		users.byID = map[uuid.UUID]*domain.User{}
	}
	if users.byEmail == nil {
		users.byEmail = map[string]*domain.User{}
	}
	if users.byPhone == nil {
		users.byPhone = map[string]*domain.User{}
	}
	unresolved := &fakeUnresolvedRepo{byPID: map[string]*domain.UnresolvedPayment{}}
	al := &fakeAlerter{}
	svc := New(users, nil, unresolved, cache, al, slog.Default())
	return svc, unresolved, al
}

func TestResolveByMetadata(t *testing.T) {
	userID := uuid.New()
	users := &fakeUserRepo{byID: map[uuid.UUID]*domain.User{userID: {ID: userID}}}
	svc, _, _ := newTestService(users, &fakeSelectionCache{})

	res, err := svc.Resolve(context.Background(), &payment.Notification{
		MetadataUserID: &userID,
		Email:          strPtr("other@example.com"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UserID != userID || res.Method != MethodMetadata {
		t.Errorf("got (%v, %v), want metadata match for %v", res.UserID, res.Method, userID)
	}
}

func TestResolveMetadataMissingUserFallsThrough(t *testing.T) {
	ghost := uuid.New()
	emailUser := &domain.User{ID: uuid.New()}
	users := &fakeUserRepo{byEmail: map[string]*domain.User{"buyer@example.com": emailUser}}
	svc, _, _ := newTestService(users, &fakeSelectionCache{})

	res, err := svc.Resolve(context.Background(), &payment.Notification{
		MetadataUserID: &ghost,
		Email:          strPtr("  Buyer@Example.COM "),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UserID != emailUser.ID || res.Method != MethodEmail {
		t.Errorf("expected fallthrough to email, got (%v, %v)", res.UserID, res.Method)
	}
}

func TestResolveByPaymentHistoryEmail(t *testing.T) {
	owner := &domain.User{ID: uuid.New()}
	users := &fakeUserRepo{byID: map[uuid.UUID]*domain.User{owner.ID: owner}}
	svc, _, _ := newTestService(users, &fakeSelectionCache{})
	// email отсутствует в анкетах, но встречался в привязанном платеже
	svc.PaymentRepo = &fakePaymentRepo{byEmail: map[string]*domain.Payment{
		"repeat@example.com": {ID: uuid.New(), UserID: &owner.ID},
	}}

	res, err := svc.Resolve(context.Background(), &payment.Notification{
		Email: strPtr("Repeat@Example.com"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UserID != owner.ID || res.Method != MethodEmail {
		t.Errorf("expected history match, got (%v, %v)", res.UserID, res.Method)
	}
}

func TestResolveHistoryRowWithoutOwnerSkipped(t *testing.T) {
	svc, _, _ := newTestService(&fakeUserRepo{}, &fakeSelectionCache{})
	svc.PaymentRepo = &fakePaymentRepo{byEmail: map[string]*domain.Payment{
		"orphan@example.com": {ID: uuid.New()},
	}}

	_, err := svc.Resolve(context.Background(), &payment.Notification{
		Email: strPtr("orphan@example.com"),
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unbound history row must not resolve, got %v", err)
	}
}

func TestResolveEmailWinsOverPhone(t *testing.T) {
	emailUser := &domain.User{ID: uuid.New()}
	phoneUser := &domain.User{ID: uuid.New()}
	users := &fakeUserRepo{
		byEmail: map[string]*domain.User{"buyer@example.com": emailUser},
		byPhone: map[string]*domain.User{"79991234567": phoneUser},
	}
	svc, _, _ := newTestService(users, &fakeSelectionCache{})

	res, err := svc.Resolve(context.Background(), &payment.Notification{
		Email: strPtr("buyer@example.com"),
		Phone: strPtr("+7 999 123-45-67"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UserID != emailUser.ID || res.Method != MethodEmail {
		t.Errorf("email must take precedence over phone, got (%v, %v)", res.UserID, res.Method)
	}
}

func TestResolveByPhoneDigits(t *testing.T) {
	phoneUser := &domain.User{ID: uuid.New()}
	users := &fakeUserRepo{byPhone: map[string]*domain.User{"79991234567": phoneUser}}
	svc, _, _ := newTestService(users, &fakeSelectionCache{})

	res, err := svc.Resolve(context.Background(), &payment.Notification{
		Phone: strPtr("+7 (999) 123-45-67"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UserID != phoneUser.ID || res.Method != MethodPhone {
		t.Errorf("expected phone match, got (%v, %v)", res.UserID, res.Method)
	}
}

func TestResolveShortPhoneSkipped(t *testing.T) {
	users := &fakeUserRepo{byPhone: map[string]*domain.User{"12345": {ID: uuid.New()}}}
	svc, _, _ := newTestService(users, &fakeSelectionCache{})

	_, err := svc.Resolve(context.Background(), &payment.Notification{
		Phone: strPtr("1-23-45"),
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("short phone must not resolve, got %v", err)
	}
}

func TestResolveByRecency(t *testing.T) {
	recent := &domain.User{ID: uuid.New()}
	users := &fakeUserRepo{byID: map[uuid.UUID]*domain.User{recent.ID: recent}}
	svc, _, _ := newTestService(users, &fakeSelectionCache{lastUser: recent.ID, hasLast: true})

	res, err := svc.Resolve(context.Background(), &payment.Notification{
		AmountMinor: 9900,
		Currency:    "RUB",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UserID != recent.ID || res.Method != MethodRecency {
		t.Errorf("expected recency match, got (%v, %v)", res.UserID, res.Method)
	}
}

func TestResolveCacheErrorDoesNotFail(t *testing.T) {
	users := &fakeUserRepo{}
	svc, _, _ := newTestService(users, &fakeSelectionCache{err: errors.New("redis down")})

	_, err := svc.Resolve(context.Background(), &payment.Notification{AmountMinor: 9900, Currency: "RUB"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cache error should degrade to not found, got %v", err)
	}
}

func TestResolveExhausted(t *testing.T) {
	svc, _, _ := newTestService(&fakeUserRepo{}, &fakeSelectionCache{})

	_, err := svc.Resolve(context.Background(), &payment.Notification{
		Email: strPtr("nobody@example.com"),
		Phone: strPtr("+7 999 000 11 22"),
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("exhausted cascade must return ErrNotFound, got %v", err)
	}
}

func TestEscalate(t *testing.T) {
	svc, unresolved, al := newTestService(&fakeUserRepo{}, &fakeSelectionCache{})

	n := &payment.Notification{
		Provider:          domain.ProviderYooKassa,
		ProviderPaymentID: "yk-1",
		AmountMinor:       9900,
		Currency:          "RUB",
		Email:             strPtr("lost@example.com"),
	}
	record, err := svc.Escalate(context.Background(), n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unresolved.created) != 1 {
		t.Fatalf("expected 1 queue record, got %d", len(unresolved.created))
	}
	if record.ProviderID != "yk-1" || record.Email == nil || *record.Email != "lost@example.com" {
		t.Errorf("record fields not carried over: %+v", record)
	}
	if record.CreatedAt.IsZero() {
		t.Error("escalated record must carry a creation timestamp")
	}
	if len(al.alerts) != 1 {
		t.Errorf("expected 1 alert, got %d", len(al.alerts))
	}
}

func TestMarkAutoResolved(t *testing.T) {
	svc, unresolved, _ := newTestService(&fakeUserRepo{}, &fakeSelectionCache{})

	// отсутствие записи — не ошибка
	if err := svc.MarkAutoResolved(context.Background(), domain.ProviderPayPal, "missing"); err != nil {
		t.Errorf("missing record should be a no-op, got %v", err)
	}

	record := &domain.UnresolvedPayment{ID: uuid.New(), ProviderID: "pp-1"}
	unresolved.byPID["pp-1"] = record
	if err := svc.MarkAutoResolved(context.Background(), domain.ProviderPayPal, "pp-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unresolved.processed) != 1 || unresolved.processed[0] != record.ID {
		t.Errorf("record should be marked processed")
	}

	// уже обработанную запись не трогаем
	record.Processed = true
	if err := svc.MarkAutoResolved(context.Background(), domain.ProviderPayPal, "pp-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unresolved.processed) != 1 {
		t.Errorf("processed record must not be re-processed")
	}
}

func TestNormalizePhone(t *testing.T) {
	if got := NormalizePhone("+7 (999) 123-45-67"); got != "79991234567" {
		t.Errorf("NormalizePhone = %q", got)
	}
	if got := NormalizePhone("abc"); got != "" {
		t.Errorf("NormalizePhone(abc) = %q, want empty", got)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  User@MAIL.ru "); got != "user@mail.ru" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}
