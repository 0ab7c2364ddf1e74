package activation

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
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/kafka"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/repository"
)

type fakePaymentRepo struct {
	repository.IPaymentRepo
	statuses    map[uuid.UUID]domain.PaymentStatus
	boundUsers  map[uuid.UUID]uuid.UUID
	markedFails []uuid.UUID
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{
		statuses:   map[uuid.UUID]domain.PaymentStatus{},
		boundUsers: map[uuid.UUID]uuid.UUID{},
	}
}

func (f *fakePaymentRepo) MarkSucceeded(_ context.Context, id uuid.UUID, _ time.Time) (bool, error) {
	if f.statuses[id] != domain.PaymentStatusPending {
		return false, nil
	}
	f.statuses[id] = domain.PaymentStatusSucceeded
	return true, nil
}

func (f *fakePaymentRepo) SetUserID(_ context.Context, id uuid.UUID, userID uuid.UUID) error {
	f.boundUsers[id] = userID
	return nil
}

func (f *fakePaymentRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.PaymentStatus, _, _ *time.Time, _ *string) error {
	f.statuses[id] = status
	if status == domain.PaymentStatusFailed {
		f.markedFails = append(f.markedFails, id)
	}
	return nil
}

type fakeUserRepo struct {
	repository.IUserRepo
	users map[uuid.UUID]*domain.User
}

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

type fakeDeckRepo struct {
	repository.IDeckRepo
	completed []uuid.UUID
}

func (f *fakeDeckRepo) Complete(_ context.Context, userID uuid.UUID, _ domain.PaymentProvider, _ string) error {
	f.completed = append(f.completed, userID)
	return nil
}

type fakeGranter struct {
	grants []domain.SubscriptionPlan
	err    error
}

func (f *fakeGranter) GrantSubscription(_ context.Context, _ uuid.UUID, plan domain.SubscriptionPlan, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.grants = append(f.grants, plan)
	return nil
}

type fakeTelegram struct {
	messages []string
}

func (f *fakeTelegram) SendMessage(_ context.Context, _ int64, text string) error {
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeTelegram) SendDocument(context.Context, int64, string, string) error {
	return nil
}

type fakeDeliverer struct {
	chats []int64
	err   error
}

func (f *fakeDeliverer) DeliverDeck(_ context.Context, _ uuid.UUID, chatID int64) error {
	if f.err != nil {
		return f.err
	}
	f.chats = append(f.chats, chatID)
	return nil
}

type fakeProducer struct {
	events []kafka.PaymentEvent
}

func (f *fakeProducer) SendPaymentEvent(_ context.Context, e kafka.PaymentEvent) error {
	f.events = append(f.events, e)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

type testEnv struct {
	svc       *Service
	payments  *fakePaymentRepo
	decks     *fakeDeckRepo
	granter   *fakeGranter
	index     cache.IPendingIndex
	tg        *fakeTelegram
	deliverer *fakeDeliverer
	producer  *fakeProducer
}

func newTestEnv(users map[uuid.UUID]*domain.User) *testEnv {
	env := &testEnv{
		payments:  newFakePaymentRepo(),
		decks:     &fakeDeckRepo{},
		granter:   &fakeGranter{},
		index:     inmemory.NewPendingIndex(),
		tg:        &fakeTelegram{},
		deliverer: &fakeDeliverer{},
		producer:  &fakeProducer{},
	}
	env.svc = New(
		env.payments,
		&fakeUserRepo{users: users},
		env.decks,
		env.granter,
		env.index,
		env.tg,
		env.deliverer,
		env.producer,
		slog.Default(),
	)
	return env
}

func pendingSubscription(userID *uuid.UUID) *domain.Payment {
	plan := domain.Plan1Month
	return &domain.Payment{
		ID:          uuid.New(),
		UserID:      userID,
		AmountMinor: 9900,
		Currency:    "RUB",
		Provider:    domain.ProviderYooKassa,
		ProviderID:  "yk-1",
		Status:      domain.PaymentStatusPending,
		Product:     domain.ProductSubscription,
		Plan:        &plan,
	}
}

func TestActivateSucceededGrantsOnce(t *testing.T) {
	userID := uuid.New()
	env := newTestEnv(map[uuid.UUID]*domain.User{userID: {ID: userID, TelegramChatID: 42}})

	p := pendingSubscription(nil)
	env.payments.statuses[p.ID] = domain.PaymentStatusPending
	env.index.Put(cache.PendingPayment{PaymentID: p.ID})

	if err := env.svc.ActivateSucceeded(context.Background(), p, userID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(env.granter.grants) != 1 || env.granter.grants[0] != domain.Plan1Month {
		t.Errorf("expected one subscription grant, got %v", env.granter.grants)
	}
	if env.payments.boundUsers[p.ID] != userID {
		t.Error("payment must be bound to the resolved user")
	}
	if env.index.Len() != 0 {
		t.Error("activated payment must leave the pending index")
	}
	if len(env.tg.messages) != 1 {
		t.Errorf("expected one user notification, got %d", len(env.tg.messages))
	}
	if len(env.producer.events) != 1 || env.producer.events[0].Type != kafka.EventPaymentSucceeded {
		t.Errorf("expected succeeded event, got %v", env.producer.events)
	}
}

func TestActivateSucceededRaceLoserNoops(t *testing.T) {
	userID := uuid.New()
	env := newTestEnv(map[uuid.UUID]*domain.User{userID: {ID: userID}})

	p := pendingSubscription(nil)
	env.payments.statuses[p.ID] = domain.PaymentStatusPending
	env.index.Put(cache.PendingPayment{PaymentID: p.ID})

	// первый вызов — webhook, второй — цикл поллинга с тем же платежом
	if err := env.svc.ActivateSucceeded(context.Background(), p, userID); err != nil {
		t.Fatalf("winner failed: %v", err)
	}
	if err := env.svc.ActivateSucceeded(context.Background(), p, userID); err != nil {
		t.Fatalf("loser must no-op, got %v", err)
	}

	if len(env.granter.grants) != 1 {
		t.Errorf("product granted %d times, want exactly once", len(env.granter.grants))
	}
	if len(env.producer.events) != 1 {
		t.Errorf("event emitted %d times, want exactly once", len(env.producer.events))
	}
}

func TestActivateSucceededDeck(t *testing.T) {
	userID := uuid.New()
	env := newTestEnv(map[uuid.UUID]*domain.User{userID: {ID: userID, TelegramChatID: 4242}})

	p := &domain.Payment{
		ID:          uuid.New(),
		AmountMinor: 149900,
		Currency:    "RUB",
		Provider:    domain.ProviderYooKassa,
		ProviderID:  "yk-deck",
		Status:      domain.PaymentStatusPending,
		Product:     domain.ProductDeck,
	}
	env.payments.statuses[p.ID] = domain.PaymentStatusPending

	if err := env.svc.ActivateSucceeded(context.Background(), p, userID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.decks.completed) != 1 || env.decks.completed[0] != userID {
		t.Errorf("deck purchase not completed for user: %v", env.decks.completed)
	}
	if len(env.granter.grants) != 0 {
		t.Error("deck payment must not grant a subscription")
	}
	// купленный файл уходит в чат сразу вслед за подтверждением
	if len(env.deliverer.chats) != 1 || env.deliverer.chats[0] != 4242 {
		t.Errorf("deck not delivered to buyer chat: %v", env.deliverer.chats)
	}
}

func TestActivateDeckDeliveryFailureKeepsGrant(t *testing.T) {
	userID := uuid.New()
	env := newTestEnv(map[uuid.UUID]*domain.User{userID: {ID: userID, TelegramChatID: 4242}})
	env.deliverer.err = errors.New("file storage down")

	p := &domain.Payment{
		ID:         uuid.New(),
		Provider:   domain.ProviderYooKassa,
		ProviderID: "yk-deck-2",
		Status:     domain.PaymentStatusPending,
		Product:    domain.ProductDeck,
	}
	env.payments.statuses[p.ID] = domain.PaymentStatusPending

	if err := env.svc.ActivateSucceeded(context.Background(), p, userID); err != nil {
		t.Fatalf("delivery failure must not fail activation: %v", err)
	}
	if len(env.decks.completed) != 1 {
		t.Errorf("deck purchase not completed: %v", env.decks.completed)
	}
	if env.payments.statuses[p.ID] != domain.PaymentStatusSucceeded {
		t.Errorf("payment status = %s, want succeeded", env.payments.statuses[p.ID])
	}
}

func TestActivateGrantFailureKeepsSucceededStatus(t *testing.T) {
	userID := uuid.New()
	env := newTestEnv(map[uuid.UUID]*domain.User{userID: {ID: userID}})
	env.granter.err = errors.New("db down")

	p := pendingSubscription(nil)
	env.payments.statuses[p.ID] = domain.PaymentStatusPending

	err := env.svc.ActivateSucceeded(context.Background(), p, userID)
	if err == nil {
		t.Fatal("grant failure must surface")
	}
	// статус не откатился: строку подберёт рескан журнала
	if env.payments.statuses[p.ID] != domain.PaymentStatusSucceeded {
		t.Errorf("status = %s, want succeeded", env.payments.statuses[p.ID])
	}
}

func TestGrantProductResolvesPlanByAmount(t *testing.T) {
	userID := uuid.New()
	env := newTestEnv(map[uuid.UUID]*domain.User{userID: {ID: userID}})

	// платёж без тарифа в строке — тариф восстанавливается по сумме
	p := &domain.Payment{
		ID:          uuid.New(),
		AmountMinor: 19900,
		Currency:    "RUB",
		Provider:    domain.ProviderYooKassa,
		Status:      domain.PaymentStatusSucceeded,
		Product:     domain.ProductSubscription,
	}

	if err := env.svc.GrantProduct(context.Background(), p, userID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.granter.grants) != 1 || env.granter.grants[0] != domain.Plan3Months {
		t.Errorf("expected 3 months plan by amount, got %v", env.granter.grants)
	}
}

func TestMarkFailed(t *testing.T) {
	env := newTestEnv(nil)

	p := pendingSubscription(nil)
	env.payments.statuses[p.ID] = domain.PaymentStatusPending
	env.index.Put(cache.PendingPayment{PaymentID: p.ID})

	if err := env.svc.MarkFailed(context.Background(), p, "canceled by user"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.payments.statuses[p.ID] != domain.PaymentStatusFailed {
		t.Error("payment must be failed")
	}
	if env.index.Len() != 0 {
		t.Error("failed payment must leave the pending index")
	}
	if len(env.producer.events) != 1 || env.producer.events[0].Type != kafka.EventPaymentFailed {
		t.Errorf("expected failed event, got %v", env.producer.events)
	}
}
