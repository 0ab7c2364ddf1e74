package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/cache"
	paymentPorts "github.com/lisenka9/metaphor-bot-sub000/internal/ports/payment"
	"github.com/lisenka9/metaphor-bot-sub000/internal/ports/repository"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/activation"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/resolver"
)

const paymentReconcilerName = "payment-reconciler"

// Интервал цикла и пороги реконсиляции. Грация даёт провайдеру время
// обработать оплату до первого опроса; лимит проверок отсекает платежи,
// которые пользователь бросил на странице оплаты
const (
	reconcileInterval = 30 * time.Second
	checkGracePeriod  = 2 * time.Minute
	maxStatusChecks   = 120
	rescanBatchSize   = 100
)

// pollWindow сколько всего платёж опрашивается активно. Старше окна —
// полагаемся на поздний webhook или ручной разбор
const pollWindow = maxStatusChecks * reconcileInterval

// PaymentReconciler pull-половина реконсиляции платежей: периодически
// опрашивает провайдеров по платежам из индекса ожидания. Индекс
// process-local и теряется при рестарте, поэтому каждый тик дополняется
// double-check'ами по журналу: pending-строки возвращаются в индекс,
// а succeeded-строки без выданного продукта дополучают активацию
type PaymentReconciler struct {
	pendingIndex cache.IPendingIndex
	paymentRepo  repository.IPaymentRepo
	providers    map[domain.PaymentProvider]paymentPorts.IPaymentProvider
	activation   *activation.Service
	resolver     *resolver.Service
	log          *slog.Logger
}

func NewPaymentReconciler(
	pendingIndex cache.IPendingIndex,
	paymentRepo repository.IPaymentRepo,
	providers map[domain.PaymentProvider]paymentPorts.IPaymentProvider,
	activationSvc *activation.Service,
	resolverSvc *resolver.Service,
	log *slog.Logger,
) *PaymentReconciler {
	return &PaymentReconciler{
		pendingIndex: pendingIndex,
		paymentRepo:  paymentRepo,
		providers:    providers,
		activation:   activationSvc,
		resolver:     resolverSvc,
		log:          log,
	}
}

func (j *PaymentReconciler) Name() string {
	return paymentReconcilerName
}

// NextRun каждые 30 секунд
func (j *PaymentReconciler) NextRun(now time.Time) time.Time {
	return now.Add(reconcileInterval)
}

// RetrySchedule ретраи не нужны, следующий тик через 30 секунд
func (j *PaymentReconciler) RetrySchedule() []time.Duration {
	return nil
}

// Run один тик реконсиляции: рескан журнала, опрос провайдеров,
// дожим активаций. Ошибка по одному платежу не прерывает тик
func (j *PaymentReconciler) Run(ctx context.Context) error {
	if err := j.rebuildIndex(ctx); err != nil {
		j.log.Error("failed to rebuild pending index from ledger", "error", err)
	}

	j.pollPending(ctx)

	if err := j.finishActivations(ctx); err != nil {
		j.log.Error("failed to finish pending activations", "error", err)
	}

	return nil
}

// rebuildIndex возвращает в индекс pending-платежи из журнала,
// потерянные при рестарте процесса. Журнал — источник истины,
// индекс всегда можно собрать из него заново
func (j *PaymentReconciler) rebuildIndex(ctx context.Context) error {
	cutoff := time.Now().Add(-checkGracePeriod)
	rows, err := j.paymentRepo.ListPending(ctx, cutoff, rescanBatchSize)
	if err != nil {
		return err
	}

	known := make(map[uuid.UUID]struct{}, j.pendingIndex.Len())
	for _, p := range j.pendingIndex.List() {
		known[p.PaymentID] = struct{}{}
	}

	now := time.Now()
	restored := 0
	for i := range rows {
		if _, ok := known[rows[i].ID]; ok {
			continue
		}
		// платёж вышел из окна активного опроса — в индекс не
		// возвращаем, иначе снятые с опроса строки будут крутиться вечно
		if now.Sub(rows[i].CreatedAt) > pollWindow {
			continue
		}
		j.pendingIndex.Put(cache.PendingPayment{
			PaymentID:  rows[i].ID,
			Provider:   rows[i].Provider,
			ProviderID: rows[i].ProviderID,
			CreatedAt:  rows[i].CreatedAt,
		})
		restored++
	}
	if restored > 0 {
		j.log.Info("pending payments restored from ledger", "count", restored)
	}
	return nil
}

// pollPending опрашивает провайдеров по всем платежам индекса
func (j *PaymentReconciler) pollPending(ctx context.Context) {
	now := time.Now()
	for _, pending := range j.pendingIndex.List() {
		if now.Sub(pending.CreatedAt) < checkGracePeriod {
			continue
		}
		if err := j.checkOne(ctx, pending); err != nil {
			j.log.Error("failed to reconcile payment",
				"error", err,
				"payment_id", pending.PaymentID,
				"provider", pending.Provider)
		}
	}
}

func (j *PaymentReconciler) checkOne(ctx context.Context, pending cache.PendingPayment) error {
	checks := j.pendingIndex.IncrementChecks(pending.PaymentID)

	provider, ok := j.providers[pending.Provider]
	if !ok {
		j.pendingIndex.Remove(pending.PaymentID)
		return fmt.Errorf("no provider registered for %s", pending.Provider)
	}

	status, err := provider.CheckStatus(ctx, pending.ProviderID)
	if err != nil {
		// сетевой сбой не делает платёж failed, проверим на следующем тике
		if checks >= maxStatusChecks {
			j.stopPolling(pending, "status check limit reached")
			return nil
		}
		return fmt.Errorf("status check failed: %w", err)
	}

	switch status {
	case domain.PaymentStatusSucceeded:
		row, err := j.paymentRepo.GetByID(ctx, pending.PaymentID)
		if err != nil {
			return fmt.Errorf("failed to load payment: %w", err)
		}
		if row.UserID == nil || *row.UserID == uuid.Nil {
			// платёж без привязки — чужой для журнала сценарий,
			// отправляем на ручной разбор
			return j.escalateUnbound(ctx, row)
		}
		return j.activation.ActivateSucceeded(ctx, row, *row.UserID)

	case domain.PaymentStatusFailed:
		row, err := j.paymentRepo.GetByID(ctx, pending.PaymentID)
		if err != nil {
			return fmt.Errorf("failed to load payment: %w", err)
		}
		return j.activation.MarkFailed(ctx, row, "provider reported failure")

	default:
		if checks >= maxStatusChecks {
			j.stopPolling(pending, "payment abandoned")
		}
		return nil
	}
}

// stopPolling платёж исчерпал лимит проверок: снимаем с опроса, но
// строка журнала остаётся pending. Терминальный статус ставят только
// ответ провайдера, поздний webhook или админ из очереди разбора —
// оплаченный, но медленный платёж не должен превратиться в failed
func (j *PaymentReconciler) stopPolling(pending cache.PendingPayment, reason string) {
	j.log.Warn("stopped polling pending payment",
		"payment_id", pending.PaymentID,
		"provider_id", pending.ProviderID,
		"reason", reason)
	j.pendingIndex.Remove(pending.PaymentID)
}

// escalateUnbound succeeded-платёж без привязанного пользователя
func (j *PaymentReconciler) escalateUnbound(ctx context.Context, row *domain.Payment) error {
	n := &paymentPorts.Notification{
		Provider:          row.Provider,
		EventType:         "reconciler.unbound",
		ProviderPaymentID: row.ProviderID,
		Status:            domain.PaymentStatusSucceeded,
		AmountMinor:       row.AmountMinor,
		Currency:          row.Currency,
		Raw:               row.Metadata,
	}
	if _, err := j.resolver.Escalate(ctx, n); err != nil {
		return err
	}
	j.pendingIndex.Remove(row.ID)
	return nil
}

// finishActivations дожимает платежи, по которым переход в succeeded
// прошёл, а выдача продукта оборвалась (краш между шагами активации)
func (j *PaymentReconciler) finishActivations(ctx context.Context) error {
	rows, err := j.paymentRepo.SucceededWithoutActivation(ctx, rescanBatchSize)
	if err != nil {
		return err
	}
	for i := range rows {
		row := &rows[i]
		if row.UserID == nil || *row.UserID == uuid.Nil {
			continue // такие уходят в очередь разбора другим путём
		}
		if err := j.activation.GrantProduct(ctx, row, *row.UserID); err != nil {
			j.log.Error("failed to finish activation",
				"error", err,
				"payment_id", row.ID)
			continue
		}
		j.log.Info("activation finished on reconcile",
			"payment_id", row.ID,
			"user_id", *row.UserID)
	}
	return nil
}
