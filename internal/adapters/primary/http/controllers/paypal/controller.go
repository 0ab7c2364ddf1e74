package paypalController

import (
	"net/http"

	"log/slog"

	"github.com/gin-gonic/gin"
	paypalAdapter "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/payment/paypal"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	paymentPorts "github.com/lisenka9/metaphor-bot-sub000/internal/ports/payment"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/billing"
)

// Controller принимает webhook-события PayPal. Вместо верификации
// подписи заявленный success перепроверяется прямым запросом к API —
// подделанный webhook максимум инициирует лишнюю проверку статуса
type Controller struct {
	billing  *billing.Service
	provider paymentPorts.IPaymentProvider
	log      *slog.Logger
}

func New(billingSvc *billing.Service, provider paymentPorts.IPaymentProvider, log *slog.Logger) *Controller {
	return &Controller{
		billing:  billingSvc,
		provider: provider,
		log:      log,
	}
}

func (c *Controller) RegisterRoutes(r *gin.Engine) {
	r.POST("/webhooks/paypal", c.handleEvent)
}

func (c *Controller) handleEvent(ctx *gin.Context) {
	var payload paypalAdapter.WebhookEvent
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		c.log.Error("failed to parse paypal webhook", "error", err)
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	notification, err := payload.ToNotification()
	if err != nil {
		c.log.Error("failed to normalize paypal webhook",
			"error", err,
			"event_type", payload.EventType)
		ctx.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if notification.Status == domain.PaymentStatusSucceeded {
		verified, err := c.provider.CheckStatus(ctx.Request.Context(), notification.ProviderPaymentID)
		if err != nil {
			c.log.Error("failed to verify paypal event",
				"error", err,
				"provider_id", notification.ProviderPaymentID)
			// поллинг перепроверит сам
			ctx.JSON(http.StatusOK, gin.H{"status": "deferred"})
			return
		}
		notification.Status = verified
	}

	if err := c.billing.HandleNotification(ctx.Request.Context(), notification); err != nil {
		c.log.Error("failed to handle paypal notification",
			"error", err,
			"provider_id", notification.ProviderPaymentID)
		// 200 осознанно: платёж доедет через поллинг или очередь разбора
		ctx.JSON(http.StatusOK, gin.H{"status": "deferred"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}
