package yookassaController

import (
	"net"
	"net/http"

	"log/slog"

	"github.com/gin-gonic/gin"
	yookassaAdapter "github.com/lisenka9/metaphor-bot-sub000/internal/adapters/secondary/payment/yookassa"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/billing"
)

// trustedNetworks диапазоны, с которых YooKassa шлёт уведомления
// https://yookassa.ru/developers/using-api/webhooks
var trustedNetworks = []string{
	"185.71.76.0/27",
	"185.71.77.0/27",
	"77.75.153.0/25",
	"77.75.156.11/32",
	"77.75.156.35/32",
	"77.75.154.128/25",
	"2a02:5180::/32",
}

// Controller принимает push-уведомления YooKassa. Политика ответов
// мягкая: кроме нечитаемого payload отвечаем 200, иначе провайдер
// зароет нас ретраями, а проблемные платежи и так уйдут в очередь
// разбора или дожмутся поллингом
type Controller struct {
	billing  *billing.Service
	networks []*net.IPNet
	log      *slog.Logger
}

func New(billingSvc *billing.Service, log *slog.Logger) *Controller {
	networks := make([]*net.IPNet, 0, len(trustedNetworks))
	for _, cidr := range trustedNetworks {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		networks = append(networks, network)
	}
	return &Controller{
		billing:  billingSvc,
		networks: networks,
		log:      log,
	}
}

func (c *Controller) RegisterRoutes(r *gin.Engine) {
	r.POST("/webhooks/yookassa", c.handleNotification)
}

func (c *Controller) handleNotification(ctx *gin.Context) {
	if !c.isTrustedIP(ctx.ClientIP()) {
		c.log.Warn("yookassa webhook from untrusted ip", "ip", ctx.ClientIP())
		ctx.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var payload yookassaAdapter.WebhookNotification
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		c.log.Error("failed to parse yookassa webhook", "error", err)
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	notification, err := payload.ToNotification()
	if err != nil {
		c.log.Error("failed to normalize yookassa webhook",
			"error", err,
			"event", payload.Event)
		// payload синтаксически валиден, но бесполезен — ретрай не поможет
		ctx.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err := c.billing.HandleNotification(ctx.Request.Context(), notification); err != nil {
		c.log.Error("failed to handle yookassa notification",
			"error", err,
			"provider_id", notification.ProviderPaymentID)
		// 200 осознанно: платёж доедет через поллинг или очередь разбора
		ctx.JSON(http.StatusOK, gin.H{"status": "deferred"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (c *Controller) isTrustedIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, network := range c.networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
