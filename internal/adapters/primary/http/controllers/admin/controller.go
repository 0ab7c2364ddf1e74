package admin

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lisenka9/metaphor-bot-sub000/internal/domain"
	"github.com/lisenka9/metaphor-bot-sub000/internal/usecases/review"
)

// Config конфигурация админского API
type Config struct {
	Token string `envconfig:"TOKEN" required:"true"` // статический токен для заголовка X-Admin-Token
}

// Controller HTTP-интерфейс очереди ручного разбора платежей
type Controller struct {
	Review *review.Service
	Token  string
	Log    *slog.Logger
}

func New(
	reviewService *review.Service,
	cfg Config,
	log *slog.Logger,
) *Controller {
	return &Controller{
		Review: reviewService,
		Token:  cfg.Token,
		Log:    log,
	}
}

func (c *Controller) RegisterRoutes(router *gin.Engine) {
	admin := router.Group("/admin", c.requireToken)
	{
		admin.GET("/unresolved", c.listUnresolved)
		admin.GET("/unresolved/:id/candidates", c.candidates)
		admin.POST("/unresolved/:id/ignore", c.ignore)
		admin.POST("/unresolved/:id/activate", c.activate)
	}
}

func (c *Controller) requireToken(ctx *gin.Context) {
	got := ctx.GetHeader("X-Admin-Token")
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(c.Token)) != 1 {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	ctx.Next()
}

// ResolveRequest тело запроса на разбор записи
type ResolveRequest struct {
	AdminTelegramID  int64 `json:"admin_telegram_id" binding:"required"` // telegram id админа для аудита
	TargetTelegramID int64 `json:"target_telegram_id"`                   // кому активировать (только для activate)
}

func (c *Controller) listUnresolved(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))

	records, err := c.Review.ListPending(ctx.Request.Context(), limit)
	if err != nil {
		c.Log.Error("failed to list unresolved payments", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

func (c *Controller) candidates(ctx *gin.Context) {
	recordID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}

	users, err := c.Review.Candidates(ctx.Request.Context(), recordID)
	if err != nil {
		c.respondError(ctx, recordID, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"candidates": users, "count": len(users)})
}

func (c *Controller) ignore(ctx *gin.Context) {
	recordID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}

	var req ResolveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := c.Review.Ignore(ctx.Request.Context(), recordID, req.AdminTelegramID); err != nil {
		c.respondError(ctx, recordID, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ignored"})
}

func (c *Controller) activate(ctx *gin.Context) {
	recordID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}

	var req ResolveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.TargetTelegramID == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "target_telegram_id is required"})
		return
	}

	err = c.Review.ActivateForUser(ctx.Request.Context(), recordID, req.TargetTelegramID, req.AdminTelegramID)
	if err != nil {
		c.respondError(ctx, recordID, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "activated"})
}

func (c *Controller) respondError(ctx *gin.Context, recordID uuid.UUID, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	case errors.Is(err, review.ErrAlreadyProcessed):
		ctx.JSON(http.StatusConflict, gin.H{"error": "record already processed"})
	case errors.Is(err, review.ErrAmountMismatch):
		ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": "amount matches no known product"})
	default:
		c.Log.Error("failed to resolve unresolved payment",
			"error", err,
			"record_id", recordID)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
