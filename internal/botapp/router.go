package botapp

import (
	"context"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/permitbot/internal/telegram"
	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	modeWebhook = "webhook"
	modePolling = "polling"
)

// StatusReporter exposes runtime counters.
type StatusReporter interface {
	Snapshot() permit.Snapshot
	FolioPrefix() string
}

// UpdateSink consumes webhook updates.
type UpdateSink interface {
	Accept(ctx context.Context, update tgbotapi.Update)
}

type routerConfig struct {
	AllowedOrigins []string
	WebhookPath    string
	Mode           string
}

type statusHandler struct {
	reporter  StatusReporter
	sink      UpdateSink
	clock     clockwork.Clock
	startedAt time.Time
	mode      string
	logger    *zap.Logger
}

func newRouter(cfg routerConfig, reporter StatusReporter, sink UpdateSink, clock clockwork.Clock, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Origin", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &statusHandler{
		reporter:  reporter,
		sink:      sink,
		clock:     clock,
		startedAt: clock.Now(),
		mode:      cfg.Mode,
		logger:    logger,
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/", handler.handleSummary)
	router.GET("/status", handler.handleStatus)
	if sink != nil {
		router.POST(cfg.WebhookPath, handler.handleWebhook)
	}
	router.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", "route not found"))
	})
	return router
}

func (handler *statusHandler) handleSummary(ctx *gin.Context) {
	snapshot := handler.reporter.Snapshot()
	ctx.JSON(http.StatusOK, gin.H{
		"status":        "running",
		"next_folio":    snapshot.NextFolio.String(),
		"active_timers": snapshot.ActiveReservations,
	})
}

func (handler *statusHandler) handleStatus(ctx *gin.Context) {
	snapshot := handler.reporter.Snapshot()
	ctx.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"mode":           handler.mode,
		"folio_prefix":   handler.reporter.FolioPrefix(),
		"next_folio":     snapshot.NextFolio.String(),
		"active_timers":  snapshot.ActiveReservations,
		"uptime_seconds": int64(handler.clock.Since(handler.startedAt) / time.Second),
	})
}

func (handler *statusHandler) handleWebhook(ctx *gin.Context) {
	update, err := telegram.DecodeUpdate(ctx.Request.Body)
	if err != nil {
		handler.logger.Warn("webhook payload rejected", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected telegram update"))
		return
	}
	handler.sink.Accept(ctx.Request.Context(), update)
	ctx.JSON(http.StatusOK, gin.H{"ok": true})
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
