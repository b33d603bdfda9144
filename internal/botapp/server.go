package botapp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/permitbot/internal/bot"
	"github.com/MarkoPoloResearchLab/permitbot/internal/document"
	"github.com/MarkoPoloResearchLab/permitbot/internal/jobs"
	"github.com/MarkoPoloResearchLab/permitbot/internal/session"
	"github.com/MarkoPoloResearchLab/permitbot/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/permitbot/internal/telegram"
	"github.com/MarkoPoloResearchLab/permitbot/pkg/permit"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// telegramSink dispatches webhook updates through the chat client.
type telegramSink struct {
	client  *telegram.Client
	handler telegram.Handler
}

func (sink telegramSink) Accept(ctx context.Context, update tgbotapi.Update) {
	sink.client.Dispatch(ctx, sink.handler, update)
}

// Run boots the bot using the supplied configuration and blocks until ctx is done.
func Run(ctx context.Context, cfg Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	db, cleanup, driver, err := OpenDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()
	if err := PrepareSchema(db); err != nil {
		return err
	}
	logger.Info("database ready", zap.String("driver", driver))
	store := gormstore.New(db)
	clock := clockwork.NewRealClock()

	api, err := telegram.NewBotAPI(cfg.BotToken)
	if err != nil {
		return err
	}
	client, err := telegram.NewClient(api, logger)
	if err != nil {
		return err
	}

	service, manager, err := buildService(ctx, cfg, store, client, clock, logger)
	if err != nil {
		return err
	}
	defer manager.Shutdown()

	resumed, err := service.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover reservations: %w", err)
	}
	logger.Info("reservations recovered", zap.Int("resumed", resumed))

	sessions, err := buildSessionStore(cfg, clock)
	if err != nil {
		return err
	}
	collector, err := permit.NewCollector(sessions, clock.Now, cfg.ConfirmBeforeIssue)
	if err != nil {
		return err
	}
	dispatcher, err := bot.NewDispatcher(collector, service, client, bot.Config{
		AdminIDs:            cfg.AdminIDs,
		AdminTag:            cfg.AdminTag,
		Price:               cfg.Price,
		PaymentWindow:       cfg.PaymentWindow,
		PaymentInstructions: cfg.PaymentInstructions,
		ValidityDays:        cfg.ValidityDays,
	}, logger)
	if err != nil {
		return err
	}

	runner, err := jobs.NewRunner(clock, jobs.Config{
		HeartbeatInterval: cfg.HeartbeatInterval,
		SweepInterval:     cfg.SweepInterval,
	}, service, service, logger)
	if err != nil {
		return err
	}
	if err := runner.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if stopErr := runner.Stop(); stopErr != nil {
			logger.Warn("jobs shutdown error", zap.Error(stopErr))
		}
	}()

	errCh := make(chan error, 3)
	if cfg.GRPCHealthAddr != "" {
		listener, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return fmt.Errorf("health listen: %w", err)
		}
		go func() { errCh <- serveHealth(ctx, listener, logger) }()
	}

	mode := modePolling
	var sink UpdateSink
	if webhookURL := cfg.WebhookURL(); webhookURL != "" {
		if err := client.SetWebhook(webhookURL); err != nil {
			return err
		}
		mode = modeWebhook
		sink = telegramSink{client: client, handler: dispatcher}
	} else {
		if err := client.DeleteWebhook(); err != nil {
			logger.Warn("delete webhook", zap.Error(err))
		}
		go func() {
			logger.Info("long polling started")
			if pollErr := client.Poll(ctx, dispatcher); pollErr != nil {
				errCh <- pollErr
			}
		}()
	}

	router := newRouter(routerConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		WebhookPath:    cfg.WebhookPath,
		Mode:           mode,
	}, service, sink, clock, logger)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("permitbot listening", zap.String("addr", cfg.ListenAddr), zap.String("mode", mode))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func buildService(ctx context.Context, cfg Config, store *gormstore.Store, notifier permit.Notifier, clock clockwork.Clock, logger *zap.Logger) (*permit.Service, *permit.Manager, error) {
	folios, err := permit.NewFolioAllocator(store, cfg.FolioPrefix, cfg.FolioMaxAttempts)
	if err != nil {
		return nil, nil, err
	}
	if err := folios.Seed(ctx); err != nil {
		return nil, nil, fmt.Errorf("seed folio counter: %w", err)
	}
	plates, err := permit.NewPlateAllocator(store, permit.WithPlateLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	renderer, err := document.NewRenderer(document.Config{
		OutputDir:       cfg.OutputDir,
		MainTemplate:    cfg.MainTemplate,
		ReceiptTemplate: cfg.ReceiptTemplate,
		Location:        document.LoadLocation(cfg.TimeZone),
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	operationLogger := NewOperationLogger(logger)
	manager, err := permit.NewManager(clock, cfg.ReminderPlan(), permit.NewStoreExpiryHandler(store, operationLogger), notifier, permit.WithManagerLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	options := []permit.ServiceOption{
		permit.WithOperationLogger(operationLogger),
		permit.WithValidityDays(cfg.ValidityDays),
	}
	if cfg.S3Bucket != "" {
		s3Client, err := document.NewS3Client(ctx)
		if err != nil {
			return nil, nil, err
		}
		archiver, err := document.NewS3Archiver(s3Client, cfg.S3Bucket, cfg.S3Prefix, logger)
		if err != nil {
			return nil, nil, err
		}
		options = append(options, permit.WithDocumentArchiver(archiver))
	}
	service, err := permit.NewService(store, folios, plates, renderer, manager, notifier, options...)
	if err != nil {
		return nil, nil, err
	}
	return service, manager, nil
}

func buildSessionStore(cfg Config, clock clockwork.Clock) (permit.SessionStore, error) {
	if cfg.SessionBackend != SessionBackendRedis {
		return session.NewMemoryStore(clock, cfg.SessionTTL), nil
	}
	client, err := session.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return session.NewRedisStore(client, cfg.SessionTTL)
}
