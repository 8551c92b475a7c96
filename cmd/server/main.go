package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	convapp "github.com/tallyline/backend/internal/application/conversation"
	ledgerapp "github.com/tallyline/backend/internal/application/ledger"
	notificationapp "github.com/tallyline/backend/internal/application/notification"
	"github.com/tallyline/backend/internal/application/reconciliation"
	"github.com/tallyline/backend/internal/domain/conversation"
	"github.com/tallyline/backend/internal/domain/shared"
	"github.com/tallyline/backend/internal/infrastructure/cache"
	"github.com/tallyline/backend/internal/infrastructure/channel"
	"github.com/tallyline/backend/internal/infrastructure/classifier"
	"github.com/tallyline/backend/internal/infrastructure/config"
	"github.com/tallyline/backend/internal/infrastructure/event"
	"github.com/tallyline/backend/internal/infrastructure/logger"
	"github.com/tallyline/backend/internal/infrastructure/persistence"
	"github.com/tallyline/backend/internal/infrastructure/scheduler"
	"github.com/tallyline/backend/internal/infrastructure/telemetry"
	"github.com/tallyline/backend/internal/interfaces/http/handler"
	"github.com/tallyline/backend/internal/interfaces/http/middleware"
	"github.com/tallyline/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

//	@title			Tallyline API
//	@version		1.0
//	@description	Conversational ledger for informal merchants: channel and payment webhooks plus the public invoice view

//	@BasePath	/api/v1

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx := context.Background()

	// the OTel log bridge needs a logger of its own before the real one exists
	bootLog, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize OTel logs", zap.Error(err))
	}
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}, logProvider.Core(logger.ParseLevel(cfg.Log.Level)))
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting Tallyline backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	meter := meterProvider.Meter(cfg.Telemetry.ServiceName)
	metrics, err := telemetry.NewLedgerMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create ledger metrics", zap.Error(err))
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := telemetry.RegisterOtelGorm(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        cfg.Database.Driver,
	}, log); err != nil {
		log.Fatal("Failed to enable database tracing", zap.Error(err))
	}
	// postgres schemas are owned by cmd/migrate
	if cfg.Database.Driver == persistence.DriverSQLite {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to create sqlite schema", zap.Error(err))
		}
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	stores, err := cache.NewStoreFactory(cfg.Cache, cfg.Redis, cache.WithLogger(log)).CreateStores(ctx)
	if err != nil {
		log.Fatal("Failed to create dedup and session stores", zap.Error(err))
	}

	merchants := persistence.NewGormMerchantRepository(db.DB)
	invoices := persistence.NewGormInvoiceRepository(db.DB)
	notifications := persistence.NewGormNotificationRepository(db.DB)

	eventBus := event.NewInMemoryEventBus(log)

	ledgerService := ledgerapp.NewService(ledgerapp.ServiceConfig{
		Repo:      invoices,
		Publisher: eventBus,
		Metrics:   metrics,
		Logger:    log.Named("ledger"),
	})

	var sender convapp.ReplySender
	switch cfg.Channel.Sender {
	case "cloud":
		sender = channel.NewCloudAPISender(cfg.Channel, log.Named("channel"))
	default:
		log.Warn("Channel sender is log-only, replies will not be delivered")
		sender = channel.NewLogSender(log.Named("channel"))
	}

	var intentClassifier conversation.Classifier
	if cfg.Classifier.APIKey != "" {
		intentClassifier = classifier.NewOpenAIClassifier(cfg.Classifier, log.Named("classifier"))
	} else {
		log.Warn("Classifier API key not set, only exact commands will be understood")
	}

	conversationRouter := convapp.NewRouter(convapp.RouterConfig{
		Ledger:            ledgerService,
		Classifier:        intentClassifier,
		Publisher:         eventBus,
		Metrics:           metrics,
		Logger:            log.Named("router"),
		ClassifierTimeout: cfg.Classifier.Timeout,
		MinConfidence:     cfg.Classifier.MinConfidence,
		ContextBalances:   cfg.Classifier.MaxContext,
	})
	gateway := convapp.NewGateway(convapp.GatewayConfig{
		Dedup:              stores.Inbound,
		Sessions:           stores.Sessions,
		Merchants:          merchants,
		Router:             conversationRouter,
		Sender:             sender,
		Metrics:            metrics,
		Logger:             log.Named("gateway"),
		DedupTTL:           cfg.Cache.DedupTTL,
		SessionTTL:         cfg.Cache.SessionTTL,
		DefaultCountryCode: cfg.Channel.DefaultCountryCode,
	})
	dispatcher := convapp.NewDispatcher(gateway, log.Named("dispatcher"), 0)

	webhookService := reconciliation.NewWebhookService(ledgerService, cfg.Payments.WebhookSecret, metrics, log.Named("reconciliation"))

	fanOut := notificationapp.NewFanOut(notificationapp.FanOutConfig{
		Notifiers: []notificationapp.Notifier{
			notificationapp.NewChannelNotifier(merchants, sender),
			notificationapp.NewInAppNotifier(notifications),
		},
		Dedup:     stores.Notified,
		Metrics:   metrics,
		Logger:    log.Named("notification"),
		QueueSize: cfg.Notification.QueueSize,
		Timeout:   cfg.Notification.Timeout,
		DedupTTL:  cfg.Cache.NotifyTTL,
	})
	eventBus.Subscribe(fanOut)
	if err := fanOut.Start(ctx); err != nil {
		log.Fatal("Failed to start notification fan-out", zap.Error(err))
	}
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	publicLimiter := middleware.NewRateLimiter(cfg.HTTP.PublicRateLimit, cfg.HTTP.PublicRateWindow)

	compactors := append([]shared.Compactor{publicLimiter}, stores.Compactors...)
	compaction := scheduler.NewCompactionScheduler(compactors, log.Named("compaction"), scheduler.CompactionSchedulerConfig{
		Interval: cfg.Cache.CompactionInterval,
	})
	if err := compaction.Start(ctx); err != nil {
		log.Fatal("Failed to start compaction scheduler", zap.Error(err))
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.CORSOrigins

	engine, err := router.New(router.Config{
		Logger: log,
		Meter:  meter,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		},
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		CORS:           cors,
		PublicLimiter:  publicLimiter,
		Health:         handler.NewHealthHandler(db),
		Channel:        handler.NewChannelWebhookHandler(dispatcher, cfg.Channel.VerifyToken, cfg.Channel.AppSecret),
		Payments:       handler.NewPaymentWebhookHandler(webhookService, cfg.Payments.SignatureHeader),
		PublicInvoice:  handler.NewPublicInvoiceHandler(ledgerService),
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// stop intake first, then drain in the order work flows: turns, events, sweeps
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Error("Inbound messages still running at shutdown", zap.Error(err))
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop event bus", zap.Error(err))
	}
	if err := fanOut.Stop(shutdownCtx); err != nil {
		log.Error("Notifications still queued at shutdown", zap.Error(err))
	}
	if err := compaction.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop compaction scheduler", zap.Error(err))
	}
	if err := stores.Close(); err != nil {
		log.Error("Failed to close stores", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to flush metrics", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to flush traces", zap.Error(err))
	}
	if err := logProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to flush logs", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
