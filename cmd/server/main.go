package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/halcyon-erp/be-approvals/internal/client"
	"github.com/halcyon-erp/be-approvals/internal/config"
	"github.com/halcyon-erp/be-approvals/internal/database"
	"github.com/halcyon-erp/be-approvals/internal/handler"
	"github.com/halcyon-erp/be-approvals/internal/logger"
	"github.com/halcyon-erp/be-approvals/internal/middleware"
	"github.com/halcyon-erp/be-approvals/internal/repository"
	"github.com/halcyon-erp/be-approvals/internal/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Logger.Level,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Approvals Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Connect to NATS; the service degrades to DB-only notifications without it
	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = nats.Connect(cfg.NATS.URL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS, notification events disabled")
		} else {
			defer natsConn.Close()
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
		}
	}

	// Initialize repositories
	catalogRepo := repository.NewCatalogRepository(db)
	instanceRepo := repository.NewInstanceRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	logRepo := repository.NewLogRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	stockRepo := repository.NewStockRepository(db)

	// Initialize document access and the event publisher
	docStore := client.NewDocumentSQLStore(db)
	publisher := client.NewNotificationPublisher(natsConn, cfg.NATS.SubjectPrefix, log)

	// Initialize services
	selectorService := service.NewSelectorService(catalogRepo, log)
	sideEffectService := service.NewSideEffectService(docStore, stockRepo, log)
	approvalService := service.NewApprovalService(
		db,
		catalogRepo,
		selectorService,
		instanceRepo,
		taskRepo,
		logRepo,
		notificationRepo,
		publisher,
		sideEffectService,
		docStore,
		log,
	)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(approvalService, notificationRepo, log)
	mux := http.NewServeMux()

	mux.HandleFunc("/health", httpHandler.Health)

	mux.HandleFunc("/api/v1/approvals/start", httpHandler.StartApproval)
	mux.HandleFunc("/api/v1/approvals/act", httpHandler.Act)
	mux.HandleFunc("/api/v1/approvals/pending", httpHandler.ListPending)
	mux.HandleFunc("/api/v1/approvals/instance", httpHandler.GetInstance)
	mux.HandleFunc("/api/v1/notifications", httpHandler.ListNotifications)
	mux.HandleFunc("/api/v1/notifications/read", httpHandler.MarkNotificationRead)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log)(h)
	h = middleware.Recovery(&log)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(30 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
