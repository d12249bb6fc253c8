package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	cfg "github.com/bluecarbon/mrv-registry/backend/config"
	"github.com/bluecarbon/mrv-registry/backend/internal/handlers"
	"github.com/bluecarbon/mrv-registry/backend/internal/ledger"
	"github.com/bluecarbon/mrv-registry/backend/internal/storage"
	"github.com/bluecarbon/mrv-registry/backend/internal/usecases"
	"github.com/bluecarbon/mrv-registry/backend/internal/usecases/repository"
	"github.com/bluecarbon/mrv-registry/backend/internal/workers"
	"github.com/bluecarbon/mrv-registry/backend/pkg/database"
)

// Server timeout constants.
const (
	readTimeoutSeconds     = 15
	writeTimeoutSeconds    = 15
	idleTimeoutSeconds     = 60
	shutdownTimeoutSeconds = 5
)

func main() {
	time.Local = time.UTC

	// Local development reads secrets from .env; in deployment the
	// environment is already populated and the file is absent.
	_ = godotenv.Load()

	config, err := cfg.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if config.App.Debug {
		opts.Level = slog.LevelDebug
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	migrationsPath := "./migrations"
	if workDir, err := os.Getwd(); err == nil {
		if _, err := os.Stat(filepath.Join(workDir, "migrations")); !os.IsNotExist(err) {
			migrationsPath = filepath.Join(workDir, "migrations")
		} else if _, err := os.Stat(filepath.Join(workDir, "..", "migrations")); !os.IsNotExist(err) {
			migrationsPath = filepath.Join(workDir, "..", "migrations")
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
	logger.Info("Starting registry backend",
		"environment", config.App.Environment,
		"debug", config.App.Debug,
		"rpc_url", config.Ledger.RPCURL,
		"chain_id", config.Ledger.ChainID,
		"server_port", config.HTTP.Port)

	// Connect to Database
	pg, err := database.New(config,
		database.MaxPoolSize(config.DB.PoolMax),
		database.ConnTimeout(config.DB.ConnectTimeout),
		database.HealthCheckPeriod(config.DB.HealthCheckPeriod),
		database.Isolation(pgx.ReadCommitted),
	)
	if err != nil {
		logger.Error("postgres connection failed", "error", err)
		return
	}
	defer pg.Close()

	logger.Info("Running database migrations", "path", migrationsPath)
	if err = database.RunMigrations(logger, config.DB.DatabaseURL, migrationsPath); err != nil {
		logger.Error("Failed to run database migrations", "error", err)
		log.Fatal(err)
	}

	// Create repositories
	projectsRepository := repository.NewProjectsRepository(logger, pg)
	verificationsRepository := repository.NewVerificationsRepository(logger, pg)
	registrationsRepository := repository.NewRegistrationsRepository(logger, pg)
	batchesRepository := repository.NewBatchesRepository(logger, pg)
	auditRepository := repository.NewAuditRepository(logger, pg)
	listingsRepository := repository.NewListingsRepository(logger, pg)
	transfersRepository := repository.NewTransfersRepository(logger, pg)

	// Ledger client and storage gateway
	ledgerClient := ledger.NewClient(logger, &config.Ledger)
	ipfsGateway := storage.NewIPFSGateway(logger, config)

	// Create usecases
	lifecycleService := usecases.NewLifecycleService(
		logger, projectsRepository, verificationsRepository, registrationsRepository,
		batchesRepository, auditRepository, ledgerClient, pg.Transactor)

	reconciler := usecases.NewReconciler(
		logger, projectsRepository, registrationsRepository, auditRepository, ledgerClient,
		time.Duration(config.Reconciliation.PendingTimeoutMinutes)*time.Minute)

	marketplaceEngine := usecases.NewMarketplaceEngine(
		logger, listingsRepository, projectsRepository, lifecycleService, ledgerClient, pg.Transactor)

	paymentsService := usecases.NewPaymentsService(logger, transfersRepository, ledgerClient,
		time.Duration(config.Reconciliation.PendingTimeoutMinutes)*time.Minute)

	// Connect to the ledger up front so the first write does not pay the
	// dial cost. A failure is not fatal: the client reconnects lazily.
	if err := ledgerClient.Connect(ctx); err != nil {
		logger.Warn("Ledger connection failed at startup, will retry on demand", "error", err)
	}

	// Create handlers
	websocketManager := handlers.NewWebSocketManager(logger)
	httpHandler := handlers.NewHTTPHandler(logger, config,
		lifecycleService, marketplaceEngine, paymentsService, reconciler, ipfsGateway, ledgerClient)
	wsHandler := handlers.NewWebSocketHandler(logger, websocketManager)

	// Initialize and run workers
	reconcileWorker := workers.NewReconcileWorker(logger, reconciler, config.Reconciliation.Schedule)
	if err := reconcileWorker.Start(ctx); err != nil {
		logger.Error("Failed to start reconciliation scheduler", "error", err)
		log.Fatal(err)
	}
	defer reconcileWorker.Stop()

	eventPump := workers.NewEventPump(logger, ledgerClient, lifecycleService, websocketManager)
	go func() {
		logger.Info("Starting ledger event pump")
		if err := eventPump.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Ledger event pump exited", "error", err)
		}
	}()

	// Create router
	router := mux.NewRouter()

	// Register WebSocket routes before HTTP routes
	wsHandler.RegisterRoutes(router)
	httpHandler.RegisterRoutes(router)

	// Configure CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Idempotency-Key"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         ":" + config.HTTP.Port,
		Handler:      c.Handler(router),
		ReadTimeout:  readTimeoutSeconds * time.Second,
		WriteTimeout: writeTimeoutSeconds * time.Second,
		IdleTimeout:  idleTimeoutSeconds * time.Second,
	}

	go func() {
		logger.Info("Starting server", "address", server.Addr)
		if err = server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			log.Fatal(err)
		}
	}()

	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeoutSeconds*time.Second)
	defer shutdownCancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return
	}

	logger.Info("Server exited properly")
}
