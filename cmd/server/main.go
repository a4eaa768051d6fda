// Tree Manager Server - human-in-the-loop conversational data collection
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oasst/treemanager/internal/application/auth"
	"github.com/oasst/treemanager/internal/application/dispatcher"
	"github.com/oasst/treemanager/internal/application/enrichment"
	"github.com/oasst/treemanager/internal/application/export"
	"github.com/oasst/treemanager/internal/application/interaction"
	"github.com/oasst/treemanager/internal/application/maintenance"
	"github.com/oasst/treemanager/internal/application/scheduler"
	"github.com/oasst/treemanager/internal/application/statemachine"
	"github.com/oasst/treemanager/internal/config"
	"github.com/oasst/treemanager/internal/infrastructure/api/rest"
	"github.com/oasst/treemanager/internal/infrastructure/cache"
	"github.com/oasst/treemanager/internal/infrastructure/logger"
	"github.com/oasst/treemanager/internal/infrastructure/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)

	appLogger.Info("Starting Tree Manager Server",
		"version", "1.0.0",
		"port", cfg.Server.Port,
	)

	dbConfig := &storage.Config{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MinConnections,
		ConnMaxLifetime: cfg.Database.MaxConnLifetime,
		ConnMaxIdleTime: cfg.Database.MaxIdleTime,
		Debug:           cfg.Logging.Level == "debug",
	}

	db, err := storage.NewDB(dbConfig)
	if err != nil {
		appLogger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer storage.Close(db)

	appLogger.Info("Database connected", "max_conns", cfg.Database.MaxConnections)

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		appLogger.Warn("Failed to initialize Redis cache", "error", err)
		redisCache = nil
	} else {
		defer redisCache.Close()
		appLogger.Info("Redis cache connected")
	}

	messages := storage.NewMessageRepository(db)
	trees := storage.NewTreeStateRepository(db)
	tasks := storage.NewTaskRepository(db)
	labels := storage.NewLabelRepository(db)
	reactions := storage.NewReactionRepository(db)
	rawQuery := storage.NewQueryRepository(db)
	query := storage.NewCachedQueryRepository(rawQuery, redisCache, time.Duration(cfg.Tree.RecentTasksSpanSec)*time.Second, appLogger)
	enrichmentRepo := storage.NewEnrichmentRepository(db)

	authGateway, err := auth.NewGateway(&cfg.Auth)
	if err != nil {
		appLogger.Error("Failed to initialize auth gateway", "error", err)
		os.Exit(1)
	}

	disp := &dispatcher.Dispatcher{
		Trees:    trees,
		Messages: messages,
		Query:    query,
		Users:    authGateway,
		Cfg:      &cfg.Tree,
		Rand:     dispatcher.SystemRand{},
		Log:      appLogger,
	}

	sm := &statemachine.StateMachine{
		Trees:     trees,
		Messages:  messages,
		Labels:    labels,
		Reactions: reactions,
		Query:     query,
		Cfg:       &cfg.Tree,
		Rand:      dispatcher.SystemRand{},
		Log:       appLogger,
	}

	hfClient := &enrichment.HFClient{
		EmbeddingURL: cfg.Tree.HFEmbeddingURL,
		ToxicityURL:  cfg.Tree.HFToxicityURL,
		HTTPClient:   &http.Client{Timeout: cfg.Tree.HFTimeout},
	}
	enrichHook := &enrichment.Hook{
		Client: hfClient,
		Repo:   enrichmentRepo,
		Cfg:    &cfg.Tree,
		Log:    appLogger,
	}

	interactionHandler := &interaction.Handler{
		Messages:     messages,
		Trees:        trees,
		Tasks:        tasks,
		Labels:       labels,
		Reactions:    reactions,
		StateMachine: sm,
		Enrichment:   enrichHook,
		Cfg:          &cfg.Tree,
		Log:          appLogger,
	}

	maint := &maintenance.Maintenance{
		Trees:        trees,
		Messages:     messages,
		Tasks:        tasks,
		Labels:       labels,
		Reactions:    reactions,
		Query:        query,
		StateMachine: sm,
		Cfg:          &cfg.Tree,
		Log:          appLogger,
	}

	exporter := &export.Exporter{Messages: messages}

	maintenanceScheduler := scheduler.New(cfg.Scheduler, maint, appLogger)
	if err := maintenanceScheduler.Start(); err != nil {
		appLogger.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	authMiddleware := rest.NewAuthMiddleware(authGateway)
	handlers := &rest.Handlers{
		Tasks: rest.NewTaskHandlers(disp, interactionHandler),
		Admin: rest.NewAdminHandlers(maint, exporter),
	}
	router := rest.NewRouter(appLogger, db, redisCache, authMiddleware, handlers)

	appLogger.Info("REST API routes registered")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info("HTTP server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		appLogger.Error("Server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		appLogger.Info("Server shutdown initiated", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		appLogger.Info("Stopping scheduler...")
		maintenanceScheduler.Stop()
		appLogger.Info("Scheduler stopped")

		if err := server.Shutdown(ctx); err != nil {
			appLogger.Error("Graceful shutdown failed", "error", err)
			if err := server.Close(); err != nil {
				appLogger.Error("Server close failed", "error", err)
			}
		}

		appLogger.Info("Server stopped")
	}
}
