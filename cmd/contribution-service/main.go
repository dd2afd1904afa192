package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/perundhu/platform/pkg/audit"
	"github.com/perundhu/platform/pkg/common/config"
	"github.com/perundhu/platform/pkg/common/database"
	"github.com/perundhu/platform/pkg/common/kafka"
	"github.com/perundhu/platform/pkg/common/logger"
	"github.com/perundhu/platform/pkg/common/middleware"
	"github.com/perundhu/platform/pkg/contribution"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	repo := contribution.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate contribution tables")
	}

	auditRepo := audit.NewRepository(db)
	if err := auditRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate skip ledger")
	}

	producer := kafka.NewProducer(cfg.ContributionTopic)
	defer producer.Close()

	var dlqProducer *kafka.Producer
	if cfg.ContributionDLQTopic != "" {
		dlqProducer = kafka.NewProducer(cfg.ContributionDLQTopic)
		defer dlqProducer.Close()
	}

	svc := contribution.NewService(contribution.NewValidator(), repo, producer, dlqProducer, nil)
	handler := contribution.NewHTTPHandler(svc, cfg.MaxRequestBody)
	auditHandler := audit.NewHTTPHandler(auditRepo)

	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RateLimit(cfg.IntakeRateLimitRPS, cfg.IntakeRateLimitBurst))
	handler.Register(api)
	auditHandler.Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Contribution Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Contribution Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("failed to close postgres")
	}

	logger.Log.Info("Contribution Service stopped")
}
