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
	"github.com/perundhu/platform/pkg/common/models"
	"github.com/perundhu/platform/pkg/contribution"
	"github.com/perundhu/platform/pkg/locations"
	"github.com/perundhu/platform/pkg/observability/metrics"
	"github.com/perundhu/platform/pkg/ocr"
	"github.com/perundhu/platform/pkg/parser"
	"github.com/perundhu/platform/pkg/pipeline"
	"github.com/perundhu/platform/pkg/schedule"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	contribRepo := contribution.NewRepository(db)
	if err := contribRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate contribution tables")
	}
	recordRepo := schedule.NewRepository(db)
	if err := recordRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate timing records")
	}
	auditRepo := audit.NewRepository(db)
	if err := auditRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate skip ledger")
	}

	catalog, err := locations.Load(cfg.LocationCatalogPath, cfg.FuzzyMatchThreshold)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load location catalog")
	}

	store := pipeline.NewStore(db, contribRepo, recordRepo, auditRepo)
	locker := pipeline.NewRedisLocker(database.GetRedis(), cfg.ClaimTTL, cfg.RouteLockTTL, cfg.RouteLockRetryInterval)
	merger := pipeline.NewMerger(store, locker, cfg.DuplicateToleranceMinutes, nil)
	extractor := ocr.NewClient(cfg.OCRBaseURL, cfg.OCRRequestTimeout, cfg.OCRMaxAttempts, cfg.OCRRetryBackoff)
	timingParser := parser.New(catalog, cfg.MinParseConfidence, cfg.AmbiguousTimePenalty)

	resolvedProducer := kafka.NewProducer(cfg.ContributionResolvedTopic)
	defer resolvedProducer.Close()

	var dlqProducer *kafka.Producer
	if cfg.ContributionDLQTopic != "" {
		dlqProducer = kafka.NewProducer(cfg.ContributionDLQTopic)
		defer dlqProducer.Close()
	}

	proc := pipeline.NewProcessor(store, extractor, timingParser, merger, locker, resolvedProducer, cfg.ProcessingTimeout, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, event models.Event) error {
		id, _ := event.Data["contribution_id"].(string)
		if id == "" {
			logger.Log.WithField("event_id", event.ID).Warn("event without contribution id")
			if dlqProducer != nil {
				dlqProducer.PublishEvent(ctx, "contribution-poison", "processor-service", event.Data)
			}
			return nil
		}
		return proc.Run(ctx, id)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	consumers := make([]*kafka.Consumer, 0, cfg.ProcessorWorkers)
	for i := 0; i < cfg.ProcessorWorkers; i++ {
		consumer := kafka.NewConsumer(cfg.ContributionTopic, cfg.KafkaGroupID)
		consumers = append(consumers, consumer)
		group.Go(func() error {
			err := consumer.Consume(groupCtx, handler)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}

	go func() {
		ticker := time.NewTicker(cfg.ReaperInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				reaped, err := proc.ReapStuck(ctx, cfg.ProcessingTimeout)
				if err != nil {
					logger.Log.WithError(err).Warn("reaper pass failed")
				} else if reaped > 0 {
					logger.Log.WithField("count", reaped).Warn("reaped stuck contributions")
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sampleMetrics(ctx, contribRepo, recordRepo, auditRepo)
			case <-ctx.Done():
				return
			}
		}
	}()

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":    cfg.ServerHost,
			"port":    cfg.ServerPort,
			"workers": cfg.ProcessorWorkers,
		}).Info("Processor Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Processor Service...")
	cancel()

	for _, consumer := range consumers {
		consumer.Close()
	}
	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.Log.WithError(err).Error("consumer group exited with error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("failed to close postgres")
	}
	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Error("failed to close redis")
	}

	logger.Log.Info("Processor Service stopped")
}

func sampleMetrics(ctx context.Context, contribs *contribution.Repository, records *schedule.Repository, skips *audit.Repository) {
	counts, err := contribs.CountByStatus(ctx)
	if err != nil {
		logger.Log.WithError(err).Warn("metrics sampling failed")
		return
	}
	manual, err := contribs.CountManualReview(ctx)
	if err != nil {
		logger.Log.WithError(err).Warn("metrics sampling failed")
		return
	}
	metrics.ObserveContributionCounts(
		counts[contribution.StatusPending],
		counts[contribution.StatusProcessing],
		counts[contribution.StatusApproved],
		counts[contribution.StatusRejected],
		manual,
	)

	recordTotal, err := records.Count(ctx)
	if err != nil {
		logger.Log.WithError(err).Warn("metrics sampling failed")
		return
	}
	skipTotal, err := skips.Count(ctx)
	if err != nil {
		logger.Log.WithError(err).Warn("metrics sampling failed")
		return
	}
	metrics.ObserveScheduleCounts(recordTotal, skipTotal)
}
