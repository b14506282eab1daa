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

	"storefront-service/config"
	"storefront-service/internal/api"
	"storefront-service/internal/broker"
	"storefront-service/internal/cache"
	"storefront-service/internal/redisclient"
	"storefront-service/internal/service"
	"storefront-service/internal/store"
	"storefront-service/internal/util"
	"storefront-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel, "api"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service")

	tp, err := util.InitTracer("api", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	readiness := map[string]api.Pinger{"postgres": db}

	var (
		counters    service.TrafficCounters
		reportCache service.ReportCache
	)
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Redis connected")

		counters = redisClient
		reportCache = redisClient
		readiness["redis"] = redisClient
	} else {
		counters = cache.NewTrafficCounters()
		logger.Warn("Redis disabled, traffic counters kept in memory and flushed in process",
			zap.Duration("interval", cfg.Analytics.FlushInterval))
	}

	tracker := service.NewTrafficTracker(db, counters, cfg.Analytics.SessionTimeout)
	recorder := service.NewAnalyticsRecorder(db, tracker, service.RecorderOptions{
		CountSignupAsNew:     cfg.Analytics.CountSignupAsNew,
		CountFirstOrderAsNew: cfg.Analytics.CountFirstOrderAsNew,
	})

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var sink service.EventSink = recorder
	var analyticsWorker *worker.AnalyticsWorker
	if cfg.Analytics.Async {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		sink = broker.NewAnalyticsPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
		analyticsWorker = worker.NewAnalyticsWorker(consumer, recorder, db)
		go func() {
			if err := analyticsWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Analytics worker error", zap.Error(err))
			}
		}()
	}

	if !cfg.Redis.Enabled {
		flusher := service.NewTrafficFlusher(counters, db, nil)
		go runFlushLoop(workerCtx, flusher, cfg.Analytics.FlushInterval, logger)
	}

	discounts := service.NewDiscountEngine(db, sink, cfg.Business.ClampPercentageDiscount)
	checkout := service.NewCheckoutService(db, db, discounts, sink)
	catalog := service.NewCatalogService(db, sink)
	reports := service.NewReportService(db, reportCache, cfg.Analytics.ReportCacheTTL)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Options{
		Discounts:         discounts,
		Checkout:          checkout,
		Catalog:           catalog,
		Reports:           reports,
		Sink:              sink,
		Readiness:         readiness,
		UntrackedPrefixes: cfg.Analytics.TrackedPathPrefixSkip,
		CheckoutTimeout:   time.Duration(cfg.Business.CheckoutTimeoutSeconds) * time.Second,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	var metricsSrv *http.Server
	if port := cfg.Observ.PrometheusPort; port != "" && port != cfg.Server.Port {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: fmt.Sprintf(":%s", port), Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server stopped", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	workerCancel()
	if analyticsWorker != nil {
		if err := analyticsWorker.Stop(); err != nil {
			logger.Warn("Failed to stop analytics worker", zap.Error(err))
		}
	}

	if !cfg.Redis.Enabled {
		// final flush so in-memory counts are not lost on exit
		flusher := service.NewTrafficFlusher(counters, db, nil)
		if _, err := flusher.Flush(shutdownCtx, time.Now()); err != nil {
			logger.Error("Final traffic flush failed", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

func runFlushLoop(ctx context.Context, flusher *service.TrafficFlusher, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := flusher.Flush(ctx, now); err != nil {
				logger.Error("Traffic flush failed", zap.Error(err))
			}
		}
	}
}
