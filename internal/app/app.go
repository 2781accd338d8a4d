// Package app собирает сервис клиентских сессий витрины: хранилища,
// исходящую очередь синхронизации корзины, HTTP API и метрики.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/api"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/identity"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/remote"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/session"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const shutdownTimeout = 5 * time.Second

func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(logger)

	sessionMetrics := metrics.NewSessionMetrics()
	outboxMetrics := metrics.NewOutboxMetrics()
	httpMetrics := metrics.NewHTTPMetrics()

	// Kafka опциональна: без неё нет DLQ и потока событий
	kafkaProducer, _ := initKafkaProducer(cfg.Brokers(), cfg.KafkaClientID, logger)
	defer closeKafka(kafkaProducer, logger)

	publisher, err := buildMirrorPublisher(cfg, kafkaProducer, identity.NewTokenStore(deps.kv), logger)
	if err != nil {
		return err
	}

	var mirror domain.MirrorQueue
	if publisher != nil {
		mirror = deps.outboxRepo
	} else {
		logger.Warn("remote cart mirroring is disabled: neither remote api nor kafka events topic is configured")
	}

	registry, err := session.NewRegistry(cfg.SessionCacheSize, session.Deps{
		KV:      deps.kv,
		Mirror:  mirror,
		Metrics: sessionMetrics,
		Logger:  log.WithField("component", "session"),
	})
	if err != nil {
		return err
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	for name, checker := range deps.checkers {
		healthHandler.RegisterChecker(name, checker)
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	if publisher != nil {
		workerOpts := []outbox.Option{
			outbox.WithLogger(log.WithField("component", "outbox-worker")),
			outbox.WithMetrics(outboxMetrics),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		}
		if kafkaProducer != nil {
			workerOpts = append(workerOpts, outbox.WithDLQPublisher(kafka.NewDLQPublisher(kafkaProducer, cfg.KafkaDLQTopic)))
		}
		worker := outbox.NewWorker(deps.outboxRepo, publisher, workerOpts...)
		go func() {
			defer close(workerDone)
			worker.Run(workerCtx)
		}()
	} else {
		close(workerDone)
	}
	defer func() {
		stopWorker()
		<-workerDone
	}()

	apiSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(registry, api.Options{
			Logger:         log.WithField("component", "http-api"),
			Metrics:        httpMetrics,
			AllowedOrigins: cfg.AllowedOrigins(),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// buildMirrorPublisher выбирает, куда worker доставляет события корзины:
// в удалённый API, в Kafka или в оба (Kafka вторым, без влияния на результат).
// Токен для удалённого API берётся из tokens в момент доставки.
func buildMirrorPublisher(cfg Config, producer *kafka.Producer, tokens remote.TokenSource, logger *log.Entry) (domain.OutboxPublisher, error) {
	var events domain.OutboxPublisher
	if producer != nil && cfg.KafkaEventsTopic != "" {
		events = kafka.NewOutboxPublisher(producer, cfg.KafkaEventsTopic)
	}

	if cfg.RemoteBaseURL == "" {
		if events == nil {
			return nil, nil
		}
		return events, nil
	}

	client, err := remote.NewClient(cfg.RemoteBaseURL, cfg.RemoteTimeout)
	if err != nil {
		return nil, fmt.Errorf("create remote cart client: %w", err)
	}
	primary := remote.NewPublisher(client, tokens)
	if events == nil {
		return primary, nil
	}
	return &teePublisher{primary: primary, secondary: events, logger: logger}, nil
}

// teePublisher публикует в primary; копия в secondary best-effort.
type teePublisher struct {
	primary   domain.OutboxPublisher
	secondary domain.OutboxPublisher
	logger    *log.Entry
}

func (p *teePublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if err := p.primary.Publish(ctx, event); err != nil {
		return err
	}
	if err := p.secondary.Publish(ctx, event); err != nil {
		p.logger.WithError(err).WithField("outbox_id", event.ID).Warn("failed to copy cart event to stream")
	}
	return nil
}

// startMetricsServer запускает HTTP-обработчик /metrics и health checks.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
