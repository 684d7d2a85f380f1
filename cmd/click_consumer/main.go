package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/IgorGrieder/short-url/internal/config"
	"github.com/IgorGrieder/short-url/internal/infrastructure/logger"
	"github.com/IgorGrieder/short-url/internal/infrastructure/telemetry"
	kafkaMessaging "github.com/IgorGrieder/short-url/internal/messaging/kafka"
	"github.com/IgorGrieder/short-url/internal/processing/links"
	"github.com/IgorGrieder/short-url/internal/storage"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	serviceName := fmt.Sprintf("%s-click-consumer", cfg.App.Name)
	if err := logger.Init(cfg.App.Env, cfg.App.LogLevel,
		zap.String("service", serviceName),
		zap.String("version", cfg.App.Version),
	); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTel.Enabled {
		shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTel.Endpoint, serviceName, cfg.App.Version, cfg.App.Env)
		if err != nil {
			logger.Warn("failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			logger.Info("OpenTelemetry tracer initialized",
				zap.String("endpoint", cfg.OTel.Endpoint),
				zap.String("service", serviceName),
			)
			defer func() {
				if err := shutdownTracer(context.Background()); err != nil {
					logger.Warn("failed to shutdown tracer", zap.Error(err))
				}
			}()
		}
	}

	stores, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer stores.Close()

	// Clicks are applied straight to the store; the service has no publisher
	// here so ApplyClick never loops back onto the topic.
	linkSvc := links.NewService(stores.Links, links.NewCryptoCodeGenerator(), cfg.Shortener.ValidSchemes)

	clientID := config.GetEnv("KAFKA_CLIENT_ID", config.DefaultWorkerID("click-consumer"))
	reader := kafkaMessaging.NewReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, clientID, cfg.Kafka.FetchMaxWait)
	consumer := kafkaMessaging.NewClickConsumer(reader, linkSvc, kafkaMessaging.ConsumerOptions{
		OperationTimeout: cfg.Kafka.OperationTimeout,
		Backoff:          cfg.Kafka.ConsumeBackoff,
	})
	defer func() {
		if err := consumer.Close(); err != nil {
			logger.Warn("failed to close kafka reader", zap.Error(err))
		}
	}()

	logger.Info("click consumer started",
		zap.Strings("kafka_brokers", cfg.Kafka.Brokers),
		zap.String("kafka_topic", cfg.Kafka.Topic),
		zap.String("kafka_group", cfg.Kafka.GroupID),
		zap.String("client_id", clientID),
	)

	if err := consumer.Run(ctx); err != nil {
		logger.Error("click consumer stopped with error", zap.Error(err))
		return
	}
	logger.Info("click consumer stopping")
}
