package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IgorGrieder/short-url/internal/config"
	"github.com/IgorGrieder/short-url/internal/infrastructure/logger"
	"github.com/IgorGrieder/short-url/internal/infrastructure/telemetry"
	kafkaMessaging "github.com/IgorGrieder/short-url/internal/messaging/kafka"
	"github.com/IgorGrieder/short-url/internal/processing/accounts"
	"github.com/IgorGrieder/short-url/internal/processing/links"
	"github.com/IgorGrieder/short-url/internal/session"
	"github.com/IgorGrieder/short-url/internal/storage"
	redisStorage "github.com/IgorGrieder/short-url/internal/storage/redis"
	httpTransport "github.com/IgorGrieder/short-url/internal/transport/http"
	"github.com/IgorGrieder/short-url/pkg/httpclient"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.App.Env, cfg.App.LogLevel,
		zap.String("service", cfg.App.Name),
		zap.String("version", cfg.App.Version),
	); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("env", cfg.App.Env),
		zap.String("storage", cfg.Storage.Backend),
	)

	ctx := context.Background()

	var shutdownTracer func(context.Context) error
	if cfg.OTel.Enabled {
		shutdownTracer, err = telemetry.InitTracer(ctx, cfg.OTel.Endpoint, cfg.App.Name, cfg.App.Version, cfg.App.Env)
		if err != nil {
			logger.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			logger.Info("OpenTelemetry tracer initialized", zap.String("endpoint", cfg.OTel.Endpoint))
		}
	}

	stores, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer stores.Close()

	healthChecks := map[string]httpTransport.HealthCheck{
		cfg.Storage.Backend: stores.Ping,
	}

	linkOpts := []links.Option{links.WithMaxAttempts(cfg.Shortener.MaxAttempts)}
	if cfg.Kafka.Enabled {
		publisher := kafkaMessaging.NewClickPublisher(
			kafkaMessaging.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic),
			cfg.Kafka.Topic,
			cfg.Kafka.PublishTimeout,
		)
		defer func() { _ = publisher.Close() }()
		linkOpts = append(linkOpts, links.WithClickPublisher(publisher))
		logger.Info("Click events routed to Kafka", zap.String("topic", cfg.Kafka.Topic))
	}

	linkSvc := links.NewService(stores.Links, links.NewCryptoCodeGenerator(), cfg.Shortener.ValidSchemes, linkOpts...)

	provider := accounts.NewOAuthProvider(accounts.OAuthProviderConfig{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURL:  cfg.OAuth.RedirectURL,
		AuthURL:      cfg.OAuth.AuthURL,
		TokenURL:     cfg.OAuth.TokenURL,
		ProfileURL:   cfg.OAuth.ProfileURL,
		Scopes:       cfg.OAuth.Scopes,
	}, httpclient.NewClient(httpclient.Options{
		Timeout:     10 * time.Second,
		MaxRetries:  0,
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
	}))
	accountSvc := accounts.NewService(stores.Accounts, provider, cfg.OAuth.AllowSignup)

	sessions, err := session.NewManager(session.Options{
		Secret: cfg.Session.Secret,
		TTL:    cfg.Session.TTL,
		Issuer: cfg.App.Name,
		Secure: cfg.Session.Secure,
	})
	if err != nil {
		logger.Fatal("Failed to initialize sessions", zap.Error(err))
	}

	routerOpts := httpTransport.DefaultRouterOptions()
	routerOpts.ServiceName = cfg.App.Name
	routerOpts.AllowedOrigins = cfg.Security.AllowedOrigins
	routerOpts.Links.BaseURL = cfg.Shortener.BaseURL
	routerOpts.Links.RedirectStatus = cfg.Shortener.RedirectStatus

	if cfg.Redis.Enabled {
		redisClient, err := redisStorage.Connect(ctx, redisStorage.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()

		routerOpts.CreateLimiter = redisStorage.NewFixedWindowLimiter(redisClient, "rl:create", time.Minute)
		routerOpts.CreateLimit = cfg.Security.CreateRatePerMinute
		routerOpts.LoginLimiter = redisStorage.NewFixedWindowLimiter(redisClient, "rl:login", time.Minute)
		routerOpts.LoginLimit = cfg.Security.LoginRatePerMinute
		healthChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	routerOpts.HealthChecks = healthChecks

	router := httpTransport.NewRouter(linkSvc, accountSvc, sessions, routerOpts)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", zap.Error(err))
		}
		if shutdownTracer != nil {
			_ = shutdownTracer(shutdownCtx)
		}
	}()

	logger.Info("Server starting",
		zap.String("port", cfg.Server.Port),
		zap.String("env", cfg.App.Env),
		zap.String("address", fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)),
		zap.Bool("signup_open", cfg.OAuth.AllowSignup),
	)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("Server error", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
