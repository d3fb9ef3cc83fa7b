package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jbleroy75/boisson-api/internal/core/port"
	"github.com/jbleroy75/boisson-api/internal/infra/config"
	"github.com/jbleroy75/boisson-api/internal/infra/database"
	"github.com/jbleroy75/boisson-api/internal/infra/email"
	kafkainfra "github.com/jbleroy75/boisson-api/internal/infra/kafka"
	"github.com/jbleroy75/boisson-api/internal/infra/logger"
	redisinfra "github.com/jbleroy75/boisson-api/internal/infra/redis"
	"github.com/jbleroy75/boisson-api/internal/infra/security"
	postgresrepo "github.com/jbleroy75/boisson-api/internal/repository/postgres"
	redisrepo "github.com/jbleroy75/boisson-api/internal/repository/redis"
	"github.com/jbleroy75/boisson-api/internal/transport/http/middleware"
	"github.com/jbleroy75/boisson-api/internal/transport/http/routes"
	"github.com/jbleroy75/boisson-api/internal/usecase"
)

// Application owns the wired service graph and its lifecycle.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	consumer *kafkainfra.ConsumerGroup
}

// New wires configuration, storage, messaging, and HTTP transport together.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if err := database.Migrate(ctx, cfg.Postgres); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	var eventPublisher port.EventPublisher
	var producer *kafkainfra.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			producer = nil
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Hour
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), "boisson:rate-limit", rateLimitWindow*2)
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	var notifier port.Notifier
	if cfg.Email.APIKey != "" {
		notifier = email.NewResendClient(cfg.Email, log)
	} else {
		log.Info("email api key not configured, logging reset links instead")
		notifier = email.NewLoggingNotifier(log)
	}

	loyaltyService := usecase.NewLoyaltyService(repos.Loyalty, repos.Users, log).
		WithEventPublisher(eventPublisher)

	passwordResetService := usecase.NewPasswordResetService(repos.Users, repos.Tokens, notifier, security.DefaultPasswordValidator(), log).
		WithEventPublisher(eventPublisher).
		WithRateLimit(rateLimitStore, cfg.RateLimit.PasswordResetMaxAttempts, rateLimitWindow).
		WithResetBaseURL(cfg.Reset.BaseURL).
		WithTTL(cfg.Reset.TokenTTL)

	var consumer *kafkainfra.ConsumerGroup
	if len(cfg.Kafka.Brokers) > 0 {
		orderHandler := kafkainfra.NewOrderCompletedConsumer(loyaltyService, log)
		consumer, err = kafkainfra.NewConsumerGroup(cfg.Kafka, orderHandler, log)
		if err != nil {
			log.Warn("failed to init kafka consumer, order accrual disabled", zap.Error(err))
			consumer = nil
		}
	}

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	verifier := security.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Verifier:    verifier,
		Metrics:     metrics,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Loyalty:       loyaltyService,
			PasswordReset: passwordResetService,
		},
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
		consumer: consumer,
	}, nil
}

// Run starts the HTTP server and the order consumer, blocking until the
// context is cancelled or a component fails.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()

	consumerErrCh := make(chan error, 1)
	if a.consumer != nil {
		go func() {
			if err := a.consumer.Run(ctx); err != nil {
				consumerErrCh <- fmt.Errorf("run order consumer: %w", err)
			}
		}()
		defer func() {
			_ = a.consumer.Close()
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting boisson API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	case err := <-consumerErrCh:
		return err
	}
}
