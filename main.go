package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"torashaout/internal/auth"
	"torashaout/internal/config"
	"torashaout/internal/database"
	"torashaout/internal/database/migrations"
	"torashaout/internal/kafka"
	"torashaout/internal/locks"
	"torashaout/internal/logger"
	"torashaout/internal/payment"
	"torashaout/internal/payment/payment_api"
	"torashaout/internal/payment/services"
	"torashaout/internal/server"
	"torashaout/internal/telemetry"
)

func runMigrations(cfg config.DatabaseConfig, log *logger.Logger) error {
	sqlDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	opts := migrations.DefaultOptions()
	opts.MigrationsDir = cfg.MigrationsDir

	runner := migrations.NewRunner(sqlDB, opts, log)
	defer runner.Close()
	return runner.RunMigrations()
}

func newVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) (auth.Verifier, error) {
	if cfg.OIDCIssuer != "" {
		log.Info("AUTH", fmt.Sprintf("verifying tokens against %s", cfg.OIDCIssuer))
		return auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID, cfg.RoleClaim)
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("set OIDC_ISSUER or JWT_SECRET")
	}
	log.Warn("AUTH", "using shared-secret HS256 tokens")
	return auth.NewHMACVerifier(cfg.JWTSecret, cfg.JWTIssuer), nil
}

// connectLocks uses Redis when it is reachable and falls back to in-process locks.
// The database constraints still guard payments either way.
func connectLocks(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (payment.Gate, locks.Locker, *redis.Client) {
	if cfg.Enabled {
		client, err := database.ConnectRedis(ctx, cfg, log)
		if err == nil {
			return locks.NewRedis(client, log), locks.NewRedsync(client), client
		}
		log.Warn("REDIS", fmt.Sprintf("%v; falling back to in-process locks", err))
	}
	local := locks.NewLocal()
	return local, local, nil
}

func paymentVerifiers(cfg config.StripeConfig, log *logger.Logger) (services.Verifier, payment_api.WebhookParser) {
	registry := services.NewRegistry()
	if cfg.SecretKey == "" {
		log.Warn("STRIPE", "STRIPE_SECRET_KEY not set, Stripe payments are not verified")
		return registry, nil
	}
	stripeService, err := services.NewStripeService(cfg.SecretKey, cfg.WebhookSecret, log)
	if err != nil {
		log.Error("STRIPE", err.Error())
		return registry, nil
	}
	registry.Register("stripe", stripeService)
	if cfg.WebhookSecret == "" {
		log.Warn("STRIPE", "STRIPE_WEBHOOK_SECRET not set, webhook endpoint disabled")
		return registry, nil
	}
	return registry, stripeService
}

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(logger.Options{Dir: cfg.Log.Dir, Service: "booking-service", Level: cfg.Log.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		log = logger.NewLogger()
	}
	defer log.Close()

	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	log.Info("APP", "Starting ToraShaout booking service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Warn("OTEL", fmt.Sprintf("tracing disabled: %v", err))
		shutdownTracer = func(context.Context) error { return nil }
	}

	if cfg.Database.AutoMigrate {
		if err := runMigrations(cfg.Database, log); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
	}

	db, err := database.OpenPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer db.Close()

	gate, locker, redisClient := connectLocks(ctx, cfg.Redis, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	producer := kafka.NewDisabledProducer(log)
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, kafka.AllTopics(cfg.Kafka.Topics), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.GatewayCallbacks, cfg.Kafka.GroupID, log)
	} else {
		log.Warn("KAFKA", "Kafka disabled, events are dropped")
	}
	defer producer.Close()

	verifier, err := newVerifier(ctx, cfg.Auth, log)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}
	paymentVerifier, webhooks := paymentVerifiers(cfg.Stripe, log)

	app := server.NewApp(server.Deps{
		Config:   cfg,
		DB:       db,
		Logger:   log,
		Verifier: verifier,
		Kafka:    producer,
		Gate:     gate,
		Locker:   locker,
		Payments: paymentVerifier,
		Webhooks: webhooks,
	})

	var reconcilerDone <-chan struct{}
	if cfg.Reconciler.Enabled {
		reconcilerDone, err = app.Reconciler.Start(ctx, cfg.Reconciler.Schedule)
		if err != nil {
			log.Fatal("RECONCILER", err.Error())
		}
	}

	consumerDone := make(chan struct{})
	if consumer != nil {
		go func() {
			defer close(consumerDone)
			if err := consumer.Start(ctx, app.HandleCallback); err != nil {
				log.Error("KAFKA", fmt.Sprintf("consumer stopped: %v", err))
			}
		}()
	} else {
		close(consumerDone)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      app.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		log.Info("HTTP", fmt.Sprintf("Booking service running on %s", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	<-ctx.Done()
	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}

	<-consumerDone
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("close consumer: %v", err))
		}
	}
	if reconcilerDone != nil {
		<-reconcilerDone
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("OTEL", fmt.Sprintf("flush traces: %v", err))
	}
	log.Info("APP", "Booking service shutdown complete")
}
