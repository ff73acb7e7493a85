package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ms-tableside/internal/api"
	"ms-tableside/internal/auth"
	"ms-tableside/internal/billing"
	billingdb "ms-tableside/internal/billing/db"
	billingredis "ms-tableside/internal/billing/redis"
	"ms-tableside/internal/bus"
	"ms-tableside/internal/config"
	"ms-tableside/internal/database"
	"ms-tableside/internal/database/migrations"
	"ms-tableside/internal/kafka"
	"ms-tableside/internal/logger"
	"ms-tableside/internal/notify"
	"ms-tableside/internal/order"
	orderdb "ms-tableside/internal/order/db"
	"ms-tableside/internal/tables"
	tablesdb "ms-tableside/internal/tables/db"
	"ms-tableside/internal/utils"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.App.ServiceName, cfg.App.LogDir, logger.ParseLevel(cfg.App.LogLevel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	log.Info("APP", "Starting tableside service initialization")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("APP", err.Error())
	}
	log.Info("APP", "✅ Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB.DB, log)
		if err := runner.Up(); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		_ = runner.Close()
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection error: %w", err)
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, cfg.Redis.DB))

	verifier, err := newVerifier(ctx, cfg.Auth, log)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	broker := bus.NewBroker(cfg.Bus.BufferSize)
	broker.OnDrop(func(m bus.Message) {
		log.Warn("BUS", fmt.Sprintf("dropped %s on %s for a slow subscriber", m.Event, m.Topic))
	})
	publisher, err := newPublisher(ctx, g, cfg, broker, redisClient, log)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(publisher, log)

	registry := tables.NewRegistry(&tablesdb.DB{Bun: bunDB}, dispatcher, tables.NewQRGenerator(cfg.App.CustomerAppURL), cfg.Session.TTL, log)
	orderService := order.NewOrderService(&orderdb.DB{Bun: bunDB}, registry, dispatcher, log)
	billingService := billing.NewService(
		&billingdb.DB{Bun: bunDB},
		registry,
		billingredis.NewLocker(redisClient, cfg.Billing.LockTTL, log),
		dispatcher,
		log,
	)

	handler := api.NewHandler(registry, orderService, billingService, broker, log)
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      api.NewRouter(handler, verifier, cfg.Server.AllowedOrigins, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		log.Info("HTTP", fmt.Sprintf("🚀 Tableside service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
		}
		return nil
	})

	return g.Wait()
}

func newVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) (auth.Verifier, error) {
	if cfg.OIDCIssuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
		if err != nil {
			return nil, err
		}
		log.Info("AUTH", fmt.Sprintf("Verifying staff tokens against %s", cfg.OIDCIssuer))
		return v, nil
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("either OIDC_ISSUER or JWT_SECRET must be set")
	}
	log.Info("AUTH", "Verifying staff tokens with the shared JWT secret")
	return auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}, nil
}

// newPublisher picks the bus backend. With a relay every instance, this one included, hears
// events only through the relay, so each message is delivered locally exactly once.
func newPublisher(ctx context.Context, g *errgroup.Group, cfg *config.Config, broker *bus.Broker, client *redis.Client, log *logger.Logger) (bus.Publisher, error) {
	switch cfg.Bus.Backend {
	case "", "local":
		log.Info("BUS", "Using in-process event bus")
		return broker, nil

	case "redis":
		relay := bus.NewRedisRelay(client, cfg.Bus.RedisChannel, broker, log)
		g.Go(func() error { return relay.Run(ctx) })
		select {
		case <-relay.Ready():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		log.Info("BUS", fmt.Sprintf("Relaying events through redis channel %s", cfg.Bus.RedisChannel))
		return relay, nil

	case "kafka":
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.EventsTopic}, 1, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		// Each instance needs its own group so that all instances receive every event.
		groupID := fmt.Sprintf("%s-%s", cfg.Kafka.GroupPrefix, utils.NewID())
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, groupID, broker, log)
		g.Go(func() error {
			defer producer.Close()
			defer consumer.Close()
			return consumer.Run(ctx)
		})
		log.Info("BUS", fmt.Sprintf("Relaying events through kafka topic %s (group %s)", cfg.Kafka.EventsTopic, groupID))
		return producer, nil

	default:
		return nil, fmt.Errorf("unknown BUS_BACKEND %q", cfg.Bus.Backend)
	}
}
