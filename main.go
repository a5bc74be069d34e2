package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"friend-graph-service/internal/auth"
	"friend-graph-service/internal/config"
	"friend-graph-service/internal/db"
	grpcsvc "friend-graph-service/internal/grpc"
	"friend-graph-service/internal/handlers"
	"friend-graph-service/internal/logging"
	"friend-graph-service/internal/metrics"
	"friend-graph-service/internal/observability"
	"friend-graph-service/internal/rabbitmq"
	"friend-graph-service/internal/repositories"
	"friend-graph-service/internal/services"
	"friend-graph-service/internal/storage"
	"friend-graph-service/internal/telemetry"
)

func main() {
	cfg, envFile := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if envFile {
		logger.Debug("loaded configuration from .env")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	observability.InitMetrics(prometheus.DefaultRegisterer)
	metrics.RegisterFriendMetrics()

	store, journal, rdb, closeStore := openStore(cfg, logger)
	defer closeStore()

	revoked := openRevocationList(cfg, rdb, logger)

	publisher := rabbitmq.Open(cfg.AMQPURL, cfg.EventsExchange, logger)
	defer publisher.Close()
	auditPublisher := rabbitmq.Open(cfg.AMQPURL, cfg.LogsExchange, logger)
	defer auditPublisher.Close()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL, revoked)
	reconciler := services.NewReconciler(store, journal, publisher, logger)
	if pending, err := reconciler.Restore(ctx); err != nil {
		logger.WithError(err).Warn("warning: could not load pending repairs")
	} else if pending > 0 {
		logger.WithField("pending_repairs", pending).Info("restored pending repairs")
	}
	friendGraph := services.NewFriendGraphService(store, reconciler, publisher, logger)
	authService := services.NewAuthService(store, auth.NewPasswordHasher(cfg.BcryptCost), tokens, logger)
	userService := services.NewUserService(store)
	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, cfg.ServiceName, cfg.Environment, logger)

	go reconciler.Run(ctx, cfg.ReconcileInterval)

	if _, err := grpcsvc.StartGRPCServer(ctx, cfg.GRPCAddr, friendGraph, logger); err != nil {
		logger.WithError(err).Fatal("failed to start gRPC server")
	}

	if cfg.Environment != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := handlers.NewRouter(handlers.RouterConfig{
		Auth:    handlers.NewAuthHandler(authService, logger),
		Users:   handlers.NewUserHandler(userService, storage.NewPictureStore(cfg.UploadDir), logger),
		Friends: handlers.NewFriendHandler(friendGraph, auditEmitter, logger),
		Tokens:  tokens,
		Logger:  logger,
		Metrics: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown error")
	}
	if pending := reconciler.Pending(); len(pending) > 0 {
		logger.WithField("pending_repairs", len(pending)).Warn("warning: shutting down with unrepaired friend relationships; they stay in the repair journal")
	}
}

// openStore returns the configured account store, the repair journal kept next to it and,
// for the redis backend, the client both run on.
func openStore(cfg *config.Config, logger *logrus.Logger) (repositories.AccountStore, repositories.RepairStore, *redis.Client, func()) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		rdb, err := db.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to Redis")
		}
		logger.WithField("addr", cfg.RedisAddr).Info("using redis account store")
		return repositories.NewRedisAccountRepository(rdb), repositories.NewRedisRepairRepository(rdb), rdb, func() { rdb.Close() }
	case config.BackendMemory:
		logger.Warn("warning: using in-memory account store; data is lost on restart")
		return repositories.NewMemoryAccountRepository(), repositories.NewMemoryRepairRepository(), nil, func() {}
	default:
		database, err := db.Connect(cfg.DatabaseDSN)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to database")
		}
		logger.Info("using postgres account store")
		return repositories.NewAccountRepository(database), repositories.NewRepairRepository(database), nil, func() { database.Close() }
	}
}

// openRevocationList prefers Redis so logouts hold across instances, and falls back to
// process memory when Redis is unreachable.
func openRevocationList(cfg *config.Config, rdb *redis.Client, logger *logrus.Logger) auth.RevocationList {
	if rdb != nil {
		return auth.NewRedisRevocationList(rdb)
	}
	if cfg.StoreBackend != config.BackendMemory {
		client, err := db.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err == nil {
			return auth.NewRedisRevocationList(client)
		}
		logger.WithError(err).Warn("warning: token revocation falls back to process memory")
	}
	return auth.NewMemoryRevocationList()
}
