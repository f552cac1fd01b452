package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/playforge/iap-emulator/internal/catalog"
	"github.com/playforge/iap-emulator/internal/config"
	"github.com/playforge/iap-emulator/internal/engine"
	"github.com/playforge/iap-emulator/internal/events"
	"github.com/playforge/iap-emulator/internal/purchases"
	"github.com/playforge/iap-emulator/internal/repository/memory"
	"github.com/playforge/iap-emulator/internal/server"
	"github.com/playforge/iap-emulator/internal/timectrl"
	"github.com/playforge/iap-emulator/pkg/observability"
	"github.com/playforge/iap-emulator/pkg/timeutil"
	"github.com/playforge/iap-emulator/pkg/tokens"
)

func main() {
	// Load .env file if present (development convenience)
	_ = godotenv.Load()

	logger := initLogger()
	defer logger.Sync()

	logger.Info("Starting iap-emulator",
		zap.String("version", "0.1.0"),
	)

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	productsFile, err := config.LoadProducts(cfg.CatalogPath)
	if err != nil {
		logger.Fatal("Failed to load product catalog",
			zap.String("path", cfg.CatalogPath),
			zap.Error(err))
	}

	cat, err := catalog.New(productsFile.Definitions())
	if err != nil {
		logger.Fatal("Invalid product catalog", zap.Error(err))
	}
	logger.Info("Product catalog loaded",
		zap.String("package_name", productsFile.DefaultPackageName),
		zap.Int("products", cat.Len()))

	clock := timeutil.NewVirtualClock()
	subsStore := memory.NewSubscriptionStore()
	purchStore := memory.NewPurchaseStore()
	issuer := tokens.NewIssuer(productsFile.Emulator.TokenPrefix)

	rtdnEnabled := cfg.Notifications.Enabled
	if productsFile.Emulator.RTDNEnabled != nil {
		rtdnEnabled = *productsFile.Emulator.RTDNEnabled
	}

	var redisClient *redis.Client
	publishers := buildPublishers(cfg, &redisClient, logger)
	dispatcher := events.NewDispatcher(publishers, clock, cfg.Notifications.Subscription, rtdnEnabled, logger)

	eng := engine.NewEngine(subsStore, cat, dispatcher, clock, issuer, productsFile.DefaultPackageName, logger)
	manager := purchases.NewManager(purchStore, cat, dispatcher, clock, issuer, productsFile.DefaultPackageName, logger)
	controller := timectrl.NewController(clock, eng, subsStore, logger)

	app := server.NewApp(server.AppDependencies{
		Engine:         eng,
		Purchases:      manager,
		Controller:     controller,
		Catalog:        cat,
		SubsStore:      subsStore,
		PurchStore:     purchStore,
		Dispatcher:     dispatcher,
		DefaultPackage: productsFile.DefaultPackageName,
		Logger:         logger,
	})

	healthChecker := observability.NewHealthChecker()
	if redisClient != nil {
		client := redisClient
		healthChecker.Register("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(ctx).Err()
		})
	}
	metricsServer := observability.StartMetricsServer(fmt.Sprintf("%d", cfg.Server.MetricsPort), healthChecker, logger)
	logger.Info("Metrics server started", zap.Int("port", cfg.Server.MetricsPort))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		logger.Info("HTTP server listening", zap.String("addr", addr))
		return app.Listen(addr)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("Shutting down")

		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Warn("HTTP shutdown error", zap.Error(err))
		}
		if err := observability.ShutdownMetricsServer(metricsServer); err != nil {
			logger.Warn("Metrics shutdown error", zap.Error(err))
		}
		if redisClient != nil {
			redisClient.Close()
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Fatal("Server exited", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

// buildPublishers wires the configured RTDN sinks.
func buildPublishers(cfg *config.Config, redisClient **redis.Client, logger *zap.Logger) []events.Publisher {
	var publishers []events.Publisher

	if cfg.Notifications.WebhookURL != "" {
		publishers = append(publishers,
			events.NewWebhookPublisher(cfg.Notifications.WebhookURL, cfg.Notifications.WebhookSecret))
		logger.Info("Webhook publisher configured",
			zap.String("url", cfg.Notifications.WebhookURL))
	}

	if cfg.Notifications.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Notifications.RedisAddr})
		*redisClient = client
		publishers = append(publishers,
			events.NewRedisPublisher(client, cfg.Notifications.RedisChannel))
		logger.Info("Redis publisher configured",
			zap.String("addr", cfg.Notifications.RedisAddr),
			zap.String("channel", cfg.Notifications.RedisChannel))
	}

	return publishers
}

// initLogger initializes the logger
func initLogger() *zap.Logger {
	env := getEnv("ENVIRONMENT", "development")

	if env == "production" {
		zapCfg := zap.NewProductionConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		logger, _ := zapCfg.Build()
		return logger
	}

	logger, _ := zap.NewDevelopment()
	return logger
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
