package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"neostack/eventservice/internal/authz"
	"neostack/eventservice/internal/broker"
	"neostack/eventservice/internal/handlers"
	"neostack/eventservice/internal/metrics"
	"neostack/eventservice/internal/publishers"
	"neostack/eventservice/pkg/auth"
	"neostack/eventservice/pkg/config"
	"neostack/eventservice/pkg/logging"
	"neostack/eventservice/pkg/monitoring"
	"neostack/eventservice/pkg/server"
)

const version = "1.0.0"

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("herald")

	// Load environment variables
	config.LoadEnv(logger)
	cfg := config.Load()

	logger.Info("Starting Herald (Event Gateway)")

	// Metrics registry
	serviceMetrics := metrics.New(logger)

	// Token service
	authService := auth.NewService(auth.Config{
		CredentialSecret: cfg.CredentialSecret,
		BrokerSecret:     cfg.BrokerSecret,
		CredentialExpiry: cfg.CredentialExpiry,
	})

	// Broker backend
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	redisURL := cfg.RedisURL
	if redisURL == "" {
		redisURL = fmt.Sprintf("redis://%s:%d", cfg.BrokerAddress, cfg.BrokerPort)
	}

	var brokerClient broker.Client
	switch strings.ToLower(cfg.BrokerBackend) {
	case "kafka":
		brokerClient = broker.NewKafkaBroker(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	case "redis":
		brokerClient = broker.NewRedisBroker(redisURL, logger)
	default:
		logger.WithField("backend", cfg.BrokerBackend).Fatal("Unknown broker backend")
	}

	// Publishers share the broker connection
	publisherSet := publishers.NewSet(brokerClient, serviceMetrics, logger)
	if err := publisherSet.Connect(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to connect to broker")
	}
	defer publisherSet.Close()

	// Rate limiter: Redis-backed when the broker already runs on Redis,
	// in-process otherwise.
	var limiter authz.RateLimiter
	if cfg.RateLimitEnabled {
		if strings.ToLower(cfg.BrokerBackend) == "redis" {
			opts, err := goredis.ParseURL(redisURL)
			if err != nil {
				logger.WithError(err).Fatal("Invalid redis url for rate limiter")
			}
			limiter = authz.NewRedisLimiter(goredis.NewClient(opts), cfg.RateLimitWindow, cfg.RateLimitMaxRequests)
		} else {
			limiter = authz.NewMemoryLimiter(cfg.RateLimitWindow, cfg.RateLimitMaxRequests)
		}
	}

	authorizer := authz.New(authz.Config{
		RateLimitEnabled: cfg.RateLimitEnabled,
	}, limiter, serviceMetrics, logger)

	// Health checks
	healthChecker := monitoring.NewHealthChecker("herald", version)
	healthChecker.AddCheck("broker", monitoring.BrokerHealthCheck(brokerClient))
	healthChecker.AddCheck("metrics", monitoring.MetricsHealthCheck(serviceMetrics.IsHealthy))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"BROKER_BACKEND": cfg.BrokerBackend,
		"PORT":           cfg.Port,
	}))

	// Sample process memory into the registry periodically
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		serviceMetrics.UpdateMemoryUsage()
		for range ticker.C {
			serviceMetrics.UpdateMemoryUsage()
		}
	}()

	// Router
	router := server.SetupRouter(logger)
	router.GET("/health", healthChecker.Handler())
	router.GET("/metrics", serviceMetrics.Handler())

	heraldHandlers := handlers.NewHeraldHandlers(authService, authorizer, publisherSet, serviceMetrics, logger)
	heraldHandlers.RegisterRoutes(router)

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("herald", cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
