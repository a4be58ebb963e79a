// ==============================================================================
// ONBOARDING SERVICE - cmd/onboard/main.go
// ==============================================================================
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"onboard/internal/draft"
	"onboard/internal/gateway"
	"onboard/internal/handler"
	"onboard/internal/identity"
	"onboard/internal/imagehost"
	"onboard/internal/metrics"
	"onboard/internal/middleware"
	"onboard/internal/repository/postgres"
	"onboard/internal/wizard"
	"onboard/pkg/cache"
	"onboard/pkg/config"
	"onboard/pkg/logger"
	"onboard/pkg/validator"
)

func main() {
	cfg := config.Load()
	log := logger.New("onboard-service")

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	// Connect to database
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Repositories
	distributorRepo := postgres.NewDistributorRepository(db)
	clientRepo := postgres.NewClientRepository(db)
	userRepo := postgres.NewUserRepository(db)

	images := imagehost.NewClient(imagehost.Config{
		BaseURL:      cfg.ImageHost.BaseURL,
		CloudName:    cfg.ImageHost.CloudName,
		UploadPreset: cfg.ImageHost.UploadPreset,
		MaxFileSize:  cfg.ImageHost.MaxFileSize,
		Timeout:      cfg.ImageHost.Timeout,
	}, nil, log)

	remote := gateway.New(distributorRepo, clientRepo, images, log)
	drafts := draft.NewRedisStore(cache.NewRedisCacheFromClient(redisClient), cfg.Wizard.DraftKeyPrefix, log)

	policy, err := wizard.PolicyByName(cfg.Wizard.Policy)
	if err != nil {
		log.Fatal("Invalid wizard policy", map[string]interface{}{"error": err.Error()})
	}
	manager := wizard.NewManager(remote, drafts, log, wizard.Options{
		Policy:  policy,
		IdleTTL: cfg.Wizard.SessionIdleTTL,
		Metrics: m,
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go manager.Run(ctx, cfg.Wizard.SweepInterval)

	identityService := identity.NewService(userRepo, log, identity.Options{
		JWTSecret:      cfg.JWT.Secret,
		JWTExpiry:      cfg.JWT.Expiration,
		GoogleClientID: cfg.Google.ClientID,
		Blacklist:      middleware.NewRedisTokenBlacklist(redisClient),
	})

	// Handlers
	val := validator.New()
	authMW := middleware.NewAuthMiddleware(identityService)
	idempotency := middleware.NewIdempotencyMiddleware(redisClient, cfg.Server.IdempotencyTTL, log)

	formHandler := handler.NewFormHandler(manager, val, log, cfg.ImageHost.MaxFileSize).WrapSubmit(idempotency.Replay)
	authHandler := handler.NewAuthHandler(identityService, val, log)
	systemHandler := handler.NewSystemHandler(map[string]handler.Pinger{
		"postgres": handler.PingFunc(db.PingContext),
		"redis": handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	}, manager, reg, log)

	// Setup router
	r := mux.NewRouter()

	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.NewLoggingMiddleware(log).Log)

	systemHandler.RegisterRoutes(r)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMW.Optional)
	api.Use(middleware.NewRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window, log).Limit)
	formHandler.RegisterRoutes(api)
	authHandler.RegisterRoutes(api, authMW)

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		log.Info("Onboarding service starting", map[string]interface{}{
			"port":   cfg.Server.Port,
			"policy": policy.Name(),
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...", nil)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Server stopped", map[string]interface{}{"live_sessions": manager.Len()})
}
