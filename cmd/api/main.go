package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/readbook-app/readbook-api/internal/auth"
	"github.com/readbook-app/readbook-api/internal/book"
	"github.com/readbook-app/readbook-api/internal/config"
	"github.com/readbook-app/readbook-api/internal/database"
	"github.com/readbook-app/readbook-api/internal/email"
	httpServer "github.com/readbook-app/readbook-api/internal/http"
	"github.com/readbook-app/readbook-api/internal/logging"
	"github.com/readbook-app/readbook-api/internal/middleware"
	"github.com/readbook-app/readbook-api/internal/ratelimit"
	"github.com/readbook-app/readbook-api/internal/user"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
	)

	// Initialize Firebase clients
	ctx := context.Background()
	fb, err := database.NewClient(ctx, &cfg.Firebase)
	if err != nil {
		return fmt.Errorf("failed to initialize firebase: %w", err)
	}

	// Initialize Redis connection
	redisClient, err := initRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisClient.Close()

	// Initialize repositories
	userRepo := user.NewRepository(fb.DB)
	bookRepo := book.NewRepository(fb.DB)
	otpStore := auth.NewOTPStore(auth.NewRTDBOTPRecords(fb.DB), &cfg.OTP)

	// Initialize rate limiter
	rateLimiter := ratelimit.NewLimiter(redisClient)

	// Initialize token service with Redis-backed refresh sessions
	sessionStore := auth.NewRedisSessionStore(redisClient)
	tokenService := auth.NewTokenService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenDuration,
		cfg.Auth.RefreshTokenDuration,
		sessionStore,
	)

	// Initialize email service
	emailService := email.NewService(&cfg.Email)

	// Initialize identity provider adapter
	identityProvider := auth.NewFirebaseIdentityProvider(fb.Auth)

	// Initialize auth service
	authService := auth.NewService(
		userRepo,
		otpStore,
		tokenService,
		identityProvider,
		emailService,
		logger,
	)

	// Initialize HTTP handlers
	authHandler := auth.NewHandler(authService, rateLimiter, logger)
	userHandler := user.NewHandler(userRepo, bookRepo, identityProvider, logger)
	authMiddleware := middleware.NewMiddleware(tokenService)

	// Initialize router
	router := httpServer.NewRouter(cfg, authHandler, userHandler, authMiddleware, logger)

	// Initialize HTTP server
	serverAddr := ":" + cfg.Server.Port
	server := httpServer.NewServer(
		serverAddr,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received shutdown signal", "signal", sig.String())

		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
