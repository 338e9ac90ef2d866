package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/authcore/internal/auth"
	"github.com/BradenHooton/authcore/internal/background"
	"github.com/BradenHooton/authcore/internal/config"
	"github.com/BradenHooton/authcore/internal/database"
	"github.com/BradenHooton/authcore/internal/handlers"
	middlewareCustom "github.com/BradenHooton/authcore/internal/middleware"
	"github.com/BradenHooton/authcore/internal/repositories"
	"github.com/BradenHooton/authcore/internal/routes"
	"github.com/BradenHooton/authcore/internal/services"
	pkgauth "github.com/BradenHooton/authcore/pkg/auth"
	pkghttp "github.com/BradenHooton/authcore/pkg/http"
	pkglogger "github.com/BradenHooton/authcore/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("rate_limit_backend", cfg.Security.RateLimitBackend),
		slog.String("email_provider", cfg.Email.Provider),
	)

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Create the security core tables before serving anything
	bootstrapper := database.NewBootstrapper(db, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = bootstrapper.Ensure(ctx)
	cancel()
	if err != nil {
		logger.Error("failed to bootstrap security store", slog.Any("error", err))
		os.Exit(1)
	}

	// Rate limit buckets live in Postgres unless Redis is selected
	var buckets services.BucketStore
	switch cfg.Security.RateLimitBackend {
	case config.RateLimitBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		buckets = repositories.NewRedisRateLimitRepository(client)
	default:
		buckets = repositories.NewRateLimitRepository(db)
	}

	// Mailer
	var mailer services.Mailer
	switch cfg.Email.Provider {
	case "ses":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		sesMailer, err := services.NewSESMailer(ctx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		cancel()
		if err != nil {
			logger.Error("failed to initialize SES mailer", slog.Any("error", err))
			os.Exit(1)
		}
		mailer = sesMailer
	default:
		mailer = services.NewLogMailer(logger)
	}

	// Security core
	auditLogger := pkglogger.NewAuditLogger(logger)
	tokenStore := services.NewTokenStore(repositories.NewTokenRepository(db), logger)
	core := services.SecurityCore{
		Limiter: services.NewRateLimiter(buckets, logger),
		Tokens:  tokenStore,
		Events:  services.NewAuthEventRecorder(repositories.NewAuthEventRepository(db), auditLogger, logger),
		Devices: services.NewDeviceTracker(repositories.NewDeviceRepository(db), logger),
		Alerts:  services.NewAlertEngine(repositories.NewSecurityAlertRepository(db), auditLogger, logger),
	}

	policy := services.AuthPolicy{
		LoginMaxAttempts:         cfg.Security.LoginMaxAttempts,
		LoginWindow:              cfg.Security.LoginWindow,
		RegisterMaxAttempts:      cfg.Security.RegisterMaxAttempts,
		RegisterWindow:           cfg.Security.RegisterWindow,
		ForgotMaxAttempts:        cfg.Security.ForgotMaxAttempts,
		ForgotWindow:             cfg.Security.ForgotWindow,
		RequireEmailVerification: cfg.Security.RequireEmailVerification,
		CaptchaTTL:               cfg.Security.CaptchaTTL,
		VerificationCodeTTL:      cfg.Security.VerificationCodeTTL,
		ResetCodeTTL:             cfg.Security.ResetCodeTTL,
		CodeLength:               cfg.Security.CodeLength,
		CaptchaLength:            cfg.Security.CaptchaLength,
	}

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		MinDuration: cfg.Security.FailureMinDuration,
		Jitter:      cfg.Security.FailureJitter,
	})

	authService := services.NewAuthService(
		repositories.NewUserRepository(db),
		pkgauth.NewHasher(),
		core,
		mailer,
		policy,
		timingDelay,
		logger,
	)

	// Handlers
	clientIP := pkghttp.NewClientIPResolver(cfg.Server.TrustedProxies)
	authHandler := handlers.NewAuthHandler(authService, clientIP, logger)
	securityHandler := handlers.NewSecurityHandler(core.Devices, core.Events, core.Alerts, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(cfg.Server.AllowedOrigins))
	router.Use(middlewareCustom.SecureLogger(logger, clientIP))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Deps{
		AuthHandler:         authHandler,
		SecurityHandler:     securityHandler,
		Verifier:            auth.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
		ClientIP:            clientIP,
		IPRequestsPerMinute: cfg.Security.IPRequestsPerMinute,
	})

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if !bootstrapper.Ready() {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "not bootstrapped"})
			return
		}
		if err := db.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "down"})
			return
		}

		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "up"})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(tokenStore, logger, cfg.Security.CleanupInterval)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
