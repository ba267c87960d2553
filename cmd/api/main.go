package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/auth"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/background"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/config"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/database"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/handlers"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/metrics"
	middlewareCustom "github.com/JPdumas08/WebDev1.2-sub001/internal/middleware"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/repositories"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/routes"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/services"
	pkgauth "github.com/JPdumas08/WebDev1.2-sub001/pkg/auth"
	pkghttp "github.com/JPdumas08/WebDev1.2-sub001/pkg/http"
	pkglogger "github.com/JPdumas08/WebDev1.2-sub001/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("session_backend", cfg.Session.Backend),
		slog.String("throttle_scope", cfg.Auth.ThrottleScope),
	)

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid trusted proxy list", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize database
	db, err := database.NewConnection(context.Background(), &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient, err = connectRedis(cfg.Redis)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer redisClient.Close()
		logger.Info("redis connected", slog.String("addr", cfg.Redis.Addr))
	}

	// Session store
	var sessionStore auth.SessionStore
	var cleanupManager *background.CleanupManager
	switch cfg.Session.Backend {
	case config.BackendRedis:
		sessionStore = repositories.NewRedisSessionStore(redisClient, cfg.Redis.KeyPrefix)
	default:
		memoryStore := repositories.NewMemorySessionStore()
		cleanupManager = background.NewCleanupManager(memoryStore, logger, cfg.Session.CleanupInterval)
		sessionStore = memoryStore
	}

	sessionManager := auth.NewSessionManager(sessionStore, auth.SessionConfig{
		IdleTimeout:  cfg.Session.IdleTimeout,
		Retention:    cfg.Session.Retention,
		StoreTimeout: cfg.Session.StoreTimeout,
	}, logger)

	fingerprinter := auth.NewFingerprinter(auth.FingerprintConfig{
		Headers:         cfg.Session.FingerprintHeaders,
		IncludeIPSubnet: cfg.Session.FingerprintIPSubnet,
		IPConfig:        ipConfig,
	})

	cookieConfig := auth.CookieConfig{
		Name:     cfg.Session.CookieName,
		Domain:   cfg.Session.CookieDomain,
		Secure:   cfg.Session.CookieSecure,
		SameSite: cfg.Session.CookieSameSite,
	}

	// Login throttle
	throttle := auth.NewThrottle(auth.ThrottleConfig{
		MaxAttempts: cfg.Auth.MaxAttempts,
		Window:      cfg.Auth.AttemptWindow,
	}, logger)

	var attempts services.AttemptStoreResolver = services.SessionScopedAttempts
	if cfg.Auth.ThrottleScope == config.ThrottleScopeGlobal {
		attempts = services.GlobalAttempts(repositories.NewRedisAttemptStore(
			redisClient, cfg.Redis.KeyPrefix, cfg.Auth.AttemptWindow, cfg.Redis.OpTimeout,
		))
	}

	// Initialize security services
	auditLogger := pkglogger.NewAuditLogger(logger)
	appMetrics := metrics.New()
	csrfManager := auth.NewCSRFTokenManager(cfg.Auth.CSRFSecret, cfg.Auth.CSRFTokenTTL)
	sanitizer := auth.NewRedirectSanitizer(cfg.Redirect.DefaultTarget, cfg.Redirect.PageExtension)

	accountRepo := repositories.NewAccountRepository(db)
	verifier := services.NewCredentialVerifier(accountRepo, services.VerifierConfig{
		LookupTimeout: cfg.Auth.LookupTimeout,
		HashCost:      cfg.Auth.BcryptCost,
	}, logger)

	authService := services.NewAuthService(verifier, throttle, attempts, sessionManager, sanitizer, csrfManager, logger, auditLogger)
	authService.SetMetrics(appMetrics)
	authService.SetFailureDelay(auth.NewFailureDelay(cfg.Auth.FailureDelayFloor, cfg.Auth.FailureDelayJitter))
	authService.SetLogoutDenylist(cfg.Auth.LogoutDenylist)

	guard := auth.NewSessionGuard(sessionManager, fingerprinter, cookieConfig, cfg.Server.LoginPath, logger)
	guard.SetMetrics(appMetrics)
	guard.SetAuditLogger(auditLogger, ipConfig)

	authHandler := handlers.NewAuthHandler(authService, fingerprinter, cookieConfig, ipConfig, logger)

	// Bootstrap first account if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminAccount(ctx, cfg.Admin, cfg.Auth.BcryptCost, accountRepo, auditLogger, logger); err != nil {
		logger.Error("failed to ensure admin account", slog.Any("error", err))
	}
	cancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	rateLimitConfig := middlewareCustom.DefaultLoginRateLimit()
	rateLimitConfig.RequestsPerMinute = cfg.Auth.LoginRequestsPerMinute
	rateLimitConfig.IPConfig = ipConfig
	rateLimitConfig.Logger = logger

	routes.RegisterRoutes(router, authHandler, guard, rateLimitConfig, db, appMetrics)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	if cleanupManager != nil {
		go cleanupManager.Start(cleanupCtx)
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	if cleanupManager != nil {
		cleanupManager.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func connectRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}
	return client, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ensureAdminAccount creates the first account if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminAccount(
	ctx context.Context,
	admin config.AdminConfig,
	bcryptCost int,
	accounts *repositories.AccountRepository,
	auditLogger *pkglogger.AuditLogger,
	logger *slog.Logger,
) error {
	if !admin.Enabled() {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin account creation")
		return nil
	}

	if err := pkgauth.ValidatePassword(admin.Password); err != nil {
		return fmt.Errorf("admin password rejected: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(admin.Password, bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	created, err := accounts.Create(ctx, &models.Account{
		Email:        admin.Email,
		Username:     admin.Username,
		PasswordHash: hashedPassword,
	})
	if errors.Is(err, models.ErrConflict) {
		logger.Info("admin account already exists")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}

	auditLogger.LogAccountAction(pkglogger.EventAccountCreated, created.ID, map[string]string{"source": "bootstrap"})
	logger.Info("admin account created successfully")
	return nil
}
