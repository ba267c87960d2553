package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session and throttle storage backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	ThrottleScopeSession = "session"
	ThrottleScopeGlobal  = "global"
)

var defaultLogoutDenylist = []string{"account.php", "orders.php", "checkout.php", "profile.php", "admin/"}

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Session  SessionConfig
	Auth     AuthConfig
	Redirect RedirectConfig
	Redis    RedisConfig
	Admin    AdminConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port            string
	Env             string
	LogLevel        string
	LoginPath       string
	TrustedProxies  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type SessionConfig struct {
	Backend             string
	CookieName          string
	CookieDomain        string
	CookieSecure        bool
	CookieSameSite      string
	IdleTimeout         time.Duration
	Retention           time.Duration
	StoreTimeout        time.Duration
	CleanupInterval     time.Duration
	FingerprintHeaders  []string
	FingerprintIPSubnet bool
}

type AuthConfig struct {
	CSRFSecret             string
	CSRFTokenTTL           time.Duration
	MaxAttempts            int
	AttemptWindow          time.Duration
	ThrottleScope          string
	LookupTimeout          time.Duration
	BcryptCost             int
	FailureDelayFloor      time.Duration
	FailureDelayJitter     time.Duration
	LoginRequestsPerMinute int
	LogoutDenylist         []string
}

type RedirectConfig struct {
	DefaultTarget string
	PageExtension string
}

// RedisConfig is used by the redis session backend and the global throttle scope
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	OpTimeout time.Duration
}

// AdminConfig seeds a first account at startup when all fields are set
type AdminConfig struct {
	Email    string
	Username string
	Password string
}

func (a AdminConfig) Enabled() bool {
	return a.Email != "" && a.Password != ""
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	csrfSecret := getEnv("CSRF_SECRET", "")
	if csrfSecret == "" {
		return nil, fmt.Errorf("CSRF_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: loadDatabaseConfig(),
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Env:             env,
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			LoginPath:       getEnv("LOGIN_PATH", "/login.php"),
			TrustedProxies:  getEnvAsList("TRUSTED_PROXIES", nil),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Session: SessionConfig{
			Backend:             strings.ToLower(getEnv("SESSION_BACKEND", BackendMemory)),
			CookieName:          getEnv("SESSION_COOKIE_NAME", "sid"),
			CookieDomain:        getEnv("SESSION_COOKIE_DOMAIN", ""),
			CookieSecure:        getEnvAsBool("SESSION_COOKIE_SECURE", env == "production"),
			CookieSameSite:      getEnv("SESSION_COOKIE_SAMESITE", "lax"),
			IdleTimeout:         getEnvAsDuration("SESSION_IDLE_TIMEOUT", 7200*time.Second),
			Retention:           getEnvAsDuration("SESSION_RETENTION", 0),
			StoreTimeout:        getEnvAsDuration("SESSION_STORE_TIMEOUT", 2*time.Second),
			CleanupInterval:     getEnvAsDuration("SESSION_CLEANUP_INTERVAL", 10*time.Minute),
			FingerprintHeaders:  getEnvAsList("SESSION_FINGERPRINT_HEADERS", []string{"User-Agent"}),
			FingerprintIPSubnet: getEnvAsBool("SESSION_FINGERPRINT_IP_SUBNET", false),
		},
		Auth: AuthConfig{
			CSRFSecret:             csrfSecret,
			CSRFTokenTTL:           getEnvAsDuration("CSRF_TOKEN_TTL", time.Hour),
			MaxAttempts:            getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
			AttemptWindow:          getEnvAsDuration("LOGIN_ATTEMPT_WINDOW", 900*time.Second),
			ThrottleScope:          strings.ToLower(getEnv("LOGIN_THROTTLE_SCOPE", ThrottleScopeSession)),
			LookupTimeout:          getEnvAsDuration("ACCOUNT_LOOKUP_TIMEOUT", 3*time.Second),
			BcryptCost:             getEnvAsInt("BCRYPT_COST", 12),
			FailureDelayFloor:      getEnvAsDuration("LOGIN_FAILURE_DELAY", 250*time.Millisecond),
			FailureDelayJitter:     getEnvAsDuration("LOGIN_FAILURE_JITTER", 100*time.Millisecond),
			LoginRequestsPerMinute: getEnvAsInt("LOGIN_REQUESTS_PER_MINUTE", 20),
			LogoutDenylist:         getEnvAsList("LOGOUT_DENYLIST", defaultLogoutDenylist),
		},
		Redirect: RedirectConfig{
			DefaultTarget: getEnv("REDIRECT_DEFAULT_TARGET", "index.php"),
			PageExtension: getEnv("REDIRECT_PAGE_EXTENSION", ".php"),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "shop"),
			OpTimeout: getEnvAsDuration("REDIS_OP_TIMEOUT", 500*time.Millisecond),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Username: getEnv("ADMIN_USERNAME", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateCSRFSecret(csrfSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDatabase reads only the account store settings (used by the migrate command)
func LoadDatabase() (*DatabaseConfig, error) {
	_ = godotenv.Load()

	cfg := loadDatabaseConfig()
	if cfg.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	return &cfg, nil
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:              getEnv("DB_HOST", "localhost"),
		Port:              getEnvAsInt("DB_PORT", 5432),
		User:              getEnv("DB_USER", "postgres"),
		Password:          getEnv("DB_PASSWORD", ""),
		Name:              getEnv("DB_NAME", "shop"),
		SSLMode:           getEnv("DB_SSLMODE", "disable"),
		MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
		MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
		MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
		HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
	}
}

func (c *Config) validate() error {
	switch c.Session.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("SESSION_BACKEND must be %q or %q (got %q)", BackendMemory, BackendRedis, c.Session.Backend)
	}

	switch c.Auth.ThrottleScope {
	case ThrottleScopeSession, ThrottleScopeGlobal:
	default:
		return fmt.Errorf("LOGIN_THROTTLE_SCOPE must be %q or %q (got %q)", ThrottleScopeSession, ThrottleScopeGlobal, c.Auth.ThrottleScope)
	}

	if c.Auth.MaxAttempts <= 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive")
	}
	if c.Auth.AttemptWindow <= 0 {
		return fmt.Errorf("LOGIN_ATTEMPT_WINDOW must be positive")
	}
	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}

	if c.Redirect.DefaultTarget == "" || strings.Contains(c.Redirect.DefaultTarget, "://") || strings.HasPrefix(c.Redirect.DefaultTarget, "//") {
		return fmt.Errorf("REDIRECT_DEFAULT_TARGET must be a relative path")
	}

	if c.Server.Env == "production" && !c.Session.CookieSecure {
		return fmt.Errorf("SESSION_COOKIE_SECURE cannot be disabled in production")
	}

	return nil
}

// validateCSRFSecret enforces minimum security standards for the anti-forgery signing key
func validateCSRFSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("CSRF_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("CSRF_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// NeedsRedis reports whether any configured store lives in Redis
func (c *Config) NeedsRedis() bool {
	return c.Session.Backend == BackendRedis || c.Auth.ThrottleScope == ThrottleScopeGlobal
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsList splits a comma-separated value, dropping empty entries
func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
