package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings of both binaries. The identity backend reads
// HTTP, Database, Redis, JWT, Buffer, Migrations and Auth; the portal reads
// HTTP timeouts and Portal. Context and Logger are shared.
type Config struct {
	AppName     string
	Environment string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Buffer      BufferConfig
	Context     ContextConfig
	Logger      LoggerConfig
	Migrations  MigrationsConfig
	Auth        AuthConfig
	Portal      PortalConfig
}

type HTTPConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxConn      int
	TrustProxy   bool
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
	// ConnectAttempts is how many times the backend tries to reach Postgres at boot.
	ConnectAttempts int
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type BufferConfig struct {
	Path           string
	MaxSize        int
	RetentionHours int
	SyncInterval   time.Duration
	MaxRetry       int
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

// AuthConfig drives the credential backend.
type AuthConfig struct {
	SessionTTL          time.Duration
	BcryptCost          int
	RequireVerification bool
	VerificationTTL     time.Duration
}

// PortalConfig drives the portal process that hosts the session core.
type PortalConfig struct {
	Host                 string
	Port                 string
	BackendURL           string
	SessionPath          string
	SessionKey           string
	SignInPath           string
	RequestTimeout       time.Duration
	RefreshInterval      time.Duration
	AuditBufferSize      int
	AuditDeliveryTimeout time.Duration
}

// Load reads configuration from environment variables (optionally .env)
// and applies defaults so either binary can boot in a development setup.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "portal-identity"),
		Environment: getString("APP_ENV", "development"),
		HTTP:        loadHTTP(),
		Database:    loadDatabase(),
		Redis: RedisConfig{
			URL:      getString("REDIS_URL", "redis://localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
			PoolSize: getInt("REDIS_POOL_SIZE", 0),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			Issuer: getString("JWT_ISSUER", "portal-identity"),
		},
		Buffer: BufferConfig{
			Path:           getString("BOLTDB_PATH", "./data/buffer.db"),
			MaxSize:        getInt("BUFFER_MAX_SIZE", 1_000_000),
			RetentionHours: getInt("BUFFER_RETENTION_HOURS", 24),
			SyncInterval:   getDuration("SYNC_INTERVAL_SECONDS", 30*time.Second),
			MaxRetry:       getInt("MAX_RETRY_ATTEMPTS", 3),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./assets/migrations"),
		},
		Auth: AuthConfig{
			SessionTTL:          getDuration("AUTH_SESSION_TTL", 24*time.Hour),
			BcryptCost:          getInt("AUTH_BCRYPT_COST", 12),
			RequireVerification: getBool("AUTH_REQUIRE_VERIFICATION", false),
			VerificationTTL:     getDuration("AUTH_VERIFICATION_TTL", 24*time.Hour),
		},
		Portal: loadPortal(),
	}

	return cfg, nil
}

func loadHTTP() HTTPConfig {
	return HTTPConfig{
		Host:         getString("SERVER_HOST", "0.0.0.0"),
		Port:         getString("SERVER_PORT", "8080"),
		ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		MaxConn:      getInt("SERVER_MAX_CONN", 0),
		TrustProxy:   getBool("SERVER_TRUST_PROXY", false),
	}
}

func loadDatabase() DatabaseConfig {
	db := DatabaseConfig{
		URL:             os.Getenv("DATABASE_URL"),
		Host:            getString("DB_HOST", "localhost"),
		Port:            getString("DB_PORT", "5432"),
		Name:            getString("DB_NAME", "portal_identity"),
		User:            getString("DB_USER", "portal"),
		Password:        os.Getenv("DB_PASSWORD"),
		MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
		MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
		SSLMode:         getString("DB_SSLMODE", "disable"),
		ConnectAttempts: getInt("DB_CONNECT_ATTEMPTS", 5),
	}
	if db.URL == "" {
		db.URL = db.DSN()
	}
	return db
}

func loadPortal() PortalConfig {
	return PortalConfig{
		Host:                 getString("PORTAL_HOST", "127.0.0.1"),
		Port:                 getString("PORTAL_PORT", "3000"),
		BackendURL:           strings.TrimRight(getString("PORTAL_BACKEND_URL", "http://localhost:8080"), "/"),
		SessionPath:          getString("PORTAL_SESSION_PATH", "./data/portal.db"),
		SessionKey:           getString("PORTAL_SESSION_KEY", "portal.session"),
		SignInPath:           getString("PORTAL_SIGNIN_PATH", "/signin"),
		RequestTimeout:       getDuration("PORTAL_REQUEST_TIMEOUT", 10*time.Second),
		RefreshInterval:      getDuration("PORTAL_REFRESH_INTERVAL", 5*time.Minute),
		AuditBufferSize:      getInt("PORTAL_AUDIT_BUFFER", 256),
		AuditDeliveryTimeout: getDuration("PORTAL_AUDIT_TIMEOUT", 5*time.Second),
	}
}

// DSN assembles a connection URL from the individual settings. Credentials
// are escaped so passwords may contain URL metacharacters.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

// Validate checks the settings the identity backend cannot run without.
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("AUTH_SESSION_TTL must be positive")
	}
	return nil
}

// ValidatePortal checks the settings the portal cannot run without.
func (c *Config) ValidatePortal() error {
	backend, err := url.Parse(c.Portal.BackendURL)
	if err != nil || backend.Host == "" || (backend.Scheme != "http" && backend.Scheme != "https") {
		return fmt.Errorf("PORTAL_BACKEND_URL must be an absolute http(s) URL")
	}
	if !strings.HasPrefix(c.Portal.SignInPath, "/") {
		return fmt.Errorf("PORTAL_SIGNIN_PATH must start with /")
	}
	if c.Portal.SessionKey == "" {
		return fmt.Errorf("PORTAL_SESSION_KEY must not be empty")
	}
	return nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address of the identity backend.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}

// PortalAddress returns the listen address of the portal.
func (c *Config) PortalAddress() string {
	return fmt.Sprintf("%s:%s", c.Portal.Host, c.Portal.Port)
}
