package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App       *AppConfig       `yaml:"app"`
	Ledger    *LedgerConfig    `yaml:"ledger"`
	Database  *DatabaseConfig  `yaml:"database"`
	Postgres  *PostgresConfig  `yaml:"postgres"`
	Firebase  *FirebaseConfig  `yaml:"firebase"`
	Redis     *RedisConfig     `yaml:"redis"`
	SMS       *SMSConfig       `yaml:"sms"`
	Push      *PushConfig      `yaml:"push"`
	WebSocket *WebSocketConfig `yaml:"websocket"`
	Security  *SecurityConfig  `yaml:"security"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	Port        int    `yaml:"port"`
	Host        string `yaml:"host"`
	Debug       bool   `yaml:"debug"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	// ShutdownTimeout bounds graceful shutdown of the HTTP server.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Store backends and change notifiers the ledger can run on.
const (
	StoreMemory    = "memory"
	StoreMongoDB   = "mongodb"
	StoreFirestore = "firestore"
	StorePostgres  = "postgres"

	NotifyNone  = "none"
	NotifyRedis = "redis"
)

type LedgerConfig struct {
	Store          string        `yaml:"store"`
	Notify         string        `yaml:"notify"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Migrate        bool          `yaml:"migrate"`
}

type SecurityConfig struct {
	AuthProvider       string        `yaml:"auth_provider"`
	JWTSecret          string        `yaml:"jwt_secret"`
	JWTIssuer          string        `yaml:"jwt_issuer"`
	JWTAccessTokenTTL  time.Duration `yaml:"jwt_access_token_ttl"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	TrustedProxies     []string      `yaml:"trusted_proxies"`
}

const (
	AuthFirebase = "firebase"
	AuthJWT      = "jwt"
)

func Load() (*Config, error) {
	config := &Config{
		App:       loadAppConfig(),
		Ledger:    loadLedgerConfig(),
		Database:  loadDatabaseConfig(),
		Postgres:  loadPostgresConfig(),
		Firebase:  loadFirebaseConfig(),
		Redis:     loadRedisConfig(),
		SMS:       loadSMSConfig(),
		Push:      loadPushConfig(),
		WebSocket: loadWebSocketConfig(),
		Security:  loadSecurityConfig(),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	switch c.Ledger.Store {
	case StoreMemory, StoreMongoDB, StoreFirestore, StorePostgres:
	default:
		return fmt.Errorf("invalid LEDGER_STORE %q", c.Ledger.Store)
	}

	switch c.Ledger.Notify {
	case NotifyNone, NotifyRedis:
	default:
		return fmt.Errorf("invalid LEDGER_NOTIFY %q", c.Ledger.Notify)
	}

	switch c.Security.AuthProvider {
	case AuthFirebase:
	case AuthJWT:
		if c.Security.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_PROVIDER is %s", AuthJWT)
		}
	default:
		return fmt.Errorf("invalid AUTH_PROVIDER %q", c.Security.AuthProvider)
	}

	switch c.SMS.Provider {
	case SMSNone, SMSTwilio, SMSAWS:
	default:
		return fmt.Errorf("invalid SMS_PROVIDER %q", c.SMS.Provider)
	}

	if c.Ledger.RequestTimeout < 0 {
		return fmt.Errorf("LEDGER_REQUEST_TIMEOUT must not be negative")
	}

	return nil
}

// NeedsFirebase reports whether any configured component uses the Firebase app.
func (c *Config) NeedsFirebase() bool {
	return c.Ledger.Store == StoreFirestore ||
		c.Security.AuthProvider == AuthFirebase ||
		c.Push.FCM.Enabled
}

func loadAppConfig() *AppConfig {
	return &AppConfig{
		Name:            getEnv("APP_NAME", "ZoomGo"),
		Version:         getEnv("APP_VERSION", "1.0.0"),
		Environment:     getEnv("APP_ENV", "development"),
		Port:            getEnvAsInt("APP_PORT", 8080),
		Host:            getEnv("APP_HOST", "0.0.0.0"),
		Debug:           getEnvAsBool("APP_DEBUG", true),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		ShutdownTimeout: getEnvAsDuration("APP_SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

func loadLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		Store:          strings.ToLower(getEnv("LEDGER_STORE", StoreMemory)),
		Notify:         strings.ToLower(getEnv("LEDGER_NOTIFY", NotifyNone)),
		RequestTimeout: getEnvAsDuration("LEDGER_REQUEST_TIMEOUT", 10*time.Second),
		Migrate:        getEnvAsBool("LEDGER_MIGRATE", true),
	}
}

func loadSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		AuthProvider:       strings.ToLower(getEnv("AUTH_PROVIDER", AuthFirebase)),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		JWTIssuer:          getEnv("JWT_ISSUER", "ZoomGo"),
		JWTAccessTokenTTL:  getEnvAsDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 100),
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		TrustedProxies:     getEnvAsSlice("TRUSTED_PROXIES", []string{}),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func IsProduction() bool {
	return getEnv("APP_ENV", "development") == "production"
}

func IsDevelopment() bool {
	return getEnv("APP_ENV", "development") == "development"
}
