package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"guestbook/internal/log"
)

type Config struct {
	Server ServerConfig `json:"server"`

	// Database Configuration
	Database DatabaseConfig `json:"database"`

	// OAuth + session configuration
	Auth AuthConfig `json:"auth"`

	Guestbook GuestbookConfig `json:"guestbook"`

	// Realtime change feed configuration
	Realtime RealtimeConfig `json:"realtime"`

	// Redis relay (optional)
	Redis RedisConfig `json:"redis"`

	RateLimit RateLimitConfig `json:"rate_limit"`

	// Logging Configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	Environment  string `json:"environment"` // development, staging, production
	PublicURL    string `json:"public_url"`
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Driver       string `json:"driver"` // mysql, postgres, sqlite
	Host         string `json:"host"`
	Port         string `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	DatabaseName string `json:"database_name"`
	SSLMode      string `json:"ssl_mode"`
	Path         string `json:"path"` // sqlite file
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`

	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

type AuthConfig struct {
	JWTSecret          string `json:"-"`
	SessionSecret      string `json:"-"`
	TokenTTLHours      int    `json:"token_ttl_hours"`
	GoogleClientID     string `json:"google_client_id"`
	GoogleClientSecret string `json:"-"`
	GitHubClientID     string `json:"github_client_id"`
	GitHubClientSecret string `json:"-"`
	AdminUserID        string `json:"admin_user_id"`
}

type GuestbookConfig struct {
	ReloadDelayMillis int     `json:"reload_delay_millis"`
	SessionTTLMinutes int     `json:"session_ttl_minutes"`
	MaxSessions       int     `json:"max_sessions"`
	ProfanityHeat     float64 `json:"profanity_heat"` // lower heat = stricter
}

type RealtimeConfig struct {
	Workers           int `json:"workers"`
	ChannelBufferSize int `json:"channel_buffer_size"`
	SubscriberBuffer  int `json:"subscriber_buffer"`
	PingInterval      int `json:"ping_interval"` // Seconds
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"-"`
	DB       int    `json:"db"`
	Channel  string `json:"channel"`
}

type RateLimitConfig struct {
	RPS     float64 `json:"rps"`
	Burst   int     `json:"burst"`
	Enabled bool    `json:"enabled"`

	// Proxy addresses whose X-Forwarded-For is believed
	TrustedProxies []string `json:"trusted_proxies"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	OutputPath string `json:"output_path"` // stdout, stderr, or file path
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Info.Println("No .env file found, using system environment variables")
	}

	env := getEnvOrDefault("APP_ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvOrDefault("SERVER_PORT", "8080"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 15),
			Environment:  env,
			PublicURL:    getEnvOrDefault("PUBLIC_URL", defaultPublicURL(env)),
		},
		Database: DatabaseConfig{
			Driver:       getEnvOrDefault("DB_DRIVER", "mysql"),
			Host:         getEnvOrDefault("DB_HOST", "localhost"),
			Port:         getEnvOrDefault("DB_PORT", ""),
			Username:     getEnvOrDefault("DB_USER", "guestbook"),
			Password:     getEnvOrDefault("DB_PASSWORD", "guestbook"),
			DatabaseName: getEnvOrDefault("DB_NAME", "guestbook"),
			SSLMode:      getEnvOrDefault("DB_SSLMODE", "disable"),
			Path:         getEnvOrDefault("DB_PATH", "guestbook.db"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),

			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)) * time.Minute,
		},
		Auth: AuthConfig{
			JWTSecret:          getEnvOrDefault("JWT_SECRET", "change-me"),
			SessionSecret:      getEnvOrDefault("SESSION_SECRET", "change-me-too"),
			TokenTTLHours:      getEnvInt("TOKEN_TTL_HOURS", 24*7),
			GoogleClientID:     getEnvOrDefault("GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret: getEnvOrDefault("GOOGLE_CLIENT_SECRET", ""),
			GitHubClientID:     getEnvOrDefault("GITHUB_CLIENT_ID", ""),
			GitHubClientSecret: getEnvOrDefault("GITHUB_CLIENT_SECRET", ""),
			AdminUserID:        getEnvOrDefault("ADMIN_USER_ID", ""),
		},
		Guestbook: GuestbookConfig{
			ReloadDelayMillis: getEnvInt("GUESTBOOK_RELOAD_DELAY_MS", 500),
			SessionTTLMinutes: getEnvInt("GUESTBOOK_SESSION_TTL_MINUTES", 30),
			MaxSessions:       getEnvInt("GUESTBOOK_MAX_SESSIONS", 1000),
			ProfanityHeat:     getEnvFloat("PROFANITY_HEAT", 0.5),
		},
		Realtime: RealtimeConfig{
			Workers:           getEnvInt("REALTIME_WORKERS", 2),
			ChannelBufferSize: getEnvInt("REALTIME_BUFFER", 1000),
			SubscriberBuffer:  getEnvInt("REALTIME_SUBSCRIBER_BUFFER", 64),
			PingInterval:      getEnvInt("REALTIME_PING_INTERVAL", 30),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Channel:  getEnvOrDefault("REDIS_CHANNEL", "guestbook:changes"),
		},
		RateLimit: RateLimitConfig{
			RPS:     getEnvFloat("RATE_LIMIT_RPS", 1),
			Burst:   getEnvInt("RATE_LIMIT_BURST", 5),
			Enabled: getEnvBool("RATE_LIMIT_ENABLED", true),

			TrustedProxies: getEnvList("RATE_LIMIT_TRUSTED_PROXIES"),
		},
		Logging: LoggingConfig{
			Level:      getEnvOrDefault("LOG_LEVEL", "info"),
			OutputPath: getEnvOrDefault("LOG_OUTPUT", "stdout"),
		},
	}

	return cfg
}

// DSN builds the connection string for the configured driver.
func (cfg *Config) DSN() string {
	db := cfg.Database
	if db.Host == "" {
		db.Host = "localhost"
	}

	switch strings.ToLower(db.Driver) {
	case "postgres":
		if db.Port == "" {
			db.Port = "5432"
		}
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			db.Host,
			db.Port,
			db.Username,
			db.Password,
			db.DatabaseName,
			db.SSLMode,
		)
	case "sqlite":
		return db.Path
	default:
		if db.Port == "" {
			db.Port = "3306"
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			db.Username,
			db.Password,
			db.Host,
			db.Port,
			db.DatabaseName,
		)
	}
}

// RedirectURL is where the OAuth provider sends the visitor back.
func (cfg *Config) RedirectURL() string {
	return strings.TrimRight(cfg.Server.PublicURL, "/") + "/api/v1/auth/callback"
}

func (cfg *Config) IsProduction() bool {
	return cfg.Server.Environment == "production"
}

func defaultPublicURL(env string) string {
	if env == "production" {
		return "https://devwtf.in"
	}
	return "http://localhost:8080"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn.Printf("Invalid integer for %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Warn.Printf("Invalid number for %s=%q, using %v", key, value, defaultValue)
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
