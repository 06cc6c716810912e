// Package config resolves the console's deployment configuration from the
// environment once at startup.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Session store backends
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// RequiredVars must be present for the console to start
var RequiredVars = []string{"API_URL", "ADMIN_FE_URL", "USER_FE_URL"}

// Config holds everything the console needs to run
type Config struct {
	// Backend base URL and the two front-end base URLs
	APIURL     string
	AdminFEURL string
	UserFEURL  string

	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	RequestTimeout      time.Duration
	LogoutNotifyTimeout time.Duration
	DefaultPageSize     int
	RefreshCookieName   string

	SessionStore   string
	SessionFile    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
}

// Load reads the configuration from environment variables
func Load() (*Config, error) {
	if err := ValidateEnv(RequiredVars); err != nil {
		return nil, err
	}

	cfg := &Config{
		APIURL:     strings.TrimRight(os.Getenv("API_URL"), "/"),
		AdminFEURL: strings.TrimRight(os.Getenv("ADMIN_FE_URL"), "/"),
		UserFEURL:  os.Getenv("USER_FE_URL"),

		Port:         getEnvInt("CONSOLE_PORT", 8090),
		ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),

		RequestTimeout:      getEnvDuration("REQUEST_TIMEOUT", 15*time.Second),
		LogoutNotifyTimeout: getEnvDuration("LOGOUT_NOTIFY_TIMEOUT", 5*time.Second),
		DefaultPageSize:     getEnvInt("DEFAULT_PAGE_SIZE", 10),
		RefreshCookieName:   GetEnvOrDefault("REFRESH_COOKIE_NAME", "refreshToken"),

		SessionStore:   strings.ToLower(GetEnvOrDefault("SESSION_STORE", StoreFile)),
		SessionFile:    GetEnvOrDefault("SESSION_FILE", ".admin-session.json"),
		RedisAddr:      GetEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RedisKeyPrefix: GetEnvOrDefault("REDIS_KEY_PREFIX", "admin-console:"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	for name, raw := range map[string]string{"API_URL": c.APIURL, "ADMIN_FE_URL": c.AdminFEURL, "USER_FE_URL": c.UserFEURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}

	switch c.SessionStore {
	case StoreFile, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("SESSION_STORE must be one of file, redis, memory, got %q", c.SessionStore)
	}

	if c.DefaultPageSize <= 0 {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be positive, got %d", c.DefaultPageSize)
	}
	return nil
}

// ValidateEnv validates that all required environment variables are set
func ValidateEnv(requiredVars []string) error {
	var missing []string

	for _, varName := range requiredVars {
		if os.Getenv(varName) == "" {
			missing = append(missing, varName)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return nil
}

// GetEnvOrDefault retrieves an environment variable or returns a default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
