package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultAPIURL is the library backend used when nothing else is configured.
const DefaultAPIURL = "http://localhost:3000"

// RedisConfig selects the Redis instance backing the request cache.
// An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// WebConfig holds configuration for the folio web front end.
type WebConfig struct {
	Addr         string // Listen address (default ":8090")
	APIURL       string // Library API base URL; "/api" is appended when missing
	LogLevel     string // Log level: debug, info, warn, error
	LogFormat    string // Log format: text, json
	CookieName   string // Name of the token cookie (default "token")
	CookieSecure bool   // Mark the token cookie Secure (HTTPS deployments)
	CachePrefix  string // Key prefix for cached list responses
	Redis        RedisConfig
}

// DefaultWebConfig returns sensible defaults.
func DefaultWebConfig() WebConfig {
	return WebConfig{
		Addr:        ":8090",
		APIURL:      DefaultAPIURL,
		LogLevel:    "info",
		LogFormat:   "text",
		CookieName:  "token",
		CachePrefix: "folio",
	}
}

// ApplyEnv overrides fields from FOLIO_* environment variables.
func (c *WebConfig) ApplyEnv() {
	c.Addr = envStr("FOLIO_ADDR", c.Addr)
	c.APIURL = envStr("FOLIO_API_URL", c.APIURL)
	c.LogLevel = envStr("FOLIO_LOG_LEVEL", c.LogLevel)
	c.LogFormat = envStr("FOLIO_LOG_FORMAT", c.LogFormat)
	c.CookieName = envStr("FOLIO_COOKIE_NAME", c.CookieName)
	c.CookieSecure = envBool("FOLIO_COOKIE_SECURE", c.CookieSecure)
	c.CachePrefix = envStr("FOLIO_CACHE_PREFIX", c.CachePrefix)
	c.Redis.applyEnv()
}

// ClientConfig holds configuration for the folio CLI. It can be loaded from
// ~/.folio/config.yaml and is overridden by environment and flags.
type ClientConfig struct {
	Server      string      `yaml:"server"`
	Storage     string      `yaml:"storage"`      // file, sqlite, none
	StoragePath string      `yaml:"storage_path"` // defaults depend on Storage
	Output      string      `yaml:"output"`       // table, json, yaml
	LogLevel    string      `yaml:"log_level"`
	LogFormat   string      `yaml:"log_format"`
	Redis       RedisConfig `yaml:"redis"`
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Server:    DefaultAPIURL,
		Storage:   "file",
		Output:    "table",
		LogLevel:  "warn",
		LogFormat: "text",
	}
}

// ApplyEnv overrides fields from FOLIO_* environment variables.
func (c *ClientConfig) ApplyEnv() {
	c.Server = envStr("FOLIO_SERVER", c.Server)
	c.Storage = envStr("FOLIO_STORAGE", c.Storage)
	c.StoragePath = envStr("FOLIO_STORAGE_PATH", c.StoragePath)
	c.Output = envStr("FOLIO_OUTPUT", c.Output)
	c.LogLevel = envStr("FOLIO_LOG_LEVEL", c.LogLevel)
	c.LogFormat = envStr("FOLIO_LOG_FORMAT", c.LogFormat)
	c.Redis.applyEnv()
}

// ResolvedStoragePath returns StoragePath, or the default file for the
// selected backend under dir.
func (c ClientConfig) ResolvedStoragePath(dir string) string {
	if c.StoragePath != "" {
		return c.StoragePath
	}
	if c.Storage == "sqlite" {
		return filepath.Join(dir, "folio.db")
	}
	return filepath.Join(dir, "credentials.json")
}

// DevAPIConfig holds configuration for the development backend.
type DevAPIConfig struct {
	Addr       string        // Listen address (default ":3000")
	JWTSecret  string        // HS256 signing secret
	AccessTTL  time.Duration // Lifetime of issued access tokens
	BcryptCost int           // bcrypt cost for seeded and registered users
	TOTPCode   string        // Fixed second-factor code accepted for 2FA users
	LogLevel   string
	LogFormat  string
}

// DefaultDevAPIConfig returns sensible defaults.
func DefaultDevAPIConfig() DevAPIConfig {
	return DevAPIConfig{
		Addr:       ":3000",
		JWTSecret:  "folio-dev-secret",
		AccessTTL:  time.Hour,
		BcryptCost: 10,
		TOTPCode:   "123456",
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// ApplyEnv overrides fields from FOLIO_DEVAPI_* environment variables.
func (c *DevAPIConfig) ApplyEnv() {
	c.Addr = envStr("FOLIO_DEVAPI_ADDR", c.Addr)
	c.JWTSecret = envStr("FOLIO_DEVAPI_JWT_SECRET", c.JWTSecret)
	c.AccessTTL = envDur("FOLIO_DEVAPI_ACCESS_TTL", c.AccessTTL)
	c.BcryptCost = envInt("FOLIO_DEVAPI_BCRYPT_COST", c.BcryptCost)
	c.TOTPCode = envStr("FOLIO_DEVAPI_TOTP_CODE", c.TOTPCode)
	c.LogLevel = envStr("FOLIO_LOG_LEVEL", c.LogLevel)
	c.LogFormat = envStr("FOLIO_LOG_FORMAT", c.LogFormat)
}

func (r *RedisConfig) applyEnv() {
	r.Addr = envStr("FOLIO_REDIS_ADDR", r.Addr)
	r.Password = envStr("FOLIO_REDIS_PASSWORD", r.Password)
	r.DB = envInt("FOLIO_REDIS_DB", r.DB)
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Dir returns the per-user folio directory (~/.folio).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".folio"), nil
}

// LoadFile overlays the YAML file at path onto c. A missing file
// leaves c unchanged.
func (c *ClientConfig) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
