package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/shop/store"
	"github.com/aussiebroadwan/shopauth/pkg/shopsdk"
	"github.com/aussiebroadwan/shopauth/pkg/signx"
	"github.com/joho/godotenv"
)

type Config struct {
	AppKey     string // Required: TTS_APP_KEY
	AppSecret  string // Required: TTS_APP_SECRET
	ShopCipher string // Optional: TTS_SHOP_CIPHER, preferred over ShopID
	ShopID     string // Optional: TTS_SHOP_ID

	AccessToken  string // Optional: bootstrap access token when no state is stored
	RefreshToken string // Optional: bootstrap refresh token, fills a stored record lacking one

	BaseURL     string // Business API host (default: https://open-api.tiktokglobalshop.com)
	AuthURL     string // Token refresh endpoint (default: https://auth.tiktok-shops.com/api/v2/token/refresh)
	APIVersion  string // Version query parameter (default: 202309)
	TokenHeader string // Header carrying the access token (default: x-tts-access-token)
	SignScheme  string // concat, concat-bare, ampersand, ampersand-wrapped (default: concat)

	TokenStore string // Storage driver: file or sqlite (default: file)
	TokenState string // State file or SQLite database path (default: token_state.json)
	StateKey   string // Optional: key material for encrypting the state file at rest

	HTTPTimeout    time.Duration // Per-call HTTP timeout (default: 60s)
	RateLimitQPS   float64       // Optional: outbound requests per second, 0 = unlimited
	RateLimitBurst int           // Outbound burst (default: 1)

	TimezoneOffset    time.Duration // Business day offset from UTC (default: 7h)
	KeepaliveInterval time.Duration // Keeper check interval (default: 5m)

	Env       string // Environment (dev, staging, prod) (default: prod)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: text)
}

// LoadConfig reads configuration from the environment after loading any of
// the given dotenv files (".env" when none are given). Variables already set
// in the environment win over the files; missing files are ignored.
func LoadConfig(envFiles ...string) Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}

	return Config{
		AppKey:       os.Getenv("TTS_APP_KEY"),
		AppSecret:    os.Getenv("TTS_APP_SECRET"),
		ShopCipher:   os.Getenv("TTS_SHOP_CIPHER"),
		ShopID:       os.Getenv("TTS_SHOP_ID"),
		AccessToken:  os.Getenv("TTS_ACCESS_TOKEN"),
		RefreshToken: os.Getenv("TTS_REFRESH_TOKEN"),

		BaseURL:     getEnvOrDefault("TTS_BASE", shopsdk.DefaultBaseURL),
		AuthURL:     getEnvOrDefault("TTS_AUTH_URL", shopsdk.DefaultRefreshURL),
		APIVersion:  getEnvOrDefault("TTS_API_VERSION", shopsdk.DefaultVersion),
		TokenHeader: getEnvOrDefault("TTS_TOKEN_HEADER", shopsdk.DefaultTokenHeader),
		SignScheme:  getEnvOrDefault("TTS_SIGN_SCHEME", signx.SchemeConcat.Name),

		TokenStore: getEnvOrDefault("TTS_TOKEN_STORE", string(store.KindFile)),
		TokenState: getEnvOrDefault("TTS_TOKEN_STATE", "token_state.json"),
		StateKey:   os.Getenv("TTS_STATE_KEY"),

		HTTPTimeout:    getEnvDurationOrDefault("TTS_HTTP_TIMEOUT", shopsdk.DefaultTimeout),
		RateLimitQPS:   getEnvFloatOrDefault("TTS_RATE_LIMIT_QPS", 0),
		RateLimitBurst: getEnvIntOrDefault("TTS_RATE_LIMIT_BURST", 1),

		TimezoneOffset:    getEnvDurationOrDefault("TTS_TIMEZONE_OFFSET", 7*time.Hour),
		KeepaliveInterval: getEnvDurationOrDefault("TTS_KEEPALIVE_INTERVAL", 5*time.Minute),

		Env:       getEnvOrDefault("ENV", "prod"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// Validate reports configuration that would make every signed call fail.
func (c Config) Validate() error {
	var errs []error

	var missing []string
	if c.AppKey == "" {
		missing = append(missing, "TTS_APP_KEY")
	}
	if c.AppSecret == "" {
		missing = append(missing, "TTS_APP_SECRET")
	}
	if len(missing) > 0 {
		errs = append(errs, &shopsdk.MissingCredentialsError{Missing: missing})
	}

	if c.ShopCipher != "" && c.ShopID != "" {
		errs = append(errs, fmt.Errorf("%w: set only one of TTS_SHOP_CIPHER and TTS_SHOP_ID", shopsdk.ErrShopConflict))
	}
	if _, err := signx.ParseScheme(c.SignScheme); err != nil {
		errs = append(errs, err)
	}
	switch store.Kind(c.TokenStore) {
	case store.KindFile, store.KindSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown token store %q", c.TokenStore))
	}

	return errors.Join(errs...)
}

// Zone returns the business day time zone.
func (c Config) Zone() *time.Location {
	name := "UTC"
	if c.TimezoneOffset != 0 {
		name = fmt.Sprintf("UTC%+g", c.TimezoneOffset.Hours())
	}
	return time.FixedZone(name, int(c.TimezoneOffset/time.Second))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Plain integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
