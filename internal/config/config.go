// Package config loads per-product RTMS credentials, logging, and
// storage connection settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"rtms-ingest/internal/rtms"
)

// Products enumerates the webhook namespaces the router recognises.
var Products = []string{"meeting", "webinar", "session", "contactcenter", "phone"}

// Credentials is one product's OAuth/webhook secret set.
type Credentials struct {
	ClientID     string
	ClientSecret string
	SecretToken  string
}

// Config is the fully resolved process configuration.
type Config struct {
	Credentials     map[string]Credentials
	MediaMask       rtms.MediaMask
	UseFillers      bool
	LogLevel        zerolog.Level
	HistorySize     int
	ListenAddr      string
	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	EncryptionKey   []byte
	CORSOrigins     []string
	RateLimitRPS    int
	RateLimitBurst  int
	WebhookLimit    int
	InferenceURL    string
	InferenceAPIKey string
	SearchURL       string
	TLSCertFile     string
	TLSKeyFile      string
}

// Load reads .env (if present) then environment variables into a Config.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Credentials: make(map[string]Credentials),
		MediaMask:   rtms.MediaAll,
		LogLevel:    zerolog.Disabled,
		HistorySize: rtms.DefaultHistorySize,
		ListenAddr:  envOr("RTMS_LISTEN_ADDR", ":8080"),
		DatabaseURL: os.Getenv("RTMS_DATABASE_URL"),
		RedisAddr:   os.Getenv("RTMS_REDIS_ADDR"),
		RedisPassword: os.Getenv("RTMS_REDIS_PASSWORD"),
		RateLimitRPS:   envInt("RTMS_RATE_LIMIT_RPS", 50),
		RateLimitBurst: envInt("RTMS_RATE_LIMIT_BURST", 100),
		WebhookLimit:   envInt("RTMS_WEBHOOK_LIMIT", 120),
		InferenceURL:    os.Getenv("RTMS_INFERENCE_URL"),
		InferenceAPIKey: os.Getenv("RTMS_INFERENCE_API_KEY"),
		SearchURL:       os.Getenv("RTMS_SEARCH_URL"),
		TLSCertFile:     os.Getenv("RTMS_TLS_CERT"),
		TLSKeyFile:      os.Getenv("RTMS_TLS_KEY"),
	}

	if key := strings.TrimSpace(os.Getenv("RTMS_ENCRYPTION_KEY")); key != "" {
		cfg.EncryptionKey = []byte(key)
	}

	if shared := strings.TrimSpace(os.Getenv("RTMS_CLIENT_ID")); shared != "" {
		clientSecret, err := resolveSecret(cfg.EncryptionKey, os.Getenv("RTMS_CLIENT_SECRET"))
		if err != nil {
			return Config{}, fmt.Errorf("RTMS_CLIENT_SECRET: %w", err)
		}
		secretToken, err := resolveSecret(cfg.EncryptionKey, os.Getenv("RTMS_SECRET_TOKEN"))
		if err != nil {
			return Config{}, fmt.Errorf("RTMS_SECRET_TOKEN: %w", err)
		}
		creds := Credentials{
			ClientID:     shared,
			ClientSecret: clientSecret,
			SecretToken:  secretToken,
		}
		for _, product := range Products {
			cfg.Credentials[product] = creds
		}
	}

	for _, product := range Products {
		prefix := "RTMS_" + strings.ToUpper(product) + "_"
		clientID := strings.TrimSpace(os.Getenv(prefix + "CLIENT_ID"))
		if clientID == "" {
			continue
		}
		clientSecret, err := resolveSecret(cfg.EncryptionKey, os.Getenv(prefix+"CLIENT_SECRET"))
		if err != nil {
			return Config{}, fmt.Errorf("%sCLIENT_SECRET: %w", prefix, err)
		}
		secretToken, err := resolveSecret(cfg.EncryptionKey, os.Getenv(prefix+"SECRET_TOKEN"))
		if err != nil {
			return Config{}, fmt.Errorf("%sSECRET_TOKEN: %w", prefix, err)
		}
		cfg.Credentials[product] = Credentials{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			SecretToken:  secretToken,
		}
	}

	if len(cfg.Credentials) == 0 {
		return Config{}, errors.New("no rtms credentials configured")
	}

	if mask := strings.TrimSpace(os.Getenv("RTMS_MEDIA_MASK")); mask != "" {
		v, err := strconv.Atoi(mask)
		if err != nil {
			return Config{}, fmt.Errorf("parse RTMS_MEDIA_MASK: %w", err)
		}
		cfg.MediaMask = rtms.ParseMediaMask(v)
	}

	cfg.UseFillers = envBool("RTMS_USE_FILLERS", false)

	if level := strings.TrimSpace(os.Getenv("RTMS_LOG_LEVEL")); level != "" {
		parsed, err := ParseLogLevel(level)
		if err != nil {
			return Config{}, err
		}
		cfg.LogLevel = parsed
	}

	if origins := strings.TrimSpace(os.Getenv("RTMS_CORS_ORIGINS")); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, trimmed)
			}
		}
	}

	return cfg, nil
}

// resolveSecret returns raw unchanged unless it carries EncryptSecret's
// "pbkdf2$..." envelope prefix, in which case it is decrypted with key as
// the passphrase. A present envelope with no configured key is an error:
// silently falling back to the ciphertext string would hand the router
// and session handshake a secret that can never authenticate.
func resolveSecret(key []byte, raw string) (string, error) {
	if !strings.HasPrefix(raw, "pbkdf2$") {
		return raw, nil
	}
	if len(key) == 0 {
		return "", errors.New("value is encrypted but RTMS_ENCRYPTION_KEY is not configured")
	}
	return DecryptSecret(string(key), raw)
}

// CredentialsFor resolves a product's credentials, falling back to the
// "meeting" product per the router's product-keyed lookup rule.
func (c Config) CredentialsFor(product string) (Credentials, bool) {
	if creds, ok := c.Credentials[product]; ok {
		return creds, true
	}
	creds, ok := c.Credentials["meeting"]
	return creds, ok
}

// ParseLogLevel maps the spec's {off, error, warn, info, debug} levels
// onto zerolog's level scale.
func ParseLogLevel(v string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "off":
		return zerolog.Disabled, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	default:
		return zerolog.Disabled, fmt.Errorf("unknown log level %q", v)
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
