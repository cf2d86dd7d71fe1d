package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "8080"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultCourierTimeout   = 10 * time.Second
	defaultCourierAttempts  = 4
	defaultRateLimitDefault = 120
	defaultRateLimitWebhook = 60
	defaultShippingCost     = 0
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Firestore  FirestoreConfig
	Razorpay   RazorpayConfig
	Courier    CourierConfig
	PubSub     PubSubConfig
	Storage    StorageConfig
	Orders     OrdersConfig
	RateLimits RateLimitConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// RazorpayConfig collects payment gateway credentials.
type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Currency      string
}

// CourierConfig configures the shipping aggregator integration.
type CourierConfig struct {
	APIKey      string
	CreateURL   string
	TrackingURL string
	PickupName  string
	Timeout     time.Duration
	MaxAttempts int
}

// PubSubConfig configures notification event publishing.
type PubSubConfig struct {
	ProjectID string
	Topic     string
}

// StorageConfig lists bucket names used by the application.
type StorageConfig struct {
	ReturnImagesBucket string
}

// OrdersConfig holds order-level business defaults.
type OrdersConfig struct {
	ShippingCost int64
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	DefaultPerMinute int
	WebhookPerMinute int
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values
// in the map take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided
// maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env
// overrides, and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "ORDERS_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "ORDERS_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "ORDERS_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "ORDERS_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "ORDERS_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "ORDERS_FIRESTORE_EMULATOR_HOST", ""),
		},
		Razorpay: RazorpayConfig{
			KeyID:         stringWithDefault(lookup, "ORDERS_RAZORPAY_KEY_ID", ""),
			KeySecret:     stringWithDefault(lookup, "ORDERS_RAZORPAY_KEY_SECRET", ""),
			WebhookSecret: stringWithDefault(lookup, "ORDERS_RAZORPAY_WEBHOOK_SECRET", ""),
			Currency:      stringWithDefault(lookup, "ORDERS_RAZORPAY_CURRENCY", "INR"),
		},
		Courier: CourierConfig{
			APIKey:      stringWithDefault(lookup, "ORDERS_COURIER_API_KEY", ""),
			CreateURL:   stringWithDefault(lookup, "ORDERS_COURIER_CREATE_URL", ""),
			TrackingURL: stringWithDefault(lookup, "ORDERS_COURIER_TRACKING_URL", ""),
			PickupName:  stringWithDefault(lookup, "ORDERS_COURIER_PICKUP_NAME", ""),
			Timeout:     durationWithDefault(lookup, "ORDERS_COURIER_TIMEOUT", defaultCourierTimeout),
			MaxAttempts: intWithDefault(lookup, "ORDERS_COURIER_MAX_ATTEMPTS", defaultCourierAttempts),
		},
		PubSub: PubSubConfig{
			ProjectID: stringWithDefault(lookup, "ORDERS_PUBSUB_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "ORDERS_PUBSUB_TOPIC", ""),
		},
		Storage: StorageConfig{
			ReturnImagesBucket: stringWithDefault(lookup, "ORDERS_STORAGE_RETURN_IMAGES_BUCKET", ""),
		},
		Orders: OrdersConfig{
			ShippingCost: int64WithDefault(lookup, "ORDERS_SHIPPING_COST", defaultShippingCost),
		},
		RateLimits: RateLimitConfig{
			DefaultPerMinute: intWithDefault(lookup, "ORDERS_RATELIMIT_DEFAULT_PER_MIN", defaultRateLimitDefault),
			WebhookPerMinute: intWithDefault(lookup, "ORDERS_RATELIMIT_WEBHOOK_PER_MIN", defaultRateLimitWebhook),
		},
	}

	// PubSub project defaults to the Firestore project when unspecified.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Razorpay.KeyID == "" {
		missing = append(missing, "Razorpay.KeyID")
	}
	if cfg.Razorpay.KeySecret == "" {
		missing = append(missing, "Razorpay.KeySecret")
	}
	if cfg.Razorpay.WebhookSecret == "" {
		missing = append(missing, "Razorpay.WebhookSecret")
	}
	if cfg.Courier.MaxAttempts <= 0 {
		missing = append(missing, "Courier.MaxAttempts")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
