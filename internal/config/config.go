package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	pkgconfig "github.com/muhsiltomsher-cloud/asl-storefront/pkg/config"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/database"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"asl-storefront"`

	// HTTP server
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	PprofCIDRs      []string      `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`
	StorefrontURL   string        `env:"STOREFRONT_URL" envDefault:"http://localhost:3000"`

	// PostgreSQL
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     int    `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"storefront"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"storefront"`
	DBName     string `env:"DB_NAME" envDefault:"storefront"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	DBMaxConns int32  `env:"DB_MAX_CONNS" envDefault:"10"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"asl-storefront"`

	// Tracing
	TracingEnabled  bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TraceSampleRate float64 `env:"TRACE_SAMPLE_RATE" envDefault:"1.0"`

	// WooCommerce / CoCart
	WooBaseURL        string        `env:"WOO_BASE_URL" envDefault:"http://localhost:8000"`
	WooConsumerKey    string        `env:"WOO_CONSUMER_KEY"`
	WooConsumerSecret string        `env:"WOO_CONSUMER_SECRET"`
	CoCartPath        string        `env:"COCART_PATH" envDefault:"/wp-json/cocart/v2"`
	FreeGiftRulesPath string        `env:"FREE_GIFT_RULES_PATH" envDefault:"/wp-json/asl-free-gifts/v1/rules"`
	WooChromeTLS      bool          `env:"WOO_CHROME_TLS" envDefault:"false"`
	UpstreamTimeout   time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"20s"`
	UpstreamRetries   int           `env:"UPSTREAM_RETRIES" envDefault:"2"`

	// Circuit breaker
	BreakerTimeout      time.Duration `env:"BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerFailureRatio float64       `env:"BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests  uint32        `env:"BREAKER_MIN_REQUESTS" envDefault:"5"`

	// Caches and free gifts
	CartSnapshotTTL      time.Duration `env:"CART_SNAPSHOT_TTL" envDefault:"10m"`
	RulesCacheTTL        time.Duration `env:"FREE_GIFT_RULES_TTL" envDefault:"5m"`
	GiftStateTTL         time.Duration `env:"FREE_GIFT_STATE_TTL" envDefault:"30m"`
	GiftDebounce         time.Duration `env:"FREE_GIFT_DEBOUNCE" envDefault:"500ms"`
	GiftReconcileTimeout time.Duration `env:"FREE_GIFT_RECONCILE_TIMEOUT" envDefault:"20s"`
	CatalogMaxPages      int           `env:"CATALOG_MAX_PAGES" envDefault:"10"`

	// Currencies: rates and decimals are relative to BaseCurrency, e.g. "USD:0.2723,SAR:1.02".
	BaseCurrency     string             `env:"BASE_CURRENCY" envDefault:"AED"`
	CurrencyRates    map[string]float64 `env:"CURRENCY_RATES" envDefault:"AED:1" envSeparator:"," envKeyValSeparator:":"`
	CurrencyDecimals map[string]int     `env:"CURRENCY_DECIMALS" envDefault:"AED:2,KWD:3,BHD:3,OMR:3" envSeparator:"," envKeyValSeparator:":"`

	// Payment gateways
	MockGateway        bool   `env:"PAYMENT_MOCK" envDefault:"false"`
	MyFatoorahBaseURL  string `env:"MYFATOORAH_BASE_URL" envDefault:"https://apitest.myfatoorah.com"`
	MyFatoorahAPIKey   string `env:"MYFATOORAH_API_KEY"`
	MyFatoorahTestMode bool   `env:"MYFATOORAH_TEST_MODE" envDefault:"true"`
	TabbyBaseURL       string `env:"TABBY_BASE_URL" envDefault:"https://api.tabby.ai"`
	TabbySecretKey     string `env:"TABBY_SECRET_KEY"`
	TabbyMerchantCode  string `env:"TABBY_MERCHANT_CODE"`
	TamaraBaseURL      string `env:"TAMARA_BASE_URL" envDefault:"https://api-sandbox.tamara.co"`
	TamaraToken        string `env:"TAMARA_API_TOKEN"`

	// Auth and rate limits
	JWTSecret      string  `env:"JWT_SECRET"`
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"10"`

	// Secret Manager, production only
	GCPProject  string `env:"GCP_PROJECT"`
	SecretsName string `env:"SECRETS_NAME" envDefault:"asl-storefront"`
}

// Secrets is the JSON document stored in Secret Manager. Empty fields leave
// the environment value in place.
type Secrets struct {
	WooConsumerKey    string `json:"woo_consumer_key"`
	WooConsumerSecret string `json:"woo_consumer_secret"`
	MyFatoorahAPIKey  string `json:"myfatoorah_api_key"`
	TabbySecretKey    string `json:"tabby_secret_key"`
	TamaraToken       string `json:"tamara_api_token"`
	JWTSecret         string `json:"jwt_secret"`
	DBPassword        string `json:"db_password"`
	RedisPassword     string `json:"redis_password"`
}

// SecretSource returns the raw payload of a named secret.
type SecretSource interface {
	Access(ctx context.Context, name string) ([]byte, error)
}

// Load reads configuration from environment variables and, in production,
// overlays secrets from Google Secret Manager.
func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}

	if cfg.IsProduction() {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production")
		}
		src, err := NewSecretManagerSource(ctx)
		if err != nil {
			return nil, err
		}
		defer func() { _ = src.Close() }()
		if err := cfg.ApplySecrets(ctx, src); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// SecretName is the fully qualified latest version of the secrets document.
func (c *Config) SecretName() string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.GCPProject, c.SecretsName)
}

// ApplySecrets fetches the secrets document from src and overlays it.
func (c *Config) ApplySecrets(ctx context.Context, src SecretSource) error {
	payload, err := src.Access(ctx, c.SecretName())
	if err != nil {
		return fmt.Errorf("access secret %s: %w", c.SecretName(), err)
	}

	var s Secrets
	if err := json.Unmarshal(payload, &s); err != nil {
		return fmt.Errorf("parse secret JSON: %w", err)
	}

	overlay(&c.WooConsumerKey, s.WooConsumerKey)
	overlay(&c.WooConsumerSecret, s.WooConsumerSecret)
	overlay(&c.MyFatoorahAPIKey, s.MyFatoorahAPIKey)
	overlay(&c.TabbySecretKey, s.TabbySecretKey)
	overlay(&c.TamaraToken, s.TamaraToken)
	overlay(&c.JWTSecret, s.JWTSecret)
	overlay(&c.DBPassword, s.DBPassword)
	overlay(&c.RedisPassword, s.RedisPassword)
	return nil
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	u, err := url.Parse(c.WooBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid WOO_BASE_URL: %q", c.WooBaseURL)
	}
	if c.IsProduction() {
		if c.WooConsumerKey == "" || c.WooConsumerSecret == "" {
			return fmt.Errorf("woocommerce consumer key and secret are required in production")
		}
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.MockGateway {
			return fmt.Errorf("PAYMENT_MOCK cannot be enabled in production")
		}
	}
	if c.GiftDebounce <= 0 {
		return fmt.Errorf("FREE_GIFT_DEBOUNCE must be positive")
	}
	return nil
}

// Postgres returns the database connection settings.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.DBHost
	pg.Port = c.DBPort
	pg.User = c.DBUser
	pg.Password = c.DBPassword
	pg.DBName = c.DBName
	pg.SSLMode = c.DBSSLMode
	pg.MaxConns = c.DBMaxConns
	return pg
}

// Redis returns the redis connection settings.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		PoolSize: 20,
	}
}

// DisplayCurrency resolves a shopper currency code into its rate and decimals.
// Unknown codes fall back to the base currency.
func (c *Config) DisplayCurrency(code string) domain.DisplayCurrency {
	code = strings.ToUpper(strings.TrimSpace(code))
	rate, ok := c.CurrencyRates[code]
	if !ok || rate <= 0 {
		code = strings.ToUpper(c.BaseCurrency)
		rate = 1
	}
	decimals, ok := c.CurrencyDecimals[code]
	if !ok {
		decimals = 2
	}
	return domain.DisplayCurrency{Code: code, Rate: rate, Decimals: decimals}
}

// SecretManagerSource reads secrets from Google Secret Manager.
type SecretManagerSource struct {
	client *secretmanager.Client
}

// NewSecretManagerSource creates a client using application default credentials.
func NewSecretManagerSource(ctx context.Context) (*SecretManagerSource, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create secret manager client: %w", err)
	}
	return &SecretManagerSource{client: client}, nil
}

// Access returns the payload of the named secret version.
func (s *SecretManagerSource) Access(ctx context.Context, name string) ([]byte, error) {
	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return nil, err
	}
	return result.Payload.Data, nil
}

// Close releases the client.
func (s *SecretManagerSource) Close() error {
	return s.client.Close()
}
