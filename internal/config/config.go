package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// Security token used to access the API of this instance.
	APIToken string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Stripe  StripeConfig
	Billing BillingConfig
	SMTP    SMTPConfig
}

// StripeConfig carries the payment provider credentials.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// BillingConfig carries invoice numbering and tax jurisdiction settings.
// It is passed explicitly into the ledger and the VAT calculator; nothing
// reads these values from ambient globals.
type BillingConfig struct {
	// ISO country code of the seller's primary establishment.
	HomeCountry string

	// Additional countries the seller is registered to collect tax in.
	RegisteredCountries []string

	// Template for business invoice numbers, e.g. "{YYYY}.{SEQ}".
	NumberTemplate string

	// Bounded retry policy for sequence allocation.
	SequenceMaxAttempts int
	SequenceBackoff     time.Duration

	// Seller identity printed on rendered documents.
	SellerName      string
	SellerAddress   string
	SellerVATNumber string
	SellerEmail     string

	// How often the enrichment pass (VIES data, PDF, mail) runs.
	EnrichInterval time.Duration
}

// SMTPConfig carries outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "billfold"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		APIToken:     strings.TrimSpace(getenv("API_TOKEN", "")),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "billfold"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
		},
		Billing: BillingConfig{
			HomeCountry:         strings.ToUpper(strings.TrimSpace(getenv("HOME_COUNTRY", "BE"))),
			RegisteredCountries: parseCountries(getenv("REGISTERED_COUNTRIES", "")),
			NumberTemplate:      getenv("INVOICE_NUMBER_TEMPLATE", "{YYYY}.{SEQ}"),
			SequenceMaxAttempts: getenvInt("SEQUENCE_MAX_ATTEMPTS", 5),
			SequenceBackoff:     getenvDuration("SEQUENCE_BACKOFF", 25*time.Millisecond),
			SellerName:          getenv("SELLER_NAME", ""),
			SellerAddress:       getenv("SELLER_ADDRESS", ""),
			SellerVATNumber:     strings.TrimSpace(getenv("SELLER_VAT_NUMBER", "")),
			SellerEmail:         strings.TrimSpace(getenv("SELLER_EMAIL", "")),
			EnrichInterval:      getenvDuration("ENRICH_INTERVAL", 15*time.Minute),
		},
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST", ""),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", ""),
		},
	}
}

// Module wires application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(func(cfg Config) BillingConfig { return cfg.Billing }),
	fx.Provide(func(cfg Config) StripeConfig { return cfg.Stripe }),
	fx.Provide(func(cfg Config) SMTPConfig { return cfg.SMTP }),
)

func parseCountries(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
