// Package config defines the process configuration for the ledger services.
// Configuration is loaded once at process start (Lambda cold start or local
// boot) and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format fails startup.
package config

import (
	"time"

	"matchpass/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers need not
// import the types package for secret fields.
type SecretString = types.SecretString

// Renewal policies for repurchasing an already-active timed plan.
const (
	RenewalReplace = "replace"
	RenewalExtend  = "extend"
)

// Config is the top-level configuration struct. Sub-components receive only
// the subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"matchpass-ledger"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Billing       BillingConfig
	Ledger        LedgerConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// WorkerConfig is the configuration of the background binaries.
type WorkerConfig struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"matchpass-ledger"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Database      DatabaseConfig
	AWS           AWSConfig
	Ledger        LedgerConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	AppURL         string        `envconfig:"APP_URL" validate:"required,url"` // checkout redirect base, no trailing slash
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	EnsureSchema    bool          `envconfig:"DB_ENSURE_SCHEMA" default:"false"`
}

// AWSConfig holds AWS resource identifiers.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"eu-north-1"`

	// PaymentEventQueue receives verified payment events from the webhook
	// receiver. When empty, events are applied inline by the API process.
	PaymentEventQueue string `envconfig:"SQS_PAYMENT_EVENTS" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds Stripe credentials.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
}

// LedgerConfig holds the tunables of the entitlement ledger.
type LedgerConfig struct {
	// DailyFreeCap is shared by the Abuse Guard and the daily top-up so both
	// agree on a single number.
	DailyFreeCap   int           `envconfig:"LEDGER_DAILY_FREE_CAP" default:"5" validate:"min=0"`
	UnlockDuration time.Duration `envconfig:"LEDGER_UNLOCK_DURATION" default:"24h"`
	RenewalPolicy  string        `envconfig:"LEDGER_RENEWAL_POLICY" default:"replace" validate:"oneof=replace extend"`
	PromoCode      string        `envconfig:"LEDGER_PROMO_CODE" default:"NEWPROVIDER90" validate:"required"`
	PromoRole      string        `envconfig:"LEDGER_PROMO_ROLE" default:"provider" validate:"required"`
}

// SecurityConfig holds credentials for internal callers and CORS settings.
type SecurityConfig struct {
	// ServiceKeyHash is a bcrypt hash of the key internal callers present in
	// X-Service-Key when invoking apply/revoke directly.
	ServiceKeyHash     SecretString `envconfig:"SERVICE_KEY_HASH" validate:"required"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"MatchPass/Ledger"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
