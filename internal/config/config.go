// Package config defines the configuration structure for the report deadline
// notifier. Configuration is loaded once at process start (or Lambda cold start)
// and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails startup with a ConfigError.
package config

import (
	"time"

	"reportnotify/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers need not
// import the types package for redacted fields.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only the
// config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"report-notifier"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Zalo          ZaloConfig
	Scheduler     SchedulerConfig
	Security      SecurityConfig
	Observability ObservabilityConfig
	Events        EventsConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration for the admin API.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownGrace  time.Duration `envconfig:"SHUTDOWN_GRACE" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`

	// AutoMigrate applies embedded schema migrations at startup.
	AutoMigrate bool `envconfig:"DB_AUTO_MIGRATE" default:"false"`
}

// AWSConfig holds AWS regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"ap-southeast-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ZaloConfig holds the chat-platform application credentials and endpoints.
type ZaloConfig struct {
	AppID     string       `envconfig:"ZALO_APP_ID" validate:"required"`
	AppSecret SecretString `envconfig:"ZALO_APP_SECRET" validate:"required"`

	// OAuthBaseURL hosts the access_token endpoint.
	OAuthBaseURL string `envconfig:"ZALO_OAUTH_BASE_URL" default:"https://oauth.zaloapp.com/v4/oa" validate:"required,url"`
	// APIBaseURL hosts the getprofile and message endpoints.
	APIBaseURL string `envconfig:"ZALO_API_BASE_URL" default:"https://openapi.zalo.me/v2.0/oa" validate:"required,url"`

	HTTPTimeout   time.Duration `envconfig:"ZALO_HTTP_TIMEOUT" default:"10s"`
	UserAgent     string        `envconfig:"ZALO_USER_AGENT" default:"ReportNotify/1.0"`
	RefreshBuffer time.Duration `envconfig:"ZALO_REFRESH_BUFFER" default:"60s"`
}

// SchedulerConfig holds the deadline trigger policy and loop settings.
type SchedulerConfig struct {
	Enabled          bool          `envconfig:"SCHEDULER_ENABLED" default:"true"`
	Interval         time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"15m" validate:"gt=0"`
	ElapsedThreshold float64       `envconfig:"SCHEDULER_ELAPSED_THRESHOLD" default:"0.8" validate:"gt=0,lte=1"`
	MinRemaining     time.Duration `envconfig:"SCHEDULER_MIN_REMAINING" default:"30m" validate:"gte=0"`
	LockTTL          time.Duration `envconfig:"SCHEDULER_LOCK_TTL" default:"10m" validate:"gt=0"`
	// Timezone is used to render deadlines in outbound messages.
	Timezone string `envconfig:"SCHEDULER_TIMEZONE" default:"Asia/Ho_Chi_Minh" validate:"required,timezone"`
}

// SecurityConfig holds admin API access configuration.
type SecurityConfig struct {
	// AdminAPIKeyHash is the bcrypt hash of the X-Admin-Key header value.
	AdminAPIKeyHash SecretString `envconfig:"ADMIN_API_KEY_HASH" validate:"required"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricsBackend  string `envconfig:"METRICS_BACKEND" default:"none" validate:"oneof=none cloudwatch prometheus"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"ReportNotify"`
}

// EventsConfig selects where dispatch events are published.
type EventsConfig struct {
	Backend     string       `envconfig:"EVENTS_BACKEND" default:"none" validate:"oneof=none sqs amqp"`
	SQSQueueURL string       `envconfig:"EVENTS_SQS_QUEUE_URL" validate:"required_if=Backend sqs"`
	AMQPURL     SecretString `envconfig:"EVENTS_AMQP_URL" validate:"required_if=Backend amqp"`
	Exchange    string       `envconfig:"EVENTS_AMQP_EXCHANGE" default:"report.events"`
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
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure parsing environment values into their types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)

// Location resolves the scheduler timezone. LoadConfig has already validated it,
// so a failure here falls back to UTC.
func (c SchedulerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
