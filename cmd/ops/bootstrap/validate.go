package main

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rabbitmq/amqp091-go"
)

// ValidationResult is the outcome of validating one operator input.
type ValidationResult struct {
	Valid   bool
	Message string
}

// DatabaseConnector opens and immediately closes a connection to dsn.
type DatabaseConnector interface {
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector verifies reachability and credentials with pgx.Connect.
type PgxConnector struct{}

func (c *PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// Validator holds the dependencies of the active checks.
type Validator struct {
	dbConn DatabaseConnector
}

// NewValidator creates a Validator that really connects to the database.
func NewValidator() *Validator {
	return &Validator{dbConn: &PgxConnector{}}
}

// NewValidatorWithDeps creates a Validator with an injected connector. A nil
// connector limits database validation to parsing.
func NewValidatorWithDeps(dbConn DatabaseConnector) *Validator {
	return &Validator{dbConn: dbConn}
}

// validateTimeout bounds each active probe.
const validateTimeout = 15 * time.Second

// ValidateDatabaseURL parses rawURL as a pgx connection string and, when a
// connector is configured, connects once to prove the credentials.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ValidationResult{Valid: false, Message: "database URL must not be empty"}
	}
	if !strings.HasPrefix(rawURL, "postgres://") && !strings.HasPrefix(rawURL, "postgresql://") {
		return ValidationResult{Valid: false, Message: "expected a postgres:// or postgresql:// URL"}
	}

	cfg, err := pgx.ParseConfig(rawURL)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid connection string: %v", err)}
	}

	if v.dbConn == nil {
		return ValidationResult{
			Valid:   true,
			Message: fmt.Sprintf("connection string parsed (host=%s, database=%s)", cfg.Host, cfg.Database),
		}
	}

	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	if err := v.dbConn.Connect(connCtx, rawURL); err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("connection failed: %v", err)}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("database connection verified (host=%s, database=%s)", cfg.Host, cfg.Database),
	}
}

// ValidateAMQPURL checks the broker URL parses as an AMQP URI.
func (v *Validator) ValidateAMQPURL(_ context.Context, rawURL string) ValidationResult {
	uri, err := amqp091.ParseURI(strings.TrimSpace(rawURL))
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid AMQP URL: %v", err)}
	}
	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("AMQP URL parsed (host=%s, vhost=%s)", uri.Host, uri.Vhost),
	}
}

// Zalo application credentials as shown on the developer console.
var (
	zaloAppIDRegex     = regexp.MustCompile(`^[0-9]{6,}$`)
	zaloAppSecretRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{16,}$`)
)

// ValidateZaloAppID checks the application id is numeric.
func (v *Validator) ValidateZaloAppID(ctx context.Context, id string) ValidationResult {
	return v.validatePattern(zaloAppIDRegex, id, "Zalo App ID")
}

// ValidateZaloAppSecret checks the shape of the application secret key.
func (v *Validator) ValidateZaloAppSecret(ctx context.Context, secret string) ValidationResult {
	return v.validatePattern(zaloAppSecretRegex, secret, "Zalo App Secret")
}

// ValidateRegex checks input against pattern.
func (v *Validator) ValidateRegex(_ context.Context, input, pattern, fieldName string) ValidationResult {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid validation pattern for %s: %v", fieldName, err)}
	}
	return v.validatePattern(re, input, fieldName)
}

func (v *Validator) validatePattern(re *regexp.Regexp, input, fieldName string) ValidationResult {
	input = strings.TrimSpace(input)
	if input == "" {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("%s must not be empty", fieldName)}
	}
	if !re.MatchString(input) {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("%s has an unexpected format", fieldName)}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("%s format OK", fieldName)}
}
