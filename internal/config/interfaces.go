package config

import "context"

// SecretProvider resolves secret pointers (SSM parameter paths in deployed
// environments, plain variable names locally) to plaintext values.
type SecretProvider interface {
	// GetParametersBatch returns key -> value for every key it could resolve.
	// Keys it cannot find are omitted; LoadConfig reports them as missing.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
