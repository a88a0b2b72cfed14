package config

import "context"

// SecretProvider resolves secret parameter paths to plaintext values. SSM
// backs deployed environments; the environment itself backs local runs.
type SecretProvider interface {
	// GetParametersBatch returns path -> value for every resolved key.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
