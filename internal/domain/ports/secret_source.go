package ports

import (
	"context"
)

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value    string            // The secret value (e.g., gateway HMAC key)
	Version  string            // Secret version identifier
	Metadata map[string]string // Additional secret metadata
}

// SecretSource defines the port for resolving credentials from a secret
// backend. Supported backends: local filesystem (development), AWS Secrets
// Manager, HashiCorp Vault. Implementations are responsible for
// authentication with the backend and for caching with a TTL.
type SecretSource interface {
	// GetSecret retrieves a secret by its path/name.
	// Path format depends on implementation:
	//   - AWS:   "payment-orchestrator/gateways/{name}/hmac"
	//   - Vault: "secret/data/payment-orchestrator/gateways/{name}"
	//   - Local: relative file path under the configured base directory
	GetSecret(ctx context.Context, path string) (*Secret, error)
}
