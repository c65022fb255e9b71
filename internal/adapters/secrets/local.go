package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/billingops/payment-orchestrator/internal/domain/ports"
)

// localSecretSource resolves secrets from the local filesystem.
// Development only; use AWS Secrets Manager or Vault in production.
type localSecretSource struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalSecretSource creates a filesystem-backed secret source
func NewLocalSecretSource(basePath string, logger *zap.Logger) ports.SecretSource {
	return &localSecretSource{
		basePath: basePath,
		logger:   logger,
	}
}

// GetSecret reads a secret file; both plain text and a JSON document with a
// "value" field are accepted.
func (s *localSecretSource) GetSecret(ctx context.Context, secretPath string) (*ports.Secret, error) {
	filePath := filepath.Join(s.basePath, secretPath)

	s.logger.Debug("Reading secret from filesystem",
		zap.String("path", secretPath),
	)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("secret not found: %s", secretPath)
		}
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	var secretData struct {
		Value string            `json:"value"`
		Tags  map[string]string `json:"tags"`
	}
	if err := json.Unmarshal(data, &secretData); err == nil && secretData.Value != "" {
		return &ports.Secret{
			Value:    secretData.Value,
			Version:  "v1",
			Metadata: secretData.Tags,
		}, nil
	}

	return &ports.Secret{
		Value:   strings.TrimSpace(string(data)),
		Version: "v1",
	}, nil
}
