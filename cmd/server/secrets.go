package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/billingops/payment-orchestrator/internal/adapters/secrets"
	"github.com/billingops/payment-orchestrator/internal/config"
	"github.com/billingops/payment-orchestrator/internal/domain/ports"
)

// secretRefPrefix marks a config value that must be resolved through the
// secret backend instead of being used verbatim, e.g. "ref:gateways/comgate/hmac".
const secretRefPrefix = "ref:"

// initSecretSource initializes the configured secret backend.
// Supports:
//   - AWS Secrets Manager (SECRETS_BACKEND=aws)
//   - HashiCorp Vault (SECRETS_BACKEND=vault)
//   - Local filesystem (SECRETS_BACKEND=local, development only)
//
// Returns nil when no backend is configured; config values are then used
// as-is and any "ref:" value is a startup error.
func initSecretSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) ports.SecretSource {
	switch cfg.Secrets.Backend {
	case "":
		return nil

	case "local":
		logger.Warn("Using local filesystem secret source; not for production",
			zap.String("path", cfg.Secrets.LocalPath),
		)
		return secrets.NewLocalSecretSource(cfg.Secrets.LocalPath, logger)

	case "aws":
		source, err := secrets.NewAWSSecretSource(ctx, secrets.DefaultAWSConfig(cfg.Secrets.AWSRegion), logger)
		if err != nil {
			logger.Fatal("Failed to initialize AWS Secrets Manager source", zap.Error(err))
		}
		return source

	case "vault":
		source, err := secrets.NewVaultSecretSource(
			secrets.DefaultVaultConfig(cfg.Secrets.VaultAddress, cfg.Secrets.VaultToken),
			logger,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Vault secret source", zap.Error(err))
		}
		return source

	default:
		logger.Fatal("Unknown SECRETS_BACKEND",
			zap.String("backend", cfg.Secrets.Backend),
		)
		return nil
	}
}

// resolveSecrets replaces every "ref:" config value with the secret it
// points at. Done once at startup so the rest of the process only ever sees
// plain credential values.
func resolveSecrets(ctx context.Context, cfg *config.Config, source ports.SecretSource) error {
	fields := []struct {
		name  string
		value *string
	}{
		{"billing api key", &cfg.Billing.APIKey},
		{"comgate secret", &cfg.Comgate.Secret},
	}

	for _, field := range fields {
		resolved, err := resolveSecret(ctx, source, *field.value)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", field.name, err)
		}
		*field.value = resolved
	}
	return nil
}

func resolveSecret(ctx context.Context, source ports.SecretSource, value string) (string, error) {
	if !strings.HasPrefix(value, secretRefPrefix) {
		return value, nil
	}
	if source == nil {
		return "", fmt.Errorf("value is a secret ref but no SECRETS_BACKEND is configured")
	}

	secret, err := source.GetSecret(ctx, strings.TrimPrefix(value, secretRefPrefix))
	if err != nil {
		return "", err
	}
	return secret.Value, nil
}
