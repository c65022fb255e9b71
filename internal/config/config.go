package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration. Everything is passed in
// explicitly at construction time; nothing reads ambient globals after
// startup, so multiple orchestrator instances can coexist.
type Config struct {
	Server       ServerConfig
	Billing      BillingConfig
	Comgate      ComgateConfig
	BankTransfer BankTransferConfig
	Database     DatabaseConfig
	Secrets      SecretsConfig
	Verification VerificationConfig
	URLs         URLConfig
	Logger       LoggerConfig

	// AllowedCurrencies is the order validation allow-list
	AllowedCurrencies []string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	MetricsPort int
}

// BillingConfig holds billing system API configuration
type BillingConfig struct {
	BaseURL string // Base URL of the billing API (e.g., https://billing.example.com)
	APIID   string // API credential id
	APIKey  string // API credential secret (may be a secret ref, see SecretsConfig)
	Timeout int    // Request timeout in seconds (default: 30)
}

// ComgateConfig holds ComGate gateway configuration
type ComgateConfig struct {
	BaseURL    string
	MerchantID string
	Secret     string // Shared secret; also verifies callback HMAC
	Test       bool
}

// BankTransferConfig holds the beneficiary account for the offline method
type BankTransferConfig struct {
	AccountName   string
	AccountNumber string
	BankCode      string
	IBAN          string
	SwiftBIC      string
}

// DatabaseConfig holds the optional durable ledger backing.
// An empty DSN selects the in-memory ledger.
type DatabaseConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// SecretsConfig selects where credential values marked "ref:<path>" resolve
// from. Backend is one of: "" (plain env values), "local", "aws", "vault".
type SecretsConfig struct {
	Backend      string
	LocalPath    string // Base dir for the local backend
	AWSRegion    string
	VaultAddress string
	VaultToken   string
}

// VerificationConfig holds invoice polling defaults
type VerificationConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
}

// URLConfig holds the externally reachable URLs gateways redirect back to
type URLConfig struct {
	ReturnURL  string
	CancelURL  string
	PendingURL string
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort: getEnvAsInt("METRICS_PORT", 9090),
		},
		Billing: BillingConfig{
			BaseURL: getEnv("BILLING_BASE_URL", ""),
			APIID:   getEnv("BILLING_API_ID", ""),
			APIKey:  getEnv("BILLING_API_KEY", ""),
			Timeout: getEnvAsInt("BILLING_TIMEOUT", 30),
		},
		Comgate: ComgateConfig{
			BaseURL:    getEnv("COMGATE_BASE_URL", "https://payments.comgate.cz"),
			MerchantID: getEnv("COMGATE_MERCHANT_ID", ""),
			Secret:     getEnv("COMGATE_SECRET", ""),
			Test:       getEnvAsBool("COMGATE_TEST", false),
		},
		BankTransfer: BankTransferConfig{
			AccountName:   getEnv("BANK_ACCOUNT_NAME", ""),
			AccountNumber: getEnv("BANK_ACCOUNT_NUMBER", ""),
			BankCode:      getEnv("BANK_CODE", ""),
			IBAN:          getEnv("BANK_IBAN", ""),
			SwiftBIC:      getEnv("BANK_SWIFT_BIC", ""),
		},
		Database: DatabaseConfig{
			DSN:      getEnv("LEDGER_DB_DSN", ""),
			MaxConns: int32(getEnvAsInt("LEDGER_DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("LEDGER_DB_MIN_CONNS", 5)),
		},
		Secrets: SecretsConfig{
			Backend:      getEnv("SECRETS_BACKEND", ""),
			LocalPath:    getEnv("SECRETS_LOCAL_PATH", "/etc/payment-orchestrator/secrets"),
			AWSRegion:    getEnv("SECRETS_AWS_REGION", "us-east-1"),
			VaultAddress: getEnv("SECRETS_VAULT_ADDR", ""),
			VaultToken:   getEnv("SECRETS_VAULT_TOKEN", ""),
		},
		Verification: VerificationConfig{
			MaxAttempts:       getEnvAsInt("VERIFY_MAX_ATTEMPTS", 5),
			InitialDelay:      time.Duration(getEnvAsInt("VERIFY_INITIAL_DELAY_MS", 2000)) * time.Millisecond,
			BackoffMultiplier: getEnvAsFloat("VERIFY_BACKOFF_MULTIPLIER", 2.0),
			MaxDelay:          time.Duration(getEnvAsInt("VERIFY_MAX_DELAY_MS", 30000)) * time.Millisecond,
		},
		URLs: URLConfig{
			ReturnURL:  getEnv("PAYMENT_RETURN_URL", ""),
			CancelURL:  getEnv("PAYMENT_CANCEL_URL", ""),
			PendingURL: getEnv("PAYMENT_PENDING_URL", ""),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		AllowedCurrencies: splitList(getEnv("ALLOWED_CURRENCIES", "EUR,USD,CZK")),
	}

	// Validate required fields
	if cfg.Billing.BaseURL == "" {
		return nil, fmt.Errorf("BILLING_BASE_URL is required")
	}
	if cfg.Billing.APIID == "" {
		return nil, fmt.Errorf("BILLING_API_ID is required")
	}
	if cfg.Billing.APIKey == "" {
		return nil, fmt.Errorf("BILLING_API_KEY is required")
	}
	if cfg.URLs.ReturnURL == "" {
		return nil, fmt.Errorf("PAYMENT_RETURN_URL is required")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
