// Package config loads and validates taletwo's process configuration from
// environment variables plus an optional taletwo.yaml for model routing.
package config

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// Config is the resolved process configuration.
type Config struct {
	// Port the HTTP server listens on.
	Port string

	// CORSOrigin is the allowed CORS origin ("*" by default).
	CORSOrigin string

	// OpenAI holds the chat-completion endpoint settings.
	OpenAI OpenAIConfig

	// FirebaseCredentialsJSON is the service-account key used for token
	// verification. Empty means Application Default Credentials.
	FirebaseCredentialsJSON []byte

	// AuthDisabled replaces token verification with a static development
	// identity. Never set this in production.
	AuthDisabled bool

	// Models routes each generation task to a model and reasoning effort.
	Models *ModelsConfig

	// Retention controls the branch cache cleanup loop.
	Retention *RetentionConfig
}

// OpenAIConfig holds the chat-completion endpoint settings.
type OpenAIConfig struct {
	// APIKey authenticates against the endpoint. Required.
	APIKey string

	// BaseURL is the endpoint root, e.g. https://api.openai.com/v1.
	BaseURL string

	// Model is the default model; per-task routing may override it.
	Model string

	// TPMBudget is the tokens-per-minute budget for the gateway's local rate
	// limiter. Zero disables rate limiting.
	TPMBudget int
}

// Load resolves configuration from the environment and, when present,
// <configDir>/taletwo.yaml. A missing YAML file is not an error; the built-in
// defaults apply.
func Load(configDir string) (*Config, error) {
	cfg := &Config{
		Port:       getEnv("PORT", "3000"),
		CORSOrigin: getEnv("CORS_ORIGIN", "*"),
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:   getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
		},
		Retention: DefaultRetentionConfig(),
	}

	if v := os.Getenv("OPENAI_TPM_BUDGET"); v != "" {
		budget, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid OPENAI_TPM_BUDGET %q", ErrInvalidValue, v)
		}
		cfg.OpenAI.TPMBudget = budget
	}

	if v := os.Getenv("AUTH_DISABLED"); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid AUTH_DISABLED %q", ErrInvalidValue, v)
		}
		cfg.AuthDisabled = disabled
	}

	creds, err := resolveFirebaseCredentials()
	if err != nil {
		return nil, err
	}
	cfg.FirebaseCredentialsJSON = creds

	cfg.Models = DefaultModelsConfig(cfg.OpenAI.Model)
	if err := applyYAMLOverrides(cfg, configDir); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	slog.Info("Configuration loaded",
		"port", cfg.Port,
		"cors_origin", cfg.CORSOrigin,
		"openai_base_url", cfg.OpenAI.BaseURL,
		"default_model", cfg.OpenAI.Model,
		"tpm_budget", cfg.OpenAI.TPMBudget,
		"firebase_credentials", len(cfg.FirebaseCredentialsJSON) > 0,
		"auth_disabled", cfg.AuthDisabled)

	return cfg, nil
}

// resolveFirebaseCredentials reads the service-account key from
// FIREBASE_SERVICE_ACCOUNT (raw JSON) or FIREBASE_SERVICE_ACCOUNT_BASE64.
// Both unset means Application Default Credentials.
func resolveFirebaseCredentials() ([]byte, error) {
	if raw := os.Getenv("FIREBASE_SERVICE_ACCOUNT"); raw != "" {
		return []byte(raw), nil
	}
	if encoded := os.Getenv("FIREBASE_SERVICE_ACCOUNT_BASE64"); encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: FIREBASE_SERVICE_ACCOUNT_BASE64 is not valid base64: %v", ErrInvalidValue, err)
		}
		return decoded, nil
	}
	return nil, nil
}

func (c *Config) validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingRequiredField)
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("%w: invalid PORT %q", ErrInvalidValue, c.Port)
	}
	if c.OpenAI.TPMBudget < 0 {
		return fmt.Errorf("%w: OPENAI_TPM_BUDGET must not be negative", ErrInvalidValue)
	}
	return c.Models.validate()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
