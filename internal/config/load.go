package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	if err := validateRawConfig(data); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// Parse directly into the typed Config struct. The custom UnmarshalJSON
	// methods resolve env var references immediately.
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig checks secret hygiene before environment resolution:
// secrets must come from the environment, not sit in the config file.
func validateRawConfig(data []byte) error {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return fmt.Errorf("parsing config JSON: %w", err)
	}

	auth, ok := rawConfig["auth"].(map[string]any)
	if !ok {
		return fmt.Errorf("auth section is required")
	}

	secrets := []string{"signingKey"}
	if google, ok := auth["google"].(map[string]any); ok {
		if value, exists := google["clientSecret"]; exists {
			if _, isString := value.(string); isString {
				return fmt.Errorf("google.clientSecret must use environment variable reference for security")
			}
		}
	}

	for _, name := range secrets {
		value, exists := auth[name]
		if !exists {
			return fmt.Errorf("auth.%s is required", name)
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s must use environment variable reference for security", name)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", name)
			}
		}
	}

	return nil
}

func applyDefaults(config *Config) {
	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Auth.CodeTTL == 0 {
		config.Auth.CodeTTL = 10 * time.Minute
	}
	if config.Auth.TokenTTL == 0 {
		config.Auth.TokenTTL = time.Hour
	}
	if config.Auth.SessionTTL == 0 {
		config.Auth.SessionTTL = 24 * time.Hour
	}
	if config.Auth.Storage == "" {
		config.Auth.Storage = StorageMemory
	}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Server.BaseURL == "" {
		return fmt.Errorf("server.baseURL is required")
	}

	if len(config.Auth.SigningKey) < 32 {
		return fmt.Errorf("signing key must be at least 32 bytes, got %d", len(config.Auth.SigningKey))
	}

	switch config.Auth.Storage {
	case StorageMemory:
	case StorageFirestore:
		if config.Auth.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
	default:
		return fmt.Errorf("unknown storage kind: %s", config.Auth.Storage)
	}

	if google := config.Auth.Google; google != nil {
		if google.ClientID == "" || google.ClientSecret == "" {
			return fmt.Errorf("google sign-in requires clientId and clientSecret")
		}
		if google.RedirectURI == "" {
			return fmt.Errorf("google sign-in requires redirectUri")
		}
	}

	return nil
}
