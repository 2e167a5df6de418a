package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the client/user store backend
type StorageKind string

const (
	StorageMemory    StorageKind = "memory"
	StorageFirestore StorageKind = "firestore"
)

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	BaseURL string `json:"baseURL"`
	Addr    string `json:"addr"`
}

// GoogleConfig configures Google sign-in for resource owners. Optional;
// email/password login always works.
type GoogleConfig struct {
	ClientID     string `json:"clientId"`
	ClientSecret Secret `json:"clientSecret"`
	RedirectURI  string `json:"redirectUri"`
}

// AuthConfig holds token issuance and storage settings
type AuthConfig struct {
	SigningKey        Secret
	CodeTTL           time.Duration
	TokenTTL          time.Duration
	SessionTTL        time.Duration
	Storage           StorageKind
	GCPProject        string
	FirestoreDatabase string
	CollectionPrefix  string
	Google            *GoogleConfig
}

// Config represents the config structure with resolved values
type Config struct {
	Server ServerConfig `json:"server"`
	Auth   AuthConfig   `json:"auth"`
}

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR"} reference resolved from the environment.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	return value, nil
}

// UnmarshalJSON implements custom unmarshaling for GoogleConfig
func (g *GoogleConfig) UnmarshalJSON(data []byte) error {
	type rawGoogle struct {
		ClientID     json.RawMessage `json:"clientId"`
		ClientSecret json.RawMessage `json:"clientSecret"`
		RedirectURI  json.RawMessage `json:"redirectUri"`
	}

	var raw rawGoogle
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.ClientID != nil {
		parsed, err := ParseConfigValue(raw.ClientID)
		if err != nil {
			return fmt.Errorf("parsing clientId: %w", err)
		}
		g.ClientID = parsed
	}

	if raw.ClientSecret != nil {
		parsed, err := ParseConfigValue(raw.ClientSecret)
		if err != nil {
			return fmt.Errorf("parsing clientSecret: %w", err)
		}
		g.ClientSecret = Secret(parsed)
	}

	if raw.RedirectURI != nil {
		parsed, err := ParseConfigValue(raw.RedirectURI)
		if err != nil {
			return fmt.Errorf("parsing redirectUri: %w", err)
		}
		g.RedirectURI = parsed
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for AuthConfig
func (a *AuthConfig) UnmarshalJSON(data []byte) error {
	type rawAuth struct {
		SigningKey        json.RawMessage `json:"signingKey"`
		CodeTTL           string          `json:"codeTtl"`
		TokenTTL          string          `json:"tokenTtl"`
		SessionTTL        string          `json:"sessionTtl"`
		Storage           StorageKind     `json:"storage"`
		GCPProject        json.RawMessage `json:"gcpProject"`
		FirestoreDatabase string          `json:"firestoreDatabase,omitempty"`
		CollectionPrefix  string          `json:"collectionPrefix,omitempty"`
		Google            *GoogleConfig   `json:"google,omitempty"`
	}

	var raw rawAuth
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.Storage = raw.Storage
	a.FirestoreDatabase = raw.FirestoreDatabase
	a.CollectionPrefix = raw.CollectionPrefix
	a.Google = raw.Google

	if raw.SigningKey != nil {
		parsed, err := ParseConfigValue(raw.SigningKey)
		if err != nil {
			return fmt.Errorf("parsing signingKey: %w", err)
		}
		a.SigningKey = Secret(parsed)
	}

	if raw.CodeTTL != "" {
		d, err := time.ParseDuration(raw.CodeTTL)
		if err != nil {
			return fmt.Errorf("parsing codeTtl: %w", err)
		}
		a.CodeTTL = d
	}

	if raw.TokenTTL != "" {
		d, err := time.ParseDuration(raw.TokenTTL)
		if err != nil {
			return fmt.Errorf("parsing tokenTtl: %w", err)
		}
		a.TokenTTL = d
	}

	if raw.SessionTTL != "" {
		d, err := time.ParseDuration(raw.SessionTTL)
		if err != nil {
			return fmt.Errorf("parsing sessionTtl: %w", err)
		}
		a.SessionTTL = d
	}

	if raw.GCPProject != nil {
		parsed, err := ParseConfigValue(raw.GCPProject)
		if err != nil {
			return fmt.Errorf("parsing gcpProject: %w", err)
		}
		a.GCPProject = parsed
	}

	return nil
}
