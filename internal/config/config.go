// Package config handles loading and validation of service configuration.
// Supports both development (env vars, .env, CONFIG_FILE) and production
// (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	defaultEnvFile    = ".env"
	defaultSecretName = "weft-mcp"
)

// Config holds all service configuration.
type Config struct {
	// Server settings
	Port        string `json:"port" validate:"required,numeric"`
	Environment string `json:"environment" validate:"oneof=development production test"`
	LogLevel    string `json:"log_level" validate:"oneof=debug info warn error"`

	// GCP settings (required in production)
	GCPProject string `json:"gcp_project" validate:"required_if=Environment production"`
	SecretName string `json:"secret_name"`

	Catalog CatalogConfig `json:"catalog"`
	Cart    CartConfig    `json:"cart"`
	MCP     MCPConfig     `json:"mcp"`
}

// CatalogConfig selects where store catalogs come from and how products are
// presented.
type CatalogConfig struct {
	Source       string   `json:"source" validate:"oneof=file http"`
	Root         string   `json:"root" validate:"required_if=Source file"`
	BaseURL      string   `json:"base_url" validate:"required_if=Source http,omitempty,url"`
	StorePolicy  string   `json:"store_policy" validate:"oneof=single directory"`
	DefaultStore string   `json:"default_store" validate:"required_if=StorePolicy single,excludesall=/\\"`
	ChromeTLS    bool     `json:"chrome_tls"`
	Timeout      Duration `json:"timeout"`
	ImageBaseURL string   `json:"image_base_url"`
	Currency     string   `json:"currency"`
}

// CartConfig selects the cart storage backend.
type CartConfig struct {
	Backend     string `json:"backend" validate:"oneof=memory postgres"`
	DatabaseURL string `json:"database_url" validate:"required_if=Backend postgres"`
}

// MCPConfig controls the MCP endpoint.
type MCPConfig struct {
	// Stateless disables MCP session tracking in the streamable transport.
	Stateless bool `json:"stateless"`

	// WidgetDir holds the products and cart widget HTML. Empty disables the
	// widget resources.
	WidgetDir string `json:"widget_dir"`
}

// SecretConfig is the JSON payload stored in Secret Manager.
type SecretConfig struct {
	DatabaseURL    string `json:"database_url,omitempty"`
	CatalogBaseURL string `json:"catalog_base_url,omitempty"`
}

// Duration is a time.Duration that unmarshals from "10s"-style JSON strings.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"10s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// IsProduction reports whether secrets load from Secret Manager.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load builds the configuration from, in increasing priority: defaults,
// a .env file (outside production), environment variables, CONFIG_FILE, and
// in production the Secret Manager payload. The result is validated.
func Load(ctx context.Context) (*Config, error) {
	env := newEnv()

	cfg := &Config{
		Port:        env.get("PORT", "8080"),
		Environment: env.get("ENVIRONMENT", "development"),
		LogLevel:    env.get("LOG_LEVEL", "info"),
		GCPProject:  env.get("GCP_PROJECT", ""),
		SecretName:  env.get("SECRET_NAME", defaultSecretName),
		Catalog: CatalogConfig{
			Source:       env.get("CATALOG_SOURCE", "file"),
			Root:         env.get("CATALOG_ROOT", "stores"),
			BaseURL:      env.get("CATALOG_BASE_URL", ""),
			StorePolicy:  env.get("CATALOG_STORE_POLICY", "single"),
			DefaultStore: env.get("DEFAULT_STORE", ""),
			ImageBaseURL: env.get("IMAGE_BASE_URL", ""),
			Currency:     env.get("CURRENCY", "₪"),
		},
		Cart: CartConfig{
			Backend:     env.get("CART_BACKEND", "memory"),
			DatabaseURL: env.get("DATABASE_URL", ""),
		},
		MCP: MCPConfig{
			WidgetDir: env.get("WIDGET_DIR", ""),
		},
	}

	var err error
	if cfg.Catalog.ChromeTLS, err = env.bool("CATALOG_CHROME_TLS"); err != nil {
		return nil, err
	}
	if cfg.MCP.Stateless, err = env.bool("MCP_STATELESS"); err != nil {
		return nil, err
	}
	timeout, err := time.ParseDuration(env.get("CATALOG_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("parsing CATALOG_TIMEOUT: %w", err)
	}
	cfg.Catalog.Timeout = Duration(timeout)

	if configPath := env.get("CONFIG_FILE", ""); configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, err
		}
	}

	if cfg.IsProduction() {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading secrets: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile overlays the JSON file at path onto c. Fields absent from the
// file keep their current values.
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// loadFromSecretManager fetches sensitive settings from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret_name}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.SecretName)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	return c.applySecret(result.Payload.Data)
}

// applySecret overlays a SecretConfig payload. Empty members are ignored.
func (c *Config) applySecret(data []byte) error {
	var secret SecretConfig
	if err := json.Unmarshal(data, &secret); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	if secret.DatabaseURL != "" {
		c.Cart.DatabaseURL = secret.DatabaseURL
	}
	if secret.CatalogBaseURL != "" {
		c.Catalog.BaseURL = secret.CatalogBaseURL
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validate checks field constraints declared in struct tags.
func (c *Config) validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// env resolves settings from the process environment, falling back to a
// .env file outside production. The process environment always wins.
type env struct {
	file map[string]string
}

func newEnv() env {
	e := env{}
	if os.Getenv("ENVIRONMENT") == "production" {
		return e
	}
	if m, err := godotenv.Read(defaultEnvFile); err == nil {
		e.file = m
	}
	return e
}

// get returns the value for key, or defaultVal if unset or empty.
func (e env) get(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if val := e.file[key]; val != "" {
		return val
	}
	return defaultVal
}

func (e env) bool(key string) (bool, error) {
	raw := e.get(key, "")
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return v, nil
}
