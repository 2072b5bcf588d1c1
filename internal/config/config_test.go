package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configEnvVars = []string{
	"PORT", "ENVIRONMENT", "LOG_LEVEL", "GCP_PROJECT", "SECRET_NAME",
	"CATALOG_SOURCE", "CATALOG_ROOT", "CATALOG_BASE_URL", "CATALOG_STORE_POLICY",
	"DEFAULT_STORE", "CATALOG_CHROME_TLS", "CATALOG_TIMEOUT", "IMAGE_BASE_URL",
	"CURRENCY", "CART_BACKEND", "DATABASE_URL", "WIDGET_DIR", "MCP_STATELESS",
	"CONFIG_FILE",
}

// clearEnv blanks every variable Load reads, restoring them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvVars {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEFAULT_STORE", "nuts")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %s, want 8080", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %s, want development", cfg.Environment)
	}
	if cfg.Catalog.Source != "file" || cfg.Catalog.Root != "stores" {
		t.Errorf("Catalog source = %s %s, want file stores", cfg.Catalog.Source, cfg.Catalog.Root)
	}
	if cfg.Catalog.StorePolicy != "single" {
		t.Errorf("StorePolicy = %s, want single", cfg.Catalog.StorePolicy)
	}
	if cfg.Catalog.Currency != "₪" {
		t.Errorf("Currency = %s, want ₪", cfg.Catalog.Currency)
	}
	if time.Duration(cfg.Catalog.Timeout) != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", time.Duration(cfg.Catalog.Timeout))
	}
	if cfg.Cart.Backend != "memory" {
		t.Errorf("Cart.Backend = %s, want memory", cfg.Cart.Backend)
	}
	if cfg.MCP.Stateless || cfg.Catalog.ChromeTLS {
		t.Error("boolean settings should default to false")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CATALOG_SOURCE", "http")
	t.Setenv("CATALOG_BASE_URL", "https://catalogs.example.com")
	t.Setenv("CATALOG_STORE_POLICY", "directory")
	t.Setenv("CATALOG_CHROME_TLS", "true")
	t.Setenv("CATALOG_TIMEOUT", "3s")
	t.Setenv("IMAGE_BASE_URL", "https://cdn.example.com")
	t.Setenv("CURRENCY", "USD")
	t.Setenv("CART_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://user:pw@localhost:5432/carts")
	t.Setenv("MCP_STATELESS", "1")
	t.Setenv("WIDGET_DIR", "web/dist")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.Catalog.BaseURL != "https://catalogs.example.com" {
		t.Errorf("BaseURL = %s", cfg.Catalog.BaseURL)
	}
	if !cfg.Catalog.ChromeTLS {
		t.Error("ChromeTLS = false, want true")
	}
	if time.Duration(cfg.Catalog.Timeout) != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", time.Duration(cfg.Catalog.Timeout))
	}
	if cfg.Catalog.Currency != "USD" {
		t.Errorf("Currency = %s, want USD", cfg.Catalog.Currency)
	}
	if cfg.Cart.DatabaseURL == "" {
		t.Error("DatabaseURL not loaded")
	}
	if !cfg.MCP.Stateless {
		t.Error("Stateless = false, want true")
	}
	if cfg.MCP.WidgetDir != "web/dist" {
		t.Errorf("WidgetDir = %s, want web/dist", cfg.MCP.WidgetDir)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "single policy without default store",
			env:     map[string]string{},
			wantErr: "DefaultStore",
		},
		{
			name:    "default store with path separator",
			env:     map[string]string{"DEFAULT_STORE": "../etc"},
			wantErr: "DefaultStore",
		},
		{
			name:    "unknown catalog source",
			env:     map[string]string{"DEFAULT_STORE": "s", "CATALOG_SOURCE": "ftp"},
			wantErr: "Source",
		},
		{
			name:    "http source without base url",
			env:     map[string]string{"DEFAULT_STORE": "s", "CATALOG_SOURCE": "http"},
			wantErr: "BaseURL",
		},
		{
			name:    "http source with malformed base url",
			env:     map[string]string{"DEFAULT_STORE": "s", "CATALOG_SOURCE": "http", "CATALOG_BASE_URL": "not a url"},
			wantErr: "BaseURL",
		},
		{
			name:    "unknown store policy",
			env:     map[string]string{"DEFAULT_STORE": "s", "CATALOG_STORE_POLICY": "all"},
			wantErr: "StorePolicy",
		},
		{
			name:    "postgres without database url",
			env:     map[string]string{"DEFAULT_STORE": "s", "CART_BACKEND": "postgres"},
			wantErr: "DatabaseURL",
		},
		{
			name:    "unknown cart backend",
			env:     map[string]string{"DEFAULT_STORE": "s", "CART_BACKEND": "redis"},
			wantErr: "Backend",
		},
		{
			name:    "non-numeric port",
			env:     map[string]string{"DEFAULT_STORE": "s", "PORT": "http"},
			wantErr: "Port",
		},
		{
			name:    "bad log level",
			env:     map[string]string{"DEFAULT_STORE": "s", "LOG_LEVEL": "verbose"},
			wantErr: "LogLevel",
		},
		{
			name:    "bad boolean",
			env:     map[string]string{"DEFAULT_STORE": "s", "MCP_STATELESS": "sometimes"},
			wantErr: "MCP_STATELESS",
		},
		{
			name:    "bad timeout",
			env:     map[string]string{"DEFAULT_STORE": "s", "CATALOG_TIMEOUT": "soon"},
			wantErr: "CATALOG_TIMEOUT",
		},
		{
			name:    "production without project",
			env:     map[string]string{"DEFAULT_STORE": "s", "ENVIRONMENT": "production"},
			wantErr: "GCP_PROJECT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(context.Background())
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("DEFAULT_STORE", "from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"log_level": "warn",
		"catalog": {
			"source": "file",
			"root": "/srv/stores",
			"store_policy": "directory",
			"timeout": "2s",
			"image_base_url": "assets/images"
		},
		"mcp": {"stateless": true}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Values absent from the file keep their env values.
	if cfg.Port != "7000" {
		t.Errorf("Port = %s, want 7000", cfg.Port)
	}
	if cfg.Catalog.DefaultStore != "from-env" {
		t.Errorf("DefaultStore = %s, want from-env", cfg.Catalog.DefaultStore)
	}
	if cfg.Catalog.Currency != "₪" {
		t.Errorf("Currency = %s, want default ₪", cfg.Catalog.Currency)
	}

	// Values in the file win.
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %s, want warn", cfg.LogLevel)
	}
	if cfg.Catalog.Root != "/srv/stores" || cfg.Catalog.StorePolicy != "directory" {
		t.Errorf("Catalog = %+v", cfg.Catalog)
	}
	if time.Duration(cfg.Catalog.Timeout) != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", time.Duration(cfg.Catalog.Timeout))
	}
	if cfg.Catalog.ImageBaseURL != "assets/images" {
		t.Errorf("ImageBaseURL = %s", cfg.Catalog.ImageBaseURL)
	}
	if !cfg.MCP.Stateless {
		t.Error("Stateless = false, want true")
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONFIG_FILE", "/nonexistent/config.json")

		_, err := Load(context.Background())
		if err == nil || !strings.Contains(err.Error(), "reading config file") {
			t.Errorf("error = %v, want reading config file error", err)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "config.json")
		os.WriteFile(path, []byte("{invalid"), 0o644)
		t.Setenv("CONFIG_FILE", path)

		_, err := Load(context.Background())
		if err == nil || !strings.Contains(err.Error(), "parsing config file") {
			t.Errorf("error = %v, want parsing config file error", err)
		}
	})

	t.Run("invalid timeout", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "config.json")
		os.WriteFile(path, []byte(`{"catalog": {"timeout": 5}}`), 0o644)
		t.Setenv("CONFIG_FILE", path)

		_, err := Load(context.Background())
		if err == nil || !strings.Contains(err.Error(), "duration") {
			t.Errorf("error = %v, want duration error", err)
		}
	})
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	dotenv := "DEFAULT_STORE=dotenv-store\nCURRENCY=EUR\nPORT=6000\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("PORT", "6500")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Catalog.DefaultStore != "dotenv-store" {
		t.Errorf("DefaultStore = %s, want dotenv-store", cfg.Catalog.DefaultStore)
	}
	if cfg.Catalog.Currency != "EUR" {
		t.Errorf("Currency = %s, want EUR", cfg.Catalog.Currency)
	}
	// The process environment beats .env.
	if cfg.Port != "6500" {
		t.Errorf("Port = %s, want 6500", cfg.Port)
	}
}

func TestApplySecret(t *testing.T) {
	cfg := &Config{
		Catalog: CatalogConfig{BaseURL: "https://old.example.com"},
		Cart:    CartConfig{DatabaseURL: "postgres://old"},
	}

	if err := cfg.applySecret([]byte(`{"database_url": "postgres://secret"}`)); err != nil {
		t.Fatalf("applySecret() error: %v", err)
	}
	if cfg.Cart.DatabaseURL != "postgres://secret" {
		t.Errorf("DatabaseURL = %s, want postgres://secret", cfg.Cart.DatabaseURL)
	}
	if cfg.Catalog.BaseURL != "https://old.example.com" {
		t.Errorf("BaseURL = %s, should be unchanged", cfg.Catalog.BaseURL)
	}

	if err := cfg.applySecret([]byte("not json")); err == nil {
		t.Error("applySecret() should reject invalid JSON")
	}
}

func TestDurationJSON(t *testing.T) {
	d := Duration(1500 * time.Millisecond)
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"1.5s"` {
		t.Errorf("Marshal = %s, want \"1.5s\"", b)
	}

	var back Duration
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back != d {
		t.Errorf("Unmarshal = %v, want %v", time.Duration(back), time.Duration(d))
	}
}
