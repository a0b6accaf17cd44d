package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := defaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if cfg.Server.Port != 3005 {
		t.Errorf("Expected default server port 3005, got %d", cfg.Server.Port)
	}
	if cfg.Endpoints.BasePort != 5004 {
		t.Errorf("Expected default base port 5004, got %d", cfg.Endpoints.BasePort)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("Expected default storage type memory, got %q", cfg.Storage.Type)
	}
}

func TestConfig_Validate_InvalidPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 65536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Server.Port = tt.port

			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error for invalid port")
			}
		})
	}
}

func TestConfig_Validate_InvalidStorageType(t *testing.T) {
	cfg := defaultConfig()
	cfg.Storage.Type = "invalid"

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for invalid storage type")
	}
}

func TestConfig_Validate_MongoDBWithoutURI(t *testing.T) {
	cfg := defaultConfig()
	cfg.Storage.Type = "mongodb"
	cfg.Storage.MongoDB.URI = ""

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for mongodb without URI")
	}
}

func TestConfig_Validate_InvalidBasePort(t *testing.T) {
	cfg := defaultConfig()
	cfg.Endpoints.BasePort = 0

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for invalid base port")
	}
}

func TestConfig_Validate_NegativeLogBuffer(t *testing.T) {
	cfg := defaultConfig()
	cfg.Endpoints.LogBuffer = -1

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for negative log buffer")
	}
}

func TestConfig_Validate_ProxyWithoutDirs(t *testing.T) {
	cfg := defaultConfig()
	cfg.Proxy.Enabled = true
	cfg.Proxy.AvailableDir = ""

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for enabled proxy without directories")
	}
}

func TestServerConfig_Address(t *testing.T) {
	tests := []struct {
		host     string
		port     int
		expected string
	}{
		{"0.0.0.0", 3005, "0.0.0.0:3005"},
		{"127.0.0.1", 3000, "127.0.0.1:3000"},
		{"example.com", 443, "example.com:443"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			cfg := ServerConfig{Host: tt.host, Port: tt.port}
			if cfg.Address() != tt.expected {
				t.Errorf("Address() = %q, want %q", cfg.Address(), tt.expected)
			}
		})
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	// A missing file falls back to defaults
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("Expected default storage type memory, got %q", cfg.Storage.Type)
	}
}

func TestLoad_ValidYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
server:
  host: localhost
  port: 4005
  admin_token: secret-token
endpoints:
  base_port: 6000
  log_buffer: 50
proxy:
  enabled: true
  available_dir: /tmp/sites-available
  enabled_dir: /tmp/sites-enabled
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 4005 {
		t.Errorf("Expected port 4005, got %d", cfg.Server.Port)
	}
	if cfg.Server.AdminToken != "secret-token" {
		t.Errorf("Expected admin token 'secret-token', got %q", cfg.Server.AdminToken)
	}
	if cfg.Endpoints.BasePort != 6000 {
		t.Errorf("Expected base port 6000, got %d", cfg.Endpoints.BasePort)
	}
	if !cfg.Proxy.Enabled {
		t.Error("Expected proxy to be enabled")
	}
	// Untouched sections keep their defaults
	if cfg.Storage.Type != "memory" {
		t.Errorf("Expected default storage type memory, got %q", cfg.Storage.Type)
	}
}

func TestLoad_InvalidYAMLValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
storage:
  type: cassandra
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Expected error for unsupported storage type")
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("RELAY_SERVER_PORT", "4100")
	t.Setenv("RELAY_ENDPOINTS_BASE_PORT", "7000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Expected port 4100 from environment, got %d", cfg.Server.Port)
	}
	if cfg.Endpoints.BasePort != 7000 {
		t.Errorf("Expected base port 7000 from environment, got %d", cfg.Endpoints.BasePort)
	}
}
