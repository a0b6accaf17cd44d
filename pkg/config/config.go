package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/relaypanel/go-relay-backend/pkg/logging"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	Endpoints EndpointsConfig `yaml:"endpoints" envconfig:"ENDPOINTS"`
	Proxy     ProxyConfig     `yaml:"proxy" envconfig:"PROXY"`
	Certbot   CertbotConfig   `yaml:"certbot" envconfig:"CERTBOT"`
	CORS      CORSConfig      `yaml:"cors" envconfig:"CORS"`
	Logging   logging.Config  `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains management API server configuration
type ServerConfig struct {
	Host       string `yaml:"host" envconfig:"HOST"`
	Port       int    `yaml:"port" envconfig:"PORT"`
	AdminToken string `yaml:"admin_token" envconfig:"ADMIN_TOKEN"` // Bearer token for the management API (empty disables auth)
}

// StorageConfig contains storage configuration
type StorageConfig struct {
	Type    string        `yaml:"type" envconfig:"TYPE"` // memory, mongodb
	MongoDB MongoDBConfig `yaml:"mongodb" envconfig:"MONGODB"`
}

// MongoDBConfig contains MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string `yaml:"uri" envconfig:"URI"`
	Database string `yaml:"database" envconfig:"DATABASE"`
	Timeout  int    `yaml:"timeout" envconfig:"TIMEOUT"` // seconds
}

// EndpointsConfig controls the managed socket endpoints
type EndpointsConfig struct {
	Host string `yaml:"host" envconfig:"HOST"`
	// BasePort is the floor of the port pool; the first provisioned
	// server gets BasePort+1
	BasePort int `yaml:"base_port" envconfig:"BASE_PORT"`
	// LogBuffer caps the in-memory log of each endpoint runtime
	LogBuffer int `yaml:"log_buffer" envconfig:"LOG_BUFFER"`
}

// ProxyConfig contains reverse proxy (nginx) configuration
type ProxyConfig struct {
	Enabled       bool   `yaml:"enabled" envconfig:"ENABLED"`
	AvailableDir  string `yaml:"available_dir" envconfig:"AVAILABLE_DIR"`
	EnabledDir    string `yaml:"enabled_dir" envconfig:"ENABLED_DIR"`
	ReloadCommand string `yaml:"reload_command" envconfig:"RELOAD_COMMAND"`
}

// CertbotConfig contains TLS certificate issuance configuration
type CertbotConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"ENABLED"`
	Command string `yaml:"command" envconfig:"COMMAND"`
}

// CORSConfig contains CORS configuration for the management API
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	AllowedMethods   []string `yaml:"allowed_methods" envconfig:"ALLOWED_METHODS"`
	AllowedHeaders   []string `yaml:"allowed_headers" envconfig:"ALLOWED_HEADERS"`
	AllowCredentials bool     `yaml:"allow_credentials" envconfig:"ALLOW_CREDENTIALS"`
	MaxAge           int      `yaml:"max_age" envconfig:"MAX_AGE"` // seconds
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Load from YAML file if provided (overrides defaults)
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, that's ok - we'll use defaults and env vars
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("RELAY", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible default values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3005,
		},
		Storage: StorageConfig{
			Type: "memory",
			MongoDB: MongoDBConfig{
				URI:      "mongodb://localhost:27017",
				Database: "relay",
				Timeout:  10,
			},
		},
		Endpoints: EndpointsConfig{
			Host:      "0.0.0.0",
			BasePort:  5004,
			LogBuffer: 1000,
		},
		Proxy: ProxyConfig{
			Enabled:       false,
			AvailableDir:  "/etc/nginx/sites-available",
			EnabledDir:    "/etc/nginx/sites-enabled",
			ReloadCommand: "nginx -s reload",
		},
		Certbot: CertbotConfig{
			Enabled: false,
			Command: "certbot",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:         300,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Storage.Type != "memory" && c.Storage.Type != "mongodb" {
		return fmt.Errorf("invalid storage type: %s (must be memory or mongodb)", c.Storage.Type)
	}

	if c.Storage.Type == "mongodb" && c.Storage.MongoDB.URI == "" {
		return fmt.Errorf("mongodb uri is required when using mongodb storage")
	}

	if c.Endpoints.BasePort < 1 || c.Endpoints.BasePort > 65535 {
		return fmt.Errorf("invalid endpoint base port: %d", c.Endpoints.BasePort)
	}

	if c.Endpoints.LogBuffer < 0 {
		return fmt.Errorf("invalid endpoint log buffer: %d", c.Endpoints.LogBuffer)
	}

	if c.Proxy.Enabled && (c.Proxy.AvailableDir == "" || c.Proxy.EnabledDir == "") {
		return fmt.Errorf("proxy directories are required when proxy is enabled")
	}

	return nil
}

// Address returns the management API address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
