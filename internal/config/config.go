package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Default addresses and transports for the serve command.
const (
	DefaultHTTPAddr     = ":8080"
	DefaultMetricsAddr  = ":9090"
	DefaultMCPAddr      = ":8081"
	DefaultMCPTransport = TransportStdio

	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
)

// Database driver names accepted by DATABASE_DRIVER.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config holds the runtime configuration for the broker process.
// Values are read from environment variables; the serve command may
// override individual fields via flags.
type Config struct {
	// Environment is the deployment environment name. When set to
	// "production", internal error detail is hidden from API responses.
	Environment string

	// HTTPAddr is the bind address for the broker HTTP API.
	HTTPAddr string

	// MetricsAddr is the bind address for the dedicated metrics server.
	MetricsAddr string

	// MetricsEnabled controls whether the dedicated metrics server runs.
	MetricsEnabled bool

	// MCPTransport selects the MCP transport: stdio or streamable-http.
	MCPTransport string

	// MCPAddr is the bind address for the MCP server (streamable-http only).
	MCPAddr string

	// DatabaseDriver selects the store backend: sqlite or mysql.
	DatabaseDriver string

	// DatabaseDSN is the driver-specific connection string.
	DatabaseDSN string

	// Google holds the process-wide Google OAuth application config used
	// to bootstrap the default client auth (single-tenant mode).
	Google GoogleConfig
}

// GoogleConfig holds a Google OAuth application registration.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	ReturnURI    string
	Scopes       []string
}

// Configured reports whether a process-wide Google application is set.
func (g GoogleConfig) Configured() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:    getEnvOrDefault("ENVIRONMENT", "development"),
		HTTPAddr:       getEnvOrDefault("HTTP_ADDR", DefaultHTTPAddr),
		MetricsAddr:    getEnvOrDefault("METRICS_ADDR", DefaultMetricsAddr),
		MetricsEnabled: getEnvBoolOrDefault("METRICS_ENABLED", true),
		MCPTransport:   getEnvOrDefault("MCP_TRANSPORT", DefaultMCPTransport),
		MCPAddr:        getEnvOrDefault("MCP_ADDR", DefaultMCPAddr),
		DatabaseDriver: getEnvOrDefault("DATABASE_DRIVER", DriverSQLite),
		DatabaseDSN:    getEnvOrDefault("DATABASE_DSN", "google-service.db"),
		Google: GoogleConfig{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURI:  os.Getenv("GOOGLE_REDIRECT_URI"),
			ReturnURI:    os.Getenv("GOOGLE_RETURN_URI"),
			Scopes:       getEnvListOrDefault("GOOGLE_SCOPES", []string{"https://www.googleapis.com/auth/gmail.send"}),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.MCPTransport {
	case TransportStdio, TransportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported MCP transport: %s (supported: %s, %s)",
			c.MCPTransport, TransportStdio, TransportStreamableHTTP)
	}

	switch c.DatabaseDriver {
	case DriverSQLite, DriverMySQL:
	default:
		return fmt.Errorf("unsupported database driver: %s (supported: %s, %s)",
			c.DatabaseDriver, DriverSQLite, DriverMySQL)
	}

	if c.DatabaseDSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	return nil
}

// IsProduction reports whether the process runs with production error masking.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production") || strings.EqualFold(c.Environment, "prod")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
