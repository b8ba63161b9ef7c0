package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"ENVIRONMENT", "HTTP_ADDR", "METRICS_ADDR", "METRICS_ENABLED",
		"MCP_TRANSPORT", "MCP_ADDR", "DATABASE_DRIVER", "DATABASE_DSN",
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_REDIRECT_URI",
		"GOOGLE_RETURN_URI", "GOOGLE_SCOPES",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want %q", cfg.Environment, "development")
	}
	if cfg.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.MetricsAddr != DefaultMetricsAddr {
		t.Errorf("MetricsAddr = %q, want %q", cfg.MetricsAddr, DefaultMetricsAddr)
	}
	if !cfg.MetricsEnabled {
		t.Error("MetricsEnabled = false, want true")
	}
	if cfg.MCPTransport != TransportStdio {
		t.Errorf("MCPTransport = %q, want %q", cfg.MCPTransport, TransportStdio)
	}
	if cfg.DatabaseDriver != DriverSQLite {
		t.Errorf("DatabaseDriver = %q, want %q", cfg.DatabaseDriver, DriverSQLite)
	}
	if cfg.DatabaseDSN != "google-service.db" {
		t.Errorf("DatabaseDSN = %q, want %q", cfg.DatabaseDSN, "google-service.db")
	}
	if len(cfg.Google.Scopes) != 1 || cfg.Google.Scopes[0] != "https://www.googleapis.com/auth/gmail.send" {
		t.Errorf("Google.Scopes = %v, want gmail.send scope", cfg.Google.Scopes)
	}
	if cfg.Google.Configured() {
		t.Error("Google.Configured() = true without client credentials")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("MCP_TRANSPORT", "streamable-http")
	t.Setenv("DATABASE_DRIVER", "mysql")
	t.Setenv("DATABASE_DSN", "user:pass@tcp(db:3306)/broker")
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("GOOGLE_SCOPES", "scope-a, scope-b")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.IsProduction() {
		t.Error("IsProduction() = false for production environment")
	}
	if cfg.HTTPAddr != ":7070" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":7070")
	}
	if cfg.MetricsEnabled {
		t.Error("MetricsEnabled = true, want false")
	}
	if cfg.MCPTransport != TransportStreamableHTTP {
		t.Errorf("MCPTransport = %q, want %q", cfg.MCPTransport, TransportStreamableHTTP)
	}
	if cfg.DatabaseDriver != DriverMySQL {
		t.Errorf("DatabaseDriver = %q, want %q", cfg.DatabaseDriver, DriverMySQL)
	}
	if !cfg.Google.Configured() {
		t.Error("Google.Configured() = false with client credentials set")
	}
	if len(cfg.Google.Scopes) != 2 || cfg.Google.Scopes[0] != "scope-a" || cfg.Google.Scopes[1] != "scope-b" {
		t.Errorf("Google.Scopes = %v, want [scope-a scope-b]", cfg.Google.Scopes)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			MCPTransport:   TransportStdio,
			DatabaseDriver: DriverSQLite,
			DatabaseDSN:    "broker.db",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "unsupported transport",
			mutate:  func(c *Config) { c.MCPTransport = "websocket" },
			wantErr: true,
		},
		{
			name:    "unsupported driver",
			mutate:  func(c *Config) { c.DatabaseDriver = "postgres" },
			wantErr: true,
		},
		{
			name:    "missing DSN",
			mutate:  func(c *Config) { c.DatabaseDSN = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsProduction(t *testing.T) {
	tests := []struct {
		environment string
		want        bool
	}{
		{"production", true},
		{"prod", true},
		{"PRODUCTION", true},
		{"development", false},
		{"staging", false},
		{"", false},
	}

	for _, tt := range tests {
		cfg := &Config{Environment: tt.environment}
		if got := cfg.IsProduction(); got != tt.want {
			t.Errorf("IsProduction() with %q = %v, want %v", tt.environment, got, tt.want)
		}
	}
}
