package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/my-personal-agent/google-service/internal/broker"
	"github.com/my-personal-agent/google-service/internal/config"
	"github.com/my-personal-agent/google-service/internal/instrumentation"
	"github.com/my-personal-agent/google-service/internal/logging"
	"github.com/my-personal-agent/google-service/internal/server"
	"github.com/my-personal-agent/google-service/internal/store"
	"github.com/my-personal-agent/google-service/internal/tools/gmail_tools"
)

const (
	// metricsStartupTimeout bounds how long serve waits for the metrics
	// listener to bind before giving up.
	metricsStartupTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of all servers.
	shutdownTimeout = 30 * time.Second
)

func newServeCmd() *cobra.Command {
	var (
		environment    string
		httpAddr       string
		metricsAddr    string
		metricsEnabled bool
		mcpTransport   string
		mcpAddr        string
		databaseDriver string
		databaseDSN    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the credential broker and MCP server",
		Long: `Start the OAuth credential broker HTTP API, the MCP server, and the
metrics server.

The broker API serves client registration, authorization-URL issuance,
and the OAuth callback. The MCP server exposes the send_gmail tool.

Supported MCP transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport

Configuration is read from environment variables (HTTP_ADDR,
METRICS_ADDR, METRICS_ENABLED, MCP_TRANSPORT, MCP_ADDR,
DATABASE_DRIVER, DATABASE_DSN,
GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET, GOOGLE_REDIRECT_URI,
GOOGLE_RETURN_URI, GOOGLE_SCOPES); flags override individual values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			// Flags override environment only when explicitly set
			if cmd.Flags().Changed("environment") {
				cfg.Environment = environment
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if cmd.Flags().Changed("metrics-enabled") {
				cfg.MetricsEnabled = metricsEnabled
			}
			if cmd.Flags().Changed("transport") {
				cfg.MCPTransport = mcpTransport
			}
			if cmd.Flags().Changed("mcp-addr") {
				cfg.MCPAddr = mcpAddr
			}
			if cmd.Flags().Changed("database-driver") {
				cfg.DatabaseDriver = databaseDriver
			}
			if cmd.Flags().Changed("database-dsn") {
				cfg.DatabaseDSN = databaseDSN
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&environment, "environment", "development", "Deployment environment name. In production, internal error detail is hidden from API responses. Can also use ENVIRONMENT env var.")
	cmd.Flags().StringVar(&httpAddr, "http-addr", config.DefaultHTTPAddr, "Broker HTTP API address. Can also use HTTP_ADDR env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", config.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&mcpTransport, "transport", config.DefaultMCPTransport, "MCP transport type: stdio or streamable-http. Can also use MCP_TRANSPORT env var.")
	cmd.Flags().StringVar(&mcpAddr, "mcp-addr", config.DefaultMCPAddr, "MCP server address (streamable-http transport only). Can also use MCP_ADDR env var.")
	cmd.Flags().StringVar(&databaseDriver, "database-driver", config.DriverSQLite, "Database driver: sqlite or mysql. Can also use DATABASE_DRIVER env var.")
	cmd.Flags().StringVar(&databaseDSN, "database-dsn", "", "Database connection string. Can also use DATABASE_DSN env var.")

	return cmd
}

func runServe(cfg *config.Config) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Logs go to stderr so the stdio MCP transport keeps stdout clean
	logger := logging.New(os.Stderr, cfg.Environment)
	slog.SetDefault(logger)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Error("instrumentation shutdown failed", "error", err)
		}
	}()

	// Open the credential store and bootstrap the default tenant
	st, err := store.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close failed", "error", err)
		}
	}()

	svc := broker.NewService(st, cfg, logger)
	if err := svc.EnsureDefaultClientAuth(shutdownCtx); err != nil {
		return fmt.Errorf("failed to bootstrap default client auth: %w", err)
	}

	serverContext := server.NewServerContext(shutdownCtx, svc, st)
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Error("server context shutdown failed", "error", err)
		}
	}()

	if provider.Enabled() {
		serverContext.SetMetrics(provider.Metrics())
		serverContext.SetAuditLogger(instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging))

		if err := provider.RegisterPendingFlowsGauge(st.CountPendingFlows); err != nil {
			return fmt.Errorf("failed to register pending flows gauge: %w", err)
		}
	}

	// Not ready until all servers are up
	healthChecker := server.NewHealthChecker(serverContext)
	healthChecker.SetReady(false)

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if cfg.MetricsEnabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		// Use ready channel to confirm metrics server started successfully
		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		select {
		case <-metricsReady:
			logger.Info("metrics server started", "addr", metricsServer.Addr())
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(metricsStartupTimeout):
			return fmt.Errorf("metrics server startup timed out")
		}
	}
	defer func() {
		if metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Error("metrics server shutdown failed", "error", err)
			}
		}
	}()

	// Broker HTTP API
	api := server.NewAPI(serverContext, healthChecker, logger, cfg.IsProduction())
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	httpErr := make(chan error, 1)
	go func() {
		defer close(httpErr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErr <- err
		}
	}()

	// MCP server
	mcpSrv := mcpserver.NewMCPServer("google-service", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := gmail_tools.RegisterGmailTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register Gmail tools: %w", err)
	}

	var streamableServer *mcpserver.StreamableHTTPServer
	mcpErr := make(chan error, 1)
	switch cfg.MCPTransport {
	case config.TransportStdio:
		go func() {
			defer close(mcpErr)
			if err := mcpserver.ServeStdio(mcpSrv); err != nil {
				mcpErr <- err
			}
		}()
	case config.TransportStreamableHTTP:
		streamableServer = mcpserver.NewStreamableHTTPServer(mcpSrv)
		go func() {
			defer close(mcpErr)
			if err := streamableServer.Start(cfg.MCPAddr); err != nil && err != http.ErrServerClosed {
				mcpErr <- err
			}
		}()
	}

	healthChecker.SetReady(true)
	logger.Info("broker started",
		"http_addr", cfg.HTTPAddr,
		"mcp_transport", cfg.MCPTransport,
		"environment", cfg.Environment,
	)

	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-httpErr:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	case err := <-mcpErr:
		if err != nil {
			return fmt.Errorf("MCP server stopped with error: %w", err)
		}
	}

	healthChecker.SetReady(false)

	ctx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	if streamableServer != nil {
		if err := streamableServer.Shutdown(ctx); err != nil {
			logger.Error("MCP server shutdown failed", "error", err)
		}
	}

	logger.Info("broker stopped")
	return nil
}
