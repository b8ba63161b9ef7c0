// Package instrumentation provides OpenTelemetry metrics for the
// google-service credential broker.
//
// Metrics are exported in Prometheus format via the /metrics endpoint
// on a dedicated port.
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// OAuth Credential Metrics:
//   - oauth_auth_total: Counter of authorization flow outcomes by result
//   - oauth_token_refresh_total: Counter of token refresh attempts by result
//   - oauth_pending_flows: Gauge of pending authorization flows awaiting callback
//
// Google API Metrics:
//   - google_api_operations_total: Counter of Google API operations by service, operation, status
//   - google_api_operation_duration_seconds: Histogram of Google API operation durations
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - OTEL_SERVICE_NAME: Service name (default: google-service)
//   - METRICS_DETAILED_LABELS: Include high-cardinality labels (default: false)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "google-service",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	recorder := provider.Metrics()
//	recorder.RecordHTTPRequest(ctx, "GET", "/api/v1/auth", 200, time.Since(start))
//	recorder.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
//	recorder.RecordToolInvocation(ctx, "send_gmail", "success", time.Since(start))
package instrumentation
