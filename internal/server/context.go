package server

import (
	"context"
	"sync"

	"google.golang.org/api/option"

	"github.com/my-personal-agent/google-service/internal/broker"
	"github.com/my-personal-agent/google-service/internal/instrumentation"
	"github.com/my-personal-agent/google-service/internal/store"
)

// ServerContext holds the shared dependencies for the HTTP API and the
// MCP server: the credential broker, the store, and observability
// plumbing.
type ServerContext struct {
	ctx         context.Context
	cancel      context.CancelFunc
	broker      *broker.Service
	store       *store.Store
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	gmailOpts   []option.ClientOption
	mu          sync.RWMutex
	shutdown    bool
}

// NewServerContext creates a new server context around the broker and store.
func NewServerContext(ctx context.Context, svc *broker.Service, st *store.Store) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)

	return &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		broker: svc,
		store:  st,
	}
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Broker returns the credential broker service.
func (sc *ServerContext) Broker() *broker.Service {
	return sc.broker
}

// Store returns the credential store.
func (sc *ServerContext) Store() *store.Store {
	return sc.store
}

// SetMetrics sets the metrics recorder for request and tool instrumentation.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// Metrics returns the metrics recorder, or nil if instrumentation is disabled.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetAuditLogger sets the audit logger for tool invocations.
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = al
}

// AuditLogger returns the audit logger, or nil if not configured.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// SetGmailOptions sets extra Gmail API client options. Tests use them
// to point the Gmail service at a fake endpoint.
func (sc *ServerContext) SetGmailOptions(opts ...option.ClientOption) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.gmailOpts = opts
}

// GmailOptions returns the extra Gmail API client options.
func (sc *ServerContext) GmailOptions() []option.ClientOption {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.gmailOpts
}

// IsShutdown returns whether the server has been shutdown.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
