package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/my-personal-agent/google-service/internal/broker"
	"github.com/my-personal-agent/google-service/internal/instrumentation"
)

// API serves the credential broker HTTP endpoints.
type API struct {
	sc         *ServerContext
	health     *HealthChecker
	log        *slog.Logger
	production bool
}

// NewAPI creates the broker HTTP API. In production environments,
// internal error detail is hidden from responses and only logged.
func NewAPI(sc *ServerContext, health *HealthChecker, log *slog.Logger, production bool) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{
		sc:         sc,
		health:     health,
		log:        log,
		production: production,
	}
}

// Handler builds the route table with logging and metrics middleware.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	a.route(mux, "POST /api/v1/client", "/api/v1/client", a.handleCreateClient)
	a.route(mux, "POST /api/v1/client/auths", "/api/v1/client/auths", a.handleAddClientAuths)
	a.route(mux, "GET /api/v1/auth", "/api/v1/auth", a.handleAuthorize)
	a.route(mux, "GET /api/v1/auth/callback", "/api/v1/auth/callback", a.handleCallback)

	if a.health != nil {
		a.health.RegisterHealthEndpoints(mux)
	}

	return mux
}

func (a *API) route(mux *http.ServeMux, pattern, label string, handler http.HandlerFunc) {
	mux.Handle(pattern, withInstrumentation(handler, label, a.log, a.sc.Metrics()))
}

// errorResponse is the error envelope returned by every API endpoint.
type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
}

// writeError maps a broker error to its HTTP status and envelope.
// Internal detail is masked in production; the full error is always logged.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := broker.KindOf(err)
	message := broker.MessageOf(err)

	if kind == broker.KindInternal {
		a.log.Error("request failed", "path", r.URL.Path, "error", err)
		if a.production {
			message = "internal server error"
		}
	} else {
		a.log.Warn("request rejected", "path", r.URL.Path, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:     kind.String(),
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type createClientRequest struct {
	Name string `json:"name"`
}

type createClientResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (a *API) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, r, broker.BadRequest("invalid request body"))
		return
	}

	client, err := a.sc.Broker().CreateClient(r.Context(), req.Name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, createClientResponse{
		ID:   client.ID,
		Name: client.Name,
	})
}

type addClientAuthsRequest struct {
	ClientID string                   `json:"client_id"`
	Auths    []broker.ClientAuthInput `json:"auths"`
}

func (a *API) handleAddClientAuths(w http.ResponseWriter, r *http.Request) {
	var req addClientAuthsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, r, broker.BadRequest("invalid request body"))
		return
	}

	if err := a.sc.Broker().AddClientAuths(r.Context(), req.ClientID, req.Auths); err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusCreated, map[string]any{
		"client_id": req.ClientID,
		"count":     len(req.Auths),
	})
}

func (a *API) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	result, err := a.sc.Broker().Authorize(r.Context(),
		q.Get("client_id"), q.Get("auth_type"), q.Get("current_uri"))
	if err != nil {
		if m := a.sc.Metrics(); m != nil {
			m.RecordOAuthAuth(r.Context(), instrumentation.OAuthResultFailure)
		}
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	result, err := a.sc.Broker().Callback(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		if m := a.sc.Metrics(); m != nil {
			m.RecordOAuthAuth(r.Context(), instrumentation.OAuthResultFailure)
		}
		a.writeError(w, r, err)
		return
	}

	if m := a.sc.Metrics(); m != nil {
		m.RecordOAuthAuth(r.Context(), instrumentation.OAuthResultSuccess)
	}

	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}
