package broker

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/my-personal-agent/google-service/internal/config"
	"github.com/my-personal-agent/google-service/internal/store"
)

// AuthTypeGmail is the auth-type discriminator for Gmail credentials.
const AuthTypeGmail = "gmail"

// stateTokenBytes is the entropy of a generated state token.
const stateTokenBytes = 32

// DefaultClientID is the well-known id of the client bootstrapped from
// process configuration. Requests without an explicit client id target
// its auth config.
const DefaultClientID = "default"

// Service drives the OAuth token lifecycle: authorization-URL issuance,
// callback/token exchange, and transparent refresh on retrieval. All
// provider calls are blocking network calls issued without store locks
// and are never retried.
type Service struct {
	store    *store.Store
	cfg      *config.Config
	log      *slog.Logger
	endpoint oauth2.Endpoint

	// apiOpts is appended to every Google API client; tests use it to
	// point the userinfo service at a fake.
	apiOpts []option.ClientOption
}

// Option customizes a Service.
type Option func(*Service)

// WithEndpoint overrides the provider OAuth endpoint. Used by tests.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(s *Service) { s.endpoint = endpoint }
}

// WithAPIOptions appends Google API client options. Used by tests.
func WithAPIOptions(opts ...option.ClientOption) Option {
	return func(s *Service) { s.apiOpts = append(s.apiOpts, opts...) }
}

// NewService creates a broker service around an injected store handle.
func NewService(st *store.Store, cfg *config.Config, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		store:    st,
		cfg:      cfg,
		log:      log,
		endpoint: google.Endpoint,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AuthorizeResult is the outcome of authorization-URL issuance.
type AuthorizeResult struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// CallbackResult is the outcome of a resolved provider callback.
type CallbackResult struct {
	RedirectURL string
	UserTokenID string
	GoogleID    string
	AuthType    string
	CurrentURI  string
}

// ClientAuthInput is one auth configuration in a registration request.
type ClientAuthInput struct {
	AuthType           string   `json:"auth_type"`
	GoogleClientID     string   `json:"google_client_id"`
	GoogleClientSecret string   `json:"google_client_secret"`
	RedirectURI        string   `json:"redirect_uri"`
	Scopes             []string `json:"scopes"`
}

// CreateClient registers a new tenant client.
func (s *Service) CreateClient(ctx context.Context, name string) (*store.Client, error) {
	if name == "" {
		return nil, BadRequest("client name is required")
	}

	client := &store.Client{Name: name}
	if err := s.store.CreateClient(ctx, client); err != nil {
		return nil, Internal("failed to create client", err)
	}

	s.log.Info("client created", "client_id", client.ID, "name", name)
	return client, nil
}

// AddClientAuths registers one or more auth configurations for an
// existing client. Configurations are immutable once created.
func (s *Service) AddClientAuths(ctx context.Context, clientID string, inputs []ClientAuthInput) error {
	if clientID == "" {
		return BadRequest("client_id is required")
	}
	if len(inputs) == 0 {
		return BadRequest("at least one auth configuration is required")
	}

	for i, input := range inputs {
		if input.AuthType == "" {
			return BadRequest(fmt.Sprintf("auths[%d]: auth_type is required", i))
		}
		if input.GoogleClientID == "" || input.GoogleClientSecret == "" {
			return BadRequest(fmt.Sprintf("auths[%d]: google client id and secret are required", i))
		}
		if input.RedirectURI == "" {
			return BadRequest(fmt.Sprintf("auths[%d]: redirect_uri is required", i))
		}
		if len(input.Scopes) == 0 {
			return BadRequest(fmt.Sprintf("auths[%d]: at least one scope is required", i))
		}
	}

	if _, err := s.store.GetClient(ctx, clientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("client not found")
		}
		return Internal("failed to load client", err)
	}

	auths := make([]store.ClientAuth, 0, len(inputs))
	for _, input := range inputs {
		auths = append(auths, store.ClientAuth{
			ClientID:           clientID,
			AuthType:           input.AuthType,
			GoogleClientID:     input.GoogleClientID,
			GoogleClientSecret: input.GoogleClientSecret,
			RedirectURI:        input.RedirectURI,
			Scopes:             store.StringArray(input.Scopes),
		})
	}

	if err := s.store.CreateClientAuths(ctx, auths); err != nil {
		return Internal("failed to create client auths", err)
	}

	s.log.Info("client auths registered", "client_id", clientID, "count", len(auths))
	return nil
}

// EnsureDefaultClientAuth bootstraps the default client and its Gmail
// auth config from process configuration. Idempotent across restarts;
// a no-op when no process-wide Google application is configured.
func (s *Service) EnsureDefaultClientAuth(ctx context.Context) error {
	if !s.cfg.Google.Configured() {
		return nil
	}

	if _, err := s.store.GetClient(ctx, DefaultClientID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to load default client: %w", err)
		}
		client := &store.Client{ID: DefaultClientID, Name: DefaultClientID}
		if err := s.store.CreateClient(ctx, client); err != nil {
			return fmt.Errorf("failed to create default client: %w", err)
		}
	}

	if _, err := s.store.FirstClientAuthByType(ctx, DefaultClientID, AuthTypeGmail); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load default client auth: %w", err)
	}

	returnURI := s.cfg.Google.ReturnURI
	if returnURI == "" {
		returnURI = s.cfg.Google.RedirectURI
	}

	auths := []store.ClientAuth{{
		ClientID:           DefaultClientID,
		AuthType:           AuthTypeGmail,
		GoogleClientID:     s.cfg.Google.ClientID,
		GoogleClientSecret: s.cfg.Google.ClientSecret,
		RedirectURI:        returnURI,
		Scopes:             store.StringArray(s.cfg.Google.Scopes),
	}}
	if err := s.store.CreateClientAuths(ctx, auths); err != nil {
		return fmt.Errorf("failed to create default client auth: %w", err)
	}

	s.log.Info("default client auth bootstrapped", "auth_id", auths[0].ID)
	return nil
}

// Authorize resolves the auth configuration for (clientID, authType),
// builds the provider authorization URL requesting offline access and
// explicit consent, and records a pending flow keyed by a fresh state
// token. An empty clientID targets the default client.
func (s *Service) Authorize(ctx context.Context, clientID, authType, currentURI string) (*AuthorizeResult, error) {
	if clientID == "" {
		clientID = DefaultClientID
	}
	if authType == "" {
		authType = AuthTypeGmail
	}

	if _, err := s.store.GetClient(ctx, clientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFound("client not found")
		}
		return nil, Internal("failed to load client", err)
	}

	auth, err := s.store.FirstClientAuthByType(ctx, clientID, authType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFound("client auth not found")
		}
		return nil, Internal("failed to load client auth", err)
	}

	state, err := generateStateToken()
	if err != nil {
		return nil, Internal("failed to generate state token", err)
	}

	conf := s.oauthConfig(auth)
	authURL := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)

	flow := &store.OAuthFlow{
		State:        state,
		ClientAuthID: auth.ID,
		CurrentURI:   currentURI,
	}
	if err := s.store.CreatePendingFlow(ctx, flow); err != nil {
		return nil, Internal("failed to record pending flow", err)
	}

	s.log.Info("authorization flow initiated",
		"client_id", clientID,
		"auth_type", authType,
		"auth_id", auth.ID,
	)
	return &AuthorizeResult{URL: authURL, State: state}, nil
}

// Callback consumes the pending flow for state, exchanges the code for
// tokens, resolves the authorized account's identity, and upserts the
// user credential. The pending flow is deleted before the exchange
// completes, so a replayed or concurrent callback with the same state
// always fails: at-most-once semantics per state value.
func (s *Service) Callback(ctx context.Context, state, code string) (*CallbackResult, error) {
	if state == "" || code == "" {
		return nil, BadRequest("missing code or state")
	}

	flow, err := s.store.ConsumePendingFlow(ctx, state)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrFlowConsumed) {
			return nil, BadRequest("invalid state")
		}
		return nil, Internal("failed to consume pending flow", err)
	}
	auth := &flow.ClientAuth

	conf := s.oauthConfig(auth)
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, Internal("failed to exchange authorization code", err)
	}
	if token.AccessToken == "" || token.Expiry.IsZero() {
		return nil, Internal("token missing", nil)
	}

	googleID, err := s.fetchGoogleID(ctx, token)
	if err != nil {
		return nil, Internal("failed to fetch user info", err)
	}

	userToken := &store.UserToken{
		GoogleID:     googleID,
		ClientAuthID: flow.ClientAuthID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
	if err := s.store.UpsertUserToken(ctx, userToken); err != nil {
		return nil, Internal("failed to persist user token", err)
	}

	params := url.Values{}
	params.Set("google_id", userToken.ID)
	params.Set("auth_type", auth.AuthType)
	params.Set("current_uri", flow.CurrentURI)

	s.log.Info("authorization flow completed",
		"auth_id", auth.ID,
		"user_token_id", userToken.ID,
	)
	return &CallbackResult{
		RedirectURL: auth.RedirectURI + "?" + params.Encode(),
		UserTokenID: userToken.ID,
		GoogleID:    googleID,
		AuthType:    auth.AuthType,
		CurrentURI:  flow.CurrentURI,
	}, nil
}

// Credentials loads a stored credential by its reference and refreshes
// it transparently when expired. An unexpired credential is returned
// unchanged without touching the provider. An expired credential with
// no refresh token is returned as-is; the downstream call will fail at
// the provider. Concurrent refreshes of one credential are a benign
// race: both writes carry a usable token, last write wins.
func (s *Service) Credentials(ctx context.Context, userTokenID string) (*oauth2.Token, *store.ClientAuth, error) {
	record, err := s.store.GetUserToken(ctx, userTokenID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, NotFound("user token not found")
		}
		return nil, nil, Internal("failed to load user token", err)
	}
	auth := &record.ClientAuth

	token := &oauth2.Token{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		Expiry:       record.Expiry,
		TokenType:    "Bearer",
	}

	if token.Valid() || record.RefreshToken == "" {
		return token, auth, nil
	}

	conf := s.oauthConfig(auth)
	refreshed, err := conf.TokenSource(ctx, token).Token()
	if err != nil {
		return nil, nil, Internal("failed to refresh token", err)
	}
	if refreshed.AccessToken == "" || refreshed.Expiry.IsZero() {
		return nil, nil, Internal("token missing", nil)
	}

	// Persist the new access token and expiry; the refresh token only
	// when the provider rotated it.
	newRefresh := ""
	if refreshed.RefreshToken != "" && refreshed.RefreshToken != record.RefreshToken {
		newRefresh = refreshed.RefreshToken
	}
	if err := s.store.UpdateUserTokenCredentials(ctx, record.ID, refreshed.AccessToken, newRefresh, refreshed.Expiry); err != nil {
		return nil, nil, Internal("failed to persist refreshed token", err)
	}

	s.log.Info("credential refreshed", "user_token_id", record.ID)
	return refreshed, auth, nil
}

// oauthConfig builds the provider OAuth config for an auth
// configuration. The redirect URL is the broker's own callback
// endpoint; the ClientAuth redirect URI is where callers return to
// after the callback resolves.
func (s *Service) oauthConfig(auth *store.ClientAuth) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     auth.GoogleClientID,
		ClientSecret: auth.GoogleClientSecret,
		RedirectURL:  s.cfg.Google.RedirectURI,
		Scopes:       auth.Scopes,
		Endpoint:     s.endpoint,
	}
}

// fetchGoogleID resolves the stable account identifier of the
// authorized user via the provider's userinfo endpoint.
func (s *Service) fetchGoogleID(ctx context.Context, token *oauth2.Token) (string, error) {
	opts := append([]option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(token)),
	}, s.apiOpts...)

	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to query userinfo: %w", err)
	}
	if info.Id == "" {
		return "", fmt.Errorf("userinfo response carries no account id")
	}

	return info.Id, nil
}

func generateStateToken() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b), nil
}
