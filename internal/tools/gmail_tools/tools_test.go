package gmail_tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/my-personal-agent/google-service/internal/broker"
	"github.com/my-personal-agent/google-service/internal/config"
	"github.com/my-personal-agent/google-service/internal/server"
	"github.com/my-personal-agent/google-service/internal/store"
)

func sendRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = "send_gmail"
	req.Params.Arguments = args
	return req
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "expected text content")
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

// The nil broker proves validation failures never reach the credential
// lookup: a lookup attempt would panic.
func TestSendGmailValidation(t *testing.T) {
	ctx := context.Background()
	sc := server.NewServerContext(ctx, nil, nil)

	tests := []struct {
		name    string
		args    map[string]any
		message string
	}{
		{
			name:    "missing user_id",
			args:    map[string]any{"to": "a@example.com", "subject": "s", "body": "b"},
			message: "'user_id' field is required",
		},
		{
			name:    "missing to",
			args:    map[string]any{"user_id": "tok-1", "subject": "s", "body": "b"},
			message: "'to' field is required",
		},
		{
			name:    "empty to array",
			args:    map[string]any{"user_id": "tok-1", "to": []any{}, "subject": "s", "body": "b"},
			message: "'to' field is required",
		},
		{
			name:    "to with wrong shape",
			args:    map[string]any{"user_id": "tok-1", "to": 42, "subject": "s", "body": "b"},
			message: "'to' must be an email address or an array of addresses",
		},
		{
			name:    "missing subject",
			args:    map[string]any{"user_id": "tok-1", "to": "a@example.com", "body": "b"},
			message: "'subject' field is required",
		},
		{
			name:    "missing body",
			args:    map[string]any{"user_id": "tok-1", "to": "a@example.com", "subject": "s"},
			message: "'body' field is required",
		},
		{
			name:    "invalid recipient address",
			args:    map[string]any{"user_id": "tok-1", "to": "not-an-email", "subject": "s", "body": "b"},
			message: "invalid email address",
		},
		{
			name: "invalid cc address",
			args: map[string]any{
				"user_id": "tok-1", "to": "a@example.com",
				"cc": []any{"bad"}, "subject": "s", "body": "b",
			},
			message: "invalid email address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := handleSendGmail(ctx, sendRequest(tt.args), sc)
			require.NoError(t, err)
			require.True(t, result.IsError)

			payload := decodeResult(t, result)
			assert.Equal(t, false, payload["success"])
			assert.Equal(t, "validation", payload["error_type"])
			assert.Contains(t, payload["message"], tt.message)
		})
	}
}

func newToolFixture(t *testing.T) (*server.ServerContext, string) {
	t.Helper()
	ctx := context.Background()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	st, err := store.NewWithDB(db, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	client := &store.Client{Name: "acme"}
	require.NoError(t, st.CreateClient(ctx, client))
	auths := []store.ClientAuth{{
		ClientID:           client.ID,
		AuthType:           "gmail",
		GoogleClientID:     "tenant-client-id",
		GoogleClientSecret: "tenant-client-secret",
		RedirectURI:        "https://app.example.com/after-auth",
		Scopes:             store.StringArray{"https://www.googleapis.com/auth/gmail.send"},
	}}
	require.NoError(t, st.CreateClientAuths(ctx, auths))

	userToken := &store.UserToken{
		GoogleID:     "google-user-1",
		ClientAuthID: auths[0].ID,
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour),
	}
	require.NoError(t, st.UpsertUserToken(ctx, userToken))

	cfg := &config.Config{
		Environment: "test",
		Google: config.GoogleConfig{
			RedirectURI: "http://localhost:8080/api/v1/auth/callback",
		},
	}
	svc := broker.NewService(st, cfg, slog.Default())

	return server.NewServerContext(ctx, svc, st), userToken.ID
}

func TestSendGmailSuccess(t *testing.T) {
	ctx := context.Background()
	sc, userTokenID := newToolFixture(t)

	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/messages/send") {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "msg-123"}`))
	}))
	defer ts.Close()
	sc.SetGmailOptions(option.WithEndpoint(ts.URL))

	result, err := handleSendGmail(ctx, sendRequest(map[string]any{
		"user_id": userTokenID,
		"to":      []any{"a@example.com", "b@example.com"},
		"cc":      "c@example.com",
		"subject": "Status update",
		"body":    "All systems nominal.",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	payload := decodeResult(t, result)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "msg-123", payload["message_id"])
	assert.NotEmpty(t, payload["timestamp"])
	assert.Equal(t, float64(3), payload["total_recipients"])
	recipients, ok := payload["recipients"].([]any)
	require.True(t, ok)
	assert.Len(t, recipients, 2)

	assert.Equal(t, "Bearer access-1", gotAuth)
}

func TestSendGmailUnknownCredential(t *testing.T) {
	ctx := context.Background()
	sc, _ := newToolFixture(t)

	result, err := handleSendGmail(ctx, sendRequest(map[string]any{
		"user_id": "no-such-token",
		"to":      "a@example.com",
		"subject": "s",
		"body":    "b",
	}), sc)
	require.NoError(t, err)
	require.True(t, result.IsError)

	payload := decodeResult(t, result)
	assert.Equal(t, "credential", payload["error_type"])
}

func TestSendGmailSendFailure(t *testing.T) {
	ctx := context.Background()
	sc, userTokenID := newToolFixture(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"code": 500, "message": "backend error"}}`, http.StatusInternalServerError)
	}))
	defer ts.Close()
	sc.SetGmailOptions(option.WithEndpoint(ts.URL))

	result, err := handleSendGmail(ctx, sendRequest(map[string]any{
		"user_id": userTokenID,
		"to":      "a@example.com",
		"subject": "s",
		"body":    "b",
	}), sc)
	require.NoError(t, err)
	require.True(t, result.IsError)

	payload := decodeResult(t, result)
	assert.Equal(t, "send", payload["error_type"])
	assert.NotEmpty(t, payload["correlation_id"])
}
