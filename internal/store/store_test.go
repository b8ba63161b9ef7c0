package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps every goroutine on the same in-memory
	// database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	s, err := NewWithDB(db, nil)
	require.NoError(t, err)
	return s
}

func seedClientAuth(t *testing.T, s *Store) *ClientAuth {
	t.Helper()
	ctx := context.Background()

	client := &Client{Name: "acme"}
	require.NoError(t, s.CreateClient(ctx, client))

	auths := []ClientAuth{{
		ClientID:           client.ID,
		AuthType:           "gmail",
		GoogleClientID:     "google-client-id",
		GoogleClientSecret: "google-client-secret",
		RedirectURI:        "https://acme.example.com/oauth/done",
		Scopes:             StringArray{"https://www.googleapis.com/auth/gmail.send"},
	}}
	require.NoError(t, s.CreateClientAuths(ctx, auths))
	return &auths[0]
}

func TestClientLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	client := &Client{Name: "acme"}
	require.NoError(t, s.CreateClient(ctx, client))
	require.NotEmpty(t, client.ID)

	got, err := s.GetClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Name)

	_, err = s.GetClient(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClientAuthAllowsDuplicateTypes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	client := &Client{Name: "acme"}
	require.NoError(t, s.CreateClient(ctx, client))

	// Two configs of the same auth type for one client are legal; each
	// is independently authorizable.
	auths := []ClientAuth{
		{
			ClientID:           client.ID,
			AuthType:           "gmail",
			GoogleClientID:     "first",
			GoogleClientSecret: "secret",
			RedirectURI:        "https://one.example.com/done",
			Scopes:             StringArray{"scope-a"},
		},
		{
			ClientID:           client.ID,
			AuthType:           "gmail",
			GoogleClientID:     "second",
			GoogleClientSecret: "secret",
			RedirectURI:        "https://two.example.com/done",
			Scopes:             StringArray{"scope-b"},
		},
	}
	require.NoError(t, s.CreateClientAuths(ctx, auths))

	got, err := s.FirstClientAuthByType(ctx, client.ID, "gmail")
	require.NoError(t, err)
	assert.Equal(t, "first", got.GoogleClientID)
	assert.Equal(t, StringArray{"scope-a"}, got.Scopes)

	_, err = s.FirstClientAuthByType(ctx, client.ID, "calendar")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConsumePendingFlowIsOneShot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	auth := seedClientAuth(t, s)

	flow := &OAuthFlow{
		State:        "state-token-1",
		ClientAuthID: auth.ID,
		CurrentURI:   "https://acme.example.com/app",
	}
	require.NoError(t, s.CreatePendingFlow(ctx, flow))

	consumed, err := s.ConsumePendingFlow(ctx, "state-token-1")
	require.NoError(t, err)
	assert.Equal(t, auth.ID, consumed.ClientAuthID)
	assert.Equal(t, "https://acme.example.com/app", consumed.CurrentURI)
	assert.Equal(t, auth.RedirectURI, consumed.ClientAuth.RedirectURI)

	// Replaying the same state must fail.
	_, err = s.ConsumePendingFlow(ctx, "state-token-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConsumePendingFlowConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	auth := seedClientAuth(t, s)

	require.NoError(t, s.CreatePendingFlow(ctx, &OAuthFlow{
		State:        "racy-state",
		ClientAuthID: auth.ID,
	}))

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ConsumePendingFlow(ctx, "racy-state")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one caller may consume the flow")
}

func TestUpsertUserTokenNoDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	auth := seedClientAuth(t, s)

	first := &UserToken{
		GoogleID:     "google-user-1",
		ClientAuthID: auth.ID,
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour).UTC(),
	}
	require.NoError(t, s.UpsertUserToken(ctx, first))
	firstID := first.ID

	// Second authorization for the same identity: overwrite access
	// token and expiry but, with no refresh token in the response,
	// keep the stored one.
	second := &UserToken{
		GoogleID:     "google-user-1",
		ClientAuthID: auth.ID,
		AccessToken:  "access-2",
		Expiry:       time.Now().Add(2 * time.Hour).UTC(),
	}
	require.NoError(t, s.UpsertUserToken(ctx, second))

	assert.Equal(t, firstID, second.ID, "upsert must reuse the existing row")

	got, err := s.GetUserToken(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, "access-2", got.AccessToken)
	assert.Equal(t, "refresh-1", got.RefreshToken)

	var count int64
	require.NoError(t, s.db.Model(&UserToken{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpsertUserTokenReplacesRefreshToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	auth := seedClientAuth(t, s)

	require.NoError(t, s.UpsertUserToken(ctx, &UserToken{
		GoogleID:     "google-user-2",
		ClientAuthID: auth.ID,
		AccessToken:  "access-1",
		RefreshToken: "refresh-old",
		Expiry:       time.Now().Add(time.Hour),
	}))

	updated := &UserToken{
		GoogleID:     "google-user-2",
		ClientAuthID: auth.ID,
		AccessToken:  "access-2",
		RefreshToken: "refresh-new",
		Expiry:       time.Now().Add(time.Hour),
	}
	require.NoError(t, s.UpsertUserToken(ctx, updated))
	assert.Equal(t, "refresh-new", updated.RefreshToken)
}

func TestUpdateUserTokenCredentials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	auth := seedClientAuth(t, s)

	token := &UserToken{
		GoogleID:     "google-user-3",
		ClientAuthID: auth.ID,
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(-time.Hour),
	}
	require.NoError(t, s.UpsertUserToken(ctx, token))

	newExpiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateUserTokenCredentials(ctx, token.ID, "access-2", "", newExpiry))

	got, err := s.GetUserToken(ctx, token.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-2", got.AccessToken)
	assert.Equal(t, "refresh-1", got.RefreshToken, "empty refresh token retains the stored one")
	assert.WithinDuration(t, newExpiry, got.Expiry, time.Second)

	err = s.UpdateUserTokenCredentials(ctx, "missing", "x", "", newExpiry)
	assert.ErrorIs(t, err, ErrNotFound)
}
