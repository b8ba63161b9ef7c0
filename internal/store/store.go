package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/my-personal-agent/google-service/internal/config"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrFlowConsumed is returned when a pending flow was already consumed
// by a concurrent or earlier callback with the same state.
var ErrFlowConsumed = errors.New("pending flow already consumed")

// Store is the explicitly constructed handle to the credential store.
// It owns the database connection for its lifetime: Open at process
// start, Close at shutdown. Components receive the handle by injection.
type Store struct {
	db  *gorm.DB
	log *slog.Logger
}

// Open connects to the configured database and migrates the schema.
func Open(cfg *config.Config, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case config.DriverMySQL:
		dialector = mysql.Open(cfg.DatabaseDSN)
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.DatabaseDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		return nil, err
	}

	log.Info("credential store opened", "driver", cfg.DatabaseDriver)
	return s, nil
}

// NewWithDB wraps an existing gorm connection. Used by tests.
func NewWithDB(db *gorm.DB, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&Client{}, &ClientAuth{}, &OAuthFlow{}, &UserToken{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies store connectivity, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateClient persists a new client registration. The ID is assigned
// here if the caller left it empty.
func (s *Store) CreateClient(ctx context.Context, client *Client) error {
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(client).Error
}

// GetClient returns a client by id.
func (s *Store) GetClient(ctx context.Context, id string) (*Client, error) {
	var record Client
	if err := s.db.WithContext(ctx).Take(&record, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &record, nil
}

// CreateClientAuths persists one or more auth configurations in a
// single batch. IDs are assigned for entries that lack one.
func (s *Store) CreateClientAuths(ctx context.Context, auths []ClientAuth) error {
	for i := range auths {
		if auths[i].ID == "" {
			auths[i].ID = uuid.NewString()
		}
	}
	return s.db.WithContext(ctx).Create(&auths).Error
}

// GetClientAuth returns an auth configuration by id.
func (s *Store) GetClientAuth(ctx context.Context, id string) (*ClientAuth, error) {
	var record ClientAuth
	if err := s.db.WithContext(ctx).Take(&record, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &record, nil
}

// FirstClientAuthByType returns the first auth configuration matching
// (client id, auth type).
func (s *Store) FirstClientAuthByType(ctx context.Context, clientID, authType string) (*ClientAuth, error) {
	var record ClientAuth
	err := s.db.WithContext(ctx).
		Where("client_id = ? AND auth_type = ?", clientID, authType).
		Order("created_at").
		First(&record).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &record, nil
}

// CreatePendingFlow records an in-flight authorization attempt.
func (s *Store) CreatePendingFlow(ctx context.Context, flow *OAuthFlow) error {
	return s.db.WithContext(ctx).Create(flow).Error
}

// ConsumePendingFlow looks up a pending flow by state and deletes it.
// The delete is a compare-and-delete on the state primary key: under
// concurrent callbacks bearing the same state, exactly one caller wins
// and every other caller gets ErrFlowConsumed.
func (s *Store) ConsumePendingFlow(ctx context.Context, state string) (*OAuthFlow, error) {
	var flow OAuthFlow
	err := s.db.WithContext(ctx).
		Preload("ClientAuth").
		Take(&flow, "state = ?", state).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}

	tx := s.db.WithContext(ctx).Where("state = ?", state).Delete(&OAuthFlow{})
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, ErrFlowConsumed
	}

	return &flow, nil
}

// UpsertUserToken inserts or updates the credential row keyed by
// (google id, client auth id). Access token and expiry are always
// overwritten; the refresh token is only overwritten when the new
// value is non-empty, so a response omitting it keeps the stored one.
func (s *Store) UpsertUserToken(ctx context.Context, token *UserToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}

	assignments := map[string]any{
		"access_token": token.AccessToken,
		"expiry":       token.Expiry,
		"updated_at":   time.Now(),
	}
	if token.RefreshToken != "" {
		assignments["refresh_token"] = token.RefreshToken
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "google_id"},
				{Name: "client_auth_id"},
			},
			DoUpdates: clause.Assignments(assignments),
		}).
		Create(token).Error
	if err != nil {
		return err
	}

	// On conflict the generated ID was discarded; reload so callers see
	// the canonical row.
	return s.db.WithContext(ctx).
		Take(token, "google_id = ? AND client_auth_id = ?", token.GoogleID, token.ClientAuthID).Error
}

// GetUserToken returns a credential row with its owning auth config.
func (s *Store) GetUserToken(ctx context.Context, id string) (*UserToken, error) {
	var record UserToken
	err := s.db.WithContext(ctx).
		Preload("ClientAuth").
		Take(&record, "id = ?", id).Error
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &record, nil
}

// UpdateUserTokenCredentials persists a refreshed credential. An empty
// refresh token retains the stored one.
func (s *Store) UpdateUserTokenCredentials(ctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error {
	updates := map[string]any{
		"access_token": accessToken,
		"expiry":       expiry,
	}
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}

	tx := s.db.WithContext(ctx).Model(&UserToken{}).Where("id = ?", id).Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountPendingFlows returns the number of in-flight flows. Used by
// tests and operational tooling.
func (s *Store) CountPendingFlows(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&OAuthFlow{}).Count(&count).Error
	return count, err
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
