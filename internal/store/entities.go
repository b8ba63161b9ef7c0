package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringArray stores a list of strings as a JSON column so the schema
// stays portable across sqlite and mysql.
type StringArray []string

func (a *StringArray) Scan(value any) error {
	switch t := value.(type) {
	case string:
		return json.Unmarshal([]byte(t), a)
	case []byte:
		return json.Unmarshal(t, a)
	}

	return fmt.Errorf("cannot scan invalid data type %T", value)
}

func (a StringArray) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Client is a registered tenant application using the broker.
type Client struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Client) TableName() string {
	return "clients"
}

// ClientAuth is one Google OAuth application configuration owned by a
// Client. A client may register several configs of the same auth type,
// each independently authorizable.
type ClientAuth struct {
	ID       string `gorm:"primaryKey"`
	ClientID string `gorm:"index"`
	Client   Client `gorm:"foreignKey:ClientID"`

	AuthType           string `gorm:"index"`
	GoogleClientID     string
	GoogleClientSecret string
	RedirectURI        string
	Scopes             StringArray
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (ClientAuth) TableName() string {
	return "client_auths"
}

// OAuthFlow is the pending-flow record for one in-flight authorization
// attempt, keyed by the opaque state token. It is consumed (deleted)
// exactly once at callback time.
type OAuthFlow struct {
	State        string `gorm:"primaryKey"`
	ClientAuthID string
	ClientAuth   ClientAuth `gorm:"foreignKey:ClientAuthID"`
	CurrentURI   string
	CreatedAt    time.Time
}

func (OAuthFlow) TableName() string {
	return "oauth_flows"
}

// UserToken is the persisted grant for one authorized Google account
// under one ClientAuth. Re-authorizing the same account under the same
// config updates the row instead of duplicating it.
type UserToken struct {
	ID           string `gorm:"primaryKey"`
	GoogleID     string `gorm:"uniqueIndex:idx_user_tokens_google_client_auth"`
	ClientAuthID string `gorm:"uniqueIndex:idx_user_tokens_google_client_auth"`
	ClientAuth   ClientAuth `gorm:"foreignKey:ClientAuthID"`

	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (UserToken) TableName() string {
	return "user_tokens"
}
