package models

import "time"

// ProviderStrava is the provider key used for Strava connections and auto-sync settings
const ProviderStrava = "strava"

type ConnectionStatus string

const (
	ConnectionStatusActive       ConnectionStatus = "active"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
)

// IntegrationConnection links an application user to a third-party fitness account.
// Tokens are stored encrypted; see the vault package.
type IntegrationConnection struct {
	ID                    string           `gorm:"column:id;primaryKey"`
	UserID                string           `gorm:"column:user_id"`
	Provider              string           `gorm:"column:provider"`
	ProviderUserID        string           `gorm:"column:provider_user_id"`
	AccessTokenEncrypted  string           `gorm:"column:access_token_encrypted"`
	RefreshTokenEncrypted *string          `gorm:"column:refresh_token_encrypted"`
	TokenExpiresAt        *time.Time       `gorm:"column:token_expires_at"`
	Status                ConnectionStatus `gorm:"column:status"`
	LastError             *string          `gorm:"column:last_error"`
	CreatedAt             time.Time        `gorm:"column:created_at"`
	UpdatedAt             time.Time        `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (IntegrationConnection) TableName() string {
	return "integration_connections"
}

// IsActive reports whether the connection may be used for API calls
func (c IntegrationConnection) IsActive() bool {
	return c.Status == ConnectionStatusActive
}

// AutoSyncSetting toggles automatic activity import for a user and provider
type AutoSyncSetting struct {
	UserID    string    `gorm:"column:user_id;primaryKey"`
	Provider  string    `gorm:"column:provider;primaryKey"`
	IsEnabled bool      `gorm:"column:is_enabled"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (AutoSyncSetting) TableName() string {
	return "auto_sync_settings"
}
