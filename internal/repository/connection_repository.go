package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vipul43/fitsync-worker/internal/models"
	"gorm.io/gorm"
)

var ErrConnectionNotFound = errors.New("integration connection not found")

type ConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// FindByProviderUser resolves a connection by the provider's own athlete id, whatever its status
func (r *ConnectionRepository) FindByProviderUser(ctx context.Context, provider, providerUserID string) (*models.IntegrationConnection, error) {
	var conn models.IntegrationConnection
	result := r.db.WithContext(ctx).
		Where("provider = ? AND provider_user_id = ?", provider, providerUserID).
		First(&conn)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", result.Error)
	}
	return &conn, nil
}

// UpdateTokens stores a rotated (already encrypted) token pair and its expiry
func (r *ConnectionRepository) UpdateTokens(ctx context.Context, connectionID string, accessTokenEncrypted string, refreshTokenEncrypted string, expiresAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.IntegrationConnection{}).
		Where("id = ?", connectionID).
		Updates(map[string]interface{}{
			"access_token_encrypted":  accessTokenEncrypted,
			"refresh_token_encrypted": refreshTokenEncrypted,
			"token_expires_at":        expiresAt,
			"updated_at":              time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update tokens: %w", result.Error)
	}
	return nil
}

// MarkDisconnected flips the connection to disconnected and records why
func (r *ConnectionRepository) MarkDisconnected(ctx context.Context, connectionID string, reason string) error {
	result := r.db.WithContext(ctx).Model(&models.IntegrationConnection{}).
		Where("id = ?", connectionID).
		Updates(map[string]interface{}{
			"status":     models.ConnectionStatusDisconnected,
			"last_error": reason,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to disconnect: %w", result.Error)
	}
	return nil
}
