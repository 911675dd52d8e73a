package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vipul43/fitsync-worker/internal/models"
	"gorm.io/gorm"
)

type AutoSyncRepository struct {
	db *gorm.DB
}

func NewAutoSyncRepository(db *gorm.DB) *AutoSyncRepository {
	return &AutoSyncRepository{db: db}
}

// Disable turns off automatic import for the user and provider. Missing settings are left alone.
func (r *AutoSyncRepository) Disable(ctx context.Context, userID, provider string) error {
	result := r.db.WithContext(ctx).Model(&models.AutoSyncSetting{}).
		Where("user_id = ? AND provider = ?", userID, provider).
		Updates(map[string]interface{}{
			"is_enabled": false,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to disable auto-sync: %w", result.Error)
	}
	return nil
}
