package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vipul43/fitsync-worker/internal/models"
	"gorm.io/gorm"
)

// ActivityRepository manages progress_tracking rows imported from external sources.
// Every operation is keyed on (user_id, source_activity_id).
type ActivityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// ExistsBySource reports whether the activity was already imported
func (r *ActivityRepository) ExistsBySource(ctx context.Context, userID, sourceActivityID string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.TrackedActivity{}).
		Where("user_id = ? AND source_activity_id = ?", userID, sourceActivityID).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to check activity: %w", result.Error)
	}
	return count > 0, nil
}

// Create inserts a new tracked activity, assigning an ID when missing
func (r *ActivityRepository) Create(ctx context.Context, activity *models.TrackedActivity) error {
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(activity).Error; err != nil {
		return fmt.Errorf("failed to create activity: %w", err)
	}
	return nil
}

// UpdateBySource overwrites the mutable fields and returns the number of rows touched
func (r *ActivityRepository) UpdateBySource(ctx context.Context, activity *models.TrackedActivity) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.TrackedActivity{}).
		Where("user_id = ? AND source_activity_id = ?", activity.UserID, activity.SourceActivityID).
		Updates(map[string]interface{}{
			"activity_type":   activity.ActivityType,
			"activity_name":   activity.ActivityName,
			"date":            activity.Date,
			"timezone":        activity.Timezone,
			"metrics_payload": activity.MetricsPayload,
			"calories_burned": activity.CaloriesBurned,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update activity: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteBySource removes the imported activity. Deleting nothing is not an error.
func (r *ActivityRepository) DeleteBySource(ctx context.Context, userID, sourceActivityID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND source_activity_id = ?", userID, sourceActivityID).
		Delete(&models.TrackedActivity{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete activity: %w", result.Error)
	}
	return result.RowsAffected, nil
}
