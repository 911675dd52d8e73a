package models

import "time"

// TrackedActivity is a reconciled workout row in progress_tracking.
// (UserID, SourceActivityID) is unique, which is what makes webhook replays idempotent.
type TrackedActivity struct {
	ID               string    `gorm:"column:id;primaryKey"`
	UserID           string    `gorm:"column:user_id"`
	ActivityType     string    `gorm:"column:activity_type"`
	ActivityName     string    `gorm:"column:activity_name"`
	Date             time.Time `gorm:"column:date;type:date"`
	Timezone         string    `gorm:"column:timezone"`
	Source           string    `gorm:"column:source"`
	SourceActivityID string    `gorm:"column:source_activity_id"`
	MetricsPayload   JSONB     `gorm:"column:metrics_payload;type:jsonb"`
	CaloriesBurned   float64   `gorm:"column:calories_burned"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (TrackedActivity) TableName() string {
	return "progress_tracking"
}
