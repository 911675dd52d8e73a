package strava

import (
	"fmt"
	"strings"
	"time"

	"github.com/vipul43/fitsync-worker/internal/service"
)

const localTimeLayout = "2006-01-02T15:04:05"

// stravaTime accepts RFC3339 and the zoneless wall-clock form Strava sometimes sends for
// start_date_local. Zoneless values are read as UTC so their fields stay the athlete's local time.
type stravaTime struct {
	time.Time
}

func (t *stravaTime) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}

	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.ParseInLocation(localTimeLayout, raw, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid strava timestamp %q: %w", raw, err)
	}
	t.Time = parsed
	return nil
}

// detailedActivity mirrors the fields of GET /activities/{id} that the worker reads
type detailedActivity struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	Type               string     `json:"type"`
	SportType          string     `json:"sport_type"`
	StartDate          stravaTime `json:"start_date"`
	StartDateLocal     stravaTime `json:"start_date_local"`
	Timezone           string     `json:"timezone"`
	Distance           float64    `json:"distance"`
	MovingTime         int        `json:"moving_time"`
	ElapsedTime        int        `json:"elapsed_time"`
	TotalElevationGain float64    `json:"total_elevation_gain"`
	AverageSpeed       float64    `json:"average_speed"`
	MaxSpeed           float64    `json:"max_speed"`
	HasHeartrate       bool       `json:"has_heartrate"`
	AverageHeartrate   *float64   `json:"average_heartrate"`
	MaxHeartrate       *float64   `json:"max_heartrate"`
	Calories           float64    `json:"calories"`
	Kilojoules         float64    `json:"kilojoules"`
}

func (a detailedActivity) toService() *service.StravaActivity {
	out := &service.StravaActivity{
		ID:                 a.ID,
		Name:               a.Name,
		Type:               a.Type,
		SportType:          a.SportType,
		StartDate:          a.StartDate.Time,
		StartDateLocal:     a.StartDateLocal.Time,
		Timezone:           a.Timezone,
		Distance:           a.Distance,
		MovingTime:         a.MovingTime,
		ElapsedTime:        a.ElapsedTime,
		TotalElevationGain: a.TotalElevationGain,
		AverageSpeed:       a.AverageSpeed,
		MaxSpeed:           a.MaxSpeed,
		Calories:           a.Calories,
		Kilojoules:         a.Kilojoules,
	}
	if a.HasHeartrate || a.AverageHeartrate != nil {
		out.AverageHeartrate = a.AverageHeartrate
		out.MaxHeartrate = a.MaxHeartrate
	}
	return out
}

// Subscription is a Strava push subscription
type Subscription struct {
	ID            int64     `json:"id"`
	ApplicationID int64     `json:"application_id,omitempty"`
	CallbackURL   string    `json:"callback_url"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}
