package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapActivityType(t *testing.T) {
	tests := []struct {
		sportType string
		legacy    string
		want      string
	}{
		{"Run", "Run", "Running"},
		{"TrailRun", "Run", "Running"},
		{"GravelRide", "Ride", "Cycling"},
		{"", "Ride", "Cycling"},
		{"WeightTraining", "WeightTraining", "Strength Training"},
		{"HighIntensityIntervalTraining", "Workout", "HIIT"},
		{"Kayaking", "Kayaking", "Paddling"},
		{"Pickleball", "Workout", "Workout"},
		{"Pickleball", "", "Pickleball"},
		{"", "Wheelchair", "Wheelchair"},
	}

	for _, tt := range tests {
		t.Run(tt.sportType+"/"+tt.legacy, func(t *testing.T) {
			assert.Equal(t, tt.want, MapActivityType(tt.sportType, tt.legacy))
		})
	}
}

func TestParseStravaTimezone(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"(GMT-08:00) America/Los_Angeles", "America/Los_Angeles"},
		{"(GMT+01:00) Europe/Berlin", "Europe/Berlin"},
		{"  (GMT+05:30) Asia/Kolkata  ", "Asia/Kolkata"},
		{"Europe/London", "Europe/London"},
		{"(GMT+00:00) Not/AZone", "UTC"},
		{"(GMT+00:00)", "UTC"},
		{"", "UTC"},
		{"Local", "UTC"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStravaTimezone(tt.input))
		})
	}
}

func TestLocalDate(t *testing.T) {
	// 23:30 local on Mar 1 in Los Angeles is already Mar 2 in UTC
	activity := &StravaActivity{
		StartDate:      time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC),
		StartDateLocal: time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC),
	}
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), LocalDate(activity, "America/Los_Angeles"))

	withoutLocal := &StravaActivity{StartDate: time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)}
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), LocalDate(withoutLocal, "America/Los_Angeles"))
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), LocalDate(withoutLocal, "UTC"))
}

func TestCaloriesBurned(t *testing.T) {
	assert.Equal(t, 500.0, CaloriesBurned(&StravaActivity{Calories: 500, Kilojoules: 800}))
	assert.Equal(t, 800.0, CaloriesBurned(&StravaActivity{Kilojoules: 800}))
	assert.Zero(t, CaloriesBurned(&StravaActivity{}))
}

func TestBuildTrackedActivity(t *testing.T) {
	hr := 150.0
	activity := &StravaActivity{
		ID:               12345,
		Name:             "Morning Run",
		Type:             "Run",
		SportType:        "Run",
		StartDate:        time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC),
		StartDateLocal:   time.Date(2026, 3, 1, 6, 30, 0, 0, time.UTC),
		Timezone:         "(GMT-08:00) America/Los_Angeles",
		Distance:         5000,
		MovingTime:       1800,
		ElapsedTime:      1900,
		Calories:         400,
		AverageHeartrate: &hr,
	}

	row := BuildTrackedActivity("user-1", activity)
	require.NotNil(t, row)
	assert.Equal(t, "user-1", row.UserID)
	assert.Equal(t, "Running", row.ActivityType)
	assert.Equal(t, "Morning Run", row.ActivityName)
	assert.Equal(t, "America/Los_Angeles", row.Timezone)
	assert.Equal(t, "strava", row.Source)
	assert.Equal(t, "12345", row.SourceActivityID)
	assert.Equal(t, 400.0, row.CaloriesBurned)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), row.Date)

	assert.Equal(t, 5000.0, row.MetricsPayload["distance_m"])
	assert.Equal(t, 1800, row.MetricsPayload["moving_time_s"])
	assert.Equal(t, "2026-03-01T14:30:00Z", row.MetricsPayload["start_date"])
	assert.Equal(t, 150.0, row.MetricsPayload["average_heartrate"])
	_, hasMax := row.MetricsPayload["max_heartrate"]
	assert.False(t, hasMax)
}
