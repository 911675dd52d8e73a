package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/vipul43/fitsync-worker/internal/models"
)

var stravaActivityTypes = map[string]string{
	"Run":                           "Running",
	"TrailRun":                      "Running",
	"VirtualRun":                    "Running",
	"Ride":                          "Cycling",
	"VirtualRide":                   "Cycling",
	"MountainBikeRide":              "Cycling",
	"GravelRide":                    "Cycling",
	"EBikeRide":                     "Cycling",
	"Swim":                          "Swimming",
	"Walk":                          "Walking",
	"Hike":                          "Hiking",
	"WeightTraining":                "Strength Training",
	"Workout":                       "Workout",
	"Yoga":                          "Yoga",
	"Rowing":                        "Rowing",
	"VirtualRow":                    "Rowing",
	"Elliptical":                    "Elliptical",
	"StairStepper":                  "Stair Climbing",
	"Crossfit":                      "CrossFit",
	"HighIntensityIntervalTraining": "HIIT",
	"Pilates":                       "Pilates",
	"AlpineSki":                     "Skiing",
	"NordicSki":                     "Skiing",
	"BackcountrySki":                "Skiing",
	"Snowboard":                     "Snowboarding",
	"Kayaking":                      "Paddling",
	"Canoeing":                      "Paddling",
}

// MapActivityType converts a Strava sport type to the application's activity type.
// sport_type is more specific than the legacy type field, so it is tried first.
// Unknown values pass through unchanged.
func MapActivityType(sportType, legacyType string) string {
	for _, t := range []string{sportType, legacyType} {
		if mapped, ok := stravaActivityTypes[t]; ok {
			return mapped
		}
	}
	if sportType != "" {
		return sportType
	}
	return legacyType
}

// ParseStravaTimezone extracts the IANA zone from values like "(GMT-08:00) America/Los_Angeles".
// Anything that does not resolve to a loadable zone yields "UTC".
func ParseStravaTimezone(raw string) string {
	name := strings.TrimSpace(raw)
	if strings.HasPrefix(name, "(") {
		if idx := strings.Index(name, ")"); idx >= 0 {
			name = strings.TrimSpace(name[idx+1:])
		}
	}

	if name == "" || name == "Local" {
		return "UTC"
	}
	if _, err := time.LoadLocation(name); err != nil {
		return "UTC"
	}
	return name
}

// LocalDate is the calendar day the athlete did the activity.
// start_date_local carries wall-clock time decoded as UTC, so its fields are read as-is.
func LocalDate(activity *StravaActivity, timezone string) time.Time {
	if !activity.StartDateLocal.IsZero() {
		y, m, d := activity.StartDateLocal.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	y, m, d := activity.StartDate.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CaloriesBurned prefers Strava's calorie estimate and falls back to
// mechanical work, since 1 kJ of work approximates 1 kcal burned.
func CaloriesBurned(activity *StravaActivity) float64 {
	if activity.Calories > 0 {
		return activity.Calories
	}
	if activity.Kilojoules > 0 {
		return activity.Kilojoules
	}
	return 0
}

func buildMetricsPayload(activity *StravaActivity) models.JSONB {
	payload := models.JSONB{
		"distance_m":             activity.Distance,
		"moving_time_s":          activity.MovingTime,
		"elapsed_time_s":         activity.ElapsedTime,
		"total_elevation_gain_m": activity.TotalElevationGain,
		"average_speed":          activity.AverageSpeed,
		"max_speed":              activity.MaxSpeed,
		"sport_type":             activity.SportType,
		"source":                 models.ProviderStrava,
	}
	if !activity.StartDate.IsZero() {
		payload["start_date"] = activity.StartDate.UTC().Format(time.RFC3339)
	}
	if activity.AverageHeartrate != nil {
		payload["average_heartrate"] = *activity.AverageHeartrate
	}
	if activity.MaxHeartrate != nil {
		payload["max_heartrate"] = *activity.MaxHeartrate
	}
	return payload
}

// BuildTrackedActivity maps a Strava activity onto a progress_tracking row for userID
func BuildTrackedActivity(userID string, activity *StravaActivity) *models.TrackedActivity {
	timezone := ParseStravaTimezone(activity.Timezone)

	return &models.TrackedActivity{
		UserID:           userID,
		ActivityType:     MapActivityType(activity.SportType, activity.Type),
		ActivityName:     activity.Name,
		Date:             LocalDate(activity, timezone),
		Timezone:         timezone,
		Source:           models.ProviderStrava,
		SourceActivityID: strconv.FormatInt(activity.ID, 10),
		MetricsPayload:   buildMetricsPayload(activity),
		CaloriesBurned:   CaloriesBurned(activity),
	}
}
