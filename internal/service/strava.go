package service

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrActivityNotFound is returned by StravaClient.GetActivity when Strava answers 404
	ErrActivityNotFound = errors.New("strava activity not found")

	// ErrRateLimited marks an event deferred because the read budget is spent
	ErrRateLimited = errors.New("strava read rate limit reached")
)

// StravaClient interface for Strava API operations
type StravaClient interface {
	GetActivity(ctx context.Context, accessToken string, activityID int64) (*StravaActivity, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenRefreshResult, error)
}

// RateLimiter gates outbound read requests
type RateLimiter interface {
	CanMakeReadRequest() bool
	RetryAfter() time.Duration
}

// TokenVault encrypts and decrypts OAuth tokens at rest
type TokenVault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type TokenRefreshResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// StravaActivity is the subset of Strava's detailed activity the pipeline reconciles
type StravaActivity struct {
	ID                 int64
	Name               string
	Type               string
	SportType          string
	StartDate          time.Time
	StartDateLocal     time.Time
	Timezone           string
	Distance           float64
	MovingTime         int
	ElapsedTime        int
	TotalElevationGain float64
	AverageSpeed       float64
	MaxSpeed           float64
	AverageHeartrate   *float64
	MaxHeartrate       *float64
	Calories           float64
	Kilojoules         float64
}

// RateLimitError carries how long to wait before the budget resets
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrRateLimited.Error(), e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
