package strava

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"

	"github.com/vipul43/fitsync-worker/internal/metrics"
	"github.com/vipul43/fitsync-worker/internal/ratelimit"
	"github.com/vipul43/fitsync-worker/internal/service"
)

const (
	DefaultAPIBaseURL = "https://www.strava.com/api/v3"
	DefaultTokenURL   = "https://www.strava.com/oauth/token"

	breakerName = "strava-activities"
)

var (
	// ErrMissingCredentials means the client id or secret is not configured
	ErrMissingCredentials = errors.New("strava client credentials not configured")

	// ErrCircuitOpen is returned while the activity breaker refuses calls
	ErrCircuitOpen = errors.New("strava circuit breaker open")
)

// APIError is a non-2xx answer from Strava
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("strava API error (status %d): %s", e.StatusCode, e.Body)
}

type Config struct {
	ClientID     string
	ClientSecret string
	APIBaseURL   string
	TokenURL     string
	HTTPClient   *http.Client
}

type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	tokenURL     string
	httpClient   *http.Client
	limiter      *ratelimit.Limiter
	breaker      *gobreaker.CircuitBreaker[*service.StravaActivity]
}

func NewClient(cfg Config, limiter *ratelimit.Limiter) *Client {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	breaker := gobreaker.NewCircuitBreaker[*service.StravaActivity](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// a deleted activity is a valid answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, service.ErrActivityNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &Client{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		baseURL:      strings.TrimRight(cfg.APIBaseURL, "/"),
		tokenURL:     cfg.TokenURL,
		httpClient:   cfg.HTTPClient,
		limiter:      limiter,
		breaker:      breaker,
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// GetActivity fetches the authoritative state of one activity.
// A 404 is reported as service.ErrActivityNotFound.
func (c *Client) GetActivity(ctx context.Context, accessToken string, activityID int64) (*service.StravaActivity, error) {
	activity, err := c.breaker.Execute(func() (*service.StravaActivity, error) {
		return c.fetchActivity(ctx, accessToken, activityID)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return activity, err
}

func (c *Client) fetchActivity(ctx context.Context, accessToken string, activityID int64) (*service.StravaActivity, error) {
	endpoint := fmt.Sprintf("%s/activities/%d", c.baseURL, activityID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	c.observeBudget(resp.Header)
	metrics.APIRequests.WithLabelValues("get_activity", statusClass(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, service.ErrActivityNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}

	var activity detailedActivity
	if err := json.Unmarshal(body, &activity); err != nil {
		return nil, fmt.Errorf("failed to parse activity: %w", err)
	}

	return activity.toService(), nil
}

// observeBudget feeds Strava's usage headers into the limiter, counting locally when they are absent
func (c *Client) observeBudget(h http.Header) {
	if c.limiter == nil {
		return
	}
	if !c.limiter.UpdateFromHeaders(h) {
		c.limiter.RecordRead()
	}
	status := c.limiter.Status()
	metrics.RecordReadBudget(status.Usage15Min, status.UsageDaily)
}

// RefreshAccessToken exchanges a refresh token for a new token pair
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*service.TokenRefreshResult, error) {
	if c.clientID == "" || c.clientSecret == "" {
		return nil, ErrMissingCredentials
	}

	config := &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	token := &oauth2.Token{
		RefreshToken: refreshToken,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	newToken, err := config.TokenSource(ctx, token).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	if newToken.AccessToken == "" {
		return nil, errors.New("token endpoint returned an empty access token")
	}

	result := &service.TokenRefreshResult{
		AccessToken: newToken.AccessToken,
		ExpiresAt:   newToken.Expiry,
	}

	// Strava rotates refresh tokens; keep the old one when it did not
	if newToken.RefreshToken != "" {
		result.RefreshToken = newToken.RefreshToken
	} else {
		result.RefreshToken = refreshToken
	}

	return result, nil
}

// ListSubscriptions returns the application's push subscriptions
func (c *Client) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	if c.clientID == "" || c.clientSecret == "" {
		return nil, ErrMissingCredentials
	}

	query := url.Values{}
	query.Set("client_id", c.clientID)
	query.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/push_subscriptions?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := c.do(req, "list_subscriptions", http.StatusOK)
	if err != nil {
		return nil, err
	}

	var subs []Subscription
	if err := json.Unmarshal(body, &subs); err != nil {
		return nil, fmt.Errorf("failed to parse subscriptions: %w", err)
	}
	return subs, nil
}

// CreateSubscription registers callbackURL with Strava. Strava validates it synchronously
// by calling the GET handshake with verifyToken before answering.
func (c *Client) CreateSubscription(ctx context.Context, callbackURL, verifyToken string) (*Subscription, error) {
	if c.clientID == "" || c.clientSecret == "" {
		return nil, ErrMissingCredentials
	}

	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("callback_url", callbackURL)
	form.Set("verify_token", verifyToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/push_subscriptions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req, "create_subscription", http.StatusOK, http.StatusCreated)
	if err != nil {
		return nil, err
	}

	var sub Subscription
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, fmt.Errorf("failed to parse subscription: %w", err)
	}
	sub.CallbackURL = callbackURL
	return &sub, nil
}

// DeleteSubscription removes a push subscription by id
func (c *Client) DeleteSubscription(ctx context.Context, id int64) error {
	if c.clientID == "" || c.clientSecret == "" {
		return ErrMissingCredentials
	}

	query := url.Values{}
	query.Set("client_id", c.clientID)
	query.Set("client_secret", c.clientSecret)

	endpoint := c.baseURL + "/push_subscriptions/" + strconv.FormatInt(id, 10) + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	_, err = c.do(req, "delete_subscription", http.StatusNoContent, http.StatusOK)
	return err
}

func (c *Client) do(req *http.Request, endpoint string, expected ...int) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	metrics.APIRequests.WithLabelValues(endpoint, statusClass(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	for _, code := range expected {
		if resp.StatusCode == code {
			return body, nil
		}
	}
	return nil, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
