package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vipul43/fitsync-worker/internal/metrics"
	"github.com/vipul43/fitsync-worker/internal/models"
	"github.com/vipul43/fitsync-worker/internal/repository"
)

const (
	DefaultBatchSize  = 10
	DefaultMaxRetries = 3

	tokenExpirySkew = 5 * time.Minute
	deauthReason    = "athlete revoked access"
)

// WebhookEventStore is the durable queue the processor drains
type WebhookEventStore interface {
	GetPendingEvents(ctx context.Context, limit, maxRetries int) ([]models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, eventID string) error
	RecordFailure(ctx context.Context, eventID string, reason string) error
	MarkDeadLettered(ctx context.Context, eventID string, maxRetries int, reason string) error
}

// ConnectionStore interface for dependency injection
type ConnectionStore interface {
	FindByProviderUser(ctx context.Context, provider, providerUserID string) (*models.IntegrationConnection, error)
	UpdateTokens(ctx context.Context, connectionID string, accessTokenEncrypted string, refreshTokenEncrypted string, expiresAt time.Time) error
	MarkDisconnected(ctx context.Context, connectionID string, reason string) error
}

// ActivityStore interface for dependency injection
type ActivityStore interface {
	ExistsBySource(ctx context.Context, userID, sourceActivityID string) (bool, error)
	Create(ctx context.Context, activity *models.TrackedActivity) error
	UpdateBySource(ctx context.Context, activity *models.TrackedActivity) (int64, error)
	DeleteBySource(ctx context.Context, userID, sourceActivityID string) (int64, error)
}

// AutoSyncStore interface for dependency injection
type AutoSyncStore interface {
	Disable(ctx context.Context, userID, provider string) error
}

type EventProcessorConfig struct {
	BatchSize  int
	MaxRetries int
	// Now defaults to time.Now
	Now func() time.Time
}

// RunStats summarizes one Run invocation
type RunStats struct {
	Skipped      bool
	Fetched      int
	Processed    int
	Retried      int
	DeadLettered int
}

// EventProcessor drains webhook_events and reconciles each event into local state.
// Events are handled one at a time; a failing event never stops the batch.
type EventProcessor struct {
	events      WebhookEventStore
	connections ConnectionStore
	activities  ActivityStore
	autoSync    AutoSyncStore
	strava      StravaClient
	limiter     RateLimiter
	vault       TokenVault

	batchSize  int
	maxRetries int
	now        func() time.Time

	running sync.Mutex
}

func NewEventProcessor(
	events WebhookEventStore,
	connections ConnectionStore,
	activities ActivityStore,
	autoSync AutoSyncStore,
	stravaClient StravaClient,
	limiter RateLimiter,
	vault TokenVault,
	cfg EventProcessorConfig,
) *EventProcessor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &EventProcessor{
		events:      events,
		connections: connections,
		activities:  activities,
		autoSync:    autoSync,
		strava:      stravaClient,
		limiter:     limiter,
		vault:       vault,
		batchSize:   cfg.BatchSize,
		maxRetries:  cfg.MaxRetries,
		now:         cfg.Now,
	}
}

// permanentError marks failures that no retry can fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

// IsPermanent reports whether err was classified as non-retryable
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Run processes one batch of pending events. It never returns an error:
// per-event failures are written back to the queue row. A call that overlaps
// a run still in flight returns immediately.
func (p *EventProcessor) Run(ctx context.Context) RunStats {
	var stats RunStats

	if !p.running.TryLock() {
		log.Debug().Msg("event processor already running, skipping tick")
		stats.Skipped = true
		return stats
	}
	defer p.running.Unlock()

	events, err := p.events.GetPendingEvents(ctx, p.batchSize, p.maxRetries)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch pending webhook events")
		return stats
	}
	stats.Fetched = len(events)

	if len(events) == 0 {
		return stats
	}

	log.Info().Int("count", len(events)).Msg("processing webhook events")

	for i := range events {
		if ctx.Err() != nil {
			log.Info().Msg("context cancelled, stopping batch")
			break
		}

		switch p.processEvent(ctx, events[i]) {
		case metrics.OutcomeProcessed:
			stats.Processed++
		case metrics.OutcomeRetry:
			stats.Retried++
		case metrics.OutcomeDeadLetter:
			stats.DeadLettered++
		}
	}

	log.Info().
		Int("processed", stats.Processed).
		Int("retried", stats.Retried).
		Int("dead_lettered", stats.DeadLettered).
		Msg("webhook batch complete")

	return stats
}

// processEvent handles one event and records its outcome on the queue row
func (p *EventProcessor) processEvent(ctx context.Context, event models.WebhookEvent) string {
	start := time.Now()
	logger := log.With().
		Str("event_id", event.ID).
		Str("object_type", string(event.ObjectType)).
		Str("aspect_type", string(event.AspectType)).
		Int64("object_id", event.ObjectID).
		Int64("owner_id", event.OwnerID).
		Int("retry_count", event.RetryCount).
		Logger()

	err := p.safeHandle(ctx, event)

	outcome := metrics.OutcomeProcessed
	switch {
	case err == nil:
		if markErr := p.events.MarkProcessed(ctx, event.ID); markErr != nil {
			logger.Error().Err(markErr).Msg("failed to mark event processed")
		}
		logger.Debug().Msg("event processed")

	case IsPermanent(err):
		outcome = metrics.OutcomeDeadLetter
		logger.Error().Err(err).Msg("permanent failure, dead-lettering event")
		if markErr := p.events.MarkDeadLettered(ctx, event.ID, p.maxRetries, err.Error()); markErr != nil {
			logger.Error().Err(markErr).Msg("failed to dead-letter event")
		}

	default:
		outcome = metrics.OutcomeRetry
		if event.RetryCount+1 >= p.maxRetries {
			outcome = metrics.OutcomeDeadLetter
		}
		if errors.Is(err, ErrRateLimited) {
			metrics.RateLimitedDeferrals.Inc()
			logger.Warn().Err(err).Msg("read budget exhausted, deferring event")
		} else {
			logger.Warn().Err(err).Msg("event failed, will retry")
		}
		if markErr := p.events.RecordFailure(ctx, event.ID, err.Error()); markErr != nil {
			logger.Error().Err(markErr).Msg("failed to record event failure")
		}
	}

	metrics.EventsHandled.WithLabelValues(string(event.ObjectType), outcome).Inc()
	metrics.EventDuration.WithLabelValues(string(event.ObjectType)).Observe(time.Since(start).Seconds())
	return outcome
}

// safeHandle converts a panic in one event into a retryable error
func (p *EventProcessor) safeHandle(ctx context.Context, event models.WebhookEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while handling event: %v", r)
		}
	}()
	return p.handleEvent(ctx, event)
}

func (p *EventProcessor) handleEvent(ctx context.Context, event models.WebhookEvent) error {
	subject, err := models.ParseSubjectType(string(event.ObjectType))
	if err != nil {
		return permanent(err)
	}
	action, err := models.ParseAction(string(event.AspectType))
	if err != nil {
		return permanent(err)
	}

	switch subject {
	case models.SubjectAthlete:
		return p.handleAthleteEvent(ctx, event)
	case models.SubjectActivity:
		switch action {
		case models.ActionDelete:
			return p.handleActivityDelete(ctx, event)
		case models.ActionCreate, models.ActionUpdate:
			return p.handleActivityUpsert(ctx, event, action)
		default:
			return permanent(fmt.Errorf("unhandled aspect_type %q", action))
		}
	default:
		return permanent(fmt.Errorf("unhandled object_type %q", subject))
	}
}

// findConnection resolves the Strava connection for the event owner. A missing connection returns nil, nil.
func (p *EventProcessor) findConnection(ctx context.Context, ownerID int64) (*models.IntegrationConnection, error) {
	conn, err := p.connections.FindByProviderUser(ctx, models.ProviderStrava, strconv.FormatInt(ownerID, 10))
	if err != nil {
		if errors.Is(err, repository.ErrConnectionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

func (p *EventProcessor) handleAthleteEvent(ctx context.Context, event models.WebhookEvent) error {
	if !event.IsDeauthorization() {
		return nil
	}

	conn, err := p.findConnection(ctx, event.OwnerID)
	if err != nil {
		return err
	}
	if conn == nil {
		return nil
	}

	// a retry after a partial failure finds the connection already disconnected
	// and still has to disable auto-sync
	if conn.IsActive() {
		if err := p.connections.MarkDisconnected(ctx, conn.ID, deauthReason); err != nil {
			return err
		}
	}
	if err := p.autoSync.Disable(ctx, conn.UserID, models.ProviderStrava); err != nil {
		return err
	}

	log.Info().Str("user_id", conn.UserID).Int64("owner_id", event.OwnerID).Msg("strava connection deauthorized")
	return nil
}

func (p *EventProcessor) handleActivityDelete(ctx context.Context, event models.WebhookEvent) error {
	conn, err := p.findConnection(ctx, event.OwnerID)
	if err != nil {
		return err
	}
	if conn == nil {
		return nil
	}

	deleted, err := p.activities.DeleteBySource(ctx, conn.UserID, strconv.FormatInt(event.ObjectID, 10))
	if err != nil {
		return err
	}

	log.Debug().Str("user_id", conn.UserID).Int64("object_id", event.ObjectID).Int64("deleted", deleted).Msg("activity delete reconciled")
	return nil
}

func (p *EventProcessor) handleActivityUpsert(ctx context.Context, event models.WebhookEvent, action models.Action) error {
	conn, err := p.findConnection(ctx, event.OwnerID)
	if err != nil {
		return err
	}
	if conn == nil || !conn.IsActive() {
		log.Debug().Int64("owner_id", event.OwnerID).Msg("no active connection, skipping activity event")
		return nil
	}

	if !p.limiter.CanMakeReadRequest() {
		return &RateLimitError{RetryAfter: p.limiter.RetryAfter()}
	}

	accessToken, err := p.accessToken(ctx, conn)
	if err != nil {
		return err
	}

	activity, err := p.strava.GetActivity(ctx, accessToken, event.ObjectID)
	if err != nil {
		if errors.Is(err, ErrActivityNotFound) {
			log.Debug().Int64("object_id", event.ObjectID).Msg("activity no longer exists upstream")
			return nil
		}
		return fmt.Errorf("failed to fetch activity: %w", err)
	}

	row := BuildTrackedActivity(conn.UserID, activity)
	row.SourceActivityID = strconv.FormatInt(event.ObjectID, 10)

	switch action {
	case models.ActionCreate:
		exists, err := p.activities.ExistsBySource(ctx, row.UserID, row.SourceActivityID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		return p.activities.Create(ctx, row)

	case models.ActionUpdate:
		updated, err := p.activities.UpdateBySource(ctx, row)
		if err != nil {
			return err
		}
		if updated > 0 {
			return nil
		}
		// the create was missed or never delivered
		return p.activities.Create(ctx, row)

	default:
		return permanent(fmt.Errorf("unhandled aspect_type %q", action))
	}
}

// isTokenExpired checks if access token is expired or will expire within the skew
func (p *EventProcessor) isTokenExpired(expiresAt *time.Time) bool {
	if expiresAt == nil {
		return true // Assume expired if no expiry time
	}
	return p.now().Add(tokenExpirySkew).After(*expiresAt)
}

// accessToken returns a usable plaintext access token, refreshing and persisting a rotated pair when needed
func (p *EventProcessor) accessToken(ctx context.Context, conn *models.IntegrationConnection) (string, error) {
	accessToken, err := p.vault.Decrypt(conn.AccessTokenEncrypted)
	if err != nil {
		return "", permanent(fmt.Errorf("failed to decrypt access token: %w", err))
	}

	if !p.isTokenExpired(conn.TokenExpiresAt) {
		return accessToken, nil
	}

	if conn.RefreshTokenEncrypted == nil || *conn.RefreshTokenEncrypted == "" {
		return "", errors.New("no refresh token available")
	}

	refreshToken, err := p.vault.Decrypt(*conn.RefreshTokenEncrypted)
	if err != nil {
		return "", permanent(fmt.Errorf("failed to decrypt refresh token: %w", err))
	}

	result, err := p.strava.RefreshAccessToken(ctx, refreshToken)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}

	encryptedAccess, err := p.vault.Encrypt(result.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encryptedRefresh, err := p.vault.Encrypt(result.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	if err := p.connections.UpdateTokens(ctx, conn.ID, encryptedAccess, encryptedRefresh, result.ExpiresAt); err != nil {
		return "", fmt.Errorf("failed to update tokens in database: %w", err)
	}
	metrics.TokenRefreshes.WithLabelValues("success").Inc()

	log.Info().Str("connection_id", conn.ID).Time("expires_at", result.ExpiresAt).Msg("strava token refreshed")

	return result.AccessToken, nil
}
