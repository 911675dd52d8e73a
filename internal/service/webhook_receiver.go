package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vipul43/fitsync-worker/internal/metrics"
	"github.com/vipul43/fitsync-worker/internal/models"
)

const enqueueTimeout = 2 * time.Second

var (
	ErrVerifyTokenNotConfigured = errors.New("webhook verify token not configured")
	ErrInvalidHubMode           = errors.New("invalid hub.mode")
	ErrVerifyTokenMismatch      = errors.New("verify token mismatch")
)

// InboundEvent is the JSON body Strava POSTs to the callback URL
type InboundEvent struct {
	ObjectType     string                 `json:"object_type"`
	ObjectID       int64                  `json:"object_id"`
	AspectType     string                 `json:"aspect_type"`
	OwnerID        int64                  `json:"owner_id"`
	SubscriptionID int64                  `json:"subscription_id"`
	EventTime      int64                  `json:"event_time"`
	Updates        map[string]interface{} `json:"updates"`
}

// EventEnqueuer persists accepted events
type EventEnqueuer interface {
	Create(ctx context.Context, event models.WebhookEvent) error
}

type WebhookReceiver struct {
	events      EventEnqueuer
	verifyToken string
	now         func() time.Time
}

func NewWebhookReceiver(events EventEnqueuer, verifyToken string) *WebhookReceiver {
	return &WebhookReceiver{
		events:      events,
		verifyToken: verifyToken,
		now:         time.Now,
	}
}

// VerifySubscription answers Strava's subscription handshake by echoing the challenge
func (r *WebhookReceiver) VerifySubscription(mode, challenge, verifyToken string) (string, error) {
	if r.verifyToken == "" {
		return "", ErrVerifyTokenNotConfigured
	}
	if mode != "subscribe" {
		return "", ErrInvalidHubMode
	}
	if subtle.ConstantTimeCompare([]byte(verifyToken), []byte(r.verifyToken)) != 1 {
		return "", ErrVerifyTokenMismatch
	}
	return challenge, nil
}

// Enqueue validates and stores an inbound event. It never fails the caller:
// Strava retries non-200 answers, so invalid or unstorable events are logged and dropped.
func (r *WebhookReceiver) Enqueue(ctx context.Context, in InboundEvent) {
	event, err := r.toWebhookEvent(in)
	if err != nil {
		metrics.EventsReceived.WithLabelValues("dropped").Inc()
		log.Warn().Err(err).
			Str("object_type", in.ObjectType).
			Str("aspect_type", in.AspectType).
			Int64("object_id", in.ObjectID).
			Msg("dropping malformed webhook event")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()

	if err := r.events.Create(ctx, event); err != nil {
		metrics.EventsReceived.WithLabelValues("dropped").Inc()
		log.Error().Err(err).Str("event_id", event.ID).Msg("failed to enqueue webhook event")
		return
	}

	metrics.EventsReceived.WithLabelValues("enqueued").Inc()
	log.Info().
		Str("event_id", event.ID).
		Str("object_type", string(event.ObjectType)).
		Str("aspect_type", string(event.AspectType)).
		Int64("object_id", event.ObjectID).
		Int64("owner_id", event.OwnerID).
		Msg("webhook event enqueued")
}

func (r *WebhookReceiver) toWebhookEvent(in InboundEvent) (models.WebhookEvent, error) {
	subject, err := models.ParseSubjectType(in.ObjectType)
	if err != nil {
		return models.WebhookEvent{}, err
	}
	action, err := models.ParseAction(in.AspectType)
	if err != nil {
		return models.WebhookEvent{}, err
	}
	if in.ObjectID <= 0 {
		return models.WebhookEvent{}, errors.New("missing object_id")
	}
	if in.OwnerID <= 0 {
		return models.WebhookEvent{}, errors.New("missing owner_id")
	}

	receivedAt := r.now()
	// event_time is informational; a payload without it is stamped with receipt time
	eventTime := receivedAt.UTC()
	if in.EventTime > 0 {
		eventTime = time.Unix(in.EventTime, 0).UTC()
	}

	return models.WebhookEvent{
		ID:             uuid.New().String(),
		ObjectType:     subject,
		ObjectID:       in.ObjectID,
		AspectType:     action,
		OwnerID:        in.OwnerID,
		SubscriptionID: in.SubscriptionID,
		EventTime:      eventTime,
		Updates:        stringifyUpdates(in.Updates),
		CreatedAt:      receivedAt,
	}, nil
}

// stringifyUpdates flattens Strava's updates object; values arrive as strings but booleans have been seen
func stringifyUpdates(updates map[string]interface{}) models.StringMap {
	out := make(models.StringMap, len(updates))
	for k, v := range updates {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
