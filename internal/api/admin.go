package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vipul43/fitsync-worker/internal/repository"
	"github.com/vipul43/fitsync-worker/internal/strava"
)

const (
	defaultDeadLetterLimit = 50
	maxDeadLetterLimit     = 500
)

type deadLetterEvent struct {
	ID             string            `json:"id"`
	ObjectType     string            `json:"object_type"`
	ObjectID       int64             `json:"object_id"`
	AspectType     string            `json:"aspect_type"`
	OwnerID        int64             `json:"owner_id"`
	SubscriptionID int64             `json:"subscription_id"`
	EventTime      time.Time         `json:"event_time"`
	Updates        map[string]string `json:"updates"`
	RetryCount     int               `json:"retry_count"`
	ErrorMessage   *string           `json:"error_message"`
	CreatedAt      time.Time         `json:"created_at"`
}

// writeStravaError maps subscription failures: our misconfiguration is a 500, Strava's refusal a 502
func writeStravaError(c *gin.Context, err error) {
	if errors.Is(err, strava.ErrMissingCredentials) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.Error().Err(err).Msg("strava subscription request failed")
	var apiErr *strava.APIError
	if errors.As(err, &apiErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "strava rejected the request", "status": apiErr.StatusCode, "details": apiErr.Body})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

func (h *handler) listSubscriptions(c *gin.Context) {
	subs, err := h.deps.Subscriptions.ListSubscriptions(c.Request.Context())
	if err != nil {
		writeStravaError(c, err)
		return
	}
	if subs == nil {
		subs = []strava.Subscription{}
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

func (h *handler) createSubscription(c *gin.Context) {
	if h.deps.CallbackURL == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STRAVA_CALLBACK_URL is not configured"})
		return
	}
	if h.deps.VerifyToken == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STRAVA_VERIFY_TOKEN is not configured"})
		return
	}

	sub, err := h.deps.Subscriptions.CreateSubscription(c.Request.Context(), h.deps.CallbackURL, h.deps.VerifyToken)
	if err != nil {
		writeStravaError(c, err)
		return
	}

	log.Info().Int64("subscription_id", sub.ID).Str("admin", c.GetString(claimsSubjectKey)).Msg("strava subscription created")
	c.JSON(http.StatusCreated, sub)
}

func (h *handler) deleteSubscription(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription id"})
		return
	}

	if err := h.deps.Subscriptions.DeleteSubscription(c.Request.Context(), id); err != nil {
		writeStravaError(c, err)
		return
	}

	log.Info().Int64("subscription_id", id).Str("admin", c.GetString(claimsSubjectKey)).Msg("strava subscription deleted")
	c.Status(http.StatusNoContent)
}

func (h *handler) listDeadLetter(c *gin.Context) {
	limit := defaultDeadLetterLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(parsed, maxDeadLetterLimit)
	}

	events, err := h.deps.Events.ListDeadLettered(c.Request.Context(), limit, h.deps.MaxRetries)
	if err != nil {
		log.Error().Err(err).Msg("failed to list dead-lettered events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list dead-lettered events"})
		return
	}

	out := make([]deadLetterEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, deadLetterEvent{
			ID:             ev.ID,
			ObjectType:     string(ev.ObjectType),
			ObjectID:       ev.ObjectID,
			AspectType:     string(ev.AspectType),
			OwnerID:        ev.OwnerID,
			SubscriptionID: ev.SubscriptionID,
			EventTime:      ev.EventTime,
			Updates:        ev.Updates,
			RetryCount:     ev.RetryCount,
			ErrorMessage:   ev.ErrorMessage,
			CreatedAt:      ev.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"events": out, "count": len(out)})
}

func (h *handler) requeueEvent(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	if err := h.deps.Events.Requeue(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no unprocessed event with that id"})
			return
		}
		log.Error().Err(err).Str("event_id", id).Msg("failed to requeue event")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to requeue event"})
		return
	}

	log.Info().Str("event_id", id).Str("admin", c.GetString(claimsSubjectKey)).Msg("webhook event requeued")
	c.JSON(http.StatusOK, gin.H{"id": id, "status": "requeued"})
}
