package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/vipul43/fitsync-worker/internal/metrics"
	"github.com/vipul43/fitsync-worker/internal/service"
)

// verifyWebhook answers the hub.challenge handshake Strava sends when a subscription is created
func (h *handler) verifyWebhook(c *gin.Context) {
	challenge, err := h.deps.Receiver.VerifySubscription(
		c.Query("hub.mode"),
		c.Query("hub.challenge"),
		c.Query("hub.verify_token"),
	)
	if err != nil {
		status := http.StatusForbidden
		switch {
		case errors.Is(err, service.ErrVerifyTokenNotConfigured):
			status = http.StatusInternalServerError
		case errors.Is(err, service.ErrInvalidHubMode):
			status = http.StatusBadRequest
		}
		log.Warn().Err(err).Int("status", status).Msg("webhook subscription validation rejected")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"hub.challenge": challenge})
}

// receiveWebhook always acknowledges; Strava retries anything else and we own the retry policy
func (h *handler) receiveWebhook(c *gin.Context) {
	var in service.InboundEvent
	if err := c.ShouldBindJSON(&in); err != nil {
		metrics.EventsReceived.WithLabelValues("dropped").Inc()
		log.Warn().Err(err).Msg("dropping unparseable webhook body")
		c.JSON(http.StatusOK, gin.H{"status": "EVENT_RECEIVED"})
		return
	}

	h.deps.Receiver.Enqueue(c.Request.Context(), in)
	c.JSON(http.StatusOK, gin.H{"status": "EVENT_RECEIVED"})
}
