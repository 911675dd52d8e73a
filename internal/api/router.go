package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/vipul43/fitsync-worker/internal/models"
	"github.com/vipul43/fitsync-worker/internal/service"
	"github.com/vipul43/fitsync-worker/internal/strava"
)

// WebhookIngress is the receiving side of the Strava webhook
type WebhookIngress interface {
	VerifySubscription(mode, challenge, verifyToken string) (string, error)
	Enqueue(ctx context.Context, in service.InboundEvent)
}

// SubscriptionManager manages Strava push subscriptions
type SubscriptionManager interface {
	ListSubscriptions(ctx context.Context) ([]strava.Subscription, error)
	CreateSubscription(ctx context.Context, callbackURL, verifyToken string) (*strava.Subscription, error)
	DeleteSubscription(ctx context.Context, id int64) error
}

// EventAdmin inspects and requeues dead-lettered events
type EventAdmin interface {
	ListDeadLettered(ctx context.Context, limit, maxRetries int) ([]models.WebhookEvent, error)
	Requeue(ctx context.Context, eventID string) error
}

type Dependencies struct {
	Receiver      WebhookIngress
	Subscriptions SubscriptionManager
	Events        EventAdmin
	// HealthCheck reports whether the worker can reach its dependencies
	HealthCheck func(ctx context.Context) error

	Auth        AuthConfig
	CallbackURL string
	VerifyToken string
	MaxRetries  int
}

type handler struct {
	deps Dependencies
}

// NewRouter wires the public webhook endpoints, admin routes, health and metrics
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.MaxRetries <= 0 {
		deps.MaxRetries = service.DefaultMaxRetries
	}

	h := &handler{deps: deps}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", h.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/webhooks/strava", h.verifyWebhook)
	r.POST("/webhooks/strava", h.receiveWebhook)

	admin := r.Group("/admin", AdminAuth(deps.Auth))
	{
		admin.GET("/strava/subscriptions", h.listSubscriptions)
		admin.POST("/strava/subscriptions", h.createSubscription)
		admin.DELETE("/strava/subscriptions/:id", h.deleteSubscription)

		admin.GET("/webhook-events/dead-letter", h.listDeadLetter)
		admin.POST("/webhook-events/:id/requeue", h.requeueEvent)
	}

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// scrapes and probes would drown everything else
		if c.FullPath() == "/metrics" || c.FullPath() == "/healthz" {
			return
		}

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

func (h *handler) healthz(c *gin.Context) {
	if h.deps.HealthCheck != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
