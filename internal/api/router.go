package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"booking-assistant-backend/internal/mw"
)

// RouterConfig holds the middleware settings of the router.
type RouterConfig struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	CacheTTL        time.Duration

	// Cache is shared with whoever invalidates stats; nil builds a private one.
	Cache *mw.ResponseCache
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(mw.Logger(h.logger), gin.Recovery())

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	responses := cfg.Cache
	if responses == nil {
		responses = mw.NewResponseCache(cfg.CacheTTL)
	}
	caching := responses.Handler()

	r.GET("/", Health)
	r.GET("/ws", rateLimiter, h.ServeWS)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Status reflects live connections and is never cached.
		api.GET("/status", h.GetStatus)
		api.GET("/stats/bookings", caching, h.GetBookingStats)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
