package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"hexwatch-backend/config"
	"hexwatch-backend/internal/mw"
	"hexwatch-backend/pkg/metrics"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, handler *Handler) *gin.Engine {
	r := gin.Default()
	r.TrustedPlatform = cfg.RequestIPHeader

	limit := rate.Inf
	if cfg.RateLimitPerSec > 0 {
		limit = rate.Limit(cfg.RateLimitPerSec)
	}
	rateLimiter := mw.RateLimiter(limit, max(int(cfg.RateLimitPerSec), 5))

	// Only catalog-derived answers are cached; ledger reads change every poll.
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	caching := func(c *gin.Context) { c.Next() }
	if ttl > 0 {
		caching = mw.ColorCache(cache.New(ttl, 2*ttl), ttl)
	}

	r.GET("/healthz", handler.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/compare", caching, handler.Compare)
		api.GET("/closest", caching, handler.Closest)

		api.GET("/pieces", handler.Pieces)
		api.GET("/pieces/near", handler.PiecesNear)
		api.GET("/dupes", handler.Dupes)
		api.GET("/perfects", handler.Perfects)
		api.GET("/owners/:owner/pieces", handler.OwnerPieces)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}
