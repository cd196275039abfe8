package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"hexwatch-backend/config"
	"hexwatch-backend/internal/colorimetry"
	"hexwatch-backend/internal/history"
	"hexwatch-backend/internal/palette"
	"hexwatch-backend/internal/store"
	"hexwatch-backend/pkg/logger"
)

const maxLimit = 50

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	ranker  *palette.Ranker
	webpush *webpush.Options
	history *history.Resolver
	watched map[string]string
	results int
	log     logger.Logger
}

// Deps are the collaborators of a Handler. Only Store and Ranker are needed
// for the ledger and color routes.
type Deps struct {
	Store   store.Store
	Ranker  *palette.Ranker
	WebPush *webpush.Options
	History *history.Resolver
	Log     logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(cfg *config.Config, deps Deps) *Handler {
	return &Handler{
		store:   deps.Store,
		ranker:  deps.Ranker,
		webpush: deps.WebPush,
		history: deps.History,
		watched: cfg.Scraper.WatchedItems,
		results: cfg.Catalog.Results,
		log:     logger.OrNop(deps.Log),
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// hexParam reads a required hex query parameter in canonical form.
func hexParam(c *gin.Context, name string) (string, colorimetry.Lab, bool) {
	raw := c.Query(name)
	if raw == "" {
		badRequest(c, name+" is required")
		return "", colorimetry.Lab{}, false
	}
	rgb, err := colorimetry.ParseHex(raw)
	if err != nil {
		badRequest(c, "invalid "+name+": "+raw)
		return "", colorimetry.Lab{}, false
	}
	return rgb.Hex(), colorimetry.ToLab(rgb), true
}

// intParam reads an optional positive integer, capped at maxLimit.
func intParam(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return min(v, maxLimit), true
}

func floatParam(c *gin.Context, name string, def float64) (float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		badRequest(c, name+" must be a non-negative number")
		return 0, false
	}
	return v, true
}

func boolParam(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(c.Query(name)))
	return v
}

// Healthz reports liveness and database reachability.
func (h *Handler) Healthz(c *gin.Context) {
	if h.store != nil && h.store.DB() != nil {
		sqlDB, err := h.store.DB().DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
