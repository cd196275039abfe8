package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hexwatch-backend/internal/colorimetry"
	"hexwatch-backend/internal/palette"
)

// Compare scores two colors under both metrics.
func (h *Handler) Compare(c *gin.Context) {
	hex1, lab1, ok := hexParam(c, "hex1")
	if !ok {
		return
	}
	hex2, lab2, ok := hexParam(c, "hex2")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"hex1":                     hex1,
		"hex2":                     hex2,
		colorimetry.MetricCIEDE2000: colorimetry.CIEDE2000(lab1, lab2),
		colorimetry.MetricCIE76:     colorimetry.Euclidean(lab1, lab2),
	})
}

// Closest ranks the catalog entries of a slot against a color.
func (h *Handler) Closest(c *gin.Context) {
	hex, lab, ok := hexParam(c, "hex")
	if !ok {
		return
	}
	slot := strings.ToUpper(strings.TrimSpace(c.Query("slot")))
	if slot == "" {
		badRequest(c, "slot is required")
		return
	}
	metricName := strings.ToLower(c.DefaultQuery("metric", colorimetry.MetricCIEDE2000))
	metric, err := colorimetry.MetricByName(metricName)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	limit, ok := intParam(c, "limit", h.results)
	if !ok {
		return
	}

	matches, err := h.ranker.Closest(lab, slot, metric, limit)
	if errors.Is(err, palette.ErrUnknownCategory) {
		badRequest(c, err.Error())
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"hex":     hex,
		"slot":    slot,
		"metric":  metricName,
		"matches": matches,
	})
}
