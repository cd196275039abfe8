package api

import (
	"math"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"hexwatch-backend/internal/colorimetry"
	"hexwatch-backend/internal/model"
	"hexwatch-backend/internal/palette"
	"hexwatch-backend/internal/parse"
	"hexwatch-backend/pkg/logger"
)

const defaultNearDistance = 5.0

type pieceDistance struct {
	model.Piece
	Distance float64 `json:"distance"`
}

type hexGroup struct {
	Hex    string        `json:"hex"`
	Pieces []model.Piece `json:"pieces"`
}

type perfectPiece struct {
	model.Piece
	Matches []string `json:"matches"`
}

type rankedPiece struct {
	model.Piece
	Slot    string          `json:"slot,omitempty"`
	Matches []palette.Match `json:"matches"`
}

// Pieces lists ledger records with exactly the given color.
func (h *Handler) Pieces(c *gin.Context) {
	hex, _, ok := hexParam(c, "hex")
	if !ok {
		return
	}
	pieces, err := h.store.FindByColor(c.Request.Context(), hex, c.Query("exclude"))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hex": hex, "pieces": nonNil(pieces)})
}

// PiecesNear lists ledger records within a CIEDE2000 distance of a color,
// closest first.
func (h *Handler) PiecesNear(c *gin.Context) {
	hex, lab, ok := hexParam(c, "hex")
	if !ok {
		return
	}
	maxDistance, ok := floatParam(c, "max_distance", defaultNearDistance)
	if !ok {
		return
	}
	kind := strings.ToUpper(strings.TrimSpace(c.Query("kind")))
	owner := ""
	if raw := c.Query("owner"); raw != "" {
		var err error
		if owner, err = parse.NormalizeOwner(raw); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	all, err := h.store.All(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}

	near := make([]pieceDistance, 0)
	for _, p := range all {
		if (kind != "" && p.ItemKind != kind) || (owner != "" && p.Owner != owner) {
			continue
		}
		other, err := colorimetry.HexToLab(p.HexCode)
		if err != nil {
			continue
		}
		if d := colorimetry.CIEDE2000(lab, other); d <= maxDistance {
			near = append(near, pieceDistance{Piece: p, Distance: d})
		}
	}
	sort.SliceStable(near, func(i, j int) bool { return near[i].Distance < near[j].Distance })

	c.JSON(http.StatusOK, gin.H{"hex": hex, "max_distance": maxDistance, "pieces": near})
}

// Dupes groups ledger records that share a color.
func (h *Handler) Dupes(c *gin.Context) {
	owner := ""
	if raw := c.Query("owner"); raw != "" {
		var err error
		if owner, err = parse.NormalizeOwner(raw); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	pieces, err := h.store.Duplicates(c.Request.Context(), owner)
	if err != nil {
		internalError(c, err)
		return
	}

	groups := make([]hexGroup, 0)
	for _, p := range pieces {
		if n := len(groups); n > 0 && groups[n-1].Hex == p.HexCode {
			groups[n-1].Pieces = append(groups[n-1].Pieces, p)
			continue
		}
		groups = append(groups, hexGroup{Hex: p.HexCode, Pieces: []model.Piece{p}})
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// Perfects lists ledger records whose color is exactly a catalog color.
func (h *Handler) Perfects(c *gin.Context) {
	catalog := h.ranker.Catalog()
	pieces, err := h.store.FindByHexes(c.Request.Context(), catalog.ReferenceHexes())
	if err != nil {
		internalError(c, err)
		return
	}
	out := make([]perfectPiece, len(pieces))
	for i, p := range pieces {
		out[i] = perfectPiece{Piece: p, Matches: catalog.NamesByHex(p.HexCode)}
	}
	c.JSON(http.StatusOK, gin.H{"pieces": out})
}

// OwnerPieces ranks an owner's records by how close each is to a catalog
// color. With history=true the owner's item history is merged in first.
func (h *Handler) OwnerPieces(c *gin.Context) {
	owner, err := parse.NormalizeOwner(c.Param("owner"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	limit, ok := intParam(c, "limit", h.results)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	refreshed := false
	if boolParam(c, "history") && h.history.Enabled() {
		if _, err := h.history.Refresh(ctx, owner); err != nil {
			h.log.Warn(ctx, "item history refresh failed", logger.String("owner", owner), logger.Error(err))
		} else {
			refreshed = true
		}
	}

	pieces, err := h.store.FindByOwner(ctx, owner)
	if err != nil {
		internalError(c, err)
		return
	}

	ranked := make([]rankedPiece, len(pieces))
	for i, p := range pieces {
		ranked[i] = rankedPiece{Piece: p, Matches: []palette.Match{}}
		slot, ok := h.watched[p.ItemKind]
		if !ok {
			continue
		}
		lab, err := colorimetry.HexToLab(p.HexCode)
		if err != nil {
			continue
		}
		matches, err := h.ranker.Closest(lab, slot, colorimetry.CIEDE2000, limit)
		if err != nil {
			continue
		}
		ranked[i].Slot, ranked[i].Matches = slot, matches
	}
	sort.SliceStable(ranked, func(i, j int) bool { return bestScore(ranked[i]) < bestScore(ranked[j]) })

	c.JSON(http.StatusOK, gin.H{"owner": owner, "history": refreshed, "pieces": ranked})
}

func bestScore(p rankedPiece) float64 {
	if len(p.Matches) == 0 {
		return math.Inf(1)
	}
	return p.Matches[0].Score
}

func nonNil(p []model.Piece) []model.Piece {
	if p == nil {
		return []model.Piece{}
	}
	return p
}
