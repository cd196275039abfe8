package notification

import (
	"math"

	"hexwatch-backend/internal/itemdata"
	"hexwatch-backend/internal/model"
	"hexwatch-backend/internal/palette"
)

// Alert describes a newly listed piece worth announcing.
type Alert struct {
	AuctionUUID string
	Auctioneer  string
	ItemName    string
	BIN         bool
	StartingBid float64

	Piece model.Piece
	Slot  string

	// Closest is ranked with CIEDE2000, ClosestCIE76 with plain Lab distance.
	Closest      []palette.Match
	ClosestCIE76 []palette.Match

	Variant    itemdata.Variant
	Reforge    string
	Stars      int
	Duplicates []model.Piece

	// ReferenceOf names the catalog entries whose color is exactly the
	// piece's hex, in any slot.
	ReferenceOf []string
}

// BestScore is the CIEDE2000 distance of the top match, +Inf without one.
func (a Alert) BestScore() float64 {
	if len(a.Closest) == 0 {
		return math.Inf(1)
	}
	return a.Closest[0].Score
}
