package itemdata

import "strings"

// Variant labels how an item's dye relates to its stock color.
type Variant string

const (
	VariantDefault  Variant = "DEFAULT"
	VariantBleached Variant = "BLEACHED"
	VariantCrystal  Variant = "CRYSTAL"
	VariantFairy    Variant = "FAIRY"
	VariantOGFairy  Variant = "OG FAIRY"
	VariantExotic   Variant = "EXOTIC"
)

// Stock leather color, also what a bleached piece shows.
const bleachedHex = "A06540"

var crystalHexes = hexSet(
	"1F0030", "46085E", "54146E", "5D1C78", "63237D", "6A2C82", "7E4196", "8E51A6",
	"9C64B3", "A875BD", "B88BC9", "C6A3D4", "D9C1E3", "E5D1ED", "EFE1F5", "FCF3FF",
)

var fairyHexes = hexSet("660033", "99004C", "CC0066", "FF007F", "FF3399", "FF66B2", "FF99CC", "FFCCE5")

var ogFairyHexes = hexSet(
	"660066", "990099", "CC00CC", "FF00FF", "FF33FF", "FF66FF", "FF99FF", "FFCCFF",
	"E5CCFF", "CC99FF", "B266FF", "9933FF", "7F00FF", "6600CC", "4C0099", "330066",
)

// ogFairyIDs lists the legacy leather ids (298 helmet .. 301 boots) on which a
// current fairy hex was only ever given out by the original fairy set.
var ogFairyIDs = map[string][]int{
	"660033": {299, 300, 301},
	"99004C": {300, 301},
	"CC0066": {301},
	"FFCCE5": {298, 299, 300},
	"FF99CC": {298, 299},
	"FF66B2": {298},
}

// freelyDyed are kinds whose color is chosen by the player, so any hex is
// their default.
var freelyDyed = map[string]bool{
	"LEATHER_HELMET": true, "LEATHER_CHESTPLATE": true, "LEATHER_LEGGINGS": true, "LEATHER_BOOTS": true,
	"CRYSTAL_HELMET": true, "CRYSTAL_CHESTPLATE": true, "CRYSTAL_LEGGINGS": true, "CRYSTAL_BOOTS": true,
	"FAIRY_HELMET": true, "FAIRY_CHESTPLATE": true, "FAIRY_LEGGINGS": true, "FAIRY_BOOTS": true,
	"GREAT_SPOOK_HELMET": true, "GREAT_SPOOK_CHESTPLATE": true, "GREAT_SPOOK_LEGGINGS": true, "GREAT_SPOOK_BOOTS": true,
	"GHOST_BOOTS": true,
	"VELVET_TOP_HAT": true, "CASHMERE_JACKET": true, "SATIN_TROUSERS": true, "OXFORD_SHOES": true,
}

// Stock colors some items switch to on their own.
var altDefaults = map[string]string{
	"RANCHERS_BOOTS":    "CC5500",
	"REAPER_CHESTPLATE": "FF0000",
	"REAPER_LEGGINGS":   "FF0000",
	"REAPER_BOOTS":      "FF0000",
}

// StockHex resolves the undyed color of an item kind.
type StockHex func(kind string) (hex string, ok bool)

// Classify labels it. Items dyed with a dye item, freely dyed kinds and kinds
// stock doesn't know are DEFAULT.
func Classify(it Item, stock StockHex) Variant {
	if it.DyeItem != "" {
		return VariantDefault
	}
	kind := strings.TrimPrefix(it.Kind, "STARRED_")
	if freelyDyed[kind] {
		return VariantDefault
	}
	def, ok := stock(kind)
	if !ok {
		return VariantDefault
	}

	hex := bleachedHex
	if it.HasColor {
		hex = it.Color.Hex()
	}

	switch {
	case strings.EqualFold(hex, def):
		return VariantDefault
	case hex == bleachedHex:
		return VariantBleached
	case altDefaults[kind] == hex:
		return VariantDefault
	case crystalHexes[hex]:
		return VariantCrystal
	case fairyHexes[hex]:
		for _, id := range ogFairyIDs[hex] {
			if id == it.MinecraftID {
				return VariantOGFairy
			}
		}
		return VariantFairy
	case ogFairyHexes[hex]:
		return VariantOGFairy
	}
	return VariantExotic
}

func hexSet(hexes ...string) map[string]bool {
	m := make(map[string]bool, len(hexes))
	for _, h := range hexes {
		m[h] = true
	}
	return m
}
