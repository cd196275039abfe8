// Package colorimetry converts dye colors to CIE L*a*b* and measures the
// distance between two Lab coordinates.
package colorimetry

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrInvalidHex is returned when a string is not a 6-digit hex color.
var ErrInvalidHex = errors.New("invalid hex color")

// D65 reference white.
const (
	whiteX = 95.047
	whiteY = 100.0
	whiteZ = 108.883
)

// RGB is an 8-bit sRGB triplet.
type RGB struct {
	R, G, B uint8
}

// Lab is a CIE L*a*b* coordinate.
type Lab struct {
	L, A, B float64
}

// FromInt unpacks a 0xRRGGBB integer, the form dye colors take in item data.
func FromInt(v int32) RGB {
	u := uint32(v)
	return RGB{R: uint8(u >> 16), G: uint8(u >> 8), B: uint8(u)}
}

// ParseHex accepts "A1B2C3", "#a1b2c3" or "0xA1B2C3".
func ParseHex(s string) (RGB, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(raw, "#")
	if len(raw) > 2 && (raw[:2] == "0x" || raw[:2] == "0X") {
		raw = raw[2:]
	}
	if len(raw) != 6 {
		return RGB{}, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	c, err := colorful.Hex("#" + raw)
	if err != nil {
		return RGB{}, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	r, g, b := c.RGB255()
	return RGB{R: r, G: g, B: b}, nil
}

// NormalizeHex returns the canonical 6-digit upper-case form of s.
func NormalizeHex(s string) (string, error) {
	c, err := ParseHex(s)
	if err != nil {
		return "", err
	}
	return c.Hex(), nil
}

// Hex returns the color as six upper-case hex digits without a prefix.
func (c RGB) Hex() string {
	return fmt.Sprintf("%02X%02X%02X", c.R, c.G, c.B)
}

// Int packs the color back into 0xRRGGBB.
func (c RGB) Int() int {
	return int(c.R)<<16 | int(c.G)<<8 | int(c.B)
}

// ToLab converts an sRGB color to Lab under D65.
func ToLab(c RGB) Lab {
	r := linearize(float64(c.R)/255) * 100
	g := linearize(float64(c.G)/255) * 100
	b := linearize(float64(c.B)/255) * 100

	x := r*0.4124 + g*0.3576 + b*0.1805
	y := r*0.2126 + g*0.7152 + b*0.0722
	z := r*0.0193 + g*0.1192 + b*0.9505

	fx := labCurve(x / whiteX)
	fy := labCurve(y / whiteY)
	fz := labCurve(z / whiteZ)

	return Lab{
		L: 116*fy - 16,
		A: 500 * (fx - fy),
		B: 200 * (fy - fz),
	}
}

// HexToLab parses and converts in one step.
func HexToLab(s string) (Lab, error) {
	c, err := ParseHex(s)
	if err != nil {
		return Lab{}, err
	}
	return ToLab(c), nil
}

func linearize(v float64) float64 {
	if v > 0.04045 {
		return math.Pow((v+0.055)/1.055, 2.4)
	}
	return v / 12.92
}

func labCurve(t float64) float64 {
	if t > 0.008856 {
		return math.Pow(t, 1.0/3)
	}
	return 7.787*t + 16.0/116
}
