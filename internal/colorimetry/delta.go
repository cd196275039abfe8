package colorimetry

import (
	"fmt"
	"math"
	"strings"
)

// Metric scores two Lab colors; smaller is more similar and 0 is identical.
type Metric func(a, b Lab) float64

// Metric names accepted by MetricByName.
const (
	MetricCIEDE2000 = "ciede2000"
	MetricCIE76     = "cie76"
)

// pow25to7 is 25^7.
const pow25to7 = 6103525625

// MetricByName resolves a metric from its configuration name.
func MetricByName(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", MetricCIEDE2000, "de2000", "new":
		return CIEDE2000, nil
	case MetricCIE76, "euclidean", "old":
		return Euclidean, nil
	default:
		return nil, fmt.Errorf("unknown metric %q", name)
	}
}

// Euclidean is the CIE76 difference: straight-line distance in Lab.
func Euclidean(a, b Lab) float64 {
	return math.Sqrt(math.Pow(a.L-b.L, 2) + math.Pow(a.A-b.A, 2) + math.Pow(a.B-b.B, 2))
}

// CIEDE2000 computes the CIEDE2000 color difference with kL = kC = kH = 1.
func CIEDE2000(lab1, lab2 Lab) float64 {
	l1, a1, b1 := lab1.L, lab1.A, lab1.B
	l2, a2, b2 := lab2.L, lab2.A, lab2.B

	c1 := math.Sqrt(a1*a1 + b1*b1)
	c2 := math.Sqrt(a2*a2 + b2*b2)
	cBar := (c1 + c2) / 2

	cBar7 := math.Pow(cBar, 7)
	g := 0.5 * (1 - math.Sqrt(cBar7/(cBar7+pow25to7)))

	ap1 := (1 + g) * a1
	ap2 := (1 + g) * a2
	cp1 := math.Sqrt(ap1*ap1 + b1*b1)
	cp2 := math.Sqrt(ap2*ap2 + b2*b2)
	h1 := hueAngle(b1, ap1)
	h2 := hueAngle(b2, ap2)

	dL := l2 - l1
	dC := cp2 - cp1

	chromaProduct := cp1 * cp2

	var dh float64
	if chromaProduct != 0 {
		diff := h2 - h1
		switch {
		case math.Abs(diff) <= 180:
			dh = diff
		case diff > 180:
			dh = diff - 360
		case diff < -180:
			dh = diff + 360
		}
	}
	dH := 2 * math.Sqrt(chromaProduct) * math.Sin(radians(dh)/2)

	lBar := (l1 + l2) / 2
	cpBar := (cp1 + cp2) / 2

	hBar := h1 + h2
	if chromaProduct != 0 {
		switch {
		case math.Abs(h1-h2) <= 180:
			hBar = (h1 + h2) / 2
		case h1+h2 < 360:
			hBar = (h1 + h2 + 360) / 2
		default:
			hBar = (h1 + h2 - 360) / 2
		}
	}

	t := 1 -
		0.17*math.Cos(radians(hBar-30)) +
		0.24*math.Cos(radians(2*hBar)) +
		0.32*math.Cos(radians(3*hBar+6)) -
		0.20*math.Cos(radians(4*hBar-63))

	dTheta := 30 * math.Exp(-math.Pow((hBar-275)/25, 2))

	cpBar7 := math.Pow(cpBar, 7)
	rc := 2 * math.Sqrt(cpBar7/(cpBar7+pow25to7))

	lBarShift := math.Pow(lBar-50, 2)
	sl := 1 + 0.015*lBarShift/math.Sqrt(20+lBarShift)
	sc := 1 + 0.045*cpBar
	sh := 1 + 0.015*cpBar*t
	rt := -rc * math.Sin(2*radians(dTheta))

	const kL, kC, kH = 1, 1, 1

	fL := dL / (kL * sl)
	fC := dC / (kC * sc)
	fH := dH / (kH * sh)

	return math.Sqrt(fL*fL + fC*fC + fH*fH + rt*fC*fH)
}

// hueAngle returns atan2(b, a) in degrees normalised to [0, 360).
func hueAngle(b, a float64) float64 {
	h := math.Atan2(b, a) * 180 / math.Pi
	if h < 0 {
		h += 360
	}
	return h
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
