package notification

import (
	"math"
	"strconv"
	"strings"

	"hexwatch-backend/internal/palette"
	"hexwatch-backend/internal/parse"
)

var suffixes = []string{"", "K", "M", "B", "T"}

// HumanFormat renders n with three significant digits and a magnitude
// suffix, e.g. 15000000 -> "15M", 1234 -> "1.23K".
func HumanFormat(n float64) string {
	n, _ = strconv.ParseFloat(strconv.FormatFloat(n, 'g', 3, 64), 64)
	mag := 0
	for math.Abs(n) >= 1000 && mag < len(suffixes)-1 {
		mag++
		n /= 1000
	}
	s := strconv.FormatFloat(n, 'f', 6, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + suffixes[mag]
}

// roundScore rounds to two decimals and drops trailing zeros.
func roundScore(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// matchLines renders one "Name, Name: score" line per slot.
func matchLines(matches []palette.Match) string {
	if len(matches) == 0 {
		return "none"
	}
	lines := make([]string, len(matches))
	for i, m := range matches {
		names := strings.Split(m.Names, ", ")
		for j, n := range names {
			names[j] = parse.DisplayName(n)
		}
		lines[i] = strings.Join(names, ", ") + ": " + roundScore(m.Score)
	}
	return strings.Join(lines, "\n")
}
