package parse

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	formatRe = regexp.MustCompile(`§[0-9a-fk-orA-FK-OR]`)
	starsRe  = regexp.MustCompile(`[✪➊➋➌➍➎]+`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// ItemName is an auction title with formatting removed.
type ItemName struct {
	Clean string
	Stars int
}

// ParseItemName strips color codes and upgrade stars from an auction title.
func ParseItemName(raw string) ItemName {
	s := formatRe.ReplaceAllString(raw, "")

	stars := 0
	for _, m := range starsRe.FindAllString(s, -1) {
		for _, r := range m {
			switch r {
			case '✪':
				stars++
			default:
				// ➊ is the first master star, stacked on top of five regular ones.
				stars += int(r-'➊') + 1
			}
		}
	}
	s = starsRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	return ItemName{Clean: s, Stars: stars}
}

// DisplayName turns an item kind (or a ", " joined list of them) into its
// in-game spelling: VELVET_TOP_HAT -> Velvet Top Hat. Words that contain a
// digit, such as a hex suffix, are upper-cased instead.
func DisplayName(kind string) string {
	words := strings.Fields(strings.ReplaceAll(kind, "_", " "))
	caser := cases.Title(language.English)
	for i, w := range words {
		if strings.IndexFunc(w, unicode.IsDigit) >= 0 {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = caser.String(strings.ToLower(w))
	}
	return strings.Join(words, " ")
}

// Matcher maps auction titles back to watched item kinds.
type Matcher struct {
	names map[string]string // display name -> kind
}

// NewMatcher builds a matcher over kinds.
func NewMatcher(kinds []string) *Matcher {
	m := &Matcher{names: make(map[string]string, len(kinds))}
	for _, k := range kinds {
		m.names[DisplayName(k)] = strings.ToUpper(k)
	}
	return m
}

// Match reports the watched kind whose display name appears in title.
func (m *Matcher) Match(title string) (string, bool) {
	return m.MatchClean(ParseItemName(title).Clean)
}

// MatchClean is Match for a title already passed through ParseItemName.
func (m *Matcher) MatchClean(clean string) (string, bool) {
	for name, kind := range m.names {
		if strings.Contains(clean, name) {
			return kind, true
		}
	}
	return "", false
}
