package palette

import (
	"sort"
	"strings"

	"hexwatch-backend/internal/colorimetry"
)

// Family groups thematically linked rare variants. Only the best-scoring
// member of a family is reported in a ranking.
type Family struct {
	Name   string
	Prefix string
}

// DefaultFamilies are the crystal and fairy recolors.
var DefaultFamilies = []Family{
	{Name: "crystal", Prefix: "CRYSTAL_"},
	{Name: "fairy", Prefix: "FAIRY_"},
}

// Match is one ranked slot: every name sharing the score, joined with ", ".
type Match struct {
	Names string  `json:"names"`
	Score float64 `json:"score"`
}

type scored struct {
	name  string
	score float64
}

// Rank scores sample against entries and returns at most maxResults slots in
// ascending score order. maxResults <= 0 returns every slot.
func Rank(sample colorimetry.Lab, entries []Entry, metric colorimetry.Metric, maxResults int, families ...Family) []Match {
	pairs := make([]scored, len(entries))
	for i, e := range entries {
		pairs[i] = scored{name: e.Name, score: metric(sample, e.Lab)}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })

	seen := make([]bool, len(families))
	var out []Match
	for i := 0; i < len(pairs); {
		j := i
		var names []string
		for ; j < len(pairs) && (j == i || pairs[j].score == pairs[i].score); j++ {
			if keepName(pairs[j].name, families, seen) {
				names = append(names, pairs[j].name)
			}
		}
		if len(names) > 0 {
			out = append(out, Match{Names: strings.Join(names, ", "), Score: pairs[i].score})
			if maxResults > 0 && len(out) == maxResults {
				break
			}
		}
		i = j
	}
	return out
}

// keepName applies the family rule and records the first member seen.
func keepName(name string, families []Family, seen []bool) bool {
	for k, f := range families {
		if !strings.HasPrefix(name, f.Prefix) {
			continue
		}
		if seen[k] {
			return false
		}
		seen[k] = true
		return true
	}
	return true
}

// FamiliesFrom turns a name -> prefix map into families sorted by name.
func FamiliesFrom(prefixes map[string]string) []Family {
	out := make([]Family, 0, len(prefixes))
	for name, prefix := range prefixes {
		out = append(out, Family{Name: name, Prefix: prefix})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Ranker ranks samples against a fixed catalog.
type Ranker struct {
	catalog  *Catalog
	families []Family
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithFamilies replaces the default variant families.
func WithFamilies(f ...Family) Option {
	return func(r *Ranker) { r.families = f }
}

// NewRanker creates a ranker over catalog.
func NewRanker(catalog *Catalog, opts ...Option) *Ranker {
	r := &Ranker{catalog: catalog, families: DefaultFamilies}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Catalog returns the underlying catalog.
func (r *Ranker) Catalog() *Catalog { return r.catalog }

// Closest ranks sample against the category partition merged with the
// shared partition.
func (r *Ranker) Closest(sample colorimetry.Lab, category string, metric colorimetry.Metric, maxResults int) ([]Match, error) {
	entries, err := r.catalog.Candidates(category)
	if err != nil {
		return nil, err
	}
	return Rank(sample, entries, metric, maxResults, r.families...), nil
}
