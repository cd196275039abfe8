// Package palette holds the reference dye catalog and ranks sample colors
// against it.
package palette

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"hexwatch-backend/internal/colorimetry"
)

// SharedCategory is the partition merged into every category lookup.
const SharedCategory = "OTHER"

// ErrUnknownCategory is returned when a category has no partition.
var ErrUnknownCategory = errors.New("unknown catalog category")

// Entry is a named reference color with its precomputed Lab value.
type Entry struct {
	Name string
	Hex  string
	Lab  colorimetry.Lab
}

// Catalog is an immutable index of reference colors partitioned by category
// (armor slot). It is safe for concurrent use.
type Catalog struct {
	partitions map[string][]Entry
	byName     map[string]Entry
	hexes      map[string][]string // hex -> entry names
}

// NewCatalog builds a catalog from category -> name -> hex. A name listed in
// both a slot and the shared partition resolves to the shared entry.
func NewCatalog(raw map[string]map[string]string) (*Catalog, error) {
	c := &Catalog{
		partitions: make(map[string][]Entry, len(raw)),
		byName:     make(map[string]Entry),
		hexes:      make(map[string][]string),
	}
	for category, items := range raw {
		category = strings.ToUpper(strings.TrimSpace(category))
		entries := make([]Entry, 0, len(items))
		for name, hex := range items {
			rgb, err := colorimetry.ParseHex(hex)
			if err != nil {
				return nil, fmt.Errorf("catalog %s/%s: %w", category, name, err)
			}
			entries = append(entries, Entry{Name: name, Hex: rgb.Hex(), Lab: colorimetry.ToLab(rgb)})
		}
		c.partitions[category] = append(c.partitions[category], entries...)
	}

	shared := make(map[string]bool, len(c.partitions[SharedCategory]))
	for _, e := range c.partitions[SharedCategory] {
		shared[e.Name] = true
		c.byName[e.Name] = e
	}
	for category, entries := range c.partitions {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		if category == SharedCategory {
			continue
		}
		// Shadowed names are dropped so a lookup never ranks a name twice.
		kept := entries[:0]
		for _, e := range entries {
			if shared[e.Name] {
				continue
			}
			kept = append(kept, e)
			c.byName[e.Name] = e
		}
		c.partitions[category] = kept
	}
	for name, e := range c.byName {
		c.hexes[e.Hex] = append(c.hexes[e.Hex], name)
	}
	return c, nil
}

// LoadCatalog reads a YAML document of the form
//
//	HELMET:
//	  SOME_ITEM: "A1B2C3"
//	OTHER:
//	  CRYSTAL_1F0030: "1F0030"
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("catalog %s is empty", path)
	}
	return NewCatalog(raw)
}

// Candidates returns the category partition followed by the shared one.
// The returned slice is a copy.
func (c *Catalog) Candidates(category string) ([]Entry, error) {
	category = strings.ToUpper(strings.TrimSpace(category))
	own, ok := c.partitions[category]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	out := make([]Entry, 0, len(own)+len(c.partitions[SharedCategory]))
	out = append(out, own...)
	if category != SharedCategory {
		out = append(out, c.partitions[SharedCategory]...)
	}
	return out, nil
}

// Categories lists the slot partitions, excluding the shared one.
func (c *Catalog) Categories() []string {
	out := make([]string, 0, len(c.partitions))
	for k := range c.partitions {
		if k != SharedCategory {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Lookup finds a reference entry by item name.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	e, ok := c.byName[name]
	return e, ok
}

// IsReferenceHex reports whether hex is exactly one of the catalog colors.
func (c *Catalog) IsReferenceHex(hex string) bool {
	_, ok := c.hexes[strings.ToUpper(hex)]
	return ok
}

// NamesByHex lists the entries whose color is exactly hex, sorted.
func (c *Catalog) NamesByHex(hex string) []string {
	names := append([]string(nil), c.hexes[strings.ToUpper(hex)]...)
	sort.Strings(names)
	return names
}

// ReferenceHexes returns every distinct catalog hex, sorted.
func (c *Catalog) ReferenceHexes() []string {
	out := make([]string, 0, len(c.hexes))
	for h := range c.hexes {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Missing returns the slots that have no partition of their own, sorted.
func (c *Catalog) Missing(slots []string) []string {
	have := make(map[string]bool)
	for _, k := range c.Categories() {
		have[k] = true
	}
	var missing []string
	for _, s := range slots {
		if !have[strings.ToUpper(s)] {
			missing = append(missing, strings.ToUpper(s))
		}
	}
	sort.Strings(missing)
	return missing
}

// Len is the total number of entries.
func (c *Catalog) Len() int {
	n := 0
	for _, p := range c.partitions {
		n += len(p)
	}
	return n
}
