package locations

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Location is one known stop/terminus the parser can resolve endpoint
// names against. Aliases carry alternate spellings and non-Latin names.
type Location struct {
	ID         string   `yaml:"id" json:"id"`
	Name       string   `yaml:"name" json:"name"`
	Translated string   `yaml:"translated,omitempty" json:"translated,omitempty"`
	Aliases    []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

type Catalog struct {
	Locations []Location `yaml:"locations" json:"locations"`

	threshold float64
	index     map[string]Location
}

// Match is the result of resolving a free-text endpoint name.
type Match struct {
	Location Location
	Exact    bool
	Score    float64
}

func Load(path string, fuzzyThreshold float64) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(fuzzyThreshold), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return nil, err
	}
	if len(cat.Locations) == 0 {
		return nil, fmt.Errorf("location catalog empty")
	}
	cat.build(fuzzyThreshold)
	return &cat, nil
}

func (c *Catalog) build(fuzzyThreshold float64) {
	if fuzzyThreshold <= 0 || fuzzyThreshold > 1 {
		fuzzyThreshold = 0.88
	}
	c.threshold = fuzzyThreshold
	c.index = make(map[string]Location)
	for _, loc := range c.Locations {
		for _, name := range append([]string{loc.Name, loc.Translated}, loc.Aliases...) {
			if key := Fold(name); key != "" {
				c.index[key] = loc
			}
		}
	}
}

// Resolve maps a raw endpoint name to a known location. Exact (folded)
// hits win; otherwise the closest fuzzy candidate above the threshold.
func (c *Catalog) Resolve(name string) (Match, bool) {
	key := Fold(name)
	if key == "" {
		return Match{}, false
	}

	if loc, ok := c.index[key]; ok {
		return Match{Location: loc, Exact: true, Score: 1.0}, true
	}

	bestScore := 0.0
	var bestLoc Location
	for indexed, loc := range c.index {
		if score := jaroWinkler(indexed, key); score > bestScore {
			bestScore = score
			bestLoc = loc
		}
	}
	if bestScore >= c.threshold {
		return Match{Location: bestLoc, Exact: false, Score: bestScore}, true
	}
	return Match{}, false
}

// Fold lowercases, trims, strips diacritics and collapses inner
// whitespace so OCR variants of the same name index identically.
func Fold(name string) string {
	trimmed := strings.TrimSpace(strings.ToLower(name))
	if trimmed == "" {
		return ""
	}
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFKC)
	folded, _, err := transform.String(t, trimmed)
	if err != nil {
		folded = trimmed
	}
	return strings.Join(strings.Fields(folded), " ")
}

func jaroWinkler(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	if s1 == "" || s2 == "" {
		return 0
	}

	matchDistance := max(len(s1), len(s2))/2 - 1
	if matchDistance < 0 {
		matchDistance = 0
	}

	s1Matches := make([]bool, len(s1))
	s2Matches := make([]bool, len(s2))

	matches := 0
	transpositions := 0

	for i := range s1 {
		start := max(0, i-matchDistance)
		end := min(i+matchDistance+1, len(s2))
		for j := start; j < end; j++ {
			if s2Matches[j] || s1[i] != s2[j] {
				continue
			}
			s1Matches[i] = true
			s2Matches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0
	}

	k := 0
	for i := range s1 {
		if !s1Matches[i] {
			continue
		}
		for ; !s2Matches[k]; k++ {
		}
		if s1[i] != s2[k] {
			transpositions++
		}
		k++
	}

	transpositions /= 2

	jaro := (float64(matches)/float64(len(s1)) + float64(matches)/float64(len(s2)) + float64(matches-transpositions)/float64(matches)) / 3

	prefix := 0
	for i := 0; i < min(4, min(len(s1), len(s2))); i++ {
		if s1[i] == s2[i] {
			prefix++
		} else {
			break
		}
	}

	return jaro + float64(prefix)*0.1*(1-jaro)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// DefaultCatalog covers the major Tamil Nadu corridors so the pipeline
// works out of the box without a mounted catalog file.
func DefaultCatalog(fuzzyThreshold float64) *Catalog {
	cat := &Catalog{Locations: []Location{
		{ID: "loc-chennai", Name: "Chennai", Translated: "சென்னை", Aliases: []string{"Madras", "Chennai CMBT"}},
		{ID: "loc-vellore", Name: "Vellore", Translated: "வேலூர்", Aliases: []string{"Velur"}},
		{ID: "loc-bangalore", Name: "Bangalore", Translated: "பெங்களூரு", Aliases: []string{"Bengaluru"}},
		{ID: "loc-madurai", Name: "Madurai", Translated: "மதுரை"},
		{ID: "loc-coimbatore", Name: "Coimbatore", Translated: "கோயம்புத்தூர்", Aliases: []string{"Kovai"}},
		{ID: "loc-salem", Name: "Salem", Translated: "சேலம்"},
		{ID: "loc-trichy", Name: "Trichy", Translated: "திருச்சி", Aliases: []string{"Tiruchirappalli", "Tiruchirapalli"}},
		{ID: "loc-kanchipuram", Name: "Kanchipuram", Translated: "காஞ்சிபுரம்", Aliases: []string{"Kancheepuram"}},
		{ID: "loc-tirupati", Name: "Tirupati", Aliases: []string{"Tirupathi"}},
		{ID: "loc-pondicherry", Name: "Pondicherry", Aliases: []string{"Puducherry"}},
	}}
	cat.build(fuzzyThreshold)
	return cat
}
