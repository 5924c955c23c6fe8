// Package catalog holds the protected areas offered for sponsorship.
// Areas are defined by operators in YAML and are read-only at request time.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"coralrefuge.org/internal/pricing"
)

//go:embed areas.yaml
var defaultAreas []byte

var (
	ErrUnknownArea    = errors.New("unknown protected area")
	ErrInvalidCatalog = errors.New("invalid catalog")
)

var (
	slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	codePattern = regexp.MustCompile(`^[A-Z]{2,6}$`)
)

// Area is a marine protected area available for sponsorship.
type Area struct {
	Slug                        string  `yaml:"slug" json:"slug"`
	Code                        string  `yaml:"code" json:"code"`
	Name                        string  `yaml:"name" json:"name"`
	Location                    string  `yaml:"location" json:"location"`
	Hectares                    int     `yaml:"hectares" json:"hectares"`
	PricePerHectareCents        int64   `yaml:"price_per_hectare_cents" json:"price_per_hectare_cents"`
	MonthlyPricePerHectareCents int64   `yaml:"monthly_price_per_hectare_cents" json:"monthly_price_per_hectare_cents"`
	Lat                         float64 `yaml:"lat" json:"lat"`
	Lon                         float64 `yaml:"lon" json:"lon"`
}

// Rates returns the pricing rates of the area.
func (a Area) Rates() pricing.Rates {
	return pricing.Rates{
		PerHectare:        a.PricePerHectareCents,
		MonthlyPerHectare: a.MonthlyPricePerHectareCents,
	}
}

// MaxHectares caps a single sponsorship by both the global limit and the area size.
func (a Area) MaxHectares(limit int) int {
	if limit <= 0 {
		limit = pricing.DefaultMaxHectares
	}
	if a.Hectares > 0 && a.Hectares < limit {
		return a.Hectares
	}
	return limit
}

type file struct {
	Areas []Area `yaml:"areas"`
}

// Catalog is an immutable, validated set of areas.
type Catalog struct {
	bySlug map[string]Area
	order  []string
}

// Default parses the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultAreas)
}

// Load reads a YAML catalog from path; an empty path returns the embedded default.
func Load(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML catalog document.
func Parse(raw []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return New(f.Areas)
}

// New validates areas and builds a catalog.
func New(areas []Area) (*Catalog, error) {
	if len(areas) == 0 {
		return nil, fmt.Errorf("%w: no areas defined", ErrInvalidCatalog)
	}
	c := &Catalog{bySlug: make(map[string]Area, len(areas))}
	codes := make(map[string]string, len(areas))
	for _, a := range areas {
		if err := validate(a); err != nil {
			return nil, err
		}
		if _, dup := c.bySlug[a.Slug]; dup {
			return nil, fmt.Errorf("%w: duplicate slug %q", ErrInvalidCatalog, a.Slug)
		}
		if other, dup := codes[a.Code]; dup {
			return nil, fmt.Errorf("%w: code %q used by %q and %q", ErrInvalidCatalog, a.Code, other, a.Slug)
		}
		codes[a.Code] = a.Slug
		c.bySlug[a.Slug] = a
		c.order = append(c.order, a.Slug)
	}
	sort.Strings(c.order)
	return c, nil
}

func validate(a Area) error {
	switch {
	case !slugPattern.MatchString(a.Slug):
		return fmt.Errorf("%w: bad slug %q", ErrInvalidCatalog, a.Slug)
	case !codePattern.MatchString(a.Code):
		return fmt.Errorf("%w: area %q has bad code %q", ErrInvalidCatalog, a.Slug, a.Code)
	case strings.TrimSpace(a.Name) == "":
		return fmt.Errorf("%w: area %q has no name", ErrInvalidCatalog, a.Slug)
	case a.Hectares <= 0:
		return fmt.Errorf("%w: area %q has no hectares", ErrInvalidCatalog, a.Slug)
	case a.PricePerHectareCents <= 0 || a.MonthlyPricePerHectareCents <= 0:
		return fmt.Errorf("%w: area %q has non-positive prices", ErrInvalidCatalog, a.Slug)
	}
	return nil
}

// Get looks up an area by slug.
func (c *Catalog) Get(slug string) (Area, error) {
	a, ok := c.bySlug[strings.ToLower(strings.TrimSpace(slug))]
	if !ok {
		return Area{}, fmt.Errorf("%w: %q", ErrUnknownArea, slug)
	}
	return a, nil
}

// All returns every area ordered by slug.
func (c *Catalog) All() []Area {
	out := make([]Area, 0, len(c.order))
	for _, slug := range c.order {
		out = append(out, c.bySlug[slug])
	}
	return out
}
