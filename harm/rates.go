/*
rates.go - Rate table: base harm rates and decay half-lives

PURPOSE:
  Static configuration mapping (category, subtype) -> base harm rate per unit
  and category -> decay half-life in days. Substance knowledge lives here as
  data, not as per-call-site code.

FALLBACKS:
  - Unknown subtype: the category's default (most common) subtype
  - Unknown category: DefaultBaseRate and DefaultHalfLifeDays (3 days)
  Lookups never fail. Resolve reports the fallback so callers can log it.

EXAMPLE:
  rate := table.BaseRate(harm.CategoryAlcohol, "beer")   // 3
  hl := table.HalfLifeDays(harm.CategoryAlcohol)         // 2

SEE ALSO:
  - substance/rates.go: the shipped default table
  - factory/rates.go: JSON -> RateTable
*/
package harm

import (
	"fmt"
	"strings"
)

const (
	// DefaultHalfLifeDays applies to categories missing from the table.
	DefaultHalfLifeDays = 3.0

	// DefaultBaseRate applies to categories missing from the table.
	DefaultBaseRate = 3.0
)

// =============================================================================
// RATE TABLE
// =============================================================================

// CategoryRates holds the rates of one category.
type CategoryRates struct {
	Category       Category
	HalfLifeDays   float64            // zero means the table default
	DefaultSubtype string             // most common subtype, used for unknown subtypes
	Subtypes       map[string]float64 // subtype -> base rate per unit
}

// RateTable is read-only after construction and safe for concurrent use.
type RateTable struct {
	Categories          map[Category]CategoryRates
	DefaultBaseRate     float64
	DefaultHalfLifeDays float64
}

// NewRateTable builds a table from category entries with the global defaults.
func NewRateTable(categories ...CategoryRates) *RateTable {
	rt := &RateTable{
		Categories:          make(map[Category]CategoryRates, len(categories)),
		DefaultBaseRate:     DefaultBaseRate,
		DefaultHalfLifeDays: DefaultHalfLifeDays,
	}
	for _, c := range categories {
		subtypes := make(map[string]float64, len(c.Subtypes))
		for name, rate := range c.Subtypes {
			subtypes[normalizeSubtype(name)] = rate
		}
		c.Subtypes = subtypes
		c.DefaultSubtype = normalizeSubtype(c.DefaultSubtype)
		rt.Categories[c.Category] = c
	}
	return rt
}

// RateLookup is the outcome of resolving one (category, subtype) pair.
type RateLookup struct {
	Category     Category
	Subtype      string // the subtype whose rate was used
	BaseRate     float64
	HalfLifeDays float64
	Fallback     bool
}

// Resolve looks up a pair. The returned lookup is always usable; the error is
// an *UnknownCategoryError when the category was missing and defaults were used.
func (rt *RateTable) Resolve(category Category, subtype string) (RateLookup, error) {
	subtype = normalizeSubtype(subtype)

	c, ok := rt.Categories[category]
	if !ok {
		return RateLookup{
			Category:     category,
			Subtype:      subtype,
			BaseRate:     rt.defaultBaseRate(),
			HalfLifeDays: rt.defaultHalfLife(),
			Fallback:     true,
		}, &UnknownCategoryError{Category: category, Subtype: subtype}
	}

	lookup := RateLookup{Category: category, HalfLifeDays: c.HalfLifeDays}
	if lookup.HalfLifeDays == 0 {
		lookup.HalfLifeDays = rt.defaultHalfLife()
	}

	if rate, ok := c.Subtypes[subtype]; ok {
		lookup.Subtype = subtype
		lookup.BaseRate = rate
		return lookup, nil
	}

	lookup.Fallback = true
	if rate, ok := c.Subtypes[c.DefaultSubtype]; ok {
		lookup.Subtype = c.DefaultSubtype
		lookup.BaseRate = rate
		return lookup, nil
	}
	lookup.Subtype = subtype
	lookup.BaseRate = rt.defaultBaseRate()
	return lookup, nil
}

// BaseRate returns the harm rate per unit for a pair, recovering from any
// unknown category or subtype.
func (rt *RateTable) BaseRate(category Category, subtype string) float64 {
	lookup, _ := rt.Resolve(category, subtype)
	return lookup.BaseRate
}

// HalfLifeDays returns the decay half-life of a category.
func (rt *RateTable) HalfLifeDays(category Category) float64 {
	if c, ok := rt.Categories[category]; ok && c.HalfLifeDays != 0 {
		return c.HalfLifeDays
	}
	return rt.defaultHalfLife()
}

// Validate checks every rate and half-life is usable.
func (rt *RateTable) Validate() error {
	if rt.DefaultHalfLifeDays < 0 {
		return fmt.Errorf("default half-life %v: %w", rt.DefaultHalfLifeDays, ErrInvalidHalfLife)
	}
	for cat, c := range rt.Categories {
		if c.HalfLifeDays < 0 {
			return fmt.Errorf("category %s half-life %v: %w", cat, c.HalfLifeDays, ErrInvalidHalfLife)
		}
		for name, rate := range c.Subtypes {
			if rate < 0 {
				return fmt.Errorf("category %s subtype %s: negative base rate %v", cat, name, rate)
			}
		}
		if c.DefaultSubtype != "" {
			if _, ok := c.Subtypes[c.DefaultSubtype]; !ok {
				return fmt.Errorf("category %s: default subtype %q has no rate", cat, c.DefaultSubtype)
			}
		}
	}
	return nil
}

// Known reports whether the category has an entry.
func (rt *RateTable) Known(category Category) bool {
	_, ok := rt.Categories[category]
	return ok
}

func (rt *RateTable) defaultBaseRate() float64 {
	if rt.DefaultBaseRate > 0 {
		return rt.DefaultBaseRate
	}
	return DefaultBaseRate
}

func (rt *RateTable) defaultHalfLife() float64 {
	if rt.DefaultHalfLifeDays > 0 {
		return rt.DefaultHalfLifeDays
	}
	return DefaultHalfLifeDays
}

func normalizeSubtype(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
