/*
Package substance provides the shipped substance rate presets.

PURPOSE:
  The engine treats categories, base rates and half-lives as configuration.
  This package is that configuration's default: subtype names, per-unit base
  rates, and half-lives for every built-in category, published both as a
  ready RateTable and as the JSON document the factory loads.

AVAILABLE CATEGORIES:
  alcohol      beer (default), wine, spirits, cocktail       half-life 2 days
  cannabis     flower (default), edible, vape, concentrate   half-life 3 days
  psychedelic  psilocybin (default), lsd, mdma, ketamine     half-life 7 days
  stimulant    generic (default), amphetamine, cocaine       half-life 4 days
  other        custom (default)                              half-life 3 days

CUSTOMIZATION:
  Deployments override the table with a JSON file (config: engine.rates_file)
  parsed by factory.ParseRateTable. Unknown categories and subtypes always
  fall back to defaults, never fail.

SEE ALSO:
  - harm/rates.go: RateTable lookups and fallbacks
  - factory/rates.go: JSON schema
*/
package substance

import (
	"fmt"
	"strings"

	"github.com/warp/harm-index/harm"
)

// Subtypes of the built-in categories.
const (
	Beer     = "beer"
	Wine     = "wine"
	Spirits  = "spirits"
	Cocktail = "cocktail"

	Flower      = "flower"
	Edible      = "edible"
	Vape        = "vape"
	Concentrate = "concentrate"

	Psilocybin = "psilocybin"
	LSD        = "lsd"
	MDMA       = "mdma"
	Ketamine   = "ketamine"

	GenericStimulant = "generic"
	Amphetamine      = "amphetamine"
	Cocaine          = "cocaine"

	Custom = "custom"
)

// Preset is one category of the default table.
type Preset struct {
	Category       harm.Category
	HalfLifeDays   float64
	DefaultSubtype string
	Rates          []SubtypeRate
}

type SubtypeRate struct {
	Subtype string
	Rate    float64
}

// Presets returns the built-in categories in a stable order.
func Presets() []Preset {
	return []Preset{
		{
			Category:       harm.CategoryAlcohol,
			HalfLifeDays:   2,
			DefaultSubtype: Beer,
			Rates: []SubtypeRate{
				{Beer, 3}, {Wine, 3.5}, {Spirits, 4}, {Cocktail, 4.5},
			},
		},
		{
			Category:       harm.CategoryCannabis,
			HalfLifeDays:   3,
			DefaultSubtype: Flower,
			Rates: []SubtypeRate{
				{Flower, 2}, {Edible, 3}, {Vape, 2.5}, {Concentrate, 4},
			},
		},
		{
			Category:       harm.CategoryPsychedelic,
			HalfLifeDays:   7,
			DefaultSubtype: Psilocybin,
			Rates: []SubtypeRate{
				{Psilocybin, 5}, {LSD, 6}, {MDMA, 8}, {Ketamine, 6},
			},
		},
		{
			Category:       harm.CategoryStimulant,
			HalfLifeDays:   4,
			DefaultSubtype: GenericStimulant,
			Rates: []SubtypeRate{
				{GenericStimulant, 6}, {Amphetamine, 8}, {Cocaine, 10},
			},
		},
		{
			Category:       harm.CategoryOther,
			HalfLifeDays:   harm.DefaultHalfLifeDays,
			DefaultSubtype: Custom,
			Rates: []SubtypeRate{
				{Custom, harm.DefaultBaseRate},
			},
		},
	}
}

// DefaultRateTable returns the built-in table.
func DefaultRateTable() *harm.RateTable {
	presets := Presets()
	cats := make([]harm.CategoryRates, 0, len(presets))
	for _, p := range presets {
		subtypes := make(map[string]float64, len(p.Rates))
		for _, r := range p.Rates {
			subtypes[r.Subtype] = r.Rate
		}
		cats = append(cats, harm.CategoryRates{
			Category:       p.Category,
			HalfLifeDays:   p.HalfLifeDays,
			DefaultSubtype: p.DefaultSubtype,
			Subtypes:       subtypes,
		})
	}
	return harm.NewRateTable(cats...)
}

// DefaultRatesJSON returns the built-in table in the factory's JSON schema.
func DefaultRatesJSON() string {
	var b strings.Builder
	fmt.Fprintf(&b, "{\n  \"default_base_rate\": %v,\n  \"default_half_life_days\": %v,\n  \"categories\": [\n",
		harm.DefaultBaseRate, harm.DefaultHalfLifeDays)

	presets := Presets()
	for i, p := range presets {
		fmt.Fprintf(&b, "    {\n      \"category\": %q,\n      \"half_life_days\": %v,\n      \"default_subtype\": %q,\n      \"subtypes\": {",
			p.Category, p.HalfLifeDays, p.DefaultSubtype)
		for j, r := range p.Rates {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%q: %v", r.Subtype, r.Rate)
		}
		b.WriteString("}\n    }")
		if i < len(presets)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("  ]\n}\n")
	return b.String()
}

// Categories lists the built-in categories.
func Categories() []harm.Category {
	presets := Presets()
	out := make([]harm.Category, len(presets))
	for i, p := range presets {
		out[i] = p.Category
	}
	return out
}
