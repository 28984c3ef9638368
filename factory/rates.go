/*
Package factory provides JSON to Go engine configuration conversion.

PURPOSE:
  Converts JSON rate tables and risk weights into harm.RateTable and
  harm.RiskWeights. Substance knowledge is data: a deployment can retune base
  rates or half-lives, or add a category, without a code change.

JSON SCHEMA (rates):
  {
    "default_base_rate": 3,
    "default_half_life_days": 3,
    "categories": [
      {
        "category": "alcohol",
        "half_life_days": 2,
        "default_subtype": "beer",
        "subtypes": {"beer": 3, "wine": 3.5}
      }
    ]
  }

JSON SCHEMA (risk weights):
  {
    "youth_age": 21, "youth_weight": 0.3,
    "senior_age": 65, "senior_weight": 0.2,
    "health": {"hepatic": 0.3},
    "psychiatric": {"anxiety": 0.15},
    "cap": 2.5
  }

USAGE:
  f := factory.NewRateFactory()
  table, err := f.ParseRateTable(substance.DefaultRatesJSON())
  agg := harm.NewAggregator(table)

SEE ALSO:
  - harm/rates.go: RateTable
  - substance/rates.go: the shipped default document
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/warp/harm-index/harm"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RateTableJSON is the JSON representation of a rate table.
type RateTableJSON struct {
	DefaultBaseRate     float64        `json:"default_base_rate,omitempty"`
	DefaultHalfLifeDays float64        `json:"default_half_life_days,omitempty"`
	Categories          []CategoryJSON `json:"categories"`
}

// CategoryJSON is one category entry.
type CategoryJSON struct {
	Category       string             `json:"category"`
	HalfLifeDays   float64            `json:"half_life_days,omitempty"` // 0 = table default
	DefaultSubtype string             `json:"default_subtype,omitempty"`
	Subtypes       map[string]float64 `json:"subtypes"`
}

// RiskWeightsJSON is the JSON representation of risk weights. Omitted fields
// keep the shipped defaults.
type RiskWeightsJSON struct {
	YouthAge     *int               `json:"youth_age,omitempty"`
	YouthWeight  *float64           `json:"youth_weight,omitempty"`
	SeniorAge    *int               `json:"senior_age,omitempty"`
	SeniorWeight *float64           `json:"senior_weight,omitempty"`
	Sex          map[string]float64 `json:"sex,omitempty"`
	Health       map[string]float64 `json:"health,omitempty"`
	Psychiatric  map[string]float64 `json:"psychiatric,omitempty"`
	Cap          *float64           `json:"cap,omitempty"`
}

// =============================================================================
// RATE FACTORY
// =============================================================================

// RateFactory converts JSON configuration to engine structs.
type RateFactory struct{}

// NewRateFactory creates a new rate factory.
func NewRateFactory() *RateFactory {
	return &RateFactory{}
}

// ParseRateTable parses a JSON string into a validated RateTable.
func (f *RateFactory) ParseRateTable(jsonStr string) (*harm.RateTable, error) {
	var rj RateTableJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return nil, fmt.Errorf("failed to parse rate table JSON: %w", err)
	}
	return f.RateTableFromJSON(rj)
}

// LoadRateTable reads and parses a rate table file.
func (f *RateFactory) LoadRateTable(path string) (*harm.RateTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate table %s: %w", path, err)
	}
	return f.ParseRateTable(string(data))
}

// RateTableFromJSON converts RateTableJSON to a RateTable.
func (f *RateFactory) RateTableFromJSON(rj RateTableJSON) (*harm.RateTable, error) {
	if len(rj.Categories) == 0 {
		return nil, fmt.Errorf("rate table has no categories")
	}

	seen := make(map[string]bool, len(rj.Categories))
	cats := make([]harm.CategoryRates, 0, len(rj.Categories))
	for _, cj := range rj.Categories {
		if cj.Category == "" {
			return nil, fmt.Errorf("category entry missing name")
		}
		if seen[cj.Category] {
			return nil, fmt.Errorf("duplicate category %q", cj.Category)
		}
		seen[cj.Category] = true
		if len(cj.Subtypes) == 0 {
			return nil, fmt.Errorf("category %s has no subtypes", cj.Category)
		}
		cats = append(cats, harm.CategoryRates{
			Category:       harm.Category(cj.Category),
			HalfLifeDays:   cj.HalfLifeDays,
			DefaultSubtype: defaultSubtype(cj),
			Subtypes:       cj.Subtypes,
		})
	}

	table := harm.NewRateTable(cats...)
	if rj.DefaultBaseRate > 0 {
		table.DefaultBaseRate = rj.DefaultBaseRate
	}
	if rj.DefaultHalfLifeDays != 0 {
		table.DefaultHalfLifeDays = rj.DefaultHalfLifeDays
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// ToJSON converts a RateTable back to its JSON representation.
func (f *RateFactory) ToJSON(table *harm.RateTable) RateTableJSON {
	rj := RateTableJSON{
		DefaultBaseRate:     table.DefaultBaseRate,
		DefaultHalfLifeDays: table.DefaultHalfLifeDays,
	}
	for _, c := range table.Categories {
		subtypes := make(map[string]float64, len(c.Subtypes))
		for k, v := range c.Subtypes {
			subtypes[k] = v
		}
		rj.Categories = append(rj.Categories, CategoryJSON{
			Category:       string(c.Category),
			HalfLifeDays:   c.HalfLifeDays,
			DefaultSubtype: c.DefaultSubtype,
			Subtypes:       subtypes,
		})
	}
	return rj
}

// ParseRiskWeights parses JSON risk weights over the shipped defaults.
func (f *RateFactory) ParseRiskWeights(jsonStr string) (harm.RiskWeights, error) {
	var wj RiskWeightsJSON
	if err := json.Unmarshal([]byte(jsonStr), &wj); err != nil {
		return harm.RiskWeights{}, fmt.Errorf("failed to parse risk weights JSON: %w", err)
	}
	return f.RiskWeightsFromJSON(wj)
}

// LoadRiskWeights reads and parses a risk weights file.
func (f *RateFactory) LoadRiskWeights(path string) (harm.RiskWeights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return harm.RiskWeights{}, fmt.Errorf("read risk weights %s: %w", path, err)
	}
	return f.ParseRiskWeights(string(data))
}

// RiskWeightsFromJSON overlays wj on harm.DefaultRiskWeights.
func (f *RateFactory) RiskWeightsFromJSON(wj RiskWeightsJSON) (harm.RiskWeights, error) {
	w := harm.DefaultRiskWeights()
	if wj.YouthAge != nil {
		w.YouthAge = *wj.YouthAge
	}
	if wj.YouthWeight != nil {
		w.YouthWeight = *wj.YouthWeight
	}
	if wj.SeniorAge != nil {
		w.SeniorAge = *wj.SeniorAge
	}
	if wj.SeniorWeight != nil {
		w.SeniorWeight = *wj.SeniorWeight
	}
	if wj.Sex != nil {
		w.Sex = make(map[harm.Sex]float64, len(wj.Sex))
		for k, v := range wj.Sex {
			w.Sex[harm.Sex(k)] = v
		}
	}
	if wj.Health != nil {
		w.Health = wj.Health
	}
	if wj.Psychiatric != nil {
		w.Psychiatric = wj.Psychiatric
	}
	if wj.Cap != nil {
		w.Cap = *wj.Cap
	}

	if w.Cap != 0 && w.Cap < 1 {
		return harm.RiskWeights{}, fmt.Errorf("risk cap %v below 1.0", w.Cap)
	}
	for _, m := range []map[string]float64{w.Health, w.Psychiatric} {
		for flag, v := range m {
			if v < 0 {
				return harm.RiskWeights{}, fmt.Errorf("risk flag %s: negative weight %v", flag, v)
			}
		}
	}
	return w, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

// defaultSubtype picks the declared default, or the single subtype when only
// one is listed.
func defaultSubtype(cj CategoryJSON) string {
	if cj.DefaultSubtype != "" {
		return cj.DefaultSubtype
	}
	if len(cj.Subtypes) == 1 {
		for name := range cj.Subtypes {
			return name
		}
	}
	return ""
}
