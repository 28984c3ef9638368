package factory_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/harm-index/factory"
	"github.com/warp/harm-index/harm"
	"github.com/warp/harm-index/substance"
)

func TestParseRateTable_DefaultJSONMatchesPresets(t *testing.T) {
	// GIVEN: The shipped JSON document
	// WHEN: Parsed by the factory
	// THEN: Every lookup matches the Go preset table

	table, err := factory.NewRateFactory().ParseRateTable(substance.DefaultRatesJSON())
	require.NoError(t, err)
	presets := substance.DefaultRateTable()

	for _, p := range substance.Presets() {
		assert.Equal(t, presets.HalfLifeDays(p.Category), table.HalfLifeDays(p.Category), p.Category)
		for _, r := range p.Rates {
			assert.Equal(t, r.Rate, table.BaseRate(p.Category, r.Subtype), "%s/%s", p.Category, r.Subtype)
		}
		assert.Equal(t, presets.BaseRate(p.Category, "unknown"), table.BaseRate(p.Category, "unknown"))
	}
	assert.Equal(t, harm.DefaultHalfLifeDays, table.DefaultHalfLifeDays)
}

func TestParseRateTable_SingleSubtypeBecomesDefault(t *testing.T) {
	table, err := factory.NewRateFactory().ParseRateTable(`{
		"categories": [{"category": "kratom", "half_life_days": 1, "subtypes": {"powder": 2}}]
	}`)
	require.NoError(t, err)

	assert.Equal(t, 2.0, table.BaseRate("kratom", "capsule"))
	assert.Equal(t, 1.0, table.HalfLifeDays("kratom"))
}

func TestParseRateTable_Rejects(t *testing.T) {
	f := factory.NewRateFactory()

	cases := map[string]string{
		"malformed":          `{`,
		"no categories":      `{"categories": []}`,
		"missing name":       `{"categories": [{"subtypes": {"a": 1}}]}`,
		"duplicate":          `{"categories": [{"category": "x", "subtypes": {"a": 1}}, {"category": "x", "subtypes": {"a": 1}}]}`,
		"no subtypes":        `{"categories": [{"category": "x", "subtypes": {}}]}`,
		"negative half-life": `{"categories": [{"category": "x", "half_life_days": -1, "subtypes": {"a": 1}}]}`,
		"negative rate":      `{"categories": [{"category": "x", "subtypes": {"a": -1}}]}`,
		"bad default":        `{"categories": [{"category": "x", "default_subtype": "b", "subtypes": {"a": 1}}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.ParseRateTable(doc)
			assert.Error(t, err)
		})
	}
}

func TestParseRateTable_NegativeHalfLifeIsInvalidHalfLife(t *testing.T) {
	_, err := factory.NewRateFactory().ParseRateTable(
		`{"categories": [{"category": "x", "half_life_days": -2, "subtypes": {"a": 1}}]}`)
	assert.ErrorIs(t, err, harm.ErrInvalidHalfLife)
}

func TestLoadRateTable_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.json")
	require.NoError(t, os.WriteFile(path, []byte(substance.DefaultRatesJSON()), 0o644))

	table, err := factory.NewRateFactory().LoadRateTable(path)
	require.NoError(t, err)
	assert.Equal(t, 3.0, table.BaseRate(harm.CategoryAlcohol, substance.Beer))

	_, err = factory.NewRateFactory().LoadRateTable(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestToJSON_RoundTripsThroughFactory(t *testing.T) {
	f := factory.NewRateFactory()
	rj := f.ToJSON(substance.DefaultRateTable())

	table, err := f.RateTableFromJSON(rj)
	require.NoError(t, err)
	assert.Equal(t, 4.0, table.BaseRate(harm.CategoryAlcohol, substance.Spirits))
	assert.Equal(t, 7.0, table.HalfLifeDays(harm.CategoryPsychedelic))
}

func TestParseRiskWeights_OverlaysDefaults(t *testing.T) {
	// GIVEN: A document overriding only the cap and the health table
	// THEN: Age weights keep their shipped values

	w, err := factory.NewRateFactory().ParseRiskWeights(`{"cap": 2, "health": {"hepatic": 0.9}}`)
	require.NoError(t, err)

	defaults := harm.DefaultRiskWeights()
	assert.Equal(t, 2.0, w.Cap)
	assert.Equal(t, defaults.YouthAge, w.YouthAge)
	assert.Equal(t, defaults.Psychiatric, w.Psychiatric)
	assert.Equal(t, map[string]float64{"hepatic": 0.9}, w.Health)

	age := 30
	m := w.Multiplier(&harm.UserRiskProfile{Age: &age, HealthConditions: []string{"hepatic"}})
	assert.InDelta(t, 1.9, m, 1e-9)
}

func TestParseRiskWeights_Rejects(t *testing.T) {
	f := factory.NewRateFactory()

	_, err := f.ParseRiskWeights(`{"cap": 0.5}`)
	assert.Error(t, err)

	_, err = f.ParseRiskWeights(`{"psychiatric": {"anxiety": -1}}`)
	assert.Error(t, err)

	_, err = f.ParseRiskWeights(`not json`)
	assert.Error(t, err)
}

func TestLoadRiskWeights_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"cap": 2.0, "psychiatric": {"anxiety": 0.5}}`), 0o644))

	w, err := factory.NewRateFactory().LoadRiskWeights(path)
	require.NoError(t, err)
	assert.Equal(t, 2.0, w.Cap)
	assert.Equal(t, 0.5, w.Psychiatric["anxiety"])
	assert.Equal(t, 0.3, w.YouthWeight, "unset keys keep defaults")

	_, err = factory.NewRateFactory().LoadRiskWeights(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
