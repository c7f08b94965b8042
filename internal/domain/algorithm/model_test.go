package algorithm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/mpi/mpi/internal/platform/pii"
)

func TestOddsFor(t *testing.T) {
	a := &Algorithm{LogOdds: []LogOdds{
		{Feature: "LAST_NAME", Value: 6.92},
		{Feature: "IDENTIFIER", Value: 9.56},
		{Feature: "IDENTIFIER:SS", Value: 12.0},
	}}

	tests := []struct {
		feature pii.Feature
		want    float64
	}{
		{pii.FeatureLastName, 6.92},
		{pii.FeatureIdentifier, 9.56},
		{pii.Feature("IDENTIFIER:SS"), 12.0},
		{pii.Feature("IDENTIFIER:MR"), 9.56}, // falls back to the base entry
		{pii.FeatureFirstName, 0},
	}
	for _, tt := range tests {
		if got := a.OddsFor(tt.feature); got != tt.want {
			t.Errorf("OddsFor(%s) = %v, want %v", tt.feature, got, tt.want)
		}
	}
}

func TestFuzzyMatchThreshold_Precedence(t *testing.T) {
	a := &Algorithm{}
	e := Evaluator{Feature: "LAST_NAME", Func: FuncFuzzyMatch}

	if got := a.FuzzyMatchThreshold(e); got != DefaultFuzzyMatchThreshold {
		t.Errorf("default threshold = %v, want %v", got, DefaultFuzzyMatchThreshold)
	}

	a.Advanced.FuzzyMatchThreshold = f64(0.8)
	if got := a.FuzzyMatchThreshold(e); got != 0.8 {
		t.Errorf("advanced threshold = %v, want 0.8", got)
	}

	e.FuzzyMatchThreshold = f64(0.95)
	if got := a.FuzzyMatchThreshold(e); got != 0.95 {
		t.Errorf("evaluator threshold = %v, want 0.95", got)
	}
}

func TestAdvancedDefaults(t *testing.T) {
	a := &Algorithm{}
	if got := a.FuzzyMatchMeasure(); got != MeasureJaroWinkler {
		t.Errorf("measure = %q, want %q", got, MeasureJaroWinkler)
	}
	if got := a.MaxMissingAllowedProportion(); got != 0.5 {
		t.Errorf("max missing = %v, want 0.5", got)
	}
	if got := a.MissingFieldPointsProportion(); got != 0.5 {
		t.Errorf("missing points = %v, want 0.5", got)
	}

	// An explicit zero is a setting, not an omission.
	a.Advanced.MaxMissingAllowedProportion = f64(0)
	if got := a.MaxMissingAllowedProportion(); got != 0 {
		t.Errorf("explicit zero max missing = %v, want 0", got)
	}
}

// The JSON field names are the upload contract; renaming any of them breaks
// stored configurations.
func TestAlgorithmJSONShape(t *testing.T) {
	doc := `{
		"label": "custom",
		"description": "d",
		"is_default": true,
		"include_multiple_matches": true,
		"passes": [{
			"label": "p1",
			"blocking_keys": ["BIRTHDATE", "SEX"],
			"evaluators": [
				{"feature": "LAST_NAME", "func": "COMPARE_PROBABILISTIC_FUZZY_MATCH", "fuzzy_match_threshold": 0.92}
			],
			"possible_match_window": [0.7, 0.95]
		}],
		"log_odds": [{"feature": "LAST_NAME", "value": 6.92}],
		"skip_values": [{"feature": "*", "values": ["unknown"]}],
		"advanced": {
			"fuzzy_match_threshold": 0.9,
			"fuzzy_match_measure": "JaroWinkler",
			"max_missing_allowed_proportion": 0.5,
			"missing_field_points_proportion": 0.5
		}
	}`

	var a Algorithm
	if err := json.Unmarshal([]byte(doc), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if a.Label != "custom" || !a.IsDefault || !a.IncludeMultipleMatches {
		t.Errorf("top-level fields not decoded: %+v", a)
	}
	if len(a.Passes) != 1 || a.Passes[0].MinRMS() != 0.7 || a.Passes[0].CertainRMS() != 0.95 {
		t.Errorf("passes not decoded: %+v", a.Passes)
	}
	ev := a.Passes[0].Evaluators[0]
	if ev.FuzzyMatchThreshold == nil || *ev.FuzzyMatchThreshold != 0.92 {
		t.Errorf("evaluator threshold = %v, want 0.92", ev.FuzzyMatchThreshold)
	}
	if err := a.Validate(); err != nil {
		t.Errorf("decoded document invalid: %v", err)
	}

	out, err := json.Marshal(&a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{
		`"label"`, `"is_default"`, `"include_multiple_matches"`, `"passes"`,
		`"blocking_keys"`, `"evaluators"`, `"possible_match_window"`,
		`"log_odds"`, `"skip_values"`, `"advanced"`, `"fuzzy_match_threshold"`,
		`"fuzzy_match_measure"`, `"max_missing_allowed_proportion"`,
		`"missing_field_points_proportion"`,
	} {
		if !strings.Contains(string(out), key) {
			t.Errorf("marshaled document lacks %s", key)
		}
	}
}
