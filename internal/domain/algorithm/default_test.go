package algorithm

import (
	"testing"

	"github.com/mpi/mpi/internal/platform/pii"
)

func TestDefault_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("built-in algorithm fails validation: %v", err)
	}
}

func TestDefault_Shape(t *testing.T) {
	a := Default()

	if a.Label != DefaultLabel || !a.IsDefault {
		t.Errorf("label = %q is_default = %v, want %q/true", a.Label, a.IsDefault, DefaultLabel)
	}
	if len(a.Passes) != 2 {
		t.Fatalf("passes = %d, want 2", len(a.Passes))
	}

	p1 := a.Passes[0]
	wantKeys := []string{"BIRTHDATE", "IDENTIFIER", "SEX"}
	if len(p1.BlockingKeys) != len(wantKeys) {
		t.Fatalf("pass 1 blocking keys = %v, want %v", p1.BlockingKeys, wantKeys)
	}
	for i, k := range wantKeys {
		if p1.BlockingKeys[i] != k {
			t.Errorf("pass 1 key[%d] = %q, want %q", i, p1.BlockingKeys[i], k)
		}
	}
	if p1.MinRMS() != 0.7 || p1.CertainRMS() != 0.95 {
		t.Errorf("pass 1 window = [%v, %v], want [0.7, 0.95]", p1.MinRMS(), p1.CertainRMS())
	}
	for _, e := range p1.Evaluators {
		if e.Func != FuncFuzzyMatch {
			t.Errorf("pass 1 evaluator %s func = %q, want fuzzy", e.Feature, e.Func)
		}
	}

	// The name weights drive the documented grading outcomes; they are part
	// of the seeded contract.
	if got := a.OddsFor(pii.FeatureFirstName); got != 6.32 {
		t.Errorf("FIRST_NAME odds = %v, want 6.32", got)
	}
	if got := a.OddsFor(pii.FeatureLastName); got != 6.92 {
		t.Errorf("LAST_NAME odds = %v, want 6.92", got)
	}
	if got := a.MaxMissingAllowedProportion(); got != 0.5 {
		t.Errorf("max missing = %v, want 0.5", got)
	}
	if got := a.FuzzyMatchMeasure(); got != MeasureJaroWinkler {
		t.Errorf("measure = %q, want JaroWinkler", got)
	}
}

// Anonymous-placeholder first names must be erased by the default skip
// rules; grading of partially anonymized records depends on it.
func TestDefault_SkipsAnonFirstName(t *testing.T) {
	a := Default()
	rec := &pii.Record{
		BirthDate: "2013-11-07",
		Name:      []pii.Name{{Family: "Shepard", Given: []string{"Anon"}}},
	}
	cleaned := pii.Clean(rec, a.SkipValues)
	if got := pii.Values(cleaned, pii.FeatureFirstName); len(got) != 0 {
		t.Errorf("FIRST_NAME after cleaning = %v, want erased", got)
	}
	if got := pii.Values(cleaned, pii.FeatureLastName); len(got) != 1 {
		t.Errorf("LAST_NAME after cleaning = %v, want kept", got)
	}
}
