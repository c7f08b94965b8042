package algorithm

import (
	"errors"
	"fmt"

	"github.com/mpi/mpi/internal/platform/hl7v2"
	"github.com/mpi/mpi/internal/platform/pii"
)

// ErrInvalidAlgorithm flags a configuration that fails eager validation.
// Nothing downstream ever sees an invalid algorithm.
var ErrInvalidAlgorithm = errors.New("invalid algorithm")

var knownFuncs = map[string]bool{
	FuncExactMatch: true,
	FuncFuzzyMatch: true,
}

var knownMeasures = map[string]bool{
	MeasureJaroWinkler:        true,
	MeasureLevenshtein:        true,
	MeasureDamerauLevenshtein: true,
}

// parseFeature wraps pii.ParseFeature and pins identifier type qualifiers to
// HL7 table 0203.
func parseFeature(s string) (pii.Feature, error) {
	f, err := pii.ParseFeature(s)
	if err != nil {
		return "", err
	}
	if t := f.IdentifierType(); t != "" && !hl7v2.IsIdentifierType(t) {
		return "", fmt.Errorf("unknown identifier type %q, not in HL7 table 0203", t)
	}
	return f, nil
}

// Validate checks the whole document and fails closed on the first
// violation. It runs once at upload (and again when loading seeded
// configurations), so evaluation code can assume every reachable algorithm
// is well formed.
func (a *Algorithm) Validate() error {
	if a.Label == "" {
		return invalid("label must not be empty")
	}
	if len(a.Passes) == 0 {
		return invalid("at least one pass is required")
	}

	for _, lo := range a.LogOdds {
		if _, err := parseFeature(lo.Feature); err != nil {
			return invalid("log_odds: %v", err)
		}
		if lo.Value < 0 {
			return invalid("log_odds: %s must be non-negative, got %v", lo.Feature, lo.Value)
		}
	}

	for _, rule := range a.SkipValues {
		if rule.Feature != "*" {
			if _, err := parseFeature(string(rule.Feature)); err != nil {
				return invalid("skip_values: %v", err)
			}
		}
		if len(rule.Values) == 0 {
			return invalid("skip_values: %s has no patterns", rule.Feature)
		}
	}

	if err := a.validateAdvanced(); err != nil {
		return err
	}

	for i := range a.Passes {
		if err := a.validatePass(i); err != nil {
			return err
		}
	}
	return nil
}

func (a *Algorithm) validateAdvanced() error {
	adv := a.Advanced
	if adv.FuzzyMatchMeasure != "" && !knownMeasures[adv.FuzzyMatchMeasure] {
		return invalid("advanced: unknown fuzzy_match_measure %q", adv.FuzzyMatchMeasure)
	}
	for name, v := range map[string]*float64{
		"fuzzy_match_threshold":           adv.FuzzyMatchThreshold,
		"max_missing_allowed_proportion":  adv.MaxMissingAllowedProportion,
		"missing_field_points_proportion": adv.MissingFieldPointsProportion,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return invalid("advanced: %s must be within [0, 1], got %v", name, *v)
		}
	}
	return nil
}

func (a *Algorithm) validatePass(i int) error {
	p := a.Passes[i]
	if p.Label == "" {
		return invalid("passes[%d]: label must not be empty", i)
	}
	if len(p.BlockingKeys) == 0 {
		return invalid("passes[%d]: at least one blocking key is required", i)
	}
	for _, k := range p.BlockingKeys {
		if _, err := pii.ParseBlockingKey(k); err != nil {
			return invalid("passes[%d]: %v", i, err)
		}
	}
	if len(p.Evaluators) == 0 {
		return invalid("passes[%d]: at least one evaluator is required", i)
	}
	for j, e := range p.Evaluators {
		f, err := parseFeature(e.Feature)
		if err != nil {
			return invalid("passes[%d].evaluators[%d]: %v", i, j, err)
		}
		if f == pii.FeatureName {
			return invalid("passes[%d].evaluators[%d]: NAME is not comparable", i, j)
		}
		if !knownFuncs[e.Func] {
			return invalid("passes[%d].evaluators[%d]: unknown func %q", i, j, e.Func)
		}
		if a.OddsFor(f) == 0 {
			return invalid("passes[%d].evaluators[%d]: %s has no log-odds weight", i, j, e.Feature)
		}
		if t := e.FuzzyMatchThreshold; t != nil && (*t < 0 || *t > 1) {
			return invalid("passes[%d].evaluators[%d]: fuzzy_match_threshold must be within [0, 1], got %v", i, j, *t)
		}
	}
	min, certain := p.MinRMS(), p.CertainRMS()
	if min < 0 || min > certain || certain > 1 {
		return invalid("passes[%d]: possible_match_window must satisfy 0 <= min <= certain <= 1, got [%v, %v]", i, min, certain)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidAlgorithm, fmt.Sprintf(format, args...))
}
