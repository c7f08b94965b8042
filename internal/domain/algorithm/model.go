// Package algorithm manages linkage algorithm configurations: the JSON
// document model, eager validation, Postgres persistence, and the in-process
// snapshot cache the linkage driver reads from.
//
// Field names in the JSON shape are stable and case-sensitive; configurations
// are immutable once stored. Changing one means uploading a new label.
package algorithm

import (
	"github.com/mpi/mpi/internal/platform/pii"
)

// Comparison function names admitted in evaluator configuration. The set is
// closed; unknown names are rejected at validation time, never dispatched.
const (
	FuncExactMatch = "COMPARE_PROBABILISTIC_EXACT_MATCH"
	FuncFuzzyMatch = "COMPARE_PROBABILISTIC_FUZZY_MATCH"
)

// Similarity measure names admitted in advanced configuration.
const (
	MeasureJaroWinkler        = "JaroWinkler"
	MeasureLevenshtein        = "Levenshtein"
	MeasureDamerauLevenshtein = "DamerauLevenshtein"
)

// Defaults applied when advanced settings are omitted.
const (
	DefaultFuzzyMatchThreshold          = 0.9
	DefaultFuzzyMatchMeasure            = MeasureJaroWinkler
	DefaultMaxMissingAllowedProportion  = 0.5
	DefaultMissingFieldPointsProportion = 0.5
)

// LogOdds assigns a feature its predictive weight. Weights are non-negative;
// a zero weight disables the feature for evaluation.
type LogOdds struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// Evaluator names one feature comparison within a pass. FuzzyMatchThreshold
// overrides the algorithm-wide threshold for this feature only.
type Evaluator struct {
	Feature             string   `json:"feature"`
	Func                string   `json:"func"`
	FuzzyMatchThreshold *float64 `json:"fuzzy_match_threshold,omitempty"`
}

// Pass is one blocking-plus-evaluation round. PossibleMatchWindow holds
// [min_rms, certain_rms]: scores at or above certain_rms grade certain,
// at or above min_rms grade possible, and below grade certainly-not.
type Pass struct {
	Label               string      `json:"label"`
	BlockingKeys        []string    `json:"blocking_keys"`
	Evaluators          []Evaluator `json:"evaluators"`
	PossibleMatchWindow [2]float64  `json:"possible_match_window"`
}

// Advanced carries the tuning knobs shared by every pass. Nil fields take
// the package defaults, so an explicit zero stays distinguishable from an
// omitted key.
type Advanced struct {
	FuzzyMatchThreshold          *float64 `json:"fuzzy_match_threshold,omitempty"`
	FuzzyMatchMeasure            string   `json:"fuzzy_match_measure,omitempty"`
	MaxMissingAllowedProportion  *float64 `json:"max_missing_allowed_proportion,omitempty"`
	MissingFieldPointsProportion *float64 `json:"missing_field_points_proportion,omitempty"`
}

// Algorithm is one uploaded configuration document.
type Algorithm struct {
	Label                  string         `json:"label"`
	Description            string         `json:"description,omitempty"`
	IsDefault              bool           `json:"is_default"`
	IncludeMultipleMatches bool           `json:"include_multiple_matches"`
	Passes                 []Pass         `json:"passes"`
	LogOdds                []LogOdds      `json:"log_odds"`
	SkipValues             []pii.SkipRule `json:"skip_values,omitempty"`
	Advanced               Advanced       `json:"advanced"`
}

// OddsFor resolves the log-odds weight for a feature. Typed identifier
// features ("IDENTIFIER:MR") fall back to their base feature's entry when no
// exact entry exists. Absent features weigh zero.
func (a *Algorithm) OddsFor(f pii.Feature) float64 {
	base := ""
	if b := f.Base(); b != f {
		base = string(b)
	}
	var fallback float64
	for _, lo := range a.LogOdds {
		if lo.Feature == string(f) {
			return lo.Value
		}
		if base != "" && lo.Feature == base {
			fallback = lo.Value
		}
	}
	return fallback
}

// FuzzyMatchThreshold returns the effective threshold for an evaluator:
// per-evaluator override, then the algorithm-wide setting, then the default.
func (a *Algorithm) FuzzyMatchThreshold(e Evaluator) float64 {
	if e.FuzzyMatchThreshold != nil {
		return *e.FuzzyMatchThreshold
	}
	if a.Advanced.FuzzyMatchThreshold != nil {
		return *a.Advanced.FuzzyMatchThreshold
	}
	return DefaultFuzzyMatchThreshold
}

func (a *Algorithm) FuzzyMatchMeasure() string {
	if a.Advanced.FuzzyMatchMeasure != "" {
		return a.Advanced.FuzzyMatchMeasure
	}
	return DefaultFuzzyMatchMeasure
}

func (a *Algorithm) MaxMissingAllowedProportion() float64 {
	if a.Advanced.MaxMissingAllowedProportion != nil {
		return *a.Advanced.MaxMissingAllowedProportion
	}
	return DefaultMaxMissingAllowedProportion
}

func (a *Algorithm) MissingFieldPointsProportion() float64 {
	if a.Advanced.MissingFieldPointsProportion != nil {
		return *a.Advanced.MissingFieldPointsProportion
	}
	return DefaultMissingFieldPointsProportion
}

// MinRMS and CertainRMS name the window bounds.
func (p *Pass) MinRMS() float64     { return p.PossibleMatchWindow[0] }
func (p *Pass) CertainRMS() float64 { return p.PossibleMatchWindow[1] }
