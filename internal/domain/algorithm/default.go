package algorithm

import "github.com/mpi/mpi/internal/platform/pii"

// DefaultLabel names the built-in configuration seeded into empty
// deployments.
const DefaultLabel = "dibbs-default"

func f64(v float64) *float64 { return &v }

// Default returns the built-in two-pass configuration. Pass one blocks on
// birthdate, identifier and sex, then compares names; pass two blocks on
// ZIP, name initials and sex, then compares address and birthdate. The
// log-odds weights come from m/u probabilities fitted on synthetic
// demographic feeds.
func Default() *Algorithm {
	return &Algorithm{
		Label:                  DefaultLabel,
		Description:            "Two-pass probabilistic matching over demographic fields.",
		IsDefault:              true,
		IncludeMultipleMatches: true,
		Passes: []Pass{
			{
				Label:        "BLOCK_birthdate_identifier_sex_MATCH_first_name_last_name",
				BlockingKeys: []string{"BIRTHDATE", "IDENTIFIER", "SEX"},
				Evaluators: []Evaluator{
					{Feature: "FIRST_NAME", Func: FuncFuzzyMatch},
					{Feature: "LAST_NAME", Func: FuncFuzzyMatch},
				},
				PossibleMatchWindow: [2]float64{0.7, 0.95},
			},
			{
				Label:        "BLOCK_zip_first_name_last_name_sex_MATCH_address_birthdate",
				BlockingKeys: []string{"ZIP", "FIRST_NAME", "LAST_NAME", "SEX"},
				Evaluators: []Evaluator{
					{Feature: "ADDRESS", Func: FuncFuzzyMatch},
					{Feature: "BIRTHDATE", Func: FuncFuzzyMatch},
				},
				PossibleMatchWindow: [2]float64{0.7, 0.95},
			},
		},
		LogOdds: []LogOdds{
			{Feature: "ADDRESS", Value: 8.44},
			{Feature: "BIRTHDATE", Value: 10.13},
			{Feature: "CITY", Value: 2.44},
			{Feature: "EMAIL", Value: 4.02},
			{Feature: "FIRST_NAME", Value: 6.32},
			{Feature: "IDENTIFIER", Value: 9.56},
			{Feature: "LAST_NAME", Value: 6.92},
			{Feature: "SEX", Value: 0.75},
			{Feature: "ZIP", Value: 4.98},
		},
		SkipValues: []pii.SkipRule{
			{Feature: "NAME", Values: []string{"john doe", "jane doe", "baby boy*", "baby girl*"}},
			{Feature: "FIRST_NAME", Values: []string{"anon*", "unknown"}},
			{Feature: "*", Values: []string{"unknown", "not available", "n/a", "unk"}},
		},
		Advanced: Advanced{
			FuzzyMatchThreshold:          f64(0.9),
			FuzzyMatchMeasure:            MeasureJaroWinkler,
			MaxMissingAllowedProportion:  f64(0.5),
			MissingFieldPointsProportion: f64(0.5),
		},
	}
}
