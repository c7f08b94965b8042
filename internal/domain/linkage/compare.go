package linkage

import (
	"github.com/mpi/mpi/internal/domain/algorithm"
	"github.com/mpi/mpi/internal/platform/pii"
)

// FeatureScore is one evaluator's contribution to a single patient
// comparison. Possible always carries the feature's full weight; Missing
// marks contributions where either side had nothing to compare, which count
// toward the missingness proportion while still earning partial points.
type FeatureScore struct {
	Points   float64
	Possible float64
	Missing  bool
}

// compareFeature runs one evaluator over the incoming (cleaned) record and a
// stored candidate. Identifier triple-equality and address best-line
// matching fall out of the feature iteration: identifiers iterate as
// "type|authority|value" strings and addresses as one joined street line per
// entry, and both comparators take the best pairing across the two lists.
func compareFeature(a *algorithm.Algorithm, e algorithm.Evaluator, incoming, candidate *pii.Record) FeatureScore {
	f := pii.Feature(e.Feature)
	weight := a.OddsFor(f)

	left := pii.Values(incoming, f)
	right := pii.Values(candidate, f)
	if len(left) == 0 || len(right) == 0 {
		return FeatureScore{
			Points:   weight * a.MissingFieldPointsProportion(),
			Possible: weight,
			Missing:  true,
		}
	}

	switch e.Func {
	case algorithm.FuncExactMatch:
		return exactMatch(weight, left, right)
	case algorithm.FuncFuzzyMatch:
		return fuzzyMatch(weight, left, right, similarityFor(a.FuzzyMatchMeasure()), a.FuzzyMatchThreshold(e))
	}
	// Unknown funcs are rejected at validation; an unreachable evaluator
	// contributes nothing rather than panicking.
	return FeatureScore{Possible: weight}
}

func exactMatch(weight float64, left, right []string) FeatureScore {
	for _, l := range left {
		for _, r := range right {
			if l == r {
				return FeatureScore{Points: weight, Possible: weight}
			}
		}
	}
	return FeatureScore{Possible: weight}
}

func fuzzyMatch(weight float64, left, right []string, sim measureFunc, threshold float64) FeatureScore {
	best := 0.0
	for _, l := range left {
		for _, r := range right {
			if s := sim(l, r); s > best {
				best = s
			}
		}
	}
	if best >= threshold {
		return FeatureScore{Points: weight * best, Possible: weight}
	}
	return FeatureScore{Possible: weight}
}
