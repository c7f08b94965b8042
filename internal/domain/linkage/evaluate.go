package linkage

import (
	"sort"

	"github.com/mpi/mpi/internal/domain/algorithm"
	"github.com/mpi/mpi/internal/domain/mpi"
	"github.com/mpi/mpi/internal/platform/pii"
)

// Match grades, ordered certainly-not < possible < certain.
const (
	GradeCertain      = "certain"
	GradePossible     = "possible"
	GradeCertainlyNot = "certainly-not"
)

func gradeRank(g string) int {
	switch g {
	case GradeCertain:
		return 2
	case GradePossible:
		return 1
	}
	return 0
}

// PassResult is one person cluster's outcome for one pass.
type PassResult struct {
	PersonID  int64
	RMS       float64
	Grade     string
	PassLabel string
}

// blockingPairs extracts the pass's blocking tuples from the cleaned record.
// ok is false when any required key yields no value, in which case the pass
// must emit zero candidates.
func blockingPairs(rec *pii.Record, keys []string) (pairs []mpi.BlockingPair, ok bool) {
	for _, name := range keys {
		key, err := pii.ParseBlockingKey(name)
		if err != nil {
			return nil, false
		}
		vals := pii.ExtractBlockingValues(rec, key)
		if len(vals) == 0 {
			return nil, false
		}
		for _, v := range vals {
			pairs = append(pairs, mpi.BlockingPair{Key: key, Value: v})
		}
	}
	return pairs, true
}

// evaluatePass scores the candidate set of one pass. Candidates without a
// person assignment cannot form a cluster and are ignored. Within a cluster
// each patient is scored over the pass's evaluators; patients whose missing
// contributions exceed the allowed proportion are skipped, and the cluster
// score is the median of the surviving point sums. Results come back sorted
// by person id.
func evaluatePass(a *algorithm.Algorithm, pass algorithm.Pass, cleaned *pii.Record, candidates []*mpi.Patient) []PassResult {
	sumPossible := 0.0
	for _, e := range pass.Evaluators {
		sumPossible += a.OddsFor(pii.Feature(e.Feature))
	}
	if sumPossible == 0 {
		return nil
	}

	clusters := make(map[int64][]*mpi.Patient)
	for _, p := range candidates {
		if p.PersonID == nil {
			continue
		}
		clusters[*p.PersonID] = append(clusters[*p.PersonID], p)
	}
	personIDs := make([]int64, 0, len(clusters))
	for id := range clusters {
		personIDs = append(personIDs, id)
	}
	sort.Slice(personIDs, func(i, j int) bool { return personIDs[i] < personIDs[j] })

	maxMissing := a.MaxMissingAllowedProportion()
	var results []PassResult
	for _, personID := range personIDs {
		type patientPoints struct {
			points    float64
			patientID int64
		}
		var survivors []patientPoints
		for _, p := range clusters[personID] {
			var points, missingPossible float64
			for _, e := range pass.Evaluators {
				fs := compareFeature(a, e, cleaned, &p.Record)
				points += fs.Points
				if fs.Missing {
					missingPossible += fs.Possible
				}
			}
			if missingPossible/sumPossible > maxMissing {
				continue
			}
			survivors = append(survivors, patientPoints{points: points, patientID: p.ID})
		}
		if len(survivors) == 0 {
			continue
		}

		sort.Slice(survivors, func(i, j int) bool {
			if survivors[i].points != survivors[j].points {
				return survivors[i].points < survivors[j].points
			}
			return survivors[i].patientID < survivors[j].patientID
		})
		var median float64
		n := len(survivors)
		if n%2 == 1 {
			median = survivors[n/2].points
		} else {
			median = (survivors[n/2-1].points + survivors[n/2].points) / 2
		}

		rms := median / sumPossible
		results = append(results, PassResult{
			PersonID:  personID,
			RMS:       rms,
			Grade:     gradeRMS(rms, pass),
			PassLabel: pass.Label,
		})
	}
	return results
}

func gradeRMS(rms float64, pass algorithm.Pass) string {
	switch {
	case rms >= pass.CertainRMS():
		return GradeCertain
	case rms >= pass.MinRMS():
		return GradePossible
	}
	return GradeCertainlyNot
}
