package linkage

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/mpi/mpi/internal/domain/algorithm"
	"github.com/mpi/mpi/internal/domain/mpi"
	"github.com/mpi/mpi/internal/platform/pii"
)

// ErrEmptyRecord reports that nothing usable survived normalization and
// skip-value cleaning; the record is not persisted.
var ErrEmptyRecord = errors.New("linkage: empty record")

// Request is one linkage call. The external identifiers are caller hints
// persisted on the patient row; they never influence matching.
type Request struct {
	Record               pii.Record `json:"record"`
	Algorithm            string     `json:"algorithm,omitempty"`
	ExternalPersonID     *string    `json:"external_person_id,omitempty"`
	ExternalPersonSource *string    `json:"external_person_source,omitempty"`
}

// MatchResult is one reported person cluster.
type MatchResult struct {
	PersonReferenceID uuid.UUID `json:"person_reference_id"`
	RMS               float64   `json:"rms"`
	Grade             string    `json:"grade"`
	PassLabel         string    `json:"pass_label"`
}

// Response reports the persisted patient and the linkage outcome.
// PersonReferenceID is null only on a possible outcome: the patient is
// stored unattached and a reviewer (or a later certain match) resolves it.
type Response struct {
	PatientReferenceID uuid.UUID     `json:"patient_reference_id"`
	PersonReferenceID  *uuid.UUID    `json:"person_reference_id"`
	MatchGrade         string        `json:"match_grade"`
	Results            []MatchResult `json:"results"`
}

// Metrics receives linkage observability events. The default discards them;
// the server installs a telemetry provider.
type Metrics interface {
	LinkDecision(algorithm, grade string)
	BlockingCandidates(pass string, count int)
}

type nopMetrics struct{}

func (nopMetrics) LinkDecision(string, string)    {}
func (nopMetrics) BlockingCandidates(string, int) {}

type Service struct {
	repo       mpi.Repository
	algorithms *algorithm.Service
	metrics    Metrics
}

func NewService(repo mpi.Repository, algorithms *algorithm.Service) *Service {
	return &Service{repo: repo, algorithms: algorithms, metrics: nopMetrics{}}
}

// SetMetrics installs a metrics sink. Not safe to call once Link traffic
// is flowing.
func (s *Service) SetMetrics(m Metrics) {
	if m != nil {
		s.metrics = m
	}
}

// Link runs the configured passes over the MPI and persists the incoming
// record according to the merged outcome: certain attaches to the winning
// person, possible stores the patient unattached, certainly-not mints a
// new person. Blocking and scoring are read-only; all writes share one
// transaction.
func (s *Service) Link(ctx context.Context, req *Request) (*Response, error) {
	algo, err := s.algorithms.Resolve(ctx, req.Algorithm)
	if err != nil {
		return nil, err
	}

	record := req.Record.Clone()
	if err := pii.Normalize(record); err != nil {
		return nil, err
	}
	cleaned := pii.Clean(record, algo.SkipValues)
	if cleaned.IsEmpty() {
		return nil, ErrEmptyRecord
	}

	best := make(map[int64]PassResult)
	for _, pass := range algo.Passes {
		pairs, ok := blockingPairs(cleaned, pass.BlockingKeys)
		if !ok {
			continue
		}
		candidates, err := s.repo.BlockPatients(ctx, pairs)
		if err != nil {
			return nil, err
		}
		s.metrics.BlockingCandidates(pass.Label, len(candidates))
		for _, r := range evaluatePass(algo, pass, cleaned, candidates) {
			cur, seen := best[r.PersonID]
			if !seen || betterResult(r, cur) {
				best[r.PersonID] = r
			}
		}
	}

	var certain, possible []PassResult
	for _, r := range best {
		switch r.Grade {
		case GradeCertain:
			certain = append(certain, r)
		case GradePossible:
			possible = append(possible, r)
		}
	}
	sortByRMS(certain)
	sortByRMS(possible)

	patient := &mpi.Patient{
		Record:               *record,
		ExternalPersonID:     req.ExternalPersonID,
		ExternalPersonSource: req.ExternalPersonSource,
	}
	if record.ExternalID != "" {
		id := record.ExternalID
		patient.ExternalPatientID = &id
	}
	blocking := mpi.BlockingValuesFor(cleaned)

	resp := &Response{Results: []MatchResult{}}
	switch {
	case len(certain) > 0:
		reported := certain
		if !algo.IncludeMultipleMatches {
			reported = certain[:1]
		}
		results, err := s.matchResults(ctx, reported)
		if err != nil {
			return nil, err
		}
		winner := certain[0].PersonID
		err = s.repo.InTx(ctx, func(ctx context.Context) error {
			patient.PersonID = &winner
			return s.repo.InsertPatient(ctx, patient, blocking)
		})
		if err != nil {
			return nil, err
		}
		resp.MatchGrade = GradeCertain
		resp.Results = results
		resp.PersonReferenceID = &results[0].PersonReferenceID

	case len(possible) > 0:
		results, err := s.matchResults(ctx, possible)
		if err != nil {
			return nil, err
		}
		err = s.repo.InTx(ctx, func(ctx context.Context) error {
			return s.repo.InsertPatient(ctx, patient, blocking)
		})
		if err != nil {
			return nil, err
		}
		resp.MatchGrade = GradePossible
		resp.Results = results

	default:
		var personRef uuid.UUID
		err = s.repo.InTx(ctx, func(ctx context.Context) error {
			person, err := s.repo.InsertPerson(ctx)
			if err != nil {
				return err
			}
			personRef = person.ReferenceID
			patient.PersonID = &person.ID
			return s.repo.InsertPatient(ctx, patient, blocking)
		})
		if err != nil {
			return nil, err
		}
		resp.MatchGrade = GradeCertainlyNot
		resp.PersonReferenceID = &personRef
	}

	resp.PatientReferenceID = patient.ReferenceID
	s.metrics.LinkDecision(algo.Label, resp.MatchGrade)
	return resp, nil
}

// betterResult reports whether r improves on cur for the same person:
// higher grade, then larger RMS. Ties keep cur, which ran in an earlier
// pass.
func betterResult(r, cur PassResult) bool {
	if gradeRank(r.Grade) != gradeRank(cur.Grade) {
		return gradeRank(r.Grade) > gradeRank(cur.Grade)
	}
	return r.RMS > cur.RMS
}

// sortByRMS orders reported clusters best-first; person id breaks RMS
// ties so responses are deterministic.
func sortByRMS(rs []PassResult) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].RMS != rs[j].RMS {
			return rs[i].RMS > rs[j].RMS
		}
		return rs[i].PersonID < rs[j].PersonID
	})
}

func (s *Service) matchResults(ctx context.Context, rs []PassResult) ([]MatchResult, error) {
	out := make([]MatchResult, 0, len(rs))
	for _, r := range rs {
		person, err := s.repo.GetPersonByID(ctx, r.PersonID)
		if err != nil {
			return nil, err
		}
		out = append(out, MatchResult{
			PersonReferenceID: person.ReferenceID,
			RMS:               r.RMS,
			Grade:             r.Grade,
			PassLabel:         r.PassLabel,
		})
	}
	return out, nil
}
