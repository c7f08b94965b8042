package mpi

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mpi/mpi/internal/platform/pii"
)

// BlockingValuesFor derives the full blocking index for a record: one
// BlockingValue per extractable value of every defined key. PatientID is
// left unset; the repository fills it at insert time.
func BlockingValuesFor(rec *pii.Record) []BlockingValue {
	var out []BlockingValue
	for _, key := range pii.BlockingKeys() {
		for _, val := range pii.ExtractBlockingValues(rec, key) {
			out = append(out, BlockingValue{KeyID: key, Value: val})
		}
	}
	return out
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreatePerson(ctx context.Context) (*Person, error) {
	return s.repo.InsertPerson(ctx)
}

// GetPerson returns the cluster and its member patients.
func (s *Service) GetPerson(ctx context.Context, ref uuid.UUID) (*Person, []*Patient, error) {
	person, err := s.repo.GetPersonByReference(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	patients, err := s.repo.GetPatientsByPerson(ctx, person.ID)
	if err != nil {
		return nil, nil, err
	}
	return person, patients, nil
}

// GetPatient returns the patient and, when attached, its person reference.
func (s *Service) GetPatient(ctx context.Context, ref uuid.UUID) (*Patient, *uuid.UUID, error) {
	patient, err := s.repo.GetPatientByReference(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	if patient.PersonID == nil {
		return patient, nil, nil
	}
	person, err := s.repo.GetPersonByID(ctx, *patient.PersonID)
	if err != nil {
		return nil, nil, err
	}
	return patient, &person.ReferenceID, nil
}

// ListUnattached returns the review queue: patients persisted without a
// person because no linkage decision attached them.
func (s *Service) ListUnattached(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.ListUnattachedPatients(ctx, limit, offset)
}

// AttachPatient assigns a patient to a person: a reviewer resolving a
// possible match, or an operator correcting an earlier decision. Linkage
// itself never moves a patient once placed.
func (s *Service) AttachPatient(ctx context.Context, patientRef, personRef uuid.UUID) error {
	return s.repo.InTx(ctx, func(ctx context.Context) error {
		patient, err := s.repo.GetPatientByReference(ctx, patientRef)
		if err != nil {
			return err
		}
		person, err := s.repo.GetPersonByReference(ctx, personRef)
		if err != nil {
			return err
		}
		return s.repo.AttachPatient(ctx, patient.ID, person.ID)
	})
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.repo.Stats(ctx)
}

// SeedCluster is one group of records belonging to the same individual.
type SeedCluster struct {
	ExternalPersonID *string      `json:"external_person_id,omitempty"`
	Records          []pii.Record `json:"records"`
}

// SeedResult reports the cluster created for one SeedCluster.
type SeedResult struct {
	PersonReferenceID   uuid.UUID   `json:"person_reference_id"`
	PatientReferenceIDs []uuid.UUID `json:"patient_reference_ids"`
}

// Seed creates one Person per cluster and one Patient per record, with
// blocking rows derived from the normalized record. Each cluster is one
// transaction; a failed cluster aborts the whole call after rolling back
// only itself.
func (s *Service) Seed(ctx context.Context, clusters []SeedCluster) ([]SeedResult, error) {
	results := make([]SeedResult, 0, len(clusters))
	for i, cluster := range clusters {
		var result SeedResult
		err := s.repo.InTx(ctx, func(ctx context.Context) error {
			person, err := s.repo.InsertPerson(ctx)
			if err != nil {
				return err
			}
			result.PersonReferenceID = person.ReferenceID
			for j := range cluster.Records {
				rec := cluster.Records[j].Clone()
				if err := pii.Normalize(rec); err != nil {
					return fmt.Errorf("cluster %d record %d: %w", i, j, err)
				}
				patient := &Patient{
					PersonID: &person.ID,
					Record:   *rec,
				}
				if cluster.ExternalPersonID != nil {
					patient.ExternalPersonID = cluster.ExternalPersonID
				}
				if rec.ExternalID != "" {
					id := rec.ExternalID
					patient.ExternalPatientID = &id
				}
				if err := s.repo.InsertPatient(ctx, patient, BlockingValuesFor(rec)); err != nil {
					return err
				}
				result.PatientReferenceIDs = append(result.PatientReferenceIDs, patient.ReferenceID)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}
