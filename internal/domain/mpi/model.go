// Package mpi persists the Master Patient Index: Person clusters, Patient
// records, and the denormalized blocking index that makes candidate
// retrieval cheap.
package mpi

import (
	"time"

	"github.com/google/uuid"

	"github.com/mpi/mpi/internal/platform/pii"
)

// Person is an identity cluster. It carries no demographic data of its own;
// Patients holding its id are believed to describe the same individual.
type Person struct {
	ID          int64     `json:"-"`
	ReferenceID uuid.UUID `json:"person_reference_id"`
	CreatedAt   time.Time `json:"-"`
}

// Patient is one point-in-time record received from an external system.
// The PII payload is stored verbatim as JSONB; a nil PersonID means the
// record is unattached.
type Patient struct {
	ID                   int64      `json:"-"`
	ReferenceID          uuid.UUID  `json:"patient_reference_id"`
	PersonID             *int64     `json:"-"`
	Record               pii.Record `json:"record"`
	ExternalPatientID    *string    `json:"external_patient_id,omitempty"`
	ExternalPersonID     *string    `json:"external_person_id,omitempty"`
	ExternalPersonSource *string    `json:"external_person_source,omitempty"`
	CreatedAt            time.Time  `json:"-"`
}

// BlockingValue is one row of the blocking index. Rows are a cache derived
// from the patient's record and the fixed blocking-key definitions, never
// authoritative.
type BlockingValue struct {
	PatientID int64           `json:"-"`
	KeyID     pii.BlockingKey `json:"key_id"`
	Value     string          `json:"value"`
}

// BlockingPair is one (key, value) requirement of a blocking query. The
// same key may appear with several values when the incoming record is
// multi-valued for that feature.
type BlockingPair struct {
	Key   pii.BlockingKey
	Value string
}

// Stats are cheap operational counters for the index.
type Stats struct {
	Persons        int64 `json:"persons"`
	Patients       int64 `json:"patients"`
	BlockingValues int64 `json:"blocking_values"`
}
