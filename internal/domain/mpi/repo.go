package mpi

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("mpi: not found")
	// ErrConflict is returned when an insert violates a uniqueness
	// constraint, e.g. a duplicate external_patient_id.
	ErrConflict = errors.New("mpi: conflict")
	// ErrUnavailable wraps transient storage errors. The enclosing
	// transaction has been rolled back and the call is safe to retry.
	ErrUnavailable = errors.New("mpi: storage unavailable")
)

// Repository persists Persons, Patients, and their blocking index.
// Every method is atomic on its own; InTx groups several into one
// transaction.
type Repository interface {
	// InTx runs fn inside a single READ COMMITTED transaction. Repository
	// calls made with the ctx passed to fn join that transaction.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error

	// InsertPerson creates a new empty cluster.
	InsertPerson(ctx context.Context) (*Person, error)

	// InsertPatient creates the patient row and its blocking rows. Partial
	// blocking inserts are forbidden: the write is all-or-nothing.
	InsertPatient(ctx context.Context, p *Patient, values []BlockingValue) error

	// AttachPatient sets the patient's person id.
	AttachPatient(ctx context.Context, patientID, personID int64) error

	// BlockPatients returns every patient whose blocking rows match at
	// least one value for each distinct key in pairs, plus every sibling
	// patient of the matched persons that is missing a key entirely or
	// shares one of its requested values. Results are ordered by person id
	// ascending with unattached patients last, then by patient id.
	BlockPatients(ctx context.Context, pairs []BlockingPair) ([]*Patient, error)

	GetPersonByReference(ctx context.Context, ref uuid.UUID) (*Person, error)
	GetPersonByID(ctx context.Context, id int64) (*Person, error)
	GetPatientByReference(ctx context.Context, ref uuid.UUID) (*Patient, error)
	GetPatientsByPerson(ctx context.Context, personID int64) ([]*Patient, error)

	// ListUnattachedPatients returns patients with no person, in arrival
	// order, plus the total count of such patients.
	ListUnattachedPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error)

	Stats(ctx context.Context) (*Stats, error)
}
