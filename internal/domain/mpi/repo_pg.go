package mpi

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpi/mpi/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := db.WithTx(ctx, r.pool, fn); err != nil {
		return mapErr(err)
	}
	return nil
}

// mapErr translates driver errors into the package sentinels. Sentinel
// errors already produced inside a transaction pass through unchanged.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

const patientCols = `id, reference_id, person_id, record,
	external_patient_id, external_person_id, external_person_source, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.ReferenceID, &p.PersonID, &p.Record,
		&p.ExternalPatientID, &p.ExternalPersonID, &p.ExternalPersonSource, &p.CreatedAt)
	return &p, err
}

func (r *repoPG) InsertPerson(ctx context.Context) (*Person, error) {
	p := &Person{ReferenceID: uuid.New()}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO mpi_person (reference_id) VALUES ($1)
		RETURNING id, created_at`,
		p.ReferenceID).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (r *repoPG) InsertPatient(ctx context.Context, p *Patient, values []BlockingValue) error {
	return r.InTx(ctx, func(ctx context.Context) error {
		if p.ReferenceID == uuid.Nil {
			p.ReferenceID = uuid.New()
		}
		err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO mpi_patient (reference_id, person_id, record,
				external_patient_id, external_person_id, external_person_source)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id, created_at`,
			p.ReferenceID, p.PersonID, p.Record,
			p.ExternalPatientID, p.ExternalPersonID, p.ExternalPersonSource).
			Scan(&p.ID, &p.CreatedAt)
		if err != nil {
			return mapErr(err)
		}
		for _, v := range values {
			if _, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO mpi_blocking_value (patient_id, key_id, value)
				VALUES ($1,$2,$3)`,
				p.ID, int16(v.KeyID), v.Value); err != nil {
				return mapErr(err)
			}
		}
		return nil
	})
}

func (r *repoPG) AttachPatient(ctx context.Context, patientID, personID int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE mpi_patient SET person_id = $2 WHERE id = $1`, patientID, personID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BlockPatients implements the blocking contract in one statement. The
// pairs arrive as parallel key/value arrays; "direct" holds patients
// matching at least one value for every distinct key, "siblings" adds
// cluster members that are missing a key entirely or share one of its
// requested values.
func (r *repoPG) BlockPatients(ctx context.Context, pairs []BlockingPair) ([]*Patient, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	keys := make([]int16, len(pairs))
	vals := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = int16(p.Key)
		vals[i] = p.Value
	}

	rows, err := r.conn(ctx).Query(ctx, `
		WITH pairs AS (
			SELECT key_id, value FROM unnest($1::smallint[], $2::text[]) AS t(key_id, value)
		),
		direct AS (
			SELECT bv.patient_id
			FROM mpi_blocking_value bv
			JOIN pairs p ON p.key_id = bv.key_id AND p.value = bv.value
			GROUP BY bv.patient_id
			HAVING COUNT(DISTINCT bv.key_id) = (SELECT COUNT(DISTINCT key_id) FROM pairs)
		),
		matched_persons AS (
			SELECT DISTINCT pt.person_id
			FROM mpi_patient pt
			JOIN direct d ON d.patient_id = pt.id
			WHERE pt.person_id IS NOT NULL
		),
		siblings AS (
			SELECT pt.id AS patient_id
			FROM mpi_patient pt
			JOIN matched_persons mp ON mp.person_id = pt.person_id
			WHERE NOT EXISTS (
				SELECT 1
				FROM (SELECT DISTINCT key_id FROM pairs) pk
				WHERE EXISTS (
					SELECT 1 FROM mpi_blocking_value bv
					WHERE bv.patient_id = pt.id AND bv.key_id = pk.key_id
				)
				AND NOT EXISTS (
					SELECT 1
					FROM mpi_blocking_value bv
					JOIN pairs p ON p.key_id = bv.key_id AND p.value = bv.value
					WHERE bv.patient_id = pt.id AND bv.key_id = pk.key_id
				)
			)
		)
		SELECT `+patientCols+`
		FROM mpi_patient
		WHERE id IN (
			SELECT patient_id FROM direct
			UNION
			SELECT patient_id FROM siblings
		)
		ORDER BY person_id ASC NULLS LAST, id ASC`,
		keys, vals)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return items, nil
}

func (r *repoPG) GetPersonByReference(ctx context.Context, ref uuid.UUID) (*Person, error) {
	var p Person
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, reference_id, created_at FROM mpi_person WHERE reference_id = $1`, ref).
		Scan(&p.ID, &p.ReferenceID, &p.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r *repoPG) GetPersonByID(ctx context.Context, id int64) (*Person, error) {
	var p Person
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, reference_id, created_at FROM mpi_person WHERE id = $1`, id).
		Scan(&p.ID, &p.ReferenceID, &p.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r *repoPG) GetPatientByReference(ctx context.Context, ref uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `
		SELECT `+patientCols+` FROM mpi_patient WHERE reference_id = $1`, ref))
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (r *repoPG) GetPatientsByPerson(ctx context.Context, personID int64) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+` FROM mpi_patient WHERE person_id = $1 ORDER BY id ASC`, personID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return items, nil
}

func (r *repoPG) ListUnattachedPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM mpi_patient WHERE person_id IS NULL`).Scan(&total)
	if err != nil {
		return nil, 0, mapErr(err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+`
		FROM mpi_patient
		WHERE person_id IS NULL
		ORDER BY id ASC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, mapErr(err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapErr(err)
	}
	return items, total, nil
}

func (r *repoPG) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM mpi_person),
			(SELECT COUNT(*) FROM mpi_patient),
			(SELECT COUNT(*) FROM mpi_blocking_value)`).
		Scan(&s.Persons, &s.Patients, &s.BlockingValues)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}
