package algorithm

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpi/mpi/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) Insert(ctx context.Context, a *Algorithm) error {
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if a.IsDefault {
			if _, err := q.Exec(ctx,
				`UPDATE mpi_algorithm SET is_default = FALSE WHERE is_default`); err != nil {
				return err
			}
		}
		_, err := q.Exec(ctx,
			`INSERT INTO mpi_algorithm (label, is_default, config) VALUES ($1, $2, $3)`,
			a.Label, a.IsDefault, a)
		return err
	})
	return mapErr(err)
}

func (r *repoPG) GetByLabel(ctx context.Context, label string) (*Algorithm, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT config, is_default FROM mpi_algorithm WHERE label = $1`, label)
	return scanAlgorithm(row)
}

func (r *repoPG) GetDefault(ctx context.Context) (*Algorithm, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT config, is_default FROM mpi_algorithm WHERE is_default LIMIT 1`)
	return scanAlgorithm(row)
}

func (r *repoPG) List(ctx context.Context) ([]*Algorithm, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT config, is_default FROM mpi_algorithm ORDER BY label ASC`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*Algorithm
	for rows.Next() {
		a, err := scanAlgorithm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

// scanAlgorithm reads (config jsonb, is_default bool). The column flag wins
// over whatever the stored document says, so flipping the default never
// requires rewriting immutable config bodies.
func scanAlgorithm(row pgx.Row) (*Algorithm, error) {
	var a Algorithm
	var isDefault bool
	if err := row.Scan(&a, &isDefault); err != nil {
		return nil, mapErr(err)
	}
	a.IsDefault = isDefault
	return &a, nil
}

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
