package officer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "nivaran/pkg/domain"
	"nivaran/pkg/platform/sentinel"
)

// PostgresDirectory reads the officers table maintained by the district
// administration import job.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// Schema:
//
//	CREATE TABLE officers (
//	    district      TEXT PRIMARY KEY,
//	    email         TEXT NOT NULL,
//	    name          TEXT NOT NULL,
//	    district_name TEXT NOT NULL,
//	    state         TEXT NOT NULL
//	);

func (d *PostgresDirectory) Lookup(ctx context.Context, code id.DistrictCode) (Record, error) {
	var rec Record
	var district string
	err := d.pool.QueryRow(ctx, `
		SELECT district, email, name, district_name, state
		FROM officers WHERE district = $1`, code.String(),
	).Scan(&district, &rec.Email, &rec.Name, &rec.DistrictName, &rec.State)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("lookup officer: %w", err)
	}
	rec.District = id.DistrictCode(district)
	return rec, nil
}
