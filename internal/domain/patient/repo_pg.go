package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/readmit/readmit/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// RepoPG reads and writes the patient table.
type RepoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository backed by the patient table.
func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, name, age, condition, risk_score, admission_date, factors`

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		id, name, condition string
		age                 int
		score               float64
		admitted            time.Time
		factors             []string
	)
	if err := row.Scan(&id, &name, &age, &condition, &score, &admitted, &factors); err != nil {
		return nil, err
	}
	p := New(id, name, age, condition, score, factors, NewDate(admitted))
	return &p, nil
}

func (r *RepoPG) List(ctx context.Context) ([]Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	out := []Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return out, nil
}

func (r *RepoPG) GetByID(ctx context.Context, id string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return p, nil
}

// ReplaceAll rewrites the patient table inside one transaction. The risk
// label is not stored; it is derived from risk_score on every read.
func (r *RepoPG) ReplaceAll(ctx context.Context, patients []Patient) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		c := r.conn(ctx)
		if _, err := c.Exec(ctx, `DELETE FROM patient`); err != nil {
			return fmt.Errorf("clear patients: %w", err)
		}
		for i, p := range patients {
			_, err := c.Exec(ctx, `
				INSERT INTO patient (id, position, name, age, condition, risk_score, admission_date, factors)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				p.ID, i, p.Name, p.Age, p.Condition, p.RiskScore, p.AdmissionDate.Time, p.Factors)
			if err != nil {
				return fmt.Errorf("insert patient %s: %w", p.ID, err)
			}
		}
		return nil
	})
}
