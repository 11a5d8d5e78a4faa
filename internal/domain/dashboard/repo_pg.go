package dashboard

import (
	"context"
	"errors"
	"fmt"

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

// RepoPG reads the dashboard_stats, risk_factor and monthly_trend tables.
type RepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *RepoPG) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT total_patients, high_risk, medium_risk, low_risk, accuracy
		FROM dashboard_stats WHERE id = 1`).
		Scan(&s.TotalPatients, &s.HighRisk, &s.MediumRisk, &s.LowRisk, &s.Accuracy)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, fmt.Errorf("query dashboard stats: %w", err)
	}
	return s, nil
}

func (r *RepoPG) RiskFactors(ctx context.Context) ([]RiskFactorImpact, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT factor, impact FROM risk_factor ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query risk factors: %w", err)
	}
	defer rows.Close()

	out := []RiskFactorImpact{}
	for rows.Next() {
		var f RiskFactorImpact
		if err := rows.Scan(&f.Factor, &f.Impact); err != nil {
			return nil, fmt.Errorf("scan risk factor: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *RepoPG) MonthlyTrends(ctx context.Context) ([]MonthlyTrendPoint, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT month, predictions, actual FROM monthly_trend ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query monthly trends: %w", err)
	}
	defer rows.Close()

	out := []MonthlyTrendPoint{}
	for rows.Next() {
		var m MonthlyTrendPoint
		if err := rows.Scan(&m.Month, &m.Predictions, &m.Actual); err != nil {
			return nil, fmt.Errorf("scan monthly trend: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Replace rewrites all three tables in one transaction.
func (r *RepoPG) Replace(ctx context.Context, src Source) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		c := r.conn(ctx)
		s := src.Stats
		if _, err := c.Exec(ctx, `
			INSERT INTO dashboard_stats (id, total_patients, high_risk, medium_risk, low_risk, accuracy)
			VALUES (1, $1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET total_patients = EXCLUDED.total_patients,
				high_risk = EXCLUDED.high_risk, medium_risk = EXCLUDED.medium_risk,
				low_risk = EXCLUDED.low_risk, accuracy = EXCLUDED.accuracy`,
			s.TotalPatients, s.HighRisk, s.MediumRisk, s.LowRisk, s.Accuracy); err != nil {
			return fmt.Errorf("upsert dashboard stats: %w", err)
		}

		if _, err := c.Exec(ctx, `DELETE FROM risk_factor`); err != nil {
			return fmt.Errorf("clear risk factors: %w", err)
		}
		for i, f := range src.RiskFactors {
			if _, err := c.Exec(ctx, `INSERT INTO risk_factor (position, factor, impact) VALUES ($1,$2,$3)`,
				i, f.Factor, f.Impact); err != nil {
				return fmt.Errorf("insert risk factor %q: %w", f.Factor, err)
			}
		}

		if _, err := c.Exec(ctx, `DELETE FROM monthly_trend`); err != nil {
			return fmt.Errorf("clear monthly trends: %w", err)
		}
		for i, m := range src.MonthlyTrends {
			if _, err := c.Exec(ctx, `INSERT INTO monthly_trend (position, month, predictions, actual) VALUES ($1,$2,$3,$4)`,
				i, m.Month, m.Predictions, m.Actual); err != nil {
				return fmt.Errorf("insert monthly trend %q: %w", m.Month, err)
			}
		}
		return nil
	})
}
