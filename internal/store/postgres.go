// Package store persists tick outcomes to Postgres so the control history
// survives restarts and can be inspected alongside metering data.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/etnoy/kompromiss/internal/regulator"
)

type Postgres struct {
	db *sql.DB
}

func Open(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS regulator_ticks (
			at                TIMESTAMPTZ PRIMARY KEY,
			strategy          TEXT NOT NULL,
			action            DOUBLE PRECISION NOT NULL,
			cost              DOUBLE PRECISION NOT NULL,
			indoor            DOUBLE PRECISION NOT NULL,
			medium            DOUBLE PRECISION NOT NULL,
			outdoor           DOUBLE PRECISION NOT NULL,
			price             DOUBLE PRECISION NOT NULL,
			sensor_degraded   BOOLEAN NOT NULL,
			forecast_degraded BOOLEAN NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create regulator_ticks: %w", err)
	}
	return nil
}

func (p *Postgres) SaveTick(ctx context.Context, rec regulator.TickRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO regulator_ticks (
			at, strategy, action, cost, indoor, medium, outdoor, price,
			sensor_degraded, forecast_degraded
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (at) DO UPDATE SET
			strategy = EXCLUDED.strategy,
			action = EXCLUDED.action,
			cost = EXCLUDED.cost,
			indoor = EXCLUDED.indoor,
			medium = EXCLUDED.medium,
			outdoor = EXCLUDED.outdoor,
			price = EXCLUDED.price,
			sensor_degraded = EXCLUDED.sensor_degraded,
			forecast_degraded = EXCLUDED.forecast_degraded`,
		rec.At, rec.Strategy.String(), rec.Action, rec.Cost, rec.Indoor, rec.Medium,
		rec.Outdoor, rec.Price, rec.SensorDegraded, rec.ForecastDegraded)
	if err != nil {
		return fmt.Errorf("insert tick: %w", err)
	}
	return nil
}

// RecentTicks returns up to limit records, newest first.
func (p *Postgres) RecentTicks(ctx context.Context, limit int) ([]regulator.TickRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT at, strategy, action, cost, indoor, medium, outdoor, price,
		       sensor_degraded, forecast_degraded
		FROM regulator_ticks ORDER BY at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var out []regulator.TickRecord
	for rows.Next() {
		var rec regulator.TickRecord
		var strategy string
		if err := rows.Scan(&rec.At, &strategy, &rec.Action, &rec.Cost, &rec.Indoor,
			&rec.Medium, &rec.Outdoor, &rec.Price, &rec.SensorDegraded, &rec.ForecastDegraded); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		rec.Strategy, _ = regulator.ParseStrategy(strategy)
		out = append(out, rec)
	}
	return out, rows.Err()
}
