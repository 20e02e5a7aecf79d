package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/HarshDev-byte/B-Safe-sub000/internal/model"
)

// Postgres stores history records as JSONB rows, one table per record kind.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS sos_sessions (
			id          BIGSERIAL PRIMARY KEY,
			session_id  TEXT NOT NULL,
			record      JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_sos_sessions_created_at ON sos_sessions (created_at DESC);

		CREATE TABLE IF NOT EXISTS journey_plans (
			id          BIGSERIAL PRIMARY KEY,
			plan_id     TEXT NOT NULL,
			record      JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_journey_plans_created_at ON journey_plans (created_at DESC);

		CREATE TABLE IF NOT EXISTS alert_attempts (
			id          BIGSERIAL PRIMARY KEY,
			session_id  TEXT NOT NULL,
			record      JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_alert_attempts_session ON alert_attempts (session_id);
	`
	_, err := p.db.ExecContext(ctx, query)
	return err
}

func (p *Postgres) AppendSession(ctx context.Context, s model.SOSSession) error {
	record, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		"INSERT INTO sos_sessions (session_id, record) VALUES ($1, $2)",
		s.ID, record,
	)
	return err
}

func (p *Postgres) AppendJourney(ctx context.Context, plan model.JourneyPlan) error {
	record, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal journey: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		"INSERT INTO journey_plans (plan_id, record) VALUES ($1, $2)",
		plan.ID, record,
	)
	return err
}

func (p *Postgres) AppendAttempt(ctx context.Context, a model.AlertAttempt) error {
	record, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		"INSERT INTO alert_attempts (session_id, record) VALUES ($1, $2)",
		a.SessionID, record,
	)
	return err
}

func (p *Postgres) RecentSessions(ctx context.Context, limit int) ([]model.SOSSession, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT record FROM sos_sessions ORDER BY created_at DESC LIMIT $1", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.SOSSession
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var s model.SOSSession
		if err := json.Unmarshal(record, &s); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (p *Postgres) RecentJourneys(ctx context.Context, limit int) ([]model.JourneyPlan, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT record FROM journey_plans ORDER BY created_at DESC LIMIT $1", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []model.JourneyPlan
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var plan model.JourneyPlan
		if err := json.Unmarshal(record, &plan); err != nil {
			return nil, fmt.Errorf("unmarshal journey: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}
