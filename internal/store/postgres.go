package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/Cortex/internal/ledger"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS cortex_assignments (
	assignment_id      UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	modality           TEXT NOT NULL,
	requested_modality TEXT NOT NULL,
	skill              TEXT NOT NULL,
	pool_skill         TEXT NOT NULL DEFAULT '',
	worker             TEXT NOT NULL,
	level              SMALLINT NOT NULL,
	phase              SMALLINT NOT NULL,
	weight             DOUBLE PRECISION NOT NULL,
	ratio_after        DOUBLE PRECISION NOT NULL,
	assisted           BOOLEAN NOT NULL DEFAULT FALSE,
	strict             BOOLEAN NOT NULL DEFAULT FALSE,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS cortex_assignments_modality_created
	ON cortex_assignments (modality, created_at DESC);

CREATE TABLE IF NOT EXISTS cortex_ledger_counters (
	modality       TEXT NOT NULL,
	worker         TEXT NOT NULL,
	weighted_count DOUBLE PRECISION NOT NULL,
	hours_worked   DOUBLE PRECISION NOT NULL,
	assignments    INTEGER NOT NULL,
	assisted_count INTEGER NOT NULL,
	by_skill       JSONB,
	floor_hours    DOUBLE PRECISION NOT NULL,
	taken_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (modality, worker)
);`

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const assignmentColumns = `assignment_id, modality, requested_modality, skill, pool_skill, worker,
	level, phase, weight, ratio_after, assisted, strict, created_at`

func (s *PostgresStore) SaveAssignment(ctx context.Context, a *Assignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO cortex_assignments (assignment_id, modality, requested_modality, skill, pool_skill,
			worker, level, phase, weight, ratio_after, assisted, strict, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13, now()))
		RETURNING created_at`,
		a.ID, a.Modality, a.RequestedModality, a.Skill, a.PoolSkill,
		a.Worker, a.Level, a.Phase, a.Weight, a.RatioAfter, a.Assisted, a.Strict, nullTime(a.CreatedAt),
	).Scan(&a.CreatedAt)
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *PostgresStore) ListAssignments(ctx context.Context, filter AssignmentFilter) ([]*Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM cortex_assignments WHERE 1=1`
	args := []interface{}{}
	n := 0

	if filter.Modality != "" {
		n++
		query += fmt.Sprintf(" AND modality = $%d", n)
		args = append(args, filter.Modality)
	}
	if filter.Worker != "" {
		n++
		query += fmt.Sprintf(" AND worker = $%d", n)
		args = append(args, filter.Worker)
	}
	if filter.Since != nil {
		n++
		query += fmt.Sprintf(" AND created_at >= $%d", n)
		args = append(args, *filter.Since)
	}

	query += " ORDER BY created_at DESC"

	n++
	query += fmt.Sprintf(" LIMIT $%d", n)
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Assignment
	for rows.Next() {
		a := &Assignment{}
		if err := rows.Scan(
			&a.ID, &a.Modality, &a.RequestedModality, &a.Skill, &a.PoolSkill, &a.Worker,
			&a.Level, &a.Phase, &a.Weight, &a.RatioAfter, &a.Assisted, &a.Strict, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveLedger replaces the stored snapshot in one transaction.
func (s *PostgresStore) SaveLedger(ctx context.Context, st ledger.State) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM cortex_ledger_counters`); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}

	batch := &pgx.Batch{}
	for mod, byWorker := range st.Modalities {
		for worker, c := range byWorker {
			bySkill, _ := json.Marshal(c.BySkill)
			batch.Queue(`
				INSERT INTO cortex_ledger_counters (modality, worker, weighted_count, hours_worked,
					assignments, assisted_count, by_skill, floor_hours, taken_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				mod, worker, c.WeightedCount, c.HoursWorked,
				c.Assignments, c.AssistedCount, bySkill, st.FloorHours, st.TakenAt)
		}
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("write ledger: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) LoadLedger(ctx context.Context) (*ledger.State, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT modality, worker, weighted_count, hours_worked, assignments, assisted_count,
			by_skill, floor_hours, taken_at
		FROM cortex_ledger_counters`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var st *ledger.State
	for rows.Next() {
		var (
			mod, worker string
			c           ledger.Counter
			bySkill     []byte
			floor       float64
			takenAt     time.Time
		)
		if err := rows.Scan(&mod, &worker, &c.WeightedCount, &c.HoursWorked, &c.Assignments,
			&c.AssistedCount, &bySkill, &floor, &takenAt); err != nil {
			return nil, err
		}
		if bySkill != nil {
			if err := json.Unmarshal(bySkill, &c.BySkill); err != nil {
				return nil, fmt.Errorf("decode by_skill for %s/%s: %w", mod, worker, err)
			}
		}
		if st == nil {
			st = &ledger.State{TakenAt: takenAt, FloorHours: floor, Modalities: map[string]map[string]ledger.Counter{}}
		}
		if st.Modalities[mod] == nil {
			st.Modalities[mod] = map[string]ledger.Counter{}
		}
		st.Modalities[mod][worker] = c
	}
	return st, rows.Err()
}
