package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	appLog "eventsched/internal/log"
	"eventsched/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS events (
	position    INTEGER PRIMARY KEY,
	id          INTEGER NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL,
	start_at    TEXT NOT NULL,
	end_at      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS recurrences (
	position         INTEGER PRIMARY KEY,
	event_id         INTEGER NOT NULL,
	interval_token   TEXT NOT NULL,
	occurrence_count INTEGER NOT NULL,
	end_date         TEXT
);`

// postgresOpTimeout bounds each load or save.
const postgresOpTimeout = 30 * time.Second

// PostgresStore keeps the catalog in PostgreSQL with the same row layout
// as SQLiteStore. The catalog API is synchronous, so the store keeps the
// values of the context it was opened with but not its cancellation or
// deadline; each operation gets its own timeout.
type PostgresStore struct {
	base context.Context
	pool *pgxpool.Pool
	loc  *time.Location
}

func newPostgresStore(ctx context.Context, pool *pgxpool.Pool, loc *time.Location) *PostgresStore {
	return &PostgresStore{base: context.WithoutCancel(ctx), pool: pool, loc: loc}
}

// opContext returns the context for a single store operation.
func (s *PostgresStore) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.base, postgresOpTimeout)
}

// OpenPostgres connects to dsn, retrying a few times to accommodate a
// database container that is still starting, and creates the tables. ctx
// bounds only the connect; the store stays usable after it is done.
func OpenPostgres(ctx context.Context, dsn string, loc *time.Location) (*PostgresStore, error) {
	if loc == nil {
		loc = time.Local
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = 4
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		appLog.Error("postgres connect attempt failed", err, "attempt", attempt, "max_attempts", 5)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return newPostgresStore(ctx, pool, loc), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) LoadEvents() ([]model.Event, error) {
	ctx, cancel := s.opContext()
	defer cancel()
	rows, err := s.pool.Query(ctx, `SELECT id, title, description, start_at, end_at FROM events ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]model.Event, 0)
	for rows.Next() {
		var (
			e          model.Event
			start, end string
		)
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &start, &end); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.Start, err = ParseDateTime(start, s.loc); err != nil {
			return nil, err
		}
		if e.End, err = ParseDateTime(end, s.loc); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) SaveEvents(events []model.Event) error {
	return s.rewrite("events", func(ctx context.Context, tx pgx.Tx) error {
		for i, e := range events {
			if _, err := tx.Exec(ctx,
				`INSERT INTO events (position, id, title, description, start_at, end_at) VALUES ($1, $2, $3, $4, $5, $6)`,
				i, e.ID, e.Title, e.Description, FormatDateTime(e.Start), FormatDateTime(e.End),
			); err != nil {
				return fmt.Errorf("insert event %d: %w", e.ID, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) LoadRecurrences() ([]model.RecurrenceSpec, error) {
	ctx, cancel := s.opContext()
	defer cancel()
	rows, err := s.pool.Query(ctx, `SELECT event_id, interval_token, occurrence_count, end_date FROM recurrences ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list recurrences: %w", err)
	}
	defer rows.Close()

	specs := make([]model.RecurrenceSpec, 0)
	for rows.Next() {
		var (
			spec    model.RecurrenceSpec
			token   string
			endDate *string
		)
		if err := rows.Scan(&spec.EventID, &token, &spec.Count, &endDate); err != nil {
			return nil, fmt.Errorf("scan recurrence: %w", err)
		}
		if spec.Interval, err = model.ParseInterval(token); err != nil {
			return nil, err
		}
		if endDate != nil {
			d, err := model.ParseDate(*endDate)
			if err != nil {
				return nil, err
			}
			spec.EndDate = &d
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

func (s *PostgresStore) SaveRecurrences(specs []model.RecurrenceSpec) error {
	return s.rewrite("recurrences", func(ctx context.Context, tx pgx.Tx) error {
		for i, spec := range specs {
			var endDate *string
			if spec.EndDate != nil {
				d := spec.EndDate.String()
				endDate = &d
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO recurrences (position, event_id, interval_token, occurrence_count, end_date) VALUES ($1, $2, $3, $4, $5)`,
				i, spec.EventID, spec.Interval.String(), spec.Count, endDate,
			); err != nil {
				return fmt.Errorf("insert recurrence for event %d: %w", spec.EventID, err)
			}
		}
		return nil
	})
}

// rewrite empties table and refills it via fill inside one transaction.
func (s *PostgresStore) rewrite(table string, fill func(ctx context.Context, tx pgx.Tx) error) (err error) {
	ctx, cancel := s.opContext()
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Ensure the transaction is always resolved.
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM `+pgx.Identifier{table}.Sanitize()); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	if err = fill(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
