package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"eventsched/internal/model"
)

// SQLiteStore keeps the catalog in a single SQLite database file. Rows
// carry an explicit position so load order equals save order, and event
// ids are not unique because append-restores may duplicate them.
type SQLiteStore struct {
	db  *sql.DB
	loc *time.Location
}

// OpenSQLite opens (creating if needed) the database at path and migrates
// its schema.
func OpenSQLite(path string, loc *time.Location) (*SQLiteStore, error) {
	if loc == nil {
		loc = time.Local
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps writes serialized inside the driver.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, loc: loc}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate brings the schema to the current version, tracked in db_version.
func (s *SQLiteStore) migrate() error {
	var version int
	err := s.db.QueryRow(`SELECT version FROM db_version WHERE name = 'eventsched'`).Scan(&version)
	if err != nil {
		if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS db_version (
			name TEXT PRIMARY KEY,
			version INTEGER
		)`); err != nil {
			return fmt.Errorf("create db_version table: %w", err)
		}
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO db_version (name, version) VALUES ('eventsched', 0)`); err != nil {
			return fmt.Errorf("initialize db_version table: %w", err)
		}
		version = 0
	}

	if version == 0 {
		if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS events (
			position    INTEGER PRIMARY KEY,
			id          INTEGER NOT NULL,
			title       TEXT NOT NULL,
			description TEXT NOT NULL,
			start_at    TEXT NOT NULL,
			end_at      TEXT NOT NULL
		)`); err != nil {
			return fmt.Errorf("create events table: %w", err)
		}
		if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS recurrences (
			position         INTEGER PRIMARY KEY,
			event_id         INTEGER NOT NULL,
			interval_token   TEXT NOT NULL,
			occurrence_count INTEGER NOT NULL,
			end_date         TEXT
		)`); err != nil {
			return fmt.Errorf("create recurrences table: %w", err)
		}
		if _, err := s.db.Exec(`UPDATE db_version SET version = 1 WHERE name = 'eventsched'`); err != nil {
			return fmt.Errorf("update db_version table: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) LoadEvents() ([]model.Event, error) {
	rows, err := s.db.Query(`SELECT id, title, description, start_at, end_at FROM events ORDER BY position`)
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

func (s *SQLiteStore) SaveEvents(events []model.Event) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM events`); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO events (position, id, title, description, start_at, end_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range events {
		if _, err = stmt.Exec(i, e.ID, e.Title, e.Description, FormatDateTime(e.Start), FormatDateTime(e.End)); err != nil {
			return fmt.Errorf("insert event %d: %w", e.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadRecurrences() ([]model.RecurrenceSpec, error) {
	rows, err := s.db.Query(`SELECT event_id, interval_token, occurrence_count, end_date FROM recurrences ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list recurrences: %w", err)
	}
	defer rows.Close()

	specs := make([]model.RecurrenceSpec, 0)
	for rows.Next() {
		var (
			spec    model.RecurrenceSpec
			token   string
			endDate sql.NullString
		)
		if err := rows.Scan(&spec.EventID, &token, &spec.Count, &endDate); err != nil {
			return nil, fmt.Errorf("scan recurrence: %w", err)
		}
		if spec.Interval, err = model.ParseInterval(token); err != nil {
			return nil, err
		}
		if endDate.Valid {
			d, err := model.ParseDate(endDate.String)
			if err != nil {
				return nil, err
			}
			spec.EndDate = &d
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

func (s *SQLiteStore) SaveRecurrences(specs []model.RecurrenceSpec) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM recurrences`); err != nil {
		return fmt.Errorf("clear recurrences: %w", err)
	}
	for i, spec := range specs {
		var endDate sql.NullString
		if spec.EndDate != nil {
			endDate = sql.NullString{String: spec.EndDate.String(), Valid: true}
		}
		if _, err = tx.Exec(`INSERT INTO recurrences (position, event_id, interval_token, occurrence_count, end_date) VALUES (?, ?, ?, ?, ?)`,
			i, spec.EventID, spec.Interval.String(), spec.Count, endDate); err != nil {
			return fmt.Errorf("insert recurrence for event %d: %w", spec.EventID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
