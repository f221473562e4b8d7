package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/crescendo-labs/crescendo/internal/experiment"
)

// SQLiteStore is the embedded single-file backend. Experiments are
// stored as JSON documents with status and timestamps denormalized for
// listing; assignments and events are relational so replay order and
// per-pair uniqueness come from the schema.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    status TEXT NOT NULL,
    definition TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);

CREATE TABLE IF NOT EXISTS assignments (
    experiment_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    variation_id TEXT NOT NULL,
    attributes TEXT,
    assigned_at INTEGER NOT NULL,
    PRIMARY KEY (experiment_id, user_id),
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    experiment_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    variation_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    revenue REAL NOT NULL DEFAULT 0,
    time_on_page REAL NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE INDEX IF NOT EXISTS idx_events_experiment ON events(experiment_id, created_at);
CREATE INDEX IF NOT EXISTS idx_events_user ON events(experiment_id, user_id);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, eris.Wrap(err, "open database")
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "enable WAL mode")
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "apply schema")
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for health checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) SaveExperiment(ctx context.Context, exp *experiment.Experiment) error {
	definition, err := json.Marshal(exp)
	if err != nil {
		return eris.Wrap(err, "marshal experiment")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiments (id, name, status, definition, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   status = excluded.status,
		   definition = excluded.definition,
		   updated_at = excluded.updated_at`,
		exp.ID, exp.Name, string(exp.Status), string(definition),
		exp.CreatedAt.Unix(), exp.UpdatedAt.Unix(),
	)
	if err != nil {
		return eris.Wrap(err, "save experiment")
	}
	return nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error) {
	var definition string
	err := s.db.QueryRowContext(ctx,
		`SELECT definition FROM experiments WHERE id = ?`, id,
	).Scan(&definition)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "get experiment")
	}

	var exp experiment.Experiment
	if err := json.Unmarshal([]byte(definition), &exp); err != nil {
		return nil, eris.Wrap(err, "unmarshal experiment")
	}
	return &exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*experiment.Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT definition FROM experiments ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "list experiments")
	}
	defer rows.Close()

	var experiments []*experiment.Experiment
	for rows.Next() {
		var definition string
		if err := rows.Scan(&definition); err != nil {
			return nil, eris.Wrap(err, "scan experiment")
		}
		var exp experiment.Experiment
		if err := json.Unmarshal([]byte(definition), &exp); err != nil {
			return nil, eris.Wrap(err, "unmarshal experiment")
		}
		experiments = append(experiments, &exp)
	}
	return experiments, rows.Err()
}

func (s *SQLiteStore) SaveAssignment(ctx context.Context, a *experiment.Assignment) error {
	attrs, err := json.Marshal(a.Attributes)
	if err != nil {
		return eris.Wrap(err, "marshal attributes")
	}

	// INSERT OR IGNORE keeps the first assignment authoritative; the
	// pair is idempotent by design.
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO assignments (experiment_id, user_id, variation_id, attributes, assigned_at)
		 VALUES (?, ?, ?, ?, ?)`,
		a.ExperimentID, a.UserID, a.VariationID, string(attrs), a.AssignedAt.UnixMilli(),
	)
	if err != nil {
		return eris.Wrap(err, "save assignment")
	}
	return nil
}

func (s *SQLiteStore) ListAssignments(ctx context.Context, experimentID string) ([]*experiment.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, variation_id, attributes, assigned_at
		 FROM assignments WHERE experiment_id = ? ORDER BY assigned_at`,
		experimentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "list assignments")
	}
	defer rows.Close()

	var assignments []*experiment.Assignment
	for rows.Next() {
		var (
			a          experiment.Assignment
			attrs      sql.NullString
			assignedAt int64
		)
		if err := rows.Scan(&a.UserID, &a.VariationID, &attrs, &assignedAt); err != nil {
			return nil, eris.Wrap(err, "scan assignment")
		}
		a.ExperimentID = experimentID
		a.AssignedAt = time.UnixMilli(assignedAt)
		if attrs.Valid && attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &a.Attributes); err != nil {
				return nil, eris.Wrap(err, "unmarshal attributes")
			}
		}
		assignments = append(assignments, &a)
	}
	return assignments, rows.Err()
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, experimentID, userID string, ev experiment.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (experiment_id, user_id, variation_id, event_type, revenue, time_on_page, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		experimentID, userID, ev.VariationID, ev.Type,
		ev.Payload.Revenue, ev.Payload.TimeOnPage, ev.Timestamp.UnixMilli(),
	)
	if err != nil {
		return eris.Wrap(err, "append event")
	}
	return nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, experimentID string) ([]StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, variation_id, event_type, revenue, time_on_page, created_at
		 FROM events WHERE experiment_id = ? ORDER BY id`,
		experimentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "list events")
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var (
			se        StoredEvent
			createdAt int64
		)
		if err := rows.Scan(&se.UserID, &se.Event.VariationID, &se.Event.Type,
			&se.Event.Payload.Revenue, &se.Event.Payload.TimeOnPage, &createdAt); err != nil {
			return nil, eris.Wrap(err, "scan event")
		}
		se.Event.Timestamp = time.UnixMilli(createdAt)
		events = append(events, se)
	}
	return events, rows.Err()
}
