package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
)

// SQLiteEventStore stores the step history of workflow runs in SQLite.
type SQLiteEventStore struct {
	db *sql.DB
}

// Ensure SQLiteEventStore implements the interfaces.
var _ EventStore = (*SQLiteEventStore)(nil)

// NewSQLiteEventStore creates the workflow_events table if needed.
func NewSQLiteEventStore(db *sql.DB) (*SQLiteEventStore, error) {
	s := &SQLiteEventStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteEventStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflow_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			instance_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			workflow_name TEXT NOT NULL DEFAULT '',
			step INTEGER NOT NULL DEFAULT -1,
			detail TEXT NOT NULL DEFAULT '',
			artifact TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_workflow_events_instance_id ON workflow_events(instance_id, id);
		CREATE INDEX IF NOT EXISTS idx_workflow_events_artifact ON workflow_events(artifact) WHERE artifact <> '';
	`)
	return err
}

func (s *SQLiteEventStore) AppendEvent(ctx context.Context, ev api.WorkflowEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_events (instance_id, at, type, workflow_name, step, detail, artifact)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.InstanceID,
		at.UnixNano(),
		string(ev.Type),
		ev.WorkflowName,
		ev.Step,
		ev.Detail,
		ev.Artifact,
	)
	return err
}

func (s *SQLiteEventStore) ListEvents(ctx context.Context, instanceID string) ([]api.WorkflowEvent, error) {
	return s.query(ctx, selectEvents+` WHERE instance_id = ? ORDER BY id ASC`, instanceID)
}

// ArtifactHistory returns every event that wrote or removed path, across
// all runs, oldest first. It answers which run produced a file and whether
// a later run deleted it.
func (s *SQLiteEventStore) ArtifactHistory(ctx context.Context, path string) ([]api.WorkflowEvent, error) {
	return s.query(ctx, selectEvents+` WHERE artifact = ? ORDER BY id ASC`, path)
}

const selectEvents = `
	SELECT instance_id, at, type, workflow_name, step, detail, artifact
	FROM workflow_events`

func (s *SQLiteEventStore) query(ctx context.Context, query string, args ...any) ([]api.WorkflowEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.WorkflowEvent
	for rows.Next() {
		var (
			ev  api.WorkflowEvent
			atN int64
			typ string
		)
		if err := rows.Scan(&ev.InstanceID, &atN, &typ, &ev.WorkflowName, &ev.Step, &ev.Detail, &ev.Artifact); err != nil {
			return nil, err
		}
		ev.At = time.Unix(0, atN)
		ev.Type = api.EventType(typ)
		out = append(out, ev)
	}
	return out, rows.Err()
}
