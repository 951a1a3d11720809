package persistence

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
)

// SQLiteInstanceStore is an InstanceStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteInstanceStore struct {
	db *sql.DB
}

// Ensure SQLiteInstanceStore implements InstanceStore.
var _ InstanceStore = (*SQLiteInstanceStore)(nil)

// NewSQLiteInstanceStore initializes the required schema in the given
// database and returns a new SQLiteInstanceStore.
func NewSQLiteInstanceStore(db *sql.DB) (*SQLiteInstanceStore, error) {
	s := &SQLiteInstanceStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteInstanceStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflow_runs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			workflow_name TEXT NOT NULL,
			status TEXT NOT NULL,
			current_step INTEGER NOT NULL,
			work_dir TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL DEFAULT 0,
			finished_at INTEGER NOT NULL DEFAULT 0,
			artifacts BLOB,
			removed BLOB,
			error TEXT
		);`,
	)
	return err
}

type encodedRun struct {
	artifacts []byte
	removed   []byte
	errStr    string
}

func encodeRun(inst *api.WorkflowInstance) (encodedRun, error) {
	artifacts, err := EncodeValue(inst.Artifacts)
	if err != nil {
		return encodedRun{}, err
	}
	removed, err := EncodeValue(inst.Removed)
	if err != nil {
		return encodedRun{}, err
	}
	errStr := ""
	if inst.Err != nil {
		errStr = inst.Err.Error()
	}
	return encodedRun{artifacts: artifacts, removed: removed, errStr: errStr}, nil
}

func (s *SQLiteInstanceStore) SaveInstance(inst *api.WorkflowInstance) error {
	enc, err := encodeRun(inst)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO workflow_runs (id, workflow_name, status, current_step, work_dir, started_at, finished_at, artifacts, removed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID,
		inst.Name,
		string(inst.Status),
		inst.CurrentStep,
		inst.WorkDir,
		encodeTime(inst.StartedAt),
		encodeTime(inst.FinishedAt),
		enc.artifacts,
		enc.removed,
		enc.errStr,
	)
	return err
}

func (s *SQLiteInstanceStore) UpdateInstance(inst *api.WorkflowInstance) error {
	enc, err := encodeRun(inst)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE workflow_runs
		SET workflow_name = ?, status = ?, current_step = ?, work_dir = ?, started_at = ?, finished_at = ?,
		    artifacts = ?, removed = ?, error = ?
		WHERE id = ?`,
		inst.Name,
		string(inst.Status),
		inst.CurrentStep,
		inst.WorkDir,
		encodeTime(inst.StartedAt),
		encodeTime(inst.FinishedAt),
		enc.artifacts,
		enc.removed,
		enc.errStr,
		inst.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInstanceNotFound
	}

	return nil
}

const selectRuns = `
		SELECT id, workflow_name, status, current_step, work_dir, started_at, finished_at, artifacts, removed, error
		FROM workflow_runs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*api.WorkflowInstance, error) {
	var (
		inst               api.WorkflowInstance
		statusStr          string
		started, finished  int64
		artifacts, removed []byte
		errStr             sql.NullString
	)
	if err := row.Scan(&inst.ID, &inst.Name, &statusStr, &inst.CurrentStep, &inst.WorkDir,
		&started, &finished, &artifacts, &removed, &errStr); err != nil {
		return nil, err
	}

	inst.Status = api.Status(statusStr)
	inst.StartedAt = decodeTime(started)
	inst.FinishedAt = decodeTime(finished)

	var err error
	if inst.Artifacts, err = DecodeValue[api.Artifact](artifacts); err != nil {
		return nil, err
	}
	if inst.Removed, err = DecodeValue[string](removed); err != nil {
		return nil, err
	}

	if errStr.Valid && errStr.String != "" {
		inst.Err = errors.New(errStr.String)
	}
	return &inst, nil
}

func (s *SQLiteInstanceStore) GetInstance(id string) (*api.WorkflowInstance, error) {
	inst, err := scanRun(s.db.QueryRow(selectRuns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInstanceNotFound
	}
	return inst, err
}

func (s *SQLiteInstanceStore) ListInstances(filter InstanceFilter) ([]*api.WorkflowInstance, error) {
	query := selectRuns
	var args []any
	var clauses []string

	if filter.WorkflowName != "" {
		clauses = append(clauses, "workflow_name = ?")
		args = append(args, filter.WorkflowName)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*api.WorkflowInstance
	for rows.Next() {
		inst, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return instances, nil
}
