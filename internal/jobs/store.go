package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"solarimager/internal/models"
)

// ErrNotFound is returned when no job has the requested id.
var ErrNotFound = errors.New("job not found")

// Store keeps job history in SQLite.
type Store struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// OpenStore opens (creating if needed) the job database at path.
func OpenStore(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open job database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate job database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		progress REAL DEFAULT 0,
		message TEXT DEFAULT '',
		error TEXT DEFAULT '',
		params TEXT DEFAULT '',
		result TEXT DEFAULT '',
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_started_at ON jobs(started_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_kind ON jobs(kind);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Save inserts or replaces a job record.
func (s *Store) Save(job models.Job) error {
	params, err := marshalField(job.Params)
	if err != nil {
		return fmt.Errorf("failed to encode job params: %w", err)
	}
	result, err := marshalField(job.Result)
	if err != nil {
		return fmt.Errorf("failed to encode job result: %w", err)
	}
	var finished interface{}
	if job.FinishedAt != nil {
		finished = job.FinishedAt.UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.conn.Exec(`
		INSERT INTO jobs (id, kind, status, progress, message, error, params, result, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			message = excluded.message,
			error = excluded.error,
			result = excluded.result,
			finished_at = excluded.finished_at`,
		job.ID, string(job.Kind), string(job.Status), job.Progress, job.Message, job.Error,
		params, result, job.StartedAt.UTC(), finished)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// Get loads one job by id.
func (s *Store) Get(id string) (models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.conn.QueryRow(`
		SELECT id, kind, status, progress, message, error, params, result, started_at, finished_at
		FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job, err
}

// List returns up to limit jobs, newest first. limit <= 0 means 50.
func (s *Store) List(limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.conn.Query(`
		SELECT id, kind, status, progress, message, error, params, result, started_at, finished_at
		FROM jobs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (models.Job, error) {
	var (
		job            models.Job
		kind, status   string
		params, result string
		finished       sql.NullTime
	)
	if err := row.Scan(&job.ID, &kind, &status, &job.Progress, &job.Message, &job.Error,
		&params, &result, &job.StartedAt, &finished); err != nil {
		return models.Job{}, err
	}
	job.Kind = models.JobKind(kind)
	job.Status = models.JobStatus(status)
	if finished.Valid {
		t := finished.Time
		job.FinishedAt = &t
	}
	if params != "" {
		if err := json.Unmarshal([]byte(params), &job.Params); err != nil {
			return models.Job{}, fmt.Errorf("failed to decode params of job %s: %w", job.ID, err)
		}
	}
	if result != "" {
		var v interface{}
		if err := json.Unmarshal([]byte(result), &v); err != nil {
			return models.Job{}, fmt.Errorf("failed to decode result of job %s: %w", job.ID, err)
		}
		job.Result = v
	}
	return job, nil
}

func marshalField(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return "", nil
	}
	return string(b), nil
}
