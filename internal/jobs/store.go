package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"comic2kindle/internal/config"
)

// ErrIllegalTransition is returned when an update would move a job backward
// through the state machine or mutate a terminal job.
var ErrIllegalTransition = errors.New("illegal status transition")

// Store manages conversion job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the jobs database and verifies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "jobs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the filesystem location of the jobs database.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// NewJob inserts a pending conversion job and returns the stored record.
func (s *Store) NewJob(ctx context.Context, job *Job) (*Job, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}
	if job.SessionID == "" {
		return nil, errors.New("session id required")
	}
	if len(job.FileIDs) == 0 {
		return nil, errors.New("at least one source file required")
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = StatusPending
	}
	if job.OutputFormat == "" {
		job.OutputFormat = FormatEPUB
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO conversion_jobs (
            id, session_id, file_ids_json, merge, max_volume_bytes, output_format,
            naming_template, options_json, metadata_json, status, progress,
            current_file, output_files_json, warnings_json, error_message,
            error_kind, created_at, updated_at, completed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.SessionID,
		encodeStrings(job.FileIDs),
		boolToInt(job.Merge),
		job.MaxVolumeBytes,
		string(job.OutputFormat),
		nullableString(job.NamingTemplate),
		nullableString(job.OptionsJSON),
		nullableString(job.MetadataJSON),
		job.Status,
		job.Progress,
		nullableString(job.CurrentFile),
		encodeStrings(job.OutputFiles),
		encodeStrings(job.Warnings),
		nullableString(job.ErrorMessage),
		nullableString(string(job.ErrorKind)),
		timestamp,
		timestamp,
		nullableTime(job.CompletedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.GetByID(ctx, job.ID)
}

// GetByID fetches a job by identifier. Returns nil when no job matches.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM conversion_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job. The transition guard rejects
// backward moves and mutation of terminal jobs, and progress never decreases.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentStatus string
	var currentProgress float64
	err = tx.QueryRowContext(ctx,
		`SELECT status, progress FROM conversion_jobs WHERE id = ?`, job.ID,
	).Scan(&currentStatus, &currentProgress)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update job %s: %w", job.ID, sql.ErrNoRows)
	}
	if err != nil {
		return fmt.Errorf("read current status: %w", err)
	}

	if !CanTransition(Status(currentStatus), job.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, currentStatus, job.Status)
	}
	if job.Progress < currentProgress {
		job.Progress = currentProgress
	}

	job.UpdatedAt = time.Now().UTC()
	_, err = tx.ExecContext(
		ctx,
		`UPDATE conversion_jobs
         SET status = ?, progress = ?, current_file = ?, output_files_json = ?,
             warnings_json = ?, error_message = ?, error_kind = ?, updated_at = ?,
             completed_at = ?, options_json = ?, metadata_json = ?
         WHERE id = ?`,
		job.Status,
		job.Progress,
		nullableString(job.CurrentFile),
		encodeStrings(job.OutputFiles),
		encodeStrings(job.Warnings),
		nullableString(job.ErrorMessage),
		nullableString(string(job.ErrorKind)),
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(job.CompletedAt),
		nullableString(job.OptionsJSON),
		nullableString(job.MetadataJSON),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

// List returns all jobs ordered newest first.
func (s *Store) List(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM conversion_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// BySession returns all jobs owned by a session, newest first.
func (s *Store) BySession(ctx context.Context, sessionID string) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM conversion_jobs WHERE session_id = ? ORDER BY created_at DESC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// DeleteBySession removes all job records owned by a session.
func (s *Store) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversion_jobs WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete session jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of jobs per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(1) FROM conversion_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// Health aggregates job counts into a lifecycle summary.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	summary := HealthSummary{}
	for status, count := range stats {
		summary.Total += count
		switch {
		case status == StatusPending:
			summary.Pending += count
		case status == StatusCompleted:
			summary.Completed += count
		case status == StatusFailed:
			summary.Failed += count
		default:
			summary.Processing += count
		}
	}
	return summary, nil
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var items []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		items = append(items, job)
	}
	return items, rows.Err()
}
