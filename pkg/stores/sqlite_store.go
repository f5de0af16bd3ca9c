package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/alejandrobarreracorrea/cloudscan/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists runs, result envelopes, and task events in SQLite.
// It implements both engine.Storage and engine.EventPublisher.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveRun inserts or updates a run record. The scheduler saves the same run
// at start and at completion.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *engine.Run) error {
	regions, err := json.Marshal(run.Regions)
	if err != nil {
		return fmt.Errorf("failed to marshal regions: %w", err)
	}
	counters, err := json.Marshal(run.Counters)
	if err != nil {
		return fmt.Errorf("failed to marshal counters: %w", err)
	}
	taskErrors, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}

	query := `
		INSERT INTO runs (id, status, regions, counters, errors, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			counters = excluded.counters,
			errors = excluded.errors,
			completed_at = excluded.completed_at
	`

	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		string(run.Status),
		string(regions),
		string(counters),
		string(taskErrors),
		run.StartedAt,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*engine.Run, error) {
	query := `
		SELECT id, status, regions, counters, errors, started_at, completed_at
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns lists runs with pagination, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*engine.Run, error) {
	query := `
		SELECT id, status, regions, counters, errors, started_at, completed_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*engine.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// DeleteRun deletes a run and, through the foreign keys, its envelopes and
// events.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// SaveEnvelope persists one result envelope. Re-executing the same operation
// in the same run replaces the earlier row.
func (s *SQLiteStore) SaveEnvelope(ctx context.Context, runID string, env *engine.ResultEnvelope) error {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	inferred, err := json.Marshal(env.InferredParams)
	if err != nil {
		return fmt.Errorf("failed to marshal inferred params: %w", err)
	}

	var errorCode, errorMessage *string
	if env.Error != nil {
		errorCode = &env.Error.Code
		errorMessage = &env.Error.Message
	}

	query := `
		INSERT INTO envelopes (
			run_id, namespace, region, operation,
			success, paginated, not_available,
			error_code, error_message, payload, inferred_params, executed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, namespace, region, operation) DO UPDATE SET
			success = excluded.success,
			paginated = excluded.paginated,
			not_available = excluded.not_available,
			error_code = excluded.error_code,
			error_message = excluded.error_message,
			payload = excluded.payload,
			inferred_params = excluded.inferred_params,
			executed_at = excluded.executed_at
	`

	_, err = s.db.ExecContext(ctx, query,
		runID,
		env.Namespace,
		env.Region,
		env.Operation,
		env.Success,
		env.Paginated,
		env.NotAvailable,
		errorCode,
		errorMessage,
		string(payload),
		string(inferred),
		env.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save envelope: %w", err)
	}

	return nil
}

// ListEnvelopes returns every envelope persisted for a run, in insertion
// order.
func (s *SQLiteStore) ListEnvelopes(ctx context.Context, runID string) ([]engine.ResultEnvelope, error) {
	query := `
		SELECT namespace, region, operation,
			   success, paginated, not_available,
			   error_code, error_message, payload, inferred_params, executed_at
		FROM envelopes
		WHERE run_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list envelopes: %w", err)
	}
	defer rows.Close()

	envelopes := []engine.ResultEnvelope{}
	for rows.Next() {
		var env engine.ResultEnvelope
		var errorCode, errorMessage sql.NullString
		var payload, inferred string
		err := rows.Scan(
			&env.Namespace,
			&env.Region,
			&env.Operation,
			&env.Success,
			&env.Paginated,
			&env.NotAvailable,
			&errorCode,
			&errorMessage,
			&payload,
			&inferred,
			&env.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan envelope: %w", err)
		}

		if errorCode.Valid || errorMessage.Valid {
			env.Error = &engine.EnvelopeError{
				Code:    errorCode.String,
				Message: errorMessage.String,
			}
		}
		if payload != "" && payload != "null" {
			if err := json.Unmarshal([]byte(payload), &env.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}
		if inferred != "" && inferred != "null" {
			if err := json.Unmarshal([]byte(inferred), &env.InferredParams); err != nil {
				return nil, fmt.Errorf("failed to unmarshal inferred params: %w", err)
			}
		}

		envelopes = append(envelopes, env)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating envelopes: %w", err)
	}

	return envelopes, nil
}

// Publish appends a task event. The scheduler treats publishing as
// best-effort, so this never panics on a closed store.
func (s *SQLiteStore) Publish(ctx context.Context, event *engine.Event) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO events (run_id, type, namespace, region, level, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.RunID,
		string(event.Type),
		event.Namespace,
		event.Region,
		event.Level,
		event.Message,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// ListEvents retrieves the events of a run in chronological order.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string, limit, offset int) ([]engine.Event, error) {
	query := `
		SELECT run_id, type, namespace, region, level, message, timestamp
		FROM events
		WHERE run_id = ?
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []engine.Event{}
	for rows.Next() {
		var event engine.Event
		var eventType string
		err := rows.Scan(
			&event.RunID,
			&eventType,
			&event.Namespace,
			&event.Region,
			&event.Level,
			&event.Message,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Type = engine.EventType(eventType)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*engine.Run, error) {
	var run engine.Run
	var status, regions, counters, taskErrors string
	var completedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&status,
		&regions,
		&counters,
		&taskErrors,
		&run.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = engine.RunStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(regions), &run.Regions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal regions: %w", err)
	}
	if err := json.Unmarshal([]byte(counters), &run.Counters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal counters: %w", err)
	}
	if taskErrors != "" && taskErrors != "null" {
		if err := json.Unmarshal([]byte(taskErrors), &run.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal errors: %w", err)
		}
	}

	return &run, nil
}
