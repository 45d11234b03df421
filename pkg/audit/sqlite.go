package audit

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteRecorder stores entries in a SQLite database, one row per
// execution. Schema changes go through embedded migrations.
type SQLiteRecorder struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the audit database at path and
// applies pending migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRecorder, error) {
	if path == "" {
		return nil, fmt.Errorf("audit database path is required")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteRecorder{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	dbDriver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Record implements Recorder.
func (r *SQLiteRecorder) Record(ctx context.Context, e *Entry) error {
	params, err := json.Marshal(e.Params)
	if err != nil {
		return fmt.Errorf("encode audit params: %w", err)
	}

	query := `
		INSERT INTO audit_entries (run_id, host, action_id, params, check_mode, success, err_kind, err_msg, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		e.RunID,
		e.Host,
		e.ActionID,
		string(params),
		e.Check,
		e.Success,
		e.ErrKind,
		e.ErrMsg,
		e.StartedAt.UTC(),
		e.EndedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List implements Recorder, newest first. limit <= 0 returns all.
func (r *SQLiteRecorder) List(ctx context.Context, limit int) ([]*Entry, error) {
	query := `
		SELECT run_id, host, action_id, params, check_mode, success, err_kind, err_msg, started_at, ended_at
		FROM audit_entries
		ORDER BY ended_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		e := &Entry{}
		var params string
		if err := rows.Scan(&e.RunID, &e.Host, &e.ActionID, &params, &e.Check, &e.Success, &e.ErrKind, &e.ErrMsg, &e.StartedAt, &e.EndedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &e.Params); err != nil {
			return nil, fmt.Errorf("decode audit params: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// Close implements Recorder.
func (r *SQLiteRecorder) Close() error { return r.db.Close() }
