package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the todo forest and its vector index.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "tasknest.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for components sharing the database
// (the vector store keeps its table in the same file).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping runs a trivial probe against the todos table. Used by the readiness
// endpoint.
func (s *Store) Ping(ctx context.Context) error {
	var n int
	return s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM todos").Scan(&n)
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// querier is the subset of *sql.DB / *sql.Tx used by row helpers.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

const todoColumns = "id, parent_id, title, reason, priority, status, deadline, created_at, updated_at"

// CreateTodo validates and inserts a single todo, assigning its id.
// Priority and status default to medium/pending when empty.
func (s *Store) CreateTodo(t Todo) (Todo, error) {
	return insertTodo(s.db, t)
}

func insertTodo(q querier, t Todo) (Todo, error) {
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if err := validateTodo(t); err != nil {
		return Todo{}, err
	}

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	var deadline any
	if t.Deadline != nil {
		deadline = t.Deadline.UTC().Format(time.RFC3339)
	}
	var parentID any
	if t.ParentID != nil {
		parentID = *t.ParentID
	}
	var reason any
	if t.Reason != nil {
		reason = *t.Reason
	}

	res, err := q.Exec(`
		INSERT INTO todos (parent_id, title, reason, priority, status, deadline, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		parentID, t.Title, reason, t.Priority, t.Status, deadline,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Todo{}, fmt.Errorf("inserting todo: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Todo{}, fmt.Errorf("reading inserted id: %w", err)
	}
	t.ID = id
	return t, nil
}

// GetTodo returns the todo with the given id, or ErrNotFound.
func (s *Store) GetTodo(id int64) (Todo, error) {
	row := s.db.QueryRow("SELECT "+todoColumns+" FROM todos WHERE id = ?", id)
	t, err := scanTodo(row)
	if err == sql.ErrNoRows {
		return Todo{}, ErrNotFound
	}
	if err != nil {
		return Todo{}, err
	}
	return t, nil
}

// UpdateTodo applies the non-nil fields of p to the todo with the given id
// and refreshes updated_at. Fields absent from the patch are left untouched.
func (s *Store) UpdateTodo(id int64, p Patch) (Todo, error) {
	current, err := s.GetTodo(id)
	if err != nil {
		return Todo{}, err
	}

	if p.Title != nil {
		current.Title = *p.Title
	}
	if p.Reason != nil {
		current.Reason = p.Reason
	}
	if p.Priority != nil {
		current.Priority = *p.Priority
	}
	if p.Status != nil {
		current.Status = *p.Status
	}
	if p.Deadline != nil {
		current.Deadline = p.Deadline
	}
	if err := validateTodo(current); err != nil {
		return Todo{}, err
	}

	now := time.Now().UTC()
	current.UpdatedAt = now

	var deadline any
	if current.Deadline != nil {
		deadline = current.Deadline.UTC().Format(time.RFC3339)
	}
	var reason any
	if current.Reason != nil {
		reason = *current.Reason
	}

	res, err := s.db.Exec(`
		UPDATE todos SET title = ?, reason = ?, priority = ?, status = ?, deadline = ?, updated_at = ?
		WHERE id = ?`,
		current.Title, reason, current.Priority, current.Status, deadline,
		now.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return Todo{}, fmt.Errorf("updating todo %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Todo{}, err
	}
	if n == 0 {
		return Todo{}, ErrNotFound
	}
	return current, nil
}

// DeleteTodo removes the todo with the given id. Children are not cascaded;
// they become orphans and surface as roots in tree assembly.
func (s *Store) DeleteTodo(id int64) error {
	res, err := s.db.Exec("DELETE FROM todos WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting todo %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTodos returns todos matching the filter, ordered by id ascending
// (insertion order).
func (s *Store) ListTodos(f Filter) ([]Todo, error) {
	query := "SELECT " + todoColumns + " FROM todos"
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		conds = append(conds, "priority = ?")
		args = append(args, f.Priority)
	}
	if f.DueBefore != nil {
		conds = append(conds, "deadline IS NOT NULL AND deadline <= ?")
		args = append(args, f.DueBefore.UTC().Format(time.RFC3339))
	}
	if f.DueAfter != nil {
		conds = append(conds, "deadline IS NOT NULL AND deadline >= ?")
		args = append(args, f.DueAfter.UTC().Format(time.RFC3339))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing todos: %w", err)
	}
	defer rows.Close()

	var results []Todo
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// Tx exposes todo creation inside a transaction. Used by the bulk
// generated-forest save so a mid-walk failure persists nothing.
type Tx struct {
	tx *sql.Tx
}

// CreateTodo inserts a todo within the transaction, assigning its id.
func (t *Tx) CreateTodo(todo Todo) (Todo, error) {
	return insertTodo(t.tx, todo)
}

// InTransaction runs fn inside a single transaction, committing on nil and
// rolling back on error.
func (s *Store) InTransaction(fn func(tx *Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(&Tx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTodo(row scanner) (Todo, error) {
	var t Todo
	var parentID sql.NullInt64
	var reason sql.NullString
	var deadline sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&t.ID, &parentID, &t.Title, &reason, &t.Priority, &t.Status, &deadline, &createdAt, &updatedAt)
	if err != nil {
		return Todo{}, err
	}

	if parentID.Valid {
		v := parentID.Int64
		t.ParentID = &v
	}
	if reason.Valid {
		v := reason.String
		t.Reason = &v
	}
	if deadline.Valid && deadline.String != "" {
		d, err := time.Parse(time.RFC3339, deadline.String)
		if err != nil {
			return Todo{}, fmt.Errorf("parsing deadline: %w", err)
		}
		t.Deadline = &d
	}
	if t.CreatedAt, err = parseStoredTime(createdAt); err != nil {
		return Todo{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.UpdatedAt, err = parseStoredTime(updatedAt); err != nil {
		return Todo{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return t, nil
}

// parseStoredTime accepts both second and sub-second precision timestamps.
// updated_at is written with nanosecond precision so repeated patches within
// the same second still strictly increase it.
func parseStoredTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
