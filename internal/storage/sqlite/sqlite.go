package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"github.com/mistakeknot/tasksync/internal/core"
	"github.com/mistakeknot/tasksync/internal/ownerkey"
	"github.com/mistakeknot/tasksync/internal/storage"
)

//go:embed schema.sql
var schema string

var _ storage.Store = (*Store)(nil)

// Store is the durable Local Store. It holds a single connection so every
// write transaction is serialized.
type Store struct {
	db  dbHandle
	log *log.Logger
}

type Option func(*Store)

func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New opens (or creates) the database at path.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragmas: %w", err)
	}
	return newStore(db, opts)
}

// NewInMemory opens a private in-memory database.
func NewInMemory(opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// each connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	return newStore(db, opts)
}

func newStore(db *sql.DB, opts []Option) (*Store, error) {
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{log: log.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.db = &queryLogger{inner: db, log: s.log}
	return s, nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &core.StorageError{Op: op, Err: err}
}

const upsertTaskSQL = `INSERT INTO tasks (uuid, email, status, project, data, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(uuid) DO UPDATE SET email=excluded.email, status=excluded.status,
		project=excluded.project, data=excluded.data, updated_at=excluded.updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertTask(ctx context.Context, ex execer, t core.Task) error {
	if t.UUID == "" {
		return fmt.Errorf("task uuid required")
	}
	if t.Annotations != nil {
		t.Annotations = core.FilterAnnotations(t.Annotations)
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", t.UUID, err)
	}
	_, err = ex.ExecContext(ctx, upsertTaskSQL,
		t.UUID, core.NormalizeEmail(t.Email), string(t.Status), t.Project, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", t.UUID, err)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) UpsertMany(ctx context.Context, tasks []core.Task) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, t := range tasks {
			if err := upsertTask(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
	return storageErr("upsert many", err)
}

func (s *Store) ReplaceOwner(ctx context.Context, email string, tasks []core.Task) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE email = ?`, core.NormalizeEmail(email)); err != nil {
			return fmt.Errorf("clear owner: %w", err)
		}
		for _, t := range tasks {
			t.Email = email
			if err := upsertTask(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
	return storageErr("replace owner", err)
}

func (s *Store) UpsertOne(ctx context.Context, task core.Task) error {
	return storageErr("upsert", upsertTask(ctx, s.db, task))
}

func (s *Store) Get(ctx context.Context, uuid string) (core.Task, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM tasks WHERE uuid = ?`, uuid).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Task{}, false, nil
	}
	if err != nil {
		return core.Task{}, false, storageErr("get", err)
	}
	var t core.Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return core.Task{}, false, storageErr("get", fmt.Errorf("decode task %s: %w", uuid, err))
	}
	return t, true, nil
}

func (s *Store) QueryByOwnerAndStatus(ctx context.Context, email string, status core.Status) ([]core.Task, error) {
	email = core.NormalizeEmail(email)
	if status == "" {
		return s.queryTasks(ctx, "query", `SELECT data FROM tasks WHERE email = ? ORDER BY uuid`, email)
	}
	return s.queryTasks(ctx, "query", `SELECT data FROM tasks WHERE email = ? AND status = ? ORDER BY uuid`, email, string(status))
}

func (s *Store) QueryByOwnerAndProject(ctx context.Context, email, project string) ([]core.Task, error) {
	return s.queryTasks(ctx, "query", `SELECT data FROM tasks WHERE email = ? AND project = ? ORDER BY uuid`,
		core.NormalizeEmail(email), project)
}

func (s *Store) queryTasks(ctx context.Context, op, query string, args ...any) ([]core.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	out := make([]core.Task, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, storageErr(op, fmt.Errorf("scan task: %w", err))
		}
		var t core.Task
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, storageErr(op, fmt.Errorf("decode task: %w", err))
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, fmt.Errorf("rows: %w", err))
	}
	return out, nil
}

func (s *Store) DeleteByOwner(ctx context.Context, email string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE email = ?`, core.NormalizeEmail(email))
	if err != nil {
		return 0, storageErr("delete owner", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("delete owner", err)
	}
	return int(n), nil
}

func (s *Store) Count(ctx context.Context, email string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE email = ?`, core.NormalizeEmail(email)).Scan(&n); err != nil {
		return 0, storageErr("count", err)
	}
	return n, nil
}

func (s *Store) Pinned(ctx context.Context, email string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_uuid FROM pinned_tasks WHERE owner_key = ? ORDER BY task_uuid`,
		ownerkey.Derive(ownerkey.PurposePinnedTasks, email))
	if err != nil {
		return nil, storageErr("pinned", err)
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("pinned", err)
		}
		out = append(out, id)
	}
	return out, storageErr("pinned", rows.Err())
}

func (s *Store) SetPinned(ctx context.Context, email, uuid string, pinned bool) error {
	key := ownerkey.Derive(ownerkey.PurposePinnedTasks, email)
	var err error
	if pinned {
		_, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO pinned_tasks (owner_key, task_uuid, pinned_at) VALUES (?, ?, ?)`,
			key, uuid, time.Now().UTC().Format(time.RFC3339Nano))
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM pinned_tasks WHERE owner_key = ? AND task_uuid = ?`, key, uuid)
	}
	return storageErr("set pinned", err)
}

func (s *Store) LastSync(ctx context.Context, email string) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT last_sync_at FROM sync_state WHERE owner_key = ?`,
		ownerkey.Derive(ownerkey.PurposeLastSync, email)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, storageErr("last sync", err)
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, storageErr("last sync", err)
	}
	return at, nil
}

func (s *Store) SetLastSync(ctx context.Context, email string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_state (owner_key, last_sync_at) VALUES (?, ?)
		 ON CONFLICT(owner_key) DO UPDATE SET last_sync_at=excluded.last_sync_at`,
		ownerkey.Derive(ownerkey.PurposeLastSync, email), at.UTC().Format(time.RFC3339Nano))
	return storageErr("set last sync", err)
}
