// Package sqlcursor hands out database handles with scoped acquisition.
//
// A Manager owns one logical SQLite database. Short operations acquire a
// pooled connection, run, and release it; writes run inside a transaction
// guarded by the manager's write lock, so only one writer commits at a time.
// Bulk operations open a long scope with Add: every Acquire made with the
// returned context borrows the scope's transaction instead of opening its
// own, and Remove commits it.
package sqlcursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/franz/lollydb/internal/util"
	_ "modernc.org/sqlite" // SQLite driver
)

const defaultMaxOpenConns = 8

var aliasRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Queryer is the subset of *sql.DB, *sql.Conn and *sql.Tx used by accessors
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Options configures a Manager
type Options struct {
	// Name identifies the logical database in logs and errors
	Name string
	// Path is the database file; its directory must exist
	Path string
	// Attach maps an alias to another database file attached on every connection
	Attach map[string]string
	// MaxOpenConns bounds the pool, default 8
	MaxOpenConns int
}

// Manager owns the connection pool of one logical database
type Manager struct {
	name    string
	path    string
	db      *sql.DB
	attach  map[string]string
	aliases []string
	writeMu sync.Mutex
	closed  atomic.Bool
}

// Open opens or creates the database file. A file that cannot be opened is
// reported as a *util.StoreError wrapping util.ErrStoreUnavailable.
func Open(opts Options) (*Manager, error) {
	if err := registerFunctions(); err != nil {
		return nil, fmt.Errorf("failed to register sqlite functions: %w", err)
	}

	storeErr := func(err error) error {
		return &util.StoreError{Name: opts.Name, Path: opts.Path, Err: err}
	}

	if opts.Path == "" {
		return nil, storeErr(errors.New("empty path"))
	}
	if info, err := os.Stat(filepath.Dir(opts.Path)); err != nil {
		return nil, storeErr(err)
	} else if !info.IsDir() {
		return nil, storeErr(fmt.Errorf("%s is not a directory", filepath.Dir(opts.Path)))
	}

	aliases := make([]string, 0, len(opts.Attach))
	for alias := range opts.Attach {
		if !aliasRe.MatchString(alias) {
			return nil, fmt.Errorf("%w: invalid attach alias %q", util.ErrInvalidConfig, alias)
		}
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	dsn := (&url.URL{
		Scheme:   "file",
		Path:     opts.Path,
		RawQuery: "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
	}).String()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storeErr(err)
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storeErr(err)
	}

	util.DebugLog("Opened %s database: %s", opts.Name, opts.Path)
	return &Manager{
		name:    opts.Name,
		path:    opts.Path,
		db:      db,
		attach:  opts.Attach,
		aliases: aliases,
	}, nil
}

// Name returns the logical database name
func (m *Manager) Name() string {
	return m.name
}

// Path returns the database file path
func (m *Manager) Path() string {
	return m.path
}

// DB returns the underlying pool for statements that cannot run in a
// transaction. Prefer Read and Write.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Close closes the pool
func (m *Manager) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	return m.db.Close()
}

// conn takes a pooled connection and attaches the configured databases
func (m *Manager) conn(ctx context.Context) (*sql.Conn, error) {
	if m.closed.Load() {
		return nil, util.ErrClosed
	}
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get connection: %w", m.name, err)
	}
	if len(m.aliases) == 0 {
		return conn, nil
	}

	attached, err := attachedNames(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	for _, alias := range m.aliases {
		if attached[alias] {
			continue
		}
		// alias is validated in Open, the path is bound
		if _, err := conn.ExecContext(ctx, "ATTACH DATABASE ? AS "+alias, m.attach[alias]); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: failed to attach %s: %w", m.name, alias, err)
		}
	}
	return conn, nil
}

func attachedNames(ctx context.Context, conn *sql.Conn) (map[string]bool, error) {
	rows, err := conn.QueryContext(ctx, "SELECT name FROM pragma_database_list")
	if err != nil {
		return nil, fmt.Errorf("failed to list attached databases: %w", err)
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[name] = true
	}
	return names, rows.Err()
}

// Vacuum rebuilds the database file. It waits for the write lock and cannot
// run inside a long scope.
func (m *Manager) Vacuum(ctx context.Context) error {
	if scopeFrom(ctx, m) != nil {
		return fmt.Errorf("%s: vacuum inside a transaction scope", m.name)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	conn, err := m.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("%s: vacuum failed: %w", m.name, err)
	}
	return nil
}

// CheckIntegrity runs PRAGMA integrity_check on the database
func (m *Manager) CheckIntegrity(ctx context.Context) error {
	var result string
	err := m.Read(ctx, func(q Queryer) error {
		return q.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result)
	})
	if err != nil {
		return fmt.Errorf("%s: integrity check query failed: %w", m.name, err)
	}
	if result != "ok" {
		return fmt.Errorf("%s: integrity check failed: %s", m.name, result)
	}
	return nil
}

// SQLiteVersion returns the version of the embedded SQLite library
func SQLiteVersion() string {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return ""
	}
	defer db.Close()

	var version string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		return ""
	}
	return version
}
