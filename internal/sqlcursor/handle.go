package sqlcursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/franz/lollydb/internal/util"
)

var errAborted = errors.New("aborted")

// Handle is a scoped database handle. Release must be called exactly once.
type Handle struct {
	Queryer

	m        *Manager
	conn     *sql.Conn
	tx       *sql.Tx
	write    bool
	borrowed bool
}

// Borrowed reports whether the handle belongs to an enclosing scope, in which
// case Release neither commits nor closes anything
func (h *Handle) Borrowed() bool {
	return h.borrowed
}

// Acquire returns a handle on the database. When ctx carries a scope opened
// by Add on this manager, its transaction is returned and nothing new is
// opened. Otherwise a connection is taken from the pool; write handles also
// take the write lock and begin a transaction.
//
// The write lock is not reentrant: a write Acquire made while the same
// goroutine holds a write handle on this manager blocks forever. Callers that
// nest writes must open a scope with Add and pass its context down.
func (m *Manager) Acquire(ctx context.Context, write bool) (*Handle, error) {
	if s := scopeFrom(ctx, m); s != nil {
		return &Handle{Queryer: s.tx, m: m, write: write, borrowed: true}, nil
	}

	if write {
		m.writeMu.Lock()
	}

	conn, err := m.conn(ctx)
	if err != nil {
		if write {
			m.writeMu.Unlock()
		}
		return nil, err
	}

	if !write {
		return &Handle{Queryer: conn, m: m, conn: conn}, nil
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		conn.Close()
		m.writeMu.Unlock()
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", m.name, err)
	}
	return &Handle{Queryer: tx, m: m, conn: conn, tx: tx, write: true}, nil
}

// Release ends the handle. A write handle commits when opErr is nil and rolls
// back otherwise. The returned error is opErr, or the commit error.
func (h *Handle) Release(opErr error) error {
	if h.borrowed {
		return opErr
	}

	var err error
	if h.tx != nil {
		if opErr == nil {
			if cerr := h.tx.Commit(); cerr != nil {
				err = fmt.Errorf("%s: failed to commit: %w", h.m.name, cerr)
			}
		} else {
			h.tx.Rollback() //nolint:errcheck // rollback on error is intentional
		}
	}
	h.conn.Close()
	if h.write {
		h.m.writeMu.Unlock()
	}

	if opErr != nil {
		return opErr
	}
	return err
}

// Do runs fn with a handle and releases it on every exit path, including
// panics, which roll back
func (m *Manager) Do(ctx context.Context, write bool, fn func(q Queryer) error) error {
	h, err := m.Acquire(ctx, write)
	if err != nil {
		return err
	}

	released := false
	defer func() {
		if !released {
			h.Release(errAborted) //nolint:errcheck // panicking
		}
	}()

	err = fn(h)
	released = true
	return h.Release(err)
}

// Read runs fn on a read handle
func (m *Manager) Read(ctx context.Context, fn func(q Queryer) error) error {
	return m.Do(ctx, false, fn)
}

// Write runs fn inside a write transaction. fn must not call Write on this
// manager with a context lacking an Add scope; see Acquire.
func (m *Manager) Write(ctx context.Context, fn func(q Queryer) error) error {
	return m.Do(ctx, true, fn)
}

type scopeKey struct {
	m *Manager
}

type scope struct {
	mu   sync.Mutex
	m    *Manager
	conn *sql.Conn
	tx   *sql.Tx
	refs int
}

func scopeFrom(ctx context.Context, m *Manager) *scope {
	s, _ := ctx.Value(scopeKey{m}).(*scope)
	return s
}

// Add opens a long transaction scope and returns a context carrying it.
// Every Acquire made with that context reuses the scope's transaction.
// Nested Add calls on a context that already carries a scope only count a
// reference. The scope holds the write lock until the matching Remove.
func (m *Manager) Add(ctx context.Context) (context.Context, error) {
	if s := scopeFrom(ctx, m); s != nil {
		s.mu.Lock()
		s.refs++
		s.mu.Unlock()
		return ctx, nil
	}

	h, err := m.Acquire(ctx, true)
	if err != nil {
		return ctx, err
	}
	s := &scope{m: m, conn: h.conn, tx: h.tx, refs: 1}
	util.DebugLog("%s: long transaction opened", m.name)
	return context.WithValue(ctx, scopeKey{m}, s), nil
}

// Remove releases a scope opened by Add. The outermost Remove commits and
// closes the connection.
func (m *Manager) Remove(ctx context.Context) error {
	s := scopeFrom(ctx, m)
	if s == nil {
		return fmt.Errorf("%s: no transaction scope in context", m.name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs--
	if s.refs > 0 {
		return nil
	}
	if s.refs < 0 {
		return fmt.Errorf("%s: transaction scope already removed", m.name)
	}

	h := &Handle{m: m, conn: s.conn, tx: s.tx, write: true}
	err := h.Release(nil)
	util.DebugLog("%s: long transaction committed", m.name)
	return err
}

// Discard rolls back a scope opened by Add regardless of nesting
func (m *Manager) Discard(ctx context.Context) {
	s := scopeFrom(ctx, m)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs <= 0 {
		return
	}
	s.refs = 0
	h := &Handle{m: m, conn: s.conn, tx: s.tx, write: true}
	h.Release(errAborted) //nolint:errcheck // rollback
	util.WarnLog("%s: long transaction rolled back", m.name)
}
