// Package migrate upgrades a database schema through an ordered list of
// steps. The stored PRAGMA user_version is the only checkpoint: step i
// upgrades version i-1 to i, and the latest version is len(Steps).
package migrate

import (
	"context"
	"fmt"

	"github.com/franz/lollydb/internal/sqlcursor"
	"github.com/franz/lollydb/internal/util"
)

// Step is either a literal SQL script or a callback. Exactly one is set.
type Step struct {
	SQL string
	Fn  func(ctx context.Context, q sqlcursor.Queryer) error
}

// SQL returns a step executing stmt
func SQL(stmt string) Step {
	return Step{SQL: stmt}
}

// Callback returns a step running fn inside the step transaction
func Callback(fn func(ctx context.Context, q sqlcursor.Queryer) error) Step {
	return Step{Fn: fn}
}

func (s Step) apply(ctx context.Context, q sqlcursor.Queryer) error {
	switch {
	case s.Fn != nil:
		return s.Fn(ctx, q)
	case s.SQL != "":
		_, err := q.ExecContext(ctx, s.SQL)
		return err
	default:
		return nil
	}
}

// StepError reports a failed step
type StepError struct {
	Database string
	Version  int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: upgrade step %d failed: %v", e.Database, e.Version, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Upgrader describes the schema history of one database
type Upgrader struct {
	// Create is the latest schema, run once on new installations
	Create []string
	// Steps upgrades version i to i+1 at index i
	Steps []Step
	// Probe is a table whose absence marks a new installation
	Probe string
	// Strict aborts on the first failing step and leaves the stored version
	// untouched. Otherwise failures are logged, skipped, and the latest
	// version is still stamped: the stored version is a ceiling, not proof
	// that every step succeeded.
	Strict bool
}

// Result describes what Run did
type Result struct {
	From    int
	To      int
	Created bool
	Applied []int
	Failed  []*StepError
}

// Version returns the latest schema version
func (u *Upgrader) Version() int {
	return len(u.Steps)
}

// Run creates or upgrades the database managed by m
func (u *Upgrader) Run(ctx context.Context, m *sqlcursor.Manager) (*Result, error) {
	latest := u.Version()

	var version int
	var exists bool
	err := m.Read(ctx, func(q sqlcursor.Queryer) error {
		var err error
		if version, err = CurrentVersion(ctx, q); err != nil {
			return err
		}
		exists, err = tableExists(ctx, q, u.Probe)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read schema version: %w", m.Name(), err)
	}

	result := &Result{From: version, To: version}

	if !exists {
		err := m.Write(ctx, func(q sqlcursor.Queryer) error {
			for _, stmt := range u.Create {
				if _, err := q.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			return SetVersion(ctx, q, latest)
		})
		if err != nil {
			return nil, fmt.Errorf("%s: failed to create schema: %w", m.Name(), err)
		}
		util.DebugLog("%s: created schema at version %d", m.Name(), latest)
		result.Created = true
		result.To = latest
		return result, nil
	}

	if version >= latest {
		return result, nil
	}

	util.InfoLog("%s: upgrading schema from version %d to %d", m.Name(), version, latest)
	for v := version + 1; v <= latest; v++ {
		step := u.Steps[v-1]
		err := m.Write(ctx, func(q sqlcursor.Queryer) error {
			return step.apply(ctx, q)
		})
		if err != nil {
			stepErr := &StepError{Database: m.Name(), Version: v, Err: err}
			if u.Strict {
				util.ErrorLog("%v", stepErr)
				return result, stepErr
			}
			util.WarnLog("%v", stepErr)
			result.Failed = append(result.Failed, stepErr)
			continue
		}
		result.Applied = append(result.Applied, v)
	}

	err = m.Write(ctx, func(q sqlcursor.Queryer) error {
		return SetVersion(ctx, q, latest)
	})
	if err != nil {
		return result, fmt.Errorf("%s: failed to stamp version %d: %w", m.Name(), latest, err)
	}
	result.To = latest
	return result, nil
}

// CurrentVersion reads PRAGMA user_version
func CurrentVersion(ctx context.Context, q sqlcursor.Queryer) (int, error) {
	var version int
	err := q.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version)
	return version, err
}

// SetVersion writes PRAGMA user_version. PRAGMA takes no bound parameters;
// the value is formatted from an int.
func SetVersion(ctx context.Context, q sqlcursor.Queryer, version int) error {
	_, err := q.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
	return err
}

func tableExists(ctx context.Context, q sqlcursor.Queryer, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name=?
	`, name).Scan(&count)
	return count > 0, err
}

// HasColumn reports whether table has column, for steps guarding ALTER TABLE
func HasColumn(ctx context.Context, q sqlcursor.Queryer, table, column string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&count)
	return count > 0, err
}

// AddColumn runs ALTER TABLE ADD COLUMN unless the column exists. table and
// column come from step definitions, never from user input.
func AddColumn(ctx context.Context, q sqlcursor.Queryer, table, column, decl string) error {
	has, err := HasColumn(ctx, q, table, column)
	if err != nil || has {
		return err
	}
	_, err = q.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}
