// Package history keeps listening statistics in history.db.
//
// Rows are keyed by track name and duration in seconds rather than track
// id, so statistics survive a track being removed and ingested again.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/franz/lollydb/internal/migrate"
	"github.com/franz/lollydb/internal/sqlcursor"
	"github.com/franz/lollydb/internal/util"
)

var createSchema = []string{
	`CREATE TABLE history (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		duration INT NOT NULL,
		ltime INT NOT NULL,
		popularity INT NOT NULL,
		rate INT NOT NULL DEFAULT 0,
		loved INT NOT NULL DEFAULT 0,
		mtime INT NOT NULL,
		album_rate INT NOT NULL DEFAULT 0,
		album_loved INT NOT NULL DEFAULT 0,
		album_popularity INT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX idx_history_key ON history(name, duration)`,
}

func addColumn(column, decl string) migrate.Step {
	return migrate.Callback(func(ctx context.Context, q sqlcursor.Queryer) error {
		return migrate.AddColumn(ctx, q, "history", column, decl)
	})
}

var steps = []migrate.Step{
	addColumn("loved", "INT NOT NULL DEFAULT 0"),
	addColumn("rate", "INT NOT NULL DEFAULT 0"),
	migrate.Callback(func(ctx context.Context, q sqlcursor.Queryer) error {
		for _, col := range []string{"album_rate", "album_loved", "album_popularity"} {
			if err := migrate.AddColumn(ctx, q, "history", col, "INT NOT NULL DEFAULT 0"); err != nil {
				return err
			}
		}
		return nil
	}),
	migrate.SQL(`UPDATE history SET loved = 2 WHERE loved = -1`),
	migrate.SQL(`CREATE INDEX IF NOT EXISTS idx_history_key ON history(name, duration)`),
}

// Options configures Open
type Options struct {
	Path string
	// Limit caps the number of rows; the oldest rows are pruned past it
	Limit  int
	Strict bool
}

// History is the listening history database
type History struct {
	m     *sqlcursor.Manager
	limit int

	// Upgrade describes what Open did to the schema
	Upgrade *migrate.Result
}

// Entry is the saved state of one track
type Entry struct {
	Name string
	// Duration in seconds
	Duration        int64
	Ltime           int64
	Popularity      int64
	Rate            int
	Loved           int64
	Mtime           int64
	AlbumRate       int
	AlbumLoved      int64
	AlbumPopularity int64
}

// Open opens, creates or upgrades the history database
func Open(ctx context.Context, opts Options) (*History, error) {
	m, err := sqlcursor.Open(sqlcursor.Options{Name: "history", Path: opts.Path})
	if err != nil {
		return nil, err
	}
	u := &migrate.Upgrader{Probe: "history", Create: createSchema, Steps: steps, Strict: opts.Strict}
	result, err := u.Run(ctx, m)
	if err != nil {
		m.Close()
		return nil, err
	}
	return &History{m: m, limit: opts.Limit, Upgrade: result}, nil
}

// Version returns the latest history schema version
func Version() int {
	return len(steps)
}

// Close closes the database
func (h *History) Close() error {
	return h.m.Close()
}

// Vacuum rebuilds the database file
func (h *History) Vacuum(ctx context.Context) error {
	return h.m.Vacuum(ctx)
}

// Add saves e, replacing the row with the same name and duration. When the
// row count exceeds the limit the oldest rows are pruned and the file is
// vacuumed.
func (h *History) Add(ctx context.Context, e Entry) error {
	if e.Mtime == 0 {
		e.Mtime = time.Now().Unix()
	}
	var count int
	err := h.m.Write(ctx, func(q sqlcursor.Queryer) error {
		res, err := q.ExecContext(ctx, `
			UPDATE history SET ltime = ?, popularity = ?, rate = ?, loved = ?, mtime = ?,
				album_rate = ?, album_loved = ?, album_popularity = ?
			WHERE name = ? AND duration = ?
		`, e.Ltime, e.Popularity, e.Rate, e.Loved, e.Mtime,
			e.AlbumRate, e.AlbumLoved, e.AlbumPopularity, e.Name, e.Duration)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO history (name, duration, ltime, popularity, rate, loved, mtime,
					album_rate, album_loved, album_popularity)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, e.Name, e.Duration, e.Ltime, e.Popularity, e.Rate, e.Loved, e.Mtime,
				e.AlbumRate, e.AlbumLoved, e.AlbumPopularity); err != nil {
				return err
			}
		}
		return q.QueryRowContext(ctx, "SELECT COUNT(*) FROM history").Scan(&count)
	})
	if err != nil {
		return fmt.Errorf("history: failed to save %q: %w", e.Name, err)
	}

	if h.limit > 0 && count > h.limit {
		return h.prune(ctx, count-h.limit)
	}
	return nil
}

func (h *History) prune(ctx context.Context, n int) error {
	err := h.m.Write(ctx, func(q sqlcursor.Queryer) error {
		_, err := q.ExecContext(ctx,
			"DELETE FROM history WHERE id IN (SELECT id FROM history ORDER BY mtime, id LIMIT ?)", n)
		return err
	})
	if err != nil {
		return fmt.Errorf("history: prune failed: %w", err)
	}
	util.DebugLog("history: pruned %d rows", n)
	if err := h.m.Vacuum(ctx); err != nil {
		util.WarnLog("history: vacuum failed: %v", err)
	}
	return nil
}

// Get returns the entry for a track, or nil when none is saved
func (h *History) Get(ctx context.Context, name string, duration int64) (*Entry, error) {
	e := &Entry{Name: name, Duration: duration}
	err := h.m.Read(ctx, func(q sqlcursor.Queryer) error {
		return q.QueryRowContext(ctx, `
			SELECT ltime, popularity, rate, loved, mtime, album_rate, album_loved, album_popularity
			FROM history WHERE name = ? AND duration = ?
			ORDER BY mtime DESC LIMIT 1
		`, name, duration).Scan(&e.Ltime, &e.Popularity, &e.Rate, &e.Loved, &e.Mtime,
			&e.AlbumRate, &e.AlbumLoved, &e.AlbumPopularity)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Remove deletes the entry of a track
func (h *History) Remove(ctx context.Context, name string, duration int64) error {
	return h.m.Write(ctx, func(q sqlcursor.Queryer) error {
		_, err := q.ExecContext(ctx, "DELETE FROM history WHERE name = ? AND duration = ?", name, duration)
		return err
	})
}

// Count returns the number of saved entries
func (h *History) Count(ctx context.Context) (int64, error) {
	var n int64
	err := h.m.Read(ctx, func(q sqlcursor.Queryer) error {
		return q.QueryRowContext(ctx, "SELECT COUNT(*) FROM history").Scan(&n)
	})
	return n, err
}

// Recent returns the most recently saved entries
func (h *History) Recent(ctx context.Context, limit int) ([]Entry, error) {
	var out []Entry
	err := h.m.Read(ctx, func(q sqlcursor.Queryer) error {
		rows, err := q.QueryContext(ctx, `
			SELECT name, duration, ltime, popularity, rate, loved, mtime,
				album_rate, album_loved, album_popularity
			FROM history ORDER BY mtime DESC, id DESC LIMIT ?
		`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e Entry
			if err := rows.Scan(&e.Name, &e.Duration, &e.Ltime, &e.Popularity, &e.Rate, &e.Loved,
				&e.Mtime, &e.AlbumRate, &e.AlbumLoved, &e.AlbumPopularity); err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}
