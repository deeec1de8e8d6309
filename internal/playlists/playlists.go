// Package playlists stores static and smart playlists in playlists.db.
//
// Membership is kept as track URIs: ids change when a file is rescanned,
// URIs do not. The core store is attached as "music" so memberships can be
// resolved to track ids.
package playlists

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/franz/lollydb/internal/collection"
	"github.com/franz/lollydb/internal/migrate"
	"github.com/franz/lollydb/internal/smart"
	"github.com/franz/lollydb/internal/sqlcursor"
)

const coreAlias = "music"

var createSchema = []string{
	`CREATE TABLE playlists (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		synced INT NOT NULL DEFAULT 0,
		smart_enabled INT NOT NULL DEFAULT 0,
		smart_sql TEXT,
		smart_rules TEXT,
		uri TEXT,
		mtime BIGINT NOT NULL
	)`,
	`CREATE TABLE tracks (
		playlist_id INT NOT NULL,
		uri TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX idx_playlist_tracks ON tracks(playlist_id, uri)`,
}

func addColumn(table, column, decl string) migrate.Step {
	return migrate.Callback(func(ctx context.Context, q sqlcursor.Queryer) error {
		return migrate.AddColumn(ctx, q, table, column, decl)
	})
}

var steps = []migrate.Step{
	addColumn("playlists", "synced", "INT NOT NULL DEFAULT 0"),
	addColumn("playlists", "smart_enabled", "INT NOT NULL DEFAULT 0"),
	addColumn("playlists", "smart_sql", "TEXT"),
	addColumn("playlists", "uri", "TEXT"),
	addColumn("playlists", "smart_rules", "TEXT"),
	migrate.SQL(`
		DELETE FROM tracks WHERE rowid NOT IN
			(SELECT MIN(rowid) FROM tracks GROUP BY playlist_id, uri);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_playlist_tracks ON tracks(playlist_id, uri);
	`),
}

// Options configures Open
type Options struct {
	Path     string
	CorePath string
	Strict   bool
}

// Playlists is the playlists database
type Playlists struct {
	m *sqlcursor.Manager

	// Upgrade describes what Open did to the schema
	Upgrade *migrate.Result
}

// Playlist is a row of the playlists table
type Playlist struct {
	ID           int64
	Name         string
	Synced       int64
	SmartEnabled bool
	SmartSQL     string
	URI          string
	Mtime        int64
}

// Open opens, creates or upgrades the playlists database
func Open(ctx context.Context, opts Options) (*Playlists, error) {
	m, err := sqlcursor.Open(sqlcursor.Options{
		Name:   "playlists",
		Path:   opts.Path,
		Attach: map[string]string{coreAlias: opts.CorePath},
	})
	if err != nil {
		return nil, err
	}
	u := &migrate.Upgrader{Probe: "playlists", Create: createSchema, Steps: steps, Strict: opts.Strict}
	result, err := u.Run(ctx, m)
	if err != nil {
		m.Close()
		return nil, err
	}
	return &Playlists{m: m, Upgrade: result}, nil
}

// Version returns the latest playlists schema version
func Version() int {
	return len(steps)
}

// Close closes the database
func (p *Playlists) Close() error {
	return p.m.Close()
}

// Vacuum rebuilds the database file
func (p *Playlists) Vacuum(ctx context.Context) error {
	return p.m.Vacuum(ctx)
}

func (p *Playlists) touch(ctx context.Context, q sqlcursor.Queryer, id int64) error {
	_, err := q.ExecContext(ctx, "UPDATE playlists SET mtime = ? WHERE id = ?", time.Now().Unix(), id)
	return err
}

// Add creates a playlist, or returns the id of the playlist with that name
func (p *Playlists) Add(ctx context.Context, name string) (int64, error) {
	var id int64
	err := p.m.Write(ctx, func(q sqlcursor.Queryer) error {
		err := q.QueryRowContext(ctx, "SELECT id FROM playlists WHERE name = ?", name).Scan(&id)
		if err == nil || !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		res, err := q.ExecContext(ctx,
			"INSERT INTO playlists (name, mtime) VALUES (?, ?)", name, time.Now().Unix())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add playlist %q: %w", name, err)
	}
	return id, nil
}

// Remove deletes a playlist and its tracks
func (p *Playlists) Remove(ctx context.Context, id int64) error {
	return p.m.Write(ctx, func(q sqlcursor.Queryer) error {
		if _, err := q.ExecContext(ctx, "DELETE FROM tracks WHERE playlist_id = ?", id); err != nil {
			return err
		}
		_, err := q.ExecContext(ctx, "DELETE FROM playlists WHERE id = ?", id)
		return err
	})
}

// Rename changes the playlist name
func (p *Playlists) Rename(ctx context.Context, id int64, name string) error {
	return p.m.Write(ctx, func(q sqlcursor.Queryer) error {
		if _, err := q.ExecContext(ctx, "UPDATE playlists SET name = ? WHERE id = ?", name, id); err != nil {
			return err
		}
		return p.touch(ctx, q, id)
	})
}

// GetID returns the id of the named playlist, or 0
func (p *Playlists) GetID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := p.m.Read(ctx, func(q sqlcursor.Queryer) error {
		return scanOptional(q.QueryRowContext(ctx, "SELECT id FROM playlists WHERE name = ?", name), &id)
	})
	return id, err
}

// Get returns one playlist, or nil
func (p *Playlists) Get(ctx context.Context, id int64) (*Playlist, error) {
	all, err := p.list(ctx, "WHERE id = ?", id)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return &all[0], nil
}

// GetAll returns every playlist by name
func (p *Playlists) GetAll(ctx context.Context) ([]Playlist, error) {
	return p.list(ctx, "")
}

// GetSynced returns playlists with an export target
func (p *Playlists) GetSynced(ctx context.Context) ([]Playlist, error) {
	return p.list(ctx, "WHERE ifnull(uri, '') != ''")
}

func (p *Playlists) list(ctx context.Context, where string, args ...any) ([]Playlist, error) {
	var out []Playlist
	err := p.m.Read(ctx, func(q sqlcursor.Queryer) error {
		rows, err := q.QueryContext(ctx, `
			SELECT id, name, synced, smart_enabled, ifnull(smart_sql, ''), ifnull(uri, ''), mtime
			FROM playlists `+where+` ORDER BY name COLLATE LOCALIZED, id`, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var pl Playlist
			if err := rows.Scan(&pl.ID, &pl.Name, &pl.Synced, &pl.SmartEnabled, &pl.SmartSQL, &pl.URI, &pl.Mtime); err != nil {
				return err
			}
			out = append(out, pl)
		}
		return rows.Err()
	})
	return out, err
}

// SetURI sets the export target of a playlist, "" disables export
func (p *Playlists) SetURI(ctx context.Context, id int64, uri string) error {
	return p.m.Write(ctx, func(q sqlcursor.Queryer) error {
		_, err := q.ExecContext(ctx, "UPDATE playlists SET uri = ? WHERE id = ?", uri, id)
		return err
	})
}

// SetSynced sets the per-device sync bitmask
func (p *Playlists) SetSynced(ctx context.Context, id int64, synced int64) error {
	return p.m.Write(ctx, func(q sqlcursor.Queryer) error {
		_, err := q.ExecContext(ctx, "UPDATE playlists SET synced = ? WHERE id = ?", synced, id)
		return err
	})
}

// AddURIs appends tracks, ignoring URIs already present
func (p *Playlists) AddURIs(ctx context.Context, id int64, uris []string) error {
	return p.m.Write(ctx, func(q sqlcursor.Queryer) error {
		for _, uri := range uris {
			if _, err := q.ExecContext(ctx,
				"INSERT OR IGNORE INTO tracks (playlist_id, uri) VALUES (?, ?)", id, uri); err != nil {
				return err
			}
		}
		return p.touch(ctx, q, id)
	})
}

// RemoveURIs removes tracks from a playlist
func (p *Playlists) RemoveURIs(ctx context.Context, id int64, uris []string) error {
	return p.m.Write(ctx, func(q sqlcursor.Queryer) error {
		for _, uri := range uris {
			if _, err := q.ExecContext(ctx,
				"DELETE FROM tracks WHERE playlist_id = ? AND uri = ?", id, uri); err != nil {
				return err
			}
		}
		return p.touch(ctx, q, id)
	})
}

// Exists reports whether uri belongs to the playlist
func (p *Playlists) Exists(ctx context.Context, id int64, uri string) (bool, error) {
	var n int
	err := p.m.Read(ctx, func(q sqlcursor.Queryer) error {
		return q.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM tracks WHERE playlist_id = ? AND uri = ?", id, uri).Scan(&n)
	})
	return n > 0, err
}

// GetTrackURIs returns the playlist URIs in insertion order
func (p *Playlists) GetTrackURIs(ctx context.Context, id int64) ([]string, error) {
	var uris []string
	err := p.m.Read(ctx, func(q sqlcursor.Queryer) error {
		rows, err := q.QueryContext(ctx,
			"SELECT uri FROM tracks WHERE playlist_id = ? ORDER BY rowid", id)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var uri string
			if err := rows.Scan(&uri); err != nil {
				return err
			}
			uris = append(uris, uri)
		}
		return rows.Err()
	})
	return uris, err
}

// GetTrackIDs resolves the playlist URIs against the core store. URIs the
// core store does not know are skipped.
func (p *Playlists) GetTrackIDs(ctx context.Context, id int64) ([]int64, error) {
	var ids []int64
	err := p.m.Read(ctx, func(q sqlcursor.Queryer) error {
		rows, err := q.QueryContext(ctx, `
			SELECT core.id FROM tracks AS member
			JOIN music.tracks AS core ON core.uri = member.uri
			WHERE member.playlist_id = ?
			ORDER BY member.rowid
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var trackID int64
			if err := rows.Scan(&trackID); err != nil {
				return err
			}
			ids = append(ids, trackID)
		}
		return rows.Err()
	})
	return ids, err
}

// SetSmart compiles rs and stores both the rules and their SQL
func (p *Playlists) SetSmart(ctx context.Context, id int64, rs smart.RuleSet) error {
	q, err := smart.Compile(rs)
	if err != nil {
		return err
	}
	rules, err := rs.Encode()
	if err != nil {
		return err
	}
	return p.m.Write(ctx, func(tx sqlcursor.Queryer) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE playlists SET smart_sql = ?, smart_rules = ?, smart_enabled = 1 WHERE id = ?",
			q.Literal(), string(rules), id)
		if err != nil {
			return err
		}
		return p.touch(ctx, tx, id)
	})
}

// SetSmartEnabled toggles whether a playlist is smart
func (p *Playlists) SetSmartEnabled(ctx context.Context, id int64, enabled bool) error {
	return p.m.Write(ctx, func(q sqlcursor.Queryer) error {
		_, err := q.ExecContext(ctx, "UPDATE playlists SET smart_enabled = ? WHERE id = ?", enabled, id)
		return err
	})
}

// GetSmartRules returns the stored rule set, or nil when none is stored
func (p *Playlists) GetSmartRules(ctx context.Context, id int64) (*smart.RuleSet, error) {
	var raw string
	err := p.m.Read(ctx, func(q sqlcursor.Queryer) error {
		return scanOptional(q.QueryRowContext(ctx,
			"SELECT ifnull(smart_rules, '') FROM playlists WHERE id = ?", id), &raw)
	})
	if err != nil || raw == "" {
		return nil, err
	}
	rs, err := smart.ParseRules([]byte(raw))
	if err != nil {
		return nil, err
	}
	return &rs, nil
}

// GetSmartTrackIDs runs the stored smart SQL against the core tracks. A
// playlist without smart SQL yields nothing.
func (p *Playlists) GetSmartTrackIDs(ctx context.Context, id int64, tracks *collection.Tracks, limit int) ([]int64, error) {
	pl, err := p.Get(ctx, id)
	if err != nil || pl == nil || !pl.SmartEnabled || pl.SmartSQL == "" {
		return nil, err
	}
	return tracks.ExecuteSQL(ctx, pl.SmartSQL, limit)
}

// UpdateURI replaces a track URI in every playlist
func (p *Playlists) UpdateURI(ctx context.Context, oldURI, newURI string) (int64, error) {
	var n int64
	err := p.m.Write(ctx, func(q sqlcursor.Queryer) error {
		res, err := q.ExecContext(ctx, "UPDATE OR REPLACE tracks SET uri = ? WHERE uri = ?", newURI, oldURI)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// scanOptional scans row into dest, leaving dest untouched when there is no row
func scanOptional(row *sql.Row, dest any) error {
	if err := row.Scan(dest); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return nil
}
