// Package collection is the core music store: albums, artists, genres,
// tracks, their join tables and the timed popularity series.
package collection

import (
	"context"
	"fmt"
	"time"

	"github.com/franz/lollydb/internal/migrate"
	"github.com/franz/lollydb/internal/sqlcursor"
	"github.com/franz/lollydb/internal/util"
)

// timedPopularityWindow is how long albums_timed_popularity keeps snapshots
const timedPopularityWindow = 31 * 24 * time.Hour

// Options configures Open
type Options struct {
	Path string
	// ShowSortnames makes artist listings display sortnames
	ShowSortnames bool
	// Strict aborts the upgrade on the first failing step
	Strict bool
}

// Database is the core store with its accessors
type Database struct {
	m *sqlcursor.Manager

	Albums  *Albums
	Artists *Artists
	Genres  *Genres
	Tracks  *Tracks

	// Upgrade describes what Open did to the schema
	Upgrade *migrate.Result
}

// Open opens, creates or upgrades the core store
func Open(ctx context.Context, opts Options) (*Database, error) {
	m, err := sqlcursor.Open(sqlcursor.Options{Name: "core", Path: opts.Path})
	if err != nil {
		return nil, err
	}

	result, err := upgrader(opts.Strict).Run(ctx, m)
	if err != nil {
		m.Close()
		return nil, err
	}
	for _, f := range result.Failed {
		util.WarnLog("core: schema version %d may be incomplete: %v", f.Version, f.Err)
	}

	return &Database{
		m:       m,
		Albums:  &Albums{m: m},
		Artists: &Artists{m: m, showSortnames: opts.ShowSortnames},
		Genres:  &Genres{m: m},
		Tracks:  &Tracks{m: m},
		Upgrade: result,
	}, nil
}

// Version returns the latest core schema version
func Version() int {
	return len(coreSteps)
}

// Manager returns the connection manager, for long scopes
func (d *Database) Manager() *sqlcursor.Manager {
	return d.m
}

// Path returns the database file path
func (d *Database) Path() string {
	return d.m.Path()
}

// Close closes the store
func (d *Database) Close() error {
	return d.m.Close()
}

// Vacuum rebuilds the database file
func (d *Database) Vacuum(ctx context.Context) error {
	start := time.Now()
	if err := d.m.Vacuum(ctx); err != nil {
		return err
	}
	util.DebugLog("core: vacuum took %v", time.Since(start))
	return nil
}

// Drop deletes every row of every table, keeping the schema
func (d *Database) Drop(ctx context.Context) error {
	tables := []string{
		"album_artists", "album_genres", "track_artists", "track_genres",
		"featuring", "albums_timed_popularity", "tracks", "albums", "artists", "genres",
	}
	return d.m.Write(ctx, func(q sqlcursor.Queryer) error {
		for _, t := range tables {
			if _, err := q.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("failed to empty %s: %w", t, err)
			}
		}
		return nil
	})
}

// CleanResult counts the rows removed by Clean
type CleanResult struct {
	Albums          int64
	Artists         int64
	Genres          int64
	Links           int64
	TimedPopularity int64
	Featuring       int64
}

// Total returns the number of removed rows
func (r *CleanResult) Total() int64 {
	return r.Albums + r.Artists + r.Genres + r.Links + r.TimedPopularity + r.Featuring
}

// Clean removes albums without tracks, unreferenced artists and genres,
// dangling join rows, and timed popularity older than a month. A second
// Clean right after the first removes nothing.
func (d *Database) Clean(ctx context.Context) (*CleanResult, error) {
	result := &CleanResult{}
	cutoff := time.Now().Add(-timedPopularityWindow).Unix()

	steps := []struct {
		count *int64
		stmt  string
		args  []any
	}{
		{&result.Albums, `DELETE FROM albums
			WHERE albums.id NOT IN (SELECT tracks.album_id FROM tracks)
			AND albums.storage_type & ?`, []any{StorageCleanable}},
		{&result.Links, `DELETE FROM album_artists
			WHERE album_id NOT IN (SELECT id FROM albums)`, nil},
		{&result.Links, `DELETE FROM album_genres
			WHERE album_id NOT IN (SELECT id FROM albums)`, nil},
		{&result.Links, `DELETE FROM track_artists
			WHERE track_id NOT IN (SELECT id FROM tracks)`, nil},
		{&result.Links, `DELETE FROM track_genres
			WHERE track_id NOT IN (SELECT id FROM tracks)`, nil},
		{&result.Artists, `DELETE FROM artists
			WHERE id NOT IN (SELECT artist_id FROM album_artists)
			AND id NOT IN (SELECT artist_id FROM track_artists)`, nil},
		{&result.Genres, `DELETE FROM genres
			WHERE id NOT IN (SELECT genre_id FROM album_genres)
			AND id NOT IN (SELECT genre_id FROM track_genres)`, nil},
		{&result.Links, `DELETE FROM album_artists
			WHERE artist_id >= 0 AND artist_id NOT IN (SELECT id FROM artists)`, nil},
		{&result.Links, `DELETE FROM track_artists
			WHERE artist_id >= 0 AND artist_id NOT IN (SELECT id FROM artists)`, nil},
		{&result.Links, `DELETE FROM album_genres
			WHERE genre_id >= 0 AND genre_id NOT IN (SELECT id FROM genres)`, nil},
		{&result.Links, `DELETE FROM track_genres
			WHERE genre_id >= 0 AND genre_id NOT IN (SELECT id FROM genres)`, nil},
		{&result.TimedPopularity, `DELETE FROM albums_timed_popularity
			WHERE mtime < ? OR album_id NOT IN (SELECT id FROM albums)`, []any{cutoff}},
		{&result.Featuring, `DELETE FROM featuring
			WHERE album_id NOT IN (SELECT id FROM albums)
			OR artist_id NOT IN (SELECT id FROM artists)`, nil},
	}

	err := d.m.Write(ctx, func(q sqlcursor.Queryer) error {
		for _, s := range steps {
			res, err := q.ExecContext(ctx, s.stmt, s.args...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			*s.count += n
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("core: clean failed: %w", err)
	}

	if total := result.Total(); total > 0 {
		util.DebugLog("core: clean removed %d rows (%d albums, %d artists, %d genres)",
			total, result.Albums, result.Artists, result.Genres)
	}
	return result, nil
}
