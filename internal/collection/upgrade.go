package collection

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/franz/lollydb/internal/localized"
	"github.com/franz/lollydb/internal/migrate"
	"github.com/franz/lollydb/internal/sqlcursor"
)

// coreSteps is the schema history of the core store. Step i upgrades
// version i to i+1; never reorder or remove entries.
var coreSteps = []migrate.Step{
	// 1: albums.path becomes a URI
	migrate.Callback(func(ctx context.Context, q sqlcursor.Queryer) error {
		return rebuildWithURI(ctx, q, "albums", "path", `
			CREATE TABLE albums_new (
				id INTEGER PRIMARY KEY,
				name TEXT NOT NULL,
				no_album_artist BOOLEAN NOT NULL,
				year INT,
				uri TEXT NOT NULL,
				popularity INT NOT NULL,
				mtime INT NOT NULL,
				synced INT NOT NULL
			)`,
			"id, name, no_album_artist, year, path, popularity, mtime, synced")
	}),
	// 2: tracks.filepath becomes a URI
	migrate.Callback(func(ctx context.Context, q sqlcursor.Queryer) error {
		return rebuildWithURI(ctx, q, "tracks", "filepath", `
			CREATE TABLE tracks_new (
				id INTEGER PRIMARY KEY,
				name TEXT NOT NULL,
				uri TEXT NOT NULL,
				duration INT,
				tracknumber INT,
				discnumber INT,
				album_id INT NOT NULL,
				year INT,
				popularity INT NOT NULL,
				ltime INT NOT NULL,
				mtime INT NOT NULL
			)`,
			"id, name, filepath, duration, tracknumber, discnumber, album_id, year, popularity, ltime, mtime")
	}),
	// 3
	addColumn("albums", "rate", "INT NOT NULL DEFAULT 0"),
	// 4
	addColumn("tracks", "rate", "INT NOT NULL DEFAULT 0"),
	// 5
	addColumn("albums", "loved", "INT NOT NULL DEFAULT 0"),
	// 6
	addColumn("tracks", "loved", "INT NOT NULL DEFAULT 0"),
	// 7: durations were stored in seconds
	migrate.SQL(`UPDATE tracks SET duration = duration * 1000 WHERE duration IS NOT NULL`),
	// 8
	addColumn("artists", "mb_artist_id", "TEXT"),
	// 9
	addColumn("albums", "mb_album_id", "TEXT"),
	// 10
	addColumn("tracks", "mb_track_id", "TEXT"),
	// 11
	addColumn("tracks", "discname", "TEXT"),
	// 12
	migrate.Callback(func(ctx context.Context, q sqlcursor.Queryer) error {
		if err := migrate.AddColumn(ctx, q, "albums", "timestamp", "INT"); err != nil {
			return err
		}
		return migrate.AddColumn(ctx, q, "tracks", "timestamp", "INT")
	}),
	// 13
	migrate.SQL(`CREATE TABLE IF NOT EXISTS featuring (
		artist_id INT NOT NULL,
		album_id INT NOT NULL
	)`),
	// 14
	migrate.Callback(updateFeaturing),
	// 15
	migrate.SQL(`CREATE TABLE IF NOT EXISTS albums_timed_popularity (
		album_id INT NOT NULL,
		mtime INT NOT NULL,
		popularity INT NOT NULL
	)`),
	// 16: existing rows are local files
	addColumn("albums", "storage_type", "INT NOT NULL DEFAULT 2"),
	// 17
	addColumn("tracks", "storage_type", "INT NOT NULL DEFAULT 2"),
	// 18: loved was 0 / 1 / -1, now a bitmask where -1 (skipped) is LovedSkipped
	migrate.SQL(`
		UPDATE albums SET loved = 2 WHERE loved = -1;
		UPDATE tracks SET loved = 2 WHERE loved = -1;
	`),
	// 19
	addColumn("tracks", "bpm", "DOUBLE"),
	// 20
	migrate.Callback(func(ctx context.Context, q sqlcursor.Queryer) error {
		if err := migrate.AddColumn(ctx, q, "albums", "lp_album_id", "TEXT"); err != nil {
			return err
		}
		return migrate.AddColumn(ctx, q, "tracks", "lp_track_id", "TEXT")
	}),
	// 21
	migrate.Callback(backfillLpIDs),
	// 22: empty sortnames are derived from names
	migrate.Callback(backfillSortnames),
	// 23: join tables get unique indexes, drop duplicates first
	migrate.Callback(func(ctx context.Context, q sqlcursor.Queryer) error {
		for _, t := range []struct{ table, a, b string }{
			{"album_artists", "album_id", "artist_id"},
			{"album_genres", "album_id", "genre_id"},
			{"track_artists", "track_id", "artist_id"},
			{"track_genres", "track_id", "genre_id"},
		} {
			stmt := fmt.Sprintf(`DELETE FROM %[1]s WHERE rowid NOT IN
				(SELECT MIN(rowid) FROM %[1]s GROUP BY %[2]s, %[3]s)`, t.table, t.a, t.b)
			if _, err := q.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		_, err := q.ExecContext(ctx, createIndexes)
		return err
	}),
}

func addColumn(table, column, decl string) migrate.Step {
	return migrate.Callback(func(ctx context.Context, q sqlcursor.Queryer) error {
		return migrate.AddColumn(ctx, q, table, column, decl)
	})
}

func upgrader(strict bool) *migrate.Upgrader {
	return &migrate.Upgrader{
		Probe:  "albums",
		Create: createSchema,
		Steps:  coreSteps,
		Strict: strict,
	}
}

// PathToURI converts a filesystem path to a file URI
func PathToURI(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

// rebuildWithURI copies table into a new layout whose uri column replaces
// pathColumn, converting every path with PathToURI
func rebuildWithURI(ctx context.Context, q sqlcursor.Queryer, table, pathColumn, create, columns string) error {
	if _, err := q.ExecContext(ctx, create); err != nil {
		return err
	}
	insert := fmt.Sprintf("INSERT INTO %s_new SELECT %s FROM %s", table, columns, table)
	if _, err := q.ExecContext(ctx, insert); err != nil {
		return err
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT id, uri FROM %s_new", table))
	if err != nil {
		return err
	}
	paths := make(map[int64]string)
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			rows.Close()
			return err
		}
		paths[id] = path
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	update := fmt.Sprintf("UPDATE %s_new SET uri = ? WHERE id = ?", table)
	for id, path := range paths {
		if _, err := q.ExecContext(ctx, update, PathToURI(path), id); err != nil {
			return err
		}
	}

	if _, err := q.ExecContext(ctx, "DROP TABLE "+table); err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s_new RENAME TO %s", table, table))
	return err
}

type nameKey struct {
	id   int64
	name string
	aux  string
}

func backfillLpIDs(ctx context.Context, q sqlcursor.Queryer) error {
	albums, err := namesWithAux(ctx, q, `SELECT id, name, '' FROM albums`)
	if err != nil {
		return err
	}
	for _, a := range albums {
		artists, err := artistNames(ctx, q, `
			SELECT artists.name FROM artists
			JOIN album_artists ON album_artists.artist_id = artists.id
			WHERE album_artists.album_id = ? ORDER BY artists.id`, a.id)
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `UPDATE albums SET lp_album_id = ? WHERE id = ?`,
			localized.LpAlbumID(a.name, artists), a.id); err != nil {
			return err
		}
	}

	tracks, err := namesWithAux(ctx, q, `
		SELECT tracks.id, tracks.name, albums.name FROM tracks
		JOIN albums ON albums.id = tracks.album_id`)
	if err != nil {
		return err
	}
	for _, t := range tracks {
		artists, err := artistNames(ctx, q, `
			SELECT artists.name FROM artists
			JOIN track_artists ON track_artists.artist_id = artists.id
			WHERE track_artists.track_id = ? ORDER BY artists.id`, t.id)
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `UPDATE tracks SET lp_track_id = ? WHERE id = ?`,
			localized.LpTrackID(t.name, t.aux, artists), t.id); err != nil {
			return err
		}
	}
	return nil
}

func backfillSortnames(ctx context.Context, q sqlcursor.Queryer) error {
	artists, err := namesWithAux(ctx, q, `SELECT id, name, '' FROM artists WHERE sortname = ''`)
	if err != nil {
		return err
	}
	for _, a := range artists {
		if _, err := q.ExecContext(ctx, `UPDATE artists SET sortname = ? WHERE id = ?`,
			localized.FormatArtistName(a.name), a.id); err != nil {
			return err
		}
	}
	return nil
}

func namesWithAux(ctx context.Context, q sqlcursor.Queryer, query string) ([]nameKey, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []nameKey
	for rows.Next() {
		var k nameKey
		if err := rows.Scan(&k.id, &k.name, &k.aux); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func artistNames(ctx context.Context, q sqlcursor.Queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// URIToPath returns the filesystem path of a file URI. Other URIs are
// returned unchanged with ok false.
func URIToPath(uri string) (path string, ok bool) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri, false
	}
	return filepath.FromSlash(u.Path), true
}
