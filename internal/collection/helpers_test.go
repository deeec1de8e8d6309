package collection

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/franz/lollydb/internal/sqlcursor"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(context.Background(), Options{Path: filepath.Join(t.TempDir(), "lollypop.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func mustAddArtist(t *testing.T, db *Database, name string) int64 {
	t.Helper()
	id, err := db.Artists.Add(context.Background(), name, "", "")
	require.NoError(t, err)
	return id
}

func mustAddAlbum(t *testing.T, db *Database, in AlbumInput) int64 {
	t.Helper()
	id, err := db.Albums.Add(context.Background(), in)
	require.NoError(t, err)
	return id
}

func mustAddTrack(t *testing.T, db *Database, in TrackInput) int64 {
	t.Helper()
	id, err := db.Tracks.Add(context.Background(), in)
	require.NoError(t, err)
	return id
}

// tableCounts returns the row count of every core table
func tableCounts(t *testing.T, db *Database) map[string]int64 {
	t.Helper()
	ctx := context.Background()
	counts := make(map[string]int64)
	tables := []string{
		"albums", "artists", "genres", "tracks", "album_artists", "album_genres",
		"track_artists", "track_genres", "featuring", "albums_timed_popularity",
	}
	require.NoError(t, db.Manager().Read(ctx, func(q sqlcursor.Queryer) error {
		for _, table := range tables {
			var n int64
			if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
				return err
			}
			counts[table] = n
		}
		return nil
	}))
	return counts
}

// columnTypes maps every column of table to its declared type
func columnTypes(t *testing.T, m *sqlcursor.Manager, table string) map[string]string {
	t.Helper()
	ctx := context.Background()
	cols := make(map[string]string)
	require.NoError(t, m.Read(ctx, func(q sqlcursor.Queryer) error {
		rows, err := q.QueryContext(ctx, "SELECT name, type FROM pragma_table_info(?)", table)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name, typ string
			if err := rows.Scan(&name, &typ); err != nil {
				return err
			}
			cols[name] = typ
		}
		return rows.Err()
	}))
	return cols
}
