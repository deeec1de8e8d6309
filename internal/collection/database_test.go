package collection

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/franz/lollydb/internal/sqlcursor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenNewInstallStampsLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lollypop.db")
	ctx := context.Background()

	db, err := Open(ctx, Options{Path: path})
	require.NoError(t, err)
	assert.True(t, db.Upgrade.Created)
	assert.Equal(t, Version(), db.Upgrade.To)
	assert.Empty(t, db.Upgrade.Applied)
	require.NoError(t, db.Close())

	db, err = Open(ctx, Options{Path: path})
	require.NoError(t, err)
	defer db.Close()
	assert.False(t, db.Upgrade.Created)
	assert.Equal(t, Version(), db.Upgrade.From)
	assert.Empty(t, db.Upgrade.Applied)
	assert.Empty(t, db.Upgrade.Failed)
}

// seedCleanable leaves something for every Clean statement to remove
func seedCleanable(t *testing.T, db *Database) {
	t.Helper()
	ctx := context.Background()

	kept := mustAddArtist(t, db, "Kept")
	mustAddArtist(t, db, "Orphan")
	rock, err := db.Genres.Add(ctx, "Rock")
	require.NoError(t, err)
	_, err = db.Genres.Add(ctx, "Unused")
	require.NoError(t, err)

	album := mustAddAlbum(t, db, AlbumInput{Name: "Kept", ArtistIDs: []int64{kept}, URI: "file:///kept"})
	require.NoError(t, db.Albums.AddGenre(ctx, album, rock))
	mustAddTrack(t, db, TrackInput{Name: "Song", URI: "file:///kept/1", AlbumID: album, ArtistIDs: []int64{kept}, GenreIDs: []int64{rock}})

	empty := mustAddAlbum(t, db, AlbumInput{Name: "Empty", ArtistIDs: []int64{kept}, URI: "file:///empty"})
	require.NoError(t, db.Albums.AddGenre(ctx, empty, rock))
	mustAddAlbum(t, db, AlbumInput{Name: "Saved", URI: "file:///saved", StorageType: StorageSaved})

	old := time.Now().Add(-2 * timedPopularityWindow).Unix()
	require.NoError(t, db.Manager().Write(ctx, func(q sqlcursor.Queryer) error {
		_, err := q.ExecContext(ctx,
			"INSERT INTO albums_timed_popularity (album_id, mtime, popularity) VALUES (?, ?, 1), (?, ?, 1)",
			album, old, album, time.Now().Unix())
		return err
	}))
}

func TestCleanIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedCleanable(t, db)

	first, err := db.Clean(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Albums, "empty collection album")
	assert.Equal(t, int64(1), first.Artists, "orphan artist")
	assert.Equal(t, int64(1), first.Genres, "unused genre")
	assert.Equal(t, int64(2), first.Links, "links of the empty album")
	assert.Equal(t, int64(1), first.TimedPopularity)

	after := tableCounts(t, db)
	assert.Equal(t, int64(2), after["albums"], "saved albums survive without tracks")

	second, err := db.Clean(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Total())
	assert.Equal(t, after, tableCounts(t, db))
}

func TestDropEmptiesEveryTable(t *testing.T) {
	db := openTestDB(t)
	seedCleanable(t, db)

	require.NoError(t, db.Drop(context.Background()))
	for table, n := range tableCounts(t, db) {
		assert.Zero(t, n, table)
	}
	require.NoError(t, db.Vacuum(context.Background()))
}

func TestLongScopeBatchesWrites(t *testing.T) {
	db := openTestDB(t)
	ctx, err := db.Manager().Add(context.Background())
	require.NoError(t, err)

	artist, err := db.Artists.Add(ctx, "Scoped", "", "")
	require.NoError(t, err)
	album, err := db.Albums.Add(ctx, AlbumInput{Name: "Scoped", ArtistIDs: []int64{artist}, URI: "file:///s"})
	require.NoError(t, err)
	_, err = db.Tracks.Add(ctx, TrackInput{Name: "T", URI: "file:///s/t", AlbumID: album, ArtistIDs: []int64{artist}})
	require.NoError(t, err)
	require.NoError(t, db.Artists.UpdateFeaturing(ctx))

	// the scope reads its own uncommitted rows
	id, err := db.Tracks.GetIDByURI(ctx, "file:///s/t")
	require.NoError(t, err)
	assert.NotZero(t, id)

	require.NoError(t, db.Manager().Remove(ctx))
	assert.Equal(t, int64(1), tableCounts(t, db)["tracks"])
}
