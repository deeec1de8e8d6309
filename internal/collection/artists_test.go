package collection

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtistDisplayNameFollowsPreference(t *testing.T) {
	ctx := context.Background()
	for _, show := range []bool{false, true} {
		db, err := Open(ctx, Options{Path: filepath.Join(t.TempDir(), "lollypop.db"), ShowSortnames: show})
		require.NoError(t, err)

		artist := mustAddArtist(t, db, "The Cure")
		mustAddAlbum(t, db, AlbumInput{Name: "Disintegration", ArtistIDs: []int64{artist}, URI: "file:///d"})

		rows, err := db.Artists.Get(ctx, StorageCollection, nil)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Cure, The", rows[0].Sortname)
		if show {
			assert.Equal(t, "Cure, The", rows[0].Name)
		} else {
			assert.Equal(t, "The Cure", rows[0].Name)
		}
		require.NoError(t, db.Close())
	}
}

func TestArtistGetIDPrefersMusicBrainz(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	plain, err := db.Artists.Add(ctx, "Björk", "", "")
	require.NoError(t, err)
	tagged, err := db.Artists.Add(ctx, "Bjork", "", "mbid-1")
	require.NoError(t, err)

	id, err := db.Artists.GetID(ctx, "BJÖRK", "")
	require.NoError(t, err)
	assert.Equal(t, plain, id)

	id, err = db.Artists.GetID(ctx, "whatever", "mbid-1")
	require.NoError(t, err)
	assert.Equal(t, tagged, id)

	id, err = db.Artists.GetID(ctx, "Nobody", "")
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestUpdateFeaturingIsFullRecompute(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	lead := mustAddArtist(t, db, "Main")
	guest := mustAddArtist(t, db, "Guest")
	album := mustAddAlbum(t, db, AlbumInput{Name: "Duets", ArtistIDs: []int64{lead}, URI: "file:///duets"})
	track := mustAddTrack(t, db, TrackInput{Name: "Duet", URI: "file:///duets/1", AlbumID: album, ArtistIDs: []int64{lead, guest}})

	require.NoError(t, db.Artists.UpdateFeaturing(ctx))
	albums, err := db.Artists.GetFeaturing(ctx, []int64{guest}, StorageCollection)
	require.NoError(t, err)
	assert.Equal(t, []int64{album}, albums)
	albums, err = db.Artists.GetFeaturing(ctx, []int64{lead}, StorageCollection)
	require.NoError(t, err)
	assert.Empty(t, albums)

	require.NoError(t, db.Tracks.SetArtistIDs(ctx, track, []int64{lead}))
	require.NoError(t, db.Artists.UpdateFeaturing(ctx))
	assert.Zero(t, tableCounts(t, db)["featuring"])
}

func TestGenresCollapseEscapedVariants(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first, err := db.Genres.Add(ctx, "Alternative Rock")
	require.NoError(t, err)
	second, err := db.Genres.Add(ctx, "alternative-rock")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	album := mustAddAlbum(t, db, AlbumInput{Name: "OK Computer", URI: "file:///ok"})
	require.NoError(t, db.Albums.AddGenre(ctx, album, first))
	track := mustAddTrack(t, db, TrackInput{Name: "Airbag", URI: "file:///ok/1", AlbumID: album, GenreIDs: []int64{first}})

	rows, err := db.Genres.Get(ctx, StorageCollection)
	require.NoError(t, err)
	assert.Equal(t, []GenreRow{{ID: first, Name: "Alternative Rock"}}, rows)

	albums, err := db.Genres.GetAlbumIDs(ctx, first, StorageCollection)
	require.NoError(t, err)
	assert.Equal(t, []int64{album}, albums)
	tracks, err := db.Genres.GetTrackIDs(ctx, first, StorageCollection)
	require.NoError(t, err)
	assert.Equal(t, []int64{track}, tracks)
}

func TestWebGenreSelectsWebAlbums(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	mustAddAlbum(t, db, AlbumInput{Name: "Local", URI: "file:///l"})
	web := mustAddAlbum(t, db, AlbumInput{Name: "New", URI: "https://example.org/n", StorageType: StorageSpotifyNewReleases})

	ids, err := db.Albums.GetIDs(ctx, Filter{GenreIDs: []int64{TypeWeb}})
	require.NoError(t, err)
	assert.Equal(t, []int64{web}, ids)

	name, err := db.Genres.GetName(ctx, TypeWeb)
	require.NoError(t, err)
	assert.Equal(t, "Web", name)
}

func TestRandomArtistsAreAlbumArtistsOfTheStorage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var local []int64
	for _, name := range []string{"Air", "Blur", "Cake"} {
		id := mustAddArtist(t, db, name)
		mustAddAlbum(t, db, AlbumInput{Name: name + " Album", ArtistIDs: []int64{id}, URI: "file:///" + name})
		local = append(local, id)
	}
	web := mustAddArtist(t, db, "Daft Punk")
	mustAddAlbum(t, db, AlbumInput{Name: "Discovery", ArtistIDs: []int64{web}, URI: "https://example.org/d", StorageType: StorageDeezerCharts})
	mustAddArtist(t, db, "Guest Only")

	ids, err := db.Artists.GetRandomIDs(ctx, StorageCollection, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, local, ids)

	ids, err = db.Artists.GetRandomIDs(ctx, StorageCollection, 2)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
	assert.Subset(t, local, ids)
}
