package playlists

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/franz/lollydb/internal/collection"
	"github.com/franz/lollydb/internal/smart"
	"github.com/franz/lollydb/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	core   *collection.Database
	pl     *Playlists
	tracks []int64
	uris   []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	core, err := collection.Open(ctx, collection.Options{Path: filepath.Join(dir, util.CoreDBName)})
	require.NoError(t, err)
	t.Cleanup(func() { core.Close() })

	pl, err := Open(ctx, Options{Path: filepath.Join(dir, util.PlaylistsDBName), CorePath: core.Path()})
	require.NoError(t, err)
	t.Cleanup(func() { pl.Close() })

	f := &fixture{core: core, pl: pl}
	album, err := core.Albums.Add(ctx, collection.AlbumInput{Name: "Album", URI: "file:///music/album"})
	require.NoError(t, err)
	for i, name := range []string{"One", "Two", "Three"} {
		uri := "file:///music/album/" + strings.ToLower(name) + ".flac"
		id, err := core.Tracks.Add(ctx, collection.TrackInput{
			Name: name, URI: uri, AlbumID: album, TrackNumber: i + 1, Rate: i + 3, Duration: 61000,
		})
		require.NoError(t, err)
		f.tracks = append(f.tracks, id)
		f.uris = append(f.uris, uri)
	}
	return f
}

func TestStaticPlaylistResolvesURIs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.pl.Add(ctx, "Road trip")
	require.NoError(t, err)
	again, err := f.pl.Add(ctx, "Road trip")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	require.NoError(t, f.pl.AddURIs(ctx, id, []string{f.uris[2], f.uris[0], "file:///elsewhere.mp3", f.uris[0]}))
	uris, err := f.pl.GetTrackURIs(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{f.uris[2], f.uris[0], "file:///elsewhere.mp3"}, uris)

	ids, err := f.pl.GetTrackIDs(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []int64{f.tracks[2], f.tracks[0]}, ids)

	require.NoError(t, f.pl.RemoveURIs(ctx, id, []string{f.uris[2]}))
	ok, err := f.pl.Exists(ctx, id, f.uris[2])
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.pl.Rename(ctx, id, "Commute"))
	got, err := f.pl.GetID(ctx, "Commute")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	require.NoError(t, f.pl.Remove(ctx, id))
	all, err := f.pl.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSmartPlaylistStoresRulesAndSQL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.pl.Add(ctx, "Top rated")
	require.NoError(t, err)
	rs := smart.RuleSet{Match: smart.MatchAll, Rules: []smart.Rule{
		{Field: smart.FieldRating, Operator: smart.OpGreaterEqual, Value: "4"},
	}}
	require.NoError(t, f.pl.SetSmart(ctx, id, rs))

	stored, err := f.pl.GetSmartRules(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, rs, *stored)

	ids, err := f.pl.GetSmartTrackIDs(ctx, id, f.core.Tracks, 100)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{f.tracks[1], f.tracks[2]}, ids)

	require.NoError(t, f.pl.SetSmartEnabled(ctx, id, false))
	ids, err = f.pl.GetSmartTrackIDs(ctx, id, f.core.Tracks, 100)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRenameTrackURIUpdatesBothStores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.pl.Add(ctx, "Mix")
	require.NoError(t, err)
	require.NoError(t, f.pl.AddURIs(ctx, id, []string{f.uris[0]}))

	moved := "file:///music/moved/one.flac"
	require.NoError(t, RenameTrackURI(ctx, f.core, f.pl, f.uris[0], moved))

	trackID, err := f.core.Tracks.GetIDByURI(ctx, moved)
	require.NoError(t, err)
	assert.Equal(t, f.tracks[0], trackID)
	ids, err := f.pl.GetTrackIDs(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []int64{f.tracks[0]}, ids)

	err = RenameTrackURI(ctx, f.core, f.pl, "file:///missing", moved)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestSyncAllWritesM3UAndSkipsMissingTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := t.TempDir()

	ok, err := f.pl.Add(ctx, "Exported")
	require.NoError(t, err)
	require.NoError(t, f.pl.AddURIs(ctx, ok, f.uris[:2]))
	target := filepath.Join(out, "exported.m3u")
	require.NoError(t, f.pl.SetURI(ctx, ok, collection.PathToURI(target)))

	unmounted, err := f.pl.Add(ctx, "Unmounted")
	require.NoError(t, err)
	require.NoError(t, f.pl.SetURI(ctx, unmounted, collection.PathToURI(filepath.Join(out, "device", "x.m3u"))))

	result, err := f.pl.SyncAll(ctx, f.core.Tracks)
	require.NoError(t, err)
	assert.Equal(t, &SyncResult{Written: 1, Skipped: 1}, result)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t,
		"#EXTM3U\n"+
			"#EXTINF:61,One\n"+filepath.FromSlash("/music/album/one.flac")+"\n"+
			"#EXTINF:61,Two\n"+filepath.FromSlash("/music/album/two.flac")+"\n",
		string(data))
}
