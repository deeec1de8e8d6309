package ingest

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/franz/lollydb/internal/collection"
	"github.com/franz/lollydb/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFLAC writes a FLAC header holding only a STREAMINFO and a
// VORBIS_COMMENT block, enough for tag readers
func writeFLAC(t *testing.T, path string, comments ...string) {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("fLaC")

	buf.Write([]byte{0x00, 0x00, 0x00, 34})
	buf.Write(make([]byte, 34))

	var block bytes.Buffer
	vendor := "lollydb-test"
	binary.Write(&block, binary.LittleEndian, uint32(len(vendor)))
	block.WriteString(vendor)
	binary.Write(&block, binary.LittleEndian, uint32(len(comments)))
	for _, c := range comments {
		binary.Write(&block, binary.LittleEndian, uint32(len(c)))
		block.WriteString(c)
	}
	n := block.Len()
	buf.Write([]byte{0x80 | 4, byte(n >> 16), byte(n >> 8), byte(n)})
	buf.Write(block.Bytes())

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func fixedDuration(context.Context, string) (int64, error) {
	return 200000, nil
}

type fixture struct {
	root    string
	db      *collection.Database
	history *history.History
	ing     *Ingester
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := collection.Open(ctx, collection.Options{Path: filepath.Join(dir, "lollypop.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h, err := history.Open(ctx, history.Options{Path: filepath.Join(dir, "history.db"), Limit: 100})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	root := filepath.Join(dir, "music")
	require.NoError(t, os.MkdirAll(root, 0o755))
	return &fixture{
		root:    root,
		db:      db,
		history: h,
		ing:     New(&Config{DB: db, History: h, Concurrency: 2, Probe: fixedDuration}),
	}
}

func (f *fixture) ingest(t *testing.T) *Result {
	t.Helper()
	res, err := f.ing.Ingest(context.Background(), f.root)
	require.NoError(t, err)
	return res
}

func TestIngestAddsTaggedFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	writeFLAC(t, filepath.Join(f.root, "Abbey Road", "01.flac"),
		"TITLE=Come Together", "ARTIST=The Beatles", "ALBUM=Abbey Road",
		"GENRE=Rock", "TRACKNUMBER=1")
	writeFLAC(t, filepath.Join(f.root, "Abbey Road", "02.flac"),
		"TITLE=Something", "ARTIST=The Beatles", "ALBUM=Abbey Road",
		"GENRE=rock", "TRACKNUMBER=2")
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "cover.jpg"), []byte("x"), 0o644))

	res := f.ingest(t)
	assert.Equal(t, 2, res.FilesFound)
	assert.Equal(t, 2, res.Added)
	assert.Len(t, res.AlbumIDs, 1)
	assert.Empty(t, res.Errors)

	n, err := f.db.Tracks.Count(ctx, collection.StorageAll)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	n, err = f.db.Albums.Count(ctx, collection.StorageAll)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = f.db.Genres.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	trackID, err := f.db.Tracks.GetIDByURI(ctx, collection.PathToURI(filepath.Join(f.root, "Abbey Road", "02.flac")))
	require.NoError(t, err)
	require.NotZero(t, trackID)
	name, err := f.db.Tracks.GetName(ctx, trackID)
	require.NoError(t, err)
	assert.Equal(t, "Something", name)
	duration, err := f.db.Tracks.GetDuration(ctx, trackID)
	require.NoError(t, err)
	assert.EqualValues(t, 200000, duration)

	beatles, err := f.db.Artists.GetID(ctx, "The Beatles", "")
	require.NoError(t, err)
	albumID, err := f.db.Tracks.GetAlbumID(ctx, trackID)
	require.NoError(t, err)
	artists, err := f.db.Albums.GetArtistIDs(ctx, albumID)
	require.NoError(t, err)
	assert.Equal(t, []int64{beatles}, artists)

	sortname, err := f.db.Artists.GetSortname(ctx, beatles)
	require.NoError(t, err)
	assert.Equal(t, "Beatles, The", sortname)
}

func TestIngestInfersCompilations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	writeFLAC(t, filepath.Join(f.root, "Hits", "01.flac"),
		"TITLE=One", "ARTIST=X", "ALBUM=Greatest Hits")
	writeFLAC(t, filepath.Join(f.root, "Hits", "02.flac"),
		"TITLE=Two", "ARTIST=Y", "ALBUM=Greatest Hits")
	writeFLAC(t, filepath.Join(f.root, "Solo", "01.flac"),
		"TITLE=Alone", "ARTIST=Z", "ALBUM=Solo")

	f.ingest(t)

	hits, err := f.db.Albums.GetID(ctx, "Greatest Hits", "", nil)
	require.NoError(t, err)
	require.NotZero(t, hits)
	artists, err := f.db.Albums.GetArtistIDs(ctx, hits)
	require.NoError(t, err)
	assert.Equal(t, []int64{collection.TypeCompilations}, artists)

	z, err := f.db.Artists.GetID(ctx, "Z", "")
	require.NoError(t, err)
	solo, err := f.db.Albums.GetID(ctx, "Solo", "", nil)
	require.NoError(t, err)
	artists, err = f.db.Albums.GetArtistIDs(ctx, solo)
	require.NoError(t, err)
	assert.Equal(t, []int64{z}, artists)

	// a second pass finds the same albums
	writeFLAC(t, filepath.Join(f.root, "Hits", "03.flac"),
		"TITLE=Three", "ARTIST=X", "ALBUM=Greatest Hits")
	res := f.ingest(t)
	assert.Equal(t, 1, res.Added)
	n, err := f.db.Albums.Count(ctx, collection.StorageAll)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestIngestSkipsUnchangedAndRereadsChanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path := filepath.Join(f.root, "A", "01.flac")
	writeFLAC(t, path, "TITLE=Old", "ARTIST=A", "ALBUM=A")
	writeFLAC(t, filepath.Join(f.root, "A", "02.flac"), "TITLE=Other", "ARTIST=A", "ALBUM=A")
	f.ingest(t)

	res := f.ingest(t)
	assert.Equal(t, 2, res.Unchanged)
	assert.Zero(t, res.Added)

	writeFLAC(t, path, "TITLE=New", "ARTIST=A", "ALBUM=A")
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	res = f.ingest(t)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Unchanged)

	trackID, err := f.db.Tracks.GetIDByURI(ctx, collection.PathToURI(path))
	require.NoError(t, err)
	name, err := f.db.Tracks.GetName(ctx, trackID)
	require.NoError(t, err)
	assert.Equal(t, "New", name)
	n, err := f.db.Tracks.Count(ctx, collection.StorageAll)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestIngestKeepsStatisticsAcrossMoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	oldPath := filepath.Join(f.root, "old", "01.flac")
	writeFLAC(t, oldPath, "TITLE=Blue", "ARTIST=Miles", "ALBUM=Kind")
	f.ingest(t)

	trackID, err := f.db.Tracks.GetIDByURI(ctx, collection.PathToURI(oldPath))
	require.NoError(t, err)
	require.NoError(t, f.db.Tracks.SetPopularity(ctx, trackID, 42))
	require.NoError(t, f.db.Tracks.SetRate(ctx, trackID, 5))

	require.NoError(t, os.RemoveAll(filepath.Join(f.root, "old")))
	res := f.ingest(t)
	assert.Equal(t, 1, res.Removed)
	require.NotNil(t, res.Cleaned)
	assert.EqualValues(t, 1, res.Cleaned.Albums)

	saved, err := f.history.Get(ctx, "Blue", 200)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.EqualValues(t, 42, saved.Popularity)

	newPath := filepath.Join(f.root, "new", "01.flac")
	writeFLAC(t, newPath, "TITLE=Blue", "ARTIST=Miles", "ALBUM=Kind")
	f.ingest(t)

	trackID, err = f.db.Tracks.GetIDByURI(ctx, collection.PathToURI(newPath))
	require.NoError(t, err)
	require.NotZero(t, trackID)
	popularity, err := f.db.Tracks.GetPopularity(ctx, trackID)
	require.NoError(t, err)
	assert.EqualValues(t, 42, popularity)
	rate, err := f.db.Tracks.GetRate(ctx, trackID)
	require.NoError(t, err)
	assert.Equal(t, 5, rate)
}

func TestIngestLeavesOtherRootsAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	writeFLAC(t, filepath.Join(f.root, "a", "01.flac"), "TITLE=One", "ARTIST=A", "ALBUM=A")
	f.ingest(t)

	other := t.TempDir()
	writeFLAC(t, filepath.Join(other, "02.flac"), "TITLE=Two", "ARTIST=B", "ALBUM=B")
	res, err := f.ing.Ingest(ctx, other)
	require.NoError(t, err)
	assert.Zero(t, res.Removed)

	n, err := f.db.Tracks.Count(ctx, collection.StorageAll)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestReadTagsFallsBackToFileNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Unsorted", "mystery.flac")
	writeFLAC(t, path, "ARTIST=A; B")

	tags, err := ReadTags(path)
	require.NoError(t, err)
	assert.Equal(t, "mystery", tags.Title)
	assert.Equal(t, "Unsorted", tags.Album)
	assert.Equal(t, []string{"A", "B"}, tags.Artists)
}

func TestReadTagsRejectsUnknownFormats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.mp3")
	require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0o644))

	_, err := ReadTags(path)
	assert.Error(t, err)
}

func TestSplitValues(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"AC/DC", []string{"AC/DC"}},
		{"A; B ;;C", []string{"A", "B", "C"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, splitValues(tt.in))
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"seconds", `{"format": {"duration": "259.5"}}`, 259500, false},
		{"not available", `{"format": {"duration": "N/A"}}`, 0, false},
		{"no format", `{}`, 0, false},
		{"garbage", `{"format": {"duration": "soon"}}`, 0, true},
		{"not json", `nope`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDuration([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
