package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/franz/lollydb/internal/sqlcursor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openHistory(t *testing.T, limit int) *History {
	t.Helper()
	h, err := Open(context.Background(), Options{Path: filepath.Join(t.TempDir(), "history.db"), Limit: limit})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestAddUpsertsByNameAndDuration(t *testing.T) {
	h := openHistory(t, 0)
	ctx := context.Background()

	require.NoError(t, h.Add(ctx, Entry{Name: "Hurt", Duration: 218, Popularity: 3, Mtime: 10}))
	require.NoError(t, h.Add(ctx, Entry{Name: "Hurt", Duration: 218, Popularity: 9, Loved: 1, Mtime: 20}))
	require.NoError(t, h.Add(ctx, Entry{Name: "Hurt", Duration: 373, Popularity: 1, Mtime: 30}))

	n, err := h.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	e, err := h.Get(ctx, "Hurt", 218)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, int64(9), e.Popularity)
	assert.Equal(t, int64(1), e.Loved)

	e, err = h.Get(ctx, "Hurt", 999)
	require.NoError(t, err)
	assert.Nil(t, e)

	require.NoError(t, h.Remove(ctx, "Hurt", 373))
	recent, err := h.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, int64(218), recent[0].Duration)
}

func TestAddPrunesOldestPastLimit(t *testing.T) {
	h := openHistory(t, 5)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, h.Add(ctx, Entry{Name: fmt.Sprintf("Track %d", i), Duration: 100, Mtime: int64(100 + i)}))
	}

	n, err := h.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	e, err := h.Get(ctx, "Track 0", 100)
	require.NoError(t, err)
	assert.Nil(t, e, "oldest row pruned")
	e, err = h.Get(ctx, "Track 7", 100)
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestUpgradeFromFirstSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	m, err := sqlcursor.Open(sqlcursor.Options{Name: "history", Path: path})
	require.NoError(t, err)
	require.NoError(t, m.Write(ctx, func(q sqlcursor.Queryer) error {
		_, err := q.ExecContext(ctx, `
			CREATE TABLE history (
				id INTEGER PRIMARY KEY,
				name TEXT NOT NULL,
				duration INT NOT NULL,
				ltime INT NOT NULL,
				popularity INT NOT NULL,
				mtime INT NOT NULL
			);
			INSERT INTO history (name, duration, ltime, popularity, mtime) VALUES ('Old', 60, 5, 2, 1);
		`)
		return err
	}))
	require.NoError(t, m.Close())

	h, err := Open(ctx, Options{Path: path})
	require.NoError(t, err)
	defer h.Close()

	e, err := h.Get(ctx, "Old", 60)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, int64(2), e.Popularity)
	assert.Zero(t, e.AlbumPopularity)
}
