package collection

import (
	"context"
	"fmt"

	"github.com/franz/lollydb/internal/sqlcursor"
)

// Genres accesses the genres table. Names are matched on their sql_escape
// key, so "Alternative Rock" and "alternative-rock" are one genre.
type Genres struct {
	m *sqlcursor.Manager
}

// Add returns the id of the genre matching name, inserting it when missing
func (g *Genres) Add(ctx context.Context, name string) (int64, error) {
	var id int64
	err := g.m.Write(ctx, func(q sqlcursor.Queryer) error {
		var err error
		id, err = addGenre(ctx, q, name)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add genre %q: %w", name, err)
	}
	return id, nil
}

func addGenre(ctx context.Context, q sqlcursor.Queryer, name string) (int64, error) {
	id, err := genreID(ctx, q, name)
	if err != nil || id != 0 {
		return id, err
	}
	res, err := q.ExecContext(ctx, "INSERT INTO genres (name) VALUES (?)", name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func genreID(ctx context.Context, q sqlcursor.Queryer, name string) (int64, error) {
	return queryValue[int64](ctx, q,
		"SELECT id FROM genres WHERE sql_escape(name) = sql_escape(?) ORDER BY id LIMIT 1", name)
}

// GetID returns the genre id for name, or 0
func (g *Genres) GetID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := g.m.Read(ctx, func(q sqlcursor.Queryer) error {
		var err error
		id, err = genreID(ctx, q, name)
		return err
	})
	return id, err
}

func (g *Genres) GetName(ctx context.Context, genreID int64) (string, error) {
	if genreID == TypeWeb {
		return "Web", nil
	}
	return getColumn[string](ctx, g.m, "genres", "name", genreID)
}

func genreFilter(storage StorageType) *selectQuery {
	return newSelect("genres").
		join("JOIN album_genres ON album_genres.genre_id = genres.id").
		join("JOIN albums ON albums.id = album_genres.album_id").
		and("albums.storage_type & ? != 0", storageMask(storage, nil))
}

// Get returns the genres used by albums of the storage type, by name
func (g *Genres) Get(ctx context.Context, storage StorageType) ([]GenreRow, error) {
	query, args := genreFilter(storage).build(
		"DISTINCT genres.id, genres.name", "ORDER BY genres.name COLLATE LOCALIZED, genres.id")

	var out []GenreRow
	err := g.m.Read(ctx, func(q sqlcursor.Queryer) error {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r GenreRow
			if err := rows.Scan(&r.ID, &r.Name); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

// GetIDs returns the ids of Get
func (g *Genres) GetIDs(ctx context.Context, storage StorageType) ([]int64, error) {
	query, args := genreFilter(storage).build(
		"genres.id", "GROUP BY genres.id ORDER BY genres.name COLLATE LOCALIZED, genres.id")
	return readIDs(ctx, g.m, query, args...)
}

// GetAlbumIDs returns the albums of a genre by popularity
func (g *Genres) GetAlbumIDs(ctx context.Context, genreID int64, storage StorageType) ([]int64, error) {
	query, args := albumFilter(Filter{GenreIDs: []int64{genreID}, StorageType: storage, Skipped: true}).
		build("DISTINCT albums.id", "ORDER BY albums.popularity DESC, albums.id")
	return readIDs(ctx, g.m, query, args...)
}

// GetTrackIDs returns the tracks of a genre
func (g *Genres) GetTrackIDs(ctx context.Context, genreID int64, storage StorageType) ([]int64, error) {
	query, args := newSelect("tracks").
		join(trackGenresJoin).
		and("track_genres.genre_id = ?", genreID).
		and("tracks.storage_type & ? != 0", storageMask(storage, nil)).
		build("DISTINCT tracks.id", "ORDER BY tracks.album_id, tracks.discnumber, tracks.tracknumber, tracks.id")
	return readIDs(ctx, g.m, query, args...)
}

// Count returns the number of genres
func (g *Genres) Count(ctx context.Context) (int64, error) {
	return readValue[int64](ctx, g.m, "SELECT COUNT(*) FROM genres")
}
