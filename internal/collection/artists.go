package collection

import (
	"context"
	"fmt"

	"github.com/franz/lollydb/internal/localized"
	"github.com/franz/lollydb/internal/sqlcursor"
	"github.com/franz/lollydb/internal/util"
)

// Artists accesses the artists table
type Artists struct {
	m             *sqlcursor.Manager
	showSortnames bool
}

// Add inserts an artist. An empty sortname is derived from the name.
func (a *Artists) Add(ctx context.Context, name, sortname, mbArtistID string) (int64, error) {
	var id int64
	err := a.m.Write(ctx, func(q sqlcursor.Queryer) error {
		var err error
		id, err = addArtist(ctx, q, name, sortname, mbArtistID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add artist %q: %w", name, err)
	}
	return id, nil
}

func addArtist(ctx context.Context, q sqlcursor.Queryer, name, sortname, mbArtistID string) (int64, error) {
	if sortname == "" {
		sortname = localized.FormatArtistName(name)
	}
	res, err := q.ExecContext(ctx,
		"INSERT INTO artists (name, sortname, mb_artist_id) VALUES (?, ?, ?)",
		name, sortname, nullString(mbArtistID))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetID finds an artist by MusicBrainz id first, then by name ignoring case
// and accents among artists without a conflicting MusicBrainz id. It
// returns 0 when nothing matches.
func (a *Artists) GetID(ctx context.Context, name, mbArtistID string) (int64, error) {
	var id int64
	err := a.m.Read(ctx, func(q sqlcursor.Queryer) error {
		var err error
		id, err = artistID(ctx, q, name, mbArtistID)
		return err
	})
	return id, err
}

func artistID(ctx context.Context, q sqlcursor.Queryer, name, mbArtistID string) (int64, error) {
	if mbArtistID != "" {
		id, err := queryValue[int64](ctx, q,
			"SELECT id FROM artists WHERE mb_artist_id = ? ORDER BY id LIMIT 1", mbArtistID)
		if err != nil || id != 0 {
			return id, err
		}
	}
	return queryValue[int64](ctx, q, `
		SELECT id FROM artists
		WHERE noaccents(name) = noaccents(?)
		AND (ifnull(mb_artist_id, '') = '' OR ? = '' OR mb_artist_id = ?)
		ORDER BY id LIMIT 1
	`, name, mbArtistID, mbArtistID)
}

func (a *Artists) GetName(ctx context.Context, artistID int64) (string, error) {
	if artistID == TypeCompilations {
		return "Various artists", nil
	}
	return getColumn[string](ctx, a.m, "artists", "name", artistID)
}

func (a *Artists) GetSortname(ctx context.Context, artistID int64) (string, error) {
	return getColumn[string](ctx, a.m, "artists", "sortname", artistID)
}

func (a *Artists) GetMbArtistID(ctx context.Context, artistID int64) (string, error) {
	return getColumn[string](ctx, a.m, "artists", "mb_artist_id", artistID)
}

func (a *Artists) SetSortname(ctx context.Context, artistID int64, sortname string) error {
	return setColumn(ctx, a.m, "artists", "sortname", sortname, artistID)
}

func (a *Artists) SetMbArtistID(ctx context.Context, artistID int64, mbArtistID string) error {
	return setColumn(ctx, a.m, "artists", "mb_artist_id", nullString(mbArtistID), artistID)
}

// artistFilter selects artists declared on albums matching storage and genres
func artistFilter(storage StorageType, genreIDs []int64) *selectQuery {
	s := newSelect("artists").
		join("JOIN album_artists ON album_artists.artist_id = artists.id").
		join("JOIN albums ON albums.id = album_artists.album_id").
		and("albums.storage_type & ? != 0", storageMask(storage, genreIDs))
	if genres := realIDs(genreIDs); len(genres) > 0 {
		s.join(albumGenresJoin).in("album_genres.genre_id", genres)
	}
	return s
}

// Get returns the album artists of the given genres. Name is the display
// name, which is the sortname when sortnames are shown.
func (a *Artists) Get(ctx context.Context, storage StorageType, genreIDs []int64) ([]ArtistRow, error) {
	query, args := artistFilter(storage, genreIDs).build(
		"DISTINCT artists.id, artists.name, artists.sortname",
		"ORDER BY artists.sortname COLLATE LOCALIZED, artists.id")

	var out []ArtistRow
	err := a.m.Read(ctx, func(q sqlcursor.Queryer) error {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r ArtistRow
			if err := rows.Scan(&r.ID, &r.Name, &r.Sortname); err != nil {
				return err
			}
			if a.showSortnames {
				r.Name = r.Sortname
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

// GetIDs returns the album artist ids of the given genres in sortname order
func (a *Artists) GetIDs(ctx context.Context, storage StorageType, genreIDs []int64) ([]int64, error) {
	query, args := artistFilter(storage, genreIDs).build(
		"artists.id", "GROUP BY artists.id ORDER BY artists.sortname COLLATE LOCALIZED, artists.id")
	return readIDs(ctx, a.m, query, args...)
}

// GetRandomIDs returns random album artists
func (a *Artists) GetRandomIDs(ctx context.Context, storage StorageType, limit int) ([]int64, error) {
	query, args := artistFilter(storage, nil).build(
		"DISTINCT artists.id", "ORDER BY random() LIMIT ?", limit)
	return readIDs(ctx, a.m, query, args...)
}

// GetFeaturing returns albums the artists perform on without being album artists
func (a *Artists) GetFeaturing(ctx context.Context, artistIDs []int64, storage StorageType) ([]int64, error) {
	query, args := newSelect("featuring").
		join("JOIN albums ON albums.id = featuring.album_id").
		and("albums.storage_type & ? != 0", storageMask(storage, nil)).
		in("featuring.artist_id", artistIDs).
		build("DISTINCT albums.id", "ORDER BY albums.popularity DESC, albums.id")
	return readIDs(ctx, a.m, query, args...)
}

// UpdateFeaturing recomputes the featuring table from scratch
func (a *Artists) UpdateFeaturing(ctx context.Context) error {
	err := a.m.Write(ctx, func(q sqlcursor.Queryer) error {
		return updateFeaturing(ctx, q)
	})
	if err != nil {
		return fmt.Errorf("failed to update featuring: %w", err)
	}
	util.DebugLog("core: featuring updated")
	return nil
}

func updateFeaturing(ctx context.Context, q sqlcursor.Queryer) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM featuring"); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO featuring (artist_id, album_id)
		SELECT DISTINCT track_artists.artist_id, tracks.album_id
		FROM tracks
		JOIN track_artists ON track_artists.track_id = tracks.id
		WHERE track_artists.artist_id >= 0
		AND NOT EXISTS (
			SELECT 1 FROM album_artists
			WHERE album_artists.album_id = tracks.album_id
			AND album_artists.artist_id = track_artists.artist_id
		)
	`)
	return err
}

// Search matches artist names ignoring case and accents, at most 25 results
func (a *Artists) Search(ctx context.Context, text string, storage StorageType) ([]int64, error) {
	query, args := newSelect("artists").
		join("JOIN track_artists ON track_artists.artist_id = artists.id").
		join("JOIN tracks ON tracks.id = track_artists.track_id").
		and("tracks.storage_type & ? != 0", storageMask(storage, nil)).
		and(`noaccents(artists.name) LIKE ? ESCAPE '\'`, likePattern(localized.NoAccents(text))).
		build("DISTINCT artists.id", "ORDER BY artists.sortname COLLATE LOCALIZED, artists.id LIMIT ?", searchLimit)
	return readIDs(ctx, a.m, query, args...)
}

// Count returns the number of artists
func (a *Artists) Count(ctx context.Context) (int64, error) {
	return readValue[int64](ctx, a.m, "SELECT COUNT(*) FROM artists")
}
