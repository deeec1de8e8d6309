package collection

import (
	"context"
	"fmt"
	"time"

	"github.com/franz/lollydb/internal/localized"
	"github.com/franz/lollydb/internal/sqlcursor"
	"github.com/franz/lollydb/internal/util"
)

// popularAtTheMoment is the window summed by GetPopularsAtTheMoment
const popularAtTheMoment = 7 * 24 * time.Hour

// Albums accesses the albums table and its joins
type Albums struct {
	m *sqlcursor.Manager
}

// AlbumInput holds the fields of a new album
type AlbumInput struct {
	Name      string
	MbAlbumID string
	// LpAlbumID is derived from the name and artist names when empty
	LpAlbumID string
	// ArtistIDs may hold TypeCompilations. No artists marks the album as
	// having no album artist.
	ArtistIDs   []int64
	URI         string
	Year        int
	Timestamp   int64
	Loved       LovedFlags
	Popularity  int64
	Rate        int
	Mtime       int64
	Synced      int64
	StorageType StorageType
}

// Add inserts an album and its artist links
func (a *Albums) Add(ctx context.Context, in AlbumInput) (int64, error) {
	var id int64
	err := a.m.Write(ctx, func(q sqlcursor.Queryer) error {
		var err error
		id, err = addAlbum(ctx, q, in)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add album %q: %w", in.Name, err)
	}
	return id, nil
}

func addAlbum(ctx context.Context, q sqlcursor.Queryer, in AlbumInput) (int64, error) {
	storage := in.StorageType
	if storage == 0 {
		storage = StorageCollection
	}
	lp := in.LpAlbumID
	if lp == "" {
		names, err := artistNamesByID(ctx, q, in.ArtistIDs)
		if err != nil {
			return 0, err
		}
		lp = localized.LpAlbumID(in.Name, names)
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO albums (name, mb_album_id, lp_album_id, no_album_artist, uri,
			year, timestamp, loved, popularity, rate, mtime, synced, storage_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, in.Name, nullString(in.MbAlbumID), lp, boolInt(len(in.ArtistIDs) == 0), in.URI,
		nullInt(int64(in.Year)), nullInt(in.Timestamp), in.Loved, in.Popularity, in.Rate,
		in.Mtime, in.Synced, storage)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, artistID := range in.ArtistIDs {
		if err := link(ctx, q, "album_artists", "album_id", "artist_id", id, artistID); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func link(ctx context.Context, q sqlcursor.Queryer, table, left, right string, a, b int64) error {
	_, err := q.ExecContext(ctx,
		"INSERT OR IGNORE INTO "+table+" ("+left+", "+right+") VALUES (?, ?)", a, b)
	return err
}

func replaceLinks(ctx context.Context, m *sqlcursor.Manager, table, left, right string, id int64, ids []int64) error {
	return m.Write(ctx, func(q sqlcursor.Queryer) error {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+left+" = ?", id); err != nil {
			return err
		}
		for _, other := range ids {
			if err := link(ctx, q, table, left, right, id, other); err != nil {
				return err
			}
		}
		return nil
	})
}

func artistNamesByID(ctx context.Context, q sqlcursor.Queryer, ids []int64) ([]string, error) {
	var names []string
	for _, id := range realIDs(ids) {
		name, err := queryValue[string](ctx, q, "SELECT name FROM artists WHERE id = ?", id)
		if err != nil {
			return nil, err
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// AddArtist links an artist to an album
func (a *Albums) AddArtist(ctx context.Context, albumID, artistID int64) error {
	return a.m.Write(ctx, func(q sqlcursor.Queryer) error {
		return link(ctx, q, "album_artists", "album_id", "artist_id", albumID, artistID)
	})
}

// AddGenre links a genre to an album
func (a *Albums) AddGenre(ctx context.Context, albumID, genreID int64) error {
	return a.m.Write(ctx, func(q sqlcursor.Queryer) error {
		return link(ctx, q, "album_genres", "album_id", "genre_id", albumID, genreID)
	})
}

// SetArtistIDs replaces the album artists
func (a *Albums) SetArtistIDs(ctx context.Context, albumID int64, artistIDs []int64) error {
	err := replaceLinks(ctx, a.m, "album_artists", "album_id", "artist_id", albumID, artistIDs)
	if err != nil {
		return err
	}
	return setColumn(ctx, a.m, "albums", "no_album_artist", boolInt(len(artistIDs) == 0), albumID)
}

// SetInferredArtistIDs replaces the artists of an album stored without an
// album artist. The album keeps its no_album_artist flag.
func (a *Albums) SetInferredArtistIDs(ctx context.Context, albumID int64, artistIDs []int64) error {
	return replaceLinks(ctx, a.m, "album_artists", "album_id", "artist_id", albumID, artistIDs)
}

// SetGenreIDs replaces the album genres
func (a *Albums) SetGenreIDs(ctx context.Context, albumID int64, genreIDs []int64) error {
	return replaceLinks(ctx, a.m, "album_genres", "album_id", "genre_id", albumID, genreIDs)
}

// SetYear sets the year and the finer-grained timestamp
func (a *Albums) SetYear(ctx context.Context, albumID int64, year int, timestamp int64) error {
	return a.m.Write(ctx, func(q sqlcursor.Queryer) error {
		_, err := q.ExecContext(ctx, "UPDATE albums SET year = ?, timestamp = ? WHERE id = ?",
			nullInt(int64(year)), nullInt(timestamp), albumID)
		return err
	})
}

func (a *Albums) SetURI(ctx context.Context, albumID int64, uri string) error {
	return setColumn(ctx, a.m, "albums", "uri", uri, albumID)
}

func (a *Albums) SetRate(ctx context.Context, albumID int64, rate int) error {
	return setColumn(ctx, a.m, "albums", "rate", rate, albumID)
}

func (a *Albums) SetLoved(ctx context.Context, albumID int64, loved LovedFlags) error {
	return setColumn(ctx, a.m, "albums", "loved", loved, albumID)
}

func (a *Albums) SetSynced(ctx context.Context, albumID int64, synced int64) error {
	return setColumn(ctx, a.m, "albums", "synced", synced, albumID)
}

func (a *Albums) SetMtime(ctx context.Context, albumID int64, mtime int64) error {
	return setColumn(ctx, a.m, "albums", "mtime", mtime, albumID)
}

func (a *Albums) SetStorageType(ctx context.Context, albumID int64, storage StorageType) error {
	return setColumn(ctx, a.m, "albums", "storage_type", storage, albumID)
}

// SetLpAlbumID overwrites the content id used to match the album across sources
func (a *Albums) SetLpAlbumID(ctx context.Context, albumID int64, lp string) error {
	return setColumn(ctx, a.m, "albums", "lp_album_id", lp, albumID)
}

// SetPopularity overwrites the all-time popularity
func (a *Albums) SetPopularity(ctx context.Context, albumID int64, popularity int64) error {
	return setColumn(ctx, a.m, "albums", "popularity", popularity, albumID)
}

// SetMorePopular adds amount to the all-time popularity and to today's
// timed popularity row. Lock contention is retried with backoff, then
// logged; the returned error may be ignored.
func (a *Albums) SetMorePopular(ctx context.Context, albumID int64, amount int64) error {
	day := time.Now().UTC().Truncate(24 * time.Hour).Unix()
	err := util.Retry(util.DBRetryConfig(), func() error {
		return a.m.Write(ctx, func(q sqlcursor.Queryer) error {
			if _, err := q.ExecContext(ctx,
				"UPDATE albums SET popularity = popularity + ? WHERE id = ?", amount, albumID); err != nil {
				return err
			}
			res, err := q.ExecContext(ctx, `
				UPDATE albums_timed_popularity SET popularity = popularity + ?
				WHERE album_id = ? AND mtime = ?
			`, amount, albumID, day)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil || n > 0 {
				return err
			}
			_, err = q.ExecContext(ctx, `
				INSERT INTO albums_timed_popularity (album_id, mtime, popularity)
				VALUES (?, ?, ?)
			`, albumID, day, amount)
			return err
		})
	}, fmt.Sprintf("popularity of album %d", albumID))
	if err != nil {
		util.WarnLog("Dropped popularity update for album %d: %v", albumID, err)
	}
	return err
}

func (a *Albums) GetName(ctx context.Context, albumID int64) (string, error) {
	return getColumn[string](ctx, a.m, "albums", "name", albumID)
}

func (a *Albums) GetURI(ctx context.Context, albumID int64) (string, error) {
	return getColumn[string](ctx, a.m, "albums", "uri", albumID)
}

func (a *Albums) GetYear(ctx context.Context, albumID int64) (int, error) {
	return getColumn[int](ctx, a.m, "albums", "year", albumID)
}

func (a *Albums) GetTimestamp(ctx context.Context, albumID int64) (int64, error) {
	return getColumn[int64](ctx, a.m, "albums", "timestamp", albumID)
}

func (a *Albums) GetRate(ctx context.Context, albumID int64) (int, error) {
	return getColumn[int](ctx, a.m, "albums", "rate", albumID)
}

func (a *Albums) GetLoved(ctx context.Context, albumID int64) (LovedFlags, error) {
	return getColumn[LovedFlags](ctx, a.m, "albums", "loved", albumID)
}

func (a *Albums) GetPopularity(ctx context.Context, albumID int64) (int64, error) {
	return getColumn[int64](ctx, a.m, "albums", "popularity", albumID)
}

func (a *Albums) GetStorageType(ctx context.Context, albumID int64) (StorageType, error) {
	return getColumn[StorageType](ctx, a.m, "albums", "storage_type", albumID)
}

func (a *Albums) GetSynced(ctx context.Context, albumID int64) (int64, error) {
	return getColumn[int64](ctx, a.m, "albums", "synced", albumID)
}

func (a *Albums) GetMtime(ctx context.Context, albumID int64) (int64, error) {
	return getColumn[int64](ctx, a.m, "albums", "mtime", albumID)
}

func (a *Albums) GetMbAlbumID(ctx context.Context, albumID int64) (string, error) {
	return getColumn[string](ctx, a.m, "albums", "mb_album_id", albumID)
}

func (a *Albums) GetLpAlbumID(ctx context.Context, albumID int64) (string, error) {
	return getColumn[string](ctx, a.m, "albums", "lp_album_id", albumID)
}

// GetArtistIDs returns the declared album artists in insertion order
func (a *Albums) GetArtistIDs(ctx context.Context, albumID int64) ([]int64, error) {
	return readIDs(ctx, a.m,
		"SELECT artist_id FROM album_artists WHERE album_id = ? ORDER BY rowid", albumID)
}

// GetGenreIDs returns the album genres in insertion order
func (a *Albums) GetGenreIDs(ctx context.Context, albumID int64) ([]int64, error) {
	return readIDs(ctx, a.m,
		"SELECT genre_id FROM album_genres WHERE album_id = ? ORDER BY rowid", albumID)
}

// GetID finds an album by name, MusicBrainz id and exact artist set. An
// empty artist set matches albums stored without an album artist, whatever
// artists were inferred for them since. It returns 0 when nothing matches.
func (a *Albums) GetID(ctx context.Context, name, mbAlbumID string, artistIDs []int64) (int64, error) {
	var found int64
	err := a.m.Read(ctx, func(q sqlcursor.Queryer) error {
		candidates, err := queryIDs(ctx, q, `
			SELECT id FROM albums
			WHERE noaccents(name) = noaccents(?) AND ifnull(mb_album_id, '') = ?
				AND no_album_artist = ?
			ORDER BY id
		`, name, mbAlbumID, boolInt(len(artistIDs) == 0))
		if err != nil {
			return err
		}
		if len(artistIDs) == 0 {
			if len(candidates) > 0 {
				found = candidates[0]
			}
			return nil
		}
		for _, id := range candidates {
			artists, err := queryIDs(ctx, q,
				"SELECT artist_id FROM album_artists WHERE album_id = ?", id)
			if err != nil {
				return err
			}
			if sameSet(artists, artistIDs) {
				found = id
				return nil
			}
		}
		return nil
	})
	return found, err
}

// GetIDByLpAlbumID returns the first album with the content-derived id
func (a *Albums) GetIDByLpAlbumID(ctx context.Context, lp string) (int64, error) {
	return readValue[int64](ctx, a.m,
		"SELECT id FROM albums WHERE lp_album_id = ? ORDER BY id LIMIT 1", lp)
}

// albumFilter applies storage, skipped, genre and artist constraints
func albumFilter(f Filter) *selectQuery {
	s := newSelect("albums").
		and("albums.storage_type & ? != 0", storageMask(f.StorageType, f.GenreIDs))
	if !f.Skipped {
		s.and("albums.loved & ? = 0", LovedSkipped)
	}
	if genres := realIDs(f.GenreIDs); len(genres) > 0 {
		s.join(albumGenresJoin).in("album_genres.genre_id", genres)
	}
	if len(f.ArtistIDs) > 0 {
		s.join(albumArtistsJoin).in("album_artists.artist_id", f.ArtistIDs)
	}
	return s
}

func (f Filter) limitClause() (string, []any) {
	if f.Limit > 0 {
		return " LIMIT ?", []any{f.Limit}
	}
	return "", nil
}

// GetIDs returns album ids matching every constraint of f, in f.OrderBy order
func (a *Albums) GetIDs(ctx context.Context, f Filter) ([]int64, error) {
	s := albumFilter(f)
	if f.OrderBy.needsArtists() {
		s.join("LEFT JOIN album_artists AS order_artists ON order_artists.album_id = albums.id").
			join("LEFT JOIN artists ON artists.id = order_artists.artist_id")
	}
	limit, limitArgs := f.limitClause()
	query, args := s.build("albums.id",
		"GROUP BY albums.id ORDER BY "+f.OrderBy.albumClause()+limit, limitArgs...)
	return readIDs(ctx, a.m, query, args...)
}

// GetCompilationIDs returns albums whose artist is TypeCompilations
func (a *Albums) GetCompilationIDs(ctx context.Context, f Filter) ([]int64, error) {
	f.ArtistIDs = []int64{TypeCompilations}
	return a.GetIDs(ctx, f)
}

// GetRandoms samples albums. A first pass picks one album per artist for
// diversity; uniformly random albums pad the result up to limit.
func (a *Albums) GetRandoms(ctx context.Context, storage StorageType, genreID int64, skipped bool, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}
	f := Filter{StorageType: storage, Skipped: skipped}
	if genreID != 0 {
		f.GenreIDs = []int64{genreID}
	}

	var ids []int64
	err := a.m.Read(ctx, func(q sqlcursor.Queryer) error {
		inner, args := albumFilter(f).join(albumArtistsJoin).build(
			"albums.id AS id, row_number() OVER (PARTITION BY album_artists.artist_id ORDER BY random()) AS rn", "")
		diverse, err := queryIDs(ctx, q,
			"SELECT id FROM ("+inner+") WHERE rn = 1 ORDER BY random() LIMIT ?",
			append(args, limit)...)
		if err != nil {
			return err
		}
		ids = dedupe(diverse)
		if len(ids) >= limit {
			return nil
		}

		query, args := albumFilter(f).build("DISTINCT albums.id", "ORDER BY random() LIMIT ?", limit)
		padding, err := queryIDs(ctx, q, query, args...)
		if err != nil {
			return err
		}
		ids = dedupe(append(ids, padding...))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shuffleTruncate(ids, limit), nil
}

// GetPopulars returns albums by all-time popularity, never-played albums excluded
func (a *Albums) GetPopulars(ctx context.Context, storage StorageType, limit int) ([]int64, error) {
	query, args := albumFilter(Filter{StorageType: storage}).
		and("albums.popularity != 0").
		build("albums.id", "ORDER BY albums.popularity DESC, albums.id LIMIT ?", limit)
	return readIDs(ctx, a.m, query, args...)
}

// GetPopularsAtTheMoment ranks albums by popularity gained over the last week
func (a *Albums) GetPopularsAtTheMoment(ctx context.Context, storage StorageType, limit int) ([]int64, error) {
	since := time.Now().Add(-popularAtTheMoment).Unix()
	query, args := albumFilter(Filter{StorageType: storage}).
		join("JOIN albums_timed_popularity AS timed ON timed.album_id = albums.id").
		and("timed.mtime >= ?", since).
		build("albums.id",
			"GROUP BY albums.id ORDER BY SUM(timed.popularity) DESC, albums.id LIMIT ?", limit)
	return readIDs(ctx, a.m, query, args...)
}

// GetRecents returns the most recently modified albums
func (a *Albums) GetRecents(ctx context.Context, storage StorageType, limit int) ([]int64, error) {
	query, args := albumFilter(Filter{StorageType: storage}).
		build("albums.id", "ORDER BY albums.mtime DESC, albums.id LIMIT ?", limit)
	return readIDs(ctx, a.m, query, args...)
}

// GetLovedAlbums returns albums flagged LovedLoved
func (a *Albums) GetLovedAlbums(ctx context.Context, storage StorageType) ([]int64, error) {
	query, args := albumFilter(Filter{StorageType: storage, Skipped: true}).
		and("albums.loved & ? != 0", LovedLoved).
		build("albums.id", "ORDER BY albums.popularity DESC, albums.id")
	return readIDs(ctx, a.m, query, args...)
}

// GetYears returns the distinct album years
func (a *Albums) GetYears(ctx context.Context, storage StorageType) ([]int64, error) {
	query, args := albumFilter(Filter{StorageType: storage, Skipped: true}).
		and("albums.year IS NOT NULL").
		build("DISTINCT albums.year", "ORDER BY albums.year")
	return readIDs(ctx, a.m, query, args...)
}

// GetAlbumsForYear returns albums of year, oldest first
func (a *Albums) GetAlbumsForYear(ctx context.Context, year int, storage StorageType, limit int) ([]int64, error) {
	f := Filter{StorageType: storage, Skipped: true, Limit: limit}
	tail, tailArgs := f.limitClause()
	query, args := albumFilter(f).
		and("albums.year = ?", year).
		build("albums.id", "ORDER BY albums.timestamp, albums.name COLLATE LOCALIZED, albums.id"+tail, tailArgs...)
	return readIDs(ctx, a.m, query, args...)
}

// GetTrackIDs returns the album tracks in disc then track order, optionally
// restricted to disc numbers
func (a *Albums) GetTrackIDs(ctx context.Context, albumID int64, discNumbers []int64, storage StorageType) ([]int64, error) {
	query, args := newSelect("tracks").
		and("tracks.album_id = ?", albumID).
		and("tracks.storage_type & ? != 0", storageMask(storage, nil)).
		in("tracks.discnumber", discNumbers).
		build("tracks.id", "ORDER BY tracks.discnumber, tracks.tracknumber, tracks.id")
	return readIDs(ctx, a.m, query, args...)
}

// GetDiscNumbers returns the distinct disc numbers of an album
func (a *Albums) GetDiscNumbers(ctx context.Context, albumID int64) ([]int64, error) {
	return readIDs(ctx, a.m, `
		SELECT DISTINCT discnumber FROM tracks
		WHERE album_id = ? AND discnumber IS NOT NULL
		ORDER BY discnumber
	`, albumID)
}

// GetDuration returns the summed track duration in milliseconds
func (a *Albums) GetDuration(ctx context.Context, albumID int64) (int64, error) {
	return readValue[int64](ctx, a.m,
		"SELECT SUM(duration) FROM tracks WHERE album_id = ?", albumID)
}

// Count returns the number of albums of the storage type
func (a *Albums) Count(ctx context.Context, storage StorageType) (int64, error) {
	query, args := albumFilter(Filter{StorageType: storage, Skipped: true}).build("COUNT(*)", "")
	return readValue[int64](ctx, a.m, query, args...)
}

// Search matches album names ignoring case and accents, at most 25 results
func (a *Albums) Search(ctx context.Context, text string, storage StorageType) ([]int64, error) {
	query, args := albumFilter(Filter{StorageType: storage, Skipped: true}).
		and(`noaccents(albums.name) LIKE ? ESCAPE '\'`, likePattern(localized.NoAccents(text))).
		build("albums.id", "ORDER BY albums.popularity DESC, albums.id LIMIT ?", searchLimit)
	return readIDs(ctx, a.m, query, args...)
}

// CalculateArtistIDs derives the album artists from its tracks. Unless
// disableCompilations is set, two tracks with different artist sets make
// the album a compilation and [TypeCompilations] is returned. With
// compilations disabled, the union of track artists is returned in order
// of appearance.
func (a *Albums) CalculateArtistIDs(ctx context.Context, albumID int64, disableCompilations bool) ([]int64, error) {
	var result []int64
	err := a.m.Read(ctx, func(q sqlcursor.Queryer) error {
		var err error
		result, err = calculateArtistIDs(ctx, q, albumID, disableCompilations)
		return err
	})
	return result, err
}

func calculateArtistIDs(ctx context.Context, q sqlcursor.Queryer, albumID int64, disableCompilations bool) ([]int64, error) {
	trackIDs, err := queryIDs(ctx, q, `
		SELECT id FROM tracks WHERE album_id = ?
		ORDER BY discnumber, tracknumber, id
	`, albumID)
	if err != nil {
		return nil, err
	}

	var result []int64
	for i, trackID := range trackIDs {
		artistIDs, err := queryIDs(ctx, q,
			"SELECT artist_id FROM track_artists WHERE track_id = ? ORDER BY rowid", trackID)
		if err != nil {
			return nil, err
		}
		switch {
		case disableCompilations:
			for _, id := range artistIDs {
				if !containsID(result, id) {
					result = append(result, id)
				}
			}
		case i == 0:
			result = artistIDs
		case !sameSet(result, artistIDs):
			return []int64{TypeCompilations}, nil
		}
	}
	return result, nil
}

// Remove deletes an album with its tracks and links
func (a *Albums) Remove(ctx context.Context, albumID int64) error {
	return a.m.Write(ctx, func(q sqlcursor.Queryer) error {
		stmts := []string{
			"DELETE FROM track_artists WHERE track_id IN (SELECT id FROM tracks WHERE album_id = ?)",
			"DELETE FROM track_genres WHERE track_id IN (SELECT id FROM tracks WHERE album_id = ?)",
			"DELETE FROM tracks WHERE album_id = ?",
			"DELETE FROM album_artists WHERE album_id = ?",
			"DELETE FROM album_genres WHERE album_id = ?",
			"DELETE FROM featuring WHERE album_id = ?",
			"DELETE FROM albums_timed_popularity WHERE album_id = ?",
			"DELETE FROM albums WHERE id = ?",
		}
		for _, stmt := range stmts {
			if _, err := q.ExecContext(ctx, stmt, albumID); err != nil {
				return err
			}
		}
		return nil
	})
}
