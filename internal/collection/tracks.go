package collection

import (
	"context"
	"fmt"
	"time"

	"github.com/franz/lollydb/internal/localized"
	"github.com/franz/lollydb/internal/sqlcursor"
	"github.com/franz/lollydb/internal/util"
)

// Tracks accesses the tracks table and its joins
type Tracks struct {
	m *sqlcursor.Manager
}

// TrackInput holds the fields of a new track
type TrackInput struct {
	Name string
	URI  string
	// Duration in milliseconds
	Duration    int64
	TrackNumber int
	DiscNumber  int
	DiscName    string
	AlbumID     int64
	Year        int
	Timestamp   int64
	Popularity  int64
	Rate        int
	Loved       LovedFlags
	Ltime       int64
	Mtime       int64
	MbTrackID   string
	// LpTrackID is derived from the track, album and artist names when empty
	LpTrackID   string
	Bpm         float64
	StorageType StorageType
	ArtistIDs   []int64
	GenreIDs    []int64
}

// Add inserts a track with its artist and genre links. AlbumID must
// reference an existing album.
func (t *Tracks) Add(ctx context.Context, in TrackInput) (int64, error) {
	var id int64
	err := t.m.Write(ctx, func(q sqlcursor.Queryer) error {
		var err error
		id, err = addTrack(ctx, q, in)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add track %q: %w", in.Name, err)
	}
	return id, nil
}

func addTrack(ctx context.Context, q sqlcursor.Queryer, in TrackInput) (int64, error) {
	albumName, err := queryValue[string](ctx, q, "SELECT name FROM albums WHERE id = ?", in.AlbumID)
	if err != nil {
		return 0, err
	}
	if albumName == "" {
		return 0, fmt.Errorf("album %d: %w", in.AlbumID, util.ErrNotFound)
	}

	storage := in.StorageType
	if storage == 0 {
		storage = StorageCollection
	}
	lp := in.LpTrackID
	if lp == "" {
		names, err := artistNamesByID(ctx, q, in.ArtistIDs)
		if err != nil {
			return 0, err
		}
		lp = localized.LpTrackID(in.Name, albumName, names)
	}
	var bpm any
	if in.Bpm != 0 {
		bpm = in.Bpm
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO tracks (name, uri, duration, tracknumber, discnumber, discname,
			album_id, year, timestamp, popularity, rate, loved, ltime, mtime,
			storage_type, mb_track_id, lp_track_id, bpm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, in.Name, in.URI, in.Duration, in.TrackNumber, in.DiscNumber, nullString(in.DiscName),
		in.AlbumID, nullInt(int64(in.Year)), nullInt(in.Timestamp), in.Popularity, in.Rate,
		in.Loved, in.Ltime, in.Mtime, storage, nullString(in.MbTrackID), lp, bpm)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, artistID := range in.ArtistIDs {
		if err := link(ctx, q, "track_artists", "track_id", "artist_id", id, artistID); err != nil {
			return 0, err
		}
	}
	for _, genreID := range in.GenreIDs {
		if err := link(ctx, q, "track_genres", "track_id", "genre_id", id, genreID); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// AddArtist links an artist to a track
func (t *Tracks) AddArtist(ctx context.Context, trackID, artistID int64) error {
	return t.m.Write(ctx, func(q sqlcursor.Queryer) error {
		return link(ctx, q, "track_artists", "track_id", "artist_id", trackID, artistID)
	})
}

// AddGenre links a genre to a track
func (t *Tracks) AddGenre(ctx context.Context, trackID, genreID int64) error {
	return t.m.Write(ctx, func(q sqlcursor.Queryer) error {
		return link(ctx, q, "track_genres", "track_id", "genre_id", trackID, genreID)
	})
}

// SetArtistIDs replaces the track artists
func (t *Tracks) SetArtistIDs(ctx context.Context, trackID int64, artistIDs []int64) error {
	return replaceLinks(ctx, t.m, "track_artists", "track_id", "artist_id", trackID, artistIDs)
}

// SetGenreIDs replaces the track genres
func (t *Tracks) SetGenreIDs(ctx context.Context, trackID int64, genreIDs []int64) error {
	return replaceLinks(ctx, t.m, "track_genres", "track_id", "genre_id", trackID, genreIDs)
}

func (t *Tracks) SetURI(ctx context.Context, trackID int64, uri string) error {
	return setColumn(ctx, t.m, "tracks", "uri", uri, trackID)
}

func (t *Tracks) SetRate(ctx context.Context, trackID int64, rate int) error {
	return setColumn(ctx, t.m, "tracks", "rate", rate, trackID)
}

func (t *Tracks) SetLoved(ctx context.Context, trackID int64, loved LovedFlags) error {
	return setColumn(ctx, t.m, "tracks", "loved", loved, trackID)
}

func (t *Tracks) SetMtime(ctx context.Context, trackID int64, mtime int64) error {
	return setColumn(ctx, t.m, "tracks", "mtime", mtime, trackID)
}

func (t *Tracks) SetStorageType(ctx context.Context, trackID int64, storage StorageType) error {
	return setColumn(ctx, t.m, "tracks", "storage_type", storage, trackID)
}

func (t *Tracks) SetBpm(ctx context.Context, trackID int64, bpm float64) error {
	return setColumn(ctx, t.m, "tracks", "bpm", bpm, trackID)
}

// hotWrite runs a playback-driven write with lock retries. Exhausted
// retries are logged; callers may ignore the returned error.
func (t *Tracks) hotWrite(ctx context.Context, what string, trackID int64, stmt string, args ...any) error {
	err := util.Retry(util.DBRetryConfig(), func() error {
		return t.m.Write(ctx, func(q sqlcursor.Queryer) error {
			_, err := q.ExecContext(ctx, stmt, args...)
			return err
		})
	}, fmt.Sprintf("%s of track %d", what, trackID))
	if err != nil {
		util.WarnLog("Dropped %s update for track %d: %v", what, trackID, err)
	}
	return err
}

// SetPopularity overwrites the track popularity
func (t *Tracks) SetPopularity(ctx context.Context, trackID int64, popularity int64) error {
	return t.hotWrite(ctx, "popularity", trackID,
		"UPDATE tracks SET popularity = ? WHERE id = ?", popularity, trackID)
}

// SetMorePopular adds amount to the track popularity
func (t *Tracks) SetMorePopular(ctx context.Context, trackID int64, amount int64) error {
	return t.hotWrite(ctx, "popularity", trackID,
		"UPDATE tracks SET popularity = popularity + ? WHERE id = ?", amount, trackID)
}

// SetListenedAt records the last listening time
func (t *Tracks) SetListenedAt(ctx context.Context, trackID int64, at time.Time) error {
	return t.hotWrite(ctx, "listened time", trackID,
		"UPDATE tracks SET ltime = ? WHERE id = ?", at.Unix(), trackID)
}

func (t *Tracks) GetName(ctx context.Context, trackID int64) (string, error) {
	return getColumn[string](ctx, t.m, "tracks", "name", trackID)
}

func (t *Tracks) GetURI(ctx context.Context, trackID int64) (string, error) {
	return getColumn[string](ctx, t.m, "tracks", "uri", trackID)
}

func (t *Tracks) GetAlbumID(ctx context.Context, trackID int64) (int64, error) {
	return getColumn[int64](ctx, t.m, "tracks", "album_id", trackID)
}

// GetDuration returns the duration in milliseconds
func (t *Tracks) GetDuration(ctx context.Context, trackID int64) (int64, error) {
	return getColumn[int64](ctx, t.m, "tracks", "duration", trackID)
}

func (t *Tracks) GetYear(ctx context.Context, trackID int64) (int, error) {
	return getColumn[int](ctx, t.m, "tracks", "year", trackID)
}

func (t *Tracks) GetRate(ctx context.Context, trackID int64) (int, error) {
	return getColumn[int](ctx, t.m, "tracks", "rate", trackID)
}

func (t *Tracks) GetLoved(ctx context.Context, trackID int64) (LovedFlags, error) {
	return getColumn[LovedFlags](ctx, t.m, "tracks", "loved", trackID)
}

func (t *Tracks) GetPopularity(ctx context.Context, trackID int64) (int64, error) {
	return getColumn[int64](ctx, t.m, "tracks", "popularity", trackID)
}

func (t *Tracks) GetLtime(ctx context.Context, trackID int64) (int64, error) {
	return getColumn[int64](ctx, t.m, "tracks", "ltime", trackID)
}

func (t *Tracks) GetMtime(ctx context.Context, trackID int64) (int64, error) {
	return getColumn[int64](ctx, t.m, "tracks", "mtime", trackID)
}

func (t *Tracks) GetStorageType(ctx context.Context, trackID int64) (StorageType, error) {
	return getColumn[StorageType](ctx, t.m, "tracks", "storage_type", trackID)
}

func (t *Tracks) GetBpm(ctx context.Context, trackID int64) (float64, error) {
	return getColumn[float64](ctx, t.m, "tracks", "bpm", trackID)
}

func (t *Tracks) GetLpTrackID(ctx context.Context, trackID int64) (string, error) {
	return getColumn[string](ctx, t.m, "tracks", "lp_track_id", trackID)
}

// GetArtistIDs returns the track artists in insertion order
func (t *Tracks) GetArtistIDs(ctx context.Context, trackID int64) ([]int64, error) {
	return readIDs(ctx, t.m,
		"SELECT artist_id FROM track_artists WHERE track_id = ? ORDER BY rowid", trackID)
}

// GetGenreIDs returns the track genres in insertion order
func (t *Tracks) GetGenreIDs(ctx context.Context, trackID int64) ([]int64, error) {
	return readIDs(ctx, t.m,
		"SELECT genre_id FROM track_genres WHERE track_id = ? ORDER BY rowid", trackID)
}

// GetIDByURI returns the track stored at uri, or 0
func (t *Tracks) GetIDByURI(ctx context.Context, uri string) (int64, error) {
	return readValue[int64](ctx, t.m, "SELECT id FROM tracks WHERE uri = ? ORDER BY id LIMIT 1", uri)
}

// GetIDByLpTrackID returns the first track with the content-derived id, or 0
func (t *Tracks) GetIDByLpTrackID(ctx context.Context, lp string) (int64, error) {
	return readValue[int64](ctx, t.m,
		"SELECT id FROM tracks WHERE lp_track_id = ? ORDER BY id LIMIT 1", lp)
}

// trackFilter applies the storage mask and, unless skipped is set, drops
// tracks flagged LovedSkipped
func trackFilter(storage StorageType, skipped bool) *selectQuery {
	s := newSelect("tracks").and("tracks.storage_type & ? != 0", storageMask(storage, nil))
	if !skipped {
		s.and("tracks.loved & ? = 0", LovedSkipped)
	}
	return s
}

// GetIDs returns tracks of the given genres and artists. Albums follow
// f.OrderBy; tracks of one album follow disc and track numbers.
func (t *Tracks) GetIDs(ctx context.Context, f Filter) ([]int64, error) {
	s := trackFilter(storageMask(f.StorageType, f.GenreIDs), f.Skipped).
		join("JOIN albums ON albums.id = tracks.album_id")
	if genres := realIDs(f.GenreIDs); len(genres) > 0 {
		s.join(trackGenresJoin).in("track_genres.genre_id", genres)
	}
	s.artists(f.ArtistIDs)
	if f.OrderBy.needsArtists() {
		s.join("LEFT JOIN album_artists AS order_artists ON order_artists.album_id = albums.id").
			join("LEFT JOIN artists ON artists.id = order_artists.artist_id")
	}
	limit, limitArgs := f.limitClause()
	query, args := s.build("tracks.id",
		"GROUP BY tracks.id ORDER BY "+f.OrderBy.albumClause()+
			", tracks.discnumber, tracks.tracknumber, tracks.id"+limit, limitArgs...)
	return readIDs(ctx, t.m, query, args...)
}

// GetPopulars returns played tracks by popularity
func (t *Tracks) GetPopulars(ctx context.Context, storage StorageType, limit int) ([]int64, error) {
	query, args := trackFilter(storage, false).
		and("tracks.popularity != 0").
		build("tracks.id", "ORDER BY tracks.popularity DESC, tracks.id LIMIT ?", limit)
	return readIDs(ctx, t.m, query, args...)
}

// GetRecentlyListenedTo returns tracks by last listening time
func (t *Tracks) GetRecentlyListenedTo(ctx context.Context, storage StorageType, limit int) ([]int64, error) {
	query, args := trackFilter(storage, false).
		and("tracks.ltime != 0").
		build("tracks.id", "ORDER BY tracks.ltime DESC, tracks.id LIMIT ?", limit)
	return readIDs(ctx, t.m, query, args...)
}

// GetRandoms returns random tracks
func (t *Tracks) GetRandoms(ctx context.Context, storage StorageType, limit int) ([]int64, error) {
	query, args := trackFilter(storage, false).
		build("tracks.id", "ORDER BY random() LIMIT ?", limit)
	return readIDs(ctx, t.m, query, args...)
}

// GetSkipped returns tracks flagged LovedSkipped
func (t *Tracks) GetSkipped(ctx context.Context, storage StorageType) ([]int64, error) {
	query, args := trackFilter(storage, true).
		and("tracks.loved & ? != 0", LovedSkipped).
		build("tracks.id", "ORDER BY tracks.id")
	return readIDs(ctx, t.m, query, args...)
}

// GetLovedIDs returns tracks flagged LovedLoved
func (t *Tracks) GetLovedIDs(ctx context.Context, storage StorageType) ([]int64, error) {
	query, args := trackFilter(storage, true).
		and("tracks.loved & ? != 0", LovedLoved).
		build("tracks.id", "ORDER BY tracks.popularity DESC, tracks.id")
	return readIDs(ctx, t.m, query, args...)
}

// GetMtimes maps the uri of every track of the storage type to its mtime
func (t *Tracks) GetMtimes(ctx context.Context, storage StorageType) (map[string]int64, error) {
	query, args := trackFilter(storage, true).build("tracks.uri, tracks.mtime", "")
	mtimes := make(map[string]int64)
	err := t.m.Read(ctx, func(q sqlcursor.Queryer) error {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var uri string
			var mtime int64
			if err := rows.Scan(&uri, &mtime); err != nil {
				return err
			}
			mtimes[uri] = mtime
		}
		return rows.Err()
	})
	return mtimes, err
}

// Search matches track names ignoring case and accents, at most 25 results
func (t *Tracks) Search(ctx context.Context, text string, storage StorageType) ([]int64, error) {
	query, args := trackFilter(storage, true).
		and(`noaccents(tracks.name) LIKE ? ESCAPE '\'`, likePattern(localized.NoAccents(text))).
		build("tracks.id", "ORDER BY tracks.popularity DESC, tracks.id LIMIT ?", searchLimit)
	return readIDs(ctx, t.m, query, args...)
}

// Count returns the number of tracks of the storage type
func (t *Tracks) Count(ctx context.Context, storage StorageType) (int64, error) {
	query, args := trackFilter(storage, true).build("COUNT(*)", "")
	return readValue[int64](ctx, t.m, query, args...)
}

// Remove deletes a track and its links
func (t *Tracks) Remove(ctx context.Context, trackID int64) error {
	return t.m.Write(ctx, func(q sqlcursor.Queryer) error {
		return deleteTracks(ctx, q, "tracks.id = ?", trackID)
	})
}

// DelNonPersistent deletes ephemeral, search and web tracks
func (t *Tracks) DelNonPersistent(ctx context.Context) (int64, error) {
	return t.delByStorage(ctx, "tracks.storage_type & ? != 0", StorageNonPersistent)
}

// DelPersistent deletes every track that is not ephemeral, search or web
func (t *Tracks) DelPersistent(ctx context.Context) (int64, error) {
	return t.delByStorage(ctx, "tracks.storage_type & ? = 0", StorageNonPersistent)
}

func (t *Tracks) delByStorage(ctx context.Context, cond string, mask StorageType) (int64, error) {
	var n int64
	err := t.m.Write(ctx, func(q sqlcursor.Queryer) error {
		var err error
		n, err = queryValue[int64](ctx, q, "SELECT COUNT(*) FROM tracks WHERE "+cond, mask)
		if err != nil {
			return err
		}
		return deleteTracks(ctx, q, cond, mask)
	})
	return n, err
}

// deleteTracks removes the tracks matching cond and their links
func deleteTracks(ctx context.Context, q sqlcursor.Queryer, cond string, args ...any) error {
	sub := "SELECT tracks.id FROM tracks WHERE " + cond
	stmts := []string{
		"DELETE FROM track_artists WHERE track_id IN (" + sub + ")",
		"DELETE FROM track_genres WHERE track_id IN (" + sub + ")",
		"DELETE FROM tracks WHERE id IN (" + sub + ")",
	}
	for _, stmt := range stmts {
		if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
			return err
		}
	}
	return nil
}
