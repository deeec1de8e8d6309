package collection

// Latest schema of the core store, run once on new installations
var createSchema = []string{
	`CREATE TABLE albums (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		mb_album_id TEXT,
		lp_album_id TEXT,
		no_album_artist BOOLEAN NOT NULL,
		year INT,
		timestamp INT,
		uri TEXT NOT NULL,
		popularity INT NOT NULL,
		rate INT NOT NULL DEFAULT 0,
		loved INT NOT NULL DEFAULT 0,
		mtime INT NOT NULL,
		synced INT NOT NULL,
		storage_type INT NOT NULL DEFAULT 2
	)`,
	`CREATE TABLE artists (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		sortname TEXT NOT NULL,
		mb_artist_id TEXT
	)`,
	`CREATE TABLE genres (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE album_artists (
		album_id INT NOT NULL,
		artist_id INT NOT NULL
	)`,
	`CREATE TABLE album_genres (
		album_id INT NOT NULL,
		genre_id INT NOT NULL
	)`,
	`CREATE TABLE tracks (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		uri TEXT NOT NULL,
		duration INT,
		tracknumber INT,
		discnumber INT,
		discname TEXT,
		album_id INT NOT NULL,
		year INT,
		timestamp INT,
		popularity INT NOT NULL,
		rate INT NOT NULL DEFAULT 0,
		loved INT NOT NULL DEFAULT 0,
		ltime INT NOT NULL,
		mtime INT NOT NULL,
		storage_type INT NOT NULL DEFAULT 2,
		mb_track_id TEXT,
		lp_track_id TEXT,
		bpm DOUBLE
	)`,
	`CREATE TABLE track_artists (
		track_id INT NOT NULL,
		artist_id INT NOT NULL
	)`,
	`CREATE TABLE track_genres (
		track_id INT NOT NULL,
		genre_id INT NOT NULL
	)`,
	`CREATE TABLE featuring (
		artist_id INT NOT NULL,
		album_id INT NOT NULL
	)`,
	`CREATE TABLE albums_timed_popularity (
		album_id INT NOT NULL,
		mtime INT NOT NULL,
		popularity INT NOT NULL
	)`,
	createIndexes,
}

const createIndexes = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_aa ON album_artists(album_id, artist_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_ag ON album_genres(album_id, genre_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_ta ON track_artists(track_id, artist_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tg ON track_genres(track_id, genre_id);
CREATE INDEX IF NOT EXISTS idx_aa_artist ON album_artists(artist_id);
CREATE INDEX IF NOT EXISTS idx_ag_genre ON album_genres(genre_id);
CREATE INDEX IF NOT EXISTS idx_ta_artist ON track_artists(artist_id);
CREATE INDEX IF NOT EXISTS idx_tg_genre ON track_genres(genre_id);
CREATE INDEX IF NOT EXISTS idx_tracks_album ON tracks(album_id);
CREATE INDEX IF NOT EXISTS idx_tracks_uri ON tracks(uri);
CREATE INDEX IF NOT EXISTS idx_albums_lp ON albums(lp_album_id);
CREATE INDEX IF NOT EXISTS idx_tracks_lp ON tracks(lp_track_id);
CREATE INDEX IF NOT EXISTS idx_featuring ON featuring(artist_id, album_id);
CREATE INDEX IF NOT EXISTS idx_timed_popularity ON albums_timed_popularity(album_id, mtime);
`
