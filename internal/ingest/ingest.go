// Package ingest walks a music directory and feeds the core store the way
// a collection scanner does: new and changed files are tagged and added,
// vanished files are removed with their statistics saved to history.
package ingest

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/franz/lollydb/internal/collection"
	"github.com/franz/lollydb/internal/history"
	"github.com/franz/lollydb/internal/util"
	"github.com/schollz/progressbar/v3"
	"github.com/sourcegraph/conc/pool"
)

// AudioExtensions are the default supported audio file extensions
var AudioExtensions = []string{
	".mp3",
	".flac",
	".m4a",
	".aac",
	".ogg",
	".oga",
	".opus",
	".wav",
	".aiff",
	".aif",
	".wma",
	".ape",
	".wv",  // WavPack
	".mpc", // Musepack
	".dsf",
}

// Config holds ingester configuration
type Config struct {
	DB *collection.Database
	// History is optional. Without it no statistics survive a removal.
	History        *history.History
	AdditionalExts []string
	Concurrency    int
	// DisableCompilations merges track artists instead of marking albums
	// without an album artist as compilations
	DisableCompilations bool
	// Probe reads durations; nil uses ffprobe
	Probe Prober
}

// Ingester synchronizes the collection with a directory tree
type Ingester struct {
	db                  *collection.Database
	history             *history.History
	extensions          map[string]bool
	concurrency         int
	disableCompilations bool
	probe               Prober
}

// New creates a new Ingester
func New(cfg *Config) *Ingester {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Probe == nil {
		cfg.Probe = FFprobeDuration
	}

	extMap := make(map[string]bool)
	for _, ext := range AudioExtensions {
		extMap[strings.ToLower(ext)] = true
	}
	for _, ext := range cfg.AdditionalExts {
		extMap[strings.ToLower(ext)] = true
	}

	return &Ingester{
		db:                  cfg.DB,
		history:             cfg.History,
		extensions:          extMap,
		concurrency:         cfg.Concurrency,
		disableCompilations: cfg.DisableCompilations,
		probe:               cfg.Probe,
	}
}

// Result represents an ingest result
type Result struct {
	FilesFound int
	Added      int
	Updated    int
	Unchanged  int
	Removed    int
	// AlbumIDs are the albums that gained or lost tracks
	AlbumIDs []int64
	Cleaned  *collection.CleanResult
	Errors   []error
}

type audioFile struct {
	path  string
	uri   string
	mtime int64
}

type scanned struct {
	audioFile
	tags *Tags
	err  error
}

// Ingest synchronizes the collection tracks under root with the files
// found there. All writes happen in one long scope that commits at the end;
// a failing write discards the whole pass.
func (i *Ingester) Ingest(ctx context.Context, root string) (*Result, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root %s: %w", root, err)
	}
	util.InfoLog("Starting ingest of: %s", root)

	result := &Result{}
	known, err := i.db.Tracks.GetMtimes(ctx, collection.StorageCollection)
	if err != nil {
		return nil, fmt.Errorf("failed to load track mtimes: %w", err)
	}
	util.DebugLog("Loaded %d known tracks", len(known))

	files, err := i.walk(ctx, root, result)
	if err != nil {
		return result, err
	}
	result.FilesFound = len(files)

	seen := make(map[string]bool, len(files))
	var pending []audioFile
	var changed []string
	for _, f := range files {
		seen[f.uri] = true
		mtime, ok := known[f.uri]
		switch {
		case !ok:
			pending = append(pending, f)
		case mtime != f.mtime:
			pending = append(pending, f)
			changed = append(changed, f.uri)
		default:
			result.Unchanged++
		}
	}
	prefix := collection.PathToURI(root) + "/"
	var vanished []string
	for uri := range known {
		if !seen[uri] && strings.HasPrefix(uri, prefix) {
			vanished = append(vanished, uri)
		}
	}
	slices.Sort(vanished)

	read := i.readAll(ctx, pending)
	if err := ctx.Err(); err != nil {
		return result, err
	}

	m := i.db.Manager()
	scope, err := m.Add(ctx)
	if err != nil {
		return result, err
	}
	if err := i.apply(scope, read, changed, vanished, result); err != nil {
		m.Discard(scope)
		return result, err
	}
	if err := m.Remove(scope); err != nil {
		return result, fmt.Errorf("failed to commit ingest: %w", err)
	}

	util.SuccessLog("Ingest complete: %d files, %d added, %d updated, %d removed, %d unchanged, %d errors",
		result.FilesFound, result.Added, result.Updated, result.Removed, result.Unchanged, len(result.Errors))
	return result, nil
}

func (i *Ingester) walk(ctx context.Context, root string, result *Result) ([]audioFile, error) {
	var files []audioFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			util.WarnLog("Error accessing path %s: %v", path, err)
			result.Errors = append(result.Errors, fmt.Errorf("access error: %s: %w", path, err))
			return nil
		}
		if d.IsDir() || !i.isAudioFile(path) {
			return nil
		}
		_, mtime, err := util.GetFileMetadata(path)
		if err != nil {
			result.Errors = append(result.Errors, err)
			return nil
		}
		files = append(files, audioFile{path: path, uri: collection.PathToURI(path), mtime: mtime})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk error: %w", err)
	}
	return files, nil
}

// readAll reads tags concurrently. Results are sorted by path so track ids
// follow the directory layout.
func (i *Ingester) readAll(ctx context.Context, files []audioFile) []*scanned {
	if len(files) == 0 {
		return nil
	}

	var bar *progressbar.ProgressBar
	if util.IsTerminal(os.Stdout.Fd()) && !util.IsQuiet() {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Reading tags"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	workers := pool.NewWithResults[*scanned]().WithMaxGoroutines(i.concurrency)
	for _, f := range files {
		workers.Go(func() *scanned {
			s := &scanned{audioFile: f}
			defer func() {
				if bar != nil {
					bar.Add(1)
				}
			}()
			if err := ctx.Err(); err != nil {
				s.err = err
				return s
			}
			s.tags, s.err = ReadTags(f.path)
			if s.err != nil {
				return s
			}
			duration, err := i.probe(ctx, f.path)
			switch {
			case err == nil:
				s.tags.Duration = duration
			case !errors.Is(err, util.ErrNotFound):
				util.DebugLog("No duration for %s: %v", f.path, err)
			}
			return s
		})
	}
	read := workers.Wait()
	if bar != nil {
		bar.Finish()
	}
	slices.SortFunc(read, func(a, b *scanned) int {
		return cmp.Compare(a.path, b.path)
	})
	return read
}

func (i *Ingester) apply(ctx context.Context, read []*scanned, changed, vanished []string, result *Result) error {
	touched := make(map[int64]bool)
	for _, uri := range changed {
		albumID, err := i.removeTrack(ctx, uri)
		if err != nil {
			return err
		}
		touched[albumID] = true
	}
	for _, uri := range vanished {
		albumID, err := i.removeTrack(ctx, uri)
		if err != nil {
			return err
		}
		touched[albumID] = true
		result.Removed++
	}

	isChanged := make(map[string]bool, len(changed))
	for _, uri := range changed {
		isChanged[uri] = true
	}
	inferred := make(map[int64]bool)
	for _, s := range read {
		if s.err != nil {
			util.WarnLog("Skipping %s: %v", s.path, s.err)
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", s.path, s.err))
			continue
		}
		albumID, noAlbumArtist, err := i.addTrack(ctx, s)
		if err != nil {
			return err
		}
		touched[albumID] = true
		if noAlbumArtist {
			inferred[albumID] = true
		}
		if isChanged[s.uri] {
			result.Updated++
		} else {
			result.Added++
		}
	}

	for albumID := range inferred {
		artistIDs, err := i.db.Albums.CalculateArtistIDs(ctx, albumID, i.disableCompilations)
		if err != nil {
			return err
		}
		if err := i.db.Albums.SetInferredArtistIDs(ctx, albumID, artistIDs); err != nil {
			return err
		}
	}

	for albumID := range touched {
		if albumID != 0 {
			result.AlbumIDs = append(result.AlbumIDs, albumID)
		}
	}
	slices.Sort(result.AlbumIDs)

	if err := i.db.Artists.UpdateFeaturing(ctx); err != nil {
		return err
	}
	cleaned, err := i.db.Clean(ctx)
	if err != nil {
		return err
	}
	result.Cleaned = cleaned
	return nil
}

// addTrack adds one scanned file and returns its album id and whether the
// album has no declared album artist
func (i *Ingester) addTrack(ctx context.Context, s *scanned) (int64, bool, error) {
	t := s.tags
	artistIDs, err := i.artistIDs(ctx, t.Artists)
	if err != nil {
		return 0, false, err
	}
	var albumArtistIDs []int64
	switch {
	case len(t.AlbumArtists) > 0:
		if albumArtistIDs, err = i.artistIDs(ctx, t.AlbumArtists); err != nil {
			return 0, false, err
		}
	case t.Compilation && !i.disableCompilations:
		albumArtistIDs = []int64{collection.TypeCompilations}
	}
	var genreIDs []int64
	for _, name := range t.Genres {
		id, err := i.db.Genres.Add(ctx, name)
		if err != nil {
			return 0, false, err
		}
		genreIDs = append(genreIDs, id)
	}

	var timestamp int64
	if t.Year > 0 {
		timestamp = time.Date(t.Year, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
	}

	var saved *history.Entry
	if i.history != nil {
		if saved, err = i.history.Get(ctx, t.Title, t.Duration/1000); err != nil {
			util.WarnLog("history lookup failed for %s: %v", s.path, err)
		}
	}

	albumID, err := i.db.Albums.GetID(ctx, t.Album, t.MbAlbumID, albumArtistIDs)
	if err != nil {
		return 0, false, err
	}
	if albumID == 0 {
		in := collection.AlbumInput{
			Name:        t.Album,
			MbAlbumID:   t.MbAlbumID,
			ArtistIDs:   albumArtistIDs,
			URI:         collection.PathToURI(filepath.Dir(s.path)),
			Year:        t.Year,
			Timestamp:   timestamp,
			Mtime:       s.mtime,
			StorageType: collection.StorageCollection,
		}
		if saved != nil {
			in.Rate = saved.AlbumRate
			in.Loved = collection.LovedFlags(saved.AlbumLoved)
			in.Popularity = saved.AlbumPopularity
		}
		if albumID, err = i.db.Albums.Add(ctx, in); err != nil {
			return 0, false, err
		}
	}
	for _, genreID := range genreIDs {
		if err := i.db.Albums.AddGenre(ctx, albumID, genreID); err != nil {
			return 0, false, err
		}
	}

	in := collection.TrackInput{
		Name:        t.Title,
		URI:         s.uri,
		Duration:    t.Duration,
		TrackNumber: t.TrackNumber,
		DiscNumber:  t.DiscNumber,
		DiscName:    t.DiscName,
		AlbumID:     albumID,
		Year:        t.Year,
		Timestamp:   timestamp,
		Mtime:       s.mtime,
		MbTrackID:   t.MbTrackID,
		Bpm:         t.Bpm,
		StorageType: collection.StorageCollection,
		ArtistIDs:   artistIDs,
		GenreIDs:    genreIDs,
	}
	if saved != nil {
		in.Popularity = saved.Popularity
		in.Rate = saved.Rate
		in.Loved = collection.LovedFlags(saved.Loved)
		in.Ltime = saved.Ltime
		util.DebugLog("Restored statistics of %q from history", t.Title)
	}
	if _, err := i.db.Tracks.Add(ctx, in); err != nil {
		return 0, false, err
	}
	return albumID, len(albumArtistIDs) == 0, nil
}

func (i *Ingester) artistIDs(ctx context.Context, names []string) ([]int64, error) {
	var ids []int64
	for _, name := range names {
		id, err := i.db.Artists.GetID(ctx, name, "")
		if err != nil {
			return nil, err
		}
		if id == 0 {
			if id, err = i.db.Artists.Add(ctx, name, "", ""); err != nil {
				return nil, err
			}
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// removeTrack deletes the track at uri, saving its statistics to history
// first. It returns the album the track belonged to.
func (i *Ingester) removeTrack(ctx context.Context, uri string) (int64, error) {
	tracks := i.db.Tracks
	trackID, err := tracks.GetIDByURI(ctx, uri)
	if err != nil || trackID == 0 {
		return 0, err
	}
	albumID, err := tracks.GetAlbumID(ctx, trackID)
	if err != nil {
		return 0, err
	}

	if i.history != nil {
		if err := i.saveHistory(ctx, trackID, albumID); err != nil {
			util.WarnLog("failed to save history of %s: %v", uri, err)
		}
	}
	if err := tracks.Remove(ctx, trackID); err != nil {
		return 0, fmt.Errorf("failed to remove %s: %w", uri, err)
	}
	util.DebugLog("Removed %s", uri)
	return albumID, nil
}

func (i *Ingester) saveHistory(ctx context.Context, trackID, albumID int64) error {
	tracks, albums := i.db.Tracks, i.db.Albums
	var e history.Entry
	var err error
	if e.Name, err = tracks.GetName(ctx, trackID); err != nil {
		return err
	}
	duration, err := tracks.GetDuration(ctx, trackID)
	if err != nil {
		return err
	}
	e.Duration = duration / 1000
	if e.Ltime, err = tracks.GetLtime(ctx, trackID); err != nil {
		return err
	}
	if e.Popularity, err = tracks.GetPopularity(ctx, trackID); err != nil {
		return err
	}
	if e.Rate, err = tracks.GetRate(ctx, trackID); err != nil {
		return err
	}
	loved, err := tracks.GetLoved(ctx, trackID)
	if err != nil {
		return err
	}
	e.Loved = int64(loved)

	if e.AlbumRate, err = albums.GetRate(ctx, albumID); err != nil {
		return err
	}
	albumLoved, err := albums.GetLoved(ctx, albumID)
	if err != nil {
		return err
	}
	e.AlbumLoved = int64(albumLoved)
	if e.AlbumPopularity, err = albums.GetPopularity(ctx, albumID); err != nil {
		return err
	}
	return i.history.Add(ctx, e)
}

func (i *Ingester) isAudioFile(path string) bool {
	return i.extensions[strings.ToLower(filepath.Ext(path))]
}
