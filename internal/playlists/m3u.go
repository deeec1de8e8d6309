package playlists

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/franz/lollydb/internal/collection"
	"github.com/franz/lollydb/internal/sqlcursor"
	"github.com/franz/lollydb/internal/util"
	"github.com/sourcegraph/conc/pool"
)

const (
	maxSyncWorkers = 4
	// smartExportLimit bounds the tracks written for a smart playlist
	smartExportLimit = 1000
)

var errTargetMissing = errors.New("export target missing")

// SyncResult counts the outcome of SyncAll
type SyncResult struct {
	Written int
	Skipped int
	Failed  int
}

type m3uEntry struct {
	uri      string
	name     string
	duration int64
}

// SyncAll exports every playlist with a target URI to an .m3u file.
// Playlists whose target directory is missing, such as an unmounted
// device, are logged and skipped; the database is never modified.
func (p *Playlists) SyncAll(ctx context.Context, tracks *collection.Tracks) (*SyncResult, error) {
	lists, err := p.GetSynced(ctx)
	if err != nil {
		return nil, err
	}

	workers := pool.NewWithResults[error]().WithMaxGoroutines(maxSyncWorkers)
	for _, pl := range lists {
		workers.Go(func() error {
			return p.export(ctx, pl, tracks)
		})
	}

	result := &SyncResult{}
	for _, err := range workers.Wait() {
		switch {
		case err == nil:
			result.Written++
		case errors.Is(err, errTargetMissing):
			result.Skipped++
		default:
			result.Failed++
			util.ErrorLog("%v", err)
		}
	}
	return result, nil
}

// Export writes one playlist to its target
func (p *Playlists) Export(ctx context.Context, id int64, tracks *collection.Tracks) error {
	pl, err := p.Get(ctx, id)
	if err != nil {
		return err
	}
	if pl == nil {
		return fmt.Errorf("playlist %d: %w", id, util.ErrNotFound)
	}
	return p.export(ctx, *pl, tracks)
}

func (p *Playlists) export(ctx context.Context, pl Playlist, tracks *collection.Tracks) error {
	path, ok := collection.URIToPath(pl.URI)
	if !ok && filepath.IsAbs(pl.URI) {
		path, ok = pl.URI, true
	}
	if !ok {
		return fmt.Errorf("playlist %q: unsupported target %s", pl.Name, pl.URI)
	}
	if info, err := os.Stat(filepath.Dir(path)); err != nil || !info.IsDir() {
		util.WarnLog("Skipping playlist %q: %s is not available", pl.Name, filepath.Dir(path))
		return errTargetMissing
	}

	entries, err := p.entries(ctx, pl, tracks)
	if err != nil {
		return fmt.Errorf("playlist %q: %w", pl.Name, err)
	}
	if err := writeM3U(path, entries); err != nil {
		return fmt.Errorf("playlist %q: %w", pl.Name, err)
	}
	util.DebugLog("Exported playlist %q (%d tracks) to %s", pl.Name, len(entries), path)
	return nil
}

func (p *Playlists) entries(ctx context.Context, pl Playlist, tracks *collection.Tracks) ([]m3uEntry, error) {
	if pl.SmartEnabled && pl.SmartSQL != "" {
		ids, err := tracks.ExecuteSQL(ctx, pl.SmartSQL, smartExportLimit)
		if err != nil {
			return nil, err
		}
		entries := make([]m3uEntry, 0, len(ids))
		for _, id := range ids {
			var e m3uEntry
			if e.uri, err = tracks.GetURI(ctx, id); err != nil {
				return nil, err
			}
			if e.name, err = tracks.GetName(ctx, id); err != nil {
				return nil, err
			}
			if e.duration, err = tracks.GetDuration(ctx, id); err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
		return entries, nil
	}

	var entries []m3uEntry
	err := p.m.Read(ctx, func(q sqlcursor.Queryer) error {
		rows, err := q.QueryContext(ctx, `
			SELECT member.uri, ifnull(core.name, ''), ifnull(core.duration, 0)
			FROM tracks AS member
			LEFT JOIN music.tracks AS core ON core.uri = member.uri
			WHERE member.playlist_id = ?
			ORDER BY member.rowid
		`, pl.ID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e m3uEntry
			if err := rows.Scan(&e.uri, &e.name, &e.duration); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	return entries, err
}

// writeM3U writes to a temporary file renamed over path
func writeM3U(path string, entries []m3uEntry) error {
	cfg := util.DefaultRetryConfig()
	tmp := path + ".tmp"
	f, err := util.RetryableCreate(tmp, cfg)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "#EXTM3U")
	for _, e := range entries {
		location := e.uri
		if local, ok := collection.URIToPath(e.uri); ok {
			location = local
		}
		if e.name != "" {
			fmt.Fprintf(w, "#EXTINF:%d,%s\n", e.duration/1000, e.name)
		}
		fmt.Fprintln(w, location)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return util.RetryableRename(tmp, path, cfg)
}
