package playlists

import (
	"context"
	"fmt"

	"github.com/franz/lollydb/internal/collection"
	"github.com/franz/lollydb/internal/util"
)

// RenameTrackURI moves a track to newURI in the core store, then in every
// playlist. The two stores commit independently: a crash between the
// commits leaves playlists pointing at the old URI until the next rename
// or rescan repairs them.
func RenameTrackURI(ctx context.Context, core *collection.Database, pl *Playlists, oldURI, newURI string) error {
	trackID, err := core.Tracks.GetIDByURI(ctx, oldURI)
	if err != nil {
		return err
	}
	if trackID == 0 {
		return fmt.Errorf("track %s: %w", oldURI, util.ErrNotFound)
	}
	if err := core.Tracks.SetURI(ctx, trackID, newURI); err != nil {
		return fmt.Errorf("failed to rename track %d: %w", trackID, err)
	}

	n, err := pl.UpdateURI(ctx, oldURI, newURI)
	if err != nil {
		util.ErrorLog("Track %d renamed in the collection but not in playlists: %v", trackID, err)
		return fmt.Errorf("failed to rename track %d in playlists: %w", trackID, err)
	}
	util.DebugLog("Renamed track %d to %s (%d playlist entries)", trackID, newURI, n)
	return nil
}
