package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/franz/lollydb/internal/collection"
	"github.com/franz/lollydb/internal/playlists"
	"github.com/franz/lollydb/internal/util"
	"github.com/spf13/cobra"
)

// smartListLimit bounds the tracks shown for a smart playlist
const smartListLimit = 100

var playlistsCmd = &cobra.Command{
	Use:     "playlists",
	Aliases: []string{"pl"},
	Short:   "Manage playlists",
	RunE:    runPlaylistsList,
}

var playlistsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "List the tracks of a playlist",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlaylistsShow,
}

var playlistsAddCmd = &cobra.Command{
	Use:   "add <name> <file|uri>...",
	Short: "Create a playlist and append tracks to it",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPlaylistsAdd,
}

var playlistsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a playlist",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlaylistsRemove,
}

var playlistsTargetCmd = &cobra.Command{
	Use:   "target <name> [file.m3u]",
	Short: "Set or clear the .m3u file a playlist exports to",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runPlaylistsTarget,
}

var playlistsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Export every playlist with a target to .m3u",
	Long: `Write every playlist with an export target to its .m3u file.
Playlists whose target directory is missing, such as an unmounted device,
are skipped with a warning.`,
	RunE: runPlaylistsSync,
}

var moveCmd = &cobra.Command{
	Use:   "move <old file|uri> <new file|uri>",
	Short: "Record that a track file moved",
	Long: `Update the location of a track in the collection, then in every playlist.
The two databases commit separately; if the second commit fails the
playlists keep the old location and the command reports it.`,
	Args: cobra.ExactArgs(2),
	RunE: runMove,
}

func init() {
	rootCmd.AddCommand(playlistsCmd)
	rootCmd.AddCommand(moveCmd)
	playlistsCmd.AddCommand(playlistsShowCmd, playlistsAddCmd, playlistsRemoveCmd,
		playlistsTargetCmd, playlistsSyncCmd)
}

// toURI accepts either a URI or a file path
func toURI(arg string) (string, error) {
	if strings.Contains(arg, "://") {
		return arg, nil
	}
	path, err := filepath.Abs(arg)
	if err != nil {
		return "", err
	}
	return collection.PathToURI(path), nil
}

func lookupPlaylist(ctx context.Context, s *stores, name string) (int64, error) {
	id, err := s.playlists.GetID(ctx, name)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, fmt.Errorf("playlist %q: %w", name, util.ErrNotFound)
	}
	return id, nil
}

func runPlaylistsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openStores(ctx, withPlaylists)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()

	all, err := s.playlists.GetAll(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		util.InfoLog("No playlists")
		return nil
	}
	for _, pl := range all {
		kind := "static"
		if pl.SmartEnabled {
			kind = "smart"
		}
		line := fmt.Sprintf("%6d  %-30s %-6s modified %s", pl.ID, pl.Name, kind, formatUnix(pl.Mtime))
		if pl.URI != "" {
			line += "  -> " + pl.URI
		}
		fmt.Println(line)
	}
	return nil
}

func runPlaylistsShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openStores(ctx, withPlaylists)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()

	id, err := lookupPlaylist(ctx, s, args[0])
	if err != nil {
		return err
	}
	pl, err := s.playlists.Get(ctx, id)
	if err != nil {
		return err
	}

	var ids []int64
	if pl.SmartEnabled {
		ids, err = s.playlists.GetSmartTrackIDs(ctx, id, s.core.Tracks, smartListLimit)
	} else {
		ids, err = s.playlists.GetTrackIDs(ctx, id)
	}
	if err != nil {
		return err
	}
	return printTracks(ctx, s.core, ids)
}

func runPlaylistsAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openStores(ctx, withPlaylists)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()

	id, err := s.playlists.Add(ctx, args[0])
	if err != nil {
		return err
	}
	uris := make([]string, 0, len(args)-1)
	for _, arg := range args[1:] {
		uri, err := toURI(arg)
		if err != nil {
			return err
		}
		uris = append(uris, uri)
	}
	if err := s.playlists.AddURIs(ctx, id, uris); err != nil {
		return err
	}
	util.SuccessLog("Playlist %q: added %d tracks", args[0], len(uris))
	return nil
}

func runPlaylistsRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openStores(ctx, withPlaylists)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()

	id, err := lookupPlaylist(ctx, s, args[0])
	if err != nil {
		return err
	}
	return s.playlists.Remove(ctx, id)
}

func runPlaylistsTarget(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openStores(ctx, withPlaylists)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()

	id, err := lookupPlaylist(ctx, s, args[0])
	if err != nil {
		return err
	}
	uri := ""
	if len(args) == 2 {
		if uri, err = toURI(args[1]); err != nil {
			return err
		}
	}
	return s.playlists.SetURI(ctx, id, uri)
}

func runPlaylistsSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openStores(ctx, withPlaylists)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()

	result, err := s.playlists.SyncAll(ctx, s.core.Tracks)
	if err != nil {
		return err
	}
	util.SuccessLog("Sync complete: %d written, %d skipped, %d failed",
		result.Written, result.Skipped, result.Failed)
	if result.Failed > 0 {
		return fmt.Errorf("%d playlists failed to export", result.Failed)
	}
	return nil
}

func runMove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	oldURI, err := toURI(args[0])
	if err != nil {
		return err
	}
	newURI, err := toURI(args[1])
	if err != nil {
		return err
	}

	s, err := openStores(ctx, withPlaylists)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()

	if err := playlists.RenameTrackURI(ctx, s.core, s.playlists, oldURI, newURI); err != nil {
		return err
	}
	util.SuccessLog("Moved %s -> %s", oldURI, newURI)
	return nil
}
