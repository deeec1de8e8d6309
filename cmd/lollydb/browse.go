package main

import (
	"context"
	"fmt"

	"github.com/franz/lollydb/internal/cache"
	"github.com/franz/lollydb/internal/collection"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Search artists, albums and tracks by name",
	Long: `Search names ignoring case and accents. Each kind returns at most 25
results ordered by popularity.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var randomsCmd = &cobra.Command{
	Use:   "randoms",
	Short: "List random albums or tracks",
	RunE:  runRandoms,
}

var popularsCmd = &cobra.Command{
	Use:   "populars",
	Short: "List the most played albums or tracks",
	RunE:  runPopulars,
}

var albumCmd = &cobra.Command{
	Use:   "album <id>",
	Short: "Show an album with its discs and tracks",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlbum,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(randomsCmd)
	rootCmd.AddCommand(popularsCmd)
	rootCmd.AddCommand(albumCmd)

	for _, cmd := range []*cobra.Command{randomsCmd, popularsCmd} {
		cmd.Flags().Bool("tracks", false, "list tracks instead of albums")
		cmd.Flags().IntP("limit", "n", 10, "number of results")
	}
	randomsCmd.Flags().Bool("artists", false, "list album artists instead of albums")
	popularsCmd.Flags().Bool("moment", false, "rank albums by plays of the last week")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openStores(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()
	db := s.core

	artistIDs, err := db.Artists.Search(ctx, args[0], collection.StorageAll)
	if err != nil {
		return err
	}
	if len(artistIDs) > 0 {
		fmt.Println("Artists:")
		if err := printArtists(ctx, db, artistIDs); err != nil {
			return err
		}
	}

	albumIDs, err := db.Albums.Search(ctx, args[0], collection.StorageAll)
	if err != nil {
		return err
	}
	if len(albumIDs) > 0 {
		fmt.Println("Albums:")
		if err := printAlbums(ctx, db, albumIDs); err != nil {
			return err
		}
	}

	trackIDs, err := db.Tracks.Search(ctx, args[0], collection.StorageAll)
	if err != nil {
		return err
	}
	if len(trackIDs) > 0 {
		fmt.Println("Tracks:")
		if err := printTracks(ctx, db, trackIDs); err != nil {
			return err
		}
	}
	return nil
}

func runRandoms(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	tracks, _ := cmd.Flags().GetBool("tracks")
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStores(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()

	if artists, _ := cmd.Flags().GetBool("artists"); artists {
		ids, err := s.core.Artists.GetRandomIDs(ctx, collection.StorageCollection, limit)
		if err != nil {
			return err
		}
		return printArtists(ctx, s.core, ids)
	}
	if tracks {
		ids, err := s.core.Tracks.GetRandoms(ctx, collection.StorageCollection, limit)
		if err != nil {
			return err
		}
		return printTracks(ctx, s.core, ids)
	}
	ids, err := s.core.Albums.GetRandoms(ctx, collection.StorageCollection, 0, false, limit)
	if err != nil {
		return err
	}
	return printAlbums(ctx, s.core, ids)
}

func runPopulars(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	tracks, _ := cmd.Flags().GetBool("tracks")
	moment, _ := cmd.Flags().GetBool("moment")
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStores(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()

	switch {
	case tracks:
		ids, err := s.core.Tracks.GetPopulars(ctx, collection.StorageAll, limit)
		if err != nil {
			return err
		}
		return printTracks(ctx, s.core, ids)
	case moment:
		ids, err := s.core.Albums.GetPopularsAtTheMoment(ctx, collection.StorageAll, limit)
		if err != nil {
			return err
		}
		return printAlbums(ctx, s.core, ids)
	default:
		ids, err := s.core.Albums.GetPopulars(ctx, collection.StorageAll, limit)
		if err != nil {
			return err
		}
		return printAlbums(ctx, s.core, ids)
	}
}

func runAlbum(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	var albumID int64
	if _, err := fmt.Sscanf(args[0], "%d", &albumID); err != nil {
		return fmt.Errorf("invalid album id %q", args[0])
	}

	s, err := openStores(ctx, withCache)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()
	db := s.core

	line, err := albumLine(ctx, db, albumID)
	if err != nil {
		return err
	}
	if line == "" {
		return fmt.Errorf("album %d not found", albumID)
	}
	duration, err := albumDuration(ctx, db, s.cache, albumID)
	if err != nil {
		return err
	}
	popularity, err := db.Albums.GetPopularity(ctx, albumID)
	if err != nil {
		return err
	}
	fmt.Printf("%s [%s], popularity %d\n", line, formatDuration(duration), popularity)

	discs, err := db.Albums.GetDiscNumbers(ctx, albumID)
	if err != nil {
		return err
	}
	for _, disc := range discs {
		if len(discs) > 1 {
			fmt.Printf("Disc %d\n", disc)
		}
		ids, err := db.Albums.GetTrackIDs(ctx, albumID, []int64{disc}, collection.StorageAll)
		if err != nil {
			return err
		}
		if err := printTracks(ctx, db, ids); err != nil {
			return err
		}
	}
	return nil
}

// albumDuration reads the album duration through the duration cache
func albumDuration(ctx context.Context, db *collection.Database, c *cache.Cache, albumID int64) (int64, error) {
	key := cache.Key(albumID)
	if duration, ok, err := c.Get(ctx, key); err != nil || ok {
		return duration, err
	}
	duration, err := db.Albums.GetDuration(ctx, albumID)
	if err != nil {
		return 0, err
	}
	return duration, c.Set(ctx, key, albumID, duration)
}
