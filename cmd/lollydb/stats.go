package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/franz/lollydb/internal/collection"
	"github.com/franz/lollydb/internal/history"
	"github.com/franz/lollydb/internal/playlists"
	"github.com/franz/lollydb/internal/util"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection counts and database sizes",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openStores(ctx, withAll)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()
	db := s.core

	fmt.Printf("Data directory: %s\n\n", s.paths.DataDir)

	for _, kind := range []struct {
		label   string
		storage collection.StorageType
	}{
		{"Collection", collection.StorageCollection},
		{"Saved", collection.StorageSaved},
		{"Web", collection.StorageWeb},
		{"All", collection.StorageAll},
	} {
		albums, err := db.Albums.Count(ctx, kind.storage)
		if err != nil {
			return err
		}
		tracks, err := db.Tracks.Count(ctx, kind.storage)
		if err != nil {
			return err
		}
		fmt.Printf("%-12s %8s albums %8s tracks\n", kind.label,
			humanize.Comma(albums), humanize.Comma(tracks))
	}

	artists, err := db.Artists.Count(ctx)
	if err != nil {
		return err
	}
	genres, err := db.Genres.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%-12s %8s\n", "Artists", humanize.Comma(artists))
	fmt.Printf("%-12s %8s\n", "Genres", humanize.Comma(genres))

	all, err := s.playlists.GetAll(ctx)
	if err != nil {
		return err
	}
	saved, err := s.history.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%-12s %8s\n", "Playlists", humanize.Comma(int64(len(all))))
	fmt.Printf("%-12s %8s\n\n", "History", humanize.Comma(saved))

	for _, file := range []struct {
		path    string
		version int
	}{
		{s.paths.Core, collection.Version()},
		{s.paths.Cache, 0},
		{s.paths.Playlists, playlists.Version()},
		{s.paths.History, history.Version()},
	} {
		size, mtime, err := util.GetFileMetadata(file.path)
		if err != nil {
			util.WarnLog("%v", err)
			continue
		}
		fmt.Printf("%-40s %10s  schema %2d  modified %s\n", file.path,
			humanize.IBytes(uint64(size)), file.version, formatUnix(mtime))
	}
	return nil
}
