package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/lollydb/internal/util"
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove orphaned rows from the store",
	Long: `Delete albums without tracks, artists and genres no longer referenced,
dangling join rows, timed popularity older than a month and stale cached
durations. Running clean twice in a row deletes nothing the second time.

With --non-persistent, ephemeral, search and web tracks are deleted first.`,
	RunE: runClean,
}

var vacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Rebuild every database file",
	Long: `Run VACUUM on lollypop.db, cache_v1.db, playlists.db and history.db.
This may take a while on large collections and cannot be interrupted.`,
	RunE: runVacuum,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(vacuumCmd)

	cleanCmd.Flags().Bool("non-persistent", false, "also delete ephemeral, search and web tracks")
}

func runClean(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openStores(ctx, withCache)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()

	if nonPersistent, _ := cmd.Flags().GetBool("non-persistent"); nonPersistent {
		n, err := s.core.Tracks.DelNonPersistent(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete non persistent tracks: %w", err)
		}
		util.InfoLog("Deleted %d non persistent tracks", n)
	}

	result, err := s.core.Clean(ctx)
	if err != nil {
		return err
	}
	cached, err := s.cache.Clean(ctx)
	if err != nil {
		return err
	}

	util.SuccessLog("Clean complete")
	util.InfoLog("  Albums: %d", result.Albums)
	util.InfoLog("  Artists: %d", result.Artists)
	util.InfoLog("  Genres: %d", result.Genres)
	util.InfoLog("  Links: %d", result.Links)
	util.InfoLog("  Timed popularity: %d", result.TimedPopularity)
	util.InfoLog("  Featuring: %d", result.Featuring)
	util.InfoLog("  Cached durations: %d", cached)
	return nil
}

func runVacuum(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openStores(ctx, withAll)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()

	targets := []struct {
		path   string
		vacuum func(context.Context) error
	}{
		{s.paths.Core, s.core.Vacuum},
		{s.paths.Cache, s.cache.Vacuum},
		{s.paths.Playlists, s.playlists.Vacuum},
		{s.paths.History, s.history.Vacuum},
	}
	for _, t := range targets {
		before, _, _ := util.GetFileMetadata(t.path)
		start := time.Now()
		if err := t.vacuum(ctx); err != nil {
			return fmt.Errorf("vacuum of %s failed: %w", t.path, err)
		}
		after, _, _ := util.GetFileMetadata(t.path)
		util.SuccessLog("%s: %s -> %s in %v", t.path,
			humanize.IBytes(uint64(before)), humanize.IBytes(uint64(after)),
			time.Since(start).Round(time.Millisecond))
	}
	return nil
}
