package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/franz/lollydb/internal/ingest"
	"github.com/franz/lollydb/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <directory>",
	Short: "Synchronize the collection with a music directory",
	Long: `Walk a music directory and synchronize the collection with it.

New and modified files are tagged and added. Tracks whose file vanished
are removed after their statistics are saved to history, so a moved file
keeps its popularity and rating. Featuring artists are recomputed and the
store is cleaned at the end. The whole pass is one transaction.

Durations are read with ffprobe when it is installed.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().IntP("concurrency", "c", 8, "number of files read in parallel")
	ingestCmd.Flags().Bool("disable-compilations", false, "merge track artists instead of marking compilations")
	ingestCmd.Flags().StringSlice("ext", nil, "additional audio file extensions")

	viper.BindPFlag("concurrency", ingestCmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("disable-compilations", ingestCmd.Flags().Lookup("disable-compilations"))
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	root := args[0]

	// Verify root exists
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return fmt.Errorf("music directory does not exist: %s", root)
	}

	s, err := openStores(ctx, withCache|withHistory)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()

	exts, _ := cmd.Flags().GetStringSlice("ext")
	ing := ingest.New(&ingest.Config{
		DB:                  s.core,
		History:             s.history,
		AdditionalExts:      exts,
		Concurrency:         GetConfigInt("concurrency", 8),
		DisableCompilations: viper.GetBool("disable-compilations"),
	})

	start := time.Now()
	result, err := ing.Ingest(ctx, root)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	// Cached durations of touched albums are stale
	for _, albumID := range result.AlbumIDs {
		if err := s.cache.ClearAlbum(ctx, albumID); err != nil {
			util.WarnLog("Failed to clear cached durations of album %d: %v", albumID, err)
		}
	}
	if _, err := s.cache.Clean(ctx); err != nil {
		util.WarnLog("Failed to clean duration cache: %v", err)
	}

	util.InfoLog("Ingest took %v", time.Since(start).Round(time.Millisecond))
	util.InfoLog("  Added: %d", result.Added)
	util.InfoLog("  Updated: %d", result.Updated)
	util.InfoLog("  Removed: %d", result.Removed)
	if result.Cleaned != nil && result.Cleaned.Total() > 0 {
		util.InfoLog("  Cleaned: %d rows", result.Cleaned.Total())
	}
	if len(result.Errors) > 0 {
		util.WarnLog("  Errors: %d", len(result.Errors))
	}
	return nil
}
