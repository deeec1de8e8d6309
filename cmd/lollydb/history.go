package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List statistics saved for removed tracks",
	Long: `List the most recent rows of history.db. A row keeps the popularity,
rating and loved state of a track removed from the collection, keyed by
name and duration, and is restored when a matching track is ingested.`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "n", 20, "number of rows")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStores(ctx, withHistory)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()

	entries, err := s.history.Recent(ctx, limit)
	if err != nil {
		return err
	}
	total, err := s.history.Count(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%-40s %7s  popularity %-5d rate %d  listened %-14s saved %s\n",
			e.Name, formatDuration(e.Duration*1000), e.Popularity, e.Rate,
			formatUnix(e.Ltime), formatUnix(e.Mtime))
	}
	fmt.Printf("%s of %s rows\n", humanize.Comma(int64(len(entries))), humanize.Comma(total))
	return nil
}
