package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/franz/lollydb/internal/collection"
	"github.com/franz/lollydb/internal/util"
	"github.com/spf13/cobra"
)

var playedCmd = &cobra.Command{
	Use:   "played <track id>",
	Short: "Record that a track was listened to",
	Long: `Increment the popularity of a track and its album and set the track's
last listened time, as a player does at the end of playback. Writes that
keep hitting a locked database are logged and dropped.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlayed,
}

var rateCmd = &cobra.Command{
	Use:   "rate <track id> <0-5>",
	Short: "Rate a track",
	Args:  cobra.ExactArgs(2),
	RunE:  runRate,
}

var loveCmd = &cobra.Command{
	Use:   "love <track id>",
	Short: "Mark a track loved, or skipped with --skip",
	Args:  cobra.ExactArgs(1),
	RunE:  runLove,
}

func init() {
	rootCmd.AddCommand(playedCmd, rateCmd, loveCmd)

	loveCmd.Flags().Bool("skip", false, "exclude the track from random and smart selections")
	loveCmd.Flags().Bool("clear", false, "clear loved and skipped")
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

// trackAlbum returns the album of a track or ErrNotFound
func trackAlbum(ctx context.Context, db *collection.Database, trackID int64) (int64, error) {
	albumID, err := db.Tracks.GetAlbumID(ctx, trackID)
	if err != nil {
		return 0, err
	}
	if albumID == 0 {
		return 0, fmt.Errorf("track %d: %w", trackID, util.ErrNotFound)
	}
	return albumID, nil
}

func runPlayed(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	trackID, err := parseID(args[0])
	if err != nil {
		return err
	}

	s, err := openStores(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()

	albumID, err := trackAlbum(ctx, s.core, trackID)
	if err != nil {
		return err
	}
	// These writers log their own failures; playback carries on regardless
	if err := s.core.Tracks.SetMorePopular(ctx, trackID, 1); err != nil {
		return nil
	}
	if err := s.core.Tracks.SetListenedAt(ctx, trackID, time.Now()); err != nil {
		return nil
	}
	if err := s.core.Albums.SetMorePopular(ctx, albumID, 1); err != nil {
		util.WarnLog("album %d popularity not updated: %v", albumID, err)
	}
	return nil
}

func runRate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	trackID, err := parseID(args[0])
	if err != nil {
		return err
	}
	rate, err := strconv.Atoi(args[1])
	if err != nil || rate < 0 || rate > 5 {
		return fmt.Errorf("rating must be between 0 and 5, got %q", args[1])
	}

	s, err := openStores(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()

	if _, err := trackAlbum(ctx, s.core, trackID); err != nil {
		return err
	}
	return s.core.Tracks.SetRate(ctx, trackID, rate)
}

func runLove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	trackID, err := parseID(args[0])
	if err != nil {
		return err
	}
	skip, _ := cmd.Flags().GetBool("skip")
	reset, _ := cmd.Flags().GetBool("clear")

	s, err := openStores(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()

	if _, err := trackAlbum(ctx, s.core, trackID); err != nil {
		return err
	}
	loved, err := s.core.Tracks.GetLoved(ctx, trackID)
	if err != nil {
		return err
	}
	switch {
	case reset:
		loved = collection.LovedNone
	case skip:
		loved |= collection.LovedSkipped
	default:
		loved |= collection.LovedLoved
	}
	return s.core.Tracks.SetLoved(ctx, trackID, loved)
}
