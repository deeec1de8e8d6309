package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/lollydb/internal/collection"
	"github.com/franz/lollydb/internal/util"
)

// albumLine renders "Artist, Artist - Album (Year)"
func albumLine(ctx context.Context, db *collection.Database, albumID int64) (string, error) {
	name, err := db.Albums.GetName(ctx, albumID)
	if err != nil {
		return "", err
	}
	artistIDs, err := db.Albums.GetArtistIDs(ctx, albumID)
	if err != nil {
		return "", err
	}
	artists, err := artistNames(ctx, db, artistIDs)
	if err != nil {
		return "", err
	}
	year, err := db.Albums.GetYear(ctx, albumID)
	if err != nil {
		return "", err
	}

	line := name
	if artists != "" {
		line = artists + " - " + name
	}
	if year > 0 {
		line += fmt.Sprintf(" (%d)", year)
	}
	return line, nil
}

// trackLine renders "Artist - Title [m:ss]"
func trackLine(ctx context.Context, db *collection.Database, trackID int64) (string, error) {
	name, err := db.Tracks.GetName(ctx, trackID)
	if err != nil {
		return "", err
	}
	artistIDs, err := db.Tracks.GetArtistIDs(ctx, trackID)
	if err != nil {
		return "", err
	}
	artists, err := artistNames(ctx, db, artistIDs)
	if err != nil {
		return "", err
	}
	duration, err := db.Tracks.GetDuration(ctx, trackID)
	if err != nil {
		return "", err
	}

	line := name
	if artists != "" {
		line = artists + " - " + name
	}
	return fmt.Sprintf("%s [%s]", line, formatDuration(duration)), nil
}

func artistNames(ctx context.Context, db *collection.Database, ids []int64) (string, error) {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		name, err := db.Artists.GetName(ctx, id)
		if err != nil {
			return "", err
		}
		names = append(names, name)
	}
	return strings.Join(names, ", "), nil
}

// formatDuration renders milliseconds as m:ss or h:mm:ss
func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// formatUnix renders a unix timestamp relative to now, or "never"
func formatUnix(ts int64) string {
	if ts <= 0 {
		return "never"
	}
	return humanize.Time(time.Unix(ts, 0))
}

func printArtists(ctx context.Context, db *collection.Database, ids []int64) error {
	width := listWidth()
	for _, id := range ids {
		name, err := db.Artists.GetName(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("%6d  %s\n", id, util.Truncate(name, width))
	}
	return nil
}

func printAlbums(ctx context.Context, db *collection.Database, ids []int64) error {
	width := listWidth()
	for _, id := range ids {
		line, err := albumLine(ctx, db, id)
		if err != nil {
			return err
		}
		fmt.Printf("%6d  %s\n", id, util.Truncate(line, width))
	}
	return nil
}

func printTracks(ctx context.Context, db *collection.Database, ids []int64) error {
	width := listWidth()
	for _, id := range ids {
		line, err := trackLine(ctx, db, id)
		if err != nil {
			return err
		}
		fmt.Printf("%6d  %s\n", id, util.Truncate(line, width))
	}
	return nil
}

// listWidth is the room left for a list line after the id column, 0 when
// stdout is not a terminal
func listWidth() int {
	if w := util.OutputWidth(); w > 8 {
		return w - 8
	}
	return 0
}
