package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
)

// Tags holds what ingestion needs from one audio file
type Tags struct {
	Title        string
	Artists      []string
	AlbumArtists []string
	Album        string
	Genres       []string
	Year         int
	TrackNumber  int
	DiscNumber   int
	DiscName     string
	// Duration in milliseconds, 0 when unknown
	Duration    int64
	Bpm         float64
	MbAlbumID   string
	MbTrackID   string
	Compilation bool
}

// Multi-valued tags are joined with this
const separator = ";"

// ReadTags reads the tags of path. Missing title and album fall back to the
// file and directory names.
func ReadTags(path string) (*Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}

	t := &Tags{
		Title:        strings.TrimSpace(m.Title()),
		Artists:      splitValues(m.Artist()),
		AlbumArtists: splitValues(m.AlbumArtist()),
		Album:        strings.TrimSpace(m.Album()),
		Genres:       splitValues(m.Genre()),
		Year:         m.Year(),
	}
	t.TrackNumber, _ = m.Track()
	t.DiscNumber, _ = m.Disc()

	// TCMP (ID3v2), cpil (MP4), COMPILATION (Vorbis)
	raw := m.Raw()
	for _, key := range []string{"TCMP", "cpil", "compilation", "COMPILATION"} {
		switch v := raw[key].(type) {
		case string:
			t.Compilation = v == "1" || strings.EqualFold(v, "true")
		case int:
			t.Compilation = v == 1
		case bool:
			t.Compilation = v
		}
		if t.Compilation {
			break
		}
	}
	t.DiscName = rawText(raw, "TSST", "discsubtitle")
	t.MbAlbumID = rawText(raw, "musicbrainz_albumid", "MusicBrainz Album Id")
	t.MbTrackID = rawText(raw, "musicbrainz_trackid", "MusicBrainz Release Track Id")
	if bpm := rawText(raw, "TBPM", "bpm", "tmpo"); bpm != "" {
		t.Bpm, _ = strconv.ParseFloat(bpm, 64)
	}

	if t.Title == "" {
		t.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if t.Album == "" {
		t.Album = filepath.Base(filepath.Dir(path))
	}
	return t, nil
}

// rawText looks keys up in the raw tag map, including ID3v2 user text
// frames whose description matches a key
func rawText(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			if s := textValue(v); s != "" {
				return s
			}
		}
		if v, ok := raw[strings.ToLower(key)]; ok {
			if s := textValue(v); s != "" {
				return s
			}
		}
	}
	for name, v := range raw {
		if !strings.HasPrefix(name, "TXXX") {
			continue
		}
		c, ok := v.(*tag.Comm)
		if !ok {
			continue
		}
		for _, key := range keys {
			if strings.EqualFold(c.Description, key) {
				return strings.TrimSpace(c.Text)
			}
		}
	}
	return ""
}

func textValue(v interface{}) string {
	switch v := v.(type) {
	case string:
		return strings.TrimSpace(v)
	case int:
		return strconv.Itoa(v)
	case *tag.Comm:
		return strings.TrimSpace(v.Text)
	}
	return ""
}

// splitValues splits a multi-valued tag and drops empty parts
func splitValues(value string) []string {
	var out []string
	for _, p := range strings.Split(value, separator) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
