package util

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// Database file names. The directory holding them is configuration.
const (
	CoreDBName      = "lollypop.db"
	CacheDBName     = "cache_v1.db"
	PlaylistsDBName = "playlists.db"
	HistoryDBName   = "history.db"

	defaultHistoryLimit = 20000
)

// Paths holds the resolved location of every database file
type Paths struct {
	DataDir   string
	Core      string
	Cache     string
	Playlists string
	History   string
}

// NewPaths resolves database file paths under dir
func NewPaths(dir string) *Paths {
	return &Paths{
		DataDir:   dir,
		Core:      filepath.Join(dir, CoreDBName),
		Cache:     filepath.Join(dir, CacheDBName),
		Playlists: filepath.Join(dir, PlaylistsDBName),
		History:   filepath.Join(dir, HistoryDBName),
	}
}

// GetDataDir returns the configured data directory, defaulting to
// $XDG_DATA_HOME/lollypop
func GetDataDir() string {
	if dir := viper.GetString("data-dir"); dir != "" {
		return dir
	}
	return filepath.Join(xdg.DataHome, "lollypop")
}

// GetPaths resolves and creates the data directory
func GetPaths() (*Paths, error) {
	dir := GetDataDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: data dir %s: %v", ErrInvalidConfig, dir, err)
	}
	return NewPaths(dir), nil
}

// GetLanguage returns the BCP-47 tag used for LOCALIZED collation
func GetLanguage() string {
	if lang := viper.GetString("language"); lang != "" {
		return lang
	}
	return "und"
}

// GetShowSortnames returns whether artists are displayed by sortname
func GetShowSortnames() bool {
	return viper.GetBool("show-sortnames")
}

// GetHistoryLimit returns the maximum number of history rows kept
func GetHistoryLimit() int {
	if limit := viper.GetInt("history-limit"); limit > 0 {
		return limit
	}
	return defaultHistoryLimit
}

// GetStrictMigrations returns whether a failing migration step aborts the upgrade
func GetStrictMigrations() bool {
	return viper.GetBool("strict-migrations")
}
