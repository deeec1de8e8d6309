package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/lollydb/internal/collection"
	"github.com/franz/lollydb/internal/history"
	"github.com/franz/lollydb/internal/migrate"
	"github.com/franz/lollydb/internal/playlists"
	"github.com/franz/lollydb/internal/sqlcursor"
	"github.com/franz/lollydb/internal/util"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and databases",
	Long: `Run diagnostic checks to ensure lollydb can operate correctly.

This command checks:
- Optional tools (ffprobe for track durations)
- SQLite version
- Data directory permissions and disk space
- Integrity and schema version of every database file

Doctor never migrates a database.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

// dbFile is one database doctor inspects. version < 0 skips the schema check.
type dbFile struct {
	name    string
	path    string
	version int
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	util.InfoLog("=== lollydb doctor ===")
	util.InfoLog("")

	dir := util.GetDataDir()
	paths := util.NewPaths(dir)

	results := []checkResult{
		checkFFprobe(),
		checkSQLite(),
		checkDataDirectory(dir),
	}
	if _, err := os.Stat(dir); err == nil {
		results = append(results, checkDiskSpace(dir))
	}
	for _, f := range []dbFile{
		{name: "Core database", path: paths.Core, version: collection.Version()},
		{name: "Cache database", path: paths.Cache, version: -1},
		{name: "Playlists database", path: paths.Playlists, version: playlists.Version()},
		{name: "History database", path: paths.History, version: history.Version()},
	} {
		results = append(results, checkDatabase(ctx, f))
	}

	util.InfoLog("")
	hasErrors, hasWarnings := printResults(results)
	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("Some critical checks failed")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("Some checks produced warnings")
	} else {
		util.SuccessLog("All checks passed")
	}
	return nil
}

func printResults(results []checkResult) (hasErrors, hasWarnings bool) {
	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += ": " + r.message
		}

		switch {
		case r.error:
			util.ErrorLog("%s", line)
		case r.warning:
			util.WarnLog("%s", line)
		default:
			util.SuccessLog("%s", line)
		}
	}
	return hasErrors, hasWarnings
}

// checkFFprobe reports the ffprobe version. Ingestion works without it,
// durations then stay unknown.
func checkFFprobe() checkResult {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, "ffprobe", "-version").CombinedOutput()
	if err != nil {
		return checkResult{
			name:    "ffprobe (optional)",
			warning: true,
			message: "not found (track durations will not be read)",
		}
	}
	return checkResult{
		name:    "ffprobe (optional)",
		message: "version " + ffprobeVersion(string(output)),
	}
}

// ffprobeVersion extracts the version from the first line of ffprobe -version
func ffprobeVersion(output string) string {
	line, _, _ := strings.Cut(output, "\n")
	if parts := strings.Fields(line); len(parts) >= 3 {
		return parts[2]
	}
	return "unknown"
}

func checkSQLite() checkResult {
	version := sqlcursor.SQLiteVersion()
	if version == "" {
		return checkResult{name: "SQLite", error: true, message: "unable to determine version"}
	}
	return checkResult{name: "SQLite", message: fmt.Sprintf("version %s (built-in)", version)}
}

// checkDataDirectory verifies the data directory is writable
func checkDataDirectory(path string) checkResult {
	const name = "Data directory"
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{name: name, message: fmt.Sprintf("%s (will be created on first run)", path)}
		}
		return checkResult{name: name, error: true, message: fmt.Sprintf("cannot access %s: %v", path, err)}
	}
	if !info.IsDir() {
		return checkResult{name: name, error: true, message: fmt.Sprintf("%s is not a directory", path)}
	}

	testFile := filepath.Join(path, ".lollydb_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{name: name, error: true, message: fmt.Sprintf("cannot write to %s: %v", path, err)}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{name: name, message: fmt.Sprintf("%s (writable)", path)}
}

// checkDatabase opens one database file without migrating it
func checkDatabase(ctx context.Context, f dbFile) checkResult {
	info, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{name: f.name, message: fmt.Sprintf("%s (will be created on first run)", f.path)}
		}
		return checkResult{name: f.name, error: true, message: fmt.Sprintf("cannot access %s: %v", f.path, err)}
	}
	if !info.Mode().IsRegular() {
		return checkResult{name: f.name, error: true, message: fmt.Sprintf("%s is not a regular file", f.path)}
	}

	m, err := sqlcursor.Open(sqlcursor.Options{Name: f.name, Path: f.path, MaxOpenConns: 1})
	if err != nil {
		return checkResult{name: f.name, error: true, message: err.Error()}
	}
	defer m.Close()

	if err := m.CheckIntegrity(ctx); err != nil {
		return checkResult{name: f.name, error: true, message: err.Error()}
	}

	var version int
	if err := m.Read(ctx, func(q sqlcursor.Queryer) error {
		version, err = migrate.CurrentVersion(ctx, q)
		return err
	}); err != nil {
		return checkResult{name: f.name, error: true, message: fmt.Sprintf("cannot read schema version: %v", err)}
	}

	r := checkResult{
		name:    f.name,
		message: fmt.Sprintf("%s (%s, schema %d)", f.path, humanize.IBytes(uint64(info.Size())), version),
	}
	switch {
	case f.version < 0:
	case version > f.version:
		r.error = true
		r.message += fmt.Sprintf(", newer than supported %d", f.version)
	case version < f.version:
		r.warning = true
		r.message += fmt.Sprintf(", will be upgraded to %d", f.version)
	}
	return r
}

// checkDiskSpace warns when the data directory's filesystem runs low
func checkDiskSpace(path string) checkResult {
	const name = "Disk space"
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{name: name, warning: true, message: fmt.Sprintf("cannot determine disk space: %v", err)}
	}

	avail := stat.Bavail * uint64(stat.Bsize)
	total := stat.Blocks * uint64(stat.Bsize)
	used := total - stat.Bfree*uint64(stat.Bsize)

	r := checkResult{name: name, message: humanize.IBytes(avail) + " available"}
	if avail < 512*humanize.MiByte {
		r.warning = true
		r.message += " (low space)"
	} else if total > 0 && float64(used)/float64(total) > 0.95 {
		r.warning = true
		r.message += " (>95% used)"
	}
	return r
}
