package main

import (
	"context"
	"fmt"

	"github.com/franz/lollydb/internal/migrate"
	"github.com/franz/lollydb/internal/util"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade every database to the latest schema",
	Long: `Open lollypop.db, cache_v1.db, playlists.db and history.db, creating
missing files and running pending upgrade steps.

By default a failing step is logged and skipped and the latest version is
still stamped. With --strict-migrations the first failing step aborts the
upgrade and the stored version is left untouched.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openStores(ctx, withAll)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()

	failed := 0
	for _, db := range []struct {
		name   string
		result *migrate.Result
	}{
		{"core", s.core.Upgrade},
		{"playlists", s.playlists.Upgrade},
		{"history", s.history.Upgrade},
	} {
		failed += reportUpgrade(db.name, db.result)
	}
	util.InfoLog("cache: ready at %s", s.paths.Cache)

	if failed > 0 {
		util.WarnLog("%d upgrade steps failed; the schema may be incomplete", failed)
	}
	return nil
}

func reportUpgrade(name string, r *migrate.Result) int {
	switch {
	case r.Created:
		util.SuccessLog("%s: created at version %d", name, r.To)
	case len(r.Applied) == 0 && len(r.Failed) == 0:
		util.InfoLog("%s: up to date (version %d)", name, r.To)
	default:
		util.SuccessLog("%s: upgraded from version %d to %d (%d steps)", name, r.From, r.To, len(r.Applied))
	}
	for _, f := range r.Failed {
		util.WarnLog("  %v", f)
	}
	return len(r.Failed)
}
