package main

import (
	"context"
	"errors"

	"github.com/franz/lollydb/internal/cache"
	"github.com/franz/lollydb/internal/collection"
	"github.com/franz/lollydb/internal/history"
	"github.com/franz/lollydb/internal/playlists"
	"github.com/franz/lollydb/internal/util"
)

// stores holds the open databases of one command run. Only the core store
// is always open; the others are opened on demand.
type stores struct {
	paths     *util.Paths
	core      *collection.Database
	cache     *cache.Cache
	playlists *playlists.Playlists
	history   *history.History
}

type storeSet int

const (
	withCache storeSet = 1 << iota
	withPlaylists
	withHistory

	withAll = withCache | withPlaylists | withHistory
)

func openStores(ctx context.Context, set storeSet) (*stores, error) {
	paths, err := util.GetPaths()
	if err != nil {
		return nil, err
	}
	strict := util.GetStrictMigrations()

	s := &stores{paths: paths}
	util.DebugLog("Opening database: %s", paths.Core)
	s.core, err = collection.Open(ctx, collection.Options{
		Path:          paths.Core,
		ShowSortnames: util.GetShowSortnames(),
		Strict:        strict,
	})
	if err != nil {
		return nil, err
	}

	if set&withCache != 0 {
		if s.cache, err = cache.Open(ctx, paths.Cache, paths.Core); err != nil {
			s.Close()
			return nil, err
		}
	}
	if set&withPlaylists != 0 {
		s.playlists, err = playlists.Open(ctx, playlists.Options{
			Path:     paths.Playlists,
			CorePath: paths.Core,
			Strict:   strict,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
	}
	if set&withHistory != 0 {
		s.history, err = history.Open(ctx, history.Options{
			Path:   paths.History,
			Limit:  util.GetHistoryLimit(),
			Strict: strict,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close closes every open database
func (s *stores) Close() error {
	var errs []error
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	if s.playlists != nil {
		errs = append(errs, s.playlists.Close())
	}
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if s.core != nil {
		errs = append(errs, s.core.Close())
	}
	return errors.Join(errs...)
}
