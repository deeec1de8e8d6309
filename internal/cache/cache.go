// Package cache memoizes computed album durations in cache_v1.db
package cache

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/franz/lollydb/internal/migrate"
	"github.com/franz/lollydb/internal/sqlcursor"
	"github.com/franz/lollydb/internal/util"
)

// coreAlias is the name the core store is attached under
const coreAlias = "music"

var upgrader = &migrate.Upgrader{
	Probe: "duration",
	Create: []string{
		`CREATE TABLE duration (
			id TEXT PRIMARY KEY,
			album_id INT NOT NULL,
			duration INT NOT NULL
		)`,
		`CREATE INDEX idx_duration_album ON duration(album_id)`,
	},
}

// Cache is the duration cache database
type Cache struct {
	m *sqlcursor.Manager
}

// Open opens or creates the cache at path, attaching the core store at corePath
func Open(ctx context.Context, path, corePath string) (*Cache, error) {
	m, err := sqlcursor.Open(sqlcursor.Options{
		Name:   "cache",
		Path:   path,
		Attach: map[string]string{coreAlias: corePath},
	})
	if err != nil {
		return nil, err
	}
	if _, err := upgrader.Run(ctx, m); err != nil {
		m.Close()
		return nil, err
	}
	return &Cache{m: m}, nil
}

// Close closes the cache
func (c *Cache) Close() error {
	return c.m.Close()
}

// Vacuum rebuilds the database file
func (c *Cache) Vacuum(ctx context.Context) error {
	return c.m.Vacuum(ctx)
}

// Key hashes an album id with the filters a duration was computed for
func Key(albumID int64, parts ...string) string {
	h := md5.New()
	h.Write([]byte(strconv.FormatInt(albumID, 10)))
	for _, p := range parts {
		h.Write([]byte{0x1f})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// KeyIDs is Key over integer ids, for genre or artist filters
func KeyIDs(albumID int64, ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return Key(albumID, strings.Join(parts, ","))
}

// Set stores a duration in milliseconds
func (c *Cache) Set(ctx context.Context, key string, albumID, duration int64) error {
	return c.m.Write(ctx, func(q sqlcursor.Queryer) error {
		_, err := q.ExecContext(ctx,
			"INSERT OR REPLACE INTO duration (id, album_id, duration) VALUES (?, ?, ?)",
			key, albumID, duration)
		return err
	})
}

// Get returns the cached duration and whether it was found
func (c *Cache) Get(ctx context.Context, key string) (int64, bool, error) {
	var duration int64
	err := c.m.Read(ctx, func(q sqlcursor.Queryer) error {
		return q.QueryRowContext(ctx, "SELECT duration FROM duration WHERE id = ?", key).Scan(&duration)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return duration, true, nil
}

// ClearAlbum drops every entry of an album
func (c *Cache) ClearAlbum(ctx context.Context, albumID int64) error {
	return c.m.Write(ctx, func(q sqlcursor.Queryer) error {
		_, err := q.ExecContext(ctx, "DELETE FROM duration WHERE album_id = ?", albumID)
		return err
	})
}

// Clean drops entries of albums missing from the core store
func (c *Cache) Clean(ctx context.Context) (int64, error) {
	var n int64
	err := c.m.Write(ctx, func(q sqlcursor.Queryer) error {
		res, err := q.ExecContext(ctx,
			"DELETE FROM duration WHERE album_id NOT IN (SELECT id FROM "+coreAlias+".albums)")
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cache: clean failed: %w", err)
	}
	if n > 0 {
		util.DebugLog("cache: removed %d stale durations", n)
	}
	return n, nil
}
