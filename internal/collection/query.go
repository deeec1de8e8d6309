package collection

import (
	"context"
	"database/sql"
	"errors"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/franz/lollydb/internal/sqlcursor"
)

// searchLimit caps every search result
const searchLimit = 25

// InClause builds "(column=? OR column=? ...)" with one bound parameter per
// value. An empty list yields an empty fragment.
func InClause(column string, values []int64) (string, []any) {
	if len(values) == 0 {
		return "", nil
	}
	parts := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		parts[i] = column + "=?"
		args[i] = v
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// selectQuery assembles a SELECT from joins and ANDed conditions
type selectQuery struct {
	from  string
	joins []string
	where []string
	args  []any
}

func newSelect(from string) *selectQuery {
	return &selectQuery{from: from}
}

func (s *selectQuery) join(clause string) *selectQuery {
	for _, j := range s.joins {
		if j == clause {
			return s
		}
	}
	s.joins = append(s.joins, clause)
	return s
}

func (s *selectQuery) and(cond string, args ...any) *selectQuery {
	s.where = append(s.where, cond)
	s.args = append(s.args, args...)
	return s
}

func (s *selectQuery) in(column string, values []int64) *selectQuery {
	frag, args := InClause(column, values)
	if frag != "" {
		s.and(frag, args...)
	}
	return s
}

// artists keeps tracks performed by one of ids. Negative ids are album
// sentinels such as TypeCompilations and match the album artists instead.
func (s *selectQuery) artists(ids []int64) *selectQuery {
	var conds []string
	var args []any
	if real := realIDs(ids); len(real) > 0 {
		frag, a := InClause("artist_id", real)
		conds = append(conds, "tracks.id IN (SELECT track_id FROM track_artists WHERE "+frag+")")
		args = append(args, a...)
	}
	if sentinels := sentinelIDs(ids); len(sentinels) > 0 {
		frag, a := InClause("artist_id", sentinels)
		conds = append(conds, "tracks.album_id IN (SELECT album_id FROM album_artists WHERE "+frag+")")
		args = append(args, a...)
	}
	if len(conds) == 0 {
		return s
	}
	return s.and("("+strings.Join(conds, " OR ")+")", args...)
}

// build renders "SELECT columns FROM ... WHERE ... tail". Arguments of tail
// are appended after the WHERE arguments.
func (s *selectQuery) build(columns, tail string, tailArgs ...any) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(columns)
	b.WriteString(" FROM ")
	b.WriteString(s.from)
	for _, j := range s.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	if len(s.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(s.where, " AND "))
	}
	if tail != "" {
		b.WriteString(" ")
		b.WriteString(tail)
	}
	args := append(append([]any{}, s.args...), tailArgs...)
	return b.String(), args
}

// realIDs drops reserved negative ids
func realIDs(ids []int64) []int64 {
	var out []int64
	for _, id := range ids {
		if id >= 0 {
			out = append(out, id)
		}
	}
	return out
}

func sentinelIDs(ids []int64) []int64 {
	var out []int64
	for _, id := range ids {
		if id < 0 {
			out = append(out, id)
		}
	}
	return out
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// likePattern escapes LIKE wildcards in text and wraps it for a substring match
func likePattern(text string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(text) + "%"
}

func queryIDs(ctx context.Context, q sqlcursor.Queryer, query string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// queryValue scans one column of one row. A missing row or a NULL value
// yields the zero value.
func queryValue[T any](ctx context.Context, q sqlcursor.Queryer, query string, args ...any) (T, error) {
	var v sql.Null[T]
	err := q.QueryRowContext(ctx, query, args...).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return v.V, nil
	}
	return v.V, err
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const (
	albumArtistsJoin = "JOIN album_artists ON album_artists.album_id = albums.id"
	albumGenresJoin  = "JOIN album_genres ON album_genres.album_id = albums.id"
	trackGenresJoin  = "JOIN track_genres ON track_genres.track_id = tracks.id"
)

// storageMask resolves the mask a filter applies. A zero mask matches every
// row; a TypeWeb genre restricts it to web sources.
func storageMask(storage StorageType, genreIDs []int64) StorageType {
	if storage == 0 {
		storage = StorageAll
	}
	if containsID(genreIDs, TypeWeb) {
		storage &= StorageWeb
		if storage == 0 {
			storage = StorageWeb
		}
	}
	return storage
}

func readIDs(ctx context.Context, m *sqlcursor.Manager, query string, args ...any) ([]int64, error) {
	var ids []int64
	err := m.Read(ctx, func(q sqlcursor.Queryer) error {
		var err error
		ids, err = queryIDs(ctx, q, query, args...)
		return err
	})
	return ids, err
}

func readValue[T any](ctx context.Context, m *sqlcursor.Manager, query string, args ...any) (T, error) {
	var v T
	err := m.Read(ctx, func(q sqlcursor.Queryer) error {
		var err error
		v, err = queryValue[T](ctx, q, query, args...)
		return err
	})
	return v, err
}

// getColumn reads one column of the row with the given id. table and column
// are fixed by callers.
func getColumn[T any](ctx context.Context, m *sqlcursor.Manager, table, column string, id int64) (T, error) {
	return readValue[T](ctx, m, "SELECT "+column+" FROM "+table+" WHERE id = ?", id)
}

func setColumn(ctx context.Context, m *sqlcursor.Manager, table, column string, value any, id int64) error {
	return m.Write(ctx, func(q sqlcursor.Queryer) error {
		_, err := q.ExecContext(ctx, "UPDATE "+table+" SET "+column+" = ? WHERE id = ?", value, id)
		return err
	})
}

// dedupe keeps the first occurrence of every id
func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// shuffleTruncate shuffles ids in place and keeps at most limit of them
func shuffleTruncate(ids []int64, limit int) []int64 {
	rand.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

func sameSet(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
