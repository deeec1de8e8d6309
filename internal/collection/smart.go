package collection

import (
	"context"
	"fmt"

	"github.com/franz/lollydb/internal/smart"
	"github.com/franz/lollydb/internal/sqlcursor"
)

// ExecuteSmart runs a compiled smart playlist and returns at most limit
// random track ids. Each UNION branch is limited to its share of limit and
// randomized on its own, then the results are merged, shuffled and
// truncated. Branches are topped up when the shares come back short.
func (t *Tracks) ExecuteSmart(ctx context.Context, q *smart.Query, limit int) ([]int64, error) {
	return t.executeBranches(ctx, q.Branches, limit)
}

// ExecuteSQL runs stored smart playlist SQL with inlined values
func (t *Tracks) ExecuteSQL(ctx context.Context, query string, limit int) ([]int64, error) {
	var branches []smart.Branch
	for _, part := range smart.Split(query) {
		branches = append(branches, smart.Branch{SQL: part})
	}
	if len(branches) == 0 {
		return nil, nil
	}
	return t.executeBranches(ctx, branches, limit)
}

func (t *Tracks) executeBranches(ctx context.Context, branches []smart.Branch, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}
	share := (limit + len(branches) - 1) / len(branches)

	var ids []int64
	err := t.m.Read(ctx, func(q sqlcursor.Queryer) error {
		for _, br := range branches {
			got, err := randomBranch(ctx, q, br, share)
			if err != nil {
				return err
			}
			ids = append(ids, got...)
		}
		ids = dedupe(ids)
		if len(ids) >= limit || len(branches) == 1 {
			return nil
		}

		for _, br := range branches {
			got, err := randomBranch(ctx, q, br, limit)
			if err != nil {
				return err
			}
			ids = dedupe(append(ids, got...))
			if len(ids) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shuffleTruncate(ids, limit), nil
}

func randomBranch(ctx context.Context, q sqlcursor.Queryer, br smart.Branch, limit int) ([]int64, error) {
	args := append(append([]any{}, br.Args...), limit)
	ids, err := queryIDs(ctx, q, br.SQL+" ORDER BY random() LIMIT ?", args...)
	if err != nil {
		return nil, fmt.Errorf("smart branch %q: %w", br.SQL, err)
	}
	return ids, nil
}
