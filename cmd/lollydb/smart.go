package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/franz/lollydb/internal/smart"
	"github.com/franz/lollydb/internal/util"
	"github.com/spf13/cobra"
)

var smartCmd = &cobra.Command{
	Use:   "smart",
	Short: "Run a smart playlist query",
	Long: `Compile rules to SQL and list matching tracks in random order.

Each --rule is "<field> <operator> <value>". Fields are genre, album,
artist, rating, popularity, year and bpm. Text fields accept =, !=, LIKE
and NOT LIKE; numeric fields accept =, !=, >, <, >= and <=.

With --match any, each rule gets an equal share of --limit.
With --save, the rules are stored as a smart playlist of that name.`,
	Example: `  lollydb smart --rule "rating >= 4" --rule "genre LIKE jazz"
  lollydb smart --match any --rule "artist = Miles Davis" --rule "year < 1960" -n 20`,
	RunE: runSmart,
}

func init() {
	rootCmd.AddCommand(smartCmd)

	smartCmd.Flags().StringArrayP("rule", "r", nil, "rule as \"<field> <operator> <value>\" (repeatable)")
	smartCmd.Flags().String("match", "all", "combine rules with all (AND) or any (OR)")
	smartCmd.Flags().IntP("limit", "n", 50, "number of tracks")
	smartCmd.Flags().String("save", "", "save the rules as a smart playlist")
	smartCmd.Flags().Bool("sql", false, "print the generated SQL")
}

func runSmart(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	texts, _ := cmd.Flags().GetStringArray("rule")
	match, _ := cmd.Flags().GetString("match")
	limit, _ := cmd.Flags().GetInt("limit")
	save, _ := cmd.Flags().GetString("save")
	printSQL, _ := cmd.Flags().GetBool("sql")

	rs, err := parseRuleSet(match, texts)
	if err != nil {
		return err
	}
	q, err := smart.Compile(rs)
	if err != nil {
		return err
	}
	if printSQL {
		fmt.Println(q.Literal())
	}

	s, err := openStores(ctx, withPlaylists)
	if err != nil {
		return fmt.Errorf("failed to open databases: %w", err)
	}
	defer s.Close()

	if save != "" {
		id, err := s.playlists.Add(ctx, save)
		if err != nil {
			return err
		}
		if err := s.playlists.SetSmart(ctx, id, rs); err != nil {
			return err
		}
		util.SuccessLog("Saved smart playlist %q (%d)", save, id)
	}

	ids, err := s.core.Tracks.ExecuteSmart(ctx, q, limit)
	if err != nil {
		return err
	}
	return printTracks(ctx, s.core, ids)
}

func parseRuleSet(match string, texts []string) (smart.RuleSet, error) {
	rs := smart.RuleSet{}
	switch strings.ToLower(match) {
	case "all", "and":
		rs.Match = smart.MatchAll
	case "any", "or":
		rs.Match = smart.MatchAny
	default:
		return rs, fmt.Errorf("%w: match must be all or any, got %q", util.ErrInvalidRule, match)
	}
	if len(texts) == 0 {
		return rs, fmt.Errorf("%w: at least one --rule is required", util.ErrInvalidRule)
	}
	for _, text := range texts {
		r, err := parseRule(text)
		if err != nil {
			return rs, err
		}
		rs.Rules = append(rs.Rules, r)
	}
	return rs, nil
}

// parseRule splits "<field> <operator> <value>". The value keeps its inner
// spaces; NOT LIKE is the only two-word operator.
func parseRule(text string) (smart.Rule, error) {
	fields := strings.Fields(text)
	if len(fields) < 3 {
		return smart.Rule{}, fmt.Errorf("%w: %q is not <field> <operator> <value>", util.ErrInvalidRule, text)
	}
	r := smart.Rule{Field: smart.Field(strings.ToLower(fields[0]))}
	rest := fields[1:]
	if strings.EqualFold(rest[0], "NOT") && len(rest) > 2 && strings.EqualFold(rest[1], "LIKE") {
		r.Operator = smart.OpNotLike
		rest = rest[2:]
	} else {
		r.Operator = smart.Operator(strings.ToUpper(rest[0]))
		rest = rest[1:]
	}
	r.Value = strings.Join(rest, " ")
	return r, r.Validate()
}
