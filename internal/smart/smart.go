// Package smart compiles smart playlist rules to SQL over the core store.
//
// Rules combined with AND compile to a single SELECT joining every table a
// rule needs. Rules combined with OR compile to one SELECT per rule joined
// by UNION, because each rule may need its own joins.
package smart

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/franz/lollydb/internal/util"
)

// Field is the track attribute a rule tests
type Field string

const (
	FieldGenre      Field = "genre"
	FieldAlbum      Field = "album"
	FieldArtist     Field = "artist"
	FieldRating     Field = "rating"
	FieldPopularity Field = "popularity"
	FieldYear       Field = "year"
	FieldBpm        Field = "bpm"
)

// Operator compares a field with a rule value
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpLike         Operator = "LIKE"
	OpNotLike      Operator = "NOT LIKE"
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
)

// Match combines the rules of a set
type Match string

const (
	MatchAll Match = "AND"
	MatchAny Match = "OR"
)

// UnionSeparator joins the branches of an OR query
const UnionSeparator = " UNION "

type column struct {
	expr    string
	joins   []string
	numeric bool
}

var (
	albumsJoin       = "JOIN albums ON albums.id = tracks.album_id"
	albumGenresJoin  = "JOIN album_genres ON album_genres.album_id = tracks.album_id"
	genresJoin       = "JOIN genres ON genres.id = album_genres.genre_id"
	trackArtistsJoin = "JOIN track_artists ON track_artists.track_id = tracks.id"
	artistsJoin      = "JOIN artists ON artists.id = track_artists.artist_id"
)

var columns = map[Field]column{
	FieldGenre:      {expr: "genres.name", joins: []string{albumGenresJoin, genresJoin}},
	FieldAlbum:      {expr: "albums.name", joins: []string{albumsJoin}},
	FieldArtist:     {expr: "artists.name", joins: []string{trackArtistsJoin, artistsJoin}},
	FieldRating:     {expr: "tracks.rate", numeric: true},
	FieldPopularity: {expr: "tracks.popularity", numeric: true},
	FieldYear:       {expr: "tracks.year", numeric: true},
	FieldBpm:        {expr: "tracks.bpm", numeric: true},
}

var (
	textOperators    = []Operator{OpEqual, OpNotEqual, OpLike, OpNotLike}
	numericOperators = []Operator{OpEqual, OpNotEqual, OpGreater, OpLess, OpGreaterEqual, OpLessEqual}
)

// Rule tests one field
type Rule struct {
	Field    Field    `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// RuleSet is a smart playlist definition
type RuleSet struct {
	Match Match  `json:"match"`
	Rules []Rule `json:"rules"`
}

// Branch is one SELECT of a compiled query
type Branch struct {
	SQL  string
	Args []any
}

// Query is a compiled rule set: one branch for AND, one per rule for OR
type Query struct {
	Branches []Branch
}

// Validate checks a rule against the grammar
func (r Rule) Validate() error {
	col, ok := columns[r.Field]
	if !ok {
		return fmt.Errorf("%w: unknown field %q", util.ErrInvalidRule, r.Field)
	}
	allowed := textOperators
	if col.numeric {
		allowed = numericOperators
	}
	valid := false
	for _, op := range allowed {
		if op == r.Operator {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: operator %q not allowed on %s", util.ErrInvalidRule, r.Operator, r.Field)
	}
	if col.numeric {
		if _, err := strconv.ParseFloat(r.Value, 64); err != nil {
			return fmt.Errorf("%w: %s needs a number, got %q", util.ErrInvalidRule, r.Field, r.Value)
		}
	}
	return nil
}

// predicate renders the WHERE condition of a rule and its argument. LIKE
// operators match the value as a substring.
func (r Rule) predicate() (string, any) {
	col := columns[r.Field]
	if col.numeric {
		if n, err := strconv.ParseInt(r.Value, 10, 64); err == nil {
			return fmt.Sprintf("%s %s ?", col.expr, r.Operator), n
		}
		f, _ := strconv.ParseFloat(r.Value, 64)
		return fmt.Sprintf("%s %s ?", col.expr, r.Operator), f
	}
	value := r.Value
	if r.Operator == OpLike || r.Operator == OpNotLike {
		value = "%" + value + "%"
	}
	return fmt.Sprintf("%s %s ?", col.expr, r.Operator), value
}

// Compile turns a rule set into SQL selecting track ids
func Compile(rs RuleSet) (*Query, error) {
	if len(rs.Rules) == 0 {
		return nil, fmt.Errorf("%w: empty rule set", util.ErrInvalidRule)
	}
	for _, r := range rs.Rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}

	switch rs.Match {
	case MatchAll, "":
		return &Query{Branches: []Branch{branch(rs.Rules)}}, nil
	case MatchAny:
		q := &Query{}
		for _, r := range rs.Rules {
			q.Branches = append(q.Branches, branch([]Rule{r}))
		}
		return q, nil
	default:
		return nil, fmt.Errorf("%w: unknown match %q", util.ErrInvalidRule, rs.Match)
	}
}

// branch ANDs rules into one SELECT, joining each table once
func branch(rules []Rule) Branch {
	var joins, where []string
	var args []any
	seen := make(map[string]bool)
	for _, r := range rules {
		for _, j := range columns[r.Field].joins {
			if !seen[j] {
				seen[j] = true
				joins = append(joins, j)
			}
		}
		cond, arg := r.predicate()
		where = append(where, cond)
		args = append(args, arg)
	}

	var b strings.Builder
	b.WriteString("SELECT DISTINCT tracks.id FROM tracks")
	for _, j := range joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(where, " AND "))
	return Branch{SQL: b.String(), Args: args}
}

// SQL returns the whole query with placeholders
func (q *Query) SQL() string {
	parts := make([]string, len(q.Branches))
	for i, br := range q.Branches {
		parts[i] = br.SQL
	}
	return strings.Join(parts, UnionSeparator)
}

// Args returns the arguments of SQL in order
func (q *Query) Args() []any {
	var args []any
	for _, br := range q.Branches {
		args = append(args, br.Args...)
	}
	return args
}

// Literal returns the query with arguments inlined, for storage. Strings are
// quoted with embedded quotes doubled.
func (q *Query) Literal() string {
	parts := make([]string, len(q.Branches))
	for i, br := range q.Branches {
		parts[i] = inline(br.SQL, br.Args)
	}
	return strings.Join(parts, UnionSeparator)
}

func inline(query string, args []any) string {
	var b strings.Builder
	i := 0
	for _, r := range query {
		if r == '?' && i < len(args) {
			b.WriteString(literal(args[i]))
			i++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func literal(v any) string {
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(x), "'", "''") + "'"
	}
}

// Split breaks a stored query into its UNION branches. Separators inside
// quoted literals or identifiers are part of the branch.
func Split(query string) []string {
	var out []string
	add := func(part string) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	var quote byte
	start := 0
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			// a doubled quote closes and reopens, leaving quote set
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case strings.HasPrefix(query[i:], UnionSeparator):
			add(query[start:i])
			i += len(UnionSeparator) - 1
			start = i + 1
		}
	}
	add(query[start:])
	return out
}

// ParseRules decodes and validates a JSON rule set
func ParseRules(data []byte) (RuleSet, error) {
	var rs RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("%w: %v", util.ErrInvalidRule, err)
	}
	if _, err := Compile(rs); err != nil {
		return RuleSet{}, err
	}
	return rs, nil
}

// Encode returns the JSON form of rs
func (rs RuleSet) Encode() ([]byte, error) {
	return json.Marshal(rs)
}
