package smart

import (
	"errors"
	"testing"

	"github.com/franz/lollydb/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileAllJoinsEachTableOnce(t *testing.T) {
	q, err := Compile(RuleSet{Match: MatchAll, Rules: []Rule{
		{Field: FieldGenre, Operator: OpLike, Value: "Jazz"},
		{Field: FieldGenre, Operator: OpNotLike, Value: "Acid"},
		{Field: FieldRating, Operator: OpGreaterEqual, Value: "4"},
	}})
	require.NoError(t, err)
	require.Len(t, q.Branches, 1)

	assert.Equal(t,
		"SELECT DISTINCT tracks.id FROM tracks"+
			" JOIN album_genres ON album_genres.album_id = tracks.album_id"+
			" JOIN genres ON genres.id = album_genres.genre_id"+
			" WHERE genres.name LIKE ? AND genres.name NOT LIKE ? AND tracks.rate >= ?",
		q.SQL())
	assert.Equal(t, []any{"%Jazz%", "%Acid%", int64(4)}, q.Args())
}

func TestCompileAnyBuildsOneBranchPerRule(t *testing.T) {
	q, err := Compile(RuleSet{Match: MatchAny, Rules: []Rule{
		{Field: FieldArtist, Operator: OpEqual, Value: "Nina Simone"},
		{Field: FieldBpm, Operator: OpGreater, Value: "120.5"},
		{Field: FieldAlbum, Operator: OpNotEqual, Value: "Live"},
	}})
	require.NoError(t, err)
	require.Len(t, q.Branches, 3)

	assert.Contains(t, q.Branches[0].SQL, "JOIN track_artists ON track_artists.track_id = tracks.id")
	assert.Contains(t, q.Branches[0].SQL, "artists.name = ?")
	assert.Equal(t, []any{120.5}, q.Branches[1].Args)
	assert.Contains(t, q.Branches[2].SQL, "JOIN albums ON albums.id = tracks.album_id")
	assert.Len(t, Split(q.SQL()), 3)
}

func TestCompileRejectsRulesOutsideGrammar(t *testing.T) {
	tests := []struct {
		name string
		rs   RuleSet
	}{
		{"empty", RuleSet{}},
		{"unknown field", RuleSet{Rules: []Rule{{Field: "mood", Operator: OpEqual, Value: "x"}}}},
		{"like on number", RuleSet{Rules: []Rule{{Field: FieldYear, Operator: OpLike, Value: "19"}}}},
		{"greater on text", RuleSet{Rules: []Rule{{Field: FieldAlbum, Operator: OpGreater, Value: "a"}}}},
		{"not a number", RuleSet{Rules: []Rule{{Field: FieldRating, Operator: OpEqual, Value: "five"}}}},
		{"unknown match", RuleSet{Match: "XOR", Rules: []Rule{{Field: FieldYear, Operator: OpEqual, Value: "1"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.rs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, util.ErrInvalidRule))
		})
	}
}

func TestLiteralQuotesStrings(t *testing.T) {
	q, err := Compile(RuleSet{Match: MatchAny, Rules: []Rule{
		{Field: FieldAlbum, Operator: OpEqual, Value: "Rock 'n' Roll?"},
		{Field: FieldYear, Operator: OpEqual, Value: "1977"},
	}})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT DISTINCT tracks.id FROM tracks JOIN albums ON albums.id = tracks.album_id"+
			" WHERE albums.name = 'Rock ''n'' Roll?'"+
			" UNION SELECT DISTINCT tracks.id FROM tracks WHERE tracks.year = 1977",
		q.Literal())
}

func TestParseRules(t *testing.T) {
	rs, err := ParseRules([]byte(`{"match":"OR","rules":[{"field":"genre","operator":"LIKE","value":"Jazz"}]}`))
	require.NoError(t, err)
	assert.Equal(t, MatchAny, rs.Match)
	assert.Equal(t, Rule{Field: FieldGenre, Operator: OpLike, Value: "Jazz"}, rs.Rules[0])

	data, err := rs.Encode()
	require.NoError(t, err)
	again, err := ParseRules(data)
	require.NoError(t, err)
	assert.Equal(t, rs, again)

	_, err = ParseRules([]byte(`{"rules":[{"field":"bpm","operator":"LIKE","value":"1"}]}`))
	assert.ErrorIs(t, err, util.ErrInvalidRule)

	_, err = ParseRules([]byte(`not json`))
	assert.ErrorIs(t, err, util.ErrInvalidRule)
}

func TestSplitIgnoresSeparatorInsideLiterals(t *testing.T) {
	q, err := Compile(RuleSet{Match: MatchAny, Rules: []Rule{
		{Field: FieldAlbum, Operator: OpLike, Value: "Soviet UNION Anthems"},
		{Field: FieldArtist, Operator: OpEqual, Value: "It's a UNION thing"},
		{Field: FieldYear, Operator: OpEqual, Value: "1977"},
	}})
	require.NoError(t, err)

	parts := Split(q.Literal())
	require.Len(t, parts, 3)
	assert.Contains(t, parts[0], "'%Soviet UNION Anthems%'")
	assert.Contains(t, parts[1], "'It''s a UNION thing'")
	assert.Equal(t, "SELECT DISTINCT tracks.id FROM tracks WHERE tracks.year = 1977", parts[2])
}
