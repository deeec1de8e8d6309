package localized

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoAccents(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Björk", "bjork"},
		{"Café Tacvba", "cafe tacvba"},
		{"Sigur Rós", "sigur ros"},
		{"ÉLODIE", "elodie"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NoAccents(tt.input), "NoAccents(%q)", tt.input)
	}
}

func TestSQLEscape(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Alternative Rock", "alternativerock"},
		{"alternative-rock", "alternativerock"},
		{"Hip-Hop / Rap", "hiphoprap"},
		{"Électro 80's", "electro80s"},
		{"   ", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, SQLEscape(tt.input), "SQLEscape(%q)", tt.input)
	}
}

func TestIndexOf(t *testing.T) {
	assert.Equal(t, "E", IndexOf("élodie"))
	assert.Equal(t, "B", IndexOf("  beatles"))
	assert.Equal(t, "#", IndexOf("2Pac"))
	assert.Equal(t, "#", IndexOf(""))
}

func TestFormatArtistName(t *testing.T) {
	assert.Equal(t, "Beatles, The", FormatArtistName("The Beatles"))
	assert.Equal(t, "Rita Mitsouko, Les", FormatArtistName("Les Rita Mitsouko"))
	assert.Equal(t, "Radiohead", FormatArtistName("Radiohead"))
	assert.Equal(t, "The", FormatArtistName("The"))
}

func TestCompareIgnoresCaseAndAccents(t *testing.T) {
	names := []string{"zebra", "Émile", "apple", "Eagle"}
	sort.SliceStable(names, func(i, j int) bool { return Compare(names[i], names[j]) < 0 })
	assert.Equal(t, []string{"apple", "Eagle", "Émile", "zebra"}, names)

	assert.Zero(t, Compare("same", "same"))
	assert.NotZero(t, Compare("Same", "same"), "ties are broken on raw bytes")
}

func TestSetLanguage(t *testing.T) {
	require.NoError(t, SetLanguage("fr"))
	defer func() { require.NoError(t, SetLanguage("und")) }()

	assert.Negative(t, Compare("cote", "côté"))
	assert.Error(t, SetLanguage("not a tag!"))
}

func TestLpIDsAreSpellingInsensitive(t *testing.T) {
	a := LpAlbumID("OK Computer", []string{"Radiohead"})
	b := LpAlbumID("ok-computer", []string{"RADIOHEAD"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, LpAlbumID("Kid A", []string{"Radiohead"}))

	assert.Equal(t,
		LpTrackID("Airbag", "OK Computer", []string{"Radiohead"}),
		LpTrackID("airbag", "OK computer", []string{"radiohead"}))
}
