// Package localized holds the locale-aware string helpers shared by every
// database: sort keys, accent folding and the de-duplication key.
package localized

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Article prefixes moved to the end of an artist sortname
var sortPrefixes = []string{
	"the ", "a ", "an ", "le ", "la ", "les ", "l'", "der ", "die ", "das ",
	"el ", "los ", "las ", "il ", "lo ", "gli ",
}

var (
	collatorMu sync.Mutex
	collator   = collate.New(language.Und, collate.IgnoreCase, collate.IgnoreDiacritics)
)

// SetLanguage switches the collation used by Compare and the LOCALIZED
// SQL collation
func SetLanguage(tag string) error {
	t, err := language.Parse(tag)
	if err != nil {
		return err
	}
	collatorMu.Lock()
	defer collatorMu.Unlock()
	collator = collate.New(t, collate.IgnoreCase, collate.IgnoreDiacritics)
	return nil
}

// Compare orders two strings case-insensitively, ignoring accents, using the
// configured language rules. Ties are broken on the raw strings so the
// ordering stays total.
func Compare(a, b string) int {
	collatorMu.Lock()
	c := collator.CompareString(a, b)
	collatorMu.Unlock()
	if c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// NoAccents strips diacritics and lowercases s
func NoAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// SQLEscape returns an alphanumeric, lowercase, accent-free key used to
// collapse visually different spellings ("Alternative Rock", "alternative-rock")
func SQLEscape(s string) string {
	var b strings.Builder
	for _, r := range NoAccents(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IndexOf returns the uppercase, accent-free first letter of s, or "#" when
// s does not start with a letter
func IndexOf(s string) string {
	for _, r := range NoAccents(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) {
			return strings.ToUpper(string(r))
		}
		return "#"
	}
	return "#"
}

// FormatArtistName derives a sortname: "The Beatles" becomes "Beatles, The"
func FormatArtistName(name string) string {
	name = strings.TrimSpace(name)
	lower := strings.ToLower(name)
	for _, prefix := range sortPrefixes {
		if len(lower) > len(prefix) && strings.HasPrefix(lower, prefix) {
			head := strings.TrimSpace(name[:len(prefix)])
			return name[len(prefix):] + ", " + head
		}
	}
	return name
}

// LpAlbumID returns the content-derived album identifier
func LpAlbumID(name string, artists []string) string {
	return hashKey(append([]string{name}, artists...))
}

// LpTrackID returns the content-derived track identifier
func LpTrackID(name, album string, artists []string) string {
	return hashKey(append([]string{name, album}, artists...))
}

func hashKey(parts []string) string {
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		keys = append(keys, SQLEscape(p))
	}
	sum := md5.Sum([]byte(strings.Join(keys, "\x1f")))
	return hex.EncodeToString(sum[:])
}
