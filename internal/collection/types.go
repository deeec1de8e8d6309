package collection

// StorageType classifies where an album or track comes from. Filters AND a
// caller mask against the stored value, so one row can match several classes.
type StorageType int64

const (
	StorageNone StorageType = 1 << iota
	StorageCollection
	StorageEphemeral
	StorageSaved
	StorageSearch
	StorageSpotifyNewReleases
	StorageSpotifySimilars
	StorageDeezerCharts
	StorageExternal
)

const (
	// StorageWeb groups every web source
	StorageWeb = StorageSpotifyNewReleases | StorageSpotifySimilars | StorageDeezerCharts

	// StorageNonPersistent is dropped by DelNonPersistent
	StorageNonPersistent = StorageEphemeral | StorageSearch | StorageWeb

	// StorageAll matches every stored row
	StorageAll = StorageCollection | StorageEphemeral | StorageSaved | StorageSearch |
		StorageWeb | StorageExternal

	// StorageCleanable albums are deleted by Clean once they have no tracks
	StorageCleanable = StorageEphemeral | StorageCollection | StorageExternal
)

// Has reports whether s shares a bit with mask
func (s StorageType) Has(mask StorageType) bool {
	return s&mask != 0
}

// LovedFlags is a bitmask of independent user markings
type LovedFlags int64

const (
	LovedNone    LovedFlags = 0
	LovedLoved   LovedFlags = 1 << 0
	LovedSkipped LovedFlags = 1 << 1
)

// Reserved ids. They never match a row of the artists or genres tables and
// are special-cased by the queries that see them.
const (
	// TypeCompilations is stored in album_artists for albums whose tracks
	// disagree on their artists
	TypeCompilations int64 = -2001
	// TypeWeb as a genre id selects web-sourced albums
	TypeWeb int64 = -1001
)

// OrderBy selects the ORDER BY clause of album listings
type OrderBy int

const (
	OrderPopularity OrderBy = iota
	OrderArtistYear
	OrderArtistTitle
	OrderTitle
	OrderYearDesc
	OrderYearAsc
	OrderName
)

func (o OrderBy) needsArtists() bool {
	switch o {
	case OrderArtistYear, OrderArtistTitle, OrderName:
		return true
	}
	return false
}

// Albums with several artists sort under the lowest sortname
const minSortname = "MIN(artists.sortname COLLATE LOCALIZED) COLLATE LOCALIZED"

// albumClause is the ORDER BY of o. Queries using it group by a row id
// and, when needsArtists, left join the artists of each album.
func (o OrderBy) albumClause() string {
	switch o {
	case OrderArtistYear:
		return minSortname + ", albums.timestamp, albums.year, albums.name COLLATE LOCALIZED, albums.id"
	case OrderArtistTitle:
		return minSortname + ", albums.name COLLATE LOCALIZED, albums.id"
	case OrderTitle:
		return "albums.name COLLATE LOCALIZED, albums.id"
	case OrderYearDesc:
		return "albums.timestamp DESC, albums.year DESC, albums.name COLLATE LOCALIZED, albums.id"
	case OrderYearAsc:
		return "albums.timestamp ASC, albums.year ASC, albums.name COLLATE LOCALIZED, albums.id"
	case OrderName:
		return "MIN(artists.name COLLATE LOCALIZED) COLLATE LOCALIZED, albums.name COLLATE LOCALIZED, albums.id"
	default:
		return "albums.popularity DESC, albums.name COLLATE LOCALIZED, albums.id"
	}
}

// Filter narrows album and track listings. A nil id list means no filter.
type Filter struct {
	GenreIDs    []int64
	ArtistIDs   []int64
	StorageType StorageType
	// Skipped includes rows flagged LovedSkipped
	Skipped bool
	OrderBy OrderBy
	Limit   int
}

// ArtistRow is returned by artist listings. Name is the display name: the
// sortname when the store shows sortnames, the raw name otherwise.
type ArtistRow struct {
	ID       int64
	Name     string
	Sortname string
}

// GenreRow is returned by genre listings
type GenreRow struct {
	ID   int64
	Name string
}
