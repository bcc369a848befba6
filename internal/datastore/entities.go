package datastore

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a fresh ULID string. Every entity in the store is keyed by
// one of these.
func NewID() string {
	return ulid.Make().String()
}

// Song is one track in the library.
type Song struct {
	ID        string `gorm:"primaryKey;size:26"`
	Title     string `gorm:"index"`
	Path      string `gorm:"uniqueIndex"`
	Duration  float64
	AlbumID   *string `gorm:"index;size:26"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Album groups songs and belongs to an artist.
type Album struct {
	ID       string  `gorm:"primaryKey;size:26"`
	Title    string  `gorm:"index"`
	ArtistID *string `gorm:"index;size:26"`
	Songs    []Song  `gorm:"foreignKey:AlbumID"`
}

// Artist owns albums.
type Artist struct {
	ID     string  `gorm:"primaryKey;size:26"`
	Name   string  `gorm:"index"`
	Albums []Album `gorm:"foreignKey:ArtistID"`
}

// Playlist is a user-curated song set.
type Playlist struct {
	ID    string `gorm:"primaryKey;size:26"`
	Name  string `gorm:"index"`
	Songs []Song `gorm:"many2many:playlist_songs"`
}

// Collection is an auto-curated cluster of songs. Centroid is the mean of
// the member vectors in the unprojected space, stored in the same 80-byte
// encoding as analyses. Collections are replaced wholesale by each
// recluster run.
type Collection struct {
	ID       string `gorm:"primaryKey;size:26"`
	Centroid []byte `gorm:"size:80"`
	Songs    []Song `gorm:"many2many:collection_songs"`
}

// Analysis is a song's acoustic fingerprint: 80 bytes of little-endian
// f32 in the fixed component order, tagged with the extractor schema
// version.
type Analysis struct {
	SongID    string `gorm:"primaryKey;size:26"`
	Blob      []byte `gorm:"size:80"`
	Version   int
	CreatedAt time.Time
}

// meta holds store-level key/value state such as the analysis schema
// version seen at last open.
type meta struct {
	Key   string `gorm:"primaryKey"`
	Value int
}
