// Package datastore persists songs, albums, artists, playlists,
// collections and analysis vectors behind a narrow query interface.
package datastore

import (
	"log/slog"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AnthonyMichaelTDM/mecomp/internal/errors"
	"github.com/AnthonyMichaelTDM/mecomp/internal/features"
	"github.com/AnthonyMichaelTDM/mecomp/internal/logging"
)

const analysisVersionKey = "analysis_schema_version"

// Sentinel errors for not found cases
var (
	// ErrSongNotFound indicates the requested song does not exist.
	ErrSongNotFound = errors.Newf("song not found").Component("datastore").Category(errors.CategoryNotFound).Build()
	// ErrAnalysisNotFound indicates the song has no stored analysis.
	ErrAnalysisNotFound = errors.Newf("analysis not found").Component("datastore").Category(errors.CategoryNotFound).Build()
	// ErrEntityNotFound indicates a referenced album/artist/playlist/collection does not exist.
	ErrEntityNotFound = errors.Newf("entity not found").Component("datastore").Category(errors.CategoryNotFound).Build()
)

// SeedMembers is the resolved constituency of a radio seed: the analyzed
// member vectors plus every member song ID (analyzed or not) for result
// exclusion.
type SeedMembers struct {
	Vectors []features.Vector
	SongIDs []string
}

// CollectionWrite is one collection produced by a recluster run.
type CollectionWrite struct {
	Centroid features.Vector
	SongIDs  []string
}

// Interface defines the database operations used by the pipeline.
type Interface interface {
	Close() error

	// library entities
	CreateSong(song *Song) error
	SongByPath(path string) (*Song, error)
	DeleteSong(id string) error
	CreateAlbum(album *Album) error
	CreateArtist(artist *Artist) error
	CreatePlaylist(playlist *Playlist, songIDs []string) error

	// analyses
	SaveAnalysis(songID string, v features.Vector) error
	GetAnalysis(songID string) (features.Vector, error)
	DeleteAnalysis(songID string) error
	AllAnalyses() (map[string]features.Vector, error)
	HasAnalysis(songID string) (bool, error)

	// seed resolution
	SongSeed(songID string) (*SeedMembers, error)
	AlbumSeed(albumID string) (*SeedMembers, error)
	ArtistSeed(artistID string) (*SeedMembers, error)
	PlaylistSeed(playlistID string) (*SeedMembers, error)
	CollectionSeed(collectionID string) (*SeedMembers, features.Vector, error)

	// collections
	ReplaceCollections(collections []CollectionWrite) ([]string, error)
	Collections() ([]Collection, error)
}

// DataStore implements Interface on gorm.
type DataStore struct {
	db     *gorm.DB
	logger *slog.Logger

	// persistHook runs inside the ReplaceCollections transaction after the
	// writes; a non-nil return rolls the transaction back. Tests use it to
	// prove atomicity.
	persistHook func() error
}

// New opens (or creates) the sqlite database at path and migrates the
// schema. A stored analysis schema version that does not match the
// extractor's triggers the breaking-change policy: every analysis row is
// discarded and the library re-analyzes lazily.
func New(path string) (*DataStore, error) {
	logger := logging.ForService("datastore")
	if logger == nil {
		logger = slog.Default()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}

	ds := &DataStore{db: db, logger: logger}

	if err := db.AutoMigrate(&Artist{}, &Album{}, &Song{}, &Playlist{}, &Collection{}, &Analysis{}, &meta{}); err != nil {
		return nil, errors.Wrap(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "migrate").
			Build()
	}

	if err := ds.enforceAnalysisVersion(); err != nil {
		return nil, err
	}

	return ds, nil
}

// enforceAnalysisVersion applies the schema-version policy at open time.
func (ds *DataStore) enforceAnalysisVersion() error {
	var row meta
	err := ds.db.Where("key = ?", analysisVersionKey).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = meta{Key: analysisVersionKey, Value: features.SchemaVersion}
		return ds.wrapDB(ds.db.Create(&row).Error, "store_schema_version")
	case err != nil:
		return ds.wrapDB(err, "read_schema_version")
	}

	if row.Value == features.SchemaVersion {
		return nil
	}

	ds.logger.Warn("analysis schema version changed, discarding all analyses",
		"stored_version", row.Value,
		"current_version", features.SchemaVersion)

	return ds.wrapDB(ds.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&Analysis{}).Error; err != nil {
			return err
		}
		return tx.Model(&meta{}).Where("key = ?", analysisVersionKey).
			Update("value", features.SchemaVersion).Error
	}), "discard_stale_analyses")
}

// Close closes the underlying database connection.
func (ds *DataStore) Close() error {
	sqlDB, err := ds.db.DB()
	if err != nil {
		return ds.wrapDB(err, "close")
	}
	return sqlDB.Close()
}

// DB exposes the underlying gorm handle for callers needing queries the
// narrow interface does not cover.
func (ds *DataStore) DB() *gorm.DB {
	return ds.db
}

// SetPersistHook installs the test-only transaction fault hook.
func (ds *DataStore) SetPersistHook(hook func() error) {
	ds.persistHook = hook
}

func (ds *DataStore) wrapDB(err error, operation string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}
