package radio

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyMichaelTDM/mecomp/internal/datastore"
	"github.com/AnthonyMichaelTDM/mecomp/internal/errors"
	"github.com/AnthonyMichaelTDM/mecomp/internal/features"
	"github.com/AnthonyMichaelTDM/mecomp/internal/mtree"
)

type fixture struct {
	store  *datastore.DataStore
	index  *mtree.Tree
	engine *Engine
	songs  []string
}

// newFixture builds a store with n analyzed songs whose vectors step away
// from the origin, indexes them and wires an engine.
func newFixture(t *testing.T, n int) *fixture {
	t.Helper()

	store, err := datastore.New(filepath.Join(t.TempDir(), "radio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	songs := make([]string, n)
	for i := range n {
		song := &datastore.Song{Title: fmt.Sprintf("s%02d", i), Path: fmt.Sprintf("/m/%02d.wav", i)}
		require.NoError(t, store.CreateSong(song))
		songs[i] = song.ID

		var v features.Vector
		v[0] = float32(i)
		require.NoError(t, store.SaveAnalysis(song.ID, v))
	}

	analyses, err := store.AllAnalyses()
	require.NoError(t, err)
	index := mtree.New()
	index.Rebuild(analyses)

	return &fixture{
		store:  store,
		index:  index,
		engine: New(store, index, time.Minute),
		songs:  songs,
	}
}

func TestSongSeedExcludesItself(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, 10)

	got, err := fx.engine.Query(SeedSong, fx.songs[3], 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for _, n := range got {
		assert.NotEqual(t, fx.songs[3], n.ID, "radio must never return the seed song")
	}

	// nearest neighbors of x=3 are x=2 and x=4
	assert.InDelta(t, 1.0, got[0].Distance, 1e-6)
}

func TestResultsAscendByDistance(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, 12)

	got, err := fx.engine.Query(SeedSong, fx.songs[0], 8)
	require.NoError(t, err)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].Distance, got[i-1].Distance)
	}
}

func TestKValidation(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, 5)

	_, err := fx.engine.Query(SeedSong, fx.songs[0], 0)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = fx.engine.Query(SeedSong, fx.songs[0], 6)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestEmptySeed(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, 4)

	// a song with no analysis is an empty seed
	song := &datastore.Song{Title: "silent", Path: "/m/silent.wav"}
	require.NoError(t, fx.store.CreateSong(song))

	_, err := fx.engine.Query(SeedSong, song.ID, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEmptySeed))
}

func TestAlbumSeedExcludesAllMembers(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, 10)

	album := &datastore.Album{Title: "EP"}
	require.NoError(t, fx.store.CreateAlbum(album))
	for _, id := range fx.songs[:3] {
		require.NoError(t, fx.store.DB().Model(&datastore.Song{ID: id}).Update("album_id", album.ID).Error)
	}
	fx.engine.InvalidateSeeds()

	got, err := fx.engine.Query(SeedAlbum, album.ID, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for _, n := range got {
		assert.NotContains(t, fx.songs[:3], n.ID)
	}
}

func TestCollectionSeedUsesStoredCentroid(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, 10)

	var centroid features.Vector
	centroid[0] = 7.4 // nearest non-member should be x=8 after exclusions

	ids, err := fx.store.ReplaceCollections([]datastore.CollectionWrite{
		{Centroid: centroid, SongIDs: fx.songs[6:8]},
	})
	require.NoError(t, err)

	got, err := fx.engine.Query(SeedCollection, ids[0], 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fx.songs[8], got[0].ID)
}

func TestUnknownSeedKind(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, 3)

	_, err := fx.engine.Query(SeedKind("genre"), "x", 1)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestSeedCacheInvalidation(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, 6)

	first, err := fx.engine.Query(SeedSong, fx.songs[1], 2)
	require.NoError(t, err)

	// same query is served from the cache and stays stable
	again, err := fx.engine.Query(SeedSong, fx.songs[1], 2)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	fx.engine.InvalidateSeeds()
	fresh, err := fx.engine.Query(SeedSong, fx.songs[1], 2)
	require.NoError(t, err)
	assert.Equal(t, first, fresh)
}
