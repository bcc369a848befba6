package datastore

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyMichaelTDM/mecomp/internal/errors"
	"github.com/AnthonyMichaelTDM/mecomp/internal/features"
)

func openTestStore(t *testing.T) *DataStore {
	t.Helper()
	ds, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, ds.Close())
	})
	return ds
}

func testVector(seed float32) features.Vector {
	var v features.Vector
	for i := range v {
		v[i] = seed + float32(i)*0.01
	}
	return v
}

func TestSongLifecycle(t *testing.T) {
	t.Parallel()
	ds := openTestStore(t)

	song := &Song{Title: "Test Tone", Path: "/music/test.wav"}
	require.NoError(t, ds.CreateSong(song))
	require.NotEmpty(t, song.ID)

	found, err := ds.SongByPath("/music/test.wav")
	require.NoError(t, err)
	assert.Equal(t, song.ID, found.ID)

	_, err = ds.SongByPath("/music/absent.wav")
	assert.True(t, errors.Is(err, ErrSongNotFound))

	require.NoError(t, ds.DeleteSong(song.ID))
	_, err = ds.SongByPath("/music/test.wav")
	assert.True(t, errors.Is(err, ErrSongNotFound))
}

func TestAnalysisRoundTrip(t *testing.T) {
	t.Parallel()
	ds := openTestStore(t)

	song := &Song{Title: "A", Path: "/music/a.wav"}
	require.NoError(t, ds.CreateSong(song))

	v := testVector(0.1)
	require.NoError(t, ds.SaveAnalysis(song.ID, v))

	got, err := ds.GetAnalysis(song.ID)
	require.NoError(t, err)
	assert.Equal(t, v, got)

	has, err := ds.HasAnalysis(song.ID)
	require.NoError(t, err)
	assert.True(t, has)

	// save is an upsert
	v2 := testVector(0.5)
	require.NoError(t, ds.SaveAnalysis(song.ID, v2))
	got, err = ds.GetAnalysis(song.ID)
	require.NoError(t, err)
	assert.Equal(t, v2, got)

	require.NoError(t, ds.DeleteAnalysis(song.ID))
	_, err = ds.GetAnalysis(song.ID)
	assert.True(t, errors.Is(err, ErrAnalysisNotFound))
}

func TestDeleteSongRemovesAnalysis(t *testing.T) {
	t.Parallel()
	ds := openTestStore(t)

	song := &Song{Title: "A", Path: "/music/a.wav"}
	require.NoError(t, ds.CreateSong(song))
	require.NoError(t, ds.SaveAnalysis(song.ID, testVector(0.2)))

	require.NoError(t, ds.DeleteSong(song.ID))
	_, err := ds.GetAnalysis(song.ID)
	assert.True(t, errors.Is(err, ErrAnalysisNotFound))
}

func TestAllAnalyses(t *testing.T) {
	t.Parallel()
	ds := openTestStore(t)

	want := make(map[string]features.Vector)
	for i := range 5 {
		song := &Song{Title: fmt.Sprintf("s%d", i), Path: fmt.Sprintf("/m/%d.wav", i)}
		require.NoError(t, ds.CreateSong(song))
		v := testVector(float32(i))
		require.NoError(t, ds.SaveAnalysis(song.ID, v))
		want[song.ID] = v
	}

	got, err := ds.AllAnalyses()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSeedResolution(t *testing.T) {
	t.Parallel()
	ds := openTestStore(t)

	artist := &Artist{Name: "Artist"}
	require.NoError(t, ds.CreateArtist(artist))

	album := &Album{Title: "Album", ArtistID: &artist.ID}
	require.NoError(t, ds.CreateAlbum(album))

	var songIDs []string
	for i := range 3 {
		song := &Song{Title: fmt.Sprintf("s%d", i), Path: fmt.Sprintf("/m/%d.wav", i), AlbumID: &album.ID}
		require.NoError(t, ds.CreateSong(song))
		songIDs = append(songIDs, song.ID)
	}
	// only two of three songs are analyzed
	require.NoError(t, ds.SaveAnalysis(songIDs[0], testVector(0.1)))
	require.NoError(t, ds.SaveAnalysis(songIDs[1], testVector(0.2)))

	albumSeed, err := ds.AlbumSeed(album.ID)
	require.NoError(t, err)
	assert.Len(t, albumSeed.SongIDs, 3, "exclusion set includes unanalyzed members")
	assert.Len(t, albumSeed.Vectors, 2, "query mean uses analyzed members only")

	artistSeed, err := ds.ArtistSeed(artist.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, albumSeed.SongIDs, artistSeed.SongIDs)

	playlist := &Playlist{Name: "Mix"}
	require.NoError(t, ds.CreatePlaylist(playlist, songIDs[:2]))
	playlistSeed, err := ds.PlaylistSeed(playlist.ID)
	require.NoError(t, err)
	assert.Len(t, playlistSeed.Vectors, 2)

	songSeed, err := ds.SongSeed(songIDs[0])
	require.NoError(t, err)
	assert.Equal(t, []string{songIDs[0]}, songSeed.SongIDs)
	assert.Len(t, songSeed.Vectors, 1)

	_, err = ds.AlbumSeed("01J00000000000000000000000")
	assert.True(t, errors.Is(err, ErrEntityNotFound))
}

func TestReplaceCollections(t *testing.T) {
	t.Parallel()
	ds := openTestStore(t)

	var songIDs []string
	for i := range 4 {
		song := &Song{Title: fmt.Sprintf("s%d", i), Path: fmt.Sprintf("/m/%d.wav", i)}
		require.NoError(t, ds.CreateSong(song))
		songIDs = append(songIDs, song.ID)
	}

	first, err := ds.ReplaceCollections([]CollectionWrite{
		{Centroid: testVector(0.1), SongIDs: songIDs[:2]},
		{Centroid: testVector(0.2), SongIDs: songIDs[2:]},
	})
	require.NoError(t, err)
	require.Len(t, first, 2)

	cols, err := ds.Collections()
	require.NoError(t, err)
	assert.Len(t, cols, 2)

	// a second replace swaps everything
	second, err := ds.ReplaceCollections([]CollectionWrite{
		{Centroid: testVector(0.3), SongIDs: songIDs},
	})
	require.NoError(t, err)
	require.Len(t, second, 1)

	cols, err = ds.Collections()
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, second[0], cols[0].ID)

	seed, centroid, err := ds.CollectionSeed(second[0])
	require.NoError(t, err)
	assert.Equal(t, testVector(0.3), centroid)
	assert.ElementsMatch(t, songIDs, seed.SongIDs)
}

func TestReplaceCollectionsAtomicity(t *testing.T) {
	t.Parallel()
	ds := openTestStore(t)

	song := &Song{Title: "s", Path: "/m/s.wav"}
	require.NoError(t, ds.CreateSong(song))

	before, err := ds.ReplaceCollections([]CollectionWrite{
		{Centroid: testVector(0.1), SongIDs: []string{song.ID}},
	})
	require.NoError(t, err)

	// inject a failure inside the swap transaction
	ds.SetPersistHook(func() error { return errors.NewStd("disk on fire") })
	_, err = ds.ReplaceCollections([]CollectionWrite{
		{Centroid: testVector(0.9), SongIDs: []string{song.ID}},
	})
	require.Error(t, err)
	ds.SetPersistHook(nil)

	// the previous collections survived untouched
	cols, err := ds.Collections()
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, before[0], cols[0].ID)

	_, centroid, err := ds.CollectionSeed(before[0])
	require.NoError(t, err)
	assert.Equal(t, testVector(0.1), centroid)
}

func TestSchemaVersionWipePolicy(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "versioned.db")
	ds, err := New(path)
	require.NoError(t, err)

	song := &Song{Title: "s", Path: "/m/s.wav"}
	require.NoError(t, ds.CreateSong(song))
	require.NoError(t, ds.SaveAnalysis(song.ID, testVector(0.4)))

	// simulate a mismatched daemon by moving the stored schema version forward
	require.NoError(t, ds.db.Model(&meta{}).
		Where("key = ?", analysisVersionKey).
		Update("value", features.SchemaVersion+1).Error)
	require.NoError(t, ds.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close() //nolint:errcheck // test cleanup

	// all analyses were discarded, songs survive
	_, err = reopened.GetAnalysis(song.ID)
	assert.True(t, errors.Is(err, ErrAnalysisNotFound))
	_, err = reopened.SongByPath("/m/s.wav")
	assert.NoError(t, err)
}
