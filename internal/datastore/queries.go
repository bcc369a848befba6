package datastore

import (
	"gorm.io/gorm"

	"github.com/AnthonyMichaelTDM/mecomp/internal/errors"
	"github.com/AnthonyMichaelTDM/mecomp/internal/features"
)

// CreateSong inserts a song, minting an ID when absent.
func (ds *DataStore) CreateSong(song *Song) error {
	if song.ID == "" {
		song.ID = NewID()
	}
	return ds.wrapDB(ds.db.Create(song).Error, "create_song")
}

// SongByPath looks a song up by its library path.
func (ds *DataStore) SongByPath(path string) (*Song, error) {
	var song Song
	err := ds.db.Where("path = ?", path).First(&song).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSongNotFound
	}
	if err != nil {
		return nil, ds.wrapDB(err, "song_by_path")
	}
	return &song, nil
}

// DeleteSong removes a song together with its analysis and membership rows.
func (ds *DataStore) DeleteSong(id string) error {
	return ds.wrapDB(ds.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("song_id = ?", id).Delete(&Analysis{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM playlist_songs WHERE song_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM collection_songs WHERE song_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&Song{ID: id}).Error
	}), "delete_song")
}

// CreateAlbum inserts an album, minting an ID when absent.
func (ds *DataStore) CreateAlbum(album *Album) error {
	if album.ID == "" {
		album.ID = NewID()
	}
	return ds.wrapDB(ds.db.Create(album).Error, "create_album")
}

// CreateArtist inserts an artist, minting an ID when absent.
func (ds *DataStore) CreateArtist(artist *Artist) error {
	if artist.ID == "" {
		artist.ID = NewID()
	}
	return ds.wrapDB(ds.db.Create(artist).Error, "create_artist")
}

// CreatePlaylist inserts a playlist and its membership edges.
func (ds *DataStore) CreatePlaylist(playlist *Playlist, songIDs []string) error {
	if playlist.ID == "" {
		playlist.ID = NewID()
	}
	return ds.wrapDB(ds.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(playlist).Error; err != nil {
			return err
		}
		for _, songID := range songIDs {
			if err := tx.Exec("INSERT INTO playlist_songs (playlist_id, song_id) VALUES (?, ?)",
				playlist.ID, songID).Error; err != nil {
				return err
			}
		}
		return nil
	}), "create_playlist")
}

// SaveAnalysis upserts the analysis vector for a song.
func (ds *DataStore) SaveAnalysis(songID string, v features.Vector) error {
	row := Analysis{
		SongID:  songID,
		Blob:    v.Encode(),
		Version: features.SchemaVersion,
	}
	return ds.wrapDB(ds.db.Save(&row).Error, "save_analysis")
}

// GetAnalysis returns the stored vector for a song.
func (ds *DataStore) GetAnalysis(songID string) (features.Vector, error) {
	var row Analysis
	err := ds.db.Where("song_id = ?", songID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return features.Vector{}, ErrAnalysisNotFound
	}
	if err != nil {
		return features.Vector{}, ds.wrapDB(err, "get_analysis")
	}
	return features.Decode(row.Blob)
}

// DeleteAnalysis removes a song's analysis.
func (ds *DataStore) DeleteAnalysis(songID string) error {
	return ds.wrapDB(ds.db.Where("song_id = ?", songID).Delete(&Analysis{}).Error, "delete_analysis")
}

// HasAnalysis reports whether the song already has a stored vector.
func (ds *DataStore) HasAnalysis(songID string) (bool, error) {
	var count int64
	err := ds.db.Model(&Analysis{}).Where("song_id = ?", songID).Count(&count).Error
	if err != nil {
		return false, ds.wrapDB(err, "has_analysis")
	}
	return count > 0, nil
}

// AllAnalyses snapshots every stored vector keyed by song ID.
func (ds *DataStore) AllAnalyses() (map[string]features.Vector, error) {
	var rows []Analysis
	if err := ds.db.Find(&rows).Error; err != nil {
		return nil, ds.wrapDB(err, "all_analyses")
	}

	out := make(map[string]features.Vector, len(rows))
	for i := range rows {
		v, err := features.Decode(rows[i].Blob)
		if err != nil {
			return nil, err
		}
		out[rows[i].SongID] = v
	}
	return out, nil
}

// SongSeed resolves a single song into seed members.
func (ds *DataStore) SongSeed(songID string) (*SeedMembers, error) {
	var song Song
	err := ds.db.First(&song, "id = ?", songID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSongNotFound
	}
	if err != nil {
		return nil, ds.wrapDB(err, "song_seed")
	}

	members := &SeedMembers{SongIDs: []string{songID}}
	v, err := ds.GetAnalysis(songID)
	if err == nil {
		members.Vectors = append(members.Vectors, v)
	} else if !errors.Is(err, ErrAnalysisNotFound) {
		return nil, err
	}
	return members, nil
}

// AlbumSeed resolves an album's member songs into seed members.
func (ds *DataStore) AlbumSeed(albumID string) (*SeedMembers, error) {
	if err := ds.mustExist(&Album{}, albumID, "album_seed"); err != nil {
		return nil, err
	}
	return ds.seedFromSongQuery(
		"SELECT id FROM songs WHERE album_id = ? ORDER BY id", "album_seed", albumID)
}

// ArtistSeed resolves the songs across all of an artist's albums.
func (ds *DataStore) ArtistSeed(artistID string) (*SeedMembers, error) {
	if err := ds.mustExist(&Artist{}, artistID, "artist_seed"); err != nil {
		return nil, err
	}
	return ds.seedFromSongQuery(
		`SELECT songs.id FROM songs
		 JOIN albums ON albums.id = songs.album_id
		 WHERE albums.artist_id = ? ORDER BY songs.id`, "artist_seed", artistID)
}

// PlaylistSeed resolves a playlist's member songs.
func (ds *DataStore) PlaylistSeed(playlistID string) (*SeedMembers, error) {
	if err := ds.mustExist(&Playlist{}, playlistID, "playlist_seed"); err != nil {
		return nil, err
	}
	return ds.seedFromSongQuery(
		"SELECT song_id FROM playlist_songs WHERE playlist_id = ? ORDER BY song_id", "playlist_seed", playlistID)
}

// CollectionSeed resolves a collection's members and returns the stored
// centroid as the query vector.
func (ds *DataStore) CollectionSeed(collectionID string) (*SeedMembers, features.Vector, error) {
	var collection Collection
	err := ds.db.First(&collection, "id = ?", collectionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, features.Vector{}, ErrEntityNotFound
	}
	if err != nil {
		return nil, features.Vector{}, ds.wrapDB(err, "collection_seed")
	}

	centroid, err := features.Decode(collection.Centroid)
	if err != nil {
		return nil, features.Vector{}, err
	}

	members, err := ds.seedFromSongQuery(
		"SELECT song_id FROM collection_songs WHERE collection_id = ? ORDER BY song_id", "collection_seed", collectionID)
	if err != nil {
		return nil, features.Vector{}, err
	}
	return members, centroid, nil
}

// seedFromSongQuery collects the member song IDs from an ID query plus the
// analysis vectors of the analyzed subset.
func (ds *DataStore) seedFromSongQuery(query, operation string, args ...any) (*SeedMembers, error) {
	var songIDs []string
	if err := ds.db.Raw(query, args...).Scan(&songIDs).Error; err != nil {
		return nil, ds.wrapDB(err, operation)
	}

	members := &SeedMembers{SongIDs: songIDs}
	if len(songIDs) == 0 {
		return members, nil
	}

	var rows []Analysis
	if err := ds.db.Where("song_id IN ?", songIDs).Order("song_id").Find(&rows).Error; err != nil {
		return nil, ds.wrapDB(err, operation)
	}
	for i := range rows {
		v, err := features.Decode(rows[i].Blob)
		if err != nil {
			return nil, err
		}
		members.Vectors = append(members.Vectors, v)
	}
	return members, nil
}

func (ds *DataStore) mustExist(model any, id, operation string) error {
	err := ds.db.First(model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrEntityNotFound
	}
	return ds.wrapDB(err, operation)
}

// ReplaceCollections atomically swaps the previous collections and their
// membership edges for the given set. On any failure the previous
// collections remain untouched. Returns the new collection IDs.
func (ds *DataStore) ReplaceCollections(collections []CollectionWrite) ([]string, error) {
	ids := make([]string, len(collections))

	err := ds.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM collection_songs").Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&Collection{}).Error; err != nil {
			return err
		}

		for i := range collections {
			ids[i] = NewID()
			row := Collection{ID: ids[i], Centroid: collections[i].Centroid.Encode()}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			for _, songID := range collections[i].SongIDs {
				if err := tx.Exec("INSERT INTO collection_songs (collection_id, song_id) VALUES (?, ?)",
					row.ID, songID).Error; err != nil {
					return err
				}
			}
		}

		if ds.persistHook != nil {
			return ds.persistHook()
		}
		return nil
	})
	if err != nil {
		return nil, ds.wrapDB(err, "replace_collections")
	}
	return ids, nil
}

// Collections lists the current collections without membership edges.
func (ds *DataStore) Collections() ([]Collection, error) {
	var rows []Collection
	if err := ds.db.Find(&rows).Error; err != nil {
		return nil, ds.wrapDB(err, "collections")
	}
	return rows, nil
}
