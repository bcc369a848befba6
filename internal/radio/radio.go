// Package radio resolves similarity-query seeds and answers "more like
// this" queries against the metric index.
package radio

import (
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/AnthonyMichaelTDM/mecomp/internal/datastore"
	"github.com/AnthonyMichaelTDM/mecomp/internal/errors"
	"github.com/AnthonyMichaelTDM/mecomp/internal/features"
	"github.com/AnthonyMichaelTDM/mecomp/internal/logging"
	"github.com/AnthonyMichaelTDM/mecomp/internal/mtree"
)

// SeedKind selects how a seed ID is resolved into a query vector.
type SeedKind string

const (
	SeedSong       SeedKind = "song"
	SeedAlbum      SeedKind = "album"
	SeedArtist     SeedKind = "artist"
	SeedPlaylist   SeedKind = "playlist"
	SeedCollection SeedKind = "collection"
)

// Engine answers radio queries. Seed resolution hits the datastore; the
// resolved query vector and exclusion set are cached briefly because a
// user stepping through a radio typically re-queries the same seed.
type Engine struct {
	store datastore.Interface
	index *mtree.Tree
	cache *gocache.Cache

	logger *slog.Logger
}

// resolvedSeed is the cache entry for one (kind, id) seed.
type resolvedSeed struct {
	query   features.Vector
	exclude map[string]struct{}
}

// New creates a radio engine. cacheTTL <= 0 disables seed caching.
func New(store datastore.Interface, index *mtree.Tree, cacheTTL time.Duration) *Engine {
	logger := logging.ForService("radio")
	if logger == nil {
		logger = slog.Default()
	}

	var c *gocache.Cache
	if cacheTTL > 0 {
		c = gocache.New(cacheTTL, 2*cacheTTL)
	}

	return &Engine{
		store:  store,
		index:  index,
		cache:  c,
		logger: logger,
	}
}

// InvalidateSeeds drops every cached seed resolution. The watch daemon
// calls it after a scan saves new analyses.
func (e *Engine) InvalidateSeeds() {
	if e.cache != nil {
		e.cache.Flush()
	}
}

// Query returns up to k songs acoustically nearest to the seed, ascending
// by distance, never including the seed's own songs.
func (e *Engine) Query(kind SeedKind, seedID string, k int) ([]mtree.Neighbor, error) {
	corpus := e.index.Size()
	if k < 1 || k > corpus {
		return nil, errors.Newf("k must be in [1, %d], got %d", corpus, k).
			Component("radio").
			Category(errors.CategoryValidation).
			Build()
	}

	seed, err := e.resolve(kind, seedID)
	if err != nil {
		return nil, err
	}

	// over-fetch by the exclusion set size so k survivors remain
	fetch := k + len(seed.exclude)
	if fetch > corpus {
		fetch = corpus
	}

	neighbors, err := e.index.KNN(seed.query, fetch)
	if err != nil {
		return nil, err
	}

	out := make([]mtree.Neighbor, 0, k)
	for _, n := range neighbors {
		if _, isSeed := seed.exclude[n.ID]; isSeed {
			continue
		}
		out = append(out, n)
		if len(out) == k {
			break
		}
	}

	e.logger.Debug("radio query",
		"kind", string(kind),
		"seed", seedID,
		"k", k,
		"returned", len(out))

	return out, nil
}

// resolve turns a seed into a query vector and exclusion set, consulting
// the cache first.
func (e *Engine) resolve(kind SeedKind, seedID string) (*resolvedSeed, error) {
	key := fmt.Sprintf("%s/%s", kind, seedID)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			return cached.(*resolvedSeed), nil
		}
	}

	seed, err := e.resolveUncached(kind, seedID)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.Set(key, seed, gocache.DefaultExpiration)
	}
	return seed, nil
}

func (e *Engine) resolveUncached(kind SeedKind, seedID string) (*resolvedSeed, error) {
	var members *datastore.SeedMembers
	var query features.Vector
	var haveQuery bool
	var err error

	switch kind {
	case SeedSong:
		members, err = e.store.SongSeed(seedID)
	case SeedAlbum:
		members, err = e.store.AlbumSeed(seedID)
	case SeedArtist:
		members, err = e.store.ArtistSeed(seedID)
	case SeedPlaylist:
		members, err = e.store.PlaylistSeed(seedID)
	case SeedCollection:
		members, query, err = e.store.CollectionSeed(seedID)
		haveQuery = true
	default:
		return nil, errors.Newf("unknown seed kind %q", kind).
			Component("radio").
			Category(errors.CategoryValidation).
			Build()
	}
	if err != nil {
		return nil, err
	}

	if len(members.Vectors) == 0 {
		return nil, errors.Wrap(errors.ErrEmptySeed).
			Component("radio").
			Context("kind", string(kind)).
			Context("seed", seedID).
			Build()
	}

	if !haveQuery {
		query, err = features.Mean(members.Vectors)
		if err != nil {
			return nil, err
		}
	}

	exclude := make(map[string]struct{}, len(members.SongIDs))
	for _, id := range members.SongIDs {
		exclude[id] = struct{}{}
	}

	return &resolvedSeed{query: query, exclude: exclude}, nil
}
