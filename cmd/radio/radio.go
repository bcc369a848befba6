package radio

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AnthonyMichaelTDM/mecomp/internal/conf"
	"github.com/AnthonyMichaelTDM/mecomp/internal/datastore"
	"github.com/AnthonyMichaelTDM/mecomp/internal/mtree"
	"github.com/AnthonyMichaelTDM/mecomp/internal/observability/metrics"
	"github.com/AnthonyMichaelTDM/mecomp/internal/radio"
)

var (
	songID       string
	albumID      string
	artistID     string
	playlistID   string
	collectionID string
	count        int
)

// Command creates the radio command: acoustically similar songs for a seed.
func Command(settings *conf.Settings, m *metrics.Metrics) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "radio",
		Short: "List songs acoustically similar to a seed",
		Long:  `Resolve a song, album, artist, playlist or collection seed and return its nearest analyzed neighbors.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, seedID, err := seedFromFlags()
			if err != nil {
				return err
			}
			return runRadio(settings, m, kind, seedID)
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().StringVar(&songID, "song", "", "Seed song ID")
	cmd.Flags().StringVar(&albumID, "album", "", "Seed album ID")
	cmd.Flags().StringVar(&artistID, "artist", "", "Seed artist ID")
	cmd.Flags().StringVar(&playlistID, "playlist", "", "Seed playlist ID")
	cmd.Flags().StringVar(&collectionID, "collection", "", "Seed collection ID")
	cmd.Flags().IntVarP(&count, "count", "k", 10, "Number of similar songs to return")
	cmd.MarkFlagsMutuallyExclusive("song", "album", "artist", "playlist", "collection")
	cmd.MarkFlagsOneRequired("song", "album", "artist", "playlist", "collection")

	return viper.BindPFlags(cmd.Flags())
}

func seedFromFlags() (radio.SeedKind, string, error) {
	switch {
	case songID != "":
		return radio.SeedSong, songID, nil
	case albumID != "":
		return radio.SeedAlbum, albumID, nil
	case artistID != "":
		return radio.SeedArtist, artistID, nil
	case playlistID != "":
		return radio.SeedPlaylist, playlistID, nil
	case collectionID != "":
		return radio.SeedCollection, collectionID, nil
	}
	return "", "", fmt.Errorf("a seed flag is required")
}

func runRadio(settings *conf.Settings, m *metrics.Metrics, kind radio.SeedKind, seedID string) error {
	store, err := datastore.New(settings.Datastore.Path)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // best-effort close on exit

	analyses, err := store.AllAnalyses()
	if err != nil {
		return err
	}

	index := mtree.New(mtree.WithMetrics(m.Index))
	index.Rebuild(analyses)

	engine := radio.New(store, index, time.Duration(settings.Radio.SeedCacheTTL)*time.Second)
	neighbors, err := engine.Query(kind, seedID, count)
	if err != nil {
		return err
	}

	for i, n := range neighbors {
		fmt.Printf("%3d  %s  %.6f\n", i+1, n.ID, n.Distance)
	}
	return nil
}
