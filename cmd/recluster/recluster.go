package recluster

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AnthonyMichaelTDM/mecomp/internal/conf"
	"github.com/AnthonyMichaelTDM/mecomp/internal/datastore"
	"github.com/AnthonyMichaelTDM/mecomp/internal/observability/metrics"
	"github.com/AnthonyMichaelTDM/mecomp/internal/recluster"
)

// Command creates the recluster command: recompute all collections.
func Command(settings *conf.Settings, m *metrics.Metrics) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recluster",
		Short: "Recompute the auto-curated collections",
		Long:  `Snapshot every analyzed song, choose the optimal cluster count with the gap statistic and replace all collections in one atomic update.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
			go func() {
				sig := <-sigChan
				fmt.Printf("\nReceived signal %v, aborting at the next step boundary...\n", sig)
				cancel()
			}()

			return runRecluster(ctx, settings, m)
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Recluster.Algorithm, "algorithm", viper.GetString("recluster.algorithm"), "Clustering algorithm: kmeans, gmm")
	cmd.Flags().StringVar(&settings.Recluster.ProjectionMethod, "projection", viper.GetString("recluster.projectionmethod"), "Projection method: none, pca, tsne")
	cmd.Flags().IntVar(&settings.Recluster.MaxClusters, "max-clusters", viper.GetInt("recluster.maxclusters"), "Upper bound for the cluster count search")
	cmd.Flags().IntVar(&settings.Recluster.GapStatisticReferenceDatasets, "reference-datasets", viper.GetInt("recluster.gapstatisticreferencedatasets"), "Gap-statistic reference datasets per candidate k")
	cmd.Flags().IntVar(&settings.Recluster.MaxIterations, "max-iterations", viper.GetInt("recluster.maxiterations"), "Clusterer iteration cap")

	return viper.BindPFlags(cmd.Flags())
}

func runRecluster(ctx context.Context, settings *conf.Settings, m *metrics.Metrics) error {
	if err := conf.ValidateSettings(settings); err != nil {
		return err
	}

	store, err := datastore.New(settings.Datastore.Path)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // best-effort close on exit

	orchestrator := recluster.New(store, recluster.WithMetrics(m.Recluster))
	start := time.Now()
	result, err := orchestrator.Run(ctx, recluster.Config{
		Algorithm:         settings.Recluster.Algorithm,
		ProjectionMethod:  settings.Recluster.ProjectionMethod,
		MaxClusters:       settings.Recluster.MaxClusters,
		ReferenceDatasets: settings.Recluster.GapStatisticReferenceDatasets,
		MaxIterations:     settings.Recluster.MaxIterations,
		Seed:              time.Now().UnixNano(),
	})
	if err != nil {
		return err
	}

	fmt.Printf("reclustered %d songs into %d collections in %s\n",
		result.Songs, result.K, time.Since(start).Round(time.Millisecond))
	return nil
}
