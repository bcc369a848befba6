package watch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AnthonyMichaelTDM/mecomp/cmd/analyze"
	"github.com/AnthonyMichaelTDM/mecomp/internal/analysis"
	"github.com/AnthonyMichaelTDM/mecomp/internal/conf"
	"github.com/AnthonyMichaelTDM/mecomp/internal/datastore"
	"github.com/AnthonyMichaelTDM/mecomp/internal/logging"
	"github.com/AnthonyMichaelTDM/mecomp/internal/mtree"
	"github.com/AnthonyMichaelTDM/mecomp/internal/observability/metrics"
	"github.com/AnthonyMichaelTDM/mecomp/internal/radio"
)

// Command creates the watch command: periodically rescan the library and
// analyze whatever appeared.
func Command(settings *conf.Settings, m *metrics.Metrics) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir...]",
		Short: "Watch library directories and analyze new songs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
			go func() {
				sig := <-sigChan
				fmt.Printf("\nReceived signal %v, shutting down...\n", sig)
				cancel()
			}()

			return runWatch(ctx, settings, m, args)
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cmd.Flags().IntVar(&settings.Library.RescanEvery, "interval", viper.GetInt("library.rescanevery"), "Seconds between library rescans")
	cmd.Flags().IntVar(&settings.Observability.MetricsPort, "metrics-port", viper.GetInt("observability.metricsport"), "Port for the prometheus /metrics endpoint, 0 to disable")
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func runWatch(ctx context.Context, settings *conf.Settings, m *metrics.Metrics, dirs []string) error {
	logger := logging.ForService("watch")
	if logger == nil {
		logger = slog.Default()
	}

	store, err := datastore.New(settings.Datastore.Path)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // best-effort close on exit

	pool := analysis.NewPool(settings.Analysis.Threads, analysis.WithMetrics(m.Analysis))
	interval := time.Duration(settings.Library.RescanEvery) * time.Second

	// the daemon's in-memory similarity surface: incremental inserts per
	// scan, full rebuild once churn crosses the configured threshold
	index := mtree.New(mtree.WithMetrics(m.Index))
	if analyses, err := store.AllAnalyses(); err == nil {
		index.Rebuild(analyses)
	}
	engine := radio.New(store, index, time.Duration(settings.Radio.SeedCacheTTL)*time.Second)

	stopMetrics := serveMetrics(settings.Observability.MetricsPort, m, logger)
	defer stopMetrics()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	scan := func() {
		tasks, err := analyze.CollectTasks(store, dirs, settings.Library.MusicFileExt, false)
		if err != nil {
			logger.Error("library scan failed", "error", err)
			return
		}
		if len(tasks) == 0 {
			return
		}

		summary, outcomes := pool.Analyze(ctx, tasks, nil)
		var saved int
		for i := range outcomes {
			if outcomes[i].Err != nil {
				continue
			}
			if err := store.SaveAnalysis(outcomes[i].SongID, outcomes[i].Vector); err != nil {
				logger.Error("saving analysis failed", "song", outcomes[i].SongID, "error", err)
				continue
			}
			index.Insert(outcomes[i].Vector, outcomes[i].SongID)
			saved++
		}

		if index.ShouldRebuild(settings.Index.RebuildThreshold) {
			if analyses, err := store.AllAnalyses(); err == nil {
				index.Rebuild(analyses)
			}
		}
		if saved > 0 {
			// cached seed resolutions predate the new analyses
			engine.InvalidateSeeds()
		}

		logger.Info("scan complete", "new_songs", len(tasks),
			"ok", summary.Successes, "failed", summary.Failures,
			"indexed", index.Size())
	}

	scan()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			scan()
		}
	}
}

// serveMetrics exposes the prometheus registry on /metrics. Returns a
// shutdown func; a port of 0 disables the endpoint.
func serveMetrics(port int, m *metrics.Metrics, logger *slog.Logger) func() {
	if port == 0 {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics endpoint listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics endpoint failed", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
