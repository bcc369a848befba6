package analyze

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AnthonyMichaelTDM/mecomp/internal/analysis"
	"github.com/AnthonyMichaelTDM/mecomp/internal/conf"
	"github.com/AnthonyMichaelTDM/mecomp/internal/datastore"
	"github.com/AnthonyMichaelTDM/mecomp/internal/errors"
	"github.com/AnthonyMichaelTDM/mecomp/internal/observability/metrics"
)

// Command creates the analyze command for batch-analyzing audio files.
func Command(settings *conf.Settings, m *metrics.Metrics) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [path...]",
		Short: "Analyze audio files into acoustic fingerprints",
		Long:  `Scan the given files or directories and compute the acoustic fingerprint of every recognized song.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
			go func() {
				sig := <-sigChan
				fmt.Printf("\nReceived signal %v, finishing in-flight analyses...\n", sig)
				cancel()
			}()

			return runAnalyze(ctx, settings, m, args)
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
	cmd.Flags().BoolVar(&settings.Analysis.OverrideExisting, "override", viper.GetBool("analysis.overrideexisting"), "Re-analyze songs that already have a fingerprint")
	cmd.Flags().IntVarP(&settings.Analysis.Threads, "threads", "t", viper.GetInt("analysis.threads"), "Worker threads, 0 for all cores")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}

func runAnalyze(ctx context.Context, settings *conf.Settings, m *metrics.Metrics, paths []string) error {
	store, err := datastore.New(settings.Datastore.Path)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // best-effort close on exit

	tasks, err := CollectTasks(store, paths, settings.Library.MusicFileExt, settings.Analysis.OverrideExisting)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("nothing to analyze")
		return nil
	}

	pool := analysis.NewPool(settings.Analysis.Threads, analysis.WithMetrics(m.Analysis))
	summary, outcomes := pool.Analyze(ctx, tasks, func(o analysis.Outcome) {
		if o.Err != nil {
			fmt.Printf("FAIL %s: %v\n", o.SongID, o.Err)
		} else {
			fmt.Printf("OK   %s\n", o.SongID)
		}
	})

	for i := range outcomes {
		if outcomes[i].Err != nil {
			continue
		}
		if err := store.SaveAnalysis(outcomes[i].SongID, outcomes[i].Vector); err != nil {
			return err
		}
	}

	fmt.Printf("analyzed %d songs: %d ok, %d failed\n",
		summary.Successes+summary.Failures, summary.Successes, summary.Failures)
	return nil
}

// CollectTasks walks the given paths, registers unknown songs in the store
// and returns the analysis task list. Songs that already have a
// fingerprint are skipped unless override is set.
func CollectTasks(store datastore.Interface, paths, extensions []string, override bool) ([]analysis.Task, error) {
	var tasks []analysis.Task

	addFile := func(path string) error {
		if !slices.Contains(extensions, strings.ToLower(filepath.Ext(path))) {
			return nil
		}

		song, err := store.SongByPath(path)
		if errors.Is(err, datastore.ErrSongNotFound) {
			song = &datastore.Song{
				Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
				Path:  path,
			}
			if err := store.CreateSong(song); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if !override {
			analyzed, err := store.HasAnalysis(song.ID)
			if err != nil {
				return err
			}
			if analyzed {
				return nil
			}
		}

		tasks = append(tasks, analysis.Task{SongID: song.ID, Path: path})
		return nil
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, errors.Wrap(err).
				Category(errors.CategoryFileIO).
				FileContext(root).
				Build()
		}

		if !info.IsDir() {
			if err := addFile(root); err != nil {
				return nil, err
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			return addFile(path)
		})
		if err != nil {
			return nil, errors.Wrap(err).
				Category(errors.CategoryFileIO).
				FileContext(root).
				Build()
		}
	}

	return tasks, nil
}
