package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/AnthonyMichaelTDM/mecomp/cmd"
	"github.com/AnthonyMichaelTDM/mecomp/internal/conf"
	"github.com/AnthonyMichaelTDM/mecomp/internal/logging"
	"github.com/AnthonyMichaelTDM/mecomp/internal/observability/metrics"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}

	m, err := metrics.NewMetrics()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error registering metrics: %v\n", err)
		os.Exit(1)
	}

	rootCmd := cmd.RootCommand(settings, m)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
