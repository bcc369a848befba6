// root.go viper root command code
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AnthonyMichaelTDM/mecomp/cmd/analyze"
	"github.com/AnthonyMichaelTDM/mecomp/cmd/radio"
	"github.com/AnthonyMichaelTDM/mecomp/cmd/recluster"
	"github.com/AnthonyMichaelTDM/mecomp/cmd/watch"
	"github.com/AnthonyMichaelTDM/mecomp/internal/conf"
	"github.com/AnthonyMichaelTDM/mecomp/internal/observability/metrics"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, m *metrics.Metrics) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mecomp",
		Short: "MECOMP music-intelligence daemon CLI",
	}

	// Set up the global flags for the root command.
	err := setupFlags(rootCmd, settings)
	if err != nil {
		log.Printf("error setting up flags: %v\n", err)
	}

	subcommands := []*cobra.Command{
		analyze.Command(settings, m),
		radio.Command(settings, m),
		recluster.Command(settings, m),
		watch.Command(settings, m),
	}

	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := initialize(); err != nil {
			return fmt.Errorf("error initializing: %w", err)
		}
		return nil
	}

	return rootCmd
}

// initialize is called before any subcommand runs, after the context is
// ready.
func initialize() error {
	return nil
}

// setupFlags configures global flags for the root command.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Datastore.Path, "database", viper.GetString("datastore.path"), "Path to the library database")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
