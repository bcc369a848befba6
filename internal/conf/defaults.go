// conf/defaults.go default configuration values
package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig registers the default value for every configuration key.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Main
	viper.SetDefault("main.name", "mecomp")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/mecomp.log")
	viper.SetDefault("main.log.maxsizemb", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxagedays", 28)

	// Library
	viper.SetDefault("library.paths", []string{})
	viper.SetDefault("library.rescanevery", 300)
	viper.SetDefault("library.musicfileext", []string{".wav"})

	// Analysis
	viper.SetDefault("analysis.threads", 0)
	viper.SetDefault("analysis.overrideexisting", false)

	// Index
	viper.SetDefault("index.rebuildthreshold", 0.1)

	// Radio
	viper.SetDefault("radio.seedcachettl", 300)

	// Recluster
	viper.SetDefault("recluster.algorithm", "kmeans")
	viper.SetDefault("recluster.projectionmethod", "none")
	viper.SetDefault("recluster.maxclusters", 24)
	viper.SetDefault("recluster.gapstatisticreferencedatasets", 50)
	viper.SetDefault("recluster.maxiterations", 120)

	// Datastore
	viper.SetDefault("datastore.path", "mecomp.db")

	// Observability
	viper.SetDefault("observability.metricsport", 9190)

	// Output
	viper.SetDefault("output.type", "table")
}
