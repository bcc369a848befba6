// conf/config.go
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings holds the full daemon configuration loaded through viper.
type Settings struct {
	Debug bool // true to enable debug mode

	Main struct {
		Name string // name of this mecomp node
		Log  LogConfig
	}

	Library struct {
		Paths        []string // library directories; not read by any command, analyze and watch take paths as arguments
		RescanEvery  int      // watch-mode rescan interval in seconds
		MusicFileExt []string // recognized audio file extensions
	}

	Analysis struct {
		Threads          int  // number of worker threads, 0 for all cores
		OverrideExisting bool // re-analyze songs that already have a vector
	}

	Index struct {
		RebuildThreshold float64 // fraction of corpus churn that triggers a rebuild
	}

	Radio struct {
		SeedCacheTTL int // seconds a resolved seed vector stays cached
	}

	Recluster struct {
		Algorithm                     string // "kmeans" or "gmm"
		ProjectionMethod              string // "none", "pca" or "tsne"
		MaxClusters                   int    // upper bound for the gap statistic search
		GapStatisticReferenceDatasets int    // reference datasets per candidate k
		MaxIterations                 int    // clusterer iteration cap
	}

	Datastore struct {
		Path string // path to the sqlite database file
	}

	Observability struct {
		MetricsPort int // port for the prometheus /metrics endpoint, 0 to disable
	}

	Output struct {
		Type string // output type (table, csv); not read by any command, radio always prints a table
	}
}

// LogConfig defines the configuration for log files. Main.Log is not read
// by logging.Init, which always writes logs/mecomp.log.
type LogConfig struct {
	Enabled    bool   // true to enable this log
	Path       string // path to log file
	MaxSizeMB  int    // max log size in MB before rotation
	MaxBackups int    // rotated files to keep
	MaxAgeDays int    // days to retain rotated files
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration into the global Settings instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets up viper with config paths, defaults and env overrides.
func initViper() error {
	viper.SetConfigType("yaml")
	viper.SetConfigName("config")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("MECOMP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("fatal error reading config file: %w", err)
		}
		// No config file found, create one from the embedded default
		return createDefaultConfig(configPaths)
	}

	return nil
}

// createDefaultConfig writes the embedded default config to the first config path.
func createDefaultConfig(configPaths []string) error {
	if len(configPaths) == 0 {
		return fmt.Errorf("no config paths available")
	}

	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil { //nolint:gosec // accept 0o755 for now
		return fmt.Errorf("error creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil { //nolint:gosec // accept 0o644 for now
		return fmt.Errorf("error writing default config file: %w", err)
	}

	return viper.ReadInConfig()
}

// Setting returns the global settings instance, loading it if necessary.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				panic(fmt.Sprintf("error loading settings: %v", err))
			}
		}
	})

	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetDefaultConfigPaths returns the platform-appropriate config search paths.
func GetDefaultConfigPaths() ([]string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("error resolving user config dir: %w", err)
	}

	return []string{
		filepath.Join(configDir, "mecomp"),
		".",
	}, nil
}
