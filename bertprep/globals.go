package internal

import (
	"log"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// BERTMaxLen is the longest sequence a pretrained BERT model accepts.
const BERTMaxLen = 512

var (
	// DefaultConfigPath is the default path to the config file
	DefaultAppName          = "bertprep"
	DefaultConfigPath       = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultCacheDir         = filepath.Join(DefaultConfigPath, ".cache")
	DefaultGlobalConfigFile = filepath.Join(DefaultConfigPath, "config.yaml")
	DefaultStoreDSN         = "file:" + filepath.Join(DefaultConfigPath, "features.db")

	// Default preprocessing settings
	DefaultTrailingPieceTag = "X"
	DefaultPadTag           = "O"
	DefaultBatchSize        = 32
	DefaultSampleMethod     = "random"
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current working directory if home directory is unavailable
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
