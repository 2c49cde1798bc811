package config

import (
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/ZanzyTHEbar/bertprep/bertprep"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	LogLevel   string           `mapstructure:"logLevel"`
	Tokenizer  TokenizerConfig  `mapstructure:"tokenizer"`
	Preprocess PreprocessConfig `mapstructure:"preprocess"`
	Device     DeviceConfig     `mapstructure:"device"`
	Loader     LoaderConfig     `mapstructure:"loader"`
	Store      StoreConfig      `mapstructure:"store"`
	Inference  InferenceConfig  `mapstructure:"inference"`
}

// TokenizerConfig selects the pretrained vocabulary and the WordPiece backend.
type TokenizerConfig struct {
	Language string `mapstructure:"language"`
	// Lowercase overrides the language default when set.
	Lowercase *bool  `mapstructure:"lowercase"`
	CacheDir  string `mapstructure:"cacheDir"`
	VocabPath string `mapstructure:"vocabPath"`
	Backend   string `mapstructure:"backend"`
}

// PreprocessConfig stores sequence alignment settings.
type PreprocessConfig struct {
	MaxSeqLength     int    `mapstructure:"maxSeqLength"`
	TrailingPieceTag string `mapstructure:"trailingPieceTag"`
	Workers          int    `mapstructure:"workers"`
	LabelMapPath     string `mapstructure:"labelMapPath"`
}

// DeviceConfig stores the requested compute device.
type DeviceConfig struct {
	Kind string `mapstructure:"kind"`
	// NumDevices caps the number of accelerators; zero means all available.
	NumDevices int `mapstructure:"numDevices"`
}

// LoaderConfig stores batching settings.
type LoaderConfig struct {
	SampleMethod string `mapstructure:"sampleMethod"`
	BatchSize    int    `mapstructure:"batchSize"`
	Seed         uint64 `mapstructure:"seed"`
	DropLast     bool   `mapstructure:"dropLast"`
}

// StoreConfig stores feature store connection details.
type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

// InferenceConfig points at an exported token-classification model.
type InferenceConfig struct {
	ModelPath string `mapstructure:"modelPath"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetDefault("logLevel", "info")
	v.SetDefault("tokenizer.language", "English")
	v.SetDefault("tokenizer.cacheDir", internal.DefaultCacheDir)
	v.SetDefault("tokenizer.vocabPath", "")
	v.SetDefault("tokenizer.backend", "sugarme")
	v.SetDefault("preprocess.maxSeqLength", internal.BERTMaxLen)
	v.SetDefault("preprocess.trailingPieceTag", internal.DefaultTrailingPieceTag)
	v.SetDefault("preprocess.workers", 1)
	v.SetDefault("preprocess.labelMapPath", "")
	v.SetDefault("device.kind", "cpu")
	v.SetDefault("device.numDevices", 0)
	v.SetDefault("loader.sampleMethod", internal.DefaultSampleMethod)
	v.SetDefault("loader.batchSize", internal.DefaultBatchSize)
	v.SetDefault("loader.seed", 0)
	v.SetDefault("loader.dropLast", false)
	v.SetDefault("store.dsn", internal.DefaultStoreDSN)
	v.SetDefault("inference.modelPath", "")

	v.AutomaticEnv()                                   // Read in environment variables that match
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // preprocess.maxSeqLength becomes PREPROCESS_MAXSEQLENGTH

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults will be used.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	AppConfig = cfg

	return &cfg, nil
}
