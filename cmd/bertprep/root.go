package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/bertprep/bertprep/config"
	"github.com/ZanzyTHEbar/bertprep/bertprep/device"
	"github.com/ZanzyTHEbar/bertprep/bertprep/preprocess"
	"github.com/ZanzyTHEbar/bertprep/bertprep/tokenizer"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	activeCfg *config.Config
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bertprep",
		Short:         "Prepare text for pretrained BERT models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			activeCfg = loaded
			setupLogger(loaded.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")

	cmd.AddCommand(newEncodeCmd())
	cmd.AddCommand(newBatchesCmd())
	cmd.AddCommand(newDeviceCmd())
	cmd.AddCommand(newPredictCmd())

	return cmd
}

// setupLogger configures both the slog default used by the libraries and the
// zerolog global level used by the commands.
func setupLogger(levelStr string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(levelStr))); err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))

	zl, err := zerolog.ParseLevel(strings.ToLower(levelStr))
	if err != nil || zl == zerolog.NoLevel {
		zl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(zl)
}

func requireConfig() (*config.Config, error) {
	if activeCfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return activeCfg, nil
}

func newPreprocessor(cfg *config.Config) (*preprocess.Preprocessor, error) {
	lang, err := tokenizer.ParseLanguage(cfg.Tokenizer.Language)
	if err != nil {
		return nil, err
	}
	tok, err := tokenizer.Load(tokenizer.Options{
		Language:  lang,
		Lowercase: cfg.Tokenizer.Lowercase,
		CacheDir:  cfg.Tokenizer.CacheDir,
		VocabPath: cfg.Tokenizer.VocabPath,
		Backend:   cfg.Tokenizer.Backend,
	})
	if err != nil {
		return nil, err
	}
	return preprocess.New(tok), nil
}

func selectDevice(cfg *config.Config) (device.Device, int, error) {
	var numDevices *int
	if cfg.Device.NumDevices > 0 {
		n := cfg.Device.NumDevices
		numDevices = &n
	}
	return device.Select(cfg.Device.Kind, numDevices)
}
