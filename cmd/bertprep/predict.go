package main

import (
	"fmt"
	"strings"

	internal "github.com/ZanzyTHEbar/bertprep/bertprep"
	"github.com/ZanzyTHEbar/bertprep/bertprep/dataset"
	"github.com/ZanzyTHEbar/bertprep/bertprep/device"
	"github.com/ZanzyTHEbar/bertprep/bertprep/inference"
	"github.com/ZanzyTHEbar/bertprep/bertprep/loader"
	"github.com/ZanzyTHEbar/bertprep/bertprep/store"

	"github.com/spf13/cobra"
)

func newPredictCmd() *cobra.Command {
	var split string

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Tag a stored split with an exported token-classification model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if cfg.Preprocess.LabelMapPath == "" {
				return fmt.Errorf("preprocess.labelMapPath is required to name predicted labels")
			}
			labelMap, err := dataset.LoadLabelMap(cfg.Preprocess.LabelMapPath)
			if err != nil {
				return err
			}
			names, err := dataset.LabelNames(labelMap)
			if err != nil {
				return err
			}

			dev, n, err := selectDevice(cfg)
			if err != nil {
				return err
			}
			sess, err := inference.NewSession(cfg.Inference.ModelPath, dev)
			if err != nil {
				return err
			}
			defer sess.Close()
			module := device.Parallelize(sess, n)

			fs, err := store.Open(cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer fs.Close()
			feats, err := fs.LoadNER(cmd.Context(), split)
			if err != nil {
				return err
			}

			l, err := newLoader(feats, loader.Options{
				SampleMethod: loader.SampleSequential,
				BatchSize:    cfg.Loader.BatchSize,
			})
			if err != nil {
				return err
			}

			logger := internal.GetLogger()
			out := cmd.OutOrStdout()
			for _, b := range l.Batches() {
				logits, err := module.Forward(cmd.Context(), b)
				if err != nil {
					return err
				}
				masks := make([][]float32, b.Size())
				trailing := make([][]bool, b.Size())
				for i, row := range b.Indices {
					masks[i] = feats.InputMask[row]
					trailing[i] = feats.TrailingTokenMask[row]
				}
				words, err := inference.DecodeWordLabels(logits, masks, trailing, names)
				if err != nil {
					return err
				}
				for i, row := range b.Indices {
					fmt.Fprintf(out, "%d\t%s\n", row, strings.Join(words[i], " "))
				}
			}
			logger.Info().Str("split", split).Str("device", dev.String()).Int("devices", n).Msg("prediction finished")
			return nil
		},
	}

	cmd.Flags().StringVar(&split, "split", "train", "Stored split to tag")

	return cmd
}
