package main

import (
	"fmt"

	internal "github.com/ZanzyTHEbar/bertprep/bertprep"
	"github.com/ZanzyTHEbar/bertprep/bertprep/loader"
	"github.com/ZanzyTHEbar/bertprep/bertprep/preprocess"
	"github.com/ZanzyTHEbar/bertprep/bertprep/store"

	"github.com/spf13/cobra"
)

func newBatchesCmd() *cobra.Command {
	var (
		split  string
		method string
		epoch  int
	)

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "Report the batches a sampling strategy yields for a stored split",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if method == "" {
				method = cfg.Loader.SampleMethod
			}

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
				SampleMethod: method,
				BatchSize:    cfg.Loader.BatchSize,
				Seed:         cfg.Loader.Seed,
				DropLast:     cfg.Loader.DropLast,
			})
			if err != nil {
				return err
			}
			l.SetEpoch(epoch)

			out := cmd.OutOrStdout()
			for i, b := range l.Batches() {
				fmt.Fprintf(out, "batch %d\trows=%d\tseq_len=%d\tlabels=%t\n", i, b.Size(), b.SeqLen(), b.LabelIDs != nil)
			}
			logger := internal.GetLogger()
			logger.Debug().Str("split", split).Str("method", method).Int("batches", l.Len()).Msg("batches listed")
			return nil
		},
	}

	cmd.Flags().StringVar(&split, "split", "train", "Stored split to batch")
	cmd.Flags().StringVar(&method, "sample-method", "", "random, sequential or distributed (defaults to config)")
	cmd.Flags().IntVar(&epoch, "epoch", 0, "Epoch used to seed shuffling")

	return cmd
}

func newLoader(feats *preprocess.NERFeatures, opts loader.Options) (*loader.DataLoader, error) {
	ds, err := loader.NewTensorDataset(feats.InputIDs, feats.InputMask, feats.LabelIDs)
	if err != nil {
		return nil, err
	}
	return loader.NewDataLoader(ds, opts)
}
