package main

import (
	"errors"
	"fmt"
	"os"

	internal "github.com/ZanzyTHEbar/bertprep/bertprep"
	"github.com/ZanzyTHEbar/bertprep/bertprep/dataset"
	"github.com/ZanzyTHEbar/bertprep/bertprep/preprocess"
	"github.com/ZanzyTHEbar/bertprep/bertprep/store"

	roaring "github.com/RoaringBitmap/roaring"
	"github.com/spf13/cobra"
)

func newEncodeCmd() *cobra.Command {
	var (
		input     string
		split     string
		testRatio float64
		unlabeled bool
	)

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a CoNLL file into NER features and store them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			logger := internal.GetLogger()

			texts, tags, err := dataset.ReadCoNLLFile(input)
			if err != nil {
				return err
			}
			pre, err := newPreprocessor(cfg)
			if err != nil {
				return err
			}

			opts := preprocess.NEROptions{
				MaxSeqLength:     cfg.Preprocess.MaxSeqLength,
				TrailingPieceTag: cfg.Preprocess.TrailingPieceTag,
				Workers:          cfg.Preprocess.Workers,
			}
			if !unlabeled {
				labelMap, err := resolveLabelMap(cfg.Preprocess.LabelMapPath, tags, opts.TrailingPieceTag)
				if err != nil {
					return err
				}
				opts.Labels = tags
				opts.LabelMap = labelMap
			}

			fs, err := store.Open(cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer fs.Close()

			parts := []namedRows{{split, roaring.Flip(roaring.New(), 0, uint64(len(texts)))}}
			if testRatio > 0 {
				train, test, err := dataset.TrainTestSplit(len(texts), testRatio, cfg.Loader.Seed)
				if err != nil {
					return err
				}
				parts = []namedRows{{split, train}, {split + "-test", test}}
			}

			for _, part := range parts {
				name, rows := part.name, part.rows
				subTexts, subOpts := subset(texts, opts, rows)
				feats, err := pre.PreprocessNER(cmd.Context(), subTexts, subOpts)
				if err != nil {
					return err
				}
				if _, err := fs.SaveNER(cmd.Context(), name, subTexts, feats); err != nil {
					return err
				}
				logger.Info().Str("split", name).Int("rows", len(subTexts)).Bool("labeled", feats.HasLabels).Msg("encoded split")
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", name, len(subTexts))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "CoNLL formatted input file")
	cmd.Flags().StringVar(&split, "split", "train", "Split name to store the features under")
	cmd.Flags().Float64Var(&testRatio, "test-ratio", 0, "Fraction of sentences held out as <split>-test")
	cmd.Flags().BoolVar(&unlabeled, "unlabeled", false, "Ignore the tag column")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// resolveLabelMap loads the configured map, or builds one from tags and writes
// it to path when path does not exist yet. An existing map that cannot be read
// is an error and is never overwritten.
func resolveLabelMap(path string, tags [][]string, trailing string) (map[string]int, error) {
	if path != "" {
		m, err := dataset.LoadLabelMap(path)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	m := dataset.BuildLabelMap(tags, trailing)
	if path != "" {
		if err := dataset.SaveLabelMap(path, m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

type namedRows struct {
	name string
	rows *roaring.Bitmap
}

func subset(texts []string, opts preprocess.NEROptions, rows *roaring.Bitmap) ([]string, preprocess.NEROptions) {
	out := make([]string, 0, rows.GetCardinality())
	var labels [][]string
	if opts.Labels != nil {
		labels = make([][]string, 0, rows.GetCardinality())
	}
	it := rows.Iterator()
	for it.HasNext() {
		i := int(it.Next())
		out = append(out, texts[i])
		if labels != nil {
			labels = append(labels, opts.Labels[i])
		}
	}
	opts.Labels = labels
	return out, opts
}
