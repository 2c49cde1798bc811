package preprocess

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	internal "github.com/ZanzyTHEbar/bertprep/bertprep"

	"github.com/sourcegraph/conc/pool"
)

// NEROptions configures PreprocessNER.
type NEROptions struct {
	// MaxSeqLength is the fixed output length; zero means the BERT ceiling.
	MaxSeqLength int
	// Labels holds one tag per word for every text. Nil means unlabeled input.
	Labels [][]string
	// LabelMap converts tags to integer ids. A nil or empty map leaves tags as strings.
	LabelMap map[string]int
	// TrailingPieceTag marks every WordPiece after the first of a word. Defaults to "X".
	TrailingPieceTag string
	// Workers > 1 encodes lines concurrently.
	Workers int
}

// NERFeatures holds one fixed-length row per input text.
type NERFeatures struct {
	InputIDs  [][]int
	InputMask [][]float32
	// TrailingTokenMask is true wherever the tag is not the trailing-piece tag.
	// Padding positions carry the pad tag and are therefore true as well.
	TrailingTokenMask [][]bool
	// Tags and LabelIDs are populated only when HasLabels is set; LabelIDs
	// additionally requires a label map.
	Tags      [][]string
	LabelIDs  [][]int
	HasLabels bool
}

type encodedLine struct {
	ids     []int
	mask    []float32
	primary []bool
	tags    []string
	labels  []int
}

// PreprocessNER aligns whitespace-split words with their tags at WordPiece
// granularity and pads or truncates every line to MaxSeqLength.
func (p *Preprocessor) PreprocessNER(ctx context.Context, texts []string, opts NEROptions) (*NERFeatures, error) {
	maxLen := opts.MaxSeqLength
	if maxLen == 0 {
		maxLen = internal.BERTMaxLen
	}
	maxLen = clampMaxLen(maxLen, slog.LevelWarn)
	if maxLen < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMaxLength, maxLen)
	}
	trailing := opts.TrailingPieceTag
	if trailing == "" {
		trailing = internal.DefaultTrailingPieceTag
	}
	hasLabels := opts.Labels != nil
	if hasLabels && len(opts.Labels) != len(texts) {
		return nil, fmt.Errorf("%w: %d texts, %d label sequences", ErrLabelCountMismatch, len(texts), len(opts.Labels))
	}

	lines := make([]encodedLine, len(texts))
	encode := func(i int) error {
		var tags []string
		var labelMap map[string]int
		if hasLabels {
			tags = opts.Labels[i]
			labelMap = opts.LabelMap
		} else {
			// placeholder tags so the trailing mask is computed the same way
			tags = placeholderTags(texts[i])
		}
		line, err := p.encodeLine(texts[i], tags, maxLen, trailing, labelMap)
		if err != nil {
			return fmt.Errorf("line %d: %w", i, err)
		}
		lines[i] = line
		return nil
	}

	if opts.Workers > 1 && len(texts) > 1 {
		wp := pool.New().WithMaxGoroutines(opts.Workers).WithContext(ctx).WithCancelOnError()
		for i := range texts {
			wp.Go(func(ctx context.Context) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return encode(i)
			})
		}
		if err := wp.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range texts {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := encode(i); err != nil {
				return nil, err
			}
		}
	}

	feats := &NERFeatures{
		InputIDs:          make([][]int, len(lines)),
		InputMask:         make([][]float32, len(lines)),
		TrailingTokenMask: make([][]bool, len(lines)),
		HasLabels:         hasLabels,
	}
	if hasLabels {
		feats.Tags = make([][]string, len(lines))
		if len(opts.LabelMap) > 0 {
			feats.LabelIDs = make([][]int, len(lines))
		}
	}
	for i, l := range lines {
		feats.InputIDs[i] = l.ids
		feats.InputMask[i] = l.mask
		feats.TrailingTokenMask[i] = l.primary
		if hasLabels {
			feats.Tags[i] = l.tags
			if len(opts.LabelMap) > 0 {
				feats.LabelIDs[i] = l.labels
			}
		}
	}
	return feats, nil
}

func placeholderTags(text string) []string {
	n := len(strings.Fields(text))
	tags := make([]string, n)
	for i := range tags {
		tags[i] = internal.DefaultPadTag
	}
	return tags
}

func (p *Preprocessor) encodeLine(text string, wordTags []string, maxLen int, trailing string, labelMap map[string]int) (encodedLine, error) {
	words := strings.Fields(strings.ToLower(text))
	n := min(len(words), len(wordTags))

	tokens := make([]string, 0, n*2)
	tags := make([]string, 0, n*2)
	for i := 0; i < n; i++ {
		pieces, err := p.tok.WordPiece(words[i])
		if err != nil {
			return encodedLine{}, err
		}
		for j, piece := range pieces {
			tag := wordTags[i]
			if j > 0 {
				tag = trailing
			}
			tokens = append(tokens, piece)
			tags = append(tags, tag)
		}
	}

	if len(tokens) > maxLen {
		tokens = tokens[:maxLen]
		tags = tags[:maxLen]
	}

	ids, err := p.tok.ConvertTokensToIDs(tokens)
	if err != nil {
		return encodedLine{}, err
	}

	line := encodedLine{
		ids:     make([]int, maxLen),
		mask:    make([]float32, maxLen),
		primary: make([]bool, maxLen),
		tags:    make([]string, maxLen),
	}
	copy(line.ids, ids)
	for j := range ids {
		line.mask[j] = 1
	}
	copy(line.tags, tags)
	for j := len(tags); j < maxLen; j++ {
		line.tags[j] = internal.DefaultPadTag
	}
	for j, tag := range line.tags {
		line.primary[j] = tag != trailing
	}

	if len(labelMap) > 0 {
		line.labels = make([]int, maxLen)
		for j, tag := range line.tags {
			id, ok := labelMap[tag]
			if !ok {
				return encodedLine{}, &KeyLookupError{Tag: tag}
			}
			line.labels[j] = id
		}
	}
	return line, nil
}
