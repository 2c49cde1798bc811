package preprocess

import (
	"fmt"
	"log/slog"

	"github.com/ZanzyTHEbar/bertprep/bertprep/tokenizer"
)

// ClassificationFeatures holds one padded id row and attention mask row per input sequence.
type ClassificationFeatures struct {
	InputIDs  [][]int
	InputMask [][]int
}

// PreprocessClassification frames each token sequence with [CLS]/[SEP],
// truncates the body to maxLen-2 tokens, maps tokens to ids and right-pads
// with 0. The mask is 1 wherever the id is nonzero.
func (p *Preprocessor) PreprocessClassification(tokens [][]string, maxLen int) (*ClassificationFeatures, error) {
	maxLen = clampMaxLen(maxLen, slog.LevelInfo)
	if maxLen < 2 {
		return nil, fmt.Errorf("%w: %d leaves no room for %s and %s", ErrInvalidMaxLength, maxLen, tokenizer.ClsToken, tokenizer.SepToken)
	}

	feats := &ClassificationFeatures{
		InputIDs:  make([][]int, len(tokens)),
		InputMask: make([][]int, len(tokens)),
	}
	for i, seq := range tokens {
		body := seq
		if len(body) > maxLen-2 {
			body = body[:maxLen-2]
		}
		framed := make([]string, 0, len(body)+2)
		framed = append(framed, tokenizer.ClsToken)
		framed = append(framed, body...)
		framed = append(framed, tokenizer.SepToken)

		ids, err := p.tok.ConvertTokensToIDs(framed)
		if err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		row := make([]int, maxLen)
		copy(row, ids)
		mask := make([]int, maxLen)
		for j, id := range row {
			mask[j] = min(1, id)
		}
		feats.InputIDs[i] = row
		feats.InputMask[i] = mask
	}
	return feats, nil
}
