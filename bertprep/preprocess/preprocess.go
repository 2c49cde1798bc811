// Package preprocess turns raw text into the fixed-length id, mask and label
// sequences a pretrained BERT model consumes.
package preprocess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	internal "github.com/ZanzyTHEbar/bertprep/bertprep"
	"github.com/ZanzyTHEbar/bertprep/bertprep/tokenizer"
)

var (
	ErrInvalidMaxLength   = errors.New("invalid maximum sequence length")
	ErrLabelCountMismatch = errors.New("number of label sequences does not match number of texts")
	ErrKeyLookup          = errors.New("label missing from label map")
)

// KeyLookupError reports a tag that has no entry in the caller's label map.
type KeyLookupError struct {
	Tag string
}

func (e *KeyLookupError) Error() string {
	return fmt.Sprintf("%s: %q", ErrKeyLookup.Error(), e.Tag)
}

func (e *KeyLookupError) Unwrap() error { return ErrKeyLookup }

// Preprocessor adapts a Tokenizer into model-ready features.
type Preprocessor struct {
	tok tokenizer.Tokenizer
}

func New(tok tokenizer.Tokenizer) *Preprocessor {
	return &Preprocessor{tok: tok}
}

// Tokenize runs full tokenization over every text.
func (p *Preprocessor) Tokenize(texts []string) ([][]string, error) {
	out := make([][]string, len(texts))
	for i, t := range texts {
		toks, err := p.tok.Tokenize(t)
		if err != nil {
			return nil, fmt.Errorf("tokenize text %d: %w", i, err)
		}
		out[i] = toks
	}
	return out, nil
}

// clampMaxLen caps n at the BERT ceiling, logging at level when it does.
func clampMaxLen(n int, level slog.Level) int {
	if n > internal.BERTMaxLen {
		slog.Log(context.Background(), level, "setting max_len to max allowed tokens", "requested", n, "max", internal.BERTMaxLen)
		return internal.BERTMaxLen
	}
	return n
}
