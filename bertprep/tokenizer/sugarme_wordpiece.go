package tokenizer

import (
	"fmt"
	"strings"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/processor"
)

// SugarWordPiece wraps sugarme/tokenizer WordPiece (BERT-style)
type SugarWordPiece struct {
	t     *tk.Tokenizer
	model wordpiece.WordPiece
}

// NewSugarWordPiece loads vocab.txt and builds a BERT WordPiece tokenizer
func NewSugarWordPiece(vocabPath string, lowercase bool) (*SugarWordPiece, error) {
	wp, err := wordpiece.NewWordPieceFromFile(vocabPath, UnkToken)
	if err != nil {
		return nil, fmt.Errorf("load wordpiece vocab %s: %w", vocabPath, err)
	}

	t := tk.NewTokenizer(wp)
	// accents are stripped together with lowercasing, as in the uncased checkpoints
	t.WithNormalizer(normalizer.NewBertNormalizer(true, true, lowercase, lowercase))
	t.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	clsID, ok := wp.TokenToId(ClsToken)
	if !ok {
		return nil, fmt.Errorf("%w: %s missing from %s", ErrUnknownToken, ClsToken, vocabPath)
	}
	sepID, ok := wp.TokenToId(SepToken)
	if !ok {
		return nil, fmt.Errorf("%w: %s missing from %s", ErrUnknownToken, SepToken, vocabPath)
	}
	t.WithPostProcessor(processor.NewBertProcessing(processor.PostToken{Value: SepToken, Id: sepID}, processor.PostToken{Value: ClsToken, Id: clsID}))

	return &SugarWordPiece{t: t, model: wp}, nil
}

// Tokenize returns the normalized, pre-tokenized and WordPiece-split tokens of text
// without special tokens.
func (s *SugarWordPiece) Tokenize(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}
	enc, err := s.t.Encode(tk.NewSingleEncodeInput(tk.NewInputSequence(text)), false)
	if err != nil {
		return nil, err
	}
	return enc.GetTokens(), nil
}

// WordPiece runs only the WordPiece model over a single word.
func (s *SugarWordPiece) WordPiece(word string) ([]string, error) {
	toks, err := s.model.Tokenize(word)
	if err != nil {
		return nil, fmt.Errorf("wordpiece %q: %w", word, err)
	}
	pieces := make([]string, len(toks))
	for i, t := range toks {
		pieces[i] = t.Value
	}
	return pieces, nil
}

func (s *SugarWordPiece) ConvertTokensToIDs(tokens []string) ([]int, error) {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		id, ok := s.model.TokenToId(tok)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownToken, tok)
		}
		ids[i] = id
	}
	return ids, nil
}
