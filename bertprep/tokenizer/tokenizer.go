package tokenizer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Special tokens shared by every BERT vocabulary.
const (
	ClsToken = "[CLS]"
	SepToken = "[SEP]"
	PadToken = "[PAD]"
	UnkToken = "[UNK]"

	continuingSubwordPrefix = "##"
	maxInputCharsPerWord    = 100
)

// Tokenizer splits text into vocabulary pieces and maps pieces to ids.
type Tokenizer interface {
	// Tokenize runs basic and WordPiece tokenization over a full text.
	Tokenize(text string) ([]string, error)
	// WordPiece splits one whitespace-delimited word into sub-word pieces.
	WordPiece(word string) ([]string, error)
	ConvertTokensToIDs(tokens []string) ([]int, error)
}

var (
	// ErrUnsupported indicates the tokenizer could not be initialized
	ErrUnsupported = errors.New("unsupported tokenizer configuration")
	// ErrUnknownToken is returned when a token has no vocabulary id.
	ErrUnknownToken = errors.New("token not in vocabulary")
)

// Options selects a vocabulary and backend.
type Options struct {
	Language Language
	// Lowercase overrides Language.Uncased when non-nil.
	Lowercase *bool
	CacheDir  string
	VocabPath string
	// Backend is "sugarme" (default) or "radix".
	Backend string
}

// VocabFile resolves the vocab.txt to load. An explicit VocabPath wins (file or
// directory containing vocab.txt); otherwise <CacheDir>/<pretrained id>/vocab.txt.
func (o Options) VocabFile() string {
	if o.VocabPath != "" {
		if fi, err := os.Stat(o.VocabPath); err == nil && fi.IsDir() {
			return filepath.Join(o.VocabPath, "vocab.txt")
		}
		return o.VocabPath
	}
	return filepath.Join(o.CacheDir, o.Language.PretrainedID(), "vocab.txt")
}

func (o Options) lowercase() bool {
	if o.Lowercase != nil {
		return *o.Lowercase
	}
	return o.Language.Uncased()
}

// Load builds the configured tokenizer backend.
func Load(opts Options) (Tokenizer, error) {
	vocabFile := opts.VocabFile()
	if _, err := os.Stat(vocabFile); err != nil {
		return nil, fmt.Errorf("vocabulary for %s: %w", opts.Language, err)
	}
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "sugarme":
		return NewSugarWordPiece(vocabFile, opts.lowercase())
	case "radix":
		f, err := os.Open(vocabFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return NewRadixWordPiece(f, opts.lowercase())
	default:
		return nil, fmt.Errorf("%w: backend %q", ErrUnsupported, opts.Backend)
	}
}
