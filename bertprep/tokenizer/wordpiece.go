package tokenizer

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/armon/go-radix"
)

// RadixWordPiece is a pure-Go BERT tokenizer. The vocabulary lives in a radix
// tree so the greedy longest-match-first split is a LongestPrefix walk.
type RadixWordPiece struct {
	vocab     *radix.Tree
	size      int
	lowercase bool
}

// NewRadixWordPiece reads a vocab.txt stream where the 0-based line number is the token id.
func NewRadixWordPiece(r io.Reader, lowercase bool) (*RadixWordPiece, error) {
	tree := radix.New()
	var idx int
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		tok := strings.TrimRight(scanner.Text(), "\r")
		if tok != "" {
			tree.Insert(tok, idx)
		}
		idx++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}
	if _, ok := tree.Get(UnkToken); !ok {
		return nil, fmt.Errorf("%w: %s missing from vocab", ErrUnknownToken, UnkToken)
	}
	return &RadixWordPiece{vocab: tree, size: tree.Len(), lowercase: lowercase}, nil
}

// Size returns the number of vocabulary entries.
func (w *RadixWordPiece) Size() int { return w.size }

func (w *RadixWordPiece) Tokenize(text string) ([]string, error) {
	var out []string
	for _, word := range basicTokenize(text, w.lowercase) {
		pieces, err := w.WordPiece(word)
		if err != nil {
			return nil, err
		}
		out = append(out, pieces...)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// WordPiece splits word greedily into the longest vocabulary entries, prefixing
// every piece after the first with "##". A word with any unmatched remainder
// becomes a single [UNK].
func (w *RadixWordPiece) WordPiece(word string) ([]string, error) {
	if word == "" {
		return []string{}, nil
	}
	if len([]rune(word)) > maxInputCharsPerWord {
		return []string{UnkToken}, nil
	}

	pieces := make([]string, 0, 4)
	rest := word
	prefix := ""
	for rest != "" {
		match, _, ok := w.vocab.LongestPrefix(prefix + rest)
		if !ok || len(match) <= len(prefix) {
			return []string{UnkToken}, nil
		}
		pieces = append(pieces, match)
		rest = rest[len(match)-len(prefix):]
		prefix = continuingSubwordPrefix
	}
	return pieces, nil
}

func (w *RadixWordPiece) ConvertTokensToIDs(tokens []string) ([]int, error) {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		v, ok := w.vocab.Get(tok)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownToken, tok)
		}
		ids[i] = v.(int)
	}
	return ids, nil
}
