package tokenizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVocab = "testdata/vocab.txt"

func newRadix(t *testing.T, lowercase bool) *RadixWordPiece {
	t.Helper()
	f, err := os.Open(testVocab)
	require.NoError(t, err)
	defer f.Close()
	w, err := NewRadixWordPiece(f, lowercase)
	require.NoError(t, err)
	return w
}

func TestLanguage(t *testing.T) {
	t.Run("every variant maps to a pretrained id", func(t *testing.T) {
		want := map[Language]string{
			English:           "bert-base-uncased",
			EnglishCased:      "bert-base-cased",
			EnglishLarge:      "bert-large-uncased",
			EnglishLargeCased: "bert-large-cased",
			Chinese:           "bert-base-chinese",
			Multilingual:      "bert-base-multilingual-cased",
		}
		require.Len(t, Languages(), len(want))
		for _, l := range Languages() {
			assert.Equal(t, want[l], l.PretrainedID(), l.String())
		}
	})

	t.Run("parse by name or id", func(t *testing.T) {
		l, err := ParseLanguage("englishcased")
		require.NoError(t, err)
		assert.Equal(t, EnglishCased, l)

		l, err = ParseLanguage("bert-base-chinese")
		require.NoError(t, err)
		assert.Equal(t, Chinese, l)

		_, err = ParseLanguage("klingon")
		assert.ErrorIs(t, err, ErrUnknownLanguage)
	})

	t.Run("casing", func(t *testing.T) {
		assert.True(t, English.Uncased())
		assert.True(t, EnglishLarge.Uncased())
		assert.False(t, EnglishCased.Uncased())
		assert.False(t, Multilingual.Uncased())
		assert.False(t, Language(99).Uncased())
		assert.Equal(t, "", Language(99).PretrainedID())
	})
}

func TestRadixWordPiece_WordPiece(t *testing.T) {
	w := newRadix(t, true)
	assert.Equal(t, 24, w.Size())

	tests := []struct {
		word string
		want []string
	}{
		{"playing", []string{"play", "##ing"}},
		{"football", []string{"football"}},
		{"unaffable", []string{"un", "##aff", "##able"}},
		{"running", []string{"run", "##ning"}},
		{"xyz", []string{UnkToken}},
		{"playx", []string{UnkToken}},
		{"", []string{}},
		{strings.Repeat("a", maxInputCharsPerWord+1), []string{UnkToken}},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			got, err := w.WordPiece(tt.word)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRadixWordPiece_Tokenize(t *testing.T) {
	t.Run("lowercase strips accents and splits punctuation", func(t *testing.T) {
		w := newRadix(t, true)
		got, err := w.Tokenize("Hello, WORLD! Café\tplaying.")
		require.NoError(t, err)
		assert.Equal(t, []string{"hello", ",", "world", "!", "cafe", "play", "##ing", "."}, got)
	})

	t.Run("cased keeps capitals", func(t *testing.T) {
		w := newRadix(t, false)
		got, err := w.Tokenize("Hello the")
		require.NoError(t, err)
		assert.Equal(t, []string{UnkToken, "the"}, got)
	})

	t.Run("chinese characters are isolated", func(t *testing.T) {
		w := newRadix(t, true)
		got, err := w.Tokenize("中国")
		require.NoError(t, err)
		assert.Equal(t, []string{"中", "国"}, got)
	})

	t.Run("empty text", func(t *testing.T) {
		w := newRadix(t, true)
		got, err := w.Tokenize("  \n ")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestRadixWordPiece_ConvertTokensToIDs(t *testing.T) {
	w := newRadix(t, true)

	ids, err := w.ConvertTokensToIDs([]string{ClsToken, "play", "##ing", SepToken, PadToken})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 6, 7, 3, 0}, ids)

	_, err = w.ConvertTokensToIDs([]string{"nope"})
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestNewRadixWordPiece_RequiresUnk(t *testing.T) {
	_, err := NewRadixWordPiece(strings.NewReader("[PAD]\nhello\n"), true)
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestSugarWordPiece(t *testing.T) {
	s, err := NewSugarWordPiece(testVocab, true)
	require.NoError(t, err)

	pieces, err := s.WordPiece("playing")
	require.NoError(t, err)
	assert.Equal(t, []string{"play", "##ing"}, pieces)

	ids, err := s.ConvertTokensToIDs([]string{ClsToken, "play", "##ing", SepToken})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 6, 7, 3}, ids)

	toks, err := s.Tokenize("Hello World")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "world"}, toks)

	_, err = s.ConvertTokensToIDs([]string{"nope"})
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestLoad(t *testing.T) {
	t.Run("resolves vocab from cache dir", func(t *testing.T) {
		cache := t.TempDir()
		dir := filepath.Join(cache, English.PretrainedID())
		require.NoError(t, os.MkdirAll(dir, 0o755))
		data, err := os.ReadFile(testVocab)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "vocab.txt"), data, 0o644))

		tok, err := Load(Options{Language: English, CacheDir: cache, Backend: "radix"})
		require.NoError(t, err)
		got, err := tok.Tokenize("PLAYING")
		require.NoError(t, err)
		assert.Equal(t, []string{"play", "##ing"}, got)
	})

	t.Run("explicit lowercase override", func(t *testing.T) {
		off := false
		tok, err := Load(Options{Language: English, VocabPath: testVocab, Lowercase: &off, Backend: "radix"})
		require.NoError(t, err)
		got, err := tok.Tokenize("PLAYING")
		require.NoError(t, err)
		assert.Equal(t, []string{UnkToken}, got)
	})

	t.Run("vocab directory", func(t *testing.T) {
		opts := Options{VocabPath: "testdata"}
		assert.Equal(t, filepath.Join("testdata", "vocab.txt"), opts.VocabFile())
	})

	t.Run("missing vocab", func(t *testing.T) {
		_, err := Load(Options{Language: Chinese, CacheDir: t.TempDir()})
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := Load(Options{VocabPath: testVocab, Backend: "bpe"})
		assert.ErrorIs(t, err, ErrUnsupported)
	})
}
