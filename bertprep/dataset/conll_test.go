package dataset

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCoNLLFile(t *testing.T) {
	texts, tags, err := ReadCoNLLFile(filepath.Join("testdata", "sample.conll"))
	require.NoError(t, err)
	assert.Equal(t, []string{"EU rejects German call", "Peter Blackburn"}, texts)
	assert.Equal(t, [][]string{{"B-ORG", "O", "B-MISC", "O"}, {"B-PER", "I-PER"}}, tags)
}

func TestReadCoNLL(t *testing.T) {
	t.Run("two column input without trailing blank", func(t *testing.T) {
		texts, tags, err := ReadCoNLL(strings.NewReader("hello O\nworld B-LOC"))
		require.NoError(t, err)
		assert.Equal(t, []string{"hello world"}, texts)
		assert.Equal(t, [][]string{{"O", "B-LOC"}}, tags)
	})

	t.Run("missing tag column", func(t *testing.T) {
		_, _, err := ReadCoNLL(strings.NewReader("hello O\nworld\n"))
		assert.ErrorIs(t, err, ErrMalformedLine)
	})

	t.Run("empty input", func(t *testing.T) {
		texts, tags, err := ReadCoNLL(strings.NewReader("\n\n"))
		require.NoError(t, err)
		assert.Empty(t, texts)
		assert.Empty(t, tags)
	})
}

func TestBuildLabelMap(t *testing.T) {
	m := BuildLabelMap([][]string{{"VERB", "O", "NOUN"}, {"NOUN"}}, "")
	assert.Equal(t, map[string]int{"O": 0, "NOUN": 1, "VERB": 2, "X": 3}, m)
	names, err := LabelNames(m)
	require.NoError(t, err)
	assert.Equal(t, []string{"O", "NOUN", "VERB", "X"}, names)

	again := BuildLabelMap([][]string{{"NOUN"}, {"VERB", "O"}}, "X")
	assert.Equal(t, m, again)
}

func TestLabelNames_RejectsGaps(t *testing.T) {
	_, err := LabelNames(map[string]int{"O": 0, "VERB": 2})
	assert.ErrorIs(t, err, ErrLabelIDs)

	_, err = LabelNames(map[string]int{"O": 0, "VERB": 0})
	assert.ErrorIs(t, err, ErrLabelIDs)

	_, err = LabelNames(map[string]int{"O": -1})
	assert.ErrorIs(t, err, ErrLabelIDs)

	names, err := LabelNames(map[string]int{})
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLabelMapFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.json")
	want := map[string]int{"O": 0, "VERB": 1, "NOUN": 2, "X": 3}
	require.NoError(t, SaveLabelMap(path, want))

	got, err := LoadLabelMap(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = LoadLabelMap(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestTrainTestSplit(t *testing.T) {
	train, test, err := TrainTestSplit(10, 0.3, 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), train.GetCardinality())
	assert.Equal(t, uint64(3), test.GetCardinality())
	assert.False(t, train.Intersects(test))

	train2, test2, err := TrainTestSplit(10, 0.3, 42)
	require.NoError(t, err)
	assert.True(t, train.Equals(train2))
	assert.True(t, test.Equals(test2))

	_, _, err = TrainTestSplit(10, 1.5, 0)
	assert.ErrorIs(t, err, ErrInvalidRatio)
}
