// Package dataset reads token-tagged corpora and builds the label maps used
// by NER preprocessing.
package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"
	"strings"

	internal "github.com/ZanzyTHEbar/bertprep/bertprep"

	roaring "github.com/RoaringBitmap/roaring"
)

var (
	ErrMalformedLine = errors.New("malformed CoNLL line")
	ErrInvalidRatio  = errors.New("test ratio must be in [0, 1]")
	ErrLabelIDs      = errors.New("label ids must be unique and contiguous from 0")
)

const docStart = "-DOCSTART-"

// ReadCoNLL reads whitespace separated "word ... tag" columns. Sentences are
// separated by blank lines; the first column is the word and the last is the
// tag. Returned texts join the words of a sentence with single spaces.
func ReadCoNLL(r io.Reader) ([]string, [][]string, error) {
	var (
		texts []string
		tags  [][]string
		words []string
		cur   []string
	)
	flush := func() {
		if len(words) == 0 {
			return
		}
		texts = append(texts, strings.Join(words, " "))
		tags = append(tags, cur)
		words, cur = nil, nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			flush()
			continue
		}
		fields := strings.Fields(line)
		if fields[0] == docStart {
			flush()
			continue
		}
		if len(fields) < 2 {
			return nil, nil, fmt.Errorf("%w: line %d: %q", ErrMalformedLine, lineNo, line)
		}
		words = append(words, fields[0])
		cur = append(cur, fields[len(fields)-1])
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read conll: %w", err)
	}
	flush()
	return texts, tags, nil
}

// ReadCoNLLFile is ReadCoNLL over a file on disk.
func ReadCoNLLFile(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ReadCoNLL(f)
}

// BuildLabelMap assigns ids to the pad tag first, then every observed tag in
// sorted order, then the trailing-piece tag.
func BuildLabelMap(tags [][]string, trailing string) map[string]int {
	if trailing == "" {
		trailing = internal.DefaultTrailingPieceTag
	}
	seen := map[string]struct{}{}
	for _, seq := range tags {
		for _, t := range seq {
			seen[t] = struct{}{}
		}
	}
	delete(seen, internal.DefaultPadTag)
	delete(seen, trailing)

	observed := make([]string, 0, len(seen))
	for t := range seen {
		observed = append(observed, t)
	}
	slices.Sort(observed)

	m := map[string]int{internal.DefaultPadTag: 0}
	for _, t := range observed {
		m[t] = len(m)
	}
	m[trailing] = len(m)
	return m
}

// LoadLabelMap reads a JSON object of tag to id.
func LoadLabelMap(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read label map: %w", err)
	}
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse label map %s: %w", path, err)
	}
	return m, nil
}

// SaveLabelMap writes m as indented JSON.
func SaveLabelMap(path string, m map[string]int) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LabelNames inverts m into an id-indexed slice. The ids of m must cover
// [0, len(m)) exactly once.
func LabelNames(m map[string]int) ([]string, error) {
	names := make([]string, len(m))
	filled := make([]bool, len(m))
	for tag, id := range m {
		if id < 0 || id >= len(names) {
			return nil, fmt.Errorf("%w: %q has id %d", ErrLabelIDs, tag, id)
		}
		if filled[id] {
			return nil, fmt.Errorf("%w: id %d is used by %q and %q", ErrLabelIDs, id, names[id], tag)
		}
		names[id] = tag
		filled[id] = true
	}
	return names, nil
}

// TrainTestSplit partitions rows [0, n) into disjoint train and test sets.
// The test set holds round(n*ratio) rows chosen by a seeded shuffle.
func TrainTestSplit(n int, ratio float64, seed uint64) (*roaring.Bitmap, *roaring.Bitmap, error) {
	if ratio < 0 || ratio > 1 {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidRatio, ratio)
	}
	perm := rand.New(rand.NewPCG(seed, 0)).Perm(n)
	cut := int(float64(n)*ratio + 0.5)

	train, test := roaring.New(), roaring.New()
	for i, row := range perm {
		if i < cut {
			test.Add(uint32(row))
		} else {
			train.Add(uint32(row))
		}
	}
	return train, test, nil
}
