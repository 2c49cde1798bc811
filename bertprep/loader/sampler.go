package loader

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	roaring "github.com/RoaringBitmap/roaring"
)

// Sampling strategies accepted by NewSampler.
const (
	SampleRandom      = "random"
	SampleSequential  = "sequential"
	SampleDistributed = "distributed"
)

var (
	ErrInvalidSamplingStrategy = errors.New("invalid sample_method value, accepted values are: random, sequential, and distributed")
	ErrInvalidRank             = errors.New("rank must be in [0, num replicas)")
)

// Sampler yields the order in which dataset rows are visited for one epoch.
type Sampler interface {
	Indices(epoch int) []int
	// Len is the number of indices per epoch.
	Len() int
}

// SamplerOptions carries the knobs the individual strategies need.
type SamplerOptions struct {
	// Seed fixes the shuffle order. Zero draws a fresh seed for random and
	// subset samplers; distributed replicas share seed 0 so their orders agree.
	Seed uint64
	// NumReplicas and Rank default to WORLD_SIZE and RANK, else 1 and 0.
	NumReplicas int
	Rank        int
}

// NewSampler builds the named sampling strategy over n rows.
func NewSampler(method string, n int, opts SamplerOptions) (Sampler, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case SampleRandom:
		return &RandomSampler{n: n, seed: seedOrRandom(opts.Seed)}, nil
	case SampleSequential:
		return SequentialSampler{n: n}, nil
	case SampleDistributed:
		replicas, rank := opts.NumReplicas, opts.Rank
		if replicas == 0 {
			replicas, rank = worldFromEnv()
		}
		return NewDistributedSampler(n, replicas, rank, opts.Seed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSamplingStrategy, method)
	}
}

// ValidSampleMethod reports whether method names a known strategy.
func ValidSampleMethod(method string) bool {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case SampleRandom, SampleSequential, SampleDistributed:
		return true
	}
	return false
}

func worldFromEnv() (replicas, rank int) {
	replicas, rank = 1, 0
	if v, err := strconv.Atoi(os.Getenv("WORLD_SIZE")); err == nil && v > 0 {
		replicas = v
	}
	if v, err := strconv.Atoi(os.Getenv("RANK")); err == nil && v >= 0 {
		rank = v
	}
	return replicas, rank
}

// seedOrRandom replaces an unset seed with a fresh one, so unseeded samplers
// shuffle differently on every run.
func seedOrRandom(seed uint64) uint64 {
	if seed == 0 {
		return rand.Uint64()
	}
	return seed
}

func permutation(n int, seed, epoch uint64) []int {
	return rand.New(rand.NewPCG(seed, epoch)).Perm(n)
}

// SequentialSampler visits rows in order.
type SequentialSampler struct{ n int }

func (s SequentialSampler) Len() int { return s.n }

func (s SequentialSampler) Indices(int) []int {
	idx := make([]int, s.n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// RandomSampler visits every row once per epoch in a seeded random order.
type RandomSampler struct {
	n    int
	seed uint64
}

func (s *RandomSampler) Len() int { return s.n }

func (s *RandomSampler) Indices(epoch int) []int {
	return permutation(s.n, s.seed, uint64(epoch))
}

// DistributedSampler restricts each replica to a disjoint, equally sized
// slice of a shared shuffled order. The order is padded by wrapping around so
// every replica sees the same number of rows.
type DistributedSampler struct {
	n        int
	replicas int
	rank     int
	seed     uint64
	Shuffle  bool
}

func NewDistributedSampler(n, replicas, rank int, seed uint64) (*DistributedSampler, error) {
	if replicas < 1 || rank < 0 || rank >= replicas {
		return nil, fmt.Errorf("%w: rank %d, replicas %d", ErrInvalidRank, rank, replicas)
	}
	return &DistributedSampler{n: n, replicas: replicas, rank: rank, seed: seed, Shuffle: true}, nil
}

func (s *DistributedSampler) Len() int {
	return (s.n + s.replicas - 1) / s.replicas
}

func (s *DistributedSampler) Indices(epoch int) []int {
	if s.n == 0 {
		return []int{}
	}
	var order []int
	if s.Shuffle {
		order = permutation(s.n, s.seed, uint64(epoch))
	} else {
		order = SequentialSampler{n: s.n}.Indices(epoch)
	}
	total := s.Len() * s.replicas
	for i := 0; len(order) < total; i++ {
		order = append(order, order[i%s.n])
	}
	out := make([]int, 0, s.Len())
	for i := s.rank; i < total; i += s.replicas {
		out = append(out, order[i])
	}
	return out
}

// SubsetRandomSampler visits only the rows in a bitmap, shuffled per epoch.
type SubsetRandomSampler struct {
	rows *roaring.Bitmap
	seed uint64
}

func NewSubsetRandomSampler(rows *roaring.Bitmap, seed uint64) *SubsetRandomSampler {
	return &SubsetRandomSampler{rows: rows, seed: seedOrRandom(seed)}
}

func (s *SubsetRandomSampler) Len() int { return int(s.rows.GetCardinality()) }

func (s *SubsetRandomSampler) Indices(epoch int) []int {
	rows := s.rows.ToArray()
	perm := permutation(len(rows), s.seed, uint64(epoch))
	out := make([]int, len(rows))
	for i, p := range perm {
		out[i] = int(rows[p])
	}
	return out
}
