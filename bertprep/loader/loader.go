package loader

import (
	"fmt"
	"iter"
	"log/slog"

	internal "github.com/ZanzyTHEbar/bertprep/bertprep"

	"gonum.org/v1/gonum/mat"
)

// Options configures a DataLoader.
type Options struct {
	// SampleMethod is "random" (default), "sequential" or "distributed".
	SampleMethod string
	// BatchSize defaults to 32.
	BatchSize int
	// Seed fixes the shuffle order across runs. Zero gives the random
	// strategy a fresh seed per loader; the order is still stable across
	// iterations of the same epoch.
	Seed        uint64
	NumReplicas int
	Rank        int
	// DropLast skips a trailing batch smaller than BatchSize.
	DropLast bool
	// Sampler overrides SampleMethod when set.
	Sampler Sampler
}

// Batch is a contiguous group of dataset rows in sampling order.
type Batch struct {
	Indices   []int
	InputIDs  *mat.Dense
	InputMask *mat.Dense
	LabelIDs  *mat.Dense
}

// Size returns the number of rows in the batch.
func (b *Batch) Size() int { return len(b.Indices) }

// SeqLen returns the number of columns per row.
func (b *Batch) SeqLen() int {
	_, c := b.InputIDs.Dims()
	return c
}

// Slice returns rows [lo, hi) as a new batch sharing the underlying storage.
func (b *Batch) Slice(lo, hi int) *Batch {
	c := b.SeqLen()
	out := &Batch{
		Indices:   b.Indices[lo:hi],
		InputIDs:  b.InputIDs.Slice(lo, hi, 0, c).(*mat.Dense),
		InputMask: b.InputMask.Slice(lo, hi, 0, c).(*mat.Dense),
	}
	if b.LabelIDs != nil {
		out.LabelIDs = b.LabelIDs.Slice(lo, hi, 0, c).(*mat.Dense)
	}
	return out
}

// Int64s flattens a tensor row-major, the layout ONNX Runtime expects.
func Int64s(m *mat.Dense) []int64 {
	r, c := m.Dims()
	out := make([]int64, 0, r*c)
	for i := 0; i < r; i++ {
		for _, v := range m.RawRowView(i) {
			out = append(out, int64(v))
		}
	}
	return out
}

// DataLoader serves mini-batches of a TensorDataset in sampler order.
type DataLoader struct {
	ds        *TensorDataset
	sampler   Sampler
	batchSize int
	dropLast  bool
	epoch     int
}

// NewDataLoader validates the sampling strategy before touching the dataset.
func NewDataLoader(ds *TensorDataset, opts Options) (*DataLoader, error) {
	method := opts.SampleMethod
	if method == "" {
		method = internal.DefaultSampleMethod
	}
	if opts.Sampler == nil && !ValidSampleMethod(method) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSamplingStrategy, method)
	}
	if ds == nil {
		return nil, ErrEmptyDataset
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = internal.DefaultBatchSize
	}

	sampler := opts.Sampler
	if sampler == nil {
		var err error
		sampler, err = NewSampler(method, ds.Len(), SamplerOptions{Seed: opts.Seed, NumReplicas: opts.NumReplicas, Rank: opts.Rank})
		if err != nil {
			return nil, err
		}
	}

	slog.Debug("Data loader created", "samples", ds.Len(), "sampler", method, "batch_size", batchSize, "labels", ds.HasLabels())
	return &DataLoader{ds: ds, sampler: sampler, batchSize: batchSize, dropLast: opts.DropLast}, nil
}

// SetEpoch selects the shuffle seed used by the next iteration.
func (l *DataLoader) SetEpoch(epoch int) { l.epoch = epoch }

// Len returns the number of batches per epoch.
func (l *DataLoader) Len() int {
	n := l.sampler.Len()
	if l.dropLast {
		return n / l.batchSize
	}
	return (n + l.batchSize - 1) / l.batchSize
}

// Batches iterates over (batch number, batch) pairs for the current epoch.
func (l *DataLoader) Batches() iter.Seq2[int, *Batch] {
	return func(yield func(int, *Batch) bool) {
		indices := l.sampler.Indices(l.epoch)
		for b, lo := 0, 0; lo < len(indices); b, lo = b+1, lo+l.batchSize {
			hi := min(lo+l.batchSize, len(indices))
			if l.dropLast && hi-lo < l.batchSize {
				return
			}
			if !yield(b, l.gather(indices[lo:hi])) {
				return
			}
		}
	}
}

func (l *DataLoader) gather(indices []int) *Batch {
	b := &Batch{
		Indices:   append([]int(nil), indices...),
		InputIDs:  gatherRows(l.ds.InputIDs, indices),
		InputMask: gatherRows(l.ds.InputMask, indices),
	}
	if l.ds.LabelIDs != nil {
		b.LabelIDs = gatherRows(l.ds.LabelIDs, indices)
	}
	return b
}

func gatherRows(src *mat.Dense, indices []int) *mat.Dense {
	_, c := src.Dims()
	dst := mat.NewDense(len(indices), c, nil)
	for i, idx := range indices {
		dst.SetRow(i, src.RawRowView(idx))
	}
	return dst
}
