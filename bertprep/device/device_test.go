package device

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ZanzyTHEbar/bertprep/bertprep/loader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(n int) Option {
	return WithProber(ProberFunc(func() (int, error) { return n, nil }))
}

func intPtr(n int) *int { return &n }

func TestSelect(t *testing.T) {
	t.Run("cpu", func(t *testing.T) {
		d, n, err := Select("cpu", nil, fixed(4))
		require.NoError(t, err)
		assert.Equal(t, Device{Kind: CPU}, d)
		assert.Equal(t, 0, n)
		assert.Equal(t, "cpu", d.String())
		assert.Equal(t, "cpu", d.ExecutionProvider())
	})

	t.Run("gpu uses all devices by default", func(t *testing.T) {
		d, n, err := Select("gpu", nil, fixed(4))
		require.NoError(t, err)
		assert.Equal(t, "cuda:0", d.String())
		assert.Equal(t, "cuda", d.ExecutionProvider())
		assert.Equal(t, 4, n)
	})

	t.Run("gpu honors a smaller cap", func(t *testing.T) {
		_, n, err := Select("gpu", intPtr(2), fixed(4))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("gpu clamps an oversized cap with a warning", func(t *testing.T) {
		var buf bytes.Buffer
		prev := slog.Default()
		slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
		defer slog.SetDefault(prev)

		_, n, err := Select("gpu", intPtr(8), fixed(2))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Contains(t, buf.String(), "level=WARN")
		assert.Contains(t, buf.String(), "Only 2 devices are available")
	})

	t.Run("gpu without accelerators", func(t *testing.T) {
		_, _, err := Select("gpu", nil, fixed(0))
		assert.ErrorIs(t, err, ErrUnavailableDevice)
	})

	t.Run("probe failure", func(t *testing.T) {
		_, _, err := Select("gpu", nil, WithProber(ProberFunc(func() (int, error) { return 0, errors.New("driver") })))
		assert.ErrorIs(t, err, ErrUnavailableDevice)
	})

	t.Run("unsupported kind", func(t *testing.T) {
		_, _, err := Select("tpu", nil, fixed(1))
		assert.ErrorIs(t, err, ErrUnsupportedDevice)
	})
}

func TestNvidiaProber(t *testing.T) {
	root := t.TempDir()
	for _, bus := range []string{"0000:01:00.0", "0000:02:00.0", "0000:03:00.0"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, bus), 0o755))
	}
	p := &NvidiaProber{Root: root}

	t.Run("counts driver entries", func(t *testing.T) {
		t.Setenv("CUDA_VISIBLE_DEVICES", "0,1,2,3")
		n, err := p.Count()
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("visible devices restrict the count", func(t *testing.T) {
		t.Setenv("CUDA_VISIBLE_DEVICES", "1,-1,2")
		n, err := p.Count()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("empty visible list hides everything", func(t *testing.T) {
		t.Setenv("CUDA_VISIBLE_DEVICES", "")
		n, err := p.Count()
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("missing driver", func(t *testing.T) {
		n, err := (&NvidiaProber{Root: filepath.Join(root, "absent")}).Count()
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

// rowSum returns the sum of input ids per row and records the device ids it saw.
type rowSum struct {
	mu   sync.Mutex
	seen map[int]int
	fail bool
}

func (m *rowSum) Forward(ctx context.Context, b *loader.Batch) ([][]float32, error) {
	if m.fail {
		return nil, errors.New("oom")
	}
	id, _ := IDFromContext(ctx)
	m.mu.Lock()
	if m.seen == nil {
		m.seen = map[int]int{}
	}
	m.seen[id] += b.Size()
	m.mu.Unlock()

	out := make([][]float32, b.Size())
	for i := range out {
		var s float64
		for _, v := range b.InputIDs.RawRowView(i) {
			s += v
		}
		out[i] = []float32{float32(s)}
	}
	return out, nil
}

func testBatch(t *testing.T, n int) *loader.Batch {
	t.Helper()
	ids := make([][]int, n)
	mask := make([][]int, n)
	for i := range ids {
		ids[i] = []int{i, 1}
		mask[i] = []int{1, 1}
	}
	ds, err := loader.NewTensorDataset(ids, mask, nil)
	require.NoError(t, err)
	l, err := loader.NewDataLoader(ds, loader.Options{SampleMethod: "sequential", BatchSize: n})
	require.NoError(t, err)
	for _, b := range l.Batches() {
		return b
	}
	t.Fatal("no batch")
	return nil
}

func TestParallelize(t *testing.T) {
	m := &rowSum{}

	t.Run("single device returns the module", func(t *testing.T) {
		assert.Same(t, m, Parallelize(m, 1))
		assert.Same(t, m, Parallelize(m, 0))
	})

	t.Run("wrapping is idempotent", func(t *testing.T) {
		wrapped := Parallelize(m, 3)
		dp, ok := wrapped.(*DataParallel)
		require.True(t, ok)
		assert.Equal(t, []int{0, 1, 2}, dp.DeviceIDs)
		assert.Same(t, wrapped, Parallelize(wrapped, 3))
	})
}

func TestDataParallel_Forward(t *testing.T) {
	t.Run("scatter and gather keep row order", func(t *testing.T) {
		m := &rowSum{}
		out, err := Parallelize(m, 3).Forward(context.Background(), testBatch(t, 7))
		require.NoError(t, err)
		require.Len(t, out, 7)
		for i, row := range out {
			assert.Equal(t, []float32{float32(i + 1)}, row)
		}
		assert.Equal(t, map[int]int{0: 3, 1: 3, 2: 1}, m.seen)
	})

	t.Run("more replicas than rows", func(t *testing.T) {
		m := &rowSum{}
		out, err := Parallelize(m, 4).Forward(context.Background(), testBatch(t, 1))
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1}}, out)
		assert.Equal(t, map[int]int{0: 1}, m.seen)
	})

	t.Run("replica error propagates", func(t *testing.T) {
		_, err := Parallelize(&rowSum{fail: true}, 2).Forward(context.Background(), testBatch(t, 4))
		assert.ErrorContains(t, err, "oom")
	})
}
