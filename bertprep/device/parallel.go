package device

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ZanzyTHEbar/bertprep/bertprep/loader"

	"github.com/sourcegraph/conc/pool"
)

// Module produces one output vector per batch row.
type Module interface {
	Forward(ctx context.Context, batch *loader.Batch) ([][]float32, error)
}

type deviceIDKey struct{}

// ContextWithID tags ctx with the accelerator a replica runs on.
func ContextWithID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, deviceIDKey{}, id)
}

// IDFromContext returns the accelerator set by DataParallel, if any.
func IDFromContext(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(deviceIDKey{}).(int)
	return id, ok
}

// DataParallel splits every batch across DeviceIDs and runs the wrapped
// module on each part concurrently.
type DataParallel struct {
	Module    Module
	DeviceIDs []int
}

// Parallelize wraps m for numDevices accelerators. Fewer than two devices, or
// an already wrapped module, returns m unchanged.
func Parallelize(m Module, numDevices int) Module {
	if numDevices < 2 {
		return m
	}
	if _, ok := m.(*DataParallel); ok {
		return m
	}
	ids := make([]int, numDevices)
	for i := range ids {
		ids[i] = i
	}
	return &DataParallel{Module: m, DeviceIDs: ids}
}

// Forward scatters contiguous row chunks to the replicas and gathers the
// outputs back in row order.
func (dp *DataParallel) Forward(ctx context.Context, batch *loader.Batch) ([][]float32, error) {
	n := batch.Size()
	replicas := min(len(dp.DeviceIDs), n)
	if replicas <= 1 {
		id := 0
		if len(dp.DeviceIDs) > 0 {
			id = dp.DeviceIDs[0]
		}
		return dp.Module.Forward(ContextWithID(ctx, id), batch)
	}

	chunk := (n + replicas - 1) / replicas
	parts := make([][][]float32, replicas)
	p := pool.New().WithContext(ctx).WithCancelOnError()
	for r := 0; r < replicas; r++ {
		lo, hi := r*chunk, min((r+1)*chunk, n)
		if lo >= hi {
			break
		}
		p.Go(func(ctx context.Context) error {
			out, err := dp.Module.Forward(ContextWithID(ctx, dp.DeviceIDs[r]), batch.Slice(lo, hi))
			if err != nil {
				return fmt.Errorf("replica %d: %w", dp.DeviceIDs[r], err)
			}
			if len(out) != hi-lo {
				return fmt.Errorf("replica %d returned %d rows for %d inputs", dp.DeviceIDs[r], len(out), hi-lo)
			}
			parts[r] = out
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	gathered := make([][]float32, 0, n)
	for _, part := range parts {
		gathered = append(gathered, part...)
	}
	slog.Debug("Data parallel forward completed", "rows", n, "replicas", replicas)
	return gathered, nil
}
