// Package inference runs token-classification models over loader batches and
// turns per-piece logits back into one label per word.
package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/bertprep/bertprep/device"
)

var (
	ErrModelPathRequired = errors.New("onnx model path is required")
	ErrShapeMismatch     = errors.New("logits do not match mask shape")
)

// replicaDevice returns the accelerator a DataParallel replica was assigned,
// or dev itself outside of data parallel execution.
func replicaDevice(ctx context.Context, dev device.Device) device.Device {
	if dev.Kind != device.GPU {
		return dev
	}
	if id, ok := device.IDFromContext(ctx); ok {
		return device.Device{Kind: device.GPU, Index: id}
	}
	return dev
}

func splitRows(data []float32, rows int) [][]float32 {
	if rows == 0 {
		return [][]float32{}
	}
	width := len(data) / rows
	out := make([][]float32, rows)
	for r := range out {
		row := make([]float32, width)
		copy(row, data[r*width:(r+1)*width])
		out[r] = row
	}
	return out
}

// DecodeWordLabels picks the highest scoring label for every position that is
// both attended to and the first piece of a word. logits rows are flattened
// [seq_len * len(labels)]; labels maps label ids to names.
func DecodeWordLabels(logits [][]float32, attentionMask [][]float32, trailingMask [][]bool, labels []string) ([][]string, error) {
	if len(logits) != len(attentionMask) || len(logits) != len(trailingMask) {
		return nil, fmt.Errorf("%w: %d logit rows, %d mask rows", ErrShapeMismatch, len(logits), len(attentionMask))
	}
	numLabels := len(labels)
	if numLabels == 0 {
		return nil, fmt.Errorf("%w: no label names", ErrShapeMismatch)
	}
	out := make([][]string, len(logits))
	for r, row := range logits {
		seq := len(attentionMask[r])
		if len(trailingMask[r]) != seq || len(row) != seq*numLabels {
			return nil, fmt.Errorf("%w: row %d", ErrShapeMismatch, r)
		}
		words := make([]string, 0, seq)
		for j := 0; j < seq; j++ {
			// padding is primary under the trailing mask, so the attention mask decides
			if attentionMask[r][j] == 0 || !trailingMask[r][j] {
				continue
			}
			scores := row[j*numLabels : (j+1)*numLabels]
			best := 0
			for k, s := range scores {
				if s > scores[best] {
					best = k
				}
			}
			words = append(words, labels[best])
		}
		out[r] = words
	}
	return out, nil
}
