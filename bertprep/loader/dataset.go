package loader

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrEmptyDataset   = errors.New("dataset has no rows")
	ErrRaggedTensor   = errors.New("rows have different lengths")
	ErrLengthMismatch = errors.New("tensors have different row counts")
)

// TensorDataset zips row-aligned tensors. Row i of every tensor is sample i.
type TensorDataset struct {
	InputIDs  *mat.Dense
	InputMask *mat.Dense
	// LabelIDs is nil for unlabeled data.
	LabelIDs *mat.Dense
}

// NewTensorDataset builds dense tensors from parallel sequences. labelIDs may be nil.
func NewTensorDataset[M int | float32](inputIDs [][]int, inputMask [][]M, labelIDs [][]int) (*TensorDataset, error) {
	ids, err := toDense(inputIDs)
	if err != nil {
		return nil, fmt.Errorf("input ids: %w", err)
	}
	mask, err := toDense(inputMask)
	if err != nil {
		return nil, fmt.Errorf("input mask: %w", err)
	}
	if err := sameShape(ids, mask); err != nil {
		return nil, fmt.Errorf("input mask: %w", err)
	}
	ds := &TensorDataset{InputIDs: ids, InputMask: mask}
	if len(labelIDs) > 0 {
		labels, err := toDense(labelIDs)
		if err != nil {
			return nil, fmt.Errorf("label ids: %w", err)
		}
		if err := sameShape(ids, labels); err != nil {
			return nil, fmt.Errorf("label ids: %w", err)
		}
		ds.LabelIDs = labels
	}
	return ds, nil
}

// Len returns the number of samples.
func (ds *TensorDataset) Len() int {
	r, _ := ds.InputIDs.Dims()
	return r
}

// HasLabels reports whether the dataset carries a label tensor.
func (ds *TensorDataset) HasLabels() bool { return ds.LabelIDs != nil }

func toDense[T int | float32](rows [][]T) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyDataset
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrRaggedTensor, i, len(row), cols)
		}
		for _, v := range row {
			data = append(data, float64(v))
		}
	}
	return mat.NewDense(len(rows), cols, data), nil
}

func sameShape(a, b *mat.Dense) error {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br {
		return fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, ar, br)
	}
	if ac != bc {
		return fmt.Errorf("%w: %d vs %d columns", ErrRaggedTensor, ac, bc)
	}
	return nil
}
