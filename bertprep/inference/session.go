//go:build onnx
// +build onnx

package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/bertprep/bertprep/device"
	"github.com/ZanzyTHEbar/bertprep/bertprep/loader"

	ort "github.com/yalue/onnxruntime_go"
)

// Session runs an exported BERT token-classification model with ONNX Runtime.
// One runtime session is opened lazily per device the first time a Forward
// runs there; under device.DataParallel every replica gets its own.
type Session struct {
	modelPath   string
	dev         device.Device
	mu          sync.Mutex
	sessions    map[int]*ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
}

// NewSession returns a module bound to dev's execution provider.
func NewSession(modelPath string, dev device.Device) (*Session, error) {
	if modelPath == "" {
		return nil, ErrModelPathRequired
	}
	return &Session{modelPath: modelPath, dev: dev, sessions: map[int]*ort.DynamicAdvancedSession{}}, nil
}

func (s *Session) ensureSession(dev device.Device) (*ort.DynamicAdvancedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[dev.Index]; ok {
		return sess, nil
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}
	ins, outs, err := ort.GetInputOutputInfo(s.modelPath)
	if err != nil {
		return nil, fmt.Errorf("get IO info: %w", err)
	}
	var inputNames []string
	for _, ii := range ins {
		switch inputRole(ii.Name) {
		case roleIDs, roleMask, roleTokenType:
			inputNames = append(inputNames, ii.Name)
		}
	}
	if len(inputNames) == 0 {
		return nil, fmt.Errorf("could not determine ONNX input names")
	}
	var outputNames []string
	for _, oi := range outs {
		if oi.DataType == ort.TensorElementDataTypeFloat {
			outputNames = append(outputNames, oi.Name)
			break
		}
	}
	if len(outputNames) == 0 {
		return nil, fmt.Errorf("could not determine ONNX output name")
	}

	var opts *ort.SessionOptions
	if dev.ExecutionProvider() == "cuda" {
		if o, e := ort.NewSessionOptions(); e == nil {
			_ = o.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll)
			if cu, e2 := ort.NewCUDAProviderOptions(); e2 == nil {
				_ = cu.Update(map[string]string{"device_id": fmt.Sprint(dev.Index)})
				_ = o.AppendExecutionProviderCUDA(cu)
				_ = cu.Destroy()
			}
			opts = o
		}
	}
	sess, err := ort.NewDynamicAdvancedSession(s.modelPath, inputNames, outputNames, opts)
	if opts != nil {
		_ = opts.Destroy()
	}
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	s.sessions[dev.Index] = sess
	s.inputNames = inputNames
	s.outputNames = outputNames
	slog.Info("ONNX session opened", "model", s.modelPath, "device", dev.String(), "inputs", inputNames)
	return sess, nil
}

// Forward returns the flattened [seq_len * num_labels] logits of every row.
func (s *Session) Forward(ctx context.Context, batch *loader.Batch) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	session, err := s.ensureSession(replicaDevice(ctx, s.dev))
	if err != nil {
		return nil, err
	}
	rows, seq := batch.Size(), batch.SeqLen()
	shape := ort.NewShape(int64(rows), int64(seq))

	idsTensor, err := ort.NewTensor(shape, loader.Int64s(batch.InputIDs))
	if err != nil {
		return nil, fmt.Errorf("ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, loader.Int64s(batch.InputMask))
	if err != nil {
		return nil, fmt.Errorf("mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	inVals := make([]ort.Value, len(s.inputNames))
	for i, name := range s.inputNames {
		switch inputRole(name) {
		case roleIDs:
			inVals[i] = idsTensor
		case roleMask:
			inVals[i] = maskTensor
		default:
			zeroTensor, e := ort.NewTensor(shape, make([]int64, rows*seq))
			if e != nil {
				return nil, fmt.Errorf("alloc zero tensor: %w", e)
			}
			defer zeroTensor.Destroy()
			inVals[i] = zeroTensor
		}
	}
	outs := make([]ort.Value, len(s.outputNames))
	if err := session.Run(inVals, outs); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	defer func() {
		for _, v := range outs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	t, ok := outs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type")
	}
	outShape := t.GetShape()
	if len(outShape) < 2 || int(outShape[0]) != rows {
		return nil, fmt.Errorf("unexpected output shape %v", outShape)
	}
	return splitRows(t.GetData(), rows), nil
}

// Close releases every ONNX session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for id, sess := range s.sessions {
		errs = append(errs, sess.Destroy())
		delete(s.sessions, id)
	}
	return errors.Join(errs...)
}

type role int

const (
	roleOther role = iota
	roleIDs
	roleMask
	roleTokenType
)

func inputRole(name string) role {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "input_ids") || n == "ids":
		return roleIDs
	case strings.Contains(n, "attention_mask") || n == "mask":
		return roleMask
	case strings.Contains(n, "token_type"):
		return roleTokenType
	}
	return roleOther
}
