//go:build !onnx
// +build !onnx

package inference

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/bertprep/bertprep/device"
	"github.com/ZanzyTHEbar/bertprep/bertprep/loader"
)

// Session is a stub used when built without the "onnx" build tag.
type Session struct{}

func NewSession(modelPath string, dev device.Device) (*Session, error) {
	if modelPath == "" {
		return nil, ErrModelPathRequired
	}
	return &Session{}, nil
}

func (s *Session) Forward(ctx context.Context, batch *loader.Batch) ([][]float32, error) {
	return nil, fmt.Errorf("onnx inference not available: build with -tags onnx and provide a supported model")
}

func (s *Session) Close() error { return nil }
